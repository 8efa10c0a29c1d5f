// This program provides administration tooling against a node's data
// directory: chain inspection, genesis dumps and burn-hash calculation.
package main

import (
	"github.com/slimcoin-project/slimcoin/app/tooling/admin/commands"
)

func main() {
	commands.Execute()
}
