package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/slimcoin-project/slimcoin/foundation/consensus/ledger"
)

var genesisCmd = &cobra.Command{
	Use:   "genesis",
	Short: "Print the genesis block and chain parameters",
	RunE:  runGenesis,
}

func init() {
	rootCmd.AddCommand(genesisCmd)
}

func runGenesis(cmd *cobra.Command, args []string) error {
	p := chainParams()

	out, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	gen := ledger.NewGenesisBlock(p)
	fmt.Printf("genesis hash:   %s\n", gen.Hash())
	fmt.Printf("merkle root:    %s\n", gen.Header.MerkleRoot)
	fmt.Printf("time:           %d\n", gen.Header.Time)
	fmt.Printf("bits:           %08x\n", gen.Header.Bits)
	fmt.Printf("burn bits:      %08x\n", gen.Header.BurnBits)

	return nil
}
