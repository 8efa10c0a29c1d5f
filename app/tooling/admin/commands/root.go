// Package commands implements the admin CLI.
package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/slimcoin-project/slimcoin/foundation/consensus/genesis"
)

var (
	dataDir string
	network string
)

var rootCmd = &cobra.Command{
	Use:   "admin",
	Short: "Administration tooling for a node data directory",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&dataDir, "datadir", "d", "zblock", "node data directory")
	rootCmd.PersistentFlags().StringVarP(&network, "network", "n", "mainnet", "mainnet or testnet")
}

// chainParams resolves the configured network parameters.
func chainParams() genesis.Params {
	if network == "testnet" {
		return genesis.Testnet()
	}
	return genesis.Mainnet()
}
