package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/slimcoin-project/slimcoin/foundation/consensus/chain"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/store"
)

var chainCmd = &cobra.Command{
	Use:   "chain",
	Short: "Print the best chain summary from the data directory",
	RunE:  runChain,
}

func init() {
	rootCmd.AddCommand(chainCmd)
}

func runChain(cmd *cobra.Command, args []string) error {
	p := chainParams()

	db, err := store.NewLevelDB(filepath.Join(dataDir, "chainstate"))
	if err != nil {
		return err
	}
	defer db.Close()

	files, err := store.NewBlockFiles(filepath.Join(dataDir, "blocks"), p.NetMagic)
	if err != nil {
		return err
	}
	defer files.Close()

	c, err := chain.New(chain.Config{
		Params: p,
		Store:  db,
		Files:  files,
	})
	if err != nil {
		return err
	}

	best := c.Best()
	fmt.Printf("network:      %s\n", p.Name)
	fmt.Printf("height:       %d\n", best.BlockHeight)
	fmt.Printf("best hash:    %s\n", best.BlockHash)
	fmt.Printf("chain trust:  %s\n", best.ChainTrust)
	fmt.Printf("money supply: %d\n", best.MoneySupply)
	fmt.Printf("burn coins:   %d\n", best.EffBurnCoins)

	kind := "proof-of-work"
	switch {
	case best.IsProofOfStake():
		kind = "proof-of-stake"
	case best.IsProofOfBurn():
		kind = "proof-of-burn"
	}
	fmt.Printf("tip type:     %s\n", kind)

	return nil
}
