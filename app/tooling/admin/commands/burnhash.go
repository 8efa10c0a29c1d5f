package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/slimcoin-project/slimcoin/foundation/consensus/burn"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/wire"
)

var burnHashCmd = &cobra.Command{
	Use:   "burnhash <burn-block-hash> <burn-tx-hash> <prev-hash> <burn-value> <pow-between>",
	Short: "Compute the intermediate and final burn hash for a candidate",
	Args:  cobra.ExactArgs(5),
	RunE:  runBurnHash,
}

var prevBlockTime uint32

func init() {
	burnHashCmd.Flags().Uint32Var(&prevBlockTime, "prev-time", 0, "previous block time for round-down behavior")
	rootCmd.AddCommand(burnHashCmd)
}

func runBurnHash(cmd *cobra.Command, args []string) error {
	burnBlockHash, err := wire.HashFromString(args[0])
	if err != nil {
		return fmt.Errorf("burn block hash: %w", err)
	}
	burnTxHash, err := wire.HashFromString(args[1])
	if err != nil {
		return fmt.Errorf("burn tx hash: %w", err)
	}
	prevHash, err := wire.HashFromString(args[2])
	if err != nil {
		return fmt.Errorf("prev hash: %w", err)
	}
	value, err := strconv.ParseInt(args[3], 10, 64)
	if err != nil {
		return fmt.Errorf("burn value: %w", err)
	}
	between, err := strconv.ParseInt(args[4], 10, 32)
	if err != nil {
		return fmt.Errorf("pow between: %w", err)
	}

	p := chainParams()

	intermediate := burn.IntermediateHash(burnBlockHash, burnTxHash, prevHash)
	fmt.Printf("intermediate: %s\n", intermediate)

	final, err := burn.FinalHash(burn.HashInputs{
		BurnBlockHash: burnBlockHash,
		BurnTxHash:    burnTxHash,
		PrevHash:      prevHash,
		BurnValue:     value,
		PoWBetween:    int32(between),
		PrevBlockTime: prevBlockTime,
	}, p)
	if err != nil {
		return err
	}
	fmt.Printf("final:        %s\n", final)

	return nil
}
