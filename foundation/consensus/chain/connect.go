package chain

import (
	"github.com/slimcoin-project/slimcoin/foundation/consensus/genesis"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/ledger"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/reject"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/script"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/store"
)

// setBestChain advances the main chain to the specified index, either by
// connecting one block on the current tip or by reorganizing to a fork.
// Readers see the old tip until the store transaction commits.
func (c *Chain) setBestChain(bi *BlockIndex, b ledger.Block) (*Update, error) {
	if bi.Prev != c.best {
		return c.reorganize(bi, b)
	}

	if err := c.store.TxBegin(); err != nil {
		return nil, reject.New(reject.Transient, "opening store transaction: %s", err)
	}

	if err := c.connectBlock(b, bi); err != nil {
		c.store.TxAbort()
		c.markInvalid(bi)
		return nil, err
	}
	if err := c.store.WriteBestChain(bi.BlockHash); err != nil {
		c.store.TxAbort()
		return nil, reject.New(reject.Transient, "writing best chain: %s", err)
	}
	if err := c.store.TxCommit(); err != nil {
		return nil, reject.New(reject.Transient, "committing store transaction: %s", err)
	}

	// Only after the commit do the memory pointers flip.
	c.best.Next = bi
	c.best = bi

	c.evHandler("chain: new best: blk[%s] height[%d]", bi.BlockHash, bi.BlockHeight)

	return &Update{NewTip: bi, Connected: []ledger.Block{b}}, nil
}

// reorganize switches the main chain to the fork ending at newTip. The
// disconnects and the connects up to the point the new chain overtakes
// the old tip commit atomically; any remaining blocks of a deep fork
// connect one commit at a time, where a failure is no longer fatal
// because the branch switch already happened.
func (c *Chain) reorganize(newTip *BlockIndex, newBlock ledger.Block) (*Update, error) {
	c.evHandler("chain: REORGANIZE: from[%s] to[%s]", c.best.BlockHash, newTip.BlockHash)

	// Walk both chains back to the lowest common ancestor.
	fork := c.best
	longer := newTip
	for fork != longer {
		if longer.BlockHeight > fork.BlockHeight {
			longer = longer.Prev
			continue
		}
		fork = fork.Prev
	}

	var disconnect []*BlockIndex
	for bi := c.best; bi != fork; bi = bi.Prev {
		disconnect = append(disconnect, bi)
	}

	var connect []*BlockIndex
	for bi := newTip; bi != fork; bi = bi.Prev {
		connect = append(connect, bi)
	}
	for i, j := 0, len(connect)-1; i < j; i, j = i+1, j-1 {
		connect[i], connect[j] = connect[j], connect[i]
	}

	// For a deep fork, stop the atomic phase at the first block whose
	// trust already beats the old tip.
	primary := connect
	var followUp []*BlockIndex
	if len(connect) > reorgBatch {
		for i, bi := range connect {
			if bi.ChainTrust.Gt(c.best.ChainTrust) {
				primary = connect[:i+1]
				followUp = connect[i+1:]
				break
			}
		}
	}

	blockFor := func(bi *BlockIndex) (ledger.Block, error) {
		if bi == newTip {
			return newBlock, nil
		}
		return c.files.ReadBlock(bi.Pos)
	}

	if err := c.store.TxBegin(); err != nil {
		return nil, reject.New(reject.Transient, "opening store transaction: %s", err)
	}

	update := Update{}

	for _, bi := range disconnect {
		b, err := c.files.ReadBlock(bi.Pos)
		if err != nil {
			c.store.TxAbort()
			return nil, reject.New(reject.Transient, "reading block to disconnect: %s", err)
		}
		if err := c.disconnectBlock(b, bi); err != nil {
			c.store.TxAbort()
			c.markInvalid(newTip)
			return nil, err
		}
		update.Disconnected = append(update.Disconnected, b)
	}

	for _, bi := range primary {
		b, err := blockFor(bi)
		if err != nil {
			c.store.TxAbort()
			return nil, reject.New(reject.Transient, "reading block to connect: %s", err)
		}
		if err := c.connectBlock(b, bi); err != nil {
			c.store.TxAbort()
			c.markInvalid(newTip)
			return nil, err
		}
		update.Connected = append(update.Connected, b)
	}

	primaryTip := primary[len(primary)-1]
	if err := c.store.WriteBestChain(primaryTip.BlockHash); err != nil {
		c.store.TxAbort()
		return nil, reject.New(reject.Transient, "writing best chain: %s", err)
	}
	if err := c.store.TxCommit(); err != nil {
		return nil, reject.New(reject.Transient, "committing reorganize: %s", err)
	}

	// The commit succeeded; flip the memory pointers.
	for _, bi := range disconnect {
		if bi.Prev != nil {
			bi.Prev.Next = nil
		}
		bi.Next = nil
	}
	for _, bi := range primary {
		bi.Prev.Next = bi
	}
	c.best = primaryTip

	// Remaining blocks of a deep fork connect individually. The node is
	// already on the new branch, so an error here just stops short.
	for _, bi := range followUp {
		b, err := blockFor(bi)
		if err != nil {
			c.evHandler("chain: reorganize: follow-up read: ERROR: %s", err)
			break
		}

		if err := c.store.TxBegin(); err != nil {
			break
		}
		if err := c.connectBlock(b, bi); err != nil {
			c.store.TxAbort()
			c.markInvalid(newTip)
			c.evHandler("chain: reorganize: follow-up connect: ERROR: %s", err)
			break
		}
		if err := c.store.WriteBestChain(bi.BlockHash); err != nil {
			c.store.TxAbort()
			break
		}
		if err := c.store.TxCommit(); err != nil {
			break
		}

		bi.Prev.Next = bi
		c.best = bi
		update.Connected = append(update.Connected, b)
	}

	update.NewTip = c.best
	c.evHandler("chain: REORGANIZE: done: new best[%s]", c.best.BlockHash)

	return &update, nil
}

// markInvalid records that the chain ending at bi failed to connect.
func (c *Chain) markInvalid(bi *BlockIndex) {
	if bi.ChainTrust.Gt(c.bestInvalidTrust) {
		c.bestInvalidTrust.Set(bi.ChainTrust)
	}
	c.evHandler("chain: InvalidChainFound: invalid block[%s] height[%d] trust[%s]",
		bi.BlockHash, bi.BlockHeight, bi.ChainTrust)
}

// BestInvalidTrust returns the highest chain trust seen on a chain that
// failed validation, for operator warnings.
func (c *Chain) BestInvalidTrust() string {
	return c.bestInvalidTrust.String()
}

// =============================================================================

// connectBlock applies one block's transactions to the store state. It
// must run inside an open store transaction.
func (c *Chain) connectBlock(b ledger.Block, bi *BlockIndex) error {
	strict := b.Header.Time >= genesis.P2SHStrictTime
	positions := store.TransactionOffsets(b, bi.Pos)
	pool := NewTestPool()

	var sigOps int
	var totalFees, blockValueIn, blockValueOut int64

	for ti, tx := range b.Txs {
		txID := tx.Hash()

		for _, in := range tx.Inputs {
			sigOps += script.SigOpCount(in.SigScript, false)
		}
		for _, out := range tx.Outputs {
			sigOps += script.SigOpCount(out.PubKeyScript, false)
		}

		valueOut, err := tx.ValueOut()
		if err != nil {
			return err
		}
		blockValueOut += valueOut

		if !tx.IsCoinbase() {
			if err := c.FetchInputs(tx, pool, false, true); err != nil {
				return err
			}

			// Strict mode also charges for the sig-ops hidden inside a
			// redeemed pay-to-script-hash script.
			if strict {
				for _, in := range tx.Inputs {
					prev := pool[in.PrevOut.Hash]
					sigOps += script.P2SHSigOpCount(in.SigScript, prev.Tx.Outputs[in.PrevOut.Index].PubKeyScript)
				}
			}

			fee, valueIn, err := c.ConnectInputs(tx, pool, positions[ti], bi.BlockHeight, true)
			if err != nil {
				return err
			}
			totalFees += fee
			blockValueIn += valueIn
		}

		if sigOps > genesis.MaxBlockSigOps {
			return reject.DoS(reject.Malformed, 100, "out-of-bounds sigop count")
		}

		pool[txID] = &PoolEntry{
			Idx: store.NewTxIndex(positions[ti], bi.BlockHeight, len(tx.Outputs)),
			Tx:  tx,
		}
	}

	// Flush the per-block view: every touched and created index entry.
	for txID, entry := range pool {
		if err := c.store.WriteTxIndex(txID, entry.Idx); err != nil {
			return reject.New(reject.Transient, "writing tx index: %s", err)
		}
	}

	// Fees are destroyed, never paid out: they shrink the supply while
	// minting grows it.
	bi.Mint = blockValueOut - blockValueIn + totalFees
	if bi.Prev != nil {
		bi.MoneySupply = bi.Prev.MoneySupply + blockValueOut - blockValueIn
	}

	if err := c.store.WriteBlockIndex(bi.Record()); err != nil {
		return reject.New(reject.Transient, "writing block index: %s", err)
	}

	return nil
}

// disconnectBlock backs one block's transactions out of the store state.
// It must run inside an open store transaction.
func (c *Chain) disconnectBlock(b ledger.Block, bi *BlockIndex) error {
	for ti := len(b.Txs) - 1; ti >= 0; ti-- {
		tx := b.Txs[ti]

		if !tx.IsCoinbase() {
			for _, in := range tx.Inputs {
				idx, found, err := c.store.ReadTxIndex(in.PrevOut.Hash)
				if err != nil {
					return reject.New(reject.Transient, "reading tx index: %s", err)
				}
				if !found || in.PrevOut.Index >= uint32(len(idx.Spent)) {
					return reject.New(reject.Consensus, "disconnect: missing prev tx index")
				}

				idx.Spent[in.PrevOut.Index] = store.NullPos()
				if err := c.store.WriteTxIndex(in.PrevOut.Hash, idx); err != nil {
					return reject.New(reject.Transient, "writing tx index: %s", err)
				}
			}
		}

		if err := c.store.EraseTxIndex(tx.Hash()); err != nil {
			return reject.New(reject.Transient, "erasing tx index: %s", err)
		}
	}

	return nil
}

// Resurrectable filters a disconnected block's transactions down to the
// ones that can go back into the mempool.
func Resurrectable(b ledger.Block) []ledger.Transaction {
	var txs []ledger.Transaction
	for _, tx := range b.Txs {
		if tx.IsCoinbase() || tx.IsCoinstake() {
			continue
		}
		txs = append(txs, tx)
	}
	return txs
}
