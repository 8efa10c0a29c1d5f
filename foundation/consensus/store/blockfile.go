package store

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/slimcoin-project/slimcoin/foundation/consensus/genesis"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/ledger"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/wire"
)

// maxBlockFileSize is the rotation threshold for block files.
const maxBlockFileSize = 0x7F000000 - genesis.MaxBlockSize

// BlockFiles manages the append-only files holding full block bodies.
// Each record is framed as network magic, payload length, payload.
type BlockFiles struct {
	mu    sync.Mutex
	dir   string
	magic [4]byte

	current    *os.File
	currentNum int32
}

// NewBlockFiles opens the highest-numbered block file in the directory,
// creating the directory and the first file as needed.
func NewBlockFiles(dir string, magic [4]byte) (*BlockFiles, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	bf := BlockFiles{
		dir:   dir,
		magic: magic,
	}

	// Find the last file in use.
	var last int32
	for {
		if _, err := os.Stat(bf.fileName(last + 1)); err != nil {
			break
		}
		last++
	}

	f, err := os.OpenFile(bf.fileName(last), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}

	bf.current = f
	bf.currentNum = last
	return &bf, nil
}

// Close closes the open block file.
func (bf *BlockFiles) Close() error {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	return bf.current.Close()
}

func (bf *BlockFiles) fileName(num int32) string {
	return filepath.Join(bf.dir, fmt.Sprintf("blk%04d.dat", num))
}

// =============================================================================

// WriteBlock appends the block to the current file, rotating first when
// the file is full. It returns the position of the block payload and the
// position of every transaction inside it.
func (bf *BlockFiles) WriteBlock(b ledger.Block) (DiskPos, []DiskPos, error) {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	payload := b.Bytes()

	size, err := bf.current.Seek(0, io.SeekEnd)
	if err != nil {
		return DiskPos{}, nil, err
	}

	if size+int64(len(payload))+8 > maxBlockFileSize {
		if err := bf.rotate(); err != nil {
			return DiskPos{}, nil, err
		}
		size = 0
	}

	var frame bytes.Buffer
	frame.Write(bf.magic[:])
	wire.WriteUint32(&frame, uint32(len(payload)))
	frame.Write(payload)

	if _, err := bf.current.Write(frame.Bytes()); err != nil {
		return DiskPos{}, nil, err
	}
	if err := bf.current.Sync(); err != nil {
		return DiskPos{}, nil, err
	}

	blockPos := DiskPos{File: bf.currentNum, Offset: size + 8}
	txPos := TransactionOffsets(b, blockPos)

	return blockPos, txPos, nil
}

// TransactionOffsets locates each transaction's serialization inside the
// block payload written at base.
func TransactionOffsets(b ledger.Block, base DiskPos) []DiskPos {
	var header bytes.Buffer
	b.Header.Serialize(&header)
	wire.WriteCompactSize(&header, uint64(len(b.Txs)))

	offset := base.Offset + int64(header.Len())

	positions := make([]DiskPos, len(b.Txs))
	for i, tx := range b.Txs {
		positions[i] = DiskPos{File: base.File, Offset: offset}
		offset += int64(tx.SerializedSize())
	}
	return positions
}

// rotate closes the current file and opens the next one.
func (bf *BlockFiles) rotate() error {
	if err := bf.current.Close(); err != nil {
		return err
	}

	f, err := os.OpenFile(bf.fileName(bf.currentNum+1), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return err
	}

	bf.current = f
	bf.currentNum++
	return nil
}

// =============================================================================

// open returns a handle on the specified file number, reusing the open
// handle for the current file.
func (bf *BlockFiles) open(num int32) (*os.File, func(), error) {
	if num == bf.currentNum {
		return bf.current, func() {}, nil
	}

	f, err := os.Open(bf.fileName(num))
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

// ReadBlock reads the block payload at the specified position.
func (bf *BlockFiles) ReadBlock(pos DiskPos) (ledger.Block, error) {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	f, release, err := bf.open(pos.File)
	if err != nil {
		return ledger.Block{}, err
	}
	defer release()

	if _, err := f.Seek(pos.Offset, io.SeekStart); err != nil {
		return ledger.Block{}, err
	}

	var b ledger.Block
	if err := b.Deserialize(f); err != nil {
		return ledger.Block{}, err
	}
	return b, nil
}

// ReadTransaction reads one transaction at the specified position.
func (bf *BlockFiles) ReadTransaction(pos DiskPos) (ledger.Transaction, error) {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	f, release, err := bf.open(pos.File)
	if err != nil {
		return ledger.Transaction{}, err
	}
	defer release()

	if _, err := f.Seek(pos.Offset, io.SeekStart); err != nil {
		return ledger.Transaction{}, err
	}

	var tx ledger.Transaction
	if err := tx.Deserialize(f); err != nil {
		return ledger.Transaction{}, err
	}
	return tx, nil
}

// =============================================================================

// ImportBootstrap consumes a bootstrap.dat in the data directory, handing
// each framed block to the accept function, then renames the file so it
// is only processed once.
func (bf *BlockFiles) ImportBootstrap(dataDir string, accept func(ledger.Block) error) error {
	path := filepath.Join(dataDir, "bootstrap.dat")

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	for {
		var magic [4]byte
		if _, err := io.ReadFull(f, magic[:]); err != nil {
			break
		}
		if magic != bf.magic {
			break
		}

		length, err := wire.ReadUint32(f)
		if err != nil || length > genesis.MaxBlockSize {
			break
		}

		payload := make([]byte, length)
		if _, err := io.ReadFull(f, payload); err != nil {
			break
		}

		var b ledger.Block
		if err := b.Deserialize(bytes.NewReader(payload)); err != nil {
			break
		}

		if err := accept(b); err != nil {
			f.Close()
			return err
		}
	}

	f.Close()
	return os.Rename(path, path+".old")
}
