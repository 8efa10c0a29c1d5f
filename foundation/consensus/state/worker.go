package state

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/slimcoin-project/slimcoin/foundation/consensus/ledger"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/peer"
)

// maxShareRequests represents the max number of pending share requests
// that can be outstanding before new requests are dropped.
const maxShareRequests = 100

// peerUpdateInterval represents the interval of finding new peer nodes
// and catching the chain up with missing blocks.
const peerUpdateInterval = time.Minute

// =============================================================================

// worker manages the peer-update and sharing workflows for the node.
type worker struct {
	state        *State
	wg           sync.WaitGroup
	ticker       *time.Ticker
	shut         chan struct{}
	txSharing    chan ledger.Transaction
	blockSharing chan ledger.Block
	evHandler    EventHandler
	baseURL      string
	client       http.Client
}

// RunWorker creates a worker and registers it with the state, starting
// all the operational goroutines.
func RunWorker(st *State, evHandler EventHandler) {
	w := worker{
		state:        st,
		ticker:       time.NewTicker(peerUpdateInterval),
		shut:         make(chan struct{}),
		txSharing:    make(chan ledger.Transaction, maxShareRequests),
		blockSharing: make(chan ledger.Block, maxShareRequests),
		evHandler:    evHandler,
		baseURL:      "http://%s/v1/gossip",
		client:       http.Client{Timeout: 15 * time.Second},
	}
	st.Worker = &w

	// Update this node before starting any support G's.
	w.Sync()

	operations := []func(){
		w.peerOperations,
		w.shareTxOperations,
		w.shareBlockOperations,
	}

	g := len(operations)
	w.wg.Add(g)

	hasStarted := make(chan bool)
	for _, op := range operations {
		go func(op func()) {
			defer w.wg.Done()
			hasStarted <- true
			op()
		}(op)
	}

	for i := 0; i < g; i++ {
		<-hasStarted
	}
}

// Shutdown terminates the goroutines performing work.
func (w *worker) Shutdown() {
	w.evHandler("worker: shutdown: started")
	defer w.evHandler("worker: shutdown: completed")

	w.ticker.Stop()
	close(w.shut)
	w.wg.Wait()
}

// isShutdown is used to test if a shutdown has been signaled.
func (w *worker) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}

// =============================================================================

// SignalShareTx queues a transaction to be shared with the known peers.
func (w *worker) SignalShareTx(tx ledger.Transaction) {
	select {
	case w.txSharing <- tx:
		w.evHandler("worker: SignalShareTx: signaled")
	default:
		w.evHandler("worker: SignalShareTx: queue full, dropping request")
	}
}

// SignalShareBlock queues a block to be shared with the known peers.
func (w *worker) SignalShareBlock(b ledger.Block) {
	select {
	case w.blockSharing <- b:
		w.evHandler("worker: SignalShareBlock: signaled")
	default:
		w.evHandler("worker: SignalShareBlock: queue full, dropping request")
	}
}

// =============================================================================

// peerOperations handles finding new peers and catching up the chain.
func (w *worker) peerOperations() {
	w.evHandler("worker: peerOperations: G started")
	defer w.evHandler("worker: peerOperations: G completed")

	for {
		select {
		case <-w.ticker.C:
			if !w.isShutdown() {
				w.Sync()
			}
		case <-w.shut:
			w.evHandler("worker: peerOperations: received shut signal")
			return
		}
	}
}

// shareTxOperations handles sharing new transactions.
func (w *worker) shareTxOperations() {
	w.evHandler("worker: shareTxOperations: G started")
	defer w.evHandler("worker: shareTxOperations: G completed")

	for {
		select {
		case tx := <-w.txSharing:
			if !w.isShutdown() {
				w.shareTx(tx)
			}
		case <-w.shut:
			w.evHandler("worker: shareTxOperations: received shut signal")
			return
		}
	}
}

// shareBlockOperations handles sharing newly accepted blocks.
func (w *worker) shareBlockOperations() {
	w.evHandler("worker: shareBlockOperations: G started")
	defer w.evHandler("worker: shareBlockOperations: G completed")

	for {
		select {
		case b := <-w.blockSharing:
			if !w.isShutdown() {
				w.shareBlock(b)
			}
		case <-w.shut:
			w.evHandler("worker: shareBlockOperations: received shut signal")
			return
		}
	}
}

// =============================================================================

// PeerStatus is what a peer reports about itself.
type PeerStatus struct {
	BestHash   string   `json:"best_hash"`
	Height     int32    `json:"height"`
	KnownPeers []string `json:"known_peers"`
}

// Sync updates the peer list and chain from the known peers. Peers'
// mempools are not fetched.
func (w *worker) Sync() {
	w.evHandler("worker: sync: started")
	defer w.evHandler("worker: sync: completed")

	for _, pr := range w.state.RetrieveKnownPeers() {
		status, err := w.queryPeerStatus(pr)
		if err != nil {
			w.evHandler("worker: sync: queryPeerStatus: %s: ERROR: %s", pr.Host, err)
			continue
		}

		for _, host := range status.KnownPeers {
			if w.state.knownPeers.Add(peer.New(host)) {
				w.evHandler("worker: sync: add peer: %s", host)
			}
		}
		w.state.knownPeers.SetHeight(pr, status.Height)

		if status.Height > w.state.RetrieveHeight() {
			w.evHandler("worker: sync: writePeerBlocks: %s: height[%d]", pr.Host, status.Height)
			if err := w.writePeerBlocks(pr); err != nil {
				w.evHandler("worker: sync: writePeerBlocks: %s: ERROR: %s", pr.Host, err)
			}
		}
	}
}

// queryPeerStatus asks a peer for its current status.
func (w *worker) queryPeerStatus(pr peer.Peer) (PeerStatus, error) {
	url := fmt.Sprintf(w.baseURL+"/status", pr.Host)

	resp, err := w.client.Get(url)
	if err != nil {
		return PeerStatus{}, err
	}
	defer resp.Body.Close()

	var status PeerStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return PeerStatus{}, err
	}
	return status, nil
}

// writePeerBlocks pulls the blocks this node is missing from the peer
// and runs them through block processing.
func (w *worker) writePeerBlocks(pr peer.Peer) error {
	const pageSize = 50

	for !w.isShutdown() {
		from := w.state.RetrieveHeight() + 1
		url := fmt.Sprintf(w.baseURL+"/blocks/%d/%d", pr.Host, from, pageSize)

		resp, err := w.client.Get(url)
		if err != nil {
			return err
		}

		payload, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return err
		}
		if len(payload) == 0 {
			return nil
		}

		r := bytes.NewReader(payload)
		for r.Len() > 0 {
			var b ledger.Block
			if err := b.Deserialize(r); err != nil {
				return err
			}

			if _, err := w.state.ProcessBlock(b); err != nil {
				w.evHandler("worker: writePeerBlocks: process: blk[%s]: ERROR: %s", b.Hash(), err)
			}
		}

		// No progress means the peer is feeding blocks we can't use.
		if w.state.RetrieveHeight() < from {
			return nil
		}
	}
	return nil
}

// =============================================================================

// shareTx sends the transaction to every known peer.
func (w *worker) shareTx(tx ledger.Transaction) {
	for _, pr := range w.state.RetrieveKnownPeers() {
		url := fmt.Sprintf(w.baseURL+"/tx", pr.Host)
		if err := w.post(url, tx.Bytes()); err != nil {
			w.evHandler("worker: shareTx: %s: ERROR: %s", pr.Host, err)
		}
	}
}

// shareBlock sends the block to peers whose reported height is behind.
func (w *worker) shareBlock(b ledger.Block) {
	for _, pr := range w.state.RetrieveKnownPeers() {
		status := w.state.knownPeers.Status(pr)
		if status.Height > w.state.RetrieveHeight() {
			continue
		}

		url := fmt.Sprintf(w.baseURL+"/block", pr.Host)
		if err := w.post(url, b.Bytes()); err != nil {
			w.evHandler("worker: shareBlock: %s: ERROR: %s", pr.Host, err)
		}
	}
}

// post sends a canonical payload to a peer endpoint.
func (w *worker) post(url string, payload []byte) error {
	resp, err := w.client.Post(url, "application/octet-stream", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
