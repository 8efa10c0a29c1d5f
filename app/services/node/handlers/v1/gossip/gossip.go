// Package gossip exposes the node's gossip surface over HTTP. Every
// inbound payload funnels through the dispatcher so peer scoring and
// protocol rules apply regardless of transport.
package gossip

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/dimfeld/httptreemux/v5"
	"go.uber.org/zap"

	"github.com/slimcoin-project/slimcoin/foundation/consensus/dispatch"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/peer"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/state"
)

// maxPayload bounds what a peer may post in one request.
const maxPayload = 2_000_000

// Handlers manages the set of gossip endpoints.
type Handlers struct {
	Log        *zap.SugaredLogger
	State      *state.State
	Dispatcher *dispatch.Dispatcher
}

// peerFrom identifies the calling peer by its advertised host.
func peerFrom(r *http.Request) peer.Peer {
	host := r.Header.Get("X-Node-Host")
	if host == "" {
		host = r.RemoteAddr
	}
	return peer.New(host)
}

// Status reports this node's chain position and known peers.
func (h Handlers) Status(w http.ResponseWriter, r *http.Request) {
	var hosts []string
	for _, pr := range h.State.RetrieveKnownPeers() {
		hosts = append(hosts, pr.Host)
	}

	resp := state.PeerStatus{
		BestHash:   h.State.RetrieveBestHash().String(),
		Height:     h.State.RetrieveHeight(),
		KnownPeers: hosts,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// Blocks streams up to count canonical block serializations starting at
// the requested height.
func (h Handlers) Blocks(w http.ResponseWriter, r *http.Request) {
	params := httptreemux.ContextParams(r.Context())

	from, err := strconv.ParseInt(params["from"], 10, 32)
	if err != nil {
		http.Error(w, "invalid from height", http.StatusBadRequest)
		return
	}
	count, err := strconv.Atoi(params["count"])
	if err != nil || count < 1 || count > 500 {
		http.Error(w, "invalid count", http.StatusBadRequest)
		return
	}

	blocks, err := h.State.RetrieveBlocksFrom(int32(from), count)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	for _, b := range blocks {
		w.Write(b.Bytes())
	}
}

// SubmitTx accepts one canonical transaction.
func (h Handlers) SubmitTx(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, dispatch.CmdTx)
}

// SubmitBlock accepts one canonical block.
func (h Handlers) SubmitBlock(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, dispatch.CmdBlock)
}

// Message accepts any gossip command with its canonical payload.
func (h Handlers) Message(w http.ResponseWriter, r *http.Request) {
	params := httptreemux.ContextParams(r.Context())
	h.handle(w, r, params["command"])
}

// handle reads the payload and routes it through the dispatcher.
func (h Handlers) handle(w http.ResponseWriter, r *http.Request, command string) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayload))
	if err != nil {
		http.Error(w, "reading payload", http.StatusBadRequest)
		return
	}

	from := peerFrom(r)
	if err := h.Dispatcher.HandleMessage(from, command, payload); err != nil {
		h.Log.Infow("gossip", "peer", from.Host, "command", command, "ERROR", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusOK)
}
