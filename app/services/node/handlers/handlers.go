// Package handlers manages the different versions of the API.
package handlers

import (
	"net/http"
	"os"

	"github.com/dimfeld/httptreemux/v5"
	"go.uber.org/zap"

	v1eventgrp "github.com/slimcoin-project/slimcoin/app/services/node/handlers/v1/eventgrp"
	v1gossip "github.com/slimcoin-project/slimcoin/app/services/node/handlers/v1/gossip"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/dispatch"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/state"
	"github.com/slimcoin-project/slimcoin/foundation/events"
)

// MuxConfig contains all the mandatory systems required by handlers.
type MuxConfig struct {
	Shutdown   chan os.Signal
	Log        *zap.SugaredLogger
	State      *state.State
	Dispatcher *dispatch.Dispatcher
	Evts       *events.Events
}

// PublicMux constructs a mux with the gossip and event routes attached.
func PublicMux(cfg MuxConfig) http.Handler {
	mux := httptreemux.NewContextMux()

	gossip := v1gossip.Handlers{
		Log:        cfg.Log,
		State:      cfg.State,
		Dispatcher: cfg.Dispatcher,
	}

	mux.GET("/v1/gossip/status", gossip.Status)
	mux.GET("/v1/gossip/blocks/:from/:count", gossip.Blocks)
	mux.POST("/v1/gossip/tx", gossip.SubmitTx)
	mux.POST("/v1/gossip/block", gossip.SubmitBlock)
	mux.POST("/v1/gossip/message/:command", gossip.Message)

	evg := v1eventgrp.Handlers{
		Log:  cfg.Log,
		Evts: cfg.Evts,
	}
	mux.GET("/v1/events", evg.Events)

	return mux
}
