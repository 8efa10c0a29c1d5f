package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ardanlabs/conf/v3"
	"go.uber.org/zap"

	"github.com/slimcoin-project/slimcoin/app/services/node/handlers"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/dispatch"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/genesis"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/ledger"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/peer"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/state"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/store"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/verifier"
	"github.com/slimcoin-project/slimcoin/foundation/events"
	"github.com/slimcoin-project/slimcoin/foundation/logger"
)

// build is the git version of this program. It is set at link time with
// -ldflags.
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("NODE")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {

	// =========================================================================
	// Configuration

	cfg := struct {
		conf.Version
		Web struct {
			ReadTimeout     time.Duration `conf:"default:5s"`
			WriteTimeout    time.Duration `conf:"default:10s"`
			IdleTimeout     time.Duration `conf:"default:120s"`
			ShutdownTimeout time.Duration `conf:"default:20s"`
			PublicHost      string        `conf:"default:0.0.0.0:8080"`
		}
		State struct {
			Network         string   `conf:"default:mainnet"`
			DataDir         string   `conf:"default:zblock"`
			ParamsFile      string   `conf:"default:"`
			MaxOrphanBlocks int      `conf:"default:750"`
			KnownPeers      []string `conf:"default:0.0.0.0:9080;0.0.0.0:9180"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "copyright information here",
		},
	}

	const prefix = "NODE"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// =========================================================================
	// App Starting

	log.Infow("starting service", "version", build)
	defer log.Infow("shutdown complete")

	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Infow("startup", "config", out)

	// =========================================================================
	// Chain Parameters

	var params genesis.Params
	switch {
	case cfg.State.ParamsFile != "":
		params, err = genesis.Load(cfg.State.ParamsFile)
		if err != nil {
			return fmt.Errorf("loading chain parameters: %w", err)
		}
	case cfg.State.Network == "testnet":
		params = genesis.Testnet()
	default:
		params = genesis.Mainnet()
	}
	log.Infow("startup", "status", "chain parameters", "network", params.Name)

	// =========================================================================
	// Consensus Support

	db, err := store.NewLevelDB(filepath.Join(cfg.State.DataDir, "chainstate"))
	if err != nil {
		return fmt.Errorf("opening chainstate: %w", err)
	}
	defer db.Close()

	files, err := store.NewBlockFiles(filepath.Join(cfg.State.DataDir, "blocks"), params.NetMagic)
	if err != nil {
		return fmt.Errorf("opening block files: %w", err)
	}
	defer files.Close()

	// A peer set is a collection of known nodes in the network so
	// transactions and blocks can be shared.
	peerSet := peer.NewSet()
	for _, host := range cfg.State.KnownPeers {
		peerSet.Add(peer.New(host))
	}

	// The consensus packages accept a function of this signature to
	// allow the application to log. Raw messages also reach websocket
	// subscribers through the events package.
	evts := events.New()
	ev := func(v string, args ...any) {
		log.Infow(fmt.Sprintf(v, args...))
	}

	st, err := state.New(state.Config{
		Params:          params,
		Store:           db,
		Files:           files,
		Verifier:        verifier.Verifier{},
		MaxOrphanBlocks: cfg.State.MaxOrphanBlocks,
		Host:            cfg.Web.PublicHost,
		KnownPeers:      peerSet,
		Evts:            evts,
		EvHandler:       ev,
	})
	if err != nil {
		return err
	}
	defer st.Shutdown()

	// Consume a bootstrap file when the operator dropped one in.
	if err := files.ImportBootstrap(cfg.State.DataDir, func(b ledger.Block) error {
		_, err := st.ProcessBlock(b)
		if err != nil {
			ev("bootstrap: blk[%s]: %s", b.Hash(), err)
		}
		return nil
	}); err != nil {
		return fmt.Errorf("importing bootstrap: %w", err)
	}

	// The worker implements the peer update and sharing workflows. The
	// worker registers itself with the state.
	state.RunWorker(st, state.EventHandler(ev))

	// The dispatcher maps gossip messages onto the consensus entry
	// points, scoring misbehaving peers.
	dsp := dispatch.New(dispatch.Config{
		State:     st,
		Peers:     peerSet,
		Sender:    newHTTPSender(cfg.Web.PublicHost),
		Evts:      evts,
		EvHandler: dispatch.EventHandler(ev),
	})

	// =========================================================================
	// Service Start/Stop Support

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	// =========================================================================
	// Start Public Service

	log.Infow("startup", "status", "initializing V1 public API support")

	publicMux := handlers.PublicMux(handlers.MuxConfig{
		Shutdown:   shutdown,
		Log:        log,
		State:      st,
		Dispatcher: dsp,
		Evts:       evts,
	})

	public := http.Server{
		Addr:         cfg.Web.PublicHost,
		Handler:      publicMux,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	go func() {
		log.Infow("startup", "status", "public api router started", "host", public.Addr)
		serverErrors <- public.ListenAndServe()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Infow("shutdown", "status", "shutdown started", "signal", sig)
		defer log.Infow("shutdown", "status", "shutdown complete", "signal", sig)

		log.Infow("shutdown", "status", "shutdown web socket channels")
		evts.Shutdown()

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		log.Infow("shutdown", "status", "shutdown public API started")
		if err := public.Shutdown(ctx); err != nil {
			public.Close()
			return fmt.Errorf("could not stop public service gracefully: %w", err)
		}
	}

	return nil
}

// =============================================================================

// httpSender delivers gossip messages to peers over their HTTP surface.
type httpSender struct {
	selfHost string
	client   http.Client
}

func newHTTPSender(selfHost string) *httpSender {
	return &httpSender{
		selfHost: selfHost,
		client:   http.Client{Timeout: 15 * time.Second},
	}
}

// Send implements the dispatch.Sender interface.
func (s *httpSender) Send(to peer.Peer, command string, payload []byte) error {
	url := fmt.Sprintf("http://%s/v1/gossip/message/%s", to.Host, command)

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Node-Host", s.selfHost)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("peer %s responded %d", to.Host, resp.StatusCode)
	}
	return nil
}
