// Package daemon wires the repository, orchestrator, hub and transports
// into one long-running process and serves them over a single HTTP
// listener (WS upgrade + the REST surface share one mux.Router).
package daemon

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"path/filepath"

	"github.com/mauriceyap/diorama/internal/config"
	"github.com/mauriceyap/diorama/internal/connparams"
	"github.com/mauriceyap/diorama/internal/containerrt"
	"github.com/mauriceyap/diorama/internal/hub"
	"github.com/mauriceyap/diorama/internal/logging"
	"github.com/mauriceyap/diorama/internal/orchestrator"
	"github.com/mauriceyap/diorama/internal/repo"
	"github.com/mauriceyap/diorama/internal/transport/httpapi"
	"github.com/mauriceyap/diorama/internal/transport/ws"
)

// Daemon is the diorama backend process: one HTTP listener serving the WS
// operator channel and the upload/topology/logging REST routes.
type Daemon struct {
	server  *http.Server
	l       net.Listener
	doneCh  chan struct{}
	repo    *repo.Repository
	hubCtx  context.Context
	hubStop context.CancelFunc
}

// New builds the Daemon from cfg: opens the leveldb repository under
// <outputs_dir>/db, constructs the orchestrator and hub, and mounts the WS
// and HTTP routes on one router.
func New(cfg *config.EnvConfig) (d *Daemon, err error) {
	d = new(Daemon)

	if cfg.Daemon.LogFile != "" {
		logging.ConfigureFileSink(cfg.Daemon.LogFile)
	}

	dbPath := filepath.Join(cfg.Daemon.OutputsDir, "db")
	r, err := repo.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening repository: %w", err)
	}
	d.repo = r

	store := repo.NewStore(r)
	cp := connparams.New(r)

	rt, err := containerrt.New()
	if err != nil {
		return nil, fmt.Errorf("creating container runtime adapter: %w", err)
	}

	orch := orchestrator.New(store, cp, rt, cfg.Network.Name, cfg.Daemon.BaseNodeFilesDir, cfg.Daemon.OutputsDir)
	h := hub.New(orch)

	d.hubCtx, d.hubStop = context.WithCancel(context.Background())
	go h.Run(d.hubCtx)

	wsHandler := &ws.Handler{Store: store, ConnParams: cp, Orch: orch, Hub: h}
	httpHandler := &httpapi.Handler{Store: store, ConnParams: cp, Hub: h, OutputsDir: cfg.Daemon.OutputsDir}

	router := httpHandler.Router()
	router.Handle("/ws", wsHandler)

	d.doneCh = make(chan struct{})
	d.server = &http.Server{
		Handler:      router,
		WriteTimeout: 0, // WS connections are long-lived; no write deadline.
		ReadTimeout:  0,
	}

	d.l, err = net.Listen("tcp", cfg.Daemon.Listen)
	if err != nil {
		return nil, err
	}

	return d, nil
}

// Serve blocks serving the listener until Shutdown is called or a fault
// occurs.
func (d *Daemon) Serve() error {
	select {
	case <-d.doneCh:
		return fmt.Errorf("tried to reuse a stopped server")
	default:
	}

	logging.S().Infow("daemon listening", "addr", d.Addr())
	return d.server.Serve(d.l)
}

func (d *Daemon) Addr() string {
	return d.l.Addr().String()
}

// Shutdown gracefully stops the HTTP server, the hub's poll loop and the
// repository.
func (d *Daemon) Shutdown(ctx context.Context) error {
	defer close(d.doneCh)
	d.hubStop()

	shutdownErr := d.server.Shutdown(ctx)

	if err := d.repo.Close(); err != nil && shutdownErr == nil {
		shutdownErr = err
	}
	return shutdownErr
}
