package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli"
	"go.uber.org/zap/zapcore"

	"github.com/mauriceyap/diorama/internal/config"
	"github.com/mauriceyap/diorama/internal/daemon"
	"github.com/mauriceyap/diorama/internal/logging"
)

func main() {
	app := cli.NewApp()
	app.Name = "dioramad"
	app.Usage = "network simulation workbench backend"
	app.Commands = []cli.Command{daemonCommand}
	app.Flags = []cli.Flag{
		cli.BoolFlag{Name: "v", Usage: "enable debug-level logging"},
		cli.BoolFlag{Name: "vv", Usage: "enable debug-level logging"},
	}
	app.HideVersion = true
	app.Before = func(c *cli.Context) error {
		configureLogging(c)
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func configureLogging(c *cli.Context) {
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		var l zapcore.Level
		if err := l.UnmarshalText([]byte(level)); err != nil {
			panic(err)
		}
		logging.SetLevel(l)
		return
	}

	switch {
	case c.GlobalBool("v"), c.GlobalBool("vv"):
		logging.SetLevel(zapcore.DebugLevel)
	default:
		// Remain at the default INFO level.
	}
}

var daemonCommand = cli.Command{
	Name:   "daemon",
	Usage:  "start the diorama backend: WS operator channel + HTTP surface",
	Action: runDaemon,
}

func runDaemon(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := &config.EnvConfig{}
	if err := cfg.Load(); err != nil {
		return err
	}

	srv, err := daemon.New(cfg)
	if err != nil {
		return err
	}

	exiting := make(chan struct{})
	defer close(exiting)

	go func() {
		select {
		case <-ctx.Done():
		case <-exiting:
			return
		}

		logging.S().Infow("shutting down diorama daemon")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logging.S().Errorw("failed to shut down daemon cleanly", "error", err)
		}
		logging.S().Infow("diorama daemon stopped")
	}()

	logging.S().Infow("listen and serve", "addr", srv.Addr())
	err = srv.Serve()
	if err == http.ErrServerClosed {
		err = nil
	}
	return err
}
