// hubd runs the LAN-local point-of-sale synchronization hub: it
// terminates the bidirectional device sync protocol and the auxiliary
// HTTP surface (login, health, status, stats, locks, events) from one
// process.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/luxfi/posync-hub/internal/auth"
	"github.com/luxfi/posync-hub/internal/clock"
	"github.com/luxfi/posync-hub/internal/config"
	"github.com/luxfi/posync-hub/internal/httpapi"
	"github.com/luxfi/posync-hub/internal/lockmgr"
	"github.com/luxfi/posync-hub/internal/logging"
	"github.com/luxfi/posync-hub/internal/metrics"
	"github.com/luxfi/posync-hub/internal/session"
	"github.com/luxfi/posync-hub/internal/store"
)

const clientIdentifier = "hubd"

var app = &cli.App{
	Name:    clientIdentifier,
	Usage:   "LAN-local multi-device point-of-sale synchronization hub",
	Version: "1.0.0",
}

func init() {
	app.Action = run
	app.Flags = []cli.Flag{
		&cli.StringFlag{Name: "host", Value: "0.0.0.0", Usage: "address to bind the hub's listeners to"},
		&cli.IntFlag{Name: "port", Value: 4001, Usage: "port for the sync protocol and HTTP surface"},
		&cli.StringFlag{Name: "log-level", Value: "info", Usage: "trace, debug, info, warn, error, crit"},
	}
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cliCtx *cli.Context) error {
	if lvl := cliCtx.String("log-level"); lvl != "" {
		if err := logging.SetLevel(lvl); err != nil {
			return fmt.Errorf("invalid log-level: %w", err)
		}
	}
	log := logging.For("hubd")

	// Flags were already consumed by the cli.App above; config.Load is
	// called with no args so it only resolves defaults and environment
	// variables, then the explicitly-set CLI flags below take final
	// precedence.
	cfg, err := config.Load(nil)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cliCtx.IsSet("host") {
		cfg.Host = cliCtx.String("host")
	}
	if cliCtx.IsSet("port") {
		cfg.Port = cliCtx.Int("port")
	}

	st := store.NewWithCap(cfg.MaxEvents)
	locks := lockmgr.New(lockmgr.WithTTL(cfg.LockTTL), lockmgr.WithSweepInterval(cfg.SweepInterval))
	defer locks.Shutdown()

	clk := clock.New()
	authn := auth.NewMemoryAuthenticator(nil)

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	mx := metrics.New(reg)

	hub := session.New(st, locks, clk, authn, mx)
	router := httpapi.New(hub, st, locks, authn)
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("hub listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
