// adsb-closest serves the aircraft nearest to the configured observer over
// HTTP: a JSON API, a websocket stream, Prometheus metrics and a status page.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/unklstewy/adsb-closest/internal/app"
	"github.com/unklstewy/adsb-closest/internal/logging"
	"github.com/unklstewy/adsb-closest/internal/server"
	"github.com/unklstewy/adsb-closest/pkg/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "adsb-closest: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "configs/config.json", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	log := logging.NewFromEnv(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	})
	defer log.Close()

	log.Info("starting adsb-closest", "config", *configPath)
	for _, w := range cfg.Warnings {
		log.Warn("configuration warning", "detail", w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a, err := app.Build(ctx, cfg, log.Logger, reg)
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := server.New(server.Options{
		Source:      a.Loop,
		Metrics:     a.Metrics.Handler(),
		CORSOrigins: cfg.Server.CORSOrigins,
		Title:       cfg.Observer.Name,
		Logger:      log.Logger,
	})
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.Run(ctx)
	})
	g.Go(func() error {
		return srv.ListenAndServe(ctx, cfg.Server.Addr())
	})

	if err := g.Wait(); err != nil {
		log.Error("stopped with error", "error", err)
		return err
	}
	log.Info("adsb-closest stopped")
	return nil
}
