// closest-kiosk is a full-screen card for a wall display showing the
// aircraft nearest to the observer.
package main

import (
	"context"
	"flag"
	"log"

	"github.com/unklstewy/adsb-closest/internal/app"
	"github.com/unklstewy/adsb-closest/internal/logging"
	"github.com/unklstewy/adsb-closest/pkg/config"
)

func main() {
	configPath := flag.String("config", "configs/config.json", "Path to configuration file")
	logFile := flag.String("log", "closest-kiosk.log", "Log file (the terminal is used for the display)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	file := cfg.Logging.File
	if file == "" {
		file = *logFile
	}
	logger := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   file,
	})
	defer logger.Close()
	for _, w := range cfg.Warnings {
		logger.Warn("configuration warning", "detail", w)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.Build(ctx, cfg, logger.Logger, nil)
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer a.Close()

	kiosk := NewKiosk(a.Loop, cfg.Observer.Name)
	a.Loop.Notify(kiosk.Update)

	a.Loop.Start(ctx)
	defer a.Loop.Stop()

	if err := kiosk.Run(); err != nil {
		logger.Error("kiosk stopped with error", "error", err)
	}
}
