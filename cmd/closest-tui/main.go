// closest-tui shows the aircraft nearest to the observer as a terminal card.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/unklstewy/adsb-closest/internal/app"
	"github.com/unklstewy/adsb-closest/internal/logging"
	"github.com/unklstewy/adsb-closest/internal/refresh"
	"github.com/unklstewy/adsb-closest/pkg/config"
)

func main() {
	configPath := flag.String("config", "configs/config.json", "Path to configuration file")
	logFile := flag.String("log", "closest-tui.log", "Log file (the terminal is used for the UI)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	file := cfg.Logging.File
	if file == "" {
		file = *logFile
	}
	log := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   file,
	})
	defer log.Close()
	for _, w := range cfg.Warnings {
		log.Warn("configuration warning", "detail", w)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.Build(ctx, cfg, log.Logger, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	title := "Nearest Flight"
	if cfg.Observer.Name != "" {
		title += " · " + cfg.Observer.Name
	}

	p := tea.NewProgram(newModel(a.Loop, title, a.Loop.Current()), tea.WithAltScreen())
	a.Loop.Notify(func(s refresh.State) {
		p.Send(stateMsg(s))
	})

	a.Loop.Start(ctx)
	defer a.Loop.Stop()

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
