package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rinshan/bilimanga-downloader/internal/app"
	"github.com/rinshan/bilimanga-downloader/internal/config"
	"github.com/rinshan/bilimanga-downloader/internal/event"
	"github.com/rinshan/bilimanga-downloader/internal/tui"
)

const version = "1.0.0"

func main() {
	store, err := config.NewStore(defaultConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := event.NewBus()
	a := app.New(store, bus, version)
	go a.Run(ctx)

	if err := tui.Run(a, bus.Subscribe()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return "config.json"
	}
	return filepath.Join(base, "bilimanga-dl", "config.json")
}
