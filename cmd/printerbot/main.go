// Package main provides the entry point for the printerbot daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/txn2/printerbot/internal/server"
	"github.com/txn2/printerbot/pkg/bot"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type botOptions struct {
	configPath  string
	showVersion bool
}

func parseFlags() botOptions {
	opts := botOptions{}
	flag.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	flag.BoolVar(&opts.showVersion, "version", false, "Show version and exit")
	flag.Parse()
	return opts
}

func setupSignalHandler() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx
}

func loadConfig(opts botOptions) (*bot.Config, error) {
	if opts.configPath != "" {
		return bot.LoadConfig(opts.configPath)
	}
	return bot.DefaultConfig(), nil
}

func run() error {
	opts := parseFlags()

	if opts.showVersion {
		fmt.Printf("printerbot version %s\n", server.Version)
		return nil
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	app, err := server.New(cfg)
	if err != nil {
		return fmt.Errorf("creating bot: %w", err)
	}
	defer func() { _ = app.Close() }()

	ctx := setupSignalHandler()
	return app.Run(ctx)
}
