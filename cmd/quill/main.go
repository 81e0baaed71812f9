// Package main is the entry point for the quill protocol server.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/charmbracelet/log"

	"github.com/quill-ls/quill/internal/config"
	"github.com/quill-ls/quill/internal/server"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath  string
		logLevel    string
		showVersion bool
	)
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.StringVar(&configPath, "c", "", "Path to configuration file (shorthand)")
	flag.StringVar(&logLevel, "log-level", "", "Override log level (debug, info, warn, error)")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("quill %s (%s)\n", version, commit)
		return 0
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid configuration: %v\n", err)
		return 1
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	// stdout carries the protocol; all logging goes to stderr.
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "quill",
	})
	logger.SetLevel(parseLevel(cfg.LogLevel))

	srv, err := server.New(cfg, logger, os.Stdin, os.Stdout, server.WithVersion(version))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize: %v\n", err)
		return 1
	}

	// Live log-level reload while the session runs.
	if configPath != "" {
		w, err := config.Watch(configPath, logger, func(next *config.Config) {
			logger.SetLevel(parseLevel(next.LogLevel))
		})
		if err != nil {
			logger.Warn("config watching disabled", "err", err)
		} else {
			defer w.Close()
		}
	}

	if err := srv.Run(); err != nil {
		logger.Error("server stopped", "err", err)
		return 1
	}
	return 0
}

func parseLevel(level string) log.Level {
	switch level {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}
