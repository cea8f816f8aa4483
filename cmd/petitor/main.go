package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/petitor/internal/app"
	"github.com/ternarybob/petitor/internal/common"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles  configPaths
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("Petitor version %s\n", common.GetVersion())
		os.Exit(0)
	}

	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, err := os.Stat("petitor.toml"); err == nil {
			configFiles = append(configFiles, "petitor.toml")
		} else if _, err := os.Stat("deployments/local/petitor.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/petitor.toml")
		}
	}

	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	logger := common.InitLogger(config)
	common.PrintBanner(common.GetVersion())

	logger.Info().
		Strs("config_files", configFiles).
		Str("environment", config.Environment).
		Str("badger_path", config.Storage.Badger.Path).
		Int("workers", config.Queue.MaxWorkers).
		Msg("Application configuration loaded")

	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
		os.Exit(1)
	}

	if err := application.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start application")
		application.Close()
		os.Exit(1)
	}

	logger.Info().Msg("Petitor ready - Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Interrupt signal received")
	if err := application.Close(); err != nil {
		logger.Error().Err(err).Msg("Shutdown failed")
		os.Exit(1)
	}
}
