// main package for the tts-service
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-gateway/internal/config"
	"github.com/spf13/cobra"
)

const (
	bootstrapLogFile = "tts-service-bootstrap.log"
	serviceLogFile   = "tts-service.log"

	flagConfig     = "config"
	flagConfigDesc = "Path to a TOML config file (defaults to project discovery)"
)

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

// environment is what every subcommand needs: the configuration and the
// service logger. close releases the logger.
type environment struct {
	cfg *config.Config
	log *logger.Logger
}

func (e *environment) close() {
	closeErr := e.log.Close()
	if closeErr != nil {
		fmt.Fprintf(os.Stderr, "error closing logger: %v\n", closeErr)
	}
}

// bootstrap loads the configuration with a temporary logger, then opens the
// service logger in the configured directory.
func bootstrap(configPath string) (*environment, error) {
	bootstrapLog, err := setupLogger(os.TempDir(), bootstrapLogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return nil, err
	}

	defer func() { _ = bootstrapLog.Close() }()

	var cfg *config.Config
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load(bootstrapLog)
	}

	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	serviceLog, err := setupLogger(cfg.Paths.BaseLogsDir, serviceLogFile)
	if err != nil {
		bootstrapLog.Error("Failed to create service logger: %v", err)

		return nil, err
	}

	return &environment{cfg: cfg, log: serviceLog}, nil
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "tts-service",
		Short:         "Speech synthesis gateway over the host speech tools or a remote speech API",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVar(&configPath, flagConfig, "", flagConfigDesc)

	root.AddCommand(
		newServeCommand(&configPath),
		newSayCommand(&configPath),
		newVoicesCommand(&configPath),
		newModelsCommand(&configPath),
	)

	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newRootCommand().ExecuteContext(ctx)

	stop()

	if err != nil {
		os.Exit(1)
	}
}
