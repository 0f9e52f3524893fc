// main package for the tts-client, a command-line client of the gateway's
// HTTP front door and NATS worker.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/spf13/cobra"
)

// Flag names and descriptions.
const (
	flagURL      = "url"
	flagNATSURL  = "nats-url"
	flagSubject  = "subject"
	flagBucket   = "bucket"
	flagText     = "text"
	flagVoice    = "voice"
	flagFormat   = "format"
	flagSpeed    = "speed"
	flagModel    = "model"
	flagOutput   = "output"
	flagHealth   = "health"
	flagTimeout  = "timeout"
	flagLogDir   = "log-dir"
	flagTextDesc = "Text to convert to speech"
)

// Defaults.
const (
	defaultURL        = "http://127.0.0.1:8880"
	defaultSubject    = "tts.synthesize"
	defaultOutputFile = "output.wav"
	defaultTimeout    = 2 * time.Minute
	logFileName       = "tts-client.log"
	outputPermissions = 0o600
)

// Log and output messages.
const (
	logRequesting     = "Requesting speech for %d characters via %s"
	logGenerated      = "Generated %s (%d bytes, %s)"
	logHealthy        = "Gateway is healthy: %s"
	msgGenerated      = "Generated: %s (%s)\n"
	errFmtRequestFail = "speech request failed: %w"
)

var errTextRequired = errors.New("--text is required")

// clientFlags holds the parsed command-line flag values.
type clientFlags struct {
	url     string
	natsURL string
	subject string
	bucket  string
	text    string
	voice   string
	format  string
	speed   float64
	model   string
	output  string
	health  bool
	timeout time.Duration
	logDir  string
}

// speech is one synthesized result.
type speech struct {
	audio  []byte
	format string
}

func newRootCommand() *cobra.Command {
	var flags clientFlags

	root := &cobra.Command{
		Use:           "tts-client",
		Short:         "Request speech from a tts-gateway over HTTP or NATS",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, flags)
		},
	}

	root.Flags().StringVar(&flags.url, flagURL, defaultURL, "Base URL of the gateway HTTP front door")
	root.Flags().StringVar(&flags.natsURL, flagNATSURL, "", "Use the NATS worker at this URL instead of HTTP")
	root.Flags().StringVar(&flags.subject, flagSubject, defaultSubject, "NATS subject of the synthesis worker")
	root.Flags().StringVar(&flags.bucket, flagBucket, "", "Stage the text in this object store bucket (NATS mode)")
	root.Flags().StringVar(&flags.text, flagText, "", flagTextDesc)
	root.Flags().StringVar(&flags.voice, flagVoice, "", "Voice id")
	root.Flags().StringVar(&flags.format, flagFormat, "wav", "Requested audio format")
	root.Flags().Float64Var(&flags.speed, flagSpeed, 1.0, "Speech rate multiplier")
	root.Flags().StringVar(&flags.model, flagModel, "", "Model id (HTTP mode)")
	root.Flags().StringVarP(&flags.output, flagOutput, "o", defaultOutputFile, "Output file path")
	root.Flags().BoolVar(&flags.health, flagHealth, false, "Check gateway health and exit")
	root.Flags().DurationVar(&flags.timeout, flagTimeout, defaultTimeout, "Request timeout")
	root.Flags().StringVar(&flags.logDir, flagLogDir, os.TempDir(), "Directory for the client log")

	return root
}

// run is the main application entry point, returning an error on failure.
func run(cmd *cobra.Command, flags clientFlags) error {
	log, err := logger.New(flags.logDir, logFileName)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	defer func() { _ = log.Close() }()

	ctx, cancel := context.WithTimeout(cmd.Context(), flags.timeout)
	defer cancel()

	if flags.health {
		status, healthErr := checkHealth(ctx, flags.url)
		if healthErr != nil {
			log.Error("Health check failed: %v", healthErr)

			return healthErr
		}

		log.Info(logHealthy, status)
		fmt.Fprintln(cmd.OutOrStdout(), status)

		return nil
	}

	if strings.TrimSpace(flags.text) == "" {
		return errTextRequired
	}

	var result speech

	if flags.natsURL != "" {
		log.Info(logRequesting, len(flags.text), flags.natsURL)
		result, err = speakNATS(ctx, flags)
	} else {
		log.Info(logRequesting, len(flags.text), flags.url)
		result, err = speakHTTP(ctx, flags)
	}

	if err != nil {
		log.Error("Speech request failed: %v", err)

		return fmt.Errorf(errFmtRequestFail, err)
	}

	err = os.WriteFile(flags.output, result.audio, outputPermissions)
	if err != nil {
		return fmt.Errorf("failed to write audio file: %w", err)
	}

	log.Info(logGenerated, flags.output, len(result.audio), result.format)
	fmt.Fprintf(cmd.OutOrStdout(), msgGenerated, flags.output, result.format)

	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newRootCommand().ExecuteContext(ctx)

	stop()

	if err != nil {
		os.Exit(1)
	}
}
