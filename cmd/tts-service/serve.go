package main

import (
	"context"
	"fmt"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-gateway/internal/api"
	"github.com/book-expert/tts-gateway/internal/config"
	"github.com/book-expert/tts-gateway/internal/core"
	"github.com/book-expert/tts-gateway/internal/gate"
	"github.com/book-expert/tts-gateway/internal/objectstore"
	"github.com/book-expert/tts-gateway/internal/worker"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const natsClientName = "tts-gateway"

func newServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP front door and, when enabled, the NATS worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			defer env.close()

			return serve(cmd.Context(), env.cfg, env.log)
		},
	}
}

// serve runs until ctx is done or a component fails.
func serve(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	engine, err := newGuardedEngine(cfg, registry, log)
	if err != nil {
		return err
	}

	requestTimeout := time.Duration(cfg.Server.RequestTimeoutSeconds) * time.Second

	server := api.NewServer(engine, registry, api.Options{
		MaxInputChars:  cfg.Server.MaxInputChars,
		RequestTimeout: requestTimeout,
		MaxBodyBytes:   0,
	}, log)

	var natsWorker *worker.NatsWorker

	if cfg.NATS.Enabled {
		var closeNATS func()

		natsWorker, closeNATS, err = newWorker(cfg, engine, requestTimeout, log)
		if err != nil {
			return err
		}
		defer closeNATS()
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return server.ListenAndServe(groupCtx, cfg.Server.ListenAddr)
	})

	if natsWorker != nil {
		group.Go(func() error {
			return natsWorker.Run(groupCtx)
		})
	}

	log.System("TTS gateway started with %s engine on %s", engine.Name(), cfg.Server.ListenAddr)

	err = group.Wait()
	if err != nil {
		return fmt.Errorf("tts gateway stopped: %w", err)
	}

	log.System("TTS gateway stopped")

	return nil
}

func newWorker(
	cfg *config.Config,
	engine *gate.Guarded,
	timeout time.Duration,
	log *logger.Logger,
) (*worker.NatsWorker, func(), error) {
	natsConnection, err := nats.Connect(cfg.NATS.URL, nats.Name(natsClientName))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}

	var store core.TextStore

	if cfg.NATS.TextObjectStoreBucket != "" {
		jetstreamContext, err := natsConnection.JetStream()
		if err != nil {
			natsConnection.Close()

			return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
		}

		textStore, err := objectstore.New(jetstreamContext, cfg.NATS.TextObjectStoreBucket)
		if err != nil {
			natsConnection.Close()

			return nil, nil, err
		}

		store = textStore
	}

	natsWorker := worker.NewNatsWorker(
		natsConnection,
		cfg.NATS.SynthesizeSubject,
		store,
		engine,
		worker.Options{MaxInputChars: cfg.Server.MaxInputChars, Timeout: timeout},
		log,
	)

	return natsWorker, natsConnection.Close, nil
}
