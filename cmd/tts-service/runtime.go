package main

import (
	"fmt"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-gateway/internal/config"
	"github.com/book-expert/tts-gateway/internal/gate"
	"github.com/book-expert/tts-gateway/internal/tts"
	"github.com/prometheus/client_golang/prometheus"
)

// newGuardedEngine selects the engine for this host and wraps it in the
// admission gate. reg may be nil.
func newGuardedEngine(
	cfg *config.Config,
	reg prometheus.Registerer,
	log *logger.Logger,
) (*gate.Guarded, error) {
	engine, err := tts.NewFromConfig(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech engine: %w", err)
	}

	metrics, err := gate.NewMetrics(reg)
	if err != nil {
		return nil, err
	}

	admission, err := gate.New(cfg.Server.MaxConcurrent, metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create admission gate: %w", err)
	}

	return gate.Guard(engine, admission), nil
}
