// Package gate bounds how many synthesis attempts run at once.
package gate

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/book-expert/tts-gateway/internal/core"
	"golang.org/x/sync/semaphore"
)

// ErrInvalidCapacity is returned for a ceiling below one.
var ErrInvalidCapacity = errors.New("gate capacity must be at least 1")

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Gate is a non-blocking admission counter with a fixed ceiling.
type Gate struct {
	sem      *semaphore.Weighted
	capacity int64
	inFlight atomic.Int64
	metrics  *Metrics
}

// New creates a Gate admitting at most capacity concurrent attempts.
// metrics may be nil.
func New(capacity int, metrics *Metrics) (*Gate, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCapacity, capacity)
	}

	return &Gate{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: int64(capacity),
		inFlight: atomic.Int64{},
		metrics:  metrics,
	}, nil
}

// TryAdmit takes one ticket if one is free. It never blocks.
func (g *Gate) TryAdmit() bool {
	if !g.sem.TryAcquire(1) {
		if g.metrics != nil {
			g.metrics.refused.Inc()
		}

		return false
	}

	g.inFlight.Add(1)

	if g.metrics != nil {
		g.metrics.inFlight.Inc()
	}

	return true
}

// Release returns one ticket. A release without a matching admit is ignored
// so the count never goes negative.
func (g *Gate) Release() {
	for {
		current := g.inFlight.Load()
		if current <= 0 {
			return
		}

		if g.inFlight.CompareAndSwap(current, current-1) {
			break
		}
	}

	g.sem.Release(1)

	if g.metrics != nil {
		g.metrics.inFlight.Dec()
	}
}

// InFlight returns the number of outstanding tickets.
func (g *Gate) InFlight() int64 {
	return g.inFlight.Load()
}

// Capacity returns the configured ceiling.
func (g *Gate) Capacity() int64 {
	return g.capacity
}

// Do runs fn under a ticket, or returns core.ErrAdmissionRefused without
// running it. The ticket is released on every exit path, including panics.
func (g *Gate) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if !g.TryAdmit() {
		return core.ErrAdmissionRefused
	}
	defer g.Release()

	return fn(ctx)
}

// Guarded wraps an engine so every synthesis passes through the gate.
type Guarded struct {
	core.Engine

	gate *Gate
}

// Guard returns engine wrapped by g.
func Guard(engine core.Engine, g *Gate) *Guarded {
	return &Guarded{
		Engine: engine,
		gate:   g,
	}
}

// Gate exposes the underlying gate for health reporting.
func (e *Guarded) Gate() *Gate {
	return e.gate
}

// Synthesize runs the wrapped engine under an admission ticket.
func (e *Guarded) Synthesize(ctx context.Context, req core.Request) (core.Result, error) {
	var result core.Result

	started := time.Now()

	err := e.gate.Do(ctx, func(ctx context.Context) error {
		var synthErr error

		result, synthErr = e.Engine.Synthesize(ctx, req)

		return synthErr
	})
	if errors.Is(err, core.ErrAdmissionRefused) {
		return core.Result{}, err
	}

	e.observe(started, err)

	if err != nil {
		return core.Result{}, err
	}

	return result, nil
}

func (e *Guarded) observe(started time.Time, err error) {
	if e.gate.metrics == nil {
		return
	}

	status := statusSuccess
	if err != nil {
		status = statusError
	}

	e.gate.metrics.duration.WithLabelValues(e.Engine.Name(), status).Observe(time.Since(started).Seconds())
}
