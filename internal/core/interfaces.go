// Package core defines the synthesis contract shared by every speech engine
// and the collaborators that drive it.
package core

import "context"

// TextStore defines read access to a key-value blob store holding input text.
type TextStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
}

// Engine is the capability set every speech backend implements.
// Implementations are selected once, at construction time.
type Engine interface {
	// Name identifies the backend in logs, metrics and health output.
	Name() string

	// Synthesize turns a normalized request into audio. Failures are
	// *SynthesisError, *RemoteError or wrap one of the core sentinels.
	Synthesize(ctx context.Context, req Request) (Result, error)

	// ListVoices never fails and never returns an empty slice.
	ListVoices(ctx context.Context) []Voice

	// ListModels returns the models this backend claims to serve.
	ListModels(ctx context.Context) []Model
}
