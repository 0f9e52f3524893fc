// Package worker provides a NATS worker that synthesizes speech for
// text-processed events and replies with the audio inline.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/tts-gateway/internal/core"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const (
	defaultHandleTimeout = 120 * time.Second
	queueGroup           = "tts-gateway"
)

var (
	// ErrTextKeyEmpty indicates an event without text and without a text key.
	ErrTextKeyEmpty = errors.New("event carries neither text nor text key")
	// ErrTextTooLong indicates text above the configured limit.
	ErrTextTooLong = errors.New("text exceeds maximum length")
	// ErrStoreUnavailable indicates a text key with no store to read it from.
	ErrStoreUnavailable = errors.New("no text store configured")
)

const (
	logFmtParseFailed   = "Failed to parse synthesis event: %v"
	logFmtJobFailed     = "Synthesis failed for workflow %s: %v"
	logFmtJobRefused    = "Synthesis refused at capacity for workflow %s"
	logFmtReplyFailed   = "Failed to publish reply for workflow %s: %v"
	logFmtJobSucceeded  = "Synthesized %d bytes of %s for workflow %s page %d/%d"
	logFmtWorkerStarted = "Worker listening on subject %s"
)

// SynthesizeEvent is the request payload: a text-processed event extended
// with optional synthesis settings. Text, when set, is used instead of
// downloading TextKey.
type SynthesizeEvent struct {
	events.TextProcessedEvent

	Text           string  `json:"text,omitempty"`
	Speed          *float64 `json:"speed,omitempty"`
	ResponseFormat string  `json:"response_format,omitempty"`
}

// SpeechSynthesizedEvent is the reply payload: the audio chunk event with
// the audio inline instead of an object store key. Audio is present on
// success; Error and Retryable describe a failure.
type SpeechSynthesizedEvent struct {
	events.AudioChunkCreatedEvent

	TextKey   string `json:"text_key"`
	Format    string `json:"format,omitempty"`
	Audio     []byte `json:"audio,omitempty"`
	Error     string `json:"error,omitempty"`
	Retryable bool   `json:"retryable"`
}

// Options tunes request handling.
type Options struct {
	// MaxInputChars bounds the text length in runes; zero disables the bound.
	MaxInputChars int
	// Timeout bounds one job; zero selects a default.
	Timeout time.Duration
}

// NatsWorker listens for synthesis jobs on a NATS subject and answers them.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	store          core.TextStore
	engine         core.Engine
	opts           Options
	log            *logger.Logger
}

// NewNatsWorker creates a new instance of a NATS worker. store may be nil
// when every event carries its text inline.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	store core.TextStore,
	engine core.Engine,
	opts Options,
	log *logger.Logger,
) *NatsWorker {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultHandleTimeout
	}

	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		store:          store,
		engine:         engine,
		opts:           opts,
		log:            log,
	}
}

// Run subscribes and blocks until ctx is done, then drains the subscription.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.QueueSubscribe(w.subject, queueGroup, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	w.log.Info(logFmtWorkerStarted, w.subject)

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), w.opts.Timeout)
	defer cancel()

	event, err := parseEvent(msg)
	if err != nil {
		w.log.Error(logFmtParseFailed, err)
		reply := &SpeechSynthesizedEvent{}
		reply.Header = newReplyHeader(events.EventHeader{})
		reply.Error = err.Error()

		w.reply(msg, reply)

		return
	}

	reply := &SpeechSynthesizedEvent{
		AudioChunkCreatedEvent: events.AudioChunkCreatedEvent{
			Header:     newReplyHeader(event.Header),
			AudioKey:   "",
			PageNumber: event.PageNumber,
			TotalPages: event.TotalPages,
		},
		TextKey:   event.TextKey,
		Format:    "",
		Audio:     nil,
		Error:     "",
		Retryable: false,
	}

	result, err := w.process(ctx, event)

	switch {
	case errors.Is(err, core.ErrAdmissionRefused):
		w.log.Warn(logFmtJobRefused, event.Header.WorkflowID)

		reply.Error = err.Error()
		reply.Retryable = true
	case err != nil:
		w.log.Error(logFmtJobFailed, event.Header.WorkflowID, err)

		reply.Error = err.Error()
	default:
		w.log.Info(logFmtJobSucceeded, len(result.Audio), result.Format, event.Header.WorkflowID,
			event.PageNumber, event.TotalPages)

		reply.Format = string(result.Format)
		reply.Audio = result.Audio
	}

	w.reply(msg, reply)
}

// process resolves the text, builds the request and runs the engine.
func (w *NatsWorker) process(ctx context.Context, event *SynthesizeEvent) (core.Result, error) {
	text, err := w.resolveText(ctx, event)
	if err != nil {
		return core.Result{}, err
	}

	format, err := core.ParseFormat(event.ResponseFormat)
	if err != nil {
		return core.Result{}, err
	}

	speed := core.DefaultSpeed
	if event.Speed != nil {
		speed = *event.Speed
	}

	result, err := w.engine.Synthesize(ctx, core.NewRequest(text, event.Voice, format, speed))
	if err != nil {
		return core.Result{}, fmt.Errorf("failed to synthesize speech: %w", err)
	}

	return result, nil
}

func (w *NatsWorker) resolveText(ctx context.Context, event *SynthesizeEvent) (string, error) {
	text := event.Text

	if strings.TrimSpace(text) == "" {
		if event.TextKey == "" {
			return "", fmt.Errorf("%w: %w", core.ErrValidation, ErrTextKeyEmpty)
		}

		if w.store == nil {
			return "", ErrStoreUnavailable
		}

		data, err := w.store.Download(ctx, event.TextKey)
		if err != nil {
			return "", fmt.Errorf("failed to download text data for key '%s': %w", event.TextKey, err)
		}

		text = string(data)
	}

	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: text cannot be empty", core.ErrValidation)
	}

	if w.opts.MaxInputChars > 0 && utf8.RuneCountInString(text) > w.opts.MaxInputChars {
		return "", fmt.Errorf("%w: %w: limit %d", core.ErrValidation, ErrTextTooLong, w.opts.MaxInputChars)
	}

	return text, nil
}

// reply marshals and responds with the SpeechSynthesizedEvent.
func (w *NatsWorker) reply(msg *nats.Msg, replyEvent *SpeechSynthesizedEvent) {
	if msg.Reply == "" {
		return
	}

	replyData, err := json.Marshal(replyEvent)
	if err == nil {
		err = msg.Respond(replyData)
	}

	if err != nil {
		w.log.Error(logFmtReplyFailed, replyEvent.Header.WorkflowID, err)
	}
}

func parseEvent(msg *nats.Msg) (*SynthesizeEvent, error) {
	var event SynthesizeEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	return &event, nil
}

// newReplyHeader keeps the workflow identity and issues a new event id.
func newReplyHeader(request events.EventHeader) events.EventHeader {
	return events.EventHeader{
		Timestamp:  time.Now(),
		WorkflowID: request.WorkflowID,
		EventID:    uuid.NewString(),
		UserID:     request.UserID,
		TenantID:   request.TenantID,
	}
}
