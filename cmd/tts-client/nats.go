package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/tts-gateway/internal/objectstore"
	"github.com/book-expert/tts-gateway/internal/worker"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const textKeySuffix = ".txt"

var errWorkerFailed = errors.New("worker reported failure")

// speakNATS sends one synthesis event to the worker. With a bucket the text
// is staged in the object store and referenced by key; otherwise it travels
// inline.
func speakNATS(ctx context.Context, flags clientFlags) (speech, error) {
	natsConnection, err := nats.Connect(flags.natsURL, nats.Name("tts-client"))
	if err != nil {
		return speech{}, fmt.Errorf("failed to connect to NATS at %s: %w", flags.natsURL, err)
	}
	defer natsConnection.Close()

	event := worker.SynthesizeEvent{
		TextProcessedEvent: events.TextProcessedEvent{},
		Text:               "",
		Speed:              &flags.speed,
		ResponseFormat:     flags.format,
	}
	event.Header = events.EventHeader{
		Timestamp:  time.Now(),
		WorkflowID: uuid.NewString(),
		EventID:    uuid.NewString(),
		UserID:     "",
		TenantID:   "",
	}
	event.Voice = flags.voice

	if flags.bucket != "" {
		event.TextKey, err = stageText(ctx, natsConnection, flags.bucket, flags.text)
		if err != nil {
			return speech{}, err
		}
	} else {
		event.Text = flags.text
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return speech{}, fmt.Errorf("failed to marshal event: %w", err)
	}

	msg, err := natsConnection.RequestWithContext(ctx, flags.subject, payload)
	if err != nil {
		return speech{}, fmt.Errorf("no reply on subject %s: %w", flags.subject, err)
	}

	var reply worker.SpeechSynthesizedEvent

	err = json.Unmarshal(msg.Data, &reply)
	if err != nil {
		return speech{}, fmt.Errorf("failed to unmarshal reply: %w", err)
	}

	if reply.Error != "" {
		return speech{}, fmt.Errorf("%w (retryable=%t): %s", errWorkerFailed, reply.Retryable, reply.Error)
	}

	return speech{audio: reply.Audio, format: reply.Format}, nil
}

func stageText(ctx context.Context, natsConnection *nats.Conn, bucket, text string) (string, error) {
	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		return "", fmt.Errorf("failed to create JetStream context: %w", err)
	}

	store, err := objectstore.New(jetstreamContext, bucket)
	if err != nil {
		return "", err
	}

	key := uuid.NewString() + textKeySuffix

	err = store.Upload(ctx, key, []byte(text))
	if err != nil {
		return "", err
	}

	return key, nil
}
