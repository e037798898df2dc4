package monitor

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// ensureStream creates a file-backed stream unless one with that name exists
func ensureStream(ctx context.Context, js nats.JetStreamContext, logger *zap.Logger, name string, subjects ...string) error {
	_, err := js.StreamInfo(name, nats.Context(ctx))
	if err == nil {
		logger.Info("Using existing stream", zap.String("stream", name))
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("failed to get stream info: %w", err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     name,
		Subjects: subjects,
		Storage:  nats.FileStorage,
	}, nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	logger.Info("Stream created successfully", zap.String("stream", name))
	return nil
}
