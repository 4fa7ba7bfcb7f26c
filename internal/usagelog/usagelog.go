package usagelog

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

import (
	"github.com/redis/go-redis/v9"
)

import (
	"github.com/sawanori/goodfoodphotoAI/internal/types"
)

// Recorder persists a record of each completed generation. Recording is
// best-effort: the pipeline logs and swallows any error from here.
type Recorder interface {
	Record(ctx context.Context, userID string, aspect types.AspectRatio, count int, images [][]byte) error
}

// Noop is used when the usage log feature is off.
type Noop struct{}

func (Noop) Record(context.Context, string, types.AspectRatio, int, [][]byte) error { return nil }

// StreamLogger appends generation records to a redis stream.
type StreamLogger struct {
	cli    redis.Cmdable
	stream string
	logger *slog.Logger
}

func NewStreamLogger(cli redis.Cmdable, stream string, logger *slog.Logger) *StreamLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamLogger{cli: cli, stream: stream, logger: logger}
}

// Record appends one stream entry with the composited images inlined as
// base64, mirroring what the client received.
func (l *StreamLogger) Record(ctx context.Context, userID string, aspect types.AspectRatio, count int, images [][]byte) error {
	encoded := make([]string, len(images))
	for i, img := range images {
		encoded[i] = base64.StdEncoding.EncodeToString(img)
	}
	payload, err := json.Marshal(encoded)
	if err != nil {
		return fmt.Errorf("usage log: encode images: %w", err)
	}

	err = l.cli.XAdd(ctx, &redis.XAddArgs{
		Stream: l.stream,
		Values: map[string]interface{}{
			"user":       userID,
			"aspect":     string(aspect),
			"count":      count,
			"images":     string(payload),
			"created_at": time.Now().UTC().Format(time.RFC3339),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("usage log: xadd: %w", err)
	}
	return nil
}
