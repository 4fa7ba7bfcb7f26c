package gen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

import (
	"github.com/sawanori/goodfoodphotoAI/internal/ai"
	"github.com/sawanori/goodfoodphotoAI/internal/breaker"
	"github.com/sawanori/goodfoodphotoAI/internal/config"
	"github.com/sawanori/goodfoodphotoAI/internal/types"
)

// ErrGenerationFailed marks outcomes the caller may retry with a fresh
// request: retries exhausted, or the upstream response was unusable.
var ErrGenerationFailed = errors.New("ai generation failed")

// InsufficientError reports a loop that ran out of attempts with fewer
// images than required.
type InsufficientError struct {
	Got      int
	Attempts int
}

func (e *InsufficientError) Error() string {
	return fmt.Sprintf("ai generation failed: only %d images after %d attempts", e.Got, e.Attempts)
}

func (e *InsufficientError) Unwrap() error { return ErrGenerationFailed }

// Orchestrator drives the AI backend until it has exactly targetCount
// images, with linear backoff between attempts. The whole loop is one unit
// as far as the circuit breaker is concerned: internal retries are invisible
// to it, only the final outcome counts.
type Orchestrator struct {
	backend ai.Backend
	brk     *breaker.Breaker

	targetCount int
	maxAttempts int
	baseDelay   time.Duration

	sleep  func(ctx context.Context, d time.Duration) error
	logger *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSleeper injects the backoff sleep, used by tests.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) { o.sleep = sleep }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New wires the backend behind the breaker using the generation config.
func New(backend ai.Backend, brk *breaker.Breaker, cfg config.GenerationCfg, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backend:     backend,
		brk:         brk,
		targetCount: cfg.TargetCount,
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   time.Duration(cfg.BaseDelayMs) * time.Millisecond,
		sleep:       sleepCtx,
		logger:      slog.Default(),
	}
	if o.targetCount <= 0 {
		o.targetCount = 4
	}
	if o.maxAttempts <= 0 {
		o.maxAttempts = 3
	}
	if o.baseDelay <= 0 {
		o.baseDelay = time.Second
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// GenerateSet returns exactly targetCount images or an error. Partial
// results across attempts accumulate; extras beyond the target are dropped.
func (o *Orchestrator) GenerateSet(ctx context.Context, image []byte, mimeType string, style types.Style) ([][]byte, error) {
	var out [][]byte
	err := o.brk.Execute(func() error {
		images, err := o.run(ctx, image, mimeType, style)
		if err != nil {
			return err
		}
		out = images
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (o *Orchestrator) run(ctx context.Context, image []byte, mimeType string, style types.Style) ([][]byte, error) {
	prompt := Prompt(style)

	var acc [][]byte
	attempts := 0

	for len(acc) < o.targetCount && attempts < o.maxAttempts {
		attempts++
		o.logger.Info("generation attempt", "attempt", attempts, "max", o.maxAttempts, "style", style)

		images, err := o.backend.Generate(ctx, image, mimeType, prompt)
		if err != nil {
			o.logger.Warn("generation attempt failed", "attempt", attempts, "err", err)
			if attempts >= o.maxAttempts {
				// The last attempt's failure is the loop outcome the
				// breaker records.
				return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
			}
			if serr := o.sleep(ctx, time.Duration(attempts)*o.baseDelay); serr != nil {
				return nil, serr
			}
			continue
		}

		acc = append(acc, images...)
		if len(acc) >= o.targetCount {
			o.logger.Info("generation complete", "attempts", attempts, "images", len(acc))
			return acc[:o.targetCount], nil
		}

		o.logger.Warn("not enough images yet", "have", len(acc), "want", o.targetCount)
		if attempts < o.maxAttempts {
			if serr := o.sleep(ctx, time.Duration(attempts)*o.baseDelay); serr != nil {
				return nil, serr
			}
		}
	}

	return nil, &InsufficientError{Got: len(acc), Attempts: attempts}
}

// sleepCtx waits for d, aborting early when the request is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
