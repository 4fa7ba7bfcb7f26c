package core

import (
	"context"
	"fmt"
	"log/slog"
)

import (
	"github.com/sawanori/goodfoodphotoAI/internal/composite"
	"github.com/sawanori/goodfoodphotoAI/internal/gen"
	"github.com/sawanori/goodfoodphotoAI/internal/quota"
	"github.com/sawanori/goodfoodphotoAI/internal/types"
	"github.com/sawanori/goodfoodphotoAI/internal/usagelog"
	"github.com/sawanori/goodfoodphotoAI/internal/util"
)

// Result is one completed generation: exactly targetCount composited JPEGs
// plus the usage snapshot after the reservation.
type Result struct {
	Aspect types.AspectRatio
	Images [][]byte
	Usage  types.QuotaStatus
}

// Service drives one request through the pipeline:
// validate → quota reserve → generate → composite → usage log.
type Service struct {
	gate   *quota.Gate
	orch   *gen.Orchestrator
	usage  usagelog.Recorder
	logger *slog.Logger
}

func NewService(gate *quota.Gate, orch *gen.Orchestrator, usage usagelog.Recorder, logger *slog.Logger) *Service {
	if usage == nil {
		usage = usagelog.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{gate: gate, orch: orch, usage: usage, logger: logger}
}

// Generate runs the full pipeline for one photo. Quota is reserved
// atomically up front; any failure after admission hands the slot back, so a
// failed generation never burns quota.
func (s *Service) Generate(ctx context.Context, userID string, image []byte, mimeType string, aspect types.AspectRatio, style types.Style) (Result, error) {
	if err := composite.Validate(image); err != nil {
		return Result{}, err
	}

	usage, err := s.gate.Reserve(ctx, userID)
	if err != nil {
		return Result{}, err
	}

	s.logger.Info("generating images",
		"user", util.HashID(userID), "aspect", aspect, "style", style)

	generated, err := s.orch.GenerateSet(ctx, image, mimeType, style)
	if err != nil {
		s.gate.Release(ctx, userID)
		return Result{}, err
	}

	formatted, err := composite.FormatAll(ctx, generated, aspect)
	if err != nil {
		s.gate.Release(ctx, userID)
		return Result{}, fmt.Errorf("composite: %w", err)
	}

	// Best-effort: a logging failure must not fail the request.
	if err := s.usage.Record(ctx, userID, aspect, len(formatted), formatted); err != nil {
		s.logger.Warn("usage log failed", "user", util.HashID(userID), "err", err)
	}

	return Result{Aspect: aspect, Images: formatted, Usage: usage}, nil
}
