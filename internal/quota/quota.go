package quota

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

import (
	"github.com/sawanori/goodfoodphotoAI/internal/types"
)

// Record ユーザーごとの月次使用状況
type Record struct {
	Limit       int64
	Used        int64
	PeriodStart time.Time
	Tier        string
	Status      string
	RenewsAt    *time.Time
}

// Store persists quota records. Implementations create a default record on
// first access, apply the calendar-month rollover on every read, and make
// Reserve a single atomic conditional increment — two concurrent requests
// from one user can never both consume the last slot.
type Store interface {
	// Status returns the record after lazy creation and rollover.
	Status(ctx context.Context, userID string, now time.Time) (Record, error)
	// Reserve atomically consumes one slot if remaining > 0. The returned
	// record reflects the state after the operation either way.
	Reserve(ctx context.Context, userID string, now time.Time) (bool, Record, error)
	// Release returns one reserved slot, floored at zero. Used when the
	// pipeline fails after admission.
	Release(ctx context.Context, userID string) error
}

// ExceededError carries the usage snapshot for the 402 response body.
type ExceededError struct {
	Status types.QuotaStatus
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("monthly quota exceeded: %d/%d used", e.Status.Used, e.Status.Limit)
}

// Gate is the admission policy over a Store.
type Gate struct {
	store  Store
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock injects the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// NewGate builds a gate over the given store.
func NewGate(store Store, logger *slog.Logger, opts ...Option) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gate{store: store, now: time.Now, logger: logger}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Check reports whether the user has remaining quota.
func (g *Gate) Check(ctx context.Context, userID string) (bool, error) {
	st, err := g.Status(ctx, userID)
	if err != nil {
		return false, err
	}
	return st.Remaining > 0, nil
}

// Status returns the current usage snapshot.
func (g *Gate) Status(ctx context.Context, userID string) (types.QuotaStatus, error) {
	rec, err := g.store.Status(ctx, userID, g.now())
	if err != nil {
		return types.QuotaStatus{}, fmt.Errorf("quota status: %w", err)
	}
	return statusOf(rec), nil
}

// Record returns the full stored record, including subscription fields.
func (g *Gate) Record(ctx context.Context, userID string) (Record, error) {
	return g.store.Status(ctx, userID, g.now())
}

// Reserve consumes one generation slot or fails with ExceededError.
func (g *Gate) Reserve(ctx context.Context, userID string) (types.QuotaStatus, error) {
	ok, rec, err := g.store.Reserve(ctx, userID, g.now())
	if err != nil {
		return types.QuotaStatus{}, fmt.Errorf("quota reserve: %w", err)
	}
	st := statusOf(rec)
	if !ok {
		return st, &ExceededError{Status: st}
	}
	return st, nil
}

// Release hands a reserved slot back after a failed pipeline.
func (g *Gate) Release(ctx context.Context, userID string) {
	if err := g.store.Release(ctx, userID); err != nil {
		// A stuck reservation self-heals at the month rollover; log only.
		g.logger.Warn("quota release failed", "err", err)
	}
}

func statusOf(rec Record) types.QuotaStatus {
	remaining := rec.Limit - rec.Used
	if remaining < 0 {
		remaining = 0
	}
	return types.QuotaStatus{
		Limit:       rec.Limit,
		Used:        rec.Used,
		Remaining:   remaining,
		PeriodStart: rec.PeriodStart,
	}
}

// SamePeriod reports whether two instants fall in the same calendar month.
func SamePeriod(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}
