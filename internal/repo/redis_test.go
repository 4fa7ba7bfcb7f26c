package repo

import (
	"context"
	"testing"
	"time"
)

import (
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	cli := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = cli.Close() })
	return NewStoreWithClient(cli, "foodphoto", 5, nil)
}

func TestKeyTemplates(t *testing.T) {
	s := &RedisStore{Prefix: "foodphoto"}
	if got := s.KeyQuota("u1"); got != "foodphoto:quota:{u1}" {
		t.Fatalf("KeyQuota = %s", got)
	}
	if got := s.KeyLogStream(); got != "foodphoto:log:generations" {
		t.Fatalf("KeyLogStream = %s", got)
	}
}

func TestStatusCreatesDefaultRecord(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)

	rec, err := s.Status(context.Background(), "u1", now)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if rec.Limit != 5 || rec.Used != 0 {
		t.Fatalf("record = %+v, want limit=5 used=0", rec)
	}
	if rec.Tier != "free" || rec.Status != "active" {
		t.Fatalf("record = %+v, want free/active", rec)
	}
	if !rec.PeriodStart.Equal(now.Truncate(time.Second)) {
		t.Fatalf("periodStart = %v, want %v", rec.PeriodStart, now)
	}
	if rec.RenewsAt != nil {
		t.Fatalf("renewsAt = %v, want nil", rec.RenewsAt)
	}
}

func TestReserveConditionalIncrement(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)

	for i := int64(1); i <= 5; i++ {
		ok, rec, err := s.Reserve(ctx, "u1", now)
		if err != nil {
			t.Fatalf("Reserve %d: %v", i, err)
		}
		if !ok || rec.Used != i {
			t.Fatalf("Reserve %d: ok=%v used=%d", i, ok, rec.Used)
		}
	}

	ok, rec, err := s.Reserve(ctx, "u1", now)
	if err != nil {
		t.Fatalf("Reserve over limit: %v", err)
	}
	if ok {
		t.Fatal("Reserve must deny once the limit is reached")
	}
	if rec.Used != 5 {
		t.Fatalf("denied reserve must not increment, used = %d", rec.Used)
	}
}

func TestReserveRollsOverAcrossMonths(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	june := time.Date(2024, 6, 28, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		if ok, _, err := s.Reserve(ctx, "u1", june); err != nil || !ok {
			t.Fatalf("june reserve %d: ok=%v err=%v", i, ok, err)
		}
	}
	if ok, _, _ := s.Reserve(ctx, "u1", june); ok {
		t.Fatal("june quota should be exhausted")
	}

	july := time.Date(2024, 7, 1, 0, 5, 0, 0, time.UTC)
	ok, rec, err := s.Reserve(ctx, "u1", july)
	if err != nil {
		t.Fatalf("july reserve: %v", err)
	}
	if !ok || rec.Used != 1 {
		t.Fatalf("july reserve: ok=%v used=%d, want fresh period", ok, rec.Used)
	}
	if rec.PeriodStart.Month() != time.July {
		t.Fatalf("periodStart = %v, want July", rec.PeriodStart)
	}
}

func TestStatusRolloverOnRead(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	june := time.Date(2024, 6, 28, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		if _, _, err := s.Reserve(ctx, "u1", june); err != nil {
			t.Fatalf("reserve: %v", err)
		}
	}

	july := time.Date(2024, 7, 2, 9, 0, 0, 0, time.UTC)
	rec, err := s.Status(ctx, "u1", july)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if rec.Used != 0 {
		t.Fatalf("used = %d after month boundary, want 0", rec.Used)
	}
}

func TestReleaseFloorsAtZero(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)

	if _, _, err := s.Reserve(ctx, "u1", now); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := s.Release(ctx, "u1"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	rec, _ := s.Status(ctx, "u1", now)
	if rec.Used != 0 {
		t.Fatalf("used = %d after release, want 0", rec.Used)
	}

	if err := s.Release(ctx, "u1"); err != nil {
		t.Fatalf("Release at zero: %v", err)
	}
	rec, _ = s.Status(ctx, "u1", now)
	if rec.Used != 0 {
		t.Fatalf("used = %d after double release, want 0", rec.Used)
	}
}
