package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

import (
	"github.com/redis/go-redis/v9"
)

import (
	"github.com/sawanori/goodfoodphotoAI/internal/config"
	"github.com/sawanori/goodfoodphotoAI/internal/quota"
	"github.com/sawanori/goodfoodphotoAI/internal/util"
)

// Key templates for better readability and maintainability
const (
	keyQuotaTmpl = "%s:quota:{%s}"
	keyLogStream = "%s:log:generations"
	periodLayout = "200601" // calendar period, YYYYMM
)

// RedisStore is the persistent quota store plus the generation log stream.
type RedisStore struct {
	Prefix string
	Cli    *redis.Client

	defaultLimit   int64
	defaultTimeout time.Duration
	logger         *slog.Logger
}

var _ quota.Store = (*RedisStore)(nil)

// NewStore connects and pings the server.
func NewStore(cfg *config.Config, logger *slog.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Redis.Addr == "" {
		return nil, errors.New("no redis address configured")
	}

	cli := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		MaxRetries:   maxInt(cfg.Redis.MaxRetries, 2),
		DialTimeout:  durationOrDefault(cfg.Redis.DialTimeoutMs, 800),
		ReadTimeout:  durationOrDefault(cfg.Redis.ReadTimeoutMs, 800),
		WriteTimeout: durationOrDefault(cfg.Redis.WriteTimeoutMs, 800),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := cli.Ping(ctx).Err(); err != nil {
		logger.Error("redis ping failed", "err", err)
		return nil, fmt.Errorf("redis connect failed: %w", err)
	}

	return &RedisStore{
		Prefix:         cfg.Redis.Prefix,
		Cli:            cli,
		defaultLimit:   cfg.Quota.DefaultMonthlyLimit,
		defaultTimeout: 500 * time.Millisecond,
		logger:         logger,
	}, nil
}

// NewStoreWithClient wraps an existing client; tests use this with miniredis.
func NewStoreWithClient(cli *redis.Client, prefix string, defaultLimit int64, logger *slog.Logger) *RedisStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{
		Prefix:         prefix,
		Cli:            cli,
		defaultLimit:   defaultLimit,
		defaultTimeout: 500 * time.Millisecond,
		logger:         logger,
	}
}

func (s *RedisStore) withTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, s.defaultTimeout)
}

// KeyQuota returns the record hash key for a user.
func (s *RedisStore) KeyQuota(userID string) string {
	return fmt.Sprintf(keyQuotaTmpl, s.Prefix, userID)
}

// KeyLogStream returns the generation log stream key.
func (s *RedisStore) KeyLogStream() string {
	return fmt.Sprintf(keyLogStream, s.Prefix)
}

// Status implements quota.Store.
func (s *RedisStore) Status(parent context.Context, userID string, now time.Time) (quota.Record, error) {
	ctx, cancel := s.withTimeout(parent)
	defer cancel()

	res, err := scriptStatus.Run(ctx, s.Cli,
		[]string{s.KeyQuota(userID)},
		now.Unix(), now.Format(periodLayout), s.defaultLimit,
	).Slice()
	if err != nil {
		return quota.Record{}, fmt.Errorf("quota status script for %s: %w", util.HashID(userID), err)
	}
	if len(res) < 6 {
		return quota.Record{}, fmt.Errorf("quota status script: short reply (%d fields)", len(res))
	}

	rec := quota.Record{
		Limit:       util.ToInt64(res[0]),
		Used:        util.ToInt64(res[1]),
		PeriodStart: time.Unix(util.ToInt64(res[2]), 0).UTC(),
		Tier:        stringOr(res[3], "free"),
		Status:      stringOr(res[4], "active"),
	}
	if ts := util.ToInt64(res[5]); ts > 0 {
		renews := time.Unix(ts, 0).UTC()
		rec.RenewsAt = &renews
	}
	return rec, nil
}

// Reserve implements quota.Store. Rollover and conditional increment run in
// one Lua script, so concurrent callers serialize on the server.
func (s *RedisStore) Reserve(parent context.Context, userID string, now time.Time) (bool, quota.Record, error) {
	ctx, cancel := s.withTimeout(parent)
	defer cancel()

	res, err := scriptReserve.Run(ctx, s.Cli,
		[]string{s.KeyQuota(userID)},
		now.Unix(), now.Format(periodLayout), s.defaultLimit,
	).Slice()
	if err != nil {
		return false, quota.Record{}, fmt.Errorf("quota reserve script for %s: %w", util.HashID(userID), err)
	}
	if len(res) < 4 {
		return false, quota.Record{}, fmt.Errorf("quota reserve script: short reply (%d fields)", len(res))
	}

	rec := quota.Record{
		Limit:       util.ToInt64(res[1]),
		Used:        util.ToInt64(res[2]),
		PeriodStart: time.Unix(util.ToInt64(res[3]), 0).UTC(),
	}
	return util.ToInt64(res[0]) == 1, rec, nil
}

// Release implements quota.Store.
func (s *RedisStore) Release(parent context.Context, userID string) error {
	ctx, cancel := s.withTimeout(parent)
	defer cancel()

	if err := scriptRelease.Run(ctx, s.Cli, []string{s.KeyQuota(userID)}).Err(); err != nil {
		return fmt.Errorf("quota release script for %s: %w", util.HashID(userID), err)
	}
	return nil
}

// Close releases the connection pool.
func (s *RedisStore) Close() error {
	return s.Cli.Close()
}

func stringOr(v interface{}, def string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return def
}

func maxInt(val, def int) int {
	if val > def {
		return val
	}
	return def
}

func durationOrDefault(ms int, defMs int) time.Duration {
	if ms <= 0 {
		ms = defMs
	}
	return time.Duration(ms) * time.Millisecond
}
