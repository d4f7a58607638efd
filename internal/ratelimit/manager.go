package ratelimit

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	breakerCooldown = 30 * time.Second
	redisPingWait   = 2 * time.Second
	pruneEvery      = time.Minute
)

// SettingsProvider supplies the latest settings snapshot.
type SettingsProvider func() SettingsConfig

// RedisClientFactory constructs a Redis client for the given options.
type RedisClientFactory func(options *redis.Options) *redis.Client

// redisTarget identifies one Redis connection. A changed target reconnects.
type redisTarget struct {
	addr     string
	password string
	db       int
	prefix   string
}

func targetOf(cfg SettingsConfig) (redisTarget, error) {
	target := redisTarget{
		addr:     strings.TrimSpace(cfg.RedisAddr),
		password: strings.TrimSpace(cfg.RedisPassword),
		db:       max(cfg.RedisDB, 0),
		prefix:   strings.TrimSpace(cfg.RedisPrefix),
	}
	if target.addr == "" {
		return redisTarget{}, errors.New("rate limit redis: missing address")
	}
	return target, nil
}

// breaker stops Redis traffic for a cooldown after a failure.
type breaker struct {
	mu        sync.Mutex
	openUntil time.Time
}

func (b *breaker) isOpen(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return now.Before(b.openUntil)
}

func (b *breaker) trip(err error, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if now.Before(b.openUntil) {
		return
	}
	b.openUntil = now.Add(breakerCooldown)
	log.WithError(err).WithField("cooldown", breakerCooldown).Warn("rate limit: redis unavailable, breaker open")
}

// Manager picks the counter backend for each check.
//
// With Redis enabled, an unreachable store trips a breaker. While the breaker
// is open, fail-closed rules are rejected with ErrUnavailable and fail-open
// rules fall back to the in-process limiter.
type Manager struct {
	provider  SettingsProvider
	nowFn     func() time.Time
	newClient RedisClientFactory
	local     *MemoryLimiter
	breaker   breaker

	pruneMu   sync.Mutex
	nextPrune time.Time

	mu     sync.Mutex
	target redisTarget
	shared *RedisLimiter
}

// NewManager constructs a Manager. Nil arguments take their defaults.
func NewManager(provider SettingsProvider, nowFn func() time.Time, newClient RedisClientFactory) *Manager {
	if provider == nil {
		provider = func() SettingsConfig { return SettingsConfig{} }
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if newClient == nil {
		newClient = redis.NewClient
	}
	return &Manager{
		provider:  provider,
		nowFn:     nowFn,
		newClient: newClient,
		local:     NewMemoryLimiter(),
	}
}

// Allow counts one hit on key under rule.
func (m *Manager) Allow(ctx context.Context, key string, rule Rule) (Result, error) {
	if m == nil || key == "" || rule.Max <= 0 || rule.Window <= 0 {
		return Result{Allowed: true}, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	now := m.nowFn()
	m.pruneLocal(now)
	cfg := m.provider()
	if !cfg.RedisEnabled {
		return m.local.Allow(ctx, key, rule.Max, rule.Window, now)
	}

	result, errShared := m.allowShared(ctx, cfg, key, rule, now)
	if errShared == nil {
		return result, nil
	}
	if rule.FailClosed {
		return Result{}, ErrUnavailable
	}
	return m.local.Allow(ctx, key, rule.Max, rule.Window, now)
}

// Close releases the Redis client, if any.
func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropSharedLocked()
}

// pruneLocal evicts idle in-process keys at most once per pruneEvery.
func (m *Manager) pruneLocal(now time.Time) {
	m.pruneMu.Lock()
	if now.Before(m.nextPrune) {
		m.pruneMu.Unlock()
		return
	}
	m.nextPrune = now.Add(pruneEvery)
	m.pruneMu.Unlock()

	if removed := m.local.Prune(now); removed > 0 {
		log.WithField("keys", removed).Debug("rate limit: pruned idle keys")
	}
}

func (m *Manager) allowShared(ctx context.Context, cfg SettingsConfig, key string, rule Rule, now time.Time) (Result, error) {
	if m.breaker.isOpen(now) {
		return Result{}, ErrUnavailable
	}
	limiter, errConnect := m.connect(ctx, cfg)
	if errConnect != nil {
		m.breaker.trip(errConnect, now)
		return Result{}, errConnect
	}
	ctxCall, cancel := context.WithTimeout(ctx, cfg.timeout())
	defer cancel()
	result, errAllow := limiter.Allow(ctxCall, key, rule.Max, rule.Window, now)
	if errAllow != nil {
		m.breaker.trip(errAllow, now)
		return Result{}, errAllow
	}
	return result, nil
}

// connect returns the shared limiter for cfg, dialing when the target changed.
func (m *Manager) connect(ctx context.Context, cfg SettingsConfig) (*RedisLimiter, error) {
	target, errTarget := targetOf(cfg)
	if errTarget != nil {
		return nil, errTarget
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shared != nil && m.target == target {
		return m.shared, nil
	}
	_ = m.dropSharedLocked()

	client := m.newClient(&redis.Options{Addr: target.addr, Password: target.password, DB: target.db})
	ctxPing, cancel := context.WithTimeout(ctx, redisPingWait)
	defer cancel()
	if errPing := client.Ping(ctxPing).Err(); errPing != nil {
		_ = client.Close()
		return nil, errPing
	}
	m.shared = NewRedisLimiter(client, target.prefix+":rl")
	m.target = target
	return m.shared, nil
}

func (m *Manager) dropSharedLocked() error {
	if m.shared == nil {
		return nil
	}
	errClose := m.shared.client.Close()
	m.shared = nil
	m.target = redisTarget{}
	return errClose
}
