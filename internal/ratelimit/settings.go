package ratelimit

import (
	"time"

	"github.com/router-for-me/marketplace-core/internal/config"
	internalsettings "github.com/router-for-me/marketplace-core/internal/settings"
)

// defaultRedisTimeout bounds a single limiter round trip.
const defaultRedisTimeout = 500 * time.Millisecond

// SettingsConfig captures the counter store settings.
type SettingsConfig struct {
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
	RedisTimeout  time.Duration
}

func (c SettingsConfig) timeout() time.Duration {
	if c.RedisTimeout <= 0 {
		return defaultRedisTimeout
	}
	return c.RedisTimeout
}

// SettingsFromConfig derives limiter settings from the application config.
func SettingsFromConfig(cfg config.RedisConfig) SettingsConfig {
	return SettingsConfig{
		RedisEnabled:  cfg.Addr != "",
		RedisAddr:     cfg.Addr,
		RedisPassword: cfg.Password,
		RedisDB:       cfg.DB,
		RedisPrefix:   cfg.Prefix,
	}
}

// DefaultRules returns the built-in per-route rules. Auth routes fail closed.
func DefaultRules() map[string]Rule {
	minute := time.Minute
	return map[string]Rule{
		internalsettings.RouteDefault:     {Max: 100, Window: minute},
		internalsettings.RouteOTPRequest:  {Max: 6, Window: minute, FailClosed: true},
		internalsettings.RouteOTPVerify:   {Max: 10, Window: minute, FailClosed: true},
		internalsettings.RouteSignup:      {Max: 10, Window: minute, FailClosed: true},
		internalsettings.RouteLogin:       {Max: 10, Window: minute, FailClosed: true},
		internalsettings.RouteChatMessage: {Max: 30, Window: minute},
		internalsettings.RouteReports:     {Max: 12, Window: minute},
		internalsettings.RouteMediaSign:   {Max: 20, Window: minute},
	}
}

// ResolveRules applies config overrides on top of DefaultRules.
func ResolveRules(overrides map[string]config.RateLimitOverride) map[string]Rule {
	rules := DefaultRules()
	for name, override := range overrides {
		rule, ok := rules[name]
		if !ok {
			rule = rules[internalsettings.RouteDefault]
		}
		if override.Max != nil && *override.Max >= 0 {
			rule.Max = *override.Max
		}
		if override.Window != nil && *override.Window > 0 {
			rule.Window = *override.Window
		}
		if override.FailClosed != nil {
			rule.FailClosed = *override.FailClosed
		}
		rules[name] = rule
	}
	return rules
}
