package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath        = "CONFIG_PATH"
	EnvAppEnv            = "APP_ENV"
	EnvPort              = "PORT"
	EnvDBConnection      = "DB_CONNECTION"
	EnvDatabaseURL       = "DATABASE_URL"
	EnvLogLevel          = "LOG_LEVEL"
	EnvJWTSecret         = "JWT_SECRET"
	EnvJWTExpiry         = "JWT_EXPIRY"
	EnvOTPSecret         = "OTP_SECRET"
	EnvOTPExpiryMinutes  = "OTP_EXPIRY_MINUTES"
	EnvOTPMaxAttempts    = "OTP_MAX_ATTEMPTS"
	EnvOTPWindowMinutes  = "OTP_REQUEST_WINDOW_MINUTES"
	EnvOTPRequestMax     = "OTP_REQUEST_MAX"
	EnvFingerprintSalt   = "FINGERPRINT_SALT"
	EnvRedisAddr         = "REDIS_ADDR"
	EnvRedisPassword     = "REDIS_PASSWORD"
	EnvRedisDB           = "REDIS_DB"
	EnvAdminEmails       = "ADMIN_EMAILS"
	EnvAutoHideThreshold = "AUTO_HIDE_REPORTS_THRESHOLD"
	EnvSMSProvider       = "SMS_PROVIDER"
	EnvSMSBaseURL        = "SMS_BASE_URL"
	EnvSMSAPIKey         = "SMS_API_KEY"
	EnvSMSSender         = "SMS_SENDER"
	EnvMediaBucket       = "MEDIA_BUCKET"
	EnvMediaEndpoint     = "MEDIA_ENDPOINT"
	EnvMediaRegion       = "MEDIA_REGION"
	EnvMediaAccessKey    = "MEDIA_ACCESS_KEY_ID"
	EnvMediaSecretKey    = "MEDIA_SECRET_ACCESS_KEY"
	EnvMediaSigningKey   = "MEDIA_SIGNING_SECRET"
	EnvMediaPublicBase   = "MEDIA_PUBLIC_BASE_URL"
)

// EnvProduction is the APP_ENV value that hides OTP debug codes and enforces secrets.
const EnvProduction = "production"

// ErrMissingDatabaseDSN indicates no database DSN is present in the config file or environment.
var ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` in config file or DB_CONNECTION)")

// Config holds resolved application configuration values.
type Config struct {
	Env             string   `yaml:"env"`
	Port            int      `yaml:"port"`
	DatabaseDSN     string   `yaml:"database-dsn"`
	LogLevel        string   `yaml:"log-level"`
	FingerprintSalt string   `yaml:"fingerprint-salt"`
	AdminEmails     []string `yaml:"admin-emails"`

	JWT        JWTConfig                    `yaml:"jwt"`
	OTP        OTPConfig                    `yaml:"otp"`
	Redis      RedisConfig                  `yaml:"redis"`
	Moderation ModerationConfig             `yaml:"moderation"`
	Listings   ListingConfig                `yaml:"listings"`
	RateLimits map[string]RateLimitOverride `yaml:"rate-limits"`
	SMS        SMSConfig                    `yaml:"sms"`
	Media      MediaConfig                  `yaml:"media"`
	Jobs       JobsConfig                   `yaml:"jobs"`
}

// JWTConfig holds JWT secret and session expiry settings.
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
}

// OTPConfig controls OTP issuance and verification.
type OTPConfig struct {
	Secret           string        `yaml:"secret"`
	Expiry           time.Duration `yaml:"expiry"`
	MaxAttempts      int           `yaml:"max-attempts"`
	RequestWindow    time.Duration `yaml:"request-window"`
	MaxRequests      int           `yaml:"max-requests"`
	VerifiedTokenTTL time.Duration `yaml:"verified-token-ttl"`
}

// RedisConfig points at the shared counter store. An empty address disables Redis.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// ModerationConfig controls auto-hide.
type ModerationConfig struct {
	AutoHideThreshold int `yaml:"auto-hide-threshold"`
}

// ListingConfig controls listing activation.
type ListingConfig struct {
	ActiveDuration time.Duration `yaml:"active-duration"`
}

// RateLimitOverride replaces parts of a built-in per-route rule.
type RateLimitOverride struct {
	Max        *int           `yaml:"max"`
	Window     *time.Duration `yaml:"window"`
	FailClosed *bool          `yaml:"fail-closed"`
}

// SMSConfig selects the OTP delivery provider.
type SMSConfig struct {
	Provider string        `yaml:"provider"`
	BaseURL  string        `yaml:"base-url"`
	APIKey   string        `yaml:"api-key"`
	Sender   string        `yaml:"sender"`
	Timeout  time.Duration `yaml:"timeout"`
}

// MediaConfig controls upload url signing.
type MediaConfig struct {
	Bucket          string        `yaml:"bucket"`
	Endpoint        string        `yaml:"endpoint"`
	Region          string        `yaml:"region"`
	AccessKeyID     string        `yaml:"access-key-id"`
	SecretAccessKey string        `yaml:"secret-access-key"`
	SigningSecret   string        `yaml:"signing-secret"`
	PublicBaseURL   string        `yaml:"public-base-url"`
	URLExpiry       time.Duration `yaml:"url-expiry"`
}

// JobsConfig controls the periodic sweeps.
type JobsConfig struct {
	ExpirySweepInterval time.Duration `yaml:"expiry-sweep-interval"`
	TrustSweepInterval  time.Duration `yaml:"trust-sweep-interval"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Env:      "development",
		Port:     3001,
		LogLevel: "info",
		JWT:      JWTConfig{Expiry: 7 * 24 * time.Hour},
		OTP: OTPConfig{
			Expiry:           3 * time.Minute,
			MaxAttempts:      5,
			RequestWindow:    3 * time.Minute,
			MaxRequests:      3,
			VerifiedTokenTTL: 10 * time.Minute,
		},
		Redis:      RedisConfig{Prefix: "mkt"},
		Moderation: ModerationConfig{AutoHideThreshold: 5},
		Listings:   ListingConfig{ActiveDuration: 30 * 24 * time.Hour},
		SMS:        SMSConfig{Provider: "noop", Timeout: 10 * time.Second},
		Media:      MediaConfig{Region: "auto", URLExpiry: 10 * time.Minute},
		Jobs: JobsConfig{
			ExpirySweepInterval: 24 * time.Hour,
			TrustSweepInterval:  24 * time.Hour,
		},
	}
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = strings.TrimSpace(os.Getenv(EnvConfigPath))
	}
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// Load reads the YAML config file when present and applies environment overrides.
func Load(configPath string) (Config, error) {
	cfg := Defaults()

	data, errRead := os.ReadFile(configPath)
	switch {
	case errRead == nil:
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
			return Config{}, fmt.Errorf("parse config file: %w", errUnmarshal)
		}
	case errors.Is(errRead, os.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("read config file: %w", errRead)
	}

	applyEnv(&cfg)
	cfg.normalize()
	return cfg, nil
}

// IsProduction reports whether the service runs in production mode.
func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), EnvProduction)
}

// Validate checks that required values are present.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		return ErrMissingDatabaseDSN
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if !c.IsProduction() {
		return nil
	}
	var missing []string
	if len(c.JWT.Secret) < 16 {
		missing = append(missing, "jwt.secret (min 16 chars)")
	}
	if len(c.OTP.Secret) < 16 {
		missing = append(missing, "otp.secret (min 16 chars)")
	}
	if strings.TrimSpace(c.FingerprintSalt) == "" {
		missing = append(missing, "fingerprint-salt")
	}
	if len(missing) > 0 {
		return fmt.Errorf("invalid production config: %s", strings.Join(missing, ", "))
	}
	return nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Env, EnvAppEnv)
	setInt(&cfg.Port, EnvPort)
	setString(&cfg.DatabaseDSN, EnvDatabaseURL)
	setString(&cfg.DatabaseDSN, EnvDBConnection)
	setString(&cfg.LogLevel, EnvLogLevel)
	setString(&cfg.FingerprintSalt, EnvFingerprintSalt)
	setString(&cfg.JWT.Secret, EnvJWTSecret)
	if expiryRaw := strings.TrimSpace(os.Getenv(EnvJWTExpiry)); expiryRaw != "" {
		if expiry, errParse := time.ParseDuration(expiryRaw); errParse == nil && expiry > 0 {
			cfg.JWT.Expiry = expiry
		}
	}
	setString(&cfg.OTP.Secret, EnvOTPSecret)
	setMinutes(&cfg.OTP.Expiry, EnvOTPExpiryMinutes)
	setInt(&cfg.OTP.MaxAttempts, EnvOTPMaxAttempts)
	setMinutes(&cfg.OTP.RequestWindow, EnvOTPWindowMinutes)
	setInt(&cfg.OTP.MaxRequests, EnvOTPRequestMax)
	setString(&cfg.Redis.Addr, EnvRedisAddr)
	setString(&cfg.Redis.Password, EnvRedisPassword)
	setInt(&cfg.Redis.DB, EnvRedisDB)
	if raw := strings.TrimSpace(os.Getenv(EnvAdminEmails)); raw != "" {
		cfg.AdminEmails = strings.Split(raw, ",")
	}
	setInt(&cfg.Moderation.AutoHideThreshold, EnvAutoHideThreshold)
	setString(&cfg.SMS.Provider, EnvSMSProvider)
	setString(&cfg.SMS.BaseURL, EnvSMSBaseURL)
	setString(&cfg.SMS.APIKey, EnvSMSAPIKey)
	setString(&cfg.SMS.Sender, EnvSMSSender)
	setString(&cfg.Media.Bucket, EnvMediaBucket)
	setString(&cfg.Media.Endpoint, EnvMediaEndpoint)
	setString(&cfg.Media.Region, EnvMediaRegion)
	setString(&cfg.Media.AccessKeyID, EnvMediaAccessKey)
	setString(&cfg.Media.SecretAccessKey, EnvMediaSecretKey)
	setString(&cfg.Media.SigningSecret, EnvMediaSigningKey)
	setString(&cfg.Media.PublicBaseURL, EnvMediaPublicBase)
}

// normalize trims values and restores defaults for invalid settings.
func (c *Config) normalize() {
	defaults := Defaults()
	c.DatabaseDSN = strings.TrimSpace(c.DatabaseDSN)
	emails := make([]string, 0, len(c.AdminEmails))
	for _, email := range c.AdminEmails {
		if trimmed := strings.ToLower(strings.TrimSpace(email)); trimmed != "" {
			emails = append(emails, trimmed)
		}
	}
	c.AdminEmails = emails
	if c.JWT.Expiry <= 0 {
		c.JWT.Expiry = defaults.JWT.Expiry
	}
	if c.OTP.Expiry <= 0 {
		c.OTP.Expiry = defaults.OTP.Expiry
	}
	if c.OTP.MaxAttempts <= 0 {
		c.OTP.MaxAttempts = defaults.OTP.MaxAttempts
	}
	if c.OTP.RequestWindow <= 0 {
		c.OTP.RequestWindow = defaults.OTP.RequestWindow
	}
	if c.OTP.MaxRequests <= 0 {
		c.OTP.MaxRequests = defaults.OTP.MaxRequests
	}
	if c.OTP.VerifiedTokenTTL <= 0 {
		c.OTP.VerifiedTokenTTL = defaults.OTP.VerifiedTokenTTL
	}
	if strings.TrimSpace(c.Redis.Prefix) == "" {
		c.Redis.Prefix = defaults.Redis.Prefix
	}
	if c.Redis.DB < 0 {
		c.Redis.DB = 0
	}
	if c.Moderation.AutoHideThreshold <= 0 {
		c.Moderation.AutoHideThreshold = defaults.Moderation.AutoHideThreshold
	}
	if c.Listings.ActiveDuration <= 0 {
		c.Listings.ActiveDuration = defaults.Listings.ActiveDuration
	}
	if c.SMS.Timeout <= 0 {
		c.SMS.Timeout = defaults.SMS.Timeout
	}
	if c.Media.URLExpiry <= 0 {
		c.Media.URLExpiry = defaults.Media.URLExpiry
	}
	if c.Jobs.ExpirySweepInterval <= 0 {
		c.Jobs.ExpirySweepInterval = defaults.Jobs.ExpirySweepInterval
	}
	if c.Jobs.TrustSweepInterval <= 0 {
		c.Jobs.TrustSweepInterval = defaults.Jobs.TrustSweepInterval
	}
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if parsed, errParse := strconv.Atoi(v); errParse == nil {
			*dst = parsed
		}
	}
}

func setMinutes(dst *time.Duration, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if parsed, errParse := strconv.Atoi(v); errParse == nil && parsed > 0 {
			*dst = time.Duration(parsed) * time.Minute
		}
	}
}
