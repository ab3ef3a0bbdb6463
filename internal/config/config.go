package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	Server   ServerConfig
	Auth     AuthConfig
	Guard    GuardConfig
	Captcha  CaptchaConfig
	Email    EmailConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	AutoMigrate       bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	TrustedProxies []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

type AuthConfig struct {
	SessionSecret     string
	SessionTTL        time.Duration
	CookieDomain      string
	CookieSecure      bool
	CleanupInterval   time.Duration
	TOTPEncryptionKey []byte
	TOTPIssuer        string
	BackupCodeCount   int
	TimingDelayBaseMs int
	TimingDelayRandMs int
}

// GuardConfig holds the brute-force policy constants
type GuardConfig struct {
	CaptchaThreshold     int
	BlockThreshold       int
	Window               time.Duration
	LockoutDuration      time.Duration
	LockoutMultiplier    float64
	MaxLockoutDuration   time.Duration
	SafeDefaultRemaining int
	HistoryRetention     time.Duration
}

type CaptchaConfig struct {
	Provider  string
	SiteKey   string
	SecretKey string
	VerifyURL string
	Timeout   time.Duration
	MinScore  float64
	Language  string
	Theme     string
	Invisible bool
}

type EmailConfig struct {
	Enabled     bool
	AWSRegion   string
	FromAddress string
	SupportURL  string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	sessionSecret := getEnv("SESSION_SECRET", "")
	if sessionSecret == "" {
		return nil, fmt.Errorf("SESSION_SECRET is required")
	}

	env := getEnv("ENV", "development")

	totpKey, err := parseEncryptionKey(getEnv("TOTP_ENCRYPTION_KEY", ""))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "esg"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
			AutoMigrate:       getEnvAsBool("DB_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Prefix:   getEnv("REDIS_PREFIX", "bf"),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
			TrustedProxies: parseList(getEnv("TRUSTED_PROXIES", "")),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Auth: AuthConfig{
			SessionSecret:     sessionSecret,
			SessionTTL:        getEnvAsDuration("SESSION_TTL", 7*24*time.Hour),
			CookieDomain:      getEnv("COOKIE_DOMAIN", ""),
			CookieSecure:      getEnvAsBool("COOKIE_SECURE", env == "production"),
			CleanupInterval:   getEnvAsDuration("CLEANUP_INTERVAL", 1*time.Hour),
			TOTPEncryptionKey: totpKey,
			TOTPIssuer:        getEnv("TOTP_ISSUER", "ESG-Lite"),
			BackupCodeCount:   getEnvAsInt("BACKUP_CODE_COUNT", 10),
			TimingDelayBaseMs: getEnvAsInt("TIMING_DELAY_BASE_MS", 300),
			TimingDelayRandMs: getEnvAsInt("TIMING_DELAY_RANDOM_MS", 200),
		},
		Guard: GuardConfig{
			CaptchaThreshold:     getEnvAsInt("GUARD_CAPTCHA_THRESHOLD", 3),
			BlockThreshold:       getEnvAsInt("GUARD_BLOCK_THRESHOLD", 5),
			Window:               getEnvAsDuration("GUARD_WINDOW", 15*time.Minute),
			LockoutDuration:      getEnvAsDuration("GUARD_LOCKOUT_DURATION", 15*time.Minute),
			LockoutMultiplier:    getEnvAsFloat("GUARD_LOCKOUT_MULTIPLIER", 2.0),
			MaxLockoutDuration:   getEnvAsDuration("GUARD_MAX_LOCKOUT_DURATION", 24*time.Hour),
			SafeDefaultRemaining: getEnvAsInt("GUARD_SAFE_DEFAULT_REMAINING", 5),
			HistoryRetention:     getEnvAsDuration("GUARD_HISTORY_RETENTION", 30*24*time.Hour),
		},
		Captcha: CaptchaConfig{
			Provider:  strings.ToLower(getEnv("CAPTCHA_PROVIDER", "yandex")),
			SiteKey:   getEnv("CAPTCHA_SITE_KEY", ""),
			SecretKey: getEnv("CAPTCHA_SECRET_KEY", ""),
			VerifyURL: getEnv("CAPTCHA_VERIFY_URL", ""),
			Timeout:   getEnvAsDuration("CAPTCHA_TIMEOUT", 5*time.Second),
			MinScore:  getEnvAsFloat("CAPTCHA_MIN_SCORE", 0.5),
			Language:  getEnv("CAPTCHA_LANGUAGE", "ru"),
			Theme:     getEnv("CAPTCHA_THEME", "light"),
			Invisible: getEnvAsBool("CAPTCHA_INVISIBLE", false),
		},
		Email: EmailConfig{
			Enabled:     getEnvAsBool("EMAIL_ENABLED", false),
			AWSRegion:   getEnv("AWS_REGION", "eu-central-1"),
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", "security@esg-lite.ru"),
			SupportURL:  getEnv("SUPPORT_URL", "https://esg-lite.ru/support"),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateSessionSecret(sessionSecret, env); err != nil {
		return nil, err
	}

	if err := cfg.Guard.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the brute-force thresholds are consistent
func (g GuardConfig) Validate() error {
	if g.BlockThreshold <= 0 {
		return fmt.Errorf("GUARD_BLOCK_THRESHOLD must be positive")
	}
	if g.CaptchaThreshold <= 0 || g.CaptchaThreshold > g.BlockThreshold {
		return fmt.Errorf("GUARD_CAPTCHA_THRESHOLD must be between 1 and GUARD_BLOCK_THRESHOLD (%d)", g.BlockThreshold)
	}
	if g.Window <= 0 || g.LockoutDuration <= 0 {
		return fmt.Errorf("GUARD_WINDOW and GUARD_LOCKOUT_DURATION must be positive")
	}
	if g.LockoutMultiplier < 1 {
		return fmt.Errorf("GUARD_LOCKOUT_MULTIPLIER must be >= 1")
	}
	if g.SafeDefaultRemaining < 0 {
		return fmt.Errorf("GUARD_SAFE_DEFAULT_REMAINING must not be negative")
	}
	return nil
}

// validateSessionSecret enforces minimum security standards for the session signing secret
func validateSessionSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("SESSION_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("SESSION_SECRET cannot be a common weak value")
		}
	}

	return nil
}

// parseEncryptionKey decodes the base64 AES-256 key used for TOTP secrets at rest
func parseEncryptionKey(raw string) ([]byte, error) {
	if raw == "" {
		return nil, fmt.Errorf("TOTP_ENCRYPTION_KEY is required")
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("TOTP_ENCRYPTION_KEY must be base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("TOTP_ENCRYPTION_KEY must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func parseList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		return parseList(getEnv("ALLOWED_ORIGINS", ""))
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
	}
}
