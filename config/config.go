package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config хранит все конфигурационные параметры приложения.
type Config struct {
	DatabaseDriver    string
	DatabaseURL       string
	DocumentStorePath string
	JWTSecretKey      string
	ServerPort        int
	AllowedOrigins    []string

	JudgeBaseURL         string
	JudgeProblemBaseURL  string
	JudgeRequestInterval time.Duration
	JudgeTimeout         time.Duration
	ProblemMinRating     int
	ProblemMaxRating     int
	ProblemPolicy        string
	ProblemCatalogTTL    time.Duration
	SolvedCacheTTL       time.Duration
	SolvedCacheSize      int

	BracketCacheSize      int
	SessionCacheSize      int
	SessionIdleTTL        time.Duration
	SessionReaperInterval time.Duration

	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicBaseURL   string
}

const (
	PolicyRandom       = "random"
	PolicyLowestRating = "lowest-rating"
)

// ReaperEnabled reports whether idle sessions are cleaned up at all.
func (c *Config) ReaperEnabled() bool {
	return c.SessionIdleTTL > 0
}

// ArchiveEnabled reports whether R2 credentials were provided.
func (c *Config) ArchiveEnabled() bool {
	return c.R2AccountID != ""
}

// Load загружает конфигурацию из переменных окружения.
// .env файл опционален.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseDriver:    getEnv("DATABASE_DRIVER", "postgres"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		DocumentStorePath: getEnv("DOCUMENT_STORE_PATH", "data/duels.db"),
		JWTSecretKey:      os.Getenv("JWT_SECRET_KEY"),

		JudgeBaseURL:        strings.TrimRight(getEnv("JUDGE_BASE_URL", "https://codeforces.com/api"), "/"),
		JudgeProblemBaseURL: strings.TrimRight(getEnv("JUDGE_PROBLEM_BASE_URL", "https://codeforces.com"), "/"),
		ProblemPolicy:       getEnv("PROBLEM_SELECTION_POLICY", PolicyRandom),

		R2AccountID:       os.Getenv("R2_ACCOUNT_ID"),
		R2AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2BucketName:      os.Getenv("R2_BUCKET_NAME"),
		R2PublicBaseURL:   os.Getenv("R2_PUBLIC_BASE_URL"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}
	if cfg.JWTSecretKey == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY environment variable is not set")
	}
	switch cfg.DatabaseDriver {
	case "postgres", "sqlite3":
	default:
		return nil, fmt.Errorf("unsupported DATABASE_DRIVER %q (expected postgres or sqlite3)", cfg.DatabaseDriver)
	}
	switch cfg.ProblemPolicy {
	case PolicyRandom, PolicyLowestRating:
	default:
		return nil, fmt.Errorf("unsupported PROBLEM_SELECTION_POLICY %q", cfg.ProblemPolicy)
	}

	var err error
	if cfg.ServerPort, err = getInt("SERVER_PORT", 8080); err != nil {
		return nil, err
	}
	if cfg.ServerPort <= 0 || cfg.ServerPort > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", cfg.ServerPort)
	}

	for _, o := range strings.Split(getEnv("CORS_ALLOWED_ORIGINS", "*"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
		}
	}

	// SESSION_IDLE_TTL=0 выключает очистку сессий, остальные интервалы обязаны быть > 0.
	durations := []struct {
		key       string
		def       time.Duration
		dst       *time.Duration
		allowZero bool
	}{
		{"JUDGE_REQUEST_INTERVAL", 2 * time.Second, &cfg.JudgeRequestInterval, false},
		{"JUDGE_TIMEOUT", 10 * time.Second, &cfg.JudgeTimeout, false},
		{"PROBLEM_CATALOG_TTL", time.Hour, &cfg.ProblemCatalogTTL, false},
		{"SOLVED_CACHE_TTL", 5 * time.Minute, &cfg.SolvedCacheTTL, false},
		{"SESSION_IDLE_TTL", 6 * time.Hour, &cfg.SessionIdleTTL, true},
		{"SESSION_REAPER_INTERVAL", 5 * time.Minute, &cfg.SessionReaperInterval, false},
	}
	for _, d := range durations {
		if *d.dst, err = getDuration(d.key, d.def); err != nil {
			return nil, err
		}
		if *d.dst == 0 && !d.allowZero {
			return nil, fmt.Errorf("%s must be greater than zero", d.key)
		}
	}

	ints := []struct {
		key string
		def int
		dst *int
	}{
		{"PROBLEM_MIN_RATING", 800, &cfg.ProblemMinRating},
		{"PROBLEM_MAX_RATING", 800, &cfg.ProblemMaxRating},
		{"SOLVED_CACHE_SIZE", 1024, &cfg.SolvedCacheSize},
		{"BRACKET_CACHE_SIZE", 5, &cfg.BracketCacheSize},
		{"SESSION_CACHE_SIZE", 50, &cfg.SessionCacheSize},
	}
	for _, i := range ints {
		if *i.dst, err = getInt(i.key, i.def); err != nil {
			return nil, err
		}
	}

	if cfg.ProblemMinRating > cfg.ProblemMaxRating {
		return nil, fmt.Errorf("PROBLEM_MIN_RATING (%d) must not exceed PROBLEM_MAX_RATING (%d)", cfg.ProblemMinRating, cfg.ProblemMaxRating)
	}
	if cfg.BracketCacheSize <= 0 || cfg.SessionCacheSize <= 0 || cfg.SolvedCacheSize <= 0 {
		return nil, fmt.Errorf("cache sizes must be positive")
	}

	r2 := []string{cfg.R2AccountID, cfg.R2AccessKeyID, cfg.R2SecretAccessKey, cfg.R2BucketName, cfg.R2PublicBaseURL}
	set := 0
	for _, v := range r2 {
		if v != "" {
			set++
		}
	}
	if set != 0 && set != len(r2) {
		return nil, fmt.Errorf("incomplete R2 configuration: set all of R2_ACCOUNT_ID, R2_ACCESS_KEY_ID, R2_SECRET_ACCESS_KEY, R2_BUCKET_NAME, R2_PUBLIC_BASE_URL or none")
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}
	return d, nil
}
