package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type AuthMode string

const (
	AuthModeRequired AuthMode = "required"
	AuthModeOptional AuthMode = "optional"
	AuthModeDisabled AuthMode = "disabled"
)

type StoreDriver string

const (
	StoreDriverMemory   StoreDriver = "memory"
	StoreDriverPostgres StoreDriver = "postgres"
)

type CacheDriver string

const (
	CacheDriverMemory CacheDriver = "memory"
	CacheDriverRedis  CacheDriver = "redis"
)

type Config struct {
	Addr string

	AuthMode AuthMode

	// APIKeys maps bearer tokens to user IDs for the static verifier.
	// Ignored when IdentityServiceURL is set.
	APIKeys            map[string]string
	IdentityServiceURL string

	// Persistence.
	StoreDriver StoreDriver
	PostgresDSN string

	// Case-context cache.
	CacheDriver   CacheDriver
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	// Model capabilities.
	DeepgramAPIKey string
	OpenAIAPIKey   string
	GeminiAPIKey   string
	GeminiModel    string
	// BrainServiceURL selects the dedicated model service over Gemini
	// when set.
	BrainServiceURL string
	// DocsServiceURL enables document ingestion; empty means cases are
	// text-only.
	DocsServiceURL string

	// Engine tuning.
	CodeAttempts      int
	TranscribeTimeout time.Duration
	GenerateTimeout   time.Duration
	SynthesizeTimeout time.Duration
	AnalyzeTimeout    time.Duration
	HistoryLimit      int
	AudioDir          string

	// CORS
	CORSAllowedOrigins map[string]struct{} // empty => disabled

	// Live WebSocket channel (/v1/live).
	LiveMaxFrameBytes    int64
	LiveWSPingInterval   time.Duration
	LiveWSWriteTimeout   time.Duration
	LiveWSReadTimeout    time.Duration
	LiveHandshakeTimeout time.Duration

	// Operational defaults.
	MaxBodyBytes        int64
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                 envOr("GAVEL_ADDR", ":8080"),
		AuthMode:             AuthMode(envOr("GAVEL_AUTH_MODE", string(AuthModeRequired))),
		APIKeys:              make(map[string]string),
		IdentityServiceURL:   strings.TrimSpace(os.Getenv("GAVEL_IDENTITY_URL")),
		StoreDriver:          StoreDriver(envOr("GAVEL_STORE_DRIVER", string(StoreDriverMemory))),
		PostgresDSN:          strings.TrimSpace(os.Getenv("GAVEL_POSTGRES_DSN")),
		CacheDriver:          CacheDriver(envOr("GAVEL_CACHE_DRIVER", string(CacheDriverMemory))),
		RedisAddr:            envOr("GAVEL_REDIS_ADDR", "localhost:6379"),
		RedisPassword:        os.Getenv("GAVEL_REDIS_PASSWORD"),
		RedisDB:              envIntOr("GAVEL_REDIS_DB", 0),
		CacheTTL:             envDurationOr("GAVEL_CACHE_TTL", 24*time.Hour),
		DeepgramAPIKey:       strings.TrimSpace(os.Getenv("GAVEL_DEEPGRAM_API_KEY")),
		OpenAIAPIKey:         strings.TrimSpace(os.Getenv("GAVEL_OPENAI_API_KEY")),
		GeminiAPIKey:         strings.TrimSpace(os.Getenv("GAVEL_GEMINI_API_KEY")),
		GeminiModel:          envOr("GAVEL_GEMINI_MODEL", "gemini-2.0-flash"),
		BrainServiceURL:      strings.TrimSpace(os.Getenv("GAVEL_BRAIN_URL")),
		DocsServiceURL:       strings.TrimSpace(os.Getenv("GAVEL_DOCS_URL")),
		CodeAttempts:         envIntOr("GAVEL_CODE_ATTEMPTS", 5),
		TranscribeTimeout:    envDurationOr("GAVEL_TRANSCRIBE_TIMEOUT", 30*time.Second),
		GenerateTimeout:      envDurationOr("GAVEL_GENERATE_TIMEOUT", 30*time.Second),
		SynthesizeTimeout:    envDurationOr("GAVEL_SYNTHESIZE_TIMEOUT", 30*time.Second),
		AnalyzeTimeout:       envDurationOr("GAVEL_ANALYZE_TIMEOUT", 60*time.Second),
		HistoryLimit:         envIntOr("GAVEL_HISTORY_LIMIT", 0),
		AudioDir:             strings.TrimSpace(os.Getenv("GAVEL_AUDIO_DIR")),
		CORSAllowedOrigins:   make(map[string]struct{}),
		LiveMaxFrameBytes:    envInt64Or("GAVEL_LIVE_MAX_FRAME_BYTES", 2<<20), // 2 MiB
		LiveWSPingInterval:   envDurationOr("GAVEL_LIVE_WS_PING_INTERVAL", 20*time.Second),
		LiveWSWriteTimeout:   envDurationOr("GAVEL_LIVE_WS_WRITE_TIMEOUT", 5*time.Second),
		LiveWSReadTimeout:    envDurationOr("GAVEL_LIVE_WS_READ_TIMEOUT", 0),
		LiveHandshakeTimeout: envDurationOr("GAVEL_LIVE_HANDSHAKE_TIMEOUT", 5*time.Second),
		MaxBodyBytes:         envInt64Or("GAVEL_MAX_BODY_BYTES", 16<<20), // 16 MiB, case documents included
		ReadHeaderTimeout:    envDurationOr("GAVEL_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:          envDurationOr("GAVEL_READ_TIMEOUT", 60*time.Second),
		ShutdownGracePeriod:  envDurationOr("GAVEL_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	switch cfg.AuthMode {
	case AuthModeRequired, AuthModeOptional, AuthModeDisabled:
	default:
		return Config{}, fmt.Errorf("GAVEL_AUTH_MODE must be one of required|optional|disabled")
	}

	// GAVEL_API_KEYS is "token:user,token:user". A bare token maps to
	// itself as user ID.
	for _, entry := range splitCSV(os.Getenv("GAVEL_API_KEYS")) {
		token, user, found := strings.Cut(entry, ":")
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		if !found || strings.TrimSpace(user) == "" {
			user = token
		}
		cfg.APIKeys[token] = strings.TrimSpace(user)
	}

	for _, origin := range splitCSV(os.Getenv("GAVEL_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	switch cfg.StoreDriver {
	case StoreDriverMemory:
	case StoreDriverPostgres:
		if cfg.PostgresDSN == "" {
			return Config{}, fmt.Errorf("GAVEL_POSTGRES_DSN must be set when GAVEL_STORE_DRIVER=postgres")
		}
	default:
		return Config{}, fmt.Errorf("GAVEL_STORE_DRIVER must be one of memory|postgres")
	}

	switch cfg.CacheDriver {
	case CacheDriverMemory:
	case CacheDriverRedis:
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return Config{}, fmt.Errorf("GAVEL_REDIS_ADDR must be set when GAVEL_CACHE_DRIVER=redis")
		}
	default:
		return Config{}, fmt.Errorf("GAVEL_CACHE_DRIVER must be one of memory|redis")
	}

	if cfg.BrainServiceURL == "" && cfg.GeminiAPIKey == "" {
		return Config{}, fmt.Errorf("one of GAVEL_BRAIN_URL or GAVEL_GEMINI_API_KEY must be set")
	}
	if cfg.DeepgramAPIKey == "" {
		return Config{}, fmt.Errorf("GAVEL_DEEPGRAM_API_KEY must be set")
	}
	if cfg.OpenAIAPIKey == "" {
		return Config{}, fmt.Errorf("GAVEL_OPENAI_API_KEY must be set")
	}

	if cfg.CodeAttempts <= 0 {
		return Config{}, fmt.Errorf("GAVEL_CODE_ATTEMPTS must be > 0")
	}
	if cfg.TranscribeTimeout <= 0 || cfg.GenerateTimeout <= 0 || cfg.SynthesizeTimeout <= 0 || cfg.AnalyzeTimeout <= 0 {
		return Config{}, fmt.Errorf("capability timeouts must be > 0")
	}
	if cfg.HistoryLimit < 0 {
		return Config{}, fmt.Errorf("GAVEL_HISTORY_LIMIT must be >= 0")
	}
	if cfg.CacheTTL <= 0 {
		return Config{}, fmt.Errorf("GAVEL_CACHE_TTL must be > 0")
	}
	if cfg.LiveMaxFrameBytes <= 0 {
		return Config{}, fmt.Errorf("GAVEL_LIVE_MAX_FRAME_BYTES must be > 0")
	}
	if cfg.LiveWSPingInterval <= 0 {
		return Config{}, fmt.Errorf("GAVEL_LIVE_WS_PING_INTERVAL must be > 0")
	}
	if cfg.LiveWSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("GAVEL_LIVE_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.LiveWSReadTimeout < 0 {
		return Config{}, fmt.Errorf("GAVEL_LIVE_WS_READ_TIMEOUT must be >= 0")
	}
	if cfg.LiveHandshakeTimeout <= 0 {
		return Config{}, fmt.Errorf("GAVEL_LIVE_HANDSHAKE_TIMEOUT must be > 0")
	}
	if cfg.MaxBodyBytes <= 0 {
		return Config{}, fmt.Errorf("GAVEL_MAX_BODY_BYTES must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("GAVEL_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ReadTimeout <= 0 {
		return Config{}, fmt.Errorf("GAVEL_READ_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("GAVEL_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	if cfg.AuthMode == AuthModeRequired && len(cfg.APIKeys) == 0 && cfg.IdentityServiceURL == "" {
		return Config{}, fmt.Errorf("GAVEL_API_KEYS or GAVEL_IDENTITY_URL must be set when GAVEL_AUTH_MODE=required")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
