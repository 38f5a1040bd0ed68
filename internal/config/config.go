package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string
	Env  string

	// StorePath is the file backend location; ignored when
	// IDEAFORGE_PG_DSN selects postgres.
	StorePath string

	// LLMTimeout bounds every model call attempt.
	LLMTimeout time.Duration
	// LLMChainTimeout bounds one full pass over the provider chain,
	// token-bucket wait included.
	LLMChainTimeout time.Duration
	// LLMRPS/LLMBurst throttle outbound model calls; rps <= 0 disables
	// the limiter.
	LLMRPS   float64
	LLMBurst int

	MaxRounds      int
	MinImprovement float64
	StagnantRounds int

	StrictClarify bool
	StrictVerify  bool

	ClarifyIdleTimeout time.Duration

	Archive ArchiveConfig
}

type ArchiveConfig struct {
	Enabled   bool
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	port := flag.String("port", ":8082", "server port")
	flag.Parse()

	if envPort := os.Getenv("PORT"); envPort != "" {
		if strings.HasPrefix(envPort, ":") {
			*port = envPort
		} else {
			*port = ":" + envPort
		}
	}

	env := strings.TrimSpace(os.Getenv("APP_ENV"))
	if env == "" {
		env = "local"
	}

	return &Config{
		Port:               *port,
		Env:                env,
		StorePath:          firstNonEmpty(strings.TrimSpace(os.Getenv("IDEAFORGE_STORE_PATH")), "data/sessions.json"),
		LLMTimeout:         durationEnv("IDEAFORGE_LLM_TIMEOUT", 60*time.Second),
		LLMChainTimeout:    durationEnv("IDEAFORGE_LLM_CHAIN_TIMEOUT", 5*time.Minute),
		LLMRPS:             floatEnv("IDEAFORGE_LLM_RPS", 0),
		LLMBurst:           intEnv("IDEAFORGE_LLM_BURST", 1),
		MaxRounds:          intEnv("IDEAFORGE_MAX_ROUNDS", 5),
		MinImprovement:     floatEnv("IDEAFORGE_MIN_IMPROVEMENT", 0.01),
		StagnantRounds:     intEnv("IDEAFORGE_STAGNANT_ROUNDS", 1),
		StrictClarify:      boolEnv("IDEAFORGE_STRICT_CLARIFY", false),
		StrictVerify:       boolEnv("IDEAFORGE_STRICT_VERIFY", false),
		ClarifyIdleTimeout: durationEnv("IDEAFORGE_CLARIFY_IDLE_TIMEOUT", 30*time.Minute),
		Archive:            loadArchiveConfig(env),
	}, nil
}

func loadArchiveConfig(env string) ArchiveConfig {
	endpoint := resolveArchiveEndpoint(env)
	return ArchiveConfig{
		Enabled:   endpoint != "",
		Endpoint:  endpoint,
		Region:    firstNonEmpty(strings.TrimSpace(os.Getenv("ARCHIVE_S3_REGION")), "us-east-1"),
		AccessKey: firstNonEmpty(strings.TrimSpace(os.Getenv("ARCHIVE_S3_ACCESS_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_USER"))),
		SecretKey: firstNonEmpty(strings.TrimSpace(os.Getenv("ARCHIVE_S3_SECRET_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_PASSWORD"))),
		Bucket:    firstNonEmpty(strings.TrimSpace(os.Getenv("ARCHIVE_S3_BUCKET")), "ideaforge-sessions"),
		UseSSL:    resolveArchiveUseSSL(env),
	}
}

func resolveArchiveEndpoint(env string) string {
	if strings.EqualFold(strings.TrimSpace(env), "local") {
		return strings.TrimSpace(os.Getenv("ARCHIVE_MINIO_ENDPOINT"))
	}
	return strings.TrimSpace(os.Getenv("ARCHIVE_S3_ENDPOINT"))
}

func resolveArchiveUseSSL(env string) bool {
	if strings.EqualFold(strings.TrimSpace(env), "local") {
		return false
	}
	raw := strings.TrimSpace(os.Getenv("ARCHIVE_S3_USE_SSL"))
	if raw == "" {
		return true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return true
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func intEnv(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func floatEnv(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return v
}

func boolEnv(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return v
}
