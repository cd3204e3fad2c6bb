package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultModels is the fallback order tried for every chat turn.
var DefaultModels = []string{
	"gemini-2.5-flash",
	"gemini-2.5-flash-lite",
	"gemini-2.0-flash",
	"gemini-2.0-flash-lite",
	"gemini-1.5-flash",
}

type Config struct {
	// Server
	Port string
	Env  string

	// Gemini AI
	GeminiAPIKey         string
	GeminiModels         []string
	GeminiConcurrentReqs int

	// Fallback
	FallbackBackoff time.Duration
	RepeatBackoff   time.Duration

	// Redis (optional, turn events)
	RedisURL string

	// HTTP
	FrontendURL         string
	StaticDir           string
	ChatRateLimitPerMin int
	TrustProxy          bool
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:                 getEnvOrDefault("PORT", "3000"),
		Env:                  getEnvOrDefault("ENV", "development"),
		GeminiAPIKey:         mustGetEnv("GEMINI_API_KEY"),
		GeminiModels:         getEnvAsListOrDefault("GEMINI_MODELS", DefaultModels),
		GeminiConcurrentReqs: getEnvAsIntOrDefault("GEMINI_CONCURRENT_REQUESTS", 5),
		FallbackBackoff:      getEnvAsMillisOrDefault("FALLBACK_BACKOFF_MS", time.Second),
		RepeatBackoff:        getEnvAsMillisOrDefault("REPEAT_BACKOFF_MS", 2*time.Second),
		RedisURL:             getEnvOrDefault("REDIS_URL", ""),
		FrontendURL:          getEnvOrDefault("FRONTEND_URL", "*"),
		StaticDir:            getEnvOrDefault("STATIC_DIR", "static"),
		ChatRateLimitPerMin:  getEnvAsIntOrDefault("CHAT_RATE_LIMIT_PER_MINUTE", 30),
		TrustProxy:           getEnvAsBoolOrDefault("TRUST_PROXY", false),
	}

	return cfg
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsBoolOrDefault(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvAsMillisOrDefault(key string, defaultVal time.Duration) time.Duration {
	n := getEnvAsIntOrDefault(key, -1)
	if n < 0 {
		return defaultVal
	}
	return time.Duration(n) * time.Millisecond
}

// getEnvAsListOrDefault splits a comma separated value, dropping blanks.
func getEnvAsListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return append([]string(nil), defaultVal...)
	}
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), defaultVal...)
	}
	return out
}
