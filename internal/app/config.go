package app

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr           string
	UpstreamTimeout    time.Duration
	LogLevel           string
	LogFormat          string
	GCPAPIKey          string
	CSEID              string
	GeminiAPIKey       string
	GeminiModel        string
	YouTubeBaseURL     string
	GeminiBaseURL      string
	CustomSearchURL    string
	YouTubeRegionCode  string
	YouTubeMaxInFlight int
	RedisURL           string
	CORSAllowOrigin    string
	RateLimitRPS       int
	RateLimitBurst     int
}

// LoadDotEnv loads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if strings.TrimSpace(path) == "" {
		path = ".env"
	}
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		UpstreamTimeout:    time.Duration(getEnvInt("UPSTREAM_TIMEOUT_SECONDS", 10)) * time.Second,
		LogLevel:           strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:          strings.ToLower(getEnv("LOG_FORMAT", "text")),
		GCPAPIKey:          strings.TrimSpace(os.Getenv("GCP_API_KEY")),
		CSEID:              strings.TrimSpace(os.Getenv("CSE_ID")),
		GeminiAPIKey:       strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiModel:        getEnv("GEMINI_MODEL", "gemini-pro"),
		YouTubeBaseURL:     getEnv("YOUTUBE_BASE_URL", "https://www.googleapis.com"),
		GeminiBaseURL:      getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
		CustomSearchURL:    getEnv("CUSTOMSEARCH_BASE_URL", "https://www.googleapis.com"),
		YouTubeRegionCode:  strings.ToUpper(getEnv("YOUTUBE_REGION_CODE", "KR")),
		YouTubeMaxInFlight: getEnvInt("YOUTUBE_MAX_INFLIGHT", 8),
		RedisURL:           getEnv("REDIS_URL", ""),
		CORSAllowOrigin:    getEnv("CORS_ALLOW_ORIGIN", "*"),
		RateLimitRPS:       getEnvInt("RATE_LIMIT_RPS", 20),
		RateLimitBurst:     getEnvInt("RATE_LIMIT_BURST", 40),
	}
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
