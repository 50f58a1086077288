package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Env  string
	Port string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	ResearchURL     string
	ResearchModel   string
	ResearchTimeout int // seconds, hard execution timeout per task

	SuggestURL     string
	SuggestModel   string
	SuggestTimeout int // seconds

	MaxTasksPerUser int

	CacheSize       int
	CacheTTLSeconds int

	PollRatePerSecond float64
	PollBurst         int
}

func Load() *Config {
	return &Config{
		Env:  getEnv("ENV", "development"),
		Port: getEnv("PORT", "9020"),

		DBHost:     getEnv("DB_HOST", "topic-db"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "topic_user"),
		DBPassword: getSecret("DB_PASSWORD", "DB_PASSWORD_FILE", "topic_password"),
		DBName:     getEnv("DB_NAME", "topic_db"),

		ResearchURL:     getEnv("RESEARCH_URL", "http://deep-research:9030"),
		ResearchModel:   getEnv("RESEARCH_MODEL", "gemini-2.0-flash-exp"),
		ResearchTimeout: getEnvInt("RESEARCH_TIMEOUT_SECONDS", 300),

		SuggestURL:     getEnv("SUGGEST_URL", "http://suggestion-svc:9031"),
		SuggestModel:   getEnv("SUGGEST_MODEL", "gemini-2.0-flash-exp"),
		SuggestTimeout: getEnvInt("SUGGEST_TIMEOUT_SECONDS", 60),

		MaxTasksPerUser: getEnvInt("MAX_TASKS_PER_USER", 3),

		CacheSize:       getEnvInt("CACHE_SIZE", 1024),
		CacheTTLSeconds: getEnvInt("CACHE_TTL_SECONDS", 60),

		PollRatePerSecond: getEnvFloat("POLL_RATE_PER_SECOND", 2.0),
		PollBurst:         getEnvInt("POLL_BURST", 5),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getSecret(envKey, fileEnvKey, fallback string) string {
	if value, ok := os.LookupEnv(envKey); ok {
		return value
	}
	if filePath, ok := os.LookupEnv(fileEnvKey); ok {
		content, err := os.ReadFile(filePath)
		if err == nil {
			return strings.TrimSpace(string(content))
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
