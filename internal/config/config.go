// Package config provides configuration for the clinic assistant.
package config

import (
	"os"
	"strconv"
	"time"
)

// DefaultClinicInfo is served by the clinic_info tool when no override is
// configured.
const DefaultClinicInfo = "Emerald Grove Veterinary Clinic is open Monday through Friday 8am-6pm " +
	"and Saturday 9am-1pm. We offer wellness exams, vaccinations, dental care, " +
	"surgery, and radiology. Walk-ins are welcome for urgent care during opening hours."

// Config holds the clinic assistant configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Database
	DatabaseURL string

	// LLM settings
	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string
	LLMTimeout time.Duration

	// Chat settings
	GenerationTimeout time.Duration
	HistoryWindow     int
	StreamBufferSize  int
	ClinicInfo        string

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		HTTPPort:          getEnvInt("HTTP_PORT", 8080),
		DatabaseURL:       getEnv("DATABASE_URL", "file:clinic.db?cache=shared&mode=rwc"),
		LLMBaseURL:        getEnv("LLM_BASE_URL", "https://api.openai.com"),
		LLMAPIKey:         getEnv("LLM_API_KEY", ""),
		LLMModel:          getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMTimeout:        time.Duration(getEnvInt("LLM_TIMEOUT_MS", 120000)) * time.Millisecond,
		GenerationTimeout: time.Duration(getEnvInt("CHAT_GENERATION_TIMEOUT_MS", 120000)) * time.Millisecond,
		HistoryWindow:     getEnvInt("CHAT_HISTORY_WINDOW", 20),
		StreamBufferSize:  getEnvInt("CHAT_STREAM_BUFFER", 16),
		ClinicInfo:        getEnv("CLINIC_INFO", DefaultClinicInfo),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
