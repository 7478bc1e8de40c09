package config

import (
	"os"
	"strconv"
	"strings"
)

// ServerConfig holds settings for the HTTP task API.
type ServerConfig struct {
	Port           string
	OutputDir      string
	AllowedOrigins []string
	MaxTasks       int
}

func LoadServer() *ServerConfig {
	return &ServerConfig{
		Port:           getEnv("PORT", "8000"),
		OutputDir:      getEnv("OUTPUT_DIR", ""),
		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
		MaxTasks:       getEnvAsInt("MAX_TASKS", 100),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
