// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port         int
	BaseURL      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Authentication
	APIPassword string

	// Upstream fetch settings
	FetchTimeout    time.Duration // full page fetch budget
	RedirectTimeout time.Duration // short-link resolution budget
	UserAgent       string        // overrides the default fingerprint UA
	GlobalProxy     string        // socks5:// or http:// proxy for all upstream requests

	// Logging
	LogLevel string
	LogJSON  bool
}

// DefaultUserAgent is a stable, widely accepted mobile Safari user agent.
// Desktop Chrome agents draw more anti-bot attention on video pages.
const DefaultUserAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 16_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.6 Mobile/15E148 Safari/604.1"

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	port := getEnvInt("PORT", 8000)
	return &Config{
		Port:            port,
		BaseURL:         getEnvString("BASE_URL", fmt.Sprintf("http://localhost:%d", port)),
		ReadTimeout:     getEnvDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:    getEnvDuration("WRITE_TIMEOUT", 120*time.Second),
		IdleTimeout:     getEnvDuration("IDLE_TIMEOUT", 60*time.Second),
		APIPassword:     os.Getenv("API_PASSWORD"),
		FetchTimeout:    getEnvDuration("FETCH_TIMEOUT", 30*time.Second),
		RedirectTimeout: getEnvDuration("REDIRECT_TIMEOUT", 10*time.Second),
		UserAgent:       getEnvString("USER_AGENT", DefaultUserAgent),
		GlobalProxy:     os.Getenv("GLOBAL_PROXY"),
		LogLevel:        getEnvString("LOG_LEVEL", "info"),
		LogJSON:         getEnvBool("LOG_JSON", false),
	}
}

func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return strings.ToLower(val) == "true" || val == "1"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		// Try parsing as seconds first
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second
		}
		// Try parsing as duration string
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
