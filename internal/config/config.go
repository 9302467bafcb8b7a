// Package config implements the process-bootstrap configuration (env vars
// consumed by the core, spec §6) and the file-based ExtractionConfig
// resolution pipeline (spec §4.7).
//
// Grounded on the teacher's internal/config/config.go getEnvOrDefault style,
// generalized away from the worker's fixed service topology (Redis URL,
// Qdrant, MageAgent, VoyageAI...) into the core's own small env surface:
// max upload size, a telemetry toggle, and a cache directory override.
package config

import (
	"os"
	"strconv"
)

// ProcessConfig holds the handful of environment variables spec §6 names as
// consumed directly by the core (frontend-facing concerns like HTTP ports
// are out of scope per §1).
type ProcessConfig struct {
	MaxUploadSizeBytes int64
	TelemetryEnabled   bool
	CacheDir           string
	CacheMaxSizeMB     float64
	CacheMaxAgeDays    int
}

// LoadProcessConfig reads env vars with documented defaults. "Invalid or
// non-numeric values fall back to documented defaults without failing"
// (spec §6) — this never panics, unlike the teacher's getEnvOrThrow, since
// none of the core's own env vars are mandatory.
func LoadProcessConfig() ProcessConfig {
	return ProcessConfig{
		MaxUploadSizeBytes: getEnvAsInt64OrDefault("KREUZBERG_MAX_UPLOAD_SIZE", 5*1024*1024*1024),
		TelemetryEnabled:   getEnvAsBoolOrDefault("KREUZBERG_TELEMETRY", false),
		CacheDir:           getEnvOrDefault("KREUZBERG_CACHE_DIR", defaultCacheDir()),
		CacheMaxSizeMB:     getEnvAsFloatOrDefault("KREUZBERG_CACHE_MAX_SIZE_MB", 1024),
		CacheMaxAgeDays:    getEnvAsIntOrDefault("KREUZBERG_CACHE_MAX_AGE_DAYS", 30),
	}
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return dir + "/kreuzberg"
	}
	return "/tmp/kreuzberg-cache"
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvAsInt64OrDefault(key string, defaultValue int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue
	}
	return b
}
