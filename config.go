package main

import (
	"os"
	"time"
)

// Build-time variables - inject via ldflags
// Example: go build -ldflags "-X main.baseURL=https://magicport.ai"
var (
	baseURL string // -X main.baseURL=...
	dbPath  string // -X main.dbPath=...
)

const defaultBaseURL = "https://magicport.ai"

// GetBaseURL returns the site base origin (build-time or env fallback).
func GetBaseURL() string {
	if baseURL != "" {
		return baseURL
	}
	if v := os.Getenv("MAGICFLEET_BASE_URL"); v != "" {
		return v
	}
	return defaultBaseURL
}

// GetDatabasePath returns the SQLite database path (build-time or env fallback).
func GetDatabasePath() string {
	if dbPath != "" {
		return dbPath
	}
	if v := os.Getenv("MAGICFLEET_DB"); v != "" {
		return v
	}
	return "magicfleet.db"
}

// GetOutputDir returns the directory for JSON fleet artifacts.
func GetOutputDir() string {
	if v := os.Getenv("MAGICFLEET_OUT"); v != "" {
		return v
	}
	return "."
}

// Delays holds the named timing contracts of a run. PageDelay paces the gap
// between the warm-up navigation and the target page fetch; BlockBackoff is
// the reactive pause after a detected block before the minimal retry.
type Delays struct {
	PageDelay    time.Duration
	BlockBackoff time.Duration
}

// DefaultDelays are the production timings. Tests construct zero-valued
// Delays instead so no real sleeping happens.
func DefaultDelays() Delays {
	return Delays{
		PageDelay:    durationEnv("MAGICFLEET_PAGE_DELAY", 2*time.Second),
		BlockBackoff: durationEnv("MAGICFLEET_BLOCK_BACKOFF", 5*time.Second),
	}
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
