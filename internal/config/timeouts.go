package config

import (
	"os"
	"strconv"
	"time"
)

// ApplyEnvOverrides overlays environment-variable overrides on top of the
// file-derived configuration. Unset or unparseable variables leave the file
// value in place.
//
// Environment Variables:
//   - AGENTUP_TIMEOUT_READINESS (Go duration, e.g. 15m)
//   - AGENTUP_TIMEOUT_CONTENTION
//   - AGENTUP_TIMEOUT_POLL_INTERVAL
//   - AGENTUP_RETRY_MAX_RETRIES
//   - AGENTUP_RETRY_BASE_DELAY
//   - AGENTUP_RETRY_MAX_DELAY
func (c *Config) ApplyEnvOverrides() {
	c.ReadinessTimeout = parseDuration("AGENTUP_TIMEOUT_READINESS", c.ReadinessTimeout)
	c.ContentionTimeout = parseDuration("AGENTUP_TIMEOUT_CONTENTION", c.ContentionTimeout)
	c.PollInterval = parseDuration("AGENTUP_TIMEOUT_POLL_INTERVAL", c.PollInterval)
	c.MaxRetries = parseInt("AGENTUP_RETRY_MAX_RETRIES", c.MaxRetries)
	c.BaseDelay = parseDuration("AGENTUP_RETRY_BASE_DELAY", c.BaseDelay)
	c.MaxDelay = parseDuration("AGENTUP_RETRY_MAX_DELAY", c.MaxDelay)
}

// parseDuration parses a duration from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseDuration(envVar string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}

	return d
}

// parseInt parses an integer from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseInt(envVar string, defaultVal int) int {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}

	return i
}
