package config

import (
	"os"
	"strconv"
	"strings"

	"photoproc/internal/domain"
)

// Defaults not overridden by flags fall back to PHOTOPROC_* environment
// variables, then to these values.
const (
	DefaultTimerangeSec = 10
	DefaultStatePath    = "photoproc.sqlite"
	DefaultLookbackDays = 20
)

type Config struct {
	Timezone     string
	DST          bool
	TimerangeSec int
	Suffixes     []string
	Workers      int
	DryRun       bool
	Verbose      bool
	StatePath    string
	NoState      bool
}

// FromEnv fills unset fields from the environment.
func (c *Config) FromEnv() {
	if c.Timezone == "" {
		c.Timezone = envOrEmpty("PHOTOPROC_TIMEZONE")
	}
	if !c.DST {
		c.DST = envTruthy("PHOTOPROC_DST")
	}
	if c.TimerangeSec == 0 {
		if val, err := strconv.Atoi(envOrEmpty("PHOTOPROC_TIMERANGE")); err == nil && val > 0 {
			c.TimerangeSec = val
		}
	}
	if c.TimerangeSec == 0 {
		c.TimerangeSec = DefaultTimerangeSec
	}
	if len(c.Suffixes) == 0 {
		if val := envOrEmpty("PHOTOPROC_SUFFIX"); val != "" {
			c.Suffixes = splitList(val)
		}
	}
	if len(c.Suffixes) == 0 {
		c.Suffixes = append([]string(nil), domain.DefaultSuffixes...)
	}
	if c.Workers == 0 {
		if val, err := strconv.Atoi(envOrEmpty("PHOTOPROC_WORKERS")); err == nil && val > 0 {
			c.Workers = val
		}
	}
	if !c.Verbose {
		c.Verbose = envTruthy("PHOTOPROC_VERBOSE")
	}
	if c.StatePath == "" {
		c.StatePath = envOrEmpty("PHOTOPROC_STATE")
	}
	if c.StatePath == "" {
		c.StatePath = DefaultStatePath
	}
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envOrEmpty(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func envTruthy(key string) bool {
	val := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	return val == "1" || val == "true" || val == "yes" || val == "y"
}
