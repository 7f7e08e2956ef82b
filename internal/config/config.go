// Package config loads application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// ConfigError indicates a configuration value is missing or invalid. It is
// fatal to the run; nothing is dispatched.
type ConfigError struct {
	Setting string
	Err     error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Setting, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Config holds the dispatcher configuration. Values are loaded from APB_*
// environment variables and may be overridden by CLI flags before Validate
// is called.
type Config struct {
	AccessToken      string
	RepoQuery        string
	WorkflowID       string
	EventType        string
	BuildAgeRaw      string
	BuildAge         time.Duration
	MaxRebuilds      int
	WriteFilename    string
	IncludeNonPublic bool
	MaskNonPublic    bool
	DBPath           string
}

// Load reads configuration from environment variables and applies defaults.
// Required values (APB_ACCESS_TOKEN, APB_REPO_QUERY) may still be empty after
// Load; Validate enforces them once flag overrides have been applied.
// Optional variables with defaults: APB_BUILD_AGE (7d), APB_EVENT_TYPE (apb),
// APB_MAX_REBUILDS (10), APB_WORKFLOW_ID (build.yml), APB_WRITE_FILENAME
// (apb.json), APB_INCLUDE_NON_PUBLIC (false), APB_MASK_NON_PUBLIC (true),
// APB_DB_PATH (empty, history disabled).
func Load() (*Config, error) {
	cfg := &Config{
		AccessToken:   os.Getenv("APB_ACCESS_TOKEN"),
		RepoQuery:     os.Getenv("APB_REPO_QUERY"),
		WorkflowID:    "build.yml",
		EventType:     "apb",
		BuildAgeRaw:   "7d",
		MaxRebuilds:   10,
		WriteFilename: "apb.json",
		MaskNonPublic: true,
		DBPath:        os.Getenv("APB_DB_PATH"),
	}

	if v, ok := os.LookupEnv("APB_WORKFLOW_ID"); ok {
		cfg.WorkflowID = v
	}
	if v, ok := os.LookupEnv("APB_EVENT_TYPE"); ok {
		cfg.EventType = v
	}
	if v, ok := os.LookupEnv("APB_BUILD_AGE"); ok {
		cfg.BuildAgeRaw = v
	}
	if v, ok := os.LookupEnv("APB_WRITE_FILENAME"); ok {
		cfg.WriteFilename = v
	}

	if v, ok := os.LookupEnv("APB_MAX_REBUILDS"); ok {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return nil, &ConfigError{Setting: "APB_MAX_REBUILDS", Err: fmt.Errorf("invalid value %q: %w", v, err)}
		}
		cfg.MaxRebuilds = parsed
	}

	if v, ok := os.LookupEnv("APB_INCLUDE_NON_PUBLIC"); ok {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return nil, &ConfigError{Setting: "APB_INCLUDE_NON_PUBLIC", Err: fmt.Errorf("invalid value %q: %w", v, err)}
		}
		cfg.IncludeNonPublic = parsed
	}

	if v, ok := os.LookupEnv("APB_MASK_NON_PUBLIC"); ok {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return nil, &ConfigError{Setting: "APB_MASK_NON_PUBLIC", Err: fmt.Errorf("invalid value %q: %w", v, err)}
		}
		cfg.MaskNonPublic = parsed
	}

	return cfg, nil
}

// Validate checks required values and parses the build age threshold.
// It must be called after CLI flag overrides are applied.
func (c *Config) Validate() error {
	if c.AccessToken == "" {
		return &ConfigError{Setting: "access token", Err: errors.New("must be set (APB_ACCESS_TOKEN or --token)")}
	}
	if c.RepoQuery == "" {
		return &ConfigError{Setting: "repository query", Err: errors.New("must be set (APB_REPO_QUERY or --query)")}
	}
	if c.WorkflowID == "" {
		return &ConfigError{Setting: "workflow id", Err: errors.New("must not be empty")}
	}
	if c.EventType == "" {
		return &ConfigError{Setting: "event type", Err: errors.New("must not be empty")}
	}
	if c.MaxRebuilds < 0 {
		return &ConfigError{Setting: "max rebuilds", Err: fmt.Errorf("must not be negative, got %d", c.MaxRebuilds)}
	}

	age, err := ParseBuildAge(c.BuildAgeRaw)
	if err != nil {
		return &ConfigError{Setting: "build age", Err: fmt.Errorf("%q: %w", c.BuildAgeRaw, err)}
	}
	c.BuildAge = age

	return nil
}

// ParseBuildAge parses a build age threshold. It accepts everything
// time.ParseDuration accepts plus day ("7d") and week ("2w") units,
// which build-age thresholds are usually expressed in.
func ParseBuildAge(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}

	if d, err := time.ParseDuration(s); err == nil {
		if d < 0 {
			return 0, fmt.Errorf("negative duration")
		}
		return d, nil
	}

	unit := s[len(s)-1]
	if unit != 'd' && unit != 'w' {
		return 0, fmt.Errorf("invalid duration %q", s)
	}

	num := s[:len(s)-1]
	for _, r := range num {
		if !unicode.IsDigit(r) && r != '.' {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
	}

	value, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}

	hours := value * 24
	if unit == 'w' {
		hours *= 7
	}

	return time.Duration(hours * float64(time.Hour)), nil
}
