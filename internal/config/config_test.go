package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repoforge/apb/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APB_ACCESS_TOKEN", "tok")
	t.Setenv("APB_REPO_QUERY", "org:example")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "build.yml", cfg.WorkflowID)
	assert.Equal(t, "apb", cfg.EventType)
	assert.Equal(t, "7d", cfg.BuildAgeRaw)
	assert.Equal(t, 10, cfg.MaxRebuilds)
	assert.Equal(t, "apb.json", cfg.WriteFilename)
	assert.False(t, cfg.IncludeNonPublic)
	assert.True(t, cfg.MaskNonPublic)

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 7*24*time.Hour, cfg.BuildAge)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("APB_ACCESS_TOKEN", "tok")
	t.Setenv("APB_REPO_QUERY", "org:example")
	t.Setenv("APB_WORKFLOW_ID", "ci.yml")
	t.Setenv("APB_EVENT_TYPE", "rebuild")
	t.Setenv("APB_BUILD_AGE", "48h")
	t.Setenv("APB_MAX_REBUILDS", "3")
	t.Setenv("APB_WRITE_FILENAME", "out.json")
	t.Setenv("APB_INCLUDE_NON_PUBLIC", "true")
	t.Setenv("APB_MASK_NON_PUBLIC", "false")
	t.Setenv("APB_DB_PATH", "history.db")

	cfg, err := config.Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "tok", cfg.AccessToken)
	assert.Equal(t, "org:example", cfg.RepoQuery)
	assert.Equal(t, "ci.yml", cfg.WorkflowID)
	assert.Equal(t, "rebuild", cfg.EventType)
	assert.Equal(t, 48*time.Hour, cfg.BuildAge)
	assert.Equal(t, 3, cfg.MaxRebuilds)
	assert.Equal(t, "out.json", cfg.WriteFilename)
	assert.True(t, cfg.IncludeNonPublic)
	assert.False(t, cfg.MaskNonPublic)
	assert.Equal(t, "history.db", cfg.DBPath)
}

func TestLoad_InvalidMaxRebuilds(t *testing.T) {
	t.Setenv("APB_MAX_REBUILDS", "lots")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "APB_MAX_REBUILDS")
}

func TestValidate_MissingToken(t *testing.T) {
	cfg := &config.Config{RepoQuery: "org:example", WorkflowID: "build.yml", EventType: "apb", BuildAgeRaw: "7d"}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access token")

	var cfgErr *config.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "access token", cfgErr.Setting)
}

func TestValidate_MissingQuery(t *testing.T) {
	cfg := &config.Config{AccessToken: "tok", WorkflowID: "build.yml", EventType: "apb", BuildAgeRaw: "7d"}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "repository query")
}

func TestValidate_NegativeMaxRebuilds(t *testing.T) {
	cfg := &config.Config{
		AccessToken: "tok", RepoQuery: "q", WorkflowID: "build.yml",
		EventType: "apb", BuildAgeRaw: "7d", MaxRebuilds: -1,
	}

	require.Error(t, cfg.Validate())
}

func TestParseBuildAge(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"7d", 7 * 24 * time.Hour},
		{"1d", 24 * time.Hour},
		{"2w", 14 * 24 * time.Hour},
		{"0.5d", 12 * time.Hour},
		{"36h", 36 * time.Hour},
		{"90m", 90 * time.Minute},
		{" 7d ", 7 * 24 * time.Hour},
	}

	for _, tt := range tests {
		got, err := config.ParseBuildAge(tt.in)
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}
}

func TestParseBuildAge_Invalid(t *testing.T) {
	for _, in := range []string{"", "d", "seven days", "7x", "-7d", "-24h"} {
		_, err := config.ParseBuildAge(in)
		assert.Error(t, err, "input %q", in)
	}
}
