package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearTrainerEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"TRAINER_CONFIG_PATH", "MAX_MEDCAT_MODELS", "MEDCAT_CONFIG_FILE", "MAX_DATASET_SIZE",
		"UNIQUE_DOC_NAMES_IN_DATASETS", "MEDIA_ROOT", "RESUBMIT_ALL_ON_STARTUP",
		"LARGE_CUI_LIST_THRESHOLD", "TOKEN_TTL_MINUTES", "MAX_PAGE_SIZE", "JOB_WORKERS", "TRAINER_LOG_LEVEL",
	} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoadDefaults(t *testing.T) {
	clearTrainerEnv(t)
	t.Setenv("TRAINER_CONFIG_PATH", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.MaxMedCATModels)
	assert.Equal(t, 10000, cfg.MaxDatasetSize)
	assert.True(t, cfg.UniqueDocNames())
	assert.Equal(t, "/home/api/media", cfg.MediaRoot)
	assert.False(t, cfg.ResubmitAllOnStartup)
	assert.Equal(t, 1000, cfg.LargeCUIListThreshold)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL())
	assert.Equal(t, 500, cfg.MaxPageSize)
	assert.Equal(t, "default", cfg.Source("max_medcat_models"))
	assert.NoError(t, cfg.Validate())
}

func TestLoadFileThenEnvironment(t *testing.T) {
	clearTrainerEnv(t)
	dir := t.TempDir()
	t.Setenv("TRAINER_CONFIG_PATH", dir)

	content := `
max_medcat_models: 3
media_root: /data/media
unique_doc_names_in_datasets: false
log_level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(content), 0600))
	t.Setenv("MAX_MEDCAT_MODELS", "5")
	t.Setenv("RESUBMIT_ALL_ON_STARTUP", "True")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.MaxMedCATModels)
	assert.Equal(t, "environment", cfg.Source("max_medcat_models"))
	assert.Equal(t, "/data/media", cfg.MediaRoot)
	assert.Equal(t, "file", cfg.Source("media_root"))
	assert.False(t, cfg.UniqueDocNames())
	assert.True(t, cfg.ResubmitAllOnStartup)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadInvalidFile(t *testing.T) {
	clearTrainerEnv(t)
	dir := t.TempDir()
	t.Setenv("TRAINER_CONFIG_PATH", dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("max_medcat_models: [1"), 0600))

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *TrainerConfig)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(c *TrainerConfig) {}},
		{name: "zero models", mutate: func(c *TrainerConfig) { c.MaxMedCATModels = 0 }, wantErr: "max_medcat_models"},
		{name: "zero dataset size", mutate: func(c *TrainerConfig) { c.MaxDatasetSize = 0 }, wantErr: "max_dataset_size"},
		{name: "zero page size", mutate: func(c *TrainerConfig) { c.MaxPageSize = 0 }, wantErr: "max_page_size"},
		{name: "no workers", mutate: func(c *TrainerConfig) { c.JobWorkers = 0 }, wantErr: "job_workers"},
		{name: "unknown log level", mutate: func(c *TrainerConfig) { c.LogLevel = "loud" }, wantErr: "log_level"},
		{name: "empty media root", mutate: func(c *TrainerConfig) { c.MediaRoot = "" }, wantErr: "media_root"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefault()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFormatOutputs(t *testing.T) {
	cfg := NewDefault()

	text := cfg.FormatText()
	assert.True(t, strings.Contains(text, "max_medcat_models"))
	assert.True(t, strings.Contains(text, "(not set)"))

	out, err := cfg.FormatJSON()
	require.NoError(t, err)

	var decoded struct {
		Attributes []Attribute `json:"attributes"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Len(t, decoded.Attributes, len(attributeNames()))
}
