package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigPath = "/etc/medcattrainer"
	ConfigFileName    = "trainer.yml"
)

// ValidLogLevels is the list of accepted log levels
var ValidLogLevels = []string{"debug", "info", "warn", "error"}

// TrainerConfig holds all trainer configuration settings
type TrainerConfig struct {
	// MaxMedCATModels bounds each of the CDB, Vocab and CAT caches
	MaxMedCATModels int `yaml:"max_medcat_models" json:"max_medcat_models"`

	// MedCATConfigFile is an optional overrides file applied to freshly loaded CDB configs
	MedCATConfigFile string `yaml:"medcat_config_file" json:"medcat_config_file"`

	// MaxDatasetSize is the maximum number of rows accepted in a dataset upload
	MaxDatasetSize int `yaml:"max_dataset_size" json:"max_dataset_size"`

	// UniqueDocNamesInDatasets rejects datasets with duplicate document names
	UniqueDocNamesInDatasets *bool `yaml:"unique_doc_names_in_datasets" json:"unique_doc_names_in_datasets"`

	// MediaRoot is where uploaded datasets, models and reports are stored
	MediaRoot string `yaml:"media_root" json:"media_root"`

	// ResubmitAllOnStartup retrains models from validated documents at startup
	ResubmitAllOnStartup bool `yaml:"resubmit_all_on_startup" json:"resubmit_all_on_startup"`

	// LargeCUIListThreshold is the length of an imported cuis field above which it moves to a file
	LargeCUIListThreshold int `yaml:"large_cui_list_threshold" json:"large_cui_list_threshold"`

	// TokenTTLMinutes is the lifetime of issued API tokens
	TokenTTLMinutes int `yaml:"token_ttl_minutes" json:"token_ttl_minutes"`

	// MaxPageSize caps the page_size of list endpoints
	MaxPageSize int `yaml:"max_page_size" json:"max_page_size"`

	// JobWorkers is the number of background job workers
	JobWorkers int `yaml:"job_workers" json:"job_workers"`

	// LogLevel is the application log level
	LogLevel string `yaml:"log_level" json:"log_level"`

	// sources tracks where each value came from
	sources map[string]string

	// configFilePath is the path to the config file
	configFilePath string
}

// Attribute represents a configuration attribute with its value and source
type Attribute struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Source string `json:"source"`
}

// Global singleton config
var (
	globalConfig *TrainerConfig
	configMu     sync.RWMutex
)

// Get returns the global configuration, loading it if necessary
func Get() *TrainerConfig {
	configMu.RLock()
	if globalConfig != nil {
		configMu.RUnlock()
		return globalConfig
	}
	configMu.RUnlock()

	configMu.Lock()
	defer configMu.Unlock()

	if globalConfig == nil {
		cfg, err := Load()
		if err != nil {
			globalConfig = NewDefault()
		} else {
			globalConfig = cfg
		}
	}
	return globalConfig
}

// Reload reloads the configuration from file and environment
func Reload() error {
	cfg, err := Load()
	if err != nil {
		return err
	}

	configMu.Lock()
	globalConfig = cfg
	configMu.Unlock()
	return nil
}

// NewDefault returns a config with default values
func NewDefault() *TrainerConfig {
	unique := true
	return &TrainerConfig{
		MaxMedCATModels:          1,
		MaxDatasetSize:           10000,
		UniqueDocNamesInDatasets: &unique,
		MediaRoot:                "/home/api/media",
		LargeCUIListThreshold:    1000,
		TokenTTLMinutes:          1440,
		MaxPageSize:              500,
		JobWorkers:               2,
		LogLevel:                 "info",
		sources:                  make(map[string]string),
	}
}

// Load loads configuration from file and environment variables.
// Environment variables take precedence over file values.
func Load() (*TrainerConfig, error) {
	config := NewDefault()

	for _, name := range attributeNames() {
		config.sources[name] = "default"
	}

	configPath := os.Getenv("TRAINER_CONFIG_PATH")
	if configPath == "" {
		configPath = DefaultConfigPath
	}
	config.configFilePath = filepath.Join(configPath, ConfigFileName)

	if data, err := os.ReadFile(config.configFilePath); err == nil {
		var fileConfig TrainerConfig
		if err := yaml.Unmarshal(data, &fileConfig); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", config.configFilePath, err)
		}
		config.applyFileConfig(&fileConfig)
	}

	config.applyEnvConfig()

	return config, nil
}

func attributeNames() []string {
	return []string{
		"max_medcat_models", "medcat_config_file", "max_dataset_size",
		"unique_doc_names_in_datasets", "media_root", "resubmit_all_on_startup",
		"large_cui_list_threshold", "token_ttl_minutes", "max_page_size", "job_workers", "log_level",
	}
}

func (c *TrainerConfig) applyFileConfig(file *TrainerConfig) {
	if file.MaxMedCATModels != 0 {
		c.MaxMedCATModels = file.MaxMedCATModels
		c.sources["max_medcat_models"] = "file"
	}
	if file.MedCATConfigFile != "" {
		c.MedCATConfigFile = file.MedCATConfigFile
		c.sources["medcat_config_file"] = "file"
	}
	if file.MaxDatasetSize != 0 {
		c.MaxDatasetSize = file.MaxDatasetSize
		c.sources["max_dataset_size"] = "file"
	}
	if file.UniqueDocNamesInDatasets != nil {
		c.UniqueDocNamesInDatasets = file.UniqueDocNamesInDatasets
		c.sources["unique_doc_names_in_datasets"] = "file"
	}
	if file.MediaRoot != "" {
		c.MediaRoot = file.MediaRoot
		c.sources["media_root"] = "file"
	}
	if file.ResubmitAllOnStartup {
		c.ResubmitAllOnStartup = true
		c.sources["resubmit_all_on_startup"] = "file"
	}
	if file.LargeCUIListThreshold != 0 {
		c.LargeCUIListThreshold = file.LargeCUIListThreshold
		c.sources["large_cui_list_threshold"] = "file"
	}
	if file.TokenTTLMinutes != 0 {
		c.TokenTTLMinutes = file.TokenTTLMinutes
		c.sources["token_ttl_minutes"] = "file"
	}
	if file.MaxPageSize != 0 {
		c.MaxPageSize = file.MaxPageSize
		c.sources["max_page_size"] = "file"
	}
	if file.JobWorkers != 0 {
		c.JobWorkers = file.JobWorkers
		c.sources["job_workers"] = "file"
	}
	if file.LogLevel != "" {
		c.LogLevel = file.LogLevel
		c.sources["log_level"] = "file"
	}
}

func (c *TrainerConfig) applyEnvConfig() {
	if val := os.Getenv("MAX_MEDCAT_MODELS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			c.MaxMedCATModels = i
			c.sources["max_medcat_models"] = "environment"
		}
	}
	if val := os.Getenv("MEDCAT_CONFIG_FILE"); val != "" {
		c.MedCATConfigFile = val
		c.sources["medcat_config_file"] = "environment"
	}
	if val := os.Getenv("MAX_DATASET_SIZE"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			c.MaxDatasetSize = i
			c.sources["max_dataset_size"] = "environment"
		}
	}
	if val := os.Getenv("UNIQUE_DOC_NAMES_IN_DATASETS"); val != "" {
		b := envBool(val)
		c.UniqueDocNamesInDatasets = &b
		c.sources["unique_doc_names_in_datasets"] = "environment"
	}
	if val := os.Getenv("MEDIA_ROOT"); val != "" {
		c.MediaRoot = val
		c.sources["media_root"] = "environment"
	}
	if val := os.Getenv("RESUBMIT_ALL_ON_STARTUP"); val != "" {
		c.ResubmitAllOnStartup = envBool(val)
		c.sources["resubmit_all_on_startup"] = "environment"
	}
	if val := os.Getenv("LARGE_CUI_LIST_THRESHOLD"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			c.LargeCUIListThreshold = i
			c.sources["large_cui_list_threshold"] = "environment"
		}
	}
	if val := os.Getenv("TOKEN_TTL_MINUTES"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			c.TokenTTLMinutes = i
			c.sources["token_ttl_minutes"] = "environment"
		}
	}
	if val := os.Getenv("MAX_PAGE_SIZE"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			c.MaxPageSize = i
			c.sources["max_page_size"] = "environment"
		}
	}
	if val := os.Getenv("JOB_WORKERS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			c.JobWorkers = i
			c.sources["job_workers"] = "environment"
		}
	}
	if val := os.Getenv("TRAINER_LOG_LEVEL"); val != "" {
		c.LogLevel = strings.ToLower(val)
		c.sources["log_level"] = "environment"
	}
}

// envBool mirrors the accepted truthy spellings of the deployment env files
func envBool(val string) bool {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "1", "true", "t", "y", "yes":
		return true
	}
	return false
}

// ConfigFilePath returns the path to the config file
func (c *TrainerConfig) ConfigFilePath() string {
	return c.configFilePath
}

// Source returns the source of a configuration attribute
func (c *TrainerConfig) Source(name string) string {
	if c.sources == nil {
		return "default"
	}
	if s, ok := c.sources[name]; ok {
		return s
	}
	return "default"
}

// UniqueDocNames reports whether dataset document names must be unique
func (c *TrainerConfig) UniqueDocNames() bool {
	return c.UniqueDocNamesInDatasets == nil || *c.UniqueDocNamesInDatasets
}

// TokenTTL returns the API token TTL as a duration
func (c *TrainerConfig) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLMinutes) * time.Minute
}

// Validate validates the configuration
func (c *TrainerConfig) Validate() error {
	if c.MaxMedCATModels < 1 {
		return fmt.Errorf("invalid max_medcat_models value: %d", c.MaxMedCATModels)
	}
	if c.MaxDatasetSize < 1 {
		return fmt.Errorf("invalid max_dataset_size value: %d", c.MaxDatasetSize)
	}
	if c.LargeCUIListThreshold < 1 {
		return fmt.Errorf("invalid large_cui_list_threshold value: %d", c.LargeCUIListThreshold)
	}
	if c.TokenTTLMinutes < 1 {
		return fmt.Errorf("invalid token_ttl_minutes value: %d", c.TokenTTLMinutes)
	}
	if c.MaxPageSize < 1 {
		return fmt.Errorf("invalid max_page_size value: %d", c.MaxPageSize)
	}
	if c.JobWorkers < 1 {
		return fmt.Errorf("invalid job_workers value: %d", c.JobWorkers)
	}
	if c.MediaRoot == "" {
		return fmt.Errorf("media_root must be set")
	}

	valid := false
	for _, l := range ValidLogLevels {
		if l == c.LogLevel {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid log_level: %s", c.LogLevel)
	}

	return nil
}

// Attributes returns all configuration attributes with their values and sources
func (c *TrainerConfig) Attributes() []Attribute {
	return []Attribute{
		{Name: "max_medcat_models", Value: strconv.Itoa(c.MaxMedCATModels), Source: c.Source("max_medcat_models")},
		{Name: "medcat_config_file", Value: c.MedCATConfigFile, Source: c.Source("medcat_config_file")},
		{Name: "max_dataset_size", Value: strconv.Itoa(c.MaxDatasetSize), Source: c.Source("max_dataset_size")},
		{Name: "unique_doc_names_in_datasets", Value: strconv.FormatBool(c.UniqueDocNames()), Source: c.Source("unique_doc_names_in_datasets")},
		{Name: "media_root", Value: c.MediaRoot, Source: c.Source("media_root")},
		{Name: "resubmit_all_on_startup", Value: strconv.FormatBool(c.ResubmitAllOnStartup), Source: c.Source("resubmit_all_on_startup")},
		{Name: "large_cui_list_threshold", Value: strconv.Itoa(c.LargeCUIListThreshold), Source: c.Source("large_cui_list_threshold")},
		{Name: "token_ttl_minutes", Value: strconv.Itoa(c.TokenTTLMinutes), Source: c.Source("token_ttl_minutes")},
		{Name: "max_page_size", Value: strconv.Itoa(c.MaxPageSize), Source: c.Source("max_page_size")},
		{Name: "job_workers", Value: strconv.Itoa(c.JobWorkers), Source: c.Source("job_workers")},
		{Name: "log_level", Value: c.LogLevel, Source: c.Source("log_level")},
	}
}

// FormatText returns a text representation of the configuration
func (c *TrainerConfig) FormatText() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Config file: %s\n\n", c.configFilePath))
	sb.WriteString(fmt.Sprintf("%-32s %-30s %s\n", "NAME", "VALUE", "SOURCE"))
	sb.WriteString(fmt.Sprintf("%-32s %-30s %s\n", "----", "-----", "------"))

	for _, attr := range c.Attributes() {
		value := attr.Value
		if value == "" {
			value = "(not set)"
		}
		sb.WriteString(fmt.Sprintf("%-32s %-30s %s\n", attr.Name, value, attr.Source))
	}
	return sb.String()
}

// FormatJSON returns a JSON representation of the configuration
func (c *TrainerConfig) FormatJSON() (string, error) {
	result := map[string]interface{}{
		"config_file": c.configFilePath,
		"attributes":  c.Attributes(),
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
