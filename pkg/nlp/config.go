package nlp

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config tunes how a CAT links names in text
type Config struct {
	// MinAccuracy drops candidate links scoring below it
	MinAccuracy float64 `json:"min_accuracy" yaml:"min_accuracy"`
	// MaxNameTokens bounds the longest name looked up
	MaxNameTokens int `json:"max_name_tokens" yaml:"max_name_tokens"`
	// MinNameLength skips names shorter than this many characters
	MinNameLength int `json:"min_name_length" yaml:"min_name_length"`
	Lowercase     bool `json:"lowercase" yaml:"lowercase"`
	// CommonWordFrequency, when positive, skips single token names whose
	// vocab frequency is at least this value unless trained positively.
	CommonWordFrequency int `json:"common_word_frequency" yaml:"common_word_frequency"`
}

// DefaultConfig returns the configuration used when a CDB carries none
func DefaultConfig() Config {
	return Config{
		MinAccuracy:   0.2,
		MaxNameTokens: 6,
		MinNameLength: 3,
		Lowercase:     true,
	}
}

type configOverrides struct {
	MinAccuracy         *float64 `yaml:"min_accuracy"`
	MaxNameTokens       *int     `yaml:"max_name_tokens"`
	MinNameLength       *int     `yaml:"min_name_length"`
	Lowercase           *bool    `yaml:"lowercase"`
	CommonWordFrequency *int     `yaml:"common_word_frequency"`
}

// ParseConfigFile applies the values present in a YAML or JSON file on top
// of cfg. Keys absent from the file keep their current value.
func (cfg *Config) ParseConfigFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read model config %s: %w", path, err)
	}

	var o configOverrides
	if err := yaml.Unmarshal(data, &o); err != nil {
		return fmt.Errorf("failed to parse model config %s: %w", path, err)
	}

	if o.MinAccuracy != nil {
		cfg.MinAccuracy = *o.MinAccuracy
	}
	if o.MaxNameTokens != nil {
		cfg.MaxNameTokens = *o.MaxNameTokens
	}
	if o.MinNameLength != nil {
		cfg.MinNameLength = *o.MinNameLength
	}
	if o.Lowercase != nil {
		cfg.Lowercase = *o.Lowercase
	}
	if o.CommonWordFrequency != nil {
		cfg.CommonWordFrequency = *o.CommonWordFrequency
	}
	return cfg.Validate()
}

// Validate rejects settings the linker cannot work with
func (cfg Config) Validate() error {
	if cfg.MinAccuracy < 0 || cfg.MinAccuracy > 1 {
		return fmt.Errorf("min_accuracy must be within [0, 1], got %v", cfg.MinAccuracy)
	}
	if cfg.MaxNameTokens < 1 {
		return fmt.Errorf("max_name_tokens must be positive, got %d", cfg.MaxNameTokens)
	}
	return nil
}
