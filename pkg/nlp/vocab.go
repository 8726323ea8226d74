package nlp

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Vocab holds word frequencies of the corpus a model was built from
type Vocab struct {
	words map[string]int
}

type vocabFile struct {
	FormatVersion *int           `json:"format_version"`
	Words         map[string]int `json:"words"`
}

// NewVocab returns a vocab over the given frequencies
func NewVocab(words map[string]int) *Vocab {
	v := &Vocab{words: map[string]int{}}
	for w, n := range words {
		v.words[strings.ToLower(w)] = n
	}
	return v
}

// LoadVocab reads a vocab file
func LoadVocab(path string) (*Vocab, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read vocab %s: %w", path, err)
	}
	var f vocabFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse vocab %s: %w", path, err)
	}
	if f.FormatVersion == nil {
		return nil, ErrLegacyModel
	}
	return NewVocab(f.Words), nil
}

// Save writes the vocab to path
func (v *Vocab) Save(path string) error {
	version := FormatVersion
	data, err := json.Marshal(vocabFile{FormatVersion: &version, Words: v.words})
	if err != nil {
		return fmt.Errorf("failed to encode vocab: %w", err)
	}
	return writeFileAtomic(path, data)
}

// Frequency returns how often a word occurs, 0 when unknown
func (v *Vocab) Frequency(word string) int {
	if v == nil {
		return 0
	}
	return v.words[strings.ToLower(word)]
}

// Len returns the number of words
func (v *Vocab) Len() int {
	if v == nil {
		return 0
	}
	return len(v.words)
}
