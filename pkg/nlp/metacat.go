package nlp

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// MetaCATConfigFile is the file holding a MetaCAT inside its directory
const MetaCATConfigFile = "config.json"

// MetaPrediction is the value a MetaCAT assigns to an annotation
type MetaPrediction struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Name       string  `json:"name"`
}

// MetaCAT classifies a contextual attribute of an annotation, e.g.
// Presence or Temporality, from cue words around the span.
type MetaCAT struct {
	Name    string              `json:"name"`
	Values  []string            `json:"values"`
	Default string              `json:"default"`
	Cues    map[string][]string `json:"cues"`
	Window  int                 `json:"window"`
}

// LoadMetaCAT reads a MetaCAT directory
func LoadMetaCAT(dir string) (*MetaCAT, error) {
	data, err := os.ReadFile(filepath.Join(dir, MetaCATConfigFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read meta cat %s: %w", dir, err)
	}
	var m MetaCAT
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse meta cat %s: %w", dir, err)
	}
	if m.Name == "" {
		return nil, fmt.Errorf("meta cat %s has no name", dir)
	}
	if m.Window <= 0 {
		m.Window = 3
	}
	return &m, nil
}

// Save writes the MetaCAT into dir
func (m *MetaCAT) Save(dir string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(dir, MetaCATConfigFile), data)
}

// Predict classifies the span [start, end) of text. The first value whose
// cue appears within the window wins; otherwise the default applies.
func (m *MetaCAT) Predict(text string, start, end int) MetaPrediction {
	tokens := tokenize(text, true)
	// first is the index of the first token not ending before the span
	first, last := 0, -1
	for i, t := range tokens {
		if t.end <= start {
			first = i + 1
		}
		if last == -1 && t.start >= end {
			last = i
		}
	}
	if last == -1 {
		last = len(tokens)
	}
	lo := first - m.Window
	if lo < 0 {
		lo = 0
	}
	hi := last + m.Window
	if hi > len(tokens) {
		hi = len(tokens)
	}
	var context []string
	for _, t := range tokens[lo:first] {
		context = append(context, t.text)
	}
	for _, t := range tokens[last:hi] {
		context = append(context, t.text)
	}
	window := " " + strings.Join(context, " ") + " "

	for _, value := range m.Values {
		for _, cue := range m.Cues[value] {
			if strings.Contains(window, " "+PrepareName(cue, true)+" ") {
				return MetaPrediction{Name: m.Name, Value: value, Confidence: 0.9}
			}
		}
	}
	return MetaPrediction{Name: m.Name, Value: m.Default, Confidence: 0.5}
}
