package nlp

import (
	"sort"
	"strings"
)

// Span is one concept link found in a text
type Span struct {
	Start    int                       `json:"start"`
	End      int                       `json:"end"`
	Text     string                    `json:"source_value"`
	CUI      string                    `json:"cui"`
	TypeIDs  []string                  `json:"type_ids"`
	Acc      float64                   `json:"acc"`
	MetaAnns map[string]MetaPrediction `json:"meta_anns"`
}

// CAT links concepts of a CDB in free text and learns from feedback
type CAT struct {
	CDB      *CDB
	Vocab    *Vocab
	MetaCATs []*MetaCAT
}

// NewCAT assembles a CAT from its components
func NewCAT(cdb *CDB, vocab *Vocab, metaCATs []*MetaCAT) *CAT {
	return &CAT{CDB: cdb, Vocab: vocab, MetaCATs: metaCATs}
}

// Annotate finds concept links in text. At every token the longest known
// name is linked to its best scoring concept, so links found from
// different tokens may overlap.
func (c *CAT) Annotate(text string) []Span {
	cfg := c.CDB.Config()
	tokens := tokenize(text, cfg.Lowercase)

	var spans []Span
	for i := range tokens {
		maxLen := cfg.MaxNameTokens
		if rest := len(tokens) - i; rest < maxLen {
			maxLen = rest
		}
		for n := maxLen; n >= 1; n-- {
			key := joinTokens(tokens[i : i+n])
			if len(key) < cfg.MinNameLength {
				continue
			}
			span, ok := c.link(key, cfg)
			if !ok {
				continue
			}
			span.Start = tokens[i].start
			span.End = tokens[i+n-1].end
			span.Text = text[span.Start:span.End]
			for _, m := range c.MetaCATs {
				if span.MetaAnns == nil {
					span.MetaAnns = map[string]MetaPrediction{}
				}
				span.MetaAnns[m.Name] = m.Predict(text, span.Start, span.End)
			}
			spans = append(spans, span)
			break
		}
	}
	return spans
}

func (c *CAT) link(key string, cfg Config) (Span, bool) {
	c.CDB.mu.RLock()
	defer c.CDB.mu.RUnlock()

	cuis := c.CDB.name2cuis[key]
	if len(cuis) == 0 {
		return Span{}, false
	}

	type candidate struct {
		cui   string
		acc   float64
		count int
	}
	candidates := make([]candidate, 0, len(cuis))
	for _, cui := range cuis {
		stats := c.CDB.training[cui][key]
		if cfg.CommonWordFrequency > 0 && !strings.Contains(key, " ") && c.Vocab.Frequency(key) >= cfg.CommonWordFrequency {
			if stats == nil || stats.Positive == 0 {
				continue
			}
		}
		acc := stats.accuracy()
		if acc < cfg.MinAccuracy {
			continue
		}
		count := 0
		if concept := c.CDB.concepts[cui]; concept != nil {
			count = concept.CountTrain
		}
		candidates = append(candidates, candidate{cui: cui, acc: acc, count: count})
	}
	if len(candidates) == 0 {
		return Span{}, false
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].acc != candidates[j].acc {
			return candidates[i].acc > candidates[j].acc
		}
		if candidates[i].count != candidates[j].count {
			return candidates[i].count > candidates[j].count
		}
		return candidates[i].cui < candidates[j].cui
	})
	best := candidates[0]
	var typeIDs []string
	if concept := c.CDB.concepts[best.cui]; concept != nil {
		typeIDs = append(typeIDs, concept.TypeIDs...)
	}
	return Span{CUI: best.cui, Acc: best.acc, TypeIDs: typeIDs}, true
}

// TrainPositive records that name was correctly linked to cui, adding the
// name to the concept when it is new.
func (c *CAT) TrainPositive(cui, name string) {
	c.CDB.mu.Lock()
	defer c.CDB.mu.Unlock()
	key := PrepareName(name, c.CDB.config.Lowercase)
	if key == "" {
		return
	}
	c.CDB.addNameLocked(cui, key, "", nil)
	c.CDB.statsLocked(cui, key).Positive++
	c.CDB.concepts[cui].CountTrain++
}

// TrainNegative records that name should not have been linked to cui
func (c *CAT) TrainNegative(cui, name string) {
	c.CDB.mu.Lock()
	defer c.CDB.mu.Unlock()
	key := PrepareName(name, c.CDB.config.Lowercase)
	if key == "" {
		return
	}
	c.CDB.statsLocked(cui, key).Negative++
}

// UnlinkName removes name from cui so it is never linked again
func (c *CAT) UnlinkName(cui, name string) {
	c.CDB.mu.Lock()
	defer c.CDB.mu.Unlock()
	c.CDB.unlinkLocked(cui, PrepareName(name, c.CDB.config.Lowercase))
}

// AddConcept adds a concept, or a new name to an existing one
func (c *CAT) AddConcept(cui, name, prettyName string, typeIDs ...string) {
	c.CDB.AddName(cui, name, prettyName, typeIDs...)
}

// LookupName returns the concepts a surface form links to
func (c *CAT) LookupName(text string) []string {
	return c.CDB.CUIsForName(PrepareName(text, c.CDB.Config().Lowercase))
}

// Save writes the CDB to path
func (c *CAT) Save(path string) error {
	return c.CDB.Save(path)
}
