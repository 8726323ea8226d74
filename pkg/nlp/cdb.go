package nlp

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// FormatVersion is the CDB and Vocab file layout written by this package
const FormatVersion = 1

// ErrLegacyModel is returned for files written in the pre-v1 layout
var ErrLegacyModel = errors.New("legacy v0.x model format")

// ConceptInfo describes one concept of a CDB
type ConceptInfo struct {
	CUI         string   `json:"cui"`
	PrettyName  string   `json:"pretty_name"`
	Names       []string `json:"names"`
	TypeIDs     []string `json:"type_ids"`
	Description string   `json:"description"`
	CountTrain  int      `json:"count_train"`
}

// NameStats counts training feedback for one (concept, name) link
type NameStats struct {
	Positive int `json:"positive"`
	Negative int `json:"negative"`
}

// accuracy scores a link from its training feedback, 1 when untrained
func (s *NameStats) accuracy() float64 {
	if s == nil {
		return 1
	}
	return float64(s.Positive+1) / float64(s.Positive+s.Negative+1)
}

// CDB is a concept database: concepts, their names and training state.
// It is safe for concurrent use.
type CDB struct {
	mu          sync.RWMutex
	config      Config
	concepts    map[string]*ConceptInfo
	name2cuis   map[string][]string
	typeID2Name map[string]string
	pt2ch       map[string][]string
	training    map[string]map[string]*NameStats
}

type cdbFile struct {
	FormatVersion *int                             `json:"format_version"`
	Config        *Config                          `json:"config,omitempty"`
	Concepts      map[string]*ConceptInfo          `json:"concepts"`
	TypeID2Name   map[string]string                `json:"type_id2name"`
	PT2CH         map[string][]string              `json:"pt2ch"`
	Training      map[string]map[string]*NameStats `json:"training"`
}

// NewCDB returns an empty concept database
func NewCDB(cfg Config) *CDB {
	return &CDB{
		config:      cfg,
		concepts:    map[string]*ConceptInfo{},
		name2cuis:   map[string][]string{},
		typeID2Name: map[string]string{},
		pt2ch:       map[string][]string{},
		training:    map[string]map[string]*NameStats{},
	}
}

// LoadCDB reads a concept database file
func LoadCDB(path string) (*CDB, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cdb %s: %w", path, err)
	}

	var f cdbFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse cdb %s: %w", path, err)
	}
	if f.FormatVersion == nil {
		return nil, ErrLegacyModel
	}
	if *f.FormatVersion > FormatVersion {
		return nil, fmt.Errorf("cdb %s has unsupported format version %d", path, *f.FormatVersion)
	}

	cfg := DefaultConfig()
	if f.Config != nil {
		cfg = *f.Config
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("cdb %s has an invalid config: %w", path, err)
		}
	}
	cdb := NewCDB(cfg)
	cuis := make([]string, 0, len(f.Concepts))
	for cui := range f.Concepts {
		cuis = append(cuis, cui)
	}
	sort.Strings(cuis)
	for _, cui := range cuis {
		c := f.Concepts[cui]
		if c == nil {
			continue
		}
		c.CUI = cui
		cdb.concepts[cui] = c
		for _, name := range c.Names {
			cdb.name2cuis[name] = appendUnique(cdb.name2cuis[name], cui)
		}
	}
	if f.TypeID2Name != nil {
		cdb.typeID2Name = f.TypeID2Name
	}
	if f.PT2CH != nil {
		cdb.pt2ch = f.PT2CH
	}
	if f.Training != nil {
		cdb.training = f.Training
	}
	return cdb, nil
}

// Save writes the database to path, replacing any existing file
func (c *CDB) Save(path string) error {
	c.mu.RLock()
	version := FormatVersion
	cfg := c.config
	data, err := json.Marshal(cdbFile{
		FormatVersion: &version,
		Config:        &cfg,
		Concepts:      c.concepts,
		TypeID2Name:   c.typeID2Name,
		PT2CH:         c.pt2ch,
		Training:      c.training,
	})
	c.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to encode cdb: %w", err)
	}
	return writeFileAtomic(path, data)
}

// Config returns the linking configuration
func (c *CDB) Config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config
}

// SetConfig replaces the linking configuration
func (c *CDB) SetConfig(cfg Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config = cfg
}

// AddName links a surface form to a concept, creating the concept if needed
func (c *CDB) AddName(cui, name, prettyName string, typeIDs ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addNameLocked(cui, PrepareName(name, c.config.Lowercase), prettyName, typeIDs)
}

func (c *CDB) addNameLocked(cui, key, prettyName string, typeIDs []string) {
	concept, ok := c.concepts[cui]
	if !ok {
		concept = &ConceptInfo{CUI: cui}
		c.concepts[cui] = concept
	}
	if concept.PrettyName == "" {
		concept.PrettyName = prettyName
	}
	for _, t := range typeIDs {
		concept.TypeIDs = appendUnique(concept.TypeIDs, t)
	}
	if key == "" {
		return
	}
	concept.Names = appendUnique(concept.Names, key)
	c.name2cuis[key] = appendUnique(c.name2cuis[key], cui)
}

// SetTypeName names a semantic type id
func (c *CDB) SetTypeName(typeID, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.typeID2Name[typeID] = name
}

// TypeName returns the name of a semantic type id
func (c *CDB) TypeName(typeID string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.typeID2Name[typeID]
}

// SetDescription sets the description of an existing concept
func (c *CDB) SetDescription(cui, desc string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if concept, ok := c.concepts[cui]; ok {
		concept.Description = desc
	}
}

// AddChild records parent as a direct ancestor of child
func (c *CDB) AddChild(parent, child string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pt2ch[parent] = appendUnique(c.pt2ch[parent], child)
}

// Concept returns a copy of the concept
func (c *CDB) Concept(cui string) (ConceptInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	concept, ok := c.concepts[cui]
	if !ok {
		return ConceptInfo{}, false
	}
	return copyConcept(concept), true
}

// Concepts returns copies of every concept ordered by CUI
func (c *CDB) Concepts() []ConceptInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ConceptInfo, 0, len(c.concepts))
	for _, concept := range c.concepts {
		out = append(out, copyConcept(concept))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CUI < out[j].CUI })
	return out
}

// Len returns the number of concepts
func (c *CDB) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.concepts)
}

// CUIsForName returns the concepts a prepared name links to
func (c *CDB) CUIsForName(key string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.name2cuis[key]...)
}

// Children returns the direct children of a concept
func (c *CDB) Children(cui string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.pt2ch[cui]...)
}

// Parents returns the direct parents of a concept, sorted
func (c *CDB) Parents(cui string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var parents []string
	for parent, children := range c.pt2ch {
		for _, ch := range children {
			if ch == cui {
				parents = append(parents, parent)
				break
			}
		}
	}
	sort.Strings(parents)
	return parents
}

// Roots returns the concepts of the hierarchy without parents, sorted
func (c *CDB) Roots() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	child := map[string]bool{}
	for _, children := range c.pt2ch {
		for _, ch := range children {
			child[ch] = true
		}
	}
	var roots []string
	for parent := range c.pt2ch {
		if !child[parent] {
			roots = append(roots, parent)
		}
	}
	sort.Strings(roots)
	return roots
}

// Descendants returns every concept reachable from cui through pt2ch,
// excluding cui itself, in breadth-first order.
func (c *CDB) Descendants(cui string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	seen := map[string]bool{cui: true}
	var out []string
	queue := []string{cui}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		for _, ch := range c.pt2ch[next] {
			if seen[ch] {
				continue
			}
			seen[ch] = true
			out = append(out, ch)
			queue = append(queue, ch)
		}
	}
	return out
}

// HasPT2CH reports whether the database carries a concept hierarchy
func (c *CDB) HasPT2CH() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.pt2ch) > 0
}

// Stats returns the training feedback for a link
func (c *CDB) Stats(cui, key string) NameStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if s := c.training[cui][key]; s != nil {
		return *s
	}
	return NameStats{}
}

func (c *CDB) statsLocked(cui, key string) *NameStats {
	byName, ok := c.training[cui]
	if !ok {
		byName = map[string]*NameStats{}
		c.training[cui] = byName
	}
	s, ok := byName[key]
	if !ok {
		s = &NameStats{}
		byName[key] = s
	}
	return s
}

func (c *CDB) accuracyLocked(cui, key string) float64 {
	return c.training[cui][key].accuracy()
}

func (c *CDB) unlinkLocked(cui, key string) {
	if concept, ok := c.concepts[cui]; ok {
		concept.Names = remove(concept.Names, key)
	}
	cuis := remove(c.name2cuis[key], cui)
	if len(cuis) == 0 {
		delete(c.name2cuis, key)
	} else {
		c.name2cuis[key] = cuis
	}
	if byName, ok := c.training[cui]; ok {
		delete(byName, key)
	}
}

func copyConcept(c *ConceptInfo) ConceptInfo {
	out := *c
	out.Names = append([]string(nil), c.Names...)
	out.TypeIDs = append([]string(nil), c.TypeIDs...)
	return out
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

func remove(list []string, v string) []string {
	out := list[:0]
	for _, existing := range list {
		if existing != v {
			out = append(out, existing)
		}
	}
	return out
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
