package nlp

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCDB() *CDB {
	cdb := NewCDB(DefaultConfig())
	cdb.AddName("C01", "heart failure", "Heart failure", "T047")
	cdb.AddName("C02", "failure", "Failure", "T033")
	cdb.AddName("C03", "aspirin", "Aspirin", "T121")
	cdb.AddName("C04", "cold", "Common cold", "T047")
	cdb.AddName("C05", "cold", "Cold temperature", "T070")
	cdb.AddChild("C10", "C01")
	cdb.AddChild("C01", "C11")
	cdb.SetTypeName("T047", "Disease or Syndrome")
	return cdb
}

func TestPrepareName(t *testing.T) {
	assert.Equal(t, "heart failure", PrepareName("Heart-Failure ", true))
	assert.Equal(t, "Heart failure", PrepareName("Heart, failure", false))
	assert.Equal(t, "", PrepareName(" - ", true))
}

func TestAnnotateLongestMatch(t *testing.T) {
	cat := NewCAT(testCDB(), nil, nil)
	text := "Patient with Heart Failure given aspirin."

	spans := cat.Annotate(text)
	require.Len(t, spans, 3)

	assert.Equal(t, "C01", spans[0].CUI)
	assert.Equal(t, "Heart Failure", spans[0].Text)
	assert.Equal(t, 13, spans[0].Start)
	assert.Equal(t, 26, spans[0].End)
	assert.Equal(t, []string{"T047"}, spans[0].TypeIDs)

	// "failure" is linked again from its own token, overlapping the first span
	assert.Equal(t, "C02", spans[1].CUI)
	assert.Equal(t, 19, spans[1].Start)

	assert.Equal(t, "C03", spans[2].CUI)
	assert.Equal(t, "aspirin", text[spans[2].Start:spans[2].End])
}

func TestTrainingChangesInference(t *testing.T) {
	cat := NewCAT(testCDB(), nil, nil)

	spans := cat.Annotate("has a cold")
	require.Len(t, spans, 1)
	assert.Equal(t, "C04", spans[0].CUI, "ties resolve to the smallest CUI")

	cat.TrainPositive("C05", "cold")
	cat.TrainNegative("C04", "cold")
	spans = cat.Annotate("has a cold")
	require.Len(t, spans, 1)
	assert.Equal(t, "C05", spans[0].CUI)

	cfg := cat.CDB.Config()
	cfg.MinAccuracy = 0.6
	cat.CDB.SetConfig(cfg)
	cat.TrainNegative("C03", "aspirin")
	assert.Empty(t, cat.Annotate("aspirin"))
}

func TestTrainPositiveAddsNewName(t *testing.T) {
	cat := NewCAT(testCDB(), nil, nil)
	assert.Empty(t, cat.LookupName("cardiac failure"))

	cat.TrainPositive("C01", "Cardiac failure")

	assert.Equal(t, []string{"C01"}, cat.LookupName("cardiac failure"))
	c, ok := cat.CDB.Concept("C01")
	require.True(t, ok)
	assert.Equal(t, 1, c.CountTrain)
	assert.Equal(t, NameStats{Positive: 1}, cat.CDB.Stats("C01", "cardiac failure"))
}

func TestUnlinkName(t *testing.T) {
	cat := NewCAT(testCDB(), nil, nil)
	cat.UnlinkName("C04", "cold")

	assert.Equal(t, []string{"C05"}, cat.LookupName("cold"))
	c, _ := cat.CDB.Concept("C04")
	assert.Empty(t, c.Names)
}

func TestCommonWordsNeedPositiveTraining(t *testing.T) {
	cdb := testCDB()
	cfg := cdb.Config()
	cfg.CommonWordFrequency = 100
	cdb.SetConfig(cfg)
	cat := NewCAT(cdb, NewVocab(map[string]int{"failure": 500}), nil)

	spans := cat.Annotate("failure")
	assert.Empty(t, spans)

	cat.TrainPositive("C02", "failure")
	spans = cat.Annotate("failure")
	require.Len(t, spans, 1)
	assert.Equal(t, "C02", spans[0].CUI)
}

func TestHierarchy(t *testing.T) {
	cdb := testCDB()
	assert.Equal(t, []string{"C01", "C11"}, cdb.Descendants("C10"))
	assert.Equal(t, []string{"C10"}, cdb.Parents("C01"))
	assert.Equal(t, []string{"C11"}, cdb.Children("C01"))
	assert.True(t, cdb.HasPT2CH())
	assert.Equal(t, "Disease or Syndrome", cdb.TypeName("T047"))
}

func TestCDBSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cdb.dat")
	cdb := testCDB()
	NewCAT(cdb, nil, nil).TrainNegative("C02", "failure")
	require.NoError(t, cdb.Save(path))

	loaded, err := LoadCDB(path)
	require.NoError(t, err)

	if diff := cmp.Diff(cdb.Concepts(), loaded.Concepts()); diff != "" {
		t.Errorf("concepts mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"C04", "C05"}, loaded.CUIsForName("cold"))
	assert.Equal(t, NameStats{Negative: 1}, loaded.Stats("C02", "failure"))
	assert.Equal(t, []string{"C01", "C11"}, loaded.Descendants("C10"))
}

func TestLoadLegacyCDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.dat")
	require.NoError(t, os.WriteFile(path, []byte(`{"cui2names": {}}`), 0o600))

	_, err := LoadCDB(path)
	assert.True(t, errors.Is(err, ErrLegacyModel))
}

func TestLoadCDBInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cdb.dat")
	require.NoError(t, os.WriteFile(path,
		[]byte(`{"format_version": 1, "config": {"min_accuracy": 0.2, "max_name_tokens": 0}}`), 0o600))

	_, err := LoadCDB(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_name_tokens")
}

func TestConfigParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "medcat.yml")
	require.NoError(t, os.WriteFile(path, []byte("min_accuracy: 0.5\nlowercase: false\n"), 0o600))

	cfg := DefaultConfig()
	require.NoError(t, cfg.ParseConfigFile(path))
	assert.Equal(t, 0.5, cfg.MinAccuracy)
	assert.False(t, cfg.Lowercase)
	assert.Equal(t, DefaultConfig().MaxNameTokens, cfg.MaxNameTokens)

	require.NoError(t, os.WriteFile(path, []byte(`{"max_name_tokens": 0}`), 0o600))
	assert.Error(t, cfg.ParseConfigFile(path))
}

func TestMetaCATPredict(t *testing.T) {
	m := &MetaCAT{
		Name:    "Presence",
		Values:  []string{"Negated", "Hypothetical"},
		Default: "Affirmed",
		Cues:    map[string][]string{"Negated": {"no", "denies"}, "Hypothetical": {"risk of"}},
		Window:  3,
	}

	text := "Patient denies chest pain"
	assert.Equal(t, "Negated", m.Predict(text, 15, 25).Value)

	text = "at risk of stroke"
	assert.Equal(t, "Hypothetical", m.Predict(text, 11, 17).Value)

	text = "Chest pain today"
	p := m.Predict(text, 0, 10)
	assert.Equal(t, "Affirmed", p.Value)
	assert.Equal(t, "Presence", p.Name)
}

func TestMetaCATPredictSpanAtStart(t *testing.T) {
	m := &MetaCAT{
		Name:    "Presence",
		Values:  []string{"True", "False"},
		Default: "True",
		Cues:    map[string][]string{"False": {"no"}},
		Window:  3,
	}

	text := "fever was reported yesterday and later the patient said no"
	assert.Equal(t, "True", m.Predict(text, 0, 5).Value)

	text = "no fever was reported"
	assert.Equal(t, "False", m.Predict(text, 3, 8).Value)
}

func TestModelPackRoundTrip(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "pack.zip")
	meta := &MetaCAT{Name: "Status", Values: []string{"Other"}, Default: "Affirmed", Window: 3,
		Cues: map[string][]string{"Other": {"family"}}}

	require.NoError(t, WriteModelPack(zipPath, testCDB(), NewVocab(map[string]int{"the": 10}), []*MetaCAT{meta}))

	mp, err := LoadModelPack(zipPath)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "pack"), mp.Dir)
	assert.Equal(t, 5, mp.CDB.Len())
	assert.Equal(t, 10, mp.Vocab.Frequency("The"))
	require.Len(t, mp.MetaCATs, 1)
	assert.Equal(t, filepath.Join(dir, "pack", "meta_Status"), mp.MetaCATDirs["Status"])

	spans := mp.CAT().Annotate("family history of heart failure")
	require.NotEmpty(t, spans)
	assert.Equal(t, "Other", spans[0].MetaAnns["Status"].Value)
}
