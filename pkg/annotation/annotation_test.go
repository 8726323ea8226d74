package annotation

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/db/dbtest"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/media"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/modelcache"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/nlp"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server/store"
	storegorm "github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server/store/gorm"
)

type fixture struct {
	db      *gorm.DB
	st      *storegorm.Store
	dir     string
	svc     *Service
	user    *model.User
	project *model.Project
	docs    []model.Document
}

func testCDB() *nlp.CDB {
	cdb := nlp.NewCDB(nlp.DefaultConfig())
	cdb.AddName("C01", "heart failure", "Heart failure", "T047")
	cdb.AddName("C11", "systolic heart failure", "Systolic heart failure", "T047")
	cdb.AddName("C02", "aspirin", "Aspirin", "T121")
	cdb.AddName("C04", "cold", "Common cold", "T047")
	cdb.AddName("C05", "cold", "Cold temperature", "T070")
	cdb.AddChild("C01", "C11")
	cdb.SetTypeName("T047", "Disease or Syndrome")
	return cdb
}

func newFixture(t *testing.T, texts ...string) *fixture {
	t.Helper()
	gdb := dbtest.New(t)
	dir := t.TempDir()
	st := storegorm.New(gdb)

	user := dbtest.SeedUser(t, gdb, "annotator", false)
	ds, docs := dbtest.SeedDataset(t, gdb, "ds", texts...)
	cdb := dbtest.SeedConceptDB(t, gdb, dir, "cdb", testCDB())
	vocab := dbtest.SeedVocab(t, gdb, dir, "vocab", nlp.NewVocab(nil))
	p := dbtest.SeedProject(t, gdb, "project", ds.ID, cdb.ID, vocab.ID)
	require.NoError(t, st.Projects().SetMembers(p.ID, []uint{user.ID}))

	cache, err := modelcache.New(modelcache.Options{
		Store:     st,
		MaxModels: 2,
		MediaRoot: media.Root(dir),
		Metrics:   modelcache.NewMetrics(prometheus.NewRegistry()),
	})
	require.NoError(t, err)

	return &fixture{
		db:      gdb,
		st:      st,
		dir:     dir,
		svc:     NewService(st, cache, media.Root(dir), nil),
		user:    user,
		project: p,
		docs:    docs,
	}
}

func (f *fixture) annotations(t *testing.T, docID uint) []model.AnnotatedEntity {
	t.Helper()
	annos, err := f.st.Annotations().ListForDocument(f.project.ID, docID)
	require.NoError(t, err)
	return annos
}

func labels(annos []model.AnnotatedEntity) []string {
	out := make([]string, len(annos))
	for i, a := range annos {
		out[i] = a.Entity.Label
	}
	return out
}

func TestSelectSpans(t *testing.T) {
	spans := []nlp.Span{
		{Start: 0, End: 22, CUI: "C11", Acc: 0.5},
		{Start: 9, End: 22, CUI: "C01", Acc: 1},
		{Start: 30, End: 34, CUI: "C04", Acc: 0.9},
		{Start: 30, End: 34, CUI: "C05", Acc: 1},
		{Start: 40, End: 47, CUI: "C02", Acc: 1},
	}

	t.Run("longest then most accurate wins", func(t *testing.T) {
		got := SelectSpans(spans, nil, nil)
		require.Len(t, got, 3)
		assert.Equal(t, "C11", got[0].CUI)
		assert.Equal(t, "C05", got[1].CUI)
		assert.Equal(t, "C02", got[2].CUI)
	})

	t.Run("filter applies before overlaps", func(t *testing.T) {
		got := SelectSpans(spans, nil, []string{"C01", "C04"})
		require.Len(t, got, 2)
		assert.Equal(t, "C01", got[0].CUI)
		assert.Equal(t, "C04", got[1].CUI)
	})

	t.Run("stored annotations win", func(t *testing.T) {
		stored := []model.AnnotatedEntity{{StartInd: 41, EndInd: 43}}
		got := SelectSpans(spans, stored, nil)
		require.Len(t, got, 2)
		assert.Equal(t, "C05", got[1].CUI)
	})

	t.Run("equal candidates keep the earliest", func(t *testing.T) {
		got := SelectSpans([]nlp.Span{
			{Start: 5, End: 9, CUI: "B", Acc: 1},
			{Start: 3, End: 7, CUI: "A", Acc: 1},
		}, nil, nil)
		require.Len(t, got, 1)
		assert.Equal(t, "A", got[0].CUI)
	})
}

func TestProjectCUIFilter(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "cuis.json"), []byte(`["C09", " C01 "]`), 0o600))

	p := &model.Project{CUIs: " C02, ,C01,"}
	got, err := f.svc.ProjectCUIFilter(p)
	require.NoError(t, err)
	assert.Equal(t, []string{"C01", "C02"}, got)

	p.CUIsFile = "cuis.json"
	got, err = f.svc.ProjectCUIFilter(p)
	require.NoError(t, err)
	assert.Equal(t, []string{"C01", "C02", "C09"}, got)

	got, err = f.svc.ProjectCUIFilter(&model.Project{})
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = f.svc.ProjectCUIFilter(&model.Project{CUIsFile: "missing.json"})
	assert.Error(t, err)
}

func TestExpandConceptFilter(t *testing.T) {
	cdb := testCDB()
	cdb.AddChild("C11", "C12")
	assert.Equal(t, []string{"C01", "C11", "C12"}, ExpandConceptFilter(cdb, []string{"C01"}))
	assert.Equal(t, []string{"C02"}, ExpandConceptFilter(cdb, []string{"C02"}))
}

func TestPrepareDocuments(t *testing.T) {
	f := newFixture(t, "Systolic heart failure, given aspirin for a cold.")
	ctx := context.Background()
	doc := f.docs[0]

	require.NoError(t, f.svc.PrepareDocuments(ctx, f.user.ID, f.project.ID, []uint{doc.ID}, PrepareOptions{}))

	annos := f.annotations(t, doc.ID)
	assert.Equal(t, []string{"C11", "C02", "C04"}, labels(annos))
	assert.Equal(t, "Systolic heart failure", annos[0].Value)
	for _, a := range annos {
		assert.False(t, a.Validated)
		assert.Equal(t, f.user.ID, a.UserID)
	}

	prepared, err := f.st.Projects().PreparedDocumentIDs(f.project.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{doc.ID}, prepared)

	concept, err := f.st.Concepts().GetByCUI(*f.project.ConceptDBID, "C11")
	require.NoError(t, err)
	assert.Equal(t, "Systolic heart failure", concept.PrettyName)
	assert.Equal(t, "Disease or Syndrome", concept.SemanticType)

	t.Run("already annotated documents are left alone", func(t *testing.T) {
		annos[1].Comment = "checked"
		require.NoError(t, f.st.Annotations().Update(&annos[1]))
		require.NoError(t, f.svc.PrepareDocuments(ctx, f.user.ID, f.project.ID, []uint{doc.ID}, PrepareOptions{}))
		again := f.annotations(t, doc.ID)
		require.Len(t, again, 3)
		assert.Equal(t, annos[1].ID, again[1].ID)
	})

	t.Run("update keeps validated annotations", func(t *testing.T) {
		annos[0].Validated = true
		annos[0].Correct = true
		require.NoError(t, f.st.Annotations().Update(&annos[0]))

		require.NoError(t, f.svc.PrepareDocuments(ctx, f.user.ID, f.project.ID, []uint{doc.ID}, PrepareOptions{Update: true}))
		again := f.annotations(t, doc.ID)
		assert.Equal(t, []string{"C11", "C02", "C04"}, labels(again))
		assert.Equal(t, annos[0].ID, again[0].ID)
		assert.Empty(t, again[1].Comment, "unvalidated annotations are recreated")
	})

	t.Run("force removes everything", func(t *testing.T) {
		require.NoError(t, f.svc.PrepareDocuments(ctx, f.user.ID, f.project.ID, []uint{doc.ID}, PrepareOptions{Force: true}))
		again := f.annotations(t, doc.ID)
		require.Len(t, again, 3)
		assert.False(t, again[0].Validated)
	})
}

func TestPrepareDocumentsRespectsFilterAndValidationSetting(t *testing.T) {
	f := newFixture(t, "heart failure and aspirin")
	f.project.CUIs = "C02"
	f.project.RequireEntityValidation = false
	require.NoError(t, f.st.Projects().Update(f.project))

	require.NoError(t, f.svc.PrepareDocuments(context.Background(), f.user.ID, f.project.ID, []uint{f.docs[0].ID}, PrepareOptions{}))

	annos := f.annotations(t, f.docs[0].ID)
	require.Len(t, annos, 1)
	assert.Equal(t, "C02", annos[0].Entity.Label)
	assert.True(t, annos[0].Validated)
	assert.True(t, annos[0].Correct)
}

func TestPrepareDocumentsRespectsTypeFilter(t *testing.T) {
	f := newFixture(t, "heart failure and aspirin")
	f.project.TUIs = " T121 ,"
	require.NoError(t, f.st.Projects().Update(f.project))

	require.NoError(t, f.svc.PrepareDocuments(context.Background(), f.user.ID, f.project.ID, []uint{f.docs[0].ID}, PrepareOptions{}))

	assert.Equal(t, []string{"C02"}, labels(f.annotations(t, f.docs[0].ID)))
	assert.Equal(t, []string{"T121"}, ProjectTUIFilter(f.project))
	assert.Empty(t, ProjectTUIFilter(&model.Project{}))
}

func TestPrepareDocumentsRejectsForeignDocuments(t *testing.T) {
	f := newFixture(t, "aspirin")
	_, other := dbtest.SeedDataset(t, f.db, "other", "aspirin")

	err := f.svc.PrepareDocuments(context.Background(), f.user.ID, f.project.ID, []uint{other[0].ID}, PrepareOptions{})
	var verr *model.ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestPredictedMetaAnnotations(t *testing.T) {
	model1 := &model.MetaCATModel{ID: 7, Name: "presence_model"}
	tasks := []model.MetaTask{
		{ID: 1, Name: "Presence", PredictionModel: model1, Values: []model.MetaTaskValue{{ID: 10, Name: "Affirmed"}, {ID: 11, Name: "Negated"}}},
		{ID: 2, Name: "Temporality", Values: []model.MetaTaskValue{{ID: 20, Name: "Past"}}},
		{ID: 3, Name: "Experiencer", Values: []model.MetaTaskValue{{ID: 30, Name: "Patient"}}},
	}
	spans := []nlp.Span{
		{CUI: "C01", MetaAnns: map[string]nlp.MetaPrediction{
			"presence_model": {Value: "Negated", Confidence: 0.9},
			"Temporality":    {Value: "Past", Confidence: 0.5},
			"Experiencer":    {Value: "Family", Confidence: 0.9},
		}},
		{CUI: "C02"},
	}
	annos := []model.AnnotatedEntity{{ID: 100}, {ID: 101}}

	metas := predictedMetaAnnotations(tasks, spans, annos)
	require.Len(t, metas, 2)
	assert.Equal(t, uint(100), metas[0].AnnotatedEntityID)
	assert.Equal(t, uint(1), metas[0].MetaTaskID)
	assert.Equal(t, uint(11), *metas[0].PredictedMetaTaskValueID)
	assert.Equal(t, 0.9, metas[0].Acc)
	assert.False(t, metas[0].Validated)
	assert.Equal(t, uint(20), *metas[1].MetaTaskValueID)
}

func TestCreateAnnotation(t *testing.T) {
	f := newFixture(t, "cold hands, cold feet")
	ctx := context.Background()

	anno, err := f.svc.CreateAnnotation(ctx, f.user.ID, NewAnnotation{
		ProjectID: f.project.ID, DocumentID: f.docs[0].ID,
		CUI: "C05", SourceValue: "cold", SelectionOccurrence: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, 12, anno.StartInd)
	assert.Equal(t, 16, anno.EndInd)
	assert.True(t, anno.Validated)
	assert.True(t, anno.Correct)
	assert.True(t, anno.ManuallyCreated)

	_, err = f.svc.CreateAnnotation(ctx, f.user.ID, NewAnnotation{
		ProjectID: f.project.ID, DocumentID: f.docs[0].ID,
		CUI: "C05", SourceValue: "cold", SelectionOccurrence: 2,
	})
	var verr *model.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "selection_occur_idx", verr.Field)
}

func TestSubmitDocumentTrainsModel(t *testing.T) {
	f := newFixture(t, "cardiac failure with a cold")
	ctx := context.Background()
	doc := f.docs[0]

	require.NoError(t, f.svc.PrepareDocuments(ctx, f.user.ID, f.project.ID, []uint{doc.ID}, PrepareOptions{}))
	annos := f.annotations(t, doc.ID)
	require.Equal(t, []string{"C04"}, labels(annos))

	// the annotator rejects the cold link and adds the missing one
	annos[0].Validated = true
	annos[0].Killed = true
	require.NoError(t, f.st.Annotations().Update(&annos[0]))
	_, err := f.svc.CreateAnnotation(ctx, f.user.ID, NewAnnotation{
		ProjectID: f.project.ID, DocumentID: doc.ID, CUI: "C01", SourceValue: "cardiac failure",
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.SubmitDocument(ctx, f.project.ID, doc.ID))

	validated, err := f.st.Projects().ValidatedDocumentIDs(f.project.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{doc.ID}, validated)

	cat, err := f.svc.Models().GetMedCAT(ctx, f.project)
	require.NoError(t, err)
	spans := cat.Annotate("cardiac failure with a cold")
	require.Len(t, spans, 2)
	assert.Equal(t, "C01", spans[0].CUI)
	assert.Equal(t, "C05", spans[1].CUI)

	t.Run("save models persists training", func(t *testing.T) {
		require.NoError(t, f.svc.SaveModels(ctx, f.project.ID))
		cdbRow, err := f.st.ConceptDBs().Get(*f.project.ConceptDBID)
		require.NoError(t, err)
		saved, err := nlp.LoadCDB(cdbRow.CDBFile)
		require.NoError(t, err)
		assert.Equal(t, []string{"C01"}, saved.CUIsForName("cardiac failure"))
		assert.Equal(t, []string{"C05"}, saved.CUIsForName("cold"))
	})
}

func TestSubmitDocumentSkipsTrainingWhenDisabled(t *testing.T) {
	f := newFixture(t, "cardiac failure")
	ctx := context.Background()

	cdbRow, err := f.st.ConceptDBs().Get(*f.project.ConceptDBID)
	require.NoError(t, err)
	cdbRow.UseForTraining = false
	require.NoError(t, f.st.ConceptDBs().Update(cdbRow))

	_, err = f.svc.CreateAnnotation(ctx, f.user.ID, NewAnnotation{
		ProjectID: f.project.ID, DocumentID: f.docs[0].ID, CUI: "C01", SourceValue: "cardiac failure",
	})
	require.NoError(t, err)
	require.NoError(t, f.svc.SubmitDocument(ctx, f.project.ID, f.docs[0].ID))

	cat, err := f.svc.Models().GetMedCAT(ctx, f.project)
	require.NoError(t, err)
	assert.Empty(t, cat.LookupName("cardiac failure"))
}

func TestTrainMedCATFeedback(t *testing.T) {
	const text = "patient with heart failure"

	tests := []struct {
		name      string
		mark      func(a *model.AnnotatedEntity)
		noTrain   bool
		wantStats nlp.NameStats
		wantCUIs  []string
		wantAcc   float64
	}{
		{
			name:      "correct",
			mark:      func(a *model.AnnotatedEntity) { a.Correct = true },
			wantStats: nlp.NameStats{Positive: 1},
			wantCUIs:  []string{"C01"},
			wantAcc:   1,
		},
		{
			name:      "alternative",
			mark:      func(a *model.AnnotatedEntity) { a.Correct, a.Alternative = false, true },
			wantStats: nlp.NameStats{Positive: 1},
			wantCUIs:  []string{"C01"},
			wantAcc:   1,
		},
		{
			name:      "deleted",
			mark:      func(a *model.AnnotatedEntity) { a.Correct, a.Deleted = false, true },
			wantStats: nlp.NameStats{Negative: 1},
			wantCUIs:  []string{"C01"},
			wantAcc:   0.5,
		},
		{
			name:     "killed",
			mark:     func(a *model.AnnotatedEntity) { a.Correct, a.Killed = false, true },
			wantCUIs: []string{},
		},
		{
			name:     "concept db not used for training",
			mark:     func(a *model.AnnotatedEntity) { a.Correct, a.Deleted = false, true },
			noTrain:  true,
			wantCUIs: []string{"C01"},
			wantAcc:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, text)
			ctx := context.Background()
			doc := f.docs[0]

			if tt.noTrain {
				cdbRow, err := f.st.ConceptDBs().Get(*f.project.ConceptDBID)
				require.NoError(t, err)
				cdbRow.UseForTraining = false
				require.NoError(t, f.st.ConceptDBs().Update(cdbRow))
			}

			require.NoError(t, f.svc.PrepareDocuments(ctx, f.user.ID, f.project.ID, []uint{doc.ID}, PrepareOptions{}))
			annos := f.annotations(t, doc.ID)
			require.Equal(t, []string{"C01"}, labels(annos))
			annos[0].Validated = true
			tt.mark(&annos[0])
			require.NoError(t, f.st.Annotations().Update(&annos[0]))

			require.NoError(t, f.svc.SubmitDocument(ctx, f.project.ID, doc.ID))

			cat, err := f.svc.Models().GetMedCAT(ctx, f.project)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStats, cat.CDB.Stats("C01", "heart failure"))
			assert.ElementsMatch(t, tt.wantCUIs, cat.CDB.CUIsForName("heart failure"))

			spans := cat.Annotate(text)
			if len(tt.wantCUIs) == 0 {
				assert.Empty(t, spans)
				return
			}
			require.Len(t, spans, 1)
			assert.Equal(t, tt.wantAcc, spans[0].Acc)
		})
	}
}

func TestAddConcept(t *testing.T) {
	f := newFixture(t, "patient has migraine today")
	ctx := context.Background()
	f.project.AddNewEntities = true
	f.project.RestrictConceptLookup = true
	f.project.CUIs = "C01"
	require.NoError(t, f.st.Projects().Update(f.project))

	req := NewConcept{
		NewAnnotation: NewAnnotation{
			ProjectID: f.project.ID, DocumentID: f.docs[0].ID, CUI: "C20", SourceValue: "migraine",
		},
		Name:        "Migraine headache",
		TypeIDs:     []string{"T047"},
		Description: "recurrent headache",
	}
	anno, err := f.svc.AddConcept(ctx, f.user.ID, req)
	require.NoError(t, err)
	assert.Equal(t, 12, anno.StartInd)

	cat, err := f.svc.Models().GetMedCAT(ctx, f.project)
	require.NoError(t, err)
	assert.Equal(t, []string{"C20"}, cat.LookupName("migraine"))
	assert.Equal(t, []string{"C20"}, cat.LookupName("migraine headache"))

	concept, err := f.st.Concepts().GetByCUI(*f.project.ConceptDBID, "C20")
	require.NoError(t, err)
	assert.Equal(t, "recurrent headache", concept.Desc)

	p, err := f.st.Projects().Get(f.project.ID)
	require.NoError(t, err)
	assert.Equal(t, "C01,C20", p.CUIs)

	_, err = f.svc.AddConcept(ctx, f.user.ID, req)
	var verr *model.ValidationError
	assert.True(t, errors.As(err, &verr), "existing cuis cannot be added again")
}

func TestAddConceptNeedsProjectSetting(t *testing.T) {
	f := newFixture(t, "migraine")
	_, err := f.svc.AddConcept(context.Background(), f.user.ID, NewConcept{
		NewAnnotation: NewAnnotation{ProjectID: f.project.ID, DocumentID: f.docs[0].ID, CUI: "C20", SourceValue: "migraine"},
		Name:          "Migraine",
	})
	var verr *model.ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestUpdateMetaAnnotation(t *testing.T) {
	f := newFixture(t, "aspirin")
	ctx := context.Background()

	anno, err := f.svc.CreateAnnotation(ctx, f.user.ID, NewAnnotation{
		ProjectID: f.project.ID, DocumentID: f.docs[0].ID, CUI: "C02", SourceValue: "aspirin",
	})
	require.NoError(t, err)
	affirmed, err := f.st.MetaTaskValues().GetOrCreate("Affirmed")
	require.NoError(t, err)
	negated, err := f.st.MetaTaskValues().GetOrCreate("Negated")
	require.NoError(t, err)
	task := &model.MetaTask{Name: "Presence"}
	require.NoError(t, f.st.MetaTasks().Create(task))

	meta, err := f.svc.UpdateMetaAnnotation(ctx, f.project.ID, anno.ID, task.ID, affirmed.ID)
	require.NoError(t, err)
	assert.True(t, meta.Validated)

	updated, err := f.svc.UpdateMetaAnnotation(ctx, f.project.ID, anno.ID, task.ID, negated.ID)
	require.NoError(t, err)
	assert.Equal(t, meta.ID, updated.ID)

	metas, err := f.st.MetaAnnotations().ListForAnnotations([]uint{anno.ID})
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, negated.ID, *metas[0].MetaTaskValueID)

	_, err = f.svc.UpdateMetaAnnotation(ctx, f.project.ID+1, anno.ID, task.ID, negated.ID)
	assert.Error(t, err)
	_, err = f.svc.UpdateMetaAnnotation(ctx, f.project.ID, anno.ID, task.ID+1, negated.ID)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestAnnotateText(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.st.Entities().GetOrCreate("C02")
	require.NoError(t, err)
	_, err = f.st.Entities().GetOrCreate("C11")
	require.NoError(t, err)

	got, err := f.svc.AnnotateText(ctx, f.project.ID, "systolic heart failure, aspirin and a cold", nil)
	require.NoError(t, err)
	require.Len(t, got, 2, "only known entities are reported")
	assert.Equal(t, "systolic heart failure", got[0].Value)
	assert.Equal(t, "aspirin", got[1].Value)

	got, err = f.svc.AnnotateText(ctx, f.project.ID, "systolic heart failure, aspirin", []string{"C02"})
	require.NoError(t, err)
	require.Len(t, got, 1)

	annos, _, err := f.st.Annotations().List(store.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, annos)
}

func TestResubmitAll(t *testing.T) {
	f := newFixture(t, "cardiac failure")
	ctx := context.Background()

	_, err := f.svc.CreateAnnotation(ctx, f.user.ID, NewAnnotation{
		ProjectID: f.project.ID, DocumentID: f.docs[0].ID, CUI: "C01", SourceValue: "cardiac failure",
	})
	require.NoError(t, err)
	require.NoError(t, f.st.Projects().MarkValidated(f.project.ID, f.docs[0].ID))

	n, err := f.svc.ResubmitAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	cat, err := f.svc.Models().GetMedCAT(ctx, f.project)
	require.NoError(t, err)
	assert.Equal(t, []string{"C01"}, cat.LookupName("cardiac failure"))
}

func TestProjectProgress(t *testing.T) {
	f := newFixture(t, "a", "b")
	require.NoError(t, f.st.Projects().MarkValidated(f.project.ID, f.docs[1].ID))

	prog, err := f.svc.ProjectProgress(context.Background(), []uint{f.project.ID})
	require.NoError(t, err)
	assert.Equal(t, store.Progress{Validated: 1, Total: 2}, prog[f.project.ID])

	out, err := json.Marshal(prog[f.project.ID])
	require.NoError(t, err)
	assert.JSONEq(t, `{"validated_count":1,"dataset_count":2}`, string(out))
}
