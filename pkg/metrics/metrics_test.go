package metrics

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/annotation"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/db/dbtest"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/export"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/jobs"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/media"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/modelcache"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/nlp"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server/store"
	storegorm "github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server/store/gorm"
)

type fixture struct {
	st      *storegorm.Store
	root    media.Root
	svc     *Service
	runner  *jobs.Runner
	exports *export.Service
	cat     *nlp.CAT
	project *model.Project
}

func testCDB() *nlp.CDB {
	cdb := nlp.NewCDB(nlp.DefaultConfig())
	cdb.AddName("C01", "heart failure", "Heart failure", "T047")
	cdb.AddName("C02", "diabetes", "Diabetes mellitus", "T047")
	return cdb
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gdb := dbtest.New(t)
	st := storegorm.New(gdb)
	dir := t.TempDir()
	root := media.Root(dir)

	annotator := dbtest.SeedUser(t, gdb, "annotator", false)
	reviewer := dbtest.SeedUser(t, gdb, "reviewer", false)
	ds, docs := dbtest.SeedDataset(t, gdb, "ds",
		"Patient has heart failure.",
		"heart failure again and diabetes.")
	cdbRow := dbtest.SeedConceptDB(t, gdb, dir, "cdb", testCDB())
	vocab := dbtest.SeedVocab(t, gdb, dir, "vocab", nlp.NewVocab(nil))
	p := dbtest.SeedProject(t, gdb, "cardio", ds.ID, cdbRow.ID, vocab.ID)
	for _, d := range docs {
		require.NoError(t, st.Projects().MarkValidated(p.ID, d.ID))
	}

	entity := func(cui string) uint {
		e, err := st.Entities().GetOrCreate(cui)
		require.NoError(t, err)
		return e.ID
	}
	modified := time.Date(2024, 5, 2, 9, 15, 0, 0, time.UTC)
	annos := []model.AnnotatedEntity{
		{UserID: annotator.ID, ProjectID: p.ID, DocumentID: docs[0].ID, EntityID: entity("C01"),
			Value: "heart failure", StartInd: 12, EndInd: 25, Validated: true, Correct: true},
		{UserID: annotator.ID, ProjectID: p.ID, DocumentID: docs[1].ID, EntityID: entity("C01"),
			Value: "heart failure", StartInd: 0, EndInd: 13, Validated: true, Correct: true},
		{UserID: annotator.ID, ProjectID: p.ID, DocumentID: docs[1].ID, EntityID: entity("C03"),
			Value: "again", StartInd: 14, EndInd: 19, Validated: true, Alternative: true},
		{UserID: reviewer.ID, ProjectID: p.ID, DocumentID: docs[1].ID, EntityID: entity("C02"),
			Value: "and", StartInd: 20, EndInd: 23, Validated: true, Correct: false},
	}
	require.NoError(t, st.Annotations().CreateBatch(annos))
	require.NoError(t, gdb.Model(&model.AnnotatedEntity{}).Where("id = ?", annos[0].ID).
		UpdateColumn("last_modified", modified).Error)

	cache, err := modelcache.New(modelcache.Options{Store: st, MaxModels: 1, MediaRoot: root})
	require.NoError(t, err)
	annotations := annotation.NewService(st, cache, root, nil)
	exports := export.NewService(st, root, 0, nil)
	runner := jobs.New(st, jobs.Options{Queues: []string{jobs.QueueMetrics}})

	return &fixture{
		st:      st,
		root:    root,
		svc:     NewService(st, root, exports, annotations, runner, nil),
		runner:  runner,
		exports: exports,
		cat:     nlp.NewCAT(testCDB(), nil, nil),
		project: p,
	}
}

func (f *fixture) export(t *testing.T) *export.Export {
	t.Helper()
	exp, err := f.exports.RetrieveProjectData(context.Background(), []uint{f.project.ID},
		export.Options{WithText: true, WithDocName: true})
	require.NoError(t, err)
	return exp
}

func TestBuildReportWithoutModel(t *testing.T) {
	f := newFixture(t)
	r := BuildReport(f.export(t), nil, nil)

	assert.Equal(t, []UserStat{{User: "annotator", Count: 3}, {User: "reviewer", Count: 1}}, r.UserStats)
	assert.Nil(t, r.MetaAnnoSummary)

	require.Len(t, r.ConceptSummary, 2, "incorrect annotations are not summarised")
	c01 := r.ConceptSummary[0]
	assert.Equal(t, "C01", c01.CUI)
	assert.Equal(t, []string{"heart failure"}, c01.Values)
	assert.Equal(t, 2, c01.ConceptCount)
	assert.Equal(t, 1, c01.Variations)
	assert.Equal(t, 2.0, c01.CountVariationsRatio)
	assert.Empty(t, c01.ConceptName)
	assert.Nil(t, c01.TPs)
	assert.Equal(t, "C03", r.ConceptSummary[1].CUI, "alternative annotations count as correct")

	require.Len(t, r.AnnotationSummary, 4)
	first := r.AnnotationSummary[0]
	assert.Equal(t, "cardio", first["project"])
	assert.Equal(t, "doc0", first["document_name"])
	assert.Equal(t, "2024-05-02 09:15:00.000000", first["last_modified"])
	assert.Equal(t, missing, first["comment"])

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"meta_anno_summary":null`)
	assert.NotContains(t, string(data), `"cui_f1"`)
}

func TestBuildReportWithModel(t *testing.T) {
	f := newFixture(t)
	r := BuildReport(f.export(t), f.cat, nil)

	require.Len(t, r.ConceptSummary, 2)
	c01 := r.ConceptSummary[0]
	assert.Equal(t, "Heart failure", c01.ConceptName)
	require.NotNil(t, c01.TPs)
	assert.Equal(t, 2, *c01.TPs)
	assert.Equal(t, 0, *c01.FPs)
	assert.Equal(t, 0, *c01.FNs)
	assert.Equal(t, 1.0, *c01.F1)
	assert.Len(t, c01.TPExamples, 2)

	c03 := r.ConceptSummary[1]
	assert.Equal(t, 1, *c03.FNs)
	assert.Equal(t, 0.0, *c03.Recall)
	assert.Equal(t, []string{"again"}, c03.FNExamples)
	assert.Equal(t, "Heart failure", r.AnnotationSummary[0]["concept_name"])
}

func TestEvaluate(t *testing.T) {
	f := newFixture(t)
	exp := f.export(t)

	stats := Evaluate(exp, f.cat, nil)
	require.Contains(t, stats, "C02")
	assert.Equal(t, 1, stats["C02"].FP, "unannotated model links are false positives")
	assert.Equal(t, 0.0, stats["C02"].Precision())

	t.Run("project filter", func(t *testing.T) {
		stats := Evaluate(exp, f.cat, map[uint][]string{f.project.ID: {"C02"}})
		assert.NotContains(t, stats, "C01")
		assert.Equal(t, 1, stats["C02"].FP)
	})

	t.Run("cuis of the export", func(t *testing.T) {
		exp := f.export(t)
		exp.Projects[0].CUIs = "C01"
		stats := Evaluate(exp, f.cat, nil)
		assert.NotContains(t, stats, "C02")
		assert.Equal(t, 2, stats["C01"].TP)
	})
}

func TestCalculateMetricsJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pm, err := f.svc.Submit(ctx, []uint{f.project.ID}, "cardio report")
	require.NoError(t, err)
	assert.Equal(t, model.MetricsStatusQueued, pm.Status)
	assert.Equal(t, "cardio report", pm.ReportNameGenerated)
	assert.NotEmpty(t, pm.TaskID)

	_, _, err = f.svc.Load(ctx, pm.ID)
	var verr *model.ValidationError
	assert.ErrorAs(t, err, &verr, "queued reports cannot be loaded")

	n, err := f.runner.RunPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	done, data, err := f.svc.Load(ctx, pm.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MetricsStatusComplete, done.Status)
	assert.Equal(t, "cardio report.json", done.Report)
	assert.FileExists(t, f.root.Path(done.Report))

	var report Report
	require.NoError(t, json.Unmarshal(data, &report))
	require.NotEmpty(t, report.ConceptSummary)
	require.NotNil(t, report.ConceptSummary[0].TPs, "the project model is evaluated")

	task, err := f.st.Tasks().Get(pm.TaskID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusComplete, task.Status)

	require.NoError(t, f.svc.Delete(ctx, pm.ID))
	assert.NoFileExists(t, f.root.Path(done.Report))
	_, err = f.st.Metrics().Get(pm.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCalculateMetricsFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pm := &model.ProjectMetrics{ReportNameGenerated: "empty", Status: model.MetricsStatusQueued}
	require.NoError(t, f.st.Metrics().Create(pm))

	err := f.svc.CalculateMetrics(ctx, pm.ID)
	require.Error(t, err)
	got, err := f.st.Metrics().Get(pm.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MetricsStatusFailed, got.Status)
	assert.NotEmpty(t, got.Error)
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Submit(context.Background(), nil, "")
	var verr *model.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = f.svc.Submit(context.Background(), []uint{999}, "")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGenerateReportName(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, "metrics_1_2-2024_01_02__03_04_05", GenerateReportName([]uint{1, 2}, "", now))
	assert.Equal(t, "my_report", GenerateReportName(nil, " my.report ", now))
}
