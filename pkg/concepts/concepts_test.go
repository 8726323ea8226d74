package concepts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/annotation"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/db/dbtest"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/jobs"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/media"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/modelcache"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/nlp"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server/store"
	storegorm "github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server/store/gorm"
)

type fixture struct {
	st     *storegorm.Store
	svc    *Service
	runner *jobs.Runner
	cdb    *model.ConceptDB
	flat   *model.ConceptDB
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gdb := dbtest.New(t)
	st := storegorm.New(gdb)
	dir := t.TempDir()

	cdb := nlp.NewCDB(nlp.DefaultConfig())
	cdb.AddName("C01", "heart disease", "Heart disease", "T047")
	cdb.AddName("C11", "heart failure", "Heart failure", "T047")
	cdb.AddName("C11", "cardiac failure", "", "T047")
	cdb.AddName("C12", "arrhythmia", "Arrhythmia", "T047")
	cdb.AddName("C111", "systolic heart failure", "Systolic heart failure", "T047")
	cdb.AddName("C02", "aspirin", "Aspirin", "T121")
	cdb.AddChild("C01", "C11")
	cdb.AddChild("C01", "C12")
	cdb.AddChild("C11", "C111")
	cdb.SetTypeName("T047", "Disease or Syndrome")
	cdb.SetDescription("C11", "Failure of the heart to pump")

	flat := nlp.NewCDB(nlp.DefaultConfig())
	flat.AddName("C01", "heart attack", "Heart attack")
	flat.AddName("C09", "chest pain", "")

	cache, err := modelcache.New(modelcache.Options{Store: st, MaxModels: 2, MediaRoot: media.Root(dir)})
	require.NoError(t, err)
	runner := jobs.New(st, jobs.Options{Queues: []string{jobs.QueueConcepts}})

	return &fixture{
		st:     st,
		svc:    NewService(st, cache, runner, nil),
		runner: runner,
		cdb:    dbtest.SeedConceptDB(t, gdb, dir, "cardio", cdb),
		flat:   dbtest.SeedConceptDB(t, gdb, dir, "flat", flat),
	}
}

func TestImportConceptsMatchesAnnotationRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ImportConcepts(ctx, f.flat.ID)
	require.NoError(t, err)

	cdb, err := f.svc.models.GetCachedCDB(ctx, f.flat.ID)
	require.NoError(t, err)
	want, ok := annotation.ConceptRow(cdb, f.flat.ID, "C09")
	require.True(t, ok)

	got, err := f.st.Concepts().GetByCUI(f.flat.ID, "C09")
	require.NoError(t, err)
	assert.Equal(t, "chest pain", got.PrettyName, "names stand in for a missing pretty name")
	assert.Equal(t, want.PrettyName, got.PrettyName)
	assert.Equal(t, want.Synonyms, got.Synonyms)
}

func cuis(nodes []Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.CUI)
	}
	return out
}

func TestImportConcepts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	n, err := f.svc.ImportConcepts(ctx, f.cdb.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	c, err := f.st.Concepts().GetByCUI(f.cdb.ID, "C11")
	require.NoError(t, err)
	assert.Equal(t, "Heart failure", c.PrettyName)
	assert.Equal(t, "T047", c.TypeIDs)
	assert.Equal(t, "Disease or Syndrome", c.SemanticType)
	assert.Equal(t, "Failure of the heart to pump", c.Desc)
	assert.Equal(t, "heart failure,cardiac failure", c.Synonyms)

	t.Run("reimport replaces the index", func(t *testing.T) {
		n, err := f.svc.ImportConcepts(ctx, f.cdb.ID)
		require.NoError(t, err)
		_, count, err := f.st.Concepts().List(store.ListOptions{
			Filters: map[string]interface{}{"cdb_id": f.cdb.ID},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(n), count)
	})

	avail, err := f.svc.IndexAvailable(ctx, []uint{f.cdb.ID, f.flat.ID})
	require.NoError(t, err)
	assert.Equal(t, map[uint]bool{f.cdb.ID: true, f.flat.ID: false}, avail)

	removed, err := f.svc.DeleteIndexedConcepts(ctx, f.cdb.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), removed)
	_, err = f.st.Concepts().GetByCUI(f.cdb.ID, "C11")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestQueueImport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task, err := f.svc.QueueImport(ctx, f.flat.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.QueueConcepts, task.Queue)

	ran, err := f.runner.RunPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, ran)

	got, err := f.st.Tasks().Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusComplete, got.Status)
	_, err = f.st.Concepts().GetByCUI(f.flat.ID, "C01")
	assert.NoError(t, err)

	_, err = f.svc.QueueImport(ctx, 999)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSearch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, id := range []uint{f.cdb.ID, f.flat.ID} {
		_, err := f.svc.ImportConcepts(ctx, id)
		require.NoError(t, err)
	}

	got, err := f.svc.Search(ctx, []uint{f.cdb.ID}, "  HEART  ")
	require.NoError(t, err)
	assert.Equal(t, []string{"C01", "C11"}, conceptCUIs(got))

	got, err = f.svc.Search(ctx, []uint{f.cdb.ID}, "C111")
	require.NoError(t, err)
	assert.Equal(t, []string{"C111"}, conceptCUIs(got))

	got, err = f.svc.Search(ctx, []uint{f.cdb.ID, f.flat.ID}, "heart")
	require.NoError(t, err)
	assert.Equal(t, []string{"C01", "C11"}, conceptCUIs(got), "a CUI is returned once across CDBs")

	_, err = f.svc.Search(ctx, []uint{f.cdb.ID}, " ")
	var verr *model.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func conceptCUIs(cs []model.Concept) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.CUI)
	}
	return out
}

func TestChildren(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	roots, err := f.svc.Children(ctx, f.cdb.ID, "")
	require.NoError(t, err)
	assert.Equal(t, []Node{{CUI: "C01", PrettyName: "Heart disease", HasChildren: true}}, roots)

	children, err := f.svc.Children(ctx, f.cdb.ID, "C01")
	require.NoError(t, err)
	assert.Equal(t, []string{"C11", "C12"}, cuis(children))
	assert.True(t, children[0].HasChildren)
	assert.False(t, children[1].HasChildren)

	_, err = f.svc.Children(ctx, f.flat.ID, "")
	var verr *model.ValidationError
	assert.ErrorAs(t, err, &verr, "a CDB without hierarchy cannot be browsed")
}

func TestConceptPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	path, err := f.svc.ConceptPath(ctx, f.cdb.ID, "C111")
	require.NoError(t, err)
	assert.Equal(t, []string{"C01", "C11", "C111"}, cuis(path))
	assert.Equal(t, "Systolic heart failure", path[2].PrettyName)

	path, err = f.svc.ConceptPath(ctx, f.cdb.ID, "C01")
	require.NoError(t, err)
	assert.Equal(t, []string{"C01"}, cuis(path))

	_, err = f.svc.ConceptPath(ctx, f.cdb.ID, "C999")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGenerateConceptFilter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	got, err := f.svc.GenerateConceptFilter(ctx, f.cdb.ID, []string{"C11", "C02"})
	require.NoError(t, err)
	assert.Equal(t, []string{"C02", "C11", "C111"}, got)

	got, err = f.svc.GenerateConceptFilter(ctx, f.flat.ID, []string{"C01"})
	require.NoError(t, err)
	assert.Equal(t, []string{"C01"}, got)

	_, err = f.svc.GenerateConceptFilter(ctx, f.cdb.ID, nil)
	var verr *model.ValidationError
	assert.ErrorAs(t, err, &verr)
}
