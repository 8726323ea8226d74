package gorm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/db/dbtest"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server/store"
)

func seedProject(t *testing.T, s *Store, name string, datasetID uint) *model.Project {
	t.Helper()
	cdb := &model.ConceptDB{Name: "cdb", CDBFile: "/tmp/cdb.dat"}
	require.NoError(t, s.ConceptDBs().Create(cdb))
	vocab := &model.Vocabulary{Name: "vocab", VocabFile: "/tmp/vocab.dat"}
	require.NoError(t, s.Vocabs().Create(vocab))
	p := model.NewProject(name, datasetID)
	p.ConceptDBID = &cdb.ID
	p.VocabID = &vocab.ID
	require.NoError(t, s.Projects().Create(p))
	return p
}

func TestCRUD(t *testing.T) {
	s := New(dbtest.New(t))
	entities := s.Entities()

	for _, label := range []string{"C01", "C02", "C03"} {
		require.NoError(t, entities.Create(&model.Entity{Label: label}))
	}

	t.Run("list pages", func(t *testing.T) {
		items, count, err := entities.List(store.ListOptions{Page: 2, PageSize: 2})
		require.NoError(t, err)
		assert.Equal(t, int64(3), count)
		require.Len(t, items, 1)
		assert.Equal(t, "C03", items[0].Label)
	})

	t.Run("list filters", func(t *testing.T) {
		items, count, err := entities.List(store.ListOptions{Filters: map[string]interface{}{"label": "C02"}})
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
		assert.Equal(t, "C02", items[0].Label)
	})

	t.Run("duplicate conflicts", func(t *testing.T) {
		err := entities.Create(&model.Entity{Label: "C01"})
		assert.True(t, errors.Is(err, store.ErrConflict))
	})

	t.Run("get missing", func(t *testing.T) {
		_, err := entities.Get(999)
		assert.Equal(t, store.ErrNotFound, err)
	})

	t.Run("update and delete", func(t *testing.T) {
		e, err := entities.GetOrCreate("C04")
		require.NoError(t, err)
		e.Label = "C05"
		require.NoError(t, entities.Update(e))

		got, err := entities.Get(e.ID)
		require.NoError(t, err)
		assert.Equal(t, "C05", got.Label)

		require.NoError(t, entities.Delete(e.ID))
		assert.Equal(t, store.ErrNotFound, entities.Delete(e.ID))
	})

	t.Run("get or create is idempotent", func(t *testing.T) {
		a, err := entities.GetOrCreate("C01")
		require.NoError(t, err)
		b, err := entities.GetOrCreate("C01")
		require.NoError(t, err)
		assert.Equal(t, a.ID, b.ID)
	})
}

func TestProjectsStore(t *testing.T) {
	gdb := dbtest.New(t)
	s := New(gdb)
	alice := dbtest.SeedUser(t, gdb, "alice", false)
	bob := dbtest.SeedUser(t, gdb, "bob", false)
	ds, docs := dbtest.SeedDataset(t, gdb, "ds", "one", "two", "three")

	p := seedProject(t, s, "p1", ds.ID)
	other := seedProject(t, s, "p2", ds.ID)
	projects := s.Projects()

	require.NoError(t, projects.SetMembers(p.ID, []uint{alice.ID}))
	require.NoError(t, projects.SetMembers(other.ID, []uint{alice.ID, bob.ID}))

	t.Run("membership", func(t *testing.T) {
		ok, err := projects.IsMember(p.ID, bob.ID)
		require.NoError(t, err)
		assert.False(t, ok)

		list, count, err := projects.ListForUser(bob.ID, store.ListOptions{})
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
		assert.Equal(t, other.ID, list[0].ID)

		_, count, err = projects.ListForUser(alice.ID, store.ListOptions{})
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})

	t.Run("full load", func(t *testing.T) {
		value, err := s.MetaTaskValues().GetOrCreate("Affirmed")
		require.NoError(t, err)
		task := &model.MetaTask{Name: "Presence"}
		require.NoError(t, s.MetaTasks().Create(task))
		require.NoError(t, s.MetaTasks().SetValues(task.ID, []uint{value.ID}))
		require.NoError(t, projects.SetTasks(p.ID, []uint{task.ID}))

		full, err := projects.GetFull(p.ID)
		require.NoError(t, err)
		assert.Equal(t, []uint{alice.ID}, full.MemberIDs())
		require.Len(t, full.Tasks, 1)
		require.Len(t, full.Tasks[0].Values, 1)
		assert.Equal(t, "Affirmed", full.Tasks[0].Values[0].Name)
		require.NotNil(t, full.ConceptDB)
		assert.Equal(t, "cdb", full.ConceptDB.Name)
		assert.Nil(t, full.ModelPack)
	})

	t.Run("progress", func(t *testing.T) {
		require.NoError(t, projects.MarkValidated(p.ID, docs[0].ID))
		require.NoError(t, projects.MarkValidated(p.ID, docs[0].ID))
		require.NoError(t, projects.MarkValidated(p.ID, docs[2].ID))
		require.NoError(t, projects.UnmarkValidated(p.ID, docs[2].ID))

		ids, err := projects.ValidatedDocumentIDs(p.ID)
		require.NoError(t, err)
		assert.Equal(t, []uint{docs[0].ID}, ids)

		prog, err := projects.Progress([]uint{p.ID, other.ID})
		require.NoError(t, err)
		assert.Equal(t, store.Progress{Validated: 1, Total: 3}, prog[p.ID])
		assert.Equal(t, store.Progress{Validated: 0, Total: 3}, prog[other.ID])
	})
}

func TestProjectGroupsStore(t *testing.T) {
	gdb := dbtest.New(t)
	s := New(gdb)
	alice := dbtest.SeedUser(t, gdb, "alice", false)
	bob := dbtest.SeedUser(t, gdb, "bob", false)
	ds, _ := dbtest.SeedDataset(t, gdb, "ds", "one")
	groups := s.ProjectGroups()

	g := model.NewProjectGroup("cardio", ds.ID)
	require.NoError(t, groups.Create(g))
	require.NoError(t, groups.SetAnnotators(g.ID, []uint{bob.ID, alice.ID}))
	require.NoError(t, groups.SetAdministrators(g.ID, []uint{alice.ID}))

	t.Run("duplicate name conflicts", func(t *testing.T) {
		err := groups.Create(model.NewProjectGroup("cardio", ds.ID))
		assert.ErrorIs(t, err, store.ErrConflict)
	})

	t.Run("full load orders annotators", func(t *testing.T) {
		full, err := groups.GetFull(g.ID)
		require.NoError(t, err)
		require.Len(t, full.Annotators, 2)
		assert.Equal(t, alice.ID, full.Annotators[0].ID)
		assert.Equal(t, bob.ID, full.Annotators[1].ID)
		require.Len(t, full.Administrators, 1)
	})

	t.Run("member projects", func(t *testing.T) {
		p := seedProject(t, s, "cardio - alice", ds.ID)
		seedProject(t, s, "unrelated", ds.ID)
		p.GroupID = &g.ID
		require.NoError(t, s.Projects().Update(p))

		projects, err := groups.Projects(g.ID)
		require.NoError(t, err)
		require.Len(t, projects, 1)
		assert.Equal(t, p.ID, projects[0].ID)
	})

	t.Run("deleting the group keeps its projects", func(t *testing.T) {
		require.NoError(t, groups.Delete(g.ID))
		projects, _, err := s.Projects().List(store.ListOptions{Filters: map[string]interface{}{"name": "cardio - alice"}})
		require.NoError(t, err)
		require.Len(t, projects, 1)
		assert.Nil(t, projects[0].GroupID)
	})
}

func TestAnnotationsStore(t *testing.T) {
	gdb := dbtest.New(t)
	s := New(gdb)
	user := dbtest.SeedUser(t, gdb, "alice", false)
	ds, docs := dbtest.SeedDataset(t, gdb, "ds", "heart failure and cold")
	p := seedProject(t, s, "p", ds.ID)

	e, err := s.Entities().GetOrCreate("C01")
	require.NoError(t, err)

	annos := []model.AnnotatedEntity{
		{UserID: user.ID, ProjectID: p.ID, DocumentID: docs[0].ID, EntityID: e.ID, Value: "cold", StartInd: 18, EndInd: 22},
		{UserID: user.ID, ProjectID: p.ID, DocumentID: docs[0].ID, EntityID: e.ID, Value: "heart failure", StartInd: 0, EndInd: 13, Validated: true, Correct: true},
	}
	require.NoError(t, s.Annotations().CreateBatch(annos))
	assert.NotZero(t, annos[0].ID)

	task := &model.MetaTask{Name: "Presence"}
	require.NoError(t, s.MetaTasks().Create(task))
	require.NoError(t, s.MetaAnnotations().CreateBatch([]model.MetaAnnotation{
		{AnnotatedEntityID: annos[0].ID, MetaTaskID: task.ID},
	}))

	list, err := s.Annotations().ListForDocument(p.ID, docs[0].ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 0, list[0].StartInd)
	require.NotNil(t, list[0].Entity)
	assert.Equal(t, "C01", list[0].Entity.Label)

	n, err := s.Annotations().DeleteForDocument(p.ID, docs[0].ID, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	metas, err := s.MetaAnnotations().ListForAnnotations([]uint{annos[0].ID})
	require.NoError(t, err)
	assert.Empty(t, metas, "meta annotations cascade with their annotation")

	list, err = s.Annotations().ListForProject(p.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Validated)
	require.NotNil(t, list[0].User)
	assert.Equal(t, "alice", list[0].User.Username)
}

func TestConceptsStore(t *testing.T) {
	s := New(dbtest.New(t))
	cdb := &model.ConceptDB{Name: "cdb", CDBFile: "x"}
	require.NoError(t, s.ConceptDBs().Create(cdb))
	cdb2 := &model.ConceptDB{Name: "cdb2", CDBFile: "y"}
	require.NoError(t, s.ConceptDBs().Create(cdb2))

	require.NoError(t, s.Concepts().ReplaceForCDB(cdb.ID, []model.Concept{
		{CUI: "C01", PrettyName: "Heart failure"},
		{CUI: "C02", PrettyName: "Heart attack"},
		{CUI: "C03", PrettyName: "Headache_50%"},
	}))
	require.NoError(t, s.Concepts().ReplaceForCDB(cdb2.ID, []model.Concept{
		{CUI: "C01", PrettyName: "Heart failure"},
	}))

	found, err := s.Concepts().Search([]uint{cdb.ID, cdb2.ID}, "HEART", 15)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "C02", found[0].CUI)
	assert.Equal(t, "C01", found[1].CUI)

	found, err = s.Concepts().Search([]uint{cdb.ID}, "C03", 15)
	require.NoError(t, err)
	require.Len(t, found, 1)

	found, err = s.Concepts().Search([]uint{cdb.ID}, "heada%", 15)
	require.NoError(t, err)
	assert.Empty(t, found, "wildcards in the query are literal")

	c := &model.Concept{CDBID: cdb.ID, CUI: "C01", PrettyName: "Cardiac failure"}
	require.NoError(t, s.Concepts().Upsert(c))
	got, err := s.Concepts().GetByCUI(cdb.ID, "C01")
	require.NoError(t, err)
	assert.Equal(t, "Cardiac failure", got.PrettyName)

	n, err := s.Concepts().DeleteForCDB(cdb.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestTasksStore(t *testing.T) {
	s := New(dbtest.New(t))
	tasks := s.Tasks()

	first := &model.Task{Queue: "metrics", Name: "calculate_metrics"}
	require.NoError(t, tasks.Enqueue(first))
	second := &model.Task{Queue: "metrics", Name: "calculate_metrics"}
	require.NoError(t, tasks.Enqueue(second))
	assert.NotEmpty(t, first.ID)

	claimed, err := tasks.ClaimNext("metrics")
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusRunning, claimed.Status)
	assert.Equal(t, 1, claimed.Attempts)

	assert.Equal(t, store.ErrNotFound, tasks.Delete(claimed.ID), "running tasks cannot be deleted")

	require.NoError(t, tasks.Finish(claimed.ID, errors.New("boom")))
	got, err := tasks.Get(claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusFailed, got.Status)
	assert.Equal(t, "boom", got.Error)

	next, err := tasks.ClaimNext("metrics")
	require.NoError(t, err)
	assert.NotEqual(t, claimed.ID, next.ID)

	_, err = tasks.ClaimNext("metrics")
	assert.Equal(t, store.ErrNotFound, err)

	n, err := tasks.FailRunning()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	failed, err := tasks.List("metrics", model.TaskStatusFailed)
	require.NoError(t, err)
	assert.Len(t, failed, 2)
}

func TestTransactionRollsBack(t *testing.T) {
	s := New(dbtest.New(t))

	err := s.Transaction(func(tx store.Store) error {
		if err := tx.Entities().Create(&model.Entity{Label: "C01"}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	_, count, err := s.Entities().List(store.ListOptions{})
	require.NoError(t, err)
	assert.Zero(t, count)
}
