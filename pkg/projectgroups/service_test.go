package projectgroups

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/db/dbtest"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server/store"
	storegorm "github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server/store/gorm"
)

type fixture struct {
	st       *storegorm.Store
	svc      *Service
	dataset  *model.Dataset
	cdb      *model.ConceptDB
	vocab    *model.Vocabulary
	admin    *model.User
	alice    *model.User
	bob      *model.User
	task     *model.MetaTask
	relation *model.Relation
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gdb := dbtest.New(t)
	st := storegorm.New(gdb)

	f := &fixture{st: st, svc: NewService(nil)}
	f.admin = dbtest.SeedUser(t, gdb, "carol", true)
	f.bob = dbtest.SeedUser(t, gdb, "bob", false)
	f.alice = dbtest.SeedUser(t, gdb, "alice", false)
	f.dataset, _ = dbtest.SeedDataset(t, gdb, "ds", "patient with heart failure")

	f.cdb = &model.ConceptDB{Name: "cdb", CDBFile: "/tmp/cdb.dat", UseForTraining: true}
	require.NoError(t, st.ConceptDBs().Create(f.cdb))
	f.vocab = &model.Vocabulary{Name: "vocab", VocabFile: "/tmp/vocab.dat"}
	require.NoError(t, st.Vocabs().Create(f.vocab))
	f.task = &model.MetaTask{Name: "Presence"}
	require.NoError(t, st.MetaTasks().Create(f.task))
	f.relation = &model.Relation{Label: "causes"}
	require.NoError(t, st.Relations().Create(f.relation))
	return f
}

func (f *fixture) newGroup(t *testing.T, name string) *model.ProjectGroup {
	t.Helper()
	g := model.NewProjectGroup(name, f.dataset.ID)
	g.Description = "cardiology notes"
	g.CUIs = "C01,C02"
	g.TUIs = "T047"
	g.ConceptDBID = &f.cdb.ID
	g.VocabID = &f.vocab.ID
	require.NoError(t, g.Validate())
	require.NoError(t, f.st.ProjectGroups().Create(g))
	return g
}

func (f *fixture) links() Links {
	return Links{
		Administrators:  []uint{f.admin.ID},
		Annotators:      []uint{f.bob.ID, f.alice.ID},
		Tasks:           []uint{f.task.ID},
		Relations:       []uint{f.relation.ID},
		CDBSearchFilter: []uint{f.cdb.ID},
	}
}

func TestSyncCreatesOneProjectPerAnnotator(t *testing.T) {
	f := newFixture(t)
	g := f.newGroup(t, "Cardio")

	projects, err := f.svc.Sync(f.st, g.ID, f.links())
	require.NoError(t, err)
	require.Len(t, projects, 2)

	// annotators are paired in id order
	assert.Equal(t, "Cardio - bob", projects[0].Name)
	assert.Equal(t, "Cardio - alice", projects[1].Name)

	for i, annotator := range []*model.User{f.bob, f.alice} {
		full, err := f.st.Projects().GetFull(projects[i].ID)
		require.NoError(t, err)
		require.NotNil(t, full.GroupID)
		assert.Equal(t, g.ID, *full.GroupID)
		assert.Equal(t, f.dataset.ID, full.DatasetID)
		assert.Equal(t, "cardiology notes", full.Description)
		assert.Equal(t, "C01,C02", full.CUIs)
		assert.Equal(t, "T047", full.TUIs)
		assert.Equal(t, f.cdb.ID, *full.ConceptDBID)
		assert.Equal(t, f.vocab.ID, *full.VocabID)
		assert.True(t, full.RequireEntityValidation)
		assert.ElementsMatch(t, []uint{f.admin.ID, annotator.ID}, full.MemberIDs())
		require.Len(t, full.Tasks, 1)
		assert.Equal(t, f.task.ID, full.Tasks[0].ID)
		require.Len(t, full.Relations, 1)
		require.Len(t, full.CDBSearchFilter, 1)
	}
}

func TestSyncPropagatesGroupChanges(t *testing.T) {
	f := newFixture(t)
	g := f.newGroup(t, "Cardio")
	first, err := f.svc.Sync(f.st, g.ID, f.links())
	require.NoError(t, err)

	g.Name = "Cardiology"
	g.ProjectLocked = true
	g.TrainModelOnSubmit = false
	g.CUIs = ""
	require.NoError(t, f.st.ProjectGroups().Update(g))

	// nil links keep what is stored, an empty list clears it
	projects, err := f.svc.Sync(f.st, g.ID, Links{Tasks: []uint{}})
	require.NoError(t, err)
	require.Len(t, projects, 2)

	for i, p := range projects {
		assert.Equal(t, first[i].ID, p.ID, "projects are updated in place")
		full, err := f.st.Projects().GetFull(p.ID)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(full.Name, "Cardiology - "))
		assert.True(t, full.ProjectLocked)
		assert.False(t, full.TrainModelOnSubmit)
		assert.Empty(t, full.CUIs)
		assert.Empty(t, full.Tasks)
		assert.Len(t, full.Relations, 1)
	}

	_, count, err := f.st.Projects().List(store.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestSyncWithoutAssociatedProjects(t *testing.T) {
	f := newFixture(t)
	g := f.newGroup(t, "Cardio")
	g.CreateAssociatedProjects = false
	require.NoError(t, f.st.ProjectGroups().Update(g))

	projects, err := f.svc.Sync(f.st, g.ID, f.links())
	require.NoError(t, err)
	assert.Empty(t, projects)

	full, err := f.st.ProjectGroups().GetFull(g.ID)
	require.NoError(t, err)
	assert.Len(t, full.Annotators, 2)

	_, count, err := f.st.Projects().List(store.ListOptions{})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSyncRejectsDriftedProjects(t *testing.T) {
	f := newFixture(t)
	g := f.newGroup(t, "Cardio")
	projects, err := f.svc.Sync(f.st, g.ID, f.links())
	require.NoError(t, err)
	require.NoError(t, f.st.Projects().Delete(projects[1].ID))

	_, err = f.svc.Sync(f.st, g.ID, Links{})
	assert.ErrorIs(t, err, ErrProjectsOutOfSync)
	assert.ErrorIs(t, err, store.ErrConflict)

	t.Run("adding an annotator", func(t *testing.T) {
		g := f.newGroup(t, "Renal")
		_, err := f.svc.Sync(f.st, g.ID, Links{Annotators: []uint{f.alice.ID}})
		require.NoError(t, err)

		_, err = f.svc.Sync(f.st, g.ID, Links{Annotators: []uint{f.alice.ID, f.bob.ID}})
		assert.ErrorIs(t, err, ErrProjectsOutOfSync)
	})
}

func TestSyncRejectsLongProjectNames(t *testing.T) {
	f := newFixture(t)
	g := f.newGroup(t, strings.Repeat("g", 148))

	_, err := f.svc.Sync(f.st, g.ID, Links{Annotators: []uint{f.alice.ID}})
	var vErr *model.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "name", vErr.Field)
}

func TestGroupValidate(t *testing.T) {
	pack := uint(1)
	cdb := uint(2)

	tests := []struct {
		name    string
		mutate  func(g *model.ProjectGroup)
		wantErr string
	}{
		{"valid", func(g *model.ProjectGroup) {}, ""},
		{"missing name", func(g *model.ProjectGroup) { g.Name = "" }, "name is required"},
		{"missing dataset", func(g *model.ProjectGroup) { g.DatasetID = 0 }, "dataset is required"},
		{"pack and cdb", func(g *model.ProjectGroup) { g.ConceptDBID = &cdb }, "Cannot set model pack"},
		{"no model", func(g *model.ProjectGroup) { g.ModelPackID = nil }, "Must set at least"},
		{"bad status", func(g *model.ProjectGroup) { g.ProjectStatus = "X" }, "unknown project status"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			g := model.NewProjectGroup("group", 1)
			g.ModelPackID = &pack
			tc.mutate(g)
			err := g.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
