package deployment

import (
	"archive/tar"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/clause"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/db/dbtest"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/export"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/media"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/modelfiles"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/nlp"
	storegorm "github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server/store/gorm"
)

type source struct {
	svc      *Service
	exports  *export.Service
	projects []*model.Project
}

// newSource seeds a deployment with a CDB/Vocab project and a model pack
// project over the same dataset.
func newSource(t *testing.T) *source {
	t.Helper()
	gdb := dbtest.New(t)
	st := storegorm.New(gdb)
	dir := t.TempDir()
	root := media.Root(dir)
	ctx := context.Background()

	user := dbtest.SeedUser(t, gdb, "annotator", false)
	ghost := dbtest.SeedUser(t, gdb, "ghost", false)
	ds, docs := dbtest.SeedDataset(t, gdb, "notes", "Patient has heart failure.", "No chest pain.")

	cdb := nlp.NewCDB(nlp.DefaultConfig())
	cdb.AddName("C01", "heart failure", "Heart failure", "T047")
	cdbRow := dbtest.SeedConceptDB(t, gdb, dir, "cardio_cdb", cdb)
	vocabRow := dbtest.SeedVocab(t, gdb, dir, "vocab", nlp.NewVocab(nil))

	p := dbtest.SeedProject(t, gdb, "cardio", ds.ID, cdbRow.ID, vocabRow.ID)
	require.NoError(t, st.Projects().SetMembers(p.ID, []uint{user.ID, ghost.ID}))
	require.NoError(t, st.Projects().SetCDBSearchFilter(p.ID, []uint{cdbRow.ID}))
	require.NoError(t, st.Projects().MarkValidated(p.ID, docs[0].ID))
	require.NoError(t, st.Projects().MarkPrepared(p.ID, docs[0].ID))

	affirmed, err := st.MetaTaskValues().GetOrCreate("Affirmed")
	require.NoError(t, err)
	task := &model.MetaTask{Name: "Status", DefaultID: &affirmed.ID}
	require.NoError(t, st.MetaTasks().Create(task))
	require.NoError(t, st.MetaTasks().SetValues(task.ID, []uint{affirmed.ID}))
	require.NoError(t, st.Projects().SetTasks(p.ID, []uint{task.ID}))
	rel, err := st.Relations().GetOrCreate("causes")
	require.NoError(t, err)
	require.NoError(t, st.Projects().SetRelations(p.ID, []uint{rel.ID}))

	hf, err := st.Entities().GetOrCreate("C01")
	require.NoError(t, err)
	annos := []model.AnnotatedEntity{
		{UserID: user.ID, ProjectID: p.ID, DocumentID: docs[0].ID, EntityID: hf.ID, Value: "heart failure",
			StartInd: 12, EndInd: 25, Acc: 1, Validated: true, Correct: true},
		{UserID: ghost.ID, ProjectID: p.ID, DocumentID: docs[1].ID, EntityID: hf.ID, Value: "chest pain",
			StartInd: 3, EndInd: 13, Acc: 1, Validated: true, Correct: true},
	}
	require.NoError(t, st.Annotations().CreateBatch(annos))
	require.NoError(t, st.MetaAnnotations().Create(&model.MetaAnnotation{
		AnnotatedEntityID: annos[0].ID, MetaTaskID: task.ID, MetaTaskValueID: &affirmed.ID, Validated: true,
	}))

	presence := &nlp.MetaCAT{Name: "Presence", Values: []string{"True", "False"}, Default: "True"}
	require.NoError(t, nlp.WriteModelPack(root.Path("model_packs/pack.zip"), cdb, nlp.NewVocab(nil), []*nlp.MetaCAT{presence}))
	mp := &model.ModelPack{ModelPackFile: "model_packs/pack.zip"}
	require.NoError(t, modelfiles.NewService(st, root, nil, nil).RegisterModelPack(ctx, mp))
	packProject := model.NewProject("cardio pack", ds.ID)
	packProject.ModelPackID = &mp.ID
	require.NoError(t, gdb.Omit(clause.Associations).Create(packProject).Error)
	require.NoError(t, st.Projects().SetMembers(packProject.ID, []uint{user.ID}))

	exports := export.NewService(st, root, 0, nil)
	return &source{
		svc:      NewService(st, root, exports, nil),
		exports:  exports,
		projects: []*model.Project{p, packProject},
	}
}

func projectIDs(ps []*model.Project) []uint {
	ids := make([]uint, 0, len(ps))
	for _, p := range ps {
		ids = append(ids, p.ID)
	}
	return ids
}

func TestExport(t *testing.T) {
	src := newSource(t)
	var buf bytes.Buffer
	manifest, err := src.svc.Export(context.Background(), projectIDs(src.projects), &buf)
	require.NoError(t, err)

	assert.Equal(t, FormatVersion, manifest.Version)
	require.Len(t, manifest.Projects, 2)
	assert.ElementsMatch(t, []string{"annotator", "ghost"}, manifest.Projects[0].Members)
	assert.Equal(t, []string{"Status"}, manifest.Projects[0].Tasks)
	require.Len(t, manifest.ModelPacks, 1)
	assert.Equal(t, []string{"Presence"}, manifest.ModelPacks[0].MetaCATs)
	require.Len(t, manifest.ConceptDBs, 1, "model pack cdbs travel inside the pack")
	require.Len(t, manifest.Datasets, 1)
	assert.Len(t, manifest.Datasets[0].DocumentIDs, 2)

	names, err := extract(bytes.NewReader(buf.Bytes()), t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, names, ManifestFile)
	assert.Contains(t, names, AnnotationsFile)
	assert.Contains(t, names, manifest.Datasets[0].File)
	assert.Contains(t, names, manifest.ModelPacks[0].File)

	t.Run("requires projects", func(t *testing.T) {
		_, err := src.svc.Export(context.Background(), nil, &bytes.Buffer{})
		var verr *model.ValidationError
		assert.ErrorAs(t, err, &verr)
	})
}

func TestExportImportRoundTrip(t *testing.T) {
	src := newSource(t)
	ctx := context.Background()
	var buf bytes.Buffer
	_, err := src.svc.Export(ctx, projectIDs(src.projects), &buf)
	require.NoError(t, err)

	before, err := src.exports.RetrieveProjectData(ctx, []uint{src.projects[0].ID}, export.Options{AllDocuments: true})
	require.NoError(t, err)

	// A fresh deployment that only knows one of the two annotators
	gdb := dbtest.New(t)
	st := storegorm.New(gdb)
	dir := t.TempDir()
	root := media.Root(dir)
	dbtest.SeedUser(t, gdb, "annotator", false)
	svc := NewService(st, root, export.NewService(st, root, 0, nil), nil)

	summary, err := svc.Import(ctx, &buf)
	require.NoError(t, err)
	require.Len(t, summary.Projects, 2)
	assert.Equal(t, 1, summary.ConceptDBs)
	assert.Equal(t, 1, summary.Vocabs)
	assert.Equal(t, 1, summary.ModelPacks)
	assert.Equal(t, 2, summary.Documents)
	assert.Equal(t, 1, summary.Annotations)
	assert.Equal(t, []string{"ghost"}, summary.Skipped)

	p, err := st.Projects().GetFull(summary.Projects[src.projects[0].ID])
	require.NoError(t, err)
	assert.Equal(t, "cardio", p.Name)
	require.NotNil(t, p.ConceptDB)
	assert.FileExists(t, root.Path(p.ConceptDB.CDBFile))
	require.NotNil(t, p.Vocab)
	assert.FileExists(t, root.Path(p.Vocab.VocabFile))
	require.Len(t, p.Members, 1)
	assert.Equal(t, "annotator", p.Members[0].Username)
	require.Len(t, p.Tasks, 1)
	assert.Equal(t, "Status", p.Tasks[0].Name)
	require.NotNil(t, p.Tasks[0].DefaultID)
	require.Len(t, p.Relations, 1)
	assert.Equal(t, "causes", p.Relations[0].Label)
	require.Len(t, p.CDBSearchFilter, 1)
	assert.Equal(t, *p.ConceptDBID, p.CDBSearchFilter[0].ID)

	docs, err := st.Documents().ListByDataset(p.DatasetID)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "Patient has heart failure.", docs[0].Text)
	validated, err := st.Projects().ValidatedDocumentIDs(p.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{docs[0].ID}, validated)
	prepared, err := st.Projects().PreparedDocumentIDs(p.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{docs[0].ID}, prepared)

	after, err := export.NewService(st, root, 0, nil).RetrieveProjectData(ctx, []uint{p.ID}, export.Options{AllDocuments: true})
	require.NoError(t, err)
	assert.Equal(t, before.AnnotationCount()-1, after.AnnotationCount(), "annotations of unknown users are skipped")
	first := after.Projects[0].Documents[0].Annotations[0]
	assert.Equal(t, "heart failure", first.Value)
	assert.Equal(t, "Affirmed", first.MetaAnns["Status"].Value)

	packProject, err := st.Projects().GetFull(summary.Projects[src.projects[1].ID])
	require.NoError(t, err)
	require.NotNil(t, packProject.ModelPackID)
	assert.Equal(t, p.DatasetID, packProject.DatasetID)
	mp, err := st.ModelPacks().GetFull(*packProject.ModelPackID)
	require.NoError(t, err)
	require.Len(t, mp.MetaCATs, 1)
	assert.DirExists(t, root.Path(mp.MetaCATs[0].MetaCATDir))
	task, err := st.MetaTasks().GetByName("Presence")
	require.NoError(t, err)
	assert.Equal(t, mp.MetaCATs[0].ID, *task.PredictionModelID)
}

func tarball(t *testing.T, entries map[string]string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, body := range entries {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return &buf
}

func TestImportRejectsBadArchives(t *testing.T) {
	gdb := dbtest.New(t)
	st := storegorm.New(gdb)
	dir := t.TempDir()
	svc := NewService(st, media.Root(dir), nil, nil)
	ctx := context.Background()

	cases := map[string]map[string]string{
		"parent directory": {"../escape.txt": "x"},
		"absolute path":    {"/tmp/escape.txt": "x"},
		"old format":       {ManifestFile: `{"version": 0}`, AnnotationsFile: `{"projects": []}`},
		"missing manifest": {AnnotationsFile: `{"projects": []}`},
	}
	for name, entries := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Import(ctx, tarball(t, entries))
			assert.Error(t, err)
		})
	}

	_, err := svc.Import(ctx, bytes.NewBufferString("not gzip"))
	assert.Error(t, err)

	staged, err := os.ReadDir(filepath.Join(dir, StagingDir))
	require.NoError(t, err)
	assert.Empty(t, staged, "failed imports leave nothing behind")
	assert.NoFileExists(t, filepath.Join(filepath.Dir(dir), "escape.txt"))
}

func TestCheckEntryName(t *testing.T) {
	name, err := checkEntryName("files/./cdbs/1_cdb.dat")
	require.NoError(t, err)
	assert.Equal(t, "files/cdbs/1_cdb.dat", name)

	for _, bad := range []string{"", "/etc/passwd", "files/../../x", `\windows`} {
		_, err := checkEntryName(bad)
		assert.Error(t, err, bad)
	}
}
