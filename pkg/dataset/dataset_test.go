package dataset

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/db/dbtest"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/media"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server/store"
	storegorm "github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server/store/gorm"
)

func TestSanitiseInput(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"line one<br>line two", "line one\nline two"},
		{"<p>para</p>", "\npara\n"},
		{`<span class="x">bold</span>`, "bold"},
		{`<div class="a">x</div>`, "\nx\n"},
		{"<html><head></head><body>text</body></html>", "text"},
		{"no markup", "no markup"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitiseInput(tt.in), tt.in)
	}
}

func TestParseCSV(t *testing.T) {
	limits := Limits{MaxRows: 3, UniqueNames: true}

	t.Run("case insensitive columns", func(t *testing.T) {
		rows, err := ParseCSV(strings.NewReader("id,Name,TEXT\n1,a,first<br>doc\n2,b,second\n"), limits)
		require.NoError(t, err)
		assert.Equal(t, []Row{{Name: "a", Text: "first\ndoc"}, {Name: "b", Text: "second"}}, rows)
	})

	t.Run("quoted multi-line text", func(t *testing.T) {
		rows, err := ParseCSV(strings.NewReader("name,text\na,\"one, two\nthree\"\n"), limits)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "one, two\nthree", rows[0].Text)
	})

	t.Run("missing columns", func(t *testing.T) {
		_, err := ParseCSV(strings.NewReader("name,body\na,b\n"), limits)
		var verr *model.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Message, "'name', 'text'")
	})

	t.Run("duplicate names", func(t *testing.T) {
		in := "name,text\na,x\na,y\n"
		_, err := ParseCSV(strings.NewReader(in), limits)
		assert.ErrorContains(t, err, "name column entries must be unique")

		rows, err := ParseCSV(strings.NewReader(in), Limits{MaxRows: 3})
		require.NoError(t, err)
		assert.Len(t, rows, 2)
	})

	t.Run("too many rows", func(t *testing.T) {
		_, err := ParseCSV(strings.NewReader("name,text\na,1\nb,2\nc,3\nd,4\n"), limits)
		assert.ErrorContains(t, err, "Attempting to upload a dataset with 4 rows. The Max dataset size is set to 3")
	})
}

func TestCheckFileName(t *testing.T) {
	assert.NoError(t, CheckFileName("docs.CSV"))
	assert.ErrorContains(t, CheckFileName("docs.xlsx"), "not supported")
	assert.Error(t, CheckFileName("docs.txt"))
}

func newService(t *testing.T) (*Service, *storegorm.Store, string) {
	t.Helper()
	st := storegorm.New(dbtest.New(t))
	dir := t.TempDir()
	return NewService(st, media.Root(dir), Limits{MaxRows: 10, UniqueNames: true}, nil), st, dir
}

func TestCreateDataset(t *testing.T) {
	svc, st, dir := newService(t)
	ctx := context.Background()

	ds := &model.Dataset{Name: "notes", Description: "clinic letters"}
	docs, err := svc.CreateDataset(ctx, ds, "letters.csv", strings.NewReader("name,text\nd1,first\nd2,second\n"))
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.NotZero(t, docs[0].ID)

	stored, err := st.Documents().ListByDataset(ds.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
	assert.True(t, strings.HasPrefix(ds.OriginalFile, "datasets/"))
	assert.FileExists(t, media.Root(dir).Path(ds.OriginalFile))

	t.Run("rejected file stores nothing", func(t *testing.T) {
		_, err := svc.CreateDataset(ctx, &model.Dataset{Name: "bad"}, "bad.csv", strings.NewReader("name\nx\n"))
		require.Error(t, err)
		_, count, err := st.Datasets().List(store.ListOptions{})
		require.NoError(t, err)
		assert.EqualValues(t, 1, count)
	})
}

func TestReplaceFile(t *testing.T) {
	svc, st, dir := newService(t)
	ctx := context.Background()

	ds := &model.Dataset{Name: "notes"}
	_, err := svc.CreateDataset(ctx, ds, "a.csv", strings.NewReader("name,text\nd1,first\nd2,second\n"))
	require.NoError(t, err)
	oldPath := media.Root(dir).Path(ds.OriginalFile)

	updated, err := svc.ReplaceFile(ctx, ds.ID, "b.csv", strings.NewReader("name,text\nd3,third\n"))
	require.NoError(t, err)
	assert.NotEqual(t, ds.OriginalFile, updated.OriginalFile)
	assert.NoFileExists(t, oldPath)

	docs, err := st.Documents().ListByDataset(ds.ID)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "d3", docs[0].Name)
}

func TestDeleteDataset(t *testing.T) {
	svc, st, dir := newService(t)
	ctx := context.Background()

	ds := &model.Dataset{Name: "notes"}
	_, err := svc.CreateDataset(ctx, ds, "a.csv", strings.NewReader("name,text\nd1,first\n"))
	require.NoError(t, err)
	path := media.Root(dir).Path(ds.OriginalFile)

	require.NoError(t, svc.DeleteDataset(ctx, ds.ID))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	docs, err := st.Documents().ListByDataset(ds.ID)
	require.NoError(t, err)
	assert.Empty(t, docs)

	err = svc.DeleteDataset(ctx, ds.ID)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestWriteCSVRoundTrip(t *testing.T) {
	var sb strings.Builder
	rows := []Row{{Name: "a", Text: "x, \"quoted\"\nline"}, {Name: "b", Text: ""}}
	require.NoError(t, WriteCSV(&sb, rows))

	got, err := ParseCSV(strings.NewReader(sb.String()), Limits{MaxRows: 10, UniqueNames: true})
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}
