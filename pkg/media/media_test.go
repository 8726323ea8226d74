package media

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoot(t *testing.T) {
	root := Root(t.TempDir())

	assert.Equal(t, "/abs/file.dat", root.Path("/abs/file.dat"))
	assert.Equal(t, filepath.Join(string(root), "rel.dat"), root.Path("rel.dat"))
	assert.Equal(t, "", root.Path(""))

	path, err := root.WriteFile("nested/dir/a.json", []byte("{}"))
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))

	require.NoError(t, root.Remove(path))
	require.NoError(t, root.Remove(path), "removing twice is fine")
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestSafeName(t *testing.T) {
	assert.Equal(t, "my_project_v1_0", SafeName("my/project_v1.0"))
	assert.Equal(t, "a_b_c", SafeName(`a\b.c`))
}

func TestSave(t *testing.T) {
	root := Root(t.TempDir())

	ref, err := root.Save("model_packs", "my.pack.zip", strings.NewReader("zip"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "model_packs/"))
	assert.True(t, strings.HasSuffix(ref, "_my_pack.zip"))

	other, err := root.Save("model_packs", "my.pack.zip", strings.NewReader("zip"))
	require.NoError(t, err)
	assert.NotEqual(t, ref, other)

	data, err := os.ReadFile(root.Path(ref))
	require.NoError(t, err)
	assert.Equal(t, "zip", string(data))
}
