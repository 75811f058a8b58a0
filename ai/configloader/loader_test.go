package configloader

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string   `yaml:"name"`
	Items []string `yaml:"items"`
}

func TestLoader_OSFilesystem(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("name: alpha\nitems: [x, y]\n"), 0o600))

	var s sample
	require.NoError(t, NewLoader(dir).Load("a.yaml", &s))
	assert.Equal(t, sample{Name: "alpha", Items: []string{"x", "y"}}, s)

	err := NewLoader(dir).Load("missing.yaml", &s)
	assert.ErrorContains(t, err, "read file missing.yaml")
}

func TestLoader_FS(t *testing.T) {
	fsys := fstest.MapFS{
		"conf/one.yaml":   {Data: []byte("name: one\n")},
		"conf/two.yml":    {Data: []byte("name: two\n")},
		"conf/skip.txt":   {Data: []byte("ignored")},
		"conf/empty.yaml": {Data: []byte("")},
	}
	l := NewFSLoader(fsys)

	all, err := l.LoadDir("conf", func(string) (any, error) { return &sample{}, nil })
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, "one", all["conf/one.yaml"].(*sample).Name)
	assert.Equal(t, "two", all["conf/two.yml"].(*sample).Name)
	assert.Equal(t, "", all["conf/empty.yaml"].(*sample).Name)
}

func TestLoader_Strict(t *testing.T) {
	fsys := fstest.MapFS{"c.yaml": {Data: []byte("name: x\nunknown: 1\n")}}

	var lax sample
	require.NoError(t, NewFSLoader(fsys).Load("c.yaml", &lax))
	assert.Equal(t, "x", lax.Name)

	var strict sample
	err := NewFSLoader(fsys).Strict().Load("c.yaml", &strict)
	assert.ErrorContains(t, err, "unknown")
}

func TestLoader_Cached(t *testing.T) {
	fsys := fstest.MapFS{"c.yaml": {Data: []byte("name: cached\n")}}
	l := NewFSLoader(fsys)

	calls := 0
	factory := func() any { calls++; return &sample{} }

	first, err := l.LoadCached("c.yaml", factory)
	require.NoError(t, err)
	second, err := l.LoadCached("c.yaml", factory)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, calls)

	l.ClearCache()
	_, err = l.LoadCached("c.yaml", factory)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}
