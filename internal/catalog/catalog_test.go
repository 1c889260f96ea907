package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeFile(t *testing.T, root string, parts ...string) {
	t.Helper()
	path := filepath.Join(append([]string{root}, parts...)...)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestTreeListsMediaFilesAndFolders(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "movie1.mp4")
	writeFile(t, root, "series", "ep1.mkv")
	writeFile(t, root, "series", "ep2.mkv")
	writeFile(t, root, "notes.txt")           // not a media format
	writeFile(t, root, ".hidden", "x.mp4")    // hidden folder skipped
	writeFile(t, root, "empty", "readme.txt") // folder with no media omitted

	svc, err := NewService(root, zap.NewNop())
	require.NoError(t, err)

	tree, err := svc.Tree()
	require.NoError(t, err)
	require.Len(t, tree, 2)

	assert.Equal(t, "movie1.mp4", tree[0].Name)
	assert.Equal(t, KindFile, tree[0].Kind)
	assert.Equal(t, "movie1.mp4", tree[0].Path)
	assert.Equal(t, "mp4", tree[0].Format)

	assert.Equal(t, "series", tree[1].Name)
	assert.Equal(t, KindFolder, tree[1].Kind)
	require.Len(t, tree[1].Children, 2)
	assert.Equal(t, "series/ep1.mkv", tree[1].Children[0].Path)
	assert.Equal(t, "series/ep2.mkv", tree[1].Children[1].Path)
}

func TestContainsRejectsTraversalOutsideRoot(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "movie1.mp4")
	writeFile(t, root, "series", "ep1.mkv")

	svc, err := NewService(root, zap.NewNop())
	require.NoError(t, err)

	assert.True(t, svc.Contains("movie1.mp4"))
	assert.True(t, svc.Contains("series/ep1.mkv"))
	assert.False(t, svc.Contains(""))
	assert.False(t, svc.Contains("missing.mp4"))
	assert.False(t, svc.Contains("series"))
	assert.False(t, svc.Contains("../outside.mp4"))
	assert.False(t, svc.Contains("../../etc/passwd"))
}

func TestNewServiceRejectsMissingRoot(t *testing.T) {
	_, err := NewService(filepath.Join(t.TempDir(), "nope"), zap.NewNop())
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "f.mp4")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	_, err = NewService(file, zap.NewNop())
	assert.Error(t, err)
}
