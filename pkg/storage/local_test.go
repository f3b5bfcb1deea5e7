package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, s *LocalStorage, namespace string, id uuid.UUID) string {
	t.Helper()
	rc, _, err := s.Download(context.Background(), namespace, id)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func TestLocalStorage_UploadDownloadDelete(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	info, err := s.Upload(ctx, "uploads", "tabela 2022.csv", "text/csv", strings.NewReader("Código;Descrição\n"))
	require.NoError(t, err)
	assert.Equal(t, "tabela 2022.csv", info.Name)
	assert.Equal(t, int64(len("Código;Descrição\n")), info.Size)

	assert.Equal(t, "Código;Descrição\n", readAll(t, s, "uploads", info.ID))

	files, err := s.List(ctx, "uploads")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, info.ID, files[0].ID)

	require.NoError(t, s.Delete(ctx, "uploads", info.ID))
	_, err = s.GetInfo(ctx, "uploads", info.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStorage_PutReplaces(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	first, err := s.Put(ctx, "snapshots", "2022.csv", "text/csv", strings.NewReader("v1"))
	require.NoError(t, err)
	second, err := s.Put(ctx, "snapshots", "2022.csv", "text/csv", strings.NewReader("v2"))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, NameID("snapshots", "2022.csv"), second.ID)
	assert.Equal(t, "v2", readAll(t, s, "snapshots", second.ID))

	files, err := s.List(ctx, "snapshots")
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestLocalStorage_SanitizesPaths(t *testing.T) {
	base := t.TempDir()
	s, err := NewLocalStorage(base)
	require.NoError(t, err)

	info, err := s.Put(context.Background(), "../escape", "../../etc/passwd", "text/plain", strings.NewReader("x"))
	require.NoError(t, err)
	assert.NotContains(t, info.Path, "/")

	entries, err := os.ReadDir(base)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	_, err = os.Stat(filepath.Join(base, entries[0].Name(), info.Path))
	assert.NoError(t, err)
}

func TestLocalStorage_EmptyNamespace(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	files, err := s.List(context.Background(), "nothing-here")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestNew(t *testing.T) {
	s, err := New(&Config{LocalPath: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &LocalStorage{}, s)

	_, err = New(&Config{Type: "ftp"})
	assert.Error(t, err)
}
