package db

import (
	"context"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrations_Embedded(t *testing.T) {
	entries, err := fs.ReadDir(migrations, "migrations")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	tables := map[string]string{
		"00001_procedures.sql":          "CREATE TABLE IF NOT EXISTS procedures",
		"00002_import_fingerprints.sql": "CREATE TABLE IF NOT EXISTS import_fingerprints",
	}
	for _, e := range entries {
		data, err := fs.ReadFile(migrations, "migrations/"+e.Name())
		require.NoError(t, err)
		body := string(data)

		assert.Contains(t, body, "-- +goose Up")
		assert.Contains(t, body, "-- +goose Down")
		assert.Contains(t, body, tables[e.Name()])
	}
}

func TestMigrations_ProcedureKey(t *testing.T) {
	data, err := fs.ReadFile(migrations, "migrations/00001_procedures.sql")
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "PRIMARY KEY (code, version)"))
}

func TestNew_InvalidDSN(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := New(context.Background(), Config{DSN: "host=localhost port=notaport"}, logger)
	assert.Error(t, err)
}
