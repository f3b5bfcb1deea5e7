package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/cbhpm-tables/internal/domain/catalog/repository"
)

func fixtures() []repository.Procedure {
	return []repository.Procedure{
		{Code: "10101012", Description: "Consulta em consultório", Version: "2022"},
		{Code: "10101020", Description: "Consulta domiciliar", Version: "2022"},
		{Code: "10102019", Description: "Visita hospitalar", Version: "2022"},
	}
}

func TestSearchIndex(t *testing.T) {
	index, err := BuildIndex(fixtures())
	require.NoError(t, err)
	defer index.Close()

	count, err := index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), count)

	t.Run("basic search", func(t *testing.T) {
		hits, err := index.Search("consulta", 10)
		require.NoError(t, err)
		require.Len(t, hits, 2)
		for _, h := range hits {
			assert.Contains(t, h.Description, "Consulta")
			assert.Equal(t, "2022", h.Version)
			assert.Greater(t, h.Score, 0.0)
		}
	})

	t.Run("one typo", func(t *testing.T) {
		hits, err := index.Search("vizita", 10)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "10102019", hits[0].Code)
	})

	t.Run("limit", func(t *testing.T) {
		hits, err := index.Search("consulta", 1)
		require.NoError(t, err)
		assert.Len(t, hits, 1)
	})

	t.Run("no match", func(t *testing.T) {
		hits, err := index.Search("radiografia", 10)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})
}

func TestSuggester(t *testing.T) {
	s := NewSuggester(fixtures())
	assert.Equal(t, 3, s.Len())

	tests := []struct {
		name      string
		term      string
		wantCodes []string
	}{
		{"missing letter", "hosptalar", []string{"10102019"}},
		{"case and accents folded", "CONSULTORIO", []string{"10101012"}},
		{"extra letter falls back to edit distance", "consullta", []string{"10101012", "10101020"}},
		{"blank term", "  ", nil},
		{"nothing close", "zzzz", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Suggest(tt.term, 10)
			codes := make([]string, 0, len(got))
			for _, sg := range got {
				codes = append(codes, sg.Code)
			}
			if tt.wantCodes == nil {
				assert.Empty(t, codes)
				return
			}
			assert.ElementsMatch(t, tt.wantCodes, codes)
		})
	}
}
