// Package search provides full-text and fuzzy lookup over procedure
// descriptions of one table version.
package search

import (
	"fmt"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/FACorreiaa/cbhpm-tables/internal/domain/catalog/repository"
)

// DefaultLimit caps searches that do not set a limit.
const DefaultLimit = 20

// Document is the indexed form of a procedure.
type Document struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Version     string `json:"version"`
}

// Hit is a search match with its relevance score.
type Hit struct {
	Code        string  `json:"code"`
	Description string  `json:"description"`
	Version     string  `json:"version"`
	Score       float64 `json:"score"`
}

// SearchIndex is an in-memory Bleve index of one version's procedures.
type SearchIndex struct {
	index   bleve.Index
	indexMu sync.RWMutex
}

// NewSearchIndex creates an empty in-memory index.
func NewSearchIndex() (*SearchIndex, error) {
	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}
	return &SearchIndex{index: index}, nil
}

// BuildIndex creates an index holding procedures.
func BuildIndex(procedures []repository.Procedure) (*SearchIndex, error) {
	si, err := NewSearchIndex()
	if err != nil {
		return nil, err
	}
	if err := si.IndexProcedures(procedures); err != nil {
		si.Close()
		return nil, err
	}
	return si, nil
}

func buildIndexMapping() mapping.IndexMapping {
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = simple.Name

	keywordFieldMapping := bleve.NewTextFieldMapping()
	keywordFieldMapping.Analyzer = keyword.Name

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("code", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("description", textFieldMapping)
	docMapping.AddFieldMappingsAt("version", keywordFieldMapping)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = simple.Name
	indexMapping.DefaultField = "description"

	return indexMapping
}

// IndexProcedures adds procedures in one batch. The code is the document ID.
func (si *SearchIndex) IndexProcedures(procedures []repository.Procedure) error {
	si.indexMu.Lock()
	defer si.indexMu.Unlock()

	batch := si.index.NewBatch()
	for _, p := range procedures {
		doc := Document{Code: p.Code, Description: p.Description, Version: p.Version}
		if err := batch.Index(p.Code, doc); err != nil {
			return fmt.Errorf("failed to index procedure %s: %w", p.Code, err)
		}
	}

	if err := si.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch index: %w", err)
	}
	return nil
}

// Search runs a match query over descriptions allowing one edit per term.
func (si *SearchIndex) Search(query string, limit int) ([]Hit, error) {
	si.indexMu.RLock()
	defer si.indexMu.RUnlock()

	if limit <= 0 {
		limit = DefaultLimit
	}

	matchQuery := bleve.NewMatchQuery(query)
	matchQuery.SetField("description")
	matchQuery.SetFuzziness(1)

	req := bleve.NewSearchRequest(matchQuery)
	req.Size = limit
	req.Fields = []string{"*"}

	res, err := si.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit := Hit{Code: h.ID, Score: h.Score}
		if d, ok := h.Fields["description"].(string); ok {
			hit.Description = d
		}
		if v, ok := h.Fields["version"].(string); ok {
			hit.Version = v
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// DocumentCount returns the number of indexed procedures.
func (si *SearchIndex) DocumentCount() (uint64, error) {
	si.indexMu.RLock()
	defer si.indexMu.RUnlock()

	return si.index.DocCount()
}

// Close releases the index.
func (si *SearchIndex) Close() error {
	si.indexMu.Lock()
	defer si.indexMu.Unlock()

	if si.index != nil {
		return si.index.Close()
	}
	return nil
}
