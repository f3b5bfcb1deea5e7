// Package repository provides storage for CBHPM procedures and the
// fingerprints of imported files.
package repository

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when a procedure does not exist in a version.
var ErrNotFound = errors.New("not found")

// Procedure is one canonical row of the reference table. (Code, Version) is
// unique.
type Procedure struct {
	Code              string    `json:"code"`
	Description       string    `json:"description"`
	SurgicalValue     float64   `json:"surgical_value"`
	RelativeUnitValue float64   `json:"relative_unit_value"`
	FilmQuantity      float64   `json:"film_quantity"`
	Version           string    `json:"version"`
	CreatedAt         time.Time `json:"created_at"`
}

// Key identifies a procedure within the store.
func (p Procedure) Key() string {
	return p.Version + "\x00" + p.Code
}

// ImportFingerprint records an imported file by the digest of its bytes.
type ImportFingerprint struct {
	Fingerprint  string    `json:"fingerprint"`
	Version      string    `json:"version"`
	FileName     string    `json:"file_name"`
	RowsInserted int       `json:"rows_inserted"`
	ImportedAt   time.Time `json:"imported_at"`
}

// SearchField selects the column a search term is matched against.
type SearchField string

const (
	SearchByCode        SearchField = "code"
	SearchByDescription SearchField = "description"
)

// ParseSearchField reads a query parameter, defaulting to description.
func ParseSearchField(s string) SearchField {
	if strings.EqualFold(strings.TrimSpace(s), string(SearchByCode)) {
		return SearchByCode
	}
	return SearchByDescription
}

// SearchParams filters a substring search. An empty Version searches every
// version.
type SearchParams struct {
	Version string
	Field   SearchField
	Term    string
	Limit   int
}

// DefaultSearchLimit caps searches that do not set a limit.
const DefaultSearchLimit = 100

// CatalogRepository defines the operations on stored procedures and import
// fingerprints.
type CatalogRepository interface {
	// InsertProcedures stores procedures that are not already present for
	// their (code, version) and returns how many were new.
	InsertProcedures(ctx context.Context, procedures []Procedure) (int, error)

	FingerprintExists(ctx context.Context, fingerprint string) (bool, error)
	RecordFingerprint(ctx context.Context, fp ImportFingerprint) error
	ListFingerprints(ctx context.Context, version string) ([]ImportFingerprint, error)

	ListVersions(ctx context.Context) ([]string, error)
	GetProcedure(ctx context.Context, code, version string) (*Procedure, error)
	SearchProcedures(ctx context.Context, params SearchParams) ([]Procedure, error)
	ListProcedures(ctx context.Context, version string) ([]Procedure, error)

	// DeleteVersion removes a version's procedures and fingerprints and
	// returns the number of procedures removed.
	DeleteVersion(ctx context.Context, version string) (int, error)
}
