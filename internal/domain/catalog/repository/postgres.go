package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DefaultInsertBatchSize is the number of rows per multi-row INSERT.
const DefaultInsertBatchSize = 500

// DBTX is the subset of *pgxpool.Pool the repository uses.
type DBTX interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ CatalogRepository = (*PostgresCatalogRepository)(nil)

// PostgresCatalogRepository implements CatalogRepository using PostgreSQL
type PostgresCatalogRepository struct {
	pool      DBTX
	batchSize int
}

// NewPostgresCatalogRepository creates a new PostgreSQL catalog repository
func NewPostgresCatalogRepository(pool DBTX) *PostgresCatalogRepository {
	return &PostgresCatalogRepository{pool: pool, batchSize: DefaultInsertBatchSize}
}

// WithBatchSize sets the number of rows per INSERT statement.
func (r *PostgresCatalogRepository) WithBatchSize(n int) *PostgresCatalogRepository {
	if n > 0 {
		r.batchSize = n
	}
	return r
}

const procedureColumns = "code, description, surgical_value, relative_unit_value, film_quantity, version"

// InsertProcedures writes all procedures in one transaction, in multi-row
// statements of batchSize rows. Existing (code, version) pairs are left as
// they are.
func (r *PostgresCatalogRepository) InsertProcedures(ctx context.Context, procedures []Procedure) (int, error) {
	if len(procedures) == 0 {
		return 0, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	inserted := 0
	for start := 0; start < len(procedures); start += r.batchSize {
		end := start + r.batchSize
		if end > len(procedures) {
			end = len(procedures)
		}

		query, args := buildInsert(procedures[start:end])
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return 0, fmt.Errorf("failed to insert procedures: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit procedures: %w", err)
	}
	return inserted, nil
}

func buildInsert(batch []Procedure) (string, []any) {
	var sb strings.Builder
	sb.WriteString("INSERT INTO procedures (" + procedureColumns + ") VALUES ")

	args := make([]any, 0, len(batch)*6)
	for i, p := range batch {
		if i > 0 {
			sb.WriteString(", ")
		}
		n := i * 6
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4, n+5, n+6)
		args = append(args, p.Code, p.Description, p.SurgicalValue, p.RelativeUnitValue, p.FilmQuantity, p.Version)
	}
	sb.WriteString(" ON CONFLICT (code, version) DO NOTHING")
	return sb.String(), args
}

// FingerprintExists reports whether a file with this digest was imported
func (r *PostgresCatalogRepository) FingerprintExists(ctx context.Context, fingerprint string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM import_fingerprints WHERE fingerprint = $1)`,
		fingerprint,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check fingerprint: %w", err)
	}
	return exists, nil
}

// RecordFingerprint marks a file as imported
func (r *PostgresCatalogRepository) RecordFingerprint(ctx context.Context, fp ImportFingerprint) error {
	query := `
		INSERT INTO import_fingerprints (fingerprint, version, file_name, rows_inserted)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (fingerprint) DO NOTHING`

	if _, err := r.pool.Exec(ctx, query, fp.Fingerprint, fp.Version, fp.FileName, fp.RowsInserted); err != nil {
		return fmt.Errorf("failed to record fingerprint: %w", err)
	}
	return nil
}

// ListFingerprints returns the files imported into a version, newest first
func (r *PostgresCatalogRepository) ListFingerprints(ctx context.Context, version string) ([]ImportFingerprint, error) {
	query := `
		SELECT fingerprint, version, file_name, rows_inserted, imported_at
		FROM import_fingerprints
		WHERE version = $1
		ORDER BY imported_at DESC`

	rows, err := r.pool.Query(ctx, query, version)
	if err != nil {
		return nil, fmt.Errorf("failed to list fingerprints: %w", err)
	}
	defer rows.Close()

	var out []ImportFingerprint
	for rows.Next() {
		var fp ImportFingerprint
		if err := rows.Scan(&fp.Fingerprint, &fp.Version, &fp.FileName, &fp.RowsInserted, &fp.ImportedAt); err != nil {
			return nil, fmt.Errorf("failed to scan fingerprint: %w", err)
		}
		out = append(out, fp)
	}
	return out, rows.Err()
}

// ListVersions returns the distinct version labels, newest label first
func (r *PostgresCatalogRepository) ListVersions(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT version FROM procedures ORDER BY version DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// GetProcedure retrieves one procedure of a version
func (r *PostgresCatalogRepository) GetProcedure(ctx context.Context, code, version string) (*Procedure, error) {
	query := `
		SELECT ` + procedureColumns + `, created_at
		FROM procedures
		WHERE code = $1 AND version = $2`

	p := &Procedure{}
	err := r.pool.QueryRow(ctx, query, code, version).Scan(
		&p.Code,
		&p.Description,
		&p.SurgicalValue,
		&p.RelativeUnitValue,
		&p.FilmQuantity,
		&p.Version,
		&p.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get procedure: %w", err)
	}
	return p, nil
}

// SearchProcedures finds procedures whose code or description contains the term
func (r *PostgresCatalogRepository) SearchProcedures(ctx context.Context, params SearchParams) ([]Procedure, error) {
	column := "description"
	if params.Field == SearchByCode {
		column = "code"
	}
	limit := params.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	args := []any{"%" + escapeLike(params.Term) + "%"}
	query := `SELECT ` + procedureColumns + `, created_at FROM procedures WHERE ` + column + ` ILIKE $1`
	if params.Version != "" {
		args = append(args, params.Version)
		query += fmt.Sprintf(" AND version = $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY version DESC, code LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search procedures: %w", err)
	}
	return collectProcedures(rows)
}

// ListProcedures returns every procedure of a version ordered by code
func (r *PostgresCatalogRepository) ListProcedures(ctx context.Context, version string) ([]Procedure, error) {
	query := `SELECT ` + procedureColumns + `, created_at FROM procedures WHERE version = $1 ORDER BY code`

	rows, err := r.pool.Query(ctx, query, version)
	if err != nil {
		return nil, fmt.Errorf("failed to list procedures: %w", err)
	}
	return collectProcedures(rows)
}

// DeleteVersion removes a version's procedures and fingerprints together
func (r *PostgresCatalogRepository) DeleteVersion(ctx context.Context, version string) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM procedures WHERE version = $1`, version)
	if err != nil {
		return 0, fmt.Errorf("failed to delete procedures: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM import_fingerprints WHERE version = $1`, version); err != nil {
		return 0, fmt.Errorf("failed to delete fingerprints: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit version delete: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func collectProcedures(rows pgx.Rows) ([]Procedure, error) {
	defer rows.Close()

	var out []Procedure
	for rows.Next() {
		var p Procedure
		if err := rows.Scan(
			&p.Code,
			&p.Description,
			&p.SurgicalValue,
			&p.RelativeUnitValue,
			&p.FilmQuantity,
			&p.Version,
			&p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan procedure: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read procedures: %w", err)
	}
	return out, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
