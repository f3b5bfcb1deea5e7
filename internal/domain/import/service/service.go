// Package service provides the import orchestration logic: fingerprint each
// upload, parse it, resolve its columns, normalize its rows and store them
// under a version label.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/cbhpm-tables/internal/domain/catalog/repository"
	"github.com/FACorreiaa/cbhpm-tables/internal/domain/import/normalizer"
	"github.com/FACorreiaa/cbhpm-tables/internal/domain/import/parser"
	"github.com/FACorreiaa/cbhpm-tables/internal/domain/import/resolver"
	"github.com/FACorreiaa/cbhpm-tables/pkg/metrics"
)

// ErrInvalidVersionLabel rejects an import call before any file is touched.
var ErrInvalidVersionLabel = errors.New("version label is required")

const tracerName = "github.com/FACorreiaa/cbhpm-tables/internal/domain/import/service"

// File is one upload: its name and exact bytes.
type File struct {
	Name string
	Data []byte
}

// Outcome is the final state of one file in an import call.
type Outcome string

const (
	OutcomeProcessed       Outcome = "processed"
	OutcomeAlreadyImported Outcome = "already_imported"
	OutcomeReadError       Outcome = "read_error"
	OutcomeMissingColumns  Outcome = "missing_columns"
	OutcomeStoreError      Outcome = "store_error"
)

// FileResult reports what happened to one file.
type FileResult struct {
	Name        string  `json:"name"`
	Fingerprint string  `json:"fingerprint"`
	Outcome     Outcome `json:"outcome"`
	Format      string  `json:"format,omitempty"`
	Encoding    string  `json:"encoding,omitempty"`
	Delimiter   string  `json:"delimiter,omitempty"`

	RowsRead       int `json:"rows_read"`
	RowsNormalized int `json:"rows_normalized"`
	RowsSkipped    int `json:"rows_skipped"`
	RowsDuplicate  int `json:"rows_duplicate"`
	RowsInserted   int `json:"rows_inserted"`

	// MissingColumns lists the mandatory fields that did not resolve.
	MissingColumns []resolver.Field `json:"missing_columns,omitempty"`
	// UnresolvedNumeric lists numeric fields stored as 0 for every row.
	UnresolvedNumeric []resolver.Field `json:"unresolved_numeric,omitempty"`

	Message string `json:"message,omitempty"`
}

// ImportReport is the result of one ImportFiles call.
type ImportReport struct {
	RunID      uuid.UUID    `json:"run_id"`
	Version    string       `json:"version"`
	Processed  int          `json:"processed"`
	Files      []FileResult `json:"files"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}

// Count returns how many files ended with outcome.
func (r *ImportReport) Count(outcome Outcome) int {
	n := 0
	for _, f := range r.Files {
		if f.Outcome == outcome {
			n++
		}
	}
	return n
}

// RowsInserted sums the rows stored across all files.
func (r *ImportReport) RowsInserted() int {
	n := 0
	for _, f := range r.Files {
		n += f.RowsInserted
	}
	return n
}

// ProcessedFile is a file that reached the recorded state.
type ProcessedFile struct {
	Name        string
	Fingerprint string
	Data        []byte
}

// ImportEvent is sent to notifiers when at least one file was processed.
type ImportEvent struct {
	RunID        uuid.UUID
	Version      string
	Processed    int
	RowsInserted int
	Files        []ProcessedFile
}

// Notifier reacts to completed imports (cache invalidation, snapshots).
type Notifier interface {
	ImportCompleted(ctx context.Context, event ImportEvent) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, event ImportEvent) error

func (f NotifierFunc) ImportCompleted(ctx context.Context, event ImportEvent) error {
	return f(ctx, event)
}

// Store is the persistence the import needs.
type Store interface {
	FingerprintExists(ctx context.Context, fingerprint string) (bool, error)
	InsertProcedures(ctx context.Context, procedures []repository.Procedure) (int, error)
	RecordFingerprint(ctx context.Context, fp repository.ImportFingerprint) error
}

// ImportService orchestrates file imports
type ImportService struct {
	store      Store
	aliases    resolver.AliasTable
	normalizer *normalizer.Normalizer
	notifiers  []Notifier
	metrics    *metrics.ImportMetrics
	tracer     trace.Tracer
	logger     *slog.Logger
}

// NewImportService creates a new import service
func NewImportService(store Store, logger *slog.Logger) *ImportService {
	return &ImportService{
		store:      store,
		aliases:    resolver.DefaultAliases,
		normalizer: normalizer.NewNormalizer(normalizer.CommaDecimal),
		tracer:     otel.Tracer(tracerName),
		logger:     logger,
	}
}

// WithAliases replaces the header alias table
func (s *ImportService) WithAliases(aliases resolver.AliasTable) *ImportService {
	s.aliases = aliases
	return s
}

// WithNumberMode changes how text numbers are parsed
func (s *ImportService) WithNumberMode(mode normalizer.NumberMode) *ImportService {
	s.normalizer = normalizer.NewNormalizer(mode)
	return s
}

// WithNotifier registers a notifier for completed imports
func (s *ImportService) WithNotifier(n Notifier) *ImportService {
	s.notifiers = append(s.notifiers, n)
	return s
}

// WithMetrics adds Prometheus counters
func (s *ImportService) WithMetrics(m *metrics.ImportMetrics) *ImportService {
	s.metrics = m
	return s
}

// Fingerprint returns the hex SHA-256 digest of data.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ImportFiles imports files sequentially under version. Per-file failures are
// reported in the returned report; the only error is ErrInvalidVersionLabel.
func (s *ImportService) ImportFiles(ctx context.Context, files []File, version string) (*ImportReport, error) {
	version = strings.TrimSpace(version)
	if version == "" {
		return nil, ErrInvalidVersionLabel
	}

	ctx, span := s.tracer.Start(ctx, "ImportFiles", trace.WithAttributes(
		attribute.String("cbhpm.version", version),
		attribute.Int("cbhpm.files", len(files)),
	))
	defer span.End()

	report := &ImportReport{
		RunID:     uuid.New(),
		Version:   version,
		Files:     make([]FileResult, 0, len(files)),
		StartedAt: time.Now(),
	}
	logger := s.logger.With(
		slog.String("run_id", report.RunID.String()),
		slog.String("version", version),
	)
	logger.Info("import started", slog.Int("files", len(files)))

	var processed []ProcessedFile
	for _, f := range files {
		result := s.importFile(ctx, logger, f, version)
		report.Files = append(report.Files, result)
		s.metrics.FileOutcome(string(result.Outcome))

		if result.Outcome == OutcomeProcessed {
			report.Processed++
			processed = append(processed, ProcessedFile{Name: f.Name, Fingerprint: result.Fingerprint, Data: f.Data})
		}
	}
	report.FinishedAt = time.Now()

	span.SetAttributes(attribute.Int("cbhpm.processed", report.Processed))
	logger.Info("import finished",
		slog.Int("processed", report.Processed),
		slog.Int("already_imported", report.Count(OutcomeAlreadyImported)),
		slog.Int("rows_inserted", report.RowsInserted()),
		slog.Duration("duration", report.FinishedAt.Sub(report.StartedAt)),
	)

	if report.Processed > 0 {
		s.notify(ctx, logger, ImportEvent{
			RunID:        report.RunID,
			Version:      version,
			Processed:    report.Processed,
			RowsInserted: report.RowsInserted(),
			Files:        processed,
		})
	}
	return report, nil
}

func (s *ImportService) importFile(ctx context.Context, logger *slog.Logger, f File, version string) FileResult {
	ctx, span := s.tracer.Start(ctx, "importFile", trace.WithAttributes(attribute.String("cbhpm.file", f.Name)))
	defer span.End()

	result := FileResult{Name: f.Name, Fingerprint: Fingerprint(f.Data)}
	logger = logger.With(slog.String("file", f.Name), slog.String("fingerprint", result.Fingerprint))

	fail := func(outcome Outcome, msg string, err error) FileResult {
		result.Outcome = outcome
		result.Message = msg
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, msg)
		}
		logger.Warn("file not imported", slog.String("outcome", string(outcome)), slog.String("reason", msg))
		return result
	}

	exists, err := s.store.FingerprintExists(ctx, result.Fingerprint)
	if err != nil {
		return fail(OutcomeStoreError, fmt.Sprintf("failed to check fingerprint: %v", err), err)
	}
	if exists {
		result.Outcome = OutcomeAlreadyImported
		result.Message = "file already imported"
		logger.Info("file already imported")
		return result
	}

	table, err := parser.Parse(f.Name, f.Data, parser.WithHeaderFunc(parser.ResolvesWith(s.aliases)))
	if err != nil {
		return fail(OutcomeReadError, fmt.Sprintf("failed to read file: %v", err), err)
	}
	result.Format = string(table.Format)
	if table.Dialect != nil {
		result.Encoding = string(table.Dialect.Encoding)
		result.Delimiter = string(table.Dialect.Delimiter)
	}
	result.RowsRead = len(table.Rows)

	resolution := resolver.Resolve(table.Headers, s.aliases)
	result.UnresolvedNumeric = resolution.UnresolvedNumeric()
	if resolution.Missing() {
		result.MissingColumns = resolution.MissingMandatory()
		return fail(OutcomeMissingColumns, fmt.Sprintf("missing mandatory columns: %s", joinFields(result.MissingColumns)), nil)
	}
	if len(result.UnresolvedNumeric) > 0 {
		logger.Info("numeric columns not found, storing zero",
			slog.String("fields", joinFields(result.UnresolvedNumeric)))
	}

	records, skipped := s.normalizer.NormalizeAll(table.Rows, resolution)
	result.RowsSkipped = skipped
	result.RowsNormalized = len(records)

	procedures, duplicates := toProcedures(records, version)
	result.RowsDuplicate = duplicates

	inserted, err := s.store.InsertProcedures(ctx, procedures)
	if err != nil {
		return fail(OutcomeStoreError, fmt.Sprintf("failed to store records: %v", err), err)
	}
	result.RowsInserted = inserted
	result.RowsDuplicate += len(procedures) - inserted

	err = s.store.RecordFingerprint(ctx, repository.ImportFingerprint{
		Fingerprint:  result.Fingerprint,
		Version:      version,
		FileName:     f.Name,
		RowsInserted: inserted,
	})
	if err != nil {
		return fail(OutcomeStoreError, fmt.Sprintf("failed to record fingerprint: %v", err), err)
	}

	result.Outcome = OutcomeProcessed
	s.metrics.Rows(result.RowsInserted, result.RowsDuplicate, result.RowsSkipped)
	logger.Info("file imported",
		slog.String("format", result.Format),
		slog.Int("rows_read", result.RowsRead),
		slog.Int("rows_skipped", result.RowsSkipped),
		slog.Int("rows_inserted", result.RowsInserted),
		slog.Int("rows_duplicate", result.RowsDuplicate),
	)
	return result
}

// toProcedures attaches the version and drops repeated codes within the file,
// keeping the first occurrence.
func toProcedures(records []normalizer.Record, version string) ([]repository.Procedure, int) {
	seen := make(map[string]struct{}, len(records))
	out := make([]repository.Procedure, 0, len(records))
	duplicates := 0
	for _, r := range records {
		if _, ok := seen[r.Code]; ok {
			duplicates++
			continue
		}
		seen[r.Code] = struct{}{}
		out = append(out, repository.Procedure{
			Code:              r.Code,
			Description:       r.Description,
			SurgicalValue:     r.SurgicalValue,
			RelativeUnitValue: r.RelativeUnitValue,
			FilmQuantity:      r.FilmQuantity,
			Version:           version,
		})
	}
	return out, duplicates
}

func (s *ImportService) notify(ctx context.Context, logger *slog.Logger, event ImportEvent) {
	for _, n := range s.notifiers {
		if err := n.ImportCompleted(ctx, event); err != nil {
			logger.Warn("import notifier failed", slog.Any("error", err))
		}
	}
}

func joinFields(fields []resolver.Field) string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}
