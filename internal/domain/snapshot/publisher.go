// Package snapshot publishes each table version as a CSV file to storage,
// after imports and on a schedule, and archives the uploaded source files.
package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/FACorreiaa/cbhpm-tables/internal/domain/catalog/repository"
	catalogservice "github.com/FACorreiaa/cbhpm-tables/internal/domain/catalog/service"
	importservice "github.com/FACorreiaa/cbhpm-tables/internal/domain/import/service"
	"github.com/FACorreiaa/cbhpm-tables/pkg/storage"
)

const (
	SnapshotNamespace = "snapshots"
	UploadNamespace   = "uploads"

	DefaultMaxRetries  = 5
	DefaultBaseBackoff = 500 * time.Millisecond
)

// Catalog supplies the tables to publish.
type Catalog interface {
	ListVersions(ctx context.Context) ([]string, error)
	Procedures(ctx context.Context, version string) ([]repository.Procedure, error)
}

// Publisher writes version snapshots to storage with retries.
type Publisher struct {
	catalog     Catalog
	store       storage.Storage
	maxRetries  uint64
	baseBackoff time.Duration
	logger      *slog.Logger
}

// NewPublisher creates a snapshot publisher
func NewPublisher(catalog Catalog, store storage.Storage, logger *slog.Logger) *Publisher {
	return &Publisher{
		catalog:     catalog,
		store:       store,
		maxRetries:  DefaultMaxRetries,
		baseBackoff: DefaultBaseBackoff,
		logger:      logger,
	}
}

// WithRetry sets how many times a failed write is retried and the first
// Fibonacci backoff step.
func (p *Publisher) WithRetry(maxRetries uint64, base time.Duration) *Publisher {
	p.maxRetries = maxRetries
	if base > 0 {
		p.baseBackoff = base
	}
	return p
}

// SnapshotName is the storage name of a version's snapshot.
func SnapshotName(version string) string {
	return version + ".csv"
}

// ImportCompleted archives the processed uploads and republishes the
// imported version.
func (p *Publisher) ImportCompleted(ctx context.Context, event importservice.ImportEvent) error {
	var errs []error
	for _, f := range event.Files {
		if err := p.archive(ctx, f); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := p.PublishVersion(ctx, event.Version); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (p *Publisher) archive(ctx context.Context, f importservice.ProcessedFile) error {
	name := f.Fingerprint + strings.ToLower(filepath.Ext(f.Name))
	err := p.put(ctx, UploadNamespace, name, "application/octet-stream", f.Data)
	if err != nil {
		return fmt.Errorf("failed to archive %s: %w", f.Name, err)
	}
	p.logger.Debug("upload archived", slog.String("file", f.Name), slog.String("name", name))
	return nil
}

// PublishVersion exports version to CSV and stores it under its snapshot name.
func (p *Publisher) PublishVersion(ctx context.Context, version string) (*storage.FileInfo, error) {
	ps, err := p.catalog.Procedures(ctx, version)
	if err != nil {
		return nil, fmt.Errorf("failed to load version %s: %w", version, err)
	}

	var buf bytes.Buffer
	if err := catalogservice.WriteCSV(&buf, ps); err != nil {
		return nil, err
	}

	name := SnapshotName(version)
	if err := p.put(ctx, SnapshotNamespace, name, catalogservice.ExportCSV.ContentType(), buf.Bytes()); err != nil {
		return nil, fmt.Errorf("failed to publish version %s: %w", version, err)
	}

	info, err := p.store.GetInfo(ctx, SnapshotNamespace, storage.NameID(SnapshotNamespace, name))
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot info: %w", err)
	}

	p.logger.Info("snapshot published",
		slog.String("version", version),
		slog.Int("procedures", len(ps)),
		slog.Int64("bytes", info.Size),
	)
	return info, nil
}

// PublishAll republishes every stored version.
func (p *Publisher) PublishAll(ctx context.Context) error {
	versions, err := p.catalog.ListVersions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list versions: %w", err)
	}

	var errs []error
	for _, v := range versions {
		if _, err := p.PublishVersion(ctx, v); err != nil {
			p.logger.Warn("failed to publish snapshot", slog.String("version", v), slog.Any("error", err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Publisher) put(ctx context.Context, namespace, name, contentType string, data []byte) error {
	b := retry.WithMaxRetries(p.maxRetries, retry.NewFibonacci(p.baseBackoff))

	attempt := 0
	return retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		if _, err := p.store.Put(ctx, namespace, name, contentType, bytes.NewReader(data)); err != nil {
			p.logger.Warn("storage write failed",
				slog.String("name", name),
				slog.Int("attempt", attempt),
				slog.Any("error", err),
			)
			return retry.RetryableError(err)
		}
		return nil
	})
}
