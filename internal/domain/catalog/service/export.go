package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/FACorreiaa/cbhpm-tables/internal/domain/catalog/repository"
)

// ExportFormat selects the file type of an export.
type ExportFormat string

const (
	ExportXLSX ExportFormat = "xlsx"
	ExportCSV  ExportFormat = "csv"

	ExportSheet = "CBHPM"
)

var ErrUnsupportedExport = errors.New("unsupported export format")

// ParseExportFormat reads a query parameter, defaulting to xlsx.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "xlsx":
		return ExportXLSX, nil
	case "csv":
		return ExportCSV, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedExport, s)
}

// ContentType is the MIME type of the format.
func (f ExportFormat) ContentType() string {
	if f == ExportCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// FileName is the download name for a version.
func (f ExportFormat) FileName(version string) string {
	return fmt.Sprintf("cbhpm_%s.%s", version, f)
}

var exportHeaders = []string{"Código", "Descrição", "Porte", "UCO", "Filme", "Versão"}

// exportRow is one CSV line. Numbers use a decimal comma so the file reads
// back through the importer unchanged.
type exportRow struct {
	Code              string `csv:"Código"`
	Description       string `csv:"Descrição"`
	SurgicalValue     string `csv:"Porte"`
	RelativeUnitValue string `csv:"UCO"`
	FilmQuantity      string `csv:"Filme"`
	Version           string `csv:"Versão"`
}

// Export writes every procedure of version to w.
func (s *Service) Export(ctx context.Context, version string, format ExportFormat, w io.Writer) error {
	ps, err := s.Procedures(ctx, version)
	if err != nil {
		return err
	}

	switch format {
	case ExportCSV:
		return WriteCSV(w, ps)
	case ExportXLSX:
		return WriteXLSX(w, ps)
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedExport, format)
}

// WriteCSV writes procedures as a semicolon separated table.
func WriteCSV(w io.Writer, ps []repository.Procedure) error {
	rows := make([]*exportRow, 0, len(ps))
	for _, p := range ps {
		rows = append(rows, &exportRow{
			Code:              p.Code,
			Description:       p.Description,
			SurgicalValue:     CommaDecimal(p.SurgicalValue),
			RelativeUnitValue: CommaDecimal(p.RelativeUnitValue),
			FilmQuantity:      CommaDecimal(p.FilmQuantity),
			Version:           p.Version,
		})
	}

	cw := csv.NewWriter(w)
	cw.Comma = ';'
	if err := gocsv.MarshalCSV(rows, gocsv.NewSafeCSVWriter(cw)); err != nil {
		return fmt.Errorf("failed to write CSV: %w", err)
	}
	return nil
}

// WriteXLSX writes procedures to a workbook with one sheet, numbers kept as
// numeric cells.
func WriteXLSX(w io.Writer, ps []repository.Procedure) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ExportSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	head := make([]interface{}, len(exportHeaders))
	for i, h := range exportHeaders {
		head[i] = h
	}
	if err := f.SetSheetRow(ExportSheet, "A1", &head); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, p := range ps {
		row := []interface{}{p.Code, p.Description, p.SurgicalValue, p.RelativeUnitValue, p.FilmQuantity, p.Version}
		if err := f.SetSheetRow(ExportSheet, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// CommaDecimal formats v with a decimal comma and no grouping: 1234.5 is
// "1234,5".
func CommaDecimal(v float64) string {
	return strings.Replace(decimal.NewFromFloat(v).String(), ".", ",", 1)
}
