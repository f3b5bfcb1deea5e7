// Package normalizer converts resolved table rows into canonical CBHPM records,
// parsing Brazilian-formatted numbers and dropping rows without a code or
// description.
package normalizer

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/FACorreiaa/cbhpm-tables/internal/domain/import/parser"
	"github.com/FACorreiaa/cbhpm-tables/internal/domain/import/resolver"
)

// NumberMode selects how text values of numeric columns are read.
type NumberMode int

const (
	// CommaDecimal strips every '.' and turns ',' into the decimal point, so
	// "1.234,56" reads as 1234.56. A plain "1234.56" reads as 123456.
	CommaDecimal NumberMode = iota
	// DetectDotDecimal reads values with a single '.', no ',' and a fraction
	// that is not exactly three digits as dot-decimal ("1234.56" is 1234.56).
	// Everything else follows CommaDecimal.
	DetectDotDecimal
)

func (m NumberMode) String() string {
	switch m {
	case DetectDotDecimal:
		return "detect-dot"
	default:
		return "comma"
	}
}

// ParseNumberMode reads the configuration spelling of a mode.
func ParseNumberMode(s string) (NumberMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "comma", "comma-decimal":
		return CommaDecimal, nil
	case "detect-dot", "detect-dot-decimal":
		return DetectDotDecimal, nil
	}
	return CommaDecimal, fmt.Errorf("unknown number mode %q", s)
}

// SkipReason says why a row produced no record.
type SkipReason string

const (
	SkipMissingCode        SkipReason = "missing code"
	SkipMissingDescription SkipReason = "missing description"
)

// Record is one canonical row without its version label.
type Record struct {
	Code              string
	Description       string
	SurgicalValue     float64
	RelativeUnitValue float64
	FilmQuantity      float64
}

// Outcome is either a Record or a skipped row.
type Outcome struct {
	Record  Record
	Skipped bool
	Reason  SkipReason
}

// Normalizer applies a NumberMode to every row of a table.
type Normalizer struct {
	mode NumberMode
}

// NewNormalizer creates a normalizer.
func NewNormalizer(mode NumberMode) *Normalizer {
	return &Normalizer{mode: mode}
}

// Mode returns the number mode in use.
func (n *Normalizer) Mode() NumberMode {
	return n.mode
}

// Normalize converts one row. Numeric values that are missing or unreadable
// become 0; a row with an empty code or description is skipped.
func (n *Normalizer) Normalize(row parser.Row, res resolver.Resolution) Outcome {
	code := textField(row, res, resolver.FieldCode)
	if code == "" {
		return Outcome{Skipped: true, Reason: SkipMissingCode}
	}
	description := textField(row, res, resolver.FieldDescription)
	if description == "" {
		return Outcome{Skipped: true, Reason: SkipMissingDescription}
	}

	return Outcome{Record: Record{
		Code:              code,
		Description:       description,
		SurgicalValue:     n.numericField(row, res, resolver.FieldSurgicalValue),
		RelativeUnitValue: n.numericField(row, res, resolver.FieldRelativeUnitValue),
		FilmQuantity:      n.numericField(row, res, resolver.FieldFilmQuantity),
	}}
}

// NormalizeAll converts rows and returns the records plus the number of rows
// skipped.
func (n *Normalizer) NormalizeAll(rows []parser.Row, res resolver.Resolution) ([]Record, int) {
	records := make([]Record, 0, len(rows))
	skipped := 0
	for _, row := range rows {
		out := n.Normalize(row, res)
		if out.Skipped {
			skipped++
			continue
		}
		records = append(records, out.Record)
	}
	return records, skipped
}

func textField(row parser.Row, res resolver.Resolution, field resolver.Field) string {
	idx, ok := res.Column(field)
	if !ok {
		return ""
	}
	return strings.TrimSpace(row.At(idx).String())
}

func (n *Normalizer) numericField(row parser.Row, res resolver.Resolution, field resolver.Field) float64 {
	idx, ok := res.Column(field)
	if !ok {
		return 0
	}
	return ParseNumber(row.At(idx), n.mode)
}

// ParseNumber reads a cell as a non-negative number. Native numbers are used
// as they are; text goes through ParseLocaleNumber. Failures yield 0.
func ParseNumber(c parser.Cell, mode NumberMode) float64 {
	if c.IsNumber {
		return clamp(c.Number)
	}
	v, ok := ParseLocaleNumber(c.Text, mode)
	if !ok {
		return 0
	}
	return clamp(v)
}

// ParseLocaleNumber parses text such as "1.234,56" or "R$ 100,50".
func ParseLocaleNumber(s string, mode NumberMode) (float64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\u00a0", " "))
	s = strings.TrimSpace(strings.TrimPrefix(s, "R$"))
	if s == "" {
		return 0, false
	}

	if !(mode == DetectDotDecimal && isDotDecimal(s)) {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func isDotDecimal(s string) bool {
	if strings.Contains(s, ",") || strings.Count(s, ".") != 1 {
		return false
	}
	return len(s)-strings.Index(s, ".")-1 != 3
}

// clamp keeps stored fee components non-negative.
func clamp(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
