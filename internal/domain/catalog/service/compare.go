package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/cbhpm-tables/internal/domain/catalog/repository"
)

var hundred = decimal.NewFromInt(100)

// ComponentDiff compares one fee component between two versions.
// PercentChange is nil when the base value is zero.
type ComponentDiff struct {
	Base          float64  `json:"base"`
	Target        float64  `json:"target"`
	PercentChange *float64 `json:"percent_change"`
}

// ComparisonRow is a procedure present in both versions.
type ComparisonRow struct {
	Code              string        `json:"code"`
	Description       string        `json:"description"`
	SurgicalValue     ComponentDiff `json:"surgical_value"`
	RelativeUnitValue ComponentDiff `json:"relative_unit_value"`
	FilmQuantity      ComponentDiff `json:"film_quantity"`
}

// Comparison is the diff of two versions joined on procedure code.
type Comparison struct {
	Base         string          `json:"base"`
	Target       string          `json:"target"`
	Rows         []ComparisonRow `json:"rows"`
	OnlyInBase   []string        `json:"only_in_base"`
	OnlyInTarget []string        `json:"only_in_target"`
}

// Compare joins base and target on code.
func (s *Service) Compare(ctx context.Context, base, target string) (*Comparison, error) {
	base = strings.TrimSpace(base)
	target = strings.TrimSpace(target)
	if base == "" || target == "" {
		return nil, ErrVersionRequired
	}

	baseRows, err := s.repo.ListProcedures(ctx, base)
	if err != nil {
		return nil, fmt.Errorf("failed to list base version: %w", err)
	}
	targetRows, err := s.repo.ListProcedures(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("failed to list target version: %w", err)
	}
	if len(baseRows) == 0 || len(targetRows) == 0 {
		return nil, repository.ErrNotFound
	}

	return compareProcedures(base, target, baseRows, targetRows), nil
}

func compareProcedures(base, target string, baseRows, targetRows []repository.Procedure) *Comparison {
	byCode := make(map[string]repository.Procedure, len(targetRows))
	for _, p := range targetRows {
		byCode[p.Code] = p
	}

	cmp := &Comparison{
		Base:         base,
		Target:       target,
		Rows:         []ComparisonRow{},
		OnlyInBase:   []string{},
		OnlyInTarget: []string{},
	}

	matched := make(map[string]struct{}, len(baseRows))
	for _, b := range baseRows {
		t, ok := byCode[b.Code]
		if !ok {
			cmp.OnlyInBase = append(cmp.OnlyInBase, b.Code)
			continue
		}
		matched[b.Code] = struct{}{}
		cmp.Rows = append(cmp.Rows, ComparisonRow{
			Code:              b.Code,
			Description:       t.Description,
			SurgicalValue:     diff(b.SurgicalValue, t.SurgicalValue),
			RelativeUnitValue: diff(b.RelativeUnitValue, t.RelativeUnitValue),
			FilmQuantity:      diff(b.FilmQuantity, t.FilmQuantity),
		})
	}
	for _, t := range targetRows {
		if _, ok := matched[t.Code]; !ok {
			cmp.OnlyInTarget = append(cmp.OnlyInTarget, t.Code)
		}
	}

	sort.Slice(cmp.Rows, func(i, j int) bool { return cmp.Rows[i].Code < cmp.Rows[j].Code })
	sort.Strings(cmp.OnlyInBase)
	sort.Strings(cmp.OnlyInTarget)
	return cmp
}

func diff(base, target float64) ComponentDiff {
	d := ComponentDiff{Base: base, Target: target}
	pct, ok := PercentChange(base, target)
	if ok {
		d.PercentChange = &pct
	}
	return d
}

// PercentChange returns (target-base)/base*100 rounded to two places. It
// reports false when base is zero.
func PercentChange(base, target float64) (float64, bool) {
	b := decimal.NewFromFloat(base)
	if b.IsZero() {
		return 0, false
	}
	t := decimal.NewFromFloat(target)
	pct, _ := t.Sub(b).Div(b).Mul(hundred).Round(2).Float64()
	return pct, true
}
