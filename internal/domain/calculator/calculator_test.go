package calculator

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/cbhpm-tables/internal/domain/catalog/repository"
)

func newCalculator(t *testing.T) *Calculator {
	t.Helper()
	repo := repository.NewMemoryCatalogRepository()
	_, err := repo.InsertProcedures(context.Background(), []repository.Procedure{
		{Code: "40808041", Description: "Radiografia de tórax", SurgicalValue: 100.50, RelativeUnitValue: 2, FilmQuantity: 0.5, Version: "2022"},
	})
	require.NoError(t, err)
	return NewCalculator(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCalculator_Calculate(t *testing.T) {
	film := 30.0

	tests := []struct {
		name         string
		req          Request
		wantSurgical int64
		wantUCO      int64
		wantFilm     int64
		wantTotal    int64
		wantAdjusted []string
	}{
		{
			name:         "no adjustment",
			req:          Request{Code: "40808041", Version: "2022"},
			wantSurgical: 10050, wantUCO: 200, wantFilm: 1085, wantTotal: 11335,
			wantAdjusted: []string{},
		},
		{
			name:         "adjustment on porte only",
			req:          Request{Code: "40808041", Version: "2022", AdjustmentPercent: 10, ApplyToSurgical: true},
			wantSurgical: 11055, wantUCO: 200, wantFilm: 1085, wantTotal: 12340,
			wantAdjusted: []string{ComponentSurgical},
		},
		{
			name: "adjustment on all components",
			req: Request{Code: "40808041", Version: "2022", AdjustmentPercent: 10,
				ApplyToSurgical: true, ApplyToRelativeUnit: true, ApplyToFilm: true},
			wantSurgical: 11055, wantUCO: 220, wantFilm: 1194, wantTotal: 12469,
			wantAdjusted: []string{ComponentSurgical, ComponentRelativeUnit, ComponentFilm},
		},
		{
			name:         "flags without adjustment change nothing",
			req:          Request{Code: "40808041", Version: "2022", ApplyToSurgical: true, ApplyToFilm: true},
			wantSurgical: 10050, wantUCO: 200, wantFilm: 1085, wantTotal: 11335,
			wantAdjusted: []string{},
		},
		{
			name:         "custom film value",
			req:          Request{Code: "40808041", Version: "2022", FilmValue: &film},
			wantSurgical: 10050, wantUCO: 200, wantFilm: 1500, wantTotal: 11750,
			wantAdjusted: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := newCalculator(t).Calculate(context.Background(), tt.req)
			require.NoError(t, err)

			assert.Equal(t, tt.wantSurgical, res.Surgical.Amount())
			assert.Equal(t, tt.wantUCO, res.RelativeUnit.Amount())
			assert.Equal(t, tt.wantFilm, res.Film.Amount())
			assert.Equal(t, tt.wantTotal, res.Total.Amount())
			assert.Equal(t, tt.wantAdjusted, res.AdjustedComponents)
		})
	}
}

func TestCalculator_UCOValue(t *testing.T) {
	calc := newCalculator(t).WithUCOValue(15.5)

	res, err := calc.Calculate(context.Background(), Request{Code: "40808041", Version: "2022"})
	require.NoError(t, err)
	assert.Equal(t, int64(3100), res.RelativeUnit.Amount())
	assert.Equal(t, "R$ 142,35", res.Total.BRL())
}

func TestCalculator_Errors(t *testing.T) {
	calc := newCalculator(t)
	negative := -1.0

	tests := []struct {
		name    string
		req     Request
		wantErr error
	}{
		{"missing code", Request{Version: "2022"}, ErrInvalidRequest},
		{"missing version", Request{Code: "40808041"}, ErrInvalidRequest},
		{"negative adjustment", Request{Code: "40808041", Version: "2022", AdjustmentPercent: -5}, ErrInvalidRequest},
		{"negative film value", Request{Code: "40808041", Version: "2022", FilmValue: &negative}, ErrInvalidRequest},
		{"unknown procedure", Request{Code: "1", Version: "2022"}, repository.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := calc.Calculate(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
