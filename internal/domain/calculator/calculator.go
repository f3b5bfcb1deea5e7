// Package calculator prices a procedure from its table components: the
// surgical fee, the operational cost units and the film quantity.
package calculator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/cbhpm-tables/internal/domain/catalog/repository"
	"github.com/FACorreiaa/cbhpm-tables/pkg/money"
)

const (
	DefaultUCOValue  = 1.00
	DefaultFilmValue = 21.70
)

var ErrInvalidRequest = errors.New("invalid calculation request")

// Component names reported in Result.AdjustedComponents.
const (
	ComponentSurgical     = "porte"
	ComponentRelativeUnit = "uco"
	ComponentFilm         = "filme"
)

// Request asks for the price of one procedure. The adjustment percentage is
// applied only to the components whose flag is set. A nil FilmValue uses the
// calculator default.
type Request struct {
	Code                string   `json:"code"`
	Version             string   `json:"version"`
	AdjustmentPercent   float64  `json:"adjustment_percent"`
	ApplyToSurgical     bool     `json:"apply_to_surgical"`
	ApplyToRelativeUnit bool     `json:"apply_to_relative_unit"`
	ApplyToFilm         bool     `json:"apply_to_film"`
	FilmValue           *float64 `json:"film_value,omitempty"`
}

// Result is the priced procedure.
type Result struct {
	Code               string       `json:"code"`
	Description        string       `json:"description"`
	Version            string       `json:"version"`
	Surgical           *money.Money `json:"surgical"`
	RelativeUnit       *money.Money `json:"relative_unit"`
	Film               *money.Money `json:"film"`
	Total              *money.Money `json:"total"`
	AdjustmentPercent  float64      `json:"adjustment_percent"`
	AdjustedComponents []string     `json:"adjusted_components"`
	UCOValue           float64      `json:"uco_value"`
	FilmValue          float64      `json:"film_value"`
}

// ProcedureGetter loads the procedure being priced.
type ProcedureGetter interface {
	GetProcedure(ctx context.Context, code, version string) (*repository.Procedure, error)
}

// Calculator prices procedures with configured unit values.
type Calculator struct {
	procedures ProcedureGetter
	ucoValue   decimal.Decimal
	filmValue  decimal.Decimal
	logger     *slog.Logger
}

// NewCalculator creates a calculator with the default unit values
func NewCalculator(procedures ProcedureGetter, logger *slog.Logger) *Calculator {
	return &Calculator{
		procedures: procedures,
		ucoValue:   decimal.NewFromFloat(DefaultUCOValue),
		filmValue:  decimal.NewFromFloat(DefaultFilmValue),
		logger:     logger,
	}
}

// WithUCOValue sets the monetary value of one operational cost unit
func (c *Calculator) WithUCOValue(v float64) *Calculator {
	if v >= 0 {
		c.ucoValue = decimal.NewFromFloat(v)
	}
	return c
}

// WithFilmValue sets the default price of one square metre of film
func (c *Calculator) WithFilmValue(v float64) *Calculator {
	if v >= 0 {
		c.filmValue = decimal.NewFromFloat(v)
	}
	return c
}

// Calculate loads the procedure and prices it.
func (c *Calculator) Calculate(ctx context.Context, req Request) (*Result, error) {
	req.Code = strings.TrimSpace(req.Code)
	req.Version = strings.TrimSpace(req.Version)
	if req.Code == "" || req.Version == "" {
		return nil, fmt.Errorf("%w: code and version are required", ErrInvalidRequest)
	}
	if req.AdjustmentPercent < 0 {
		return nil, fmt.Errorf("%w: adjustment must not be negative", ErrInvalidRequest)
	}
	if req.FilmValue != nil && *req.FilmValue < 0 {
		return nil, fmt.Errorf("%w: film value must not be negative", ErrInvalidRequest)
	}

	p, err := c.procedures.GetProcedure(ctx, req.Code, req.Version)
	if err != nil {
		return nil, err
	}

	res := c.Price(*p, req)
	c.logger.Debug("procedure priced",
		slog.String("code", p.Code),
		slog.String("version", p.Version),
		slog.String("total", res.Total.String()),
	)
	return res, nil
}

// Price computes the fee of p:
//
//	porte = surgical * f_porte
//	uco   = relative units * uco value * f_uco
//	filme = film quantity * film value * f_filme
//
// where f = 1 + adjustment/100 for flagged components when the adjustment is
// not zero, and 1 otherwise. The total is the sum before rounding to cents.
func (c *Calculator) Price(p repository.Procedure, req Request) *Result {
	filmValue := c.filmValue
	if req.FilmValue != nil {
		filmValue = decimal.NewFromFloat(*req.FilmValue)
	}

	adj := decimal.NewFromFloat(req.AdjustmentPercent)
	factor := func(apply bool) decimal.Decimal {
		if apply && !adj.IsZero() {
			return decimal.NewFromInt(1).Add(adj.Div(decimal.NewFromInt(100)))
		}
		return decimal.NewFromInt(1)
	}

	surgical := decimal.NewFromFloat(p.SurgicalValue).Mul(factor(req.ApplyToSurgical))
	relative := decimal.NewFromFloat(p.RelativeUnitValue).Mul(c.ucoValue).Mul(factor(req.ApplyToRelativeUnit))
	film := decimal.NewFromFloat(p.FilmQuantity).Mul(filmValue).Mul(factor(req.ApplyToFilm))
	total := surgical.Add(relative).Add(film)

	res := &Result{
		Code:               p.Code,
		Description:        p.Description,
		Version:            p.Version,
		Surgical:           money.NewFromDecimal(surgical, money.BRL),
		RelativeUnit:       money.NewFromDecimal(relative, money.BRL),
		Film:               money.NewFromDecimal(film, money.BRL),
		Total:              money.NewFromDecimal(total, money.BRL),
		AdjustmentPercent:  req.AdjustmentPercent,
		AdjustedComponents: []string{},
		UCOValue:           c.ucoValue.InexactFloat64(),
		FilmValue:          filmValue.InexactFloat64(),
	}

	if !adj.IsZero() {
		if req.ApplyToSurgical {
			res.AdjustedComponents = append(res.AdjustedComponents, ComponentSurgical)
		}
		if req.ApplyToRelativeUnit {
			res.AdjustedComponents = append(res.AdjustedComponents, ComponentRelativeUnit)
		}
		if req.ApplyToFilm {
			res.AdjustedComponents = append(res.AdjustedComponents, ComponentFilm)
		}
	}
	return res
}
