package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/FACorreiaa/cbhpm-tables/internal/domain/calculator"
	"github.com/FACorreiaa/cbhpm-tables/internal/domain/catalog/repository"
	"github.com/FACorreiaa/cbhpm-tables/pkg/httpx"
)

// Pricer prices one procedure.
type Pricer interface {
	Calculate(ctx context.Context, req calculator.Request) (*calculator.Result, error)
}

// CalculatorHandler serves fee calculations
type CalculatorHandler struct {
	pricer Pricer
	logger *slog.Logger
}

// NewCalculatorHandler creates a new calculator handler
func NewCalculatorHandler(pricer Pricer, logger *slog.Logger) *CalculatorHandler {
	return &CalculatorHandler{pricer: pricer, logger: logger}
}

// Calculate handles POST /calculate
func (h *CalculatorHandler) Calculate(w http.ResponseWriter, r *http.Request) {
	var req calculator.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		httpx.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.pricer.Calculate(r.Context(), req)
	switch {
	case errors.Is(err, calculator.ErrInvalidRequest):
		httpx.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, repository.ErrNotFound):
		httpx.RespondWithError(w, http.StatusNotFound, "procedure not found")
		return
	case err != nil:
		h.logger.Error("failed to calculate", slog.String("code", req.Code), slog.Any("error", err))
		httpx.RespondWithError(w, http.StatusInternalServerError, "failed to calculate")
		return
	}
	httpx.RespondWithJSON(w, http.StatusOK, res)
}
