package handler

import (
	"net/http"

	"github.com/medflow/stock-ledger/internal/stock/service"
	"github.com/medflow/stock-ledger/pkg/errors"
	"github.com/medflow/stock-ledger/pkg/httputil"
	"github.com/medflow/stock-ledger/pkg/logger"
)

// StockHandler handles stock-in and stock-out
type StockHandler struct {
	ledger *service.Ledger
	logger *logger.Logger
}

// NewStockHandler creates a new stock handler
func NewStockHandler(ledger *service.Ledger, log *logger.Logger) *StockHandler {
	return &StockHandler{
		ledger: ledger,
		logger: log,
	}
}

// stockInRequest accepts either one item inline or a batch under "items"
type stockInRequest struct {
	service.StockInItem
	Items []service.StockInItem `json:"items"`
}

type stockOutRequest struct {
	service.StockOutItem
	Items []service.StockOutItem `json:"items"`
}

var errEmptyBatch = errors.Validation(map[string]string{"items": "must contain at least one item"})

// In receives stock. A body with "items" is processed as a bulk stock-in.
func (h *StockHandler) In(w http.ResponseWriter, r *http.Request) {
	var req stockInRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	if req.Items != nil {
		if len(req.Items) == 0 {
			httputil.Error(w, errEmptyBatch)
			return
		}
		res := h.ledger.BulkStockIn(r.Context(), req.Items)
		if err := res.Err(); err != nil {
			httputil.JSONWithError(w, err, res)
			return
		}
		httputil.JSON(w, http.StatusOK, res)
		return
	}

	if err := httputil.Validate(req.StockInItem); err != nil {
		httputil.Error(w, err)
		return
	}

	res, err := h.ledger.StockIn(r.Context(), req.StockInItem)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	httputil.Created(w, res)
}

// Out dispenses stock nearest-expiry first. A body with "items" is processed as a bulk stock-out.
func (h *StockHandler) Out(w http.ResponseWriter, r *http.Request) {
	var req stockOutRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	if req.Items != nil {
		if len(req.Items) == 0 {
			httputil.Error(w, errEmptyBatch)
			return
		}
		res := h.ledger.BulkStockOut(r.Context(), req.Items)
		if err := res.Err(); err != nil {
			httputil.JSONWithError(w, err, res)
			return
		}
		httputil.JSON(w, http.StatusOK, res)
		return
	}

	if err := httputil.Validate(req.StockOutItem); err != nil {
		httputil.Error(w, err)
		return
	}

	res, err := h.ledger.StockOut(r.Context(), req.StockOutItem)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, res)
}
