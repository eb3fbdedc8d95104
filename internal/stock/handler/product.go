package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/medflow/stock-ledger/internal/stock/service"
	"github.com/medflow/stock-ledger/pkg/errors"
	"github.com/medflow/stock-ledger/pkg/httputil"
	"github.com/medflow/stock-ledger/pkg/logger"
)

// ProductHandler handles product endpoints
type ProductHandler struct {
	ledger *service.Ledger
	logger *logger.Logger
}

// NewProductHandler creates a new product handler
func NewProductHandler(ledger *service.Ledger, log *logger.Logger) *ProductHandler {
	return &ProductHandler{
		ledger: ledger,
		logger: log,
	}
}

// Lookup returns a product by the barcode query parameter
func (h *ProductHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	barcode := r.URL.Query().Get("barcode")
	if barcode == "" {
		httputil.Error(w, errors.Validation(map[string]string{"barcode": "this field is required"}))
		return
	}

	product, err := h.ledger.GetProductByBarcode(r.Context(), barcode)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, product)
}

// Create registers a product with zero stock
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.CreateProductInput
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	product, err := h.ledger.CreateProduct(r.Context(), req)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	httputil.Created(w, product)
}

// ListLots lists a product's lots in depletion order
func (h *ProductHandler) ListLots(w http.ResponseWriter, r *http.Request) {
	barcode := chi.URLParam(r, "barcode")

	lots, err := h.ledger.ListLots(r.Context(), barcode)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, lots, &httputil.Meta{Total: len(lots)})
}
