package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/medflow/stock-ledger/internal/stock/service"
	"github.com/medflow/stock-ledger/pkg/errors"
	"github.com/medflow/stock-ledger/pkg/httputil"
	"github.com/medflow/stock-ledger/pkg/logger"
	"github.com/medflow/stock-ledger/pkg/messaging"
)

// Routes mounts every stock endpoint on r
func Routes(r chi.Router, ledger *service.Ledger, log *logger.Logger) {
	products := NewProductHandler(ledger, log)
	stock := NewStockHandler(ledger, log)
	reports := NewReportHandler(ledger, log)

	r.Use(correlateEvents)

	r.Route("/products", func(r chi.Router) {
		r.Get("/", products.Lookup)
		r.Post("/", products.Create)
		r.Get("/{barcode}/lots", products.ListLots)
	})

	r.Post("/in", stock.In)
	r.Post("/out", stock.Out)

	r.Get("/dashboard/stats", reports.DashboardStats)
	r.Get("/movements", reports.Movements)
	r.Get("/movements/export", reports.ExportMovements)
}

// respondError writes err and logs anything that is not a known application error
func respondError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	var appErr *errors.AppError
	if !errors.As(err, &appErr) || appErr.StatusCode >= http.StatusInternalServerError {
		log.WithRequestID(httputil.GetRequestID(r.Context())).Error().
			Err(err).
			Str("path", r.URL.Path).
			Msg("request failed")
	}
	httputil.Error(w, err)
}

// correlateEvents tags events published while serving a request with its request id
func correlateEvents(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := httputil.GetRequestID(r.Context()); id != "" {
			r = r.WithContext(messaging.WithCorrelationID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}
