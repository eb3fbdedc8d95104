package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/medflow/stock-ledger/internal/stock/service"
	"github.com/medflow/stock-ledger/pkg/httputil"
	"github.com/medflow/stock-ledger/pkg/logger"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ReportHandler serves the dashboard and the movement log
type ReportHandler struct {
	ledger *service.Ledger
	logger *logger.Logger
}

// NewReportHandler creates a new report handler
func NewReportHandler(ledger *service.Ledger, log *logger.Logger) *ReportHandler {
	return &ReportHandler{
		ledger: ledger,
		logger: log,
	}
}

// DashboardStats returns the dashboard counters
func (h *ReportHandler) DashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.ledger.GetDashboardStats(r.Context())
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, stats)
}

// Movements returns the grouped movement log. The filter defaults to today.
func (h *ReportHandler) Movements(w http.ResponseWriter, r *http.Request) {
	log, err := h.ledger.GetMovementLog(r.Context(), filterParam(r))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, log, &httputil.Meta{
		Total:  len(log.Groups),
		Filter: log.Filter,
	})
}

// ExportMovements serves the grouped movement log as an XLSX download
func (h *ReportHandler) ExportMovements(w http.ResponseWriter, r *http.Request) {
	data, log, err := h.ledger.ExportMovementLog(r.Context(), filterParam(r))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	filename := fmt.Sprintf("stock-movements-%s-%s.xlsx", log.Filter, log.To.Format("2006-01-02"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

func filterParam(r *http.Request) string {
	if f := r.URL.Query().Get("filter"); f != "" {
		return f
	}
	return service.FilterToday
}
