package handler_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/medflow/stock-ledger/internal/stock/events"
	"github.com/medflow/stock-ledger/internal/stock/handler"
	"github.com/medflow/stock-ledger/internal/stock/repository"
	"github.com/medflow/stock-ledger/internal/stock/service"
	"github.com/medflow/stock-ledger/pkg/httputil"
	"github.com/medflow/stock-ledger/pkg/logger"
	"github.com/medflow/stock-ledger/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	log := logger.Nop()
	clock := testutil.NewFixedClock(time.Date(2024, 12, 1, 9, 30, 0, 0, time.UTC))
	ledger := service.NewLedger(
		repository.NewMemoryStore(),
		service.NewLocalLocker(),
		events.NewWithPublisher(testutil.NewMockPublisher(), log),
		nil,
		log,
		service.Options{Now: clock.Now, NearExpiryDays: 30, DefaultMinStock: 5},
	)

	r := chi.NewRouter()
	r.Use(httputil.RequestID)
	r.Route("/api/v1/stock", func(r chi.Router) {
		handler.Routes(r, ledger, log)
	})
	return r
}

func TestStockIn_Single(t *testing.T) {
	router := newTestRouter(t)

	rr := testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodPost, "/api/v1/stock/in", map[string]interface{}{
		"barcode": "4006381333931", "quantity": 12, "lot": "L-1", "expire_date": "2025-03-01",
	}))

	testutil.AssertStatus(t, rr, http.StatusCreated)
	var res service.StockInResult
	env := testutil.ParseEnvelope(t, rr, &res)
	assert.Equal(t, httputil.APIVersion, env.Version)
	assert.True(t, env.Success)
	assert.True(t, res.CreatedProduct)
	assert.Equal(t, 12, res.RemainingQuantity)
}

func TestStockIn_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       interface{}
		wantStatus int
		wantCode   string
	}{
		{"malformed json", `{"barcode":`, http.StatusBadRequest, "BAD_REQUEST"},
		{"missing barcode", map[string]interface{}{"quantity": 1}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"barcode with space", map[string]interface{}{"barcode": "40 06", "quantity": 1}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"zero quantity", map[string]interface{}{"barcode": "X", "quantity": 0}, http.StatusBadRequest, "INVALID_QUANTITY"},
		{"quantity above limit", map[string]interface{}{"barcode": "X", "quantity": 2147483648}, http.StatusBadRequest, "INVALID_QUANTITY"},
		{"past expiry", map[string]interface{}{"barcode": "X", "quantity": 1, "expire_date": "2024-12-01"}, http.StatusBadRequest, "EXPIRY_NOT_IN_FUTURE"},
		{"empty batch", map[string]interface{}{"items": []interface{}{}}, http.StatusBadRequest, "VALIDATION_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(t)

			rr := testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodPost, "/api/v1/stock/in", tt.body))

			testutil.AssertStatus(t, rr, tt.wantStatus)
			env := testutil.ParseEnvelope(t, rr, nil)
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.wantCode, env.Error.Code)
		})
	}
}

func TestStockIn_BulkPartialFailure(t *testing.T) {
	router := newTestRouter(t)

	rr := testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodPost, "/api/v1/stock/in", map[string]interface{}{
		"items": []map[string]interface{}{
			{"barcode": "A", "quantity": 2, "lot": "A1", "expire_date": "2025-01-01"},
			{"barcode": "B", "quantity": -1},
			{"barcode": "C", "quantity": 4},
		},
	}))

	testutil.AssertStatus(t, rr, http.StatusUnprocessableEntity)
	var res service.BulkStockInResult
	env := testutil.ParseEnvelope(t, rr, &res)
	assert.False(t, env.Success)
	assert.Equal(t, "PARTIAL_FAILURE", env.Error.Code)
	assert.Len(t, res.Results, 2)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 1, res.Errors[0].Index)
	assert.Equal(t, "INVALID_QUANTITY", res.Errors[0].Code)
	assert.NotEmpty(t, res.SessionID)
}

func TestStockOut_SingleAndInsufficient(t *testing.T) {
	router := newTestRouter(t)
	for _, item := range []map[string]interface{}{
		{"barcode": "X", "quantity": 2, "lot": "LATE", "expire_date": "2025-06-01"},
		{"barcode": "X", "quantity": 3, "lot": "EARLY", "expire_date": "2025-01-01"},
	} {
		rr := testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodPost, "/api/v1/stock/in", item))
		testutil.AssertStatus(t, rr, http.StatusCreated)
	}

	rr := testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodPost, "/api/v1/stock/out", map[string]interface{}{
		"barcode": "X", "quantity": 4,
	}))

	testutil.AssertStatus(t, rr, http.StatusOK)
	var res service.StockOutResult
	testutil.ParseEnvelope(t, rr, &res)
	assert.Equal(t, 1, res.RemainingQuantity)
	require.Len(t, res.Allocations, 2)
	assert.Equal(t, "EARLY", *res.Allocations[0].Label)
	assert.Equal(t, 3, res.Allocations[0].Quantity)
	assert.Equal(t, "LATE", *res.Allocations[1].Label)
	assert.True(t, res.LowStock)

	rr = testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodPost, "/api/v1/stock/out", map[string]interface{}{
		"barcode": "X", "quantity": 2,
	}))
	testutil.AssertStatus(t, rr, http.StatusConflict)
	env := testutil.ParseEnvelope(t, rr, nil)
	assert.Equal(t, "INSUFFICIENT_STOCK", env.Error.Code)

	rr = testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodPost, "/api/v1/stock/out", map[string]interface{}{
		"barcode": "nope", "quantity": 1,
	}))
	testutil.AssertStatus(t, rr, http.StatusNotFound)
}

func TestStockIn_AggregateLimit(t *testing.T) {
	router := newTestRouter(t)
	rr := testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodPost, "/api/v1/stock/in", map[string]interface{}{
		"barcode": "X", "quantity": 2147483647,
	}))
	testutil.AssertStatus(t, rr, http.StatusCreated)

	rr = testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodPost, "/api/v1/stock/in", map[string]interface{}{
		"barcode": "X", "quantity": 1,
	}))

	testutil.AssertStatus(t, rr, http.StatusBadRequest)
	env := testutil.ParseEnvelope(t, rr, nil)
	assert.Equal(t, "INVALID_QUANTITY", env.Error.Code)

	rr = testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodPost, "/api/v1/stock/out", map[string]interface{}{
		"barcode": "X", "quantity": 2147483648,
	}))

	testutil.AssertStatus(t, rr, http.StatusBadRequest)
	env = testutil.ParseEnvelope(t, rr, nil)
	assert.Equal(t, "INVALID_QUANTITY", env.Error.Code)
}

func TestStockOut_Bulk(t *testing.T) {
	router := newTestRouter(t)
	rr := testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodPost, "/api/v1/stock/in", map[string]interface{}{
		"items": []map[string]interface{}{
			{"barcode": "A", "quantity": 5},
			{"barcode": "B", "quantity": 5},
		},
	}))
	testutil.AssertStatus(t, rr, http.StatusOK)

	rr = testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodPost, "/api/v1/stock/out", map[string]interface{}{
		"items": []map[string]interface{}{
			{"barcode": "A", "quantity": 1},
			{"barcode": "B", "quantity": 2},
		},
	}))

	testutil.AssertStatus(t, rr, http.StatusOK)
	var res service.BulkStockOutResult
	testutil.ParseEnvelope(t, rr, &res)
	require.Len(t, res.Results, 2)
	assert.Empty(t, res.Errors)
	assert.Equal(t, res.SessionID, res.Results[0].SessionID)
	assert.Equal(t, res.SessionID, res.Results[1].SessionID)
}

func TestProducts(t *testing.T) {
	router := newTestRouter(t)

	rr := testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodPost, "/api/v1/stock/products", map[string]interface{}{
		"barcode": "P1", "product_name": "Nitrile gloves", "unit_price": "0.15",
	}))
	testutil.AssertStatus(t, rr, http.StatusCreated)

	rr = testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodPost, "/api/v1/stock/products", map[string]interface{}{
		"barcode": "P1", "product_name": "again",
	}))
	testutil.AssertStatus(t, rr, http.StatusConflict)

	rr = testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodPost, "/api/v1/stock/in", map[string]interface{}{
		"barcode": "P1", "quantity": 3, "lot": "G-1", "expire_date": "2024-12-20",
	}))
	testutil.AssertStatus(t, rr, http.StatusCreated)

	rr = testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodGet, "/api/v1/stock/products?barcode=P1", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)
	var view service.ProductView
	testutil.ParseEnvelope(t, rr, &view)
	assert.Equal(t, "Nitrile gloves", view.ProductName)
	assert.Equal(t, 3, view.RemainingQuantity)
	require.NotNil(t, view.ExpireDate)
	assert.Equal(t, "2024-12-20", view.ExpireDate.String())
	assert.True(t, view.NearExpiry)

	rr = testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodGet, "/api/v1/stock/products/P1/lots", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)
	testutil.AssertBodyContains(t, rr, `"G-1"`)

	rr = testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodGet, "/api/v1/stock/products?barcode=missing", nil))
	testutil.AssertStatus(t, rr, http.StatusNotFound)

	rr = testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodGet, "/api/v1/stock/products", nil))
	testutil.AssertStatus(t, rr, http.StatusBadRequest)
}

func TestReports(t *testing.T) {
	router := newTestRouter(t)
	rr := testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodPost, "/api/v1/stock/in", map[string]interface{}{
		"barcode": "X", "quantity": 3, "lot": "A", "expire_date": "2024-12-10",
	}))
	testutil.AssertStatus(t, rr, http.StatusCreated)

	rr = testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodGet, "/api/v1/stock/dashboard/stats", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)
	var stats service.DashboardStats
	testutil.ParseEnvelope(t, rr, &stats)
	assert.Equal(t, 1, stats.TotalProducts)
	assert.Equal(t, 1, stats.NearExpiryCount)
	assert.Equal(t, 1, stats.LowStockCount)

	rr = testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodGet, "/api/v1/stock/movements?filter=7days", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)
	var log service.MovementLog
	testutil.ParseEnvelope(t, rr, &log)
	assert.Equal(t, service.FilterLast7Days, log.Filter)
	require.Len(t, log.Groups, 1)
	assert.Equal(t, 3, log.Groups[0].Quantity)

	rr = testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodGet, "/api/v1/stock/movements?filter=yesterday", nil))
	testutil.AssertStatus(t, rr, http.StatusBadRequest)

	rr = testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodGet, "/api/v1/stock/movements/export", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "stock-movements-today-2024-12-01.xlsx")
	assert.Equal(t, "PK", rr.Body.String()[:2])
}

func TestRequestIDIsEchoed(t *testing.T) {
	router := newTestRouter(t)
	req := testutil.WithRequestID(testutil.NewHTTPRequest(http.MethodGet, "/api/v1/stock/dashboard/stats", nil), "req-123")

	rr := testutil.ExecuteRequest(router, req)

	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.Equal(t, "req-123", rr.Header().Get("X-Request-ID"))
}
