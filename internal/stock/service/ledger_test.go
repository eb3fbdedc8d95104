package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/medflow/stock-ledger/internal/stock/domain"
	"github.com/medflow/stock-ledger/internal/stock/events"
	"github.com/medflow/stock-ledger/internal/stock/repository"
	"github.com/medflow/stock-ledger/internal/stock/service"
	"github.com/medflow/stock-ledger/pkg/errors"
	"github.com/medflow/stock-ledger/pkg/logger"
	"github.com/medflow/stock-ledger/pkg/messaging"
	"github.com/medflow/stock-ledger/pkg/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	ledger    *service.Ledger
	store     *repository.MemoryStore
	clock     *testutil.FixedClock
	publisher *testutil.MockPublisher
}

func newFixture(t *testing.T, mutate ...func(*service.Options)) *fixture {
	t.Helper()

	clock := testutil.NewFixedClock(time.Date(2024, 12, 1, 9, 30, 0, 0, time.UTC))
	store := repository.NewMemoryStore()
	pub := testutil.NewMockPublisher()
	opts := service.Options{
		Now:              clock.Now,
		Location:         time.UTC,
		NearExpiryDays:   30,
		DefaultMinStock:  10,
		DefaultUnitPrice: decimal.RequireFromString("2.50"),
	}
	for _, m := range mutate {
		m(&opts)
	}

	log := logger.Nop()
	ledger := service.NewLedger(store, service.NewLocalLocker(), events.NewWithPublisher(pub, log), nil, log, opts)
	return &fixture{ledger: ledger, store: store, clock: clock, publisher: pub}
}

func (f *fixture) stockIn(t *testing.T, barcode string, qty int, lot, expiry string) *service.StockInResult {
	t.Helper()
	res, err := f.ledger.StockIn(context.Background(), service.StockInItem{
		Barcode: barcode, Quantity: qty, Lot: lot, ExpireDate: expiry,
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) lots(t *testing.T, barcode string) map[string]int {
	t.Helper()
	_, lots, err := f.store.GetStock(context.Background(), barcode)
	require.NoError(t, err)
	out := make(map[string]int, len(lots))
	for _, l := range lots {
		out[l.LabelOrEmpty()] = l.RemainingQuantity
	}
	return out
}

func (f *fixture) assertAggregateMatchesLots(t *testing.T) {
	t.Helper()
	snap, err := f.store.Snapshot(context.Background())
	require.NoError(t, err)
	byBarcode := snap.LotsByBarcode()
	for _, p := range snap.Products {
		sum := 0
		for _, l := range byBarcode[p.Barcode] {
			sum += l.RemainingQuantity
		}
		assert.Equal(t, p.RemainingQuantity, sum, "aggregate of %s", p.Barcode)
	}
}

func TestStockIn_CreatesProductWithDefaults(t *testing.T) {
	f := newFixture(t)

	res := f.stockIn(t, "4006381333931", 12, "L-1", "2025-03-01")

	assert.True(t, res.CreatedProduct)
	assert.Equal(t, "Unnamed product", res.ProductName)
	assert.Equal(t, 12, res.RemainingQuantity)
	require.NotNil(t, res.Lot)
	assert.Equal(t, "L-1", res.Lot.LabelOrEmpty())
	assert.Equal(t, 12, res.Lot.InitialQuantity)

	p, err := f.store.GetProduct(context.Background(), "4006381333931")
	require.NoError(t, err)
	assert.Equal(t, "pcs", p.Unit)
	assert.Equal(t, 10, p.MinStock)

	f.publisher.AssertEventPublished(t, messaging.EventStockReceived)
}

func TestStockIn_AddsLotToExistingProduct(t *testing.T) {
	f := newFixture(t)
	f.stockIn(t, "X", 5, "A", "")

	res := f.stockIn(t, "X", 7, "B", "2025-06-30")

	assert.False(t, res.CreatedProduct)
	assert.Equal(t, 12, res.RemainingQuantity)
	assert.Equal(t, map[string]int{"A": 5, "B": 7}, f.lots(t, "X"))
}

func TestStockIn_Validation(t *testing.T) {
	tests := []struct {
		name     string
		item     service.StockInItem
		opts     func(*service.Options)
		wantCode string
		sentinel error
	}{
		{
			name:     "zero quantity",
			item:     service.StockInItem{Barcode: "X", Quantity: 0},
			wantCode: "INVALID_QUANTITY",
			sentinel: domain.ErrInvalidQuantity,
		},
		{
			name:     "negative quantity",
			item:     service.StockInItem{Barcode: "X", Quantity: -4},
			wantCode: "INVALID_QUANTITY",
			sentinel: domain.ErrInvalidQuantity,
		},
		{
			name:     "expiry today",
			item:     service.StockInItem{Barcode: "X", Quantity: 1, ExpireDate: "2024-12-01"},
			wantCode: "EXPIRY_NOT_IN_FUTURE",
			sentinel: domain.ErrExpiryNotInFuture,
		},
		{
			name:     "expiry in the past",
			item:     service.StockInItem{Barcode: "X", Quantity: 1, ExpireDate: "2024-11-30"},
			wantCode: "EXPIRY_NOT_IN_FUTURE",
			sentinel: domain.ErrExpiryNotInFuture,
		},
		{
			name:     "malformed expiry",
			item:     service.StockInItem{Barcode: "X", Quantity: 1, ExpireDate: "01/02/2025"},
			wantCode: "VALIDATION_ERROR",
			sentinel: errors.ErrValidation,
		},
		{
			name:     "missing barcode",
			item:     service.StockInItem{Barcode: "  ", Quantity: 1},
			wantCode: "VALIDATION_ERROR",
			sentinel: errors.ErrValidation,
		},
		{
			name:     "lot required",
			item:     service.StockInItem{Barcode: "X", Quantity: 1, ExpireDate: "2025-01-01"},
			opts:     func(o *service.Options) { o.RequireLot = true },
			wantCode: "MISSING_LOT",
			sentinel: domain.ErrMissingLot,
		},
		{
			name:     "expiry required",
			item:     service.StockInItem{Barcode: "X", Quantity: 1, Lot: "A"},
			opts:     func(o *service.Options) { o.RequireExpiry = true },
			wantCode: "MISSING_EXPIRY",
			sentinel: domain.ErrMissingExpiry,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f *fixture
			if tt.opts != nil {
				f = newFixture(t, tt.opts)
			} else {
				f = newFixture(t)
			}

			_, err := f.ledger.StockIn(context.Background(), tt.item)

			require.Error(t, err)
			assert.Equal(t, tt.wantCode, errors.CodeOf(err))
			assert.ErrorIs(t, err, tt.sentinel)
			f.publisher.AssertNoEventsPublished(t)

			_, getErr := f.store.GetProduct(context.Background(), "X")
			assert.ErrorIs(t, getErr, domain.ErrProductNotFound, "nothing may be written on rejection")
		})
	}
}

func TestStockIn_ExpiryComparesCalendarDayInReferenceZone(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	f := newFixture(t, func(o *service.Options) { o.Location = tokyo })
	// 2024-12-01 20:00 UTC is already 2024-12-02 in Tokyo.
	f.clock.Set(time.Date(2024, 12, 1, 20, 0, 0, 0, time.UTC))

	_, err = f.ledger.StockIn(context.Background(), service.StockInItem{Barcode: "X", Quantity: 1, ExpireDate: "2024-12-02"})
	assert.ErrorIs(t, err, domain.ErrExpiryNotInFuture)

	f.stockIn(t, "X", 1, "", "2024-12-03")
}

func TestStockOut_FIFOByExpiry(t *testing.T) {
	f := newFixture(t)
	f.stockIn(t, "X", 5, "NO-EXP", "")
	f.stockIn(t, "X", 5, "FEB", "2025-02-01")
	f.stockIn(t, "X", 5, "JAN", "2025-01-01")

	res, err := f.ledger.StockOut(context.Background(), service.StockOutItem{Barcode: "X", Quantity: 7})
	require.NoError(t, err)

	assert.Equal(t, 8, res.RemainingQuantity)
	require.Len(t, res.Allocations, 2)
	assert.Equal(t, "JAN", *res.Allocations[0].Label)
	assert.Equal(t, 5, res.Allocations[0].Quantity)
	assert.Equal(t, "FEB", *res.Allocations[1].Label)
	assert.Equal(t, 2, res.Allocations[1].Quantity)
	assert.Equal(t, map[string]int{"NO-EXP": 5, "FEB": 3, "JAN": 0}, f.lots(t, "X"))
	f.assertAggregateMatchesLots(t)
}

func TestStockOut_ExactDepletion(t *testing.T) {
	f := newFixture(t)
	f.stockIn(t, "X", 4, "A", "2025-01-01")
	f.stockIn(t, "X", 6, "B", "2025-02-01")

	res, err := f.ledger.StockOut(context.Background(), service.StockOutItem{Barcode: "X", Quantity: 4})
	require.NoError(t, err)

	require.Len(t, res.Allocations, 1)
	assert.Equal(t, map[string]int{"A": 0, "B": 6}, f.lots(t, "X"))
}

func TestStockOut_InsufficientStockLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t)
	f.stockIn(t, "X", 3, "A", "2025-01-01")
	f.stockIn(t, "X", 2, "B", "")
	f.publisher.Reset()

	_, err := f.ledger.StockOut(context.Background(), service.StockOutItem{Barcode: "X", Quantity: 6})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, "INSUFFICIENT_STOCK", errors.CodeOf(err))
	assert.Equal(t, map[string]int{"A": 3, "B": 2}, f.lots(t, "X"))
	p, _ := f.store.GetProduct(context.Background(), "X")
	assert.Equal(t, 5, p.RemainingQuantity)
	f.publisher.AssertNoEventsPublished(t)
}

func TestStockOut_ZeroStockRejectsAnyRequest(t *testing.T) {
	f := newFixture(t)
	f.stockIn(t, "X", 2, "A", "")
	_, err := f.ledger.StockOut(context.Background(), service.StockOutItem{Barcode: "X", Quantity: 2})
	require.NoError(t, err)

	_, err = f.ledger.StockOut(context.Background(), service.StockOutItem{Barcode: "X", Quantity: 1})
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
}

func TestStockOut_Errors(t *testing.T) {
	f := newFixture(t)

	_, err := f.ledger.StockOut(context.Background(), service.StockOutItem{Barcode: "missing", Quantity: 1})
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
	assert.Equal(t, "PRODUCT_NOT_FOUND", errors.CodeOf(err))

	_, err = f.ledger.StockOut(context.Background(), service.StockOutItem{Barcode: "missing", Quantity: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
}

func TestStockOut_UntrackedAggregateStock(t *testing.T) {
	f := newFixture(t)
	f.store.Seed([]*domain.Product{{Barcode: "LEGACY", Name: "Gauze", Unit: "pcs", RemainingQuantity: 8}}, nil)

	res, err := f.ledger.StockOut(context.Background(), service.StockOutItem{Barcode: "LEGACY", Quantity: 3})
	require.NoError(t, err)

	assert.Equal(t, 5, res.RemainingQuantity)
	require.Len(t, res.Allocations, 1)
	assert.True(t, res.Allocations[0].Untracked())
	assert.Nil(t, res.Allocations[0].Label)

	movements, err := f.store.ListMovements(context.Background(), f.clock.Now().Add(-time.Hour), f.clock.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Nil(t, movements[0].LotLabel)
	assert.Equal(t, 3, movements[0].Quantity)
}

func TestStockOut_MovementsShareSessionAndTimestamp(t *testing.T) {
	f := newFixture(t)
	f.stockIn(t, "X", 2, "A", "2025-01-01")
	f.stockIn(t, "X", 3, "B", "2025-01-02")
	f.clock.Advance(time.Minute)

	res, err := f.ledger.StockOut(context.Background(), service.StockOutItem{Barcode: "X", Quantity: 5})
	require.NoError(t, err)
	require.NotEmpty(t, res.SessionID)

	now := f.clock.Now()
	movements, err := f.store.ListMovements(context.Background(), now.Add(-time.Second), now.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, movements, 2)
	for _, m := range movements {
		assert.Equal(t, domain.MovementOut, m.Type)
		require.NotNil(t, m.SessionID)
		assert.Equal(t, res.SessionID, *m.SessionID)
		assert.True(t, m.CreatedAt.Equal(now))
	}

	f.publisher.AssertEventPublished(t, messaging.EventStockDispensed)
}

func TestStockOut_ReportsLowStock(t *testing.T) {
	f := newFixture(t)
	f.stockIn(t, "X", 15, "A", "")

	res, err := f.ledger.StockOut(context.Background(), service.StockOutItem{Barcode: "X", Quantity: 5})
	require.NoError(t, err)

	assert.True(t, res.LowStock, "10 remaining is at the default threshold")
}

func TestBulkStockIn_PartialSuccess(t *testing.T) {
	f := newFixture(t)

	out := f.ledger.BulkStockIn(context.Background(), []service.StockInItem{
		{Barcode: "A", Quantity: 3, Lot: "A1", ExpireDate: "2025-01-10"},
		{Barcode: "B", Quantity: 2, Lot: "B1", ExpireDate: "2024-10-01"},
		{Barcode: "C", Quantity: 4, Lot: "C1"},
	})

	require.Len(t, out.Results, 2)
	assert.Equal(t, "A", out.Results[0].Barcode)
	assert.Equal(t, "C", out.Results[1].Barcode)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, 1, out.Errors[0].Index)
	assert.Equal(t, "B", out.Errors[0].Barcode)
	assert.Equal(t, "EXPIRY_NOT_IN_FUTURE", out.Errors[0].Code)
	assert.Contains(t, out.Errors[0].Error, "item 2 (B)")

	err := out.Err()
	require.Error(t, err)
	assert.Equal(t, "PARTIAL_FAILURE", errors.CodeOf(err))

	_, getErr := f.store.GetProduct(context.Background(), "B")
	assert.ErrorIs(t, getErr, domain.ErrProductNotFound)

	now := f.clock.Now()
	movements, err := f.store.ListMovements(context.Background(), now.Add(-time.Second), now.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, movements, 2)
	for _, m := range movements {
		require.NotNil(t, m.SessionID)
		assert.Equal(t, out.SessionID, *m.SessionID)
	}
}

func TestBulkStockIn_AllSucceed(t *testing.T) {
	f := newFixture(t)

	out := f.ledger.BulkStockIn(context.Background(), []service.StockInItem{
		{Barcode: "A", Quantity: 1},
		{Barcode: "A", Quantity: 2},
	})

	assert.NoError(t, out.Err())
	assert.Empty(t, out.Errors)
	assert.Equal(t, 3, out.Results[1].RemainingQuantity)
}

func TestBulkStockOut_IndependentItems(t *testing.T) {
	f := newFixture(t)
	f.stockIn(t, "A", 5, "A1", "2025-01-01")
	f.stockIn(t, "B", 1, "B1", "2025-01-01")

	out := f.ledger.BulkStockOut(context.Background(), []service.StockOutItem{
		{Barcode: "A", Quantity: 2},
		{Barcode: "B", Quantity: 3},
		{Barcode: "A", Quantity: 1},
	})

	require.Len(t, out.Results, 2)
	assert.Equal(t, 3, out.Results[0].RemainingQuantity)
	assert.Equal(t, 2, out.Results[1].RemainingQuantity)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, "INSUFFICIENT_STOCK", out.Errors[0].Code)
	assert.Equal(t, map[string]int{"B1": 1}, f.lots(t, "B"))
	for _, r := range out.Results {
		assert.Equal(t, out.SessionID, r.SessionID)
	}
	f.assertAggregateMatchesLots(t)
}

func TestRoundTrip(t *testing.T) {
	f := newFixture(t)
	expiry := domain.DateOf(f.clock.Now(), time.UTC).AddDays(30).String()

	f.stockIn(t, "X", 10, "L1", expiry)
	res, err := f.ledger.StockOut(context.Background(), service.StockOutItem{Barcode: "X", Quantity: 4})
	require.NoError(t, err)

	assert.Equal(t, 6, res.RemainingQuantity)
	assert.Equal(t, map[string]int{"L1": 6}, f.lots(t, "X"))

	now := f.clock.Now()
	movements, err := f.store.ListMovements(context.Background(), now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, movements, 2)
	assert.Equal(t, domain.MovementIn, movements[0].Type)
	assert.Equal(t, 10, movements[0].Quantity)
	assert.Equal(t, domain.MovementOut, movements[1].Type)
	assert.Equal(t, 4, movements[1].Quantity)
}

func TestConcurrentMutationsKeepAggregateEqualToLots(t *testing.T) {
	f := newFixture(t)
	f.stockIn(t, "X", 100, "SEED", "2025-06-01")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = f.ledger.StockIn(context.Background(), service.StockInItem{Barcode: "X", Quantity: 3, Lot: "C", ExpireDate: "2025-03-01"})
		}()
		go func() {
			defer wg.Done()
			_, _ = f.ledger.StockOut(context.Background(), service.StockOutItem{Barcode: "X", Quantity: 4})
		}()
	}
	wg.Wait()

	p, err := f.store.GetProduct(context.Background(), "X")
	require.NoError(t, err)
	assert.Equal(t, 100+20*3-20*4, p.RemainingQuantity)
	f.assertAggregateMatchesLots(t)
}

func TestCreateProduct(t *testing.T) {
	f := newFixture(t)
	price := decimal.RequireFromString("4.20")
	minStock := 3

	p, err := f.ledger.CreateProduct(context.Background(), service.CreateProductInput{
		Barcode: "X", Name: "Syringe 5ml", Unit: "box", MinStock: &minStock, UnitPrice: &price,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, p.RemainingQuantity)
	assert.Equal(t, 3, p.MinStock)
	assert.True(t, p.UnitPrice.Valid)

	_, err = f.ledger.CreateProduct(context.Background(), service.CreateProductInput{Barcode: "X", Name: "dup"})
	assert.Equal(t, "CONFLICT", errors.CodeOf(err))

	res := f.stockIn(t, "X", 5, "", "")
	assert.False(t, res.CreatedProduct)
	assert.Equal(t, "Syringe 5ml", res.ProductName)
}

func TestStockIn_QuantityAboveLimit(t *testing.T) {
	f := newFixture(t)

	_, err := f.ledger.StockIn(context.Background(), service.StockInItem{Barcode: "X", Quantity: domain.MaxQuantity + 1})

	assert.Equal(t, "INVALID_QUANTITY", errors.CodeOf(err))
	_, err = f.store.GetProduct(context.Background(), "X")
	assert.True(t, errors.Is(err, domain.ErrProductNotFound))
}

func TestStockIn_AggregateWouldExceedLimit(t *testing.T) {
	f := newFixture(t)
	f.stockIn(t, "X", domain.MaxQuantity-1, "L1", "")

	_, err := f.ledger.StockIn(context.Background(), service.StockInItem{Barcode: "X", Quantity: 5})

	require.Error(t, err)
	assert.Equal(t, "INVALID_QUANTITY", errors.CodeOf(err))
	assert.Equal(t, map[string]int{"L1": domain.MaxQuantity - 1}, f.lots(t, "X"))

	res := f.stockIn(t, "X", 1, "L2", "")
	assert.Equal(t, domain.MaxQuantity, res.RemainingQuantity)
}

func TestStockOut_QuantityAboveLimit(t *testing.T) {
	f := newFixture(t)
	f.stockIn(t, "X", 5, "A", "")

	_, err := f.ledger.StockOut(context.Background(), service.StockOutItem{Barcode: "X", Quantity: domain.MaxQuantity + 1})

	assert.Equal(t, "INVALID_QUANTITY", errors.CodeOf(err))
	assert.Equal(t, map[string]int{"A": 5}, f.lots(t, "X"))
}

// createsOnFirstRead registers the product right after the ledger first sees it missing,
// as a concurrent CreateProduct on another instance would.
type createsOnFirstRead struct {
	*repository.MemoryStore
	product *domain.Product
	once    sync.Once
}

func (s *createsOnFirstRead) GetProduct(ctx context.Context, barcode string) (*domain.Product, error) {
	p, err := s.MemoryStore.GetProduct(ctx, barcode)
	if errors.Is(err, domain.ErrProductNotFound) {
		s.once.Do(func() {
			_ = s.MemoryStore.CreateProduct(ctx, s.product)
		})
	}
	return p, err
}

func TestStockIn_ProductCreatedConcurrentlyKeepsItsName(t *testing.T) {
	store := &createsOnFirstRead{
		MemoryStore: repository.NewMemoryStore(),
		product:     &domain.Product{Barcode: "X", Name: "Syringe 5ml", Unit: "box"},
	}
	pub := testutil.NewMockPublisher()
	log := logger.Nop()
	ledger := service.NewLedger(store, service.NewLocalLocker(), events.NewWithPublisher(pub, log), nil, log, service.Options{})

	res, err := ledger.StockIn(context.Background(), service.StockInItem{Barcode: "X", Quantity: 3})
	require.NoError(t, err)

	assert.False(t, res.CreatedProduct)
	assert.Equal(t, "Syringe 5ml", res.ProductName)
	assert.Equal(t, 3, res.RemainingQuantity)

	p, err := store.GetProduct(context.Background(), "X")
	require.NoError(t, err)
	assert.Equal(t, "Syringe 5ml", p.Name)
	assert.Equal(t, "box", p.Unit)
	assert.Equal(t, 3, p.RemainingQuantity)
}

func TestGetProductByBarcode(t *testing.T) {
	f := newFixture(t)
	f.stockIn(t, "X", 5, "LATE", "2025-06-01")
	f.stockIn(t, "X", 5, "SOON", "2024-12-20")
	f.stockIn(t, "X", 5, "UNDATED", "")
	// The soonest lot is then consumed entirely.
	_, err := f.ledger.StockOut(context.Background(), service.StockOutItem{Barcode: "X", Quantity: 5})
	require.NoError(t, err)

	view, err := f.ledger.GetProductByBarcode(context.Background(), "X")
	require.NoError(t, err)
	assert.Equal(t, 10, view.RemainingQuantity)
	require.NotNil(t, view.ExpireDate)
	assert.Equal(t, "2025-06-01", view.ExpireDate.String())
	assert.False(t, view.NearExpiry)

	f.stockIn(t, "X", 1, "NEAR", "2024-12-25")
	view, err = f.ledger.GetProductByBarcode(context.Background(), "X")
	require.NoError(t, err)
	assert.Equal(t, "2024-12-25", view.ExpireDate.String())
	assert.True(t, view.NearExpiry)

	_, err = f.ledger.GetProductByBarcode(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestGetProductByBarcode_SkipsExpiredLots(t *testing.T) {
	f := newFixture(t)
	f.store.Seed(
		[]*domain.Product{{Barcode: "X", Name: "Saline", Unit: "ml", RemainingQuantity: 4}},
		[]*domain.Lot{
			{ID: "l1", Barcode: "X", Label: domain.StringPtr("OLD"), ExpireDate: testutil.DatePtr("2024-11-01"), InitialQuantity: 2, RemainingQuantity: 2},
			{ID: "l2", Barcode: "X", Label: domain.StringPtr("NEW"), ExpireDate: testutil.DatePtr("2025-02-01"), InitialQuantity: 2, RemainingQuantity: 2},
		},
	)

	view, err := f.ledger.GetProductByBarcode(context.Background(), "X")
	require.NoError(t, err)
	assert.Equal(t, "2025-02-01", view.ExpireDate.String())
}

func TestListLots_DepletionOrderIncludesEmptyLots(t *testing.T) {
	f := newFixture(t)
	f.stockIn(t, "X", 1, "UNDATED", "")
	f.stockIn(t, "X", 1, "LATE", "2025-05-01")
	f.stockIn(t, "X", 1, "EARLY", "2025-01-01")
	_, err := f.ledger.StockOut(context.Background(), service.StockOutItem{Barcode: "X", Quantity: 1})
	require.NoError(t, err)

	lots, err := f.ledger.ListLots(context.Background(), "X")
	require.NoError(t, err)

	labels := make([]string, len(lots))
	for i, l := range lots {
		labels[i] = l.LabelOrEmpty()
	}
	assert.Equal(t, []string{"EARLY", "LATE", "UNDATED"}, labels)
	assert.Equal(t, 0, lots[0].RemainingQuantity)

	_, err = f.ledger.ListLots(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}
