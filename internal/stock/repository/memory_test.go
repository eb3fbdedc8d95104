package repository

import (
	"context"
	"testing"
	"time"

	"github.com/medflow/stock-ledger/internal/stock/domain"
	"github.com/medflow/stock-ledger/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededStore() *MemoryStore {
	s := NewMemoryStore()
	s.Seed(
		[]*domain.Product{{Barcode: "X", Name: "Gauze", RemainingQuantity: 8}},
		[]*domain.Lot{
			{ID: "l1", Barcode: "X", Label: domain.StringPtr("A"), InitialQuantity: 5, RemainingQuantity: 5},
			{ID: "l2", Barcode: "X", Label: domain.StringPtr("B"), InitialQuantity: 3, RemainingQuantity: 3},
		},
	)
	return s
}

func TestMemoryStore_ApplyStockOut(t *testing.T) {
	s := seededStore()
	ctx := context.Background()
	at := time.Date(2024, 12, 1, 10, 0, 0, 0, time.UTC)

	err := s.Apply(ctx, &Change{
		Barcode:      "X",
		QuantityFrom: 8,
		QuantityTo:   2,
		LotUpdates:   []LotUpdate{{LotID: "l1", From: 5, To: 0}, {LotID: "l2", From: 3, To: 2}},
		Movements: []*domain.Movement{
			{ID: "m1", Barcode: "X", Type: domain.MovementOut, Quantity: 5, LotLabel: domain.StringPtr("A"), CreatedAt: at},
			{ID: "m2", Barcode: "X", Type: domain.MovementOut, Quantity: 1, LotLabel: domain.StringPtr("B"), CreatedAt: at},
		},
	})
	require.NoError(t, err)

	p, lots, err := s.GetStock(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, 2, p.RemainingQuantity)
	require.Len(t, lots, 2)
	assert.Equal(t, 0, lots[0].RemainingQuantity)
	assert.Equal(t, 2, lots[1].RemainingQuantity)

	movements, err := s.ListMovements(ctx, at, at.Add(time.Second))
	require.NoError(t, err)
	assert.Len(t, movements, 2)
}

func TestMemoryStore_ApplyRejectsStaleState(t *testing.T) {
	tests := []struct {
		name   string
		change *Change
	}{
		{
			name:   "aggregate moved",
			change: &Change{Barcode: "X", QuantityFrom: 7, QuantityTo: 6},
		},
		{
			name: "lot moved",
			change: &Change{
				Barcode: "X", QuantityFrom: 8, QuantityTo: 7,
				LotUpdates: []LotUpdate{{LotID: "l1", From: 4, To: 3}},
			},
		},
		{
			name: "lot of another product",
			change: &Change{
				Barcode: "Y", QuantityFrom: 0, QuantityTo: 0,
				CreateProduct: &domain.Product{Barcode: "Y"},
				LotUpdates:    []LotUpdate{{LotID: "l1", From: 5, To: 4}},
			},
		},
		{
			name:   "negative result",
			change: &Change{Barcode: "X", QuantityFrom: 8, QuantityTo: -1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := seededStore()
			ctx := context.Background()
			// valid writes bundled with the stale part must not land
			tt.change.Movements = []*domain.Movement{{ID: "m", Barcode: tt.change.Barcode, Type: domain.MovementOut, Quantity: 1, CreatedAt: time.Now()}}

			err := s.Apply(ctx, tt.change)

			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrStaleStock))

			p, lots, err := s.GetStock(ctx, "X")
			require.NoError(t, err)
			assert.Equal(t, 8, p.RemainingQuantity)
			assert.Equal(t, 5, lots[0].RemainingQuantity)
			_, err = s.GetProduct(ctx, "Y")
			assert.True(t, errors.Is(err, domain.ErrProductNotFound))
			movements, err := s.ListMovements(ctx, time.Time{}, time.Now().Add(time.Hour))
			require.NoError(t, err)
			assert.Empty(t, movements)
		})
	}
}

func TestMemoryStore_ApplyCreatesProductAndLot(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	lot := &domain.Lot{ID: "n1", Barcode: "N", InitialQuantity: 4, RemainingQuantity: 4}

	err := s.Apply(ctx, &Change{
		Barcode:       "N",
		CreateProduct: &domain.Product{Barcode: "N", Name: "New"},
		QuantityFrom:  0,
		QuantityTo:    4,
		NewLots:       []*domain.Lot{lot},
	})
	require.NoError(t, err)
	assert.NotZero(t, lot.Seq)

	p, lots, err := s.GetStock(ctx, "N")
	require.NoError(t, err)
	assert.Equal(t, 4, p.RemainingQuantity)
	require.Len(t, lots, 1)
	assert.Equal(t, lot.Seq, lots[0].Seq)
}

func TestMemoryStore_ApplyCreateForExistingProductIsStale(t *testing.T) {
	s := seededStore()

	err := s.Apply(context.Background(), &Change{
		Barcode:       "X",
		CreateProduct: &domain.Product{Barcode: "X", Name: "Unnamed product"},
		QuantityFrom:  8,
		QuantityTo:    9,
		NewLots:       []*domain.Lot{{ID: "n1", Barcode: "X", InitialQuantity: 1, RemainingQuantity: 1}},
	})

	assert.True(t, errors.Is(err, domain.ErrStaleStock))
	p, lots, err := s.GetStock(context.Background(), "X")
	require.NoError(t, err)
	assert.Equal(t, "Gauze", p.Name)
	assert.Equal(t, 8, p.RemainingQuantity)
	assert.Len(t, lots, 2)
}

func TestMemoryStore_ApplyUnknownProduct(t *testing.T) {
	s := NewMemoryStore()

	err := s.Apply(context.Background(), &Change{Barcode: "nope", QuantityTo: 1})

	assert.True(t, errors.Is(err, domain.ErrProductNotFound))
}

func TestMemoryStore_CreateProductConflict(t *testing.T) {
	s := seededStore()

	err := s.CreateProduct(context.Background(), &domain.Product{Barcode: "X"})

	require.Error(t, err)
	assert.Equal(t, "CONFLICT", errors.CodeOf(err))
}

func TestMemoryStore_ReadsReturnCopies(t *testing.T) {
	s := seededStore()
	ctx := context.Background()

	p, lots, err := s.GetStock(ctx, "X")
	require.NoError(t, err)
	p.RemainingQuantity = 100
	lots[0].RemainingQuantity = 100
	*lots[0].Label = "mutated"

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8, snap.Products[0].RemainingQuantity)
	assert.Equal(t, 5, snap.Lots[0].RemainingQuantity)
	assert.Equal(t, "A", *snap.Lots[0].Label)
}

func TestMemoryStore_ListMovementsRange(t *testing.T) {
	s := seededStore()
	ctx := context.Background()
	t0 := time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)

	for i, at := range []time.Time{t0.Add(-time.Nanosecond), t0, t0.Add(time.Hour)} {
		qty := 8 - i
		require.NoError(t, s.Apply(ctx, &Change{
			Barcode: "X", QuantityFrom: qty, QuantityTo: qty - 1,
			Movements: []*domain.Movement{{Barcode: "X", Type: domain.MovementOut, Quantity: 1, CreatedAt: at}},
		}))
	}

	got, err := s.ListMovements(ctx, t0, t0.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].CreatedAt.Equal(t0))
}
