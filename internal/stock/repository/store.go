package repository

import (
	"context"
	"time"

	"github.com/medflow/stock-ledger/internal/stock/domain"
)

// LotUpdate moves one lot's remaining quantity from From to To.
// Stores reject the update if the lot no longer holds From.
type LotUpdate struct {
	LotID string
	From  int
	To    int
}

// Change is everything one stock-in or stock-out writes for a single product.
// Stores apply it atomically or not at all.
type Change struct {
	Barcode string

	// CreateProduct is inserted first when the product does not exist yet.
	CreateProduct *domain.Product

	// QuantityFrom is the aggregate the change was computed from; QuantityTo replaces it.
	QuantityFrom int
	QuantityTo   int

	NewLots    []*domain.Lot
	LotUpdates []LotUpdate
	Movements  []*domain.Movement
}

// Store persists products, lots and the movement log
type Store interface {
	// GetProduct returns domain.ProductNotFound for unknown barcodes.
	GetProduct(ctx context.Context, barcode string) (*domain.Product, error)
	// CreateProduct returns a conflict error if the barcode is taken.
	CreateProduct(ctx context.Context, p *domain.Product) error
	// GetStock returns a product and every one of its lots in creation order,
	// depleted ones included, read as of one instant.
	GetStock(ctx context.Context, barcode string) (*domain.Product, []*domain.Lot, error)
	// Snapshot returns all products and lots as of one instant.
	Snapshot(ctx context.Context) (*domain.Snapshot, error)
	// ListMovements returns movements created in [from, to), oldest first.
	ListMovements(ctx context.Context, from, to time.Time) ([]*domain.Movement, error)
	// Apply commits a change atomically.
	Apply(ctx context.Context, c *Change) error
	// Health reports backend status for the health endpoint.
	Health(ctx context.Context) map[string]string
}
