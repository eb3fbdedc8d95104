package testutil

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/medflow/stock-ledger/internal/stock/domain"
	"github.com/shopspring/decimal"
)

// FixtureFactory creates stock fixtures with sensible defaults
type FixtureFactory struct {
	sequence int
	now      time.Time
}

// NewFixtureFactory creates a new fixture factory. Lot creation times start at now
// and advance one second per lot so creation order is unambiguous.
func NewFixtureFactory(now time.Time) *FixtureFactory {
	return &FixtureFactory{now: now}
}

// nextSeq returns the next sequence number for unique values
func (f *FixtureFactory) nextSeq() int {
	f.sequence++
	return f.sequence
}

// Product creates a product fixture with defaults
func (f *FixtureFactory) Product(opts ...func(*domain.Product)) *domain.Product {
	seq := f.nextSeq()

	p := &domain.Product{
		Barcode:   fmt.Sprintf("88500000%05d", seq),
		Name:      fmt.Sprintf("Test Product %d", seq),
		Unit:      "pcs",
		MinStock:  10,
		CreatedAt: f.now,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// WithBarcode sets the product barcode
func WithBarcode(barcode string) func(*domain.Product) {
	return func(p *domain.Product) {
		p.Barcode = barcode
	}
}

// WithStock sets the product's aggregate remaining quantity
func WithStock(qty int) func(*domain.Product) {
	return func(p *domain.Product) {
		p.RemainingQuantity = qty
	}
}

// WithMinStock sets the low-stock threshold
func WithMinStock(min int) func(*domain.Product) {
	return func(p *domain.Product) {
		p.MinStock = min
	}
}

// WithPrice sets the unit price
func WithPrice(price string) func(*domain.Product) {
	return func(p *domain.Product) {
		p.UnitPrice = decimal.NewNullDecimal(decimal.RequireFromString(price))
	}
}

// Lot creates a lot fixture for the product. An empty label or a nil expiry
// produces an unlabeled or undated lot.
func (f *FixtureFactory) Lot(barcode, label string, expiry *domain.Date, qty int) *domain.Lot {
	f.nextSeq()
	f.now = f.now.Add(time.Second)

	return &domain.Lot{
		ID:                uuid.NewString(),
		Barcode:           barcode,
		Label:             domain.StringPtr(label),
		ExpireDate:        expiry,
		InitialQuantity:   qty,
		RemainingQuantity: qty,
		CreatedAt:         f.now,
	}
}

// DatePtr parses a YYYY-MM-DD date and panics on bad input
func DatePtr(s string) *domain.Date {
	d, err := domain.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return &d
}
