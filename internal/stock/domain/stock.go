package domain

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// MaxQuantity is the largest quantity a product, lot or movement can hold
const MaxQuantity = math.MaxInt32

// MovementType is the direction of a stock movement
type MovementType string

const (
	MovementIn  MovementType = "IN"
	MovementOut MovementType = "OUT"
)

// Product is a stock-keeping item identified by its barcode
type Product struct {
	Barcode           string              `db:"barcode" json:"barcode"`
	Name              string              `db:"name" json:"product_name"`
	Unit              string              `db:"unit" json:"unit"`
	MinStock          int                 `db:"min_stock" json:"min_stock"`
	UnitPrice         decimal.NullDecimal `db:"unit_price" json:"unit_price"`
	RemainingQuantity int                 `db:"remaining_quantity" json:"remaining_quantity"`
	CreatedAt         time.Time           `db:"created_at" json:"created_at"`
}

// IsLowStock reports whether the product is at or below its minimum stock
func (p *Product) IsLowStock() bool {
	return p.RemainingQuantity <= p.MinStock
}

// Clone returns a copy that shares no memory with p
func (p *Product) Clone() *Product {
	c := *p
	return &c
}

// Lot is one received quantity of a product. A nil ExpireDate means the lot never expires.
type Lot struct {
	ID                string    `db:"id" json:"id"`
	Seq               int64     `db:"seq" json:"-"`
	Barcode           string    `db:"barcode" json:"barcode"`
	Label             *string   `db:"lot_label" json:"lot"`
	ExpireDate        *Date     `db:"expire_date" json:"expire_date"`
	InitialQuantity   int       `db:"initial_quantity" json:"initial_quantity"`
	RemainingQuantity int       `db:"remaining_quantity" json:"remaining_quantity"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// HasStock reports whether anything is left in the lot
func (l *Lot) HasStock() bool {
	return l.RemainingQuantity > 0
}

// IsExpired reports whether the lot expired strictly before today
func (l *Lot) IsExpired(today Date) bool {
	return l.ExpireDate != nil && l.ExpireDate.Before(today)
}

// IsNearExpiry reports whether the lot expires within [today, today+windowDays]
func (l *Lot) IsNearExpiry(today Date, windowDays int) bool {
	if l.ExpireDate == nil || l.ExpireDate.Before(today) {
		return false
	}
	return !l.ExpireDate.After(today.AddDays(windowDays))
}

// LabelOrEmpty returns the lot label or "" for unlabeled lots
func (l *Lot) LabelOrEmpty() string {
	if l.Label == nil {
		return ""
	}
	return *l.Label
}

// Clone returns a deep copy of the lot
func (l *Lot) Clone() *Lot {
	c := *l
	if l.Label != nil {
		label := *l.Label
		c.Label = &label
	}
	if l.ExpireDate != nil {
		d := *l.ExpireDate
		c.ExpireDate = &d
	}
	return &c
}

// Movement is an immutable audit entry of stock entering or leaving
type Movement struct {
	ID        string       `db:"id" json:"id"`
	Barcode   string       `db:"barcode" json:"barcode"`
	Type      MovementType `db:"type" json:"type"`
	Quantity  int          `db:"quantity" json:"quantity"`
	LotLabel  *string      `db:"lot_label" json:"lot"`
	SessionID *string      `db:"session_id" json:"session_id"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
}

// Clone returns a deep copy of the movement
func (m *Movement) Clone() *Movement {
	c := *m
	if m.LotLabel != nil {
		label := *m.LotLabel
		c.LotLabel = &label
	}
	if m.SessionID != nil {
		s := *m.SessionID
		c.SessionID = &s
	}
	return &c
}

// Snapshot is a consistent view of all products and lots
type Snapshot struct {
	Products []*Product
	Lots     []*Lot
}

// LotsByBarcode indexes the snapshot's lots by product
func (s *Snapshot) LotsByBarcode() map[string][]*Lot {
	out := make(map[string][]*Lot, len(s.Products))
	for _, l := range s.Lots {
		out[l.Barcode] = append(out[l.Barcode], l)
	}
	return out
}

// StringPtr returns a pointer to s, or nil for the empty string
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
