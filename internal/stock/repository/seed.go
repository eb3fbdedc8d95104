package repository

import (
	"github.com/google/uuid"
	"github.com/medflow/stock-ledger/internal/stock/domain"
	"github.com/shopspring/decimal"
)

// DemoData returns a small product catalogue with lots dated relative to today.
// Gauze carries two units of untracked stock to mimic imported data.
func DemoData(today domain.Date) ([]*domain.Product, []*domain.Lot) {
	price := func(s string) decimal.NullDecimal {
		return decimal.NewNullDecimal(decimal.RequireFromString(s))
	}
	created := today.Time()

	products := []*domain.Product{
		{Barcode: "4006381333931", Name: "Nitrile gloves M", Unit: "box", MinStock: 10, UnitPrice: price("7.90"), RemainingQuantity: 24, CreatedAt: created},
		{Barcode: "4015630065685", Name: "Sterile gauze 10x10", Unit: "pack", MinStock: 20, UnitPrice: price("3.25"), RemainingQuantity: 14, CreatedAt: created},
		{Barcode: "4052682013423", Name: "Saline 0.9% 500ml", Unit: "bottle", MinStock: 6, RemainingQuantity: 9, CreatedAt: created},
		{Barcode: "4260107480123", Name: "Alcohol swabs", Unit: "box", MinStock: 5, UnitPrice: price("2.10"), RemainingQuantity: 0, CreatedAt: created},
	}

	lot := func(barcode, label string, expiresIn *int, qty, initial int) *domain.Lot {
		l := &domain.Lot{
			ID:                uuid.NewString(),
			Barcode:           barcode,
			Label:             domain.StringPtr(label),
			InitialQuantity:   initial,
			RemainingQuantity: qty,
			CreatedAt:         created,
		}
		if expiresIn != nil {
			d := today.AddDays(*expiresIn)
			l.ExpireDate = &d
		}
		return l
	}
	days := func(n int) *int { return &n }

	lots := []*domain.Lot{
		lot("4006381333931", "GL-2301", days(12), 4, 10),
		lot("4006381333931", "GL-2307", days(180), 20, 20),
		lot("4015630065685", "GZ-88", days(-3), 5, 10),
		lot("4015630065685", "GZ-91", days(300), 7, 7),
		lot("4052682013423", "NS-0415", days(25), 9, 12),
		lot("4260107480123", "AS-12", days(90), 0, 6),
	}

	return products, lots
}
