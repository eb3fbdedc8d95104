package domain

import "sort"

// Allocation is the quantity a stock-out takes from one lot.
// An empty LotID means the quantity came from stock that has no lot record.
type Allocation struct {
	LotID      string  `json:"lot_id,omitempty"`
	Label      *string `json:"lot"`
	ExpireDate *Date   `json:"expire_date"`
	Quantity   int     `json:"quantity"`
	Before     int     `json:"-"`
	After      int     `json:"remaining_quantity"`
}

// Untracked reports whether the allocation drew on stock without a lot.
func (a Allocation) Untracked() bool {
	return a.LotID == ""
}

// DepletionPlan describes how a stock-out request is satisfied
type DepletionPlan struct {
	Barcode     string
	Requested   int
	Before      int
	After       int
	Allocations []Allocation
}

// SortForDepletion orders lots nearest-expiry first. Lots without an expiry
// date go after every dated lot; ties keep creation order.
func SortForDepletion(lots []*Lot) {
	sort.SliceStable(lots, func(i, j int) bool {
		a, b := lots[i], lots[j]
		switch {
		case a.ExpireDate == nil && b.ExpireDate == nil:
			return a.Seq < b.Seq
		case a.ExpireDate == nil:
			return false
		case b.ExpireDate == nil:
			return true
		case !a.ExpireDate.Equal(*b.ExpireDate):
			return a.ExpireDate.Before(*b.ExpireDate)
		default:
			return a.Seq < b.Seq
		}
	})
}

// PlanDepletion computes the FIFO-by-expiry allocation of qty units of product p
// over its lots. It does not modify p or lots. The aggregate is checked first so
// an oversized request is rejected before any lot is considered.
func PlanDepletion(p *Product, lots []*Lot, qty int) (*DepletionPlan, error) {
	if qty <= 0 {
		return nil, InvalidQuantity()
	}
	if p.RemainingQuantity < qty {
		return nil, InsufficientStock(p.Barcode, qty, p.RemainingQuantity)
	}

	open := make([]*Lot, 0, len(lots))
	for _, l := range lots {
		if l.Barcode == p.Barcode && l.HasStock() {
			open = append(open, l)
		}
	}
	SortForDepletion(open)

	plan := &DepletionPlan{
		Barcode:   p.Barcode,
		Requested: qty,
		Before:    p.RemainingQuantity,
		After:     p.RemainingQuantity - qty,
	}

	need := qty
	for _, l := range open {
		if need == 0 {
			break
		}
		take := min(need, l.RemainingQuantity)
		plan.Allocations = append(plan.Allocations, Allocation{
			LotID:      l.ID,
			Label:      l.Label,
			ExpireDate: l.ExpireDate,
			Quantity:   take,
			Before:     l.RemainingQuantity,
			After:      l.RemainingQuantity - take,
		})
		need -= take
	}

	// Whatever the lots could not cover sits in the aggregate without a lot record.
	if need > 0 {
		plan.Allocations = append(plan.Allocations, Allocation{Quantity: need})
	}

	return plan, nil
}
