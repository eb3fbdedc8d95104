package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/medflow/stock-ledger/internal/stock/domain"
	"github.com/medflow/stock-ledger/pkg/errors"
	"github.com/shopspring/decimal"
)

// Movement log filters
const (
	FilterToday     = "today"
	FilterLast7Days = "7days"
)

// DashboardStats summarizes current stock
type DashboardStats struct {
	TotalProducts   int             `json:"total_products"`
	LowStockCount   int             `json:"low_stock_count"`
	NearExpiryCount int             `json:"near_expiry_count"`
	ExpiredCount    int             `json:"expired_count"`
	TotalStockValue decimal.Decimal `json:"total_stock_value"`
	NearExpiryDays  int             `json:"near_expiry_days"`
	AsOf            domain.Date     `json:"as_of"`
}

// GetDashboardStats computes the dashboard counters from one consistent snapshot
func (l *Ledger) GetDashboardStats(ctx context.Context) (*DashboardStats, error) {
	snap, err := l.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	today := l.today()
	stats := &DashboardStats{
		TotalProducts:   len(snap.Products),
		TotalStockValue: decimal.Zero,
		NearExpiryDays:  l.opts.NearExpiryDays,
		AsOf:            today,
	}

	lotsByBarcode := snap.LotsByBarcode()
	for _, p := range snap.Products {
		if p.IsLowStock() {
			stats.LowStockCount++
		}

		var near, expired bool
		for _, lot := range lotsByBarcode[p.Barcode] {
			if !lot.HasStock() {
				continue
			}
			near = near || lot.IsNearExpiry(today, l.opts.NearExpiryDays)
			expired = expired || lot.IsExpired(today)
		}
		if near {
			stats.NearExpiryCount++
		}
		if expired {
			stats.ExpiredCount++
		}

		price := l.opts.DefaultUnitPrice
		if p.UnitPrice.Valid {
			price = p.UnitPrice.Decimal
		}
		stats.TotalStockValue = stats.TotalStockValue.Add(price.Mul(decimal.NewFromInt(int64(p.RemainingQuantity))))
	}

	return stats, nil
}

// MovementDetail is the quantity moved for one lot label within a group
type MovementDetail struct {
	Lot      *string `json:"lot"`
	Quantity int     `json:"quantity"`
}

// MovementGroup is one user action reconstituted from its movement records
type MovementGroup struct {
	SessionID   *string             `json:"session_id"`
	Barcode     string              `json:"barcode"`
	ProductName string              `json:"product_name"`
	Type        domain.MovementType `json:"type"`
	Quantity    int                 `json:"quantity"`
	CreatedAt   time.Time           `json:"created_at"`
	Details     []MovementDetail    `json:"details"`
}

// MovementLog is the grouped movement history for a filter window
type MovementLog struct {
	Filter string           `json:"filter"`
	From   time.Time        `json:"from"`
	To     time.Time        `json:"to"`
	Groups []*MovementGroup `json:"groups"`
}

// NormalizeFilter maps accepted filter spellings to their canonical form
func NormalizeFilter(filter string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(filter)) {
	case FilterToday:
		return FilterToday, nil
	case FilterLast7Days, "last_7_days":
		return FilterLast7Days, nil
	default:
		return "", errors.Validation(map[string]string{
			"filter": "must be one of: " + FilterToday + ", " + FilterLast7Days,
		})
	}
}

// window returns the [from, to) range a filter covers
func (l *Ledger) window(filter string) (time.Time, time.Time) {
	now := l.opts.Now()
	to := now.UTC().Add(time.Nanosecond)
	if filter == FilterToday {
		local := now.In(l.opts.Location)
		start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, l.opts.Location)
		return start.UTC(), to
	}
	return now.UTC().Add(-7 * 24 * time.Hour), to
}

// GetMovementLog returns grouped movements for the filter window, newest group first
func (l *Ledger) GetMovementLog(ctx context.Context, filter string) (*MovementLog, error) {
	filter, err := NormalizeFilter(filter)
	if err != nil {
		return nil, err
	}

	from, to := l.window(filter)
	movements, err := l.store.ListMovements(ctx, from, to)
	if err != nil {
		return nil, err
	}

	snap, err := l.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(snap.Products))
	for _, p := range snap.Products {
		names[p.Barcode] = p.Name
	}

	return &MovementLog{
		Filter: filter,
		From:   from,
		To:     to.Add(-time.Nanosecond),
		Groups: GroupMovements(movements, names),
	}, nil
}

type groupKey struct {
	session string
	barcode string
	typ     domain.MovementType
	at      int64
}

// GroupMovements merges movements sharing session, product, type and timestamp.
// Movements without a session stay singletons. Details keep first-seen lot order
// and sum repeated labels; groups are returned newest first.
func GroupMovements(movements []*domain.Movement, productNames map[string]string) []*MovementGroup {
	groups := make([]*MovementGroup, 0)
	index := make(map[groupKey]*MovementGroup)

	for _, m := range movements {
		var g *MovementGroup
		if m.SessionID != nil {
			key := groupKey{session: *m.SessionID, barcode: m.Barcode, typ: m.Type, at: m.CreatedAt.UnixNano()}
			g = index[key]
			if g == nil {
				g = newGroup(m, productNames)
				index[key] = g
				groups = append(groups, g)
			}
		} else {
			g = newGroup(m, productNames)
			groups = append(groups, g)
		}

		g.Quantity += m.Quantity
		g.addDetail(m.LotLabel, m.Quantity)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].CreatedAt.After(groups[j].CreatedAt)
	})
	return groups
}

func newGroup(m *domain.Movement, productNames map[string]string) *MovementGroup {
	var sid *string
	if m.SessionID != nil {
		s := *m.SessionID
		sid = &s
	}
	return &MovementGroup{
		SessionID:   sid,
		Barcode:     m.Barcode,
		ProductName: productNames[m.Barcode],
		Type:        m.Type,
		CreatedAt:   m.CreatedAt,
		Details:     make([]MovementDetail, 0, 1),
	}
}

func (g *MovementGroup) addDetail(label *string, qty int) {
	for i := range g.Details {
		if sameLabel(g.Details[i].Lot, label) {
			g.Details[i].Quantity += qty
			return
		}
	}
	var lot *string
	if label != nil {
		s := *label
		lot = &s
	}
	g.Details = append(g.Details, MovementDetail{Lot: lot, Quantity: qty})
}

func sameLabel(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
