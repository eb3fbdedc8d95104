package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/medflow/stock-ledger/internal/stock/domain"
	"github.com/medflow/stock-ledger/pkg/errors"
)

// MemoryStore keeps the ledger in process memory. It backs local development
// and tests; nothing survives a restart.
type MemoryStore struct {
	mu        sync.RWMutex
	products  map[string]*domain.Product
	lots      map[string][]*domain.Lot
	lotsByID  map[string]*domain.Lot
	movements []*domain.Movement
	seq       int64
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products: make(map[string]*domain.Product),
		lots:     make(map[string][]*domain.Lot),
		lotsByID: make(map[string]*domain.Lot),
	}
}

// Seed loads products and lots as-is, bypassing the ledger rules. Products may
// carry more stock than their lots account for.
func (s *MemoryStore) Seed(products []*domain.Product, lots []*domain.Lot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range products {
		s.products[p.Barcode] = p.Clone()
	}
	for _, l := range lots {
		s.insertLot(l)
	}
}

// GetProduct gets a product by barcode
func (s *MemoryStore) GetProduct(_ context.Context, barcode string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[barcode]
	if !ok {
		return nil, domain.ProductNotFound(barcode)
	}
	return p.Clone(), nil
}

// CreateProduct registers a new product
func (s *MemoryStore) CreateProduct(_ context.Context, p *domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[p.Barcode]; exists {
		return errors.Conflict("a product with this barcode already exists")
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	s.products[p.Barcode] = p.Clone()
	return nil
}

// GetStock copies a product and its lots under one read lock
func (s *MemoryStore) GetStock(_ context.Context, barcode string) (*domain.Product, []*domain.Lot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[barcode]
	if !ok {
		return nil, nil, domain.ProductNotFound(barcode)
	}
	src := s.lots[barcode]
	lots := make([]*domain.Lot, len(src))
	for i, l := range src {
		lots[i] = l.Clone()
	}
	return p.Clone(), lots, nil
}

// Snapshot copies all products and lots under one read lock
func (s *MemoryStore) Snapshot(_ context.Context) (*domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &domain.Snapshot{
		Products: make([]*domain.Product, 0, len(s.products)),
		Lots:     make([]*domain.Lot, 0, len(s.lotsByID)),
	}
	for _, p := range s.products {
		snap.Products = append(snap.Products, p.Clone())
	}
	sort.Slice(snap.Products, func(i, j int) bool {
		return snap.Products[i].Barcode < snap.Products[j].Barcode
	})
	for _, p := range snap.Products {
		for _, l := range s.lots[p.Barcode] {
			snap.Lots = append(snap.Lots, l.Clone())
		}
	}
	return snap, nil
}

// ListMovements lists movements created in [from, to)
func (s *MemoryStore) ListMovements(_ context.Context, from, to time.Time) ([]*domain.Movement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Movement
	for _, m := range s.movements {
		if m.CreatedAt.Before(from) || !m.CreatedAt.Before(to) {
			continue
		}
		out = append(out, m.Clone())
	}
	return out, nil
}

// Apply validates the whole change against current state before writing any of it
func (s *MemoryStore) Apply(_ context.Context, c *Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[c.Barcode]
	if exists && c.CreateProduct != nil {
		return domain.StaleStock(c.Barcode)
	}
	if !exists {
		if c.CreateProduct == nil {
			return domain.ProductNotFound(c.Barcode)
		}
		product = c.CreateProduct.Clone()
	}

	if product.RemainingQuantity != c.QuantityFrom || c.QuantityTo < 0 {
		return domain.StaleStock(c.Barcode)
	}
	for _, u := range c.LotUpdates {
		l, ok := s.lotsByID[u.LotID]
		if !ok || l.Barcode != c.Barcode || l.RemainingQuantity != u.From || u.To < 0 {
			return domain.StaleStock(c.Barcode)
		}
	}

	if !exists {
		s.products[c.Barcode] = product
	}
	product.RemainingQuantity = c.QuantityTo
	for _, u := range c.LotUpdates {
		s.lotsByID[u.LotID].RemainingQuantity = u.To
	}
	for _, l := range c.NewLots {
		s.insertLot(l)
	}
	for _, m := range c.Movements {
		s.movements = append(s.movements, m.Clone())
	}

	return nil
}

// Health always reports up
func (s *MemoryStore) Health(_ context.Context) map[string]string {
	return map[string]string{"status": "up", "backend": "memory"}
}

// insertLot stores a copy of l and stamps its creation sequence on both. Callers hold mu.
func (s *MemoryStore) insertLot(l *domain.Lot) {
	s.seq++
	l.Seq = s.seq
	stored := l.Clone()
	s.lots[l.Barcode] = append(s.lots[l.Barcode], stored)
	s.lotsByID[l.ID] = stored
}
