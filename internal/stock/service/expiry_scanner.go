package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/medflow/stock-ledger/internal/stock/domain"
	"github.com/medflow/stock-ledger/internal/stock/events"
	"github.com/medflow/stock-ledger/internal/stock/repository"
	"github.com/medflow/stock-ledger/pkg/logger"
	"github.com/medflow/stock-ledger/pkg/metrics"
)

// ExpiringLot is a lot with stock that is past or near its expiry date
type ExpiringLot struct {
	Product   *domain.Product
	Lot       *domain.Lot
	DaysUntil int
	Expired   bool
}

// ExpiryScanner periodically reports lots that are expired or inside the near-expiry window
type ExpiryScanner struct {
	store     repository.Store
	publisher *events.StockEventPublisher
	metrics   *metrics.Metrics
	logger    *logger.Logger
	now       func() time.Time
	location  *time.Location
	window    int
	interval  time.Duration

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewExpiryScanner creates a scanner that shares the ledger's clock and rules
func NewExpiryScanner(
	store repository.Store,
	publisher *events.StockEventPublisher,
	m *metrics.Metrics,
	log *logger.Logger,
	opts Options,
	interval time.Duration,
) *ExpiryScanner {
	opts.applyDefaults()
	return &ExpiryScanner{
		store:     store,
		publisher: publisher,
		metrics:   m,
		logger:    log.WithComponent("expiry_scanner"),
		now:       opts.Now,
		location:  opts.Location,
		window:    opts.NearExpiryDays,
		interval:  interval,
	}
}

// Scan lists expiring lots, logs and publishes each one
func (s *ExpiryScanner) Scan(ctx context.Context) ([]ExpiringLot, error) {
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("expiry scan: snapshot: %w", err)
	}

	today := domain.DateOf(s.now(), s.location)
	lotsByBarcode := snap.LotsByBarcode()

	var (
		found                   []ExpiringLot
		nearCount, expiredCount int
	)
	for _, p := range snap.Products {
		for _, lot := range lotsByBarcode[p.Barcode] {
			if !lot.HasStock() || lot.ExpireDate == nil {
				continue
			}
			expired := lot.IsExpired(today)
			if !expired && !lot.IsNearExpiry(today, s.window) {
				continue
			}

			found = append(found, ExpiringLot{
				Product:   p,
				Lot:       lot,
				DaysUntil: today.DaysUntil(*lot.ExpireDate),
				Expired:   expired,
			})
			if expired {
				expiredCount++
			} else {
				nearCount++
			}

			s.logger.Warn().
				Str("barcode", p.Barcode).
				Str("lot", lot.LabelOrEmpty()).
				Str("expire_date", lot.ExpireDate.String()).
				Int("remaining_quantity", lot.RemainingQuantity).
				Bool("expired", expired).
				Msg("lot expiring")
			s.publisher.PublishLotExpiring(ctx, p, lot, today)
		}
	}

	s.metrics.SetExpiringLots(nearCount, expiredCount)
	return found, nil
}

// Start runs Scan immediately and then on every interval until Stop or ctx is done.
// A non-positive interval disables the scanner.
func (s *ExpiryScanner) Start(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info().Msg("expiry scanner disabled")
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		s.logger.Info().Dur("interval", s.interval).Msg("expiry scanner started")

		s.runScanCycle(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info().Msg("expiry scanner stopped")
				return
			case <-ticker.C:
				s.runScanCycle(ctx)
			}
		}
	}()
}

// Stop stops the scanner goroutine and waits for it to exit
func (s *ExpiryScanner) Stop() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
			<-s.done
		}
	})
}

func (s *ExpiryScanner) runScanCycle(ctx context.Context) {
	start := time.Now()

	found, err := s.Scan(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("expiry scan failed")
		return
	}

	s.logger.Info().
		Dur("duration", time.Since(start)).
		Int("expiring_lots", len(found)).
		Msg("expiry scan completed")
}
