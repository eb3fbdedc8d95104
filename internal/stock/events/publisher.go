package events

import (
	"context"
	"time"

	"github.com/medflow/stock-ledger/internal/stock/domain"
	"github.com/medflow/stock-ledger/pkg/config"
	"github.com/medflow/stock-ledger/pkg/logger"
	"github.com/medflow/stock-ledger/pkg/messaging"
)

// Publisher is the transport the stock events go through.
// *messaging.Publisher satisfies it.
type Publisher interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
}

// StockEventPublisher publishes stock-related events. A nil publisher drops them.
type StockEventPublisher struct {
	publisher Publisher
	logger    *logger.Logger
}

// NewStockEventPublisher creates a publisher on the inventory exchange
func NewStockEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*StockEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeInventoryEvents, config.ServiceName, log)
	if err != nil {
		return nil, err
	}
	return NewWithPublisher(publisher, log), nil
}

// NewWithPublisher wraps an existing transport
func NewWithPublisher(p Publisher, log *logger.Logger) *StockEventPublisher {
	return &StockEventPublisher{
		publisher: p,
		logger:    log,
	}
}

// PublishStockReceived publishes a stock received event for a new lot
func (p *StockEventPublisher) PublishStockReceived(ctx context.Context, lot *domain.Lot, remaining int, sessionID *string, createdProduct bool) {
	if p == nil {
		return
	}

	data := messaging.StockReceivedEvent{
		Barcode:           lot.Barcode,
		LotID:             lot.ID,
		Lot:               lot.Label,
		ExpireDate:        dateString(lot.ExpireDate),
		Quantity:          lot.InitialQuantity,
		RemainingQuantity: remaining,
		SessionID:         sessionID,
		CreatedProduct:    createdProduct,
		ReceivedAt:        lot.CreatedAt,
	}

	if err := p.publisher.Publish(ctx, messaging.EventStockReceived, data); err != nil {
		p.logger.Error().Err(err).Str("barcode", lot.Barcode).Msg("failed to publish stock received event")
	}
}

// PublishStockDispensed publishes the per-lot breakdown of a stock-out
func (p *StockEventPublisher) PublishStockDispensed(ctx context.Context, plan *domain.DepletionPlan, sessionID string, lowStock bool, at time.Time) {
	if p == nil {
		return
	}

	deductions := make([]messaging.LotDeduction, 0, len(plan.Allocations))
	for _, a := range plan.Allocations {
		deductions = append(deductions, messaging.LotDeduction{
			LotID:             a.LotID,
			Lot:               a.Label,
			Quantity:          a.Quantity,
			RemainingQuantity: a.After,
		})
	}

	data := messaging.StockDispensedEvent{
		Barcode:           plan.Barcode,
		Quantity:          plan.Requested,
		RemainingQuantity: plan.After,
		SessionID:         sessionID,
		LowStock:          lowStock,
		Deductions:        deductions,
		DispensedAt:       at,
	}

	if err := p.publisher.Publish(ctx, messaging.EventStockDispensed, data); err != nil {
		p.logger.Error().Err(err).Str("barcode", plan.Barcode).Msg("failed to publish stock dispensed event")
	}
}

// PublishLotExpiring publishes an expiry warning for a lot that still holds stock
func (p *StockEventPublisher) PublishLotExpiring(ctx context.Context, product *domain.Product, lot *domain.Lot, today domain.Date) {
	if p == nil || lot.ExpireDate == nil {
		return
	}

	data := messaging.LotExpiringEvent{
		Barcode:     lot.Barcode,
		ProductName: product.Name,
		LotID:       lot.ID,
		Lot:         lot.Label,
		ExpireDate:  lot.ExpireDate.String(),
		DaysUntil:   today.DaysUntil(*lot.ExpireDate),
		Expired:     lot.IsExpired(today),
		Quantity:    lot.RemainingQuantity,
	}

	if err := p.publisher.Publish(ctx, messaging.EventLotExpiring, data); err != nil {
		p.logger.Error().Err(err).Str("lot_id", lot.ID).Msg("failed to publish lot expiring event")
	}
}

func dateString(d *domain.Date) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}
