package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	EventStockReceived  = "inventory.stock.received"
	EventStockDispensed = "inventory.stock.dispensed"
	EventLotExpiring    = "inventory.lot.expiring"
)

// Exchange names
const (
	ExchangeInventoryEvents = "inventory.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            GenerateEventID(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Stock Events

// StockReceivedEvent is published when a lot is received
type StockReceivedEvent struct {
	Barcode           string    `json:"barcode"`
	LotID             string    `json:"lot_id"`
	Lot               *string   `json:"lot"`
	ExpireDate        *string   `json:"expire_date"`
	Quantity          int       `json:"quantity"`
	RemainingQuantity int       `json:"remaining_quantity"`
	SessionID         *string   `json:"session_id,omitempty"`
	CreatedProduct    bool      `json:"created_product"`
	ReceivedAt        time.Time `json:"received_at"`
}

// LotDeduction is one lot touched by a dispense
type LotDeduction struct {
	LotID             string  `json:"lot_id,omitempty"`
	Lot               *string `json:"lot"`
	Quantity          int     `json:"quantity"`
	RemainingQuantity int     `json:"remaining_quantity"`
}

// StockDispensedEvent is published after a FIFO stock-out
type StockDispensedEvent struct {
	Barcode           string         `json:"barcode"`
	Quantity          int            `json:"quantity"`
	RemainingQuantity int            `json:"remaining_quantity"`
	SessionID         string         `json:"session_id"`
	LowStock          bool           `json:"low_stock"`
	Deductions        []LotDeduction `json:"deductions"`
	DispensedAt       time.Time      `json:"dispensed_at"`
}

// LotExpiringEvent is published when a lot with stock is near or past expiry
type LotExpiringEvent struct {
	Barcode     string  `json:"barcode"`
	ProductName string  `json:"product_name"`
	LotID       string  `json:"lot_id"`
	Lot         *string `json:"lot"`
	ExpireDate  string  `json:"expire_date"`
	DaysUntil   int     `json:"days_until"`
	Expired     bool    `json:"expired"`
	Quantity    int     `json:"quantity"`
}

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return uuid.NewString()
}
