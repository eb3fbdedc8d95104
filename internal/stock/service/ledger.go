package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/medflow/stock-ledger/internal/stock/domain"
	"github.com/medflow/stock-ledger/internal/stock/events"
	"github.com/medflow/stock-ledger/internal/stock/repository"
	"github.com/medflow/stock-ledger/pkg/config"
	"github.com/medflow/stock-ledger/pkg/errors"
	"github.com/medflow/stock-ledger/pkg/logger"
	"github.com/medflow/stock-ledger/pkg/metrics"
	"github.com/shopspring/decimal"
)

// Apply is retried this many times when a guarded write finds the stock moved underneath it.
const maxApplyAttempts = 3

// Options holds the ledger rules
type Options struct {
	Now                func() time.Time
	Location           *time.Location
	NearExpiryDays     int
	DefaultProductName string
	DefaultUnit        string
	DefaultMinStock    int
	DefaultUnitPrice   decimal.Decimal
	RequireLot         bool
	RequireExpiry      bool
}

// OptionsFromConfig builds ledger options from configuration
func OptionsFromConfig(cfg *config.LedgerConfig) (Options, error) {
	loc, err := cfg.Location()
	if err != nil {
		return Options{}, err
	}
	price, err := cfg.UnitPrice()
	if err != nil {
		return Options{}, err
	}
	return Options{
		Now:                time.Now,
		Location:           loc,
		NearExpiryDays:     cfg.NearExpiryDays,
		DefaultProductName: cfg.DefaultProductName,
		DefaultUnit:        cfg.DefaultUnit,
		DefaultMinStock:    cfg.DefaultMinStock,
		DefaultUnitPrice:   price,
		RequireLot:         cfg.RequireLot,
		RequireExpiry:      cfg.RequireExpiry,
	}, nil
}

func (o *Options) applyDefaults() {
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.NearExpiryDays <= 0 {
		o.NearExpiryDays = 30
	}
	if o.DefaultProductName == "" {
		o.DefaultProductName = "Unnamed product"
	}
	if o.DefaultUnit == "" {
		o.DefaultUnit = "pcs"
	}
}

// Ledger applies stock-in and stock-out operations and answers stock queries
type Ledger struct {
	store     repository.Store
	locker    Locker
	publisher *events.StockEventPublisher
	metrics   *metrics.Metrics
	logger    *logger.Logger
	opts      Options
}

// NewLedger creates a new ledger. publisher and m may be nil.
func NewLedger(
	store repository.Store,
	locker Locker,
	publisher *events.StockEventPublisher,
	m *metrics.Metrics,
	log *logger.Logger,
	opts Options,
) *Ledger {
	opts.applyDefaults()
	if locker == nil {
		locker = NewLocalLocker()
	}
	return &Ledger{
		store:     store,
		locker:    locker,
		publisher: publisher,
		metrics:   m,
		logger:    log.WithComponent("ledger"),
		opts:      opts,
	}
}

// now returns the current instant in UTC
func (l *Ledger) now() time.Time {
	return l.opts.Now().UTC()
}

// today returns the calendar date in the reference timezone
func (l *Ledger) today() domain.Date {
	return domain.DateOf(l.opts.Now(), l.opts.Location)
}

// StockInItem is one line of a stock-in request
type StockInItem struct {
	Barcode    string `json:"barcode" validate:"required,barcode"`
	Quantity   int    `json:"quantity"`
	Lot        string `json:"lot"`
	ExpireDate string `json:"expire_date"`
}

// StockInResult describes the effect of one stock-in
type StockInResult struct {
	Barcode           string      `json:"barcode"`
	ProductName       string      `json:"product_name"`
	RemainingQuantity int         `json:"remaining_quantity"`
	CreatedProduct    bool        `json:"created_product"`
	Lot               *domain.Lot `json:"lot"`
}

// StockOutItem is one line of a stock-out request
type StockOutItem struct {
	Barcode  string `json:"barcode" validate:"required,barcode"`
	Quantity int    `json:"quantity"`
}

// StockOutResult describes the effect of one stock-out
type StockOutResult struct {
	Barcode           string              `json:"barcode"`
	ProductName       string              `json:"product_name"`
	RemainingQuantity int                 `json:"remaining_quantity"`
	LowStock          bool                `json:"low_stock"`
	SessionID         string              `json:"session_id"`
	Allocations       []domain.Allocation `json:"allocations"`
}

// BulkItemError reports one failed line of a bulk request
type BulkItemError struct {
	Index   int    `json:"index"`
	Barcode string `json:"barcode"`
	Code    string `json:"code"`
	Error   string `json:"error"`
}

// BulkStockInResult is the outcome of a best-effort bulk stock-in
type BulkStockInResult struct {
	SessionID string           `json:"session_id"`
	Results   []*StockInResult `json:"results"`
	Errors    []BulkItemError  `json:"errors"`
}

// BulkStockOutResult is the outcome of a best-effort bulk stock-out
type BulkStockOutResult struct {
	SessionID string            `json:"session_id"`
	Results   []*StockOutResult `json:"results"`
	Errors    []BulkItemError   `json:"errors"`
}

// Err returns a PARTIAL_FAILURE error when any item failed
func (r *BulkStockInResult) Err() error {
	return bulkErr(len(r.Errors), len(r.Results)+len(r.Errors))
}

// Err returns a PARTIAL_FAILURE error when any item failed
func (r *BulkStockOutResult) Err() error {
	return bulkErr(len(r.Errors), len(r.Results)+len(r.Errors))
}

func bulkErr(failed, total int) error {
	if failed == 0 {
		return nil
	}
	return errors.PartialFailure(failed, total)
}

func newBulkItemError(index int, barcode string, err error) BulkItemError {
	msg := err.Error()
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	return BulkItemError{
		Index:   index,
		Barcode: barcode,
		Code:    errors.CodeOf(err),
		Error:   fmt.Sprintf("item %d (%s): %s", index+1, barcode, msg),
	}
}

// StockIn receives a single lot. Single calls carry no session.
func (l *Ledger) StockIn(ctx context.Context, item StockInItem) (*StockInResult, error) {
	res, err := l.stockIn(ctx, item, nil, l.now())
	l.metrics.ObserveOperation("stock_in", codeOf(err))
	return res, err
}

// BulkStockIn receives every item independently under one session and timestamp.
// Failed items are collected; items applied before a failure stay applied.
func (l *Ledger) BulkStockIn(ctx context.Context, items []StockInItem) *BulkStockInResult {
	sessionID := uuid.NewString()
	log := l.logger.WithSession(sessionID)
	at := l.now()
	out := &BulkStockInResult{
		SessionID: sessionID,
		Results:   make([]*StockInResult, 0, len(items)),
		Errors:    make([]BulkItemError, 0),
	}

	for i, item := range items {
		res, err := l.stockIn(ctx, item, &sessionID, at)
		if err != nil {
			log.Warn().Err(err).Int("index", i).Str("barcode", item.Barcode).Msg("bulk item rejected")
			out.Errors = append(out.Errors, newBulkItemError(i, item.Barcode, err))
			continue
		}
		out.Results = append(out.Results, res)
	}

	l.metrics.ObserveOperation("bulk_stock_in", codeOf(out.Err()))
	log.Info().
		Int("items", len(items)).
		Int("failed", len(out.Errors)).
		Msg("bulk stock-in processed")
	return out
}

func (l *Ledger) stockIn(ctx context.Context, item StockInItem, sessionID *string, at time.Time) (*StockInResult, error) {
	barcode := strings.TrimSpace(item.Barcode)
	if barcode == "" {
		return nil, errors.Validation(map[string]string{"barcode": "this field is required"})
	}
	if item.Quantity <= 0 || item.Quantity > domain.MaxQuantity {
		return nil, domain.InvalidQuantity()
	}
	label := strings.TrimSpace(item.Lot)
	if label == "" && l.opts.RequireLot {
		return nil, domain.MissingLot()
	}
	expiry, err := parseExpiry(item.ExpireDate)
	if err != nil {
		return nil, err
	}
	if expiry == nil && l.opts.RequireExpiry {
		return nil, domain.MissingExpiry()
	}
	if expiry != nil && !expiry.After(l.today()) {
		return nil, domain.ExpiryNotInFuture(*expiry)
	}

	unlock, err := l.lock(ctx, barcode)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var (
		product *domain.Product
		lot     *domain.Lot
		created bool
	)
	for attempt := 1; ; attempt++ {
		product, created, err = l.productOrDefault(ctx, barcode, at)
		if err != nil {
			return nil, err
		}
		if product.RemainingQuantity > domain.MaxQuantity-item.Quantity {
			return nil, domain.InvalidQuantity()
		}

		lot = &domain.Lot{
			ID:                uuid.NewString(),
			Barcode:           barcode,
			Label:             domain.StringPtr(label),
			ExpireDate:        expiry,
			InitialQuantity:   item.Quantity,
			RemainingQuantity: item.Quantity,
			CreatedAt:         at,
		}
		change := &repository.Change{
			Barcode:      barcode,
			QuantityFrom: product.RemainingQuantity,
			QuantityTo:   product.RemainingQuantity + item.Quantity,
			NewLots:      []*domain.Lot{lot},
			Movements: []*domain.Movement{{
				ID:        uuid.NewString(),
				Barcode:   barcode,
				Type:      domain.MovementIn,
				Quantity:  item.Quantity,
				LotLabel:  lot.Label,
				SessionID: sessionID,
				CreatedAt: at,
			}},
		}
		if created {
			change.CreateProduct = product
		}

		err = l.store.Apply(ctx, change)
		if err == nil {
			product.RemainingQuantity = change.QuantityTo
			break
		}
		if !errors.Is(err, domain.ErrStaleStock) || attempt >= maxApplyAttempts {
			return nil, err
		}
		l.logger.Warn().Str("barcode", barcode).Int("attempt", attempt).Msg("stock moved during stock-in, retrying")
	}

	l.metrics.AddUnits(string(domain.MovementIn), item.Quantity)
	l.publisher.PublishStockReceived(ctx, lot, product.RemainingQuantity, sessionID, created)

	l.logger.Info().
		Str("barcode", barcode).
		Int("quantity", item.Quantity).
		Str("lot", label).
		Str("expire_date", dateString(expiry)).
		Int("remaining_quantity", product.RemainingQuantity).
		Bool("created_product", created).
		Str("session_id", deref(sessionID)).
		Msg("stock received")

	return &StockInResult{
		Barcode:           barcode,
		ProductName:       product.Name,
		RemainingQuantity: product.RemainingQuantity,
		CreatedProduct:    created,
		Lot:               lot,
	}, nil
}

// productOrDefault loads the product, or builds one from the configured defaults
func (l *Ledger) productOrDefault(ctx context.Context, barcode string, at time.Time) (*domain.Product, bool, error) {
	product, err := l.store.GetProduct(ctx, barcode)
	if err == nil {
		return product, false, nil
	}
	if !errors.Is(err, domain.ErrProductNotFound) {
		return nil, false, err
	}
	return &domain.Product{
		Barcode:   barcode,
		Name:      l.opts.DefaultProductName,
		Unit:      l.opts.DefaultUnit,
		MinStock:  l.opts.DefaultMinStock,
		CreatedAt: at,
	}, true, nil
}

// StockOut dispenses qty units nearest-expiry first. Every movement it writes
// shares one new session id and timestamp.
func (l *Ledger) StockOut(ctx context.Context, item StockOutItem) (*StockOutResult, error) {
	res, err := l.stockOut(ctx, item, uuid.NewString(), l.now())
	l.metrics.ObserveOperation("stock_out", codeOf(err))
	return res, err
}

// BulkStockOut runs an independent FIFO walk per item under one session and timestamp
func (l *Ledger) BulkStockOut(ctx context.Context, items []StockOutItem) *BulkStockOutResult {
	sessionID := uuid.NewString()
	log := l.logger.WithSession(sessionID)
	at := l.now()
	out := &BulkStockOutResult{
		SessionID: sessionID,
		Results:   make([]*StockOutResult, 0, len(items)),
		Errors:    make([]BulkItemError, 0),
	}

	for i, item := range items {
		res, err := l.stockOut(ctx, item, sessionID, at)
		if err != nil {
			log.Warn().Err(err).Int("index", i).Str("barcode", item.Barcode).Msg("bulk item rejected")
			out.Errors = append(out.Errors, newBulkItemError(i, item.Barcode, err))
			continue
		}
		out.Results = append(out.Results, res)
	}

	l.metrics.ObserveOperation("bulk_stock_out", codeOf(out.Err()))
	log.Info().
		Int("items", len(items)).
		Int("failed", len(out.Errors)).
		Msg("bulk stock-out processed")
	return out
}

func (l *Ledger) stockOut(ctx context.Context, item StockOutItem, sessionID string, at time.Time) (*StockOutResult, error) {
	barcode := strings.TrimSpace(item.Barcode)
	if barcode == "" {
		return nil, errors.Validation(map[string]string{"barcode": "this field is required"})
	}
	if item.Quantity <= 0 || item.Quantity > domain.MaxQuantity {
		return nil, domain.InvalidQuantity()
	}

	unlock, err := l.lock(ctx, barcode)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var (
		product *domain.Product
		plan    *domain.DepletionPlan
	)
	for attempt := 1; ; attempt++ {
		var lots []*domain.Lot
		product, lots, err = l.store.GetStock(ctx, barcode)
		if err != nil {
			return nil, err
		}

		plan, err = domain.PlanDepletion(product, lots, item.Quantity)
		if err != nil {
			return nil, err
		}

		err = l.store.Apply(ctx, depletionChange(plan, sessionID, at))
		if err == nil {
			product.RemainingQuantity = plan.After
			break
		}
		if !errors.Is(err, domain.ErrStaleStock) || attempt >= maxApplyAttempts {
			return nil, err
		}
		l.logger.Warn().Str("barcode", barcode).Int("attempt", attempt).Msg("stock moved during stock-out, retrying")
	}

	lowStock := product.IsLowStock()
	l.metrics.AddUnits(string(domain.MovementOut), item.Quantity)
	l.publisher.PublishStockDispensed(ctx, plan, sessionID, lowStock, at)

	l.logger.Info().
		Str("barcode", barcode).
		Int("quantity", item.Quantity).
		Int("lots_touched", len(plan.Allocations)).
		Int("remaining_quantity", plan.After).
		Bool("low_stock", lowStock).
		Str("session_id", sessionID).
		Msg("stock dispensed")

	return &StockOutResult{
		Barcode:           barcode,
		ProductName:       product.Name,
		RemainingQuantity: plan.After,
		LowStock:          lowStock,
		SessionID:         sessionID,
		Allocations:       plan.Allocations,
	}, nil
}

// depletionChange turns a plan into guarded lot updates and one OUT movement per allocation
func depletionChange(plan *domain.DepletionPlan, sessionID string, at time.Time) *repository.Change {
	change := &repository.Change{
		Barcode:      plan.Barcode,
		QuantityFrom: plan.Before,
		QuantityTo:   plan.After,
		Movements:    make([]*domain.Movement, 0, len(plan.Allocations)),
	}
	for _, a := range plan.Allocations {
		if !a.Untracked() {
			change.LotUpdates = append(change.LotUpdates, repository.LotUpdate{
				LotID: a.LotID,
				From:  a.Before,
				To:    a.After,
			})
		}
		sid := sessionID
		change.Movements = append(change.Movements, &domain.Movement{
			ID:        uuid.NewString(),
			Barcode:   plan.Barcode,
			Type:      domain.MovementOut,
			Quantity:  a.Quantity,
			LotLabel:  a.Label,
			SessionID: &sid,
			CreatedAt: at,
		})
	}
	return change
}

// CreateProductInput registers a product explicitly
type CreateProductInput struct {
	Barcode   string           `json:"barcode" validate:"required,barcode"`
	Name      string           `json:"product_name" validate:"required,max=255"`
	Unit      string           `json:"unit" validate:"omitempty,max=32"`
	MinStock  *int             `json:"min_stock" validate:"omitempty,gte=0,lte=2147483647"`
	UnitPrice *decimal.Decimal `json:"unit_price"`
}

// CreateProduct registers a product with zero stock
func (l *Ledger) CreateProduct(ctx context.Context, in CreateProductInput) (*domain.Product, error) {
	p := &domain.Product{
		Barcode:   strings.TrimSpace(in.Barcode),
		Name:      strings.TrimSpace(in.Name),
		Unit:      in.Unit,
		MinStock:  l.opts.DefaultMinStock,
		CreatedAt: l.now(),
	}
	if p.Unit == "" {
		p.Unit = l.opts.DefaultUnit
	}
	if in.MinStock != nil {
		p.MinStock = *in.MinStock
	}
	if in.UnitPrice != nil {
		if in.UnitPrice.IsNegative() {
			return nil, errors.Validation(map[string]string{"unit_price": "must not be negative"})
		}
		p.UnitPrice = decimal.NewNullDecimal(*in.UnitPrice)
	}

	unlock, err := l.lock(ctx, p.Barcode)
	if err != nil {
		return nil, err
	}
	defer unlock()

	err = l.store.CreateProduct(ctx, p)
	l.metrics.ObserveOperation("create_product", codeOf(err))
	if err != nil {
		return nil, err
	}

	l.logger.Info().Str("barcode", p.Barcode).Str("product_name", p.Name).Msg("product created")
	return p, nil
}

// ProductView is the barcode lookup answer
type ProductView struct {
	Barcode           string              `json:"barcode"`
	ProductName       string              `json:"product_name"`
	RemainingQuantity int                 `json:"remaining_quantity"`
	Unit              string              `json:"unit"`
	MinStock          int                 `json:"min_stock"`
	UnitPrice         decimal.NullDecimal `json:"unit_price"`
	LowStock          bool                `json:"low_stock"`
	ExpireDate        *domain.Date        `json:"expire_date"`
	NearExpiry        bool                `json:"near_expiry"`
}

// GetProductByBarcode returns the product with its earliest non-expired lot expiry
func (l *Ledger) GetProductByBarcode(ctx context.Context, barcode string) (*ProductView, error) {
	product, lots, err := l.store.GetStock(ctx, strings.TrimSpace(barcode))
	if err != nil {
		return nil, err
	}

	today := l.today()
	view := &ProductView{
		Barcode:           product.Barcode,
		ProductName:       product.Name,
		RemainingQuantity: product.RemainingQuantity,
		Unit:              product.Unit,
		MinStock:          product.MinStock,
		UnitPrice:         product.UnitPrice,
		LowStock:          product.IsLowStock(),
	}

	for _, lot := range lots {
		if !lot.HasStock() || lot.ExpireDate == nil || lot.IsExpired(today) {
			continue
		}
		if view.ExpireDate == nil || lot.ExpireDate.Before(*view.ExpireDate) {
			d := *lot.ExpireDate
			view.ExpireDate = &d
			view.NearExpiry = lot.IsNearExpiry(today, l.opts.NearExpiryDays)
		}
	}

	return view, nil
}

// ListLots returns every lot of a product, depleted ones included, in depletion order
func (l *Ledger) ListLots(ctx context.Context, barcode string) ([]*domain.Lot, error) {
	_, lots, err := l.store.GetStock(ctx, strings.TrimSpace(barcode))
	if err != nil {
		return nil, err
	}
	domain.SortForDepletion(lots)
	return lots, nil
}

// Health reports store status
func (l *Ledger) Health(ctx context.Context) map[string]string {
	return l.store.Health(ctx)
}

func (l *Ledger) lock(ctx context.Context, barcode string) (func(), error) {
	start := time.Now()
	unlock, err := l.locker.Lock(ctx, barcode)
	l.metrics.ObserveLockWait(time.Since(start))
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(err, "REQUEST_CANCELLED", "request cancelled while waiting for stock lock", http.StatusServiceUnavailable)
		}
		return nil, err
	}
	return unlock, nil
}

func parseExpiry(s string) (*domain.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	d, err := domain.ParseDate(s)
	if err != nil {
		return nil, errors.Validation(map[string]string{"expire_date": "must be a date in YYYY-MM-DD format"})
	}
	return &d, nil
}

func codeOf(err error) string {
	if err == nil {
		return ""
	}
	return errors.CodeOf(err)
}

func dateString(d *domain.Date) string {
	if d == nil {
		return ""
	}
	return d.String()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
