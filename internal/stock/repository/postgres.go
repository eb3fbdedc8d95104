package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/medflow/stock-ledger/internal/stock/domain"
	"github.com/medflow/stock-ledger/pkg/database"
)

const (
	productColumns  = `barcode, name, unit, min_stock, unit_price, remaining_quantity, created_at`
	lotColumns      = `id, seq, barcode, lot_label, expire_date, initial_quantity, remaining_quantity, created_at`
	movementColumns = `id, barcode, type, quantity, lot_label, session_id, created_at`
)

// PostgresStore persists the ledger in PostgreSQL
type PostgresStore struct {
	db *database.DB
}

// NewPostgresStore creates a new PostgreSQL-backed store
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates missing tables and indexes
func (r *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create stock schema: %w", err)
	}
	return nil
}

// GetProduct gets a product by barcode
func (r *PostgresStore) GetProduct(ctx context.Context, barcode string) (*domain.Product, error) {
	var p domain.Product
	query := `SELECT ` + productColumns + ` FROM stock_products WHERE barcode = $1`
	if err := r.db.GetContext(ctx, &p, query, barcode); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ProductNotFound(barcode)
		}
		return nil, err
	}
	return &p, nil
}

// CreateProduct creates a new product
func (r *PostgresStore) CreateProduct(ctx context.Context, p *domain.Product) error {
	query := `
		INSERT INTO stock_products (barcode, name, unit, min_stock, unit_price, remaining_quantity)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		p.Barcode, p.Name, p.Unit, p.MinStock, p.UnitPrice, p.RemainingQuantity,
	).Scan(&p.CreatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// GetStock reads a product and its lots in creation order inside one snapshot
func (r *PostgresStore) GetStock(ctx context.Context, barcode string) (*domain.Product, []*domain.Lot, error) {
	var (
		p    domain.Product
		lots []*domain.Lot
	)
	err := r.db.ReadSnapshot(ctx, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &p,
			`SELECT `+productColumns+` FROM stock_products WHERE barcode = $1`, barcode); err != nil {
			if err == sql.ErrNoRows {
				return domain.ProductNotFound(barcode)
			}
			return err
		}
		return tx.SelectContext(ctx, &lots,
			`SELECT `+lotColumns+` FROM stock_lots WHERE barcode = $1 ORDER BY seq`, barcode)
	})
	if err != nil {
		return nil, nil, err
	}
	return &p, lots, nil
}

// Snapshot reads products and lots inside one repeatable-read transaction
func (r *PostgresStore) Snapshot(ctx context.Context) (*domain.Snapshot, error) {
	snap := &domain.Snapshot{}
	err := r.db.ReadSnapshot(ctx, func(tx *sqlx.Tx) error {
		if err := tx.SelectContext(ctx, &snap.Products,
			`SELECT `+productColumns+` FROM stock_products ORDER BY barcode`); err != nil {
			return err
		}
		return tx.SelectContext(ctx, &snap.Lots,
			`SELECT `+lotColumns+` FROM stock_lots ORDER BY barcode, seq`)
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// ListMovements lists movements created in [from, to)
func (r *PostgresStore) ListMovements(ctx context.Context, from, to time.Time) ([]*domain.Movement, error) {
	var movements []*domain.Movement
	query := `
		SELECT ` + movementColumns + ` FROM stock_movements
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at, id
	`
	if err := r.db.SelectContext(ctx, &movements, query, from, to); err != nil {
		return nil, err
	}
	return movements, nil
}

// Apply writes a change in one transaction. Every row update is guarded by the
// value it was computed from, so a concurrent writer turns into StaleStock.
func (r *PostgresStore) Apply(ctx context.Context, c *Change) error {
	err := r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if p := c.CreateProduct; p != nil {
			res, err := tx.ExecContext(ctx, `
				INSERT INTO stock_products (barcode, name, unit, min_stock, unit_price, remaining_quantity)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (barcode) DO NOTHING
			`, p.Barcode, p.Name, p.Unit, p.MinStock, p.UnitPrice, p.RemainingQuantity)
			if err != nil {
				return err
			}
			// created since it was read
			if err := expectOneRow(res, c.Barcode); err != nil {
				return err
			}
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE stock_products SET remaining_quantity = $3
			WHERE barcode = $1 AND remaining_quantity = $2
		`, c.Barcode, c.QuantityFrom, c.QuantityTo)
		if err != nil {
			return err
		}
		if err := expectOneRow(res, c.Barcode); err != nil {
			return err
		}

		for _, u := range c.LotUpdates {
			res, err := tx.ExecContext(ctx, `
				UPDATE stock_lots SET remaining_quantity = $3
				WHERE id = $1 AND remaining_quantity = $2 AND barcode = $4
			`, u.LotID, u.From, u.To, c.Barcode)
			if err != nil {
				return err
			}
			if err := expectOneRow(res, c.Barcode); err != nil {
				return err
			}
		}

		for _, l := range c.NewLots {
			if err := tx.QueryRowxContext(ctx, `
				INSERT INTO stock_lots (id, barcode, lot_label, expire_date, initial_quantity, remaining_quantity, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				RETURNING seq
			`, l.ID, l.Barcode, l.Label, l.ExpireDate, l.InitialQuantity, l.RemainingQuantity, l.CreatedAt,
			).Scan(&l.Seq); err != nil {
				return err
			}
		}

		if len(c.Movements) > 0 {
			if _, err := tx.NamedExecContext(ctx, `
				INSERT INTO stock_movements (`+movementColumns+`)
				VALUES (:id, :barcode, :type, :quantity, :lot_label, :session_id, :created_at)
			`, c.Movements); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// Health reports database connectivity
func (r *PostgresStore) Health(ctx context.Context) map[string]string {
	status := r.db.Health(ctx)
	status["backend"] = "postgres"
	return status
}

func expectOneRow(res sql.Result, barcode string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected != 1 {
		return domain.StaleStock(barcode)
	}
	return nil
}
