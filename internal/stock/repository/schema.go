package repository

// Schema creates the stock tables. Statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS stock_products (
	barcode            VARCHAR(64) PRIMARY KEY,
	name               VARCHAR(255) NOT NULL,
	unit               VARCHAR(32)  NOT NULL,
	min_stock          INTEGER      NOT NULL DEFAULT 0,
	unit_price         NUMERIC(12, 2),
	remaining_quantity INTEGER      NOT NULL DEFAULT 0,
	created_at         TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
	CONSTRAINT stock_products_min_stock_check CHECK (min_stock >= 0),
	CONSTRAINT stock_products_remaining_quantity_check CHECK (remaining_quantity >= 0)
);

CREATE TABLE IF NOT EXISTS stock_lots (
	id                 UUID PRIMARY KEY,
	seq                BIGSERIAL    NOT NULL,
	barcode            VARCHAR(64)  NOT NULL REFERENCES stock_products(barcode),
	lot_label          VARCHAR(128),
	expire_date        DATE,
	initial_quantity   INTEGER      NOT NULL,
	remaining_quantity INTEGER      NOT NULL,
	created_at         TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
	CONSTRAINT stock_lots_initial_quantity_check CHECK (initial_quantity > 0),
	CONSTRAINT stock_lots_remaining_quantity_check CHECK (remaining_quantity >= 0)
);

CREATE INDEX IF NOT EXISTS idx_stock_lots_barcode ON stock_lots(barcode, seq);
CREATE INDEX IF NOT EXISTS idx_stock_lots_open_expiry ON stock_lots(expire_date)
	WHERE remaining_quantity > 0;

CREATE TABLE IF NOT EXISTS stock_movements (
	id         UUID PRIMARY KEY,
	barcode    VARCHAR(64)  NOT NULL REFERENCES stock_products(barcode),
	type       VARCHAR(3)   NOT NULL,
	quantity   INTEGER      NOT NULL,
	lot_label  VARCHAR(128),
	session_id UUID,
	created_at TIMESTAMPTZ  NOT NULL,
	CONSTRAINT stock_movements_movement_type_check CHECK (type IN ('IN', 'OUT')),
	CONSTRAINT stock_movements_quantity_check CHECK (quantity > 0)
);

CREATE INDEX IF NOT EXISTS idx_stock_movements_created_at ON stock_movements(created_at);
`
