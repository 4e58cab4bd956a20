package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(UpOrdersTable, DownOrdersTable)
}

func UpOrdersTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `CREATE SEQUENCE order_numbers START 1;
CREATE TABLE orders
(
    uuid UUID PRIMARY KEY,
    order_number VARCHAR(255) UNIQUE NOT NULL,
    buyer_uuid UUID NOT NULL,
    total_amount BIGINT NOT NULL,
    currency VARCHAR(3) NOT NULL,
    payment_method VARCHAR(64) NOT NULL,
    payment_status VARCHAR(32) NOT NULL DEFAULT 'pending',
    provider_payment_id VARCHAR(255),
    rejection_reason VARCHAR(64),
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP NOT NULL,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP NOT NULL
);
CREATE TABLE order_items
(
    order_id UUID NOT NULL REFERENCES orders (uuid),
    course_uuid UUID NOT NULL,
    unit_price BIGINT NOT NULL,
    PRIMARY KEY (order_id, course_uuid)
);`)
	return err
}

func DownOrdersTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, "DROP TABLE order_items; DROP TABLE orders; DROP SEQUENCE order_numbers;")
	return err
}
