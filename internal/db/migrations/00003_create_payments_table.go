package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(UpPaymentsTable, DownPaymentsTable)
}

func UpPaymentsTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `CREATE TABLE payments
(
    order_id UUID PRIMARY KEY REFERENCES orders (uuid),
    provider VARCHAR(64) NOT NULL,
    provider_payment_id VARCHAR(255) NOT NULL,
    amount BIGINT NOT NULL,
    currency VARCHAR(3) NOT NULL,
    method VARCHAR(64) NOT NULL,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP NOT NULL
);
CREATE INDEX payments_provider_payment_id_idx ON payments (provider_payment_id);`)
	return err
}

func DownPaymentsTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, "DROP TABLE payments;")
	return err
}
