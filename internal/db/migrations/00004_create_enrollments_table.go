package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(UpEnrollmentsTable, DownEnrollmentsTable)
}

func UpEnrollmentsTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `CREATE TABLE enrollments
(
    buyer_uuid UUID NOT NULL,
    course_uuid UUID NOT NULL,
    granted_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP NOT NULL,
    PRIMARY KEY (buyer_uuid, course_uuid)
);`)
	return err
}

func DownEnrollmentsTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, "DROP TABLE enrollments;")
	return err
}
