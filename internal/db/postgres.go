package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/Kjfer/peri-craft-campus-sub001/config"
	_ "github.com/Kjfer/peri-craft-campus-sub001/internal/db/migrations"
	"github.com/Kjfer/peri-craft-campus-sub001/models"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
)

type Manager struct {
	Db *sql.DB
}

func NewManager(cfg *config.Config) (*Manager, error) {
	db, err := sql.Open("pgx", cfg.DatabaseURI)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	manager := &Manager{
		Db: db,
	}

	if err = goose.Up(db, "./internal/db/migrations"); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return manager, nil
}

func (m *Manager) PutUniqueUserData(user models.User) error {
	_, err := m.Db.Exec(`
        INSERT INTO users (uuid, login, password)
        VALUES ($1, $2, $3)
    `, user.UUID, user.Login, user.Password)
	if err != nil {
		return fmt.Errorf("failed to insert user data: %w", err)
	}

	return nil
}

func (m *Manager) GetUserData(login string) (models.User, error) {
	var user models.User

	err := m.Db.QueryRow(`
		SELECT uuid, login, password
		FROM users
		WHERE login = $1
	`, login).Scan(&user.UUID, &user.Login, &user.Password)

	if err != nil {
		return user, fmt.Errorf("failed to get user data: %w", err)
	}

	return user, nil
}

func (m *Manager) CreatePendingOrder(buyerUUID string, items []models.OrderItem, method string, amount int64, currency string) (*models.Order, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: order has no items", ErrValidation)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}

	tx, err := m.Db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	if err = tx.QueryRow(`SELECT nextval('order_numbers')`).Scan(&seq); err != nil {
		return nil, fmt.Errorf("failed to get order number: %w", err)
	}

	order := &models.Order{
		UUID:          uuid.New().String(),
		OrderNumber:   fmt.Sprintf("PI-%06d", seq),
		BuyerUUID:     buyerUUID,
		Items:         items,
		TotalAmount:   amount,
		Currency:      currency,
		PaymentMethod: method,
		PaymentStatus: models.OrderPending,
	}

	err = tx.QueryRow(`
		INSERT INTO orders (uuid, order_number, buyer_uuid, total_amount, currency, payment_method, payment_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`, order.UUID, order.OrderNumber, order.BuyerUUID, order.TotalAmount, order.Currency, order.PaymentMethod, order.PaymentStatus).
		Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert order: %w", err)
	}

	for _, item := range items {
		_, err = tx.Exec(`
			INSERT INTO order_items (order_id, course_uuid, unit_price)
			VALUES ($1, $2, $3)
		`, order.UUID, item.CourseUUID, item.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit order: %w", err)
	}

	return order, nil
}

func (m *Manager) FindOrder(reference string) (*models.Order, error) {
	queries := []string{
		`SELECT uuid, order_number, buyer_uuid, total_amount, currency, payment_method, payment_status, provider_payment_id, rejection_reason, created_at, updated_at
		 FROM orders WHERE uuid::text = $1`,
		`SELECT uuid, order_number, buyer_uuid, total_amount, currency, payment_method, payment_status, provider_payment_id, rejection_reason, created_at, updated_at
		 FROM orders WHERE order_number = $1`,
		`SELECT o.uuid, o.order_number, o.buyer_uuid, o.total_amount, o.currency, o.payment_method, o.payment_status, o.provider_payment_id, o.rejection_reason, o.created_at, o.updated_at
		 FROM orders o JOIN payments p ON p.order_id = o.uuid WHERE p.provider_payment_id = $1`,
	}

	for _, query := range queries {
		order, err := m.scanOrder(query, reference)
		if err == nil {
			if err = m.loadItems(order); err != nil {
				return nil, err
			}
			return order, nil
		}
		if err != sql.ErrNoRows {
			return nil, fmt.Errorf("failed to find order: %w", err)
		}
	}

	return nil, ErrNotFound
}

func (m *Manager) scanOrder(query, reference string) (*models.Order, error) {
	var order models.Order
	var providerPaymentID, rejectionReason sql.NullString

	err := m.Db.QueryRow(query, reference).Scan(
		&order.UUID, &order.OrderNumber, &order.BuyerUUID, &order.TotalAmount,
		&order.Currency, &order.PaymentMethod, &order.PaymentStatus,
		&providerPaymentID, &rejectionReason, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	order.ProviderPaymentID = providerPaymentID.String
	order.RejectionReason = models.RejectionReason(rejectionReason.String)

	return &order, nil
}

func (m *Manager) loadItems(order *models.Order) error {
	rows, err := m.Db.Query(`
		SELECT course_uuid, unit_price FROM order_items WHERE order_id = $1
	`, order.UUID)
	if err != nil {
		return fmt.Errorf("failed to load order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item models.OrderItem
		if err = rows.Scan(&item.CourseUUID, &item.UnitPrice); err != nil {
			return fmt.Errorf("failed to scan order item: %w", err)
		}
		order.Items = append(order.Items, item)
	}

	return rows.Err()
}

func (m *Manager) ApplyStatusTransition(orderID string, status models.PaymentStatus, providerPaymentID string, reason models.RejectionReason) (bool, error) {
	res, err := m.Db.Exec(`
		UPDATE orders
		SET payment_status = $2,
		    provider_payment_id = COALESCE(NULLIF($3, ''), provider_payment_id),
		    rejection_reason = NULLIF($4, ''),
		    updated_at = NOW()
		WHERE uuid = $1 AND payment_status = 'pending'
	`, orderID, status, providerPaymentID, string(reason))
	if err != nil {
		return false, fmt.Errorf("failed to apply status transition: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return affected > 0, nil
}

func (m *Manager) UpsertPayment(orderID, provider, providerPaymentID string, amount int64, currency, method string) error {
	_, err := m.Db.Exec(`
		INSERT INTO payments (order_id, provider, provider_payment_id, amount, currency, method, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (order_id) DO UPDATE
		SET provider = EXCLUDED.provider,
		    provider_payment_id = EXCLUDED.provider_payment_id,
		    amount = EXCLUDED.amount,
		    currency = EXCLUDED.currency,
		    method = EXCLUDED.method,
		    updated_at = NOW()
	`, orderID, provider, providerPaymentID, amount, currency, method)
	if err != nil {
		return fmt.Errorf("failed to upsert payment: %w", err)
	}

	return nil
}

func (m *Manager) InsertEnrollment(buyerUUID, courseUUID string) (bool, error) {
	res, err := m.Db.Exec(`
		INSERT INTO enrollments (buyer_uuid, course_uuid, granted_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (buyer_uuid, course_uuid) DO NOTHING
	`, buyerUUID, courseUUID)
	if err != nil {
		return false, fmt.Errorf("failed to insert enrollment: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return affected > 0, nil
}

func (m *Manager) ReceiptUsedByOther(providerPaymentID, orderID string) (bool, error) {
	var other string
	err := m.Db.QueryRow(`
		SELECT order_id FROM payments
		WHERE provider_payment_id = $1 AND order_id <> $2
		LIMIT 1
	`, providerPaymentID, orderID).Scan(&other)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check receipt usage: %w", err)
	}

	return true, nil
}

func (m *Manager) ExpirePendingOrdersBefore(cutoff time.Time) ([]models.Order, error) {
	rows, err := m.Db.Query(`
		UPDATE orders
		SET payment_status = 'failed',
		    rejection_reason = $2,
		    updated_at = NOW()
		WHERE payment_status = 'pending' AND created_at < $1
		RETURNING uuid, order_number, buyer_uuid
	`, cutoff, string(models.ReasonValidationExpired))
	if err != nil {
		return nil, fmt.Errorf("failed to expire pending orders: %w", err)
	}
	defer rows.Close()

	var expired []models.Order
	for rows.Next() {
		order := models.Order{
			PaymentStatus:   models.OrderFailed,
			RejectionReason: models.ReasonValidationExpired,
		}
		if err = rows.Scan(&order.UUID, &order.OrderNumber, &order.BuyerUUID); err != nil {
			return nil, fmt.Errorf("failed to scan expired order: %w", err)
		}
		expired = append(expired, order)
	}

	return expired, rows.Err()
}

func (m *Manager) Close() error {
	return m.Db.Close()
}
