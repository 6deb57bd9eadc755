package ordersdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"grocer/internal/orders"
)

// PostgresPaymentClient records charges and refunds in Postgres. Every
// charge is approved; the table keeps an audit trail and makes repeated
// charges for the same order harmless.
type PostgresPaymentClient struct {
	db *sql.DB
}

// NewPostgresPaymentClient constructs a PaymentClient backed by Postgres.
func NewPostgresPaymentClient(db *sql.DB) *PostgresPaymentClient {
	return &PostgresPaymentClient{db: db}
}

// NewPostgresPaymentClientWithSchema initializes the schema then returns the client.
func NewPostgresPaymentClientWithSchema(ctx context.Context, db *sql.DB) (*PostgresPaymentClient, error) {
	client := NewPostgresPaymentClient(db)
	if err := client.InitSchema(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

// InitSchema creates the payments table if it does not exist.
func (p *PostgresPaymentClient) InitSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS payments (
			order_id TEXT PRIMARY KEY,
			payment_id TEXT NOT NULL,
			amount DOUBLE PRECISION NOT NULL,
			charged_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			refunded_at TIMESTAMPTZ,
			refund_amount DOUBLE PRECISION
		)
	`)
	return err
}

// ErrNotCharged signals an order has no recorded charge.
var ErrNotCharged = errors.New("order not charged")

var errOrderIDRequired = errors.New("order id required")

// Charge approves the payment and returns its id. Charging an order twice
// returns the first payment id.
func (p *PostgresPaymentClient) Charge(ctx context.Context, orderID string, amount float64) (string, error) {
	if orderID == "" {
		return "", errOrderIDRequired
	}

	paymentID := orders.PaymentIDFor(orderID)
	if _, err := p.db.ExecContext(ctx,
		`INSERT INTO payments (order_id, payment_id, amount) VALUES ($1, $2, $3) ON CONFLICT (order_id) DO NOTHING`,
		orderID, paymentID, amount,
	); err != nil {
		return "", fmt.Errorf("record charge: %w", err)
	}
	return paymentID, nil
}

// Refund marks the charge refunded. Refunding twice is a no-op.
func (p *PostgresPaymentClient) Refund(ctx context.Context, orderID, paymentID string, amount float64) error {
	if orderID == "" {
		return errOrderIDRequired
	}

	res, err := p.db.ExecContext(ctx,
		`UPDATE payments SET refund_amount = $2, refunded_at = NOW() WHERE order_id = $1 AND refunded_at IS NULL`,
		orderID, amount,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	var refunded bool
	row := p.db.QueryRowContext(ctx, `SELECT refunded_at IS NOT NULL FROM payments WHERE order_id = $1`, orderID)
	switch scanErr := row.Scan(&refunded); {
	case scanErr == nil:
		return nil
	case errors.Is(scanErr, sql.ErrNoRows):
		return ErrNotCharged
	default:
		return scanErr
	}
}
