package ordersdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"grocer/internal/orders"
)

// PostgresOrderStore persists orders and their lines in Postgres.
type PostgresOrderStore struct {
	db *sql.DB
}

// NewPostgresOrderStore constructs an order store backed by Postgres.
func NewPostgresOrderStore(db *sql.DB) *PostgresOrderStore {
	return &PostgresOrderStore{db: db}
}

// NewPostgresOrderStoreWithSchema initializes the schema then returns the store.
func NewPostgresOrderStoreWithSchema(ctx context.Context, db *sql.DB) (*PostgresOrderStore, error) {
	store := NewPostgresOrderStore(db)
	if err := store.InitSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// InitSchema creates order tables if they do not exist.
func (s *PostgresOrderStore) InitSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			total_amount DOUBLE PRECISION NOT NULL,
			status TEXT NOT NULL,
			payment_id TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS order_items (
			id TEXT PRIMARY KEY,
			order_id TEXT NOT NULL,
			grocery_item_id TEXT NOT NULL,
			quantity INTEGER NOT NULL CHECK (quantity > 0),
			price DOUBLE PRECISION NOT NULL,
			FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE CASCADE
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	return nil
}

// Create inserts the order and its lines in one transaction.
func (s *PostgresOrderStore) Create(ctx context.Context, order orders.Order) (orders.Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return orders.Order{}, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		INSERT INTO orders (id, user_id, total_amount, status, payment_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		order.ID, order.UserID, order.TotalAmount, string(order.Status), order.PaymentID,
	)
	if err := row.Scan(&order.CreatedAt, &order.UpdatedAt); err != nil {
		return orders.Order{}, fmt.Errorf("insert order: %w", err)
	}

	for _, item := range order.Items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, grocery_item_id, quantity, price)
			VALUES ($1, $2, $3, $4, $5)`,
			item.ID, order.ID, item.GroceryItemID, item.Quantity, item.Price,
		); err != nil {
			return orders.Order{}, fmt.Errorf("insert order item %s: %w", item.GroceryItemID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return orders.Order{}, err
	}
	return order, nil
}

const orderColumns = `id, user_id, total_amount, status, payment_id, created_at, updated_at`

// Get loads an order and its lines.
func (s *PostgresOrderStore) Get(ctx context.Context, id string) (orders.Order, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return orders.Order{}, orders.ErrNotFound
	}
	if err != nil {
		return orders.Order{}, err
	}
	if order.Items, err = s.items(ctx, id); err != nil {
		return orders.Order{}, err
	}
	return order, nil
}

// ListByUser loads a user's orders, newest first, with their lines.
func (s *PostgresOrderStore) ListByUser(ctx context.Context, userID string) ([]orders.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	var out []orders.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		out = append(out, order)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		if out[i].Items, err = s.items(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *PostgresOrderStore) items(ctx context.Context, orderID string) ([]orders.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, grocery_item_id, quantity, price
		FROM order_items
		WHERE order_id = $1
		ORDER BY id`,
		orderID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []orders.Item
	for rows.Next() {
		item := orders.Item{OrderID: orderID}
		if err := rows.Scan(&item.ID, &item.GroceryItemID, &item.Quantity, &item.Price); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (orders.Order, error) {
	var order orders.Order
	var status string
	if err := row.Scan(&order.ID, &order.UserID, &order.TotalAmount, &status, &order.PaymentID, &order.CreatedAt, &order.UpdatedAt); err != nil {
		return orders.Order{}, err
	}
	order.Status = orders.Status(status)
	return order, nil
}

// UpdateStatus sets the order's status. A blank paymentID keeps the
// recorded one.
func (s *PostgresOrderStore) UpdateStatus(ctx context.Context, id string, status orders.Status, paymentID string) (orders.Order, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, payment_id = COALESCE(NULLIF($3, ''), payment_id), updated_at = NOW()
		WHERE id = $1`,
		id, string(status), paymentID,
	)
	if err != nil {
		return orders.Order{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return orders.Order{}, err
	}
	if affected == 0 {
		return orders.Order{}, orders.ErrNotFound
	}
	return s.Get(ctx, id)
}
