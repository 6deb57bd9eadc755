package inventorydb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"grocer/internal/inventory"
)

const itemColumns = `id, name, description, price, quantity, unit, categories, created_at, updated_at`

// PostgresItemStore persists grocery items and the reservation ledger in
// Postgres. Stock is only ever decremented by a conditional UPDATE, so a
// row can never go negative.
type PostgresItemStore struct {
	db *sql.DB
}

// NewPostgresItemStore constructs an item store backed by Postgres.
func NewPostgresItemStore(db *sql.DB) *PostgresItemStore {
	return &PostgresItemStore{db: db}
}

// NewPostgresItemStoreWithSchema initializes the schema then returns the store.
func NewPostgresItemStoreWithSchema(ctx context.Context, db *sql.DB) (*PostgresItemStore, error) {
	store := NewPostgresItemStore(db)
	if err := store.InitSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// InitSchema creates the inventory tables if they do not exist.
func (s *PostgresItemStore) InitSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS grocery_items (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			price DOUBLE PRECISION NOT NULL,
			quantity INTEGER NOT NULL CHECK (quantity >= 0),
			unit TEXT NOT NULL DEFAULT '',
			categories JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS inventory_reservations (
			order_id TEXT NOT NULL,
			item_id TEXT NOT NULL,
			quantity INTEGER NOT NULL CHECK (quantity > 0),
			reserved_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (order_id, item_id)
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresItemStore) Get(ctx context.Context, id string) (inventory.Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM grocery_items WHERE id = $1`, id)
	return scanItem(row)
}

func (s *PostgresItemStore) Create(ctx context.Context, item inventory.Item) (inventory.Item, error) {
	if item.Quantity < 0 {
		return inventory.Item{}, inventory.ErrNegativeQuantity
	}
	categories := item.Categories
	if categories == nil {
		categories = []string{}
	}
	encoded, err := json.Marshal(categories)
	if err != nil {
		return inventory.Item{}, err
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO grocery_items (id, name, description, price, quantity, unit, categories)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
		RETURNING `+itemColumns,
		item.ID, item.Name, item.Description, item.Price, item.Quantity, item.Unit, string(encoded),
	)
	created, err := scanItem(row)
	if errors.Is(err, inventory.ErrItemNotFound) {
		return inventory.Item{}, inventory.ErrItemExists
	}
	return created, err
}

// List returns every item ordered by id.
func (s *PostgresItemStore) List(ctx context.Context) ([]inventory.Item, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM grocery_items ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []inventory.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Update applies the non-nil fields of patch in one statement.
func (s *PostgresItemStore) Update(ctx context.Context, id string, patch inventory.ItemPatch) (inventory.Item, error) {
	if err := patch.Validate(); err != nil {
		return inventory.Item{}, err
	}
	var categories any
	if patch.Categories != nil {
		encoded, err := json.Marshal(patch.Categories)
		if err != nil {
			return inventory.Item{}, err
		}
		categories = string(encoded)
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE grocery_items
		SET name = COALESCE($2, name),
			description = COALESCE($3, description),
			price = COALESCE($4, price),
			quantity = COALESCE($5, quantity),
			unit = COALESCE($6, unit),
			categories = COALESCE($7::jsonb, categories),
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+itemColumns,
		id, nullable(patch.Name), nullable(patch.Description), nullable(patch.Price),
		nullable(patch.Quantity), nullable(patch.Unit), categories,
	)
	return scanItem(row)
}

// Delete removes an item unless a reservation still holds it.
func (s *PostgresItemStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM grocery_items
		WHERE id = $1
		AND NOT EXISTS (SELECT 1 FROM inventory_reservations WHERE item_id = $1)`,
		id,
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
	exists, err := itemExists(ctx, s.db, id)
	if err != nil {
		return err
	}
	if !exists {
		return inventory.ErrItemNotFound
	}
	return inventory.ErrItemReserved
}

func (s *PostgresItemStore) SetQuantity(ctx context.Context, id string, quantity int) (inventory.Item, error) {
	if quantity < 0 {
		return inventory.Item{}, inventory.ErrNegativeQuantity
	}
	row := s.db.QueryRowContext(ctx, `
		UPDATE grocery_items
		SET quantity = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+itemColumns,
		id, quantity,
	)
	return scanItem(row)
}

// Reserve writes one ledger row per line and decrements each item in the
// same transaction.
func (s *PostgresItemStore) Reserve(ctx context.Context, orderID string, lines []inventory.Line) ([]inventory.Item, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	lines = inventory.SortedLines(lines)
	updated := make([]inventory.Item, 0, len(lines))
	for _, line := range lines {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO inventory_reservations (order_id, item_id, quantity)
			VALUES ($1, $2, $3)
			ON CONFLICT (order_id, item_id) DO NOTHING`,
			orderID, line.ItemID, line.Quantity,
		)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, inventory.ErrAlreadyReserved
		}

		row := tx.QueryRowContext(ctx, `
			UPDATE grocery_items
			SET quantity = quantity - $2, updated_at = NOW()
			WHERE id = $1 AND quantity >= $2
			RETURNING `+itemColumns,
			line.ItemID, line.Quantity,
		)
		item, err := scanItem(row)
		if errors.Is(err, inventory.ErrItemNotFound) {
			return nil, s.shortfall(ctx, tx, line.ItemID)
		}
		if err != nil {
			return nil, err
		}
		updated = append(updated, item)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return updated, nil
}

// shortfall explains why a conditional decrement matched no row.
func (s *PostgresItemStore) shortfall(ctx context.Context, tx *sql.Tx, itemID string) error {
	exists, err := itemExists(ctx, tx, itemID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", inventory.ErrItemNotFound, itemID)
	}
	return fmt.Errorf("%w: %s", inventory.ErrInsufficientStock, itemID)
}

// Release deletes the order's ledger rows and returns their quantities to
// stock in one transaction.
func (s *PostgresItemStore) Release(ctx context.Context, orderID string) ([]inventory.Item, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		DELETE FROM inventory_reservations
		WHERE order_id = $1
		RETURNING item_id, quantity`,
		orderID,
	)
	if err != nil {
		return nil, err
	}
	var held []inventory.Line
	for rows.Next() {
		var line inventory.Line
		if err := rows.Scan(&line.ItemID, &line.Quantity); err != nil {
			_ = rows.Close()
			return nil, err
		}
		held = append(held, line)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(held) == 0 {
		return nil, inventory.ErrNoReservation
	}
	held = inventory.SortedLines(held)

	restored := make([]inventory.Item, 0, len(held))
	for _, line := range held {
		row := tx.QueryRowContext(ctx, `
			UPDATE grocery_items
			SET quantity = quantity + $2, updated_at = NOW()
			WHERE id = $1
			RETURNING `+itemColumns,
			line.ItemID, line.Quantity,
		)
		item, err := scanItem(row)
		if errors.Is(err, inventory.ErrItemNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		restored = append(restored, item)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return restored, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func itemExists(ctx context.Context, q queryRower, id string) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM grocery_items WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

func nullable[T any](v *T) any {
	if v == nil {
		return nil
	}
	return *v
}

func scanItem(row rowScanner) (inventory.Item, error) {
	var item inventory.Item
	var categories []byte
	err := row.Scan(
		&item.ID, &item.Name, &item.Description, &item.Price, &item.Quantity,
		&item.Unit, &categories, &item.CreatedAt, &item.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return inventory.Item{}, inventory.ErrItemNotFound
	}
	if err != nil {
		return inventory.Item{}, err
	}
	if len(categories) > 0 {
		if err := json.Unmarshal(categories, &item.Categories); err != nil {
			return inventory.Item{}, fmt.Errorf("decode categories for %s: %w", item.ID, err)
		}
	}
	return item, nil
}
