package inventorydb

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"grocer/internal/inventory"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func newItemMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}

	cleanup := func() {
		if err := db.Close(); err != nil {
			t.Fatalf("close db: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet expectations: %v", err)
		}
	}

	return db, mock, cleanup
}

var stamp = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

func itemRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "description", "price", "quantity", "unit", "categories", "created_at", "updated_at"})
}

func TestPostgresItemStore_InitSchema(t *testing.T) {
	db, mock, cleanup := newItemMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS grocery_items").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS inventory_reservations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectClose()

	if _, err := NewPostgresItemStoreWithSchema(context.Background(), db); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
}

func TestPostgresItemStore_GetDecodesCategories(t *testing.T) {
	db, mock, cleanup := newItemMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectQuery("SELECT id, name, description, price, quantity, unit, categories, created_at, updated_at FROM grocery_items").
		WithArgs("milk").
		WillReturnRows(itemRows().AddRow("milk", "Milk", "whole", 1.99, 12, "l", `["dairy","fresh"]`, stamp, stamp))
	mock.ExpectClose()

	item, err := NewPostgresItemStore(db).Get(context.Background(), "milk")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if item.Quantity != 12 || item.Unit != "l" {
		t.Fatalf("unexpected item: %+v", item)
	}
	if len(item.Categories) != 2 || item.Categories[0] != "dairy" {
		t.Fatalf("unexpected categories: %v", item.Categories)
	}
}

func TestPostgresItemStore_GetMissing(t *testing.T) {
	db, mock, cleanup := newItemMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectQuery("FROM grocery_items").
		WithArgs("ghost").
		WillReturnRows(itemRows())
	mock.ExpectClose()

	_, err := NewPostgresItemStore(db).Get(context.Background(), "ghost")
	if !errors.Is(err, inventory.ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
}

func TestPostgresItemStore_Create(t *testing.T) {
	db, mock, cleanup := newItemMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectQuery("INSERT INTO grocery_items").
		WithArgs("bread", "Bread", "", 2.5, 10, "loaf", "[]").
		WillReturnRows(itemRows().AddRow("bread", "Bread", "", 2.5, 10, "loaf", "[]", stamp, stamp))
	mock.ExpectClose()

	item, err := NewPostgresItemStore(db).Create(context.Background(), inventory.Item{
		ID: "bread", Name: "Bread", Price: 2.5, Quantity: 10, Unit: "loaf",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if item.ID != "bread" || !item.CreatedAt.Equal(stamp) {
		t.Fatalf("unexpected item: %+v", item)
	}
}

func TestPostgresItemStore_SetQuantity(t *testing.T) {
	db, mock, cleanup := newItemMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectQuery("UPDATE grocery_items").
		WithArgs("milk", 40).
		WillReturnRows(itemRows().AddRow("milk", "Milk", "", 1.99, 40, "l", "[]", stamp, stamp))
	mock.ExpectClose()

	store := NewPostgresItemStore(db)
	item, err := store.SetQuantity(context.Background(), "milk", 40)
	if err != nil {
		t.Fatalf("SetQuantity: %v", err)
	}
	if item.Quantity != 40 {
		t.Fatalf("unexpected quantity: %d", item.Quantity)
	}

	if _, err := store.SetQuantity(context.Background(), "milk", -1); !errors.Is(err, inventory.ErrNegativeQuantity) {
		t.Fatalf("expected ErrNegativeQuantity, got %v", err)
	}
}

func TestPostgresItemStore_ReserveCommits(t *testing.T) {
	db, mock, cleanup := newItemMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO inventory_reservations").
		WithArgs("order-1", "milk", 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("UPDATE grocery_items").
		WithArgs("milk", 2).
		WillReturnRows(itemRows().AddRow("milk", "Milk", "", 1.99, 98, "l", "[]", stamp, stamp))
	mock.ExpectCommit()
	mock.ExpectClose()

	items, err := NewPostgresItemStore(db).Reserve(context.Background(), "order-1", []inventory.Line{{ItemID: "milk", Quantity: 2}})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if len(items) != 1 || items[0].Quantity != 98 {
		t.Fatalf("unexpected items: %+v", items)
	}
}

func TestPostgresItemStore_ReserveInsufficientRollsBack(t *testing.T) {
	db, mock, cleanup := newItemMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO inventory_reservations").
		WithArgs("order-1", "bread", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("UPDATE grocery_items").
		WithArgs("bread", 1).
		WillReturnRows(itemRows().AddRow("bread", "Bread", "", 2.5, 9, "loaf", "[]", stamp, stamp))
	mock.ExpectExec("INSERT INTO inventory_reservations").
		WithArgs("order-1", "eggs", 30).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("UPDATE grocery_items").
		WithArgs("eggs", 30).
		WillReturnRows(itemRows())
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("eggs").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()
	mock.ExpectClose()

	_, err := NewPostgresItemStore(db).Reserve(context.Background(), "order-1", []inventory.Line{
		{ItemID: "bread", Quantity: 1},
		{ItemID: "eggs", Quantity: 30},
	})
	if !errors.Is(err, inventory.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
}

func TestPostgresItemStore_ReserveMissingItem(t *testing.T) {
	db, mock, cleanup := newItemMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO inventory_reservations").
		WithArgs("order-1", "ghost", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("UPDATE grocery_items").
		WithArgs("ghost", 1).
		WillReturnRows(itemRows())
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()
	mock.ExpectClose()

	_, err := NewPostgresItemStore(db).Reserve(context.Background(), "order-1", []inventory.Line{{ItemID: "ghost", Quantity: 1}})
	if !errors.Is(err, inventory.ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
}

func TestPostgresItemStore_ReserveLocksInItemOrder(t *testing.T) {
	db, mock, cleanup := newItemMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectBegin()
	for _, id := range []string{"apple", "milk", "tea"} {
		mock.ExpectExec("INSERT INTO inventory_reservations").
			WithArgs("order-1", id, 1).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("UPDATE grocery_items").
			WithArgs(id, 1).
			WillReturnRows(itemRows().AddRow(id, id, "", 1.0, 5, "", "[]", stamp, stamp))
	}
	mock.ExpectCommit()
	mock.ExpectClose()

	items, err := NewPostgresItemStore(db).Reserve(context.Background(), "order-1", []inventory.Line{
		{ItemID: "tea", Quantity: 1},
		{ItemID: "apple", Quantity: 1},
		{ItemID: "milk", Quantity: 1},
	})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if len(items) != 3 || items[0].ID != "apple" || items[2].ID != "tea" {
		t.Fatalf("unexpected items: %+v", items)
	}
}

func TestPostgresItemStore_ReserveAlreadyHeld(t *testing.T) {
	db, mock, cleanup := newItemMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO inventory_reservations").
		WithArgs("order-1", "milk", 2).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()
	mock.ExpectClose()

	_, err := NewPostgresItemStore(db).Reserve(context.Background(), "order-1", []inventory.Line{{ItemID: "milk", Quantity: 2}})
	if !errors.Is(err, inventory.ErrAlreadyReserved) {
		t.Fatalf("expected ErrAlreadyReserved, got %v", err)
	}
}

func TestPostgresItemStore_Release(t *testing.T) {
	db, mock, cleanup := newItemMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectBegin()
	mock.ExpectQuery("DELETE FROM inventory_reservations").
		WithArgs("order-1").
		WillReturnRows(sqlmock.NewRows([]string{"item_id", "quantity"}).AddRow("milk", 2))
	mock.ExpectQuery("UPDATE grocery_items").
		WithArgs("milk", 2).
		WillReturnRows(itemRows().AddRow("milk", "Milk", "", 1.99, 100, "l", "[]", stamp, stamp))
	mock.ExpectCommit()
	mock.ExpectClose()

	items, err := NewPostgresItemStore(db).Release(context.Background(), "order-1")
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if len(items) != 1 || items[0].Quantity != 100 {
		t.Fatalf("unexpected items: %+v", items)
	}
}

func TestPostgresItemStore_ReleaseNothingHeld(t *testing.T) {
	db, mock, cleanup := newItemMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectBegin()
	mock.ExpectQuery("DELETE FROM inventory_reservations").
		WithArgs("order-1").
		WillReturnRows(sqlmock.NewRows([]string{"item_id", "quantity"}))
	mock.ExpectRollback()
	mock.ExpectClose()

	_, err := NewPostgresItemStore(db).Release(context.Background(), "order-1")
	if !errors.Is(err, inventory.ErrNoReservation) {
		t.Fatalf("expected ErrNoReservation, got %v", err)
	}
}

func TestPostgresItemStore_CreateExisting(t *testing.T) {
	db, mock, cleanup := newItemMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectQuery("INSERT INTO grocery_items .* ON CONFLICT \\(id\\) DO NOTHING").
		WithArgs("bread", "Bread", "", 2.5, 10, "loaf", "[]").
		WillReturnRows(itemRows())
	mock.ExpectClose()

	_, err := NewPostgresItemStore(db).Create(context.Background(), inventory.Item{
		ID: "bread", Name: "Bread", Price: 2.5, Quantity: 10, Unit: "loaf",
	})
	if !errors.Is(err, inventory.ErrItemExists) {
		t.Fatalf("expected ErrItemExists, got %v", err)
	}
}

func TestPostgresItemStore_List(t *testing.T) {
	db, mock, cleanup := newItemMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectQuery("SELECT .* FROM grocery_items ORDER BY id").
		WillReturnRows(itemRows().
			AddRow("bread", "Bread", "", 2.5, 10, "loaf", "[]", stamp, stamp).
			AddRow("milk", "Milk", "", 1.99, 4, "l", `["dairy"]`, stamp, stamp))
	mock.ExpectClose()

	items, err := NewPostgresItemStore(db).List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 || items[1].ID != "milk" || len(items[1].Categories) != 1 {
		t.Fatalf("unexpected items: %+v", items)
	}
}

func TestPostgresItemStore_UpdateKeepsUnsetFields(t *testing.T) {
	db, mock, cleanup := newItemMockDB(t)
	t.Cleanup(cleanup)

	price := 2.75
	mock.ExpectQuery("UPDATE grocery_items").
		WithArgs("bread", nil, nil, 2.75, nil, nil, `["bakery"]`).
		WillReturnRows(itemRows().AddRow("bread", "Bread", "", 2.75, 10, "loaf", `["bakery"]`, stamp, stamp))
	mock.ExpectClose()

	item, err := NewPostgresItemStore(db).Update(context.Background(), "bread", inventory.ItemPatch{
		Price:      &price,
		Categories: []string{"bakery"},
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if item.Price != 2.75 || item.Name != "Bread" {
		t.Fatalf("unexpected item: %+v", item)
	}

	blank := ""
	if _, err := NewPostgresItemStore(db).Update(context.Background(), "bread", inventory.ItemPatch{Name: &blank}); !errors.Is(err, inventory.ErrInvalidItem) {
		t.Fatalf("expected ErrInvalidItem, got %v", err)
	}
}

func TestPostgresItemStore_Delete(t *testing.T) {
	db, mock, cleanup := newItemMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("DELETE FROM grocery_items").
		WithArgs("bread").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM grocery_items").
		WithArgs("milk").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("milk").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec("DELETE FROM grocery_items").
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectClose()

	store := NewPostgresItemStore(db)
	if err := store.Delete(context.Background(), "bread"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(context.Background(), "milk"); !errors.Is(err, inventory.ErrItemReserved) {
		t.Fatalf("expected ErrItemReserved, got %v", err)
	}
	if err := store.Delete(context.Background(), "ghost"); !errors.Is(err, inventory.ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
}
