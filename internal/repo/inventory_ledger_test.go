package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/bookstore/services/order/internal/db"
	"github.com/bookstore/services/order/internal/db/dbtest"
	"github.com/bookstore/services/order/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupLedger(t *testing.T) (*db.DB, *InventoryLedger) {
	database := dbtest.New(t)
	return database, NewInventoryLedger(logger.NewLogger("test", "info"))
}

func loadBook(t *testing.T, database *db.DB, id string) *db.Book {
	var book db.Book
	require.NoError(t, database.Where("id = ?", id).First(&book).Error)
	return &book
}

func TestCheckAvailable(t *testing.T) {
	database, ledger := setupLedger(t)
	ctx := context.Background()
	book := dbtest.CreateBook(t, database, "9780000000010", "Available", 1000, 3)
	empty := dbtest.CreateBook(t, database, "9780000000011", "Sold Out", 1000, 0)

	ok, err := ledger.CheckAvailable(ctx, database.DB, book.ID, 3)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ledger.CheckAvailable(ctx, database.DB, book.ID, 4)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = ledger.CheckAvailable(ctx, database.DB, empty.ID, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = ledger.CheckAvailable(ctx, database.DB, "missing", 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReserveToZeroFlipsAvailability(t *testing.T) {
	database, ledger := setupLedger(t)
	ctx := context.Background()
	book := dbtest.CreateBook(t, database, "9780000000012", "Last Copies", 1000, 2)

	err := database.InTx(ctx, func(tx *gorm.DB) error {
		return ledger.Reserve(ctx, tx, book.ID, 1)
	})
	require.NoError(t, err)
	stored := loadBook(t, database, book.ID)
	assert.Equal(t, 1, stored.Stock)
	assert.True(t, stored.IsAvailable)

	err = database.InTx(ctx, func(tx *gorm.DB) error {
		return ledger.Reserve(ctx, tx, book.ID, 1)
	})
	require.NoError(t, err)
	stored = loadBook(t, database, book.ID)
	assert.Equal(t, 0, stored.Stock)
	assert.False(t, stored.IsAvailable)

	err = database.InTx(ctx, func(tx *gorm.DB) error {
		return ledger.Release(ctx, tx, book.ID, 2)
	})
	require.NoError(t, err)
	stored = loadBook(t, database, book.ID)
	assert.Equal(t, 2, stored.Stock)
	assert.True(t, stored.IsAvailable)
}

func TestReserveInsufficientStock(t *testing.T) {
	database, ledger := setupLedger(t)
	ctx := context.Background()
	book := dbtest.CreateBook(t, database, "9780000000013", "Scarce", 1000, 2)

	err := database.InTx(ctx, func(tx *gorm.DB) error {
		return ledger.Reserve(ctx, tx, book.ID, 3)
	})
	require.ErrorIs(t, err, ErrInsufficientStock)

	var stockErr *StockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, "Scarce", stockErr.Title)
	assert.Equal(t, 3, stockErr.Requested)
	assert.Equal(t, 2, stockErr.Available)
	assert.Equal(t, `Book "Scarce" is not available in requested quantity`, stockErr.Error())

	assert.Equal(t, 2, loadBook(t, database, book.ID).Stock)

	err = database.InTx(ctx, func(tx *gorm.DB) error {
		return ledger.Reserve(ctx, tx, "missing", 1)
	})
	assert.ErrorIs(t, err, ErrInsufficientStock)
}

func TestReserveRollsBackWithTransaction(t *testing.T) {
	database, ledger := setupLedger(t)
	ctx := context.Background()
	first := dbtest.CreateBook(t, database, "9780000000014", "First", 1000, 5)
	second := dbtest.CreateBook(t, database, "9780000000015", "Second", 1000, 1)

	err := database.InTx(ctx, func(tx *gorm.DB) error {
		if err := ledger.Reserve(ctx, tx, first.ID, 2); err != nil {
			return err
		}
		return ledger.Reserve(ctx, tx, second.ID, 2)
	})
	require.ErrorIs(t, err, ErrInsufficientStock)

	assert.Equal(t, 5, loadBook(t, database, first.ID).Stock)
	assert.Equal(t, 1, loadBook(t, database, second.ID).Stock)
}

func TestLedgerRejectsNonPositiveQuantity(t *testing.T) {
	database, ledger := setupLedger(t)
	ctx := context.Background()
	book := dbtest.CreateBook(t, database, "9780000000016", "Zero", 1000, 5)

	assert.ErrorIs(t, ledger.Reserve(ctx, database.DB, book.ID, 0), ErrInvalidInput)
	assert.ErrorIs(t, ledger.Release(ctx, database.DB, book.ID, -1), ErrInvalidInput)
	assert.Equal(t, 5, loadBook(t, database, book.ID).Stock)
}

func TestReleaseMissingBookIsSkipped(t *testing.T) {
	database, ledger := setupLedger(t)

	err := ledger.Release(context.Background(), database.DB, "missing", 2)
	assert.NoError(t, err)
}

func TestLockBook(t *testing.T) {
	database, ledger := setupLedger(t)
	ctx := context.Background()
	book := dbtest.CreateBook(t, database, "9780000000017", "Locked", 1000, 5)

	err := database.InTx(ctx, func(tx *gorm.DB) error {
		locked, err := ledger.LockBook(ctx, tx, book.ID)
		if err != nil {
			return err
		}
		assert.Equal(t, 5, locked.Stock)

		_, err = ledger.LockBook(ctx, tx, "missing")
		assert.ErrorIs(t, err, ErrBookNotFound)
		return nil
	})
	require.NoError(t, err)
}
