package repo

import (
	"context"
	"sync"
	"testing"

	"github.com/bookstore/services/order/internal/db"
	"github.com/bookstore/services/order/internal/db/dbtest"
	"github.com/bookstore/services/order/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupCarts(t *testing.T) (*db.DB, *CartRepository) {
	database := dbtest.New(t)
	log := logger.NewLogger("test", "info")
	books := NewBookRepository(database, log)
	return database, NewCartRepository(database, books, NewInventoryLedger(log), log)
}

func TestGetCreatesEmptyCart(t *testing.T) {
	_, carts := setupCarts(t)
	ctx := context.Background()

	cart, err := carts.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", cart.UserID)
	assert.Empty(t, cart.Items)

	again, err := carts.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, cart.ID, again.ID)
}

func TestGetConcurrentFirstAccess(t *testing.T) {
	database, carts := setupCarts(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := carts.Get(ctx, "user-1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	var count int64
	require.NoError(t, database.Model(&db.Cart{}).Where("user_id = ?", "user-1").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestAddItemSnapshotsBook(t *testing.T) {
	database, carts := setupCarts(t)
	ctx := context.Background()
	book := dbtest.CreateBook(t, database, "9780000000020", "Snapshot", 1250, 5)

	cart, err := carts.AddItem(ctx, "user-1", book.ID, 2)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)

	item := cart.Items[0]
	assert.Equal(t, book.ID, item.BookID)
	assert.Equal(t, "Snapshot", item.Title)
	assert.Equal(t, int64(1250), item.Price)
	assert.Equal(t, db.DefaultCoverImage, item.CoverImage)
	assert.Equal(t, 2, item.Quantity)
	assert.Equal(t, int64(2500), Total(cart))

	// Adding again increments the existing line
	cart, err = carts.AddItem(ctx, "user-1", book.ID, 1)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 3, cart.Items[0].Quantity)

	// Cart writes never touch stock
	var stored db.Book
	require.NoError(t, database.Where("id = ?", book.ID).First(&stored).Error)
	assert.Equal(t, 5, stored.Stock)
}

func TestAddItemErrors(t *testing.T) {
	database, carts := setupCarts(t)
	ctx := context.Background()
	book := dbtest.CreateBook(t, database, "9780000000021", "Few", 1000, 2)
	soldOut := dbtest.CreateBook(t, database, "9780000000022", "Sold Out", 1000, 0)

	_, err := carts.AddItem(ctx, "user-1", "missing", 1)
	assert.ErrorIs(t, err, ErrBookNotFound)

	_, err = carts.AddItem(ctx, "user-1", book.ID, 3)
	assert.ErrorIs(t, err, ErrBookUnavailable)

	_, err = carts.AddItem(ctx, "user-1", soldOut.ID, 1)
	assert.ErrorIs(t, err, ErrBookUnavailable)

	_, err = carts.AddItem(ctx, "user-1", book.ID, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestUpdateItem(t *testing.T) {
	database, carts := setupCarts(t)
	ctx := context.Background()
	book := dbtest.CreateBook(t, database, "9780000000023", "Updatable", 1000, 4)
	other := dbtest.CreateBook(t, database, "9780000000024", "Other", 1000, 4)

	_, err := carts.UpdateItem(ctx, "user-1", book.ID, 1)
	assert.ErrorIs(t, err, ErrCartNotFound)

	_, err = carts.AddItem(ctx, "user-1", book.ID, 1)
	require.NoError(t, err)

	cart, err := carts.UpdateItem(ctx, "user-1", book.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, cart.Items[0].Quantity)

	_, err = carts.UpdateItem(ctx, "user-1", book.ID, 5)
	assert.ErrorIs(t, err, ErrBookUnavailable)

	_, err = carts.UpdateItem(ctx, "user-1", other.ID, 1)
	assert.ErrorIs(t, err, ErrItemNotFound)

	_, err = carts.UpdateItem(ctx, "user-1", book.ID, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRemoveItemAndClear(t *testing.T) {
	database, carts := setupCarts(t)
	ctx := context.Background()
	first := dbtest.CreateBook(t, database, "9780000000025", "Alpha", 1000, 4)
	second := dbtest.CreateBook(t, database, "9780000000026", "Beta", 500, 4)

	_, err := carts.RemoveItem(ctx, "user-1", first.ID)
	assert.ErrorIs(t, err, ErrCartNotFound)
	assert.ErrorIs(t, carts.Clear(ctx, "user-1"), ErrCartNotFound)

	_, err = carts.AddItem(ctx, "user-1", first.ID, 1)
	require.NoError(t, err)
	cart, err := carts.AddItem(ctx, "user-1", second.ID, 2)
	require.NoError(t, err)
	require.Len(t, cart.Items, 2)
	assert.Equal(t, "Alpha", cart.Items[0].Title)
	assert.Equal(t, int64(2000), Total(cart))

	cart, err = carts.RemoveItem(ctx, "user-1", first.ID)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, second.ID, cart.Items[0].BookID)

	_, err = carts.RemoveItem(ctx, "user-1", first.ID)
	assert.ErrorIs(t, err, ErrItemNotFound)

	require.NoError(t, carts.Clear(ctx, "user-1"))
	cart, err = carts.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
	assert.Zero(t, Total(cart))
}
