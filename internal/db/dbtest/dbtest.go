// Package dbtest provides migrated in-memory databases for tests.
package dbtest

import (
	"testing"

	"github.com/bookstore/services/order/internal/db"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// New opens a fresh SQLite in-memory database with all migrations applied.
// The pool is pinned to one connection so every query sees the same memory database
// and transactions serialize the way row locks would under PostgreSQL.
func New(t testing.TB) *db.DB {
	t.Helper()

	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	database := &db.DB{DB: gormDB}
	require.NoError(t, db.RunMigrations(database))

	t.Cleanup(func() { _ = database.Close() })

	return database
}

// CreateBook inserts a book with the given stock and price
func CreateBook(t testing.TB, database *db.DB, isbn, title string, price int64, stock int) *db.Book {
	t.Helper()

	book := &db.Book{
		ISBN:   isbn,
		Title:  title,
		Author: "Test Author",
		Price:  price,
		Stock:  stock,
	}
	require.NoError(t, database.Create(book).Error)
	return book
}
