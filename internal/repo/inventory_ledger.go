package repo

import (
	"context"
	"errors"
	"time"

	"github.com/bookstore/services/order/internal/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InventoryLedger is the only writer of books.stock and books.is_available.
// Every mutation runs on the caller's transaction and rewrites both columns in one statement.
type InventoryLedger struct {
	log *zap.Logger
}

func NewInventoryLedger(logger *zap.Logger) *InventoryLedger {
	return &InventoryLedger{log: logger}
}

// CheckAvailable reports whether the book exists, is available and holds at least quantity units
func (l *InventoryLedger) CheckAvailable(ctx context.Context, tx *gorm.DB, bookID string, quantity int) (bool, error) {
	book, err := l.read(ctx, tx, bookID, false)
	if errors.Is(err, ErrBookNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return book.IsAvailable && book.Stock >= quantity, nil
}

// LockBook re-reads a book inside tx, holding its row lock until the transaction ends
func (l *InventoryLedger) LockBook(ctx context.Context, tx *gorm.DB, bookID string) (*db.Book, error) {
	return l.read(ctx, tx, bookID, true)
}

// Reserve takes quantity units out of stock. The decrement is conditional on enough stock
// being present, so two reservations racing on the same row cannot overdraw it.
func (l *InventoryLedger) Reserve(ctx context.Context, tx *gorm.DB, bookID string, quantity int) error {
	if quantity < 1 {
		return invalidInput("quantity must be at least 1")
	}

	result := tx.WithContext(ctx).Model(&db.Book{}).
		Where("id = ? AND is_available = ? AND stock >= ?", bookID, true, quantity).
		UpdateColumns(map[string]interface{}{
			"stock":        gorm.Expr("stock - ?", quantity),
			"is_available": gorm.Expr("stock - ? > 0", quantity),
			"updated_at":   time.Now(),
		})
	if result.Error != nil {
		l.log.Error("Failed to reserve stock", zap.String("book_id", bookID), zap.Error(result.Error))
		return storageError("reserve stock", result.Error)
	}

	if result.RowsAffected == 0 {
		stockErr := &StockError{BookID: bookID, Requested: quantity}
		if book, err := l.read(ctx, tx, bookID, false); err == nil {
			stockErr.Title = book.Title
			stockErr.Available = book.Stock
		}
		return stockErr
	}

	l.log.Debug("Stock reserved", zap.String("book_id", bookID), zap.Int("quantity", quantity))
	return nil
}

// Release puts quantity units back. It only ever reverses an earlier Reserve of the same quantity.
// A book that no longer exists is skipped.
func (l *InventoryLedger) Release(ctx context.Context, tx *gorm.DB, bookID string, quantity int) error {
	if quantity < 1 {
		return invalidInput("quantity must be at least 1")
	}

	result := tx.WithContext(ctx).Model(&db.Book{}).
		Where("id = ?", bookID).
		UpdateColumns(map[string]interface{}{
			"stock":        gorm.Expr("stock + ?", quantity),
			"is_available": gorm.Expr("stock + ? > 0", quantity),
			"updated_at":   time.Now(),
		})
	if result.Error != nil {
		l.log.Error("Failed to release stock", zap.String("book_id", bookID), zap.Error(result.Error))
		return storageError("release stock", result.Error)
	}

	if result.RowsAffected == 0 {
		l.log.Warn("Book missing while releasing stock, skipped",
			zap.String("book_id", bookID),
			zap.Int("quantity", quantity),
		)
		return nil
	}

	l.log.Debug("Stock released", zap.String("book_id", bookID), zap.Int("quantity", quantity))
	return nil
}

func (l *InventoryLedger) read(ctx context.Context, tx *gorm.DB, bookID string, lock bool) (*db.Book, error) {
	query := tx.WithContext(ctx)
	if lock && db.SupportsRowLocks(tx) {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var book db.Book
	if err := query.Where("id = ?", bookID).First(&book).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookNotFound
		}
		return nil, storageError("read book", err)
	}
	return &book, nil
}
