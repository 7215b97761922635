package repo

import (
	"context"
	"errors"

	"github.com/bookstore/services/order/internal/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// BookRepository is the catalog lookup used by carts and checkout
type BookRepository struct {
	db  *db.DB
	log *zap.Logger
}

// NewBookRepository creates a new book repository
func NewBookRepository(database *db.DB, logger *zap.Logger) *BookRepository {
	return &BookRepository{
		db:  database,
		log: logger,
	}
}

// GetBook retrieves a book by id
func (r *BookRepository) GetBook(ctx context.Context, id string) (*db.Book, error) {
	var book db.Book
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&book).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookNotFound
		}
		r.log.Error("Failed to get book", zap.String("book_id", id), zap.Error(err))
		return nil, storageError("get book", err)
	}

	return &book, nil
}

// CreateBook adds a book to the catalog. ISBN is the business key.
func (r *BookRepository) CreateBook(ctx context.Context, book *db.Book) error {
	if book.ISBN == "" || book.Title == "" {
		return invalidInput("isbn and title are required")
	}
	if book.Price < 0 || book.Stock < 0 {
		return invalidInput("price and stock must not be negative")
	}

	var existing db.Book
	err := r.db.WithContext(ctx).Where("isbn = ?", book.ISBN).First(&existing).Error
	if err == nil {
		return ErrBookAlreadyExists
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		r.log.Error("Failed to check book existence", zap.String("isbn", book.ISBN), zap.Error(err))
		return storageError("check book", err)
	}

	if err := r.db.WithContext(ctx).Create(book).Error; err != nil {
		r.log.Error("Failed to create book", zap.String("isbn", book.ISBN), zap.Error(err))
		return storageError("create book", err)
	}

	r.log.Info("Book created", zap.String("book_id", book.ID), zap.String("title", book.Title))
	return nil
}

// UpdateBook updates catalog fields of a book. Stock is never touched here; it belongs to the ledger.
func (r *BookRepository) UpdateBook(ctx context.Context, book *db.Book, updateMask []string) ([]string, error) {
	existing, err := r.GetBook(ctx, book.ID)
	if err != nil {
		return nil, err
	}

	checkFields := updateMask
	if len(checkFields) == 0 {
		checkFields = []string{"title", "author", "price", "coverImage"}
	}

	updates := make(map[string]interface{})
	var changed []string
	for _, field := range checkFields {
		switch field {
		case "title":
			if existing.Title != book.Title {
				updates["title"] = book.Title
				changed = append(changed, field)
			}
		case "author":
			if existing.Author != book.Author {
				updates["author"] = book.Author
				changed = append(changed, field)
			}
		case "price":
			if book.Price < 0 {
				return nil, invalidInput("price must not be negative")
			}
			if existing.Price != book.Price {
				updates["price"] = book.Price
				changed = append(changed, field)
			}
		case "coverImage":
			if existing.CoverImage != book.CoverImage {
				updates["cover_image"] = book.CoverImage
				changed = append(changed, field)
			}
		}
	}

	if len(changed) == 0 {
		r.log.Info("No fields changed", zap.String("book_id", book.ID))
		return changed, nil
	}

	if err := r.db.WithContext(ctx).Model(&db.Book{}).Where("id = ?", book.ID).Updates(updates).Error; err != nil {
		r.log.Error("Failed to update book", zap.String("book_id", book.ID), zap.Error(err))
		return nil, storageError("update book", err)
	}

	r.log.Info("Book updated", zap.String("book_id", book.ID), zap.Strings("fields_changed", changed))
	return changed, nil
}
