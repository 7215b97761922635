package repo

import (
	"context"
	"errors"

	"github.com/bookstore/services/order/internal/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CartRepository owns the per-user baskets
type CartRepository struct {
	db     *db.DB
	books  *BookRepository
	ledger *InventoryLedger
	log    *zap.Logger
}

// NewCartRepository creates a new cart repository
func NewCartRepository(database *db.DB, books *BookRepository, ledger *InventoryLedger, logger *zap.Logger) *CartRepository {
	return &CartRepository{
		db:     database,
		books:  books,
		ledger: ledger,
		log:    logger,
	}
}

// Get returns the user's cart, creating an empty one on first access
func (r *CartRepository) Get(ctx context.Context, userID string) (*db.Cart, error) {
	cart, err := r.Find(ctx, r.db.DB, userID, false)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, ErrCartNotFound) {
		return nil, err
	}

	// Two first requests may race here; the unique index on user_id keeps one cart
	newCart := &db.Cart{UserID: userID}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(newCart).Error; err != nil {
		r.log.Error("Failed to create cart", zap.String("user_id", userID), zap.Error(err))
		return nil, storageError("create cart", err)
	}

	return r.Find(ctx, r.db.DB, userID, false)
}

// Find loads the user's cart with its items through tx. With lock set, the cart row stays
// locked until tx ends so concurrent checkouts of the same cart serialize.
func (r *CartRepository) Find(ctx context.Context, tx *gorm.DB, userID string, lock bool) (*db.Cart, error) {
	query := tx.WithContext(ctx)
	if lock && db.SupportsRowLocks(tx) {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var cart db.Cart
	err := query.
		Preload("Items", func(q *gorm.DB) *gorm.DB { return q.Order("title ASC, book_id ASC") }).
		Where("user_id = ?", userID).
		First(&cart).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCartNotFound
		}
		r.log.Error("Failed to load cart", zap.String("user_id", userID), zap.Error(err))
		return nil, storageError("load cart", err)
	}
	return &cart, nil
}

// AddItem puts quantity units of a book in the cart. An existing line only has its quantity
// increased; stock is enforced again at checkout, not here.
func (r *CartRepository) AddItem(ctx context.Context, userID, bookID string, quantity int) (*db.Cart, error) {
	if quantity < 1 {
		return nil, invalidInput("quantity must be at least 1")
	}

	book, err := r.books.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}

	available, err := r.ledger.CheckAvailable(ctx, r.db.DB, bookID, quantity)
	if err != nil {
		return nil, err
	}
	if !available {
		return nil, ErrBookUnavailable
	}

	cart, err := r.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	item := &db.CartItem{
		CartID:     cart.ID,
		BookID:     book.ID,
		Title:      book.Title,
		Quantity:   quantity,
		Price:      book.Price,
		CoverImage: book.CoverImage,
	}
	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "cart_id"}, {Name: "book_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"quantity": gorm.Expr("cart_items.quantity + excluded.quantity"),
		}),
	}).Create(item).Error
	if err != nil {
		r.log.Error("Failed to add cart item",
			zap.String("user_id", userID),
			zap.String("book_id", bookID),
			zap.Error(err),
		)
		return nil, storageError("add cart item", err)
	}

	r.log.Info("Item added to cart", zap.String("user_id", userID), zap.String("book_id", bookID), zap.Int("quantity", quantity))
	return r.Find(ctx, r.db.DB, userID, false)
}

// UpdateItem sets the quantity of an existing line after checking it against current stock
func (r *CartRepository) UpdateItem(ctx context.Context, userID, bookID string, quantity int) (*db.Cart, error) {
	if quantity < 1 {
		return nil, invalidInput("quantity must be at least 1")
	}

	cart, err := r.Find(ctx, r.db.DB, userID, false)
	if err != nil {
		return nil, err
	}

	available, err := r.ledger.CheckAvailable(ctx, r.db.DB, bookID, quantity)
	if err != nil {
		return nil, err
	}
	if !available {
		return nil, ErrBookUnavailable
	}

	result := r.db.WithContext(ctx).Model(&db.CartItem{}).
		Where("cart_id = ? AND book_id = ?", cart.ID, bookID).
		Update("quantity", quantity)
	if result.Error != nil {
		r.log.Error("Failed to update cart item", zap.String("user_id", userID), zap.Error(result.Error))
		return nil, storageError("update cart item", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrItemNotFound
	}

	return r.Find(ctx, r.db.DB, userID, false)
}

// RemoveItem deletes the line for bookID
func (r *CartRepository) RemoveItem(ctx context.Context, userID, bookID string) (*db.Cart, error) {
	cart, err := r.Find(ctx, r.db.DB, userID, false)
	if err != nil {
		return nil, err
	}

	result := r.db.WithContext(ctx).Where("cart_id = ? AND book_id = ?", cart.ID, bookID).Delete(&db.CartItem{})
	if result.Error != nil {
		r.log.Error("Failed to remove cart item", zap.String("user_id", userID), zap.Error(result.Error))
		return nil, storageError("remove cart item", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrItemNotFound
	}

	r.log.Info("Item removed from cart", zap.String("user_id", userID), zap.String("book_id", bookID))
	return r.Find(ctx, r.db.DB, userID, false)
}

// Clear empties the user's cart
func (r *CartRepository) Clear(ctx context.Context, userID string) error {
	cart, err := r.Find(ctx, r.db.DB, userID, false)
	if err != nil {
		return err
	}
	return r.ClearItems(ctx, r.db.DB, cart.ID)
}

// ClearItems deletes every line of a cart through tx; the cart itself is kept
func (r *CartRepository) ClearItems(ctx context.Context, tx *gorm.DB, cartID string) error {
	if err := tx.WithContext(ctx).Where("cart_id = ?", cartID).Delete(&db.CartItem{}).Error; err != nil {
		r.log.Error("Failed to clear cart", zap.String("cart_id", cartID), zap.Error(err))
		return storageError("clear cart", err)
	}
	return nil
}

// Total sums price*quantity over the cart's lines
func Total(cart *db.Cart) int64 {
	var total int64
	for _, item := range cart.Items {
		total += item.Price * int64(item.Quantity)
	}
	return total
}
