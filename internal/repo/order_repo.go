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

// OrderFilter narrows the admin order listing
type OrderFilter struct {
	Status db.OrderStatus
	UserID string
}

// OrderRepository persists orders. Items and totals are written once at insert.
type OrderRepository struct {
	db  *db.DB
	log *zap.Logger
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(database *db.DB, logger *zap.Logger) *OrderRepository {
	return &OrderRepository{
		db:  database,
		log: logger,
	}
}

// Create inserts the order and its items through tx
func (r *OrderRepository) Create(ctx context.Context, tx *gorm.DB, order *db.Order) error {
	if err := tx.WithContext(ctx).Create(order).Error; err != nil {
		r.log.Error("Failed to create order", zap.String("user_id", order.UserID), zap.Error(err))
		return storageError("create order", err)
	}
	return nil
}

// Find resolves an order by id. Unless admin is set the lookup is scoped to userID, so
// another user's order is reported as not found.
func (r *OrderRepository) Find(ctx context.Context, tx *gorm.DB, orderID, userID string, admin, lock bool) (*db.Order, error) {
	query := tx.WithContext(ctx)
	if lock && db.SupportsRowLocks(tx) {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	query = query.Preload("Items", func(q *gorm.DB) *gorm.DB { return q.Order("title ASC, book_id ASC") }).
		Where("id = ?", orderID)
	if !admin {
		query = query.Where("user_id = ?", userID)
	}

	var order db.Order
	if err := query.First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		r.log.Error("Failed to get order", zap.String("order_id", orderID), zap.Error(err))
		return nil, storageError("get order", err)
	}
	return &order, nil
}

// TransitionStatus moves an order from one status to another only if it is still in from.
// A concurrent writer that changed the status first makes this fail with ErrInvalidTransition.
func (r *OrderRepository) TransitionStatus(ctx context.Context, tx *gorm.DB, orderID string, from, to db.OrderStatus) error {
	result := tx.WithContext(ctx).Model(&db.Order{}).
		Where("id = ? AND status = ?", orderID, from).
		UpdateColumns(map[string]interface{}{
			"status":     to,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		r.log.Error("Failed to update order status", zap.String("order_id", orderID), zap.Error(result.Error))
		return storageError("update order status", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// UpdateFields overwrites status and/or tracking number without any transition check
func (r *OrderRepository) UpdateFields(ctx context.Context, orderID string, status db.OrderStatus, trackingNumber string) (*db.Order, error) {
	updates := map[string]interface{}{}
	if status != "" {
		updates["status"] = status
	}
	if trackingNumber != "" {
		updates["tracking_number"] = trackingNumber
	}

	if len(updates) > 0 {
		updates["updated_at"] = time.Now()
		result := r.db.WithContext(ctx).Model(&db.Order{}).Where("id = ?", orderID).UpdateColumns(updates)
		if result.Error != nil {
			r.log.Error("Failed to update order", zap.String("order_id", orderID), zap.Error(result.Error))
			return nil, storageError("update order", result.Error)
		}
		if result.RowsAffected == 0 {
			return nil, ErrOrderNotFound
		}
	}

	return r.Find(ctx, r.db.DB, orderID, "", true, false)
}

// List returns one page of orders, newest first, and the total match count
func (r *OrderRepository) List(ctx context.Context, filter OrderFilter, page, limit int) ([]*db.Order, int64, error) {
	query := r.db.WithContext(ctx).Model(&db.Order{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		r.log.Error("Failed to count orders", zap.Error(err))
		return nil, 0, storageError("count orders", err)
	}

	offset := (page - 1) * limit
	var orders []*db.Order
	err := query.Session(&gorm.Session{}).
		Preload("Items", func(q *gorm.DB) *gorm.DB { return q.Order("title ASC, book_id ASC") }).
		Order("created_at DESC").Order("id DESC").
		Offset(offset).Limit(limit).
		Find(&orders).Error
	if err != nil {
		r.log.Error("Failed to list orders", zap.Error(err))
		return nil, 0, storageError("list orders", err)
	}

	return orders, total, nil
}
