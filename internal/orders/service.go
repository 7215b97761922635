package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bookstore/services/order/internal/db"
	"github.com/bookstore/services/order/internal/events"
	"github.com/bookstore/services/order/internal/metrics"
	"github.com/bookstore/services/order/internal/repo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
	publishTimeout  = 10 * time.Second
)

// Role of the caller as resolved by the gateway
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Requester identifies who is acting on an order
type Requester struct {
	UserID string
	Role   Role
}

func (r Requester) IsAdmin() bool {
	return r.Role == RoleAdmin
}

// EventPublisher receives order events after their transaction has committed
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, order *db.Order) error
	PublishOrderCancelled(ctx context.Context, order *db.Order) error
}

// CheckoutRequest carries the client supplied part of a new order
type CheckoutRequest struct {
	ShippingAddress db.ShippingAddress
	PaymentInfo     db.PaymentInfo
}

// Page is one slice of an order listing
type Page struct {
	Orders     []*db.Order
	Total      int64
	Page       int
	Limit      int
	TotalPages int
}

// Service converts carts into orders and reverses them on cancellation
type Service struct {
	db        *db.DB
	carts     *repo.CartRepository
	orders    *repo.OrderRepository
	ledger    *repo.InventoryLedger
	publisher EventPublisher
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	log       *zap.Logger
}

// NewService creates the order engine. publisher may be nil, in which case no events are sent.
func NewService(database *db.DB, carts *repo.CartRepository, orders *repo.OrderRepository, ledger *repo.InventoryLedger, publisher EventPublisher, m *metrics.Metrics, log *zap.Logger) *Service {
	return &Service{
		db:        database,
		carts:     carts,
		orders:    orders,
		ledger:    ledger,
		publisher: publisher,
		metrics:   m,
		tracer:    otel.Tracer("github.com/bookstore/services/order/internal/orders"),
		log:       log,
	}
}

// CreateOrder checks out the user's cart. Stock for every line is verified and reserved, the
// order inserted and the cart emptied in one transaction; on any failure nothing is kept.
func (s *Service) CreateOrder(ctx context.Context, userID string, req CheckoutRequest) (*db.Order, error) {
	ctx, span := s.tracer.Start(ctx, "orders.CreateOrder", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	if err := validateCheckout(req); err != nil {
		s.checkoutFailed(span, "invalid_input", err)
		return nil, err
	}

	var order *db.Order
	err := s.db.InTx(ctx, func(tx *gorm.DB) error {
		cart, err := s.carts.Find(ctx, tx, userID, true)
		if errors.Is(err, repo.ErrCartNotFound) {
			return repo.ErrEmptyCart
		}
		if err != nil {
			return err
		}
		if len(cart.Items) == 0 {
			return repo.ErrEmptyCart
		}

		// Verify every line before touching any stock
		for _, item := range cart.Items {
			book, err := s.ledger.LockBook(ctx, tx, item.BookID)
			if errors.Is(err, repo.ErrBookNotFound) {
				return &repo.StockError{BookID: item.BookID, Title: item.Title, Requested: item.Quantity}
			}
			if err != nil {
				return err
			}
			if !book.IsAvailable || book.Stock < item.Quantity {
				return &repo.StockError{
					BookID:    item.BookID,
					Title:     item.Title,
					Requested: item.Quantity,
					Available: book.Stock,
				}
			}
		}

		for _, item := range cart.Items {
			if err := s.ledger.Reserve(ctx, tx, item.BookID, item.Quantity); err != nil {
				return err
			}
		}

		order = buildOrder(userID, cart, req)
		if err := s.orders.Create(ctx, tx, order); err != nil {
			return err
		}

		return s.carts.ClearItems(ctx, tx, cart.ID)
	})
	if err != nil {
		s.checkoutFailed(span, failureReason(err), err)
		return nil, err
	}

	units := 0
	for _, item := range order.Items {
		units += item.Quantity
	}
	s.metrics.OrdersCreated.Inc()
	s.metrics.UnitsReserved.Add(float64(units))
	span.SetAttributes(attribute.String("order.id", order.ID), attribute.Int64("order.total", order.TotalAmount))

	s.log.Info("Order created",
		zap.String("order_id", order.ID),
		zap.String("user_id", userID),
		zap.Int("items", len(order.Items)),
		zap.Int64("total_amount", order.TotalAmount),
	)

	s.publishAsync(ctx, events.EventTypeOrderCreated, order)
	return order, nil
}

// CancelOrder flips a processing order to cancelled and returns its stock, atomically.
// Users can only reach their own orders; admins can reach any.
func (s *Service) CancelOrder(ctx context.Context, requester Requester, orderID string) (*db.Order, error) {
	ctx, span := s.tracer.Start(ctx, "orders.CancelOrder", trace.WithAttributes(
		attribute.String("user.id", requester.UserID),
		attribute.String("order.id", orderID),
	))
	defer span.End()

	var order *db.Order
	err := s.db.InTx(ctx, func(tx *gorm.DB) error {
		found, err := s.orders.Find(ctx, tx, orderID, requester.UserID, requester.IsAdmin(), true)
		if err != nil {
			return err
		}

		if err := EnsureCancellable(found.Status); err != nil {
			return err
		}

		// Conditional on the status still being processing, so a racing cancel loses here
		if err := s.orders.TransitionStatus(ctx, tx, found.ID, db.OrderStatusProcessing, db.OrderStatusCancelled); err != nil {
			if errors.Is(err, repo.ErrInvalidTransition) {
				return fmt.Errorf("%w: order is no longer processing", repo.ErrInvalidTransition)
			}
			return err
		}

		for _, item := range found.Items {
			if err := s.ledger.Release(ctx, tx, item.BookID, item.Quantity); err != nil {
				return err
			}
		}

		found.Status = db.OrderStatusCancelled
		order = found
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	units := 0
	for _, item := range order.Items {
		units += item.Quantity
	}
	s.metrics.OrdersCancelled.Inc()
	s.metrics.UnitsReleased.Add(float64(units))

	s.log.Info("Order cancelled",
		zap.String("order_id", order.ID),
		zap.String("requester_id", requester.UserID),
		zap.String("requester_role", string(requester.Role)),
	)

	s.publishAsync(ctx, events.EventTypeOrderCancelled, order)
	return order, nil
}

// GetOrder returns an order visible to the requester
func (s *Service) GetOrder(ctx context.Context, requester Requester, orderID string) (*db.Order, error) {
	return s.orders.Find(ctx, s.db.DB, orderID, requester.UserID, requester.IsAdmin(), false)
}

// ListUserOrders pages through the user's own orders, newest first
func (s *Service) ListUserOrders(ctx context.Context, userID string, page, limit int) (*Page, error) {
	return s.list(ctx, repo.OrderFilter{UserID: userID}, page, limit)
}

// ListAllOrders pages through every order, optionally filtered by status and user
func (s *Service) ListAllOrders(ctx context.Context, status, userID string, page, limit int) (*Page, error) {
	filter := repo.OrderFilter{UserID: userID}
	if status != "" {
		parsed, err := ParseStatus(status)
		if err != nil {
			return nil, err
		}
		filter.Status = parsed
	}
	return s.list(ctx, filter, page, limit)
}

// UpdateStatus is the admin override. Any known status may be written from any current
// status; the graph is only consulted to log overrides.
func (s *Service) UpdateStatus(ctx context.Context, orderID, status, trackingNumber string) (*db.Order, error) {
	var target db.OrderStatus
	if status != "" {
		parsed, err := ParseStatus(status)
		if err != nil {
			return nil, err
		}
		target = parsed
	}

	if target != "" {
		current, err := s.orders.Find(ctx, s.db.DB, orderID, "", true, false)
		if err != nil {
			return nil, err
		}
		if current.Status != target && !CanTransition(current.Status, target) {
			s.log.Warn("Admin status override outside the fulfilment graph",
				zap.String("order_id", orderID),
				zap.String("from", string(current.Status)),
				zap.String("to", string(target)),
			)
		}
	}

	order, err := s.orders.UpdateFields(ctx, orderID, target, strings.TrimSpace(trackingNumber))
	if err != nil {
		return nil, err
	}

	if target != "" {
		s.metrics.StatusUpdates.WithLabelValues(string(target)).Inc()
	}
	s.log.Info("Order updated", zap.String("order_id", orderID), zap.String("status", string(order.Status)))
	return order, nil
}

func (s *Service) list(ctx context.Context, filter repo.OrderFilter, page, limit int) (*Page, error) {
	page, limit = normalizePage(page, limit)

	orders, total, err := s.orders.List(ctx, filter, page, limit)
	if err != nil {
		return nil, err
	}

	totalPages := int(total) / limit
	if int(total)%limit > 0 {
		totalPages++
	}

	return &Page{
		Orders:     orders,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
	}, nil
}

func (s *Service) checkoutFailed(span trace.Span, reason string, err error) {
	s.metrics.CheckoutFailures.WithLabelValues(reason).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// publishAsync sends the event after commit; a broker failure never fails the request
func (s *Service) publishAsync(ctx context.Context, eventType string, order *db.Order) {
	if s.publisher == nil {
		return
	}

	correlationID := events.CorrelationID(ctx)
	go func() {
		eventCtx, cancel := context.WithTimeout(events.WithCorrelationID(context.Background(), correlationID), publishTimeout)
		defer cancel()

		var err error
		switch eventType {
		case events.EventTypeOrderCreated:
			err = s.publisher.PublishOrderCreated(eventCtx, order)
		case events.EventTypeOrderCancelled:
			err = s.publisher.PublishOrderCancelled(eventCtx, order)
		}
		if err != nil {
			s.log.Error("Failed to publish order event",
				zap.String("event_type", eventType),
				zap.String("order_id", order.ID),
				zap.Error(err),
			)
		}
	}()
}

func buildOrder(userID string, cart *db.Cart, req CheckoutRequest) *db.Order {
	items := make([]db.OrderItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, db.OrderItem{
			BookID:   item.BookID,
			Title:    item.Title,
			Quantity: item.Quantity,
			Price:    item.Price,
		})
	}

	payment := req.PaymentInfo
	if payment.Status == "" {
		payment.Status = db.PaymentStatusPending
	}

	return &db.Order{
		UserID:          userID,
		Items:           items,
		ShippingAddress: req.ShippingAddress,
		PaymentInfo:     payment,
		TotalAmount:     repo.Total(cart),
		Status:          db.OrderStatusProcessing,
	}
}

func validateCheckout(req CheckoutRequest) error {
	addr := req.ShippingAddress
	fields := []struct {
		name  string
		value string
	}{
		{"street", addr.Street},
		{"city", addr.City},
		{"state", addr.State},
		{"zip code", addr.ZipCode},
		{"country", addr.Country},
	}
	for _, field := range fields {
		if strings.TrimSpace(field.value) == "" {
			return fmt.Errorf("%w: shipping address must have a %s", repo.ErrInvalidInput, field.name)
		}
	}

	if !req.PaymentInfo.Method.Valid() {
		return fmt.Errorf("%w: unsupported payment method %q", repo.ErrInvalidInput, req.PaymentInfo.Method)
	}
	if req.PaymentInfo.Status != "" && !req.PaymentInfo.Status.Valid() {
		return fmt.Errorf("%w: unsupported payment status %q", repo.ErrInvalidInput, req.PaymentInfo.Status)
	}
	return nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, repo.ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, repo.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, repo.ErrInvalidInput):
		return "invalid_input"
	default:
		return "storage"
	}
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return page, limit
}
