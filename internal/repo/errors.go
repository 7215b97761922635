package repo

import (
	"errors"
	"fmt"
)

var (
	// ErrBookNotFound is returned when a book is not found
	ErrBookNotFound = errors.New("book not found")

	// ErrBookAlreadyExists is returned when a book with the same ISBN already exists
	ErrBookAlreadyExists = errors.New("book already exists")

	// ErrBookUnavailable is returned when a book cannot be added to a cart in the requested quantity
	ErrBookUnavailable = errors.New("book is not available in the requested quantity")

	// ErrInsufficientStock is returned when a reservation would take stock below zero
	ErrInsufficientStock = errors.New("insufficient stock")

	ErrCartNotFound = errors.New("cart not found")
	ErrItemNotFound = errors.New("item not found in cart")
	ErrEmptyCart    = errors.New("cart is empty")

	ErrOrderNotFound = errors.New("order not found")

	// ErrInvalidTransition is returned when an order's current status forbids the requested change
	ErrInvalidTransition = errors.New("invalid order status transition")

	ErrInvalidStatus = errors.New("invalid order status")
	ErrInvalidInput  = errors.New("invalid input")

	// ErrStorage wraps failures of the underlying database
	ErrStorage = errors.New("storage failure")
)

// StockError names the line item that could not be reserved
type StockError struct {
	BookID    string
	Title     string
	Requested int
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("Book %q is not available in requested quantity", e.Title)
}

func (e *StockError) Unwrap() error {
	return ErrInsufficientStock
}

func storageError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

func invalidInput(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
