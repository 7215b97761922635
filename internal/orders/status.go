package orders

import (
	"fmt"

	"github.com/bookstore/services/order/internal/db"
	"github.com/bookstore/services/order/internal/repo"
)

// transitions is the fulfilment graph. Statuses without an entry are terminal.
var transitions = map[db.OrderStatus][]db.OrderStatus{
	db.OrderStatusProcessing: {
		db.OrderStatusShipped,
		db.OrderStatusDelivered,
		db.OrderStatusCancelled,
		db.OrderStatusRefunded,
	},
}

var knownStatuses = []db.OrderStatus{
	db.OrderStatusProcessing,
	db.OrderStatusShipped,
	db.OrderStatusDelivered,
	db.OrderStatusCancelled,
	db.OrderStatusRefunded,
}

// ParseStatus accepts only the five known order statuses
func ParseStatus(value string) (db.OrderStatus, error) {
	for _, status := range knownStatuses {
		if string(status) == value {
			return status, nil
		}
	}
	return "", fmt.Errorf("%w: %q", repo.ErrInvalidStatus, value)
}

// CanTransition reports whether the graph has an edge from -> to
func CanTransition(from, to db.OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves status
func IsTerminal(status db.OrderStatus) bool {
	return len(transitions[status]) == 0
}

// EnsureCancellable rejects cancellation of anything that is not still processing
func EnsureCancellable(current db.OrderStatus) error {
	if current != db.OrderStatusProcessing {
		return fmt.Errorf("%w: order cannot be cancelled in '%s' status", repo.ErrInvalidTransition, current)
	}
	return nil
}
