package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/bookstore/services/order/internal/events"
	"github.com/bookstore/services/order/internal/metrics"
	"github.com/bookstore/services/order/internal/orders"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// Headers set by the gateway once it has verified the caller's token
	HeaderUserID        = "X-User-Id"
	HeaderUserRole      = "X-User-Role"
	HeaderCorrelationID = "X-Correlation-Id"

	requesterKey = "requester"
)

// Identity reads the caller resolved by the gateway. Requests without one are rejected.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(HeaderUserID)
		if userID == "" {
			fail(c, http.StatusUnauthorized, "You are not logged in")
			return
		}

		role := orders.RoleUser
		if orders.Role(c.GetHeader(HeaderUserRole)) == orders.RoleAdmin {
			role = orders.RoleAdmin
		}

		c.Set(requesterKey, orders.Requester{UserID: userID, Role: role})
		c.Next()
	}
}

// RestrictTo lets only the given roles through
func RestrictTo(roles ...orders.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		requester := requesterFrom(c)
		for _, role := range roles {
			if requester.Role == role {
				c.Next()
				return
			}
		}
		fail(c, http.StatusForbidden, "You do not have permission to perform this action")
	}
}

func requesterFrom(c *gin.Context) orders.Requester {
	requester, _ := c.MustGet(requesterKey).(orders.Requester)
	return requester
}

// Correlation propagates or assigns a correlation id for logs and events
func Correlation() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderCorrelationID)
		if id == "" {
			id = uuid.New().String()
		}
		c.Header(HeaderCorrelationID, id)
		c.Request = c.Request.WithContext(events.WithCorrelationID(c.Request.Context(), id))
		c.Next()
	}
}

// Timeout bounds the storage work of a request
func Timeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// Logging logs each request and records it in the HTTP metrics
func Logging(log *zap.Logger, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)

		m.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		m.HTTPDuration.WithLabelValues(c.Request.Method, route).Observe(elapsed.Seconds())

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("duration", elapsed),
			zap.String("correlation_id", events.CorrelationID(c.Request.Context())),
		}
		if status >= http.StatusInternalServerError {
			log.Error("HTTP request failed", fields...)
		} else {
			log.Info("HTTP request completed", fields...)
		}
	}
}
