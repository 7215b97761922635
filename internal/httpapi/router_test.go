package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bookstore/services/order/internal/db"
	"github.com/bookstore/services/order/internal/db/dbtest"
	"github.com/bookstore/services/order/internal/metrics"
	"github.com/bookstore/services/order/internal/orders"
	"github.com/bookstore/services/order/internal/repo"
	"github.com/bookstore/services/order/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHealth struct {
	err error
}

func (f *fakeHealth) Healthy(ctx context.Context) error {
	return f.err
}

type testServer struct {
	router   *gin.Engine
	database *db.DB
	health   *fakeHealth
}

func setupRouter(t *testing.T) *testServer {
	gin.SetMode(gin.TestMode)

	database := dbtest.New(t)
	log := logger.NewLogger("test", "error")
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	books := repo.NewBookRepository(database, log)
	ledger := repo.NewInventoryLedger(log)
	carts := repo.NewCartRepository(database, books, ledger, log)
	svc := orders.NewService(database, carts, repo.NewOrderRepository(database, log), ledger, nil, m, log)

	health := &fakeHealth{}
	router := NewRouter(NewHandler(svc, carts, log), health, m, registry, 5*time.Second)
	return &testServer{router: router, database: database, health: health}
}

func (s *testServer) do(t *testing.T, method, path, userID, role string, body interface{}) (int, map[string]interface{}) {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(HeaderUserID, userID)
	}
	if role != "" {
		req.Header.Set(HeaderUserRole, role)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var decoded map[string]interface{}
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	}
	return w.Code, decoded
}

func checkoutBody() map[string]interface{} {
	return map[string]interface{}{
		"shippingAddress": map[string]string{
			"street":  "1 Main St",
			"city":    "Springfield",
			"state":   "IL",
			"zipCode": "62701",
			"country": "USA",
		},
		"paymentInfo": map[string]string{"method": "credit_card"},
	}
}

func dataOf(t *testing.T, body map[string]interface{}) map[string]interface{} {
	data, ok := body["data"].(map[string]interface{})
	require.True(t, ok, "response has no data object: %v", body)
	return data
}

func TestMissingIdentityIsUnauthorized(t *testing.T) {
	s := setupRouter(t)

	code, body := s.do(t, http.MethodGet, "/api/orders/cart", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "fail", body["status"])
}

func TestAdminRoutesForbiddenForUsers(t *testing.T) {
	s := setupRouter(t)

	code, body := s.do(t, http.MethodGet, "/api/orders/admin/all", "user-1", "user", nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "fail", body["status"])

	code, _ = s.do(t, http.MethodGet, "/api/orders/admin/all", "admin-1", "admin", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestCartRoutes(t *testing.T) {
	s := setupRouter(t)
	book := dbtest.CreateBook(t, s.database, "9780000000030", "Handler Book", 1200, 5)

	code, body := s.do(t, http.MethodGet, "/api/orders/cart", "user-1", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(0), dataOf(t, body)["total"])

	// Quantity defaults to one
	code, body = s.do(t, http.MethodPost, "/api/orders/cart", "user-1", "", map[string]interface{}{"bookId": book.ID})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Item added to cart", body["message"])
	assert.Equal(t, float64(1200), dataOf(t, body)["total"])

	code, body = s.do(t, http.MethodPatch, "/api/orders/cart/"+book.ID, "user-1", "", map[string]interface{}{"quantity": 3})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(3600), dataOf(t, body)["total"])

	code, body = s.do(t, http.MethodPatch, "/api/orders/cart/"+book.ID, "user-1", "", map[string]interface{}{"quantity": 9})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "fail", body["status"])

	code, _ = s.do(t, http.MethodPost, "/api/orders/cart", "user-1", "", map[string]interface{}{"bookId": "missing"})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = s.do(t, http.MethodPost, "/api/orders/cart", "user-1", "", map[string]interface{}{"quantity": 1})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(t, http.MethodDelete, "/api/orders/cart/"+book.ID, "user-1", "", nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = s.do(t, http.MethodDelete, "/api/orders/cart/"+book.ID, "user-1", "", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, body = s.do(t, http.MethodDelete, "/api/orders/cart", "user-1", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Cart cleared", body["message"])
}

func TestOrderLifecycle(t *testing.T) {
	s := setupRouter(t)
	book := dbtest.CreateBook(t, s.database, "9780000000031", "Lifecycle", 1000, 5)

	code, body := s.do(t, http.MethodPost, "/api/orders", "user-1", "", checkoutBody())
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, repo.ErrEmptyCart.Error(), body["message"])

	code, _ = s.do(t, http.MethodPost, "/api/orders/cart", "user-1", "", map[string]interface{}{"bookId": book.ID, "quantity": 3})
	require.Equal(t, http.StatusOK, code)

	code, body = s.do(t, http.MethodPost, "/api/orders", "user-1", "", checkoutBody())
	require.Equal(t, http.StatusCreated, code)
	order := dataOf(t, body)["order"].(map[string]interface{})
	orderID := order["id"].(string)
	assert.Equal(t, "processing", order["status"])
	assert.Equal(t, float64(3000), order["totalAmount"])

	code, body = s.do(t, http.MethodGet, "/api/orders", "user-1", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["results"])
	assert.Equal(t, float64(1), body["currentPage"])

	code, _ = s.do(t, http.MethodGet, "/api/orders/"+orderID, "user-2", "", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, body = s.do(t, http.MethodPatch, "/api/orders/"+orderID+"/cancel", "user-1", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Order cancelled successfully", body["message"])

	code, body = s.do(t, http.MethodPatch, "/api/orders/"+orderID+"/cancel", "user-1", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["message"], "'cancelled'")

	var stored db.Book
	require.NoError(t, s.database.Where("id = ?", book.ID).First(&stored).Error)
	assert.Equal(t, 5, stored.Stock)
}

func TestCheckoutInsufficientStockNamesBook(t *testing.T) {
	s := setupRouter(t)
	book := dbtest.CreateBook(t, s.database, "9780000000032", "Rare Edition", 1000, 2)

	for i := 0; i < 2; i++ {
		code, _ := s.do(t, http.MethodPost, "/api/orders/cart", "user-1", "", map[string]interface{}{"bookId": book.ID, "quantity": 2})
		require.Equal(t, http.StatusOK, code)
	}

	code, body := s.do(t, http.MethodPost, "/api/orders", "user-1", "", checkoutBody())
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, `Book "Rare Edition" is not available in requested quantity`, body["message"])
}

func TestAdminUpdateStatus(t *testing.T) {
	s := setupRouter(t)
	book := dbtest.CreateBook(t, s.database, "9780000000033", "Admin", 1000, 5)

	code, _ := s.do(t, http.MethodPost, "/api/orders/cart", "user-1", "", map[string]interface{}{"bookId": book.ID})
	require.Equal(t, http.StatusOK, code)
	code, body := s.do(t, http.MethodPost, "/api/orders", "user-1", "", checkoutBody())
	require.Equal(t, http.StatusCreated, code)
	orderID := dataOf(t, body)["order"].(map[string]interface{})["id"].(string)

	code, body = s.do(t, http.MethodPatch, "/api/orders/admin/"+orderID, "admin-1", "admin",
		map[string]string{"status": "shipped", "trackingNumber": "TRACK-1"})
	require.Equal(t, http.StatusOK, code)
	order := dataOf(t, body)["order"].(map[string]interface{})
	assert.Equal(t, "shipped", order["status"])
	assert.Equal(t, "TRACK-1", order["trackingNumber"])

	code, _ = s.do(t, http.MethodPatch, "/api/orders/admin/"+orderID, "admin-1", "admin", map[string]string{"status": "lost"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(t, http.MethodPatch, "/api/orders/admin/missing", "admin-1", "admin", map[string]string{"status": "shipped"})
	assert.Equal(t, http.StatusNotFound, code)

	code, body = s.do(t, http.MethodGet, "/api/orders/admin/all?status=shipped", "admin-1", "admin", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["total"])
}

func TestStorageFailureIsGenericServerError(t *testing.T) {
	s := setupRouter(t)
	require.NoError(t, s.database.Close())

	code, body := s.do(t, http.MethodGet, "/api/orders/cart", "user-1", "", nil)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, "Something went wrong", body["message"])
}

func TestHealthAndMetrics(t *testing.T) {
	s := setupRouter(t)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", w.Body.String())

	s.health.err = errors.New("database down")
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "bookstore_orders_http_requests_total")
}

func TestCorrelationIDEchoed(t *testing.T) {
	s := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(HeaderCorrelationID, "corr-123")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, "corr-123", w.Header().Get(HeaderCorrelationID))

	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.NotEmpty(t, w.Header().Get(HeaderCorrelationID))
}
