package httpapi

import (
	"net/http"
	"strconv"

	"github.com/bookstore/services/order/internal/db"
	"github.com/bookstore/services/order/internal/orders"
	"github.com/bookstore/services/order/internal/repo"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler serves the cart and order routes
type Handler struct {
	orders *orders.Service
	carts  *repo.CartRepository
	log    *zap.Logger
}

// NewHandler creates the HTTP handlers
func NewHandler(svc *orders.Service, carts *repo.CartRepository, log *zap.Logger) *Handler {
	return &Handler{
		orders: svc,
		carts:  carts,
		log:    log,
	}
}

type addToCartRequest struct {
	BookID   string `json:"bookId" binding:"required"`
	Quantity *int   `json:"quantity"`
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity" binding:"required"`
}

type createOrderRequest struct {
	ShippingAddress db.ShippingAddress `json:"shippingAddress"`
	PaymentInfo     struct {
		Method        string `json:"method" binding:"required"`
		Status        string `json:"status"`
		TransactionID string `json:"transactionId"`
	} `json:"paymentInfo"`
}

type updateOrderRequest struct {
	Status         string `json:"status"`
	TrackingNumber string `json:"trackingNumber"`
}

func cartData(cart *db.Cart) gin.H {
	return gin.H{
		"cart":  cart,
		"total": repo.Total(cart),
	}
}

// GetCart returns the caller's cart, creating it on first use
func (h *Handler) GetCart(c *gin.Context) {
	cart, err := h.carts.Get(c.Request.Context(), requesterFrom(c).UserID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	success(c, http.StatusOK, "", cartData(cart))
}

func (h *Handler) AddToCart(c *gin.Context) {
	var req addToCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "bookId is required")
		return
	}

	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	cart, err := h.carts.AddItem(c.Request.Context(), requesterFrom(c).UserID, req.BookID, quantity)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	success(c, http.StatusOK, "Item added to cart", cartData(cart))
}

func (h *Handler) UpdateCartItem(c *gin.Context) {
	var req updateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "quantity is required")
		return
	}

	cart, err := h.carts.UpdateItem(c.Request.Context(), requesterFrom(c).UserID, c.Param("itemId"), req.Quantity)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	success(c, http.StatusOK, "Cart item updated", cartData(cart))
}

func (h *Handler) RemoveFromCart(c *gin.Context) {
	cart, err := h.carts.RemoveItem(c.Request.Context(), requesterFrom(c).UserID, c.Param("itemId"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	success(c, http.StatusOK, "Item removed from cart", cartData(cart))
}

func (h *Handler) ClearCart(c *gin.Context) {
	if err := h.carts.Clear(c.Request.Context(), requesterFrom(c).UserID); err != nil {
		writeError(c, h.log, err)
		return
	}
	success(c, http.StatusOK, "Cart cleared", nil)
}

// CreateOrder checks out the caller's cart
func (h *Handler) CreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "shippingAddress and paymentInfo.method are required")
		return
	}

	order, err := h.orders.CreateOrder(c.Request.Context(), requesterFrom(c).UserID, orders.CheckoutRequest{
		ShippingAddress: req.ShippingAddress,
		PaymentInfo: db.PaymentInfo{
			Method:        db.PaymentMethod(req.PaymentInfo.Method),
			Status:        db.PaymentStatus(req.PaymentInfo.Status),
			TransactionID: req.PaymentInfo.TransactionID,
		},
	})
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	success(c, http.StatusCreated, "", gin.H{"order": order})
}

func (h *Handler) ListMyOrders(c *gin.Context) {
	page, err := h.orders.ListUserOrders(c.Request.Context(), requesterFrom(c).UserID, queryInt(c, "page"), queryInt(c, "limit"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	writePage(c, page)
}

func (h *Handler) GetOrder(c *gin.Context) {
	order, err := h.orders.GetOrder(c.Request.Context(), requesterFrom(c), c.Param("id"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	success(c, http.StatusOK, "", gin.H{"order": order})
}

func (h *Handler) CancelOrder(c *gin.Context) {
	order, err := h.orders.CancelOrder(c.Request.Context(), requesterFrom(c), c.Param("id"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	success(c, http.StatusOK, "Order cancelled successfully", gin.H{"order": order})
}

// ListAllOrders is the admin listing across users
func (h *Handler) ListAllOrders(c *gin.Context) {
	page, err := h.orders.ListAllOrders(
		c.Request.Context(),
		c.Query("status"),
		c.Query("userId"),
		queryInt(c, "page"),
		queryInt(c, "limit"),
	)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	writePage(c, page)
}

func (h *Handler) UpdateOrderStatus(c *gin.Context) {
	var req updateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	order, err := h.orders.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status, req.TrackingNumber)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	success(c, http.StatusOK, "", gin.H{"order": order})
}

func writePage(c *gin.Context, page *orders.Page) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "success",
		"results":     len(page.Orders),
		"total":       page.Total,
		"totalPages":  page.TotalPages,
		"currentPage": page.Page,
		"data":        page.Orders,
	})
}

func queryInt(c *gin.Context, key string) int {
	value, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return value
}
