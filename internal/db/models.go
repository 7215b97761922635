package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const DefaultCoverImage = "default-book-cover.jpg"

// Book represents a sellable title. Stock and IsAvailable are only written through the inventory ledger.
type Book struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ISBN        string    `gorm:"type:varchar(20);not null;uniqueIndex:idx_books_isbn" json:"isbn"`
	Title       string    `gorm:"type:varchar(200);not null" json:"title"`
	Author      string    `gorm:"type:varchar(255);not null" json:"author"`
	Price       int64     `gorm:"not null" json:"price"` // Price in smallest currency unit (cents)
	CoverImage  string    `gorm:"type:varchar(255);not null" json:"coverImage"`
	Stock       int       `gorm:"not null;default:0;check:chk_books_stock,stock >= 0" json:"stock"`
	IsAvailable bool      `gorm:"not null;index:idx_books_available" json:"isAvailable"`
	CreatedAt   time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"not null" json:"updatedAt"`
}

// TableName specifies the table name for Book model
func (Book) TableName() string {
	return "books"
}

// BeforeCreate assigns an id and derives availability from the initial stock
func (b *Book) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	if b.CoverImage == "" {
		b.CoverImage = DefaultCoverImage
	}
	b.IsAvailable = b.Stock > 0
	return nil
}

// Cart is the mutable pre-order basket, one per user
type Cart struct {
	ID        string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID    string     `gorm:"type:varchar(64);not null;uniqueIndex:idx_carts_user" json:"userId"`
	Items     []CartItem `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE" json:"items"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

func (Cart) TableName() string {
	return "carts"
}

func (c *Cart) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// CartItem snapshots title, price and cover of a book at add time
type CartItem struct {
	ID         string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CartID     string `gorm:"type:varchar(36);not null;uniqueIndex:idx_cart_items_cart_book" json:"-"`
	BookID     string `gorm:"type:varchar(36);not null;uniqueIndex:idx_cart_items_cart_book" json:"bookId"`
	Title      string `gorm:"type:varchar(200);not null" json:"title"`
	Quantity   int    `gorm:"not null;check:chk_cart_items_quantity,quantity >= 1" json:"quantity"`
	Price      int64  `gorm:"not null" json:"price"`
	CoverImage string `gorm:"type:varchar(255)" json:"coverImage"`
}

func (CartItem) TableName() string {
	return "cart_items"
}

func (i *CartItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.New().String()
	}
	return nil
}

// OrderStatus is the fulfilment state of an order
type OrderStatus string

const (
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

// PaymentMethod accepted at checkout
type PaymentMethod string

const (
	PaymentMethodCreditCard   PaymentMethod = "credit_card"
	PaymentMethodPayPal       PaymentMethod = "paypal"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
)

// Valid reports whether m is a supported payment method
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCreditCard, PaymentMethodPayPal, PaymentMethodBankTransfer:
		return true
	}
	return false
}

// PaymentStatus is stored as reported; it is not reconciled with a processor
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed:
		return true
	}
	return false
}

// ShippingAddress where every field is required
type ShippingAddress struct {
	Street  string `gorm:"type:varchar(255);not null" json:"street"`
	City    string `gorm:"type:varchar(100);not null" json:"city"`
	State   string `gorm:"type:varchar(100);not null" json:"state"`
	ZipCode string `gorm:"type:varchar(20);not null" json:"zipCode"`
	Country string `gorm:"type:varchar(100);not null" json:"country"`
}

type PaymentInfo struct {
	Method        PaymentMethod `gorm:"type:varchar(20);not null" json:"method"`
	TransactionID string        `gorm:"type:varchar(100)" json:"transactionId,omitempty"`
	Status        PaymentStatus `gorm:"type:varchar(20);not null" json:"status"`
}

// Order is the immutable record produced by checkout. Items and TotalAmount never change after insert.
type Order struct {
	ID              string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID          string          `gorm:"type:varchar(64);not null;index:idx_orders_user" json:"userId"`
	Items           []OrderItem     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items"`
	ShippingAddress ShippingAddress `gorm:"embedded;embeddedPrefix:shipping_" json:"shippingAddress"`
	PaymentInfo     PaymentInfo     `gorm:"embedded;embeddedPrefix:payment_" json:"paymentInfo"`
	TotalAmount     int64           `gorm:"not null;check:chk_orders_total,total_amount >= 0" json:"totalAmount"`
	Status          OrderStatus     `gorm:"type:varchar(20);not null;index:idx_orders_status" json:"status"`
	TrackingNumber  string          `gorm:"type:varchar(100)" json:"trackingNumber,omitempty"`
	CreatedAt       time.Time       `gorm:"not null" json:"createdAt"`
	UpdatedAt       time.Time       `gorm:"not null" json:"updatedAt"`
}

func (Order) TableName() string {
	return "orders"
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	if o.Status == "" {
		o.Status = OrderStatusProcessing
	}
	if o.PaymentInfo.Status == "" {
		o.PaymentInfo.Status = PaymentStatusPending
	}
	return nil
}

// OrderItem is a price and title snapshot taken at checkout
type OrderItem struct {
	ID       string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	OrderID  string `gorm:"type:varchar(36);not null;index:idx_order_items_order" json:"-"`
	BookID   string `gorm:"type:varchar(36);not null" json:"bookId"`
	Title    string `gorm:"type:varchar(200);not null" json:"title"`
	Quantity int    `gorm:"not null;check:chk_order_items_quantity,quantity >= 1" json:"quantity"`
	Price    int64  `gorm:"not null" json:"price"`
}

func (OrderItem) TableName() string {
	return "order_items"
}

func (i *OrderItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.New().String()
	}
	return nil
}
