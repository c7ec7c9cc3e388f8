// Package catalog holds the storefront's categories, products, orders and
// uploaded assets.
package catalog

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("catalog: not found")
	ErrInvalid  = errors.New("catalog: invalid input")
	ErrConflict = errors.New("catalog: conflicting state")
)

// Category groups products.
type Category struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Product is a sellable item. Prices are in minor currency units.
type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	PriceCents  int64     `json:"priceCents"`
	Currency    string    `json:"currency"`
	CategoryID  string    `json:"categoryId"`
	Stock       int       `json:"stock"`
	Tags        []string  `json:"tags,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// OrderStatus is the fulfilment state of an order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPaid      OrderStatus = "paid"
	OrderShipped   OrderStatus = "shipped"
	OrderDelivered OrderStatus = "delivered"
	OrderCancelled OrderStatus = "cancelled"
)

// OrderStatuses lists every status in lifecycle order.
var OrderStatuses = []OrderStatus{OrderPending, OrderPaid, OrderShipped, OrderDelivered, OrderCancelled}

var transitions = map[OrderStatus][]OrderStatus{
	OrderPending: {OrderPaid, OrderCancelled},
	OrderPaid:    {OrderShipped, OrderCancelled},
	OrderShipped: {OrderDelivered},
}

// CanTransition reports whether an order may move from s to next.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// OrderItem is one line of an order, priced at order time.
type OrderItem struct {
	ProductID      string `json:"productId"`
	Name           string `json:"name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unitPriceCents"`
}

// Order is a purchase by one user.
type Order struct {
	ID         string      `json:"id"`
	UserID     string      `json:"userId"`
	Items      []OrderItem `json:"items"`
	TotalCents int64       `json:"totalCents"`
	Currency   string      `json:"currency"`
	Status     OrderStatus `json:"status"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

// Asset is an uploaded file reference.
type Asset struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	URL         string    `json:"url"`
	UploadedBy  string    `json:"uploadedBy"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ProductFilter narrows a product listing. Page is 1-based.
type ProductFilter struct {
	Search     string
	CategoryID string
	MinPrice   int64
	MaxPrice   int64
	Sort       string
	Page       int
	PerPage    int
}

// OrderFilter narrows an order listing. An empty UserID lists every order.
type OrderFilter struct {
	UserID  string
	Status  OrderStatus
	Page    int
	PerPage int
}

// CategoryInput carries writable category fields.
type CategoryInput struct {
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
}

// ProductInput carries writable product fields. Nil pointers leave the
// current value untouched on update.
type ProductInput struct {
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	PriceCents  *int64   `json:"priceCents"`
	Currency    *string  `json:"currency"`
	CategoryID  *string  `json:"categoryId"`
	Stock       *int     `json:"stock"`
	Tags        []string `json:"tags"`
}

// OrderLine is a requested product quantity.
type OrderLine struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// AssetInput describes an upload.
type AssetInput struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// Service is the catalog collaborator used by the HTTP handlers.
type Service interface {
	ListCategories(ctx context.Context) ([]Category, error)
	GetCategory(ctx context.Context, id string) (Category, error)
	CreateCategory(ctx context.Context, in CategoryInput) (Category, error)
	UpdateCategory(ctx context.Context, id string, in CategoryInput) (Category, error)
	DeleteCategory(ctx context.Context, id string) error

	ListProducts(ctx context.Context, f ProductFilter) ([]Product, int, error)
	GetProduct(ctx context.Context, id string) (Product, error)
	CreateProduct(ctx context.Context, in ProductInput) (Product, error)
	UpdateProduct(ctx context.Context, id string, in ProductInput) (Product, error)
	DeleteProduct(ctx context.Context, id string) error

	ListOrders(ctx context.Context, f OrderFilter) ([]Order, int, error)
	GetOrder(ctx context.Context, id string) (Order, error)
	CreateOrder(ctx context.Context, userID string, lines []OrderLine) (Order, error)
	CancelOrder(ctx context.Context, id string) (Order, error)
	UpdateOrderStatus(ctx context.Context, id string, status OrderStatus) (Order, error)

	CreateAsset(ctx context.Context, uploadedBy string, in AssetInput) (Asset, error)
}
