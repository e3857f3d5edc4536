// Package orderstest provides sqlite-backed order fixtures and gateway stubs
// for tests that drive the payment status machine.
package orderstest

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-payments/internal/gateways"
	"github.com/angelmondragon/storefront-payments/pkg/db/models"
	"github.com/angelmondragon/storefront-payments/pkg/enums"
	"github.com/angelmondragon/storefront-payments/pkg/outbox"
)

// Schema mirrors the order, order item and stock tables with sqlite types.
const Schema = `
CREATE TABLE orders (
  id TEXT PRIMARY KEY,
  customer_id TEXT NOT NULL,
  subtotal TEXT NOT NULL,
  tax TEXT NOT NULL DEFAULT '0',
  shipping_cost TEXT NOT NULL DEFAULT '0',
  total TEXT NOT NULL,
  payment_status TEXT NOT NULL DEFAULT 'pending',
  payment_method TEXT,
  payment_gateway TEXT,
  payment_id TEXT,
  payment_data TEXT,
  currency TEXT,
  due_payment_amount TEXT NOT NULL DEFAULT '0',
  paid_amount TEXT NOT NULL DEFAULT '0',
  refund_id TEXT,
  refund_data TEXT,
  refunded_amount TEXT,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  stock_id TEXT NOT NULL,
  unit_price TEXT NOT NULL,
  unit_quantity INTEGER NOT NULL,
  unit_discount TEXT NOT NULL DEFAULT '0'
);
CREATE TABLE stocks (
  id TEXT PRIMARY KEY,
  sku TEXT NOT NULL,
  quantity INTEGER NOT NULL DEFAULT 0,
  updated_at DATETIME
);`

// InitialStock is the quantity every seeded stock row starts with.
const InitialStock = 10

// Open returns a private in-memory database with Schema applied.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.Exec(Schema).Error)
	return db
}

// Fixture describes an order to seed. Stock holds one item quantity per line.
type Fixture struct {
	Status    enums.PaymentStatus
	Gateway   string
	PaymentID string
	Total     string
	Due       string
	Paid      string
	Refunded  string
	Currency  string
	Method    enums.PaymentMethod
	Stock     []int
}

// Seed inserts the order, its items and their stock rows.
func Seed(t *testing.T, db *gorm.DB, f Fixture) (*models.Order, []models.Stock) {
	t.Helper()

	total := decimal.RequireFromString(f.Total)
	order := &models.Order{
		ID:               uuid.New(),
		CustomerID:       uuid.New(),
		Subtotal:         total,
		Total:            total,
		PaymentStatus:    f.Status,
		DuePaymentAmount: decimalOrZero(f.Due),
		PaidAmount:       decimalOrZero(f.Paid),
	}
	if f.Method != "" {
		method := f.Method
		order.PaymentMethod = &method
	}
	if f.Gateway != "" {
		gateway, paymentID := f.Gateway, f.PaymentID
		order.PaymentGateway = &gateway
		order.PaymentID = &paymentID
	}
	if f.Currency != "" {
		currency := f.Currency
		order.Currency = &currency
	}
	if f.Refunded != "" {
		refunded := decimal.RequireFromString(f.Refunded)
		order.RefundedAmount = &refunded
	}

	stocks := make([]models.Stock, 0, len(f.Stock))
	for i, qty := range f.Stock {
		stock := models.Stock{ID: uuid.New(), SKU: fmt.Sprintf("SKU-%d", i), Quantity: InitialStock}
		require.NoError(t, db.Create(&stock).Error)
		stocks = append(stocks, stock)
		order.Items = append(order.Items, models.OrderItem{
			ID:           uuid.New(),
			OrderID:      order.ID,
			StockID:      stock.ID,
			UnitPrice:    decimal.NewFromInt(100),
			UnitQuantity: qty,
		})
	}
	require.NoError(t, db.Create(order).Error)
	return order, stocks
}

func decimalOrZero(v string) decimal.Decimal {
	if v == "" {
		return decimal.Zero
	}
	return decimal.RequireFromString(v)
}

// StockQuantity reads the current quantity of a stock row.
func StockQuantity(t *testing.T, db *gorm.DB, id uuid.UUID) int {
	t.Helper()
	var stock models.Stock
	require.NoError(t, db.First(&stock, "id = ?", id).Error)
	return stock.Quantity
}

// Reload reads the order row without its items.
func Reload(t *testing.T, db *gorm.DB, id uuid.UUID) *models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, db.First(&order, "id = ?", id).Error)
	return &order
}

// Publisher records emitted events. It fails when no transaction is given.
type Publisher struct {
	Events []outbox.DomainEvent
	Err    error
}

func (p *Publisher) Emit(_ context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	if tx == nil {
		return fmt.Errorf("transaction required")
	}
	if p.Err != nil {
		return p.Err
	}
	p.Events = append(p.Events, event)
	return nil
}

// Adapter returns a canned result from every call and counts them. Status
// lookups answer with Poll when it is set.
type Adapter struct {
	GatewayName string
	Result      *gateways.Result
	Poll        *gateways.Result
	Err         error

	Creates []gateways.PaymentRequest
	Refunds []gateways.RefundRequest
	Polls   int
}

func (a *Adapter) Name() string { return a.GatewayName }

func (a *Adapter) CreatePayment(_ context.Context, req gateways.PaymentRequest) (*gateways.Result, error) {
	a.Creates = append(a.Creates, req)
	return a.Result, a.Err
}

func (a *Adapter) GetPaymentStatus(context.Context, string) (*gateways.Result, error) {
	a.Polls++
	if a.Poll != nil {
		return a.Poll, a.Err
	}
	return a.Result, a.Err
}

func (a *Adapter) RefundPayment(_ context.Context, req gateways.RefundRequest) (*gateways.Result, error) {
	a.Refunds = append(a.Refunds, req)
	return a.Result, a.Err
}
