package service

import (
	"context"

	"github.com/linemk/usdt-shop/internal/domain/models"
	"github.com/linemk/usdt-shop/internal/notify"
	"github.com/shopspring/decimal"
)

// Messenger — исходящие сообщения покупателям и операторам (notify.Messenger).
type Messenger interface {
	ToBuyer(ctx context.Context, buyerID int64, text string, payload *notify.Payload)
	ToOperators(ctx context.Context, text string, payload *notify.Payload)
	SupportContact() string
}

// Watcher запускает и останавливает наблюдение за оплатой (reconcile.Registry).
type Watcher interface {
	Spawn(order *models.Order) bool
	Cancel(orderID int64) bool
}

// Fulfiller выдаёт оплаченный заказ
type Fulfiller interface {
	Fulfill(ctx context.Context, orderID int64) error
}

func actions(orderID int64, kinds ...string) *notify.Payload {
	p := &notify.Payload{}
	for _, k := range kinds {
		p.Actions = append(p.Actions, notify.Action{Kind: k, OrderID: orderID})
	}
	return p
}

// PurchaseServiceInterface — команды покупателя для HTTP-слоя
type PurchaseServiceInterface interface {
	CreatePurchase(ctx context.Context, buyerID, productID int64) (*models.Order, error)
	CancelPurchase(ctx context.Context, buyerID, orderID int64) error
	MarkPaymentSent(ctx context.Context, buyerID, orderID int64) error
	ListOrders(ctx context.Context, buyerID int64) ([]*models.Order, error)
	GetOrder(ctx context.Context, buyerID, orderID int64) (*models.Order, error)
	ListProducts(ctx context.Context) ([]*models.Product, error)
}

// AdminServiceInterface — команды оператора для HTTP-слоя
type AdminServiceInterface interface {
	Confirm(ctx context.Context, orderID int64) error
	Reject(ctx context.Context, orderID int64) error
	ManualDeliver(ctx context.Context, orderID int64, content string) error
	AddInventory(ctx context.Context, productID int64, items []string) (int, error)
	CreateProduct(ctx context.Context, name, description string, price decimal.Decimal, mode models.DeliveryMode) (*models.Product, error)
	UpdatePrice(ctx context.Context, productID int64, price decimal.Decimal) error
	SetProductEnabled(ctx context.Context, productID int64, enabled bool) error
	ListProducts(ctx context.Context) ([]*models.Product, error)
	ListOrders(ctx context.Context, status models.OrderStatus) ([]*models.Order, error)
	ManualQueue(ctx context.Context) ([]*models.Order, error)
	Stats(ctx context.Context) (*models.Stats, error)
	BanUser(ctx context.Context, userID int64, banned bool) error
}

var (
	_ PurchaseServiceInterface = (*PurchaseService)(nil)
	_ AdminServiceInterface    = (*AdminService)(nil)
	_ AuthServiceInterface     = (*AuthService)(nil)
	_ Fulfiller                = (*FulfillmentService)(nil)
)
