package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/linemk/usdt-shop/internal/domain/models"
	"github.com/linemk/usdt-shop/internal/notify"
	"github.com/linemk/usdt-shop/internal/storage"
)

// сколько последних заказов видит покупатель
const buyerOrdersLimit = 10

type PaymentSettings struct {
	WalletAddress string
	Timeout       time.Duration
}

// PurchaseService обрабатывает команды покупателя.
type PurchaseService struct {
	log      *slog.Logger
	users    storage.UserStorage
	products storage.ProductStorage
	orders   storage.OrderStorage
	watcher  Watcher
	msg      Messenger
	payment  PaymentSettings
}

func NewPurchaseService(
	log *slog.Logger,
	users storage.UserStorage,
	products storage.ProductStorage,
	orders storage.OrderStorage,
	watcher Watcher,
	msg Messenger,
	payment PaymentSettings,
) *PurchaseService {
	return &PurchaseService{
		log:      log,
		users:    users,
		products: products,
		orders:   orders,
		watcher:  watcher,
		msg:      msg,
		payment:  payment,
	}
}

// CreatePurchase создаёт заказ по текущей цене товара и запускает ожидание оплаты.
func (s *PurchaseService) CreatePurchase(ctx context.Context, buyerID, productID int64) (*models.Order, error) {
	const op = "service.PurchaseService.CreatePurchase"
	logger := s.log.With(slog.String("op", op), slog.Int64("buyer_id", buyerID), slog.Int64("product_id", productID))

	user, err := s.users.GetUserByID(ctx, buyerID)
	if err != nil {
		logger.Error("failed to get user", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to get user: %w", op, err)
	}
	if user.Banned {
		logger.Warn("banned user tried to purchase")
		return nil, fmt.Errorf("%s: %w", op, ErrUserBanned)
	}

	product, err := s.products.GetProductByID(ctx, productID)
	if err != nil {
		logger.Warn("failed to get product", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to get product: %w", op, err)
	}
	if !product.Enabled {
		return nil, fmt.Errorf("%s: %w", op, ErrProductUnavailable)
	}
	if product.DeliveryMode == models.DeliveryAuto && product.StockCount <= 0 {
		logger.Info("product out of stock")
		return nil, fmt.Errorf("%s: %w", op, ErrOutOfStock)
	}

	order, err := s.orders.CreateOrder(ctx, product.Snapshot(buyerID, s.payment.WalletAddress))
	if err != nil {
		logger.Error("failed to create order", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to create order: %w", op, err)
	}

	if !s.watcher.Spawn(order) {
		logger.Warn("payment watcher was not started", slog.Int64("order_id", order.ID))
	}

	s.msg.ToBuyer(ctx, buyerID, fmt.Sprintf(
		"Order #%d for %s created.\nSend exactly %s %s (TRC20) to:\n%s\nThe order is cancelled automatically if payment does not arrive within %s.",
		order.ID, order.ProductName, order.Amount.String(), order.Currency, order.PaymentAddress, s.payment.Timeout,
	), nil)

	logger.Info("order created", slog.Int64("order_id", order.ID), slog.String("amount", order.Amount.String()))
	return order, nil
}

// CancelPurchase отменяет неоплаченный заказ покупателя.
func (s *PurchaseService) CancelPurchase(ctx context.Context, buyerID, orderID int64) error {
	const op = "service.PurchaseService.CancelPurchase"
	logger := s.log.With(slog.String("op", op), slog.Int64("buyer_id", buyerID), slog.Int64("order_id", orderID))

	if _, err := s.ownPendingOrder(ctx, buyerID, orderID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	ok, err := s.orders.TransitionOrder(ctx, orderID, models.StatusPending, models.StatusCancelled, nil)
	if err != nil {
		logger.Error("failed to cancel order", slog.Any("error", err))
		return fmt.Errorf("%s: failed to cancel order: %w", op, err)
	}
	if !ok {
		logger.Info("order left pending concurrently")
		return fmt.Errorf("%s: %w", op, ErrOrderNotPending)
	}
	s.watcher.Cancel(orderID)

	s.msg.ToBuyer(ctx, buyerID, fmt.Sprintf("Order #%d cancelled.", orderID), nil)
	logger.Info("order cancelled by buyer")
	return nil
}

// MarkPaymentSent переводит заказ на ручную проверку оплаты оператором.
func (s *PurchaseService) MarkPaymentSent(ctx context.Context, buyerID, orderID int64) error {
	const op = "service.PurchaseService.MarkPaymentSent"
	logger := s.log.With(slog.String("op", op), slog.Int64("buyer_id", buyerID), slog.Int64("order_id", orderID))

	order, err := s.ownPendingOrder(ctx, buyerID, orderID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	ok, err := s.orders.TransitionOrder(ctx, orderID, models.StatusPending, models.StatusConfirming, nil)
	if err != nil {
		logger.Error("failed to move order to confirming", slog.Any("error", err))
		return fmt.Errorf("%s: failed to update order: %w", op, err)
	}
	if !ok {
		return fmt.Errorf("%s: %w", op, ErrOrderNotPending)
	}
	s.watcher.Cancel(orderID)

	s.msg.ToOperators(ctx, fmt.Sprintf("Buyer %d reports payment for order #%d: %s, %s %s to %s.",
		buyerID, order.ID, order.ProductName, order.Amount.String(), order.Currency, order.PaymentAddress),
		actions(order.ID, notify.ActionConfirm, notify.ActionReject))
	s.msg.ToBuyer(ctx, buyerID, fmt.Sprintf("Order #%d is waiting for operator confirmation.", orderID), nil)

	logger.Info("payment reported by buyer")
	return nil
}

func (s *PurchaseService) ownPendingOrder(ctx context.Context, buyerID, orderID int64) (*models.Order, error) {
	order, err := s.GetOrder(ctx, buyerID, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.StatusPending {
		return nil, ErrOrderNotPending
	}
	return order, nil
}

// GetOrder возвращает заказ, только если он принадлежит покупателю.
func (s *PurchaseService) GetOrder(ctx context.Context, buyerID, orderID int64) (*models.Order, error) {
	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != buyerID {
		return nil, ErrForbidden
	}
	return order, nil
}

func (s *PurchaseService) ListOrders(ctx context.Context, buyerID int64) ([]*models.Order, error) {
	orders, err := s.orders.ListOrdersByBuyer(ctx, buyerID, buyerOrdersLimit)
	if err != nil {
		return nil, fmt.Errorf("service.PurchaseService.ListOrders: %w", err)
	}
	return orders, nil
}

func (s *PurchaseService) ListProducts(ctx context.Context) ([]*models.Product, error) {
	products, err := s.products.ListProducts(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("service.PurchaseService.ListProducts: %w", err)
	}
	return products, nil
}
