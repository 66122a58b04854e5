package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/linemk/usdt-shop/internal/domain/models"
	"github.com/linemk/usdt-shop/internal/storage"
	"github.com/shopspring/decimal"
)

const (
	adminOrdersLimit = 50
	manualQueueLimit = 50
)

// AdminService — команды оператора. Каждая команда меняет статус одним CAS-переходом,
// проигранная гонка возвращает ErrStateConflict.
type AdminService struct {
	log       *slog.Logger
	users     storage.UserStorage
	products  storage.ProductStorage
	orders    storage.OrderStorage
	inventory storage.InventoryStorage
	fulfiller Fulfiller
	msg       Messenger
	currency  string
}

func NewAdminService(
	log *slog.Logger,
	users storage.UserStorage,
	products storage.ProductStorage,
	orders storage.OrderStorage,
	inventory storage.InventoryStorage,
	fulfiller Fulfiller,
	msg Messenger,
	currency string,
) *AdminService {
	return &AdminService{
		log:       log,
		users:     users,
		products:  products,
		orders:    orders,
		inventory: inventory,
		fulfiller: fulfiller,
		msg:       msg,
		currency:  currency,
	}
}

// Confirm подтверждает оплату, заявленную покупателем, и запускает выдачу.
func (s *AdminService) Confirm(ctx context.Context, orderID int64) error {
	const op = "service.AdminService.Confirm"
	logger := s.log.With(slog.String("op", op), slog.Int64("order_id", orderID))

	if _, err := s.orders.GetOrderByID(ctx, orderID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	ok, err := s.orders.TransitionOrder(ctx, orderID, models.StatusConfirming, models.StatusPaid, nil)
	if err != nil {
		logger.Error("failed to confirm order", slog.Any("error", err))
		return fmt.Errorf("%s: failed to confirm order: %w", op, err)
	}
	if !ok {
		logger.Info("order is not awaiting confirmation")
		return fmt.Errorf("%s: %w", op, ErrStateConflict)
	}
	logger.Info("payment confirmed by operator")

	if err := s.fulfiller.Fulfill(ctx, orderID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Reject отклоняет заказ на подтверждении или оплаченный, но не выданный.
func (s *AdminService) Reject(ctx context.Context, orderID int64) error {
	const op = "service.AdminService.Reject"
	logger := s.log.With(slog.String("op", op), slog.Int64("order_id", orderID))

	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	var rejected bool
	for _, from := range []models.OrderStatus{models.StatusConfirming, models.StatusPaid} {
		ok, err := s.orders.TransitionOrder(ctx, orderID, from, models.StatusRejected, nil)
		if err != nil {
			logger.Error("failed to reject order", slog.Any("error", err))
			return fmt.Errorf("%s: failed to reject order: %w", op, err)
		}
		if ok {
			rejected = true
			break
		}
	}
	if !rejected {
		logger.Info("order can no longer be rejected")
		return fmt.Errorf("%s: %w", op, ErrStateConflict)
	}

	text := fmt.Sprintf("Order #%d was rejected by the operator.", orderID)
	if support := s.msg.SupportContact(); support != "" {
		text += " Support: " + support
	}
	s.msg.ToBuyer(ctx, order.BuyerID, text, nil)
	logger.Info("order rejected")
	return nil
}

// ManualDeliver выдаёт оплаченный заказ текстом оператора.
func (s *AdminService) ManualDeliver(ctx context.Context, orderID int64, content string) error {
	const op = "service.AdminService.ManualDeliver"
	logger := s.log.With(slog.String("op", op), slog.Int64("order_id", orderID))

	content = strings.TrimSpace(content)
	if content == "" {
		return fmt.Errorf("%s: %w", op, ErrInvalidDelivery)
	}
	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	ok, err := s.orders.TransitionOrder(ctx, orderID, models.StatusPaid, models.StatusDelivered, &content)
	if err != nil {
		logger.Error("failed to deliver order", slog.Any("error", err))
		return fmt.Errorf("%s: failed to deliver order: %w", op, err)
	}
	if !ok {
		return fmt.Errorf("%s: %w", op, ErrStateConflict)
	}

	s.msg.ToBuyer(ctx, order.BuyerID, fmt.Sprintf("Order #%d (%s) is delivered:\n%s", order.ID, order.ProductName, content), nil)
	logger.Info("order delivered manually")
	return nil
}

func (s *AdminService) AddInventory(ctx context.Context, productID int64, items []string) (int, error) {
	const op = "service.AdminService.AddInventory"

	n, err := s.inventory.AddItems(ctx, productID, items)
	if err != nil {
		s.log.Error("failed to add inventory", slog.String("op", op), slog.Any("error", err))
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("inventory added", slog.String("op", op), slog.Int64("product_id", productID), slog.Int("count", n))
	return n, nil
}

func (s *AdminService) CreateProduct(ctx context.Context, name, description string, price decimal.Decimal, mode models.DeliveryMode) (*models.Product, error) {
	const op = "service.AdminService.CreateProduct"

	name = strings.TrimSpace(name)
	if name == "" || !price.IsPositive() {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidProduct)
	}
	if mode != models.DeliveryAuto && mode != models.DeliveryManual {
		return nil, fmt.Errorf("%s: %w: unknown delivery mode %q", op, ErrInvalidProduct, mode)
	}

	product, err := s.products.CreateProduct(ctx, &models.Product{
		Name:         name,
		Description:  description,
		Price:        price,
		Currency:     s.currency,
		DeliveryMode: mode,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("product created", slog.String("op", op), slog.Int64("product_id", product.ID))
	return product, nil
}

// UpdatePrice влияет только на новые заказы.
func (s *AdminService) UpdatePrice(ctx context.Context, productID int64, price decimal.Decimal) error {
	const op = "service.AdminService.UpdatePrice"
	if !price.IsPositive() {
		return fmt.Errorf("%s: %w: price must be positive", op, ErrInvalidProduct)
	}
	if err := s.products.UpdateProductPrice(ctx, productID, price); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("price updated", slog.String("op", op), slog.Int64("product_id", productID), slog.String("price", price.String()))
	return nil
}

func (s *AdminService) SetProductEnabled(ctx context.Context, productID int64, enabled bool) error {
	if err := s.products.SetProductEnabled(ctx, productID, enabled); err != nil {
		return fmt.Errorf("service.AdminService.SetProductEnabled: %w", err)
	}
	return nil
}

func (s *AdminService) ListProducts(ctx context.Context) ([]*models.Product, error) {
	return s.products.ListProducts(ctx, false)
}

// ListOrders возвращает последние заказы, при непустом status — только в этом статусе.
func (s *AdminService) ListOrders(ctx context.Context, status models.OrderStatus) ([]*models.Order, error) {
	const op = "service.AdminService.ListOrders"
	if status == "" {
		orders, err := s.orders.ListOrders(ctx, adminOrdersLimit)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return orders, nil
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%s: unknown status %q", op, status)
	}
	orders, err := s.orders.ListOrdersByStatus(ctx, status, adminOrdersLimit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return orders, nil
}

// ManualQueue — оплаченные заказы, ждущие ручной выдачи, старые первыми.
func (s *AdminService) ManualQueue(ctx context.Context) ([]*models.Order, error) {
	orders, err := s.orders.ListOrdersByStatus(ctx, models.StatusPaid, manualQueueLimit)
	if err != nil {
		return nil, fmt.Errorf("service.AdminService.ManualQueue: %w", err)
	}
	return orders, nil
}

func (s *AdminService) Stats(ctx context.Context) (*models.Stats, error) {
	const op = "service.AdminService.Stats"
	stats, err := s.orders.OrderStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	users, err := s.users.CountUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	stats.Users = users
	return stats, nil
}

func (s *AdminService) BanUser(ctx context.Context, userID int64, banned bool) error {
	const op = "service.AdminService.BanUser"
	if err := s.users.SetUserBanned(ctx, userID, banned); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("user ban updated", slog.String("op", op), slog.Int64("user_id", userID), slog.Bool("banned", banned))
	return nil
}
