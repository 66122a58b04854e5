package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/linemk/usdt-shop/internal/domain/models"
	"github.com/linemk/usdt-shop/internal/notify"
	"github.com/linemk/usdt-shop/internal/storage"
)

// FulfillmentService выдаёт оплаченные заказы: автоматически со склада
// или через оператора. Нехватка склада не ошибка: заказ остаётся в paid.
type FulfillmentService struct {
	log       *slog.Logger
	orders    storage.OrderStorage
	inventory storage.InventoryStorage
	msg       Messenger
}

func NewFulfillmentService(log *slog.Logger, orders storage.OrderStorage, inventory storage.InventoryStorage, msg Messenger) *FulfillmentService {
	return &FulfillmentService{log: log, orders: orders, inventory: inventory, msg: msg}
}

func (s *FulfillmentService) Fulfill(ctx context.Context, orderID int64) error {
	const op = "service.FulfillmentService.Fulfill"
	logger := s.log.With(slog.String("op", op), slog.Int64("order_id", orderID))

	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		logger.Error("failed to load order", slog.Any("error", err))
		return fmt.Errorf("%s: failed to load order: %w", op, err)
	}
	if order.Status != models.StatusPaid {
		logger.Warn("order is not paid", slog.String("status", string(order.Status)))
		return fmt.Errorf("%s: %w", op, ErrStateConflict)
	}

	if order.DeliveryMode == models.DeliveryManual {
		logger.Info("manual delivery, handing over to operators")
		s.handOver(ctx, order, "manual delivery")
		return nil
	}

	item, err := s.inventory.Allocate(ctx, order.ProductID, order.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNoStock) {
			logger.Warn("out of stock, order held for operator")
			s.handOver(ctx, order, "out of stock")
			return nil
		}
		logger.Error("failed to allocate inventory", slog.Any("error", err))
		s.handOver(ctx, order, "allocation failed")
		return fmt.Errorf("%s: failed to allocate inventory: %w", op, err)
	}

	content := item.Content
	ok, err := s.orders.TransitionOrder(ctx, order.ID, models.StatusPaid, models.StatusDelivered, &content)
	if err != nil || !ok {
		// позиция уже помечена использованной и остаётся привязанной к заказу
		logger.Error("allocated item but could not mark order delivered",
			slog.Int64("item_id", item.ID), slog.Any("error", err))
		s.msg.ToOperators(ctx, fmt.Sprintf(
			"Order #%d: inventory item #%d was allocated, but the order is no longer paid. The item stays consumed; review it manually.",
			order.ID, item.ID), nil)
		if err != nil {
			return fmt.Errorf("%s: failed to mark order delivered: %w", op, err)
		}
		return fmt.Errorf("%s: %w", op, ErrStateConflict)
	}

	s.msg.ToBuyer(ctx, order.BuyerID, fmt.Sprintf("Order #%d (%s) is delivered:\n%s", order.ID, order.ProductName, content), nil)
	s.msg.ToOperators(ctx, fmt.Sprintf("Order #%d delivered automatically (%s, item #%d, %s %s).",
		order.ID, order.ProductName, item.ID, order.Amount.String(), order.Currency), nil)
	logger.Info("order delivered", slog.Int64("item_id", item.ID))
	return nil
}

// handOver оставляет заказ в paid и просит операторов выдать его вручную
func (s *FulfillmentService) handOver(ctx context.Context, order *models.Order, reason string) {
	text := fmt.Sprintf("Payment for order #%d received. An operator will deliver %s shortly.", order.ID, order.ProductName)
	if support := s.msg.SupportContact(); support != "" {
		text += " Support: " + support
	}
	s.msg.ToBuyer(ctx, order.BuyerID, text, nil)
	s.msg.ToOperators(ctx, fmt.Sprintf("Order #%d (%s, %s %s, buyer %d) is paid and needs manual delivery: %s.",
		order.ID, order.ProductName, order.Amount.String(), order.Currency, order.BuyerID, reason),
		actions(order.ID, notify.ActionDeliver))
}
