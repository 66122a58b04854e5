package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/linemk/usdt-shop/internal/domain/models"
)

func (r *Registry) run(ctx context.Context, order *models.Order) {
	log := r.log.With(
		slog.String("op", "reconcile.worker"),
		slog.Int64("order_id", order.ID),
	)
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("reconciliation worker panicked", slog.Any("panic", rec))
		}
		r.remove(order.ID)
		r.wg.Done()
	}()

	deadline := order.CreatedAt.Add(r.cfg.Timeout)
	if !time.Now().Before(deadline) {
		r.expire(ctx, log, order)
		return
	}

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	log.Debug("watching for payment", slog.Time("deadline", deadline))
	for {
		select {
		case <-ctx.Done():
			log.Debug("worker stopped")
			return
		case <-timer.C:
			r.expire(ctx, log, order)
			return
		case <-ticker.C:
			if !time.Now().Before(deadline) {
				r.expire(ctx, log, order)
				return
			}
			if r.check(ctx, log, order.ID, deadline) {
				return
			}
		}
	}
}

// check выполняет одну итерацию опроса. true — воркер больше не нужен.
// Опрос ограничен дедлайном заказа: после него оплата не засчитывается.
func (r *Registry) check(ctx context.Context, log *slog.Logger, orderID int64, deadline time.Time) bool {
	current, err := r.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		log.Warn("failed to reload order", slog.String("error", err.Error()))
		return false
	}
	if current.Status != models.StatusPending {
		return true
	}

	probeCtx, cancel := context.WithDeadline(ctx, deadline)
	observed := r.probe.ObserveTransfer(probeCtx, current.PaymentAddress, current.CreatedAt, current.Amount, r.cfg.Tolerance)
	cancel()
	if !time.Now().Before(deadline) {
		r.expire(ctx, log, current)
		return true
	}
	if !observed {
		return false
	}

	ok, err := r.orders.TransitionOrder(ctx, orderID, models.StatusPending, models.StatusPaid, nil)
	if err != nil {
		log.Error("failed to mark order paid", slog.String("error", err.Error()))
		return false
	}
	if !ok {
		log.Info("order left pending before payment was recorded")
		return true
	}

	log.Info("payment confirmed on chain", slog.String("amount", current.Amount.String()))
	// выдача не должна прерываться остановкой воркера
	if err := r.fulfiller.Fulfill(context.WithoutCancel(ctx), orderID); err != nil {
		log.Error("fulfillment failed", slog.String("error", err.Error()))
	}
	return true
}

func (r *Registry) expire(ctx context.Context, log *slog.Logger, order *models.Order) {
	ok, err := r.orders.TransitionOrder(ctx, order.ID, models.StatusPending, models.StatusCancelled, nil)
	if err != nil {
		log.Error("failed to cancel expired order", slog.String("error", err.Error()))
		return
	}
	if !ok {
		return
	}
	log.Info("order cancelled by payment timeout")
	r.notifier.ToBuyer(ctx, order.BuyerID,
		fmt.Sprintf("Order #%d was cancelled: no payment of %s %s arrived within %s.",
			order.ID, order.Amount.String(), order.Currency, r.cfg.Timeout),
		nil,
	)
}
