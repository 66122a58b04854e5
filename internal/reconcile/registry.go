// Package reconcile следит за оплатой заказов: на каждый заказ в статусе pending
// запускается отдельный воркер, который опрашивает блокчейн до оплаты или таймаута.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/linemk/usdt-shop/internal/domain/models"
	"github.com/linemk/usdt-shop/internal/notify"
	"github.com/linemk/usdt-shop/internal/storage"
	"github.com/shopspring/decimal"
)

// сколько pending-заказов поднимается при старте за один раз
const resumeLimit = 10000

// Probe сообщает, виден ли на адресе подходящий перевод.
type Probe interface {
	ObserveTransfer(ctx context.Context, address string, since time.Time, expected, tolerance decimal.Decimal) bool
}

// Fulfiller выдаёт оплаченный заказ
type Fulfiller interface {
	Fulfill(ctx context.Context, orderID int64) error
}

type BuyerNotifier interface {
	ToBuyer(ctx context.Context, buyerID int64, text string, payload *notify.Payload)
}

type Config struct {
	Timeout   time.Duration
	Interval  time.Duration
	Tolerance decimal.Decimal
}

type worker struct {
	cancel context.CancelFunc
}

// Registry владеет воркерами: не больше одного на заказ.
type Registry struct {
	log       *slog.Logger
	cfg       Config
	orders    storage.OrderStorage
	probe     Probe
	fulfiller Fulfiller
	notifier  BuyerNotifier

	mu       sync.Mutex
	workers  map[int64]*worker
	stopping bool
	wg       sync.WaitGroup
}

func NewRegistry(
	log *slog.Logger,
	cfg Config,
	orders storage.OrderStorage,
	probe Probe,
	fulfiller Fulfiller,
	notifier BuyerNotifier,
) *Registry {
	return &Registry{
		log:       log,
		cfg:       cfg,
		orders:    orders,
		probe:     probe,
		fulfiller: fulfiller,
		notifier:  notifier,
		workers:   make(map[int64]*worker),
	}
}

// Spawn запускает воркер для заказа. Возвращает false, если воркер уже есть
// или реестр останавливается.
func (r *Registry) Spawn(order *models.Order) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopping {
		return false
	}
	if _, ok := r.workers[order.ID]; ok {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.workers[order.ID] = &worker{cancel: cancel}
	r.wg.Add(1)

	snapshot := *order
	go r.run(ctx, &snapshot)
	return true
}

// Cancel будит и останавливает воркер заказа. Статус заказа не меняется.
func (r *Registry) Cancel(orderID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workers[orderID]
	if ok {
		w.cancel()
	}
	return ok
}

// Active — число работающих воркеров
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workers)
}

// Resume поднимает воркеры для заказов, оставшихся в pending после рестарта.
// Просроченные отменяются сразу при старте воркера.
func (r *Registry) Resume(ctx context.Context) (int, error) {
	const op = "reconcile.Registry.Resume"

	orders, err := r.orders.ListOrdersByStatus(ctx, models.StatusPending, resumeLimit)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n := 0
	for _, o := range orders {
		if r.Spawn(o) {
			n++
		}
	}
	r.log.Info("reconciliation workers resumed", slog.String("op", op), slog.Int("count", n))
	return n, nil
}

// Shutdown останавливает все воркеры и ждёт их завершения.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.stopping = true
	for _, w := range r.workers {
		w.cancel()
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Registry) remove(orderID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.workers[orderID]; ok {
		w.cancel()
		delete(r.workers, orderID)
	}
}
