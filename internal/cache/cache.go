// Package cache кэширует заказы в Redis поверх OrderStorage.
// Источник истины — база. В Redis попадают только заказы в терминальном статусе:
// они больше не меняются, поэтому запись не может устареть. Ошибки Redis только логируются.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/linemk/usdt-shop/internal/domain/models"
	"github.com/linemk/usdt-shop/internal/storage"
	"github.com/redis/go-redis/v9"
)

// Client — подмножество команд Redis, которое нужно кэшу. *redis.Client его реализует.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// NewClient создаёт клиента Redis с короткими таймаутами
func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})
}

// OrderCache — декоратор OrderStorage с кэшированием GetOrderByID для завершённых заказов.
type OrderCache struct {
	storage.OrderStorage
	rdb Client
	ttl time.Duration
	log *slog.Logger
}

var _ storage.OrderStorage = (*OrderCache)(nil)

func NewOrderCache(log *slog.Logger, next storage.OrderStorage, rdb Client, ttl time.Duration) *OrderCache {
	return &OrderCache{OrderStorage: next, rdb: rdb, ttl: ttl, log: log}
}

func orderKey(id int64) string {
	return fmt.Sprintf("order:%d", id)
}

func (c *OrderCache) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	const op = "cache.OrderCache.GetOrderByID"
	log := c.log.With(slog.String("op", op), slog.Int64("order_id", id))

	raw, err := c.rdb.Get(ctx, orderKey(id)).Bytes()
	switch {
	case err == nil:
		var order models.Order
		if err := json.Unmarshal(raw, &order); err == nil {
			return &order, nil
		}
		log.Warn("dropping undecodable cache entry")
	case !errors.Is(err, redis.Nil):
		log.Warn("redis get failed", slog.String("error", err.Error()))
	}

	order, err := c.OrderStorage.GetOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	// незавершённый заказ может смениться между чтением и Set
	if !order.Status.IsTerminal() {
		return order, nil
	}

	if raw, err := json.Marshal(order); err == nil {
		if err := c.rdb.Set(ctx, orderKey(id), raw, c.ttl).Err(); err != nil {
			log.Warn("redis set failed", slog.String("error", err.Error()))
		}
	}
	return order, nil
}

// TransitionOrder делегирует переход базе и сбрасывает запись, если переход применён.
func (c *OrderCache) TransitionOrder(ctx context.Context, id int64, from, to models.OrderStatus, content *string) (bool, error) {
	ok, err := c.OrderStorage.TransitionOrder(ctx, id, from, to, content)
	if err != nil || !ok {
		return ok, err
	}
	if err := c.rdb.Del(ctx, orderKey(id)).Err(); err != nil {
		c.log.Warn("redis del failed",
			slog.String("op", "cache.OrderCache.TransitionOrder"),
			slog.Int64("order_id", id),
			slog.String("error", err.Error()),
		)
	}
	return true, nil
}
