package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/linemk/usdt-shop/internal/domain/models"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid order status transition")
)

// OrderStorage описывает методы для работы с заказами.
// Статус меняется только через TransitionOrder.
type OrderStorage interface {
	// CreateOrder сохраняет заказ в статусе pending и заполняет ID и CreatedAt.
	CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error)
	// TransitionOrder — compare-and-set по статусу. Возвращает false, если текущий статус не равен from.
	TransitionOrder(ctx context.Context, id int64, from, to models.OrderStatus, content *string) (bool, error)
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	ListOrdersByBuyer(ctx context.Context, buyerID int64, limit int) ([]*models.Order, error)
	ListOrdersByStatus(ctx context.Context, status models.OrderStatus, limit int) ([]*models.Order, error)
	ListOrders(ctx context.Context, limit int) ([]*models.Order, error)
	OrderStats(ctx context.Context) (*models.Stats, error)
}

// orderRepository — реализация OrderStorage поверх PostgreSQL.
type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт новый репозиторий заказов.
func NewOrderRepository(db *sql.DB) OrderStorage {
	return &orderRepository{db: db}
}

const orderColumns = `id, buyer_id, product_id, product_name, amount, currency, delivery_mode, payment_address,
	status, delivery_content, created_at, paid_at, delivered_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var (
		order       models.Order
		mode        string
		status      string
		content     sql.NullString
		paidAt      sql.NullTime
		deliveredAt sql.NullTime
	)
	err := row.Scan(&order.ID, &order.BuyerID, &order.ProductID, &order.ProductName, &order.Amount, &order.Currency,
		&mode, &order.PaymentAddress, &status, &content, &order.CreatedAt, &paidAt, &deliveredAt, &order.UpdatedAt)
	if err != nil {
		return nil, err
	}
	order.DeliveryMode = models.DeliveryMode(mode)
	order.Status = models.OrderStatus(status)
	if content.Valid {
		order.DeliveryContent = &content.String
	}
	if paidAt.Valid {
		order.PaidAt = &paidAt.Time
	}
	if deliveredAt.Valid {
		order.DeliveredAt = &deliveredAt.Time
	}
	return &order, nil
}

// CreateOrder вставляет новый заказ. Цена и способ выдачи берутся из переданного снимка товара.
func (r *orderRepository) CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	query := `INSERT INTO orders (buyer_id, product_id, product_name, amount, currency, delivery_mode, payment_address, status, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', NOW(), NOW())
	          RETURNING id, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query,
		order.BuyerID, order.ProductID, order.ProductName, order.Amount, order.Currency,
		string(order.DeliveryMode), order.PaymentAddress,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	order.Status = models.StatusPending
	return order, nil
}

// TransitionOrder выполняет условный UPDATE: строка меняется только если статус всё ещё from.
// Из двух конкурентных вызовов с одинаковым from успешен ровно один.
func (r *orderRepository) TransitionOrder(ctx context.Context, id int64, from, to models.OrderStatus, content *string) (bool, error) {
	if !models.CanTransition(from, to) {
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	now := time.Now().UTC()
	var (
		contentArg  sql.NullString
		paidAt      sql.NullTime
		deliveredAt sql.NullTime
	)
	if content != nil {
		contentArg = sql.NullString{String: *content, Valid: true}
	}
	switch to {
	case models.StatusPaid:
		paidAt = sql.NullTime{Time: now, Valid: true}
	case models.StatusDelivered:
		deliveredAt = sql.NullTime{Time: now, Valid: true}
	}

	query := `UPDATE orders
	          SET status = $1, delivery_content = COALESCE($2, delivery_content),
	              paid_at = COALESCE($3, paid_at), delivered_at = COALESCE($4, delivered_at), updated_at = $5
	          WHERE id = $6 AND status = $7`
	res, err := r.db.ExecContext(ctx, query, string(to), contentArg, paidAt, deliveredAt, now, id, string(from))
	if err != nil {
		return false, fmt.Errorf("failed to transition order %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *orderRepository) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}

// ListOrdersByBuyer возвращает последние заказы покупателя, новые первыми.
func (r *orderRepository) ListOrdersByBuyer(ctx context.Context, buyerID int64, limit int) ([]*models.Order, error) {
	query := "SELECT " + orderColumns + ` FROM orders WHERE buyer_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`
	return r.queryOrders(ctx, query, buyerID, limit)
}

// ListOrdersByStatus возвращает заказы в статусе, старые первыми — в порядке очереди.
func (r *orderRepository) ListOrdersByStatus(ctx context.Context, status models.OrderStatus, limit int) ([]*models.Order, error) {
	query := "SELECT " + orderColumns + ` FROM orders WHERE status = $1 ORDER BY created_at ASC, id ASC LIMIT $2`
	return r.queryOrders(ctx, query, string(status), limit)
}

func (r *orderRepository) ListOrders(ctx context.Context, limit int) ([]*models.Order, error) {
	query := "SELECT " + orderColumns + ` FROM orders ORDER BY created_at DESC, id DESC LIMIT $1`
	return r.queryOrders(ctx, query, limit)
}

func (r *orderRepository) queryOrders(ctx context.Context, query string, args ...any) ([]*models.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

// OrderStats считает выданные заказы, выручку по ним и открытые заказы.
// Пользователей считает UserStorage.
func (r *orderRepository) OrderStats(ctx context.Context) (*models.Stats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'delivered'),
			COALESCE(SUM(amount) FILTER (WHERE status = 'delivered'), 0),
			COUNT(*) FILTER (WHERE status IN ('pending', 'confirming', 'paid'))
		FROM orders`
	stats := &models.Stats{}
	if err := r.db.QueryRowContext(ctx, query).Scan(&stats.Delivered, &stats.Revenue, &stats.OpenOrders); err != nil {
		return nil, fmt.Errorf("failed to query order stats: %w", err)
	}
	return stats, nil
}
