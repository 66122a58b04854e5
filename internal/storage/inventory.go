package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/linemk/usdt-shop/internal/domain/models"
)

var (
	// ErrNoStock — свободных позиций нет, заказ уходит на ручную выдачу.
	ErrNoStock = errors.New("no unused inventory items")
	// ErrOrderAlreadyHasItem — к заказу уже привязана позиция.
	ErrOrderAlreadyHasItem = errors.New("order already has an inventory item")
)

// InventoryStorage описывает склад одноразовых позиций.
type InventoryStorage interface {
	// AddItems добавляет позиции товару и пересчитывает остаток. Пустые строки пропускаются.
	AddItems(ctx context.Context, productID int64, contents []string) (int, error)
	// Allocate атомарно забирает одну свободную позицию под заказ.
	Allocate(ctx context.Context, productID, orderID int64) (*models.InventoryItem, error)
}

type inventoryRepository struct {
	db *sql.DB
}

func NewInventoryRepository(db *sql.DB) InventoryStorage {
	return &inventoryRepository{db: db}
}

// CleanContents обрезает пробелы и выкидывает пустые строки
func CleanContents(contents []string) []string {
	out := make([]string, 0, len(contents))
	for _, c := range contents {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

func (r *inventoryRepository) AddItems(ctx context.Context, productID int64, contents []string) (int, error) {
	contents = CleanContents(contents)
	if len(contents) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	if err := tx.QueryRowContext(ctx, "SELECT id FROM products WHERE id = $1 FOR UPDATE", productID).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrProductNotFound
		}
		return 0, err
	}

	for _, content := range contents {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO inventory_items (product_id, content, created_at) VALUES ($1, $2, NOW())",
			productID, content,
		); err != nil {
			return 0, fmt.Errorf("failed to insert inventory item: %w", err)
		}
	}

	if err := refreshStock(ctx, tx, productID); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return len(contents), nil
}

// Allocate помечает одну позицию использованной одним UPDATE.
// SKIP LOCKED не даёт двум транзакциям забрать одну и ту же строку,
// условие consumed = FALSE повторно проверяется после блокировки.
func (r *inventoryRepository) Allocate(ctx context.Context, productID, orderID int64) (*models.InventoryItem, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		UPDATE inventory_items
		SET consumed = TRUE, order_id = $2, consumed_at = NOW()
		WHERE id = (
			SELECT id FROM inventory_items
			WHERE product_id = $1 AND consumed = FALSE
			ORDER BY id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		) AND consumed = FALSE
		RETURNING id, product_id, content, created_at, consumed_at`

	item := &models.InventoryItem{}
	var consumedAt sql.NullTime
	err = tx.QueryRowContext(ctx, query, productID, orderID).
		Scan(&item.ID, &item.ProductID, &item.Content, &item.CreatedAt, &consumedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoStock
		}
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" { // unique_violation по order_id
			return nil, ErrOrderAlreadyHasItem
		}
		return nil, fmt.Errorf("failed to allocate inventory item: %w", err)
	}
	item.Consumed = true
	item.OrderID = &orderID
	if consumedAt.Valid {
		item.ConsumedAt = &consumedAt.Time
	}

	if err := refreshStock(ctx, tx, productID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return item, nil
}

// refreshStock пересчитывает видимый остаток товара
func refreshStock(ctx context.Context, tx *sql.Tx, productID int64) error {
	query := `UPDATE products
	          SET stock_count = (SELECT COUNT(*) FROM inventory_items WHERE product_id = $1 AND consumed = FALSE)
	          WHERE id = $1`
	if _, err := tx.ExecContext(ctx, query, productID); err != nil {
		return fmt.Errorf("failed to refresh stock count: %w", err)
	}
	return nil
}
