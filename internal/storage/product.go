package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/linemk/usdt-shop/internal/domain/models"
	"github.com/shopspring/decimal"
)

var ErrProductNotFound = errors.New("product not found")

// ProductStorage описывает методы для работы с товарами.
type ProductStorage interface {
	CreateProduct(ctx context.Context, product *models.Product) (*models.Product, error)
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	// ListProducts возвращает товары по возрастанию ID, при enabledOnly — только включённые.
	ListProducts(ctx context.Context, enabledOnly bool) ([]*models.Product, error)
	UpdateProductPrice(ctx context.Context, id int64, price decimal.Decimal) error
	SetProductEnabled(ctx context.Context, id int64, enabled bool) error
}

type productRepository struct {
	db *sql.DB
}

// NewProductRepository создаёт новый репозиторий товаров.
func NewProductRepository(db *sql.DB) ProductStorage {
	return &productRepository{db: db}
}

const productColumns = "id, name, description, price, currency, delivery_mode, stock_count, enabled, created_at"

func scanProduct(row rowScanner) (*models.Product, error) {
	p := &models.Product{}
	var mode string
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Currency, &mode, &p.StockCount, &p.Enabled, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.DeliveryMode = models.DeliveryMode(mode)
	return p, nil
}

func (r *productRepository) CreateProduct(ctx context.Context, product *models.Product) (*models.Product, error) {
	query := `INSERT INTO products (name, description, price, currency, delivery_mode, stock_count, enabled, created_at)
	          VALUES ($1, $2, $3, $4, $5, 0, TRUE, NOW())
	          RETURNING id, created_at`
	err := r.db.QueryRowContext(ctx, query,
		product.Name, product.Description, product.Price, product.Currency, string(product.DeliveryMode),
	).Scan(&product.ID, &product.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	product.StockCount = 0
	product.Enabled = true
	return product, nil
}

func (r *productRepository) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+productColumns+" FROM products WHERE id = $1", id)
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return product, nil
}

func (r *productRepository) ListProducts(ctx context.Context, enabledOnly bool) ([]*models.Product, error) {
	query := "SELECT " + productColumns + " FROM products"
	if enabledOnly {
		query += " WHERE enabled = TRUE"
	}
	query += " ORDER BY id"

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []*models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

// UpdateProductPrice меняет цену только для новых заказов: существующие хранят свой снимок.
func (r *productRepository) UpdateProductPrice(ctx context.Context, id int64, price decimal.Decimal) error {
	return r.execOne(ctx, "UPDATE products SET price = $1 WHERE id = $2", price, id)
}

func (r *productRepository) SetProductEnabled(ctx context.Context, id int64, enabled bool) error {
	return r.execOne(ctx, "UPDATE products SET enabled = $1 WHERE id = $2", enabled, id)
}

func (r *productRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrProductNotFound
	}
	return nil
}
