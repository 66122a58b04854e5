package storage_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/linemk/usdt-shop/internal/domain/models"
	"github.com/linemk/usdt-shop/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var orderCols = []string{
	"id", "buyer_id", "product_id", "product_name", "amount", "currency", "delivery_mode", "payment_address",
	"status", "delivery_content", "created_at", "paid_at", "delivered_at", "updated_at",
}

func TestGetUserByID_Success(t *testing.T) {
	// Создаем sqlmock для эмуляции базы данных.
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := storage.NewUserRepository(db)
	ctx := context.Background()
	userID := int64(1)
	created := time.Now()

	rows := sqlmock.NewRows([]string{"id", "username", "pass_hash", "banned", "created_at"}).
		AddRow(userID, "alice", []byte("hashed-password"), false, created)
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1")).
		WithArgs(userID).WillReturnRows(rows)

	user, err := repo.GetUserByID(ctx, userID)
	assert.NoError(t, err, "Expected no error when user is found")
	assert.Equal(t, userID, user.ID)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, []byte("hashed-password"), user.PassHash)
	assert.False(t, user.Banned)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserByID_NoRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := storage.NewUserRepository(db)

	// Эмулируем ситуацию, когда запрос возвращает 0 строк.
	rows := sqlmock.NewRows([]string{"id", "username", "pass_hash", "banned", "created_at"})
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1")).
		WithArgs(int64(2)).WillReturnRows(rows)

	user, err := repo.GetUserByID(context.Background(), 2)
	assert.ErrorIs(t, err, storage.ErrUserNotFound)
	assert.Nil(t, user, "User should be nil when not found")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetUserBanned_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := storage.NewUserRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET banned = $1 WHERE id = $2")).
		WithArgs(true, int64(9)).WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.SetUserBanned(context.Background(), 9, true)
	assert.ErrorIs(t, err, storage.ErrUserNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrder_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := storage.NewOrderRepository(db)
	now := time.Now()
	order := &models.Order{
		BuyerID:        7,
		ProductID:      3,
		ProductName:    "VPN key",
		Amount:         decimal.RequireFromString("9.90"),
		Currency:       "USDT",
		DeliveryMode:   models.DeliveryAuto,
		PaymentAddress: "TWallet",
	}

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO orders")).
		WithArgs(int64(7), int64(3), "VPN key", sqlmock.AnyArg(), "USDT", "auto", "TWallet").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(11, now, now))

	created, err := repo.CreateOrder(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, int64(11), created.ID)
	assert.Equal(t, models.StatusPending, created.Status)
	assert.Equal(t, now, created.CreatedAt)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionOrder(t *testing.T) {
	query := regexp.QuoteMeta("UPDATE orders SET status = $1")

	t.Run("applied when status matches", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := storage.NewOrderRepository(db)
		mock.ExpectExec(query).
			WithArgs("paid", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), int64(5), "pending").
			WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := repo.TransitionOrder(context.Background(), 5, models.StatusPending, models.StatusPaid, nil)
		assert.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lost race reports false", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := storage.NewOrderRepository(db)
		mock.ExpectExec(query).
			WithArgs("cancelled", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), int64(5), "pending").
			WillReturnResult(sqlmock.NewResult(0, 0))

		ok, err := repo.TransitionOrder(context.Background(), 5, models.StatusPending, models.StatusCancelled, nil)
		assert.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("delivery content is written", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := storage.NewOrderRepository(db)
		content := "KEY-123"
		mock.ExpectExec(query).
			WithArgs("delivered", content, nil, sqlmock.AnyArg(), sqlmock.AnyArg(), int64(5), "paid").
			WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := repo.TransitionOrder(context.Background(), 5, models.StatusPaid, models.StatusDelivered, &content)
		assert.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("edge outside the table never reaches the database", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := storage.NewOrderRepository(db)
		ok, err := repo.TransitionOrder(context.Background(), 5, models.StatusDelivered, models.StatusPending, nil)
		assert.ErrorIs(t, err, storage.ErrInvalidTransition)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGetOrderByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := storage.NewOrderRepository(db)
	now := time.Now()

	rows := sqlmock.NewRows(orderCols).
		AddRow(4, 7, 3, "VPN key", "9.900000", "USDT", "auto", "TWallet", "delivered", "KEY-1", now, now, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM orders WHERE id = $1")).WithArgs(int64(4)).WillReturnRows(rows)

	order, err := repo.GetOrderByID(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDelivered, order.Status)
	assert.True(t, decimal.RequireFromString("9.9").Equal(order.Amount))
	require.NotNil(t, order.DeliveryContent)
	assert.Equal(t, "KEY-1", *order.DeliveryContent)
	assert.NotNil(t, order.DeliveredAt)

	mock.ExpectQuery(regexp.QuoteMeta("FROM orders WHERE id = $1")).WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows(orderCols))
	_, err = repo.GetOrderByID(context.Background(), 5)
	assert.ErrorIs(t, err, storage.ErrOrderNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListOrdersByBuyer(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := storage.NewOrderRepository(db)
	now := time.Now()
	rows := sqlmock.NewRows(orderCols).
		AddRow(2, 7, 3, "VPN key", "19.9", "USDT", "auto", "TWallet", "pending", nil, now, nil, nil, now).
		AddRow(1, 7, 3, "VPN key", "9.9", "USDT", "auto", "TWallet", "cancelled", nil, now.Add(-time.Hour), nil, nil, now)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE buyer_id = $1 ORDER BY created_at DESC")).
		WithArgs(int64(7), 10).WillReturnRows(rows)

	orders, err := repo.ListOrdersByBuyer(context.Background(), 7, 10)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, int64(2), orders[0].ID)
	assert.Nil(t, orders[0].DeliveryContent)
	assert.Nil(t, orders[0].PaidAt)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAllocate_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := storage.NewInventoryRepository(db)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE SKIP LOCKED")).
		WithArgs(int64(3), int64(11)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "product_id", "content", "created_at", "consumed_at"}).
			AddRow(21, 3, "KEY-21", now, now))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE products SET stock_count")).
		WithArgs(int64(3)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	item, err := repo.Allocate(context.Background(), 3, 11)
	require.NoError(t, err)
	assert.Equal(t, int64(21), item.ID)
	assert.Equal(t, "KEY-21", item.Content)
	assert.True(t, item.Consumed)
	require.NotNil(t, item.OrderID)
	assert.Equal(t, int64(11), *item.OrderID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAllocate_NoStock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := storage.NewInventoryRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE SKIP LOCKED")).
		WithArgs(int64(3), int64(11)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "product_id", "content", "created_at", "consumed_at"}))
	mock.ExpectRollback()

	item, err := repo.Allocate(context.Background(), 3, 11)
	assert.ErrorIs(t, err, storage.ErrNoStock)
	assert.Nil(t, item)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAllocate_OrderAlreadyBound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := storage.NewInventoryRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE SKIP LOCKED")).
		WithArgs(int64(3), int64(11)).
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	_, err = repo.Allocate(context.Background(), 3, 11)
	assert.ErrorIs(t, err, storage.ErrOrderAlreadyHasItem)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddItems(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := storage.NewInventoryRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM products WHERE id = $1 FOR UPDATE")).
		WithArgs(int64(3)).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO inventory_items")).
		WithArgs(int64(3), "A").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO inventory_items")).
		WithArgs(int64(3), "B").WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE products SET stock_count")).
		WithArgs(int64(3)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := repo.AddItems(context.Background(), 3, []string{" A ", "", "  ", "B"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddItems_UnknownProduct(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := storage.NewInventoryRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM products WHERE id = $1 FOR UPDATE")).
		WithArgs(int64(99)).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err = repo.AddItems(context.Background(), 99, []string{"A"})
	assert.True(t, errors.Is(err, storage.ErrProductNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListProducts_EnabledOnly(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := storage.NewProductRepository(db)
	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "name", "description", "price", "currency", "delivery_mode", "stock_count", "enabled", "created_at"}).
		AddRow(1, "VPN key", "30 days", "9.90", "USDT", "auto", 4, true, now)

	mock.ExpectQuery(regexp.QuoteMeta("FROM products WHERE enabled = TRUE ORDER BY id")).WillReturnRows(rows)

	products, err := repo.ListProducts(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, models.DeliveryAuto, products[0].DeliveryMode)
	assert.Equal(t, 4, products[0].StockCount)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateProductPrice_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := storage.NewProductRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE products SET price = $1 WHERE id = $2")).
		WithArgs(sqlmock.AnyArg(), int64(42)).WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.UpdateProductPrice(context.Background(), 42, decimal.NewFromInt(5))
	assert.ErrorIs(t, err, storage.ErrProductNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderStats(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := storage.NewOrderRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("FROM orders")).
		WillReturnRows(sqlmock.NewRows([]string{"delivered", "revenue", "open"}).AddRow(3, "29.70", 2))

	stats, err := repo.OrderStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Delivered)
	assert.Equal(t, 2, stats.OpenOrders)
	assert.True(t, decimal.RequireFromString("29.7").Equal(stats.Revenue))
	assert.NoError(t, mock.ExpectationsWereMet())
}
