package service_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/linemk/usdt-shop/internal/domain/models"
	"github.com/linemk/usdt-shop/internal/notify"
	"github.com/linemk/usdt-shop/internal/service"
	"github.com/linemk/usdt-shop/internal/storage/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMessage struct {
	to      string
	buyerID int64
	text    string
	payload *notify.Payload
}

type fakeMessenger struct {
	mu   sync.Mutex
	sent []sentMessage
}

var _ service.Messenger = (*fakeMessenger)(nil)

func (m *fakeMessenger) ToBuyer(_ context.Context, buyerID int64, text string, payload *notify.Payload) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMessage{to: "buyer", buyerID: buyerID, text: text, payload: payload})
}

func (m *fakeMessenger) ToOperators(_ context.Context, text string, payload *notify.Payload) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMessage{to: "operators", text: text, payload: payload})
}

func (m *fakeMessenger) SupportContact() string { return "@support" }

// operatorActions возвращает действия из сообщений операторам по заказу
func (m *fakeMessenger) operatorActions(orderID int64) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kinds []string
	for _, s := range m.sent {
		if s.to != "operators" || s.payload == nil {
			continue
		}
		for _, a := range s.payload.Actions {
			if a.OrderID == orderID {
				kinds = append(kinds, a.Kind)
			}
		}
	}
	return kinds
}

func (m *fakeMessenger) buyerTexts(buyerID int64) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var texts []string
	for _, s := range m.sent {
		if s.to == "buyer" && s.buyerID == buyerID {
			texts = append(texts, s.text)
		}
	}
	return texts
}

type fakeWatcher struct {
	mu        sync.Mutex
	spawned   []int64
	cancelled []int64
}

var _ service.Watcher = (*fakeWatcher)(nil)

func (w *fakeWatcher) Spawn(order *models.Order) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.spawned = append(w.spawned, order.ID)
	return true
}

func (w *fakeWatcher) Cancel(orderID int64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cancelled = append(w.cancelled, orderID)
	return true
}

type shop struct {
	store       *memory.Store
	msg         *fakeMessenger
	watcher     *fakeWatcher
	purchases   *service.PurchaseService
	fulfillment *service.FulfillmentService
	admin       *service.AdminService
}

func newShop(t *testing.T) *shop {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()
	msg := &fakeMessenger{}
	watcher := &fakeWatcher{}
	fulfillment := service.NewFulfillmentService(log, store, store, msg)
	return &shop{
		store:       store,
		msg:         msg,
		watcher:     watcher,
		fulfillment: fulfillment,
		purchases: service.NewPurchaseService(log, store, store, store, watcher, msg, service.PaymentSettings{
			WalletAddress: "TWallet",
			Timeout:       30 * time.Minute,
		}),
		admin: service.NewAdminService(log, store, store, store, store, fulfillment, msg, "USDT"),
	}
}

func (s *shop) buyer(t *testing.T, name string) int64 {
	t.Helper()
	u, err := s.store.CreateUser(context.Background(), &models.User{Username: name, PassHash: []byte("x")})
	require.NoError(t, err)
	return u.ID
}

func (s *shop) product(t *testing.T, price string, mode models.DeliveryMode, items ...string) *models.Product {
	t.Helper()
	ctx := context.Background()
	p, err := s.admin.CreateProduct(ctx, "VPN key", "30 days", decimal.RequireFromString(price), mode)
	require.NoError(t, err)
	if len(items) > 0 {
		n, err := s.admin.AddInventory(ctx, p.ID, items)
		require.NoError(t, err)
		require.Equal(t, len(items), n)
	}
	return p
}

// pay имитирует воркер, увидевший перевод
func (s *shop) pay(t *testing.T, orderID int64) {
	t.Helper()
	ok, err := s.store.TransitionOrder(context.Background(), orderID, models.StatusPending, models.StatusPaid, nil)
	require.NoError(t, err)
	require.True(t, ok)
}

func (s *shop) status(t *testing.T, orderID int64) models.OrderStatus {
	t.Helper()
	o, err := s.store.GetOrderByID(context.Background(), orderID)
	require.NoError(t, err)
	return o.Status
}

func TestCreatePurchase_SnapshotsPrice(t *testing.T) {
	s := newShop(t)
	ctx := context.Background()
	p := s.product(t, "9.90", models.DeliveryManual)
	alice, bob := s.buyer(t, "alice"), s.buyer(t, "bob")

	first, err := s.purchases.CreatePurchase(ctx, alice, p.ID)
	require.NoError(t, err)

	require.NoError(t, s.admin.UpdatePrice(ctx, p.ID, decimal.RequireFromString("19.90")))

	second, err := s.purchases.CreatePurchase(ctx, bob, p.ID)
	require.NoError(t, err)

	stored, err := s.store.GetOrderByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "9.9", stored.Amount.String())
	assert.Equal(t, "19.9", second.Amount.String())
	assert.Equal(t, "TWallet", stored.PaymentAddress)
	assert.Equal(t, models.StatusPending, stored.Status)

	assert.Equal(t, []int64{first.ID, second.ID}, s.watcher.spawned)
	require.Len(t, s.msg.buyerTexts(alice), 1)
	assert.Contains(t, s.msg.buyerTexts(alice)[0], "9.9 USDT")
}

func TestCreatePurchase_Refusals(t *testing.T) {
	s := newShop(t)
	ctx := context.Background()
	buyer := s.buyer(t, "alice")

	empty := s.product(t, "5", models.DeliveryAuto)
	_, err := s.purchases.CreatePurchase(ctx, buyer, empty.ID)
	assert.ErrorIs(t, err, service.ErrOutOfStock)

	disabled := s.product(t, "5", models.DeliveryManual)
	require.NoError(t, s.admin.SetProductEnabled(ctx, disabled.ID, false))
	_, err = s.purchases.CreatePurchase(ctx, buyer, disabled.ID)
	assert.ErrorIs(t, err, service.ErrProductUnavailable)

	_, err = s.purchases.CreatePurchase(ctx, buyer, 999)
	assert.True(t, service.IsNotFound(err))

	stocked := s.product(t, "5", models.DeliveryAuto, "KEY")
	require.NoError(t, s.admin.BanUser(ctx, buyer, true))
	_, err = s.purchases.CreatePurchase(ctx, buyer, stocked.ID)
	assert.ErrorIs(t, err, service.ErrUserBanned)

	orders, err := s.purchases.ListOrders(ctx, buyer)
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Empty(t, s.watcher.spawned)
}

func TestFulfill_TwoBuyersOneItem(t *testing.T) {
	s := newShop(t)
	ctx := context.Background()
	p := s.product(t, "9.90", models.DeliveryAuto, "ONLY-KEY")
	alice, bob := s.buyer(t, "alice"), s.buyer(t, "bob")

	// оба заказа создаются, пока на складе есть позиция
	a, err := s.purchases.CreatePurchase(ctx, alice, p.ID)
	require.NoError(t, err)
	b, err := s.purchases.CreatePurchase(ctx, bob, p.ID)
	require.NoError(t, err)
	s.pay(t, a.ID)
	s.pay(t, b.ID)

	var wg sync.WaitGroup
	for _, id := range []int64{a.ID, b.ID} {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			assert.NoError(t, s.fulfillment.Fulfill(ctx, id))
		}(id)
	}
	wg.Wait()

	statuses := []models.OrderStatus{s.status(t, a.ID), s.status(t, b.ID)}
	assert.ElementsMatch(t, []models.OrderStatus{models.StatusDelivered, models.StatusPaid}, statuses)

	held := b.ID
	if statuses[0] == models.StatusPaid {
		held = a.ID
	}
	assert.Equal(t, []string{notify.ActionDeliver}, s.msg.operatorActions(held))

	queue, err := s.admin.ManualQueue(ctx)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, held, queue[0].ID)

	product, err := s.store.GetProductByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, product.StockCount)
}

func TestFulfill_AutoDeliversContent(t *testing.T) {
	s := newShop(t)
	ctx := context.Background()
	p := s.product(t, "9.90", models.DeliveryAuto, "KEY-1")
	buyer := s.buyer(t, "alice")

	o, err := s.purchases.CreatePurchase(ctx, buyer, p.ID)
	require.NoError(t, err)
	s.pay(t, o.ID)
	require.NoError(t, s.fulfillment.Fulfill(ctx, o.ID))

	got, err := s.purchases.GetOrder(ctx, buyer, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDelivered, got.Status)
	require.NotNil(t, got.DeliveryContent)
	assert.Equal(t, "KEY-1", *got.DeliveryContent)
	assert.NotNil(t, got.DeliveredAt)

	texts := s.msg.buyerTexts(buyer)
	assert.Contains(t, texts[len(texts)-1], "KEY-1")

	// повторная выдача не трогает выданный заказ
	assert.ErrorIs(t, s.fulfillment.Fulfill(ctx, o.ID), service.ErrStateConflict)
}

func TestFulfill_ManualProductWaitsForOperator(t *testing.T) {
	s := newShop(t)
	ctx := context.Background()
	p := s.product(t, "25", models.DeliveryManual)
	buyer := s.buyer(t, "alice")

	o, err := s.purchases.CreatePurchase(ctx, buyer, p.ID)
	require.NoError(t, err)
	s.pay(t, o.ID)
	require.NoError(t, s.fulfillment.Fulfill(ctx, o.ID))

	assert.Equal(t, models.StatusPaid, s.status(t, o.ID))
	assert.Equal(t, []string{notify.ActionDeliver}, s.msg.operatorActions(o.ID))

	assert.ErrorIs(t, s.admin.ManualDeliver(ctx, o.ID, " \n\t "), service.ErrInvalidDelivery)
	assert.Equal(t, models.StatusPaid, s.status(t, o.ID))

	require.NoError(t, s.admin.ManualDeliver(ctx, o.ID, "  login: a / pass: b "))
	got, err := s.store.GetOrderByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDelivered, got.Status)
	assert.Equal(t, "login: a / pass: b", *got.DeliveryContent)

	assert.ErrorIs(t, s.admin.ManualDeliver(ctx, o.ID, "again"), service.ErrStateConflict)
}

func TestMarkPaymentSent_ConfirmFlow(t *testing.T) {
	s := newShop(t)
	ctx := context.Background()
	p := s.product(t, "9.90", models.DeliveryAuto, "KEY-1")
	buyer := s.buyer(t, "alice")

	o, err := s.purchases.CreatePurchase(ctx, buyer, p.ID)
	require.NoError(t, err)

	require.NoError(t, s.purchases.MarkPaymentSent(ctx, buyer, o.ID))
	assert.Equal(t, models.StatusConfirming, s.status(t, o.ID))
	assert.Equal(t, []int64{o.ID}, s.watcher.cancelled)
	assert.Equal(t, []string{notify.ActionConfirm, notify.ActionReject}, s.msg.operatorActions(o.ID))

	// покупатель не может отменить заказ на проверке
	assert.ErrorIs(t, s.purchases.CancelPurchase(ctx, buyer, o.ID), service.ErrOrderNotPending)

	require.NoError(t, s.admin.Confirm(ctx, o.ID))
	assert.Equal(t, models.StatusDelivered, s.status(t, o.ID))

	assert.ErrorIs(t, s.admin.Confirm(ctx, o.ID), service.ErrStateConflict)
	assert.ErrorIs(t, s.admin.Reject(ctx, o.ID), service.ErrStateConflict)
}

func TestReject(t *testing.T) {
	s := newShop(t)
	ctx := context.Background()
	p := s.product(t, "9.90", models.DeliveryManual)
	buyer := s.buyer(t, "alice")

	confirming, err := s.purchases.CreatePurchase(ctx, buyer, p.ID)
	require.NoError(t, err)
	require.NoError(t, s.purchases.MarkPaymentSent(ctx, buyer, confirming.ID))
	require.NoError(t, s.admin.Reject(ctx, confirming.ID))
	assert.Equal(t, models.StatusRejected, s.status(t, confirming.ID))

	paid, err := s.purchases.CreatePurchase(ctx, buyer, p.ID)
	require.NoError(t, err)
	s.pay(t, paid.ID)
	require.NoError(t, s.admin.Reject(ctx, paid.ID))
	assert.Equal(t, models.StatusRejected, s.status(t, paid.ID))

	pending, err := s.purchases.CreatePurchase(ctx, buyer, p.ID)
	require.NoError(t, err)
	assert.ErrorIs(t, s.admin.Reject(ctx, pending.ID), service.ErrStateConflict)
	assert.Equal(t, models.StatusPending, s.status(t, pending.ID))

	assert.True(t, service.IsNotFound(s.admin.Reject(ctx, 999)))
}

func TestCancelPurchase(t *testing.T) {
	s := newShop(t)
	ctx := context.Background()
	p := s.product(t, "9.90", models.DeliveryManual)
	alice, mallory := s.buyer(t, "alice"), s.buyer(t, "mallory")

	o, err := s.purchases.CreatePurchase(ctx, alice, p.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, s.purchases.CancelPurchase(ctx, mallory, o.ID), service.ErrForbidden)
	_, err = s.purchases.GetOrder(ctx, mallory, o.ID)
	assert.ErrorIs(t, err, service.ErrForbidden)

	require.NoError(t, s.purchases.CancelPurchase(ctx, alice, o.ID))
	assert.Equal(t, models.StatusCancelled, s.status(t, o.ID))
	assert.Equal(t, []int64{o.ID}, s.watcher.cancelled)

	assert.ErrorIs(t, s.purchases.CancelPurchase(ctx, alice, o.ID), service.ErrOrderNotPending)
	assert.ErrorIs(t, s.purchases.MarkPaymentSent(ctx, alice, o.ID), service.ErrOrderNotPending)
}

func TestListOrders_LatestTen(t *testing.T) {
	s := newShop(t)
	ctx := context.Background()
	p := s.product(t, "1", models.DeliveryManual)
	buyer := s.buyer(t, "alice")

	var last int64
	for i := 0; i < 12; i++ {
		o, err := s.purchases.CreatePurchase(ctx, buyer, p.ID)
		require.NoError(t, err, fmt.Sprintf("order %d", i))
		last = o.ID
	}
	orders, err := s.purchases.ListOrders(ctx, buyer)
	require.NoError(t, err)
	assert.Len(t, orders, 10)
	assert.Equal(t, last, orders[0].ID)
}

func TestAdminCatalogAndStats(t *testing.T) {
	s := newShop(t)
	ctx := context.Background()

	_, err := s.admin.CreateProduct(ctx, "", "", decimal.NewFromInt(1), models.DeliveryAuto)
	assert.ErrorIs(t, err, service.ErrInvalidProduct)
	_, err = s.admin.CreateProduct(ctx, "Key", "", decimal.Zero, models.DeliveryAuto)
	assert.ErrorIs(t, err, service.ErrInvalidProduct)
	_, err = s.admin.CreateProduct(ctx, "Key", "", decimal.NewFromInt(1), models.DeliveryMode("drone"))
	assert.ErrorIs(t, err, service.ErrInvalidProduct)

	p := s.product(t, "9.90", models.DeliveryAuto, "A", "B")
	hidden := s.product(t, "3", models.DeliveryManual)
	require.NoError(t, s.admin.SetProductEnabled(ctx, hidden.ID, false))

	visible, err := s.purchases.ListProducts(ctx)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, 2, visible[0].StockCount)

	all, err := s.admin.ListProducts(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	buyer := s.buyer(t, "alice")
	o, err := s.purchases.CreatePurchase(ctx, buyer, p.ID)
	require.NoError(t, err)
	s.pay(t, o.ID)
	require.NoError(t, s.fulfillment.Fulfill(ctx, o.ID))
	_, err = s.purchases.CreatePurchase(ctx, buyer, p.ID)
	require.NoError(t, err)

	stats, err := s.admin.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Users)
	assert.Equal(t, 1, stats.Delivered)
	assert.Equal(t, 1, stats.OpenOrders)
	assert.Equal(t, "9.9", stats.Revenue.String())

	pending, err := s.admin.ListOrders(ctx, models.StatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
	everything, err := s.admin.ListOrders(ctx, "")
	require.NoError(t, err)
	assert.Len(t, everything, 2)
	_, err = s.admin.ListOrders(ctx, models.OrderStatus("lost"))
	assert.Error(t, err)
}
