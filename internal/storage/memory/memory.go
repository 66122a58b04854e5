// Package memory реализует все хранилища в памяти процесса.
// Используется драйвером storage.driver=memory и в тестах конкурентного доступа.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/linemk/usdt-shop/internal/domain/models"
	"github.com/linemk/usdt-shop/internal/storage"
	"github.com/shopspring/decimal"
)

var (
	_ storage.UserStorage      = (*Store)(nil)
	_ storage.ProductStorage   = (*Store)(nil)
	_ storage.OrderStorage     = (*Store)(nil)
	_ storage.InventoryStorage = (*Store)(nil)
)

// Store хранит все сущности под одним мьютексом, так что каждая операция атомарна.
// Наружу отдаются только копии.
type Store struct {
	mu sync.Mutex

	users    map[int64]*models.User
	products map[int64]*models.Product
	orders   map[int64]*models.Order
	items    []*models.InventoryItem

	lastUserID    int64
	lastProductID int64
	lastOrderID   int64
	lastItemID    int64
}

func New() *Store {
	return &Store{
		users:    make(map[int64]*models.User),
		products: make(map[int64]*models.Product),
		orders:   make(map[int64]*models.Order),
	}
}

func now() time.Time {
	return time.Now().UTC()
}

func copyItem(it *models.InventoryItem) *models.InventoryItem {
	c := *it
	if it.OrderID != nil {
		v := *it.OrderID
		c.OrderID = &v
	}
	if it.ConsumedAt != nil {
		v := *it.ConsumedAt
		c.ConsumedAt = &v
	}
	return &c
}

func copyOrder(o *models.Order) *models.Order {
	c := *o
	if o.DeliveryContent != nil {
		v := *o.DeliveryContent
		c.DeliveryContent = &v
	}
	if o.PaidAt != nil {
		v := *o.PaidAt
		c.PaidAt = &v
	}
	if o.DeliveredAt != nil {
		v := *o.DeliveredAt
		c.DeliveredAt = &v
	}
	return &c
}

func copyProduct(p *models.Product) *models.Product {
	c := *p
	return &c
}

func copyUser(u *models.User) *models.User {
	c := *u
	c.PassHash = append([]byte(nil), u.PassHash...)
	return &c
}

// users

func (s *Store) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			return copyUser(u), nil
		}
	}
	return nil, storage.ErrUserNotFound
}

func (s *Store) CreateUser(_ context.Context, user *models.User) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == user.Username {
			return nil, fmt.Errorf("username %q already taken", user.Username)
		}
	}
	s.lastUserID++
	user.ID = s.lastUserID
	user.CreatedAt = now()
	s.users[user.ID] = copyUser(user)
	return user, nil
}

func (s *Store) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	return copyUser(u), nil
}

func (s *Store) SetUserBanned(_ context.Context, id int64, banned bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return storage.ErrUserNotFound
	}
	u.Banned = banned
	return nil
}

func (s *Store) CountUsers(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users), nil
}

// products

func (s *Store) CreateProduct(_ context.Context, product *models.Product) (*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastProductID++
	product.ID = s.lastProductID
	product.CreatedAt = now()
	product.StockCount = 0
	product.Enabled = true
	s.products[product.ID] = copyProduct(product)
	return product, nil
}

func (s *Store) GetProductByID(_ context.Context, id int64) (*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, storage.ErrProductNotFound
	}
	return copyProduct(p), nil
}

func (s *Store) ListProducts(_ context.Context, enabledOnly bool) ([]*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Product
	for _, p := range s.products {
		if enabledOnly && !p.Enabled {
			continue
		}
		out = append(out, copyProduct(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpdateProductPrice(_ context.Context, id int64, price decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return storage.ErrProductNotFound
	}
	p.Price = price
	return nil
}

func (s *Store) SetProductEnabled(_ context.Context, id int64, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return storage.ErrProductNotFound
	}
	p.Enabled = enabled
	return nil
}

// orders

func (s *Store) CreateOrder(_ context.Context, order *models.Order) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastOrderID++
	order.ID = s.lastOrderID
	order.Status = models.StatusPending
	order.CreatedAt = now()
	order.UpdatedAt = order.CreatedAt
	s.orders[order.ID] = copyOrder(order)
	return order, nil
}

func (s *Store) TransitionOrder(_ context.Context, id int64, from, to models.OrderStatus, content *string) (bool, error) {
	if !models.CanTransition(from, to) {
		return false, fmt.Errorf("%w: %s -> %s", storage.ErrInvalidTransition, from, to)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	t := now()
	o.Status = to
	o.UpdatedAt = t
	if content != nil {
		v := *content
		o.DeliveryContent = &v
	}
	switch to {
	case models.StatusPaid:
		o.PaidAt = &t
	case models.StatusDelivered:
		o.DeliveredAt = &t
	}
	return true, nil
}

func (s *Store) GetOrderByID(_ context.Context, id int64) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, storage.ErrOrderNotFound
	}
	return copyOrder(o), nil
}

func (s *Store) ListOrdersByBuyer(_ context.Context, buyerID int64, limit int) ([]*models.Order, error) {
	return s.listOrders(func(o *models.Order) bool { return o.BuyerID == buyerID }, true, limit), nil
}

func (s *Store) ListOrdersByStatus(_ context.Context, status models.OrderStatus, limit int) ([]*models.Order, error) {
	return s.listOrders(func(o *models.Order) bool { return o.Status == status }, false, limit), nil
}

func (s *Store) ListOrders(_ context.Context, limit int) ([]*models.Order, error) {
	return s.listOrders(func(*models.Order) bool { return true }, true, limit), nil
}

// listOrders сортирует по ID: он растёт вместе с CreatedAt
func (s *Store) listOrders(match func(*models.Order) bool, newestFirst bool, limit int) []*models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Order
	for _, o := range s.orders {
		if match(o) {
			out = append(out, copyOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if newestFirst {
			return out[i].ID > out[j].ID
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *Store) OrderStats(_ context.Context) (*models.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := &models.Stats{Revenue: decimal.Zero}
	for _, o := range s.orders {
		switch o.Status {
		case models.StatusDelivered:
			stats.Delivered++
			stats.Revenue = stats.Revenue.Add(o.Amount)
		case models.StatusPending, models.StatusConfirming, models.StatusPaid:
			stats.OpenOrders++
		}
	}
	return stats, nil
}

// inventory

func (s *Store) AddItems(_ context.Context, productID int64, contents []string) (int, error) {
	contents = storage.CleanContents(contents)
	if len(contents) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[productID]; !ok {
		return 0, storage.ErrProductNotFound
	}
	for _, c := range contents {
		s.lastItemID++
		s.items = append(s.items, &models.InventoryItem{
			ID:        s.lastItemID,
			ProductID: productID,
			Content:   c,
			CreatedAt: now(),
		})
	}
	s.refreshStock(productID)
	return len(contents), nil
}

func (s *Store) Allocate(_ context.Context, productID, orderID int64) (*models.InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.items {
		if it.OrderID != nil && *it.OrderID == orderID {
			return nil, storage.ErrOrderAlreadyHasItem
		}
	}
	for _, it := range s.items {
		if it.ProductID != productID || it.Consumed {
			continue
		}
		t := now()
		oid := orderID
		it.Consumed = true
		it.OrderID = &oid
		it.ConsumedAt = &t
		s.refreshStock(productID)
		return copyItem(it), nil
	}
	return nil, storage.ErrNoStock
}

func (s *Store) refreshStock(productID int64) {
	p, ok := s.products[productID]
	if !ok {
		return
	}
	n := 0
	for _, it := range s.items {
		if it.ProductID == productID && !it.Consumed {
			n++
		}
	}
	p.StockCount = n
}
