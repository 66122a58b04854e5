package models

import "time"

// InventoryItem — одноразовая позиция склада (ключ, аккаунт).
// OrderID заполняется только при выдаче.
type InventoryItem struct {
	ID         int64      `json:"id"`
	ProductID  int64      `json:"product_id"`
	Content    string     `json:"-"`
	Consumed   bool       `json:"consumed"`
	OrderID    *int64     `json:"order_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
}
