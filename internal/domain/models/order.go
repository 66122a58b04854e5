package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DeliveryMode — способ выдачи товара
type DeliveryMode string

const (
	DeliveryAuto   DeliveryMode = "auto"
	DeliveryManual DeliveryMode = "manual"
)

// Order представляет заказ. Название, цена, способ выдачи и адрес кошелька
// копируются из товара в момент создания и дальше не меняются.
type Order struct {
	ID              int64           `json:"id"`
	BuyerID         int64           `json:"buyer_id"`
	ProductID       int64           `json:"product_id"`
	ProductName     string          `json:"product_name"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	DeliveryMode    DeliveryMode    `json:"delivery_mode"`
	PaymentAddress  string          `json:"payment_address"`
	Status          OrderStatus     `json:"status"`
	DeliveryContent *string         `json:"delivery_content,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
	DeliveredAt     *time.Time      `json:"delivered_at,omitempty"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Stats — сводка для администратора
type Stats struct {
	Users      int             `json:"users"`
	Delivered  int             `json:"delivered"`
	Revenue    decimal.Decimal `json:"revenue"`
	OpenOrders int             `json:"open_orders"`
}
