package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product — товар витрины. StockCount считается по неиспользованным позициям склада.
type Product struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	Price        decimal.Decimal `json:"price"`
	Currency     string          `json:"currency"`
	DeliveryMode DeliveryMode    `json:"delivery_mode"`
	StockCount   int             `json:"stock_count"`
	Enabled      bool            `json:"enabled"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Snapshot копирует в заказ поля товара, которые не должны меняться задним числом
func (p *Product) Snapshot(buyerID int64, paymentAddress string) *Order {
	return &Order{
		BuyerID:        buyerID,
		ProductID:      p.ID,
		ProductName:    p.Name,
		Amount:         p.Price,
		Currency:       p.Currency,
		DeliveryMode:   p.DeliveryMode,
		PaymentAddress: paymentAddress,
		Status:         StatusPending,
	}
}
