package service

import (
	"errors"

	"github.com/linemk/usdt-shop/internal/storage"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrForbidden          = errors.New("order belongs to another buyer")
	ErrOrderNotPending    = errors.New("order is not awaiting payment")
	ErrProductUnavailable = errors.New("product is not available")
	ErrOutOfStock         = errors.New("product is out of stock")
	ErrUserBanned         = errors.New("user is banned")
	// ErrStateConflict — заказ уже не в том статусе, которого ждала команда
	ErrStateConflict  = errors.New("order state changed concurrently")
	ErrInvalidProduct = errors.New("invalid product")
	// ErrInvalidDelivery — пустой текст ручной выдачи
	ErrInvalidDelivery = errors.New("delivery content is empty")
)

// IsNotFound сообщает, что ошибка означает отсутствие сущности
func IsNotFound(err error) bool {
	return errors.Is(err, storage.ErrOrderNotFound) ||
		errors.Is(err, storage.ErrProductNotFound) ||
		errors.Is(err, storage.ErrUserNotFound)
}
