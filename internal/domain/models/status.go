package models

// OrderStatus — статус заказа
type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusConfirming OrderStatus = "confirming"
	StatusPaid       OrderStatus = "paid"
	StatusDelivered  OrderStatus = "delivered"
	StatusCancelled  OrderStatus = "cancelled"
	StatusRejected   OrderStatus = "rejected"
)

// validNext — допустимые переходы. В pending вернуться нельзя,
// из терминальных статусов переходов нет.
var validNext = map[OrderStatus]map[OrderStatus]bool{
	StatusPending:    {StatusConfirming: true, StatusPaid: true, StatusCancelled: true},
	StatusConfirming: {StatusPaid: true, StatusCancelled: true, StatusRejected: true},
	StatusPaid:       {StatusDelivered: true, StatusRejected: true},
	StatusDelivered:  {},
	StatusCancelled:  {},
	StatusRejected:   {},
}

// CanTransition проверяет, есть ли ребро from -> to в графе статусов
func CanTransition(from, to OrderStatus) bool {
	return validNext[from][to]
}

// IsTerminal возвращает true для delivered, cancelled и rejected
func (s OrderStatus) IsTerminal() bool {
	next, ok := validNext[s]
	return ok && len(next) == 0
}

// Valid — известен ли статус
func (s OrderStatus) Valid() bool {
	_, ok := validNext[s]
	return ok
}
