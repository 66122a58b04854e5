package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/linemk/usdt-shop/internal/service"
)

type CreateOrderRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
}

type StatusResponse struct {
	Message string `json:"message"`
}

// ProductsHandler обрабатывает GET /api/products
func ProductsHandler(log *slog.Logger, svc service.PurchaseServiceInterface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(slog.String("op", "handlers.ProductsHandler"))

		products, err := svc.ListProducts(r.Context())
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, products)
	}
}

// CreateOrderHandler обрабатывает POST /api/orders
func CreateOrderHandler(log *slog.Logger, svc service.PurchaseServiceInterface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.CreateOrderHandler"
		logger := log.With(slog.String("op", op))

		userID, ok := requestUser(w, r, logger)
		if !ok {
			return
		}
		var req CreateOrderRequest
		if !decodeAndValidate(w, r, logger, &req) {
			return
		}

		order, err := svc.CreatePurchase(r.Context(), userID, req.ProductID)
		if err != nil {
			logger.Warn("failed to create order", slog.Any("error", err))
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusCreated, order)
	}
}

// ListOrdersHandler обрабатывает GET /api/orders
func ListOrdersHandler(log *slog.Logger, svc service.PurchaseServiceInterface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(slog.String("op", "handlers.ListOrdersHandler"))

		userID, ok := requestUser(w, r, logger)
		if !ok {
			return
		}
		orders, err := svc.ListOrders(r.Context(), userID)
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, orders)
	}
}

// GetOrderHandler обрабатывает GET /api/orders/{id}
func GetOrderHandler(log *slog.Logger, svc service.PurchaseServiceInterface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(slog.String("op", "handlers.GetOrderHandler"))

		userID, ok := requestUser(w, r, logger)
		if !ok {
			return
		}
		orderID, ok := pathID(r, "id")
		if !ok {
			http.Error(w, "invalid order id", http.StatusBadRequest)
			return
		}
		order, err := svc.GetOrder(r.Context(), userID, orderID)
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, order)
	}
}

// CancelOrderHandler обрабатывает POST /api/orders/{id}/cancel
func CancelOrderHandler(log *slog.Logger, svc service.PurchaseServiceInterface) http.HandlerFunc {
	return orderCommand(log, "handlers.CancelOrderHandler", "order cancelled", svc.CancelPurchase)
}

// MarkPaidHandler обрабатывает POST /api/orders/{id}/paid — покупатель сообщает об оплате
func MarkPaidHandler(log *slog.Logger, svc service.PurchaseServiceInterface) http.HandlerFunc {
	return orderCommand(log, "handlers.MarkPaidHandler", "payment sent for confirmation", svc.MarkPaymentSent)
}

func orderCommand(log *slog.Logger, op, message string, cmd func(ctx context.Context, buyerID, orderID int64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(slog.String("op", op))

		userID, ok := requestUser(w, r, logger)
		if !ok {
			return
		}
		orderID, ok := pathID(r, "id")
		if !ok {
			http.Error(w, "invalid order id", http.StatusBadRequest)
			return
		}
		if err := cmd(r.Context(), userID, orderID); err != nil {
			logger.Warn("order command failed", slog.Int64("order_id", orderID), slog.Any("error", err))
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, StatusResponse{Message: message})
	}
}
