package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/linemk/usdt-shop/internal/domain/models"
	"github.com/linemk/usdt-shop/internal/service"
	"github.com/shopspring/decimal"
)

type DeliverRequest struct {
	Content string `json:"content" validate:"required"`
}

type CreateProductRequest struct {
	Name         string          `json:"name" validate:"required,max=128"`
	Description  string          `json:"description" validate:"max=1024"`
	Price        decimal.Decimal `json:"price"`
	DeliveryMode string          `json:"delivery_mode" validate:"required,oneof=auto manual"`
}

type PriceRequest struct {
	Price decimal.Decimal `json:"price"`
}

type EnabledRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

type InventoryRequest struct {
	Items []string `json:"items" validate:"required,min=1"`
}

type InventoryResponse struct {
	Added int `json:"added"`
}

type BanRequest struct {
	Banned *bool `json:"banned" validate:"required"`
}

// ConfirmOrderHandler обрабатывает POST /api/admin/orders/{id}/confirm
func ConfirmOrderHandler(log *slog.Logger, svc service.AdminServiceInterface) http.HandlerFunc {
	return adminOrderCommand(log, "handlers.ConfirmOrderHandler", "order confirmed", svc.Confirm)
}

// RejectOrderHandler обрабатывает POST /api/admin/orders/{id}/reject
func RejectOrderHandler(log *slog.Logger, svc service.AdminServiceInterface) http.HandlerFunc {
	return adminOrderCommand(log, "handlers.RejectOrderHandler", "order rejected", svc.Reject)
}

func adminOrderCommand(log *slog.Logger, op, message string, cmd func(ctx context.Context, orderID int64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(slog.String("op", op))

		orderID, ok := pathID(r, "id")
		if !ok {
			http.Error(w, "invalid order id", http.StatusBadRequest)
			return
		}
		if err := cmd(r.Context(), orderID); err != nil {
			logger.Warn("admin command failed", slog.Int64("order_id", orderID), slog.Any("error", err))
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, StatusResponse{Message: message})
	}
}

// DeliverOrderHandler обрабатывает POST /api/admin/orders/{id}/deliver
func DeliverOrderHandler(log *slog.Logger, svc service.AdminServiceInterface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(slog.String("op", "handlers.DeliverOrderHandler"))

		orderID, ok := pathID(r, "id")
		if !ok {
			http.Error(w, "invalid order id", http.StatusBadRequest)
			return
		}
		var req DeliverRequest
		if !decodeAndValidate(w, r, logger, &req) {
			return
		}
		if err := svc.ManualDeliver(r.Context(), orderID, req.Content); err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, StatusResponse{Message: "order delivered"})
	}
}

// AdminOrdersHandler обрабатывает GET /api/admin/orders?status=
func AdminOrdersHandler(log *slog.Logger, svc service.AdminServiceInterface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(slog.String("op", "handlers.AdminOrdersHandler"))

		status := models.OrderStatus(r.URL.Query().Get("status"))
		if status != "" && !status.Valid() {
			http.Error(w, "unknown status", http.StatusBadRequest)
			return
		}
		orders, err := svc.ListOrders(r.Context(), status)
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, orders)
	}
}

// ManualQueueHandler обрабатывает GET /api/admin/orders/manual
func ManualQueueHandler(log *slog.Logger, svc service.AdminServiceInterface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(slog.String("op", "handlers.ManualQueueHandler"))

		orders, err := svc.ManualQueue(r.Context())
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, orders)
	}
}

func AdminProductsHandler(log *slog.Logger, svc service.AdminServiceInterface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(slog.String("op", "handlers.AdminProductsHandler"))

		products, err := svc.ListProducts(r.Context())
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, products)
	}
}

// CreateProductHandler обрабатывает POST /api/admin/products
func CreateProductHandler(log *slog.Logger, svc service.AdminServiceInterface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(slog.String("op", "handlers.CreateProductHandler"))

		var req CreateProductRequest
		if !decodeAndValidate(w, r, logger, &req) {
			return
		}
		product, err := svc.CreateProduct(r.Context(), req.Name, req.Description, req.Price, models.DeliveryMode(req.DeliveryMode))
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusCreated, product)
	}
}

// UpdatePriceHandler обрабатывает POST /api/admin/products/{id}/price
func UpdatePriceHandler(log *slog.Logger, svc service.AdminServiceInterface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(slog.String("op", "handlers.UpdatePriceHandler"))

		productID, ok := pathID(r, "id")
		if !ok {
			http.Error(w, "invalid product id", http.StatusBadRequest)
			return
		}
		var req PriceRequest
		if !decodeAndValidate(w, r, logger, &req) {
			return
		}
		if err := svc.UpdatePrice(r.Context(), productID, req.Price); err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, StatusResponse{Message: "price updated"})
	}
}

// SetProductEnabledHandler обрабатывает POST /api/admin/products/{id}/enabled
func SetProductEnabledHandler(log *slog.Logger, svc service.AdminServiceInterface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(slog.String("op", "handlers.SetProductEnabledHandler"))

		productID, ok := pathID(r, "id")
		if !ok {
			http.Error(w, "invalid product id", http.StatusBadRequest)
			return
		}
		var req EnabledRequest
		if !decodeAndValidate(w, r, logger, &req) {
			return
		}
		if err := svc.SetProductEnabled(r.Context(), productID, *req.Enabled); err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, StatusResponse{Message: "product updated"})
	}
}

// AddInventoryHandler обрабатывает POST /api/admin/products/{id}/inventory
func AddInventoryHandler(log *slog.Logger, svc service.AdminServiceInterface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(slog.String("op", "handlers.AddInventoryHandler"))

		productID, ok := pathID(r, "id")
		if !ok {
			http.Error(w, "invalid product id", http.StatusBadRequest)
			return
		}
		var req InventoryRequest
		if !decodeAndValidate(w, r, logger, &req) {
			return
		}
		n, err := svc.AddInventory(r.Context(), productID, req.Items)
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, InventoryResponse{Added: n})
	}
}

// BanUserHandler обрабатывает POST /api/admin/users/{id}/ban
func BanUserHandler(log *slog.Logger, svc service.AdminServiceInterface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(slog.String("op", "handlers.BanUserHandler"))

		userID, ok := pathID(r, "id")
		if !ok {
			http.Error(w, "invalid user id", http.StatusBadRequest)
			return
		}
		var req BanRequest
		if !decodeAndValidate(w, r, logger, &req) {
			return
		}
		if err := svc.BanUser(r.Context(), userID, *req.Banned); err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, StatusResponse{Message: "user updated"})
	}
}

// StatsHandler обрабатывает GET /api/admin/stats
func StatsHandler(log *slog.Logger, svc service.AdminServiceInterface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(slog.String("op", "handlers.StatsHandler"))

		stats, err := svc.Stats(r.Context())
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, stats)
	}
}
