package handler

import (
	"net/http"

	"github.com/freshtrace/freshtrace-backend/internal/fulfillment/domain"
	"github.com/freshtrace/freshtrace-backend/internal/fulfillment/service"
	"github.com/freshtrace/freshtrace-backend/pkg/errors"
	"github.com/freshtrace/freshtrace-backend/pkg/httputil"
	"github.com/freshtrace/freshtrace-backend/pkg/logger"
	"github.com/go-chi/chi/v5"
)

// OrderHandler handles order fulfillment endpoints
type OrderHandler struct {
	service *service.FulfillmentService
	logger  *logger.Logger
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(svc *service.FulfillmentService, log *logger.Logger) *OrderHandler {
	return &OrderHandler{
		service: svc,
		logger:  log,
	}
}

// Fulfill allocates stock and encodes labels for an order
func (h *OrderHandler) Fulfill(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	var req struct {
		Items []domain.AllocationRequest `json:"items" validate:"required,min=1,dive"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	manifest, err := h.service.FulfillOrder(r.Context(), orderID, req.Items)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, manifest)
}

// Cancel releases every live allocation an order holds
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	if orderID == "" {
		httputil.Error(w, errors.BadRequest("order id is required"))
		return
	}

	if err := h.service.CancelOrder(r.Context(), orderID); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}
