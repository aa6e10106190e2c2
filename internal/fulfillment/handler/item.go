package handler

import (
	"net/http"

	"github.com/freshtrace/freshtrace-backend/internal/fulfillment/domain"
	"github.com/freshtrace/freshtrace-backend/internal/fulfillment/service"
	"github.com/freshtrace/freshtrace-backend/pkg/httputil"
	"github.com/freshtrace/freshtrace-backend/pkg/logger"
	"github.com/go-chi/chi/v5"
)

// ItemHandler handles item registry endpoints
type ItemHandler struct {
	service *service.FulfillmentService
	logger  *logger.Logger
}

// NewItemHandler creates a new item handler
func NewItemHandler(svc *service.FulfillmentService, log *logger.Logger) *ItemHandler {
	return &ItemHandler{
		service: svc,
		logger:  log,
	}
}

// Create registers a new item
func (h *ItemHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GTIN string `json:"gtin" validate:"required"`
		Name string `json:"name" validate:"required"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	item := &domain.Item{GTIN: req.GTIN, Name: req.Name}
	if err := h.service.CreateItem(r.Context(), item); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, item)
}

// Get gets an item by ID
func (h *ItemHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	item, err := h.service.GetItem(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, item)
}

// List lists all registered items
func (h *ItemHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListItems(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, items)
}

// VendorHandler handles vendor registry endpoints
type VendorHandler struct {
	service *service.FulfillmentService
	logger  *logger.Logger
}

// NewVendorHandler creates a new vendor handler
func NewVendorHandler(svc *service.FulfillmentService, log *logger.Logger) *VendorHandler {
	return &VendorHandler{
		service: svc,
		logger:  log,
	}
}

// Create registers a new vendor
func (h *VendorHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name" validate:"required"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	vendor := &domain.Vendor{Name: req.Name}
	if err := h.service.CreateVendor(r.Context(), vendor); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, vendor)
}

// Get gets a vendor by ID
func (h *VendorHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	vendor, err := h.service.GetVendor(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, vendor)
}
