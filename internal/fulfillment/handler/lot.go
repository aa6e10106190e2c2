// Package handler exposes the fulfillment service over HTTP.
package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/freshtrace/freshtrace-backend/internal/fulfillment/service"
	"github.com/freshtrace/freshtrace-backend/pkg/errors"
	"github.com/freshtrace/freshtrace-backend/pkg/httputil"
	"github.com/freshtrace/freshtrace-backend/pkg/logger"
	"github.com/go-chi/chi/v5"
)

// LotHandler handles lot endpoints
type LotHandler struct {
	service *service.FulfillmentService
	logger  *logger.Logger
}

// NewLotHandler creates a new lot handler
func NewLotHandler(svc *service.FulfillmentService, log *logger.Logger) *LotHandler {
	return &LotHandler{
		service: svc,
		logger:  log,
	}
}

// Receive creates a new lot from a receiving event
func (h *LotHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var in service.ReceiveLotInput
	if err := httputil.DecodeJSON(r, &in); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&in); err != nil {
		httputil.Error(w, err)
		return
	}

	lot, err := h.service.ReceiveLot(r.Context(), in)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, lot)
}

// Get gets a lot by code
func (h *LotHandler) Get(w http.ResponseWriter, r *http.Request) {
	lotCode := chi.URLParam(r, "lotCode")

	lot, err := h.service.GetLot(r.Context(), lotCode)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, lot)
}

// ListByItem lists lots for an item, oldest received first
func (h *LotHandler) ListByItem(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "id")

	lots, err := h.service.ListLotsByItem(r.Context(), itemID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, lots)
}

// ListExpiring lists unexhausted lots expiring within ?days=N (default 30)
func (h *LotHandler) ListExpiring(w http.ResponseWriter, r *http.Request) {
	days := 30
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			httputil.Error(w, errors.BadRequest("days must be a positive integer"))
			return
		}
		days = parsed
	}

	lots, err := h.service.ListExpiring(r.Context(), time.Duration(days)*24*time.Hour)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, lots)
}

// Release returns quantity to a lot
func (h *LotHandler) Release(w http.ResponseWriter, r *http.Request) {
	lotCode := chi.URLParam(r, "lotCode")

	var req struct {
		Quantity int    `json:"quantity" validate:"required,gt=0"`
		Reason   string `json:"reason"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	lot, err := h.service.ReleaseLot(r.Context(), lotCode, req.Quantity, req.Reason)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, lot)
}

// Label encodes the label payload for a lot
func (h *LotHandler) Label(w http.ResponseWriter, r *http.Request) {
	lotCode := chi.URLParam(r, "lotCode")

	payload, err := h.service.EncodeLabel(r.Context(), lotCode)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, payload)
}
