package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/cartageio/cartage/internal/log"
	"github.com/cartageio/cartage/internal/logistics"
)

// ShipmentReader looks up shipments. *logistics.Store satisfies it.
type ShipmentReader interface {
	GetShipment(ctx context.Context, trackingNumber string) (*logistics.Shipment, error)
}

// ShipmentHandler serves direct shipment lookups without going through
// the model.
type ShipmentHandler struct {
	shipments ShipmentReader
	logger    log.Logger
}

// NewShipmentHandler creates a shipment handler.
func NewShipmentHandler(shipments ShipmentReader, logger log.Logger) *ShipmentHandler {
	return &ShipmentHandler{shipments: shipments, logger: logger}
}

// RegisterRoutes registers shipment routes on mux.
func (h *ShipmentHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/shipments/{tracking}", h.get)
}

func (h *ShipmentHandler) get(w http.ResponseWriter, r *http.Request) {
	tracking := r.PathValue("tracking")
	if tracking == "" {
		writeError(w, h.logger, http.StatusBadRequest, "missing_tracking", "tracking number is required")
		return
	}

	shipment, err := h.shipments.GetShipment(r.Context(), tracking)
	if err != nil {
		if errors.Is(err, logistics.ErrNotFound) {
			writeError(w, h.logger, http.StatusNotFound, "not_found", "no shipment with that tracking number")
			return
		}
		h.logger.Error("shipment lookup failed", "error", err, "tracking", tracking)
		writeError(w, h.logger, http.StatusInternalServerError, "lookup_failed", "failed to look up shipment")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, shipment)
}
