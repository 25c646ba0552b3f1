package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cartageio/cartage/internal/log"
	"github.com/cartageio/cartage/internal/logistics"
)

// ShipmentReader is the read surface the shipment tools need.
// *logistics.Store satisfies it.
type ShipmentReader interface {
	GetShipment(ctx context.Context, trackingNumber string) (*logistics.Shipment, error)
}

// TrackShipmentInput defines input for the track_shipment tool.
type TrackShipmentInput struct {
	TrackingNumber string `json:"tracking_number" jsonschema_description:"The shipment tracking number, e.g. TRACK123456"`
}

// ShippingCostInput defines input for the shipping_cost tool.
type ShippingCostInput struct {
	Origin      string  `json:"origin" jsonschema_description:"Origin city"`
	Destination string  `json:"destination" jsonschema_description:"Destination city"`
	WeightKg    float64 `json:"weight_kg" jsonschema_description:"Package weight in kilograms"`
}

// DeliveryETAInput defines input for the delivery_eta tool.
type DeliveryETAInput struct {
	TrackingNumber string `json:"tracking_number" jsonschema_description:"The shipment tracking number"`
}

// ShipmentSearcher is the filtered search surface the search_shipments
// tool needs. *logistics.Store satisfies it.
type ShipmentSearcher interface {
	SearchShipments(ctx context.Context, status, origin, destination string) ([]logistics.Shipment, error)
}

// SearchShipmentsInput defines input for the search_shipments tool.
// Every filter is optional; blank filters match everything.
type SearchShipmentsInput struct {
	Status      string `json:"status,omitempty" jsonschema_description:"Filter by shipment status"`
	Origin      string `json:"origin,omitempty" jsonschema_description:"Filter by origin city (substring match)"`
	Destination string `json:"destination,omitempty" jsonschema_description:"Filter by destination city (substring match)"`
}

// NewTrackShipment creates the track_shipment tool.
func NewTrackShipment(store ShipmentReader, logger log.Logger) *Tool {
	if logger == nil {
		logger = log.NewNop()
	}
	return New("track_shipment",
		"Look up the current status and location of a shipment by its tracking number. "+
			"Returns status, origin, destination, current location, and timestamps.",
		&InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"tracking_number": {Type: "string", Description: "The shipment tracking number"},
			},
			Required: []string{"tracking_number"},
		},
		func(ctx context.Context, input TrackShipmentInput) Result {
			tracking := strings.TrimSpace(input.TrackingNumber)
			if tracking == "" {
				return FailField("tracking_number", "must not be empty")
			}

			shipment, err := store.GetShipment(ctx, tracking)
			if err != nil {
				if errors.Is(err, logistics.ErrNotFound) {
					return Fail(ErrCodeNotFound, fmt.Sprintf("no shipment with tracking number %q", tracking))
				}
				logger.Warn("shipment lookup failed", "tracking_number", tracking, "error", err)
				return Fail(ErrCodeUpstreamUnavailable, "shipment database is unavailable")
			}
			return Success(shipment)
		})
}

// NewShippingCost creates the shipping_cost tool. The estimate is
// computed locally, no upstream involved.
func NewShippingCost() *Tool {
	return New("shipping_cost",
		"Estimate the shipping cost in EUR for a package given origin city, destination city, "+
			"and weight in kilograms. Cross-city shipments cost more than local ones.",
		&InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"origin":      {Type: "string", Description: "Origin city"},
				"destination": {Type: "string", Description: "Destination city"},
				"weight_kg":   {Type: "number", Description: "Package weight in kilograms"},
			},
			Required: []string{"origin", "destination", "weight_kg"},
		},
		func(_ context.Context, input ShippingCostInput) Result {
			if strings.TrimSpace(input.Origin) == "" {
				return FailField("origin", "must not be empty")
			}
			if strings.TrimSpace(input.Destination) == "" {
				return FailField("destination", "must not be empty")
			}
			if input.WeightKg <= 0 {
				return FailField("weight_kg", "must be greater than zero")
			}
			if input.WeightKg > 10000 {
				return FailField("weight_kg", "exceeds the 10000 kg freight limit")
			}
			return Success(logistics.EstimateCost(input.Origin, input.Destination, input.WeightKg))
		})
}

// NewSearchShipments creates the search_shipments tool. Unlike the
// single-record lookups this one filters the shipments table, so an
// empty result set is a successful answer, not an error.
func NewSearchShipments(store ShipmentSearcher, logger log.Logger) *Tool {
	if logger == nil {
		logger = log.NewNop()
	}
	return New("search_shipments",
		"Search shipments by status, origin city, or destination city. All filters are "+
			"optional and combine with AND; origin and destination match partial names. "+
			"Valid statuses: pending, in_transit, out_for_delivery, delivered, delayed.",
		&InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"status":      {Type: "string", Description: "Shipment status to match exactly"},
				"origin":      {Type: "string", Description: "Origin city, partial match"},
				"destination": {Type: "string", Description: "Destination city, partial match"},
			},
		},
		func(ctx context.Context, input SearchShipmentsInput) Result {
			status := strings.TrimSpace(input.Status)
			if status != "" && !validStatus(status) {
				return FailField("status",
					"must be one of pending, in_transit, out_for_delivery, delivered, delayed")
			}

			shipments, err := store.SearchShipments(ctx, status, input.Origin, input.Destination)
			if err != nil {
				logger.Warn("shipment search failed",
					"status", status, "origin", input.Origin, "destination", input.Destination, "error", err)
				return Fail(ErrCodeUpstreamUnavailable, "shipment database is unavailable")
			}
			if shipments == nil {
				shipments = []logistics.Shipment{}
			}
			return Success(map[string]any{
				"count":     len(shipments),
				"shipments": shipments,
			})
		})
}

// validStatus reports whether s is a known shipment status.
func validStatus(s string) bool {
	switch s {
	case logistics.StatusPending, logistics.StatusInTransit, logistics.StatusOutForDelivery,
		logistics.StatusDelivered, logistics.StatusDelayed:
		return true
	}
	return false
}

// NewDeliveryETA creates the delivery_eta tool.
func NewDeliveryETA(store ShipmentReader, logger log.Logger) *Tool {
	if logger == nil {
		logger = log.NewNop()
	}
	return New("delivery_eta",
		"Estimate when a shipment will be delivered. Uses the carrier's scheduled date when "+
			"available, otherwise projects a standard transit time from the shipping date.",
		&InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"tracking_number": {Type: "string", Description: "The shipment tracking number"},
			},
			Required: []string{"tracking_number"},
		},
		func(ctx context.Context, input DeliveryETAInput) Result {
			tracking := strings.TrimSpace(input.TrackingNumber)
			if tracking == "" {
				return FailField("tracking_number", "must not be empty")
			}

			shipment, err := store.GetShipment(ctx, tracking)
			if err != nil {
				if errors.Is(err, logistics.ErrNotFound) {
					return Fail(ErrCodeNotFound, fmt.Sprintf("no shipment with tracking number %q", tracking))
				}
				logger.Warn("shipment lookup failed", "tracking_number", tracking, "error", err)
				return Fail(ErrCodeUpstreamUnavailable, "shipment database is unavailable")
			}

			if shipment.Status == logistics.StatusDelivered {
				return Success(map[string]any{
					"tracking_number": shipment.TrackingNumber,
					"status":          shipment.Status,
					"delivered":       true,
				})
			}

			eta, fromRecord := logistics.DeliveryEstimate(shipment, time.Now())
			return Success(map[string]any{
				"tracking_number":    shipment.TrackingNumber,
				"status":             shipment.Status,
				"estimated_delivery": eta.Format(time.RFC3339),
				"from_carrier":       fromRecord,
			})
		})
}
