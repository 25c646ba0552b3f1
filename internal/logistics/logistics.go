// Package logistics provides read-only access to the shipment and warehouse
// reference data that the domain tools query.
//
// The assistant only ever reads from these tables. Writes (shipment CRUD,
// warehouse management) belong to the upstream fulfillment system and are
// out of scope here.
package logistics

import (
	"errors"
	"time"
)

// ErrNotFound indicates the requested record does not exist.
// Check with errors.Is(); tools translate it into a structured
// not-found observation instead of a hard failure.
var ErrNotFound = errors.New("logistics: record not found")

// Shipment statuses as stored in the shipments table.
const (
	StatusPending        = "pending"
	StatusInTransit      = "in_transit"
	StatusOutForDelivery = "out_for_delivery"
	StatusDelivered      = "delivered"
	StatusDelayed        = "delayed"
)

// Shipment is a single tracked consignment.
type Shipment struct {
	TrackingNumber    string     `json:"tracking_number"`
	Status            string     `json:"status"`
	Origin            string     `json:"origin"`
	Destination       string     `json:"destination"`
	CurrentLocation   string     `json:"current_location,omitempty"`
	WeightKg          float64    `json:"weight_kg"`
	ShippedAt         *time.Time `json:"shipped_at,omitempty"`
	EstimatedDelivery *time.Time `json:"estimated_delivery,omitempty"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Warehouse is a fulfillment location.
type Warehouse struct {
	Code            string `json:"code"`
	Name            string `json:"name"`
	City            string `json:"city"`
	Address         string `json:"address"`
	CapacityPallets int    `json:"capacity_pallets"`
	OperatingHours  string `json:"operating_hours"`
}

// Shipping cost model. Rates are flat per shipment plus per kilogram,
// with a surcharge for cross-city routes.
const (
	BaseRate        = 10.0
	PerKgRate       = 2.5
	CrossCityFactor = 1.5
)

// CostEstimate breaks down a shipping cost quote.
type CostEstimate struct {
	Origin         string  `json:"origin"`
	Destination    string  `json:"destination"`
	WeightKg       float64 `json:"weight_kg"`
	BaseCost       float64 `json:"base_cost"`
	DistanceFactor float64 `json:"distance_factor"`
	Total          float64 `json:"total"`
	Currency       string  `json:"currency"`
}

// EstimateCost computes a quote for shipping weightKg from origin to
// destination. Same-city shipments skip the distance surcharge.
func EstimateCost(origin, destination string, weightKg float64) CostEstimate {
	base := BaseRate + PerKgRate*weightKg
	factor := 1.0
	if !equalCity(origin, destination) {
		factor = CrossCityFactor
	}
	return CostEstimate{
		Origin:         origin,
		Destination:    destination,
		WeightKg:       weightKg,
		BaseCost:       base,
		DistanceFactor: factor,
		Total:          base * factor,
		Currency:       "EUR",
	}
}

// DefaultTransitDays is the delivery estimate used when a shipment has no
// scheduled delivery date yet.
const DefaultTransitDays = 3

// DeliveryEstimate returns the expected delivery time for a shipment.
// Falls back to DefaultTransitDays from now when nothing is scheduled.
// The bool reports whether the estimate came from the shipment record.
func DeliveryEstimate(s *Shipment, now time.Time) (time.Time, bool) {
	if s.EstimatedDelivery != nil {
		return *s.EstimatedDelivery, true
	}
	return now.AddDate(0, 0, DefaultTransitDays), false
}

// equalCity compares city names case-insensitively without allocating
// for the common already-equal case.
func equalCity(a, b string) bool {
	if a == b {
		return true
	}
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
