package tools

import (
	"fmt"

	"github.com/cartageio/cartage/internal/log"
)

// ToolNames lists every tool the assistant exposes, in registration
// order. Single source of truth for the set.
func ToolNames() []string {
	return []string{
		"track_shipment",
		"shipping_cost",
		"delivery_eta",
		"search_shipments",
		"find_warehouse",
		"search_documents",
	}
}

// Deps carries the dependencies the domain tools close over.
type Deps struct {
	Shipments      ShipmentReader
	ShipmentSearch ShipmentSearcher
	Warehouses     WarehouseFinder
	Searcher       DocumentSearcher
	Logger         log.Logger
}

// NewDefaultRegistry builds the registry with the full logistics
// toolset. All dependencies are required; a registry with silently
// missing tools would let the model hallucinate capabilities.
func NewDefaultRegistry(deps Deps) (*Registry, error) {
	if deps.Shipments == nil {
		return nil, fmt.Errorf("tools: shipment reader is required")
	}
	if deps.ShipmentSearch == nil {
		return nil, fmt.Errorf("tools: shipment searcher is required")
	}
	if deps.Warehouses == nil {
		return nil, fmt.Errorf("tools: warehouse finder is required")
	}
	if deps.Searcher == nil {
		return nil, fmt.Errorf("tools: document searcher is required")
	}

	return NewRegistry(
		NewTrackShipment(deps.Shipments, deps.Logger),
		NewShippingCost(),
		NewDeliveryETA(deps.Shipments, deps.Logger),
		NewSearchShipments(deps.ShipmentSearch, deps.Logger),
		NewFindWarehouse(deps.Warehouses, deps.Logger),
		NewSearchDocuments(deps.Searcher, deps.Logger),
	)
}
