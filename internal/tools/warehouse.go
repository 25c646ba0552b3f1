package tools

import (
	"context"
	"strings"

	"github.com/cartageio/cartage/internal/log"
	"github.com/cartageio/cartage/internal/logistics"
)

// WarehouseFinder is the read surface the warehouse tool needs.
// *logistics.Store satisfies it.
type WarehouseFinder interface {
	FindWarehouses(ctx context.Context, city string, limit int) ([]logistics.Warehouse, error)
}

// FindWarehouseInput defines input for the find_warehouse tool.
type FindWarehouseInput struct {
	City  string `json:"city" jsonschema_description:"City to search for warehouses in"`
	Limit int    `json:"limit,omitempty" jsonschema_description:"Maximum warehouses to return (default 3)"`
}

// NewFindWarehouse creates the find_warehouse tool. A city with no
// warehouses is a successful empty result, not an error.
func NewFindWarehouse(store WarehouseFinder, logger log.Logger) *Tool {
	if logger == nil {
		logger = log.NewNop()
	}
	return New("find_warehouse",
		"Find fulfillment warehouses in a given city, largest capacity first. "+
			"Returns warehouse codes, addresses, capacities, and operating hours.",
		&InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"city":  {Type: "string", Description: "City to search in"},
				"limit": {Type: "integer", Description: "Maximum results, default 3"},
			},
			Required: []string{"city"},
		},
		func(ctx context.Context, input FindWarehouseInput) Result {
			city := strings.TrimSpace(input.City)
			if city == "" {
				return FailField("city", "must not be empty")
			}

			warehouses, err := store.FindWarehouses(ctx, city, input.Limit)
			if err != nil {
				logger.Warn("warehouse lookup failed", "city", city, "error", err)
				return Fail(ErrCodeUpstreamUnavailable, "warehouse database is unavailable")
			}
			return Success(map[string]any{
				"city":       city,
				"count":      len(warehouses),
				"warehouses": warehouses,
			})
		})
}
