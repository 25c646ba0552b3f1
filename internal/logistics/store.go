package logistics

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/cartageio/cartage/internal/log"
)

// DBTX is the subset of pgx operations the store needs.
// Satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store reads shipment and warehouse records from PostgreSQL.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db     DBTX
	logger log.Logger
}

// NewStore creates a Store. logger may be nil for a no-op logger.
func NewStore(db DBTX, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{db: db, logger: logger}
}

const getShipmentSQL = `
SELECT tracking_number, status, origin, destination, current_location,
       weight_kg, shipped_at, estimated_delivery, updated_at
FROM shipments
WHERE tracking_number = $1`

// GetShipment fetches one shipment by tracking number.
// Returns ErrNotFound when no such shipment exists.
func (s *Store) GetShipment(ctx context.Context, trackingNumber string) (*Shipment, error) {
	trackingNumber = strings.ToUpper(strings.TrimSpace(trackingNumber))

	var (
		sh       Shipment
		location *string
	)
	err := s.db.QueryRow(ctx, getShipmentSQL, trackingNumber).Scan(
		&sh.TrackingNumber, &sh.Status, &sh.Origin, &sh.Destination,
		&location, &sh.WeightKg, &sh.ShippedAt, &sh.EstimatedDelivery, &sh.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("shipment %q: %w", trackingNumber, ErrNotFound)
		}
		return nil, fmt.Errorf("querying shipment %q: %w", trackingNumber, err)
	}
	if location != nil {
		sh.CurrentLocation = *location
	}

	s.logger.Debug("fetched shipment", "tracking_number", sh.TrackingNumber, "status", sh.Status)
	return &sh, nil
}

// MaxSearchResults caps how many shipments one search returns.
const MaxSearchResults = 10

// searchShipmentsQuery builds the filtered shipment query. Blank filters
// are skipped; status matches exactly while origin and destination match
// as case-insensitive substrings. Returns the SQL and its arguments.
func searchShipmentsQuery(status, origin, destination string) (string, []any) {
	var b strings.Builder
	b.WriteString(`SELECT tracking_number, status, origin, destination, current_location,
       weight_kg, shipped_at, estimated_delivery, updated_at
FROM shipments`)

	var (
		conds []string
		args  []any
	)
	if status != "" {
		args = append(args, status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if origin != "" {
		args = append(args, "%"+origin+"%")
		conds = append(conds, fmt.Sprintf("origin ILIKE $%d", len(args)))
	}
	if destination != "" {
		args = append(args, "%"+destination+"%")
		conds = append(conds, fmt.Sprintf("destination ILIKE $%d", len(args)))
	}
	if len(conds) > 0 {
		b.WriteString("\nWHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}

	args = append(args, MaxSearchResults)
	fmt.Fprintf(&b, "\nORDER BY updated_at DESC\nLIMIT $%d", len(args))
	return b.String(), args
}

// SearchShipments returns shipments matching the given filters, most
// recently updated first. All filters are optional; no filters returns
// the latest shipments. A search with no matches yields an empty slice,
// not an error.
func (s *Store) SearchShipments(ctx context.Context, status, origin, destination string) ([]Shipment, error) {
	sql, args := searchShipmentsQuery(
		strings.TrimSpace(status),
		strings.TrimSpace(origin),
		strings.TrimSpace(destination),
	)

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("searching shipments: %w", err)
	}
	defer rows.Close()

	var shipments []Shipment
	for rows.Next() {
		var (
			sh       Shipment
			location *string
		)
		if err := rows.Scan(&sh.TrackingNumber, &sh.Status, &sh.Origin, &sh.Destination,
			&location, &sh.WeightKg, &sh.ShippedAt, &sh.EstimatedDelivery, &sh.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning shipment row: %w", err)
		}
		if location != nil {
			sh.CurrentLocation = *location
		}
		shipments = append(shipments, sh)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading shipment rows: %w", err)
	}

	s.logger.Debug("searched shipments",
		"status", status, "origin", origin, "destination", destination, "count", len(shipments))
	return shipments, nil
}

const findWarehousesSQL = `
SELECT code, name, city, address, capacity_pallets, operating_hours
FROM warehouses
WHERE lower(city) = lower($1)
ORDER BY capacity_pallets DESC
LIMIT $2`

// FindWarehouses returns up to limit warehouses in the given city,
// largest capacity first. An unknown city yields an empty slice, not
// an error.
func (s *Store) FindWarehouses(ctx context.Context, city string, limit int) ([]Warehouse, error) {
	if limit <= 0 {
		limit = 3
	}

	rows, err := s.db.Query(ctx, findWarehousesSQL, strings.TrimSpace(city), limit)
	if err != nil {
		return nil, fmt.Errorf("querying warehouses in %q: %w", city, err)
	}
	defer rows.Close()

	var warehouses []Warehouse
	for rows.Next() {
		var w Warehouse
		if err := rows.Scan(&w.Code, &w.Name, &w.City, &w.Address, &w.CapacityPallets, &w.OperatingHours); err != nil {
			return nil, fmt.Errorf("scanning warehouse row: %w", err)
		}
		warehouses = append(warehouses, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading warehouse rows: %w", err)
	}

	s.logger.Debug("fetched warehouses", "city", city, "count", len(warehouses))
	return warehouses, nil
}
