package tools

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cartageio/cartage/internal/logistics"
	"github.com/cartageio/cartage/internal/retrieval"
)

type fakeShipmentReader struct {
	shipment *logistics.Shipment
	err      error
}

func (f *fakeShipmentReader) GetShipment(_ context.Context, _ string) (*logistics.Shipment, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.shipment == nil {
		return nil, logistics.ErrNotFound
	}
	return f.shipment, nil
}

type fakeShipmentSearcher struct {
	shipments []logistics.Shipment
	err       error

	status      string
	origin      string
	destination string
}

func (f *fakeShipmentSearcher) SearchShipments(_ context.Context, status, origin, destination string) ([]logistics.Shipment, error) {
	f.status, f.origin, f.destination = status, origin, destination
	if f.err != nil {
		return nil, f.err
	}
	return f.shipments, nil
}

type fakeWarehouseFinder struct {
	warehouses []logistics.Warehouse
	err        error
}

func (f *fakeWarehouseFinder) FindWarehouses(_ context.Context, _ string, _ int) ([]logistics.Warehouse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.warehouses, nil
}

type fakeSearcher struct {
	chunks []retrieval.Chunk
	err    error
}

func (f *fakeSearcher) Retrieve(_ context.Context, _ string) ([]retrieval.Chunk, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.chunks, nil
}

func run(t *testing.T, tool *Tool, args map[string]any) Result {
	t.Helper()
	if err := tool.Schema().Validate(args); err != nil {
		t.Fatalf("arguments rejected before run: %v", err)
	}
	return tool.Run(context.Background(), args)
}

func TestTrackShipment_Found(t *testing.T) {
	shipment := &logistics.Shipment{
		TrackingNumber:  "TRACK123456",
		Status:          logistics.StatusInTransit,
		Origin:          "Rotterdam",
		Destination:     "Berlin",
		CurrentLocation: "Hannover hub",
	}
	tool := NewTrackShipment(&fakeShipmentReader{shipment: shipment}, nil)

	result := run(t, tool, map[string]any{"tracking_number": "TRACK123456"})
	if result.Status != StatusSuccess {
		t.Fatalf("result = %+v, want success", result)
	}
	got, ok := result.Data.(*logistics.Shipment)
	if !ok || got.CurrentLocation != "Hannover hub" {
		t.Errorf("data = %#v, want the shipment record", result.Data)
	}
}

func TestTrackShipment_NotFound(t *testing.T) {
	tool := NewTrackShipment(&fakeShipmentReader{}, nil)

	result := run(t, tool, map[string]any{"tracking_number": "TRACK000000"})
	if result.Error == nil || result.Error.Code != ErrCodeNotFound {
		t.Errorf("result = %+v, want not_found", result)
	}
}

func TestTrackShipment_UpstreamFailure(t *testing.T) {
	tool := NewTrackShipment(&fakeShipmentReader{err: errors.New("connection refused")}, nil)

	result := run(t, tool, map[string]any{"tracking_number": "TRACK123456"})
	if result.Error == nil || result.Error.Code != ErrCodeUpstreamUnavailable {
		t.Errorf("result = %+v, want upstream_unavailable", result)
	}
}

func TestTrackShipment_BlankTrackingNumber(t *testing.T) {
	tool := NewTrackShipment(&fakeShipmentReader{}, nil)

	result := run(t, tool, map[string]any{"tracking_number": "   "})
	if result.Error == nil || result.Error.Code != ErrCodeInvalidArguments {
		t.Fatalf("result = %+v, want invalid_arguments", result)
	}
	if result.Error.Field != "tracking_number" {
		t.Errorf("Field = %q, want tracking_number", result.Error.Field)
	}
}

func TestShippingCost_CrossCity(t *testing.T) {
	tool := NewShippingCost()

	result := run(t, tool, map[string]any{
		"origin": "Rotterdam", "destination": "Berlin", "weight_kg": 4.0,
	})
	if result.Status != StatusSuccess {
		t.Fatalf("result = %+v, want success", result)
	}
	est, ok := result.Data.(logistics.CostEstimate)
	if !ok {
		t.Fatalf("data type = %T, want CostEstimate", result.Data)
	}
	if est.Total != 30.0 {
		t.Errorf("Total = %v, want 30.0", est.Total)
	}
	if est.Currency != "EUR" {
		t.Errorf("Currency = %q, want EUR", est.Currency)
	}
}

func TestShippingCost_RejectsNonPositiveWeight(t *testing.T) {
	tool := NewShippingCost()

	for _, weight := range []float64{0, -2} {
		result := run(t, tool, map[string]any{
			"origin": "Berlin", "destination": "Berlin", "weight_kg": weight,
		})
		if result.Error == nil || result.Error.Field != "weight_kg" {
			t.Errorf("weight %v: result = %+v, want invalid_arguments on weight_kg", weight, result)
		}
	}
}

func TestDeliveryETA_ScheduledDate(t *testing.T) {
	scheduled := time.Date(2026, 9, 2, 17, 0, 0, 0, time.UTC)
	tool := NewDeliveryETA(&fakeShipmentReader{shipment: &logistics.Shipment{
		TrackingNumber:    "TRACK123456",
		Status:            logistics.StatusInTransit,
		EstimatedDelivery: &scheduled,
	}}, nil)

	result := run(t, tool, map[string]any{"tracking_number": "TRACK123456"})
	if result.Status != StatusSuccess {
		t.Fatalf("result = %+v, want success", result)
	}
	data := result.Data.(map[string]any)
	if data["from_carrier"] != true {
		t.Errorf("from_carrier = %v, want true for scheduled date", data["from_carrier"])
	}
	if data["estimated_delivery"] != scheduled.Format(time.RFC3339) {
		t.Errorf("estimated_delivery = %v, want %s", data["estimated_delivery"], scheduled.Format(time.RFC3339))
	}
}

func TestDeliveryETA_DeliveredShipment(t *testing.T) {
	tool := NewDeliveryETA(&fakeShipmentReader{shipment: &logistics.Shipment{
		TrackingNumber: "TRACK789012",
		Status:         logistics.StatusDelivered,
	}}, nil)

	result := run(t, tool, map[string]any{"tracking_number": "TRACK789012"})
	data := result.Data.(map[string]any)
	if data["delivered"] != true {
		t.Errorf("data = %v, want delivered flag", data)
	}
}

func TestDeliveryETA_FallbackEstimate(t *testing.T) {
	tool := NewDeliveryETA(&fakeShipmentReader{shipment: &logistics.Shipment{
		TrackingNumber: "TRACK345678",
		Status:         logistics.StatusPending,
	}}, nil)

	result := run(t, tool, map[string]any{"tracking_number": "TRACK345678"})
	data := result.Data.(map[string]any)
	if data["from_carrier"] != false {
		t.Errorf("from_carrier = %v, want false for projected estimate", data["from_carrier"])
	}
	if data["estimated_delivery"] == "" {
		t.Error("estimated_delivery missing from fallback estimate")
	}
}

func TestSearchShipments_FiltersPassThrough(t *testing.T) {
	searcher := &fakeShipmentSearcher{shipments: []logistics.Shipment{
		{TrackingNumber: "TRACK123456", Status: logistics.StatusInTransit, Origin: "Rotterdam", Destination: "Berlin"},
		{TrackingNumber: "TRACK234567", Status: logistics.StatusInTransit, Origin: "Rotterdam", Destination: "Berlin"},
	}}
	tool := NewSearchShipments(searcher, nil)

	result := run(t, tool, map[string]any{
		"status": "in_transit", "origin": "Rotterdam", "destination": "Berlin",
	})
	if result.Status != StatusSuccess {
		t.Fatalf("result = %+v, want success", result)
	}
	if result.Data.(map[string]any)["count"] != 2 {
		t.Errorf("count = %v, want 2", result.Data.(map[string]any)["count"])
	}
	if searcher.status != "in_transit" || searcher.origin != "Rotterdam" || searcher.destination != "Berlin" {
		t.Errorf("filters passed = %q, %q, %q", searcher.status, searcher.origin, searcher.destination)
	}
}

func TestSearchShipments_NoFiltersAllowed(t *testing.T) {
	tool := NewSearchShipments(&fakeShipmentSearcher{}, nil)

	result := run(t, tool, map[string]any{})
	if result.Status != StatusSuccess {
		t.Fatalf("result = %+v, filterless search should succeed", result)
	}
	if result.Data.(map[string]any)["count"] != 0 {
		t.Errorf("count = %v, want 0", result.Data.(map[string]any)["count"])
	}
}

func TestSearchShipments_RejectsUnknownStatus(t *testing.T) {
	tool := NewSearchShipments(&fakeShipmentSearcher{}, nil)

	result := run(t, tool, map[string]any{"status": "teleporting"})
	if result.Error == nil || result.Error.Code != ErrCodeInvalidArguments {
		t.Fatalf("result = %+v, want invalid_arguments", result)
	}
	if result.Error.Field != "status" {
		t.Errorf("Field = %q, want status", result.Error.Field)
	}
}

func TestSearchShipments_UpstreamFailure(t *testing.T) {
	tool := NewSearchShipments(&fakeShipmentSearcher{err: errors.New("connection refused")}, nil)

	result := run(t, tool, map[string]any{"origin": "Hamburg"})
	if result.Error == nil || result.Error.Code != ErrCodeUpstreamUnavailable {
		t.Errorf("result = %+v, want upstream_unavailable", result)
	}
}

func TestFindWarehouse_ReturnsMatches(t *testing.T) {
	tool := NewFindWarehouse(&fakeWarehouseFinder{warehouses: []logistics.Warehouse{
		{Code: "BER-01", City: "Berlin", CapacityPallets: 5000},
		{Code: "BER-02", City: "Berlin", CapacityPallets: 2500},
	}}, nil)

	result := run(t, tool, map[string]any{"city": "Berlin"})
	if result.Status != StatusSuccess {
		t.Fatalf("result = %+v, want success", result)
	}
	data := result.Data.(map[string]any)
	if data["count"] != 2 {
		t.Errorf("count = %v, want 2", data["count"])
	}
}

func TestFindWarehouse_UnknownCityIsEmptySuccess(t *testing.T) {
	tool := NewFindWarehouse(&fakeWarehouseFinder{}, nil)

	result := run(t, tool, map[string]any{"city": "Atlantis"})
	if result.Status != StatusSuccess {
		t.Fatalf("result = %+v, unknown city should succeed with zero matches", result)
	}
	if result.Data.(map[string]any)["count"] != 0 {
		t.Errorf("count = %v, want 0", result.Data.(map[string]any)["count"])
	}
}

func TestSearchDocuments_ReturnsChunks(t *testing.T) {
	tool := NewSearchDocuments(&fakeSearcher{chunks: []retrieval.Chunk{
		{SourceID: "file:abc", Text: "Customs clearance takes two business days.", Score: 0.91},
	}}, nil)

	result := run(t, tool, map[string]any{"query": "customs clearance time"})
	if result.Status != StatusSuccess {
		t.Fatalf("result = %+v, want success", result)
	}
	data := result.Data.(map[string]any)
	if data["result_count"] != 1 {
		t.Errorf("result_count = %v, want 1", data["result_count"])
	}
}

func TestSearchDocuments_EmptyIndexIsSuccess(t *testing.T) {
	tool := NewSearchDocuments(&fakeSearcher{}, nil)

	result := run(t, tool, map[string]any{"query": "no such topic"})
	if result.Status != StatusSuccess {
		t.Fatalf("result = %+v, empty retrieval should not be an error", result)
	}
	if result.Data.(map[string]any)["result_count"] != 0 {
		t.Errorf("result_count = %v, want 0", result.Data.(map[string]any)["result_count"])
	}
}

func TestSearchDocuments_IndexUnavailable(t *testing.T) {
	tool := NewSearchDocuments(&fakeSearcher{err: errors.New("index down")}, nil)

	result := run(t, tool, map[string]any{"query": "anything"})
	if result.Error == nil || result.Error.Code != ErrCodeUpstreamUnavailable {
		t.Errorf("result = %+v, want upstream_unavailable", result)
	}
}
