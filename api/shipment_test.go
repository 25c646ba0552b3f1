package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartageio/cartage/internal/log"
	"github.com/cartageio/cartage/internal/logistics"
)

func shipmentMux(reader ShipmentReader) http.Handler {
	mux := http.NewServeMux()
	NewShipmentHandler(reader, log.NewNop()).RegisterRoutes(mux)
	return mux
}

func TestShipment_Get(t *testing.T) {
	reader := &fakeShipmentReader{shipment: &logistics.Shipment{
		TrackingNumber: "TRACK123456",
		Status:         logistics.StatusInTransit,
		Origin:         "Taipei",
		Destination:    "Kaohsiung",
		WeightKg:       4.2,
	}}

	w := doRequest(shipmentMux(reader), http.MethodGet, "/api/shipments/TRACK123456")

	require.Equal(t, http.StatusOK, w.Code)
	var got logistics.Shipment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "TRACK123456", got.TrackingNumber)
	assert.Equal(t, logistics.StatusInTransit, got.Status)
}

func TestShipment_NotFound(t *testing.T) {
	reader := &fakeShipmentReader{err: logistics.ErrNotFound}

	w := doRequest(shipmentMux(reader), http.MethodGet, "/api/shipments/NOPE")

	require.Equal(t, http.StatusNotFound, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "not_found", resp.Error)
}

func TestShipment_UpstreamError(t *testing.T) {
	w := doRequest(shipmentMux(&fakeShipmentReader{err: errUpstream}), http.MethodGet, "/api/shipments/TRACK123456")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
