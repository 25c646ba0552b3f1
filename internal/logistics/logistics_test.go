package logistics

import (
	"math"
	"testing"
	"time"
)

func TestEstimateCost_SameCity(t *testing.T) {
	est := EstimateCost("Berlin", "Berlin", 10)

	wantBase := BaseRate + PerKgRate*10 // 35.0
	if est.BaseCost != wantBase {
		t.Errorf("BaseCost = %v, want %v", est.BaseCost, wantBase)
	}
	if est.DistanceFactor != 1.0 {
		t.Errorf("DistanceFactor = %v, want 1.0 for same-city route", est.DistanceFactor)
	}
	if est.Total != wantBase {
		t.Errorf("Total = %v, want %v", est.Total, wantBase)
	}
}

func TestEstimateCost_CrossCity(t *testing.T) {
	est := EstimateCost("Rotterdam", "Berlin", 4)

	wantTotal := (BaseRate + PerKgRate*4) * CrossCityFactor // 30.0
	if math.Abs(est.Total-wantTotal) > 1e-9 {
		t.Errorf("Total = %v, want %v", est.Total, wantTotal)
	}
	if est.DistanceFactor != CrossCityFactor {
		t.Errorf("DistanceFactor = %v, want %v", est.DistanceFactor, CrossCityFactor)
	}
}

func TestEstimateCost_CityComparisonIsCaseInsensitive(t *testing.T) {
	est := EstimateCost("berlin", "BERLIN", 1)
	if est.DistanceFactor != 1.0 {
		t.Errorf("DistanceFactor = %v, want 1.0 for case-variant same city", est.DistanceFactor)
	}
}

func TestDeliveryEstimate_Scheduled(t *testing.T) {
	scheduled := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	sh := &Shipment{TrackingNumber: "TRACK123456", EstimatedDelivery: &scheduled}

	got, fromRecord := DeliveryEstimate(sh, time.Now())
	if !fromRecord {
		t.Error("fromRecord = false, want true when shipment has a scheduled date")
	}
	if !got.Equal(scheduled) {
		t.Errorf("estimate = %v, want %v", got, scheduled)
	}
}

func TestDeliveryEstimate_Fallback(t *testing.T) {
	now := time.Date(2026, 8, 29, 8, 0, 0, 0, time.UTC)
	sh := &Shipment{TrackingNumber: "TRACK345678"}

	got, fromRecord := DeliveryEstimate(sh, now)
	if fromRecord {
		t.Error("fromRecord = true, want false for unscheduled shipment")
	}
	want := now.AddDate(0, 0, DefaultTransitDays)
	if !got.Equal(want) {
		t.Errorf("estimate = %v, want %v", got, want)
	}
}
