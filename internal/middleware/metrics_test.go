package middleware

import (
	"context"
	"errors"
	"testing"

	"gemini-lite-go/internal/handler"
	"gemini-lite-go/internal/metrics"
	"gemini-lite-go/internal/model"
	"gemini-lite-go/internal/protocol"
)

func counterValue(t *testing.T, m *metrics.Metrics, name, group string) float64 {
	t.Helper()
	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, metric := range f.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if lp.GetName() == "status_group" && lp.GetValue() == group {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestMetrics_IncrementsCounter(t *testing.T) {
	m := metrics.New()
	h := Metrics(m)(replyHandler(20, "text/plain"))

	for i := 0; i < 2; i++ {
		if _, err := h.Handle(context.Background(), mustRequest(t, "gemini-lite://localhost/")); err != nil {
			t.Fatalf("Handle() error = %v", err)
		}
	}

	if v := counterValue(t, m, "gemini_lite_requests_total", "2x"); v != 2 {
		t.Errorf("2x counter = %v, want 2", v)
	}
}

func TestMetrics_ErrorCountsAsServerError(t *testing.T) {
	m := metrics.New()
	h := Metrics(m)(handler.HandlerFunc(func(context.Context, *protocol.Request) (*model.HandlerResult, error) {
		return nil, errors.New("boom")
	}))

	if _, err := h.Handle(context.Background(), mustRequest(t, "gemini-lite://localhost/")); err == nil {
		t.Fatal("Handle() error = nil, want error")
	}
	if v := counterValue(t, m, "gemini_lite_requests_total", "4x"); v != 1 {
		t.Errorf("4x counter = %v, want 1", v)
	}
}

func TestMetrics_InFlightReturnsToZero(t *testing.T) {
	m := metrics.New()
	h := Metrics(m)(replyHandler(51, "Not found"))
	if _, err := h.Handle(context.Background(), mustRequest(t, "gemini-lite://localhost/")); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, f := range families {
		if f.GetName() == "gemini_lite_requests_in_flight" {
			if v := f.GetMetric()[0].GetGauge().GetValue(); v != 0 {
				t.Errorf("in flight = %v, want 0", v)
			}
			return
		}
	}
	t.Error("gemini_lite_requests_in_flight not gathered")
}
