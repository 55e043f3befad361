package metrics

import (
	"strconv"
	"testing"
)

func TestNew_GathersMetrics(t *testing.T) {
	m := New()

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	// Should include at least Go runtime and process collectors.
	if len(families) == 0 {
		t.Fatal("expected non-empty metric families from Gather()")
	}

	m.RequestsTotal.WithLabelValues("2x").Inc()
	m.ProxyRetries.WithLabelValues("redirect").Inc()

	families, err = m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	want := map[string]bool{
		"gemini_lite_requests_total":      false,
		"gemini_lite_proxy_retries_total": false,
	}
	for _, f := range families {
		if _, ok := want[f.GetName()]; ok {
			want[f.GetName()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("expected %s in gathered metrics", name)
		}
	}
}

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{10, "1x"},
		{11, "1x"},
		{20, "2x"},
		{31, "3x"},
		{44, "4x"},
		{59, "5x"},
		{9, "other"},
		{60, "other"},
		{0, "other"},
		{-1, "other"},
	}

	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.status), func(t *testing.T) {
			if got := NormalizeStatus(tt.status); got != tt.want {
				t.Errorf("NormalizeStatus(%d) = %q, want %q", tt.status, got, tt.want)
			}
		})
	}
}
