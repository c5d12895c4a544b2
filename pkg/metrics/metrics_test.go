package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.Decisions.WithLabelValues("publish").Inc()
	m.Decisions.WithLabelValues("pending").Add(2)
	m.SpotsTracked.Set(17)
	m.BatchDuration.Observe(0.2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Result().Body)
	text := string(body)

	for _, want := range []string{
		`propwatch_decisions_total{outcome="publish"} 1`,
		`propwatch_decisions_total{outcome="pending"} 2`,
		`propwatch_spots_tracked 17`,
		`propwatch_batch_duration_seconds_count 1`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func TestRegistriesAreIsolated(t *testing.T) {
	a, b := New(), New()
	a.Decisions.WithLabelValues("reject").Inc()

	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Result().Body)
	if strings.Contains(string(body), `outcome="reject"`) {
		t.Error("counter leaked across registries")
	}
}
