package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMetricsExposition(t *testing.T) {
	m := New()
	m.ObserveRequest("GET", "/api/deployments", 200, 15*time.Millisecond)
	m.RefreshResult("ok")
	m.RefreshResult("error")
	m.RunCompleted("success")
	m.RunCompleted("")
	m.SetDeployments("active", 4)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	for _, want := range []string{
		`netrunner_http_requests_total{method="GET",route="/api/deployments",status="200"} 1`,
		`netrunner_refresh_total{result="error"} 1`,
		`netrunner_run_outcomes_total{conclusion="success"} 1`,
		`netrunner_run_outcomes_total{conclusion="unknown"} 1`,
		`netrunner_deployments{state="active"} 4`,
		"go_goroutines",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected exposition to contain %q", want)
		}
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ObserveRequest("GET", "/", 200, time.Millisecond)
	m.RefreshResult("ok")
	m.RunCompleted("success")
	m.SetDeployments("active", 1)
	if m.Registry() != nil {
		t.Error("Expected nil registry")
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Errorf("Expected 404 from nil metrics, got %d", rec.Code)
	}
}

func TestNewIsolatedRegistries(t *testing.T) {
	a := New()
	b := New()
	a.RefreshResult("ok")
	if a.Registry() == b.Registry() {
		t.Error("Expected separate registries")
	}
}
