package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nvandessel/labkit/internal/fault"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Transition("create", 1)
	m.Transition("close", -1)
	m.Transition("open", 1)
	m.Placed("circuit", true)
	m.Placed("circuit", true)
	m.Wire("connect")
	m.Error(fault.New(fault.KindInvalidWire, "bad"))
	m.Error(errors.New("plain"))
	m.Error(nil)

	if got := testutil.ToFloat64(m.openExperiment); got != 1 {
		t.Errorf("open gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.transitions.WithLabelValues("create")); got != 1 {
		t.Errorf("create transitions = %v", got)
	}
	if got := testutil.ToFloat64(m.placements.WithLabelValues("circuit", "grid")); got != 2 {
		t.Errorf("grid placements = %v", got)
	}
	if got := testutil.ToFloat64(m.errors.WithLabelValues("invalid-wire")); got != 1 {
		t.Errorf("invalid-wire errors = %v", got)
	}
	if got := testutil.ToFloat64(m.errors.WithLabelValues("unknown")); got != 1 {
		t.Errorf("unknown errors = %v", got)
	}
}

func TestMetrics_Library(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.Library("save", time.Now(), nil)
	m.Library("save", time.Now(), errors.New("disk full"))
	m.ArchiveSize(4096)

	if got := testutil.ToFloat64(m.libraryOps.WithLabelValues("save", "error")); got != 1 {
		t.Errorf("failed saves = %v", got)
	}
	if n := testutil.CollectAndCount(m.libraryLatency); n != 1 {
		t.Errorf("latency series = %d, want 1", n)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.Transition("open", 1)
	m.Placed("circuit", false)
	m.Wire("connect")
	m.Library("load", time.Now(), nil)
	m.ArchiveSize(1)
	m.Error(errors.New("x"))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Errorf("nil handler status = %d", rec.Code)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.Wire("connect")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `labkit_wire_changes_total{op="connect"} 1`) {
		t.Errorf("exposition missing counter:\n%s", rec.Body.String())
	}
}
