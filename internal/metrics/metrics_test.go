package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheus_Counters(t *testing.T) {
	p := NewPrometheus()

	p.EventPublished("state_change", 3)
	p.EventPublished("state_change", 2)
	p.HandlerFailed("state_change")
	p.StateChanged("switches.Switch", 2)
	p.Items(4)

	if got := testutil.ToFloat64(p.events.WithLabelValues("state_change")); got != 2 {
		t.Errorf("published_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(p.deliveries.WithLabelValues("state_change")); got != 5 {
		t.Errorf("deliveries_total = %v, want 5", got)
	}
	if got := testutil.ToFloat64(p.handlerErrors.WithLabelValues("state_change")); got != 1 {
		t.Errorf("handler_failures_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(p.stateChanges.WithLabelValues("switches.Switch")); got != 2 {
		t.Errorf("state_changes_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(p.items); got != 4 {
		t.Errorf("registered = %v, want 4", got)
	}
}

func TestPrometheus_ModuleStatusReplacesPrevious(t *testing.T) {
	p := NewPrometheus()

	p.ModuleStatus("influx", "initializing")
	p.ModuleStatus("influx", "active")

	if n := testutil.CollectAndCount(p.moduleStatus); n != 1 {
		t.Errorf("module status series = %d, want 1", n)
	}
	if got := testutil.ToFloat64(p.moduleStatus.WithLabelValues("influx", "active")); got != 1 {
		t.Errorf("active gauge = %v, want 1", got)
	}
}

func TestPrometheus_Handler(t *testing.T) {
	p := NewPrometheus()
	p.EventPublished("module_loaded", 1)

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `homecontrol_event_published_total{event="module_loaded"} 1`) {
		t.Errorf("exposition missing counter:\n%s", body)
	}
}

func TestNoop(t *testing.T) {
	var r Recorder = Noop{}
	r.EventPublished("x", 1)
	r.HandlerFailed("x")
	r.StateChanged("t", 1)
	r.ModuleStatus("m", "active")
	r.Items(0)
}
