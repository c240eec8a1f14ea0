package status

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/charliejllewellyn/airplanes.live-takserver-script/services/relay/internal/feed"
	"github.com/charliejllewellyn/airplanes.live-takserver-script/services/relay/internal/metrics"
	"github.com/charliejllewellyn/airplanes.live-takserver-script/services/relay/internal/scheduler"
)

func newTestServer(t *testing.T) (*Server, *metrics.Collector) {
	t.Helper()
	collector, err := metrics.NewCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	srv := New(":0", Info{
		Version:     "test",
		Mode:        "udp",
		Destination: "127.0.0.1:8087",
		Query:       feed.Query{Lat: 10, Lon: 20, RadiusNM: 25},
		RateSeconds: 15,
	}, collector.Handler())
	return srv, collector
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rr, req)
	return rr
}

func TestHealthTracksLastCycle(t *testing.T) {
	srv, _ := newTestServer(t)

	if rr := get(t, srv, "/healthz"); rr.Code != http.StatusOK {
		t.Fatalf("healthz before any cycle = %d", rr.Code)
	}

	srv.ObserveCycle(scheduler.CycleResult{Started: time.Now(), Err: fmt.Errorf("%w: boom", scheduler.ErrFetch)})
	rr := get(t, srv, "/healthz")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("healthz after failure = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "boom") {
		t.Fatalf("body = %s", rr.Body.String())
	}

	srv.ObserveCycle(scheduler.CycleResult{Started: time.Now()})
	if rr := get(t, srv, "/healthz"); rr.Code != http.StatusOK {
		t.Fatalf("healthz after recovery = %d", rr.Code)
	}
}

func TestStatusReportsLastCycle(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.ObserveCycle(scheduler.CycleResult{
		Started:  time.Now(),
		Duration: 250 * time.Millisecond,
		Mode:     "udp",
		Received: 12,
		Skipped:  2,
		Sent:     10,
		Bytes:    4096,
	})

	rr := get(t, srv, "/status")
	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d", rr.Code)
	}

	var body struct {
		Mode      string `json:"mode"`
		Cycles    int    `json:"cycles"`
		Failed    int    `json:"failed_cycles"`
		Rate      int    `json:"rate_seconds"`
		LastCycle struct {
			Outcome  string `json:"outcome"`
			Received int    `json:"received"`
			Sent     int    `json:"sent"`
			Skipped  int    `json:"skipped"`
			Duration int64  `json:"duration_ms"`
		} `json:"last_cycle"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Mode != "udp" || body.Cycles != 1 || body.Failed != 0 || body.Rate != 15 {
		t.Fatalf("body = %+v", body)
	}
	if body.LastCycle.Outcome != "ok" || body.LastCycle.Sent != 10 || body.LastCycle.Skipped != 2 || body.LastCycle.Duration != 250 {
		t.Fatalf("last cycle = %+v", body.LastCycle)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, collector := newTestServer(t)
	collector.ObserveCycle(scheduler.CycleResult{Started: time.Now(), Mode: "tcp", Received: 3, Sent: 2, Skipped: 1, Bytes: 900})
	collector.ObserveCycle(scheduler.CycleResult{Started: time.Now(), Mode: "tcp", Err: fmt.Errorf("%w: %w", scheduler.ErrSend, errors.New("reset"))})

	rr := get(t, srv, "/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics code = %d", rr.Code)
	}
	for _, want := range []string{
		`relay_cycles_total{outcome="ok"} 1`,
		`relay_cycles_total{outcome="send_error"} 1`,
		`relay_messages_sent_total{mode="tcp"} 2`,
		`relay_bytes_sent_total{mode="tcp"} 900`,
		`relay_aircraft_skipped_total 1`,
	} {
		if !strings.Contains(rr.Body.String(), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
