package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"harvest-go/internal/service"
	"harvest-go/pkg/metrics"
	"harvest-go/pkg/worker"
)

type stubPinger struct {
	err error
}

func (p *stubPinger) Ping(ctx context.Context) error {
	return p.err
}

type stubRunner struct {
	stats worker.StatsSnapshot
}

func (r *stubRunner) Start() error                { return nil }
func (r *stubRunner) Stop() error                 { return nil }
func (r *stubRunner) Stats() worker.StatsSnapshot { return r.stats }

func get(t *testing.T, s *OpsServer, path string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	resp, err := s.app.Test(req)
	if err != nil {
		t.Fatalf("Request to %s failed: %v", path, err)
	}
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	s := NewOpsServer(nil, nil)

	resp := get(t, s, "/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
}

func TestReadyEndpoint(t *testing.T) {
	s := NewOpsServer(&stubPinger{}, nil)

	resp := get(t, s, "/readyz")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 when the store answers, got %d", resp.StatusCode)
	}
}

func TestReadyEndpointFailingStore(t *testing.T) {
	s := NewOpsServer(&stubPinger{err: fmt.Errorf("connection refused")}, nil)

	resp := get(t, s, "/readyz")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 when the store is down, got %d", resp.StatusCode)
	}
}

func TestStatusEndpointReportsStages(t *testing.T) {
	stages := map[string]service.StageRunner{
		"discovery": &stubRunner{stats: worker.StatsSnapshot{Handled: 7, Succeeded: 6, Failed: 1}},
	}
	s := NewOpsServer(nil, stages)

	resp := get(t, s, "/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var status StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("Status body does not decode: %v", err)
	}
	if status.Status != "running" {
		t.Errorf("Unexpected status: %s", status.Status)
	}
	if status.Stages["discovery"].Handled != 7 {
		t.Errorf("Expected discovery stats in the payload, got %+v", status.Stages)
	}
}

func TestMetricsEndpointServesPipelineCounters(t *testing.T) {
	metrics.PagesFetched.WithLabelValues("maison/a-vendre", "ok").Inc()

	s := NewOpsServer(nil, nil)
	resp := get(t, s, "/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read metrics body: %v", err)
	}
	if !strings.Contains(string(body), "harvest_pages_fetched_total") {
		t.Error("Expected the pipeline counters in the metrics exposition")
	}
}
