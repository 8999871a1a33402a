package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"firewatch.io/firewatch/internal/config"
	"firewatch.io/firewatch/internal/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
	_ = logger.Init("error", "json")
}

func testAppConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: 0, AllowCredentials: true},
		Log:    config.LogConfig{Level: "error", Format: "json"},
		Worker: config.WorkerConfig{GeneralPoolSize: 8, ActivityPoolSize: 8},
		Orchestration: config.OrchestrationConfig{
			TimeUnit:                time.Millisecond,
			RiskThreshold:           8,
			ActivityTimeoutUnits:    100,
			EscalationIntervalUnits: 1,
			EscalationMaxAttempts:   3,
		},
		Cache:        config.CacheConfig{SlidingUnits: 10, AbsoluteUnits: 60},
		Availability: config.AvailabilityConfig{Units: map[string]int{"medical": 10}},
	}
}

func TestBootstrapInMemory(t *testing.T) {
	app, err := Bootstrap(context.Background(), testAppConfig())
	if err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	defer app.Shutdown()

	if app.Router == nil || app.Engine == nil || app.Pools == nil {
		t.Fatal("Bootstrap() returned incomplete application")
	}

	if err := app.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
}

func TestBootstrapServesEndToEnd(t *testing.T) {
	app, err := Bootstrap(context.Background(), testAppConfig())
	if err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	defer app.Shutdown()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/disasters",
		strings.NewReader(`{"location":"inland-west","severity":2}`))
	req.Header.Set("Content-Type", "application/json")
	app.Router.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("create status = %d, want %d body=%s", w.Code, http.StatusAccepted, w.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	instanceID := resp["instance_id"]
	if instanceID == "" {
		t.Fatal("missing instance_id")
	}

	// The instance runs asynchronously; poll until it reaches a terminal
	// state.
	deadline := time.Now().Add(3 * time.Second)
	for {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/instances/"+instanceID, nil)
		app.Router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("get status = %d, want %d", w.Code, http.StatusOK)
		}

		var view struct {
			Status string `json:"status"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
			t.Fatalf("unmarshal view: %v", err)
		}
		if view.Status == "COMPLETED" {
			break
		}
		if view.Status == "FAILED" {
			t.Fatalf("instance failed: %s", w.Body.String())
		}
		if time.Now().After(deadline) {
			t.Fatalf("instance did not complete, last status %s", view.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}

	// Health endpoints are wired.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/health/ready", nil)
	app.Router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("readiness status = %d, want %d", w.Code, http.StatusOK)
	}
}
