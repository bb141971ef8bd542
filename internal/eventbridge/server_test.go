package eventbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kingrea/choreo/internal/config"
)

func TestSettingsFromConfig(t *testing.T) {
	enabled := false
	cfg := &config.Config{}
	cfg.Project.Bridge = config.BridgeConfig{Enabled: &enabled, Host: " 0.0.0.0 ", Port: 9001}
	settings := SettingsFromConfig(cfg)
	if settings.Port != 9001 {
		t.Fatalf("expected port 9001, got %d", settings.Port)
	}
	if settings.Host != "0.0.0.0" {
		t.Fatalf("expected host override, got %s", settings.Host)
	}
	if settings.Enabled {
		t.Fatalf("expected enabled=false from config")
	}
	defaults := SettingsFromConfig(nil)
	if !defaults.Enabled || defaults.Address() != "127.0.0.1:8765" {
		t.Fatalf("unexpected defaults %+v", defaults)
	}
}

func TestEventValidate(t *testing.T) {
	evt := Event{
		Version: EventSchemaVersion,
		EventID: "abc",
		Type:    TypeCompleted,
		BlockID: "blk",
		Handle:  "h-1",
	}
	if err := evt.Validate(); err != nil {
		t.Fatalf("expected valid event, got %v", err)
	}
	missingHandle := evt
	missingHandle.Handle = ""
	if err := missingHandle.Validate(); err == nil || !strings.Contains(err.Error(), "handle") {
		t.Fatalf("expected handle error, got %v", err)
	}
	unknown := evt
	unknown.Type = "exploded"
	if err := unknown.Validate(); err == nil {
		t.Fatalf("expected type error")
	}
	evt.Version = 99
	if err := evt.Validate(); err == nil {
		t.Fatalf("expected version error")
	}
}

func TestServerAcceptsCompletions(t *testing.T) {
	t.Parallel()
	fixed := time.Unix(1730000000, 0).UTC()
	recorded := make(chan Event, 1)
	settings := Settings{Enabled: true, Host: "127.0.0.1", Port: 0, MaxBodyBytes: 1024, ReadTimeout: time.Second, WriteTimeout: time.Second, IdleTimeout: time.Second}
	srv := NewServer(settings,
		WithClock(func() time.Time { return fixed }),
		WithProcessor(EventProcessorFunc(func(e Event) error {
			recorded <- e
			return nil
		})))
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
	})
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("start server: %v", err)
	}
	base := srv.BaseURL()
	resp, err := http.Get(base + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 health, got %d", resp.StatusCode)
	}
	payload := Event{
		Version: EventSchemaVersion,
		EventID: "evt-1",
		Type:    " Completed ",
		BlockID: "blk",
		Handle:  "h-1",
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	resp, err = http.Post(base+"/completions", "application/json", bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("post event: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	select {
	case evt := <-recorded:
		if !evt.ServerTime.Equal(fixed) {
			t.Fatalf("expected server time %s, got %s", fixed, evt.ServerTime)
		}
		if evt.Type != TypeCompleted {
			t.Fatalf("type not normalized: %q", evt.Type)
		}
	default:
		t.Fatalf("event not forwarded to processor")
	}
	if srv.Accepted() != 1 {
		t.Fatalf("accepted = %d, want 1", srv.Accepted())
	}
}

func TestServerRejectsBadRequests(t *testing.T) {
	settings := Settings{MaxBodyBytes: 64}
	settings.normalize()
	srv := NewServer(settings)
	handler := srv.Handler()

	cases := []struct {
		name   string
		method string
		body   string
		want   int
	}{
		{"method", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"json", http.MethodPost, "{", http.StatusBadRequest},
		{"invalid", http.MethodPost, `{"event_id":"x","type":"completed","block_id":"b"}`, http.StatusBadRequest},
		{"too large", http.MethodPost, `{"payload":"` + strings.Repeat("a", 512) + `"}`, http.StatusRequestEntityTooLarge},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, "/completions", strings.NewReader(tc.body))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, rec.Code)
		}
	}
	if srv.Rejected() != 3 || srv.Accepted() != 0 {
		t.Fatalf("rejected=%d accepted=%d, want 3 and 0", srv.Rejected(), srv.Accepted())
	}
}

func TestServeDrainsWhenContextEnds(t *testing.T) {
	settings := Settings{Enabled: true, Host: "127.0.0.1", Port: 0}
	settings.normalize()
	srv := NewServer(settings)
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for srv.Addr() == "" {
		if time.Now().After(deadline) {
			t.Fatalf("server never started listening")
		}
		time.Sleep(5 * time.Millisecond)
	}
	resp, err := http.Get(srv.BaseURL() + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	var health healthResponse
	err = json.NewDecoder(resp.Body).Decode(&health)
	resp.Body.Close()
	if err != nil || health.Status != string(StatusListening) {
		t.Fatalf("health = %+v (%v), want listening", health, err)
	}

	cancel()
	select {
	case err := <-served:
		if err != nil {
			t.Fatalf("serve returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("serve did not return after cancel")
	}
	if srv.Addr() != "" || srv.Status() != StatusIdle {
		t.Fatalf("server still bound: addr=%q status=%s", srv.Addr(), srv.Status())
	}
}

func TestServerDisabled(t *testing.T) {
	srv := NewServer(Settings{Enabled: false})
	if err := srv.Start(context.Background()); err == nil {
		t.Fatalf("expected disabled server to refuse start")
	}
}
