package debughttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"linkguard/internal/rotation"
	logx "linkguard/pkg/logx"
)

func testStatus() rotation.Status {
	return rotation.Status{
		Job:      rotation.JobRunning,
		Interval: 5 * time.Minute,
		Cycles:   3,
		State:    rotation.PublishState{LastMessageID: 42, LastChat: "@target"},
	}
}

func TestStatusEndpoint(t *testing.T) {
	t.Parallel()
	s := New(logx.Nop(), testStatus)
	h := s.handler(Config{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", http.NoBody))
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}
	var body statusBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Job != "running" || body.Cycles != 3 || body.MessageID != 42 || body.Interval != "5m0s" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestTokenRequired(t *testing.T) {
	t.Parallel()
	h := New(logx.Nop(), testStatus).handler(Config{Token: "s3cret"})

	tests := []struct {
		name   string
		target string
		header string
		want   int
	}{
		{"missing", "/healthz", "", http.StatusUnauthorized},
		{"wrong query", "/healthz?token=nope", "", http.StatusUnauthorized},
		{"query", "/healthz?token=s3cret", "", http.StatusOK},
		{"bearer", "/healthz", "Bearer s3cret", http.StatusOK},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.target, http.NoBody)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tt.want {
			t.Fatalf("%s: code = %d, want %d", tt.name, rec.Code, tt.want)
		}
	}
}

func TestPprofOnlyWhenEnabled(t *testing.T) {
	t.Parallel()
	s := New(logx.Nop(), testStatus)

	rec := httptest.NewRecorder()
	s.handler(Config{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", http.NoBody))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("pprof disabled: code = %d, want 404", rec.Code)
	}

	rec = httptest.NewRecorder()
	s.handler(Config{Pprof: true}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", http.NoBody))
	if rec.Code != http.StatusOK {
		t.Fatalf("pprof enabled: code = %d, want 200", rec.Code)
	}
}

func TestApplyEnableDisable(t *testing.T) {
	s := New(logx.Nop(), testStatus)
	t.Cleanup(func() { s.Stop(context.Background()) })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	s.Apply(ctx, Config{Enabled: true, Addr: "127.0.0.1:0"})
	addr := s.Addr()
	if addr == "" {
		t.Fatal("expected server to expose address")
	}
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/healthz", http.NoBody)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz code = %d", resp.StatusCode)
	}

	s.Apply(ctx, Config{Enabled: false})
	if got := s.Addr(); got != "" {
		t.Fatalf("expected server to stop, still at %s", got)
	}
}

func TestRefusesPublicAddrWithoutToken(t *testing.T) {
	t.Parallel()
	s := New(logx.Nop(), testStatus)
	s.Apply(context.Background(), Config{Enabled: true, Addr: "0.0.0.0:0"})
	if got := s.Addr(); got != "" {
		s.Stop(context.Background())
		t.Fatalf("server should refuse to start, bound %s", got)
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()
	tests := map[string]bool{
		"127.0.0.1:6060": true,
		"localhost:1":    true,
		"[::1]:80":       true,
		":6060":          false,
		"10.0.0.1:6060":  false,
		"garbage":        false,
	}
	for in, want := range tests {
		if got := isLoopbackAddr(in); got != want {
			t.Fatalf("isLoopbackAddr(%q) = %v, want %v", in, got, want)
		}
	}
}
