package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cors-devproxy/internal/config"
	"cors-devproxy/internal/metrics"
)

func newTestClient(timeoutSeconds int, m *metrics.Metrics) *UpstreamClient {
	cfg := &config.Config{
		Upstream: config.UpstreamConfig{
			TimeoutSeconds:  timeoutSeconds,
			IdleConnections: 10,
		},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewUpstreamClient(cfg, logger, m)
}

func TestUpstreamClient_Get(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %q, want GET", r.Method)
		}
		if ua := r.Header.Get("User-Agent"); ua != UserAgent {
			t.Errorf("User-Agent = %q, want %q", ua, UserAgent)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"balance": 42}`))
	}))
	defer srv.Close()

	c := newTestClient(10, nil)

	resp, err := c.Get(context.Background(), srv.URL+"/test")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if string(resp.Body) != `{"balance": 42}` {
		t.Errorf("body = %q, want %q", string(resp.Body), `{"balance": 42}`)
	}
}

func TestUpstreamClient_Get_NonErrorStatusIsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	resp, err := newTestClient(10, nil).Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusAccepted)
	}
}

func TestUpstreamClient_Get_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "missing", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestClient(10, nil).Get(context.Background(), srv.URL+"/missing")
	if err == nil {
		t.Fatal("Get() expected error for 404, got nil")
	}

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("error type = %T, want *HTTPError", err)
	}
	if httpErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want %d", httpErr.StatusCode, http.StatusNotFound)
	}
	if httpErr.Reason != "Not Found" {
		t.Errorf("Reason = %q, want %q", httpErr.Reason, "Not Found")
	}
}

func TestUpstreamClient_Get_CustomReasonPhrase(t *testing.T) {
	// Hijack the connection so the status line carries a non-standard reason.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Error("response writer does not support hijacking")
			return
		}
		conn, buf, err := hj.Hijack()
		if err != nil {
			t.Errorf("Hijack: %v", err)
			return
		}
		defer conn.Close()
		_, _ = buf.WriteString("HTTP/1.1 418 Short And Stout\r\nContent-Length: 0\r\nConnection: close\r\n\r\n")
		_ = buf.Flush()
	}))
	defer srv.Close()

	_, err := newTestClient(10, nil).Get(context.Background(), srv.URL)

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("error type = %T, want *HTTPError", err)
	}
	if httpErr.Reason != "Short And Stout" {
		t.Errorf("Reason = %q, want %q", httpErr.Reason, "Short And Stout")
	}
}

func TestUpstreamClient_Get_ConnectionRefused(t *testing.T) {
	// Grab a free port and close it so nothing is listening there.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	_, err = newTestClient(1, nil).Get(context.Background(), "http://"+addr+"/nonexistent")
	if err == nil {
		t.Fatal("Get() expected error for unreachable host, got nil")
	}

	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("error type = %T, want *TransportError", err)
	}
	if transportErr.Error() == "" {
		t.Error("expected non-empty transport error message")
	}
}

func TestUpstreamClient_Get_InvalidURL(t *testing.T) {
	_, err := newTestClient(1, nil).Get(context.Background(), "http://example.com/%zz")

	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("error type = %T, want *TransportError", err)
	}
}

func TestUpstreamClient_Get_CanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	_, err := newTestClient(30, nil).Get(ctx, srv.URL+"/slow")
	if err == nil {
		t.Fatal("Get() expected error for canceled context, got nil")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("errors.Is(err, context.Canceled) = false; err = %v", err)
	}
}

func TestUpstreamClient_Get_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(3 * time.Second):
		}
	}))
	defer srv.Close()

	_, err := newTestClient(1, nil).Get(context.Background(), srv.URL+"/slow")
	if err == nil {
		t.Fatal("Get() expected timeout error, got nil")
	}
	if !IsTimeout(err) {
		t.Errorf("IsTimeout(%v) = false, want true", err)
	}
}

func TestUpstreamClient_RecordsMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	m := metrics.New()
	c := newTestClient(10, m)
	_, _ = c.Get(context.Background(), srv.URL+"/ok")
	_, _ = c.Get(context.Background(), srv.URL+"/missing")

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	got := make(map[string]float64)
	for _, f := range families {
		if f.GetName() != "cors_devproxy_upstream_outcomes_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			labels := make(map[string]string)
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			got[labels["outcome"]+"/"+labels["status_code"]] = metric.GetCounter().GetValue()
		}
	}

	if got["success/200"] != 1 {
		t.Errorf("success/200 = %v, want 1", got["success/200"])
	}
	if got["http_error/404"] != 1 {
		t.Errorf("http_error/404 = %v, want 1", got["http_error/404"])
	}
}

func TestIsTimeout(t *testing.T) {
	if !IsTimeout(context.DeadlineExceeded) {
		t.Error("IsTimeout(DeadlineExceeded) = false, want true")
	}
	if IsTimeout(errors.New("connection refused")) {
		t.Error("IsTimeout(plain error) = true, want false")
	}
}
