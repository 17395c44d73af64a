package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gatewall/relay/internal/embed"
	"github.com/gatewall/relay/internal/gate"
)

// ---------------------------------------------------------------------------
// Minimal in-memory collaborators for driving the real engine.
// ---------------------------------------------------------------------------

type memRow struct {
	address     string
	fingerprint string
	ts          time.Time
}

type memMessages struct {
	rows []memRow
}

func (m *memMessages) Insert(_ context.Context, address, fingerprint string) (string, error) {
	m.rows = append(m.rows, memRow{address, fingerprint, time.Now()})
	return fmt.Sprintf("m%d", len(m.rows)), nil
}

func (m *memMessages) CountRecent(_ context.Context, address, fingerprint string, window time.Duration) (int, error) {
	since := time.Now().Add(-window)
	n := 0
	for _, r := range m.rows {
		if r.address == address && r.fingerprint == fingerprint && r.ts.After(since) {
			n++
		}
	}
	return n, nil
}

func (m *memMessages) DeleteNewest(context.Context, string, int) error { return nil }

func (m *memMessages) EnforceCap(context.Context, string, int) (int64, error) { return 0, nil }

func (m *memMessages) SweepExpired(context.Context, time.Duration) (int64, error) { return 0, nil }

type memBans struct {
	until     map[string]time.Time
	lookupErr error
}

func (m *memBans) BannedUntil(_ context.Context, address string) (time.Time, bool, error) {
	if m.lookupErr != nil {
		return time.Time{}, false, m.lookupErr
	}
	u, ok := m.until[address]
	return u, ok, nil
}

func (m *memBans) Ban(_ context.Context, address string, until time.Time) error {
	if m.until == nil {
		m.until = make(map[string]time.Time)
	}
	m.until[address] = until
	return nil
}

type stubDeliverer struct {
	err   error
	count int
}

func (s *stubDeliverer) Deliver(context.Context, embed.Payload) error {
	s.count++
	return s.err
}

type denyAll struct{}

func (denyAll) Allow(context.Context, string) bool { return false }

// ---------------------------------------------------------------------------

const validBody = `{"embeds":[{"title":"t","description":"d","color":6591981,"fields":[
	{"name":"🪙 Name:","value":"v1"},
	{"name":"📈 Generation:","value":"v2"},
	{"name":"👥 Players:","value":"v3"},
	{"name":"🔗 Server Link:","value":"v4"},
	{"name":"💻 Job-ID (PC):","value":"v5"}]}]}`

type harness struct {
	srv       *Server
	bans      *memBans
	messages  *memMessages
	deliverer *stubDeliverer
}

func newHarness(t *testing.T, throttle Throttler) *harness {
	t.Helper()
	h := &harness{
		bans:      &memBans{},
		messages:  &memMessages{},
		deliverer: &stubDeliverer{},
	}
	gk := gate.New(gate.DefaultPolicy(), h.messages, h.bans, h.deliverer)
	h.srv = New(DefaultConfig(), gk, throttle, nil)
	return h
}

func post(h *harness, body, addr string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = addr + ":12345"
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.srv.handleInbound(w, req)
	return w
}

func TestHandleInbound_Accepted(t *testing.T) {
	h := newHarness(t, nil)
	w := post(h, validBody, "1.2.3.4", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", w.Code, w.Body)
	}
	if h.deliverer.count != 1 {
		t.Errorf("delivered %d times, want 1", h.deliverer.count)
	}
}

func TestHandleInbound_MethodAndContentType(t *testing.T) {
	h := newHarness(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "1.2.3.4:1"
	w := httptest.NewRecorder()
	h.srv.handleInbound(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d, want 405", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(validBody))
	req.Header.Set("Content-Type", "text/plain")
	req.RemoteAddr = "1.2.3.4:1"
	w = httptest.NewRecorder()
	h.srv.handleInbound(w, req)
	if w.Code != http.StatusUnsupportedMediaType {
		t.Errorf("text/plain status = %d, want 415", w.Code)
	}
}

func TestHandleInbound_BadJSON(t *testing.T) {
	h := newHarness(t, nil)
	w := post(h, `{"embeds": [`, "1.2.3.4", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandleInbound_Malformed(t *testing.T) {
	h := newHarness(t, nil)
	body := strings.Replace(validBody, `"value":"v1"`, `"value":"join my discord"`, 1)
	w := post(h, body, "1.2.3.4", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if !strings.Contains(w.Body.String(), "blacklisted") {
		t.Errorf("body %q does not name the violation", w.Body)
	}
}

func TestHandleInbound_BannedBeforeMethodCheck(t *testing.T) {
	h := newHarness(t, nil)
	h.bans.until = map[string]time.Time{"1.2.3.4": time.Now().Add(time.Hour)}

	// Even a GET from a banned address answers 403, not 405.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "1.2.3.4:1"
	w := httptest.NewRecorder()
	h.srv.handleInbound(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestHandleInbound_DuplicateBan(t *testing.T) {
	h := newHarness(t, nil)
	for i := 0; i < 3; i++ {
		if w := post(h, validBody, "9.9.9.9", nil); w.Code != http.StatusOK {
			t.Fatalf("submission %d: status = %d", i+1, w.Code)
		}
	}
	w := post(h, validBody, "9.9.9.9", nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("4th submission status = %d, want 403", w.Code)
	}
}

func TestHandleInbound_InfrastructureError(t *testing.T) {
	h := newHarness(t, nil)
	h.bans.lookupErr = errors.New("db down")
	w := post(h, validBody, "1.2.3.4", nil)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if strings.Contains(w.Body.String(), "db down") {
		t.Error("internal error detail leaked to the client")
	}
}

func TestHandleInbound_DeliveryFailed(t *testing.T) {
	h := newHarness(t, nil)
	h.deliverer.err = errors.New("webhook 500")
	w := post(h, validBody, "1.2.3.4", nil)
	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", w.Code)
	}
}

func TestHandleInbound_Throttled(t *testing.T) {
	h := newHarness(t, denyAll{})
	w := post(h, validBody, "1.2.3.4", nil)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", w.Code)
	}
}

func TestClientAddress(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		remote string
		want   string
	}{
		{"cdn header wins", map[string]string{"CF-Connecting-IP": "7.7.7.7", "X-Forwarded-For": "8.8.8.8"}, "9.9.9.9:1", "7.7.7.7"},
		{"xff first hop", map[string]string{"X-Forwarded-For": "8.8.8.8, 10.0.0.1"}, "9.9.9.9:1", "8.8.8.8"},
		{"remote addr", nil, "9.9.9.9:1", "9.9.9.9"},
		{"garbage remote", nil, "not-an-addr", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			if got := clientAddress(req); got != tt.want {
				t.Errorf("clientAddress() = %q, want %q", got, tt.want)
			}
		})
	}
}
