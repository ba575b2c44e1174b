package emitter

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/vantagevoice/callscope/internal/domain/call"
)

type capture struct {
	mu       sync.Mutex
	payloads []map[string]any
	headers  []http.Header
}

func (c *capture) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload map[string]any
		json.Unmarshal(body, &payload)
		c.mu.Lock()
		c.payloads = append(c.payloads, payload)
		c.headers = append(c.headers, r.Header.Clone())
		c.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}
}

func (c *capture) last(t *testing.T) map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.payloads) == 0 {
		t.Fatal("no webhook received")
	}
	return c.payloads[len(c.payloads)-1]
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSendConnected(t *testing.T) {
	var c capture
	srv := httptest.NewServer(c.handler())
	defer srv.Close()

	e := New(srv.URL, "", discard())
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	e.RegisterCall("c1", "+15550100", "+15550199", start)

	if err := e.SendConnected(context.Background(), "c1"); err != nil {
		t.Fatalf("SendConnected: %v", err)
	}

	payload := c.last(t)
	if payload["type"] != "PHONE_CALL_CONNECTED" {
		t.Errorf("type = %v", payload["type"])
	}
	if payload["call_id"] != "c1" {
		t.Errorf("call_id = %v", payload["call_id"])
	}
	if payload["call_start_time"] != "2025-06-01T12:00:00Z" {
		t.Errorf("call_start_time = %v", payload["call_start_time"])
	}
}

func TestSendEnded(t *testing.T) {
	var c capture
	srv := httptest.NewServer(c.handler())
	defer srv.Close()

	e := New(srv.URL, "", discard())
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	e.RegisterCall("c1", "+15550100", "+15550199", start)

	report := call.OutcomeReport{
		Outcome:         call.OutcomeRejected,
		IsRejected:      true,
		EndReason:       "no-answer",
		DurationSeconds: 8,
	}
	if err := e.SendEnded(context.Background(), "c1", report, start.Add(8*time.Second)); err != nil {
		t.Fatalf("SendEnded: %v", err)
	}

	payload := c.last(t)
	if payload["call_outcome"] != "rejected" {
		t.Errorf("call_outcome = %v", payload["call_outcome"])
	}
	if payload["is_rejected"] != true {
		t.Errorf("is_rejected = %v", payload["is_rejected"])
	}
	if payload["end_reason"] != "no-answer" {
		t.Errorf("end_reason = %v", payload["end_reason"])
	}
	if payload["duration_seconds"] != float64(8) {
		t.Errorf("duration_seconds = %v", payload["duration_seconds"])
	}
}

func TestSendLiveTranscriptMarksPartial(t *testing.T) {
	var c capture
	srv := httptest.NewServer(c.handler())
	defer srv.Close()

	e := New(srv.URL, "", discard())
	if err := e.SendLiveTranscript(context.Background(), "c1", "hello", "bot"); err != nil {
		t.Fatalf("SendLiveTranscript: %v", err)
	}

	payload := c.last(t)
	if payload["is_partial"] != true {
		t.Error("live transcript must be marked partial")
	}
	if payload["sender"] != "bot" {
		t.Errorf("sender = %v", payload["sender"])
	}
}

func TestSendSetsWebhookToken(t *testing.T) {
	var c capture
	srv := httptest.NewServer(c.handler())
	defer srv.Close()

	e := New(srv.URL, "sekrit", discard())
	if err := e.SendConnected(context.Background(), "c1"); err != nil {
		t.Fatalf("SendConnected: %v", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if got := c.headers[0].Get("X-Webhook-Token"); got != "sekrit" {
		t.Errorf("X-Webhook-Token = %q", got)
	}
}

func TestSendFailureIsNonFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	e := New(srv.URL, "", discard())
	err := e.SendConnected(context.Background(), "c1")
	if err == nil {
		t.Fatal("expected error on non-2xx status")
	}
	// A second event still goes out; delivery state is not poisoned.
	if err := e.SendLiveTranscript(context.Background(), "c1", "hi", "human"); err == nil {
		t.Fatal("expected error on non-2xx status")
	}
}

func TestSendWithoutURLDropsEvent(t *testing.T) {
	e := New("", "", discard())
	if err := e.SendConnected(context.Background(), "c1"); err != nil {
		t.Fatalf("unconfigured emitter must not error, got %v", err)
	}
}

func TestPurgeRemovesCallState(t *testing.T) {
	e := New("", "", discard())
	e.RegisterCall("c1", "+15550100", "+15550199", time.Now())
	e.StoreCallTags("c1", call.Tags{UserTags: []string{"interested"}})
	e.StoreVoicemailConfig("c1", call.VoicemailConfig{DetectionEnabled: true, Message: "hi"})
	e.StoreCallSID("c1", "CA123")

	if info, ok := e.Info("c1"); !ok || info.CallSID != "CA123" {
		t.Fatalf("stored info missing: %+v ok=%v", info, ok)
	}

	e.Purge("c1")

	if _, ok := e.Info("c1"); ok {
		t.Fatal("call info survived purge")
	}
}
