// Package emitter delivers call-lifecycle webhooks and owns the
// ancillary per-call metadata those payloads need. Delivery is
// fire-and-forget: a short timeout, a log line on failure, no retries.
// Webhooks are telemetry, never part of the call's critical path.
package emitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/vantagevoice/callscope/internal/domain/call"
	"github.com/vantagevoice/callscope/internal/domain/event"
)

const deliveryTimeout = 3 * time.Second

// Emitter posts lifecycle events to the configured webhook endpoint.
type Emitter struct {
	url    string
	token  string
	client *http.Client
	log    *slog.Logger
	store  *store

	now func() time.Time
}

// New creates an Emitter posting to url. An empty url disables
// delivery; events are logged and dropped. token, when set, is sent as
// the X-Webhook-Token header.
func New(url, token string, log *slog.Logger) *Emitter {
	return &Emitter{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: deliveryTimeout},
		log:    log,
		store:  newStore(),
		now:    time.Now,
	}
}

// RegisterCall stores the phone numbers and start time for a call.
func (e *Emitter) RegisterCall(callID, fromNumber, toNumber string, startedAt time.Time) {
	e.store.upsert(callID, func(i *CallInfo) {
		i.FromNumber = fromNumber
		i.ToNumber = toNumber
		i.StartTime = startedAt
	})
}

// StoreCallTags stores the tag vocabularies supplied at dispatch.
func (e *Emitter) StoreCallTags(callID string, tags call.Tags) {
	e.store.upsert(callID, func(i *CallInfo) { i.Tags = tags })
}

// StoreVoicemailConfig stores the voicemail handling configuration.
func (e *Emitter) StoreVoicemailConfig(callID string, cfg call.VoicemailConfig) {
	e.store.upsert(callID, func(i *CallInfo) { i.Voicemail = cfg })
}

// StoreTransferConfig stores the human-transfer configuration.
func (e *Emitter) StoreTransferConfig(callID string, cfg call.TransferConfig) {
	e.store.upsert(callID, func(i *CallInfo) { i.Transfer = cfg })
}

// StoreCallSID records the telephony provider's call SID once known.
func (e *Emitter) StoreCallSID(callID, callSID string) {
	e.store.upsert(callID, func(i *CallInfo) { i.CallSID = callSID })
}

// MarkVoicemail records a voicemail detection result for the call.
func (e *Emitter) MarkVoicemail(callID string, isVoicemail bool) {
	e.store.upsert(callID, func(i *CallInfo) { i.IsVoicemail = isVoicemail })
}

// StoreRecordingURLs records the recording URLs fetched at call end.
func (e *Emitter) StoreRecordingURLs(callID string, urls []string) {
	e.store.upsert(callID, func(i *CallInfo) { i.RecordingURLs = urls })
}

// Info returns a copy of the stored metadata for a call.
func (e *Emitter) Info(callID string) (CallInfo, bool) {
	return e.store.get(callID)
}

// Purge drops all stored metadata for a call. Called after the
// terminal webhook so the long-running process never leaks state.
func (e *Emitter) Purge(callID string) {
	e.store.remove(callID)
	e.log.Debug("emitter state purged", "call_id", callID)
}

// SendConnected emits PHONE_CALL_CONNECTED.
func (e *Emitter) SendConnected(ctx context.Context, callID string) error {
	info, _ := e.store.get(callID)
	start := info.StartTime
	if start.IsZero() {
		start = e.now()
		e.store.upsert(callID, func(i *CallInfo) { i.StartTime = start })
	}
	return e.Send(ctx, event.Connected{
		Type:          event.TypeConnected,
		CallID:        callID,
		CallStartTime: start.UTC().Format(time.RFC3339),
	})
}

// SendEnded emits PHONE_CALL_ENDED with the outcome analysis.
func (e *Emitter) SendEnded(ctx context.Context, callID string, report call.OutcomeReport, endedAt time.Time) error {
	info, _ := e.store.get(callID)
	var start string
	if !info.StartTime.IsZero() {
		start = info.StartTime.UTC().Format(time.RFC3339)
	}
	return e.Send(ctx, event.Ended{
		Type:            event.TypeEnded,
		CallID:          callID,
		DurationSeconds: report.DurationSeconds,
		CallStartTime:   start,
		CallEndTime:     endedAt.UTC().Format(time.RFC3339),
		IsVoicemail:     report.IsVoicemail,
		IsRejected:      report.IsRejected,
		CallOutcome:     string(report.Outcome),
		EndReason:       report.EndReason,
	})
}

// SendLiveTranscript streams one utterance to the webhook endpoint.
func (e *Emitter) SendLiveTranscript(ctx context.Context, callID, text, sender string) error {
	return e.Send(ctx, event.LiveTranscript{
		Type:      event.TypeLiveTranscript,
		CallID:    callID,
		Text:      text,
		Sender:    sender,
		Timestamp: e.now().UTC().Format(time.RFC3339),
		IsPartial: true,
	})
}

// SendVoicemailDetected emits the immediate voicemail action event.
func (e *Emitter) SendVoicemailDetected(ctx context.Context, callID string, indicators []string) error {
	info, _ := e.store.get(callID)
	msg := ""
	if info.Voicemail.DetectionEnabled {
		msg = info.Voicemail.Message
	}
	return e.Send(ctx, event.VoicemailDetected{
		Type:             event.TypeVoicemailDetected,
		CallID:           callID,
		IsVoicemail:      true,
		DetectionResult:  "voicemail_detected_from_transcript",
		VoicemailMessage: msg,
		Indicators:       indicators,
		Timestamp:        e.now().UTC().Format(time.RFC3339),
	})
}

// SendTerminationRequested emits the caller-hangup action event.
func (e *Emitter) SendTerminationRequested(ctx context.Context, callID string, indicators []string) error {
	return e.Send(ctx, event.TerminationRequested{
		Type:       event.TypeTerminationRequested,
		CallID:     callID,
		Reason:     "user_request",
		Indicators: indicators,
		Timestamp:  e.now().UTC().Format(time.RFC3339),
	})
}

// SendTransferRequested emits the human-transfer action event.
func (e *Emitter) SendTransferRequested(ctx context.Context, callID, reason string) error {
	info, _ := e.store.get(callID)
	return e.Send(ctx, event.TransferRequested{
		Type:            event.TypeTransferRequested,
		CallID:          callID,
		Reason:          reason,
		TransferEnabled: info.Transfer.Enabled,
		TransferNumber:  info.Transfer.PhoneNumber,
		TransferMessage: info.Transfer.Message,
		Timestamp:       e.now().UTC().Format(time.RFC3339),
	})
}

// Send posts one payload. Failures are logged and returned for the
// caller's counters, but callers must treat them as non-fatal.
func (e *Emitter) Send(ctx context.Context, payload any) error {
	if e.url == "" {
		e.log.Debug("webhook url not configured, dropping event")
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		e.log.Error("webhook payload marshal failed", "error", err)
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, deliveryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.token != "" {
		req.Header.Set("X-Webhook-Token", e.token)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		e.log.Warn("webhook delivery failed", "error", err)
		return fmt.Errorf("deliver webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		e.log.Warn("webhook endpoint returned error", "status", resp.StatusCode)
		return fmt.Errorf("webhook endpoint status %d", resp.StatusCode)
	}

	e.log.Debug("webhook delivered", "status", resp.StatusCode, "bytes", len(body))
	return nil
}
