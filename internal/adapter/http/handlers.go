package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/vantagevoice/callscope/internal/domain/call"
	"github.com/vantagevoice/callscope/internal/domain/cost"
	"github.com/vantagevoice/callscope/internal/domain/usage"
	"github.com/vantagevoice/callscope/internal/service"
)

// CallAPI is the slice of the call service the HTTP layer depends on.
type CallAPI interface {
	Dispatch(ctx context.Context, req service.DispatchRequest) (*call.Call, error)
	Connected(ctx context.Context, callID, callSID string) error
	Ended(ctx context.Context, callID string, durationSeconds float64, endReason string) (call.OutcomeReport, error)
	TranscriptComplete(ctx context.Context, callID, transcript string, durationSeconds float64, endReason, callType string) error
	LiveTranscript(ctx context.Context, callID, text, sender string) error

	AddTranscriptionUsage(callID string, seconds float64, model, context string)
	AddSynthesisUsage(callID string, characters int, model, context string)
	AddLLMUsage(callID string, inputTokens, outputTokens int, model, context string)

	UsageMetrics(callID string) (usage.Snapshot, error)
	CostReport(callID string) (cost.Report, error)
	Record(ctx context.Context, callID string) (*call.Record, error)
	Records(ctx context.Context, limit int) ([]call.Record, error)
	ActiveCalls() int
}

// Handlers bundles the HTTP handlers with their dependencies.
type Handlers struct {
	Calls CallAPI
}

// DispatchCall registers a new call for tracking.
func (h *Handlers) DispatchCall(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[service.DispatchRequest](w, r)
	if !ok {
		return
	}

	c, err := h.Calls.Dispatch(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "dispatch failed")
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// CallConnected handles the pipeline's pickup notification.
func (h *Handlers) CallConnected(w http.ResponseWriter, r *http.Request) {
	body, ok := readJSON[struct {
		CallSID string `json:"call_sid"`
	}](w, r)
	if !ok {
		return
	}

	// Webhook delivery failures are reported in logs, not to the pipeline.
	_ = h.Calls.Connected(r.Context(), urlParam(r, "callID"), body.CallSID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CallEnded handles the pipeline's teardown notification and returns
// the outcome classification.
func (h *Handlers) CallEnded(w http.ResponseWriter, r *http.Request) {
	body, ok := readJSON[struct {
		DurationSeconds float64 `json:"duration_seconds"`
		EndReason       string  `json:"end_reason"`
	}](w, r)
	if !ok {
		return
	}

	report, _ := h.Calls.Ended(r.Context(), urlParam(r, "callID"), body.DurationSeconds, body.EndReason)
	writeJSON(w, http.StatusOK, report)
}

// CompleteTranscript finalizes a call from its full transcript.
func (h *Handlers) CompleteTranscript(w http.ResponseWriter, r *http.Request) {
	body, ok := readJSON[struct {
		Transcript      string  `json:"transcript"`
		DurationSeconds float64 `json:"duration_seconds"`
		EndReason       string  `json:"end_reason"`
		CallType        string  `json:"call_type"`
	}](w, r)
	if !ok {
		return
	}

	callID := urlParam(r, "callID")
	if err := h.Calls.TranscriptComplete(r.Context(), callID, body.Transcript,
		body.DurationSeconds, body.EndReason, body.CallType); err != nil {
		writeDomainError(w, err, "call not tracked")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "finalized", "call_id": callID})
}

// LiveTranscript ingests one streamed utterance.
func (h *Handlers) LiveTranscript(w http.ResponseWriter, r *http.Request) {
	body, ok := readJSON[struct {
		Text   string `json:"text"`
		Sender string `json:"sender"`
	}](w, r)
	if !ok {
		return
	}

	_ = h.Calls.LiveTranscript(r.Context(), urlParam(r, "callID"), body.Text, body.Sender)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// TranscriptionUsage ingests one live transcription usage report.
func (h *Handlers) TranscriptionUsage(w http.ResponseWriter, r *http.Request) {
	body, ok := readJSON[struct {
		Seconds float64 `json:"seconds"`
		Model   string  `json:"model"`
		Context string  `json:"context"`
	}](w, r)
	if !ok {
		return
	}

	h.Calls.AddTranscriptionUsage(urlParam(r, "callID"), body.Seconds, body.Model, body.Context)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// SynthesisUsage ingests one live synthesis usage report.
func (h *Handlers) SynthesisUsage(w http.ResponseWriter, r *http.Request) {
	body, ok := readJSON[struct {
		Characters int    `json:"characters"`
		Model      string `json:"model"`
		Context    string `json:"context"`
	}](w, r)
	if !ok {
		return
	}

	h.Calls.AddSynthesisUsage(urlParam(r, "callID"), body.Characters, body.Model, body.Context)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// LLMUsage ingests one live language-model usage report.
func (h *Handlers) LLMUsage(w http.ResponseWriter, r *http.Request) {
	body, ok := readJSON[struct {
		InputTokens  int    `json:"input_tokens"`
		OutputTokens int    `json:"output_tokens"`
		Model        string `json:"model"`
		Context      string `json:"context"`
	}](w, r)
	if !ok {
		return
	}

	h.Calls.AddLLMUsage(urlParam(r, "callID"), body.InputTokens, body.OutputTokens, body.Model, body.Context)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// GetUsage returns the live usage snapshot for an active call.
func (h *Handlers) GetUsage(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Calls.UsageMetrics(urlParam(r, "callID"))
	if err != nil {
		writeDomainError(w, err, "call not tracked")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GetCost returns the live cost report for an active call.
func (h *Handlers) GetCost(w http.ResponseWriter, r *http.Request) {
	rep, err := h.Calls.CostReport(urlParam(r, "callID"))
	if err != nil {
		writeDomainError(w, err, "call not tracked")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// GetRecord returns one persisted call record.
func (h *Handlers) GetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Calls.Record(r.Context(), urlParam(r, "callID"))
	if err != nil {
		writeDomainError(w, err, "call record not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ListRecords returns the most recently persisted call records.
func (h *Handlers) ListRecords(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	recs, err := h.Calls.Records(r.Context(), limit)
	if err != nil {
		writeDomainError(w, err, "list records failed")
		return
	}
	if recs == nil {
		recs = []call.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// TelephonyStatusCallback ingests the telephony provider's call status
// callback (form-encoded). The call_id query parameter ties the
// provider's SID back to the tracked call.
func (h *Handlers) TelephonyStatusCallback(w http.ResponseWriter, r *http.Request) {
	callID := r.URL.Query().Get("call_id")
	if callID == "" {
		writeError(w, http.StatusBadRequest, "call_id query parameter is required")
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form body")
		return
	}

	callSID := r.PostFormValue("CallSid")
	status := r.PostFormValue("CallStatus")
	duration, _ := strconv.ParseFloat(r.PostFormValue("CallDuration"), 64)

	switch status {
	case "in-progress", "answered":
		_ = h.Calls.Connected(r.Context(), callID, callSID)
	case "completed", "busy", "failed", "no-answer", "canceled":
		_, _ = h.Calls.Ended(r.Context(), callID, duration, status)
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
