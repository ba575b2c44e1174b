// Package tracker maintains per-call usage accounting and running cost
// breakdowns, reconciling live provider reports against transcript
// estimates so the two sources never double-count.
package tracker

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/vantagevoice/callscope/internal/domain"
	"github.com/vantagevoice/callscope/internal/domain/call"
	"github.com/vantagevoice/callscope/internal/domain/cost"
	"github.com/vantagevoice/callscope/internal/domain/usage"
	"github.com/vantagevoice/callscope/internal/pricing"
)

// Usage context tags. Live tags come from real-time pipeline callbacks;
// estimate tags from the one-shot transcript heuristic at call end and
// carry the "_from_transcript" suffix that marks them as estimates.
const (
	ContextLiveTranscription = "live_transcription"
	ContextLiveSynthesis     = "live_synthesis"
	ContextLiveAgentResponse = "live_agent_response"

	ContextTranscriptionEstimate = "speech_recognition_from_transcript"
	ContextSynthesisEstimate     = "agent_responses_from_transcript"
	ContextLLMEstimate           = "agent_conversation"
)

// Tracker is the process-wide accounting engine. All methods are safe
// for concurrent use across call IDs; mutations for an unregistered
// call log a warning and no-op so a tracking fault can never unwind
// into the call path.
type Tracker struct {
	reg *registry
	log *slog.Logger

	now func() time.Time
}

// New creates a Tracker.
func New(log *slog.Logger) *Tracker {
	return &Tracker{
		reg: newRegistry(),
		log: log,
		now: time.Now,
	}
}

// StartCall registers zeroed metrics and cost state for a call.
func (t *Tracker) StartCall(callID string, p call.Providers) {
	m := &usage.CallMetrics{
		CallID:        callID,
		Transcription: usage.ServiceUsage{Provider: p.TranscriptionProvider, Model: p.TranscriptionModel},
		Synthesis:     usage.ServiceUsage{Provider: p.SynthesisProvider, Model: p.SynthesisModel},
		LLM:           usage.LLMUsage{Provider: p.LLMProvider, Model: p.LLMModel},
	}
	b := &cost.Breakdown{
		TranscriptionProvider: p.TranscriptionProvider,
		SynthesisProvider:     p.SynthesisProvider,
		LLMProvider:           p.LLMProvider,
	}

	t.reg.mu.Lock()
	t.reg.register(callID, m, b, t.now())
	active := t.reg.size()
	t.reg.mu.Unlock()

	t.log.Info("call tracking started",
		"call_id", callID,
		"transcription", p.TranscriptionProvider+"/"+p.TranscriptionModel,
		"synthesis", p.SynthesisProvider+"/"+p.SynthesisModel,
		"llm", p.LLMProvider+"/"+p.LLMModel,
		"active_calls", active)
}

// Registered reports whether tracking state exists for a call.
func (t *Tracker) Registered(callID string) bool {
	t.reg.mu.Lock()
	defer t.reg.mu.Unlock()
	_, _, ok := t.reg.get(callID)
	return ok
}

// StartTime returns when tracking began for a call.
func (t *Tracker) StartTime(callID string) (time.Time, bool) {
	t.reg.mu.Lock()
	defer t.reg.mu.Unlock()
	st, ok := t.reg.startTimes[callID]
	return st, ok
}

// AddTranscriptionUsage records seconds of transcribed audio and its
// marginal cost. An estimate arriving after live data is dropped; a
// live report arriving after only estimates resets the service first.
// Same-source events always accumulate.
func (t *Tracker) AddTranscriptionUsage(callID string, seconds float64, model, context string) {
	t.reg.mu.Lock()
	defer t.reg.mu.Unlock()

	m, b, ok := t.reg.get(callID)
	if !ok {
		t.log.Warn("transcription usage for unregistered call", "call_id", callID)
		return
	}

	if context == ContextTranscriptionEstimate && m.Transcription.HasLiveEvents() {
		t.log.Debug("dropping transcription estimate, live data present",
			"call_id", callID, "events", m.Transcription.UsageCount)
		return
	}
	if context == ContextLiveTranscription && m.Transcription.AllEstimated() {
		t.log.Info("replacing transcription estimate with live data", "call_id", callID)
		m.Transcription.Reset()
		b.Transcription = 0
		b.TranscriptionSeconds = 0
	}

	m.Transcription.Add(t.now().UTC(), seconds, context)
	b.TranscriptionSeconds += seconds

	mdl := firstNonEmpty(model, m.Transcription.Model)
	c := pricing.TranscriptionCost(m.Transcription.Provider, mdl, seconds)
	b.Transcription += c
	b.Recompute()

	t.log.Debug("transcription usage added",
		"call_id", callID, "seconds", seconds, "context", context, "cost_usd", c)
}

// AddSynthesisUsage records synthesized characters and their marginal
// cost, applying the same estimate/live dedup rule.
func (t *Tracker) AddSynthesisUsage(callID string, characters int, model, context string) {
	t.reg.mu.Lock()
	defer t.reg.mu.Unlock()

	m, b, ok := t.reg.get(callID)
	if !ok {
		t.log.Warn("synthesis usage for unregistered call", "call_id", callID)
		return
	}

	if context == ContextSynthesisEstimate && m.Synthesis.HasLiveEvents() {
		t.log.Debug("dropping synthesis estimate, live data present",
			"call_id", callID, "events", m.Synthesis.UsageCount)
		return
	}
	if context == ContextLiveSynthesis && m.Synthesis.AllEstimated() {
		t.log.Info("replacing synthesis estimate with live data", "call_id", callID)
		m.Synthesis.Reset()
		b.Synthesis = 0
		b.SynthesisCharacters = 0
	}

	m.Synthesis.Add(t.now().UTC(), float64(characters), context)
	b.SynthesisCharacters += characters

	mdl := firstNonEmpty(model, m.Synthesis.Model)
	c := pricing.SynthesisCost(m.Synthesis.Provider, mdl, float64(characters))
	b.Synthesis += c
	b.Recompute()

	t.log.Debug("synthesis usage added",
		"call_id", callID, "characters", characters, "context", context, "cost_usd", c)
}

// AddLLMUsage records one model request's token counts. A transcript
// estimate is dropped when any live agent response was already billed.
func (t *Tracker) AddLLMUsage(callID string, inputTokens, outputTokens int, model, context string) {
	t.reg.mu.Lock()
	defer t.reg.mu.Unlock()

	m, b, ok := t.reg.get(callID)
	if !ok {
		t.log.Warn("llm usage for unregistered call", "call_id", callID)
		return
	}

	if context == ContextLLMEstimate && m.LLM.HasLiveContext() {
		t.log.Debug("dropping llm estimate, live data present", "call_id", callID)
		return
	}

	m.LLM.Add(inputTokens, outputTokens, fmt.Sprintf("%s:%d/%d", context, inputTokens, outputTokens))
	b.LLMInputTokens += inputTokens
	b.LLMOutputTokens += outputTokens

	mdl := firstNonEmpty(model, m.LLM.Model, pricing.DefaultLLMModel)
	c := pricing.LLMCost(m.LLM.Provider, mdl, inputTokens, outputTokens)
	b.LLM += c
	b.Recompute()

	t.log.Debug("llm usage added",
		"call_id", callID, "input_tokens", inputTokens, "output_tokens", outputTokens,
		"context", context, "cost_usd", c)
}

// AddTelephonyCost sets the telephony component from a real billing
// record when one is available, otherwise from the flat per-minute
// estimate for the call type, billed per whole minute rounded up.
// Recording cost is added on both paths.
func (t *Tracker) AddTelephonyCost(callID string, durationSeconds float64, callType string, recordingEnabled bool, billing *cost.BillingRecord) {
	t.reg.mu.Lock()
	defer t.reg.mu.Unlock()

	_, b, ok := t.reg.get(callID)
	if !ok {
		t.log.Warn("telephony cost for unregistered call", "call_id", callID)
		return
	}

	b.CallDurationSeconds = durationSeconds

	var total float64
	if billing != nil {
		minutes := billing.DurationMinutes
		total = billing.CostUSD
		if recordingEnabled {
			total += minutes * pricing.RecordingRatePerMinute
		}
		t.log.Info("using real telephony billing",
			"call_id", callID, "cost_usd", billing.CostUSD, "call_sid", billing.CallSID)
	} else {
		minutes := math.Ceil(durationSeconds / 60)
		total = minutes * float64(pricing.TelephonyRate(callType))
		if recordingEnabled {
			total += minutes * pricing.RecordingRatePerMinute
		}
		t.log.Info("using estimated telephony cost",
			"call_id", callID, "cost_usd", total, "call_type", callType)
	}

	b.Telephony = total
	b.Recompute()
}

// UpdateCallMetadata records the actual call duration and transcript
// statistics once the call has ended.
func (t *Tracker) UpdateCallMetadata(callID string, durationSeconds float64, transcript string) {
	t.reg.mu.Lock()
	defer t.reg.mu.Unlock()

	m, b, ok := t.reg.get(callID)
	if !ok {
		t.log.Warn("metadata update for unregistered call", "call_id", callID)
		return
	}

	m.CallDurationSeconds = durationSeconds
	m.TranscriptChars = len(transcript)
	m.TranscriptWords = len(strings.Fields(transcript))
	b.CallDurationSeconds = durationSeconds
}

// EstimateUsageFromTranscript fills in usage for any service that
// received zero live reports: transcription is billed for the full
// call duration, synthesis for the character count of the agent-side
// lines, and the language model from word-count token heuristics.
func (t *Tracker) EstimateUsageFromTranscript(callID, transcript string, durationSeconds float64) {
	t.reg.mu.Lock()
	m, _, ok := t.reg.get(callID)
	if !ok {
		t.reg.mu.Unlock()
		t.log.Warn("usage estimation for unregistered call", "call_id", callID)
		return
	}
	needTranscription := m.Transcription.UsageCount == 0 && durationSeconds > 0
	needSynthesis := m.Synthesis.UsageCount == 0
	needLLM := m.LLM.RequestsCount == 0
	t.reg.mu.Unlock()

	if needTranscription {
		t.AddTranscriptionUsage(callID, durationSeconds, "", ContextTranscriptionEstimate)
		t.log.Info("estimated transcription usage from call duration",
			"call_id", callID, "seconds", durationSeconds)
	}

	botText := call.BotText(transcript)
	if needSynthesis && len(botText) > 0 {
		t.AddSynthesisUsage(callID, len(botText), "", ContextSynthesisEstimate)
		t.log.Info("estimated synthesis usage from agent lines",
			"call_id", callID, "characters", len(botText))
	}

	if needLLM {
		totalWords := len(strings.Fields(transcript))
		agentWords := len(strings.Fields(botText))
		in := totalWords * 2
		out := int(float64(agentWords) * 1.3)
		if in > 0 || out > 0 {
			t.AddLLMUsage(callID, in, out, "", ContextLLMEstimate)
			t.log.Info("estimated llm usage from transcript",
				"call_id", callID, "input_tokens", in, "output_tokens", out)
		}
	}
}

// Metrics returns the serialized usage snapshot for a call.
func (t *Tracker) Metrics(callID string) (usage.Snapshot, error) {
	t.reg.mu.Lock()
	defer t.reg.mu.Unlock()

	m, _, ok := t.reg.get(callID)
	if !ok {
		return usage.Snapshot{}, fmt.Errorf("call %s: %w", callID, domain.ErrNotFound)
	}
	return m.Snapshot(t.now()), nil
}

// CostBreakdown returns a copy of the running breakdown for a call.
func (t *Tracker) CostBreakdown(callID string) (cost.Breakdown, error) {
	t.reg.mu.Lock()
	defer t.reg.mu.Unlock()

	_, b, ok := t.reg.get(callID)
	if !ok {
		return cost.Breakdown{}, fmt.Errorf("call %s: %w", callID, domain.ErrNotFound)
	}
	return *b, nil
}

// AIServicesBreakdown computes the AI-side cost report (transcription,
// synthesis, LLM; telephony excluded) from current usage.
func (t *Tracker) AIServicesBreakdown(callID string) (cost.AIServices, error) {
	t.reg.mu.Lock()
	defer t.reg.mu.Unlock()

	m, _, ok := t.reg.get(callID)
	if !ok {
		return cost.AIServices{}, fmt.Errorf("call %s: %w", callID, domain.ErrNotFound)
	}

	tc := pricing.TranscriptionCost(m.Transcription.Provider, m.Transcription.Model, m.Transcription.TotalUsage)
	sc := pricing.SynthesisCost(m.Synthesis.Provider, m.Synthesis.Model, m.Synthesis.TotalUsage)
	lc := pricing.LLMCost(m.LLM.Provider, m.LLM.Model, m.LLM.InputTokens, m.LLM.OutputTokens)

	return cost.AIServices{
		CallID: callID,
		CostBreakdown: cost.AIServicesCosts{
			TranscriptionCostUSD: cost.Round6(tc),
			SynthesisCostUSD:     cost.Round6(sc),
			LLMCostUSD:           cost.Round6(lc),
			TotalAIServicesUSD:   cost.Round6(tc + sc + lc),
		},
		CostDetails: cost.AIServiceDetails{
			Transcription: cost.TranscriptionDetail{
				Provider:     m.Transcription.Provider,
				Model:        m.Transcription.Model,
				TotalSeconds: m.Transcription.TotalUsage,
				CostUSD:      cost.Round6(tc),
			},
			Synthesis: cost.SynthesisDetail{
				Provider:        m.Synthesis.Provider,
				Model:           m.Synthesis.Model,
				TotalCharacters: int(m.Synthesis.TotalUsage),
				CostUSD:         cost.Round6(sc),
			},
			LLM: cost.LLMDetail{
				Provider:     m.LLM.Provider,
				Model:        m.LLM.Model,
				InputTokens:  m.LLM.InputTokens,
				OutputTokens: m.LLM.OutputTokens,
				TotalTokens:  m.LLM.TotalTokens,
				CostUSD:      cost.Round6(lc),
			},
		},
	}, nil
}

// FinalizeCallCost stamps the call duration (computed from the start
// time when negative) and returns the complete serialized breakdown.
// It only reads usage, so repeated calls return identical reports.
func (t *Tracker) FinalizeCallCost(callID string, durationSeconds float64) (cost.Report, error) {
	t.reg.mu.Lock()
	defer t.reg.mu.Unlock()

	_, b, ok := t.reg.get(callID)
	if !ok {
		return cost.Report{}, fmt.Errorf("call %s: %w", callID, domain.ErrNotFound)
	}

	if durationSeconds < 0 {
		if st, ok := t.reg.startTimes[callID]; ok {
			durationSeconds = t.now().Sub(st).Seconds()
		} else {
			durationSeconds = 0
		}
	}
	b.CallDurationSeconds = durationSeconds

	return b.Report(callID, t.now()), nil
}

// Cleanup removes every trace of a call from the registry. Subsequent
// mutations for the ID are logged no-ops.
func (t *Tracker) Cleanup(callID string) {
	t.reg.mu.Lock()
	removed := t.reg.remove(callID)
	remaining := t.reg.size()
	t.reg.mu.Unlock()

	if removed {
		t.log.Info("call tracking cleaned up", "call_id", callID, "active_calls", remaining)
	}
}

// ActiveCalls reports how many calls are currently tracked.
func (t *Tracker) ActiveCalls() int {
	t.reg.mu.Lock()
	defer t.reg.mu.Unlock()
	return t.reg.size()
}

func firstNonEmpty(ss ...string) string {
	for _, s := range ss {
		if s != "" {
			return s
		}
	}
	return ""
}
