// Package usage holds per-call metered usage accumulators for the AI
// services on a call pipeline: transcription seconds, synthesis
// characters and LLM tokens.
package usage

import (
	"math"
	"strings"
	"time"
)

// Event is one recorded usage report with its source context tag.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Amount    float64   `json:"amount"`
	Context   string    `json:"context"`
}

// IsEstimateContext reports whether a context tag marks usage derived
// from the final transcript rather than a live provider report.
// Estimate tags carry the "_from_transcript" suffix; a bare substring
// match would also catch the live_transcription tag.
func IsEstimateContext(context string) bool {
	return strings.HasSuffix(context, "_from_transcript")
}

// ServiceUsage accumulates metered usage for one service (transcription
// or synthesis). Invariants: UsageCount == len(Details) and
// TotalUsage == sum of Details amounts.
type ServiceUsage struct {
	Provider   string  `json:"provider"`
	Model      string  `json:"model"`
	TotalUsage float64 `json:"total_usage"`
	UsageCount int     `json:"usage_count"`
	Details    []Event `json:"usage_details"`
}

// Add records one usage event and updates the cumulative counters.
func (s *ServiceUsage) Add(at time.Time, amount float64, context string) {
	s.TotalUsage += amount
	s.UsageCount++
	s.Details = append(s.Details, Event{Timestamp: at, Amount: amount, Context: context})
}

// Reset zeroes the accumulators. Provider and model are kept.
func (s *ServiceUsage) Reset() {
	s.TotalUsage = 0
	s.UsageCount = 0
	s.Details = nil
}

// AllEstimated reports whether every recorded event came from
// transcript estimation. Returns false when nothing is recorded.
func (s *ServiceUsage) AllEstimated() bool {
	if len(s.Details) == 0 {
		return false
	}
	return !s.HasLiveEvents()
}

// HasLiveEvents reports whether any recorded event came from a live
// provider report. Only live data may drop an incoming estimate;
// estimates accumulate with each other.
func (s *ServiceUsage) HasLiveEvents() bool {
	for _, d := range s.Details {
		if !IsEstimateContext(d.Context) {
			return true
		}
	}
	return false
}

// LLMUsage accumulates token usage for the call's language model.
// Invariant: TotalTokens == InputTokens + OutputTokens at all times.
type LLMUsage struct {
	Provider      string   `json:"provider"`
	Model         string   `json:"model"`
	InputTokens   int      `json:"input_tokens"`
	OutputTokens  int      `json:"output_tokens"`
	TotalTokens   int      `json:"total_tokens"`
	RequestsCount int      `json:"requests_count"`
	Contexts      []string `json:"usage_contexts"`
}

// Add records one LLM request's token counts.
func (l *LLMUsage) Add(inputTokens, outputTokens int, context string) {
	l.InputTokens += inputTokens
	l.OutputTokens += outputTokens
	l.TotalTokens = l.InputTokens + l.OutputTokens
	l.RequestsCount++
	l.Contexts = append(l.Contexts, context)
}

// HasLiveContext reports whether any live agent-response usage was
// already recorded, which causes transcript estimates to be dropped.
func (l *LLMUsage) HasLiveContext() bool {
	for _, c := range l.Contexts {
		if strings.Contains(c, "live_agent_response") {
			return true
		}
	}
	return false
}

// CallMetrics is the per-call aggregate of all metered usage plus
// end-of-call transcript statistics.
type CallMetrics struct {
	CallID              string
	Transcription       ServiceUsage
	Synthesis           ServiceUsage
	LLM                 LLMUsage
	CallDurationSeconds float64
	TranscriptChars     int
	TranscriptWords     int
}

// Snapshot is the serialized form of CallMetrics embedded in the
// terminal webhook payload as usage_metrics_data.
type Snapshot struct {
	CallMetadata  Metadata              `json:"call_metadata"`
	Transcription TranscriptionSnapshot `json:"transcription_usage"`
	Synthesis     SynthesisSnapshot     `json:"synthesis_usage"`
	LLM           LLMSnapshot           `json:"llm_usage"`
}

// Metadata carries call-level context alongside the usage figures.
type Metadata struct {
	CallID              string  `json:"call_id"`
	CallDurationSeconds float64 `json:"call_duration_seconds"`
	TranscriptChars     int     `json:"transcript_characters"`
	TranscriptWords     int     `json:"transcript_words"`
	TrackedAt           string  `json:"tracked_at"`
}

type TranscriptionSnapshot struct {
	Provider     string  `json:"provider"`
	Model        string  `json:"model"`
	TotalSeconds float64 `json:"total_seconds"`
	RequestCount int     `json:"request_count"`
	Details      []Event `json:"usage_details"`
}

type SynthesisSnapshot struct {
	Provider        string  `json:"provider"`
	Model           string  `json:"model"`
	TotalCharacters int     `json:"total_characters"`
	RequestCount    int     `json:"request_count"`
	Details         []Event `json:"usage_details"`
}

type LLMSnapshot struct {
	Provider     string   `json:"provider"`
	Model        string   `json:"model"`
	InputTokens  int      `json:"input_tokens"`
	OutputTokens int      `json:"output_tokens"`
	TotalTokens  int      `json:"total_tokens"`
	RequestCount int      `json:"request_count"`
	Contexts     []string `json:"usage_contexts"`
}

// Snapshot serializes the metrics for webhook delivery. now stamps the
// tracked_at field.
func (m *CallMetrics) Snapshot(now time.Time) Snapshot {
	return Snapshot{
		CallMetadata: Metadata{
			CallID:              m.CallID,
			CallDurationSeconds: round2(m.CallDurationSeconds),
			TranscriptChars:     m.TranscriptChars,
			TranscriptWords:     m.TranscriptWords,
			TrackedAt:           now.UTC().Format(time.RFC3339),
		},
		Transcription: TranscriptionSnapshot{
			Provider:     m.Transcription.Provider,
			Model:        m.Transcription.Model,
			TotalSeconds: round2(m.Transcription.TotalUsage),
			RequestCount: m.Transcription.UsageCount,
			Details:      m.Transcription.Details,
		},
		Synthesis: SynthesisSnapshot{
			Provider:        m.Synthesis.Provider,
			Model:           m.Synthesis.Model,
			TotalCharacters: int(m.Synthesis.TotalUsage),
			RequestCount:    m.Synthesis.UsageCount,
			Details:         m.Synthesis.Details,
		},
		LLM: LLMSnapshot{
			Provider:     m.LLM.Provider,
			Model:        m.LLM.Model,
			InputTokens:  m.LLM.InputTokens,
			OutputTokens: m.LLM.OutputTokens,
			TotalTokens:  m.LLM.TotalTokens,
			RequestCount: m.LLM.RequestsCount,
			Contexts:     m.LLM.Contexts,
		},
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
