// Package cost holds the per-call dollar accounting and the serialized
// breakdown payloads embedded in webhooks.
package cost

import (
	"math"
	"time"
)

// Breakdown is the running cost accounting for one call. Total must be
// recomputed after every mutation so it never drifts from the sum of
// its components.
type Breakdown struct {
	Transcription float64
	Synthesis     float64
	LLM           float64
	Telephony     float64
	Total         float64

	// Usage mirrors carried for the serialized payload.
	TranscriptionSeconds float64
	SynthesisCharacters  int
	LLMInputTokens       int
	LLMOutputTokens      int
	CallDurationSeconds  float64

	TranscriptionProvider string
	SynthesisProvider     string
	LLMProvider           string
}

// Recompute re-derives Total from the four component costs.
func (b *Breakdown) Recompute() {
	b.Total = b.Transcription + b.Synthesis + b.LLM + b.Telephony
}

// Summary is the nested cost_breakdown object in webhook payloads.
type Summary struct {
	TranscriptionCost float64 `json:"transcription_cost"`
	SynthesisCost     float64 `json:"synthesis_cost"`
	LLMCost           float64 `json:"llm_cost"`
	TelephonyCost     float64 `json:"telephony_cost"`
	TotalCost         float64 `json:"total_cost"`
}

// UsageMirror repeats the raw usage figures next to the dollar amounts.
type UsageMirror struct {
	TranscriptionSeconds float64 `json:"transcription_seconds"`
	SynthesisCharacters  int     `json:"synthesis_characters"`
	LLMInputTokens       int     `json:"llm_input_tokens"`
	LLMOutputTokens      int     `json:"llm_output_tokens"`
	CallDurationSeconds  float64 `json:"call_duration_seconds"`
}

// Providers names the services the figures were billed against.
type Providers struct {
	TranscriptionProvider string `json:"transcription_provider"`
	SynthesisProvider     string `json:"synthesis_provider"`
	LLMProvider           string `json:"llm_provider"`
}

// Report is the full serialized breakdown returned by cost finalization.
type Report struct {
	CostBreakdown Summary        `json:"cost_breakdown"`
	UsageMetrics  UsageMirror    `json:"usage_metrics"`
	Providers     Providers      `json:"providers"`
	CallMetadata  ReportMetadata `json:"call_metadata"`
}

type ReportMetadata struct {
	CallID              string  `json:"call_id"`
	CallDurationSeconds float64 `json:"call_duration_seconds"`
	CostCalculatedAt    string  `json:"cost_calculated_at"`
}

// Report serializes the breakdown with dollar figures rounded to
// microdollar precision.
func (b *Breakdown) Report(callID string, now time.Time) Report {
	return Report{
		CostBreakdown: Summary{
			TranscriptionCost: Round6(b.Transcription),
			SynthesisCost:     Round6(b.Synthesis),
			LLMCost:           Round6(b.LLM),
			TelephonyCost:     Round6(b.Telephony),
			TotalCost:         Round6(b.Total),
		},
		UsageMetrics: UsageMirror{
			TranscriptionSeconds: round2(b.TranscriptionSeconds),
			SynthesisCharacters:  b.SynthesisCharacters,
			LLMInputTokens:       b.LLMInputTokens,
			LLMOutputTokens:      b.LLMOutputTokens,
			CallDurationSeconds:  round2(b.CallDurationSeconds),
		},
		Providers: Providers{
			TranscriptionProvider: b.TranscriptionProvider,
			SynthesisProvider:     b.SynthesisProvider,
			LLMProvider:           b.LLMProvider,
		},
		CallMetadata: ReportMetadata{
			CallID:              callID,
			CallDurationSeconds: round2(b.CallDurationSeconds),
			CostCalculatedAt:    now.UTC().Format(time.RFC3339),
		},
	}
}

// AIServices is the ai_services_cost_breakdown webhook object: the
// AI-side costs without telephony.
type AIServices struct {
	CallID        string           `json:"call_id"`
	CostBreakdown AIServicesCosts  `json:"cost_breakdown"`
	CostDetails   AIServiceDetails `json:"cost_details"`
}

type AIServicesCosts struct {
	TranscriptionCostUSD float64 `json:"transcription_cost_usd"`
	SynthesisCostUSD     float64 `json:"synthesis_cost_usd"`
	LLMCostUSD           float64 `json:"llm_cost_usd"`
	TotalAIServicesUSD   float64 `json:"total_ai_services_cost_usd"`
}

type AIServiceDetails struct {
	Transcription TranscriptionDetail `json:"transcription"`
	Synthesis     SynthesisDetail     `json:"synthesis"`
	LLM           LLMDetail           `json:"llm"`
}

type TranscriptionDetail struct {
	Provider     string  `json:"provider"`
	Model        string  `json:"model"`
	TotalSeconds float64 `json:"total_seconds"`
	CostUSD      float64 `json:"cost_usd"`
}

type SynthesisDetail struct {
	Provider        string  `json:"provider"`
	Model           string  `json:"model"`
	TotalCharacters int     `json:"total_characters"`
	CostUSD         float64 `json:"cost_usd"`
}

type LLMDetail struct {
	Provider     string  `json:"provider"`
	Model        string  `json:"model"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// TotalCall is the total_call_cost_breakdown webhook object combining
// AI-services costs with telephony.
type TotalCall struct {
	AIServicesTotalUSD float64        `json:"ai_services_total_usd"`
	TelephonyCostUSD   float64        `json:"telephony_cost_usd"`
	GrandTotalUSD      float64        `json:"grand_total_usd"`
	CostBreakdown      TotalCallCosts `json:"cost_breakdown"`
}

type TotalCallCosts struct {
	TranscriptionCostUSD float64 `json:"transcription_cost_usd"`
	SynthesisCostUSD     float64 `json:"synthesis_cost_usd"`
	LLMCostUSD           float64 `json:"llm_cost_usd"`
	TelephonyCostUSD     float64 `json:"telephony_cost_usd"`
}

// CombineTotalCall folds the AI-services breakdown and the telephony
// cost into the grand-total payload.
func CombineTotalCall(ai AIServices, telephonyUSD float64) TotalCall {
	return TotalCall{
		AIServicesTotalUSD: ai.CostBreakdown.TotalAIServicesUSD,
		TelephonyCostUSD:   Round6(telephonyUSD),
		GrandTotalUSD:      Round6(ai.CostBreakdown.TotalAIServicesUSD + telephonyUSD),
		CostBreakdown: TotalCallCosts{
			TranscriptionCostUSD: ai.CostBreakdown.TranscriptionCostUSD,
			SynthesisCostUSD:     ai.CostBreakdown.SynthesisCostUSD,
			LLMCostUSD:           ai.CostBreakdown.LLMCostUSD,
			TelephonyCostUSD:     Round6(telephonyUSD),
		},
	}
}

// BillingRecord is the real per-call billing data fetched from the
// telephony provider, when available.
type BillingRecord struct {
	CostUSD         float64 `json:"cost_usd"`
	DurationMinutes float64 `json:"duration_minutes"`
	RatePerMinute   float64 `json:"rate_per_minute"`
	CallSID         string  `json:"call_sid"`
	Status          string  `json:"status"`
}

// Round6 rounds a dollar amount to microdollar precision for payloads.
func Round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
