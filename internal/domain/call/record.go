package call

import "time"

// Record is the persisted summary of a finalized call: outcome, tags and
// the full dollar breakdown. Written once, after the terminal webhook.
type Record struct {
	CallID            string     `json:"call_id"`
	FromNumber        string     `json:"from_number"`
	ToNumber          string     `json:"to_number"`
	StartedAt         time.Time  `json:"started_at"`
	EndedAt           time.Time  `json:"ended_at"`
	DurationSeconds   float64    `json:"duration_seconds"`
	Outcome           Outcome    `json:"outcome"`
	EndReason         string     `json:"end_reason"`
	IsVoicemail       bool       `json:"is_voicemail"`
	IsRejected        bool       `json:"is_rejected"`
	TranscriptChars   int        `json:"transcript_chars"`
	TranscriptWords   int        `json:"transcript_words"`
	UserTagsFound     []string   `json:"user_tags_found"`
	SystemTagsFound   []string   `json:"system_tags_found"`
	TranscriptionCost float64    `json:"transcription_cost_usd"`
	SynthesisCost     float64    `json:"synthesis_cost_usd"`
	LLMCost           float64    `json:"llm_cost_usd"`
	TelephonyCost     float64    `json:"telephony_cost_usd"`
	TotalCost         float64    `json:"total_cost_usd"`
	CallbackRequested bool       `json:"callback_requested"`
	CallbackTime      *time.Time `json:"callback_time,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}
