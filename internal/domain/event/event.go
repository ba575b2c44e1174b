// Package event defines the webhook payload types emitted over a
// call's lifecycle.
package event

import (
	"github.com/vantagevoice/callscope/internal/domain/cost"
	"github.com/vantagevoice/callscope/internal/domain/usage"
)

// Type identifies a lifecycle event.
type Type string

const (
	TypeConnected            Type = "PHONE_CALL_CONNECTED"
	TypeEnded                Type = "PHONE_CALL_ENDED"
	TypeTranscriptComplete   Type = "TRANSCRIPT_COMPLETE"
	TypeLiveTranscript       Type = "LIVE_TRANSCRIPT"
	TypeVoicemailDetected    Type = "VOICEMAIL_DETECTED"
	TypeHumanDetected        Type = "HUMAN_DETECTED"
	TypeTerminationRequested Type = "CALL_TERMINATION_REQUESTED"
	TypeTransferRequested    Type = "CALL_TRANSFER_REQUESTED"
)

// Connected announces call pickup.
type Connected struct {
	Type          Type   `json:"type"`
	CallID        string `json:"call_id"`
	CallStartTime string `json:"call_start_time"`
}

// Ended carries the outcome analysis of a finished call.
type Ended struct {
	Type            Type    `json:"type"`
	CallID          string  `json:"call_id"`
	DurationSeconds float64 `json:"duration_seconds"`
	CallStartTime   string  `json:"call_start_time"`
	CallEndTime     string  `json:"call_end_time"`
	IsVoicemail     bool    `json:"is_voicemail"`
	IsRejected      bool    `json:"is_rejected"`
	CallOutcome     string  `json:"call_outcome"`
	EndReason       string  `json:"end_reason"`
}

// TranscriptComplete is the terminal payload: transcript, tags, usage
// metrics and the full cost breakdown. After it is sent all per-call
// state is purged.
type TranscriptComplete struct {
	Type               Type                `json:"type"`
	CallID             string              `json:"call_id"`
	FullTranscript     string              `json:"full_transcript"`
	UserTagsFound      []string            `json:"user_tags_found"`
	SystemTagsFound    []string            `json:"system_tags_found"`
	VoicemailDetected  bool                `json:"voicemail_detected"`
	UsageMetricsData   *usage.Snapshot     `json:"usage_metrics_data"`
	AIServicesCosts    *cost.AIServices    `json:"ai_services_cost_breakdown"`
	TotalCallCosts     *cost.TotalCall     `json:"total_call_cost_breakdown"`
	RecordingURLs      []string            `json:"recording_urls"`
	BillingRecord      *cost.BillingRecord `json:"telephony_billing_data"`
	CallbackRequested  bool                `json:"callback_requested"`
	CallbackTime       string              `json:"callback_time,omitempty"`
}

// LiveTranscript streams one utterance while the call is in progress.
type LiveTranscript struct {
	Type      Type   `json:"type"`
	CallID    string `json:"call_id"`
	Text      string `json:"text"`
	Sender    string `json:"sender"`
	Timestamp string `json:"timestamp"`
	IsPartial bool   `json:"is_partial"`
}

// VoicemailDetected fires as soon as answering-machine speech is
// recognized, so the pipeline can switch to the voicemail message.
type VoicemailDetected struct {
	Type             Type     `json:"type"`
	CallID           string   `json:"call_id"`
	IsVoicemail      bool     `json:"is_voicemail"`
	DetectionResult  string   `json:"detection_result"`
	VoicemailMessage string   `json:"voicemail_message"`
	Indicators       []string `json:"transcript_indicators,omitempty"`
	Timestamp        string   `json:"timestamp"`
}

// TerminationRequested fires when the caller asks to end the call.
type TerminationRequested struct {
	Type       Type     `json:"type"`
	CallID     string   `json:"call_id"`
	Reason     string   `json:"termination_reason"`
	Indicators []string `json:"termination_indicators"`
	Timestamp  string   `json:"timestamp"`
}

// TransferRequested fires when the caller asks for a human agent.
type TransferRequested struct {
	Type            Type   `json:"type"`
	CallID          string `json:"call_id"`
	Reason          string `json:"transfer_reason"`
	TransferEnabled bool   `json:"transfer_enabled"`
	TransferNumber  string `json:"transfer_number"`
	TransferMessage string `json:"transfer_message"`
	Timestamp       string `json:"timestamp"`
}
