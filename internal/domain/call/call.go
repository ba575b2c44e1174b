// Package call defines domain types for a single tracked phone call.
package call

import (
	"strings"
	"time"
)

// Providers identifies the AI services assembled into a call's pipeline.
type Providers struct {
	TranscriptionProvider string `json:"transcription_provider"`
	TranscriptionModel    string `json:"transcription_model"`
	SynthesisProvider     string `json:"synthesis_provider"`
	SynthesisModel        string `json:"synthesis_model"`
	LLMProvider           string `json:"llm_provider"`
	LLMModel              string `json:"llm_model"`
}

// DefaultProviders returns the pipeline used when a dispatch request leaves
// provider fields empty.
func DefaultProviders() Providers {
	return Providers{
		TranscriptionProvider: "deepgram",
		TranscriptionModel:    "nova-2",
		SynthesisProvider:     "eleven_labs",
		SynthesisModel:        "default",
		LLMProvider:           "openai",
		LLMModel:              "gpt-4o-mini",
	}
}

// Call is one outbound voice-agent phone conversation.
type Call struct {
	ID               string    `json:"id"`
	FromNumber       string    `json:"from_number"`
	ToNumber         string    `json:"to_number"`
	StartedAt        time.Time `json:"started_at"`
	Providers        Providers `json:"providers"`
	RecordingEnabled bool      `json:"recording_enabled"`
}

// Role identifies the speaker of a transcript line.
type Role string

const (
	RoleBot   Role = "bot"
	RoleHuman Role = "human"
)

// Line is one speaker-attributed utterance in a transcript.
type Line struct {
	Speaker Role   `json:"speaker"`
	Text    string `json:"text"`
}

// Transcript is the ordered sequence of utterances in a call.
type Transcript []Line

// String renders the transcript in the BOT:/HUMAN: wire convention.
func (t Transcript) String() string {
	var b strings.Builder
	for i, line := range t {
		if i > 0 {
			b.WriteByte('\n')
		}
		switch line.Speaker {
		case RoleBot:
			b.WriteString("BOT: ")
		default:
			b.WriteString("HUMAN: ")
		}
		b.WriteString(line.Text)
	}
	return b.String()
}

// BotText returns the agent-side text of the transcript with speaker
// prefixes stripped, joined by single spaces. This is the text the
// synthesis estimator bills for.
func BotText(transcript string) string {
	var parts []string
	for _, line := range strings.Split(transcript, "\n") {
		if rest, ok := strings.CutPrefix(line, "BOT:"); ok {
			parts = append(parts, strings.TrimSpace(rest))
		}
	}
	return strings.Join(parts, " ")
}

// ParseTranscript converts BOT:/HUMAN:-prefixed text into a Transcript.
// Unprefixed lines continue the previous speaker; leading unprefixed
// lines default to the human side.
func ParseTranscript(text string) Transcript {
	var t Transcript
	current := RoleHuman
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "BOT:"):
			current = RoleBot
			line = strings.TrimSpace(strings.TrimPrefix(line, "BOT:"))
		case strings.HasPrefix(line, "HUMAN:"):
			current = RoleHuman
			line = strings.TrimSpace(strings.TrimPrefix(line, "HUMAN:"))
		}
		if line != "" {
			t = append(t, Line{Speaker: current, Text: line})
		}
	}
	return t
}

// Outcome labels how a completed call ended.
type Outcome string

const (
	OutcomeVoicemail Outcome = "voicemail"
	OutcomeRejected  Outcome = "rejected"
	OutcomeFailed    Outcome = "failed"
	OutcomeCompleted Outcome = "completed"
)

// OutcomeReport is the result of end-of-call outcome analysis.
type OutcomeReport struct {
	Outcome         Outcome `json:"outcome"`
	IsVoicemail     bool    `json:"is_voicemail"`
	IsRejected      bool    `json:"is_rejected"`
	EndReason       string  `json:"end_reason"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// VoicemailConfig controls what happens when a call reaches voicemail.
type VoicemailConfig struct {
	DetectionEnabled bool   `json:"detection_enabled"`
	Message          string `json:"message"`
	RecordingEnabled bool   `json:"recording_enabled"`
}

// TransferConfig controls human-agent transfer for a call.
type TransferConfig struct {
	Enabled     bool   `json:"enabled"`
	PhoneNumber string `json:"phone_number"`
	Message     string `json:"message"`
}

// Tags holds the tag vocabularies supplied at dispatch time.
type Tags struct {
	UserTags   []string `json:"user_tags"`
	SystemTags []string `json:"system_tags"`
}
