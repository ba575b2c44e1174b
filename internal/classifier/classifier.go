// Package classifier labels completed calls from transcript text and
// call-end signals: voicemail, caller hangup intent, transfer requests
// and rejections. All detection is best-effort string matching against
// a data-driven phrase table; it never errors.
package classifier

import (
	"strings"

	"github.com/vantagevoice/callscope/internal/domain/call"
)

// Match reports phrases of one category found in a transcript, split
// by indicator strength.
type Match struct {
	Strong []string
	Weak   []string
}

// Indicators returns every matched phrase regardless of strength.
func (m Match) Indicators() []string {
	return append(append([]string{}, m.Strong...), m.Weak...)
}

// scan is the single matcher behind every category detector.
func scan(transcript string, category Category) Match {
	lower := strings.ToLower(transcript)
	var m Match
	for _, p := range phraseTable {
		if p.Category != category || !strings.Contains(lower, p.Text) {
			continue
		}
		switch p.Kind {
		case KindStrong:
			m.Strong = append(m.Strong, p.Text)
		case KindWeak:
			m.Weak = append(m.Weak, p.Text)
		}
	}
	return m
}

// DetectVoicemail reports whether a transcript reads like an answering
// machine: any strong indicator, or at least two distinct weak ones.
func DetectVoicemail(transcript string) (bool, []string) {
	if transcript == "" {
		return false, nil
	}
	m := scan(transcript, CategoryVoicemail)
	if len(m.Strong) > 0 {
		return true, m.Indicators()
	}
	if len(m.Weak) >= 2 {
		return true, m.Indicators()
	}
	return false, m.Indicators()
}

// DetectCallEnd reports whether the caller asked to end the call.
func DetectCallEnd(transcript string) (bool, []string) {
	m := scan(transcript, CategoryCallEnd)
	return len(m.Strong) > 0, m.Indicators()
}

// DetectTransfer reports whether the caller asked for a human agent.
func DetectTransfer(transcript string) (bool, []string) {
	m := scan(transcript, CategoryTransfer)
	return len(m.Strong) > 0, m.Indicators()
}

// rejectionReasons is the end-reason vocabulary that marks a call as
// rejected regardless of duration.
var rejectionReasons = []string{
	"busy", "declined", "rejected", "no-answer", "failed", "cancel",
	"user-busy", "call-rejected", "unavailable", "timeout",
	"unreachable", "not-answered", "caller-cancelled",
	"recipient-busy", "line-busy", "network-unreachable",
	"call-failed", "invalid-number", "blocked", "service-unavailable",
	"temporary-failure", "destination-unreachable",
}

// DetectRejection applies the rejection heuristic: a known rejection
// end-reason, a sub-10s call that did not complete, or a sub-20s call
// ending busy/failed/canceled.
func DetectRejection(durationSeconds float64, endReason string) bool {
	reason := strings.ToLower(endReason)

	for _, r := range rejectionReasons {
		if strings.Contains(reason, r) {
			return true
		}
	}
	if durationSeconds < 10 && reason != "completed" && reason != "hangup" {
		return true
	}
	if durationSeconds < 20 {
		switch reason {
		case "busy", "failed", "canceled":
			return true
		}
	}
	return false
}

// AnalyzeOutcome combines the voicemail flag and rejection heuristic
// into the overall call outcome label. Priority: voicemail, rejected,
// failed (very short), completed.
func AnalyzeOutcome(durationSeconds float64, endReason string, isVoicemail bool) call.OutcomeReport {
	rejected := DetectRejection(durationSeconds, endReason)

	var outcome call.Outcome
	switch {
	case isVoicemail:
		outcome = call.OutcomeVoicemail
	case rejected:
		outcome = call.OutcomeRejected
	case durationSeconds < 10:
		outcome = call.OutcomeFailed
	default:
		outcome = call.OutcomeCompleted
	}

	return call.OutcomeReport{
		Outcome:         outcome,
		IsVoicemail:     isVoicemail,
		IsRejected:      rejected,
		EndReason:       endReason,
		DurationSeconds: durationSeconds,
	}
}
