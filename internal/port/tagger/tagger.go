// Package tagger defines the LLM tag-classifier port (interface).
package tagger

import (
	"context"
	"time"
)

// Result is the strongly-typed outcome of a tag evaluation. Tags maps
// each evaluated tag description to its verdict; tags the model could
// not answer are absent.
type Result struct {
	UserTags   map[string]bool
	SystemTags map[string]bool

	CallbackRequested bool
	CallbackTime      time.Time

	// Estimated token usage of the evaluation request itself, so the
	// caller can bill it against the call.
	InputTokens  int
	OutputTokens int
}

// FoundUserTags returns the user tags that evaluated true.
func (r Result) FoundUserTags() []string {
	return trueKeys(r.UserTags)
}

// FoundSystemTags returns the system tags that evaluated true.
func (r Result) FoundSystemTags() []string {
	return trueKeys(r.SystemTags)
}

func trueKeys(m map[string]bool) []string {
	var out []string
	for k, v := range m {
		if v {
			out = append(out, k)
		}
	}
	return out
}

// Tagger evaluates free-form tag descriptions against a transcript.
// Implementations must degrade to an empty Result on failure rather
// than blocking call termination.
type Tagger interface {
	EvaluateTags(ctx context.Context, transcript string, userTags, systemTags []string) (Result, error)
}
