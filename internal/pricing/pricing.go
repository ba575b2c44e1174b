// Package pricing holds the static provider/model rate tables and the
// lookup fallback chain used by all cost computation. Rates are 2025
// pay-as-you-go list prices.
package pricing

import "strings"

// Rate is a per-unit price: dollars per second-derived minute for
// transcription, per character for synthesis, per minute for telephony.
type Rate float64

// TokenRate prices LLM usage per token, split by direction.
type TokenRate struct {
	Input  float64
	Output float64
}

// transcriptionRates is priced per minute of audio.
var transcriptionRates = map[string]map[string]Rate{
	"deepgram": {
		"nova-2":   0.0036,
		"enhanced": 0.0115,
		"base":     0.0095,
		"whisper":  0.0048,
		"default":  0.0036,
	},
}

// synthesisRates is priced per character.
var synthesisRates = map[string]map[string]Rate{
	"rime": {
		"mist":    0.000016,
		"arcana":  0.000020,
		"default": 0.000016,
	},
	"elevenlabs": {
		"turbo_v2":               0.000018,
		"multilingual_v2":        0.000030,
		"eleven_multilingual_v2": 0.000030,
		"eleven_flash_v2":        0.000018,
		"eleven_turbo_v2":        0.000018,
		"default":                0.000018,
	},
	// Alternative naming used by some pipeline configs.
	"eleven_labs": {
		"turbo_v2":               0.000018,
		"multilingual_v2":        0.000030,
		"eleven_multilingual_v2": 0.000030,
		"eleven_flash_v2":        0.000018,
		"eleven_turbo_v2":        0.000018,
		"default":                0.000018,
	},
	"streamelements":  {"default": 0},
	"stream_elements": {"default": 0},
}

// llmRates is priced per token.
var llmRates = map[string]map[string]TokenRate{
	"openai": {
		"gpt-4":         {Input: 0.000005, Output: 0.000020},
		"gpt-4o":        {Input: 0.000005, Output: 0.000020},
		"gpt-4o-mini":   {Input: 0.00000015, Output: 0.0000006},
		"gpt-4.1-nano":  {Input: 0.0000001, Output: 0.0000004},
		"gpt-4-turbo":   {Input: 0.000010, Output: 0.000030},
		"gpt-3.5-turbo": {Input: 0.0000005, Output: 0.0000015},
	},
}

// DefaultLLMModel is the fallback when an LLM model has no rate entry.
const DefaultLLMModel = "gpt-4o-mini"

// Telephony per-minute rates by call type.
var telephonyRates = map[string]Rate{
	"outbound_local":    0.014,
	"outbound_tollfree": 0.014,
	"outbound_default":  0.014,
	"browser_app":       0.004,
}

// RecordingRatePerMinute is billed on top of the call when recording
// is enabled, on both the real-billing and estimated paths.
const RecordingRatePerMinute = 0.0025

// lookup resolves provider/model in a two-level table: exact model,
// then the provider's "default" row, then zero. An unknown provider
// must under-bill, never error.
func lookup[R Rate | TokenRate](table map[string]map[string]R, provider, model string) (R, bool) {
	var zero R
	models, ok := table[strings.ToLower(provider)]
	if !ok {
		return zero, false
	}
	if model == "" {
		model = "default"
	}
	if r, ok := models[strings.ToLower(model)]; ok {
		return r, true
	}
	r, ok := models["default"]
	return r, ok
}

// TranscriptionRate returns the per-minute rate for a provider/model.
// The second result is false when the provider is unknown.
func TranscriptionRate(provider, model string) (Rate, bool) {
	return lookup(transcriptionRates, provider, model)
}

// SynthesisRate returns the per-character rate for a provider/model.
func SynthesisRate(provider, model string) (Rate, bool) {
	return lookup(synthesisRates, provider, model)
}

// LLMRate returns per-token input/output rates. Unknown models fall
// back to the provider default row, then to DefaultLLMModel's rates;
// unknown providers report false with zero rates.
func LLMRate(provider, model string) (TokenRate, bool) {
	if r, ok := lookup(llmRates, provider, model); ok {
		return r, true
	}
	if _, known := llmRates[strings.ToLower(provider)]; known {
		return llmRates[strings.ToLower(provider)][DefaultLLMModel], true
	}
	return TokenRate{}, false
}

// TelephonyRate returns the per-minute rate for a call type, falling
// back to the outbound default.
func TelephonyRate(callType string) Rate {
	if r, ok := telephonyRates[strings.ToLower(callType)]; ok {
		return r
	}
	return telephonyRates["outbound_default"]
}

// TranscriptionCost converts seconds of audio into dollars.
func TranscriptionCost(provider, model string, seconds float64) float64 {
	r, ok := TranscriptionRate(provider, model)
	if !ok {
		return 0
	}
	return seconds / 60 * float64(r)
}

// SynthesisCost converts a character count into dollars.
func SynthesisCost(provider, model string, characters float64) float64 {
	r, ok := SynthesisRate(provider, model)
	if !ok {
		return 0
	}
	return characters * float64(r)
}

// LLMCost converts token counts into dollars.
func LLMCost(provider, model string, inputTokens, outputTokens int) float64 {
	r, ok := LLMRate(provider, model)
	if !ok {
		return 0
	}
	return float64(inputTokens)*r.Input + float64(outputTokens)*r.Output
}
