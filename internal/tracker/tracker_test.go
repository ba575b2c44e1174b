package tracker

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/vantagevoice/callscope/internal/domain"
	"github.com/vantagevoice/callscope/internal/domain/call"
	"github.com/vantagevoice/callscope/internal/domain/cost"
)

func newTestTracker() *Tracker {
	tr := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return base }
	return tr
}

func startDefaultCall(tr *Tracker, callID string) {
	tr.StartCall(callID, call.DefaultProviders())
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func assertTotalIsSum(t *testing.T, tr *Tracker, callID string) {
	t.Helper()
	b, err := tr.CostBreakdown(callID)
	if err != nil {
		t.Fatalf("CostBreakdown: %v", err)
	}
	sum := b.Transcription + b.Synthesis + b.LLM + b.Telephony
	if !almostEqual(b.Total, sum) {
		t.Fatalf("total %v != sum of components %v", b.Total, sum)
	}
}

func TestStartCallRegistersZeroedState(t *testing.T) {
	tr := newTestTracker()
	startDefaultCall(tr, "c1")

	if !tr.Registered("c1") {
		t.Fatal("call not registered")
	}
	b, err := tr.CostBreakdown("c1")
	if err != nil {
		t.Fatalf("CostBreakdown: %v", err)
	}
	if b.Total != 0 {
		t.Errorf("fresh call total = %v, want 0", b.Total)
	}
}

func TestUnregisteredCallMutationsAreNoOps(t *testing.T) {
	tr := newTestTracker()

	// None of these may panic or create state.
	tr.AddTranscriptionUsage("ghost", 30, "", ContextLiveTranscription)
	tr.AddSynthesisUsage("ghost", 500, "", ContextLiveSynthesis)
	tr.AddLLMUsage("ghost", 100, 50, "", ContextLiveAgentResponse)
	tr.AddTelephonyCost("ghost", 60, "outbound_default", false, nil)
	tr.UpdateCallMetadata("ghost", 60, "BOT: hello")
	tr.EstimateUsageFromTranscript("ghost", "BOT: hello", 60)

	if tr.Registered("ghost") {
		t.Fatal("no-op mutations must not register the call")
	}
	if _, err := tr.CostBreakdown("ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestLiveUsageCostComputation(t *testing.T) {
	tr := newTestTracker()
	startDefaultCall(tr, "c1")

	tr.AddTranscriptionUsage("c1", 30, "", ContextLiveTranscription)
	tr.AddSynthesisUsage("c1", 500, "eleven_flash_v2", ContextLiveSynthesis)
	tr.AddLLMUsage("c1", 1000, 200, "", ContextLiveAgentResponse)

	b, err := tr.CostBreakdown("c1")
	if err != nil {
		t.Fatalf("CostBreakdown: %v", err)
	}
	if want := 0.5 * 0.0036; !almostEqual(b.Transcription, want) {
		t.Errorf("transcription cost = %v, want %v", b.Transcription, want)
	}
	if want := 500 * 0.000018; !almostEqual(b.Synthesis, want) {
		t.Errorf("synthesis cost = %v, want %v", b.Synthesis, want)
	}
	if want := 1000*0.00000015 + 200*0.0000006; !almostEqual(b.LLM, want) {
		t.Errorf("llm cost = %v, want %v", b.LLM, want)
	}
	if b.Total <= 0 {
		t.Error("total cost should be positive")
	}
	assertTotalIsSum(t, tr, "c1")
}

func TestTranscriptionDedup(t *testing.T) {
	type ev struct {
		seconds float64
		context string
	}
	tests := []struct {
		name        string
		events      []ev
		wantSeconds float64
		wantCount   int
	}{
		{
			name:        "estimate then estimate accumulates",
			events:      []ev{{30, ContextTranscriptionEstimate}, {15, ContextTranscriptionEstimate}},
			wantSeconds: 45,
			wantCount:   2,
		},
		{
			name:        "live then estimate drops the estimate",
			events:      []ev{{30, ContextLiveTranscription}, {45, ContextTranscriptionEstimate}},
			wantSeconds: 30,
			wantCount:   1,
		},
		{
			name:        "estimate then live discards the estimate",
			events:      []ev{{45, ContextTranscriptionEstimate}, {30, ContextLiveTranscription}},
			wantSeconds: 30,
			wantCount:   1,
		},
		{
			name:        "live then live accumulates",
			events:      []ev{{30, ContextLiveTranscription}, {15, ContextLiveTranscription}},
			wantSeconds: 45,
			wantCount:   2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTestTracker()
			startDefaultCall(tr, "c1")
			for _, ev := range tt.events {
				tr.AddTranscriptionUsage("c1", ev.seconds, "", ev.context)
			}

			snap, err := tr.Metrics("c1")
			if err != nil {
				t.Fatalf("Metrics: %v", err)
			}
			if snap.Transcription.TotalSeconds != tt.wantSeconds {
				t.Errorf("total seconds = %v, want %v", snap.Transcription.TotalSeconds, tt.wantSeconds)
			}
			if snap.Transcription.RequestCount != tt.wantCount {
				t.Errorf("request count = %d, want %d", snap.Transcription.RequestCount, tt.wantCount)
			}
			if len(snap.Transcription.Details) != snap.Transcription.RequestCount {
				t.Errorf("detail count %d != request count %d",
					len(snap.Transcription.Details), snap.Transcription.RequestCount)
			}
			assertTotalIsSum(t, tr, "c1")
		})
	}
}

func TestEstimateThenLiveResetsCostComponent(t *testing.T) {
	tr := newTestTracker()
	startDefaultCall(tr, "c1")

	tr.AddTranscriptionUsage("c1", 120, "", ContextTranscriptionEstimate)
	tr.AddTranscriptionUsage("c1", 30, "", ContextLiveTranscription)

	b, err := tr.CostBreakdown("c1")
	if err != nil {
		t.Fatalf("CostBreakdown: %v", err)
	}
	if want := 0.5 * 0.0036; !almostEqual(b.Transcription, want) {
		t.Errorf("cost after reset = %v, want live-only %v", b.Transcription, want)
	}
	if b.TranscriptionSeconds != 30 {
		t.Errorf("seconds mirror = %v, want 30", b.TranscriptionSeconds)
	}
}

func TestSynthesisDedup(t *testing.T) {
	type ev struct {
		characters int
		context    string
	}
	tests := []struct {
		name      string
		events    []ev
		wantChars int
		wantCount int
	}{
		{
			name:      "estimate then estimate accumulates",
			events:    []ev{{400, ContextSynthesisEstimate}, {100, ContextSynthesisEstimate}},
			wantChars: 500,
			wantCount: 2,
		},
		{
			name:      "live then estimate drops the estimate",
			events:    []ev{{250, ContextLiveSynthesis}, {999, ContextSynthesisEstimate}},
			wantChars: 250,
			wantCount: 1,
		},
		{
			name:      "estimate then live discards the estimate",
			events:    []ev{{400, ContextSynthesisEstimate}, {250, ContextLiveSynthesis}},
			wantChars: 250,
			wantCount: 1,
		},
		{
			name:      "live then live accumulates",
			events:    []ev{{250, ContextLiveSynthesis}, {150, ContextLiveSynthesis}},
			wantChars: 400,
			wantCount: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTestTracker()
			startDefaultCall(tr, "c1")
			for _, ev := range tt.events {
				tr.AddSynthesisUsage("c1", ev.characters, "", ev.context)
			}

			snap, err := tr.Metrics("c1")
			if err != nil {
				t.Fatalf("Metrics: %v", err)
			}
			if snap.Synthesis.TotalCharacters != tt.wantChars {
				t.Errorf("total characters = %d, want %d", snap.Synthesis.TotalCharacters, tt.wantChars)
			}
			if snap.Synthesis.RequestCount != tt.wantCount {
				t.Errorf("request count = %d, want %d", snap.Synthesis.RequestCount, tt.wantCount)
			}
			assertTotalIsSum(t, tr, "c1")
		})
	}
}

func TestLLMDedupAndTokenInvariant(t *testing.T) {
	tr := newTestTracker()
	startDefaultCall(tr, "c1")

	tr.AddLLMUsage("c1", 1000, 200, "", ContextLiveAgentResponse)
	tr.AddLLMUsage("c1", 500, 100, "", ContextLiveAgentResponse)
	// Estimate after live data must be dropped.
	tr.AddLLMUsage("c1", 9999, 9999, "", ContextLLMEstimate)

	snap, err := tr.Metrics("c1")
	if err != nil {
		t.Fatalf("Metrics: %v", err)
	}
	if snap.LLM.InputTokens != 1500 || snap.LLM.OutputTokens != 300 {
		t.Errorf("tokens = %d/%d, want 1500/300", snap.LLM.InputTokens, snap.LLM.OutputTokens)
	}
	if snap.LLM.TotalTokens != snap.LLM.InputTokens+snap.LLM.OutputTokens {
		t.Errorf("total tokens %d != input %d + output %d",
			snap.LLM.TotalTokens, snap.LLM.InputTokens, snap.LLM.OutputTokens)
	}
	if snap.LLM.RequestCount != 2 {
		t.Errorf("request count = %d, want 2", snap.LLM.RequestCount)
	}
}

func TestEstimateUsageFromTranscript(t *testing.T) {
	tr := newTestTracker()
	startDefaultCall(tr, "c1")

	transcript := "BOT: hello there\nHUMAN: hi\nBOT: goodbye"
	tr.EstimateUsageFromTranscript("c1", transcript, 45)

	snap, err := tr.Metrics("c1")
	if err != nil {
		t.Fatalf("Metrics: %v", err)
	}
	if snap.Transcription.TotalSeconds != 45 {
		t.Errorf("estimated transcription = %vs, want full 45s duration", snap.Transcription.TotalSeconds)
	}
	// Agent lines joined with a space: "hello there goodbye".
	if want := len("hello there goodbye"); snap.Synthesis.TotalCharacters != want {
		t.Errorf("estimated synthesis = %d chars, want %d", snap.Synthesis.TotalCharacters, want)
	}
	if snap.LLM.RequestCount != 1 {
		t.Errorf("llm estimate request count = %d, want 1", snap.LLM.RequestCount)
	}
	assertTotalIsSum(t, tr, "c1")
}

func TestEstimateSkipsServicesWithLiveData(t *testing.T) {
	tr := newTestTracker()
	startDefaultCall(tr, "c1")

	tr.AddTranscriptionUsage("c1", 30, "", ContextLiveTranscription)
	tr.EstimateUsageFromTranscript("c1", "BOT: hello", 45)

	snap, err := tr.Metrics("c1")
	if err != nil {
		t.Fatalf("Metrics: %v", err)
	}
	if snap.Transcription.TotalSeconds != 30 {
		t.Errorf("live transcription overwritten by estimate: %v", snap.Transcription.TotalSeconds)
	}
	if snap.Synthesis.TotalCharacters != len("hello") {
		t.Errorf("synthesis estimate = %d, want %d", snap.Synthesis.TotalCharacters, len("hello"))
	}
}

func TestAddTelephonyCostEstimated(t *testing.T) {
	// The flat-rate path bills whole minutes, rounded up.
	tests := []struct {
		seconds float64
		want    float64
	}{
		{45, 1 * 0.014},
		{60, 1 * 0.014},
		{90, 2 * 0.014},
		{120, 2 * 0.014},
	}
	for _, tt := range tests {
		tr := newTestTracker()
		startDefaultCall(tr, "c1")

		tr.AddTelephonyCost("c1", tt.seconds, "outbound_default", false, nil)

		b, _ := tr.CostBreakdown("c1")
		if !almostEqual(b.Telephony, tt.want) {
			t.Errorf("%vs: estimated telephony = %v, want %v", tt.seconds, b.Telephony, tt.want)
		}
		assertTotalIsSum(t, tr, "c1")
	}
}

func TestAddTelephonyCostRealBillingWithRecording(t *testing.T) {
	tr := newTestTracker()
	startDefaultCall(tr, "c1")

	billing := &cost.BillingRecord{
		CostUSD:         0.042,
		DurationMinutes: 3,
		RatePerMinute:   0.014,
		CallSID:         "CA123",
		Status:          "completed",
	}
	tr.AddTelephonyCost("c1", 180, "outbound_default", true, billing)

	b, _ := tr.CostBreakdown("c1")
	if want := 0.042 + 3*0.0025; !almostEqual(b.Telephony, want) {
		t.Errorf("telephony with recording = %v, want %v", b.Telephony, want)
	}
}

func TestFinalizeCallCostIsIdempotent(t *testing.T) {
	tr := newTestTracker()
	startDefaultCall(tr, "c1")
	tr.AddTranscriptionUsage("c1", 60, "", ContextLiveTranscription)
	tr.AddTelephonyCost("c1", 60, "outbound_default", false, nil)

	first, err := tr.FinalizeCallCost("c1", 60)
	if err != nil {
		t.Fatalf("FinalizeCallCost: %v", err)
	}
	second, err := tr.FinalizeCallCost("c1", 60)
	if err != nil {
		t.Fatalf("FinalizeCallCost: %v", err)
	}
	if first != second {
		t.Errorf("repeated finalize differs:\n first: %+v\nsecond: %+v", first, second)
	}
}

func TestFinalizeComputesDurationFromStartTime(t *testing.T) {
	tr := newTestTracker()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	current := base
	tr.now = func() time.Time { return current }

	startDefaultCall(tr, "c1")
	current = base.Add(90 * time.Second)

	report, err := tr.FinalizeCallCost("c1", -1)
	if err != nil {
		t.Fatalf("FinalizeCallCost: %v", err)
	}
	if report.CallMetadata.CallDurationSeconds != 90 {
		t.Errorf("computed duration = %v, want 90", report.CallMetadata.CallDurationSeconds)
	}
}

func TestCleanupPurgesAllState(t *testing.T) {
	tr := newTestTracker()
	startDefaultCall(tr, "c1")
	startDefaultCall(tr, "c2")
	tr.AddTranscriptionUsage("c1", 30, "", ContextLiveTranscription)

	tr.Cleanup("c1")

	if tr.Registered("c1") {
		t.Fatal("c1 still registered after cleanup")
	}
	if !tr.Registered("c2") {
		t.Fatal("cleanup removed an unrelated call")
	}
	if _, ok := tr.StartTime("c1"); ok {
		t.Error("start time survived cleanup")
	}

	// Post-cleanup mutations are silent no-ops.
	tr.AddTranscriptionUsage("c1", 30, "", ContextLiveTranscription)
	if tr.Registered("c1") {
		t.Fatal("post-cleanup mutation resurrected the call")
	}
}

func TestAIServicesBreakdownExcludesTelephony(t *testing.T) {
	tr := newTestTracker()
	startDefaultCall(tr, "c1")
	tr.AddTranscriptionUsage("c1", 60, "", ContextLiveTranscription)
	tr.AddTelephonyCost("c1", 60, "outbound_default", false, nil)

	ai, err := tr.AIServicesBreakdown("c1")
	if err != nil {
		t.Fatalf("AIServicesBreakdown: %v", err)
	}
	if !almostEqual(ai.CostBreakdown.TranscriptionCostUSD, 0.0036) {
		t.Errorf("transcription = %v, want 0.0036", ai.CostBreakdown.TranscriptionCostUSD)
	}
	if ai.CostBreakdown.TotalAIServicesUSD != ai.CostBreakdown.TranscriptionCostUSD+
		ai.CostBreakdown.SynthesisCostUSD+ai.CostBreakdown.LLMCostUSD {
		t.Error("AI total is not the sum of its components")
	}
}

func TestUpdateCallMetadata(t *testing.T) {
	tr := newTestTracker()
	startDefaultCall(tr, "c1")

	transcript := "BOT: hello there\nHUMAN: hi"
	tr.UpdateCallMetadata("c1", 62.5, transcript)

	snap, err := tr.Metrics("c1")
	if err != nil {
		t.Fatalf("Metrics: %v", err)
	}
	if snap.CallMetadata.CallDurationSeconds != 62.5 {
		t.Errorf("duration = %v, want 62.5", snap.CallMetadata.CallDurationSeconds)
	}
	if snap.CallMetadata.TranscriptChars != len(transcript) {
		t.Errorf("chars = %d, want %d", snap.CallMetadata.TranscriptChars, len(transcript))
	}
	if snap.CallMetadata.TranscriptWords != 5 {
		t.Errorf("words = %d, want 5", snap.CallMetadata.TranscriptWords)
	}
}
