// Package service implements the call-lifecycle application services,
// coordinating the tracker, classifier, emitter and adapters.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vantagevoice/callscope/internal/adapter/otel"
	"github.com/vantagevoice/callscope/internal/classifier"
	"github.com/vantagevoice/callscope/internal/domain/call"
	"github.com/vantagevoice/callscope/internal/domain/cost"
	"github.com/vantagevoice/callscope/internal/domain/usage"
	"github.com/vantagevoice/callscope/internal/emitter"
	"github.com/vantagevoice/callscope/internal/port/billing"
	"github.com/vantagevoice/callscope/internal/port/broadcast"
	"github.com/vantagevoice/callscope/internal/port/database"
	"github.com/vantagevoice/callscope/internal/port/messagequeue"
	"github.com/vantagevoice/callscope/internal/port/tagger"
	"github.com/vantagevoice/callscope/internal/tracker"
)

// CallService owns the lifecycle of tracked calls from dispatch to the
// terminal transcript webhook.
type CallService struct {
	tracker *tracker.Tracker
	emitter *emitter.Emitter
	store   database.Store
	queue   messagequeue.Queue
	hub     broadcast.Broadcaster
	log     *slog.Logger

	billing billing.Fetcher
	tagger  tagger.Tagger
	metrics *otel.Metrics

	now func() time.Time
}

// NewCallService creates a CallService. Billing, tagging and metrics
// are attached separately because they are optional integrations.
func NewCallService(t *tracker.Tracker, e *emitter.Emitter, store database.Store, queue messagequeue.Queue, hub broadcast.Broadcaster, log *slog.Logger) *CallService {
	return &CallService{
		tracker: t,
		emitter: e,
		store:   store,
		queue:   queue,
		hub:     hub,
		log:     log,
		now:     time.Now,
	}
}

// SetBilling attaches the telephony billing fetcher.
func (s *CallService) SetBilling(f billing.Fetcher) { s.billing = f }

// SetTagger attaches the LLM tag evaluator.
func (s *CallService) SetTagger(t tagger.Tagger) { s.tagger = t }

// SetMetrics attaches the metric instruments.
func (s *CallService) SetMetrics(m *otel.Metrics) { s.metrics = m }

// DispatchRequest is everything the pipeline supplies when a new call
// starts tracking.
type DispatchRequest struct {
	CallID     string         `json:"call_id"`
	FromNumber string         `json:"from_number"`
	ToNumber   string         `json:"to_number"`
	CallSID    string         `json:"call_sid"`
	Providers  call.Providers `json:"providers"`

	Tags      call.Tags            `json:"tags"`
	Voicemail call.VoicemailConfig `json:"voicemail"`
	Transfer  call.TransferConfig  `json:"transfer"`
}

// Dispatch registers a new call for tracking and returns its identity.
// Empty provider fields fall back to the default pipeline.
func (s *CallService) Dispatch(ctx context.Context, req DispatchRequest) (*call.Call, error) {
	if req.CallID == "" {
		req.CallID = uuid.NewString()
	}

	p := req.Providers
	def := call.DefaultProviders()
	if p.TranscriptionProvider == "" {
		p.TranscriptionProvider, p.TranscriptionModel = def.TranscriptionProvider, def.TranscriptionModel
	}
	if p.SynthesisProvider == "" {
		p.SynthesisProvider, p.SynthesisModel = def.SynthesisProvider, def.SynthesisModel
	}
	if p.LLMProvider == "" {
		p.LLMProvider, p.LLMModel = def.LLMProvider, def.LLMModel
	}

	started := s.now().UTC()
	s.tracker.StartCall(req.CallID, p)
	s.emitter.RegisterCall(req.CallID, req.FromNumber, req.ToNumber, started)
	s.emitter.StoreCallTags(req.CallID, req.Tags)
	s.emitter.StoreVoicemailConfig(req.CallID, req.Voicemail)
	s.emitter.StoreTransferConfig(req.CallID, req.Transfer)
	if req.CallSID != "" {
		s.emitter.StoreCallSID(req.CallID, req.CallSID)
	}

	if s.metrics != nil {
		s.metrics.CallsStarted.Add(ctx, 1)
	}

	return &call.Call{
		ID:               req.CallID,
		FromNumber:       req.FromNumber,
		ToNumber:         req.ToNumber,
		StartedAt:        started,
		Providers:        p,
		RecordingEnabled: req.Voicemail.RecordingEnabled,
	}, nil
}

// Connected handles call pickup: records the provider SID and emits
// PHONE_CALL_CONNECTED.
func (s *CallService) Connected(ctx context.Context, callID, callSID string) error {
	if callSID != "" {
		s.emitter.StoreCallSID(callID, callSID)
	}
	err := s.emitter.SendConnected(ctx, callID)
	s.hub.Broadcast(ctx, "call_connected", callID, map[string]string{"call_sid": callSID})
	s.countWebhook(ctx, err)
	return err
}

// AddTranscriptionUsage records seconds of transcribed audio.
func (s *CallService) AddTranscriptionUsage(callID string, seconds float64, model, context string) {
	s.tracker.AddTranscriptionUsage(callID, seconds, model, context)
}

// AddSynthesisUsage records synthesized characters.
func (s *CallService) AddSynthesisUsage(callID string, characters int, model, context string) {
	s.tracker.AddSynthesisUsage(callID, characters, model, context)
}

// AddLLMUsage records one model request's token counts.
func (s *CallService) AddLLMUsage(callID string, inputTokens, outputTokens int, model, context string) {
	s.tracker.AddLLMUsage(callID, inputTokens, outputTokens, model, context)
}

// LiveTranscript streams one utterance to the webhook and dashboard
// clients, and runs the real-time transcript classifiers on what the
// callee says.
func (s *CallService) LiveTranscript(ctx context.Context, callID, text, sender string) error {
	err := s.emitter.SendLiveTranscript(ctx, callID, text, sender)
	s.countWebhook(ctx, err)
	s.hub.Broadcast(ctx, "live_transcript", callID, map[string]string{
		"text":   text,
		"sender": sender,
	})

	if sender == string(call.RoleBot) {
		return err
	}

	info, _ := s.emitter.Info(callID)

	if !info.IsVoicemail && info.Voicemail.DetectionEnabled {
		if ok, indicators := classifier.DetectVoicemail(text); ok {
			s.log.Info("voicemail detected from live transcript", "call_id", callID)
			s.emitter.MarkVoicemail(callID, true)
			s.countWebhook(ctx, s.emitter.SendVoicemailDetected(ctx, callID, indicators))
			if s.metrics != nil {
				s.metrics.VoicemailsFound.Add(ctx, 1)
			}
		}
	}

	if ok, indicators := classifier.DetectCallEnd(text); ok {
		s.log.Info("call end requested from live transcript", "call_id", callID)
		s.countWebhook(ctx, s.emitter.SendTerminationRequested(ctx, callID, indicators))
	}

	if info.Transfer.Enabled {
		if ok, indicators := classifier.DetectTransfer(text); ok {
			s.log.Info("transfer requested from live transcript", "call_id", callID)
			reason := "user_request"
			if len(indicators) > 0 {
				reason = indicators[0]
			}
			s.countWebhook(ctx, s.emitter.SendTransferRequested(ctx, callID, reason))
		}
	}

	return err
}

// Ended handles call teardown: classifies the outcome and emits
// PHONE_CALL_ENDED. The heavyweight finalization (billing, tags,
// terminal webhook) happens separately in TranscriptComplete.
func (s *CallService) Ended(ctx context.Context, callID string, durationSeconds float64, endReason string) (call.OutcomeReport, error) {
	info, _ := s.emitter.Info(callID)
	report := classifier.AnalyzeOutcome(durationSeconds, endReason, info.IsVoicemail)

	endedAt := s.now().UTC()
	err := s.emitter.SendEnded(ctx, callID, report, endedAt)
	s.countWebhook(ctx, err)
	s.hub.Broadcast(ctx, "call_ended", callID, report)

	if s.metrics != nil {
		s.metrics.CallDuration.Record(ctx, durationSeconds)
		if report.IsRejected {
			s.metrics.CallsRejected.Add(ctx, 1)
		}
	}

	s.log.Info("call ended",
		"call_id", callID,
		"outcome", report.Outcome,
		"end_reason", endReason,
		"duration_seconds", durationSeconds)

	return report, err
}

// UsageMetrics returns the current usage snapshot for an active call.
func (s *CallService) UsageMetrics(callID string) (usage.Snapshot, error) {
	return s.tracker.Metrics(callID)
}

// CostReport returns the current serialized cost breakdown for an
// active call.
func (s *CallService) CostReport(callID string) (cost.Report, error) {
	b, err := s.tracker.CostBreakdown(callID)
	if err != nil {
		return cost.Report{}, err
	}
	return b.Report(callID, s.now()), nil
}

// Record returns one persisted call record.
func (s *CallService) Record(ctx context.Context, callID string) (*call.Record, error) {
	return s.store.GetCallRecord(ctx, callID)
}

// Records returns the most recently persisted call records.
func (s *CallService) Records(ctx context.Context, limit int) ([]call.Record, error) {
	return s.store.ListCallRecords(ctx, limit)
}

// ActiveCalls reports how many calls are currently tracked.
func (s *CallService) ActiveCalls() int {
	return s.tracker.ActiveCalls()
}

func (s *CallService) countWebhook(ctx context.Context, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.WebhooksSent.Add(ctx, 1)
	if err != nil {
		s.metrics.WebhookFailures.Add(ctx, 1)
	}
}
