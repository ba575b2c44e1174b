package service

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vantagevoice/callscope/internal/adapter/otel"
	"github.com/vantagevoice/callscope/internal/classifier"
	"github.com/vantagevoice/callscope/internal/domain/call"
	"github.com/vantagevoice/callscope/internal/domain/cost"
	"github.com/vantagevoice/callscope/internal/domain/event"
	"github.com/vantagevoice/callscope/internal/port/tagger"
)

// contextTagEvaluation bills the tag-evaluation request itself against
// the call's LLM usage.
const contextTagEvaluation = "tag_evaluation"

// TranscriptComplete finalizes a call: reconciles usage against the
// final transcript, fetches real telephony billing and recordings,
// evaluates tags, emits the terminal TRANSCRIPT_COMPLETE webhook,
// persists the call record and purges all per-call state.
//
// External integrations run concurrently and degrade independently: a
// billing or tagging failure downgrades that one piece of the payload,
// never the whole finalization.
func (s *CallService) TranscriptComplete(ctx context.Context, callID, transcript string, durationSeconds float64, endReason, callType string) error {
	ctx, span := otel.StartFinalizeSpan(ctx, callID)
	defer span.End()

	now := s.now().UTC()
	info, _ := s.emitter.Info(callID)

	if durationSeconds < 0 {
		if st, ok := s.tracker.StartTime(callID); ok {
			durationSeconds = now.Sub(st).Seconds()
		} else {
			durationSeconds = 0
		}
	}

	s.tracker.UpdateCallMetadata(callID, durationSeconds, transcript)

	var (
		billingRec *cost.BillingRecord
		recordings []string
		tagResult  tagger.Result
		tagged     bool
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		rec, urls := s.fetchTelephony(gctx, callID, info.CallSID, info.FromNumber, info.ToNumber, info.StartTime)
		billingRec, recordings = rec, urls
		return nil
	})

	g.Go(func() error {
		if s.tagger == nil || (len(info.Tags.UserTags) == 0 && len(info.Tags.SystemTags) == 0) {
			return nil
		}
		tctx, tagSpan := otel.StartTagSpan(gctx, callID, len(info.Tags.UserTags)+len(info.Tags.SystemTags))
		defer tagSpan.End()
		res, err := s.tagger.EvaluateTags(tctx, transcript, info.Tags.UserTags, info.Tags.SystemTags)
		if err != nil {
			s.log.Warn("tag evaluation failed", "call_id", callID, "error", err)
			return nil
		}
		tagResult, tagged = res, true
		return nil
	})

	_ = g.Wait()

	// Fill in usage for services that never reported live, then bill
	// the tag-evaluation request itself.
	s.tracker.EstimateUsageFromTranscript(callID, transcript, durationSeconds)
	if tagged && (tagResult.InputTokens > 0 || tagResult.OutputTokens > 0) {
		s.tracker.AddLLMUsage(callID, tagResult.InputTokens, tagResult.OutputTokens, "", contextTagEvaluation)
	}

	s.tracker.AddTelephonyCost(callID, durationSeconds, callType, info.Voicemail.RecordingEnabled, billingRec)

	isVoicemail := info.IsVoicemail
	if !isVoicemail {
		isVoicemail, _ = classifier.DetectVoicemail(transcript)
	}
	report := classifier.AnalyzeOutcome(durationSeconds, endReason, isVoicemail)

	snapshot, err := s.tracker.Metrics(callID)
	if err != nil {
		return err
	}
	aiServices, err := s.tracker.AIServicesBreakdown(callID)
	if err != nil {
		return err
	}
	breakdown, err := s.tracker.CostBreakdown(callID)
	if err != nil {
		return err
	}
	if _, err := s.tracker.FinalizeCallCost(callID, durationSeconds); err != nil {
		return err
	}
	totalCall := cost.CombineTotalCall(aiServices, breakdown.Telephony)

	if len(recordings) > 0 {
		s.emitter.StoreRecordingURLs(callID, recordings)
	}

	var callbackTime string
	if tagged && tagResult.CallbackRequested && !tagResult.CallbackTime.IsZero() {
		callbackTime = tagResult.CallbackTime.UTC().Format(time.RFC3339)
	}

	payload := event.TranscriptComplete{
		Type:              event.TypeTranscriptComplete,
		CallID:            callID,
		FullTranscript:    transcript,
		UserTagsFound:     tagResult.FoundUserTags(),
		SystemTagsFound:   tagResult.FoundSystemTags(),
		VoicemailDetected: isVoicemail,
		UsageMetricsData:  &snapshot,
		AIServicesCosts:   &aiServices,
		TotalCallCosts:    &totalCall,
		RecordingURLs:     recordings,
		BillingRecord:     billingRec,
		CallbackRequested: tagged && tagResult.CallbackRequested,
		CallbackTime:      callbackTime,
	}

	sendErr := s.emitter.Send(ctx, payload)
	s.countWebhook(ctx, sendErr)
	s.hub.Broadcast(ctx, "call_finalized", callID, payload)

	if err := s.persistRecord(ctx, callID, transcript, info.FromNumber, info.ToNumber, info.StartTime, now, report, breakdown, tagResult, tagged); err != nil {
		s.log.Error("call record persistence failed", "call_id", callID, "error", err)
	}

	if s.metrics != nil {
		s.metrics.CallsCompleted.Add(ctx, 1)
		s.metrics.CallCost.Record(ctx, breakdown.Total)
	}

	s.tracker.Cleanup(callID)
	s.emitter.Purge(callID)

	s.log.Info("call finalized",
		"call_id", callID,
		"outcome", report.Outcome,
		"total_cost_usd", breakdown.Total,
		"voicemail", isVoicemail)

	return sendErr
}

// fetchTelephony resolves the provider call SID and pulls real billing
// data and recording URLs. Any failure returns nils so the caller falls
// back to estimated costs.
func (s *CallService) fetchTelephony(ctx context.Context, callID, callSID, fromNumber, toNumber string, startedAt time.Time) (*cost.BillingRecord, []string) {
	if s.billing == nil {
		return nil, nil
	}

	if callSID == "" {
		sid, err := s.billing.FindCallSID(ctx, fromNumber, toNumber, startedAt)
		if err != nil {
			s.log.Warn("call sid lookup failed", "call_id", callID, "error", err)
			return nil, nil
		}
		callSID = sid
		s.emitter.StoreCallSID(callID, callSID)
	}

	ctx, span := otel.StartBillingSpan(ctx, callSID)
	defer span.End()

	rec, err := s.billing.FetchCallCost(ctx, callSID)
	if err != nil {
		s.log.Warn("telephony billing fetch failed",
			"call_id", callID, "call_sid", callSID, "error", err)
		rec = nil
	}

	urls, err := s.billing.FetchRecordingURLs(ctx, callSID)
	if err != nil {
		s.log.Warn("recording url fetch failed",
			"call_id", callID, "call_sid", callSID, "error", err)
		urls = nil
	}

	return rec, urls
}

// persistRecord writes the finalized call summary to the database.
func (s *CallService) persistRecord(ctx context.Context, callID, transcript, fromNumber, toNumber string, startedAt, endedAt time.Time, report call.OutcomeReport, breakdown cost.Breakdown, tagResult tagger.Result, tagged bool) error {
	rec := &call.Record{
		CallID:            callID,
		FromNumber:        fromNumber,
		ToNumber:          toNumber,
		StartedAt:         startedAt,
		EndedAt:           endedAt,
		DurationSeconds:   report.DurationSeconds,
		Outcome:           report.Outcome,
		EndReason:         report.EndReason,
		IsVoicemail:       report.IsVoicemail,
		IsRejected:        report.IsRejected,
		TranscriptChars:   len(transcript),
		TranscriptWords:   len(strings.Fields(transcript)),
		UserTagsFound:     tagResult.FoundUserTags(),
		SystemTagsFound:   tagResult.FoundSystemTags(),
		TranscriptionCost: breakdown.Transcription,
		SynthesisCost:     breakdown.Synthesis,
		LLMCost:           breakdown.LLM,
		TelephonyCost:     breakdown.Telephony,
		TotalCost:         breakdown.Total,
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = endedAt.Add(-time.Duration(report.DurationSeconds * float64(time.Second)))
	}
	if tagged && tagResult.CallbackRequested && !tagResult.CallbackTime.IsZero() {
		t := tagResult.CallbackTime.UTC()
		rec.CallbackRequested = true
		rec.CallbackTime = &t
	}
	return s.store.SaveCallRecord(ctx, rec)
}
