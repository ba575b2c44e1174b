package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vantagevoice/callscope/internal/port/messagequeue"
)

// StartSubscribers wires the pipeline's call-event subjects to the
// service. The returned function cancels every subscription.
func (s *CallService) StartSubscribers(ctx context.Context) (cancel func(), err error) {
	subs := []struct {
		subject string
		handler messagequeue.Handler
	}{
		{messagequeue.SubjectCallDispatched, s.handleDispatched},
		{messagequeue.SubjectCallConnected, s.handleConnected},
		{messagequeue.SubjectCallEnded, s.handleEnded},
		{messagequeue.SubjectCallTranscript, s.handleTranscriptComplete},
		{messagequeue.SubjectLiveTranscript, s.handleLiveTranscript},
		{messagequeue.SubjectUsageSTT, s.handleTranscriptionUsage},
		{messagequeue.SubjectUsageTTS, s.handleSynthesisUsage},
		{messagequeue.SubjectUsageLLM, s.handleLLMUsage},
	}

	cancels := make([]func(), 0, len(subs))
	cancelAll := func() {
		for _, c := range cancels {
			c()
		}
	}

	for _, sub := range subs {
		c, err := s.queue.Subscribe(ctx, sub.subject, sub.handler)
		if err != nil {
			cancelAll()
			return nil, fmt.Errorf("subscribe %s: %w", sub.subject, err)
		}
		cancels = append(cancels, c)
	}

	return cancelAll, nil
}

func (s *CallService) handleDispatched(ctx context.Context, _ string, data []byte) error {
	var req DispatchRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("unmarshal dispatch: %w", err)
	}
	if req.CallID == "" {
		return fmt.Errorf("dispatch without call_id")
	}
	_, err := s.Dispatch(ctx, req)
	return err
}

func (s *CallService) handleConnected(ctx context.Context, _ string, data []byte) error {
	var msg struct {
		CallID  string `json:"call_id"`
		CallSID string `json:"call_sid"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("unmarshal connected: %w", err)
	}
	// Webhook failures are non-fatal; never redeliver for them.
	_ = s.Connected(ctx, msg.CallID, msg.CallSID)
	return nil
}

func (s *CallService) handleEnded(ctx context.Context, _ string, data []byte) error {
	var msg struct {
		CallID          string  `json:"call_id"`
		DurationSeconds float64 `json:"duration_seconds"`
		EndReason       string  `json:"end_reason"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("unmarshal ended: %w", err)
	}
	_, _ = s.Ended(ctx, msg.CallID, msg.DurationSeconds, msg.EndReason)
	return nil
}

func (s *CallService) handleTranscriptComplete(ctx context.Context, _ string, data []byte) error {
	var msg struct {
		CallID          string  `json:"call_id"`
		Transcript      string  `json:"transcript"`
		DurationSeconds float64 `json:"duration_seconds"`
		EndReason       string  `json:"end_reason"`
		CallType        string  `json:"call_type"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("unmarshal transcript complete: %w", err)
	}
	_ = s.TranscriptComplete(ctx, msg.CallID, msg.Transcript, msg.DurationSeconds, msg.EndReason, msg.CallType)
	return nil
}

func (s *CallService) handleLiveTranscript(ctx context.Context, _ string, data []byte) error {
	var msg struct {
		CallID string `json:"call_id"`
		Text   string `json:"text"`
		Sender string `json:"sender"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("unmarshal live transcript: %w", err)
	}
	_ = s.LiveTranscript(ctx, msg.CallID, msg.Text, msg.Sender)
	return nil
}

func (s *CallService) handleTranscriptionUsage(_ context.Context, _ string, data []byte) error {
	var msg struct {
		CallID  string  `json:"call_id"`
		Seconds float64 `json:"seconds"`
		Model   string  `json:"model"`
		Context string  `json:"context"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("unmarshal transcription usage: %w", err)
	}
	s.AddTranscriptionUsage(msg.CallID, msg.Seconds, msg.Model, msg.Context)
	return nil
}

func (s *CallService) handleSynthesisUsage(_ context.Context, _ string, data []byte) error {
	var msg struct {
		CallID     string `json:"call_id"`
		Characters int    `json:"characters"`
		Model      string `json:"model"`
		Context    string `json:"context"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("unmarshal synthesis usage: %w", err)
	}
	s.AddSynthesisUsage(msg.CallID, msg.Characters, msg.Model, msg.Context)
	return nil
}

func (s *CallService) handleLLMUsage(_ context.Context, _ string, data []byte) error {
	var msg struct {
		CallID       string `json:"call_id"`
		InputTokens  int    `json:"input_tokens"`
		OutputTokens int    `json:"output_tokens"`
		Model        string `json:"model"`
		Context      string `json:"context"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("unmarshal llm usage: %w", err)
	}
	s.AddLLMUsage(msg.CallID, msg.InputTokens, msg.OutputTokens, msg.Model, msg.Context)
	return nil
}
