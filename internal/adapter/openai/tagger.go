// Package openai implements the tagger port using the OpenAI chat
// completions API. The model is forced into a strict line grammar and
// anything that does not parse is rejected, so a confused model can
// only ever produce fewer tags, never wrong structure.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/vantagevoice/callscope/internal/port/tagger"
	"github.com/vantagevoice/callscope/internal/resilience"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4"

	systemPrompt = "You are an expert conversation analyst. Evaluate whether specific " +
		"tags/concepts are present in conversation transcripts. Be accurate and look " +
		"for clear evidence. Answer only in the exact line format you are given."
)

// Client evaluates call tags via chat completions.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	breaker    *resilience.Breaker
	log        *slog.Logger

	now func() time.Time
}

// NewClient creates an OpenAI tagger client.
func NewClient(apiKey string, log *slog.Logger) *Client {
	return &Client{
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		model:      defaultModel,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log,
		now:        time.Now,
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// SetModel overrides the default evaluation model.
func (c *Client) SetModel(model string) {
	if model != "" {
		c.model = model
	}
}

// EvaluateTags asks the model which tag descriptions apply to the
// transcript and whether the caller asked to be called back. Any
// failure returns an error the caller must degrade on; the result is
// never partially wrong, only smaller.
func (c *Client) EvaluateTags(ctx context.Context, transcript string, userTags, systemTags []string) (tagger.Result, error) {
	empty := tagger.Result{}
	if len(userTags) == 0 && len(systemTags) == 0 {
		return empty, nil
	}
	if c.apiKey == "" {
		return empty, fmt.Errorf("openai api key not configured")
	}

	prompt := buildPrompt(transcript, userTags, systemTags, c.now())

	content, err := c.complete(ctx, prompt)
	if err != nil {
		return empty, fmt.Errorf("tag evaluation: %w", err)
	}

	result := parseEvaluation(content, userTags, systemTags, c.log)
	result.InputTokens = len(prompt) / 4
	result.OutputTokens = int(float64(len(strings.Fields(content))) * 1.3)

	c.log.Info("tag evaluation complete",
		"user_tags_found", result.FoundUserTags(),
		"system_tags_found", result.FoundSystemTags(),
		"callback_requested", result.CallbackRequested)
	return result, nil
}

func buildPrompt(transcript string, userTags, systemTags []string, now time.Time) string {
	var b strings.Builder
	b.WriteString("Analyze the following conversation transcript and determine which of the ")
	b.WriteString("specified tags are present or discussed in the conversation.\n\n")
	b.WriteString("TRANSCRIPT:\n")
	b.WriteString(transcript)
	b.WriteString("\n\nTAGS TO EVALUATE:\n")
	for _, tag := range userTags {
		fmt.Fprintf(&b, "user_tag:%s\n", tag)
	}
	for _, tag := range systemTags {
		fmt.Fprintf(&b, "system_tag:%s\n", tag)
	}
	b.WriteString("\nCurrent UTC time: ")
	b.WriteString(now.UTC().Format(time.RFC3339))
	b.WriteString("\n\nGuidelines:\n")
	b.WriteString("- Look specifically at the HUMAN's responses, not the BOT's responses.\n")
	b.WriteString("- A callback is requested only when the human asks to be called again later ")
	b.WriteString("(busy now, call me tomorrow), never for services the agent offers.\n")
	b.WriteString("- If a callback time is mentioned, convert it from the caller's timezone to UTC.\n")
	b.WriteString("\nRespond with EXACTLY one line per tag plus one callback line, nothing else:\n")
	for _, tag := range userTags {
		fmt.Fprintf(&b, "user_tag:%s: TRUE or FALSE\n", tag)
	}
	for _, tag := range systemTags {
		fmt.Fprintf(&b, "system_tag:%s: TRUE or FALSE\n", tag)
	}
	b.WriteString("callback: <UTC time in RFC3339, e.g. 2025-11-05T14:30:00Z> or none\n")
	return b.String()
}

// parseEvaluation applies the strict grammar: `user_tag:<name>: TRUE`,
// `system_tag:<name>: FALSE`, `callback: <RFC3339>|none`. Lines that
// do not match, or name a tag that was never asked about, are logged
// and dropped.
func parseEvaluation(content string, userTags, systemTags []string, log *slog.Logger) tagger.Result {
	result := tagger.Result{
		UserTags:   make(map[string]bool),
		SystemTags: make(map[string]bool),
	}
	asked := func(list []string, name string) bool {
		for _, t := range list {
			if strings.EqualFold(t, name) {
				return true
			}
		}
		return false
	}

	for _, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if rest, ok := strings.CutPrefix(line, "callback:"); ok {
			value := strings.TrimSpace(rest)
			if strings.EqualFold(value, "none") {
				continue
			}
			at, err := time.Parse(time.RFC3339, value)
			if err != nil {
				log.Warn("rejecting malformed callback line", "line", line, "error", err)
				continue
			}
			result.CallbackRequested = true
			result.CallbackTime = roundToQuarterHour(at)
			continue
		}

		parts := strings.SplitN(line, ":", 3)
		if len(parts) != 3 {
			log.Warn("rejecting malformed evaluation line", "line", line)
			continue
		}
		kind := strings.TrimSpace(parts[0])
		name := strings.TrimSpace(parts[1])
		verdictText := strings.ToUpper(strings.TrimSpace(parts[2]))

		var verdict bool
		switch verdictText {
		case "TRUE":
			verdict = true
		case "FALSE":
			verdict = false
		default:
			log.Warn("rejecting evaluation line with bad verdict", "line", line)
			continue
		}

		switch kind {
		case "user_tag":
			if !asked(userTags, name) {
				log.Warn("rejecting verdict for unknown user tag", "tag", name)
				continue
			}
			result.UserTags[name] = verdict
		case "system_tag":
			if !asked(systemTags, name) {
				log.Warn("rejecting verdict for unknown system tag", "tag", name)
				continue
			}
			result.SystemTags[name] = verdict
		default:
			log.Warn("rejecting evaluation line with unknown kind", "line", line)
		}
	}
	return result
}

// roundToQuarterHour normalizes a callback time to UTC with minutes on
// a :00/:15/:30/:45 boundary, nearest wins.
func roundToQuarterHour(t time.Time) time.Time {
	return t.UTC().Round(15 * time.Minute)
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.1,
		MaxTokens:   500,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var content string
	call := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("openai API error %d: %s", resp.StatusCode, string(data))
		}

		var parsed chatResponse
		if err := json.Unmarshal(data, &parsed); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
		if len(parsed.Choices) == 0 {
			return fmt.Errorf("empty completion")
		}
		content = strings.TrimSpace(parsed.Choices[0].Message.Content)
		return nil
	}

	if c.breaker != nil {
		if err := c.breaker.Execute(call); err != nil {
			return "", err
		}
		return content, nil
	}
	if err := call(); err != nil {
		return "", err
	}
	return content, nil
}
