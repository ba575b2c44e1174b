// Package twilio implements the billing port against the Twilio REST
// API: per-call cost lookup with bounded retries, call SID search by
// phone-number pair, and recording URL listing.
package twilio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vantagevoice/callscope/internal/domain/cost"
	"github.com/vantagevoice/callscope/internal/port/cache"
	"github.com/vantagevoice/callscope/internal/resilience"
)

const (
	defaultMaxRetries = 10
	defaultRetryDelay = 2 * time.Second
	sidCacheTTL       = 10 * time.Minute
)

// Standard per-minute rates by call direction, used when Twilio has
// not priced the call by the time retries are exhausted.
var fallbackRates = map[string]float64{
	"outbound-api":    0.0497,
	"inbound":         0.0085,
	"client-outbound": 0.004,
	"sip-outbound":    0.004,
	"sip-inbound":     0.0085,
}

const fallbackDefaultRate = 0.0497

// Fetcher talks to the Twilio REST API with basic auth.
type Fetcher struct {
	accountSID string
	authToken  string
	baseURL    string
	client     *http.Client
	breaker    *resilience.Breaker
	cache      cache.Cache
	log        *slog.Logger

	maxRetries int
	retryDelay time.Duration
}

// New creates a Fetcher. Empty credentials produce a fetcher whose
// calls all fail, which callers treat as "no real billing available".
func New(accountSID, authToken string, log *slog.Logger) *Fetcher {
	return &Fetcher{
		accountSID: accountSID,
		authToken:  authToken,
		baseURL:    "https://api.twilio.com/2010-04-01/Accounts/" + accountSID,
		client:     &http.Client{Timeout: 15 * time.Second},
		log:        log,
		maxRetries: defaultMaxRetries,
		retryDelay: defaultRetryDelay,
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (f *Fetcher) SetBreaker(b *resilience.Breaker) {
	f.breaker = b
}

// SetCache attaches a cache for SID search results.
func (f *Fetcher) SetCache(c cache.Cache) {
	f.cache = c
}

// Configured reports whether credentials are present.
func (f *Fetcher) Configured() bool {
	return f.accountSID != "" && f.authToken != ""
}

// callResource is the subset of Twilio's call resource we consume.
type callResource struct {
	SID       string `json:"sid"`
	Price     string `json:"price"`
	PriceUnit string `json:"price_unit"`
	Duration  string `json:"duration"`
	Status    string `json:"status"`
	Direction string `json:"direction"`
	From      string `json:"from"`
	To        string `json:"to"`
}

// FetchCallCost polls the call resource until Twilio has priced it,
// then returns the real billing record. When the price never shows up
// within the retry budget, it computes a rate-table fallback from the
// call's duration and direction.
func (f *Fetcher) FetchCallCost(ctx context.Context, callSID string) (*cost.BillingRecord, error) {
	if !f.Configured() {
		return nil, fmt.Errorf("twilio credentials not configured")
	}
	if !strings.HasPrefix(callSID, "CA") {
		return nil, fmt.Errorf("invalid call sid %q", callSID)
	}

	var last callResource
	for attempt := 0; attempt < f.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(f.retryDelay):
			}
		}

		var res callResource
		if err := f.getJSON(ctx, "/Calls/"+callSID+".json", nil, &res); err != nil {
			f.log.Warn("twilio call fetch failed",
				"call_sid", callSID, "attempt", attempt+1, "error", err)
			continue
		}
		last = res

		if res.Price != "" && res.Price != "0" {
			rec := parseBilling(res)
			f.log.Info("fetched real twilio cost",
				"call_sid", callSID, "cost_usd", rec.CostUSD, "attempts", attempt+1)
			return rec, nil
		}
		f.log.Debug("twilio price not yet available",
			"call_sid", callSID, "attempt", attempt+1, "max", f.maxRetries)
	}

	if rec := fallbackBilling(last); rec != nil {
		f.log.Info("calculated fallback twilio cost",
			"call_sid", callSID, "cost_usd", rec.CostUSD, "direction", last.Direction)
		return rec, nil
	}
	return nil, fmt.Errorf("no price for call %s after %d attempts", callSID, f.maxRetries)
}

// parseBilling converts a priced call resource. Twilio reports
// outbound prices as negative amounts.
func parseBilling(res callResource) *cost.BillingRecord {
	price, _ := strconv.ParseFloat(res.Price, 64)
	price = math.Abs(price)
	seconds, _ := strconv.Atoi(res.Duration)

	minutes := float64(seconds) / 60
	rate := 0.0
	if minutes > 0 {
		rate = price / minutes
	}
	return &cost.BillingRecord{
		CostUSD:         cost.Round6(price),
		DurationMinutes: minutes,
		RatePerMinute:   cost.Round6(rate),
		CallSID:         res.SID,
		Status:          res.Status,
	}
}

// fallbackBilling prices an unpriced call from its duration and
// direction. Only completed calls with positive duration qualify;
// Twilio bills whole minutes, rounded up.
func fallbackBilling(res callResource) *cost.BillingRecord {
	seconds, _ := strconv.Atoi(res.Duration)
	if seconds <= 0 || res.Status != "completed" {
		return nil
	}

	rate, ok := fallbackRates[res.Direction]
	if !ok {
		rate = fallbackDefaultRate
	}
	minutes := float64((seconds + 59) / 60)
	return &cost.BillingRecord{
		CostUSD:         cost.Round6(minutes * rate),
		DurationMinutes: minutes,
		RatePerMinute:   rate,
		CallSID:         res.SID,
		Status:          res.Status,
	}
}

// FindCallSID searches recent calls for the matching number pair and
// returns the most recent call's SID. Results are cached: the SID is
// immutable once the call exists.
func (f *Fetcher) FindCallSID(ctx context.Context, fromNumber, toNumber string, startedAt time.Time) (string, error) {
	if !f.Configured() {
		return "", fmt.Errorf("twilio credentials not configured")
	}

	cacheKey := "twilio:sid:" + fromNumber + ":" + toNumber + ":" + startedAt.UTC().Format("2006-01-02")
	if f.cache != nil {
		if data, ok, err := f.cache.Get(ctx, cacheKey); err == nil && ok {
			return string(data), nil
		}
	}

	params := url.Values{}
	params.Set("From", fromNumber)
	params.Set("To", toNumber)
	params.Set("PageSize", "20")
	if !startedAt.IsZero() {
		params.Set("StartTime>", startedAt.UTC().Format("2006-01-02"))
	}

	var res struct {
		Calls []callResource `json:"calls"`
	}
	if err := f.getJSON(ctx, "/Calls.json", params, &res); err != nil {
		return "", fmt.Errorf("search calls: %w", err)
	}
	if len(res.Calls) == 0 {
		return "", fmt.Errorf("no calls matching %s -> %s", fromNumber, toNumber)
	}

	sid := res.Calls[0].SID
	if f.cache != nil {
		_ = f.cache.Set(ctx, cacheKey, []byte(sid), sidCacheTTL)
	}
	f.log.Info("matched twilio call sid",
		"call_sid", sid, "status", res.Calls[0].Status)
	return sid, nil
}

// FetchRecordingURLs lists recording media URLs for a call.
func (f *Fetcher) FetchRecordingURLs(ctx context.Context, callSID string) ([]string, error) {
	if !f.Configured() {
		return nil, fmt.Errorf("twilio credentials not configured")
	}
	if !strings.HasPrefix(callSID, "CA") {
		return nil, fmt.Errorf("invalid call sid %q", callSID)
	}

	var res struct {
		Recordings []struct {
			SID string `json:"sid"`
		} `json:"recordings"`
	}
	if err := f.getJSON(ctx, "/Calls/"+callSID+"/Recordings.json", nil, &res); err != nil {
		return nil, fmt.Errorf("fetch recordings: %w", err)
	}

	urls := make([]string, 0, len(res.Recordings))
	for _, rec := range res.Recordings {
		if rec.SID != "" {
			urls = append(urls, f.baseURL+"/Recordings/"+rec.SID)
		}
	}
	f.log.Info("fetched recordings", "call_sid", callSID, "count", len(urls))
	return urls, nil
}

func (f *Fetcher) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	call := func() error {
		u := f.baseURL + path
		if len(params) > 0 {
			u += "?" + params.Encode()
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.SetBasicAuth(f.accountSID, f.authToken)

		resp, err := f.client.Do(req)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("twilio API error %d: %s", resp.StatusCode, string(data))
		}
		return json.Unmarshal(data, out)
	}

	if f.breaker != nil {
		return f.breaker.Execute(call)
	}
	return call()
}
