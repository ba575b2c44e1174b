package twilio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/vantagevoice/callscope/internal/domain/cost"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestFetcher(srvURL string) *Fetcher {
	f := New("AC00000000000000000000000000000000", "token", discard())
	f.baseURL = srvURL
	f.retryDelay = time.Millisecond
	return f
}

func TestFetchCallCostRealPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, _, ok := r.BasicAuth(); !ok {
			t.Error("missing basic auth")
		}
		fmt.Fprint(w, `{"sid":"CA123","price":"-0.042","price_unit":"USD","duration":"180","status":"completed","direction":"outbound-api"}`)
	}))
	defer srv.Close()

	f := newTestFetcher(srv.URL)
	rec, err := f.FetchCallCost(context.Background(), "CA123")
	if err != nil {
		t.Fatalf("FetchCallCost: %v", err)
	}
	if rec.CostUSD != 0.042 {
		t.Errorf("cost = %v, want 0.042 (absolute value of negative price)", rec.CostUSD)
	}
	if rec.DurationMinutes != 3 {
		t.Errorf("duration minutes = %v, want 3", rec.DurationMinutes)
	}
	if rec.RatePerMinute != 0.014 {
		t.Errorf("rate = %v, want 0.014", rec.RatePerMinute)
	}
}

func TestFetchCallCostRetriesUntilPriced(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n < 3 {
			fmt.Fprint(w, `{"sid":"CA123","price":"","duration":"60","status":"completed","direction":"outbound-api"}`)
			return
		}
		fmt.Fprint(w, `{"sid":"CA123","price":"-0.014","duration":"60","status":"completed","direction":"outbound-api"}`)
	}))
	defer srv.Close()

	f := newTestFetcher(srv.URL)
	rec, err := f.FetchCallCost(context.Background(), "CA123")
	if err != nil {
		t.Fatalf("FetchCallCost: %v", err)
	}
	if rec.CostUSD != 0.014 {
		t.Errorf("cost = %v, want 0.014", rec.CostUSD)
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 3 {
		t.Errorf("API calls = %d, want 3", calls)
	}
}

func TestFetchCallCostFallsBackWhenNeverPriced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"sid":"CA123","price":"","duration":"90","status":"completed","direction":"outbound-api"}`)
	}))
	defer srv.Close()

	f := newTestFetcher(srv.URL)
	f.maxRetries = 3
	rec, err := f.FetchCallCost(context.Background(), "CA123")
	if err != nil {
		t.Fatalf("FetchCallCost: %v", err)
	}
	// 90s rounds up to 2 whole minutes at the outbound-api rate.
	want := math.Round(2*0.0497*1e6) / 1e6
	if rec.CostUSD != want {
		t.Errorf("fallback cost = %v, want %v", rec.CostUSD, want)
	}
	if rec.DurationMinutes != 2 {
		t.Errorf("duration minutes = %v, want 2", rec.DurationMinutes)
	}
}

func TestFallbackBillingRoundsUpWholeMinutes(t *testing.T) {
	tests := []struct {
		seconds     string
		wantMinutes float64
	}{
		{"45", 1},
		{"60", 1},
		{"61", 2},
		{"120", 2},
	}
	for _, tt := range tests {
		rec := fallbackBilling(callResource{
			SID:       "CA123",
			Duration:  tt.seconds,
			Status:    "completed",
			Direction: "outbound-api",
		})
		if rec == nil {
			t.Fatalf("%ss: expected fallback record", tt.seconds)
		}
		if rec.DurationMinutes != tt.wantMinutes {
			t.Errorf("%ss: duration minutes = %v, want %v", tt.seconds, rec.DurationMinutes, tt.wantMinutes)
		}
		if want := cost.Round6(tt.wantMinutes * 0.0497); rec.CostUSD != want {
			t.Errorf("%ss: cost = %v, want %v", tt.seconds, rec.CostUSD, want)
		}
	}
}

func TestFetchCallCostFallbackRequiresCompletedCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"sid":"CA123","price":"","duration":"0","status":"no-answer","direction":"outbound-api"}`)
	}))
	defer srv.Close()

	f := newTestFetcher(srv.URL)
	f.maxRetries = 2
	if _, err := f.FetchCallCost(context.Background(), "CA123"); err == nil {
		t.Fatal("expected error for unpriced non-completed call")
	}
}

func TestFetchCallCostRejectsInvalidSID(t *testing.T) {
	f := newTestFetcher("http://unused")
	if _, err := f.FetchCallCost(context.Background(), "XX123"); err == nil {
		t.Fatal("expected error for SID without CA prefix")
	}
}

type fakeCache struct {
	mu sync.Mutex
	m  map[string][]byte
}

func (c *fakeCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[key]
	return v, ok, nil
}

func (c *fakeCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = value
	return nil
}

func (c *fakeCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, key)
	return nil
}

func TestFindCallSIDUsesCache(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		if got := r.URL.Query().Get("From"); got != "+15550100" {
			t.Errorf("From = %q", got)
		}
		fmt.Fprint(w, `{"calls":[{"sid":"CA777","status":"completed","duration":"60"}]}`)
	}))
	defer srv.Close()

	f := newTestFetcher(srv.URL)
	f.SetCache(&fakeCache{m: make(map[string][]byte)})
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		sid, err := f.FindCallSID(context.Background(), "+15550100", "+15550199", start)
		if err != nil {
			t.Fatalf("FindCallSID: %v", err)
		}
		if sid != "CA777" {
			t.Errorf("sid = %q, want CA777", sid)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("API calls = %d, want 1 (second lookup served from cache)", calls)
	}
}

func TestFetchRecordingURLs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"recordings":[{"sid":"RE1"},{"sid":"RE2"}]}`)
	}))
	defer srv.Close()

	f := newTestFetcher(srv.URL)
	urls, err := f.FetchRecordingURLs(context.Background(), "CA123")
	if err != nil {
		t.Fatalf("FetchRecordingURLs: %v", err)
	}
	if len(urls) != 2 {
		t.Fatalf("got %d urls, want 2", len(urls))
	}
	if urls[0] != srv.URL+"/Recordings/RE1" {
		t.Errorf("url = %q", urls[0])
	}
}

func TestUnconfiguredFetcher(t *testing.T) {
	f := New("", "", discard())
	if f.Configured() {
		t.Fatal("empty credentials reported as configured")
	}
	if _, err := f.FetchCallCost(context.Background(), "CA123"); err == nil {
		t.Fatal("expected error without credentials")
	}
}
