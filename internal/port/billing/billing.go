// Package billing defines the telephony billing port (interface).
package billing

import (
	"context"
	"time"

	"github.com/vantagevoice/callscope/internal/domain/cost"
)

// Fetcher retrieves real per-call billing data from the telephony
// provider. All methods are best-effort: the caller falls back to
// estimated costs when they fail.
type Fetcher interface {
	// FetchCallCost fetches the billed cost for a call, retrying while
	// the provider has not priced the call yet.
	FetchCallCost(ctx context.Context, callSID string) (*cost.BillingRecord, error)

	// FindCallSID locates the provider call SID by phone-number pair,
	// scoped to calls started around the given time.
	FindCallSID(ctx context.Context, fromNumber, toNumber string, startedAt time.Time) (string, error)

	// FetchRecordingURLs lists recording media URLs for a call.
	FetchRecordingURLs(ctx context.Context, callSID string) ([]string, error)
}
