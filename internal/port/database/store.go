// Package database defines the database store port (interface).
package database

import (
	"context"

	"github.com/vantagevoice/callscope/internal/domain/call"
)

// Store is the port interface for call-record persistence.
type Store interface {
	SaveCallRecord(ctx context.Context, rec *call.Record) error
	GetCallRecord(ctx context.Context, callID string) (*call.Record, error)
	ListCallRecords(ctx context.Context, limit int) ([]call.Record, error)
}
