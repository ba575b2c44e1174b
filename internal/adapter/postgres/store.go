package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vantagevoice/callscope/internal/domain"
	"github.com/vantagevoice/callscope/internal/domain/call"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// SaveCallRecord upserts the finalized summary of a call.
func (s *Store) SaveCallRecord(ctx context.Context, rec *call.Record) error {
	userTags, err := json.Marshal(emptyIfNil(rec.UserTagsFound))
	if err != nil {
		return fmt.Errorf("marshal user tags: %w", err)
	}
	systemTags, err := json.Marshal(emptyIfNil(rec.SystemTagsFound))
	if err != nil {
		return fmt.Errorf("marshal system tags: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO call_records (
			call_id, from_number, to_number, started_at, ended_at, duration_seconds,
			outcome, end_reason, is_voicemail, is_rejected,
			transcript_chars, transcript_words, user_tags_found, system_tags_found,
			transcription_cost, synthesis_cost, llm_cost, telephony_cost, total_cost,
			callback_requested, callback_time
		 ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
		 ON CONFLICT (call_id) DO UPDATE SET
			ended_at = EXCLUDED.ended_at,
			duration_seconds = EXCLUDED.duration_seconds,
			outcome = EXCLUDED.outcome,
			end_reason = EXCLUDED.end_reason,
			is_voicemail = EXCLUDED.is_voicemail,
			is_rejected = EXCLUDED.is_rejected,
			transcript_chars = EXCLUDED.transcript_chars,
			transcript_words = EXCLUDED.transcript_words,
			user_tags_found = EXCLUDED.user_tags_found,
			system_tags_found = EXCLUDED.system_tags_found,
			transcription_cost = EXCLUDED.transcription_cost,
			synthesis_cost = EXCLUDED.synthesis_cost,
			llm_cost = EXCLUDED.llm_cost,
			telephony_cost = EXCLUDED.telephony_cost,
			total_cost = EXCLUDED.total_cost,
			callback_requested = EXCLUDED.callback_requested,
			callback_time = EXCLUDED.callback_time`,
		rec.CallID, rec.FromNumber, rec.ToNumber, rec.StartedAt, rec.EndedAt, rec.DurationSeconds,
		rec.Outcome, rec.EndReason, rec.IsVoicemail, rec.IsRejected,
		rec.TranscriptChars, rec.TranscriptWords, userTags, systemTags,
		rec.TranscriptionCost, rec.SynthesisCost, rec.LLMCost, rec.TelephonyCost, rec.TotalCost,
		rec.CallbackRequested, rec.CallbackTime)
	if err != nil {
		return fmt.Errorf("insert call record: %w", err)
	}
	return nil
}

// GetCallRecord fetches one finalized call by ID.
func (s *Store) GetCallRecord(ctx context.Context, callID string) (*call.Record, error) {
	row := s.pool.QueryRow(ctx, selectColumns+` FROM call_records WHERE call_id = $1`, callID)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("call record %s: %w", callID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get call record: %w", err)
	}
	return rec, nil
}

// ListCallRecords returns the most recently finalized calls.
func (s *Store) ListCallRecords(ctx context.Context, limit int) ([]call.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		selectColumns+` FROM call_records ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list call records: %w", err)
	}
	defer rows.Close()

	var records []call.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan call record: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

const selectColumns = `SELECT call_id, from_number, to_number, started_at, ended_at, duration_seconds,
	outcome, end_reason, is_voicemail, is_rejected,
	transcript_chars, transcript_words, user_tags_found, system_tags_found,
	transcription_cost, synthesis_cost, llm_cost, telephony_cost, total_cost,
	callback_requested, callback_time, created_at`

func scanRecord(row pgx.Row) (*call.Record, error) {
	var rec call.Record
	var userTags, systemTags []byte
	err := row.Scan(
		&rec.CallID, &rec.FromNumber, &rec.ToNumber, &rec.StartedAt, &rec.EndedAt, &rec.DurationSeconds,
		&rec.Outcome, &rec.EndReason, &rec.IsVoicemail, &rec.IsRejected,
		&rec.TranscriptChars, &rec.TranscriptWords, &userTags, &systemTags,
		&rec.TranscriptionCost, &rec.SynthesisCost, &rec.LLMCost, &rec.TelephonyCost, &rec.TotalCost,
		&rec.CallbackRequested, &rec.CallbackTime, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(userTags, &rec.UserTagsFound); err != nil {
		return nil, fmt.Errorf("unmarshal user tags: %w", err)
	}
	if err := json.Unmarshal(systemTags, &rec.SystemTagsFound); err != nil {
		return nil, fmt.Errorf("unmarshal system tags: %w", err)
	}
	return &rec, nil
}

func emptyIfNil(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}
