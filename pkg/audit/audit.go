// Package audit externalizes verdicts for after-the-fact review. Sinks
// implement detect.VerdictSink and are called fire-and-forget by the
// pipeline; failures are logged, never propagated into analysis.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/louisawamuyu/cogniguard/pkg/detect"
)

// Record is the externalized form of one verdict. Message text is truncated
// so the trail does not become a copy of the traffic it polices.
type Record struct {
	Time           time.Time       `json:"time"`
	MessageID      string          `json:"message_id"`
	ConversationID string          `json:"conversation_id"`
	Sender         string          `json:"sender,omitempty"`
	TextPreview    string          `json:"text_preview,omitempty"`
	Decision       detect.Decision `json:"decision"`
	Risk           float64         `json:"risk"`
	State          string          `json:"conversation_state"`
	Explanation    string          `json:"explanation"`
	EarlyExit      bool            `json:"early_exit,omitempty"`
	LatencyMs      int64           `json:"latency_ms"`
}

const previewLen = 120

func makeRecord(msg detect.Message, v detect.Verdict) Record {
	preview := msg.Text
	if len(preview) > previewLen {
		preview = preview[:previewLen] + "..."
	}
	return Record{
		Time:           time.Now().UTC(),
		MessageID:      v.MessageID,
		ConversationID: v.ConversationID,
		Sender:         msg.Sender,
		TextPreview:    preview,
		Decision:       v.Decision,
		Risk:           v.Risk.Value,
		State:          string(v.State),
		Explanation:    v.Explanation,
		EarlyExit:      v.EarlyExit,
		LatencyMs:      v.LatencyMs,
	}
}

// JSONLSink appends one JSON line per verdict to a local file.
type JSONLSink struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewJSONLSink opens (or creates) the trail file in append mode.
func NewJSONLSink(path string) (*JSONLSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log %s: %w", path, err)
	}
	return &JSONLSink{file: f, enc: json.NewEncoder(f)}, nil
}

func (s *JSONLSink) Record(_ context.Context, msg detect.Message, v detect.Verdict) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(makeRecord(msg, v)); err != nil {
		return fmt.Errorf("write audit record: %w", err)
	}
	return nil
}

// Close flushes and closes the trail file.
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// PostgresSink writes verdicts to a Postgres table for multi-node
// deployments that query the trail centrally.
type PostgresSink struct {
	pool *pgxpool.Pool
}

const createTrailTable = `
CREATE TABLE IF NOT EXISTS verdict_trail (
	id              BIGSERIAL PRIMARY KEY,
	recorded_at     TIMESTAMPTZ NOT NULL,
	message_id      TEXT NOT NULL,
	conversation_id TEXT NOT NULL,
	sender          TEXT,
	text_preview    TEXT,
	decision        TEXT NOT NULL,
	risk            DOUBLE PRECISION NOT NULL,
	state           TEXT NOT NULL,
	explanation     TEXT,
	early_exit      BOOLEAN NOT NULL DEFAULT FALSE,
	latency_ms      BIGINT
)`

// NewPostgresSink connects and ensures the trail table exists.
func NewPostgresSink(ctx context.Context, dsn string) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, createTrailTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create verdict_trail table: %w", err)
	}
	return &PostgresSink{pool: pool}, nil
}

func (s *PostgresSink) Record(ctx context.Context, msg detect.Message, v detect.Verdict) error {
	rec := makeRecord(msg, v)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO verdict_trail
			(recorded_at, message_id, conversation_id, sender, text_preview,
			 decision, risk, state, explanation, early_exit, latency_ms)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		rec.Time, rec.MessageID, rec.ConversationID, rec.Sender, rec.TextPreview,
		string(rec.Decision), rec.Risk, rec.State, rec.Explanation, rec.EarlyExit, rec.LatencyMs)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresSink) Close() {
	s.pool.Close()
}

// MultiSink fans one verdict out to several sinks, returning the first
// error after trying all of them.
type MultiSink []detect.VerdictSink

func (m MultiSink) Record(ctx context.Context, msg detect.Message, v detect.Verdict) error {
	var firstErr error
	for _, sink := range m {
		if err := sink.Record(ctx, msg, v); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
