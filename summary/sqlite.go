package summary

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/postvisit/carecore/records"
)

const schema = `
CREATE TABLE IF NOT EXISTS session_summaries (
	id                TEXT PRIMARY KEY,
	patient_id        TEXT NOT NULL,
	visit_id          TEXT NOT NULL DEFAULT '',
	session_id        TEXT NOT NULL DEFAULT '',
	summary_text      TEXT NOT NULL,
	key_questions     TEXT NOT NULL DEFAULT '[]',
	concerns_raised   TEXT NOT NULL DEFAULT '[]',
	followup_items    TEXT NOT NULL DEFAULT '[]',
	emotional_context TEXT NOT NULL DEFAULT '',
	token_count       INTEGER NOT NULL DEFAULT 0,
	created_at        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_session_summaries_patient ON session_summaries(patient_id, created_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_session_summaries_session ON session_summaries(session_id) WHERE session_id != '';
`

// SQLiteStore keeps summaries in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens the database at path, creating the file and schema if
// missing. Use ":memory:" for a private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection: SQLite serializes writers, and each connection to
	// ":memory:" is a separate database.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply summary schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save implements Store. A second summary for the same session replaces
// the first.
func (s *SQLiteStore) Save(ctx context.Context, sum *records.SessionSummary) error {
	questions, err := json.Marshal(orEmpty(sum.KeyQuestions))
	if err != nil {
		return err
	}
	concerns, err := json.Marshal(orEmpty(sum.ConcernsRaised))
	if err != nil {
		return err
	}
	followups, err := json.Marshal(orEmpty(sum.FollowupItems))
	if err != nil {
		return err
	}
	created := sum.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	if sum.SessionID != "" {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM session_summaries WHERE session_id = ? AND id != ?`,
			sum.SessionID, sum.ID); err != nil {
			return err
		}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO session_summaries
		 (id, patient_id, visit_id, session_id, summary_text, key_questions, concerns_raised,
		  followup_items, emotional_context, token_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   summary_text=excluded.summary_text, key_questions=excluded.key_questions,
		   concerns_raised=excluded.concerns_raised, followup_items=excluded.followup_items,
		   emotional_context=excluded.emotional_context, token_count=excluded.token_count`,
		sum.ID, sum.PatientID, sum.VisitID, sum.SessionID, sum.SummaryText,
		string(questions), string(concerns), string(followups),
		sum.EmotionalContext, sum.TokenCount, created.UnixNano(),
	)
	return err
}

// Recent implements assembler.SummarySource: up to limit summaries for the
// patient, newest first. limit <= 0 returns all of them.
func (s *SQLiteStore) Recent(ctx context.Context, patientID string, limit int) ([]records.SessionSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, patient_id, visit_id, session_id, summary_text, key_questions, concerns_raised,
		        followup_items, emotional_context, token_count, created_at
		 FROM session_summaries
		 WHERE patient_id = ?
		 ORDER BY created_at DESC, rowid DESC
		 LIMIT ?`,
		patientID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []records.SessionSummary
	for rows.Next() {
		var (
			sum                           records.SessionSummary
			questions, concerns, followup string
			created                       int64
		)
		if err := rows.Scan(&sum.ID, &sum.PatientID, &sum.VisitID, &sum.SessionID, &sum.SummaryText,
			&questions, &concerns, &followup, &sum.EmotionalContext, &sum.TokenCount, &created); err != nil {
			return nil, err
		}
		if err := decodeList(questions, &sum.KeyQuestions); err != nil {
			return nil, fmt.Errorf("summary %s key_questions: %w", sum.ID, err)
		}
		if err := decodeList(concerns, &sum.ConcernsRaised); err != nil {
			return nil, fmt.Errorf("summary %s concerns_raised: %w", sum.ID, err)
		}
		if err := decodeList(followup, &sum.FollowupItems); err != nil {
			return nil, fmt.Errorf("summary %s followup_items: %w", sum.ID, err)
		}
		sum.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, sum)
	}
	return out, rows.Err()
}

func decodeList(raw string, dst *[]string) error {
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return err
	}
	*dst = orEmpty(*dst)
	return nil
}
