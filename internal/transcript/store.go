package transcript

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/jqb69/darkseek/pkg/logging"
	"github.com/jqb69/darkseek/pkg/search"
)

// Record is one stored question/answer pair.
type Record struct {
	ID            string
	QueryText     string
	ResponseText  string
	SearchResults []search.Result
	LLMUsed       string
	CreatedAt     time.Time
}

// Store persists transcripts in Postgres. query_text carries a unique
// constraint; repeated questions keep their first stored answer.
type Store struct {
	db     *sql.DB
	logger logging.Logger
}

// NewStore creates a transcript store.
func NewStore(db *sql.DB, logger logging.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Exists reports whether a transcript with this exact query text is
// already stored.
func (s *Store) Exists(ctx context.Context, queryText string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM transcripts WHERE query_text = $1)", queryText,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check transcript: %w", err)
	}
	return exists, nil
}

// Append stores the record unless its query text is already present.
// The exists check and the insert race across instances; the unique
// constraint closes that window, and the resulting duplicate-key error
// is benign and swallowed.
func (s *Store) Append(ctx context.Context, rec Record) error {
	exists, err := s.Exists(ctx, rec.QueryText)
	if err != nil {
		return err
	}
	if exists {
		s.logger.WithField("query", rec.QueryText).Debug("Transcript already stored, skipping")
		return nil
	}

	results, err := json.Marshal(rec.SearchResults)
	if err != nil {
		return fmt.Errorf("failed to marshal search results: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO transcripts (id, query_text, response_text, search_results, llm_used, created_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())`,
		uuid.New().String(), rec.QueryText, rec.ResponseText, results, rec.LLMUsed,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			s.logger.WithField("query", rec.QueryText).Debug("Transcript inserted concurrently, skipping")
			return nil
		}
		return fmt.Errorf("failed to insert transcript: %w", err)
	}
	return nil
}

// Lookup returns the stored transcript for an exact query text, or nil
// when none exists.
func (s *Store) Lookup(ctx context.Context, queryText string) (*Record, error) {
	var (
		rec     Record
		results []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, query_text, response_text, search_results, llm_used, created_at
		 FROM transcripts WHERE query_text = $1`, queryText,
	).Scan(&rec.ID, &rec.QueryText, &rec.ResponseText, &results, &rec.LLMUsed, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query transcript: %w", err)
	}

	if len(results) > 0 {
		if err := json.Unmarshal(results, &rec.SearchResults); err != nil {
			return nil, fmt.Errorf("failed to decode search results: %w", err)
		}
	}
	return &rec, nil
}
