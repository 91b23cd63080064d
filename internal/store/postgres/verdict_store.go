package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/sudarshan/internal/domain"
)

// MaxHistory caps ListRecent.
const MaxHistory = 500

// VerdictStore implements domain.VerdictStore on the analyses table.
type VerdictStore struct {
	pool *pgxpool.Pool
}

// NewVerdictStore creates a VerdictStore backed by pool.
func NewVerdictStore(pool *pgxpool.Pool) *VerdictStore {
	return &VerdictStore{pool: pool}
}

// Save inserts rec. Saving the same ID twice is a no-op.
func (s *VerdictStore) Save(ctx context.Context, rec domain.AnalysisRecord) error {
	weights, err := json.Marshal(rec.Weights)
	if err != nil {
		return fmt.Errorf("postgres: marshal weights: %w", err)
	}
	signals, err := json.Marshal(rec.Signals)
	if err != nil {
		return fmt.Errorf("postgres: marshal signals: %w", err)
	}
	detail, err := json.Marshal(rec.Detail)
	if err != nil {
		return fmt.Errorf("postgres: marshal detail: %w", err)
	}

	const query = `
		INSERT INTO analyses (id, min_confirms, weights, signals, score, confirms, verdict, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`
	_, err = s.pool.Exec(ctx, query,
		rec.ID, rec.MinConfirms, weights, signals,
		rec.Score, rec.Confirms, string(rec.Verdict), detail, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save analysis %s: %w", rec.ID, err)
	}
	return nil
}

// ListRecent returns up to limit records, newest first.
func (s *VerdictStore) ListRecent(ctx context.Context, limit int) ([]domain.AnalysisRecord, error) {
	if limit <= 0 || limit > MaxHistory {
		limit = MaxHistory
	}

	const query = `
		SELECT id::text, min_confirms, weights, signals, score, confirms, verdict, detail, created_at
		FROM analyses
		ORDER BY created_at DESC
		LIMIT $1`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list analyses: %w", err)
	}

	recs, err := pgx.CollectRows(rows, scanAnalysis)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan analyses: %w", err)
	}
	return recs, nil
}

func scanAnalysis(row pgx.CollectableRow) (domain.AnalysisRecord, error) {
	var (
		rec                      domain.AnalysisRecord
		verdict                  string
		weights, signals, detail []byte
	)
	if err := row.Scan(
		&rec.ID, &rec.MinConfirms, &weights, &signals,
		&rec.Score, &rec.Confirms, &verdict, &detail, &rec.CreatedAt,
	); err != nil {
		return rec, err
	}
	rec.Verdict = domain.Signal(verdict)
	if err := json.Unmarshal(weights, &rec.Weights); err != nil {
		return rec, fmt.Errorf("weights: %w", err)
	}
	if err := json.Unmarshal(signals, &rec.Signals); err != nil {
		return rec, fmt.Errorf("signals: %w", err)
	}
	if err := json.Unmarshal(detail, &rec.Detail); err != nil {
		return rec, fmt.Errorf("detail: %w", err)
	}
	return rec, nil
}

var _ domain.VerdictStore = (*VerdictStore)(nil)
