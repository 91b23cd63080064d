package domain

import "context"

// VerdictStore persists fusion analysis outcomes.
type VerdictStore interface {
	Save(ctx context.Context, rec AnalysisRecord) error
	ListRecent(ctx context.Context, limit int) ([]AnalysisRecord, error)
}
