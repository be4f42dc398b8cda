package ports

import (
	"context"

	"synthctl/domain/core"
	"synthctl/domain/estimate"
)

// ResultStore persists the flat estimation record table
type ResultStore interface {
	// EnsureSchema creates the results table if it does not exist
	EnsureSchema(ctx context.Context) error

	// SaveRecords appends one estimation call's records under its run ID
	SaveRecords(ctx context.Context, runID core.RunID, records []estimate.Record) error

	// LoadRecords returns the records stored for a run
	LoadRecords(ctx context.Context, runID core.RunID) ([]estimate.Record, error)
}
