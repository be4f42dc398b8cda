package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"synthctl/domain/core"
	"synthctl/domain/estimate"
	"synthctl/internal/errors"
	"synthctl/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS estimation_results (
	run_id   TEXT             NOT NULL,
	date     DATE             NOT NULL,
	obs      DOUBLE PRECISION NOT NULL,
	synth    DOUBLE PRECISION NOT NULL,
	gap      DOUBLE PRECISION NOT NULL,
	lower_ci DOUBLE PRECISION,
	upper_ci DOUBLE PRECISION,
	t0       INTEGER          NOT NULL,
	outcome  TEXT             NOT NULL,
	treated  TEXT             NOT NULL,
	PRIMARY KEY (run_id, date)
);
CREATE INDEX IF NOT EXISTS idx_estimation_results_pair
	ON estimation_results (treated, outcome);
`

const insertRecord = `
INSERT INTO estimation_results
	(run_id, date, obs, synth, gap, lower_ci, upper_ci, t0, outcome, treated)
VALUES
	(:run_id, :date, :obs, :synth, :gap, :lower_ci, :upper_ci, :t0, :outcome, :treated)`

const selectRecords = `
SELECT date, obs, synth, gap, lower_ci, upper_ci, t0, outcome, treated
FROM estimation_results
WHERE run_id = $1
ORDER BY date`

// ResultStore persists the flat estimation record table in PostgreSQL
type ResultStore struct {
	db *sqlx.DB
}

// NewResultStore creates a result store around an open connection
func NewResultStore(db *sqlx.DB) *ResultStore {
	return &ResultStore{db: db}
}

// EnsureSchema creates the results table if it does not exist
func (s *ResultStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "failed to create estimation_results schema")
	}
	return nil
}

type recordRow struct {
	RunID string `db:"run_id"`
	estimate.Record
}

// SaveRecords appends one estimation call's records in a single
// transaction, so a run is either fully stored or absent.
func (s *ResultStore) SaveRecords(ctx context.Context, runID core.RunID, records []estimate.Record) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin results transaction")
	}
	defer tx.Rollback()

	for _, rec := range records {
		if _, err := tx.NamedExecContext(ctx, insertRecord, recordRow{RunID: runID.String(), Record: rec}); err != nil {
			return errors.Wrapf(err, "failed to insert record for run %s", runID)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit results transaction")
	}
	return nil
}

// LoadRecords returns the records stored for a run, in date order
func (s *ResultStore) LoadRecords(ctx context.Context, runID core.RunID) ([]estimate.Record, error) {
	var records []estimate.Record
	if err := s.db.SelectContext(ctx, &records, selectRecords, runID.String()); err != nil {
		return nil, errors.Wrapf(err, "failed to load records for run %s", runID)
	}
	return records, nil
}

// Ensure ResultStore implements the result store contract
var _ ports.ResultStore = (*ResultStore)(nil)
