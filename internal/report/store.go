package report

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/SINTEF-9012/TDPrioritization/core/db"
	"github.com/SINTEF-9012/TDPrioritization/internal/domain"
)

// Store persists finished reports to Postgres so runs can be compared over
// time. Persistence is optional and failures here do not invalidate the
// files already written to disk.
type Store struct {
	db *db.DB
}

func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Save writes the run header and every ranking and failure row in one
// transaction.
func (s *Store) Save(ctx context.Context, report *domain.PriorityReport) error {
	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO prioritization_runs (run_id, project, model, generated_at)
			VALUES ($1, $2, $3, $4)`,
			report.RunID, report.Project, report.Model, report.GeneratedAt)
		if err != nil {
			return fmt.Errorf("inserting run: %w", err)
		}

		for _, r := range report.Rankings {
			_, err := tx.Exec(ctx, `
				INSERT INTO ranked_findings
					(run_id, rank, finding_id, file_path, lines, category, severity, score, blended_score, rationale)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
				report.RunID, r.Rank, r.Finding.ID, r.Finding.FilePath,
				r.Finding.Lines.String(), r.Finding.Category, string(r.Finding.Severity),
				r.Judgment.Score, r.Blended, r.Judgment.Rationale)
			if err != nil {
				return fmt.Errorf("inserting ranking %d: %w", r.Finding.ID, err)
			}
		}

		for _, f := range report.Failures {
			_, err := tx.Exec(ctx, `
				INSERT INTO finding_failures
					(run_id, finding_id, file_path, category, stage, reason)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				report.RunID, f.FindingID, f.FilePath, f.Category, f.Stage, f.Reason)
			if err != nil {
				return fmt.Errorf("inserting failure %d: %w", f.FindingID, err)
			}
		}

		return nil
	})
}
