package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"rulehistory/internal/report"
)

var ErrNotFound = errors.New("not found")

// PostgresStore keeps run history for operators. The engine never reads it
// back to decide what to commit.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// SaveRun records the summary and its problems in one transaction. Saving
// the same run id twice replaces the earlier row.
func (s *PostgresStore) SaveRun(ctx context.Context, summary report.Summary) error {
	run, problems, err := fromSummary(summary)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save run tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = $1`, run.ID); err != nil {
		return fmt.Errorf("clear run %s: %w", run.ID, err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (
			id, mode, categories, applied, forced, started_at, finished_at,
			documents, new_versions, corrections, conflicts, mutations_applied, fatal, summary
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14::jsonb)
	`,
		run.ID, run.Mode, strings.Join(run.Categories, ","), run.Applied, run.Forced, run.StartedAt, run.FinishedAt,
		run.Documents, run.NewVersions, run.Corrections, run.Conflicts, run.MutationsApplied, run.Fatal, string(run.Summary),
	); err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}

	for _, p := range problems {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO run_problems (run_id, seq, kind, document, dates, reason)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, p.RunID, p.Seq, p.Kind, p.Document, strings.Join(p.Dates, ","), p.Reason); err != nil {
			return fmt.Errorf("insert run problem %d: %w", p.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save run tx: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs first.
func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, mode, categories, applied, forced, started_at, finished_at,
			documents, new_versions, corrections, conflicts, mutations_applied, fatal, summary
		FROM runs
		ORDER BY started_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	items := make([]Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, run)
	}
	return items, rows.Err()
}

func (s *PostgresStore) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, mode, categories, applied, forced, started_at, finished_at,
			documents, new_versions, corrections, conflicts, mutations_applied, fatal, summary
		FROM runs
		WHERE id = $1
	`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	return run, err
}

func (s *PostgresStore) ListRunProblems(ctx context.Context, runID string) ([]RunProblem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, kind, document, dates, reason
		FROM run_problems
		WHERE run_id = $1
		ORDER BY seq
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list run problems: %w", err)
	}
	defer rows.Close()

	items := make([]RunProblem, 0)
	for rows.Next() {
		var p RunProblem
		var dates string
		if err := rows.Scan(&p.RunID, &p.Seq, &p.Kind, &p.Document, &dates, &p.Reason); err != nil {
			return nil, fmt.Errorf("scan run problem: %w", err)
		}
		p.Dates = splitComma(dates)
		items = append(items, p)
	}
	return items, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var run Run
	var categories string
	if err := row.Scan(
		&run.ID, &run.Mode, &categories, &run.Applied, &run.Forced, &run.StartedAt, &run.FinishedAt,
		&run.Documents, &run.NewVersions, &run.Corrections, &run.Conflicts, &run.MutationsApplied, &run.Fatal, &run.Summary,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.Categories = splitComma(categories)
	return run, nil
}

func fromSummary(summary report.Summary) (Run, []RunProblem, error) {
	if summary.RunID == "" {
		return Run{}, nil, errors.New("save run: empty run id")
	}
	raw, err := json.Marshal(summary)
	if err != nil {
		return Run{}, nil, fmt.Errorf("marshal summary: %w", err)
	}
	run := Run{
		ID:               summary.RunID,
		Mode:             summary.Mode,
		Categories:       summary.Categories,
		Applied:          summary.Apply,
		Forced:           summary.Force,
		StartedAt:        summary.StartedAt,
		FinishedAt:       summary.FinishedAt,
		Documents:        summary.Counts.Documents,
		NewVersions:      summary.Counts.NewVersions,
		Corrections:      summary.Counts.Corrections,
		Conflicts:        summary.Counts.Conflicts,
		MutationsApplied: summary.Counts.Applied,
		Fatal:            summary.Fatal,
		Summary:          raw,
	}
	problems := make([]RunProblem, 0, len(summary.Problems))
	for i, p := range summary.Problems {
		problems = append(problems, RunProblem{
			RunID:    summary.RunID,
			Seq:      i + 1,
			Kind:     string(p.Kind),
			Document: p.Document,
			Dates:    p.DateStrings(),
			Reason:   p.Reason,
		})
	}
	return run, problems, nil
}

func splitComma(raw string) []string {
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}
