package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher and Indexer over the rule_versions table using
// PostgreSQL full-text search. It backs search when Meilisearch is down.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; a missing database fails the query instead.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search ranks versions with plainto_tsquery and ts_rank, using ts_headline
// for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	where, args := pgWhere(q)
	countSQL := "SELECT count(*) FROM rule_versions v WHERE " + where
	dataSQL := fmt.Sprintf(`SELECT v.id, v.document, v.path, v.effective::text, v.suffix,
			coalesce(nullif(v.title, ''), v.label),
			ts_headline('english', v.content, plainto_tsquery('english', $1), 'MaxFragments=1,MaxWords=30'),
			v.commit_hash
		FROM rule_versions v
		WHERE %s
		ORDER BY ts_rank(v.fts, plainto_tsquery('english', $1)) DESC, v.effective DESC
		LIMIT %d OFFSET %d`, where, limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Document, &r.Path, &r.Effective, &r.Suffix, &r.Title, &r.Snippet, &r.Commit); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

func pgWhere(q Query) (string, []any) {
	where := "v.fts @@ plainto_tsquery('english', $1)"
	args := []any{q.Text}
	if q.FilterCategory != "" {
		args = append(args, q.FilterCategory)
		where += fmt.Sprintf(" AND v.category = $%d", len(args))
	}
	if q.AsOf != nil {
		args = append(args, q.AsOf.String())
		where += fmt.Sprintf(" AND v.effective <= $%d::date", len(args))
	}
	return where, args
}

// IndexVersions upserts records in one transaction.
func (p *PgFTS) IndexVersions(records []VersionRecord) error {
	if len(records) == 0 {
		return nil
	}
	ctx := context.Background()
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin index tx: %w", err)
	}
	for _, r := range records {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO rule_versions (id, document, category, slug, label, path, effective, suffix, title, content, commit_hash)
			VALUES ($1, $2, $3, $4, $5, $6, $7::date, $8, $9, $10, $11)
			ON CONFLICT (id) DO UPDATE SET
				label = EXCLUDED.label,
				path = EXCLUDED.path,
				title = EXCLUDED.title,
				content = EXCLUDED.content,
				commit_hash = EXCLUDED.commit_hash,
				indexed_at = NOW()`,
			r.ID, r.Document, r.Category, r.Slug, r.Label, r.Path, r.Effective, r.Suffix, r.Title, r.Content, r.Commit,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("index version %s: %w", r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit index tx: %w", err)
	}
	return nil
}
