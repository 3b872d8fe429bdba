package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pario-ai/parley/pkg/models"
)

// PostgresStore persists audit records in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("postgres audit store: database url is required")
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS audit_logs (
			id TEXT PRIMARY KEY,
			conversation_id TEXT,
			prompt_masked TEXT NOT NULL,
			response_masked TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audit_logs_created ON audit_logs (created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_audit_logs_conversation ON audit_logs (conversation_id);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, rec models.AuditRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit_logs (id, conversation_id, prompt_masked, response_masked, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		rec.ID,
		rec.ConversationID,
		rec.PromptMasked,
		rec.ResponseMasked,
		rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Query(ctx context.Context, opts models.AuditQueryOpts) ([]models.AuditRecord, error) {
	q := `SELECT id, conversation_id, prompt_masked, response_masked, created_at
		FROM audit_logs WHERE TRUE`
	var args []any

	if opts.ID != "" {
		args = append(args, opts.ID)
		q += fmt.Sprintf(" AND id = $%d", len(args))
	}
	if opts.ConversationID != "" {
		args = append(args, opts.ConversationID)
		q += fmt.Sprintf(" AND conversation_id = $%d", len(args))
	}
	if !opts.Since.IsZero() {
		args = append(args, opts.Since.UTC())
		q += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	args = append(args, limit)
	q += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	defer rows.Close()

	var records []models.AuditRecord
	for rows.Next() {
		var r models.AuditRecord
		if err := rows.Scan(&r.ID, &r.ConversationID, &r.PromptMasked, &r.ResponseMasked, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		r.CreatedAt = r.CreatedAt.UTC()
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit rows: %w", err)
	}
	return records, nil
}

func (s *PostgresStore) Stats(ctx context.Context) ([]models.AuditStat, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, count(*)
		 FROM audit_logs GROUP BY day ORDER BY day DESC`)
	if err != nil {
		return nil, fmt.Errorf("audit stats: %w", err)
	}
	defer rows.Close()

	var stats []models.AuditStat
	for rows.Next() {
		var st models.AuditStat
		if err := rows.Scan(&st.Day, &st.Count); err != nil {
			return nil, fmt.Errorf("scan audit stat: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

func (s *PostgresStore) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM audit_logs WHERE created_at < $1`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("audit cleanup: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
