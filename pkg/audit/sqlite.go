package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pario-ai/parley/pkg/models"
	_ "modernc.org/sqlite"
)

// timeLayout is fixed-width so that created_at sorts lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore writes and queries audit records in a dedicated SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the audit SQLite database and creates the schema.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS audit_logs (
		id              TEXT PRIMARY KEY,
		conversation_id TEXT,
		prompt_masked   TEXT NOT NULL,
		response_masked TEXT NOT NULL,
		created_at      TEXT NOT NULL
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_logs(created_at)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_conversation ON audit_logs(conversation_id)`)
	return err
}

// Append inserts an audit record. A duplicate id is an error.
func (s *SQLiteStore) Append(ctx context.Context, rec models.AuditRecord) error {
	var convID sql.NullString
	if rec.ConversationID != nil {
		convID = sql.NullString{String: *rec.ConversationID, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, conversation_id, prompt_masked, response_masked, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		rec.ID, convID, rec.PromptMasked, rec.ResponseMasked,
		rec.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// Query returns audit records matching the given options.
func (s *SQLiteStore) Query(ctx context.Context, opts models.AuditQueryOpts) ([]models.AuditRecord, error) {
	q := `SELECT id, conversation_id, prompt_masked, response_masked, created_at
		FROM audit_logs WHERE 1=1`
	var args []any

	if opts.ID != "" {
		q += " AND id = ?"
		args = append(args, opts.ID)
	}
	if opts.ConversationID != "" {
		q += " AND conversation_id = ?"
		args = append(args, opts.ConversationID)
	}
	if !opts.Since.IsZero() {
		q += " AND created_at >= ?"
		args = append(args, opts.Since.UTC().Format(timeLayout))
	}

	q += " ORDER BY created_at DESC, rowid DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	q += " LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	defer rows.Close()

	var records []models.AuditRecord
	for rows.Next() {
		var (
			r         models.AuditRecord
			convID    sql.NullString
			createdAt string
		)
		if err := rows.Scan(&r.ID, &convID, &r.PromptMasked, &r.ResponseMasked, &createdAt); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		if convID.Valid {
			id := convID.String
			r.ConversationID = &id
		}
		r.CreatedAt, err = time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse audit created_at %q: %w", createdAt, err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Stats returns record counts grouped by day.
func (s *SQLiteStore) Stats(ctx context.Context) ([]models.AuditStat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT substr(created_at, 1, 10) AS day, count(*) AS cnt
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

// Cleanup deletes records created before the cutoff.
func (s *SQLiteStore) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM audit_logs WHERE created_at < ?`, before.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("audit cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
