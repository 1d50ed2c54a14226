package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"roleshop-api/internal/model"

	_ "modernc.org/sqlite"
)

// SQLiteHistoryRepository stores the audit trail in SQLite. It can share a
// database file with the shop repository or use its own.
type SQLiteHistoryRepository struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteHistoryRepository creates a new SQLite history repository.
func NewSQLiteHistoryRepository(dbPath string) (*SQLiteHistoryRepository, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	query := `
	CREATE TABLE IF NOT EXISTS history (
		id TEXT PRIMARY KEY,
		entitlement_id TEXT,
		action_type TEXT NOT NULL,
		actor_account_id TEXT NOT NULL,
		counterparty_account_id TEXT,
		amount INTEGER,
		details TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_history_actor ON history(actor_account_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_history_entitlement ON history(entitlement_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_history_created ON history(created_at);
	`
	if _, err := db.Exec(query); err != nil {
		return nil, fmt.Errorf("failed to create history table: %w", err)
	}

	log.Printf("[SQLiteHistoryRepository] Initialized with database: %s", dbPath)
	return &SQLiteHistoryRepository{db: db}, nil
}

// Append inserts an audit record. Records are immutable once written.
func (r *SQLiteHistoryRepository) Append(ctx context.Context, rec *model.HistoryRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	entID := sql.NullString{String: rec.EntitlementID, Valid: rec.EntitlementID != ""}
	counterparty := sql.NullString{String: rec.CounterpartyAccountID, Valid: rec.CounterpartyAccountID != ""}
	var amount sql.NullInt64
	if rec.Amount != nil {
		amount = sql.NullInt64{Int64: *rec.Amount, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO history (id, entitlement_id, action_type, actor_account_id,
			counterparty_account_id, amount, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, entID, rec.ActionType, rec.ActorAccountID, counterparty, amount, rec.Details, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

func (r *SQLiteHistoryRepository) query(ctx context.Context, where string, args ...interface{}) ([]model.HistoryRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, entitlement_id, action_type, actor_account_id,
			counterparty_account_id, amount, details, created_at
		FROM history `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	recs := []model.HistoryRecord{}
	for rows.Next() {
		var rec model.HistoryRecord
		var entID, counterparty sql.NullString
		var amount sql.NullInt64
		if err := rows.Scan(&rec.ID, &entID, &rec.ActionType, &rec.ActorAccountID,
			&counterparty, &amount, &rec.Details, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if entID.Valid {
			rec.EntitlementID = entID.String
		}
		if counterparty.Valid {
			rec.CounterpartyAccountID = counterparty.String
		}
		if amount.Valid {
			a := amount.Int64
			rec.Amount = &a
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// ListByAccount returns the most recent records where the account acted
// or was the counterparty.
func (r *SQLiteHistoryRepository) ListByAccount(ctx context.Context, accountID string, limit int) ([]model.HistoryRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.query(ctx,
		`WHERE actor_account_id = ? OR counterparty_account_id = ? ORDER BY created_at DESC LIMIT ?`,
		accountID, accountID, limit)
}

// ListByEntitlement returns the most recent records for an entitlement.
func (r *SQLiteHistoryRepository) ListByEntitlement(ctx context.Context, entitlementID string, limit int) ([]model.HistoryRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.query(ctx,
		`WHERE entitlement_id = ? ORDER BY created_at DESC LIMIT ?`, entitlementID, limit)
}

// PurgeOlderThan deletes records past the retention horizon.
func (r *SQLiteHistoryRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result, err := r.db.ExecContext(ctx, `DELETE FROM history WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge history: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		log.Printf("[SQLiteHistoryRepository] Purged %d history records older than %v", deleted, cutoff)
	}
	return deleted, nil
}

// Close closes the database connection.
func (r *SQLiteHistoryRepository) Close() error {
	return r.db.Close()
}

// Ensure SQLiteHistoryRepository implements HistoryRepository
var _ HistoryRepository = (*SQLiteHistoryRepository)(nil)
