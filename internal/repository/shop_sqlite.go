package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"roleshop-api/internal/model"
	"roleshop-api/pkg/uid"

	_ "modernc.org/sqlite" // Pure Go SQLite driver - no CGO required
)

// SQLiteShopRepository implements ShopRepository using SQLite.
// The ledger balances live in the same database file so every debit and
// credit commits in the same transaction as the entitlement writes.
// Thread-safe with WAL mode; writes are serialized through the mutex.
type SQLiteShopRepository struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteShopRepository creates a new SQLite shop repository.
// dbPath is the path to the SQLite database file (e.g., "./data/shop.db")
func NewSQLiteShopRepository(dbPath string) (*SQLiteShopRepository, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// SQLite only supports 1 writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := createShopTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	log.Printf("[SQLiteShopRepository] Initialized with database: %s", dbPath)
	return &SQLiteShopRepository{db: db}, nil
}

func createShopTables(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS entitlements (
		id TEXT PRIMARY KEY,
		owner_account_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		label TEXT NOT NULL,
		color TEXT NOT NULL DEFAULT '',
		purchase_price INTEGER NOT NULL,
		maintenance_cost INTEGER NOT NULL,
		purchase_date DATETIME NOT NULL,
		last_maintenance_date DATETIME NOT NULL,
		next_maintenance_date DATETIME,
		external_role_ref TEXT,
		last_reminder_days INTEGER,
		auction_start DATETIME,
		auction_end DATETIME,
		auction_starting_bid INTEGER,
		auction_current_bid INTEGER,
		auction_bidder TEXT,
		auction_active INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_entitlements_owner ON entitlements(owner_account_id);
	CREATE INDEX IF NOT EXISTS idx_entitlements_status ON entitlements(status);
	CREATE INDEX IF NOT EXISTS idx_entitlements_next_maintenance ON entitlements(next_maintenance_date);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_entitlements_live_label ON entitlements(LOWER(label)) WHERE status != 'SOLD';

	CREATE TABLE IF NOT EXISTS sharing_grants (
		id TEXT PRIMARY KEY,
		entitlement_id TEXT NOT NULL,
		owner_account_id TEXT NOT NULL,
		grantee_account_id TEXT NOT NULL,
		status TEXT NOT NULL,
		granted_date DATETIME NOT NULL,
		revoked_date DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_grants_entitlement ON sharing_grants(entitlement_id, status);
	CREATE INDEX IF NOT EXISTS idx_grants_grantee ON sharing_grants(grantee_account_id, status);

	CREATE TABLE IF NOT EXISTS balances (
		account_id TEXT PRIMARY KEY,
		balance INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS shop_config (
		kind TEXT PRIMARY KEY,
		price INTEGER NOT NULL,
		maintenance_cost INTEGER NOT NULL,
		maintenance_interval_days INTEGER NOT NULL,
		max_sharing_slots INTEGER NOT NULL,
		max_auction_days INTEGER NOT NULL,
		slot_refund_rate REAL NOT NULL,
		is_enabled INTEGER NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`
	if _, err := db.Exec(query); err != nil {
		return err
	}
	return seedShopConfig(db)
}

// seedShopConfig inserts the default config row if the table is empty.
func seedShopConfig(db *sql.DB) error {
	cfg := model.DefaultShopConfig()
	_, err := db.Exec(`
		INSERT INTO shop_config (kind, price, maintenance_cost, maintenance_interval_days,
			max_sharing_slots, max_auction_days, slot_refund_rate, is_enabled, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(kind) DO NOTHING`,
		cfg.Kind, cfg.Price, cfg.MaintenanceCost, cfg.MaintenanceIntervalDays,
		cfg.MaxSharingSlots, cfg.MaxAuctionDays, cfg.SlotRefundRate, boolToInt(cfg.IsEnabled), time.Now().UTC())
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// entitlementColumns is the canonical select list for scanEntitlement.
const entitlementColumns = `id, owner_account_id, kind, status, label, color,
	purchase_price, maintenance_cost, purchase_date, last_maintenance_date,
	next_maintenance_date, external_role_ref, last_reminder_days,
	auction_start, auction_end, auction_starting_bid, auction_current_bid,
	auction_bidder, auction_active, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntitlement(row rowScanner) (*model.Entitlement, error) {
	var e model.Entitlement
	var nextMaint, auctionStart, auctionEnd sql.NullTime
	var roleRef, bidder sql.NullString
	var lastReminder, startingBid, currentBid sql.NullInt64
	var auctionActive int

	err := row.Scan(
		&e.ID, &e.OwnerAccountID, &e.Kind, &e.Status, &e.Label, &e.Color,
		&e.PurchasePrice, &e.MaintenanceCost, &e.PurchaseDate, &e.LastMaintenanceDate,
		&nextMaint, &roleRef, &lastReminder,
		&auctionStart, &auctionEnd, &startingBid, &currentBid,
		&bidder, &auctionActive, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if nextMaint.Valid {
		t := nextMaint.Time
		e.NextMaintenanceDate = &t
	}
	if roleRef.Valid {
		e.ExternalRoleRef = roleRef.String
	}
	if lastReminder.Valid {
		d := int(lastReminder.Int64)
		e.LastReminderDays = &d
	}
	if auctionStart.Valid && auctionEnd.Valid {
		e.Auction = &model.Auction{
			StartTime:   auctionStart.Time,
			EndTime:     auctionEnd.Time,
			StartingBid: startingBid.Int64,
			CurrentBid:  currentBid.Int64,
			IsActive:    auctionActive == 1,
		}
		if bidder.Valid {
			e.Auction.CurrentBidderID = bidder.String
		}
	}
	return &e, nil
}

// getEntitlementTx loads an entitlement inside a transaction so the state
// a decision is based on is the state the writes see.
func getEntitlementTx(ctx context.Context, tx *sql.Tx, id string) (*model.Entitlement, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+entitlementColumns+` FROM entitlements WHERE id = ?`, id)
	e, err := scanEntitlement(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load entitlement: %w", err)
	}
	return e, nil
}

// balanceTx reads an account balance inside a transaction. Missing
// accounts read as zero.
func balanceTx(ctx context.Context, tx *sql.Tx, accountID string) (int64, error) {
	var balance int64
	err := tx.QueryRowContext(ctx, `SELECT balance FROM balances WHERE account_id = ?`, accountID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}
	return balance, nil
}

// debitTx fails closed with InsufficientFundsError when the balance does
// not cover the amount.
func debitTx(ctx context.Context, tx *sql.Tx, accountID string, amount int64) error {
	balance, err := balanceTx(ctx, tx, accountID)
	if err != nil {
		return err
	}
	if balance < amount {
		return &InsufficientFundsError{Balance: balance, Required: amount}
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE balances SET balance = balance - ?, updated_at = ? WHERE account_id = ?`,
		amount, time.Now().UTC(), accountID)
	if err != nil {
		return fmt.Errorf("failed to debit account: %w", err)
	}
	return nil
}

func creditTx(ctx context.Context, tx *sql.Tx, accountID string, amount int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO balances (account_id, balance, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
			balance = balance + excluded.balance,
			updated_at = excluded.updated_at`,
		accountID, amount, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to credit account: %w", err)
	}
	return nil
}

// endGrantsTx marks every ACTIVE grant of an entitlement with the given
// end status and returns the grantee account ids that lost access.
func endGrantsTx(ctx context.Context, tx *sql.Tx, entitlementID, endStatus string) ([]string, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT grantee_account_id FROM sharing_grants WHERE entitlement_id = ? AND status = ?`,
		entitlementID, model.GrantActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list active grants: %w", err)
	}
	var grantees []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			rows.Close()
			return nil, err
		}
		grantees = append(grantees, g)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(grantees) > 0 {
		_, err = tx.ExecContext(ctx,
			`UPDATE sharing_grants SET status = ?, revoked_date = ? WHERE entitlement_id = ? AND status = ?`,
			endStatus, time.Now().UTC(), entitlementID, model.GrantActive)
		if err != nil {
			return nil, fmt.Errorf("failed to end grants: %w", err)
		}
	}
	return grantees, nil
}

// PurchaseEntitlement debits the price and creates the entitlement in one
// transaction. Label uniqueness is re-checked here so two racing purchases
// cannot both claim the same label.
func (r *SQLiteShopRepository) PurchaseEntitlement(ctx context.Context, p PurchaseParams) (*model.Entitlement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var taken int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entitlements WHERE LOWER(label) = LOWER(?) AND status != ?`,
		p.Label, model.StatusSold).Scan(&taken)
	if err != nil {
		return nil, fmt.Errorf("failed to check label: %w", err)
	}
	if taken > 0 {
		return nil, ErrLabelTaken
	}

	if err := debitTx(ctx, tx, p.AccountID, p.Price); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	next := now.AddDate(0, 0, p.IntervalDays)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO entitlements (id, owner_account_id, kind, status, label, color,
			purchase_price, maintenance_cost, purchase_date, last_maintenance_date,
			next_maintenance_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.AccountID, p.Kind, model.StatusActive, p.Label, p.Color,
		p.Price, p.MaintenanceCost, now, now, next, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert entitlement: %w", err)
	}

	ent, err := getEntitlementTx(ctx, tx, p.ID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit purchase: %w", err)
	}
	return ent, nil
}

// PayMaintenance debits the fee, reactivates the entitlement, and advances
// the next maintenance date. Valid from ACTIVE and SUSPENDED.
func (r *SQLiteShopRepository) PayMaintenance(ctx context.Context, accountID, entitlementID string, cost int64, intervalDays int) (*model.Entitlement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ent, err := getEntitlementTx(ctx, tx, entitlementID)
	if err != nil {
		return nil, err
	}
	if ent.OwnerAccountID != accountID {
		return nil, ErrNotOwner
	}
	if ent.Status != model.StatusActive && ent.Status != model.StatusSuspended {
		return nil, ErrWrongStatus
	}

	if err := debitTx(ctx, tx, accountID, cost); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	next := now.AddDate(0, 0, intervalDays)
	_, err = tx.ExecContext(ctx, `
		UPDATE entitlements SET status = ?, last_maintenance_date = ?,
			next_maintenance_date = ?, last_reminder_days = NULL, updated_at = ?
		WHERE id = ?`,
		model.StatusActive, now, next, now, entitlementID)
	if err != nil {
		return nil, fmt.Errorf("failed to update maintenance: %w", err)
	}

	ent, err = getEntitlementTx(ctx, tx, entitlementID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit maintenance payment: %w", err)
	}
	return ent, nil
}

// SellSlot liquidates an ACTIVE entitlement for a partial refund. The
// refund is floor(purchasePrice * refundRate); SOLD is terminal.
func (r *SQLiteShopRepository) SellSlot(ctx context.Context, accountID, entitlementID string, refundRate float64) (*model.Entitlement, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ent, err := getEntitlementTx(ctx, tx, entitlementID)
	if err != nil {
		return nil, 0, err
	}
	if ent.OwnerAccountID != accountID {
		return nil, 0, ErrNotOwner
	}
	if ent.Status != model.StatusActive {
		return nil, 0, ErrWrongStatus
	}

	refund := int64(math.Floor(float64(ent.PurchasePrice) * refundRate))
	if err := creditTx(ctx, tx, accountID, refund); err != nil {
		return nil, 0, err
	}
	if _, err := endGrantsTx(ctx, tx, entitlementID, model.GrantRevoked); err != nil {
		return nil, 0, err
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		UPDATE entitlements SET status = ?, next_maintenance_date = NULL,
			last_reminder_days = NULL, updated_at = ?
		WHERE id = ?`,
		model.StatusSold, now, entitlementID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to mark entitlement sold: %w", err)
	}

	ent, err = getEntitlementTx(ctx, tx, entitlementID)
	if err != nil {
		return nil, 0, err
	}
	if err := tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("failed to commit sale: %w", err)
	}
	return ent, refund, nil
}

// Suspend marks an ACTIVE entitlement SUSPENDED and expires its grants.
// Idempotent: any other status is a no-op reported via Changed=false.
func (r *SQLiteShopRepository) Suspend(ctx context.Context, entitlementID string) (*SuspendResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ent, err := getEntitlementTx(ctx, tx, entitlementID)
	if err != nil {
		return nil, err
	}
	if ent.Status != model.StatusActive {
		return &SuspendResult{Entitlement: ent, Changed: false}, nil
	}

	grantees, err := endGrantsTx(ctx, tx, entitlementID, model.GrantExpired)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`UPDATE entitlements SET status = ?, updated_at = ? WHERE id = ?`,
		model.StatusSuspended, now, entitlementID)
	if err != nil {
		return nil, fmt.Errorf("failed to suspend entitlement: %w", err)
	}

	ent, err = getEntitlementTx(ctx, tx, entitlementID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit suspension: %w", err)
	}
	return &SuspendResult{Entitlement: ent, ExpiredGrantees: grantees, Changed: true}, nil
}

// GetEntitlement retrieves a single entitlement by id.
func (r *SQLiteShopRepository) GetEntitlement(ctx context.Context, id string) (*model.Entitlement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	row := r.db.QueryRowContext(ctx, `SELECT `+entitlementColumns+` FROM entitlements WHERE id = ?`, id)
	e, err := scanEntitlement(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entitlement: %w", err)
	}
	return e, nil
}

func (r *SQLiteShopRepository) queryEntitlements(ctx context.Context, where string, args ...interface{}) ([]model.Entitlement, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+entitlementColumns+` FROM entitlements `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entitlements: %w", err)
	}
	defer rows.Close()

	ents := []model.Entitlement{}
	for rows.Next() {
		e, err := scanEntitlement(rows)
		if err != nil {
			return nil, err
		}
		ents = append(ents, *e)
	}
	return ents, rows.Err()
}

// ListByOwner returns all non-terminal entitlements owned by an account.
func (r *SQLiteShopRepository) ListByOwner(ctx context.Context, accountID string) ([]model.Entitlement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.queryEntitlements(ctx,
		`WHERE owner_account_id = ? AND status != ? ORDER BY created_at`, accountID, model.StatusSold)
}

// ListByStatus returns all entitlements in the given state.
func (r *SQLiteShopRepository) ListByStatus(ctx context.Context, status string) ([]model.Entitlement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.queryEntitlements(ctx, `WHERE status = ? ORDER BY created_at`, status)
}

// ListMaintenanceDue returns ACTIVE entitlements whose maintenance payment
// is overdue at the given instant.
func (r *SQLiteShopRepository) ListMaintenanceDue(ctx context.Context, now time.Time) ([]model.Entitlement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.queryEntitlements(ctx,
		`WHERE status = ? AND next_maintenance_date IS NOT NULL AND next_maintenance_date < ? ORDER BY next_maintenance_date`,
		model.StatusActive, now.UTC())
}

// ListSharedWith returns the entitlements an account benefits from through
// an ACTIVE sharing grant.
func (r *SQLiteShopRepository) ListSharedWith(ctx context.Context, accountID string) ([]model.Entitlement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.queryEntitlements(ctx, `
		WHERE id IN (SELECT entitlement_id FROM sharing_grants WHERE grantee_account_id = ? AND status = ?)
		ORDER BY created_at`, accountID, model.GrantActive)
}

// CreateGrant adds a sharing grant, enforcing the per-entitlement slot
// limit and the one-active-grant-per-grantee rule inside the transaction.
func (r *SQLiteShopRepository) CreateGrant(ctx context.Context, entitlementID, ownerID, granteeID string, maxSlots int) (*model.SharingGrant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ent, err := getEntitlementTx(ctx, tx, entitlementID)
	if err != nil {
		return nil, err
	}
	if ent.OwnerAccountID != ownerID {
		return nil, ErrNotOwner
	}
	if ent.Status != model.StatusActive {
		return nil, ErrWrongStatus
	}

	var existing, active int
	err = tx.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE grantee_account_id = ?),
			COUNT(*)
		FROM sharing_grants WHERE entitlement_id = ? AND status = ?`,
		granteeID, entitlementID, model.GrantActive).Scan(&existing, &active)
	if err != nil {
		return nil, fmt.Errorf("failed to count grants: %w", err)
	}
	if existing > 0 {
		return nil, ErrGrantExists
	}
	if active >= maxSlots {
		return nil, ErrGrantLimit
	}

	grant := &model.SharingGrant{
		ID:               uid.New(),
		EntitlementID:    entitlementID,
		OwnerAccountID:   ownerID,
		GranteeAccountID: granteeID,
		Status:           model.GrantActive,
		GrantedDate:      time.Now().UTC(),
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sharing_grants (id, entitlement_id, owner_account_id, grantee_account_id, status, granted_date)
		VALUES (?, ?, ?, ?, ?, ?)`,
		grant.ID, grant.EntitlementID, grant.OwnerAccountID, grant.GranteeAccountID, grant.Status, grant.GrantedDate)
	if err != nil {
		return nil, fmt.Errorf("failed to insert grant: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit grant: %w", err)
	}
	return grant, nil
}

// RevokeGrant marks the matching ACTIVE grant REVOKED.
func (r *SQLiteShopRepository) RevokeGrant(ctx context.Context, entitlementID, ownerID, granteeID string) (*model.SharingGrant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ent, err := getEntitlementTx(ctx, tx, entitlementID)
	if err != nil {
		return nil, err
	}
	if ent.OwnerAccountID != ownerID {
		return nil, ErrNotOwner
	}

	var grant model.SharingGrant
	err = tx.QueryRowContext(ctx, `
		SELECT id, entitlement_id, owner_account_id, grantee_account_id, status, granted_date
		FROM sharing_grants WHERE entitlement_id = ? AND grantee_account_id = ? AND status = ?`,
		entitlementID, granteeID, model.GrantActive).Scan(
		&grant.ID, &grant.EntitlementID, &grant.OwnerAccountID,
		&grant.GranteeAccountID, &grant.Status, &grant.GrantedDate)
	if err == sql.ErrNoRows {
		return nil, ErrNoActiveGrant
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find grant: %w", err)
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`UPDATE sharing_grants SET status = ?, revoked_date = ? WHERE id = ?`,
		model.GrantRevoked, now, grant.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to revoke grant: %w", err)
	}
	grant.Status = model.GrantRevoked
	grant.RevokedDate = &now

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit revoke: %w", err)
	}
	return &grant, nil
}

// ActiveGrants lists the ACTIVE grants of an entitlement.
func (r *SQLiteShopRepository) ActiveGrants(ctx context.Context, entitlementID string) ([]model.SharingGrant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, entitlement_id, owner_account_id, grantee_account_id, status, granted_date, revoked_date
		FROM sharing_grants WHERE entitlement_id = ? AND status = ? ORDER BY granted_date`,
		entitlementID, model.GrantActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	defer rows.Close()

	grants := []model.SharingGrant{}
	for rows.Next() {
		var g model.SharingGrant
		var revoked sql.NullTime
		if err := rows.Scan(&g.ID, &g.EntitlementID, &g.OwnerAccountID,
			&g.GranteeAccountID, &g.Status, &g.GrantedDate, &revoked); err != nil {
			return nil, err
		}
		if revoked.Valid {
			t := revoked.Time
			g.RevokedDate = &t
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

// StartAuction transitions an ACTIVE entitlement to TRANSFERRING with a
// fresh embedded auction.
func (r *SQLiteShopRepository) StartAuction(ctx context.Context, accountID, entitlementID string, startingBid int64, duration time.Duration) (*model.Entitlement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ent, err := getEntitlementTx(ctx, tx, entitlementID)
	if err != nil {
		return nil, err
	}
	if ent.OwnerAccountID != accountID {
		return nil, ErrNotOwner
	}
	if ent.Status != model.StatusActive {
		return nil, ErrWrongStatus
	}

	now := time.Now().UTC()
	end := now.Add(duration)
	_, err = tx.ExecContext(ctx, `
		UPDATE entitlements SET status = ?, auction_start = ?, auction_end = ?,
			auction_starting_bid = ?, auction_current_bid = ?, auction_bidder = NULL,
			auction_active = 1, updated_at = ?
		WHERE id = ?`,
		model.StatusTransferring, now, end, startingBid, startingBid, now, entitlementID)
	if err != nil {
		return nil, fmt.Errorf("failed to start auction: %w", err)
	}

	ent, err = getEntitlementTx(ctx, tx, entitlementID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit auction start: %w", err)
	}
	return ent, nil
}

// PlaceBid accepts a strictly higher bid from an account whose balance
// covers it. Funds are checked but not reserved; they move at completion.
// The current bid is re-read inside the transaction so concurrent bids
// resolve deterministically.
func (r *SQLiteShopRepository) PlaceBid(ctx context.Context, accountID, entitlementID string, amount int64) (*model.Entitlement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ent, err := getEntitlementTx(ctx, tx, entitlementID)
	if err != nil {
		return nil, err
	}
	if ent.Status != model.StatusTransferring || ent.Auction == nil || !ent.Auction.IsActive {
		return nil, ErrAuctionClosed
	}
	if time.Now().UTC().After(ent.Auction.EndTime) {
		return nil, ErrAuctionClosed
	}
	if ent.OwnerAccountID == accountID {
		return nil, ErrSelfBid
	}
	if amount <= ent.Auction.CurrentBid {
		return nil, ErrBidTooLow
	}

	balance, err := balanceTx(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}
	if balance < amount {
		return nil, &InsufficientFundsError{Balance: balance, Required: amount}
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		UPDATE entitlements SET auction_current_bid = ?, auction_bidder = ?, updated_at = ?
		WHERE id = ?`,
		amount, accountID, now, entitlementID)
	if err != nil {
		return nil, fmt.Errorf("failed to record bid: %w", err)
	}

	ent, err = getEntitlementTx(ctx, tx, entitlementID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit bid: %w", err)
	}
	return ent, nil
}

// CompleteAuction closes an auction all-or-nothing. With a standing bidder
// who can still pay: debit winner, credit seller, expire grants, move
// ownership. Otherwise the entitlement returns to ACTIVE under the
// original owner and the auction is discarded. No partial transfer ever
// commits.
func (r *SQLiteShopRepository) CompleteAuction(ctx context.Context, entitlementID string) (*AuctionOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ent, err := getEntitlementTx(ctx, tx, entitlementID)
	if err != nil {
		return nil, err
	}
	if ent.Status != model.StatusTransferring || ent.Auction == nil || !ent.Auction.IsActive {
		return &AuctionOutcome{Result: AuctionNotRunning, Entitlement: ent}, nil
	}

	now := time.Now().UTC()
	seller := ent.OwnerAccountID
	outcome := &AuctionOutcome{Seller: seller}

	clearAuction := func(newOwner string) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE entitlements SET status = ?, owner_account_id = ?,
				auction_start = NULL, auction_end = NULL, auction_starting_bid = NULL,
				auction_current_bid = NULL, auction_bidder = NULL, auction_active = 0,
				updated_at = ?
			WHERE id = ?`,
			model.StatusActive, newOwner, now, entitlementID)
		return err
	}

	if !ent.Auction.HasBidder() {
		if err := clearAuction(seller); err != nil {
			return nil, fmt.Errorf("failed to discard auction: %w", err)
		}
		outcome.Result = AuctionNoBids
	} else {
		winner := ent.Auction.CurrentBidderID
		amount := ent.Auction.CurrentBid

		balance, err := balanceTx(ctx, tx, winner)
		if err != nil {
			return nil, err
		}
		if balance < amount {
			// No retry against a lower bidder; the slot goes back to
			// the original owner.
			if err := clearAuction(seller); err != nil {
				return nil, fmt.Errorf("failed to revert auction: %w", err)
			}
			outcome.Result = AuctionWinnerBroke
			outcome.Winner = winner
			outcome.Amount = amount
		} else {
			if err := debitTx(ctx, tx, winner, amount); err != nil {
				return nil, err
			}
			if err := creditTx(ctx, tx, seller, amount); err != nil {
				return nil, err
			}
			grantees, err := endGrantsTx(ctx, tx, entitlementID, model.GrantExpired)
			if err != nil {
				return nil, err
			}
			if err := clearAuction(winner); err != nil {
				return nil, fmt.Errorf("failed to transfer ownership: %w", err)
			}
			outcome.Result = AuctionTransferred
			outcome.Winner = winner
			outcome.Amount = amount
			outcome.ExpiredGrantees = grantees
		}
	}

	outcome.Entitlement, err = getEntitlementTx(ctx, tx, entitlementID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit auction completion: %w", err)
	}
	return outcome, nil
}

// ListActiveAuctions returns entitlements with a running auction.
func (r *SQLiteShopRepository) ListActiveAuctions(ctx context.Context) ([]model.Entitlement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.queryEntitlements(ctx,
		`WHERE status = ? AND auction_active = 1 ORDER BY auction_end`, model.StatusTransferring)
}

// ListExpiredAuctions returns running auctions whose end time has passed.
func (r *SQLiteShopRepository) ListExpiredAuctions(ctx context.Context, now time.Time) ([]model.Entitlement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.queryEntitlements(ctx,
		`WHERE status = ? AND auction_active = 1 AND auction_end < ? ORDER BY auction_end`,
		model.StatusTransferring, now.UTC())
}

// SetExternalRoleRef records the external privilege object created during
// reconciliation. An empty roleRef clears the reference.
func (r *SQLiteShopRepository) SetExternalRoleRef(ctx context.Context, entitlementID, roleRef string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ref := sql.NullString{String: roleRef, Valid: roleRef != ""}
	res, err := r.db.ExecContext(ctx,
		`UPDATE entitlements SET external_role_ref = ?, updated_at = ? WHERE id = ?`,
		ref, time.Now().UTC(), entitlementID)
	if err != nil {
		return fmt.Errorf("failed to set role ref: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetLastReminder persists the reminder threshold already sent for the
// current maintenance period, so a coarse or drifting tick cannot refire.
func (r *SQLiteShopRepository) SetLastReminder(ctx context.Context, entitlementID string, days int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.ExecContext(ctx,
		`UPDATE entitlements SET last_reminder_days = ?, updated_at = ? WHERE id = ?`,
		days, time.Now().UTC(), entitlementID)
	if err != nil {
		return fmt.Errorf("failed to set reminder marker: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Balance returns an account's balance; unknown accounts read as zero.
func (r *SQLiteShopRepository) Balance(ctx context.Context, accountID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var balance int64
	err := r.db.QueryRowContext(ctx,
		`SELECT balance FROM balances WHERE account_id = ?`, accountID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}
	return balance, nil
}

// Credit adds currency to an account and returns the new balance.
func (r *SQLiteShopRepository) Credit(ctx context.Context, accountID string, amount int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := creditTx(ctx, tx, accountID, amount); err != nil {
		return 0, err
	}
	balance, err := balanceTx(ctx, tx, accountID)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit credit: %w", err)
	}
	return balance, nil
}

// GetConfig returns the shop configuration for a kind.
func (r *SQLiteShopRepository) GetConfig(ctx context.Context, kind string) (*model.ShopConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var cfg model.ShopConfig
	var enabled int
	err := r.db.QueryRowContext(ctx, `
		SELECT kind, price, maintenance_cost, maintenance_interval_days,
			max_sharing_slots, max_auction_days, slot_refund_rate, is_enabled, updated_at
		FROM shop_config WHERE kind = ?`, kind).Scan(
		&cfg.Kind, &cfg.Price, &cfg.MaintenanceCost, &cfg.MaintenanceIntervalDays,
		&cfg.MaxSharingSlots, &cfg.MaxAuctionDays, &cfg.SlotRefundRate, &enabled, &cfg.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrConfigNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get config: %w", err)
	}
	cfg.IsEnabled = enabled == 1
	return &cfg, nil
}

// UpdateConfig upserts the configuration row for a kind.
func (r *SQLiteShopRepository) UpdateConfig(ctx context.Context, cfg *model.ShopConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO shop_config (kind, price, maintenance_cost, maintenance_interval_days,
			max_sharing_slots, max_auction_days, slot_refund_rate, is_enabled, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(kind) DO UPDATE SET
			price = excluded.price,
			maintenance_cost = excluded.maintenance_cost,
			maintenance_interval_days = excluded.maintenance_interval_days,
			max_sharing_slots = excluded.max_sharing_slots,
			max_auction_days = excluded.max_auction_days,
			slot_refund_rate = excluded.slot_refund_rate,
			is_enabled = excluded.is_enabled,
			updated_at = excluded.updated_at`,
		cfg.Kind, cfg.Price, cfg.MaintenanceCost, cfg.MaintenanceIntervalDays,
		cfg.MaxSharingSlots, cfg.MaxAuctionDays, cfg.SlotRefundRate,
		boolToInt(cfg.IsEnabled), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update config: %w", err)
	}
	return nil
}

// GetStats returns aggregate counts about the shop database.
func (r *SQLiteShopRepository) GetStats(ctx context.Context) (map[string]interface{}, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make(map[string]interface{})

	byStatus := make(map[string]int64)
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM entitlements GROUP BY status`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return nil, err
		}
		byStatus[status] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	stats["entitlements_by_status"] = byStatus

	var activeAuctions int64
	r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entitlements WHERE status = ? AND auction_active = 1`,
		model.StatusTransferring).Scan(&activeAuctions)
	stats["active_auctions"] = activeAuctions

	var activeGrants int64
	r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sharing_grants WHERE status = ?`, model.GrantActive).Scan(&activeGrants)
	stats["active_grants"] = activeGrants

	var accounts, totalCurrency int64
	r.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(balance), 0) FROM balances`).Scan(&accounts, &totalCurrency)
	stats["accounts"] = accounts
	stats["total_currency"] = totalCurrency

	// Database file size (approximate from page count)
	var pageCount, pageSize int64
	r.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
	r.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
	stats["db_size_bytes"] = pageCount * pageSize

	return stats, nil
}

// Ping reports storage reachability.
func (r *SQLiteShopRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLiteShopRepository) Close() error {
	return r.db.Close()
}

// Ensure SQLiteShopRepository implements ShopRepository
var _ ShopRepository = (*SQLiteShopRepository)(nil)
