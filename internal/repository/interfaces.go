package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"roleshop-api/internal/model"
)

// Validation failures surfaced by repository transactions. The services map
// these onto caller-facing error responses; anything else coming out of a
// repository is treated as a storage failure.
var (
	ErrNotFound       = errors.New("entitlement not found")
	ErrLabelTaken     = errors.New("label already in use")
	ErrNotOwner       = errors.New("entitlement is not owned by this account")
	ErrWrongStatus    = errors.New("entitlement is not in the required state")
	ErrGrantExists    = errors.New("account already holds an active grant")
	ErrGrantLimit     = errors.New("sharing slot limit reached")
	ErrNoActiveGrant  = errors.New("no active grant for this account")
	ErrAuctionClosed  = errors.New("auction is not accepting bids")
	ErrBidTooLow      = errors.New("bid must be strictly greater than the current bid")
	ErrSelfBid        = errors.New("owner cannot bid on their own auction")
	ErrConfigNotFound = errors.New("shop config not found")
)

// InsufficientFundsError carries the caller's balance so it can be shown
// in the failure message, distinguishing it from plain validation errors.
type InsufficientFundsError struct {
	Balance  int64
	Required int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: balance %d, required %d", e.Balance, e.Required)
}

// PurchaseParams carries the config values the service resolved for a
// purchase. The repository re-validates label uniqueness and balance
// inside the same transaction that performs the writes.
type PurchaseParams struct {
	ID              string
	AccountID       string
	Kind            string
	Label           string
	Color           string
	Price           int64
	MaintenanceCost int64
	IntervalDays    int
}

// SuspendResult reports what a suspension actually changed. Changed is
// false when the entitlement was already suspended (idempotent no-op).
type SuspendResult struct {
	Entitlement     *model.Entitlement
	ExpiredGrantees []string
	Changed         bool
}

// Auction completion outcomes.
const (
	AuctionTransferred = "transferred"  // winner paid, ownership moved
	AuctionNoBids      = "no_bids"      // no bidder, returned to owner
	AuctionWinnerBroke = "winner_broke" // winner could no longer afford the bid
	AuctionNotRunning  = "not_running"  // nothing to do
)

// AuctionOutcome describes the result of closing an auction.
type AuctionOutcome struct {
	Result          string
	Entitlement     *model.Entitlement
	Seller          string
	Winner          string
	Amount          int64
	ExpiredGrantees []string
}

// ShopRepository is the system of record for entitlements, sharing grants,
// account balances, and shop configuration. Every money- or
// ownership-moving method is a single commit-or-rollback transaction.
type ShopRepository interface {
	// Entitlement lifecycle.
	PurchaseEntitlement(ctx context.Context, p PurchaseParams) (*model.Entitlement, error)
	PayMaintenance(ctx context.Context, accountID, entitlementID string, cost int64, intervalDays int) (*model.Entitlement, error)
	SellSlot(ctx context.Context, accountID, entitlementID string, refundRate float64) (*model.Entitlement, int64, error)
	Suspend(ctx context.Context, entitlementID string) (*SuspendResult, error)

	// Queries.
	GetEntitlement(ctx context.Context, id string) (*model.Entitlement, error)
	ListByOwner(ctx context.Context, accountID string) ([]model.Entitlement, error)
	ListByStatus(ctx context.Context, status string) ([]model.Entitlement, error)
	ListMaintenanceDue(ctx context.Context, now time.Time) ([]model.Entitlement, error)
	ListSharedWith(ctx context.Context, accountID string) ([]model.Entitlement, error)

	// Sharing registry.
	CreateGrant(ctx context.Context, entitlementID, ownerID, granteeID string, maxSlots int) (*model.SharingGrant, error)
	RevokeGrant(ctx context.Context, entitlementID, ownerID, granteeID string) (*model.SharingGrant, error)
	ActiveGrants(ctx context.Context, entitlementID string) ([]model.SharingGrant, error)

	// Auction protocol.
	StartAuction(ctx context.Context, accountID, entitlementID string, startingBid int64, duration time.Duration) (*model.Entitlement, error)
	PlaceBid(ctx context.Context, accountID, entitlementID string, amount int64) (*model.Entitlement, error)
	CompleteAuction(ctx context.Context, entitlementID string) (*AuctionOutcome, error)
	ListActiveAuctions(ctx context.Context) ([]model.Entitlement, error)
	ListExpiredAuctions(ctx context.Context, now time.Time) ([]model.Entitlement, error)

	// Reconciliation bookkeeping.
	SetExternalRoleRef(ctx context.Context, entitlementID, roleRef string) error
	SetLastReminder(ctx context.Context, entitlementID string, days int) error

	// Ledger. Debits happen inside the lifecycle transactions above;
	// Credit exists for the admin top-up surface.
	Balance(ctx context.Context, accountID string) (int64, error)
	Credit(ctx context.Context, accountID string, amount int64) (int64, error)

	// Shop configuration.
	GetConfig(ctx context.Context, kind string) (*model.ShopConfig, error)
	UpdateConfig(ctx context.Context, cfg *model.ShopConfig) error

	// GetStats returns aggregate counts for the admin surface.
	GetStats(ctx context.Context) (map[string]interface{}, error)

	Ping(ctx context.Context) error
	Close() error
}

// HistoryRepository is the append-only audit trail. Records are never
// mutated; the only deletion path is the retention sweep.
type HistoryRepository interface {
	Append(ctx context.Context, rec *model.HistoryRecord) error
	ListByAccount(ctx context.Context, accountID string, limit int) ([]model.HistoryRecord, error)
	ListByEntitlement(ctx context.Context, entitlementID string, limit int) ([]model.HistoryRecord, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}

// MemberRepository resolves internal accounts to external chat identities.
type MemberRepository interface {
	Resolve(ctx context.Context, accountID string) (*model.MemberIdentity, error)
	Ping(ctx context.Context) error
}
