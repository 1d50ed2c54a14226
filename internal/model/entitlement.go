package model

import "time"

// KindCustomRole is currently the only purchasable entitlement kind.
const KindCustomRole = "custom_role"

// Entitlement statuses. SOLD is terminal; everything else can be reached
// again through maintenance payments, auctions, or the scheduler.
const (
	StatusActive       = "ACTIVE"
	StatusSuspended    = "SUSPENDED"
	StatusTransferring = "TRANSFERRING"
	StatusSold         = "SOLD"
)

// Entitlement is one purchased custom-role slot. The label is the visible
// role name and must be unique among non-terminal entitlements.
type Entitlement struct {
	ID                  string     `json:"id"`
	OwnerAccountID      string     `json:"owner_account_id"`
	Kind                string     `json:"kind"`
	Status              string     `json:"status"`
	Label               string     `json:"label"`
	Color               string     `json:"color,omitempty"`
	PurchasePrice       int64      `json:"purchase_price"`
	MaintenanceCost     int64      `json:"maintenance_cost"`
	PurchaseDate        time.Time  `json:"purchase_date"`
	LastMaintenanceDate time.Time  `json:"last_maintenance_date"`
	NextMaintenanceDate *time.Time `json:"next_maintenance_date,omitempty"`
	ExternalRoleRef     string     `json:"external_role_ref,omitempty"`
	LastReminderDays    *int       `json:"last_reminder_days,omitempty"`
	Auction             *Auction   `json:"auction,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// IsTerminal reports whether the entitlement can never change state again.
func (e *Entitlement) IsTerminal() bool {
	return e.Status == StatusSold
}

// Auction is the sub-record embedded in an entitlement while it is
// TRANSFERRING. CurrentBid never decreases and CurrentBidderID is empty
// until the first accepted bid.
type Auction struct {
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	StartingBid     int64     `json:"starting_bid"`
	CurrentBid      int64     `json:"current_bid"`
	CurrentBidderID string    `json:"current_bidder_id,omitempty"`
	IsActive        bool      `json:"is_active"`
}

// HasBidder reports whether anyone has placed an accepted bid yet.
func (a *Auction) HasBidder() bool {
	return a.CurrentBidderID != ""
}
