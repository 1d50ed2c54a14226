package model

import "time"

// History action types. The set mirrors every state-changing operation in
// the shop so support staff can reconstruct what happened to a role.
const (
	ActionPurchase          = "purchase"
	ActionMaintenancePaid   = "maintenance_paid"
	ActionMaintenanceMissed = "maintenance_missed"
	ActionTransferStarted   = "transfer_started"
	ActionTransferCompleted = "transfer_completed"
	ActionTransferCancelled = "transfer_cancelled"
	ActionAuctionStarted    = "auction_started"
	ActionAuctionBid        = "auction_bid"
	ActionAuctionCompleted  = "auction_completed"
	ActionAuctionCancelled  = "auction_cancelled"
	ActionSlotSold          = "slot_sold"
	ActionShared            = "shared"
	ActionUnshared          = "unshared"
	ActionSuspended         = "suspended"
	ActionReactivated       = "reactivated"
	ActionCreated           = "created"
	ActionDeleted           = "deleted"
)

// HistoryRecord is an immutable audit entry. EntitlementID is kept as a
// plain string (not a foreign key) so the record survives deletion of the
// entitlement it refers to.
type HistoryRecord struct {
	ID                    string    `json:"id" bson:"id"`
	EntitlementID         string    `json:"entitlement_id,omitempty" bson:"entitlement_id,omitempty"`
	ActionType            string    `json:"action_type" bson:"action_type"`
	ActorAccountID        string    `json:"actor_account_id" bson:"actor_account_id"`
	CounterpartyAccountID string    `json:"counterparty_account_id,omitempty" bson:"counterparty_account_id,omitempty"`
	Amount                *int64    `json:"amount,omitempty" bson:"amount,omitempty"`
	Details               string    `json:"details,omitempty" bson:"details,omitempty"`
	CreatedAt             time.Time `json:"created_at" bson:"created_at"`
}
