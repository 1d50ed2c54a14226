package model

import "time"

// Sharing grant statuses. EXPIRED is used when the scheduler revokes a
// grant (maintenance lapse, ownership transfer); REVOKED when the owner
// removes it explicitly.
const (
	GrantActive  = "ACTIVE"
	GrantRevoked = "REVOKED"
	GrantExpired = "EXPIRED"
)

// SharingGrant lets a non-owner account benefit from an entitlement.
// At most one ACTIVE grant exists per (entitlement, grantee) pair.
type SharingGrant struct {
	ID               string     `json:"id"`
	EntitlementID    string     `json:"entitlement_id"`
	OwnerAccountID   string     `json:"owner_account_id"`
	GranteeAccountID string     `json:"grantee_account_id"`
	Status           string     `json:"status"`
	GrantedDate      time.Time  `json:"granted_date"`
	RevokedDate      *time.Time `json:"revoked_date,omitempty"`
}
