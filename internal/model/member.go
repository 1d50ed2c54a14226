package model

// MemberIdentity maps an internal account to its external chat identity.
// Resolved from the members database when addressing role-sync calls.
type MemberIdentity struct {
	AccountID      string
	ExternalUserID string
	Username       string
	IsActive       bool
}
