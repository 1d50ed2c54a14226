package model

import "time"

// ShopConfig is the per-kind shop configuration. One row per entitlement
// kind, mutated only through the admin surface and read by every shop
// operation. Reads may be a few seconds stale (served through the cache).
type ShopConfig struct {
	Kind                    string    `json:"kind"`
	Price                   int64     `json:"price"`
	MaintenanceCost         int64     `json:"maintenance_cost"`
	MaintenanceIntervalDays int       `json:"maintenance_interval_days"`
	MaxSharingSlots         int       `json:"max_sharing_slots"`
	MaxAuctionDays          int       `json:"max_auction_days"`
	SlotRefundRate          float64   `json:"slot_refund_rate"`
	IsEnabled               bool      `json:"is_enabled"`
	UpdatedAt               time.Time `json:"updated_at"`
}

// DefaultShopConfig seeds the config table on first startup.
func DefaultShopConfig() *ShopConfig {
	return &ShopConfig{
		Kind:                    KindCustomRole,
		Price:                   10000,
		MaintenanceCost:         1000,
		MaintenanceIntervalDays: 30,
		MaxSharingSlots:         3,
		MaxAuctionDays:          7,
		SlotRefundRate:          0.5,
		IsEnabled:               true,
	}
}
