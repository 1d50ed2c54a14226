package service

import (
	"context"
	"fmt"
	"log"

	"roleshop-api/internal/model"
	"roleshop-api/internal/repository"
	"roleshop-api/internal/rolesync"
	"roleshop-api/pkg/apierror"
)

// SharingService manages who, besides the owner, benefits from a role.
type SharingService struct {
	repo    repository.ShopRepository
	history repository.HistoryRepository
	members repository.MemberRepository
	sync    rolesync.Adapter
	config  *ConfigService
	shop    *ShopService
}

// NewSharingService creates a sharing service.
// Returns nil if repo, config, or shop is nil (required dependencies).
func NewSharingService(
	repo repository.ShopRepository,
	members repository.MemberRepository,
	sync rolesync.Adapter,
	config *ConfigService,
	shop *ShopService,
) *SharingService {
	if repo == nil || config == nil || shop == nil {
		return nil
	}
	return &SharingService{
		repo:    repo,
		members: members,
		sync:    sync,
		config:  config,
		shop:    shop,
	}
}

// Share grants another account access to an owned ACTIVE role, bounded
// by the configured slot limit.
func (s *SharingService) Share(ctx context.Context, ownerID, entitlementID, granteeID string) (*model.SharingGrant, error) {
	if granteeID == "" {
		return nil, apierror.BadRequest("Grantee account is required")
	}
	if granteeID == ownerID {
		return nil, apierror.BadRequest("You cannot share a role with yourself")
	}
	if s.members != nil {
		m, err := s.members.Resolve(ctx, granteeID)
		if err != nil || m == nil {
			return nil, apierror.NotFound("Grantee account not found")
		}
	}

	cfg, err := s.config.Get(ctx)
	if err != nil {
		return nil, err
	}

	grant, err := s.repo.CreateGrant(ctx, entitlementID, ownerID, granteeID, cfg.MaxSharingSlots)
	if err != nil {
		return nil, mapRepoError(err)
	}

	s.shop.record(ctx, &model.HistoryRecord{
		EntitlementID:         entitlementID,
		ActionType:            model.ActionShared,
		ActorAccountID:        ownerID,
		CounterpartyAccountID: granteeID,
	})

	// Assign the external role eagerly; reconciliation converges if
	// the platform call fails here.
	ent, err := s.repo.GetEntitlement(ctx, entitlementID)
	if err == nil && s.sync != nil && ent.ExternalRoleRef != "" {
		if userID := s.shop.externalUser(ctx, granteeID); userID != "" {
			if err := s.sync.Grant(ctx, ent.ExternalRoleRef, userID); err != nil {
				log.Printf("[SharingService] Failed to assign role %s to grantee %s: %v",
					ent.ExternalRoleRef, granteeID, err)
			}
		}
	}

	log.Printf("[SharingService] %s shared role %s with %s", ownerID, entitlementID, granteeID)
	return grant, nil
}

// Unshare revokes an active grant.
func (s *SharingService) Unshare(ctx context.Context, ownerID, entitlementID, granteeID string) (*model.SharingGrant, error) {
	grant, err := s.repo.RevokeGrant(ctx, entitlementID, ownerID, granteeID)
	if err != nil {
		return nil, mapRepoError(err)
	}

	s.shop.record(ctx, &model.HistoryRecord{
		EntitlementID:         entitlementID,
		ActionType:            model.ActionUnshared,
		ActorAccountID:        ownerID,
		CounterpartyAccountID: granteeID,
	})

	ent, err := s.repo.GetEntitlement(ctx, entitlementID)
	if err == nil && s.sync != nil && ent.ExternalRoleRef != "" {
		if userID := s.shop.externalUser(ctx, granteeID); userID != "" {
			if err := s.sync.Revoke(ctx, ent.ExternalRoleRef, userID); err != nil {
				log.Printf("[SharingService] Failed to revoke role %s from %s: %v",
					ent.ExternalRoleRef, granteeID, err)
			}
		}
	}
	return grant, nil
}

// ListSharedWith returns the roles an account benefits from but does not own.
func (s *SharingService) ListSharedWith(ctx context.Context, accountID string) ([]model.Entitlement, error) {
	return s.repo.ListSharedWith(ctx, accountID)
}

// ActiveGrants returns the active grants on an entitlement, owner view.
func (s *SharingService) ActiveGrants(ctx context.Context, ownerID, entitlementID string) ([]model.SharingGrant, error) {
	ent, err := s.repo.GetEntitlement(ctx, entitlementID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if ent.OwnerAccountID != ownerID {
		return nil, mapRepoError(fmt.Errorf("list grants: %w", repository.ErrNotOwner))
	}
	return s.repo.ActiveGrants(ctx, entitlementID)
}
