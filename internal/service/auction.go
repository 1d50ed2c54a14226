package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"roleshop-api/internal/event"
	"roleshop-api/internal/model"
	"roleshop-api/internal/repository"
	"roleshop-api/internal/rolesync"
	"roleshop-api/pkg/apierror"
)

// AuctionService runs the ownership-transfer auctions. Starting an
// auction locks the role in TRANSFERRING; completion is driven by the
// maintenance scheduler once the end time passes.
type AuctionService struct {
	repo      repository.ShopRepository
	sync      rolesync.Adapter
	publisher event.Publisher
	config    *ConfigService
	shop      *ShopService
}

// NewAuctionService creates an auction service.
// Returns nil if repo, config, or shop is nil (required dependencies).
func NewAuctionService(
	repo repository.ShopRepository,
	sync rolesync.Adapter,
	publisher event.Publisher,
	config *ConfigService,
	shop *ShopService,
) *AuctionService {
	if repo == nil || config == nil || shop == nil {
		return nil
	}
	return &AuctionService{
		repo:      repo,
		sync:      sync,
		publisher: publisher,
		config:    config,
		shop:      shop,
	}
}

func (s *AuctionService) publish(ev *event.RoleEvent) {
	if s.publisher == nil {
		return
	}
	ev.Timestamp = time.Now().Unix()
	if err := s.publisher.PublishRoleEvent(ev); err != nil {
		log.Printf("[AuctionService] Failed to publish %s event: %v", ev.EventType, err)
	}
}

// Start opens an auction on an owned ACTIVE role. Duration is given in
// whole days, capped by configuration.
func (s *AuctionService) Start(ctx context.Context, ownerID, entitlementID string, startingBid int64, durationDays int) (*model.Entitlement, error) {
	if startingBid <= 0 {
		return nil, apierror.BadRequest("Starting bid must be positive")
	}
	cfg, err := s.config.Get(ctx)
	if err != nil {
		return nil, err
	}
	if durationDays < 1 || durationDays > cfg.MaxAuctionDays {
		return nil, apierror.BadRequest(fmt.Sprintf("Auction duration must be between 1 and %d days", cfg.MaxAuctionDays))
	}

	ent, err := s.repo.StartAuction(ctx, ownerID, entitlementID, startingBid, time.Duration(durationDays)*24*time.Hour)
	if err != nil {
		return nil, mapRepoError(err)
	}

	s.shop.record(ctx, &model.HistoryRecord{
		EntitlementID:  ent.ID,
		ActionType:     model.ActionAuctionStarted,
		ActorAccountID: ownerID,
		Amount:         amountPtr(startingBid),
		Details:        fmt.Sprintf("Auction open for %d days", durationDays),
	})
	log.Printf("[AuctionService] Auction started on %q (%s), starting bid %d, %d days",
		ent.Label, ent.ID, startingBid, durationDays)
	return ent, nil
}

// Bid places a bid. The bidder's balance is checked at bid time but not
// escrowed; it is re-checked when the auction completes.
func (s *AuctionService) Bid(ctx context.Context, bidderID, entitlementID string, amount int64) (*model.Entitlement, error) {
	if amount <= 0 {
		return nil, apierror.BadRequest("Bid must be positive")
	}

	ent, err := s.repo.PlaceBid(ctx, bidderID, entitlementID, amount)
	if err != nil {
		return nil, mapRepoError(err)
	}

	s.shop.record(ctx, &model.HistoryRecord{
		EntitlementID:         ent.ID,
		ActionType:            model.ActionAuctionBid,
		ActorAccountID:        bidderID,
		CounterpartyAccountID: ent.OwnerAccountID,
		Amount:                amountPtr(amount),
	})
	return ent, nil
}

// ListActive returns every auction still accepting bids.
func (s *AuctionService) ListActive(ctx context.Context) ([]model.Entitlement, error) {
	return s.repo.ListActiveAuctions(ctx)
}

// Complete closes an ended auction and settles the outcome: transfer on a
// funded winning bid, revert to the seller otherwise. Called by the
// scheduler sweep; safe to call on an auction that already settled.
func (s *AuctionService) Complete(ctx context.Context, entitlementID string) (*repository.AuctionOutcome, error) {
	out, err := s.repo.CompleteAuction(ctx, entitlementID)
	if err != nil {
		return nil, mapRepoError(err)
	}

	switch out.Result {
	case repository.AuctionTransferred:
		s.shop.record(ctx, &model.HistoryRecord{
			EntitlementID:         out.Entitlement.ID,
			ActionType:            model.ActionTransferCompleted,
			ActorAccountID:        out.Winner,
			CounterpartyAccountID: out.Seller,
			Amount:                amountPtr(out.Amount),
			Details:               fmt.Sprintf("Won auction for %q", out.Entitlement.Label),
		})
		s.publish(&event.RoleEvent{
			EventType:      event.TypeAuctionCompleted,
			EntitlementID:  out.Entitlement.ID,
			Label:          out.Entitlement.Label,
			AccountID:      out.Winner,
			CounterpartyID: out.Seller,
			Amount:         out.Amount,
		})
		s.reassignRole(ctx, out)
		log.Printf("[AuctionService] Auction on %q settled: %s -> %s for %d",
			out.Entitlement.Label, out.Seller, out.Winner, out.Amount)

	case repository.AuctionNoBids:
		s.shop.record(ctx, &model.HistoryRecord{
			EntitlementID:  out.Entitlement.ID,
			ActionType:     model.ActionAuctionCancelled,
			ActorAccountID: out.Seller,
			Details:        "Auction ended without bids",
		})
		s.publish(&event.RoleEvent{
			EventType:     event.TypeAuctionExpired,
			EntitlementID: out.Entitlement.ID,
			Label:         out.Entitlement.Label,
			AccountID:     out.Seller,
		})

	case repository.AuctionWinnerBroke:
		s.shop.record(ctx, &model.HistoryRecord{
			EntitlementID:         out.Entitlement.ID,
			ActionType:            model.ActionTransferCancelled,
			ActorAccountID:        out.Winner,
			CounterpartyAccountID: out.Seller,
			Amount:                amountPtr(out.Amount),
			Details:               "Winning bidder could not cover the bid",
		})
		s.publish(&event.RoleEvent{
			EventType:      event.TypeAuctionExpired,
			EntitlementID:  out.Entitlement.ID,
			Label:          out.Entitlement.Label,
			AccountID:      out.Seller,
			CounterpartyID: out.Winner,
		})
	}
	return out, nil
}

// reassignRole moves the external role from the seller to the winner and
// strips assignments from grantees whose grants expired with the sale.
func (s *AuctionService) reassignRole(ctx context.Context, out *repository.AuctionOutcome) {
	if s.sync == nil || out.Entitlement.ExternalRoleRef == "" {
		return
	}
	roleRef := out.Entitlement.ExternalRoleRef

	if userID := s.shop.externalUser(ctx, out.Seller); userID != "" {
		if err := s.sync.Revoke(ctx, roleRef, userID); err != nil {
			log.Printf("[AuctionService] Failed to revoke role %s from seller: %v", roleRef, err)
		}
	}
	for _, grantee := range out.ExpiredGrantees {
		if userID := s.shop.externalUser(ctx, grantee); userID != "" {
			if err := s.sync.Revoke(ctx, roleRef, userID); err != nil {
				log.Printf("[AuctionService] Failed to revoke role %s from grantee %s: %v", roleRef, grantee, err)
			}
		}
	}
	if userID := s.shop.externalUser(ctx, out.Winner); userID != "" {
		if err := s.sync.Grant(ctx, roleRef, userID); err != nil {
			log.Printf("[AuctionService] Failed to assign role %s to winner: %v", roleRef, err)
		}
	}
}
