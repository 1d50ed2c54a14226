package service

import (
	"errors"

	"roleshop-api/internal/repository"
	"roleshop-api/pkg/apierror"
)

// mapRepoError translates repository validation failures into API errors.
// Anything not in the known set is passed through unchanged and ends up
// as a 500 at the handler layer.
func mapRepoError(err error) error {
	if err == nil {
		return nil
	}

	var funds *repository.InsufficientFundsError
	if errors.As(err, &funds) {
		return apierror.InsufficientFunds(funds.Balance, funds.Required)
	}

	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apierror.NotFound("Entitlement not found")
	case errors.Is(err, repository.ErrLabelTaken):
		return apierror.Conflict("That role name is already taken")
	case errors.Is(err, repository.ErrNotOwner):
		return apierror.Forbidden("You do not own this role")
	case errors.Is(err, repository.ErrWrongStatus):
		return apierror.Conflict("Role is not in a state that allows this operation")
	case errors.Is(err, repository.ErrGrantExists):
		return apierror.Conflict("This account already has access to the role")
	case errors.Is(err, repository.ErrGrantLimit):
		return apierror.Conflict("All sharing slots for this role are in use")
	case errors.Is(err, repository.ErrNoActiveGrant):
		return apierror.NotFound("No active share for this account")
	case errors.Is(err, repository.ErrAuctionClosed):
		return apierror.Conflict("Auction is not accepting bids")
	case errors.Is(err, repository.ErrBidTooLow):
		return apierror.BadRequest("Bid must be higher than the current bid")
	case errors.Is(err, repository.ErrSelfBid):
		return apierror.BadRequest("You cannot bid on your own auction")
	case errors.Is(err, repository.ErrConfigNotFound):
		return apierror.NotFound("Shop is not configured")
	}
	return err
}
