package customer

import (
	"context"
	"errors"

	"github.com/glimte/bridgekit-go/contracts"
	"github.com/glimte/bridgekit-go/messaging"
)

// Events returns the bridge events this service must serve
func Events() []contracts.EventName {
	return []contracts.EventName{contracts.EventGetProfile, contracts.EventProductViewed}
}

// Register binds the customer events to registry
func Register(registry *messaging.Registry, svc *Service) error {
	if err := registry.Register(contracts.EventGetProfile, messaging.Decode(svc.handleGetProfile)); err != nil {
		return err
	}
	return registry.Register(contracts.EventProductViewed, messaging.Decode(svc.handleProductViewed))
}

// handleGetProfile answers with a result body. A missing or malformed id is
// an error result, not a handler failure, so queue consumers keep running.
func (s *Service) handleGetProfile(ctx context.Context, in contracts.ProfileRequest) (any, error) {
	profile, err := s.GetProfile(ctx, in.CustomerID())
	switch {
	case err == nil:
		return contracts.SuccessResult(profile, MsgProfileSuccess), nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidID):
		return contracts.ErrorResult(MsgProfileNotFound), nil
	default:
		return nil, err
	}
}

func (s *Service) handleProductViewed(ctx context.Context, in contracts.ProductViewed) (any, error) {
	if in.CustomerID == "" || in.ProductID == "" {
		return contracts.ErrorResult("customerId and productId are required"), nil
	}
	views, err := s.RecordView(ctx, in.CustomerID, in.ProductID)
	if err != nil {
		return nil, err
	}
	return contracts.SuccessResult(map[string]int64{"views": views}, MsgViewRecorded), nil
}
