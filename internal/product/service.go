package product

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/glimte/bridgekit-go/config"
	"github.com/glimte/bridgekit-go/contracts"
	"github.com/glimte/bridgekit-go/transports/httpx"
)

var (
	ErrOwnerNotFound    = errors.New("product: owner not found")
	ErrOwnerUnavailable = errors.New("product: owner lookup failed")
	ErrNoRequester      = errors.New("product: log bridge not configured")
)

// Invoker calls another service over the sync bridge
type Invoker interface {
	Invoke(ctx context.Context, service string, event contracts.EventName, payload any) httpx.Result
}

// Publisher sends a fire-and-forget event
type Publisher interface {
	Publish(ctx context.Context, service string, event contracts.EventName, payload any) error
}

// Requester sends an event over the log bridge and waits for the reply
type Requester interface {
	ProduceAndWait(ctx context.Context, topic string, event contracts.EventName, payload any, key ...string) (contracts.Reply, error)
}

// Owner is the customer profile as seen by this service
type Owner struct {
	ID             string `json:"_id"`
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	VerifiedEmail  bool   `json:"verifiedEmail"`
	VerifiedMobile bool   `json:"verifiedMobile"`
}

// Service resolves product owners through the bridges
type Service struct {
	invoker   Invoker
	publisher Publisher
	requester Requester
	customer  string
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRequester enables OwnerAsync
func WithRequester(requester Requester) Option {
	return func(s *Service) {
		s.requester = requester
	}
}

// WithCustomerService overrides the service name owner lookups go to
func WithCustomerService(name string) Option {
	return func(s *Service) {
		s.customer = name
	}
}

func NewService(invoker Invoker, publisher Publisher, opts ...Option) *Service {
	s := &Service{
		invoker:   invoker,
		publisher: publisher,
		customer:  config.CustomerService,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// wireResult is a contracts.Result with Data left raw
type wireResult struct {
	Type    string          `json:"type"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (r wireResult) owner() (Owner, error) {
	if r.Type == contracts.ResultError {
		if r.Message == "" {
			return Owner{}, ErrOwnerUnavailable
		}
		return Owner{}, fmt.Errorf("%w: %s", ErrOwnerNotFound, r.Message)
	}
	var owner Owner
	if err := json.Unmarshal(r.Data, &owner); err != nil {
		return Owner{}, fmt.Errorf("%w: decode profile: %v", ErrOwnerUnavailable, err)
	}
	return owner, nil
}

// OwnerSync fetches the customer profile over the sync bridge
func (s *Service) OwnerSync(ctx context.Context, customerID string) (Owner, error) {
	res := s.invoker.Invoke(ctx, s.customer, contracts.EventGetProfile, contracts.ProfileRequest{ID: customerID})

	var body wireResult
	if err := res.Decode(&body); err != nil {
		return Owner{}, fmt.Errorf("%w: %v", ErrOwnerUnavailable, err)
	}
	if res.Status < 200 || res.Status > 299 {
		return Owner{}, fmt.Errorf("%w: status %d", ErrOwnerUnavailable, res.Status)
	}
	return body.owner()
}

// OwnerAsync fetches the customer profile over the log bridge, waiting for
// the correlated reply. The customer id is the record key.
func (s *Service) OwnerAsync(ctx context.Context, customerID string) (Owner, error) {
	if s.requester == nil {
		return Owner{}, ErrNoRequester
	}
	reply, err := s.requester.ProduceAndWait(ctx, s.customer, contracts.EventGetProfile,
		contracts.ProfileRequest{ID: customerID}, customerID)
	if err != nil {
		return Owner{}, err
	}
	var body wireResult
	if err := reply.Decode(&body); err != nil {
		return Owner{}, fmt.Errorf("%w: %v", ErrOwnerUnavailable, err)
	}
	return body.owner()
}

// Notify tells the customer service that productID was viewed
func (s *Service) Notify(ctx context.Context, customerID, productID string) error {
	err := s.publisher.Publish(ctx, s.customer, contracts.EventProductViewed, contracts.ProductViewed{
		CustomerID: customerID,
		ProductID:  productID,
		ViewedAt:   s.now().UTC(),
	})
	if err != nil {
		return err
	}
	s.logger.Debug("product view published", "customer_id", customerID, "product_id", productID)
	return nil
}
