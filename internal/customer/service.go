package customer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/crypto/bcrypt"
)

// Session is returned by sign up and sign in
type Session struct {
	ID    string `json:"id"`
	Token string `json:"token"`
}

// Service implements the customer use cases
type Service struct {
	repo       Repository
	tokens     *TokenStore
	signer     *Signer
	bcryptCost int
	logger     *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithBcryptCost overrides the password hashing cost
func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		s.bcryptCost = cost
	}
}

func NewService(repo Repository, tokens *TokenStore, signer *Signer, opts ...Option) *Service {
	s := &Service{
		repo:       repo,
		tokens:     tokens,
		signer:     signer,
		bcryptCost: bcrypt.DefaultCost,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) SignUp(ctx context.Context, in SignUpInput) (Session, error) {
	if err := in.Validate(); err != nil {
		return Session{}, err
	}
	if _, err := s.repo.FindByEmail(ctx, in.Email); err == nil {
		return Session{}, ErrEmailTaken
	} else if !errors.Is(err, ErrNotFound) {
		return Session{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return Session{}, fmt.Errorf("customer: hash password: %w", err)
	}
	c := &Customer{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
		Password:  string(hash),
		Phone:     in.Phone,
		Status:    StatusActive,
	}
	if err := s.repo.CreateCustomer(ctx, c); err != nil {
		return Session{}, err
	}
	s.logger.Info("customer registered", "customer_id", c.ID.Hex())
	return s.openSession(ctx, c)
}

func (s *Service) SignIn(ctx context.Context, in SignInInput) (Session, error) {
	if err := in.Validate(); err != nil {
		return Session{}, err
	}
	c, err := s.repo.FindByEmail(ctx, in.Username)
	if errors.Is(err, ErrNotFound) {
		return Session{}, ErrBadCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(c.Password), []byte(in.Password)); err != nil {
		return Session{}, ErrBadCredentials
	}
	if c.Status != StatusActive {
		return Session{}, ErrInactive
	}
	return s.openSession(ctx, c)
}

func (s *Service) openSession(ctx context.Context, c *Customer) (Session, error) {
	token, err := s.signer.Issue(c)
	if err != nil {
		return Session{}, err
	}
	id := c.ID.Hex()
	if err := s.repo.PushToken(ctx, id, token); err != nil {
		return Session{}, err
	}
	if err := s.tokens.Add(ctx, id, token); err != nil {
		return Session{}, err
	}
	return Session{ID: id, Token: token}, nil
}

// Logout revokes token. The record copy is best effort.
func (s *Service) Logout(ctx context.Context, customerID, token string) error {
	if err := s.tokens.Remove(ctx, customerID, token); err != nil {
		return err
	}
	if err := s.repo.PullToken(ctx, customerID, token); err != nil {
		s.logger.Warn("failed to pull token from customer record", "customer_id", customerID, "error", err)
	}
	return nil
}

// Authenticate verifies a bearer token and its Redis membership. An expired
// token is removed from the customer's set.
func (s *Service) Authenticate(ctx context.Context, raw string) (*Claims, error) {
	claims, err := s.signer.Verify(raw)
	if errors.Is(err, ErrTokenExpired) {
		if rmErr := s.tokens.Remove(ctx, claims.ID, raw); rmErr != nil {
			s.logger.Warn("failed to drop expired token", "customer_id", claims.ID, "error", rmErr)
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	ok, err := s.tokens.Has(ctx, claims.ID, raw)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

func (s *Service) GetProfile(ctx context.Context, id string) (Profile, error) {
	c, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	return c.Profile(), nil
}

func (s *Service) AddAddress(ctx context.Context, customerID string, in AddressInput) (*Address, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	cid, err := bson.ObjectIDFromHex(customerID)
	if err != nil {
		return nil, ErrInvalidID
	}
	isDefault := *in.IsDefault
	if isDefault {
		if err := s.repo.ClearDefaultAddress(ctx, customerID); err != nil {
			return nil, err
		}
	}
	a := &Address{
		Customer:  cid,
		Name:      in.Name,
		Phone:     in.Mobile,
		Address1:  in.Address1,
		Address2:  in.Address2,
		Landmark:  in.Landmark,
		PinCode:   in.PinCode,
		City:      in.City,
		State:     in.State,
		Country:   in.Country,
		IsDefault: isDefault,
		Type:      in.Type,
	}
	if a.Type == "" {
		a.Type = AddressHome
	}
	if err := s.repo.CreateAddress(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) GetAddress(ctx context.Context, customerID, addressID string) (*Address, error) {
	return s.repo.FindAddress(ctx, customerID, addressID)
}

func (s *Service) ListAddresses(ctx context.Context, customerID string) ([]Address, error) {
	return s.repo.ListAddresses(ctx, customerID)
}

// RecordView handles a PRODUCT_VIEWED notification
func (s *Service) RecordView(ctx context.Context, customerID, productID string) (int64, error) {
	return s.tokens.RecordView(ctx, customerID, productID)
}
