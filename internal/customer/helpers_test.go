package customer

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/crypto/bcrypt"
)

type memRepo struct {
	mu        sync.Mutex
	customers map[bson.ObjectID]*Customer
	addresses []*Address
	findErr   error
}

func newMemRepo() *memRepo {
	return &memRepo{customers: make(map[bson.ObjectID]*Customer)}
}

func (m *memRepo) CreateCustomer(_ context.Context, c *Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.customers {
		if existing.Email == strings.ToLower(c.Email) {
			return ErrEmailTaken
		}
	}
	c.ID = bson.NewObjectID()
	c.Email = strings.ToLower(c.Email)
	cp := *c
	m.customers[c.ID] = &cp
	return nil
}

func (m *memRepo) FindByEmail(_ context.Context, email string) (*Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	for _, c := range m.customers {
		if c.Email == strings.ToLower(email) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memRepo) FindByID(_ context.Context, id string) (*Customer, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrInvalidID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[oid]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memRepo) PushToken(_ context.Context, id, token string) error {
	return m.withCustomer(id, func(c *Customer) { c.Tokens = append(c.Tokens, token) })
}

func (m *memRepo) PullToken(_ context.Context, id, token string) error {
	return m.withCustomer(id, func(c *Customer) {
		kept := c.Tokens[:0]
		for _, t := range c.Tokens {
			if t != token {
				kept = append(kept, t)
			}
		}
		c.Tokens = kept
	})
}

func (m *memRepo) withCustomer(id string, fn func(*Customer)) error {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return ErrInvalidID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[oid]
	if !ok {
		return ErrNotFound
	}
	fn(c)
	return nil
}

func (m *memRepo) setStatus(id string, status Status) {
	_ = m.withCustomer(id, func(c *Customer) { c.Status = status })
}

func (m *memRepo) CreateAddress(_ context.Context, a *Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = bson.NewObjectID()
	cp := *a
	m.addresses = append(m.addresses, &cp)
	return nil
}

func (m *memRepo) ClearDefaultAddress(_ context.Context, customerID string) error {
	cid, err := bson.ObjectIDFromHex(customerID)
	if err != nil {
		return ErrInvalidID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.addresses {
		if a.Customer == cid {
			a.IsDefault = false
		}
	}
	return nil
}

func (m *memRepo) FindAddress(_ context.Context, customerID, addressID string) (*Address, error) {
	cid, err := bson.ObjectIDFromHex(customerID)
	if err != nil {
		return nil, ErrInvalidID
	}
	aid, err := bson.ObjectIDFromHex(addressID)
	if err != nil {
		return nil, ErrInvalidID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.addresses {
		if a.ID == aid && a.Customer == cid {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memRepo) ListAddresses(_ context.Context, customerID string) ([]Address, error) {
	cid, err := bson.ObjectIDFromHex(customerID)
	if err != nil {
		return nil, ErrInvalidID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Address{}
	for _, a := range m.addresses {
		if a.Customer == cid {
			out = append(out, *a)
		}
	}
	return out, nil
}

type fixture struct {
	repo   *memRepo
	redis  *miniredis.Miniredis
	client *redis.Client
	signer *Signer
	svc    *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := newMemRepo()
	signer := NewSigner("test-secret", time.Hour)
	svc := NewService(repo, NewTokenStore(client, time.Hour), signer, WithBcryptCost(bcrypt.MinCost))
	return &fixture{repo: repo, redis: mr, client: client, signer: signer, svc: svc}
}

func validSignUp() SignUpInput {
	return SignUpInput{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "ada@example.com",
		Password:  "secret1",
		Phone:     "9876543210",
	}
}

func (f *fixture) signUp(t *testing.T) Session {
	t.Helper()
	session, err := f.svc.SignUp(context.Background(), validSignUp())
	require.NoError(t, err)
	return session
}

func validAddress(isDefault bool) AddressInput {
	return AddressInput{
		Name:      "Home",
		Mobile:    "9876543210",
		Address1:  "12 Analytical St",
		Landmark:  "Engine works",
		PinCode:   "560001",
		City:      "Bengaluru",
		State:     "KA",
		Country:   "IN",
		IsDefault: &isDefault,
	}
}
