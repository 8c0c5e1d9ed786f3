package customer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

const (
	customersCollection = "customers"
	addressesCollection = "addresses"
)

// Repository persists customers and addresses. Ids are hex ObjectIDs.
type Repository interface {
	CreateCustomer(ctx context.Context, c *Customer) error
	FindByEmail(ctx context.Context, email string) (*Customer, error)
	FindByID(ctx context.Context, id string) (*Customer, error)
	PushToken(ctx context.Context, id, token string) error
	PullToken(ctx context.Context, id, token string) error

	CreateAddress(ctx context.Context, a *Address) error
	ClearDefaultAddress(ctx context.Context, customerID string) error
	FindAddress(ctx context.Context, customerID, addressID string) (*Address, error)
	ListAddresses(ctx context.Context, customerID string) ([]Address, error)
}

// MongoRepository is the MongoDB backed Repository
type MongoRepository struct {
	client    *mongo.Client
	customers *mongo.Collection
	addresses *mongo.Collection
	logger    *slog.Logger
}

// OpenMongo connects, pings and ensures the unique email index
func OpenMongo(ctx context.Context, uri, database string, logger *slog.Logger) (*MongoRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("customer: connect mongo: %w", err)
	}

	repo := &MongoRepository{
		client:    client,
		customers: client.Database(database).Collection(customersCollection),
		addresses: client.Database(database).Collection(addressesCollection),
		logger:    logger,
	}
	if err := repo.Ping(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	_, err = repo.customers.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("customer: create email index: %w", err)
	}

	logger.Info("connected to mongo", "database", database)
	return repo, nil
}

func (r *MongoRepository) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("customer: ping mongo: %w", err)
	}
	return nil
}

func (r *MongoRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

func (r *MongoRepository) CreateCustomer(ctx context.Context, c *Customer) error {
	now := time.Now().UTC()
	c.ID = bson.NewObjectID()
	c.Email = strings.ToLower(c.Email)
	c.CreatedAt, c.UpdatedAt = now, now
	if c.Status == "" {
		c.Status = StatusActive
	}
	if c.Tokens == nil {
		c.Tokens = []string{}
	}
	if _, err := r.customers.InsertOne(ctx, c); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("customer: insert: %w", err)
	}
	return nil
}

func (r *MongoRepository) FindByEmail(ctx context.Context, email string) (*Customer, error) {
	return r.findOne(ctx, bson.D{{Key: "email", Value: strings.ToLower(email)}})
}

func (r *MongoRepository) FindByID(ctx context.Context, id string) (*Customer, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrInvalidID
	}
	return r.findOne(ctx, bson.D{{Key: "_id", Value: oid}})
}

func (r *MongoRepository) findOne(ctx context.Context, filter bson.D) (*Customer, error) {
	var c Customer
	if err := r.customers.FindOne(ctx, filter).Decode(&c); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("customer: find: %w", err)
	}
	return &c, nil
}

func (r *MongoRepository) PushToken(ctx context.Context, id, token string) error {
	return r.updateTokens(ctx, id, bson.D{{Key: "$push", Value: bson.D{{Key: "token", Value: token}}}})
}

func (r *MongoRepository) PullToken(ctx context.Context, id, token string) error {
	return r.updateTokens(ctx, id, bson.D{{Key: "$pull", Value: bson.D{{Key: "token", Value: token}}}})
}

func (r *MongoRepository) updateTokens(ctx context.Context, id string, update bson.D) error {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return ErrInvalidID
	}
	update = append(update, bson.E{Key: "$set", Value: bson.D{{Key: "updatedAt", Value: time.Now().UTC()}}})
	res, err := r.customers.UpdateOne(ctx, bson.D{{Key: "_id", Value: oid}}, update)
	if err != nil {
		return fmt.Errorf("customer: update tokens: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoRepository) CreateAddress(ctx context.Context, a *Address) error {
	now := time.Now().UTC()
	a.ID = bson.NewObjectID()
	a.CreatedAt, a.UpdatedAt = now, now
	if a.Type == "" {
		a.Type = AddressHome
	}
	if _, err := r.addresses.InsertOne(ctx, a); err != nil {
		return fmt.Errorf("customer: insert address: %w", err)
	}
	return nil
}

func (r *MongoRepository) ClearDefaultAddress(ctx context.Context, customerID string) error {
	oid, err := bson.ObjectIDFromHex(customerID)
	if err != nil {
		return ErrInvalidID
	}
	_, err = r.addresses.UpdateMany(ctx,
		bson.D{{Key: "customer", Value: oid}, {Key: "isDefault", Value: true}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "isDefault", Value: false}}}},
	)
	if err != nil {
		return fmt.Errorf("customer: clear default address: %w", err)
	}
	return nil
}

func (r *MongoRepository) FindAddress(ctx context.Context, customerID, addressID string) (*Address, error) {
	cid, err := bson.ObjectIDFromHex(customerID)
	if err != nil {
		return nil, ErrInvalidID
	}
	aid, err := bson.ObjectIDFromHex(addressID)
	if err != nil {
		return nil, ErrInvalidID
	}
	var a Address
	err = r.addresses.FindOne(ctx, bson.D{{Key: "_id", Value: aid}, {Key: "customer", Value: cid}}).Decode(&a)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("customer: find address: %w", err)
	}
	return &a, nil
}

func (r *MongoRepository) ListAddresses(ctx context.Context, customerID string) ([]Address, error) {
	cid, err := bson.ObjectIDFromHex(customerID)
	if err != nil {
		return nil, ErrInvalidID
	}
	cursor, err := r.addresses.Find(ctx, bson.D{{Key: "customer", Value: cid}},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("customer: list addresses: %w", err)
	}
	addresses := []Address{}
	if err := cursor.All(ctx, &addresses); err != nil {
		return nil, fmt.Errorf("customer: decode addresses: %w", err)
	}
	return addresses, nil
}
