package mongodb

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const connectTimeout = 10 * time.Second

// MongoClient wraps the MongoDB client
type MongoClient struct {
	client   *mongo.Client
	database *mongo.Database
}

// NewMongoClient validates the connection settings, connects and pings the server
func NewMongoClient(uri, database string) (*MongoClient, error) {
	if err := validateMongoURI(uri); err != nil {
		return nil, err
	}
	if err := validateDatabaseName(database); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(connectTimeout)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err = client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &MongoClient{
		client:   client,
		database: client.Database(database),
	}, nil
}

// validateMongoURI accepts mongodb:// and mongodb+srv:// URIs with a host
func validateMongoURI(uri string) error {
	if uri == "" {
		return errors.New("MongoDB URI is required")
	}
	parsed, err := url.Parse(uri)
	if err != nil {
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}
	if parsed.Scheme != "mongodb" && parsed.Scheme != "mongodb+srv" {
		return fmt.Errorf("invalid MongoDB URI scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return errors.New("MongoDB URI must include a host")
	}
	return nil
}

// validateDatabaseName rejects names MongoDB does not allow
func validateDatabaseName(name string) error {
	if name == "" {
		return errors.New("MongoDB database name is required")
	}
	if len(name) > 63 {
		return errors.New("MongoDB database name is too long")
	}
	if strings.ContainsAny(name, `/\. "$*<>:|?`) {
		return fmt.Errorf("invalid MongoDB database name %q", name)
	}
	return nil
}

// Collection returns a collection handle
func (c *MongoClient) Collection(name string) *mongo.Collection {
	return c.database.Collection(name)
}

// Ping checks that the primary is reachable
func (c *MongoClient) Ping(ctx context.Context) error {
	return c.client.Ping(ctx, readpref.Primary())
}

// Disconnect closes the MongoDB connection
func (c *MongoClient) Disconnect(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// Database returns the database handle
func (c *MongoClient) Database() *mongo.Database {
	return c.database
}
