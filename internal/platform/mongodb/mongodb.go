// Package mongodb provides MongoDB connection management.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DB wraps a MongoDB client bound to one database.
type DB struct {
	Client   *mongo.Client
	Database *mongo.Database
}

// ParseURL validates a MongoDB connection URL.
func ParseURL(url string) (*options.ClientOptions, error) {
	if url == "" {
		return nil, fmt.Errorf("mongo URL is empty")
	}
	opts := options.Client().ApplyURI(url)
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mongo URL: %w", err)
	}
	return opts, nil
}

// New connects to MongoDB and pings the primary.
func New(ctx context.Context, url, database string) (*DB, error) {
	if database == "" {
		return nil, fmt.Errorf("mongo database name is empty")
	}
	opts, err := ParseURL(url)
	if err != nil {
		return nil, err
	}
	if opts.ConnectTimeout == nil {
		opts.SetConnectTimeout(5 * time.Second)
	}
	if opts.ServerSelectionTimeout == nil {
		opts.SetServerSelectionTimeout(5 * time.Second)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("pinging mongo: %w", err)
	}

	return &DB{Client: client, Database: client.Database(database)}, nil
}

// Close disconnects the client.
func (db *DB) Close(ctx context.Context) error {
	return db.Client.Disconnect(ctx)
}

// HealthCheck verifies the connection is alive.
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.Client.Ping(ctx, nil)
}
