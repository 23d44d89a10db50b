package client

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"deskhive/pkg/logger"
)

// Mongo is an explicitly owned database handle: opened once at process
// start, passed to the components that need it, and closed at shutdown.
type Mongo struct {
	Client   *mongo.Client
	Database *mongo.Database
	log      *logger.Logger
}

func NewMongo(ctx context.Context, log *logger.Logger, uri, database string, connTimeout time.Duration) (*Mongo, error) {
	ctx, cancel := context.WithTimeout(ctx, connTimeout)
	defer cancel()

	cl, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := cl.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	log.Info("Successfully connected to MongoDB", "database", database)
	return &Mongo{
		Client:   cl,
		Database: cl.Database(database),
		log:      log,
	}, nil
}

func (m *Mongo) Close(ctx context.Context) {
	if err := m.Client.Disconnect(ctx); err != nil {
		m.log.Error("Failed to disconnect from MongoDB", "error", err)
		return
	}
	m.log.Info("MongoDB connection closed")
}
