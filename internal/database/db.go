// Package database provides the MongoDB connection manager, domain models,
// and data access layer (Store) for instabridge.
package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/edgard/instabridge/internal/config"
	"github.com/edgard/instabridge/internal/resilience"
)

// Collection names used by the bridge.
const (
	CollectionUsers       = "instagram_users"
	CollectionThreads     = "instagram_threads"
	CollectionMessages    = "instagram_messages"
	CollectionSessions    = "chat_sessions"
	CollectionSyncStatus  = "sync_status"
	CollectionPreferences = "user_preferences"
)

// ErrNotConnected is returned when an operation requires a live connection
// and connecting failed.
var ErrNotConnected = errors.New("database not connected")

// DB manages the MongoDB client with pooling, bounded connect retries, and
// idempotent index setup. Connect and Disconnect are serialized by a mutex;
// everything else relies on the driver's own connection pool.
type DB struct {
	cfg    config.DatabaseConfig
	logger *slog.Logger

	mu        sync.Mutex
	client    *mongo.Client
	database  *mongo.Database
	connected bool
}

// NewDB creates a connection manager. It does not connect; Connect is
// called lazily by Collection or explicitly at startup.
func NewDB(cfg config.DatabaseConfig, logger *slog.Logger) *DB {
	if logger == nil {
		logger = slog.Default()
	}
	return &DB{
		cfg:    cfg,
		logger: logger.With("component", "database"),
	}
}

// Connect establishes the MongoDB connection. It is idempotent: calling it
// while connected is a no-op. On transient failure it retries with
// exponential backoff up to the configured attempt bound, then reports
// failure instead of retrying forever.
func (d *DB) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected && d.client != nil {
		return nil
	}

	err := resilience.Retry(ctx, d.logger, "mongodb connect",
		uint(d.cfg.MaxConnectTry), 2*time.Second,
		func() error { return d.connectOnce(ctx) })
	if err == nil {
		d.connected = true
		d.logger.Info("Connected to MongoDB", "database", d.cfg.Name)

		if err := d.setupIndexes(ctx); err != nil {
			// Index setup troubles are logged, not fatal: the additive
			// create below already tolerates per-index failures.
			d.logger.Warn("Index setup incomplete", "error", err)
		}
		return nil
	}

	return err
}

func (d *DB) connectOnce(ctx context.Context) error {
	opts := options.Client().
		ApplyURI(d.cfg.URI).
		SetMaxPoolSize(d.cfg.MaxPoolSize).
		SetMinPoolSize(d.cfg.MinPoolSize).
		SetMaxConnIdleTime(d.cfg.MaxIdleTime).
		SetConnectTimeout(d.cfg.ConnectTimeout).
		SetSocketTimeout(d.cfg.SocketTimeout).
		SetServerSelectionTimeout(5 * time.Second).
		SetRetryWrites(true).
		SetRetryReads(true)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, d.cfg.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return fmt.Errorf("ping failed: %w", err)
	}

	d.client = client
	d.database = client.Database(d.cfg.Name)
	return nil
}

// Disconnect closes the connection. Safe to call when not connected.
func (d *DB) Disconnect(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.client == nil {
		return
	}
	if err := d.client.Disconnect(ctx); err != nil {
		d.logger.Error("Error closing MongoDB connection", "error", err)
	} else {
		d.logger.Info("MongoDB connection closed")
	}
	d.client = nil
	d.database = nil
	d.connected = false
}

// Collection returns a collection handle, connecting lazily if needed.
func (d *DB) Collection(ctx context.Context, name string) (*mongo.Collection, error) {
	d.mu.Lock()
	connected := d.connected
	d.mu.Unlock()

	if !connected {
		if err := d.Connect(ctx); err != nil {
			return nil, err
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.database == nil {
		return nil, ErrNotConnected
	}
	return d.database.Collection(name), nil
}

// indexSpec names one index on one collection.
type indexSpec struct {
	keys   bson.D
	unique bool
}

var collectionIndexes = map[string][]indexSpec{
	CollectionUsers: {
		{keys: bson.D{{Key: "instagram_id", Value: 1}}, unique: true},
		{keys: bson.D{{Key: "username", Value: 1}}, unique: true},
		{keys: bson.D{{Key: "is_active", Value: 1}}},
		{keys: bson.D{{Key: "last_seen", Value: -1}}},
	},
	CollectionThreads: {
		{keys: bson.D{{Key: "thread_id", Value: 1}}, unique: true},
		{keys: bson.D{{Key: "participants", Value: 1}}},
		{keys: bson.D{{Key: "is_active", Value: 1}}},
		{keys: bson.D{{Key: "last_activity", Value: -1}}},
		{keys: bson.D{{Key: "sync_status", Value: 1}}},
	},
	CollectionMessages: {
		{keys: bson.D{{Key: "message_id", Value: 1}}, unique: true},
		{keys: bson.D{{Key: "thread_id", Value: 1}}},
		{keys: bson.D{{Key: "sender_id", Value: 1}}},
		{keys: bson.D{{Key: "created_at", Value: -1}}},
		{keys: bson.D{{Key: "instagram_timestamp", Value: -1}}},
		{keys: bson.D{{Key: "status", Value: 1}}},
	},
	CollectionSessions: {
		{keys: bson.D{{Key: "telegram_user_id", Value: 1}}},
		{keys: bson.D{{Key: "instagram_user_id", Value: 1}}},
		{keys: bson.D{{Key: "is_active", Value: 1}}},
		{keys: bson.D{{Key: "last_activity", Value: -1}}},
	},
	CollectionSyncStatus: {
		{keys: bson.D{{Key: "operation_id", Value: 1}}, unique: true},
		{keys: bson.D{{Key: "status", Value: 1}}},
		{keys: bson.D{{Key: "started_at", Value: -1}}},
	},
	CollectionPreferences: {
		{keys: bson.D{{Key: "telegram_user_id", Value: 1}}, unique: true},
		{keys: bson.D{{Key: "instagram_user_id", Value: 1}}},
	},
}

// setupIndexes creates the named index specs that do not already exist.
// Per-index creation errors are logged and skipped, never fail the connect.
func (d *DB) setupIndexes(ctx context.Context) error {
	for collName, specs := range collectionIndexes {
		coll := d.database.Collection(collName)

		existing, err := d.existingIndexNames(ctx, coll)
		if err != nil {
			return fmt.Errorf("failed to list indexes on %s: %w", collName, err)
		}

		for _, spec := range specs {
			name := indexName(spec.keys)
			if existing[name] {
				continue
			}

			opts := options.Index().SetName(name)
			if spec.unique {
				opts = opts.SetUnique(true)
			}
			if _, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: spec.keys, Options: opts}); err != nil {
				d.logger.Warn("Failed to create index",
					"collection", collName, "index", name, "error", err)
				continue
			}
			d.logger.Debug("Created index", "collection", collName, "index", name)
		}
	}
	return nil
}

func (d *DB) existingIndexNames(ctx context.Context, coll *mongo.Collection) (map[string]bool, error) {
	cursor, err := coll.Indexes().List(ctx)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	names := map[string]bool{}
	for cursor.Next(ctx) {
		var idx bson.M
		if err := cursor.Decode(&idx); err != nil {
			continue
		}
		if name, ok := idx["name"].(string); ok {
			names[name] = true
		}
	}
	return names, cursor.Err()
}

// indexName derives the driver-style name for a key spec, e.g.
// "instagram_id_1" or "last_seen_-1".
func indexName(keys bson.D) string {
	name := ""
	for i, k := range keys {
		if i > 0 {
			name += "_"
		}
		name += fmt.Sprintf("%s_%v", k.Key, k.Value)
	}
	return name
}

// HealthStatus is the structured result of a database health check.
type HealthStatus struct {
	Status        string  `json:"status"`
	PingTimeMs    float64 `json:"ping_time_ms,omitempty"`
	DatabaseName  string  `json:"database_name,omitempty"`
	Collections   int32   `json:"collections,omitempty"`
	DataSizeMB    float64 `json:"data_size_mb,omitempty"`
	StorageSizeMB float64 `json:"storage_size_mb,omitempty"`
	Indexes       int32   `json:"indexes,omitempty"`
	Error         string  `json:"error,omitempty"`
}

// HealthCheck pings the server and reads dbStats, reporting a structured
// status without returning an error to the caller.
func (d *DB) HealthCheck(ctx context.Context) HealthStatus {
	d.mu.Lock()
	client := d.client
	db := d.database
	connected := d.connected
	d.mu.Unlock()

	if !connected || client == nil {
		return HealthStatus{Status: "disconnected", Error: "database not connected"}
	}

	start := time.Now()
	if err := client.Ping(ctx, nil); err != nil {
		return HealthStatus{Status: "unhealthy", Error: err.Error()}
	}
	pingMs := float64(time.Since(start).Microseconds()) / 1000.0

	var stats struct {
		Collections int32   `bson:"collections"`
		DataSize    float64 `bson:"dataSize"`
		StorageSize float64 `bson:"storageSize"`
		Indexes     int32   `bson:"indexes"`
	}
	if err := db.RunCommand(ctx, bson.D{{Key: "dbStats", Value: 1}}).Decode(&stats); err != nil {
		return HealthStatus{Status: "unhealthy", PingTimeMs: pingMs, Error: err.Error()}
	}

	return HealthStatus{
		Status:        "healthy",
		PingTimeMs:    pingMs,
		DatabaseName:  db.Name(),
		Collections:   stats.Collections,
		DataSizeMB:    stats.DataSize / (1024 * 1024),
		StorageSizeMB: stats.StorageSize / (1024 * 1024),
		Indexes:       stats.Indexes,
	}
}
