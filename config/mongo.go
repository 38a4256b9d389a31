package config

import (
	"context"
	"crypto/tls"
	"os"
	"time"

	"github.com/rajmehta89/call-agent-backend/internal/utils"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoClient holds the call and lead store connection. The server refuses to start without it.
var MongoClient *mongo.Client

func InitMongo(uri string) error {
	const op = "config.InitMongo"
	if uri == "" {
		return utils.E(utils.CodeMisconfigured, op, "MONGO_URI is not set", nil)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// call logs are written once per webhook/finalize; a small pool covers many live calls
	opts := options.Client().ApplyURI(uri).
		SetAppName("call-agent-backend").
		SetServerSelectionTimeout(20 * time.Second).
		SetConnectTimeout(15 * time.Second).
		SetMaxPoolSize(20).
		SetMinPoolSize(1).
		SetRetryWrites(true)

	if os.Getenv("MONGO_FORCE_TLS_CONFIG") == "true" {
		opts = opts.SetTLSConfig(&tls.Config{
			InsecureSkipVerify: os.Getenv("MONGO_INSECURE_TLS") == "true",
			MinVersion:         tls.VersionTLS12,
		})
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return utils.E(utils.CodeUnavailable, op, "connect failed", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return utils.E(utils.CodeUnavailable, op, "primary not reachable", err)
	}

	MongoClient = client
	return nil
}

// MongoDatabase returns the application database, or nil before InitMongo.
func MongoDatabase(name string) *mongo.Database {
	if MongoClient == nil {
		return nil
	}
	return MongoClient.Database(name)
}

func CloseMongo(ctx context.Context) error {
	if MongoClient == nil {
		return nil
	}
	err := MongoClient.Disconnect(ctx)
	MongoClient = nil
	return err
}
