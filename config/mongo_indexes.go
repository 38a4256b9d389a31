package config

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func EnsureMongoIndexes(db *mongo.Database) error {
	if db == nil {
		return errors.New("mongo database is nil; call InitMongo() first")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	leads := db.Collection("leads")
	_, err := leads.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "phone", Value: 1}},
			Options: options.Index().
				SetName("uniq_phone").
				SetUnique(true),
		},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetName("by_email")},
		{Keys: bson.D{{Key: "status", Value: 1}}, Options: options.Index().SetName("by_status")},
		{Keys: bson.D{{Key: "created_at", Value: -1}}, Options: options.Index().SetName("by_created")},
	})
	if err != nil {
		return err
	}

	calls := db.Collection("calls")
	_, err = calls.Indexes().CreateMany(ctx, []mongo.IndexModel{
		// at most one record per call session; records without a session id are allowed
		{
			Keys: bson.D{{Key: "call_session_id", Value: 1}},
			Options: options.Index().
				SetName("uniq_call_session_id").
				SetUnique(true).
				SetSparse(true),
		},
		{Keys: bson.D{{Key: "lead_id", Value: 1}}, Options: options.Index().SetName("by_lead")},
		{Keys: bson.D{{Key: "phone_number", Value: 1}}, Options: options.Index().SetName("by_phone")},
		{Keys: bson.D{{Key: "call_date", Value: -1}}, Options: options.Index().SetName("by_call_date")},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("by_status_created"),
		},
	})
	return err
}
