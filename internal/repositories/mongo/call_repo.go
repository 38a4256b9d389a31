package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/rajmehta89/call-agent-backend/internal/models"
	"github.com/rajmehta89/call-agent-backend/internal/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type CallRepository interface {
	// UpsertBySession writes rec under rec.CallSessionID in one round trip and reports
	// whether a new document was created.
	UpsertBySession(ctx context.Context, rec *models.CallRecord) (bool, error)
	FindBySession(ctx context.Context, sessionID string) (*models.CallRecord, error)
	FindRecentInitiated(ctx context.Context, leadID, phone string, since time.Time) (*models.CallRecord, error)
	UpdateByID(ctx context.Context, id primitive.ObjectID, rec *models.CallRecord) error
	Insert(ctx context.Context, rec *models.CallRecord) error
}

type callRepo struct {
	col *mongo.Collection
}

func NewCallRepo(db *mongo.Database) CallRepository {
	return &callRepo{col: db.Collection("calls")}
}

func callFields(rec *models.CallRecord) bson.M {
	return bson.M{
		"phone_number":      rec.PhoneNumber,
		"lead_id":           rec.LeadID,
		"direction":         rec.Direction,
		"status":            rec.Status,
		"duration":          rec.Duration,
		"transcription":     rec.Transcription,
		"ai_responses":      rec.AIResponses,
		"call_summary":      rec.Summary,
		"sentiment":         rec.Sentiment,
		"interest_analysis": rec.InterestAnalysis,
		"call_date":         rec.CallDate,
		"updated_at":        rec.UpdatedAt,
	}
}

func (r *callRepo) UpsertBySession(ctx context.Context, rec *models.CallRecord) (bool, error) {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"call_session_id": rec.CallSessionID},
		bson.M{
			"$set":         callFields(rec),
			"$setOnInsert": bson.M{"created_at": rec.CreatedAt},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return false, storeErr("CallRepo.UpsertBySession", err)
	}
	if id, ok := res.UpsertedID.(primitive.ObjectID); ok {
		rec.ID = id
	}
	return res.UpsertedCount > 0, nil
}

func (r *callRepo) FindBySession(ctx context.Context, sessionID string) (*models.CallRecord, error) {
	var rec models.CallRecord
	err := r.col.FindOne(ctx, bson.M{"call_session_id": sessionID}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, storeErr("CallRepo.FindBySession", err)
	}
	return &rec, nil
}

// FindRecentInitiated returns the newest "initiated" call created after since, matched by
// lead id when one is given and by phone number otherwise.
func (r *callRepo) FindRecentInitiated(ctx context.Context, leadID, phone string, since time.Time) (*models.CallRecord, error) {
	filter := bson.M{
		"status":     models.CallInitiated,
		"created_at": bson.M{"$gte": since.UTC()},
	}
	switch {
	case leadID != "":
		filter["lead_id"] = leadID
	case phone != "":
		filter["phone_number"] = phone
	default:
		return nil, utils.ErrNotFound
	}

	var rec models.CallRecord
	err := r.col.FindOne(ctx, filter,
		options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}}),
	).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, storeErr("CallRepo.FindRecentInitiated", err)
	}
	return &rec, nil
}

func (r *callRepo) UpdateByID(ctx context.Context, id primitive.ObjectID, rec *models.CallRecord) error {
	set := callFields(rec)
	if rec.CallSessionID != "" {
		set["call_session_id"] = rec.CallSessionID
	}
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return storeErr("CallRepo.UpdateByID", err)
	}
	if res.MatchedCount == 0 {
		return utils.ErrNotFound
	}
	return nil
}

func (r *callRepo) Insert(ctx context.Context, rec *models.CallRecord) error {
	res, err := r.col.InsertOne(ctx, rec)
	if err != nil {
		return storeErr("CallRepo.Insert", err)
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		rec.ID = id
	}
	return nil
}
