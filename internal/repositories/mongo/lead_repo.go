package mongo

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/rajmehta89/call-agent-backend/internal/models"
	"github.com/rajmehta89/call-agent-backend/internal/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type LeadRepository interface {
	FindByID(ctx context.Context, id string) (*models.Lead, error)
	// FindByPhone matches the cleaned number as stored, with a leading '+', or as a substring.
	FindByPhone(ctx context.Context, phone string) (*models.Lead, error)
	SetStatus(ctx context.Context, id primitive.ObjectID, status models.LeadStatus, reason string) error
	TouchLastCall(ctx context.Context, id string, at time.Time) error
}

type leadRepo struct {
	col *mongo.Collection
}

func NewLeadRepo(db *mongo.Database) LeadRepository {
	return &leadRepo{col: db.Collection("leads")}
}

func (r *leadRepo) FindByID(ctx context.Context, id string) (*models.Lead, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, utils.ErrNotFound
	}
	return r.findOne(ctx, bson.M{"_id": oid})
}

func (r *leadRepo) FindByPhone(ctx context.Context, phone string) (*models.Lead, error) {
	clean := utils.CleanPhone(phone)
	if clean == "" {
		return nil, utils.ErrNotFound
	}
	return r.findOne(ctx, bson.M{"$or": bson.A{
		bson.M{"phone": clean},
		bson.M{"phone": "+" + clean},
		bson.M{"phone": primitive.Regex{Pattern: regexp.QuoteMeta(clean), Options: "i"}},
	}})
}

func (r *leadRepo) findOne(ctx context.Context, filter bson.M) (*models.Lead, error) {
	var l models.Lead
	err := r.col.FindOne(ctx, filter).Decode(&l)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *leadRepo) SetStatus(ctx context.Context, id primitive.ObjectID, status models.LeadStatus, reason string) error {
	_, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			"status":        status,
			"status_reason": reason,
			"updated_at":    time.Now().UTC(),
		}},
	)
	return err
}

func (r *leadRepo) TouchLastCall(ctx context.Context, id string, at time.Time) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return utils.ErrNotFound
	}
	_, err = r.col.UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": bson.M{
			"last_call":  at.UTC(),
			"updated_at": at.UTC(),
		}},
	)
	return err
}
