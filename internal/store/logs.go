package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"sociohiro-backend/models"
)

const maxLogPage = 500

// InsertLog appends an execution log. Logs are never updated.
func (s *Store) InsertLog(ctx context.Context, entry *models.ExecutionLog) error {
	entry.ID = primitive.NewObjectID()
	_, err := s.logs.InsertOne(ctx, entry)
	return err
}

// RuleLogs returns the latest logs of one rule.
func (s *Store) RuleLogs(ctx context.Context, accountID string, ruleID primitive.ObjectID, limit int) ([]models.ExecutionLog, error) {
	return s.findLogs(ctx, bson.M{"account_id": accountID, "rule_id": ruleID}, limit)
}

// AccountLogs returns logs of an account executed at or after since.
func (s *Store) AccountLogs(ctx context.Context, accountID string, since time.Time, limit int) ([]models.ExecutionLog, error) {
	filter := bson.M{"account_id": accountID}
	if !since.IsZero() {
		filter["executed_at"] = bson.M{"$gte": since}
	}
	return s.findLogs(ctx, filter, limit)
}

func (s *Store) findLogs(ctx context.Context, filter bson.M, limit int) ([]models.ExecutionLog, error) {
	if limit <= 0 || limit > maxLogPage {
		limit = maxLogPage
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "executed_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := s.logs.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	logs := []models.ExecutionLog{}
	if err := cursor.All(ctx, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}
