package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"sociohiro-backend/models"
)

func (s *Store) CreateRule(ctx context.Context, rule *models.AutomationRule) error {
	rule.ID = primitive.NewObjectID()
	_, err := s.rules.InsertOne(ctx, rule)
	return err
}

func (s *Store) GetRule(ctx context.Context, accountID string, id primitive.ObjectID) (*models.AutomationRule, error) {
	var rule models.AutomationRule
	err := s.rules.FindOne(ctx, bson.M{"_id": id, "account_id": accountID}).Decode(&rule)
	if err != nil {
		return nil, notFound(err)
	}
	return &rule, nil
}

// ListRules returns all rules of an account, newest first.
func (s *Store) ListRules(ctx context.Context, accountID string) ([]models.AutomationRule, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})
	cursor, err := s.rules.Find(ctx, bson.M{"account_id": accountID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	rules := []models.AutomationRule{}
	if err := cursor.All(ctx, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// ActiveRules returns the candidate rules for an event, in evaluation order.
func (s *Store) ActiveRules(ctx context.Context, accountID string, trigger models.TriggerType) ([]models.AutomationRule, error) {
	filter := bson.M{
		"account_id":   accountID,
		"trigger_type": trigger,
		"is_active":    true,
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})
	cursor, err := s.rules.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	rules := []models.AutomationRule{}
	if err := cursor.All(ctx, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// UpdateRule replaces the editable fields; counters are left untouched.
func (s *Store) UpdateRule(ctx context.Context, rule *models.AutomationRule) error {
	res, err := s.rules.UpdateOne(ctx,
		bson.M{"_id": rule.ID, "account_id": rule.AccountID},
		bson.M{"$set": bson.M{
			"name":                 rule.Name,
			"description":          rule.Description,
			"trigger_type":         rule.TriggerType,
			"action_type":          rule.ActionType,
			"response_message":     rule.ResponseMessage,
			"keywords":             rule.Keywords,
			"exact_match":          rule.ExactMatch,
			"case_sensitive":       rule.CaseSensitive,
			"conditions":           rule.Conditions,
			"content_id":           rule.ContentID,
			"apply_to_all_content": rule.ApplyToAllContent,
			"is_active":            rule.IsActive,
			"updated_at":           rule.UpdatedAt,
		}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) SetRuleActive(ctx context.Context, accountID string, id primitive.ObjectID, active bool) error {
	res, err := s.rules.UpdateOne(ctx,
		bson.M{"_id": id, "account_id": accountID},
		bson.M{"$set": bson.M{"is_active": active, "updated_at": time.Now()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteRule(ctx context.Context, accountID string, id primitive.ObjectID) error {
	res, err := s.rules.DeleteOne(ctx, bson.M{"_id": id, "account_id": accountID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementExecutionCount bumps the counter atomically.
func (s *Store) IncrementExecutionCount(ctx context.Context, ruleID primitive.ObjectID, at time.Time) error {
	_, err := s.rules.UpdateOne(ctx,
		bson.M{"_id": ruleID},
		bson.M{
			"$inc": bson.M{"execution_count": 1},
			"$set": bson.M{"last_executed_at": at},
		},
	)
	return err
}
