package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"sociohiro-backend/models"
)

// CreateSession stores sess and evicts the least recently active sessions
// of the account beyond maxSessions. It returns the evicted session IDs.
func (s *Store) CreateSession(ctx context.Context, sess *models.Session, maxSessions int) ([]string, error) {
	if _, err := s.sessions.InsertOne(ctx, sess); err != nil {
		return nil, err
	}
	if maxSessions < 1 {
		return nil, nil
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "last_activity", Value: -1}, {Key: "created_at", Value: -1}}).
		SetSkip(int64(maxSessions)).
		SetProjection(bson.M{"session_id": 1})

	cursor, err := s.sessions.Find(ctx, bson.M{"account_id": sess.AccountID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var excess []models.Session
	if err := cursor.All(ctx, &excess); err != nil {
		return nil, err
	}
	if len(excess) == 0 {
		return nil, nil
	}

	evicted := make([]string, 0, len(excess))
	for _, e := range excess {
		if e.SessionID != sess.SessionID {
			evicted = append(evicted, e.SessionID)
		}
	}
	if _, err := s.sessions.DeleteMany(ctx, bson.M{"session_id": bson.M{"$in": evicted}}); err != nil {
		return nil, err
	}
	return evicted, nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	var sess models.Session
	if err := s.sessions.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&sess); err != nil {
		return nil, notFound(err)
	}
	return &sess, nil
}

// TouchSession records activity on a session.
func (s *Store) TouchSession(ctx context.Context, sessionID string, at time.Time) error {
	res, err := s.sessions.UpdateOne(ctx,
		bson.M{"session_id": sessionID},
		bson.M{"$set": bson.M{"last_activity": at}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ListSessions(ctx context.Context, accountID string) ([]models.Session, error) {
	opts := options.Find().SetSort(bson.D{{Key: "last_activity", Value: -1}})
	cursor, err := s.sessions.Find(ctx, bson.M{"account_id": accountID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	sessions := []models.Session{}
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (s *Store) DeleteSession(ctx context.Context, accountID, sessionID string) error {
	res, err := s.sessions.DeleteOne(ctx, bson.M{"account_id": accountID, "session_id": sessionID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteIdleSessions removes sessions with no activity since before.
func (s *Store) DeleteIdleSessions(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.sessions.DeleteMany(ctx, bson.M{"last_activity": bson.M{"$lt": before}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
