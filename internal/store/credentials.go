package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"sociohiro-backend/models"
)

// SaveCredential upserts the credential of cred.AccountID with token
// encrypted at rest.
func (s *Store) SaveCredential(ctx context.Context, cred *models.InstagramCredential, token string) error {
	sealed, err := s.cipher.Encrypt(token)
	if err != nil {
		return fmt.Errorf("encrypt token: %w", err)
	}

	now := time.Now()
	cred.EncryptedToken = sealed
	cred.UpdatedAt = now

	_, err = s.credentials.UpdateOne(ctx,
		bson.M{"account_id": cred.AccountID},
		bson.M{
			"$set": bson.M{
				"page_id":         cred.PageID,
				"page_name":       cred.PageName,
				"username":        cred.Username,
				"encrypted_token": cred.EncryptedToken,
				"expires_at":      cred.ExpiresAt,
				"refreshed_at":    cred.RefreshedAt,
				"updated_at":      now,
			},
			"$setOnInsert": bson.M{"created_at": now},
		},
		options.Update().SetUpsert(true),
	)
	return err
}

func (s *Store) GetCredential(ctx context.Context, accountID string) (*models.InstagramCredential, error) {
	var cred models.InstagramCredential
	if err := s.credentials.FindOne(ctx, bson.M{"account_id": accountID}).Decode(&cred); err != nil {
		return nil, notFound(err)
	}
	return &cred, nil
}

// AccessToken returns the decrypted token of an account.
func (s *Store) AccessToken(ctx context.Context, accountID string) (string, error) {
	cred, err := s.GetCredential(ctx, accountID)
	if err != nil {
		return "", err
	}
	return s.cipher.Decrypt(cred.EncryptedToken)
}

// DecryptToken opens the token of a credential already loaded.
func (s *Store) DecryptToken(cred *models.InstagramCredential) (string, error) {
	return s.cipher.Decrypt(cred.EncryptedToken)
}

// ExpiringCredentials lists credentials expiring before the given time.
func (s *Store) ExpiringCredentials(ctx context.Context, before time.Time) ([]models.InstagramCredential, error) {
	cursor, err := s.credentials.Find(ctx, bson.M{"expires_at": bson.M{"$lt": before}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	creds := []models.InstagramCredential{}
	if err := cursor.All(ctx, &creds); err != nil {
		return nil, err
	}
	return creds, nil
}

func (s *Store) DeleteCredential(ctx context.Context, accountID string) error {
	_, err := s.credentials.DeleteOne(ctx, bson.M{"account_id": accountID})
	return err
}
