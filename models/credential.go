package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// InstagramCredential links a business account to its page token. The
// token is stored encrypted and never serialized to clients.
type InstagramCredential struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	AccountID      string             `bson:"account_id" json:"account_id"`
	PageID         string             `bson:"page_id" json:"page_id"`
	PageName       string             `bson:"page_name" json:"page_name"`
	Username       string             `bson:"username" json:"username"`
	EncryptedToken string             `bson:"encrypted_token" json:"-"`
	ExpiresAt      time.Time          `bson:"expires_at" json:"expires_at"`
	RefreshedAt    *time.Time         `bson:"refreshed_at,omitempty" json:"refreshed_at,omitempty"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time          `bson:"updated_at" json:"updated_at"`
}
