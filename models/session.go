package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Session is one logged-in device of an account.
type Session struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	SessionID    string             `bson:"session_id" json:"session_id"`
	AccountID    string             `bson:"account_id" json:"account_id"`
	Browser      string             `bson:"browser" json:"browser"`
	Platform     string             `bson:"platform" json:"platform"`
	IPAddress    string             `bson:"ip_address" json:"ip_address"`
	UserAgent    string             `bson:"user_agent" json:"-"`
	LastActivity time.Time          `bson:"last_activity" json:"last_activity"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
	IsCurrent    bool               `bson:"-" json:"is_current"`
}
