// Package store persists rules, execution logs, credentials and sessions in MongoDB.
package store

import (
	"errors"

	"go.mongodb.org/mongo-driver/mongo"

	"sociohiro-backend/utils"
)

var ErrNotFound = errors.New("not found")

type Store struct {
	rules       *mongo.Collection
	logs        *mongo.Collection
	credentials *mongo.Collection
	sessions    *mongo.Collection
	cipher      *utils.TokenCipher
}

func New(db *mongo.Database, cipher *utils.TokenCipher) *Store {
	return &Store{
		rules:       db.Collection("automation_rules"),
		logs:        db.Collection("automation_logs"),
		credentials: db.Collection("instagram_credentials"),
		sessions:    db.Collection("sessions"),
		cipher:      cipher,
	}
}

func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return err
}
