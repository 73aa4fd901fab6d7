package models

import "time"

// InstagramEvent is a normalized webhook event for one business account.
type InstagramEvent struct {
	ID             string      `json:"id"`
	AccountID      string      `json:"account_id"`
	Type           TriggerType `json:"type"`
	Text           string      `json:"text,omitempty"`
	SenderID       string      `json:"sender_id"`
	SenderUsername string      `json:"sender_username,omitempty"`
	MediaID        string      `json:"media_id,omitempty"`
	CommentID      string      `json:"comment_id,omitempty"`
	Timestamp      time.Time   `json:"timestamp"`
	UserMeta       *UserMeta   `json:"user_meta,omitempty"`
}

// UserMeta describes the sender. Nil on the event when unknown.
type UserMeta struct {
	FollowersCount int64 `json:"followers_count"`
	AccountAgeDays int64 `json:"account_age_days"`
	IsVerified     bool  `json:"is_verified"`
}
