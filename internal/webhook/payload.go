// Package webhook turns Instagram webhook deliveries into InstagramEvents.
package webhook

import (
	"encoding/json"
	"fmt"
	"time"

	"sociohiro-backend/models"
)

// Payload is the body of a webhook POST.
type Payload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry carries the changes for one business account. Instagram uses
// changes for comments and mentions and messaging for DMs; the simplified
// instagram list is accepted as well.
type Entry struct {
	ID        string           `json:"id"`
	Time      int64            `json:"time"`
	Instagram []InstagramItem  `json:"instagram"`
	Changes   []Change         `json:"changes"`
	Messaging []MessagingEvent `json:"messaging"`
}

type InstagramItem struct {
	Type string   `json:"type"`
	Data ItemData `json:"data"`
}

type ItemData struct {
	ID        string           `json:"id"`
	Text      string           `json:"text"`
	From      User             `json:"from"`
	MediaID   string           `json:"media_id"`
	Media     *MediaRef        `json:"media"`
	CommentID string           `json:"comment_id"`
	UserMeta  *models.UserMeta `json:"user_meta"`
}

type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type MediaRef struct {
	ID               string `json:"id"`
	MediaProductType string `json:"media_product_type"`
}

type Change struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

type ChangeValue struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	From      User      `json:"from"`
	Media     *MediaRef `json:"media"`
	MediaID   string    `json:"media_id"`
	CommentID string    `json:"comment_id"`
	ParentID  string    `json:"parent_id"`
}

type MessagingEvent struct {
	Sender    User     `json:"sender"`
	Recipient User     `json:"recipient"`
	Timestamp int64    `json:"timestamp"`
	Message   *Message `json:"message"`
}

type Message struct {
	MID     string `json:"mid"`
	Text    string `json:"text"`
	IsEcho  bool   `json:"is_echo"`
	ReplyTo *struct {
		Story *struct {
			ID string `json:"id"`
		} `json:"story"`
	} `json:"reply_to"`
}

// Parse decodes a webhook body and returns its events in delivery order.
// Items of unknown type are dropped.
func Parse(body []byte, now time.Time) ([]models.InstagramEvent, error) {
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode webhook payload: %w", err)
	}
	return p.Events(now), nil
}

// Events flattens every entry of the payload.
func (p Payload) Events(now time.Time) []models.InstagramEvent {
	var events []models.InstagramEvent
	for _, entry := range p.Entry {
		at := now
		if entry.Time > 0 {
			at = unixAny(entry.Time)
		}
		for _, item := range entry.Instagram {
			if ev, ok := item.event(entry.ID, at); ok {
				events = append(events, ev)
			}
		}
		for _, change := range entry.Changes {
			if ev, ok := change.event(entry.ID, at); ok {
				events = append(events, ev)
			}
		}
		for _, msg := range entry.Messaging {
			if ev, ok := msg.event(entry.ID, at); ok {
				events = append(events, ev)
			}
		}
	}
	return events
}

func (it InstagramItem) event(accountID string, at time.Time) (models.InstagramEvent, bool) {
	trigger := models.TriggerType(it.Type)
	switch trigger {
	case models.TriggerComment, models.TriggerDM, models.TriggerMention,
		models.TriggerLike, models.TriggerFollow, models.TriggerHashtag:
	default:
		return models.InstagramEvent{}, false
	}

	d := it.Data
	ev := models.InstagramEvent{
		ID:             d.ID,
		AccountID:      accountID,
		Type:           trigger,
		Text:           d.Text,
		SenderID:       d.From.ID,
		SenderUsername: d.From.Username,
		MediaID:        d.MediaID,
		CommentID:      d.CommentID,
		Timestamp:      at,
		UserMeta:       d.UserMeta,
	}
	if ev.MediaID == "" && d.Media != nil {
		ev.MediaID = d.Media.ID
	}
	if trigger == models.TriggerComment && ev.CommentID == "" {
		ev.CommentID = d.ID
	}
	return ev, true
}

func (c Change) event(accountID string, at time.Time) (models.InstagramEvent, bool) {
	v := c.Value
	switch c.Field {
	case "comments", "live_comments":
		ev := models.InstagramEvent{
			ID:             v.ID,
			AccountID:      accountID,
			Type:           models.TriggerComment,
			Text:           v.Text,
			SenderID:       v.From.ID,
			SenderUsername: v.From.Username,
			CommentID:      v.ID,
			Timestamp:      at,
		}
		if v.Media != nil {
			ev.MediaID = v.Media.ID
		}
		return ev, true
	case "mentions":
		// Author is only present when Instagram includes it; otherwise the
		// sender stays empty and per-sender limits do not apply.
		ev := models.InstagramEvent{
			AccountID:      accountID,
			Type:           models.TriggerMention,
			SenderID:       v.From.ID,
			SenderUsername: v.From.Username,
			MediaID:        v.MediaID,
			CommentID:      v.CommentID,
			Timestamp:      at,
		}
		switch {
		case v.CommentID != "":
			ev.ID = "mention:" + v.CommentID
		case v.MediaID != "":
			ev.ID = "mention:" + v.MediaID
		}
		return ev, true
	}
	return models.InstagramEvent{}, false
}

func (m MessagingEvent) event(accountID string, at time.Time) (models.InstagramEvent, bool) {
	// Echoes are our own outbound messages.
	if m.Message == nil || m.Message.IsEcho {
		return models.InstagramEvent{}, false
	}
	if m.Timestamp > 0 {
		at = unixAny(m.Timestamp)
	}
	ev := models.InstagramEvent{
		ID:        m.Message.MID,
		AccountID: accountID,
		Type:      models.TriggerDM,
		Text:      m.Message.Text,
		SenderID:  m.Sender.ID,
		Timestamp: at,
	}
	if m.Message.ReplyTo != nil && m.Message.ReplyTo.Story != nil {
		ev.Type = models.TriggerMention
		ev.MediaID = m.Message.ReplyTo.Story.ID
	}
	if accountID == "" {
		ev.AccountID = m.Recipient.ID
	}
	return ev, true
}

// unixAny accepts seconds or milliseconds since the epoch.
func unixAny(ts int64) time.Time {
	if ts > 1e12 {
		return time.UnixMilli(ts).UTC()
	}
	return time.Unix(ts, 0).UTC()
}

