package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type TriggerType string

const (
	TriggerComment TriggerType = "comment"
	TriggerDM      TriggerType = "dm"
	TriggerMention TriggerType = "mention"
	TriggerLike    TriggerType = "like"
	TriggerFollow  TriggerType = "follow"
	TriggerHashtag TriggerType = "hashtag"
)

type ActionType string

const (
	ActionSendDM         ActionType = "send_dm"
	ActionLikeComment    ActionType = "like_comment"
	ActionReplyComment   ActionType = "reply_comment"
	ActionFollowUser     ActionType = "follow_user"
	ActionSendStoryReply ActionType = "send_story_reply"
)

// TimeWindow is a local time-of-day range in "HH:MM" form, both ends
// inclusive. Start after End wraps past midnight.
type TimeWindow struct {
	Start string `bson:"start" json:"start"`
	End   string `bson:"end" json:"end"`
}

// IntRange bounds a value; a nil side is unbounded.
type IntRange struct {
	Min *int64 `bson:"min,omitempty" json:"min,omitempty"`
	Max *int64 `bson:"max,omitempty" json:"max,omitempty"`
}

// Contains reports whether v lies within the range.
func (r IntRange) Contains(v int64) bool {
	if r.Min != nil && v < *r.Min {
		return false
	}
	if r.Max != nil && v > *r.Max {
		return false
	}
	return true
}

// RuleConditions scope when a matching rule may fire. Zero values mean unset.
type RuleConditions struct {
	MaxExecutionsPerDay  int         `bson:"max_executions_per_day" json:"max_executions_per_day"`
	CooldownMinutes      int         `bson:"cooldown_minutes" json:"cooldown_minutes"`
	MaxExecutionsPerUser int         `bson:"max_executions_per_user" json:"max_executions_per_user"`
	TimeWindow           *TimeWindow `bson:"time_window,omitempty" json:"time_window,omitempty"`
	DaysOfWeek           []int       `bson:"days_of_week,omitempty" json:"days_of_week,omitempty"` // 0 = Sunday
	FollowerRange        *IntRange   `bson:"follower_range,omitempty" json:"follower_range,omitempty"`
	AccountAgeDays       *IntRange   `bson:"account_age_days,omitempty" json:"account_age_days,omitempty"`
	RequireVerifiedUser  bool        `bson:"require_verified_user" json:"require_verified_user"`
	Timezone             string      `bson:"timezone,omitempty" json:"timezone,omitempty"` // IANA name, UTC when empty
}

type AutomationRule struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	AccountID   string             `bson:"account_id" json:"account_id"`
	Name        string             `bson:"name" json:"name"`
	Description string             `bson:"description,omitempty" json:"description,omitempty"`

	TriggerType     TriggerType `bson:"trigger_type" json:"trigger_type"`
	ActionType      ActionType  `bson:"action_type" json:"action_type"`
	ResponseMessage string      `bson:"response_message,omitempty" json:"response_message,omitempty"`

	Keywords      []string `bson:"keywords" json:"keywords"`
	ExactMatch    bool     `bson:"exact_match" json:"exact_match"`
	CaseSensitive bool     `bson:"case_sensitive" json:"case_sensitive"`

	Conditions RuleConditions `bson:"conditions" json:"conditions"`

	ContentID         string `bson:"content_id,omitempty" json:"content_id,omitempty"`
	ApplyToAllContent bool   `bson:"apply_to_all_content" json:"apply_to_all_content"`

	IsActive       bool       `bson:"is_active" json:"is_active"`
	ExecutionCount int64      `bson:"execution_count" json:"execution_count"`
	LastExecutedAt *time.Time `bson:"last_executed_at,omitempty" json:"last_executed_at,omitempty"`
	CreatedAt      time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `bson:"updated_at" json:"updated_at"`
}

// RuleRequest is the create/update payload of the dashboard.
type RuleRequest struct {
	Name              string         `json:"name" binding:"required,min=1,max=100"`
	Description       string         `json:"description" binding:"max=500"`
	TriggerType       TriggerType    `json:"trigger_type" binding:"required"`
	ActionType        ActionType     `json:"action_type" binding:"required"`
	ResponseMessage   string         `json:"response_message" binding:"max=1000"`
	Keywords          []string       `json:"keywords"`
	ExactMatch        bool           `json:"exact_match"`
	CaseSensitive     bool           `json:"case_sensitive"`
	Conditions        RuleConditions `json:"conditions"`
	ContentID         string         `json:"content_id"`
	ApplyToAllContent *bool          `json:"apply_to_all_content"`
	IsActive          *bool          `json:"is_active"`
}

// ExecutionLog is an append-only record of one firing attempt.
type ExecutionLog struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	RuleID      primitive.ObjectID `bson:"rule_id" json:"rule_id"`
	RuleName    string             `bson:"rule_name" json:"rule_name"`
	AccountID   string             `bson:"account_id" json:"account_id"`
	TriggerType TriggerType        `bson:"trigger_type" json:"trigger_type"`
	ActionType  ActionType         `bson:"action_type" json:"action_type"`
	SenderID    string             `bson:"sender_id" json:"sender_id"`
	TriggerText string             `bson:"trigger_text" json:"trigger_text"`
	Success     bool               `bson:"success" json:"success"`
	Error       string             `bson:"error,omitempty" json:"error,omitempty"`
	ErrorReason string             `bson:"error_reason,omitempty" json:"error_reason,omitempty"`
	ExecutedAt  time.Time          `bson:"executed_at" json:"executed_at"`
}
