package automation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"sociohiro-backend/models"
)

var (
	ErrInvalidTrigger     = errors.New("invalid trigger type")
	ErrInvalidAction      = errors.New("invalid action type")
	ErrIncompatibleAction = errors.New("action is not compatible with trigger")
	ErrMissingResponse    = errors.New("response message is required for this action")
	ErrInvalidTimeWindow  = errors.New("invalid time window")
	ErrInvalidDays        = errors.New("days of week must be between 0 and 6")
	ErrInvalidLimits      = errors.New("limits must not be negative")
	ErrInvalidRange       = errors.New("range minimum exceeds maximum")
	ErrInvalidTimezone    = errors.New("invalid timezone")
	ErrMissingContent     = errors.New("content id is required unless the rule applies to all content")
)

// NewRule builds a rule for accountID from a dashboard request and
// validates it. New rules are active unless the request says otherwise.
func NewRule(accountID string, req models.RuleRequest, now time.Time) (*models.AutomationRule, error) {
	rule := &models.AutomationRule{
		AccountID:         accountID,
		CreatedAt:         now,
		IsActive:          true,
		ApplyToAllContent: true,
	}
	ApplyRequest(rule, req, now)

	if err := Validate(rule); err != nil {
		return nil, err
	}
	return rule, nil
}

// ApplyRequest copies the editable fields of req onto rule.
func ApplyRequest(rule *models.AutomationRule, req models.RuleRequest, now time.Time) {
	rule.Name = strings.TrimSpace(req.Name)
	rule.Description = strings.TrimSpace(req.Description)
	rule.TriggerType = req.TriggerType
	rule.ActionType = req.ActionType
	rule.ResponseMessage = req.ResponseMessage
	rule.Keywords = cleanKeywords(req.Keywords)
	rule.ExactMatch = req.ExactMatch
	rule.CaseSensitive = req.CaseSensitive
	rule.Conditions = req.Conditions
	rule.ContentID = strings.TrimSpace(req.ContentID)
	if req.ApplyToAllContent != nil {
		rule.ApplyToAllContent = *req.ApplyToAllContent
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}
	rule.UpdatedAt = now
}

// Validate checks a rule before it is stored or evaluated.
func Validate(rule *models.AutomationRule) error {
	if !ValidTrigger(rule.TriggerType) {
		return fmt.Errorf("%w: %q", ErrInvalidTrigger, rule.TriggerType)
	}
	if !ValidAction(rule.ActionType) {
		return fmt.Errorf("%w: %q", ErrInvalidAction, rule.ActionType)
	}
	if !IsCompatible(rule.TriggerType, rule.ActionType) {
		return fmt.Errorf("%w: %s cannot run on %s", ErrIncompatibleAction, rule.ActionType, rule.TriggerType)
	}
	if needsMessage(rule.ActionType) && strings.TrimSpace(rule.ResponseMessage) == "" {
		return fmt.Errorf("%w: %s", ErrMissingResponse, rule.ActionType)
	}
	if !rule.ApplyToAllContent && rule.ContentID == "" {
		return ErrMissingContent
	}
	return validateConditions(rule.Conditions)
}

func validateConditions(c models.RuleConditions) error {
	if c.MaxExecutionsPerDay < 0 || c.CooldownMinutes < 0 || c.MaxExecutionsPerUser < 0 {
		return ErrInvalidLimits
	}
	if c.TimeWindow != nil {
		if _, err := parseClock(c.TimeWindow.Start); err != nil {
			return fmt.Errorf("%w: start: %v", ErrInvalidTimeWindow, err)
		}
		if _, err := parseClock(c.TimeWindow.End); err != nil {
			return fmt.Errorf("%w: end: %v", ErrInvalidTimeWindow, err)
		}
	}
	for _, d := range c.DaysOfWeek {
		if d < 0 || d > 6 {
			return fmt.Errorf("%w: got %d", ErrInvalidDays, d)
		}
	}
	for name, r := range map[string]*models.IntRange{"follower range": c.FollowerRange, "account age": c.AccountAgeDays} {
		if r != nil && r.Min != nil && r.Max != nil && *r.Min > *r.Max {
			return fmt.Errorf("%w: %s", ErrInvalidRange, name)
		}
	}
	if _, err := loadLocation(c.Timezone); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidTimezone, c.Timezone)
	}
	return nil
}

func cleanKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// parseClock parses "HH:MM" into minutes after midnight.
func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}
