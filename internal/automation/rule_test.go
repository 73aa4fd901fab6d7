package automation

import (
	"errors"
	"testing"
	"time"

	"sociohiro-backend/models"
)

func TestNewRuleValidation(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	no := false
	lo, hi := int64(10), int64(5)

	tests := []struct {
		name string
		req  models.RuleRequest
		want error
	}{
		{"unknown trigger", models.RuleRequest{Name: "x", TriggerType: "story", ActionType: models.ActionSendDM, ResponseMessage: "hi"}, ErrInvalidTrigger},
		{"unknown action", models.RuleRequest{Name: "x", TriggerType: models.TriggerDM, ActionType: "poke"}, ErrInvalidAction},
		{"reply on dm", models.RuleRequest{Name: "x", TriggerType: models.TriggerDM, ActionType: models.ActionReplyComment, ResponseMessage: "hi"}, ErrIncompatibleAction},
		{"like on mention", models.RuleRequest{Name: "x", TriggerType: models.TriggerMention, ActionType: models.ActionLikeComment}, ErrIncompatibleAction},
		{"dm without message", models.RuleRequest{Name: "x", TriggerType: models.TriggerDM, ActionType: models.ActionSendDM, ResponseMessage: "  "}, ErrMissingResponse},
		{"bad window", models.RuleRequest{Name: "x", TriggerType: models.TriggerComment, ActionType: models.ActionLikeComment,
			Conditions: models.RuleConditions{TimeWindow: &models.TimeWindow{Start: "25:00", End: "10:00"}}}, ErrInvalidTimeWindow},
		{"bad day", models.RuleRequest{Name: "x", TriggerType: models.TriggerComment, ActionType: models.ActionLikeComment,
			Conditions: models.RuleConditions{DaysOfWeek: []int{7}}}, ErrInvalidDays},
		{"negative limit", models.RuleRequest{Name: "x", TriggerType: models.TriggerComment, ActionType: models.ActionLikeComment,
			Conditions: models.RuleConditions{CooldownMinutes: -1}}, ErrInvalidLimits},
		{"inverted range", models.RuleRequest{Name: "x", TriggerType: models.TriggerComment, ActionType: models.ActionLikeComment,
			Conditions: models.RuleConditions{FollowerRange: &models.IntRange{Min: &lo, Max: &hi}}}, ErrInvalidRange},
		{"bad timezone", models.RuleRequest{Name: "x", TriggerType: models.TriggerComment, ActionType: models.ActionLikeComment,
			Conditions: models.RuleConditions{Timezone: "Mars/Olympus"}}, ErrInvalidTimezone},
		{"scoped without content", models.RuleRequest{Name: "x", TriggerType: models.TriggerComment, ActionType: models.ActionLikeComment,
			ApplyToAllContent: &no}, ErrMissingContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRule("ig1", tt.req, now)
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNewRuleDefaults(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rule, err := NewRule("ig1", models.RuleRequest{
		Name:            " Price replies ",
		TriggerType:     models.TriggerComment,
		ActionType:      models.ActionReplyComment,
		ResponseMessage: "DM us!",
		Keywords:        []string{" price ", "", "cost"},
	}, now)
	if err != nil {
		t.Fatalf("NewRule: %v", err)
	}
	if !rule.IsActive || !rule.ApplyToAllContent {
		t.Errorf("new rules should be active and global: %+v", rule)
	}
	if rule.Name != "Price replies" || len(rule.Keywords) != 2 || rule.Keywords[0] != "price" {
		t.Errorf("fields not cleaned: %+v", rule)
	}
	if !rule.CreatedAt.Equal(now) || rule.AccountID != "ig1" {
		t.Errorf("unexpected metadata: %+v", rule)
	}
}

func TestCompatibility(t *testing.T) {
	if !IsCompatible(models.TriggerComment, models.ActionLikeComment) {
		t.Error("like_comment should be valid for comment")
	}
	if IsCompatible(models.TriggerLike, models.ActionLikeComment) {
		t.Error("like_comment should not be valid for like")
	}

	triggers := TriggersFor(models.ActionSendDM)
	if len(triggers) != 6 {
		t.Errorf("send_dm should be valid for every trigger, got %v", triggers)
	}
	if got := TriggersFor(models.ActionReplyComment); len(got) != 1 || got[0] != models.TriggerComment {
		t.Errorf("reply_comment triggers = %v", got)
	}

	// every action in the matrix maps back to its trigger
	for trigger, actions := range CompatibilityMatrix() {
		for _, a := range actions {
			found := false
			for _, tr := range TriggersFor(a) {
				if tr == trigger {
					found = true
				}
			}
			if !found {
				t.Errorf("%s missing from TriggersFor(%s)", trigger, a)
			}
		}
	}
}
