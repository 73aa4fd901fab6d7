package automation

import (
	"strings"
	"time"

	"sociohiro-backend/models"
)

// MatchKeywords reports whether text satisfies the rule's keywords.
// An empty keyword list matches any text.
func MatchKeywords(rule *models.AutomationRule, text string) bool {
	keywords := cleanKeywords(rule.Keywords)
	if len(keywords) == 0 {
		return true
	}

	if !rule.CaseSensitive {
		text = strings.ToLower(text)
	}
	trimmed := strings.TrimSpace(text)

	for _, k := range keywords {
		if !rule.CaseSensitive {
			k = strings.ToLower(k)
		}
		if rule.ExactMatch {
			if trimmed == k {
				return true
			}
			continue
		}
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// MatchContent reports whether the rule covers the media the event is about.
func MatchContent(rule *models.AutomationRule, mediaID string) bool {
	if rule.ApplyToAllContent || rule.ContentID == "" {
		return true
	}
	return rule.ContentID == mediaID
}

// WithinSchedule checks the time window and days of week at t, both
// evaluated in the rule's timezone.
func WithinSchedule(c models.RuleConditions, t time.Time) (bool, error) {
	loc, err := loadLocation(c.Timezone)
	if err != nil {
		return false, err
	}
	local := t.In(loc)

	if len(c.DaysOfWeek) > 0 {
		day := int(local.Weekday())
		found := false
		for _, d := range c.DaysOfWeek {
			if d == day {
				found = true
				break
			}
		}
		if !found {
			return false, nil
		}
	}

	if c.TimeWindow == nil {
		return true, nil
	}
	start, err := parseClock(c.TimeWindow.Start)
	if err != nil {
		return false, err
	}
	end, err := parseClock(c.TimeWindow.End)
	if err != nil {
		return false, err
	}

	now := local.Hour()*60 + local.Minute()
	if start <= end {
		return now >= start && now <= end, nil
	}
	// window crosses midnight
	return now >= start || now <= end, nil
}

// MatchAudience checks the follower, account age and verification
// constraints. Any constraint that is set fails when meta is nil.
func MatchAudience(c models.RuleConditions, meta *models.UserMeta) bool {
	constrained := c.FollowerRange != nil || c.AccountAgeDays != nil || c.RequireVerifiedUser
	if !constrained {
		return true
	}
	if meta == nil {
		return false
	}

	if c.FollowerRange != nil && !c.FollowerRange.Contains(meta.FollowersCount) {
		return false
	}
	if c.AccountAgeDays != nil && !c.AccountAgeDays.Contains(meta.AccountAgeDays) {
		return false
	}
	if c.RequireVerifiedUser && !meta.IsVerified {
		return false
	}
	return true
}
