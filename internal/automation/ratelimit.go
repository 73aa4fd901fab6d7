package automation

import (
	"context"
	"sync"
	"time"

	"sociohiro-backend/models"
)

// Limiter enforces the per-rule execution limits. Reserve checks and
// records one execution atomically; Refund undoes a reservation whose
// action failed.
type Limiter interface {
	Reserve(ctx context.Context, rule *models.AutomationRule, senderID string, now time.Time) (bool, error)
	Refund(ctx context.Context, rule *models.AutomationRule, senderID string, now time.Time) error
}

// dayStamp is the rule-local calendar day of now.
func dayStamp(rule *models.AutomationRule, now time.Time) string {
	loc, err := loadLocation(rule.Conditions.Timezone)
	if err != nil {
		loc = time.UTC
	}
	return now.In(loc).Format("20060102")
}

// senderLimits returns the per-sender cap and cooldown for senderID. Events
// with no known sender, such as mentions without an author, only count
// against the daily cap.
func senderLimits(c models.RuleConditions, senderID string) (maxPerSender int, cooldown time.Duration) {
	if senderID == "" {
		return 0, 0
	}
	return c.MaxExecutionsPerUser, time.Duration(c.CooldownMinutes) * time.Minute
}

// MemoryLimiter keeps counters in process. Suitable for a single worker
// and for tests.
type MemoryLimiter struct {
	mu        sync.Mutex
	daily     map[string]int
	perSender map[string]int
	lastFired map[string]time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		daily:     make(map[string]int),
		perSender: make(map[string]int),
		lastFired: make(map[string]time.Time),
	}
}

func (l *MemoryLimiter) keys(rule *models.AutomationRule, senderID string, now time.Time) (day, sender string) {
	id := rule.ID.Hex()
	return id + "|" + dayStamp(rule, now), id + "|" + senderID
}

func (l *MemoryLimiter) Reserve(_ context.Context, rule *models.AutomationRule, senderID string, now time.Time) (bool, error) {
	c := rule.Conditions
	maxPerSender, cooldown := senderLimits(c, senderID)
	dayKey, senderKey := l.keys(rule, senderID, now)

	l.mu.Lock()
	defer l.mu.Unlock()

	// cooldown is measured on event time
	if cooldown > 0 {
		if last, ok := l.lastFired[senderKey]; ok && now.Sub(last) < cooldown {
			return false, nil
		}
	}
	if c.MaxExecutionsPerDay > 0 && l.daily[dayKey] >= c.MaxExecutionsPerDay {
		return false, nil
	}
	if maxPerSender > 0 && l.perSender[senderKey] >= maxPerSender {
		return false, nil
	}

	l.daily[dayKey]++
	if senderID != "" {
		l.perSender[senderKey]++
	}
	if cooldown > 0 {
		l.lastFired[senderKey] = now
	}
	return true, nil
}

func (l *MemoryLimiter) Refund(_ context.Context, rule *models.AutomationRule, senderID string, now time.Time) error {
	dayKey, senderKey := l.keys(rule, senderID, now)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.daily[dayKey] > 0 {
		l.daily[dayKey]--
	}
	if senderID == "" {
		return nil
	}
	if l.perSender[senderKey] > 0 {
		l.perSender[senderKey]--
	}
	delete(l.lastFired, senderKey)
	return nil
}
