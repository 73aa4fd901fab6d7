package automation_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"sociohiro-backend/internal/automation"
	"sociohiro-backend/internal/graph"
	"sociohiro-backend/models"
)

type mockActions struct {
	replyFn  func(ctx context.Context, commentID, message string) (map[string]interface{}, error)
	likeFn   func(ctx context.Context, commentID string) error
	dmFn     func(ctx context.Context, accountID string, to graph.Recipient, text string) (*graph.MessageResult, error)
	followFn func(ctx context.Context, accountID, userID string) error
}

func (m *mockActions) ReplyToComment(ctx context.Context, commentID, message string) (map[string]interface{}, error) {
	if m.replyFn != nil {
		return m.replyFn(ctx, commentID, message)
	}
	return map[string]interface{}{"id": "reply"}, nil
}

func (m *mockActions) LikeComment(ctx context.Context, commentID string) error {
	if m.likeFn != nil {
		return m.likeFn(ctx, commentID)
	}
	return nil
}

func (m *mockActions) SendDirectMessage(ctx context.Context, accountID string, to graph.Recipient, text string) (*graph.MessageResult, error) {
	if m.dmFn != nil {
		return m.dmFn(ctx, accountID, to, text)
	}
	return &graph.MessageResult{MessageID: "mid"}, nil
}

func (m *mockActions) FollowUser(ctx context.Context, accountID, userID string) error {
	if m.followFn != nil {
		return m.followFn(ctx, accountID, userID)
	}
	return nil
}

type memoryRecorder struct {
	mu     sync.Mutex
	logs   []models.ExecutionLog
	counts map[primitive.ObjectID]int
}

func newRecorder() *memoryRecorder {
	return &memoryRecorder{counts: make(map[primitive.ObjectID]int)}
}

func (r *memoryRecorder) InsertLog(_ context.Context, entry *models.ExecutionLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, *entry)
	return nil
}

func (r *memoryRecorder) IncrementExecutionCount(_ context.Context, ruleID primitive.ObjectID, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[ruleID]++
	return nil
}

var baseTime = time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC) // a Wednesday

func priceRule() models.AutomationRule {
	return models.AutomationRule{
		ID:                primitive.NewObjectID(),
		AccountID:         "ig1",
		Name:              "price",
		TriggerType:       models.TriggerComment,
		ActionType:        models.ActionReplyComment,
		ResponseMessage:   "DM us!",
		Keywords:          []string{"price"},
		ApplyToAllContent: true,
		IsActive:          true,
		CreatedAt:         baseTime.Add(-time.Hour),
	}
}

func commentEvent(text, sender string) models.InstagramEvent {
	return models.InstagramEvent{
		AccountID: "ig1",
		Type:      models.TriggerComment,
		Text:      text,
		SenderID:  sender,
		CommentID: "c-" + sender,
		MediaID:   "m1",
		Timestamp: baseTime,
	}
}

func TestProcess_ReplyToPriceQuestion(t *testing.T) {
	var gotComment, gotMessage string
	actions := &mockActions{
		replyFn: func(_ context.Context, commentID, message string) (map[string]interface{}, error) {
			gotComment, gotMessage = commentID, message
			return map[string]interface{}{"id": "r1"}, nil
		},
	}
	rec := newRecorder()
	m := automation.NewMatcher(automation.NewMemoryLimiter(), rec)

	rule := priceRule()
	outcomes := m.Process(context.Background(), actions, commentEvent("what is the price?", "u1"), []models.AutomationRule{rule})

	if len(outcomes) != 1 || outcomes[0].Status != automation.StatusFired {
		t.Fatalf("expected rule to fire, got %+v", outcomes)
	}
	if gotComment != "c-u1" || gotMessage != "DM us!" {
		t.Fatalf("reply sent to %q with %q", gotComment, gotMessage)
	}
	if len(rec.logs) != 1 || !rec.logs[0].Success || rec.logs[0].TriggerText != "what is the price?" {
		t.Fatalf("unexpected logs %+v", rec.logs)
	}
	if rec.counts[rule.ID] != 1 {
		t.Fatalf("execution count = %d, want 1", rec.counts[rule.ID])
	}
}

func TestProcess_CaseSensitiveMismatch(t *testing.T) {
	called := false
	actions := &mockActions{
		replyFn: func(context.Context, string, string) (map[string]interface{}, error) {
			called = true
			return nil, nil
		},
	}
	rec := newRecorder()
	m := automation.NewMatcher(automation.NewMemoryLimiter(), rec)

	rule := priceRule()
	rule.CaseSensitive = true
	outcomes := m.Process(context.Background(), actions, commentEvent("What is the PRICE?", "u1"), []models.AutomationRule{rule})

	if outcomes[0].Status != automation.StatusSkipped || outcomes[0].SkipReason != "keywords" {
		t.Fatalf("expected keyword skip, got %+v", outcomes[0])
	}
	if called || len(rec.logs) != 0 {
		t.Fatal("no action or log expected")
	}
}

func TestProcess_MaxExecutionsPerUser(t *testing.T) {
	rec := newRecorder()
	m := automation.NewMatcher(automation.NewMemoryLimiter(), rec)

	rule := priceRule()
	rule.Conditions.MaxExecutionsPerUser = 2
	rules := []models.AutomationRule{rule}

	for i := 0; i < 2; i++ {
		out := m.Process(context.Background(), &mockActions{}, commentEvent("price?", "u1"), rules)
		if out[0].Status != automation.StatusFired {
			t.Fatalf("firing %d: %+v", i+1, out[0])
		}
	}

	out := m.Process(context.Background(), &mockActions{}, commentEvent("price?", "u1"), rules)
	if out[0].Status != automation.StatusSkipped || out[0].SkipReason != "rate_limited" {
		t.Fatalf("third firing should be rate limited, got %+v", out[0])
	}

	out = m.Process(context.Background(), &mockActions{}, commentEvent("price?", "u2"), rules)
	if out[0].Status != automation.StatusFired {
		t.Fatalf("other sender should fire, got %+v", out[0])
	}
}

func TestProcess_FailedActionRefundsLimits(t *testing.T) {
	fail := true
	actions := &mockActions{
		replyFn: func(context.Context, string, string) (map[string]interface{}, error) {
			if fail {
				return nil, &graph.Error{Op: "reply to comment", Reason: graph.ReasonNetwork, Message: "connection reset"}
			}
			return map[string]interface{}{}, nil
		},
	}
	rec := newRecorder()
	m := automation.NewMatcher(automation.NewMemoryLimiter(), rec)

	rule := priceRule()
	rule.Conditions.MaxExecutionsPerUser = 1
	rule.Conditions.CooldownMinutes = 60
	rules := []models.AutomationRule{rule}

	out := m.Process(context.Background(), actions, commentEvent("price", "u1"), rules)
	if out[0].Status != automation.StatusFailed || graph.ReasonOf(out[0].Err) != graph.ReasonNetwork {
		t.Fatalf("expected failed outcome, got %+v", out[0])
	}
	if rec.counts[rule.ID] != 0 {
		t.Fatal("failed action must not increment execution count")
	}
	if len(rec.logs) != 1 || rec.logs[0].Success || rec.logs[0].ErrorReason != "NETWORK" {
		t.Fatalf("expected one failed log, got %+v", rec.logs)
	}

	fail = false
	out = m.Process(context.Background(), actions, commentEvent("price", "u1"), rules)
	if out[0].Status != automation.StatusFired {
		t.Fatalf("retry after failure should fire, got %+v", out[0])
	}
}

func TestProcess_FailureIsolatedPerRule(t *testing.T) {
	actions := &mockActions{
		replyFn: func(context.Context, string, string) (map[string]interface{}, error) {
			return nil, &graph.Error{Op: "reply to comment", Reason: graph.ReasonUpstream, Message: "boom"}
		},
	}
	rec := newRecorder()
	m := automation.NewMatcher(automation.NewMemoryLimiter(), rec)

	reply := priceRule()
	like := priceRule()
	like.ActionType = models.ActionLikeComment
	like.ResponseMessage = ""
	like.CreatedAt = reply.CreatedAt.Add(-time.Minute)

	out := m.Process(context.Background(), actions, commentEvent("price", "u1"), []models.AutomationRule{like, reply})
	if len(out) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(out))
	}
	if out[0].RuleID != reply.ID || out[0].Status != automation.StatusFailed {
		t.Fatalf("newest rule should be evaluated first and fail: %+v", out[0])
	}
	if out[1].RuleID != like.ID || out[1].Status != automation.StatusFired {
		t.Fatalf("second rule should still fire: %+v", out[1])
	}
}

func TestProcess_CommentDMIsPrivateReply(t *testing.T) {
	var got graph.Recipient
	actions := &mockActions{
		dmFn: func(_ context.Context, _ string, to graph.Recipient, _ string) (*graph.MessageResult, error) {
			got = to
			return &graph.MessageResult{}, nil
		},
	}
	m := automation.NewMatcher(automation.NewMemoryLimiter(), newRecorder())

	rule := priceRule()
	rule.ActionType = models.ActionSendDM
	m.Process(context.Background(), actions, commentEvent("price", "u1"), []models.AutomationRule{rule})
	if got.CommentID != "c-u1" || got.ID != "" {
		t.Fatalf("recipient = %+v", got)
	}

	dmRule := priceRule()
	dmRule.TriggerType = models.TriggerDM
	dmRule.ActionType = models.ActionSendDM
	event := models.InstagramEvent{AccountID: "ig1", Type: models.TriggerDM, Text: "price", SenderID: "u7", Timestamp: baseTime}
	m.Process(context.Background(), actions, event, []models.AutomationRule{dmRule})
	if got.ID != "u7" || got.CommentID != "" {
		t.Fatalf("recipient = %+v", got)
	}
}

func TestProcess_FollowUserLoggedAsFailure(t *testing.T) {
	actions := &mockActions{
		followFn: func(context.Context, string, string) error {
			return &graph.Error{Op: "follow user", Reason: graph.ReasonValidation, Message: "unsupported"}
		},
	}
	rec := newRecorder()
	m := automation.NewMatcher(automation.NewMemoryLimiter(), rec)

	rule := priceRule()
	rule.TriggerType = models.TriggerFollow
	rule.ActionType = models.ActionFollowUser
	rule.Keywords = nil
	event := models.InstagramEvent{AccountID: "ig1", Type: models.TriggerFollow, SenderID: "u1", Timestamp: baseTime}

	out := m.Process(context.Background(), actions, event, []models.AutomationRule{rule})
	if out[0].Status != automation.StatusFailed {
		t.Fatalf("expected failure, got %+v", out[0])
	}
	if len(rec.logs) != 1 || rec.logs[0].ErrorReason != "VALIDATION" {
		t.Fatalf("unexpected logs %+v", rec.logs)
	}
}

func TestProcess_SkipsIncompatibleStoredRule(t *testing.T) {
	rule := priceRule()
	rule.TriggerType = models.TriggerDM
	rule.ActionType = models.ActionReplyComment
	event := commentEvent("price", "u1")
	event.Type = models.TriggerDM

	m := automation.NewMatcher(automation.NewMemoryLimiter(), newRecorder())
	out := m.Process(context.Background(), &mockActions{}, event, []models.AutomationRule{rule})
	if out[0].SkipReason != "incompatible_action" {
		t.Fatalf("expected incompatible skip, got %+v", out[0])
	}
}

func TestProcess_ScopeFilters(t *testing.T) {
	minFollowers := int64(100)

	tests := []struct {
		name   string
		mutate func(r *models.AutomationRule, e *models.InstagramEvent)
		reason string
	}{
		{"inactive", func(r *models.AutomationRule, _ *models.InstagramEvent) { r.IsActive = false }, "not_candidate"},
		{"other content", func(r *models.AutomationRule, _ *models.InstagramEvent) {
			r.ApplyToAllContent = false
			r.ContentID = "m2"
		}, "content"},
		{"outside window", func(r *models.AutomationRule, _ *models.InstagramEvent) {
			r.Conditions.TimeWindow = &models.TimeWindow{Start: "18:00", End: "20:00"}
		}, "schedule"},
		{"wrong day", func(r *models.AutomationRule, _ *models.InstagramEvent) {
			r.Conditions.DaysOfWeek = []int{0, 6}
		}, "schedule"},
		{"no metadata", func(r *models.AutomationRule, _ *models.InstagramEvent) {
			r.Conditions.FollowerRange = &models.IntRange{Min: &minFollowers}
		}, "audience"},
		{"unverified", func(r *models.AutomationRule, e *models.InstagramEvent) {
			r.Conditions.RequireVerifiedUser = true
			e.UserMeta = &models.UserMeta{FollowersCount: 500}
		}, "audience"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := priceRule()
			event := commentEvent("price", "u1")
			tt.mutate(&rule, &event)

			m := automation.NewMatcher(automation.NewMemoryLimiter(), newRecorder())
			out := m.Process(context.Background(), &mockActions{}, event, []models.AutomationRule{rule})
			if out[0].Status != automation.StatusSkipped || out[0].SkipReason != tt.reason {
				t.Fatalf("got %+v, want skip %q", out[0], tt.reason)
			}
		})
	}
}

type failingLimiter struct{}

func (failingLimiter) Reserve(context.Context, *models.AutomationRule, string, time.Time) (bool, error) {
	return false, errors.New("redis down")
}

func (failingLimiter) Refund(context.Context, *models.AutomationRule, string, time.Time) error {
	return nil
}

func TestProcess_LimiterErrorDoesNotRunAction(t *testing.T) {
	called := false
	actions := &mockActions{
		replyFn: func(context.Context, string, string) (map[string]interface{}, error) {
			called = true
			return nil, nil
		},
	}
	m := automation.NewMatcher(failingLimiter{}, newRecorder())
	out := m.Process(context.Background(), actions, commentEvent("price", "u1"), []models.AutomationRule{priceRule()})
	if out[0].Status != automation.StatusFailed || called {
		t.Fatalf("expected failed outcome without action, got %+v (called=%v)", out[0], called)
	}
}
