package automation

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"sociohiro-backend/internal/graph"
	"sociohiro-backend/internal/logger"
	"sociohiro-backend/internal/telemetry"
	"sociohiro-backend/models"
)

// Actions is the part of the Graph API client the matcher drives.
type Actions interface {
	ReplyToComment(ctx context.Context, commentID, message string) (map[string]interface{}, error)
	LikeComment(ctx context.Context, commentID string) error
	SendDirectMessage(ctx context.Context, accountID string, to graph.Recipient, text string) (*graph.MessageResult, error)
	FollowUser(ctx context.Context, accountID, userID string) error
}

// ExecutionRecorder persists firing attempts.
type ExecutionRecorder interface {
	InsertLog(ctx context.Context, entry *models.ExecutionLog) error
	IncrementExecutionCount(ctx context.Context, ruleID primitive.ObjectID, at time.Time) error
}

type Status string

const (
	StatusFired   Status = "fired"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Outcome is the result of evaluating one rule against one event.
type Outcome struct {
	RuleID     primitive.ObjectID
	Action     models.ActionType
	Status     Status
	SkipReason string
	Err        error
}

type Matcher struct {
	limiter  Limiter
	recorder ExecutionRecorder
	metrics  *telemetry.Metrics
	log      *slog.Logger
	now      func() time.Time
}

type MatcherOption func(*Matcher)

func WithMetrics(m *telemetry.Metrics) MatcherOption {
	return func(mt *Matcher) { mt.metrics = m }
}

// WithClock overrides the time used when an event has no timestamp.
func WithClock(now func() time.Time) MatcherOption {
	return func(mt *Matcher) { mt.now = now }
}

func NewMatcher(limiter Limiter, recorder ExecutionRecorder, opts ...MatcherOption) *Matcher {
	m := &Matcher{
		limiter:  limiter,
		recorder: recorder,
		log:      logger.With("component", "automation"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SortRules orders rules newest first, ties broken by ID.
func SortRules(rules []models.AutomationRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if !rules[i].CreatedAt.Equal(rules[j].CreatedAt) {
			return rules[i].CreatedAt.After(rules[j].CreatedAt)
		}
		return rules[i].ID.Hex() < rules[j].ID.Hex()
	})
}

// Process evaluates every candidate rule against event and fires all that
// match. A failing rule never stops the remaining ones.
func (m *Matcher) Process(ctx context.Context, actions Actions, event models.InstagramEvent, rules []models.AutomationRule) []Outcome {
	ctx, span := otel.Tracer("automation").Start(ctx, "automation.process")
	defer span.End()
	span.SetAttributes(
		attribute.String("automation.account_id", event.AccountID),
		attribute.String("automation.trigger", string(event.Type)),
		attribute.Int("automation.candidates", len(rules)),
	)

	at := event.Timestamp
	if at.IsZero() {
		at = m.now()
	}

	ordered := make([]models.AutomationRule, len(rules))
	copy(ordered, rules)
	SortRules(ordered)

	outcomes := make([]Outcome, 0, len(ordered))
	for i := range ordered {
		outcomes = append(outcomes, m.evaluate(ctx, actions, event, &ordered[i], at))
	}
	return outcomes
}

func (m *Matcher) evaluate(ctx context.Context, actions Actions, event models.InstagramEvent, rule *models.AutomationRule, at time.Time) Outcome {
	out := Outcome{RuleID: rule.ID, Action: rule.ActionType}
	skip := func(reason string) Outcome {
		out.Status = StatusSkipped
		out.SkipReason = reason
		m.log.Debug("rule skipped", "rule_id", rule.ID.Hex(), "reason", reason)
		return out
	}

	if !rule.IsActive || rule.TriggerType != event.Type || rule.AccountID != event.AccountID {
		return skip("not_candidate")
	}
	if !IsCompatible(rule.TriggerType, rule.ActionType) {
		m.log.Warn("stored rule has incompatible action", "rule_id", rule.ID.Hex(),
			"trigger", rule.TriggerType, "action", rule.ActionType)
		return skip("incompatible_action")
	}
	if !MatchContent(rule, event.MediaID) {
		return skip("content")
	}
	if !MatchKeywords(rule, event.Text) {
		return skip("keywords")
	}
	ok, err := WithinSchedule(rule.Conditions, at)
	if err != nil {
		m.log.Warn("rule has invalid schedule", "rule_id", rule.ID.Hex(), "error", err)
		return skip("invalid_schedule")
	}
	if !ok {
		return skip("schedule")
	}
	if !MatchAudience(rule.Conditions, event.UserMeta) {
		return skip("audience")
	}

	reserved, err := m.limiter.Reserve(ctx, rule, event.SenderID, at)
	if err != nil {
		m.log.Error("rate limiter unavailable", "rule_id", rule.ID.Hex(), "error", err)
		out.Status = StatusFailed
		out.Err = err
		return out
	}
	if !reserved {
		return skip("rate_limited")
	}

	actionErr := m.execute(ctx, actions, rule, event)
	m.record(ctx, rule, event, actionErr)
	m.metrics.RecordAutomationExecution(string(rule.ActionType), actionErr == nil)

	if actionErr != nil {
		if err := m.limiter.Refund(ctx, rule, event.SenderID, at); err != nil {
			m.log.Error("failed to refund rate limit", "rule_id", rule.ID.Hex(), "error", err)
		}
		m.log.Warn("automation action failed",
			"rule_id", rule.ID.Hex(),
			"action", rule.ActionType,
			"reason", graph.ReasonOf(actionErr),
			"error", actionErr,
		)
		out.Status = StatusFailed
		out.Err = actionErr
		return out
	}

	if err := m.recorder.IncrementExecutionCount(ctx, rule.ID, m.now()); err != nil {
		m.log.Error("failed to increment execution count", "rule_id", rule.ID.Hex(), "error", err)
	}
	m.log.Info("automation fired", "rule_id", rule.ID.Hex(), "action", rule.ActionType, "sender_id", event.SenderID)
	out.Status = StatusFired
	return out
}

func (m *Matcher) execute(ctx context.Context, actions Actions, rule *models.AutomationRule, event models.InstagramEvent) error {
	switch rule.ActionType {
	case models.ActionReplyComment:
		if event.CommentID == "" {
			return &graph.Error{Op: "reply to comment", Reason: graph.ReasonValidation, Message: "event has no comment id"}
		}
		_, err := actions.ReplyToComment(ctx, event.CommentID, rule.ResponseMessage)
		return err

	case models.ActionLikeComment:
		if event.CommentID == "" {
			return &graph.Error{Op: "like comment", Reason: graph.ReasonValidation, Message: "event has no comment id"}
		}
		return actions.LikeComment(ctx, event.CommentID)

	case models.ActionSendDM, models.ActionSendStoryReply:
		to := graph.Recipient{ID: event.SenderID}
		if event.Type == models.TriggerComment && event.CommentID != "" {
			to = graph.Recipient{CommentID: event.CommentID}
		}
		_, err := actions.SendDirectMessage(ctx, event.AccountID, to, rule.ResponseMessage)
		return err

	case models.ActionFollowUser:
		return actions.FollowUser(ctx, event.AccountID, event.SenderID)
	}

	return &graph.Error{Op: "run automation", Reason: graph.ReasonValidation, Message: "unknown action " + string(rule.ActionType)}
}

func (m *Matcher) record(ctx context.Context, rule *models.AutomationRule, event models.InstagramEvent, actionErr error) {
	entry := &models.ExecutionLog{
		RuleID:      rule.ID,
		RuleName:    rule.Name,
		AccountID:   rule.AccountID,
		TriggerType: event.Type,
		ActionType:  rule.ActionType,
		SenderID:    event.SenderID,
		TriggerText: event.Text,
		Success:     actionErr == nil,
		ExecutedAt:  m.now(),
	}
	if actionErr != nil {
		entry.Error = actionErr.Error()
		entry.ErrorReason = string(graph.ReasonOf(actionErr))
	}

	if err := m.recorder.InsertLog(ctx, entry); err != nil {
		m.log.Error("failed to write execution log", "rule_id", rule.ID.Hex(), "error", err)
	}
}
