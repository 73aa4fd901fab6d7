package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"sociohiro-backend/internal/automation"
	"sociohiro-backend/internal/graph"
	"sociohiro-backend/internal/logger"
	"sociohiro-backend/internal/store"
	"sociohiro-backend/models"
)

const (
	TaskAutomationEvent = "automation:event"
	TaskPublishMedia    = "media:publish"
)

type PublishPayload struct {
	AccountID   string `json:"account_id"`
	ContainerID string `json:"container_id"`
}

// Task creators
func NewAutomationEventTask(event models.InstagramEvent) (*asynq.Task, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}

	opts := []asynq.Option{
		asynq.MaxRetry(3),
		asynq.Timeout(2 * time.Minute),
		asynq.Queue("critical"),
	}
	if event.ID != "" {
		// Instagram redelivers webhooks; the task ID drops duplicates.
		opts = append(opts, asynq.TaskID(TaskAutomationEvent+":"+event.ID))
	}
	return asynq.NewTask(TaskAutomationEvent, payload, opts...), nil
}

func NewPublishTask(accountID, containerID string) (*asynq.Task, error) {
	payload, err := json.Marshal(PublishPayload{
		AccountID:   accountID,
		ContainerID: containerID,
	})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskPublishMedia,
		payload,
		asynq.MaxRetry(5),
		asynq.Timeout(time.Minute),
		asynq.Queue("default"),
		asynq.ProcessIn(30*time.Second),
	), nil
}

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Dispatcher hands work to the worker process.
type Dispatcher struct {
	client Enqueuer
}

func NewDispatcher(client Enqueuer) *Dispatcher {
	return &Dispatcher{client: client}
}

// DispatchEvent enqueues one webhook event. A redelivered event is not an error.
func (d *Dispatcher) DispatchEvent(ctx context.Context, event models.InstagramEvent) error {
	task, err := NewAutomationEventTask(event)
	if err != nil {
		return err
	}
	if _, err := d.client.EnqueueContext(ctx, task); err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		return fmt.Errorf("enqueue event: %w", err)
	}
	return nil
}

// DispatchPublish schedules a retry of the publish step for a container.
func (d *Dispatcher) DispatchPublish(ctx context.Context, accountID, containerID string) error {
	task, err := NewPublishTask(accountID, containerID)
	if err != nil {
		return err
	}
	if _, err := d.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("enqueue publish: %w", err)
	}
	return nil
}

// GraphClient is what the worker needs from a Graph API client.
type GraphClient interface {
	automation.Actions
	PublishContainer(ctx context.Context, accountID, containerID string) (string, error)
}

type TokenSource interface {
	AccessToken(ctx context.Context, accountID string) (string, error)
}

type RuleSource interface {
	ActiveRules(ctx context.Context, accountID string, trigger models.TriggerType) ([]models.AutomationRule, error)
}

// Task handlers
type TaskProcessor struct {
	tokens    TokenSource
	rules     RuleSource
	matcher   *automation.Matcher
	newClient func(token string) (GraphClient, error)
	log       *slog.Logger
}

func NewTaskProcessor(tokens TokenSource, rules RuleSource, matcher *automation.Matcher, newClient func(token string) (GraphClient, error)) *TaskProcessor {
	return &TaskProcessor{
		tokens:    tokens,
		rules:     rules,
		matcher:   matcher,
		newClient: newClient,
		log:       logger.With("component", "worker"),
	}
}

func (p *TaskProcessor) client(ctx context.Context, accountID string) (GraphClient, error) {
	token, err := p.tokens.AccessToken(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("account %s is not connected: %w", accountID, asynq.SkipRetry)
		}
		return nil, err
	}
	client, err := p.newClient(token)
	if err != nil {
		return nil, fmt.Errorf("build client: %v: %w", err, asynq.SkipRetry)
	}
	return client, nil
}

// HandleAutomationEvent runs the matcher for one event. Action failures are
// recorded in the execution log and never retried here, since a retry would
// fire the rules that already succeeded a second time.
func (p *TaskProcessor) HandleAutomationEvent(ctx context.Context, t *asynq.Task) error {
	var event models.InstagramEvent
	if err := json.Unmarshal(t.Payload(), &event); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	client, err := p.client(ctx, event.AccountID)
	if err != nil {
		return err
	}

	rules, err := p.rules.ActiveRules(ctx, event.AccountID, event.Type)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	if len(rules) == 0 {
		return nil
	}

	outcomes := p.matcher.Process(ctx, client, event, rules)

	fired, failed := 0, 0
	for _, o := range outcomes {
		switch o.Status {
		case automation.StatusFired:
			fired++
		case automation.StatusFailed:
			failed++
		}
	}
	p.log.Info("event processed",
		"account_id", event.AccountID,
		"type", event.Type,
		"candidates", len(rules),
		"fired", fired,
		"failed", failed,
	)
	return nil
}

// HandlePublish retries the publish step of a container.
func (p *TaskProcessor) HandlePublish(ctx context.Context, t *asynq.Task) error {
	var payload PublishPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	client, err := p.client(ctx, payload.AccountID)
	if err != nil {
		return err
	}

	mediaID, err := client.PublishContainer(ctx, payload.AccountID, payload.ContainerID)
	if err != nil {
		if graph.IsRetryable(err) {
			return err
		}
		p.log.Error("container publish failed permanently",
			"account_id", payload.AccountID,
			"container_id", payload.ContainerID,
			"reason", graph.ReasonOf(err),
			"error", err,
		)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	p.log.Info("container published", "account_id", payload.AccountID, "container_id", payload.ContainerID, "media_id", mediaID)
	return nil
}
