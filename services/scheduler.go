package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"sociohiro-backend/internal/logger"
	"sociohiro-backend/models"
)

const (
	refreshHorizon  = 7 * 24 * time.Hour
	sweepInterval   = 15 * time.Minute
	maintenanceTime = 5 * time.Minute
)

// CredentialStore is what the token refresh job reads and writes.
type CredentialStore interface {
	ExpiringCredentials(ctx context.Context, before time.Time) ([]models.InstagramCredential, error)
	DecryptToken(cred *models.InstagramCredential) (string, error)
	SaveCredential(ctx context.Context, cred *models.InstagramCredential, token string) error
}

// TokenRefresher exchanges a long-lived token for a fresh one.
type TokenRefresher interface {
	LongLivedToken(ctx context.Context, token string) (string, time.Time, error)
}

// SessionSweeper removes idle dashboard sessions.
type SessionSweeper interface {
	DeleteIdleSessions(ctx context.Context, before time.Time) (int64, error)
}

// Scheduler runs the periodic maintenance jobs.
type Scheduler struct {
	scheduler   *gocron.Scheduler
	credentials CredentialStore
	refresher   TokenRefresher
	sessions    SessionSweeper
	idleTimeout time.Duration
	now         func() time.Time
	log         *slog.Logger
	ctx         context.Context
	cancel      context.CancelFunc
}

func NewScheduler(credentials CredentialStore, refresher TokenRefresher, sessions SessionSweeper, idleTimeout time.Duration) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()
	s.SingletonModeAll()

	return &Scheduler{
		scheduler:   s,
		credentials: credentials,
		refresher:   refresher,
		sessions:    sessions,
		idleTimeout: idleTimeout,
		now:         time.Now,
		log:         logger.With("component", "scheduler"),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start registers the jobs and starts the scheduler in the background.
func (s *Scheduler) Start(refreshCron string) error {
	if _, err := s.scheduler.Cron(refreshCron).Tag("token-refresh").Do(s.runRefresh); err != nil {
		return fmt.Errorf("schedule token refresh: %w", err)
	}
	if _, err := s.scheduler.Every(sweepInterval).Tag("session-sweep").Do(s.runSweep); err != nil {
		return fmt.Errorf("schedule session sweep: %w", err)
	}
	s.scheduler.StartAsync()
	s.log.Info("scheduler started", "refresh_cron", refreshCron, "sweep_interval", sweepInterval.String())
	return nil
}

func (s *Scheduler) Stop() {
	s.scheduler.Stop()
	s.cancel()
}

func (s *Scheduler) runRefresh() {
	ctx, cancel := context.WithTimeout(s.ctx, maintenanceTime)
	defer cancel()
	if _, err := s.RefreshCredentials(ctx); err != nil {
		s.log.Error("token refresh run failed", "error", err)
	}
}

func (s *Scheduler) runSweep() {
	ctx, cancel := context.WithTimeout(s.ctx, maintenanceTime)
	defer cancel()
	if _, err := s.SweepSessions(ctx); err != nil {
		s.log.Error("session sweep failed", "error", err)
	}
}

// RefreshCredentials renews every credential expiring within a week and
// returns how many were renewed. One failing account does not stop the run.
func (s *Scheduler) RefreshCredentials(ctx context.Context) (int, error) {
	now := s.now().UTC()
	creds, err := s.credentials.ExpiringCredentials(ctx, now.Add(refreshHorizon))
	if err != nil {
		return 0, fmt.Errorf("load expiring credentials: %w", err)
	}

	refreshed := 0
	for i := range creds {
		cred := &creds[i]
		log := s.log.With("account_id", cred.AccountID)

		token, err := s.credentials.DecryptToken(cred)
		if err != nil {
			log.Error("failed to decrypt token", "error", err)
			continue
		}
		fresh, expiresAt, err := s.refresher.LongLivedToken(ctx, token)
		if err != nil {
			log.Warn("failed to refresh token", "error", err, "expires_at", cred.ExpiresAt)
			continue
		}

		cred.ExpiresAt = expiresAt
		cred.RefreshedAt = &now
		if err := s.credentials.SaveCredential(ctx, cred, fresh); err != nil {
			log.Error("failed to store refreshed token", "error", err)
			continue
		}
		refreshed++
	}

	s.log.Info("token refresh finished", "candidates", len(creds), "refreshed", refreshed)
	return refreshed, nil
}

// SweepSessions deletes sessions idle for longer than the idle timeout.
func (s *Scheduler) SweepSessions(ctx context.Context) (int64, error) {
	n, err := s.sessions.DeleteIdleSessions(ctx, s.now().Add(-s.idleTimeout))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("idle sessions removed", "count", n)
	}
	return n, nil
}
