package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"sociohiro-backend/models"
)

type fakeCredentials struct {
	expiring []models.InstagramCredential
	saved    map[string]string
	before   time.Time
}

func (f *fakeCredentials) ExpiringCredentials(_ context.Context, before time.Time) ([]models.InstagramCredential, error) {
	f.before = before
	return f.expiring, nil
}

func (f *fakeCredentials) DecryptToken(cred *models.InstagramCredential) (string, error) {
	if cred.EncryptedToken == "" {
		return "", errors.New("missing token")
	}
	return "plain-" + cred.EncryptedToken, nil
}

func (f *fakeCredentials) SaveCredential(_ context.Context, cred *models.InstagramCredential, token string) error {
	f.saved[cred.AccountID] = token
	return nil
}

type fakeRefresher struct {
	fail map[string]bool
	exp  time.Time
}

func (f *fakeRefresher) LongLivedToken(_ context.Context, token string) (string, time.Time, error) {
	if f.fail[token] {
		return "", time.Time{}, errors.New("Failed to exchange token: expired")
	}
	return "fresh-" + token, f.exp, nil
}

type fakeSweeper struct {
	before time.Time
	n      int64
}

func (f *fakeSweeper) DeleteIdleSessions(_ context.Context, before time.Time) (int64, error) {
	f.before = before
	return f.n, nil
}

func TestRefreshCredentials(t *testing.T) {
	now := time.Date(2024, 3, 1, 3, 0, 0, 0, time.UTC)
	creds := &fakeCredentials{
		expiring: []models.InstagramCredential{
			{AccountID: "a", EncryptedToken: "ta"},
			{AccountID: "b", EncryptedToken: "tb"},
			{AccountID: "c"},
		},
		saved: map[string]string{},
	}
	refresher := &fakeRefresher{fail: map[string]bool{"plain-tb": true}, exp: now.Add(60 * 24 * time.Hour)}

	s := NewScheduler(creds, refresher, &fakeSweeper{}, time.Hour)
	s.now = func() time.Time { return now }

	n, err := s.RefreshCredentials(context.Background())
	if err != nil {
		t.Fatalf("RefreshCredentials() error = %v", err)
	}
	if n != 1 {
		t.Errorf("refreshed = %d, want 1", n)
	}
	if creds.saved["a"] != "fresh-plain-ta" {
		t.Errorf("saved token = %q", creds.saved["a"])
	}
	if _, ok := creds.saved["b"]; ok {
		t.Error("failed refresh must not overwrite the stored token")
	}
	if !creds.before.Equal(now.Add(7 * 24 * time.Hour)) {
		t.Errorf("horizon = %v", creds.before)
	}
}

func TestSweepSessions(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	sweeper := &fakeSweeper{n: 3}
	s := NewScheduler(&fakeCredentials{}, &fakeRefresher{}, sweeper, 2*time.Hour)
	s.now = func() time.Time { return now }

	n, err := s.SweepSessions(context.Background())
	if err != nil {
		t.Fatalf("SweepSessions() error = %v", err)
	}
	if n != 3 {
		t.Errorf("removed = %d, want 3", n)
	}
	if !sweeper.before.Equal(now.Add(-2 * time.Hour)) {
		t.Errorf("cutoff = %v", sweeper.before)
	}
}

func TestStartRejectsBadCron(t *testing.T) {
	s := NewScheduler(&fakeCredentials{}, &fakeRefresher{}, &fakeSweeper{}, time.Hour)
	defer s.Stop()

	if err := s.Start("not a cron"); err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}
