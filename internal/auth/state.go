package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"
)

const stateTTL = 10 * time.Minute

// NewOAuthState creates and records a single-use OAuth state value.
func NewOAuthState(ctx context.Context, jtis JTIStore) (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	state := hex.EncodeToString(buf)
	if err := jtis.Set(ctx, "oauth_state:"+state, "1", stateTTL); err != nil {
		return "", err
	}
	return state, nil
}

// ConsumeOAuthState reports whether state was issued and invalidates it.
func ConsumeOAuthState(ctx context.Context, jtis JTIStore, state string) bool {
	if state == "" {
		return false
	}
	key := "oauth_state:" + state
	ok, err := jtis.Exists(ctx, key)
	if err != nil || !ok {
		return false
	}
	return jtis.Delete(ctx, key) == nil
}
