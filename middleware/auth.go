package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"sociohiro-backend/internal/auth"
	"sociohiro-backend/internal/logger"
	"sociohiro-backend/internal/store"
	"sociohiro-backend/models"
	"sociohiro-backend/utils"
)

// SessionStore is the part of the store the auth middleware needs.
type SessionStore interface {
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)
	TouchSession(ctx context.Context, sessionID string, at time.Time) error
}

type AuthMiddleware struct {
	tokens   *auth.Manager
	sessions SessionStore
	secure   bool
}

func NewAuthMiddleware(tokens *auth.Manager, sessions SessionStore, secureCookies bool) *AuthMiddleware {
	return &AuthMiddleware{
		tokens:   tokens,
		sessions: sessions,
		secure:   secureCookies,
	}
}

// SetTokenCookies writes the token pair as http-only cookies.
func SetTokenCookies(c *gin.Context, pair *auth.TokenPair, secure bool) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie("access_token", pair.AccessToken, int(auth.AccessTTL.Seconds()), "/", "", secure, true)
	c.SetCookie("refresh_token", pair.RefreshToken, int(auth.RefreshTTL.Seconds()), "/", "", secure, true)
}

// ClearTokenCookies expires both token cookies.
func ClearTokenCookies(c *gin.Context, secure bool) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie("access_token", "", -1, "/", "", secure, true)
	c.SetCookie("refresh_token", "", -1, "/", "", secure, true)
}

func accessTokenFrom(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		if token := utils.ExtractTokenFromHeader(header); token != "" {
			return token
		}
	}
	if cookie, err := c.Cookie("access_token"); err == nil {
		return cookie
	}
	return ""
}

func (a *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		tokenString := accessTokenFrom(c)
		if tokenString == "" {
			utils.RespondWithUnauthorized(c, "Authentication token is required")
			c.Abort()
			return
		}

		claims, err := a.tokens.ValidateAccessToken(ctx, tokenString)
		if err != nil {
			claims = a.tryRefresh(c)
		}
		if claims == nil {
			utils.RespondWithError(c, http.StatusUnauthorized, "session_expired",
				"Your session has expired. Please log in again.", nil)
			c.Abort()
			return
		}

		// A session removed by eviction or logout invalidates its tokens.
		if _, err := a.sessions.GetSession(ctx, claims.SessionID); err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				logger.Error("session lookup failed", "session_id", claims.SessionID, "error", err)
			}
			utils.RespondWithError(c, http.StatusUnauthorized, "session_revoked",
				"This session is no longer active. Please log in again.", nil)
			c.Abort()
			return
		}
		if err := a.sessions.TouchSession(ctx, claims.SessionID, time.Now()); err != nil {
			logger.Warn("failed to touch session", "session_id", claims.SessionID, "error", err)
		}

		c.Set("account_id", claims.AccountID)
		c.Set("session_id", claims.SessionID)
		c.Set("claims", claims)
		c.Next()
	}
}

// tryRefresh rotates the refresh cookie into a new token pair.
func (a *AuthMiddleware) tryRefresh(c *gin.Context) *auth.Claims {
	refreshToken, err := c.Cookie("refresh_token")
	if err != nil || refreshToken == "" {
		return nil
	}
	ctx := c.Request.Context()

	refreshClaims, err := a.tokens.ValidateRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil
	}
	if err := a.tokens.RevokeToken(ctx, refreshClaims.ID, true); err != nil {
		logger.Warn("failed to revoke refresh token", "error", err)
	}

	pair, err := a.tokens.IssueTokenPair(ctx, refreshClaims.AccountID, refreshClaims.SessionID)
	if err != nil {
		logger.Error("failed to issue token pair", "error", err)
		return nil
	}
	SetTokenCookies(c, pair, a.secure)

	claims, err := a.tokens.ValidateAccessToken(ctx, pair.AccessToken)
	if err != nil {
		return nil
	}
	return claims
}

// GetAccountID returns the authenticated business account.
func GetAccountID(c *gin.Context) string {
	return c.GetString("account_id")
}

// GetSessionID returns the session of the authenticated request.
func GetSessionID(c *gin.Context) string {
	return c.GetString("session_id")
}

// GetClaims returns the validated token claims, if any.
func GetClaims(c *gin.Context) *auth.Claims {
	if v, ok := c.Get("claims"); ok {
		if claims, ok := v.(*auth.Claims); ok {
			return claims
		}
	}
	return nil
}
