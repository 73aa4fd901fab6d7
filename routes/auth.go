package routes

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"sociohiro-backend/internal/auth"
	"sociohiro-backend/internal/config"
	"sociohiro-backend/internal/graph"
	"sociohiro-backend/internal/store"
	"sociohiro-backend/middleware"
	"sociohiro-backend/models"
	"sociohiro-backend/utils"
)

// OAuthProvider performs the Facebook login exchanges.
type OAuthProvider interface {
	AuthURL(state string) string
	ExchangeCode(ctx context.Context, code string) (string, error)
	LongLivedToken(ctx context.Context, token string) (string, time.Time, error)
}

// PagesFunc lists the pages a freshly issued user token manages.
type PagesFunc func(ctx context.Context, token string) ([]graph.Page, error)

// AccountStore persists linked credentials and dashboard sessions.
type AccountStore interface {
	SaveCredential(ctx context.Context, cred *models.InstagramCredential, token string) error
	CreateSession(ctx context.Context, sess *models.Session, maxSessions int) ([]string, error)
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)
	ListSessions(ctx context.Context, accountID string) ([]models.Session, error)
	DeleteSession(ctx context.Context, accountID, sessionID string) error
}

type AuthDeps struct {
	OAuth    OAuthProvider
	Pages    PagesFunc
	Accounts AccountStore
	Tokens   *auth.Manager
	States   auth.JTIStore
}

type authHandlers struct {
	cfg    *config.Config
	deps   AuthDeps
	secure bool
}

func SetupAuthRoutes(router *gin.Engine, cfg *config.Config, deps AuthDeps, authMiddleware *middleware.AuthMiddleware) {
	h := &authHandlers{cfg: cfg, deps: deps, secure: cfg.GinMode == gin.ReleaseMode}

	authGroup := router.Group("/auth")
	authGroup.GET("/instagram", h.login)
	authGroup.GET("/instagram/callback", h.callback)
	authGroup.POST("/refresh", h.refresh)

	protected := authGroup.Group("", authMiddleware.RequireAuth())
	protected.POST("/logout", h.logout)
	protected.GET("/me", h.me)
	protected.GET("/sessions", h.listSessions)
	protected.DELETE("/sessions/:id", h.deleteSession)
}

func (h *authHandlers) login(c *gin.Context) {
	state, err := auth.NewOAuthState(c.Request.Context(), h.deps.States)
	if err != nil {
		middleware.Log(c).Error("failed to create oauth state", "error", err)
		utils.RespondWithInternalError(c, "Failed to start login", nil)
		return
	}
	c.Redirect(http.StatusFound, h.deps.OAuth.AuthURL(state))
}

// frontendRedirect sends the browser back to the dashboard with a status.
func (h *authHandlers) frontendRedirect(c *gin.Context, params url.Values) {
	target := h.cfg.FrontendURL + "/auth/callback"
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	c.Redirect(http.StatusFound, target)
}

func (h *authHandlers) fail(c *gin.Context, code string, err error) {
	middleware.Log(c).Warn("instagram login failed", "error_code", code, "error", err)
	h.frontendRedirect(c, url.Values{"error": {code}})
}

func (h *authHandlers) callback(c *gin.Context) {
	ctx := c.Request.Context()

	if denied := c.Query("error"); denied != "" {
		h.fail(c, "access_denied", errors.New(c.Query("error_description")))
		return
	}
	if !auth.ConsumeOAuthState(ctx, h.deps.States, c.Query("state")) {
		h.fail(c, "invalid_state", nil)
		return
	}

	shortToken, err := h.deps.OAuth.ExchangeCode(ctx, c.Query("code"))
	if err != nil {
		h.fail(c, "exchange_failed", err)
		return
	}
	token, expiresAt, err := h.deps.OAuth.LongLivedToken(ctx, shortToken)
	if err != nil {
		h.fail(c, "exchange_failed", err)
		return
	}

	pages, err := h.deps.Pages(ctx, token)
	if err != nil {
		h.fail(c, "pages_unavailable", err)
		return
	}
	var page *graph.Page
	for i := range pages {
		if pages[i].Linked() {
			page = &pages[i]
			break
		}
	}
	if page == nil {
		h.fail(c, "not_linked", errors.New("no page with an instagram business account"))
		return
	}

	now := time.Now().UTC()
	cred := &models.InstagramCredential{
		AccountID:   page.InstagramBusinessAccount.ID,
		PageID:      page.ID,
		PageName:    page.Name,
		Username:    page.InstagramBusinessAccount.Username,
		ExpiresAt:   expiresAt,
		RefreshedAt: &now,
	}
	if err := h.deps.Accounts.SaveCredential(ctx, cred, token); err != nil {
		h.fail(c, "internal_error", err)
		return
	}

	sess, err := h.startSession(c, cred.AccountID, now)
	if err != nil {
		h.fail(c, "internal_error", err)
		return
	}

	middleware.Log(c).Info("instagram account linked",
		"account_id", cred.AccountID,
		"username", cred.Username,
		"session_id", sess.SessionID,
	)
	h.frontendRedirect(c, url.Values{"status": {"connected"}})
}

// startSession records a session, evicting the oldest ones over the
// limit, and sets the token cookies.
func (h *authHandlers) startSession(c *gin.Context, accountID string, now time.Time) (*models.Session, error) {
	ctx := c.Request.Context()
	ua := utils.GetUserAgent(c.Request)
	sess := &models.Session{
		SessionID:    uuid.NewString(),
		AccountID:    accountID,
		Browser:      utils.BrowserFamily(ua),
		Platform:     utils.Platform(ua),
		IPAddress:    utils.GetClientIP(c.Request),
		UserAgent:    ua,
		LastActivity: now,
		CreatedAt:    now,
	}

	evicted, err := h.deps.Accounts.CreateSession(ctx, sess, h.cfg.MaxConcurrentSessions)
	if err != nil {
		return nil, err
	}
	if len(evicted) > 0 {
		middleware.Log(c).Info("evicted sessions over limit", "account_id", accountID, "count", len(evicted))
	}

	pair, err := h.deps.Tokens.IssueTokenPair(ctx, accountID, sess.SessionID)
	if err != nil {
		return nil, err
	}
	middleware.SetTokenCookies(c, pair, h.secure)
	return sess, nil
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *authHandlers) refresh(c *gin.Context) {
	ctx := c.Request.Context()

	token, _ := c.Cookie("refresh_token")
	if token == "" {
		var req refreshRequest
		if err := c.ShouldBindJSON(&req); err == nil {
			token = req.RefreshToken
		}
	}
	if token == "" {
		utils.RespondWithUnauthorized(c, "Refresh token is required")
		return
	}

	claims, err := h.deps.Tokens.ValidateRefreshToken(ctx, token)
	if err != nil {
		utils.RespondWithError(c, http.StatusUnauthorized, "refresh_token_expired", "Refresh token is invalid or expired", nil)
		return
	}
	if _, err := h.deps.Accounts.GetSession(ctx, claims.SessionID); err != nil {
		utils.RespondWithError(c, http.StatusUnauthorized, "session_revoked", "This session is no longer active", nil)
		return
	}

	// Refresh tokens are single use.
	if err := h.deps.Tokens.RevokeToken(ctx, claims.ID, true); err != nil {
		middleware.Log(c).Warn("failed to revoke refresh token", "error", err)
	}
	pair, err := h.deps.Tokens.IssueTokenPair(ctx, claims.AccountID, claims.SessionID)
	if err != nil {
		middleware.Log(c).Error("failed to issue token pair", "error", err)
		utils.RespondWithError(c, http.StatusInternalServerError, "token_refresh_failed", "Failed to refresh session", nil)
		return
	}
	middleware.SetTokenCookies(c, pair, h.secure)
	c.JSON(http.StatusOK, pair)
}

func (h *authHandlers) logout(c *gin.Context) {
	ctx := c.Request.Context()
	accountID := middleware.GetAccountID(c)

	if claims := middleware.GetClaims(c); claims != nil {
		h.deps.Tokens.RevokeToken(ctx, claims.ID, false)
	}
	if refresh, err := c.Cookie("refresh_token"); err == nil && refresh != "" {
		if rc, err := h.deps.Tokens.ValidateRefreshToken(ctx, refresh); err == nil {
			h.deps.Tokens.RevokeToken(ctx, rc.ID, true)
		}
	}
	if err := h.deps.Accounts.DeleteSession(ctx, accountID, middleware.GetSessionID(c)); err != nil && !errors.Is(err, store.ErrNotFound) {
		middleware.Log(c).Error("failed to delete session", "error", err)
	}

	middleware.ClearTokenCookies(c, h.secure)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

func (h *authHandlers) me(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"account_id": middleware.GetAccountID(c),
		"session_id": middleware.GetSessionID(c),
	})
}

func (h *authHandlers) listSessions(c *gin.Context) {
	sessions, err := h.deps.Accounts.ListSessions(c.Request.Context(), middleware.GetAccountID(c))
	if err != nil {
		middleware.Log(c).Error("failed to list sessions", "error", err)
		utils.RespondWithInternalError(c, "Failed to list sessions", nil)
		return
	}
	current := middleware.GetSessionID(c)
	for i := range sessions {
		sessions[i].IsCurrent = sessions[i].SessionID == current
	}
	if sessions == nil {
		sessions = []models.Session{}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions, "max_sessions": h.cfg.MaxConcurrentSessions})
}

func (h *authHandlers) deleteSession(c *gin.Context) {
	target := c.Param("id")
	err := h.deps.Accounts.DeleteSession(c.Request.Context(), middleware.GetAccountID(c), target)
	if errors.Is(err, store.ErrNotFound) {
		utils.RespondWithNotFound(c, "Session not found")
		return
	}
	if err != nil {
		middleware.Log(c).Error("failed to delete session", "error", err)
		utils.RespondWithInternalError(c, "Failed to delete session", nil)
		return
	}
	if target == middleware.GetSessionID(c) {
		middleware.ClearTokenCookies(c, h.secure)
	}
	c.JSON(http.StatusOK, gin.H{"message": "Session revoked"})
}
