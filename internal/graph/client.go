// Package graph wraps the Instagram Graph API. Each Client holds one access
// token; every method performs its upstream call(s) and returns *Error on
// failure. The client never retries: callers decide using Error.Retryable.
package graph

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/huandu/facebook"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"sociohiro-backend/internal/logger"
	"sociohiro-backend/internal/telemetry"
)

const (
	// APIVersion pins every call; field names are validated against it.
	APIVersion = "v18.0"
	// BaseURL is the versioned Graph API endpoint.
	BaseURL = "https://graph.facebook.com/" + APIVersion

	DefaultTimeout    = 30 * time.Second
	DefaultMediaLimit = 25

	defaultRPS   = 5
	defaultBurst = 10
)

type Client struct {
	accessToken string
	app         *facebook.App
	transport   http.RoundTripper
	timeout     time.Duration
	guard       *Guard
	metrics     *telemetry.Metrics
	log         *slog.Logger
}

type Option func(*Client)

// WithHTTPClient routes requests through hc's transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil && hc.Transport != nil {
			c.transport = hc.Transport
		}
	}
}

// WithTimeout bounds each upstream call. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithAppSecretProof signs every call with appsecret_proof.
func WithAppSecretProof(appID, appSecret string) Option {
	return func(c *Client) {
		if appID == "" || appSecret == "" {
			return
		}
		app := facebook.New(appID, appSecret)
		app.EnableAppsecretProof = true
		c.app = app
	}
}

// WithGuard shares a breaker and limiter across clients. Without it each
// client gets its own guard at the default rate.
func WithGuard(g *Guard) Option {
	return func(c *Client) {
		c.guard = g
	}
}

// WithMetrics records call counts and durations.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient creates a client for one access token.
func NewClient(accessToken string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, ErrEmptyToken
	}

	c := &Client{
		accessToken: accessToken,
		transport:   http.DefaultTransport,
		timeout:     DefaultTimeout,
		log:         logger.With("component", "graph"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.guard == nil {
		c.guard = NewGuard(defaultRPS, defaultBurst, c.metrics)
	}

	return c, nil
}

// statusRecorder keeps the HTTP status of the last response.
type statusRecorder struct {
	status int
}

// contextTransport binds a request to the caller's context and records its status.
type contextTransport struct {
	ctx  context.Context
	base http.RoundTripper
	rec  *statusRecorder
}

func (t *contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req.WithContext(t.ctx))
	if resp != nil {
		t.rec.status = resp.StatusCode
	}
	return resp, err
}

func (c *Client) session(ctx context.Context, rec *statusRecorder) *facebook.Session {
	var session *facebook.Session
	if c.app != nil {
		session = c.app.Session(c.accessToken)
	} else {
		session = &facebook.Session{}
		session.SetAccessToken(c.accessToken)
	}
	session.Version = APIVersion
	session.HttpClient = &http.Client{
		Transport: &contextTransport{ctx: ctx, base: c.transport, rec: rec},
	}
	return session
}

// call performs one Graph API request under the limiter, breaker and timeout.
func (c *Client) call(ctx context.Context, op string, method facebook.Method, path string, params facebook.Params) (facebook.Result, error) {
	tracer := otel.Tracer("graph-client")
	ctx, span := tracer.Start(ctx, "graph."+strings.ReplaceAll(op, " ", "_"))
	defer span.End()
	span.SetAttributes(
		attribute.String("graph.method", string(method)),
		attribute.String("graph.path", path),
	)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	fail := func(gerr *Error) (facebook.Result, error) {
		span.RecordError(gerr)
		span.SetStatus(codes.Error, string(gerr.Reason))
		span.SetAttributes(
			attribute.String("graph.reason", string(gerr.Reason)),
			attribute.Int("graph.status_code", gerr.StatusCode),
		)
		c.metrics.RecordGraphCall(op, string(gerr.Reason), time.Since(start).Seconds())
		c.log.Warn("graph api call failed",
			"op", op,
			"path", path,
			"reason", gerr.Reason,
			"status", gerr.StatusCode,
			"code", gerr.Code,
			"error", gerr.Message,
		)
		return nil, gerr
	}

	if err := c.guard.limiter.Wait(ctx); err != nil {
		return fail(&Error{
			Op:      op,
			Reason:  ReasonRateLimited,
			Message: "local rate limit wait exceeded deadline",
			Err:     err,
		})
	}

	rec := &statusRecorder{}
	result, err := c.guard.breaker.Execute(func() (interface{}, error) {
		res, err := c.session(ctx, rec).Api(path, method, params)
		if err != nil {
			return nil, classify(ctx, op, rec.status, err)
		}
		return res, nil
	})
	if err != nil {
		var gerr *Error
		if !errors.As(err, &gerr) {
			gerr = classify(ctx, op, rec.status, err)
		}
		return fail(gerr)
	}

	span.SetAttributes(attribute.Int("graph.status_code", rec.status))
	c.metrics.RecordGraphCall(op, "", time.Since(start).Seconds())
	return result.(facebook.Result), nil
}

func validationError(op, message string) *Error {
	return &Error{Op: op, Reason: ReasonValidation, Message: message}
}

func decodeError(op string, err error) *Error {
	return &Error{
		Op:         op,
		Reason:     ReasonUnknown,
		StatusCode: http.StatusOK,
		Message:    "unexpected response: " + err.Error(),
		Err:        err,
	}
}

// decodeList decodes the "data" array of an edge response.
func decodeList(op string, res facebook.Result, out interface{}) error {
	if res.Get("data") == nil {
		return nil
	}
	if err := res.DecodeField("data", out); err != nil {
		return decodeError(op, err)
	}
	return nil
}

// GetPages lists the pages the token manages with their linked business accounts.
func (c *Client) GetPages(ctx context.Context) ([]Page, error) {
	const op = "fetch pages"
	res, err := c.call(ctx, op, facebook.GET, "/me/accounts", facebook.Params{
		"fields": "id,name,instagram_business_account{id,username}",
	})
	if err != nil {
		return nil, err
	}

	pages := []Page{}
	if err := decodeList(op, res, &pages); err != nil {
		return nil, err
	}
	return pages, nil
}

// GetInstagramBusinessAccount resolves the business account linked to pageID.
// A page without one fails with ReasonNotLinked.
func (c *Client) GetInstagramBusinessAccount(ctx context.Context, pageID string) (string, error) {
	const op = "get Instagram business account"
	if pageID == "" {
		return "", validationError(op, "page id is required")
	}

	res, err := c.call(ctx, op, facebook.GET, "/"+pageID, facebook.Params{
		"fields": "instagram_business_account",
	})
	if err != nil {
		return "", err
	}

	var page Page
	if err := res.Decode(&page); err != nil {
		return "", decodeError(op, err)
	}
	if !page.Linked() {
		return "", &Error{
			Op:         op,
			Reason:     ReasonNotLinked,
			StatusCode: http.StatusOK,
			Message:    "No Instagram business account found for this page",
		}
	}
	return page.InstagramBusinessAccount.ID, nil
}

// GetInstagramAccountInfo fetches the profile of a business account.
func (c *Client) GetInstagramAccountInfo(ctx context.Context, accountID string) (*AccountInfo, error) {
	const op = "get Instagram account info"
	if accountID == "" {
		return nil, validationError(op, "account id is required")
	}

	res, err := c.call(ctx, op, facebook.GET, "/"+accountID, facebook.Params{
		"fields": accountFields,
	})
	if err != nil {
		return nil, err
	}

	var info AccountInfo
	if err := res.Decode(&info); err != nil {
		return nil, decodeError(op, err)
	}
	return &info, nil
}

// GetMedia returns at most limit media objects, newest first as Instagram
// orders them. limit <= 0 means DefaultMediaLimit. No pagination.
func (c *Client) GetMedia(ctx context.Context, accountID string, limit int) ([]Media, error) {
	const op = "get media"
	if accountID == "" {
		return nil, validationError(op, "account id is required")
	}
	if limit <= 0 {
		limit = DefaultMediaLimit
	}

	res, err := c.call(ctx, op, facebook.GET, "/"+accountID+"/media", facebook.Params{
		"fields": mediaFields,
		"limit":  strconv.Itoa(limit),
	})
	if err != nil {
		return nil, err
	}

	media := []Media{}
	if err := decodeList(op, res, &media); err != nil {
		return nil, err
	}
	if len(media) > limit {
		media = media[:limit]
	}
	return media, nil
}

// GetPostInsights fetches metrics for one media object.
func (c *Client) GetPostInsights(ctx context.Context, mediaID string, metrics []string) ([]Insight, error) {
	const op = "get post insights"
	if mediaID == "" {
		return nil, validationError(op, "media id is required")
	}
	if len(metrics) == 0 {
		metrics = DefaultPostMetrics
	}

	res, err := c.call(ctx, op, facebook.GET, "/"+mediaID+"/insights", facebook.Params{
		"metric": strings.Join(metrics, ","),
	})
	if err != nil {
		return nil, err
	}

	insights := []Insight{}
	if err := decodeList(op, res, &insights); err != nil {
		return nil, err
	}
	return insights, nil
}

// GetAccountInsights fetches daily metrics for a business account.
func (c *Client) GetAccountInsights(ctx context.Context, accountID string, metrics []string) ([]Insight, error) {
	const op = "get account insights"
	if accountID == "" {
		return nil, validationError(op, "account id is required")
	}
	if len(metrics) == 0 {
		metrics = DefaultAccountMetrics
	}

	res, err := c.call(ctx, op, facebook.GET, "/"+accountID+"/insights", facebook.Params{
		"metric": strings.Join(metrics, ","),
		"period": "day",
	})
	if err != nil {
		return nil, err
	}

	insights := []Insight{}
	if err := decodeList(op, res, &insights); err != nil {
		return nil, err
	}
	return insights, nil
}

// GetComments lists the comments on a media object.
func (c *Client) GetComments(ctx context.Context, mediaID string) ([]Comment, error) {
	const op = "get comments"
	if mediaID == "" {
		return nil, validationError(op, "media id is required")
	}

	res, err := c.call(ctx, op, facebook.GET, "/"+mediaID+"/comments", facebook.Params{
		"fields": commentFields,
	})
	if err != nil {
		return nil, err
	}

	comments := []Comment{}
	if err := decodeList(op, res, &comments); err != nil {
		return nil, err
	}
	return comments, nil
}

// ReplyToComment posts a public reply and returns the upstream body as is.
func (c *Client) ReplyToComment(ctx context.Context, commentID, message string) (map[string]interface{}, error) {
	const op = "reply to comment"
	if commentID == "" {
		return nil, validationError(op, "comment id is required")
	}
	if strings.TrimSpace(message) == "" {
		return nil, validationError(op, "message is required")
	}

	res, err := c.call(ctx, op, facebook.POST, "/"+commentID+"/replies", facebook.Params{
		"message": message,
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}(res), nil
}

// GetMentions lists media the business account is tagged in.
func (c *Client) GetMentions(ctx context.Context, accountID string) ([]Media, error) {
	const op = "get mentions"
	if accountID == "" {
		return nil, validationError(op, "account id is required")
	}

	res, err := c.call(ctx, op, facebook.GET, "/"+accountID+"/tags", facebook.Params{
		"fields": mediaFields + ",username",
	})
	if err != nil {
		return nil, err
	}

	media := []Media{}
	if err := decodeList(op, res, &media); err != nil {
		return nil, err
	}
	return media, nil
}

// SendDirectMessage sends a text message from the business account.
func (c *Client) SendDirectMessage(ctx context.Context, accountID string, to Recipient, text string) (*MessageResult, error) {
	const op = "send direct message"
	if accountID == "" {
		return nil, validationError(op, "account id is required")
	}
	if to.ID == "" && to.CommentID == "" {
		return nil, validationError(op, "recipient is required")
	}
	if strings.TrimSpace(text) == "" {
		return nil, validationError(op, "message is required")
	}

	res, err := c.call(ctx, op, facebook.POST, "/"+accountID+"/messages", facebook.Params{
		"recipient": to.params(),
		"message":   map[string]string{"text": text},
	})
	if err != nil {
		return nil, err
	}

	var out MessageResult
	if err := res.Decode(&out); err != nil {
		return nil, decodeError(op, err)
	}
	return &out, nil
}

// LikeComment likes a comment as the page behind the token.
func (c *Client) LikeComment(ctx context.Context, commentID string) error {
	const op = "like comment"
	if commentID == "" {
		return validationError(op, "comment id is required")
	}

	_, err := c.call(ctx, op, facebook.POST, "/"+commentID+"/likes", facebook.Params{})
	return err
}

// FollowUser always fails: the Graph API has no endpoint for following users.
func (c *Client) FollowUser(ctx context.Context, accountID, userID string) error {
	return validationError("follow user", "following users is not available through the Instagram Graph API")
}
