package graph

import (
	"context"
	"errors"
	"time"

	"github.com/huandu/facebook"
	"golang.org/x/oauth2"
)

// LoginScopes are requested by the OAuth dialog.
var LoginScopes = []string{
	"instagram_basic",
	"instagram_manage_comments",
	"instagram_manage_insights",
	"instagram_manage_messages",
	"instagram_content_publish",
	"pages_show_list",
	"pages_read_engagement",
	"pages_manage_metadata",
}

const (
	dialogURL = "https://www.facebook.com/" + APIVersion + "/dialog/oauth"
	tokenURL  = BaseURL + "/oauth/access_token"

	// defaultLongLivedTTL applies when Graph omits expires_in.
	defaultLongLivedTTL = 60 * 24 * time.Hour
)

// App performs the app-level OAuth exchanges. The code exchange goes
// through oauth2 so it honours the request context; the long-lived upgrade
// is a Graph-specific grant handled by the facebook app.
type App struct {
	oauth *oauth2.Config
	app   *facebook.App
	now   func() time.Time
}

func NewApp(appID, appSecret, redirectURI string) *App {
	app := facebook.New(appID, appSecret)
	app.RedirectUri = redirectURI
	return &App{
		oauth: &oauth2.Config{
			ClientID:     appID,
			ClientSecret: appSecret,
			RedirectURL:  redirectURI,
			Scopes:       LoginScopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   dialogURL,
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		app: app,
		now: time.Now,
	}
}

// AuthURL builds the OAuth dialog URL for the given state.
func (a *App) AuthURL(state string) string {
	return a.oauth.AuthCodeURL(state)
}

// ExchangeCode trades an authorization code for a short-lived user token.
func (a *App) ExchangeCode(ctx context.Context, code string) (string, error) {
	const op = "exchange code"
	if code == "" {
		return "", validationError(op, "authorization code is required")
	}
	token, err := a.oauth.Exchange(ctx, code)
	if err != nil {
		status := 0
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && rerr.Response != nil {
			status = rerr.Response.StatusCode
			if rerr.ErrorDescription != "" {
				err = errors.New(rerr.ErrorDescription)
			}
		}
		return "", classify(ctx, op, status, err)
	}
	return token.AccessToken, nil
}

// LongLivedToken upgrades a token and returns it with its expiry.
func (a *App) LongLivedToken(ctx context.Context, token string) (string, time.Time, error) {
	const op = "exchange token"
	if token == "" {
		return "", time.Time{}, validationError(op, "access token is required")
	}
	longLived, expires, err := a.app.ExchangeToken(token)
	if err != nil {
		return "", time.Time{}, classify(ctx, op, 0, err)
	}
	ttl := time.Duration(expires) * time.Second
	if expires <= 0 {
		ttl = defaultLongLivedTTL
	}
	return longLived, a.now().Add(ttl), nil
}
