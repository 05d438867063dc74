// Package identity talks to the OAuth identity provider.  It covers the
// browser login (authorization code + userinfo) and the machine-to-machine
// client-credentials exchange used to authorize ticket issuance.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/iliyamo/vat-ticketing/internal/config"
	"github.com/iliyamo/vat-ticketing/internal/model"
)

var (
	// ErrTokenUnavailable is returned when the client-credentials exchange
	// does not produce an access token.
	ErrTokenUnavailable = errors.New("service token unavailable")
	// ErrLoginFailed wraps every failure of the authorization-code callback.
	ErrLoginFailed = errors.New("login failed")
)

// Scopes requested for the browser login.
var loginScopes = []string{"openid", "profile", "email"}

// cacheSkew is subtracted from a token's lifetime before it is cached.
const cacheSkew = 30 * time.Second

// Gateway is the client for one application registered at the provider.
type Gateway struct {
	baseURL  string
	clientID string
	audience string

	login   *oauth2.Config
	service *clientcredentials.Config

	httpClient *http.Client
	cache      TokenCache
	log        *zap.SugaredLogger
}

// Option customizes a Gateway.
type Option func(*Gateway)

// WithHTTPClient sets the client used for every provider call.
func WithHTTPClient(c *http.Client) Option { return func(g *Gateway) { g.httpClient = c } }

// WithTokenCache caches service tokens between requests.
func WithTokenCache(c TokenCache) Option { return func(g *Gateway) { g.cache = c } }

// WithLogger sets the logger; the default discards output.
func WithLogger(l *zap.SugaredLogger) Option { return func(g *Gateway) { g.log = l } }

// New builds a Gateway from configuration.  callbackURL is the absolute URL of
// this application's /callback route.
func New(cfg config.IdentityConfig, callbackURL string, opts ...Option) *Gateway {
	endpoint := oauth2.Endpoint{
		AuthURL:   cfg.BaseURL + "/authorize",
		TokenURL:  cfg.BaseURL + "/oauth/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
	g := &Gateway{
		baseURL:  cfg.BaseURL,
		clientID: cfg.ClientID,
		audience: cfg.Audience,
		login: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  callbackURL,
			Scopes:       loginScopes,
		},
		service: &clientcredentials.Config{
			ClientID:       cfg.ClientID,
			ClientSecret:   cfg.ClientSecret,
			TokenURL:       endpoint.TokenURL,
			EndpointParams: url.Values{"audience": {cfg.Audience}},
			AuthStyle:      oauth2.AuthStyleInParams,
		},
		log: zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// withClient threads the configured HTTP client into oauth2 calls.
func (g *Gateway) withClient(ctx context.Context) context.Context {
	if g.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
}

// AuthCodeURL returns the provider URL the browser is sent to for login.
func (g *Gateway) AuthCodeURL(state string) string {
	return g.login.AuthCodeURL(state)
}

// LogoutURL returns the provider logout URL that sends the browser back to
// returnTo afterwards.
func (g *Gateway) LogoutURL(returnTo string) string {
	q := url.Values{"returnTo": {returnTo}, "client_id": {g.clientID}}
	return g.baseURL + "/v2/logout?" + q.Encode()
}

// CompleteLogin exchanges an authorization code and fetches the user's
// profile.  Every failure is wrapped in ErrLoginFailed with a short message
// fit for display; provider responses are only logged.
func (g *Gateway) CompleteLogin(ctx context.Context, code string) (model.Profile, error) {
	if code == "" {
		return model.Profile{}, fmt.Errorf("%w: missing authorization code", ErrLoginFailed)
	}
	ctx = g.withClient(ctx)
	tok, err := g.login.Exchange(ctx, code)
	if err != nil {
		g.log.Warnw("authorization code exchange failed", "error", err)
		if c := errorCode(err); c != "" {
			return model.Profile{}, fmt.Errorf("%w: token exchange failed (%s)", ErrLoginFailed, c)
		}
		return model.Profile{}, fmt.Errorf("%w: token exchange failed", ErrLoginFailed)
	}
	p, err := g.userInfo(ctx, tok)
	if err != nil {
		g.log.Warnw("userinfo request failed", "error", err)
		return model.Profile{}, fmt.Errorf("%w: userinfo request failed", ErrLoginFailed)
	}
	return p, nil
}

// maxErrorCode bounds the OAuth error code copied into user-facing errors.
const maxErrorCode = 64

// errorCode returns the RFC 6749 "error" value of a token endpoint failure,
// or "" when the response carried none or it is not a plain code.
func errorCode(err error) string {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) || re.ErrorCode == "" || len(re.ErrorCode) > maxErrorCode {
		return ""
	}
	for _, r := range re.ErrorCode {
		if !(r == '_' || r == '-' || r == '.' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return ""
		}
	}
	return re.ErrorCode
}

type userInfoDoc struct {
	Sub     string `json:"sub"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

func (g *Gateway) userInfo(ctx context.Context, tok *oauth2.Token) (model.Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/userinfo", nil)
	if err != nil {
		return model.Profile{}, err
	}
	resp, err := g.login.Client(ctx, tok).Do(req)
	if err != nil {
		return model.Profile{}, fmt.Errorf("userinfo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return model.Profile{}, fmt.Errorf("userinfo: status %d: %s", resp.StatusCode, body)
	}
	var doc userInfoDoc
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return model.Profile{}, fmt.Errorf("userinfo: decode: %w", err)
	}
	if doc.Sub == "" {
		return model.Profile{}, errors.New("userinfo: missing sub")
	}
	return model.Profile{UserID: doc.Sub, Name: doc.Name, Picture: doc.Picture}, nil
}

// ServiceToken returns an access token for the configured API audience.  A
// cached token is reused while it is valid; cache errors are logged and
// ignored.  Exchange failures are logged and reported as ErrTokenUnavailable.
func (g *Gateway) ServiceToken(ctx context.Context) (string, error) {
	key := "m2m:" + g.audience
	if g.cache != nil {
		if tok, ok, err := g.cache.Get(ctx, key); err != nil {
			g.log.Warnw("service token cache read failed", "error", err)
		} else if ok {
			return tok, nil
		}
	}

	tok, err := g.service.Token(g.withClient(ctx))
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			g.log.Errorw("failed to fetch M2M token",
				"status", re.Response.StatusCode, "body", string(re.Body))
		} else {
			g.log.Errorw("failed to fetch M2M token", "error", err)
		}
		return "", fmt.Errorf("%w: %v", ErrTokenUnavailable, err)
	}
	if tok.AccessToken == "" {
		g.log.Errorw("failed to fetch M2M token", "error", "empty access_token")
		return "", ErrTokenUnavailable
	}

	if g.cache != nil && !tok.Expiry.IsZero() {
		if ttl := time.Until(tok.Expiry) - cacheSkew; ttl > 0 {
			if err := g.cache.Set(ctx, key, tok.AccessToken, ttl); err != nil {
				g.log.Warnw("service token cache write failed", "error", err)
			}
		}
	}
	return tok.AccessToken, nil
}
