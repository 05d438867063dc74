// Package identitytest runs a fake OAuth identity provider for tests.
package identitytest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/iliyamo/vat-ticketing/internal/config"
)

// Fixed credentials and fixtures served by the fake provider.
const (
	ClientID     = "test-client"
	ClientSecret = "test-secret"
	Audience     = "https://tickets.example/api"
	GoodCode     = "good-code"
	UserToken    = "user-access-token"
	UserSub      = "auth0|42"
	UserName     = "Ada Lovelace"
	UserPicture  = "https://img.example/ada.png"

	// ErrorPageSize is the body size served when ExchangeStatus is set.
	ErrorPageSize = 7 * 1024
)

// Provider is an httptest server implementing /oauth/token, /userinfo,
// /authorize and /v2/logout.
type Provider struct {
	*httptest.Server

	// M2MStatus, when non-zero, is returned by client-credentials requests
	// instead of a token.
	M2MStatus atomic.Int32
	// UserInfoStatus, when non-zero, is returned by /userinfo.
	UserInfoStatus atomic.Int32
	// ExchangeStatus, when non-zero, is returned by authorization-code
	// requests together with an HTML error page of ErrorPageSize bytes.
	ExchangeStatus atomic.Int32

	m2mCalls atomic.Int32

	mu       sync.Mutex
	lastForm map[string][]string
}

// NewProvider starts a fake provider; it is closed when the test ends.
func NewProvider(t interface{ Cleanup(func()) }) *Provider {
	p := &Provider{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/token", p.token)
	mux.HandleFunc("GET /userinfo", p.userInfo)
	mux.HandleFunc("GET /authorize", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /v2/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Close)
	return p
}

// Config returns identity settings pointing at the fake provider.
func (p *Provider) Config() config.IdentityConfig {
	return config.IdentityConfig{
		ClientID:     ClientID,
		ClientSecret: ClientSecret,
		Domain:       "fake.identity",
		BaseURL:      p.URL,
		Audience:     Audience,
	}
}

// M2MCalls returns how many client-credentials exchanges were served.
func (p *Provider) M2MCalls() int { return int(p.m2mCalls.Load()) }

// LastTokenForm returns the form of the most recent /oauth/token request.
func (p *Provider) LastTokenForm() map[string][]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastForm
}

func (p *Provider) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}
	p.mu.Lock()
	p.lastForm = r.PostForm
	p.mu.Unlock()

	if r.PostForm.Get("client_id") != ClientID || r.PostForm.Get("client_secret") != ClientSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_client"})
		return
	}

	switch r.PostForm.Get("grant_type") {
	case "client_credentials":
		if s := p.M2MStatus.Load(); s != 0 {
			writeJSON(w, int(s), map[string]string{"error": "access_denied", "error_description": "Unauthorized"})
			return
		}
		if r.PostForm.Get("audience") != Audience {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "access_denied"})
			return
		}
		n := p.m2mCalls.Add(1)
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": fmt.Sprintf("m2m-token-%d", n),
			"token_type":   "Bearer",
			"expires_in":   86400,
		})
	case "authorization_code":
		if s := p.ExchangeStatus.Load(); s != 0 {
			w.Header().Set("Content-Type", "text/html")
			w.WriteHeader(int(s))
			_, _ = w.Write([]byte("<html><body>" + strings.Repeat("x", ErrorPageSize) + "</body></html>"))
			return
		}
		if r.PostForm.Get("code") != GoodCode {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "invalid_grant"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": UserToken,
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
	}
}

func (p *Provider) userInfo(w http.ResponseWriter, r *http.Request) {
	if s := p.UserInfoStatus.Load(); s != 0 {
		writeJSON(w, int(s), map[string]string{"error": "unavailable"})
		return
	}
	if r.Header.Get("Authorization") != "Bearer "+UserToken {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_token"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"sub":     UserSub,
		"name":    UserName,
		"picture": UserPicture,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
