// Package session keeps the browser session in a signed cookie.  The cookie
// value is an HS256 JWT whose claims are the typed Data structure below.
package session

import (
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/vat-ticketing/internal/model"
	"github.com/iliyamo/vat-ticketing/internal/utils"
)

// CookieName is the name of the session cookie.
const CookieName = "vat_session"

// contextKey is where Middleware stores the loaded *Data on the echo.Context.
const contextKey = "session"

var (
	// ErrNoSession means the request carried no session cookie.
	ErrNoSession = errors.New("no session")
	// ErrInvalidSession means the cookie failed signature or expiry checks.
	ErrInvalidSession = errors.New("invalid session")
)

// Flash is a one-shot message shown on the next rendered page.
type Flash struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

// Data is everything the application keeps per browser.
type Data struct {
	Profile    *model.Profile `json:"profile,omitempty"`
	Next       string         `json:"next,omitempty"`        // URL to resume at after login
	OAuthNonce string         `json:"oauth_nonce,omitempty"` // binds the OAuth state to this browser
	Flashes    []Flash        `json:"flashes,omitempty"`
}

// Authenticated reports whether a user profile is present.
func (d *Data) Authenticated() bool { return d != nil && d.Profile != nil && d.Profile.UserID != "" }

// AddFlash queues a message for the next page view.
func (d *Data) AddFlash(category, message string) {
	d.Flashes = append(d.Flashes, Flash{Category: category, Message: message})
}

// PopFlashes returns and clears the queued messages.
func (d *Data) PopFlashes() []Flash {
	f := d.Flashes
	d.Flashes = nil
	return f
}

type claims struct {
	Data
	jwt.RegisteredClaims
}

// Store signs and verifies session cookies.
type Store struct {
	key    []byte
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

// NewStore derives the cookie signing key from secret.  secure marks the
// cookie Secure and should be true whenever the site is served over TLS.
func NewStore(secret string, ttl time.Duration, secure bool) *Store {
	return &Store{
		key:    utils.DeriveKey(secret, utils.PurposeSession),
		ttl:    ttl,
		secure: secure,
		now:    time.Now,
	}
}

// Load decodes the session from r.  It always returns a usable *Data; the
// error tells why it is empty.
func (s *Store) Load(r *http.Request) (*Data, error) {
	ck, err := r.Cookie(CookieName)
	if err != nil || ck.Value == "" {
		return &Data{}, ErrNoSession
	}
	var c claims
	if err := utils.ParseHS256(s.key, ck.Value, &c); err != nil {
		return &Data{}, errors.Join(ErrInvalidSession, err)
	}
	d := c.Data
	return &d, nil
}

// Save writes d to the response as a fresh cookie.
func (s *Store) Save(w http.ResponseWriter, d *Data) error {
	now := s.now()
	raw, err := utils.SignHS256(s.key, claims{
		Data: *d,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	})
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    raw,
		Path:     "/",
		Expires:  now.Add(s.ttl),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Clear expires the session cookie.
func (s *Store) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Middleware loads the session for every request and makes it available
// through FromContext.  Missing or invalid cookies yield an empty session.
func Middleware(s *Store) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			d, _ := s.Load(c.Request())
			c.Set(contextKey, d)
			return next(c)
		}
	}
}

// FromContext returns the session loaded by Middleware, or an empty one.
func FromContext(c echo.Context) *Data {
	if d, ok := c.Get(contextKey).(*Data); ok && d != nil {
		return d
	}
	d := &Data{}
	c.Set(contextKey, d)
	return d
}
