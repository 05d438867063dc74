package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/vat-ticketing/internal/model"
)

func roundTrip(t *testing.T, s *Store, d *Data) *http.Request {
	t.Helper()
	rec := httptest.NewRecorder()
	require.NoError(t, s.Save(rec, d))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, ck := range rec.Result().Cookies() {
		req.AddCookie(ck)
	}
	return req
}

func TestStoreRoundTrip(t *testing.T) {
	s := NewStore("secret", time.Hour, false)
	in := &Data{
		Profile: &model.Profile{UserID: "auth0|1", Name: "Ada", Picture: "https://img/1.png"},
		Next:    "/ticket/abc",
	}
	in.AddFlash("error", "Login failed: boom")

	out, err := s.Load(roundTrip(t, s, in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.True(t, out.Authenticated())
}

func TestStoreRejectsForeignSignature(t *testing.T) {
	signer := NewStore("secret-a", time.Hour, false)
	verifier := NewStore("secret-b", time.Hour, false)

	d, err := verifier.Load(roundTrip(t, signer, &Data{Profile: &model.Profile{UserID: "x"}}))
	require.ErrorIs(t, err, ErrInvalidSession)
	assert.False(t, d.Authenticated())
}

func TestStoreExpiredCookie(t *testing.T) {
	s := NewStore("secret", time.Minute, false)
	s.now = func() time.Time { return time.Now().Add(-time.Hour) }

	d, err := s.Load(roundTrip(t, s, &Data{Profile: &model.Profile{UserID: "x"}}))
	require.ErrorIs(t, err, ErrInvalidSession)
	assert.False(t, d.Authenticated())
}

func TestStoreMissingCookie(t *testing.T) {
	s := NewStore("secret", time.Hour, false)
	d, err := s.Load(httptest.NewRequest(http.MethodGet, "/", nil))
	require.ErrorIs(t, err, ErrNoSession)
	require.NotNil(t, d)
}

func TestClearExpiresCookie(t *testing.T) {
	s := NewStore("secret", time.Hour, true)
	rec := httptest.NewRecorder()
	s.Clear(rec)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, CookieName, cookies[0].Name)
	assert.True(t, cookies[0].MaxAge < 0)
	assert.True(t, cookies[0].Secure)
}

func TestPopFlashes(t *testing.T) {
	d := &Data{}
	d.AddFlash("error", "a")
	assert.Len(t, d.PopFlashes(), 1)
	assert.Empty(t, d.PopFlashes())
}

func TestMiddlewareAndFromContext(t *testing.T) {
	s := NewStore("secret", time.Hour, false)
	req := roundTrip(t, s, &Data{Profile: &model.Profile{UserID: "u", Name: "Ada"}})

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var seen *Data
	h := Middleware(s)(func(c echo.Context) error {
		seen = FromContext(c)
		return nil
	})
	require.NoError(t, h(c))
	require.NotNil(t, seen)
	assert.Equal(t, "Ada", seen.Profile.Name)

	empty := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	assert.False(t, FromContext(empty).Authenticated())
}
