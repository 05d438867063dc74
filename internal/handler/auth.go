package handler

import (
    "context"
    "errors"
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/vat-ticketing/internal/identity"
    "github.com/iliyamo/vat-ticketing/internal/metrics"
    "github.com/iliyamo/vat-ticketing/internal/model"
    "github.com/iliyamo/vat-ticketing/internal/session"
    "github.com/iliyamo/vat-ticketing/internal/utils"
)

// LoginProvider is the delegated-user side of the identity gateway.
type LoginProvider interface {
    AuthCodeURL(state string) string
    LogoutURL(returnTo string) string
    CompleteLogin(ctx context.Context, code string) (model.Profile, error)
}

// AuthHandler bundles dependencies for the browser login endpoints.
type AuthHandler struct {
    Provider  LoginProvider
    Sessions  *session.Store
    StateKey  []byte
    PublicURL string
    Metrics   *metrics.Metrics
    Log       *zap.SugaredLogger
    now       func() time.Time
}

func NewAuthHandler(p LoginProvider, s *session.Store, secret, publicURL string, m *metrics.Metrics, log *zap.SugaredLogger) *AuthHandler {
    return &AuthHandler{
        Provider:  p,
        Sessions:  s,
        StateKey:  utils.DeriveKey(secret, utils.PurposeState),
        PublicURL: strings.TrimRight(publicURL, "/"),
        Metrics:   m,
        Log:       log,
        now:       time.Now,
    }
}

var errStateMismatch = errors.New("state does not match this browser")

// Login sends the browser to the identity provider.  The signed state carries
// the page to resume at and a nonce that is also kept in the session.
func (h *AuthHandler) Login(c echo.Context) error {
    d := session.FromContext(c)
    nonce, err := utils.NewNonce(16)
    if err != nil {
        return h.loginFailed(c, d, err)
    }
    next := d.Next
    if !isLocalPath(next) {
        next = "/"
    }
    state, err := utils.NewStateToken(h.StateKey, next, nonce, h.now())
    if err != nil {
        return h.loginFailed(c, d, err)
    }
    d.OAuthNonce = nonce
    if err := h.Sessions.Save(c.Response(), d); err != nil {
        return h.loginFailed(c, d, err)
    }
    return c.Redirect(http.StatusFound, h.Provider.AuthCodeURL(state))
}

// Callback completes the authorization-code exchange, stores the profile and
// resumes at the page recorded in the state.  Every failure becomes a flash
// message on the landing page.
func (h *AuthHandler) Callback(c echo.Context) error {
    d := session.FromContext(c)

    if e := c.QueryParam("error"); e != "" {
        msg := c.QueryParam("error_description")
        if msg == "" {
            msg = e
        }
        return h.loginFailed(c, d, errors.New(msg))
    }

    st, err := utils.ParseStateToken(h.StateKey, c.QueryParam("state"))
    if err != nil {
        return h.loginFailed(c, d, err)
    }
    if d.OAuthNonce == "" || st.Nonce != d.OAuthNonce {
        return h.loginFailed(c, d, errStateMismatch)
    }

    profile, err := h.Provider.CompleteLogin(c.Request().Context(), c.QueryParam("code"))
    if err != nil {
        return h.loginFailed(c, d, err)
    }

    d.Profile = &profile
    d.Next = ""
    d.OAuthNonce = ""
    if err := h.Sessions.Save(c.Response(), d); err != nil {
        return h.loginFailed(c, d, err)
    }
    h.Metrics.ObserveLogin(metrics.LoginSuccess)
    h.Log.Infow("login", "user_id", profile.UserID)

    next := st.Next
    if !isLocalPath(next) {
        next = "/"
    }
    return c.Redirect(http.StatusFound, next)
}

// Logout drops the session and ends the provider session as well.
func (h *AuthHandler) Logout(c echo.Context) error {
    h.Sessions.Clear(c.Response())
    return c.Redirect(http.StatusFound, h.Provider.LogoutURL(h.PublicURL+"/"))
}

func (h *AuthHandler) loginFailed(c echo.Context, d *session.Data, err error) error {
    h.Metrics.ObserveLogin(metrics.LoginFailure)
    h.Log.Warnw("login failed", "error", err)

    d.OAuthNonce = ""
    d.AddFlash("error", "Login failed: "+flashReason(err))
    if err := h.Sessions.Save(c.Response(), d); err != nil {
        h.Log.Errorw("save session", "error", err)
    }
    return c.Redirect(http.StatusFound, "/")
}

// maxFlashReason bounds the error text stored in the session cookie.
const maxFlashReason = 160

// flashReason shortens err for display.  The cookie carrying the flash must
// stay well under the browser's 4 KB limit.
func flashReason(err error) string {
    msg := strings.TrimPrefix(err.Error(), identity.ErrLoginFailed.Error()+": ")
    if r := []rune(msg); len(r) > maxFlashReason {
        msg = string(r[:maxFlashReason]) + "..."
    }
    return msg
}

// isLocalPath accepts absolute paths on this site only.
func isLocalPath(p string) bool {
    return strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "//") && !strings.HasPrefix(p, "/\\")
}
