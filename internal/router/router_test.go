package router

import (
    "bytes"
    "context"
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "net/url"
    "os"
    "path/filepath"
    "strings"
    "testing"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/testutil"
    "github.com/stretchr/testify/suite"
    "go.uber.org/zap"

    "github.com/iliyamo/vat-ticketing/internal/handler"
    "github.com/iliyamo/vat-ticketing/internal/identity"
    "github.com/iliyamo/vat-ticketing/internal/identity/identitytest"
    "github.com/iliyamo/vat-ticketing/internal/metrics"
    "github.com/iliyamo/vat-ticketing/internal/repository"
    "github.com/iliyamo/vat-ticketing/internal/service"
    "github.com/iliyamo/vat-ticketing/internal/session"
    "github.com/iliyamo/vat-ticketing/internal/utils"
)

const publicURL = "http://tickets.test"

type AppSuite struct {
    suite.Suite
    e         *echo.Echo
    idp       *identitytest.Provider
    store     *repository.MemoryTicketRepo
    metrics   *metrics.Metrics
    staticDir string
    cookie    *http.Cookie
}

func (s *AppSuite) SetupTest() {
    log := zap.NewNop().Sugar()
    s.idp = identitytest.NewProvider(s.T())
    s.store = repository.NewMemoryTicketRepo()
    s.staticDir = s.T().TempDir()
    s.cookie = nil

    reg := prometheus.NewRegistry()
    s.metrics = metrics.New(reg)

    gw := identity.New(s.idp.Config(), publicURL+"/callback")
    images := repository.NewQRImageRepo(filepath.Join(s.staticDir, "qr"), publicURL+"/static/qr")
    svc := service.NewTicketService(service.Deps{
        Store:     s.store,
        Tokens:    gw,
        Renderer:  utils.DefaultQRRenderer,
        Images:    images,
        Metrics:   s.metrics,
        Log:       log,
        PublicURL: publicURL,
    })
    sessions := session.NewStore("router-test-secret", time.Hour, false)

    tpl, err := handler.NewTemplates()
    s.Require().NoError(err)
    s.e = echo.New()
    s.e.Renderer = tpl
    Setup(s.e, Deps{
        Sessions:  sessions,
        Home:      handler.NewHomeHandler(svc, sessions, log),
        Auth:      handler.NewAuthHandler(gw, sessions, "router-test-secret", publicURL, s.metrics, log),
        Tickets:   handler.NewTicketHandler(svc, images, log),
        Gatherer:  reg,
        StaticDir: s.staticDir,
    })
}

// do sends a request carrying the current session cookie and keeps any
// cookie the response sets.
func (s *AppSuite) do(method, target string, body []byte) *httptest.ResponseRecorder {
    var req *http.Request
    if body != nil {
        req = httptest.NewRequest(method, target, bytes.NewReader(body))
        req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
    } else {
        req = httptest.NewRequest(method, target, nil)
    }
    if s.cookie != nil {
        req.AddCookie(s.cookie)
    }
    rec := httptest.NewRecorder()
    s.e.ServeHTTP(rec, req)
    for _, ck := range rec.Result().Cookies() {
        if ck.Name != session.CookieName {
            continue
        }
        if ck.MaxAge < 0 || ck.Value == "" {
            s.cookie = nil
        } else {
            s.cookie = ck
        }
    }
    return rec
}

func (s *AppSuite) issue(vat string) *httptest.ResponseRecorder {
    body, _ := json.Marshal(map[string]string{"vat_id": vat, "first_name": "Grace", "last_name": "Hopper"})
    return s.do(http.MethodPost, "/generate-ticket", body)
}

func (s *AppSuite) issueID(vat string) string {
    rec := s.issue(vat)
    s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
    var out map[string]string
    s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &out))
    return out["ticket_id"]
}

func (s *AppSuite) login(expectNext string) {
    rec := s.do(http.MethodGet, "/login", nil)
    s.Require().Equal(http.StatusFound, rec.Code)
    loc, err := url.Parse(rec.Header().Get(echo.HeaderLocation))
    s.Require().NoError(err)
    s.Require().Equal(s.idp.URL+"/authorize", loc.Scheme+"://"+loc.Host+loc.Path)
    s.Equal(publicURL+"/callback", loc.Query().Get("redirect_uri"))

    q := url.Values{"code": {identitytest.GoodCode}, "state": {loc.Query().Get("state")}}
    rec = s.do(http.MethodGet, "/callback?"+q.Encode(), nil)
    s.Require().Equal(http.StatusFound, rec.Code)
    s.Equal(expectNext, rec.Header().Get(echo.HeaderLocation))
}

func (s *AppSuite) TestIssueResponseAndQRFile() {
    rec := s.issue("DE123")
    s.Require().Equal(http.StatusOK, rec.Code)

    var out map[string]string
    s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &out))
    s.Equal("Ticket generated", out["message"])
    s.Equal(publicURL+"/static/qr/"+out["ticket_id"]+".png", out["qr_code"])

    png, err := os.ReadFile(filepath.Join(s.staticDir, "qr", out["ticket_id"]+".png"))
    s.Require().NoError(err)
    s.True(bytes.HasPrefix(png, []byte("\x89PNG")))

    // The saved image is served as a static asset.
    rec = s.do(http.MethodGet, "/static/qr/"+out["ticket_id"]+".png", nil)
    s.Equal(http.StatusOK, rec.Code)
}

func (s *AppSuite) TestFourthTicketForVATRejected() {
    for i := 0; i < 3; i++ {
        s.issueID("DE123")
    }
    rec := s.issue("DE123")
    s.Equal(http.StatusBadRequest, rec.Code)
    s.JSONEq(`{"error":"Maximum of three tickets allowed per VAT ID"}`, rec.Body.String())

    n, err := s.store.CountByVAT(context.Background(), "DE123")
    s.Require().NoError(err)
    s.Equal(3, n)
    s.Equal(1.0, testutil.ToFloat64(s.metrics.QuotaRejections))

    // Other VAT IDs are unaffected.
    s.issueID("FR999")
}

func (s *AppSuite) TestM2MFailureIssuesNothing() {
    s.idp.M2MStatus.Store(http.StatusUnauthorized)

    rec := s.issue("DE123")
    s.Equal(http.StatusInternalServerError, rec.Code)
    s.JSONEq(`{"error":"Failed to authenticate with external API"}`, rec.Body.String())

    n, err := s.store.Count(context.Background())
    s.Require().NoError(err)
    s.Zero(n)
    s.Equal(1.0, testutil.ToFloat64(s.metrics.M2MFailures))
}

func (s *AppSuite) TestGenerateTicketBadInput() {
    rec := s.do(http.MethodPost, "/generate-ticket", []byte(`{"vat_id":`))
    s.Equal(http.StatusBadRequest, rec.Code)

    rec = s.do(http.MethodPost, "/generate-ticket", []byte(`{"vat_id":"DE1","first_name":" ","last_name":"x"}`))
    s.Equal(http.StatusBadRequest, rec.Code)
    s.Zero(s.idp.M2MCalls())
}

func (s *AppSuite) TestUnknownTicketIsNotFound() {
    id := "3f2504e0-4f89-41d3-9a0c-0305e82c3301"

    rec := s.do(http.MethodGet, "/ticket/"+id, nil)
    s.Equal(http.StatusNotFound, rec.Code)
    rec = s.do(http.MethodGet, "/ticket/not-a-uuid", nil)
    s.Equal(http.StatusNotFound, rec.Code)

    s.login("/")
    rec = s.do(http.MethodGet, "/ticket/"+id, nil)
    s.Equal(http.StatusNotFound, rec.Code)
}

func (s *AppSuite) TestTicketPageResumesAfterLogin() {
    id := s.issueID("DE123")

    rec := s.do(http.MethodGet, "/ticket/"+id, nil)
    s.Require().Equal(http.StatusFound, rec.Code)
    s.Equal(LoginPath, rec.Header().Get(echo.HeaderLocation))

    s.login("/ticket/" + id)

    rec = s.do(http.MethodGet, "/ticket/"+id, nil)
    s.Require().Equal(http.StatusOK, rec.Code)
    body := rec.Body.String()
    s.Contains(body, id)
    s.Contains(body, identitytest.UserName)
    s.Contains(body, "Grace Hopper")
    s.Contains(body, "/static/qr/"+id+".png")
}

func (s *AppSuite) TestCallbackFailureFlashesOnIndex() {
    s.idp.UserInfoStatus.Store(http.StatusServiceUnavailable)

    rec := s.do(http.MethodGet, "/login", nil)
    s.Require().Equal(http.StatusFound, rec.Code)
    loc, err := url.Parse(rec.Header().Get(echo.HeaderLocation))
    s.Require().NoError(err)

    q := url.Values{"code": {identitytest.GoodCode}, "state": {loc.Query().Get("state")}}
    rec = s.do(http.MethodGet, "/callback?"+q.Encode(), nil)
    s.Require().Equal(http.StatusFound, rec.Code)
    s.Equal("/", rec.Header().Get(echo.HeaderLocation))

    rec = s.do(http.MethodGet, "/", nil)
    s.Require().Equal(http.StatusOK, rec.Code)
    s.Contains(rec.Body.String(), "Login failed: ")

    // Flashes are shown once.
    rec = s.do(http.MethodGet, "/", nil)
    s.NotContains(rec.Body.String(), "Login failed: ")
}

func (s *AppSuite) TestCallbackProviderErrorPageKeepsCookieSmall() {
    s.idp.ExchangeStatus.Store(http.StatusBadGateway)

    rec := s.do(http.MethodGet, "/login", nil)
    s.Require().Equal(http.StatusFound, rec.Code)
    loc, err := url.Parse(rec.Header().Get(echo.HeaderLocation))
    s.Require().NoError(err)

    q := url.Values{"code": {identitytest.GoodCode}, "state": {loc.Query().Get("state")}}
    rec = s.do(http.MethodGet, "/callback?"+q.Encode(), nil)
    s.Require().Equal(http.StatusFound, rec.Code)
    s.Equal("/", rec.Header().Get(echo.HeaderLocation))
    s.Require().NotNil(s.cookie)
    s.Less(len(rec.Header().Get("Set-Cookie")), 4096)

    rec = s.do(http.MethodGet, "/", nil)
    s.Contains(rec.Body.String(), "Login failed: token exchange failed")
    s.NotContains(rec.Body.String(), "<html><body>xxx")
}

func (s *AppSuite) TestCallbackLongProviderDescriptionIsTruncated() {
    s.do(http.MethodGet, "/login", nil)

    q := url.Values{"error": {"access_denied"}, "error_description": {strings.Repeat("d", 8000)}}
    rec := s.do(http.MethodGet, "/callback?"+q.Encode(), nil)
    s.Require().Equal(http.StatusFound, rec.Code)
    s.Less(len(rec.Header().Get("Set-Cookie")), 4096)

    rec = s.do(http.MethodGet, "/", nil)
    s.Contains(rec.Body.String(), "Login failed: ddd")
}

func (s *AppSuite) TestCallbackRejectsForeignState() {
    s.do(http.MethodGet, "/login", nil)

    forged, err := utils.NewStateToken(utils.DeriveKey("router-test-secret", utils.PurposeState), "/", "other-nonce", time.Now())
    s.Require().NoError(err)
    q := url.Values{"code": {identitytest.GoodCode}, "state": {forged}}
    rec := s.do(http.MethodGet, "/callback?"+q.Encode(), nil)
    s.Equal(http.StatusFound, rec.Code)
    s.Equal("/", rec.Header().Get(echo.HeaderLocation))

    rec = s.do(http.MethodGet, "/", nil)
    s.Contains(rec.Body.String(), "Login failed: ")
    s.NotContains(rec.Body.String(), "Signed in as")
}

func (s *AppSuite) TestLogoutClearsSession() {
    s.login("/")
    rec := s.do(http.MethodGet, "/", nil)
    s.Contains(rec.Body.String(), "Signed in as "+identitytest.UserName)

    rec = s.do(http.MethodGet, "/logout", nil)
    s.Require().Equal(http.StatusFound, rec.Code)
    loc, err := url.Parse(rec.Header().Get(echo.HeaderLocation))
    s.Require().NoError(err)
    s.Equal("/v2/logout", loc.Path)
    s.Equal(publicURL+"/", loc.Query().Get("returnTo"))
    s.Equal(identitytest.ClientID, loc.Query().Get("client_id"))
    s.Nil(s.cookie)

    rec = s.do(http.MethodGet, "/", nil)
    s.NotContains(rec.Body.String(), "Signed in as")
}

func (s *AppSuite) TestIndexAndStatsShowCount() {
    s.issueID("DE123")
    s.issueID("DE124")

    rec := s.do(http.MethodGet, "/", nil)
    s.Require().Equal(http.StatusOK, rec.Code)
    s.Contains(rec.Body.String(), `<strong id="ticket-count">2</strong>`)

    rec = s.do(http.MethodGet, "/stats", nil)
    s.Require().Equal(http.StatusOK, rec.Code)
    s.JSONEq(`{"ticket_count":2}`, rec.Body.String())
}

func (s *AppSuite) TestOperationalEndpoints() {
    rec := s.do(http.MethodGet, "/healthz", nil)
    s.Equal(http.StatusOK, rec.Code)
    s.Equal("ok", rec.Body.String())

    s.issueID("DE123")
    rec = s.do(http.MethodGet, "/metrics", nil)
    s.Require().Equal(http.StatusOK, rec.Code)
    s.True(strings.Contains(rec.Body.String(), "vat_ticketing_tickets_issued_total 1"))
}

func TestAppSuite(t *testing.T) {
    suite.Run(t, new(AppSuite))
}
