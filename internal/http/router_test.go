package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/hellolink/internal/domain"
	"github.com/dropDatabas3/hellolink/internal/email"
	"github.com/dropDatabas3/hellolink/internal/flow"
	httpx "github.com/dropDatabas3/hellolink/internal/http"
	"github.com/dropDatabas3/hellolink/internal/rate"
	"github.com/dropDatabas3/hellolink/internal/security/password"
	"github.com/dropDatabas3/hellolink/internal/store/memory"
)

const testSecret = "server-side-secret"

type capturingSender struct {
	ch chan email.MagicLinkMessage
}

func (c *capturingSender) Send(msg email.MagicLinkMessage) error {
	c.ch <- msg
	return nil
}

func (c *capturingSender) wait(t *testing.T) email.MagicLinkMessage {
	t.Helper()
	select {
	case msg := <-c.ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no email dispatched")
		return email.MagicLinkMessage{}
	}
}

func newTestServer(t *testing.T, limits rate.Limits) (stdhttp.Handler, *capturingSender) {
	t.Helper()

	store := memory.New()
	hash, err := password.Hash(password.Default, testSecret)
	require.NoError(t, err)
	require.NoError(t, store.Clients().Create(context.Background(), &domain.Client{
		ClientID:       "demo",
		SecretHash:     hash,
		RedirectURIs:   []string{"https://app.example/cb"},
		AllowedOrigins: []string{"https://app.example"},
		Enabled:        true,
		AppName:        "Demo",
	}))

	sender := &capturingSender{ch: make(chan email.MagicLinkMessage, 16)}
	svc := flow.NewService(store, rate.NewMemoryLimiter(), limits, sender, flow.Config{
		PublicBaseURL:  "https://auth.example",
		TokenTTL:       10 * time.Minute,
		CodeTTL:        5 * time.Minute,
		ResendCooldown: time.Minute,
		MaxAttempts:    5,
	})

	h := httpx.NewRouter(httpx.RouterConfig{
		Flow:            svc,
		Store:           store,
		MetricsRegistry: prometheus.NewRegistry(),
	})
	return h, sender
}

func looseLimits() rate.Limits {
	return rate.Limits{IPPerMinute: 100, EmailPerMinute: 100, EmailPerHour: 100, ClientPerMinute: 100}
}

func postJSON(t *testing.T, h stdhttp.Handler, path string, body map[string]string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(stdhttp.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func startBody() map[string]string {
	return map[string]string{
		"client_id":    "demo",
		"email":        "alice@example.com",
		"redirect_uri": "https://app.example/cb",
		"state":        "s1",
	}
}

func TestStartEndpoint_OKWithCORSEcho(t *testing.T) {
	h, sender := newTestServer(t, looseLimits())

	rec := postJSON(t, h, "/v1/auth/start", startBody(), map[string]string{"Origin": "https://app.example"})
	require.Equal(t, stdhttp.StatusOK, rec.Code)
	require.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Contains(t, rec.Header().Values("Vary"), "Origin")

	var res struct {
		Status      string `json:"status"`
		UserCreated bool   `json:"user_created"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Equal(t, "ok", res.Status)
	require.True(t, res.UserCreated)
	sender.wait(t)
}

func TestStartEndpoint_NoCORSForUnknownOrigin(t *testing.T) {
	h, sender := newTestServer(t, looseLimits())

	rec := postJSON(t, h, "/v1/auth/start", startBody(), map[string]string{"Origin": "https://evil.example"})
	require.Equal(t, stdhttp.StatusOK, rec.Code)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	sender.wait(t)
}

func TestStartEndpoint_InvalidClient(t *testing.T) {
	h, _ := newTestServer(t, looseLimits())

	body := startBody()
	body["client_id"] = "nope"
	rec := postJSON(t, h, "/v1/auth/start", body, nil)
	require.Equal(t, stdhttp.StatusBadRequest, rec.Code)
	require.JSONEq(t, `{"error":"invalid_client"}`, rec.Body.String())
}

func TestStartEndpoint_RateLimitedWithRetryAfter(t *testing.T) {
	h, sender := newTestServer(t, rate.Limits{IPPerMinute: 1, EmailPerMinute: 100, EmailPerHour: 100, ClientPerMinute: 100})

	rec := postJSON(t, h, "/v1/auth/start", startBody(), nil)
	require.Equal(t, stdhttp.StatusOK, rec.Code)
	sender.wait(t)

	body := startBody()
	body["email"] = "bob@example.com"
	rec = postJSON(t, h, "/v1/auth/start", body, nil)
	require.Equal(t, stdhttp.StatusTooManyRequests, rec.Code)
	require.JSONEq(t, `{"error":"rate_limited"}`, rec.Body.String())
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestMagicEndpoint_RedirectsToCallback(t *testing.T) {
	h, sender := newTestServer(t, looseLimits())

	rec := postJSON(t, h, "/v1/auth/start", startBody(), nil)
	require.Equal(t, stdhttp.StatusOK, rec.Code)
	msg := sender.wait(t)

	link, err := url.Parse(msg.MagicLink)
	require.NoError(t, err)

	req := httptest.NewRequest(stdhttp.MethodGet, "/magic?t="+url.QueryEscape(link.Query().Get("t")), nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, stdhttp.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "app.example", loc.Host)
	require.NotEmpty(t, loc.Query().Get("code"))
	require.Equal(t, "s1", loc.Query().Get("state"))
}

func TestMagicEndpoint_BadTokenIsPlainText(t *testing.T) {
	h, _ := newTestServer(t, looseLimits())

	req := httptest.NewRequest(stdhttp.MethodGet, "/magic?t=bogus", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, stdhttp.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	require.Contains(t, rec.Body.String(), "Invalid or expired token")
}

func TestCodeEndpoints_FormRoundTrip(t *testing.T) {
	h, sender := newTestServer(t, looseLimits())

	rec := postJSON(t, h, "/v1/auth/start", startBody(), nil)
	require.Equal(t, stdhttp.StatusOK, rec.Code)
	msg := sender.wait(t)

	// página de entrada con prefill
	req := httptest.NewRequest(stdhttp.MethodGet, "/code?email=alice%40example.com&c="+msg.Code, nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, stdhttp.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	require.Contains(t, rec.Body.String(), "alice@example.com")
	require.Contains(t, rec.Body.String(), msg.Code)

	// submit del form
	form := url.Values{"email": {"alice@example.com"}, "code": {msg.Code}}
	req = httptest.NewRequest(stdhttp.MethodPost, "/code", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, stdhttp.StatusFound, rec.Code)
	require.Contains(t, rec.Header().Get("Location"), "code=")
}

func TestTokenEndpoint_ExchangesCode(t *testing.T) {
	h, sender := newTestServer(t, looseLimits())

	rec := postJSON(t, h, "/v1/auth/start", startBody(), nil)
	require.Equal(t, stdhttp.StatusOK, rec.Code)
	msg := sender.wait(t)

	link, _ := url.Parse(msg.MagicLink)
	req := httptest.NewRequest(stdhttp.MethodGet, "/magic?t="+url.QueryEscape(link.Query().Get("t")), nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, stdhttp.StatusFound, rr.Code)
	loc, _ := url.Parse(rr.Header().Get("Location"))

	rec = postJSON(t, h, "/v1/auth/token", map[string]string{
		"client_id":     "demo",
		"client_secret": testSecret,
		"code":          loc.Query().Get("code"),
		"redirect_uri":  "https://app.example/cb",
	}, nil)
	require.Equal(t, stdhttp.StatusOK, rec.Code)

	var res struct {
		UserID    string `json:"user_id"`
		Email     string `json:"email"`
		ExpiresIn int    `json:"expires_in"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Equal(t, "alice@example.com", res.Email)
	require.NotEmpty(t, res.UserID)
	require.Equal(t, 300, res.ExpiresIn)

	// replay del mismo code
	rec = postJSON(t, h, "/v1/auth/token", map[string]string{
		"client_id":     "demo",
		"client_secret": testSecret,
		"code":          loc.Query().Get("code"),
		"redirect_uri":  "https://app.example/cb",
	}, nil)
	require.Equal(t, stdhttp.StatusBadRequest, rec.Code)
	require.JSONEq(t, `{"error":"code_used"}`, rec.Body.String())
}

func TestTokenEndpoint_WrongSecretIs401(t *testing.T) {
	h, _ := newTestServer(t, looseLimits())

	rec := postJSON(t, h, "/v1/auth/token", map[string]string{
		"client_id":     "demo",
		"client_secret": "wrong",
		"code":          "whatever",
		"redirect_uri":  "https://app.example/cb",
	}, nil)
	require.Equal(t, stdhttp.StatusUnauthorized, rec.Code)
	require.JSONEq(t, `{"error":"invalid_client_secret"}`, rec.Body.String())
}

func TestHealthz(t *testing.T) {
	h, _ := newTestServer(t, looseLimits())

	req := httptest.NewRequest(stdhttp.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, stdhttp.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsEndpoint_ServesProvidedRegistry(t *testing.T) {
	h, _ := newTestServer(t, looseLimits())

	// genera al menos una observación antes del scrape
	req := httptest.NewRequest(stdhttp.MethodGet, "/healthz", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(stdhttp.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, stdhttp.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestRequestIDHeader(t *testing.T) {
	h, _ := newTestServer(t, looseLimits())

	req := httptest.NewRequest(stdhttp.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req = httptest.NewRequest(stdhttp.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "fixed-id")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, "fixed-id", rec.Header().Get("X-Request-ID"))
}
