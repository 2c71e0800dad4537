package flow_test

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dropDatabas3/hellolink/internal/domain"
	"github.com/dropDatabas3/hellolink/internal/email"
	"github.com/dropDatabas3/hellolink/internal/flow"
	"github.com/dropDatabas3/hellolink/internal/rate"
	"github.com/dropDatabas3/hellolink/internal/security/password"
	"github.com/dropDatabas3/hellolink/internal/security/token"
	"github.com/dropDatabas3/hellolink/internal/store/memory"
)

const testSecret = "super-secret-client-credential"

// fakeSender captura los mensajes despachados; Start los manda en un
// goroutine, así que la lectura espera por canal.
type fakeSender struct {
	ch chan email.MagicLinkMessage
}

func newFakeSender() *fakeSender {
	return &fakeSender{ch: make(chan email.MagicLinkMessage, 16)}
}

func (f *fakeSender) Send(msg email.MagicLinkMessage) error {
	f.ch <- msg
	return nil
}

func (f *fakeSender) wait(t *testing.T) email.MagicLinkMessage {
	t.Helper()
	select {
	case msg := <-f.ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no email dispatched")
		return email.MagicLinkMessage{}
	}
}

func (f *fakeSender) assertNone(t *testing.T) {
	t.Helper()
	select {
	case msg := <-f.ch:
		t.Fatalf("unexpected email to %s", msg.To)
	case <-time.After(50 * time.Millisecond):
	}
}

// clock es un reloj controlable compartido entre service y store.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock { return &clock{t: time.Now()} }

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	svc    *flow.Service
	store  *memory.Store
	sender *fakeSender
	clk    *clock
}

func newFixture(t *testing.T, limits rate.Limits) *fixture {
	t.Helper()

	store := memory.New()
	clk := newClock()
	store.SetNow(clk.now)

	hash, err := password.Hash(password.Default, testSecret)
	if err != nil {
		t.Fatalf("hash secret: %v", err)
	}
	client := &domain.Client{
		ClientID:       "demo",
		SecretHash:     hash,
		RedirectURIs:   []string{"https://app.example/cb", "https://app.example/alt"},
		AllowedOrigins: []string{"https://app.example"},
		Enabled:        true,
		AppName:        "Demo App",
	}
	if err := store.Clients().Create(context.Background(), client); err != nil {
		t.Fatalf("seed client: %v", err)
	}

	sender := newFakeSender()
	svc := flow.NewService(store, rate.NewMemoryLimiter(), limits, sender, flow.Config{
		PublicBaseURL:  "https://auth.example",
		TokenTTL:       10 * time.Minute,
		CodeTTL:        5 * time.Minute,
		ResendCooldown: time.Minute,
		MaxAttempts:    5,
	})
	svc.SetNow(clk.now)

	return &fixture{svc: svc, store: store, sender: sender, clk: clk}
}

func looseLimits() rate.Limits {
	return rate.Limits{IPPerMinute: 100, EmailPerMinute: 100, EmailPerHour: 100, ClientPerMinute: 100}
}

func startInput(email string) flow.StartInput {
	return flow.StartInput{
		ClientID:    "demo",
		Email:       email,
		RedirectURI: "https://app.example/cb",
		State:       "xyz-state",
		IP:          "1.2.3.4",
		UserAgent:   "tests",
	}
}

func flowCode(t *testing.T, err error) string {
	t.Helper()
	fe, ok := err.(*flow.FlowError)
	if !ok {
		t.Fatalf("expected *flow.FlowError, got %T: %v", err, err)
	}
	return fe.Code
}

// ─── Start ───

func TestStart_SendsMagicLinkAndCode(t *testing.T) {
	f := newFixture(t, looseLimits())

	res, err := f.svc.Start(context.Background(), startInput("  Alice@Example.com "))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if res.Status != "ok" {
		t.Fatalf("status = %q", res.Status)
	}
	if !res.UserCreated {
		t.Fatal("first start for a new email should report user_created")
	}

	msg := f.sender.wait(t)
	if msg.To != "alice@example.com" {
		t.Fatalf("email sent to %q, want normalized address", msg.To)
	}
	if !strings.HasPrefix(msg.MagicLink, "https://auth.example/magic?t=") {
		t.Fatalf("magic link %q", msg.MagicLink)
	}
	if len(msg.Code) != 6 {
		t.Fatalf("code %q is not 6 digits", msg.Code)
	}
	if msg.Branding.AppName != "Demo App" {
		t.Fatalf("branding app name = %q", msg.Branding.AppName)
	}
}

func TestStart_AppNameOverride(t *testing.T) {
	f := newFixture(t, looseLimits())

	in := startInput("a@b.com")
	in.AppName = "Campaign Login"
	if _, err := f.svc.Start(context.Background(), in); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if msg := f.sender.wait(t); msg.Branding.AppName != "Campaign Login" {
		t.Fatalf("app name override ignored: %q", msg.Branding.AppName)
	}
}

func TestStart_CooldownIsIdempotent(t *testing.T) {
	f := newFixture(t, looseLimits())
	ctx := context.Background()

	if _, err := f.svc.Start(ctx, startInput("alice@example.com")); err != nil {
		t.Fatalf("first start: %v", err)
	}
	f.sender.wait(t)

	res, err := f.svc.Start(ctx, startInput("alice@example.com"))
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if res.Status != "cooldown" {
		t.Fatalf("status = %q, want cooldown", res.Status)
	}
	if res.UserCreated {
		t.Fatal("second start reported user_created")
	}
	f.sender.assertNone(t)

	// pasado el cooldown, vuelve a emitir
	f.clk.advance(2 * time.Minute)
	res, err = f.svc.Start(ctx, startInput("alice@example.com"))
	if err != nil {
		t.Fatalf("third start: %v", err)
	}
	if res.Status != "ok" {
		t.Fatalf("status after cooldown = %q", res.Status)
	}
	f.sender.wait(t)
}

func TestStart_RejectsUnknownAndDisabledClient(t *testing.T) {
	f := newFixture(t, looseLimits())
	ctx := context.Background()

	in := startInput("a@b.com")
	in.ClientID = "nope"
	_, err := f.svc.Start(ctx, in)
	if flowCode(t, err) != "invalid_client" {
		t.Fatalf("unknown client: %v", err)
	}

	c, _ := f.store.Clients().Get(ctx, "demo")
	c.Enabled = false
	_ = f.store.Clients().Update(ctx, c)

	_, err = f.svc.Start(ctx, startInput("a@b.com"))
	if flowCode(t, err) != "invalid_client" {
		t.Fatalf("disabled client: %v", err)
	}
}

func TestStart_RejectsUnlistedRedirect(t *testing.T) {
	f := newFixture(t, looseLimits())

	in := startInput("a@b.com")
	in.RedirectURI = "https://evil.example/cb"
	_, err := f.svc.Start(context.Background(), in)
	if flowCode(t, err) != "invalid_redirect_uri" {
		t.Fatalf("got %v", err)
	}

	// el match es por igualdad exacta, no por prefijo
	in.RedirectURI = "https://app.example/cb/extra"
	_, err = f.svc.Start(context.Background(), in)
	if flowCode(t, err) != "invalid_redirect_uri" {
		t.Fatalf("prefix match accepted: %v", err)
	}
}

func TestStart_RateLimited(t *testing.T) {
	f := newFixture(t, rate.Limits{IPPerMinute: 1, EmailPerMinute: 100, EmailPerHour: 100, ClientPerMinute: 100})
	ctx := context.Background()

	if _, err := f.svc.Start(ctx, startInput("a@b.com")); err != nil {
		t.Fatalf("first start: %v", err)
	}
	f.sender.wait(t)

	_, err := f.svc.Start(ctx, startInput("other@b.com"))
	fe, ok := err.(*flow.FlowError)
	if !ok || fe.Code != "rate_limited" {
		t.Fatalf("got %v, want rate_limited", err)
	}
	if fe.RetryAfter < time.Second || fe.RetryAfter > time.Minute {
		t.Fatalf("RetryAfter = %v", fe.RetryAfter)
	}
	f.sender.assertNone(t)
}

// ─── Redención ───

func magicToken(t *testing.T, msg email.MagicLinkMessage) string {
	t.Helper()
	u, err := url.Parse(msg.MagicLink)
	if err != nil {
		t.Fatalf("parse magic link: %v", err)
	}
	return u.Query().Get("t")
}

func (f *fixture) startAndCapture(t *testing.T, addr string) email.MagicLinkMessage {
	t.Helper()
	if _, err := f.svc.Start(context.Background(), startInput(addr)); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return f.sender.wait(t)
}

func TestRedeemMagicLink_RedirectsWithCodeAndState(t *testing.T) {
	f := newFixture(t, looseLimits())
	msg := f.startAndCapture(t, "alice@example.com")

	red, err := f.svc.RedeemMagicLink(context.Background(), magicToken(t, msg))
	if err != nil {
		t.Fatalf("RedeemMagicLink: %v", err)
	}

	u, err := url.Parse(red.RedirectURL)
	if err != nil {
		t.Fatalf("parse redirect: %v", err)
	}
	if got := u.Scheme + "://" + u.Host + u.Path; got != "https://app.example/cb" {
		t.Fatalf("redirect base = %q", got)
	}
	if u.Query().Get("code") == "" {
		t.Fatal("redirect missing code")
	}
	if u.Query().Get("state") != "xyz-state" {
		t.Fatalf("state = %q", u.Query().Get("state"))
	}
}

func TestRedeemMagicLink_UnknownToken(t *testing.T) {
	f := newFixture(t, looseLimits())
	_, err := f.svc.RedeemMagicLink(context.Background(), "no-such-token")
	if flowCode(t, err) != "login_not_found" {
		t.Fatalf("got %v", err)
	}
}

func TestRedeemMagicLink_SingleUseUnderConcurrency(t *testing.T) {
	f := newFixture(t, looseLimits())
	msg := f.startAndCapture(t, "alice@example.com")
	token := magicToken(t, msg)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = f.svc.RedeemMagicLink(context.Background(), token)
		}(i)
	}
	wg.Wait()

	var ok, used int
	for _, err := range results {
		switch {
		case err == nil:
			ok++
		case flowCode(t, err) == "login_used":
			used++
		default:
			t.Fatalf("unexpected result: %v", err)
		}
	}
	if ok != 1 || used != 1 {
		t.Fatalf("ok=%d used=%d, want exactly one winner", ok, used)
	}
}

func TestRedeemMagicLink_Expired(t *testing.T) {
	f := newFixture(t, looseLimits())
	msg := f.startAndCapture(t, "alice@example.com")
	token := magicToken(t, msg)

	// el límite superior es exclusivo: en el instante exacto ya venció
	f.clk.advance(10 * time.Minute)
	_, err := f.svc.RedeemMagicLink(context.Background(), token)
	if flowCode(t, err) != "login_expired" {
		t.Fatalf("at boundary: %v", err)
	}

	// y sigue vencido después; used nunca aparece porque nadie ganó
	f.clk.advance(time.Hour)
	_, err = f.svc.RedeemMagicLink(context.Background(), token)
	if flowCode(t, err) != "login_expired" {
		t.Fatalf("well past expiry: %v", err)
	}
}

func TestRedeemMagicLink_LockedAfterMaxAttempts(t *testing.T) {
	f := newFixture(t, looseLimits())
	msg := f.startAndCapture(t, "alice@example.com")
	tok := magicToken(t, msg)
	ctx := context.Background()

	lr, err := f.store.LoginRequests().GetByMagicTokenHash(ctx, token.SHA256Base64URL(tok))
	if err != nil {
		t.Fatalf("lookup request: %v", err)
	}
	// bombear el contador hasta el máximo configurado (5)
	for i := 0; i < 5; i++ {
		if err := f.store.LoginRequests().RecordAttempt(ctx, lr.ID); err != nil {
			t.Fatalf("record attempt: %v", err)
		}
	}

	_, err = f.svc.RedeemMagicLink(ctx, tok)
	if flowCode(t, err) != "login_locked" {
		t.Fatalf("got %v, want login_locked", err)
	}
}

func TestRedeemMagicLink_UsedWinsOverLocked(t *testing.T) {
	f := newFixture(t, looseLimits())
	msg := f.startAndCapture(t, "alice@example.com")
	tok := magicToken(t, msg)
	ctx := context.Background()

	if _, err := f.svc.RedeemMagicLink(ctx, tok); err != nil {
		t.Fatalf("first redeem should succeed: %v", err)
	}
	// un token ya usado reporta used, no locked, aunque se lo martille
	// más allá del máximo de intentos
	for i := 0; i < 10; i++ {
		if _, err := f.svc.RedeemMagicLink(ctx, tok); flowCode(t, err) != "login_used" {
			t.Fatalf("replay %d: %v", i, err)
		}
	}
}

func TestRedeemCode_HappyPathWithSloppyPaste(t *testing.T) {
	f := newFixture(t, looseLimits())
	msg := f.startAndCapture(t, "alice@example.com")

	// el usuario pega el código con espacios y el email con mayúsculas
	red, err := f.svc.RedeemCode(context.Background(), " ALICE@example.com", "  "+msg.Code+"\t", "5.6.7.8")
	if err != nil {
		t.Fatalf("RedeemCode: %v", err)
	}
	if !strings.Contains(red.RedirectURL, "code=") {
		t.Fatalf("redirect %q missing code", red.RedirectURL)
	}
}

func TestRedeemCode_WrongCode(t *testing.T) {
	f := newFixture(t, looseLimits())
	f.startAndCapture(t, "alice@example.com")

	_, err := f.svc.RedeemCode(context.Background(), "alice@example.com", "000000", "5.6.7.8")
	if code := flowCode(t, err); code != "login_not_found" {
		t.Fatalf("got %v", err)
	}
}

func TestRedeemCode_RateLimited(t *testing.T) {
	f := newFixture(t, rate.Limits{IPPerMinute: 1, EmailPerMinute: 100, EmailPerHour: 100, ClientPerMinute: 100})
	msg := f.startAndCapture(t, "alice@example.com")

	// la ip del start ya consumió su cupo de 1/min
	_, err := f.svc.RedeemCode(context.Background(), "alice@example.com", msg.Code, "1.2.3.4")
	if flowCode(t, err) != "rate_limited" {
		t.Fatalf("got %v", err)
	}
}

func TestRedeemCode_EmptyInputDoesNotConsumeBudget(t *testing.T) {
	f := newFixture(t, rate.Limits{IPPerMinute: 1, EmailPerMinute: 100, EmailPerHour: 100, ClientPerMinute: 100})
	ctx := context.Background()

	// un form vacío se rechaza antes de tocar el limiter
	for i := 0; i < 5; i++ {
		_, err := f.svc.RedeemCode(ctx, "", "", "9.9.9.9")
		if flowCode(t, err) != "login_not_found" {
			t.Fatalf("empty input attempt %d: got %v", i, err)
		}
	}

	// el cupo de 1/min de esa ip sigue intacto: el primer intento real
	// pasa el limiter (y falla por código inexistente), el segundo no
	_, err := f.svc.RedeemCode(ctx, "alice@example.com", "000000", "9.9.9.9")
	if flowCode(t, err) != "login_not_found" {
		t.Fatalf("first real attempt: got %v", err)
	}
	_, err = f.svc.RedeemCode(ctx, "alice@example.com", "000000", "9.9.9.9")
	if flowCode(t, err) != "rate_limited" {
		t.Fatalf("second real attempt: got %v", err)
	}
}

// ─── Exchange ───

func (f *fixture) redeemedCode(t *testing.T, addr string) (authCode string) {
	t.Helper()
	msg := f.startAndCapture(t, addr)
	red, err := f.svc.RedeemMagicLink(context.Background(), magicToken(t, msg))
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	u, _ := url.Parse(red.RedirectURL)
	return u.Query().Get("code")
}

func exchangeInput(code string) flow.ExchangeInput {
	return flow.ExchangeInput{
		ClientID:     "demo",
		ClientSecret: testSecret,
		Code:         code,
		RedirectURI:  "https://app.example/cb",
	}
}

func TestExchange_ReturnsIdentity(t *testing.T) {
	f := newFixture(t, looseLimits())
	code := f.redeemedCode(t, "alice@example.com")

	res, err := f.svc.Exchange(context.Background(), exchangeInput(code))
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if res.Email != "alice@example.com" {
		t.Fatalf("email = %q", res.Email)
	}
	if res.UserID == "" {
		t.Fatal("missing user_id")
	}
	if res.ExpiresIn != int((5 * time.Minute).Seconds()) {
		t.Fatalf("expires_in = %d", res.ExpiresIn)
	}
}

func TestExchange_WrongSecret(t *testing.T) {
	f := newFixture(t, looseLimits())
	code := f.redeemedCode(t, "alice@example.com")

	in := exchangeInput(code)
	in.ClientSecret = "not-the-secret"
	_, err := f.svc.Exchange(context.Background(), in)
	fe, ok := err.(*flow.FlowError)
	if !ok || fe.Code != "invalid_client_secret" {
		t.Fatalf("got %v", err)
	}
	if fe.HTTPStatus != 401 {
		t.Fatalf("status = %d, want 401", fe.HTTPStatus)
	}

	// el secret equivocado no quemó el code
	if _, err := f.svc.Exchange(context.Background(), exchangeInput(code)); err != nil {
		t.Fatalf("code burned by failed secret check: %v", err)
	}
}

func TestExchange_RedirectMustMatchIssuance(t *testing.T) {
	f := newFixture(t, looseLimits())
	code := f.redeemedCode(t, "alice@example.com")

	// /alt está en la allowlist pero no es el redirect del code
	in := exchangeInput(code)
	in.RedirectURI = "https://app.example/alt"
	_, err := f.svc.Exchange(context.Background(), in)
	if flowCode(t, err) != "invalid_code" {
		t.Fatalf("got %v", err)
	}

	// uno fuera de la allowlist corta antes
	in.RedirectURI = "https://evil.example/cb"
	_, err = f.svc.Exchange(context.Background(), in)
	if flowCode(t, err) != "invalid_redirect_uri" {
		t.Fatalf("got %v", err)
	}
}

func TestExchange_SingleUse(t *testing.T) {
	f := newFixture(t, looseLimits())
	code := f.redeemedCode(t, "alice@example.com")
	ctx := context.Background()

	if _, err := f.svc.Exchange(ctx, exchangeInput(code)); err != nil {
		t.Fatalf("first exchange: %v", err)
	}
	_, err := f.svc.Exchange(ctx, exchangeInput(code))
	if flowCode(t, err) != "code_used" {
		t.Fatalf("got %v", err)
	}
}

func TestExchange_ExpiredCode(t *testing.T) {
	f := newFixture(t, looseLimits())
	code := f.redeemedCode(t, "alice@example.com")

	f.clk.advance(5 * time.Minute)
	_, err := f.svc.Exchange(context.Background(), exchangeInput(code))
	if flowCode(t, err) != "code_expired" {
		t.Fatalf("got %v", err)
	}
}

func TestExchange_UserMissing(t *testing.T) {
	f := newFixture(t, looseLimits())
	code := f.redeemedCode(t, "alice@example.com")
	ctx := context.Background()

	u, _, err := f.store.Users().GetOrCreateByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("lookup user: %v", err)
	}
	f.store.DeleteUser(u.ID)

	_, err = f.svc.Exchange(ctx, exchangeInput(code))
	fe, ok := err.(*flow.FlowError)
	if !ok || fe.Code != "user_missing" {
		t.Fatalf("got %v", err)
	}
	if fe.HTTPStatus != 500 {
		t.Fatalf("status = %d, want 500", fe.HTTPStatus)
	}
}

func TestConcurrentStart_BoundedDuplicates(t *testing.T) {
	// dos starts simultáneos para el mismo user pueden pasar el cooldown
	// a la vez; es una imperfección aceptada y acotada: ambos 200 y cada
	// uno con su email
	f := newFixture(t, looseLimits())

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Start(context.Background(), startInput("x@y.com"))
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
	}
}
