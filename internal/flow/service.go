// Package flow orquesta el protocolo del broker: start → emisión de
// credenciales → redención (link o código) → auth code → exchange.
// Los handlers HTTP son cáscaras finas sobre este paquete.
package flow

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/dropDatabas3/hellolink/internal/domain"
	"github.com/dropDatabas3/hellolink/internal/domain/repository"
	"github.com/dropDatabas3/hellolink/internal/email"
	"github.com/dropDatabas3/hellolink/internal/observability/logger"
	"github.com/dropDatabas3/hellolink/internal/rate"
	"github.com/dropDatabas3/hellolink/internal/security/password"
	"github.com/dropDatabas3/hellolink/internal/security/token"
	"github.com/dropDatabas3/hellolink/internal/util"
)

// Config son los parámetros del protocolo.
type Config struct {
	PublicBaseURL  string
	TokenTTL       time.Duration // validez del magic link / código
	CodeTTL        time.Duration // validez del auth code
	ResendCooldown time.Duration
	MaxAttempts    int
}

// Service implementa las operaciones del protocolo sobre los ports de
// repository, el rate limiter y el sender de email.
type Service struct {
	store   repository.Store
	limiter rate.Limiter
	limits  rate.Limits
	sender  email.Sender
	cfg     Config

	now func() time.Time
}

func NewService(store repository.Store, limiter rate.Limiter, limits rate.Limits, sender email.Sender, cfg Config) *Service {
	return &Service{
		store:   store,
		limiter: limiter,
		limits:  limits,
		sender:  sender,
		cfg:     cfg,
		now:     time.Now,
	}
}

// SetNow fija el reloj del service (solo tests).
func (s *Service) SetNow(now func() time.Time) { s.now = now }

// ─── Start ───

// StartInput es el request de POST /v1/auth/start.
type StartInput struct {
	ClientID    string
	Email       string
	RedirectURI string
	State       string
	AppReturnTo string
	AppName     string // override de branding por request

	IP        string
	UserAgent string
}

// StartResult es la respuesta del start. Status es "ok" o "cooldown";
// ambos son respuestas 200.
type StartResult struct {
	Status      string `json:"status"`
	UserCreated bool   `json:"user_created"`
	Message     string `json:"message"`
}

// Start valida client y redirect, aplica rate limits, resuelve el user,
// respeta el cooldown de reenvío y emite el par magic-token + código de
// 6 dígitos. El email sale fire-and-forget: un fallo de SMTP no altera
// la respuesta.
func (s *Service) Start(ctx context.Context, in StartInput) (*StartResult, error) {
	log := logger.Named("flow").With(logger.ClientID(in.ClientID))

	client, err := s.resolveClient(ctx, in.ClientID)
	if err != nil {
		return nil, err
	}
	if !client.RedirectAllowed(in.RedirectURI) {
		return nil, ErrInvalidRedirectURI
	}

	emailNorm := domain.NormalizeEmail(in.Email)
	log = log.With(logger.Email(util.MaskEmail(emailNorm)))

	res, err := rate.ConsumeAll(ctx, s.limiter, rate.StartChecks(s.limits, in.IP, emailNorm, in.ClientID))
	if err != nil {
		log.Error("rate limiter failure", logger.Err(err))
		return nil, ErrInternal
	}
	if !res.Allowed {
		return nil, RateLimited(res.RetryAfter)
	}

	user, created, err := s.store.Users().GetOrCreateByEmail(ctx, emailNorm)
	if err != nil {
		log.Error("get or create user", logger.Err(err))
		return nil, ErrInternal
	}

	now := s.now()
	active, err := s.store.LoginRequests().HasActiveSince(ctx, in.ClientID, user.ID, now.Add(-s.cfg.ResendCooldown))
	if err != nil {
		log.Error("cooldown lookup", logger.Err(err))
		return nil, ErrInternal
	}
	if active {
		log.Info("start short-circuit", logger.Event("auth_start_cooldown"))
		return &StartResult{
			Status:      "cooldown",
			UserCreated: created,
			Message:     "A sign-in link was recently sent. Please check your inbox.",
		}, nil
	}

	magicToken, err := token.GenerateOpaqueToken(32)
	if err != nil {
		return nil, ErrInternal
	}
	code6, err := s.generateCode(ctx)
	if err != nil {
		return nil, ErrInternal
	}

	lr := &domain.LoginRequest{
		ClientID:       in.ClientID,
		UserID:         user.ID,
		RedirectURI:    in.RedirectURI,
		State:          in.State,
		AppReturnTo:    in.AppReturnTo,
		MagicTokenHash: token.SHA256Base64URL(magicToken),
		CodeHash:       token.SHA256Base64URL(token.NormalizeLoginCode(code6)),
		ExpiresAt:      now.Add(s.cfg.TokenTTL),
		IP:             in.IP,
		UserAgent:      in.UserAgent,
	}
	if err := s.store.LoginRequests().Create(ctx, lr); err != nil {
		log.Error("insert login request", logger.Err(err))
		return nil, ErrInternal
	}

	msg := email.MagicLinkMessage{
		To:           emailNorm,
		MagicLink:    s.cfg.PublicBaseURL + "/magic?t=" + url.QueryEscape(magicToken),
		Code:         code6,
		CodeEntryURL: s.cfg.PublicBaseURL + "/code?email=" + url.QueryEscape(emailNorm) + "&c=" + url.QueryEscape(code6),
		TTL:          s.cfg.TokenTTL,
		Branding:     s.branding(client, in.AppName),
	}
	go func() {
		if err := s.sender.Send(msg); err != nil {
			logger.Named("flow").Error("email dispatch failed",
				logger.ClientID(in.ClientID),
				logger.Email(util.MaskEmail(emailNorm)),
				logger.Err(err),
			)
		}
	}()

	log.Info("start ok", logger.Event("auth_start_ok"), logger.Bool("user_created", created))

	msgText := "We sent you an email with a magic link and a 6-digit code."
	if created {
		msgText = "Created account and sent you an email with a magic link and a 6-digit code."
	}
	return &StartResult{Status: "ok", UserCreated: created, Message: msgText}, nil
}

func (s *Service) resolveClient(ctx context.Context, clientID string) (*domain.Client, error) {
	client, err := s.store.Clients().Get(ctx, clientID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidClient
	}
	if err != nil {
		logger.Named("flow").Error("client lookup", logger.ClientID(clientID), logger.Err(err))
		return nil, ErrInternal
	}
	if !client.Enabled {
		return nil, ErrInvalidClient
	}
	return client, nil
}

// OriginAllowed resuelve si el Origin está en la allowlist del client.
// Los handlers lo usan para el echo condicional de CORS; un client
// inválido simplemente no obtiene header.
func (s *Service) OriginAllowed(ctx context.Context, clientID, origin string) bool {
	if origin == "" {
		return false
	}
	client, err := s.store.Clients().Get(ctx, clientID)
	if err != nil {
		return false
	}
	return client.OriginAllowed(origin)
}

// generateCode sortea el código de 6 dígitos con un probe best-effort de
// colisiones activas: hasta 4 reintentos y después acepta lo que salga.
// No es una garantía de unicidad, el espacio de códigos es chico.
func (s *Service) generateCode(ctx context.Context) (string, error) {
	code, err := token.GenerateLoginCode()
	if err != nil {
		return "", err
	}
	for i := 0; i < 4; i++ {
		hash := token.SHA256Base64URL(token.NormalizeLoginCode(code))
		exists, err := s.store.LoginRequests().ActiveCodeHashExists(ctx, hash)
		if err != nil {
			return "", err
		}
		if !exists {
			break
		}
		if code, err = token.GenerateLoginCode(); err != nil {
			return "", err
		}
	}
	return code, nil
}

func (s *Service) branding(client *domain.Client, appNameOverride string) email.Branding {
	b := email.Branding{
		AppName:     client.AppName,
		Subject:     client.EmailSubject,
		ButtonColor: client.EmailButtonColor,
		LogoPNG:     client.EmailLogoPNG,
	}
	if appNameOverride != "" {
		b.AppName = appNameOverride
	}
	return b
}

// ─── Redención ───

// Redemption es el resultado de canjear un magic link o un código:
// la URL de callback con el auth code (y el state original) ya armada.
type Redemption struct {
	RedirectURL string
	ClientID    string
	UserID      string
}

// RedeemMagicLink canjea el token del link. El rate limiting no aplica
// acá: el token es de alta entropía y single-use.
func (s *Service) RedeemMagicLink(ctx context.Context, rawToken string) (*Redemption, error) {
	if rawToken == "" {
		return nil, ErrLoginNotFound
	}
	lr, err := s.store.LoginRequests().GetByMagicTokenHash(ctx, token.SHA256Base64URL(rawToken))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrLoginNotFound
	}
	if err != nil {
		logger.Named("flow").Error("magic token lookup", logger.Err(err))
		return nil, ErrInternal
	}
	red, err := s.redeem(ctx, lr)
	if err == nil {
		logger.Named("flow").Info("magic link redeemed",
			logger.Event("magic_click_ok"), logger.ClientID(lr.ClientID))
	}
	return red, err
}

// RedeemCode canjea el par (email, código). A diferencia del link, acá
// sí hay rate limiting: el espacio de 6 dígitos es fuerza-bruteable.
func (s *Service) RedeemCode(ctx context.Context, rawEmail, rawCode, ip string) (*Redemption, error) {
	emailNorm := domain.NormalizeEmail(rawEmail)
	codeNorm := token.NormalizeLoginCode(rawCode)
	if emailNorm == "" || codeNorm == "" {
		return nil, ErrLoginNotFound
	}

	res, err := rate.ConsumeAll(ctx, s.limiter, rate.VerifyChecks(s.limits, ip, emailNorm))
	if err != nil {
		logger.Named("flow").Error("rate limiter failure", logger.Err(err))
		return nil, ErrInternal
	}
	if !res.Allowed {
		return nil, RateLimited(res.RetryAfter)
	}

	lr, err := s.store.LoginRequests().GetByEmailAndCodeHash(ctx, emailNorm, token.SHA256Base64URL(codeNorm))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrLoginNotFound
	}
	if err != nil {
		logger.Named("flow").Error("code lookup", logger.Err(err))
		return nil, ErrInternal
	}
	red, err := s.redeem(ctx, lr)
	if err == nil {
		logger.Named("flow").Info("code redeemed",
			logger.Event("code_verify_ok"), logger.ClientID(lr.ClientID))
	}
	return red, err
}

// redeem es el camino común de ambas redenciones. El incremento de
// attempts es incondicional y ocurre antes de evaluar estados
// terminales, en el orden used → expired → locked. El single-use lo
// decide el conditional update de MarkUsed: exactamente un ganador.
func (s *Service) redeem(ctx context.Context, lr *domain.LoginRequest) (*Redemption, error) {
	if err := s.store.LoginRequests().RecordAttempt(ctx, lr.ID); err != nil {
		logger.Named("flow").Error("record attempt", logger.LoginRequestID(lr.ID), logger.Err(err))
	}

	switch {
	case lr.UsedAt != nil:
		return nil, ErrLoginUsed
	case lr.Expired(s.now()):
		return nil, ErrLoginExpired
	case lr.Attempts >= s.cfg.MaxAttempts:
		return nil, ErrLoginLocked
	}

	won, err := s.store.LoginRequests().MarkUsed(ctx, lr.ID)
	if err != nil {
		logger.Named("flow").Error("mark used", logger.LoginRequestID(lr.ID), logger.Err(err))
		return nil, ErrInternal
	}
	if !won {
		return nil, ErrLoginUsed
	}

	authCode, err := token.GenerateOpaqueToken(32)
	if err != nil {
		return nil, ErrInternal
	}
	ac := &domain.AuthCode{
		ClientID:    lr.ClientID,
		UserID:      lr.UserID,
		RedirectURI: lr.RedirectURI,
		CodeHash:    token.SHA256Base64URL(authCode),
		ExpiresAt:   s.now().Add(s.cfg.CodeTTL),
	}
	if err := s.store.AuthCodes().Create(ctx, ac); err != nil {
		logger.Named("flow").Error("insert auth code", logger.Err(err))
		return nil, ErrInternal
	}

	location := fmt.Sprintf("%s?code=%s&state=%s",
		lr.RedirectURI, url.QueryEscape(authCode), url.QueryEscape(lr.State))
	return &Redemption{RedirectURL: location, ClientID: lr.ClientID, UserID: lr.UserID}, nil
}

// ─── Exchange ───

// ExchangeInput es el request server-to-server de POST /v1/auth/token.
type ExchangeInput struct {
	ClientID     string
	ClientSecret string
	Code         string
	RedirectURI  string
}

// TokenResult es la identidad que recibe el backend del client.
type TokenResult struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresIn int       `json:"expires_in"`
}

// Exchange canjea el auth code por la identidad del user. El secret se
// verifica con argon2id; el lookup del code exige la tripleta exacta
// (client_id, redirect_uri, hash).
func (s *Service) Exchange(ctx context.Context, in ExchangeInput) (*TokenResult, error) {
	client, err := s.resolveClient(ctx, in.ClientID)
	if err != nil {
		return nil, err
	}
	if !client.RedirectAllowed(in.RedirectURI) {
		return nil, ErrInvalidRedirectURI
	}
	if !password.Verify(in.ClientSecret, client.SecretHash) {
		return nil, ErrInvalidClientSecret
	}

	ac, err := s.store.AuthCodes().GetByClientRedirectAndHash(ctx,
		in.ClientID, in.RedirectURI, token.SHA256Base64URL(in.Code))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidCode
	}
	if err != nil {
		logger.Named("flow").Error("auth code lookup", logger.Err(err))
		return nil, ErrInternal
	}

	if ac.UsedAt != nil {
		return nil, ErrCodeUsed
	}
	if ac.Expired(s.now()) {
		return nil, ErrCodeExpired
	}

	won, err := s.store.AuthCodes().MarkUsed(ctx, ac.ID)
	if err != nil {
		logger.Named("flow").Error("mark auth code used", logger.Err(err))
		return nil, ErrInternal
	}
	if !won {
		return nil, ErrCodeUsed
	}

	user, err := s.store.Users().GetByID(ctx, ac.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserMissing
	}
	if err != nil {
		logger.Named("flow").Error("user lookup", logger.UserID(ac.UserID), logger.Err(err))
		return nil, ErrInternal
	}

	logger.Named("flow").Info("code exchanged",
		logger.Event("token_exchange_ok"),
		logger.ClientID(in.ClientID),
		logger.UserID(user.ID),
	)
	return &TokenResult{
		UserID:    user.ID,
		Email:     user.EmailNormalized,
		IssuedAt:  s.now(),
		ExpiresIn: int(s.cfg.CodeTTL.Seconds()),
	}, nil
}
