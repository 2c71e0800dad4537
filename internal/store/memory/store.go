// Package memory implementa repository.Store en memoria.
// Se usa con storage.driver=memory (dev) y en los tests; replica la
// semántica condicional del adapter de postgres (CAS sobre used_at,
// reset de ventana server-side) con un mutex.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/hellolink/internal/domain"
	"github.com/dropDatabas3/hellolink/internal/domain/repository"
)

type Store struct {
	mu sync.Mutex

	clients map[string]*domain.Client
	users   map[string]*domain.User // por id
	byEmail map[string]string       // email normalizado -> user id
	logins  map[string]*domain.LoginRequest
	codes   map[string]*domain.AuthCode
	rates   map[rateKey]*rateCounter

	now func() time.Time
}

type rateKey struct {
	scope   string
	scopeID string
	windowS int64
}

type rateCounter struct {
	count   int64
	resetAt time.Time
}

func New() *Store {
	return &Store{
		clients: make(map[string]*domain.Client),
		users:   make(map[string]*domain.User),
		byEmail: make(map[string]string),
		logins:  make(map[string]*domain.LoginRequest),
		codes:   make(map[string]*domain.AuthCode),
		rates:   make(map[rateKey]*rateCounter),
		now:     time.Now,
	}
}

// SetNow fija el reloj del store (solo tests).
func (s *Store) SetNow(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) Clients() repository.ClientStore             { return &clientRepo{s} }
func (s *Store) Users() repository.UserStore                 { return &userRepo{s} }
func (s *Store) LoginRequests() repository.LoginRequestStore { return &loginRepo{s} }
func (s *Store) AuthCodes() repository.AuthCodeStore         { return &codeRepo{s} }
func (s *Store) RateLimits() repository.RateLimitStore       { return &rateRepo{s} }

func (s *Store) Ping(ctx context.Context) error { return nil }
func (s *Store) Close()                         {}

// DeleteUser existe solo para tests de integridad (user_missing).
func (s *Store) DeleteUser(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		delete(s.byEmail, u.EmailNormalized)
		delete(s.users, id)
	}
}

// ─── Clients ───

type clientRepo struct{ s *Store }

func (r *clientRepo) Get(ctx context.Context, clientID string) (*domain.Client, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.clients[clientID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := cloneClient(c)
	return &cp, nil
}

func (r *clientRepo) Create(ctx context.Context, c *domain.Client) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.clients[c.ClientID]; ok {
		return repository.ErrDuplicate
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = r.s.now()
	}
	cp := cloneClient(c)
	r.s.clients[c.ClientID] = &cp
	return nil
}

func (r *clientRepo) Update(ctx context.Context, c *domain.Client) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	prev, ok := r.s.clients[c.ClientID]
	if !ok {
		return repository.ErrNotFound
	}
	cp := cloneClient(c)
	cp.CreatedAt = prev.CreatedAt
	r.s.clients[c.ClientID] = &cp
	return nil
}

func cloneClient(c *domain.Client) domain.Client {
	cp := *c
	cp.RedirectURIs = append([]string(nil), c.RedirectURIs...)
	cp.AllowedOrigins = append([]string(nil), c.AllowedOrigins...)
	cp.EmailLogoPNG = append([]byte(nil), c.EmailLogoPNG...)
	return cp
}

// ─── Users ───

type userRepo struct{ s *Store }

func (r *userRepo) GetOrCreateByEmail(ctx context.Context, emailNormalized string) (*domain.User, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if id, ok := r.s.byEmail[emailNormalized]; ok {
		u := *r.s.users[id]
		return &u, false, nil
	}
	u := &domain.User{
		ID:              uuid.NewString(),
		EmailNormalized: emailNormalized,
		CreatedAt:       r.s.now(),
	}
	r.s.users[u.ID] = u
	r.s.byEmail[emailNormalized] = u.ID
	cp := *u
	return &cp, true, nil
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// ─── LoginRequests ───

type loginRepo struct{ s *Store }

func (r *loginRepo) Create(ctx context.Context, lr *domain.LoginRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if lr.ID == "" {
		lr.ID = uuid.NewString()
	}
	if lr.CreatedAt.IsZero() {
		lr.CreatedAt = r.s.now()
	}
	cp := cloneLogin(lr)
	r.s.logins[lr.ID] = &cp
	return nil
}

func (r *loginRepo) HasActiveSince(ctx context.Context, clientID, userID string, since time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.now()
	for _, lr := range r.s.logins {
		if lr.ClientID == clientID && lr.UserID == userID &&
			lr.UsedAt == nil && lr.ExpiresAt.After(now) && lr.CreatedAt.After(since) {
			return true, nil
		}
	}
	return false, nil
}

func (r *loginRepo) ActiveCodeHashExists(ctx context.Context, codeHash string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.now()
	for _, lr := range r.s.logins {
		if lr.CodeHash == codeHash && lr.UsedAt == nil && lr.ExpiresAt.After(now) {
			return true, nil
		}
	}
	return false, nil
}

func (r *loginRepo) GetByMagicTokenHash(ctx context.Context, hash string) (*domain.LoginRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, lr := range r.s.logins {
		if lr.MagicTokenHash == hash {
			cp := cloneLogin(lr)
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *loginRepo) GetByEmailAndCodeHash(ctx context.Context, emailNormalized, codeHash string) (*domain.LoginRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	uid, ok := r.s.byEmail[emailNormalized]
	if !ok {
		return nil, repository.ErrNotFound
	}
	var matches []*domain.LoginRequest
	for _, lr := range r.s.logins {
		if lr.UserID == uid && lr.CodeHash == codeHash {
			matches = append(matches, lr)
		}
	}
	if len(matches) == 0 {
		return nil, repository.ErrNotFound
	}
	// el más reciente primero
	sort.Slice(matches, func(i, j int) bool { return matches[i].CreatedAt.After(matches[j].CreatedAt) })
	cp := cloneLogin(matches[0])
	return &cp, nil
}

func (r *loginRepo) RecordAttempt(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	lr, ok := r.s.logins[id]
	if !ok {
		return repository.ErrNotFound
	}
	lr.Attempts++
	return nil
}

func (r *loginRepo) MarkUsed(ctx context.Context, id string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	lr, ok := r.s.logins[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if lr.UsedAt != nil {
		return false, nil
	}
	t := r.s.now()
	lr.UsedAt = &t
	return true, nil
}

func cloneLogin(lr *domain.LoginRequest) domain.LoginRequest {
	cp := *lr
	if lr.UsedAt != nil {
		t := *lr.UsedAt
		cp.UsedAt = &t
	}
	return cp
}

// ─── AuthCodes ───

type codeRepo struct{ s *Store }

func (r *codeRepo) Create(ctx context.Context, ac *domain.AuthCode) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if ac.ID == "" {
		ac.ID = uuid.NewString()
	}
	if ac.CreatedAt.IsZero() {
		ac.CreatedAt = r.s.now()
	}
	cp := cloneCode(ac)
	r.s.codes[ac.ID] = &cp
	return nil
}

func (r *codeRepo) GetByClientRedirectAndHash(ctx context.Context, clientID, redirectURI, codeHash string) (*domain.AuthCode, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, ac := range r.s.codes {
		if ac.ClientID == clientID && ac.RedirectURI == redirectURI && ac.CodeHash == codeHash {
			cp := cloneCode(ac)
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *codeRepo) MarkUsed(ctx context.Context, id string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ac, ok := r.s.codes[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if ac.UsedAt != nil {
		return false, nil
	}
	t := r.s.now()
	ac.UsedAt = &t
	return true, nil
}

func cloneCode(ac *domain.AuthCode) domain.AuthCode {
	cp := *ac
	if ac.UsedAt != nil {
		t := *ac.UsedAt
		cp.UsedAt = &t
	}
	return cp
}

// ─── RateLimits ───

type rateRepo struct{ s *Store }

func (r *rateRepo) Consume(ctx context.Context, scope, scopeID string, window time.Duration) (int64, time.Time, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.now()
	k := rateKey{scope: scope, scopeID: scopeID, windowS: int64(window.Seconds())}
	c, ok := r.s.rates[k]
	if !ok || !c.resetAt.After(now) {
		c = &rateCounter{count: 1, resetAt: now.Add(window)}
		r.s.rates[k] = c
	} else {
		c.count++
	}
	return c.count, c.resetAt, nil
}
