// Package testbackend is an in-memory implementation of the portal's REST
// backend. It speaks the same wire contract as the real service, keeps its
// session in a signed "token" cookie and lets tests inject failures, hold
// requests and count calls.
package testbackend

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/FACorreiaa/citizen-portal/internal/api"
	"github.com/FACorreiaa/citizen-portal/internal/types"
)

const (
	tokenTTL = time.Hour
	issuer   = "citizen-portal-testbackend"
)

type record struct {
	user types.User
	hash []byte
}

// Backend is the fake server state.
type Backend struct {
	mu     sync.Mutex
	users  map[string]*record
	secret []byte
	seq    int

	calls    map[string]int
	failures map[string][]int
	holds    map[string]chan struct{}

	validator *api.Validator
	logger    *slog.Logger
	cost      int
	now       func() time.Time

	router chi.Router
}

// New creates an empty backend.
func New(logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Backend{
		users:     make(map[string]*record),
		secret:    []byte(uuid.NewString()),
		calls:     make(map[string]int),
		failures:  make(map[string][]int),
		holds:     make(map[string]chan struct{}),
		validator: api.NewValidator(),
		logger:    logger.With(slog.String("component", "testbackend")),
		cost:      bcrypt.MinCost,
		now:       time.Now,
	}
	b.router = b.routes()
	return b
}

// Start serves the backend on a local listener. The caller closes it.
func (b *Backend) Start() *httptest.Server {
	return httptest.NewServer(b)
}

func (b *Backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.router.ServeHTTP(w, r)
}

func (b *Backend) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Use(b.instrument)

		r.Post("/login", b.login)
		r.Post("/register", b.register)
		r.Post("/logout", b.logout)

		r.Group(func(r chi.Router) {
			r.Use(b.authenticate)

			r.Get("/users/me", b.getMe)
			r.Patch("/users/me", b.updateMe)
			r.Patch("/users/me/password", b.changePassword)
			r.Get("/users", b.listUsers)
			r.Post("/users", b.createUser)
			r.Get("/users/{id}", b.getUser)
			r.Patch("/users/{id}", b.updateUser)
			r.Patch("/users/{id}/active", b.toggleActive)
			r.Patch("/users/{id}/role", b.changeRole)
			r.Delete("/users/{id}", b.deleteUser)
		})
	})
	return r
}

// AddUser stores u with the given password and returns it with server
// fields filled in.
func (b *Backend) AddUser(u types.User, password string) types.User {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		panic(fmt.Sprintf("testbackend: hash password: %v", err))
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = types.RoleCitizen
	}
	u.CreatedAt = b.stamp()
	u.UpdatedAt = u.CreatedAt
	b.users[u.ID] = &record{user: u, hash: hash}
	return u
}

// User returns the stored user with id.
func (b *Backend) User(id string) (types.User, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.users[id]
	if !ok {
		return types.User{}, false
	}
	return rec.user, true
}

// Calls returns how many requests reached route, written as
// "METHOD /path" relative to /api, e.g. "GET /users/me".
func (b *Backend) Calls(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[route]
}

// FailNext makes the next request to route answer status with the standard
// error envelope. Calls queue up.
func (b *Backend) FailNext(route string, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[route] = append(b.failures[route], status)
}

// Hold blocks the next request to route until the returned function is
// called.
func (b *Backend) Hold(route string) (release func()) {
	ch := make(chan struct{})
	b.mu.Lock()
	b.holds[route] = ch
	b.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// ExpireSessions invalidates every issued session cookie.
func (b *Backend) ExpireSessions() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.secret = []byte(uuid.NewString())
}

// stamp returns a strictly increasing timestamp so creation order is stable.
// Must hold b.mu.
func (b *Backend) stamp() time.Time {
	b.seq++
	return b.now().UTC().Truncate(time.Second).Add(time.Duration(b.seq) * time.Millisecond)
}

func routeKey(r *http.Request) string {
	return r.Method + " " + strings.TrimPrefix(r.URL.Path, "/api")
}

// instrument counts calls and applies injected failures and holds.
func (b *Backend) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := routeKey(r)

		b.mu.Lock()
		b.calls[key]++
		var status int
		if q := b.failures[key]; len(q) > 0 {
			status = q[0]
			b.failures[key] = q[1:]
		}
		hold, held := b.holds[key]
		if held {
			delete(b.holds, key)
		}
		b.mu.Unlock()

		if held {
			select {
			case <-hold:
			case <-r.Context().Done():
				return
			}
		}
		if status != 0 {
			b.logger.Debug("injected failure", slog.String("route", key), slog.Int("status", status))
			writeError(w, status, http.StatusText(status), nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type sessionClaims struct {
	ID   string     `json:"id"`
	Role types.Role `json:"role"`
	jwt.RegisteredClaims
}

type contextKey string

const userIDKey contextKey = "userID"

func (b *Backend) issueToken(u types.User) (string, time.Time, error) {
	b.mu.Lock()
	secret := b.secret
	now := b.now()
	b.mu.Unlock()

	exp := now.Add(tokenTTL)
	claims := sessionClaims{
		ID:   u.ID,
		Role: u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	return signed, exp, err
}

// authenticate resolves the session cookie to a stored user.
func (b *Backend) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(api.SessionCookie)
		if err != nil || cookie.Value == "" {
			writeError(w, http.StatusUnauthorized, "Not authenticated", nil)
			return
		}

		b.mu.Lock()
		secret := b.secret
		b.mu.Unlock()

		claims := &sessionClaims{}
		token, err := jwt.ParseWithClaims(cookie.Value, claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return secret, nil
		}, jwt.WithIssuer(issuer))
		if err != nil || !token.Valid {
			b.logger.Debug("rejected session cookie", slog.Any("error", err))
			writeError(w, http.StatusUnauthorized, "Session expired", nil)
			return
		}

		if _, ok := b.User(claims.ID); !ok {
			writeError(w, http.StatusUnauthorized, "Session user no longer exists", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, claims.ID)))
	})
}

// viewer returns the authenticated user of the request.
func (b *Backend) viewer(r *http.Request) (types.User, bool) {
	id, _ := r.Context().Value(userIDKey).(string)
	return b.User(id)
}
