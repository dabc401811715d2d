// Package authtest provides an in-process fake of the remote auth service for
// tests and demos. It implements the real wire contract — register, login,
// logout, refresh, and identity lookup with JSON bodies and bearer
// credentials — over an httptest server, with knobs to expire issued access
// tokens, force refresh failures, and count endpoint hits.
package authtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// DefaultAccessTTL is the access token lifetime issued by the fake service.
	DefaultAccessTTL = 15 * time.Minute
	// DefaultRefreshTTL is the refresh token lifetime.
	DefaultRefreshTTL = 24 * time.Hour
)

type account struct {
	id       string
	email    string
	password string
	roles    []string
}

type accessClaims struct {
	Email      string   `json:"email"`
	Roles      []string `json:"roles"`
	Generation int64    `json:"gen"`
	jwt.RegisteredClaims
}

type refreshClaims struct {
	TokenID string `json:"jti"`
	jwt.RegisteredClaims
}

// Server is a fake auth service. Create one with NewServer and stop it with
// Close. All methods are safe for concurrent use.
type Server struct {
	httpServer *httptest.Server
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration

	mu            sync.Mutex
	usersByEmail  map[string]*account
	usersByID     map[string]*account
	refreshTokens map[string]string // token id -> user id, single use
	generation    int64
	failRefresh   int // forced refresh status, 0 = off
	forceMe       int // forced identity status, 0 = off

	loginCalls   int64
	refreshCalls int64
	meCalls      int64
}

// NewServer starts a fake auth service with default token lifetimes.
func NewServer() *Server {
	s := &Server{
		secret:        []byte("authtest-" + uuid.New().String()),
		accessTTL:     DefaultAccessTTL,
		refreshTTL:    DefaultRefreshTTL,
		usersByEmail:  make(map[string]*account),
		usersByID:     make(map[string]*account),
		refreshTokens: make(map[string]string),
	}

	r := chi.NewRouter()
	r.Post("/auth/register", s.handleRegister)
	r.Post("/auth/login", s.handleLogin)
	r.Post("/auth/logout", s.handleLogout)
	r.Get("/auth/me", s.handleMe)
	r.Get("/auth/refresh", s.handleRefresh)

	s.httpServer = httptest.NewServer(r)
	return s
}

// URL returns the base URL of the fake service.
func (s *Server) URL() string {
	return s.httpServer.URL
}

// Close shuts the fake service down.
func (s *Server) Close() {
	s.httpServer.Close()
}

// Seed registers an account directly, bypassing the HTTP surface. It returns
// the assigned user ID.
func (s *Server) Seed(email, password string, roles ...string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc := &account{
		id:       uuid.New().String(),
		email:    email,
		password: password,
		roles:    roles,
	}
	s.usersByEmail[email] = acc
	s.usersByID[acc.id] = acc
	return acc.id
}

// ExpireAccessTokens invalidates every access token issued so far; calls made
// with them return 401 until a refresh or login issues new ones.
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
}

// FailRefreshWith forces the refresh endpoint to answer with the given status.
// Zero restores normal behaviour.
func (s *Server) FailRefreshWith(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failRefresh = status
}

// ForceMeStatus forces the identity endpoint to answer with the given status
// even for valid tokens. Zero restores normal behaviour.
func (s *Server) ForceMeStatus(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forceMe = status
}

// LoginCalls returns how many times the login endpoint was hit.
func (s *Server) LoginCalls() int { return int(atomic.LoadInt64(&s.loginCalls)) }

// RefreshCalls returns how many times the refresh endpoint was hit.
func (s *Server) RefreshCalls() int { return int(atomic.LoadInt64(&s.refreshCalls)) }

// MeCalls returns how many times the identity endpoint was hit.
func (s *Server) MeCalls() int { return int(atomic.LoadInt64(&s.meCalls)) }

// --- Handlers ---

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid request body"})
		return
	}

	s.mu.Lock()
	if _, exists := s.usersByEmail[req.Email]; exists {
		s.mu.Unlock()
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "email already registered"})
		return
	}
	acc := &account{
		id:       uuid.New().String(),
		email:    req.Email,
		password: req.Password,
		roles:    []string{"customer"},
	}
	s.usersByEmail[req.Email] = acc
	s.usersByID[acc.id] = acc
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, s.issuePair(acc))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt64(&s.loginCalls, 1)

	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid request body"})
		return
	}

	s.mu.Lock()
	acc, ok := s.usersByEmail[req.Email]
	s.mu.Unlock()
	if !ok || acc.password != req.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid email or password"})
		return
	}

	writeJSON(w, http.StatusOK, s.issuePair(acc))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authenticate(r); !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid or expired token"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt64(&s.meCalls, 1)

	s.mu.Lock()
	forced := s.forceMe
	s.mu.Unlock()
	if forced != 0 {
		writeJSON(w, forced, map[string]string{"message": "identity unavailable"})
		return
	}

	acc, ok := s.authenticate(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid or expired token"})
		return
	}

	roles := acc.roles
	if roles == nil {
		roles = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":    acc.id,
		"email": acc.email,
		"roles": roles,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt64(&s.refreshCalls, 1)

	s.mu.Lock()
	forced := s.failRefresh
	s.mu.Unlock()
	if forced != 0 {
		writeJSON(w, forced, map[string]string{"message": "refresh rejected"})
		return
	}

	token := bearerToken(r)
	claims := &refreshClaims{}
	if _, err := jwt.ParseWithClaims(token, claims, s.keyFunc); err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid refresh token"})
		return
	}

	// Single use: a refresh token is consumed by the rotation that redeems it.
	s.mu.Lock()
	userID, ok := s.refreshTokens[claims.TokenID]
	if ok {
		delete(s.refreshTokens, claims.TokenID)
	}
	acc := s.usersByID[userID]
	s.mu.Unlock()
	if !ok || acc == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid refresh token"})
		return
	}

	writeJSON(w, http.StatusOK, s.issuePair(acc))
}

// --- Token plumbing ---

func (s *Server) issuePair(acc *account) map[string]string {
	now := time.Now().UTC()

	s.mu.Lock()
	gen := s.generation
	tokenID := uuid.New().String()
	s.refreshTokens[tokenID] = acc.id
	s.mu.Unlock()

	access := jwt.NewWithClaims(jwt.SigningMethodHS256, &accessClaims{
		Email:      acc.email,
		Roles:      acc.roles,
		Generation: gen,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   acc.id,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			Issuer:    "authtest",
		},
	})
	accessToken, _ := access.SignedString(s.secret)

	refresh := jwt.NewWithClaims(jwt.SigningMethodHS256, &refreshClaims{
		TokenID: tokenID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   acc.id,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.refreshTTL)),
			Issuer:    "authtest",
		},
	})
	refreshToken, _ := refresh.SignedString(s.secret)

	return map[string]string{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
	}
}

// authenticate resolves the bearer access token to an account, rejecting
// tokens from an expired generation.
func (s *Server) authenticate(r *http.Request) (*account, bool) {
	claims := &accessClaims{}
	if _, err := jwt.ParseWithClaims(bearerToken(r), claims, s.keyFunc); err != nil {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if claims.Generation < s.generation {
		return nil, false
	}
	acc, ok := s.usersByID[claims.Subject]
	return acc, ok
}

func (s *Server) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, jwt.ErrSignatureInvalid
	}
	return s.secret, nil
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	return strings.TrimPrefix(header, "Bearer ")
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
