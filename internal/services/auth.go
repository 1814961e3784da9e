package services

import (
	"context"
	"log"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kaa08/KTB-Hackathon-11/internal/models"
)

const loginRequiredMessage = "Please log in first"

type AuthBackend interface {
	Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error)
	Signup(ctx context.Context, req models.SignupRequest) (*models.SignupResponse, error)
	Me(ctx context.Context) (*models.User, error)
	Logout(ctx context.Context) error
}

type AuthStore interface {
	LoadAuth(ctx context.Context) (*models.AuthState, error)
	SaveAuth(ctx context.Context, s models.AuthState) error
	ClearAuth(ctx context.Context) error
}

type LoginResult struct {
	User     models.User `json:"user"`
	ReturnTo string      `json:"return_to"`
}

// AuthService owns the persisted login record of one client. The stored
// bearer token is decoded without verification only to read its expiry;
// the backend remains the authority on whether it is valid.
type AuthService struct {
	backend AuthBackend
	store   AuthStore
	now     func() time.Time

	mu    sync.RWMutex
	state *models.AuthState
}

func NewAuthService(backend AuthBackend, store AuthStore) *AuthService {
	return &AuthService{backend: backend, store: store, now: time.Now}
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// Load reads the persisted record. An expired token counts as logged out
// and the record is cleared.
func (s *AuthService) Load(ctx context.Context) error {
	st, err := s.store.LoadAuth(ctx)
	if err != nil {
		return err
	}

	if st != nil && s.expired(st.Token) {
		log.Printf("Auth: stored token for %s has expired", st.Email)
		if err := s.store.ClearAuth(ctx); err != nil {
			log.Printf("Auth: failed to clear expired login: %v", err)
		}
		st = nil
	}

	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	return nil
}

// Identity implements IdentitySource.
func (s *AuthService) Identity() (string, string) {
	s.mu.RLock()
	st := s.state
	s.mu.RUnlock()
	if st == nil {
		return "", ""
	}
	if s.expired(st.Token) {
		return "", ""
	}
	return st.Email, st.Token
}

func (s *AuthService) IsAuthenticated() bool {
	email, token := s.Identity()
	return email != "" || token != ""
}

func (s *AuthService) CurrentUser() *models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == nil || s.expired(s.state.Token) {
		return nil
	}
	return &models.User{Email: s.state.Email, Nickname: s.state.Nickname}
}

// RequireLogin returns an UnauthorizedError pointing back home when nobody
// is logged in.
func (s *AuthService) RequireLogin() error {
	if !s.IsAuthenticated() {
		return &UnauthorizedError{Message: loginRequiredMessage, ReturnTo: "/"}
	}
	return nil
}

func (s *AuthService) Login(ctx context.Context, req models.LoginRequest, returnTo string) (*LoginResult, error) {
	req.Email = strings.TrimSpace(req.Email)
	req.Password = strings.TrimSpace(req.Password)

	fieldErrors := make(map[string]string)
	if req.Email == "" {
		fieldErrors["email"] = "Email is required"
	}
	if req.Password == "" {
		fieldErrors["password"] = "Password is required"
	}
	if len(fieldErrors) > 0 {
		return nil, &ValidationError{Fields: fieldErrors}
	}

	resp, err := s.backend.Login(ctx, req)
	if err != nil {
		return nil, err
	}
	token := resp.BearerToken()
	if !resp.IsLoginSuccess && token == "" {
		return nil, &UnauthorizedError{Message: "Invalid email or password"}
	}

	st := models.AuthState{
		Email:    firstNonEmptyString(resp.Email, req.Email),
		Nickname: resp.Nickname,
		Token:    token,
		SavedAt:  s.now(),
	}
	if err := s.store.SaveAuth(ctx, st); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.state = &st
	s.mu.Unlock()

	log.Printf("Auth: %s logged in", st.Email)
	return &LoginResult{
		User:     models.User{Email: st.Email, Nickname: st.Nickname},
		ReturnTo: SafeReturnPath(returnTo),
	}, nil
}

func (s *AuthService) Signup(ctx context.Context, form models.SignupForm) (*models.SignupResponse, error) {
	email := strings.TrimSpace(form.Email)
	password := strings.TrimSpace(form.Password)
	confirm := strings.TrimSpace(form.PasswordConfirm)

	fieldErrors := make(map[string]string)
	switch {
	case email == "":
		fieldErrors["email"] = "Email is required"
	case !emailRegex.MatchString(email):
		fieldErrors["email"] = "Invalid email format"
	}
	if password == "" {
		fieldErrors["password"] = "Password is required"
	}
	if confirm == "" {
		fieldErrors["password_confirm"] = "Please confirm your password"
	} else if password != "" && password != confirm {
		fieldErrors["password_confirm"] = "Passwords do not match"
	}
	if !form.AgreeTerms {
		fieldErrors["agree_terms"] = "You must agree to the terms"
	}
	if len(fieldErrors) > 0 {
		return nil, &ValidationError{Fields: fieldErrors}
	}

	resp, err := s.backend.Signup(ctx, models.SignupRequest{
		Email:    email,
		Password: password,
		Nickname: strings.TrimSpace(form.Nickname),
	})
	if err != nil {
		return nil, err
	}
	log.Printf("Auth: signed up %s", email)
	return resp, nil
}

func (s *AuthService) Me(ctx context.Context) (*models.User, error) {
	if err := s.RequireLogin(); err != nil {
		return nil, err
	}
	return s.backend.Me(ctx)
}

// Logout always forgets the local record, even when the backend call fails.
func (s *AuthService) Logout(ctx context.Context) error {
	if s.IsAuthenticated() {
		if err := s.backend.Logout(ctx); err != nil {
			log.Printf("Auth: backend logout failed: %v", err)
		}
	}

	s.mu.Lock()
	s.state = nil
	s.mu.Unlock()
	return s.store.ClearAuth(ctx)
}

func (s *AuthService) expired(token string) bool {
	if token == "" {
		return false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		// Opaque tokens carry no expiry.
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !s.now().Before(exp.Time)
}

// SafeReturnPath keeps redirects on this site and defaults to "/".
func SafeReturnPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.HasPrefix(p, "/\\") {
		return "/"
	}
	return p
}

func firstNonEmptyString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
