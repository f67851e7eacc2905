package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"tickbox/internal/auth"
	"tickbox/internal/config"
	"tickbox/internal/store"
	"tickbox/internal/util"
)

// Session is a resolved caller identity plus the cookie value that carries
// it. Only the token's hash is ever persisted.
type Session struct {
	Token     string
	User      store.User
	ExpiresAt time.Time
}

// TodoPatchInput distinguishes omitted fields from zero values so updates
// can leave untouched columns alone.
type TodoPatchInput struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Completed   *bool   `json:"completed"`
}

type dataStore interface {
	Ping(context.Context) error
	UpsertGoogleUser(ctx context.Context, googleID, displayName, avatarURL, email string) (store.User, error)
	GetUserByID(context.Context, string) (store.User, error)
	ListTodos(ctx context.Context, ownerID string) ([]store.Todo, error)
	InsertTodo(ctx context.Context, ownerID, title, description string) (store.Todo, error)
	UpdateTodo(ctx context.Context, ownerID, id string, patch store.TodoPatch) (store.Todo, error)
	DeleteTodo(ctx context.Context, ownerID, id string) error
}

type sessionStore interface {
	SaveSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeSession(ctx context.Context, tokenHash string) error
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	oauth    *oauth2.Config
}

// New wires sessions onto the Postgres store itself, for deployments
// without Redis.
func New(cfg config.Config, data *store.PostgresStore) *Service {
	return NewWithSessionStore(cfg, data, data)
}

func NewWithSessionStore(cfg config.Config, data dataStore, sessions sessionStore) *Service {
	svc := &Service{
		cfg:      cfg,
		store:    data,
		sessions: sessions,
	}
	if cfg.GoogleClientID != "" {
		svc.oauth = auth.NewGoogleConfig(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)
	}
	return svc
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) OAuthEnabled() bool {
	return s.oauth != nil
}

// GoogleAuthURL builds the provider consent URL for a signed state value.
func (s *Service) GoogleAuthURL(state string) string {
	return s.oauth.AuthCodeURL(state)
}

// SignInWithCode completes the OAuth exchange and establishes a session for
// the profile it yields.
func (s *Service) SignInWithCode(ctx context.Context, code string) (Session, error) {
	token, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return Session{}, domainError(http.StatusBadGateway, "OAUTH_EXCHANGE_FAILED", "Sign-in failed", nil)
	}
	profile, err := auth.FetchGoogleProfile(ctx, s.oauth, token)
	if err != nil {
		return Session{}, domainError(http.StatusBadGateway, "OAUTH_PROFILE_FAILED", "Sign-in failed", nil)
	}
	return s.CompleteSignIn(ctx, profile)
}

// CompleteSignIn upserts the provider profile and creates a session for it.
func (s *Service) CompleteSignIn(ctx context.Context, profile auth.GoogleProfile) (Session, error) {
	user, err := s.store.UpsertGoogleUser(ctx, profile.ID, profile.Name, profile.Picture, profile.Email)
	if err != nil {
		return Session{}, err
	}
	return s.CreateSession(ctx, user)
}

func (s *Service) CreateSession(ctx context.Context, user store.User) (Session, error) {
	token := util.NewSessionToken()
	expiresAt := time.Now().Add(s.cfg.SessionTTL)
	if err := s.sessions.SaveSession(ctx, auth.HashToken(token), user, expiresAt); err != nil {
		return Session{}, err
	}
	return Session{Token: token, User: user, ExpiresAt: expiresAt}, nil
}

// SessionFromToken resolves a cookie value to the identity it was issued
// for. Any failure means the caller is unauthenticated; no distinction is
// surfaced between missing, expired, and revoked.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	user, err := s.sessions.LookupSession(ctx, auth.HashToken(token))
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, User: user}, nil
}

func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessions.RevokeSession(ctx, auth.HashToken(token))
}

// ListTodos returns the owner's todos, newest first.
func (s *Service) ListTodos(ctx context.Context, ownerID string) ([]store.Todo, error) {
	return s.store.ListTodos(ctx, ownerID)
}

func (s *Service) CreateTodo(ctx context.Context, ownerID, title, description string) (store.Todo, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return store.Todo{}, validationError("Title is required")
	}
	return s.store.InsertTodo(ctx, ownerID, title, description)
}

// UpdateTodo applies only the fields present in the patch. The store does
// ownership and existence in one predicate, so a todo owned by someone else
// comes back as the same not-found as a missing one.
func (s *Service) UpdateTodo(ctx context.Context, ownerID, id string, patch TodoPatchInput) (store.Todo, error) {
	if patch.Title != nil {
		trimmed := strings.TrimSpace(*patch.Title)
		if trimmed == "" {
			return store.Todo{}, validationError("Title cannot be empty")
		}
		patch.Title = &trimmed
	}
	return s.store.UpdateTodo(ctx, ownerID, id, store.TodoPatch{
		Title:       patch.Title,
		Description: patch.Description,
		Completed:   patch.Completed,
	})
}

func (s *Service) DeleteTodo(ctx context.Context, ownerID, id string) error {
	return s.store.DeleteTodo(ctx, ownerID, id)
}
