package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"recruitcrm/api/internal/auth"
	"recruitcrm/api/internal/authpw"
	"recruitcrm/api/internal/config"
	"recruitcrm/api/internal/export"
	"recruitcrm/api/internal/idle"
	"recruitcrm/api/internal/logger"
	"recruitcrm/api/internal/notify"
	"recruitcrm/api/internal/rbac"
	"recruitcrm/api/internal/search"
	"recruitcrm/api/internal/store"
	"recruitcrm/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Email        string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	authpw.UserStore
	sessionStore
	Ping(ctx context.Context) error
	LookupRole(context.Context, string) (*store.RoleRecord, error)
	ListUsers(context.Context) ([]store.User, error)
	UpdateUser(context.Context, string, string, string, string) (store.User, error)
	DeleteUser(context.Context, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
	InsertCandidate(context.Context, store.Candidate) (store.Candidate, error)
	GetCandidate(context.Context, string) (store.Candidate, error)
	ListCandidates(context.Context, int) ([]store.Candidate, error)
	DeleteCandidate(context.Context, string) error
	InsertCVDocument(context.Context, store.CVDocument) error
	InsertCompany(context.Context, store.Company) (store.Company, error)
	ListCompanies(context.Context) ([]store.Company, error)
	ListNotifications(context.Context, string, int) ([]store.Notification, error)
	UnreadNotificationCount(context.Context, string) (int, error)
	MarkNotificationRead(context.Context, string, string) (bool, error)
	MarkAllNotificationsRead(context.Context, string) (int64, error)
}

// sessionStore holds refresh sessions. Redis when configured, PostgreSQL otherwise.
type sessionStore interface {
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
}

type generator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
	GenerateFromDocument(ctx context.Context, data []byte, mediaType, prompt string) (string, error)
}

type objectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	PublicURL(key string) string
}

type textExtractor interface {
	Extract(data []byte, mediaType, filename string) (string, error)
}

type candidateIndex interface {
	Search(ctx context.Context, q search.Query) (search.Response, error)
	IndexCandidate(candidate store.Candidate)
	DeleteCandidate(id string)
}

type notifier interface {
	Create(ctx context.Context, userID, title, message, link string) (store.Notification, error)
	Subscribe(ctx context.Context, userID string) (<-chan notify.Event, error)
}

type mailer interface {
	IsConfigured() bool
	SendVerificationEmail(to, userName, verificationURL string) error
	SendPasswordResetEmail(to, userName, resetURL string) error
	SendInviteEmail(to, userName, inviter, setPasswordURL string) error
}

type pdfExporter interface {
	CandidateProfile(ctx context.Context, c store.Candidate) (*export.Result, error)
}

// Deps are the collaborators built by cmd/api. Optional ones may be nil.
type Deps struct {
	Store     dataStore
	Sessions  sessionStore
	AI        generator
	Bucket    objectStore
	Text      textExtractor
	Search    candidateIndex
	Notify    notifier
	Idle      idle.Tracker
	Email     mailer
	Passwords *authpw.Service
	Export    pdfExporter
	Logger    *zap.Logger
}

type Service struct {
	cfg       config.Config
	store     dataStore
	sessions  sessionStore
	ai        generator
	bucket    objectStore
	text      textExtractor
	search    candidateIndex
	notify    notifier
	idle      idle.Tracker
	email     mailer
	passwords *authpw.Service
	export    pdfExporter
	validate  *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// New builds the service. Callers must pass untyped nil for absent optional
// collaborators, never a typed nil pointer.
func New(cfg config.Config, deps Deps) *Service {
	s := &Service{
		cfg:       cfg,
		store:     deps.Store,
		sessions:  deps.Sessions,
		ai:        deps.AI,
		bucket:    deps.Bucket,
		text:      deps.Text,
		search:    deps.Search,
		notify:    deps.Notify,
		idle:      deps.Idle,
		email:     deps.Email,
		passwords: deps.Passwords,
		export:    deps.Export,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger.OrNop(deps.Logger),
		now:       time.Now,
	}
	if s.sessions == nil {
		s.sessions = deps.Store
	}
	if s.idle == nil {
		s.idle = idle.NewMemoryTracker(cfg.IdleTimeout)
	}
	if s.passwords == nil && deps.Store != nil {
		s.passwords = authpw.NewService(deps.Store, s.logger)
	}
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

func (s *Service) AIEnabled() bool {
	return s.ai != nil
}

func (s *Service) SMTPConfigured() bool {
	return s.email != nil && s.email.IsConfigured()
}

func (s *Service) IdleTimeout() time.Duration {
	return s.idle.Timeout()
}

// CreateSession issues tokens for userID and starts its inactivity window.
func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	session, err := s.issueSession(ctx, user)
	if err != nil {
		return Session{}, err
	}
	if err := s.idle.Start(ctx, user.ID); err != nil {
		return Session{}, fmt.Errorf("start idle window: %w", err)
	}
	return session, nil
}

// Refresh rotates a refresh token. A user whose inactivity window lapsed is
// signed out instead.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	owner, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	alive, err := s.idle.Touch(ctx, owner.ID)
	if err != nil {
		return Session{}, fmt.Errorf("touch idle window: %w", err)
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	if !alive {
		return Session{}, errSessionIdle
	}
	user, err := s.store.GetUserByID(ctx, owner.ID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := s.now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")
	role := string(rbac.Normalize(user.Role))

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), user.ID, user.DisplayName, role, jti, expiresAt)
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewToken()
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, now.Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Email:        user.Email,
		Role:         role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

// SessionFromToken validates an access token without touching the idle window.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.ID)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, auth.ErrInvalidToken
		}
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Email:     user.Email,
		Role:      string(rbac.Normalize(user.Role)),
		JTI:       claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Authenticate validates token and records activity. When the user's idle
// window has lapsed the token is revoked and errSessionIdle returned.
func (s *Service) Authenticate(ctx context.Context, token string) (Session, error) {
	session, err := s.SessionFromToken(ctx, token)
	if err != nil {
		return Session{}, err
	}
	alive, err := s.idle.Touch(ctx, session.UserID)
	if err != nil {
		return Session{}, fmt.Errorf("touch idle window: %w", err)
	}
	if !alive {
		if err := s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt); err != nil {
			s.logger.Warn("revoke idle access token", zap.String("user_id", session.UserID), zap.Error(err))
		}
		s.logger.Info("session signed out after inactivity", zap.String("user_id", session.UserID))
		return Session{}, errSessionIdle
	}
	return session, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		if err := s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt); err != nil {
			s.logger.Warn("revoke access token", zap.Error(err))
		}
	}
	if session.UserID != "" {
		if err := s.idle.Forget(ctx, session.UserID); err != nil {
			s.logger.Warn("forget idle window", zap.Error(err))
		}
	}
	if refreshToken != "" {
		if err := s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
			s.logger.Warn("revoke refresh session", zap.Error(err))
		}
	}
	return nil
}

// CheckRole returns the role record for email, or nil when nobody matches.
func (s *Service) CheckRole(ctx context.Context, email string) (*store.RoleRecord, error) {
	record, err := s.store.LookupRole(ctx, email)
	if err != nil {
		return nil, upstreamError("ROLE_LOOKUP_FAILED", err)
	}
	if record != nil {
		record.Role = string(rbac.Normalize(record.Role))
	}
	return record, nil
}

// EnvStatus is one row of the diagnostics report.
type EnvStatus struct {
	Name    string `json:"name"`
	Present bool   `json:"present"`
	Value   string `json:"value,omitempty"`
}

// DebugEnv reports which environment variables are set. Values of secrets
// are never included.
func (s *Service) DebugEnv() map[string]any {
	vars := make([]EnvStatus, 0, len(config.Consumed))
	for _, v := range config.Consumed {
		value, ok := os.LookupEnv(v.Name)
		status := EnvStatus{Name: v.Name, Present: ok && value != ""}
		if status.Present && !v.Secret {
			status.Value = value
		}
		vars = append(vars, status)
	}
	return map[string]any{
		"variables":     vars,
		"publicBaseUrl": s.cfg.PublicBaseURL,
		"platform":      s.cfg.Platform,
		"region":        s.cfg.Region,
		"deploymentId":  s.cfg.DeploymentID,
		"runtime":       runtime.Version(),
		"os":            runtime.GOOS + "/" + runtime.GOARCH,
		"aiEnabled":     s.AIEnabled(),
		"smtpEnabled":   s.SMTPConfigured(),
	}
}

func (s *Service) link(path, token string) string {
	return s.cfg.PublicBaseURL + path + "?token=" + token
}
