package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"answerdesk/api/internal/auth"
	"answerdesk/api/internal/authpw"
	"answerdesk/api/internal/rbac"
	"answerdesk/api/internal/store"
	"answerdesk/api/internal/util"
	"answerdesk/api/internal/workflow"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Role         rbac.Role
	Group        string
	JTI          string
	ExpiresAt    time.Time
}

// Caller converts an authenticated session into the identity the
// authorization gate evaluates. Sessions are only produced for active users.
func (s Session) Caller() workflow.Caller {
	return workflow.Caller{
		ID:     s.UserID,
		Name:   s.UserName,
		Role:   s.Role,
		Group:  s.Group,
		Active: s.UserID != "",
	}
}

type RegisterInput struct {
	Email       string `json:"email" validate:"required,email,max=254"`
	Password    string `json:"password" validate:"required,min=8,max=128"`
	DisplayName string `json:"displayName" validate:"required,max=120"`
	Role        string `json:"role" validate:"required,oneof=authority submitter"`
	Group       string `json:"group" validate:"max=100"`
}

func (in *RegisterInput) normalize() {
	in.Email = strings.TrimSpace(in.Email)
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	in.Role = strings.TrimSpace(in.Role)
	in.Group = strings.TrimSpace(in.Group)
}

func (s *Service) Register(ctx context.Context, input RegisterInput) (UserView, error) {
	input.normalize()
	if err := validateInput(input); err != nil {
		return UserView{}, err
	}
	user, err := s.auth.Register(ctx, authpw.RegisterRequest{
		Email:       input.Email,
		Password:    input.Password,
		DisplayName: input.DisplayName,
		Role:        input.Role,
		Group:       input.Group,
	})
	switch {
	case errors.Is(err, authpw.ErrInvalidInput):
		return UserView{}, workflow.Validation(strings.TrimPrefix(err.Error(), authpw.ErrInvalidInput.Error()+": "))
	case err != nil:
		return UserView{}, accountError(err)
	}

	s.record(ctx, workflow.Caller{ID: user.ID}, workflow.AuditUserRegister, workflow.ResourceUser, user.ID, map[string]any{
		"role":               user.Role,
		"registrationStatus": string(user.RegistrationStatus),
	})
	return userView(user), nil
}

func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	user, err := s.auth.Authenticate(ctx, email, password)
	if err != nil {
		return Session{}, accountError(err)
	}

	session, err := s.issueSession(ctx, user)
	if err != nil {
		return Session{}, err
	}
	s.record(ctx, workflow.Caller{ID: user.ID}, workflow.AuditUserLogin, workflow.ResourceUser, user.ID, nil)
	return session, nil
}

// Refresh rotates a refresh token: the presented token is revoked and a
// new pair issued. The account must still be in good standing.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return Session{}, auth.ErrInvalidToken
	}
	tokenHash := auth.HashToken(refreshToken)
	userID, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}

	user, err := s.store.GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, err
	}
	if !user.IsActive || user.RegistrationStatus != workflow.RegistrationApproved {
		return Session{}, auth.ErrInvalidToken
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := s.now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:   user.ID,
		Name:  user.DisplayName,
		Role:  user.Role,
		Group: user.GroupLabel,
		JTI:   jti,
		Iat:   now.Unix(),
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh, err := auth.NewOpaqueToken()
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, now.Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, fmt.Errorf("save refresh session: %w", err)
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Role:         rbac.Role(user.Role),
		Group:        user.GroupLabel,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

// SessionFromToken resolves a bearer token to the caller. Revoked tokens,
// unknown users and deactivated users all fail as an invalid token.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseTokenAt([]byte(s.cfg.JWTSecret), token, s.now())
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.sessions.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, err
	}
	if !user.IsActive || user.RegistrationStatus != workflow.RegistrationApproved {
		return Session{}, auth.ErrInvalidToken
	}
	role, ok := rbac.Parse(user.Role)
	if !ok {
		return Session{}, auth.ErrInvalidToken
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Role:      role,
		Group:     user.GroupLabel,
		JTI:       claims.JTI,
		ExpiresAt: claims.ExpiresAt(),
	}, nil
}

// Logout revokes the access token and the refresh session. Failures are
// logged; logout always succeeds from the client's point of view.
func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) {
	if session.JTI != "" {
		if err := s.sessions.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt); err != nil {
			s.logger.Warn("revoke access token", "user_id", session.UserID, "error", err)
		}
	}
	if refreshToken != "" {
		if err := s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
			s.logger.Warn("revoke refresh session", "user_id", session.UserID, "error", err)
		}
	}
}

func (s *Service) Me(ctx context.Context, caller workflow.Caller) (UserView, error) {
	user, err := s.store.GetUserByID(ctx, caller.ID)
	if err != nil {
		return UserView{}, notFound(err, "user not found")
	}
	return userView(user), nil
}
