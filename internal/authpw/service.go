// Package authpw provides email/password registration and sign-in with an
// optional approval gate for submitter accounts.
package authpw

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"answerdesk/api/internal/rbac"
	"answerdesk/api/internal/store"
	"answerdesk/api/internal/util"
	"answerdesk/api/internal/workflow"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidInput         = errors.New("invalid registration input")
	ErrEmailTaken           = errors.New("email already registered")
	ErrInvalidCredentials   = errors.New("invalid email or password")
	ErrRegistrationPending  = errors.New("registration is awaiting approval")
	ErrRegistrationRejected = errors.New("registration was rejected")
	ErrAccountInactive      = errors.New("account is deactivated")
)

const minPasswordLength = 8

// Service provides email/password authentication
type Service struct {
	store           UserStore
	requireApproval bool
	cost            int
	now             func() time.Time
}

// UserStore defines the storage interface for auth
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	CreateUser(ctx context.Context, user store.User) (store.User, error)
}

// NewService creates a new auth service. When requireApproval is set,
// submitter accounts start pending until an authority approves them.
func NewService(users UserStore, requireApproval bool) *Service {
	return &Service{
		store:           users,
		requireApproval: requireApproval,
		cost:            bcrypt.DefaultCost,
		now:             time.Now,
	}
}

// RegisterRequest contains sign-up parameters
type RegisterRequest struct {
	Email       string
	Password    string
	DisplayName string
	Role        string
	Group       string
}

// Register creates a new account. Authority accounts are approved
// immediately.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (store.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	name := strings.TrimSpace(req.DisplayName)
	if email == "" || name == "" || req.Password == "" {
		return store.User{}, fmt.Errorf("%w: email, password, and display name are required", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return store.User{}, fmt.Errorf("%w: email address is malformed", ErrInvalidInput)
	}
	if len(req.Password) < minPasswordLength {
		return store.User{}, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	role, ok := rbac.Parse(req.Role)
	if !ok {
		return store.User{}, fmt.Errorf("%w: role must be authority or submitter", ErrInvalidInput)
	}

	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return store.User{}, ErrEmailTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return store.User{}, fmt.Errorf("lookup user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return store.User{}, fmt.Errorf("hash password: %w", err)
	}

	status := workflow.RegistrationApproved
	if role == rbac.RoleSubmitter && s.requireApproval {
		status = workflow.RegistrationPending
	}

	now := s.now().UTC()
	created, err := s.store.CreateUser(ctx, store.User{
		ID:                 util.NewID("usr"),
		Email:              email,
		DisplayName:        name,
		PasswordHash:       string(hash),
		Role:               string(role),
		GroupLabel:         strings.TrimSpace(req.Group),
		IsActive:           status == workflow.RegistrationApproved,
		RegistrationStatus: status,
		CreatedAt:          now,
		UpdatedAt:          now,
	})
	if errors.Is(err, store.ErrDuplicate) {
		return store.User{}, ErrEmailTaken
	}
	if err != nil {
		return store.User{}, fmt.Errorf("create user: %w", err)
	}
	return created, nil
}

// Authenticate checks credentials and the account's standing.
func (s *Service) Authenticate(ctx context.Context, email, password string) (store.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return store.User{}, ErrInvalidCredentials
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return store.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return store.User{}, fmt.Errorf("lookup user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return store.User{}, ErrInvalidCredentials
	}

	switch user.RegistrationStatus {
	case workflow.RegistrationPending:
		return store.User{}, ErrRegistrationPending
	case workflow.RegistrationRejected:
		return store.User{}, ErrRegistrationRejected
	}
	if !user.IsActive {
		return store.User{}, ErrAccountInactive
	}
	return user, nil
}
