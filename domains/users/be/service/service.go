package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	tenantsvc "github.com/materialidadmx/materialidad-saas/domains/tenants/be/service"
)

// Domain sentinel errors.
var (
	ErrNotFound           = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Record is the persisted user row, password hash included. Only the repo and
// this service ever see it; callers get User.
type Record struct {
	ID             uuid.UUID
	Email          string
	FullName       string
	PasswordHash   string
	IsStaff        bool
	IsSuperuser    bool
	TenantID       *uuid.UUID
	OrganizationID *uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// User is the domain view of a user, safe to return to handlers.
type User struct {
	ID             uuid.UUID
	Email          string
	FullName       string
	IsStaff        bool
	IsSuperuser    bool
	TenantID       *uuid.UUID
	OrganizationID *uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Repository abstracts control-plane persistence of users.
type Repository interface {
	// Upsert inserts or, on email conflict, updates the record.
	Upsert(ctx context.Context, rec Record) (Record, error)
	FindByEmail(ctx context.Context, email string) (Record, error)
	Get(ctx context.Context, id uuid.UUID) (Record, error)
}

// Service provides user management and credential verification.
type Service struct {
	repo   Repository
	logger *zap.Logger
}

// New constructs a users Service backed by the provided repository.
func New(repo Repository, logger *zap.Logger) *Service {
	if repo == nil {
		panic("users repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, logger: logger}
}

// UpsertAdmin creates or resets the administrative user for a tenant. Keyed
// by email: re-provisioning the same admin updates the password and tenant
// linkage instead of failing.
func (s *Service) UpsertAdmin(ctx context.Context, input tenantsvc.AdminBootstrapInput) (uuid.UUID, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || !strings.Contains(email, "@") {
		return uuid.Nil, fmt.Errorf("admin email %q is invalid", input.Email)
	}
	if input.Password == "" {
		return uuid.Nil, fmt.Errorf("admin password is required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return uuid.Nil, fmt.Errorf("hash admin password: %w", err)
	}

	now := time.Now().UTC()
	tid := input.TenantID
	rec, err := s.repo.Upsert(ctx, Record{
		ID:             uuid.New(),
		Email:          email,
		FullName:       strings.TrimSpace(input.FullName),
		PasswordHash:   string(hash),
		IsStaff:        true,
		IsSuperuser:    true,
		TenantID:       &tid,
		OrganizationID: input.OrganizationID,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("upsert admin user: %w", err)
	}

	s.logger.Info("admin user bootstrapped",
		zap.String("email", email),
		zap.String("user_id", rec.ID.String()))
	return rec.ID, nil
}

// Authenticate verifies email/password and returns the matching user.
// Unknown emails and wrong passwords are indistinguishable to callers.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	rec, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return toUser(rec), nil
}

// Get returns a user by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (User, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return User{}, err
	}
	return toUser(rec), nil
}

// FindByEmail returns a user by email.
func (s *Service) FindByEmail(ctx context.Context, email string) (User, error) {
	rec, err := s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return User{}, err
	}
	return toUser(rec), nil
}

func toUser(rec Record) User {
	return User{
		ID:             rec.ID,
		Email:          rec.Email,
		FullName:       rec.FullName,
		IsStaff:        rec.IsStaff,
		IsSuperuser:    rec.IsSuperuser,
		TenantID:       rec.TenantID,
		OrganizationID: rec.OrganizationID,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}
}

var _ tenantsvc.AdminBootstrapper = (*Service)(nil)
