package users

import (
	"context"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Service handles the user directory business logic.
type Service struct {
	repo Repository
}

// NewService builds Service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List returns one page of users matching the filters and the total count.
func (s *Service) List(ctx context.Context, req ListRequest) ([]User, int, error) {
	return s.repo.List(ctx, req)
}

// Get returns one user by id.
func (s *Service) Get(ctx context.Context, id int64) (*User, error) {
	return s.repo.Get(ctx, id)
}

// Create registers a new member account. New accounts start active and
// without admin rights.
func (s *Service) Create(ctx context.Context, email, displayName, password string) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	return s.repo.Create(ctx, email, strings.TrimSpace(displayName), string(hash))
}

// SetActive enables or disables an account. Disabled accounts cannot sign
// in and fail authorization checks.
func (s *Service) SetActive(ctx context.Context, id int64, active bool) error {
	return s.repo.SetActive(ctx, id, active)
}

// SetAdmin grants or revokes console admin rights.
func (s *Service) SetAdmin(ctx context.Context, id int64, admin bool) error {
	return s.repo.SetAdmin(ctx, id, admin)
}
