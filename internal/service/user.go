package service

import (
	"context"

	"github.com/emberfield/boxoffice/internal/model"
)

// UserStore is the persistence surface the user service needs.
type UserStore interface {
	Upsert(ctx context.Context, email, name string) (*model.User, error)
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
}

// UserService manages the minimal account records the ticketing core keeps.
type UserService struct {
	users UserStore
}

// NewUserService constructs a UserService.
func NewUserService(users UserStore) *UserService {
	return &UserService{users: users}
}

// Upsert creates an account for the email or refreshes its name. Emails are
// stored lowercased so reservation and transfer lookups match.
func (s *UserService) Upsert(ctx context.Context, req *model.UpsertUserRequest) (*model.User, error) {
	email := normalizeEmail(req.Email)
	if !isValidEmail(email) {
		return nil, &model.ValidationError{Reasons: []string{"email is not valid"}}
	}
	return s.users.Upsert(ctx, email, req.Name)
}

// Get returns a single account.
func (s *UserService) Get(ctx context.Context, id string) (*model.User, error) {
	return s.users.GetByID(ctx, id)
}
