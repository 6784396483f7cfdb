package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"spendwise/internal/core"
	applog "spendwise/internal/log"
	"spendwise/internal/ports"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

// ErrInvalidUsername is returned for usernames outside [A-Za-z0-9_.-]{1,64}.
var ErrInvalidUsername = errors.New("username must be 1-64 letters, digits, '_', '.' or '-'")

// UserService registers and resolves users by username.
type UserService struct {
	users ports.UserStore
	now   func() time.Time
}

func NewUserService(users ports.UserStore) *UserService {
	return &UserService{users: users, now: time.Now}
}

// Register creates a user. A taken username yields core.ErrConflict.
func (s *UserService) Register(ctx context.Context, username string) (core.User, error) {
	username = strings.TrimSpace(username)
	var v core.ValidationError
	if username == "" {
		v.Add("username", core.ErrEmptyUsername)
	} else if !usernamePattern.MatchString(username) {
		v.Add("username", ErrInvalidUsername)
	}
	if err := v.Err(); err != nil {
		return core.User{}, err
	}

	u := core.User{
		ID:        uuid.NewString(),
		Username:  username,
		CreatedAt: s.now().UTC(),
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		return core.User{}, fmt.Errorf("create user: %w", err)
	}
	slog.InfoContext(ctx, "Registered user",
		applog.FieldComponent, applog.ComponentApp,
		applog.FieldOwner, u.Username)
	return u, nil
}

// Resolve looks a user up by username, returning core.ErrNotFound if unknown.
func (s *UserService) Resolve(ctx context.Context, username string) (core.User, error) {
	u, err := s.users.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return core.User{}, fmt.Errorf("get user %q: %w", username, err)
	}
	return u, nil
}

// List returns every registered user.
func (s *UserService) List(ctx context.Context) ([]core.User, error) {
	return s.users.ListUsers(ctx)
}
