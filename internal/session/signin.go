package session

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/api"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Authenticator exchanges credentials for a session token
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*api.LoginResponse, error)
}

// SignIn validates the credentials, calls the backend and starts the session
func (s *Store) SignIn(ctx context.Context, auth Authenticator, email, password string) error {
	req := api.LoginRequest{Email: email, Password: password}
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("invalid credentials: %w", err)
	}

	resp, err := auth.Login(ctx, email, password)
	if err != nil {
		return fmt.Errorf("failed to login: %w", err)
	}

	return s.Login(ctx, resp.Token, resp.Role, time.Duration(resp.ExpiresIn)*time.Second)
}
