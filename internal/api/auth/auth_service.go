package auth

import (
	"context"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/FACorreiaa/citizen-portal/internal/api"
	"github.com/FACorreiaa/citizen-portal/internal/querycache"
	"github.com/FACorreiaa/citizen-portal/internal/session"
	"github.com/FACorreiaa/citizen-portal/internal/types"
)

var _ AuthService = (*AuthServiceImpl)(nil)

// AuthService holds the login, registration and logout mutations.
type AuthService interface {
	Login(ctx context.Context, req types.LoginRequest) (types.StatusResponse, error)
	Register(ctx context.Context, req types.RegisterRequest) (types.RegisterResponse, error)
	Logout(ctx context.Context) error
}

type AuthServiceImpl struct {
	logger    *slog.Logger
	repo      AuthRepo
	cache     *querycache.Cache
	hooks     *session.Hooks
	validator *api.Validator
}

func NewAuthService(repo AuthRepo, cache *querycache.Cache, hooks *session.Hooks, validator *api.Validator, logger *slog.Logger) *AuthServiceImpl {
	return &AuthServiceImpl{
		logger:    logger,
		repo:      repo,
		cache:     cache,
		hooks:     hooks,
		validator: validator,
	}
}

// Login validates the credentials and authenticates. A 2xx answer with
// status false is reported as an authentication failure. Failed logins do
// not go through the session reset: there is no session yet.
func (s *AuthServiceImpl) Login(ctx context.Context, req types.LoginRequest) (types.StatusResponse, error) {
	ctx, span := otel.Tracer("AuthService").Start(ctx, "Login")
	defer span.End()
	l := s.logger.With(slog.String("method", "Login"))

	req.Normalize()
	if err := s.validator.Validate(req); err != nil {
		return types.StatusResponse{}, err
	}

	resp, err := querycache.Mutate(ctx, s.cache, s.repo.Login, req, querycache.MutationOptions[types.StatusResponse]{
		OnSuccess: func(resp types.StatusResponse) {
			if resp.Status {
				s.hooks.LoggedIn()
			}
		},
	})
	if err == nil && !resp.Status {
		err = &types.APIError{StatusCode: http.StatusUnauthorized, Message: resp.Message, Method: http.MethodPost, Path: "/login"}
	}
	if err != nil {
		l.WarnContext(ctx, "Login failed", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "login failed")
		return resp, err
	}

	l.InfoContext(ctx, "Login succeeded")
	span.SetStatus(codes.Ok, "logged in")
	return resp, nil
}

// Register validates and creates an account. It does not log the new user in.
func (s *AuthServiceImpl) Register(ctx context.Context, req types.RegisterRequest) (types.RegisterResponse, error) {
	ctx, span := otel.Tracer("AuthService").Start(ctx, "Register")
	defer span.End()

	req.Normalize()
	if err := s.validator.Validate(req); err != nil {
		return types.RegisterResponse{}, err
	}

	resp, err := querycache.Mutate(ctx, s.cache, s.repo.Register, req, querycache.MutationOptions[types.RegisterResponse]{})
	if err != nil {
		s.logger.WarnContext(ctx, "Registration failed", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "register failed")
		return resp, err
	}
	s.logger.InfoContext(ctx, "User registered", slog.String("userID", resp.Data))
	return resp, nil
}

// Logout ends the server session and then every trace of it on the client.
func (s *AuthServiceImpl) Logout(ctx context.Context) error {
	ctx, span := otel.Tracer("AuthService").Start(ctx, "Logout")
	defer span.End()

	epoch := s.hooks.Epoch()
	_, err := querycache.Mutate(ctx, s.cache, func(ctx context.Context, _ struct{}) (struct{}, error) {
		return struct{}{}, s.repo.Logout(ctx)
	}, struct{}{}, querycache.MutationOptions[struct{}]{
		OnSuccess: func(struct{}) { s.hooks.LoggedOut() },
		OnError:   func(err error) { s.hooks.MutationFailed(epoch, err) },
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "logout failed")
		return err
	}
	return nil
}
