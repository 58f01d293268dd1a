package auth

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/citizen-portal/internal/api"
	"github.com/FACorreiaa/citizen-portal/internal/types"
)

var _ AuthRepo = (*RESTAuthRepo)(nil)

// AuthRepo is the backend's auth surface.
type AuthRepo interface {
	// Login authenticates; on success the backend sets the session cookie.
	Login(ctx context.Context, req types.LoginRequest) (types.StatusResponse, error)
	// Register creates an account and returns the new user id in Data.
	Register(ctx context.Context, req types.RegisterRequest) (types.RegisterResponse, error)
	// Logout ends the server session.
	Logout(ctx context.Context) error
}

// RESTAuthRepo implements AuthRepo over the HTTP client.
type RESTAuthRepo struct {
	client *api.Client
	logger *slog.Logger
}

func NewRESTAuthRepo(client *api.Client, logger *slog.Logger) *RESTAuthRepo {
	return &RESTAuthRepo{client: client, logger: logger}
}

func (r *RESTAuthRepo) Login(ctx context.Context, req types.LoginRequest) (types.StatusResponse, error) {
	ctx, span := otel.Tracer("AuthRepo").Start(ctx, "Login", trace.WithAttributes(
		attribute.String("http.route", "/login"),
	))
	defer span.End()

	var resp types.StatusResponse
	if err := r.client.Post(ctx, "/login", req, &resp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "login request failed")
		return resp, fmt.Errorf("login: %w", err)
	}
	span.SetStatus(codes.Ok, "")
	return resp, nil
}

func (r *RESTAuthRepo) Register(ctx context.Context, req types.RegisterRequest) (types.RegisterResponse, error) {
	ctx, span := otel.Tracer("AuthRepo").Start(ctx, "Register", trace.WithAttributes(
		attribute.String("http.route", "/register"),
	))
	defer span.End()

	var resp types.RegisterResponse
	if err := r.client.Post(ctx, "/register", req, &resp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "register request failed")
		return resp, fmt.Errorf("register: %w", err)
	}
	return resp, nil
}

func (r *RESTAuthRepo) Logout(ctx context.Context) error {
	ctx, span := otel.Tracer("AuthRepo").Start(ctx, "Logout")
	defer span.End()

	if err := r.client.Post(ctx, "/logout", nil, nil); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "logout request failed")
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}
