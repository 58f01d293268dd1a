package user

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/citizen-portal/internal/api"
	"github.com/FACorreiaa/citizen-portal/internal/types"
)

var _ UserRepo = (*RESTUserRepo)(nil)

// UserRepo is the backend's users surface. Every method is one request.
type UserRepo interface {
	// GetMe returns the user the session cookie belongs to.
	GetMe(ctx context.Context) (types.User, error)
	GetByID(ctx context.Context, id string) (types.User, error)
	// List returns one page of users for the given options.
	List(ctx context.Context, opts types.ListUsersOptions) (types.UsersPage, error)
	Create(ctx context.Context, req types.CreateUserRequest) (types.User, error)

	UpdateMe(ctx context.Context, params types.UpdateUserParams) (types.User, error)
	Update(ctx context.Context, id string, params types.UpdateUserParams) (types.User, error)
	ChangePassword(ctx context.Context, req types.ChangePasswordRequest) (types.StatusResponse, error)

	ToggleActive(ctx context.Context, id string) (types.ToggleActiveData, error)
	ChangeRole(ctx context.Context, id string, role types.Role) (types.ChangeRoleData, error)
	Delete(ctx context.Context, id string) (types.DeletedUserData, error)
}

// RESTUserRepo implements UserRepo over the HTTP client.
type RESTUserRepo struct {
	client *api.Client
	logger *slog.Logger
}

func NewRESTUserRepo(client *api.Client, logger *slog.Logger) *RESTUserRepo {
	return &RESTUserRepo{client: client, logger: logger}
}

type listEnvelope struct {
	Payload types.UsersPage `json:"payload"`
}

func userPath(id string) string {
	return "/users/" + url.PathEscape(id)
}

func (r *RESTUserRepo) start(ctx context.Context, name, route string) (context.Context, trace.Span) {
	return otel.Tracer("UserRepo").Start(ctx, name, trace.WithAttributes(
		attribute.String("http.route", route),
	))
}

func fail(span trace.Span, op string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, op+" failed")
	return fmt.Errorf("%s: %w", op, err)
}

func (r *RESTUserRepo) GetMe(ctx context.Context) (types.User, error) {
	ctx, span := r.start(ctx, "GetMe", "/users/me")
	defer span.End()

	var env types.Envelope[types.User]
	if err := r.client.Get(ctx, "/users/me", nil, &env); err != nil {
		return types.User{}, fail(span, "get current user", err)
	}
	if env.Data.ID == "" {
		return types.User{}, fail(span, "get current user", types.ErrNoCurrentUser)
	}
	span.SetAttributes(attribute.String("user.id", env.Data.ID))
	return env.Data, nil
}

func (r *RESTUserRepo) GetByID(ctx context.Context, id string) (types.User, error) {
	ctx, span := r.start(ctx, "GetByID", "/users/{id}")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", id))

	var env types.Envelope[types.User]
	if err := r.client.Get(ctx, userPath(id), nil, &env); err != nil {
		return types.User{}, fail(span, "get user", err)
	}
	if env.Data.ID == "" {
		return types.User{}, fail(span, "get user", types.ErrNotFound)
	}
	return env.Data, nil
}

func (r *RESTUserRepo) List(ctx context.Context, opts types.ListUsersOptions) (types.UsersPage, error) {
	ctx, span := r.start(ctx, "List", "/users")
	defer span.End()

	q := opts.Values()
	span.SetAttributes(attribute.String("query", q.Encode()))

	var env listEnvelope
	if err := r.client.Get(ctx, "/users", q, &env); err != nil {
		return types.UsersPage{}, fail(span, "list users", err)
	}
	if err := env.Payload.Validate(); err != nil {
		return types.UsersPage{}, fail(span, "list users", err)
	}
	if env.Payload.Users == nil {
		env.Payload.Users = []types.User{}
	}
	span.SetAttributes(attribute.Int("users.count", len(env.Payload.Users)))
	return env.Payload, nil
}

func (r *RESTUserRepo) Create(ctx context.Context, req types.CreateUserRequest) (types.User, error) {
	ctx, span := r.start(ctx, "Create", "/users")
	defer span.End()

	var env types.Envelope[types.User]
	if err := r.client.Post(ctx, "/users", req, &env); err != nil {
		return types.User{}, fail(span, "create user", err)
	}
	r.logger.DebugContext(ctx, "User created", slog.String("userID", env.Data.ID))
	return env.Data, nil
}

func (r *RESTUserRepo) UpdateMe(ctx context.Context, params types.UpdateUserParams) (types.User, error) {
	ctx, span := r.start(ctx, "UpdateMe", "/users/me")
	defer span.End()

	var env types.Envelope[types.User]
	if err := r.client.Patch(ctx, "/users/me", params, &env); err != nil {
		return types.User{}, fail(span, "update current user", err)
	}
	return env.Data, nil
}

func (r *RESTUserRepo) Update(ctx context.Context, id string, params types.UpdateUserParams) (types.User, error) {
	ctx, span := r.start(ctx, "Update", "/users/{id}")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", id))

	var env types.Envelope[types.User]
	if err := r.client.Patch(ctx, userPath(id), params, &env); err != nil {
		return types.User{}, fail(span, "update user", err)
	}
	return env.Data, nil
}

func (r *RESTUserRepo) ChangePassword(ctx context.Context, req types.ChangePasswordRequest) (types.StatusResponse, error) {
	ctx, span := r.start(ctx, "ChangePassword", "/users/me/password")
	defer span.End()

	var resp types.StatusResponse
	if err := r.client.Patch(ctx, "/users/me/password", req, &resp); err != nil {
		return resp, fail(span, "change password", err)
	}
	return resp, nil
}

func (r *RESTUserRepo) ToggleActive(ctx context.Context, id string) (types.ToggleActiveData, error) {
	ctx, span := r.start(ctx, "ToggleActive", "/users/{id}/active")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", id))

	var env types.Envelope[types.ToggleActiveData]
	if err := r.client.Patch(ctx, userPath(id)+"/active", nil, &env); err != nil {
		return types.ToggleActiveData{}, fail(span, "toggle active", err)
	}
	if env.Data.ID == "" {
		env.Data.ID = id
	}
	return env.Data, nil
}

func (r *RESTUserRepo) ChangeRole(ctx context.Context, id string, role types.Role) (types.ChangeRoleData, error) {
	ctx, span := r.start(ctx, "ChangeRole", "/users/{id}/role")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", id), attribute.String("user.role", string(role)))

	var env types.Envelope[types.ChangeRoleData]
	if err := r.client.Patch(ctx, userPath(id)+"/role", types.ChangeRoleRequest{Role: role}, &env); err != nil {
		return types.ChangeRoleData{}, fail(span, "change role", err)
	}
	if env.Data.ID == "" {
		env.Data.ID = id
	}
	return env.Data, nil
}

func (r *RESTUserRepo) Delete(ctx context.Context, id string) (types.DeletedUserData, error) {
	ctx, span := r.start(ctx, "Delete", "/users/{id}")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", id))

	var env types.Envelope[types.DeletedUserData]
	if err := r.client.Delete(ctx, userPath(id), &env); err != nil {
		return types.DeletedUserData{}, fail(span, "delete user", err)
	}
	if env.Data.ID == "" {
		env.Data.ID = id
	}
	return env.Data, nil
}
