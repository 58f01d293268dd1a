package user

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/citizen-portal/internal/api"
	"github.com/FACorreiaa/citizen-portal/internal/querycache"
	"github.com/FACorreiaa/citizen-portal/internal/session"
	"github.com/FACorreiaa/citizen-portal/internal/store"
	"github.com/FACorreiaa/citizen-portal/internal/types"
)

// Ensure implementation satisfies the interface
var _ UserService = (*UserServiceImpl)(nil)

// UserService is the set of user queries and mutations the screens use.
type UserService interface {
	// Queries
	CurrentUser(ctx context.Context) querycache.Result[types.User]
	UserByID(ctx context.Context, id string) querycache.Result[types.User]
	ListUsers(ctx context.Context, opts types.ListUsersOptions) (querycache.Result[types.UsersPage], bool)

	// Mutations
	UpdateMe(ctx context.Context, params types.UpdateUserParams) (types.User, error)
	UpdateUser(ctx context.Context, id string, params types.UpdateUserParams) (types.User, error)
	ChangePassword(ctx context.Context, req types.ChangePasswordRequest) (types.StatusResponse, error)
	CreateUser(ctx context.Context, req types.CreateUserRequest) (types.User, error)
	ToggleActive(ctx context.Context, id string) (types.ToggleActiveData, error)
	ChangeRole(ctx context.Context, id string, req types.ChangeRoleRequest) (types.ChangeRoleData, error)
	DeleteUser(ctx context.Context, id string) (types.DeletedUserData, error)
}

// UserServiceImpl provides the implementation for UserService.
type UserServiceImpl struct {
	logger    *slog.Logger
	repo      UserRepo
	cache     *querycache.Cache
	store     *store.Store
	hooks     *session.Hooks
	validator *api.Validator
	retry     *querycache.RetryPolicy
}

// NewUserService creates a new user service instance.
func NewUserService(repo UserRepo, cache *querycache.Cache, st *store.Store, hooks *session.Hooks, validator *api.Validator, logger *slog.Logger) *UserServiceImpl {
	retry := querycache.DefaultRetry()
	retry.ShouldRetry = api.IsTransient
	return &UserServiceImpl{
		logger:    logger,
		repo:      repo,
		cache:     cache,
		store:     st,
		hooks:     hooks,
		validator: validator,
		retry:     retry,
	}
}

// WithRetry replaces the retry policy of non-authorization queries.
func (s *UserServiceImpl) WithRetry(p *querycache.RetryPolicy) *UserServiceImpl {
	s.retry = p
	return s
}

// CurrentUser reads the session's user. It never retries: a failure here is
// usually an expired session and must reach the guard at once.
func (s *UserServiceImpl) CurrentUser(ctx context.Context) querycache.Result[types.User] {
	ctx, span := otel.Tracer("UserService").Start(ctx, "CurrentUser")
	defer span.End()

	r := querycache.Query(ctx, s.cache, session.CurrentUserKey, s.repo.GetMe, querycache.TypedOptions[types.User]{
		Retry: querycache.NoRetry(),
	})
	if r.Err != nil {
		span.RecordError(r.Err)
		span.SetStatus(codes.Error, "current user unavailable")
	}
	return r
}

// UserByID reads one user. A user already known from a listing is served
// immediately and revalidated in the background.
func (s *UserServiceImpl) UserByID(ctx context.Context, id string) querycache.Result[types.User] {
	ctx, span := otel.Tracer("UserService").Start(ctx, "UserByID", trace.WithAttributes(
		attribute.String("user.id", id),
	))
	defer span.End()

	r := querycache.Query(ctx, s.cache, session.UserKey(id), func(ctx context.Context) (types.User, error) {
		return s.repo.GetByID(ctx, id)
	}, querycache.TypedOptions[types.User]{
		Retry: s.retry,
		InitialData: func() (types.User, bool) {
			return s.store.UserByID(id)
		},
	})
	if r.Err != nil {
		span.RecordError(r.Err)
		span.SetStatus(codes.Error, "user unavailable")
	}
	return r
}

// ListUsers queries one listing page through the listing slot. The flag is
// false when a newer listing query replaced this one before it resolved.
func (s *UserServiceImpl) ListUsers(ctx context.Context, opts types.ListUsersOptions) (querycache.Result[types.UsersPage], bool) {
	ctx, span := otel.Tracer("UserService").Start(ctx, "ListUsers")
	defer span.End()

	opts = opts.Normalized()
	key := session.UsersKey(opts)
	span.SetAttributes(attribute.String("cache.key", key.String()))

	r, current := s.hooks.Listing().Query(ctx, key, func(ctx context.Context) (types.UsersPage, error) {
		return s.repo.List(ctx, opts)
	})
	if !current {
		s.logger.DebugContext(ctx, "Listing superseded", slog.String("key", key.String()))
		return r, false
	}
	if r.Err != nil {
		span.RecordError(r.Err)
		span.SetStatus(codes.Error, "listing unavailable")
	}
	if r.HasData {
		s.hooks.ListingShown(key, r.Data)
	}
	return r, true
}

func (s *UserServiceImpl) UpdateMe(ctx context.Context, params types.UpdateUserParams) (types.User, error) {
	ctx, span := otel.Tracer("UserService").Start(ctx, "UpdateMe")
	defer span.End()

	if err := s.validateUpdate(&params); err != nil {
		return types.User{}, err
	}
	epoch := s.hooks.Epoch()
	u, err := querycache.Mutate(ctx, s.cache, s.repo.UpdateMe, params, querycache.MutationOptions[types.User]{
		OnSuccess: func(u types.User) {
			if u.ID == "" {
				if me, ok := s.store.CurrentUser(); ok {
					u.ID = me.ID
				}
			}
			s.hooks.UserChanged(epoch, types.PatchFromUser(u))
		},
		OnError: func(err error) { s.hooks.MutationFailed(epoch, err) },
	})
	if err != nil {
		return u, s.failed(ctx, span, "UpdateMe", err)
	}
	return u, nil
}

func (s *UserServiceImpl) UpdateUser(ctx context.Context, id string, params types.UpdateUserParams) (types.User, error) {
	ctx, span := otel.Tracer("UserService").Start(ctx, "UpdateUser", trace.WithAttributes(
		attribute.String("user.id", id),
	))
	defer span.End()

	if err := s.validateUpdate(&params); err != nil {
		return types.User{}, err
	}
	epoch := s.hooks.Epoch()
	u, err := querycache.Mutate(ctx, s.cache, func(ctx context.Context, p types.UpdateUserParams) (types.User, error) {
		return s.repo.Update(ctx, id, p)
	}, params, querycache.MutationOptions[types.User]{
		OnSuccess: func(u types.User) {
			if u.ID == "" {
				u.ID = id
			}
			s.hooks.UserChanged(epoch, types.PatchFromUser(u))
		},
		OnError: func(err error) { s.hooks.MutationFailed(epoch, err) },
	})
	if err != nil {
		return u, s.failed(ctx, span, "UpdateUser", err)
	}
	return u, nil
}

func (s *UserServiceImpl) validateUpdate(params *types.UpdateUserParams) error {
	params.Normalize()
	if params.Empty() {
		return &types.ValidationError{Fields: []types.FieldError{{Field: "body", Message: "Nothing to update"}}}
	}
	return s.validator.Validate(params)
}

// ChangePassword has no cached effect; the server keeps the session.
func (s *UserServiceImpl) ChangePassword(ctx context.Context, req types.ChangePasswordRequest) (types.StatusResponse, error) {
	ctx, span := otel.Tracer("UserService").Start(ctx, "ChangePassword")
	defer span.End()

	req.Normalize()
	if err := s.validator.Validate(req); err != nil {
		return types.StatusResponse{}, err
	}
	epoch := s.hooks.Epoch()
	resp, err := querycache.Mutate(ctx, s.cache, s.repo.ChangePassword, req, querycache.MutationOptions[types.StatusResponse]{
		OnError: func(err error) { s.hooks.MutationFailed(epoch, err) },
	})
	if err != nil {
		return resp, s.failed(ctx, span, "ChangePassword", err)
	}
	return resp, nil
}

func (s *UserServiceImpl) CreateUser(ctx context.Context, req types.CreateUserRequest) (types.User, error) {
	ctx, span := otel.Tracer("UserService").Start(ctx, "CreateUser")
	defer span.End()

	req.Normalize()
	if err := s.validator.Validate(req); err != nil {
		return types.User{}, err
	}
	epoch := s.hooks.Epoch()
	u, err := querycache.Mutate(ctx, s.cache, s.repo.Create, req, querycache.MutationOptions[types.User]{
		OnSuccess: func(types.User) { s.hooks.UserCreated(epoch) },
		OnError:   func(err error) { s.hooks.MutationFailed(epoch, err) },
	})
	if err != nil {
		return u, s.failed(ctx, span, "CreateUser", err)
	}
	s.logger.InfoContext(ctx, "User created", slog.String("userID", u.ID))
	return u, nil
}

func (s *UserServiceImpl) ToggleActive(ctx context.Context, id string) (types.ToggleActiveData, error) {
	ctx, span := otel.Tracer("UserService").Start(ctx, "ToggleActive", trace.WithAttributes(
		attribute.String("user.id", id),
	))
	defer span.End()

	epoch := s.hooks.Epoch()
	data, err := querycache.Mutate(ctx, s.cache, s.repo.ToggleActive, id, querycache.MutationOptions[types.ToggleActiveData]{
		OnSuccess: func(d types.ToggleActiveData) {
			active := d.Active
			s.hooks.UserChanged(epoch, types.UserPatch{ID: d.ID, Active: &active})
		},
		OnError: func(err error) { s.hooks.MutationFailed(epoch, err) },
	})
	if err != nil {
		return data, s.failed(ctx, span, "ToggleActive", err)
	}
	s.logger.InfoContext(ctx, "User active flag toggled", slog.String("userID", data.ID), slog.Bool("active", data.Active))
	return data, nil
}

func (s *UserServiceImpl) ChangeRole(ctx context.Context, id string, req types.ChangeRoleRequest) (types.ChangeRoleData, error) {
	ctx, span := otel.Tracer("UserService").Start(ctx, "ChangeRole", trace.WithAttributes(
		attribute.String("user.id", id),
	))
	defer span.End()

	if err := s.validator.Validate(req); err != nil {
		return types.ChangeRoleData{}, err
	}
	epoch := s.hooks.Epoch()
	data, err := querycache.Mutate(ctx, s.cache, func(ctx context.Context, role types.Role) (types.ChangeRoleData, error) {
		return s.repo.ChangeRole(ctx, id, role)
	}, req.Role, querycache.MutationOptions[types.ChangeRoleData]{
		OnSuccess: func(d types.ChangeRoleData) {
			role := d.Role
			if role == "" {
				role = req.Role
			}
			s.hooks.UserChanged(epoch, types.UserPatch{ID: d.ID, Role: &role})
		},
		OnError: func(err error) { s.hooks.MutationFailed(epoch, err) },
	})
	if err != nil {
		return data, s.failed(ctx, span, "ChangeRole", err)
	}
	return data, nil
}

func (s *UserServiceImpl) DeleteUser(ctx context.Context, id string) (types.DeletedUserData, error) {
	ctx, span := otel.Tracer("UserService").Start(ctx, "DeleteUser", trace.WithAttributes(
		attribute.String("user.id", id),
	))
	defer span.End()

	epoch := s.hooks.Epoch()
	data, err := querycache.Mutate(ctx, s.cache, s.repo.Delete, id, querycache.MutationOptions[types.DeletedUserData]{
		OnSuccess: func(d types.DeletedUserData) { s.hooks.UserDeleted(epoch, d.ID) },
		OnError:   func(err error) { s.hooks.MutationFailed(epoch, err) },
	})
	if err != nil {
		return data, s.failed(ctx, span, "DeleteUser", err)
	}
	s.logger.InfoContext(ctx, "User deleted", slog.String("userID", data.ID))
	return data, nil
}

func (s *UserServiceImpl) failed(ctx context.Context, span trace.Span, method string, err error) error {
	s.logger.WarnContext(ctx, "Mutation failed", slog.String("method", method), slog.Any("error", err))
	span.RecordError(err)
	span.SetStatus(codes.Error, method+" failed")
	return err
}
