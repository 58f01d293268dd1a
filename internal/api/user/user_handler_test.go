package user

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/citizen-portal/internal/api"
	"github.com/FACorreiaa/citizen-portal/internal/querycache"
	"github.com/FACorreiaa/citizen-portal/internal/store"
	"github.com/FACorreiaa/citizen-portal/internal/types"
)

// MockUserService is a mock implementation of the UserService interface
type MockUserService struct {
	mock.Mock
}

func (m *MockUserService) CurrentUser(ctx context.Context) querycache.Result[types.User] {
	return m.Called(ctx).Get(0).(querycache.Result[types.User])
}

func (m *MockUserService) UserByID(ctx context.Context, id string) querycache.Result[types.User] {
	return m.Called(ctx, id).Get(0).(querycache.Result[types.User])
}

func (m *MockUserService) ListUsers(ctx context.Context, opts types.ListUsersOptions) (querycache.Result[types.UsersPage], bool) {
	args := m.Called(ctx, opts)
	return args.Get(0).(querycache.Result[types.UsersPage]), args.Bool(1)
}

func (m *MockUserService) UpdateMe(ctx context.Context, params types.UpdateUserParams) (types.User, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(types.User), args.Error(1)
}

func (m *MockUserService) UpdateUser(ctx context.Context, id string, params types.UpdateUserParams) (types.User, error) {
	args := m.Called(ctx, id, params)
	return args.Get(0).(types.User), args.Error(1)
}

func (m *MockUserService) ChangePassword(ctx context.Context, req types.ChangePasswordRequest) (types.StatusResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(types.StatusResponse), args.Error(1)
}

func (m *MockUserService) CreateUser(ctx context.Context, req types.CreateUserRequest) (types.User, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(types.User), args.Error(1)
}

func (m *MockUserService) ToggleActive(ctx context.Context, id string) (types.ToggleActiveData, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(types.ToggleActiveData), args.Error(1)
}

func (m *MockUserService) ChangeRole(ctx context.Context, id string, req types.ChangeRoleRequest) (types.ChangeRoleData, error) {
	args := m.Called(ctx, id, req)
	return args.Get(0).(types.ChangeRoleData), args.Error(1)
}

func (m *MockUserService) DeleteUser(ctx context.Context, id string) (types.DeletedUserData, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(types.DeletedUserData), args.Error(1)
}

func newTestRouter(svc UserService, st *store.Store) http.Handler {
	h := NewHandlerImpl(svc, st, slog.Default())
	r := chi.NewRouter()
	r.Get("/profile", h.GetProfile)
	r.Patch("/profile", h.UpdateProfile)
	r.Get("/users", h.ListUsers)
	r.Post("/users", h.CreateUser)
	r.Get("/users/{id}", h.GetUser)
	r.Patch("/users/{id}/active", h.ToggleActive)
	r.Patch("/users/{id}/role", h.ChangeRole)
	r.Delete("/users/{id}", h.DeleteUser)
	return r
}

func storeWith(role types.Role) *store.Store {
	st := store.New(slog.Default())
	st.Dispatch(store.SetAuthenticated{Value: true})
	st.Dispatch(store.SetCurrentUser{User: types.User{ID: "me", Role: role}})
	return st
}

func onePage() querycache.Result[types.UsersPage] {
	return querycache.Result[types.UsersPage]{
		HasData: true,
		Status:  querycache.StatusSuccess,
		Data: types.UsersPage{
			Users:      []types.User{{ID: "u1", Username: "anna"}},
			Pagination: types.Pagination{Total: 1, Page: 1, Limit: 8, Pages: 1},
		},
	}
}

func TestListUsersHandler(t *testing.T) {
	t.Run("AdminSeesRoleFilter", func(t *testing.T) {
		svc := new(MockUserService)
		want := types.ListUsersOptions{Search: "ann", SortBy: "username"}.Normalized()
		svc.On("ListUsers", mock.Anything, want).Return(onePage(), true).Once()

		w := httptest.NewRecorder()
		newTestRouter(svc, storeWith(types.RoleAdmin)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/users?search=ann&sortBy=username", nil))

		require.Equal(t, http.StatusOK, w.Code)
		var resp api.Response[api.UsersView]
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, []string{"all", "admin", "employee", "citizen"}, resp.Data.RoleFilterOptions)
		assert.Len(t, resp.Data.Users, 1)
		assert.Equal(t, []string{"ann"}, resp.Data.Query["search"])
		svc.AssertExpectations(t)
	})

	t.Run("CitizenHasNoRoleFilter", func(t *testing.T) {
		svc := new(MockUserService)
		svc.On("ListUsers", mock.Anything, mock.Anything).Return(onePage(), true).Once()

		w := httptest.NewRecorder()
		newTestRouter(svc, storeWith(types.RoleCitizen)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/users", nil))

		require.Equal(t, http.StatusOK, w.Code)
		var resp api.Response[api.UsersView]
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Empty(t, resp.Data.RoleFilterOptions)
	})

	t.Run("ForbiddenIsPageLevel", func(t *testing.T) {
		svc := new(MockUserService)
		svc.On("ListUsers", mock.Anything, mock.Anything).Return(querycache.Result[types.UsersPage]{
			Status: querycache.StatusError,
			Err:    &types.APIError{StatusCode: http.StatusForbidden, Message: "Forbidden"},
		}, true).Once()

		w := httptest.NewRecorder()
		newTestRouter(svc, storeWith(types.RoleCitizen)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/users?roleFilter=admin", nil))

		assert.Equal(t, http.StatusForbidden, w.Code)
		var body api.ErrorBody
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, api.MsgNoPermission, body.Error)
		assert.Equal(t, types.KindPermission, body.Kind)
	})

	t.Run("Superseded", func(t *testing.T) {
		svc := new(MockUserService)
		svc.On("ListUsers", mock.Anything, mock.Anything).Return(querycache.Result[types.UsersPage]{}, false).Once()

		w := httptest.NewRecorder()
		newTestRouter(svc, storeWith(types.RoleAdmin)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/users", nil))
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("BadQuery", func(t *testing.T) {
		svc := new(MockUserService)

		w := httptest.NewRecorder()
		newTestRouter(svc, storeWith(types.RoleAdmin)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/users?page=abc", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		svc.AssertNotCalled(t, "ListUsers", mock.Anything, mock.Anything)
	})

	t.Run("UnauthorizedRedirects", func(t *testing.T) {
		svc := new(MockUserService)
		svc.On("ListUsers", mock.Anything, mock.Anything).Return(querycache.Result[types.UsersPage]{
			Err: &types.APIError{StatusCode: http.StatusUnauthorized},
		}, true).Once()

		w := httptest.NewRecorder()
		newTestRouter(svc, storeWith(types.RoleAdmin)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/users", nil))
		assert.Equal(t, http.StatusSeeOther, w.Code)
		assert.Equal(t, "/login", w.Header().Get("Location"))
	})
}

func TestGetUserHandler(t *testing.T) {
	t.Run("StaleWhileRevalidating", func(t *testing.T) {
		svc := new(MockUserService)
		svc.On("UserByID", mock.Anything, "u1").Return(querycache.Result[types.User]{
			HasData: true, IsFetching: true, Data: types.User{ID: "u1"},
		}).Once()

		w := httptest.NewRecorder()
		newTestRouter(svc, storeWith(types.RoleAdmin)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/users/u1", nil))

		require.Equal(t, http.StatusOK, w.Code)
		var resp api.Response[api.UserView]
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "u1", resp.Data.User.ID)
		assert.True(t, resp.Data.Stale)
	})

	t.Run("NotFound", func(t *testing.T) {
		svc := new(MockUserService)
		svc.On("UserByID", mock.Anything, "nope").Return(querycache.Result[types.User]{
			Err: &types.APIError{StatusCode: http.StatusNotFound},
		}).Once()

		w := httptest.NewRecorder()
		newTestRouter(svc, storeWith(types.RoleAdmin)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/users/nope", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestMutationHandlers(t *testing.T) {
	t.Run("ToggleActive", func(t *testing.T) {
		svc := new(MockUserService)
		svc.On("ToggleActive", mock.Anything, "u1").Return(types.ToggleActiveData{ID: "u1", Active: false}, nil).Once()

		w := httptest.NewRecorder()
		newTestRouter(svc, storeWith(types.RoleAdmin)).ServeHTTP(w, httptest.NewRequest(http.MethodPatch, "/users/u1/active", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("ChangeRole", func(t *testing.T) {
		svc := new(MockUserService)
		svc.On("ChangeRole", mock.Anything, "u1", types.ChangeRoleRequest{Role: types.RoleEmployee}).
			Return(types.ChangeRoleData{ID: "u1", Role: types.RoleEmployee}, nil).Once()

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPatch, "/users/u1/role", bytes.NewBufferString(`{"role":"employee"}`))
		newTestRouter(svc, storeWith(types.RoleAdmin)).ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("DeleteServerErrorIsDismissible", func(t *testing.T) {
		svc := new(MockUserService)
		svc.On("DeleteUser", mock.Anything, "u1").Return(types.DeletedUserData{}, &types.APIError{StatusCode: http.StatusInternalServerError}).Once()

		w := httptest.NewRecorder()
		newTestRouter(svc, storeWith(types.RoleAdmin)).ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/users/u1", nil))

		assert.Equal(t, http.StatusBadGateway, w.Code)
		var body api.ErrorBody
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.True(t, body.Dismissible)
		assert.Equal(t, api.MsgServer, body.Error)
	})

	t.Run("UpdateProfileUnknownField", func(t *testing.T) {
		svc := new(MockUserService)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPatch, "/profile", bytes.NewBufferString(`{"role":"admin"}`))
		newTestRouter(svc, storeWith(types.RoleCitizen)).ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		svc.AssertNotCalled(t, "UpdateMe", mock.Anything, mock.Anything)
	})
}
