package user

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/citizen-portal/internal/api"
	"github.com/FACorreiaa/citizen-portal/internal/types"
)

func newTestRepo(t *testing.T, h http.HandlerFunc) *RESTUserRepo {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	client, err := api.NewClient(api.ClientConfig{BaseURL: srv.URL})
	require.NoError(t, err)
	return NewRESTUserRepo(client, slog.Default())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestRESTUserRepo_List(t *testing.T) {
	var gotQuery string
	repo := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/users", r.URL.Path)
		gotQuery = r.URL.RawQuery
		writeJSON(w, http.StatusOK, map[string]any{
			"payload": map[string]any{
				"users":      []types.User{{ID: "u1", Username: "anna"}},
				"pagination": types.Pagination{Total: 1, Page: 1, Limit: 8, Pages: 1},
			},
		})
	})

	page, err := repo.List(context.Background(), types.ListUsersOptions{SortBy: "username", Search: "ann"})
	require.NoError(t, err)
	require.Len(t, page.Users, 1)
	assert.Equal(t, "u1", page.Users[0].ID)
	assert.Equal(t, 1, page.Pagination.Total)
	assert.Contains(t, gotQuery, "search=ann")
	assert.Contains(t, gotQuery, "sortBy=username")
	assert.Contains(t, gotQuery, "limit=8")
}

func TestRESTUserRepo_ListRejectsInconsistentPage(t *testing.T) {
	repo := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"payload": map[string]any{
				"users":      []types.User{{ID: "u1"}, {ID: "u2"}},
				"pagination": types.Pagination{Total: 2, Page: 1, Limit: 1, Pages: 2},
			},
		})
	})

	_, err := repo.List(context.Background(), types.ListUsersOptions{})
	require.Error(t, err)
}

func TestRESTUserRepo_ForbiddenListing(t *testing.T) {
	repo := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, map[string]any{"status": false, "message": "Forbidden"})
	})

	_, err := repo.List(context.Background(), types.ListUsersOptions{RoleFilter: []types.Role{types.RoleAdmin}})
	var apiErr *types.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, types.KindPermission, api.ClassifyError(err).Kind)
}

func TestRESTUserRepo_GetMe(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		repo := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/users/me", r.URL.Path)
			writeJSON(w, http.StatusOK, map[string]any{"data": types.User{ID: "me", Role: types.RoleCitizen}})
		})
		u, err := repo.GetMe(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "me", u.ID)
	})

	t.Run("EmptyBody", func(t *testing.T) {
		repo := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"data": nil})
		})
		_, err := repo.GetMe(context.Background())
		assert.ErrorIs(t, err, types.ErrNoCurrentUser)
	})
}

func TestRESTUserRepo_ToggleActive(t *testing.T) {
	repo := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/api/users/u1/active", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.Empty(t, body)
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  true,
			"message": "User deactivated",
			"data":    types.ToggleActiveData{ID: "u1", Username: "anna", Active: false},
		})
	})

	data, err := repo.ToggleActive(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", data.ID)
	assert.False(t, data.Active)
}

func TestRESTUserRepo_ChangeRole(t *testing.T) {
	repo := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		var req types.ChangeRoleRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, types.RoleEmployee, req.Role)
		writeJSON(w, http.StatusOK, map[string]any{
			"status": true,
			"data":   types.ChangeRoleData{ID: "u1", Role: req.Role},
		})
	})

	data, err := repo.ChangeRole(context.Background(), "u1", types.RoleEmployee)
	require.NoError(t, err)
	assert.Equal(t, types.RoleEmployee, data.Role)
}

func TestRESTUserRepo_DeleteEscapesID(t *testing.T) {
	repo := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/users/a%2Fb", r.URL.EscapedPath())
		writeJSON(w, http.StatusOK, map[string]any{"status": true})
	})

	data, err := repo.Delete(context.Background(), "a/b")
	require.NoError(t, err)
	assert.Equal(t, "a/b", data.ID)
}
