package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/citizen-portal/internal/api"
	"github.com/FACorreiaa/citizen-portal/internal/guard"
	"github.com/FACorreiaa/citizen-portal/internal/querycache"
	"github.com/FACorreiaa/citizen-portal/internal/session"
	"github.com/FACorreiaa/citizen-portal/internal/store"
	"github.com/FACorreiaa/citizen-portal/internal/types"
)

// MockAuthService is a mock implementation of the AuthService interface
type MockAuthService struct {
	mock.Mock
}

func (m *MockAuthService) Login(ctx context.Context, req types.LoginRequest) (types.StatusResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(types.StatusResponse), args.Error(1)
}

func (m *MockAuthService) Register(ctx context.Context, req types.RegisterRequest) (types.RegisterResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(types.RegisterResponse), args.Error(1)
}

func (m *MockAuthService) Logout(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type handlerFixture struct {
	service *MockAuthService
	store   *store.Store
	history *guard.History
	handler *HandlerImpl
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	logger := slog.Default()
	c := querycache.New(querycache.Config{})
	st := store.New(logger)
	history := guard.NewHistory("/login")
	hooks := session.New(c, st, history, logger)
	t.Cleanup(hooks.Close)
	client, err := api.NewClient(api.ClientConfig{BaseURL: "http://localhost:5000"})
	require.NoError(t, err)

	service := new(MockAuthService)
	return &handlerFixture{
		service: service,
		store:   st,
		history: history,
		handler: NewHandlerImpl(service, st, history, hooks, client, logger),
	}
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, target, bytes.NewBuffer(buf))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestLoginHandlerImpl(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		f := newHandlerFixture(t)
		creds := types.LoginRequest{UsernameOrEmail: "anna", Password: "Str0ng!pass"}
		f.service.On("Login", mock.Anything, creds).Return(types.StatusResponse{Status: true, Message: "Welcome"}, nil).Once()

		w := httptest.NewRecorder()
		f.handler.Login(w, jsonRequest(t, http.MethodPost, "/login", creds))

		assert.Equal(t, http.StatusOK, w.Code)
		var resp api.Response[string]
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "Welcome", resp.Message)
		assert.Equal(t, ProfilePath, resp.Data)
		assert.Equal(t, ProfilePath, f.history.Location())
		f.service.AssertExpectations(t)
	})

	t.Run("InvalidRequestBody", func(t *testing.T) {
		f := newHandlerFixture(t)
		req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewBufferString("{not json"))
		w := httptest.NewRecorder()

		f.handler.Login(w, req)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		var body api.ErrorBody
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, types.KindValidation, body.Kind)
		f.service.AssertNotCalled(t, "Login", mock.Anything, mock.Anything)
	})

	t.Run("AuthenticationError", func(t *testing.T) {
		f := newHandlerFixture(t)
		f.service.On("Login", mock.Anything, mock.Anything).
			Return(types.StatusResponse{}, &types.APIError{StatusCode: http.StatusUnauthorized}).Once()

		w := httptest.NewRecorder()
		f.handler.Login(w, jsonRequest(t, http.MethodPost, "/login", types.LoginRequest{UsernameOrEmail: "anna", Password: "Wr0ng!pass"}))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		var body api.ErrorBody
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, api.MsgUnauthorized, body.Error)
		assert.Equal(t, "/login", f.history.Location())
	})

	t.Run("NetworkError", func(t *testing.T) {
		f := newHandlerFixture(t)
		f.service.On("Login", mock.Anything, mock.Anything).
			Return(types.StatusResponse{}, &types.NetworkError{Method: http.MethodPost, Path: "/login", Err: errors.New("refused")}).Once()

		w := httptest.NewRecorder()
		f.handler.Login(w, jsonRequest(t, http.MethodPost, "/login", types.LoginRequest{UsernameOrEmail: "anna", Password: "Str0ng!pass"}))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		var body api.ErrorBody
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, api.MsgNetwork, body.Error)
		assert.True(t, body.Dismissible)
	})
}

func TestRegisterHandlerImpl(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		f := newHandlerFixture(t)
		f.service.On("Register", mock.Anything, validRegistration()).
			Return(types.RegisterResponse{Status: true, Message: "Registered", Data: "u9"}, nil).Once()

		w := httptest.NewRecorder()
		f.handler.Register(w, jsonRequest(t, http.MethodPost, "/register", validRegistration()))

		assert.Equal(t, http.StatusCreated, w.Code)
		var resp api.Response[string]
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "u9", resp.Data)
	})

	t.Run("FieldErrors", func(t *testing.T) {
		f := newHandlerFixture(t)
		f.service.On("Register", mock.Anything, mock.Anything).Return(types.RegisterResponse{}, &types.ValidationError{
			Fields: []types.FieldError{{Field: "ssn", Message: "ssn must be exactly 9 characters"}},
		}).Once()

		w := httptest.NewRecorder()
		f.handler.Register(w, jsonRequest(t, http.MethodPost, "/register", validRegistration()))

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		var body api.ErrorBody
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		require.Len(t, body.Fields, 1)
		assert.Equal(t, "ssn", body.Fields[0].Field)
	})
}

func TestLogoutHandlerImpl(t *testing.T) {
	f := newHandlerFixture(t)
	f.service.On("Logout", mock.Anything).Return(nil).Once()

	w := httptest.NewRecorder()
	f.handler.Logout(w, httptest.NewRequest(http.MethodPost, "/logout", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	f.service.AssertExpectations(t)
}

func TestSessionHandlerImpl(t *testing.T) {
	f := newHandlerFixture(t)
	me := types.User{ID: "u1", Username: "anna", Role: types.RoleAdmin}
	f.store.Dispatch(store.SetAuthenticated{Value: true})
	f.store.Dispatch(store.SetCurrentUser{User: me})
	f.store.Dispatch(store.SetUsersList{Users: []types.User{me, {ID: "u2"}}})

	w := httptest.NewRecorder()
	f.handler.Session(w, httptest.NewRequest(http.MethodGet, "/session", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp api.Response[api.SessionView]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Data.IsAuthenticated)
	require.NotNil(t, resp.Data.CurrentUser)
	assert.Equal(t, "u1", resp.Data.CurrentUser.ID)
	assert.Equal(t, 2, resp.Data.KnownUsers)
	assert.Equal(t, "/login", resp.Data.Location)
	assert.NotEmpty(t, resp.Data.Epoch)
	assert.Nil(t, resp.Data.TokenExpiresAt)
}
