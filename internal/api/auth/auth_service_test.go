package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"testing"
	"time"

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

// MockAuthRepo is a mock implementation of the AuthRepo interface
type MockAuthRepo struct {
	mock.Mock
}

func (m *MockAuthRepo) Login(ctx context.Context, req types.LoginRequest) (types.StatusResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(types.StatusResponse), args.Error(1)
}

func (m *MockAuthRepo) Register(ctx context.Context, req types.RegisterRequest) (types.RegisterResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(types.RegisterResponse), args.Error(1)
}

func (m *MockAuthRepo) Logout(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type serviceFixture struct {
	repo    *MockAuthRepo
	cache   *querycache.Cache
	store   *store.Store
	history *guard.History
	hooks   *session.Hooks
	service *AuthServiceImpl
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	logger := slog.Default()
	repo := new(MockAuthRepo)
	c := querycache.New(querycache.Config{StaleTime: time.Minute})
	st := store.New(logger)
	history := guard.NewHistory("/login")
	hooks := session.New(c, st, history, logger)
	t.Cleanup(hooks.Close)
	return &serviceFixture{
		repo:    repo,
		cache:   c,
		store:   st,
		history: history,
		hooks:   hooks,
		service: NewAuthService(repo, c, hooks, api.NewValidator(), logger),
	}
}

func validRegistration() types.RegisterRequest {
	return types.RegisterRequest{
		Username:    "anna",
		Email:       "anna@example.com",
		Password:    "Str0ng!pass",
		Firstname:   "Anna",
		Lastname:    "Papadopoulou",
		PhoneNumber: "6912345678",
		Address:     types.AddressInput{City: "Athens", Street: "Ermou", Number: "12", Postcode: "10563"},
		SSN:         "123456789",
	}
}

func TestAuthService_Login(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		f := newServiceFixture(t)
		me := types.User{ID: "u1", Username: "anna"}
		querycache.SetQueryData(f.cache, session.CurrentUserKey, func(types.User, bool) (types.User, bool) { return me, true })
		before := f.hooks.Epoch()

		req := types.LoginRequest{UsernameOrEmail: "anna@example.com", Password: "Str0ng!pass"}
		f.repo.On("Login", mock.Anything, req).Return(types.StatusResponse{Status: true, Message: "Welcome"}, nil).Once()

		resp, err := f.service.Login(context.Background(), types.LoginRequest{UsernameOrEmail: "  anna@example.com ", Password: "Str0ng!pass"})
		require.NoError(t, err)
		assert.Equal(t, "Welcome", resp.Message)
		assert.True(t, f.store.IsAuthenticated())
		assert.NotEqual(t, before, f.hooks.Epoch())

		_, cached := f.cache.Peek(session.CurrentUserKey)
		assert.False(t, cached)
		_, known := f.store.CurrentUser()
		assert.False(t, known)
		f.repo.AssertExpectations(t)
	})

	t.Run("ValidationFailureSkipsBackend", func(t *testing.T) {
		f := newServiceFixture(t)

		_, err := f.service.Login(context.Background(), types.LoginRequest{UsernameOrEmail: "a", Password: "short"})
		var verr *types.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.NotEmpty(t, verr.Fields)
		f.repo.AssertNotCalled(t, "Login", mock.Anything, mock.Anything)
		assert.False(t, f.store.IsAuthenticated())
	})

	t.Run("StatusFalseIsAuthFailure", func(t *testing.T) {
		f := newServiceFixture(t)
		f.repo.On("Login", mock.Anything, mock.Anything).Return(types.StatusResponse{Status: false, Message: "Account disabled"}, nil).Once()

		_, err := f.service.Login(context.Background(), types.LoginRequest{UsernameOrEmail: "anna", Password: "Str0ng!pass"})
		require.Error(t, err)
		c := api.ClassifyError(err)
		assert.Equal(t, types.KindAuth, c.Kind)
		assert.Equal(t, "Account disabled", c.Message)
		assert.False(t, f.store.IsAuthenticated())
	})

	t.Run("RejectedCredentials", func(t *testing.T) {
		f := newServiceFixture(t)
		f.repo.On("Login", mock.Anything, mock.Anything).
			Return(types.StatusResponse{}, &types.APIError{StatusCode: http.StatusUnauthorized}).Once()

		_, err := f.service.Login(context.Background(), types.LoginRequest{UsernameOrEmail: "anna", Password: "Str0ng!pass"})
		require.Error(t, err)
		assert.Equal(t, api.MsgUnauthorized, api.ClassifyError(err).Message)
		assert.Equal(t, "/login", f.history.Location())
	})
}

func TestAuthService_Register(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		f := newServiceFixture(t)
		f.repo.On("Register", mock.Anything, validRegistration()).
			Return(types.RegisterResponse{Status: true, Message: "Registered", Data: "u9"}, nil).Once()

		resp, err := f.service.Register(context.Background(), validRegistration())
		require.NoError(t, err)
		assert.Equal(t, "u9", resp.Data)
		assert.False(t, f.store.IsAuthenticated())
	})

	t.Run("InvalidPostcode", func(t *testing.T) {
		f := newServiceFixture(t)
		req := validRegistration()
		req.Address.Postcode = "12a"

		_, err := f.service.Register(context.Background(), req)
		c := api.ClassifyError(err)
		assert.Equal(t, types.KindValidation, c.Kind)
		require.NotEmpty(t, c.Fields)
		assert.Equal(t, "address.postcode", c.Fields[0].Field)
		f.repo.AssertNotCalled(t, "Register", mock.Anything, mock.Anything)
	})

	t.Run("Conflict", func(t *testing.T) {
		f := newServiceFixture(t)
		f.repo.On("Register", mock.Anything, mock.Anything).Return(types.RegisterResponse{}, &types.APIError{
			StatusCode: http.StatusConflict,
			Fields:     []types.FieldError{{Field: "email", Message: "Email already in use"}},
		}).Once()

		_, err := f.service.Register(context.Background(), validRegistration())
		c := api.ClassifyError(err)
		assert.Equal(t, types.KindValidation, c.Kind)
		assert.Equal(t, "Email already in use", c.Message)
	})
}

func TestAuthService_Logout(t *testing.T) {
	t.Run("ClearsSession", func(t *testing.T) {
		f := newServiceFixture(t)
		f.hooks.LoggedIn()
		f.history.Navigate("/users", guard.NavigateOptions{})
		querycache.SetQueryData(f.cache, session.UserKey("u2"), func(types.User, bool) (types.User, bool) {
			return types.User{ID: "u2"}, true
		})
		f.repo.On("Logout", mock.Anything).Return(nil).Once()

		require.NoError(t, f.service.Logout(context.Background()))
		assert.False(t, f.store.IsAuthenticated())
		assert.Empty(t, f.cache.Keys(nil))
		assert.Equal(t, "/login", f.history.Location())
	})

	t.Run("ServerErrorKeepsSession", func(t *testing.T) {
		f := newServiceFixture(t)
		f.hooks.LoggedIn()
		f.repo.On("Logout", mock.Anything).Return(errors.New("boom")).Once()

		require.Error(t, f.service.Logout(context.Background()))
		assert.True(t, f.store.IsAuthenticated())
	})

	t.Run("UnauthorizedClearsSession", func(t *testing.T) {
		f := newServiceFixture(t)
		f.hooks.LoggedIn()
		f.repo.On("Logout", mock.Anything).Return(&types.APIError{StatusCode: http.StatusUnauthorized}).Once()

		require.Error(t, f.service.Logout(context.Background()))
		assert.False(t, f.store.IsAuthenticated())
	})
}
