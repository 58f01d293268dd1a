package auth

import (
	"log/slog"
	"net/http"

	"github.com/FACorreiaa/citizen-portal/internal/api"
	"github.com/FACorreiaa/citizen-portal/internal/guard"
	"github.com/FACorreiaa/citizen-portal/internal/session"
	"github.com/FACorreiaa/citizen-portal/internal/store"
	"github.com/FACorreiaa/citizen-portal/internal/types"
)

// ProfilePath is where a successful login lands.
const ProfilePath = "/profile"

var _ Handler = (*HandlerImpl)(nil)

type Handler interface {
	Login(w http.ResponseWriter, r *http.Request)
	Register(w http.ResponseWriter, r *http.Request)
	Logout(w http.ResponseWriter, r *http.Request)
	Session(w http.ResponseWriter, r *http.Request)
}

type HandlerImpl struct {
	authService AuthService
	store       *store.Store
	history     *guard.History
	hooks       *session.Hooks
	client      *api.Client
	logger      *slog.Logger
}

func NewHandlerImpl(authService AuthService, st *store.Store, history *guard.History, hooks *session.Hooks, client *api.Client, logger *slog.Logger) *HandlerImpl {
	return &HandlerImpl{
		authService: authService,
		store:       st,
		history:     history,
		hooks:       hooks,
		client:      client,
		logger:      logger,
	}
}

func (h *HandlerImpl) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("HandlerImpl", "Login"))

	var req types.LoginRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.RenderError(w, r, err)
		return
	}

	resp, err := h.authService.Login(ctx, req)
	if err != nil {
		c := api.ClassifyError(err)
		if c.Kind == types.KindAuth {
			// Already on the login screen: show the message instead of redirecting.
			api.WriteJSONResponse(w, r, http.StatusUnauthorized, api.ErrorBody{Error: c.Message, Kind: c.Kind})
			return
		}
		api.RenderError(w, r, err)
		return
	}

	h.history.Navigate(ProfilePath, guard.NavigateOptions{Replace: true})
	l.InfoContext(ctx, "User logged in")
	api.WriteJSONResponse(w, r, http.StatusOK, api.Response[string]{Success: true, Message: resp.Message, Data: ProfilePath})
}

func (h *HandlerImpl) Register(w http.ResponseWriter, r *http.Request) {
	var req types.RegisterRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.RenderError(w, r, err)
		return
	}

	resp, err := h.authService.Register(r.Context(), req)
	if err != nil {
		api.RenderError(w, r, err)
		return
	}

	h.history.Navigate(api.LoginPath, guard.NavigateOptions{})
	api.WriteJSONResponse(w, r, http.StatusCreated, api.Response[string]{Success: true, Message: resp.Message, Data: resp.Data})
}

func (h *HandlerImpl) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.authService.Logout(r.Context()); err != nil {
		h.logger.WarnContext(r.Context(), "Logout failed", slog.Any("error", err))
		api.RenderError(w, r, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, api.Response[string]{Success: true, Message: "Logged out", Data: api.LoginPath})
}

// Session shows what the client currently believes about the session.
func (h *HandlerImpl) Session(w http.ResponseWriter, r *http.Request) {
	st := h.store.State()
	view := api.SessionView{
		IsAuthenticated: st.Auth.IsAuthenticated,
		CurrentUser:     st.User.Current,
		KnownUsers:      len(st.Users.ByID),
		Location:        h.history.Location(),
		Epoch:           h.hooks.Epoch().String(),
	}
	if claims, ok := h.client.SessionClaims(); ok && claims.ExpiresAt != nil {
		exp := claims.ExpiresAt.Time
		view.TokenExpiresAt = &exp
	}
	api.WriteJSONResponse(w, r, http.StatusOK, api.Response[api.SessionView]{Success: true, Data: view})
}
