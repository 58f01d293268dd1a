package user

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/FACorreiaa/citizen-portal/internal/api"
	"github.com/FACorreiaa/citizen-portal/internal/store"
	"github.com/FACorreiaa/citizen-portal/internal/types"
)

var _ Handler = (*HandlerImpl)(nil)

type Handler interface {
	GetProfile(w http.ResponseWriter, r *http.Request)
	UpdateProfile(w http.ResponseWriter, r *http.Request)
	ChangePassword(w http.ResponseWriter, r *http.Request)

	ListUsers(w http.ResponseWriter, r *http.Request)
	CreateUser(w http.ResponseWriter, r *http.Request)
	GetUser(w http.ResponseWriter, r *http.Request)
	UpdateUser(w http.ResponseWriter, r *http.Request)
	ToggleActive(w http.ResponseWriter, r *http.Request)
	ChangeRole(w http.ResponseWriter, r *http.Request)
	DeleteUser(w http.ResponseWriter, r *http.Request)
}

type HandlerImpl struct {
	userService UserService
	store       *store.Store
	logger      *slog.Logger
}

// NewHandlerImpl creates a new user HandlerImpl instance.
func NewHandlerImpl(userService UserService, st *store.Store, logger *slog.Logger) *HandlerImpl {
	if logger == nil {
		panic("user: NewHandlerImpl called with nil logger")
	}
	return &HandlerImpl{
		userService: userService,
		store:       st,
		logger:      logger,
	}
}

func (h *HandlerImpl) GetProfile(w http.ResponseWriter, r *http.Request) {
	res := h.userService.CurrentUser(r.Context())
	if res.Err != nil && !res.HasData {
		api.RenderError(w, r, res.Err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, api.Response[api.UserView]{
		Success: true,
		Data:    api.UserView{User: res.Data, Stale: res.IsFetching},
	})
}

func (h *HandlerImpl) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var params types.UpdateUserParams
	if err := api.DecodeJSONBody(w, r, &params); err != nil {
		api.RenderError(w, r, err)
		return
	}
	u, err := h.userService.UpdateMe(r.Context(), params)
	if err != nil {
		api.RenderError(w, r, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, api.Response[types.User]{Success: true, Message: "Profile updated", Data: u})
}

func (h *HandlerImpl) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req types.ChangePasswordRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.RenderError(w, r, err)
		return
	}
	resp, err := h.userService.ChangePassword(r.Context(), req)
	if err != nil {
		api.RenderError(w, r, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, api.Response[bool]{Success: true, Message: resp.Message, Data: resp.Status})
}

// ListUsers renders the listing screen. Role filter choices are offered only
// to administrators; a forbidden listing is a page-level message.
func (h *HandlerImpl) ListUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("HandlerImpl", "ListUsers"))

	opts, err := types.ParseListUsersOptions(r.URL.Query())
	if err != nil {
		api.WriteJSONResponse(w, r, http.StatusBadRequest, api.ErrorBody{
			Error:     err.Error(),
			Kind:      types.KindValidation,
			RequestID: middleware.GetReqID(ctx),
		})
		return
	}

	res, current := h.userService.ListUsers(ctx, opts)
	if !current {
		l.DebugContext(ctx, "Dropping superseded listing")
		api.ErrorResponse(w, r, http.StatusConflict, "The listing changed before this page loaded.")
		return
	}
	if res.Err != nil && !res.HasData {
		if api.ClassifyError(res.Err).Kind == types.KindPermission {
			api.WriteJSONResponse(w, r, http.StatusForbidden, api.ErrorBody{
				Error:     api.MsgNoPermission,
				Kind:      types.KindPermission,
				RequestID: middleware.GetReqID(ctx),
			})
			return
		}
		api.RenderError(w, r, res.Err)
		return
	}

	var viewer types.Role
	if me, ok := h.store.CurrentUser(); ok {
		viewer = me.Role
	}
	api.WriteJSONResponse(w, r, http.StatusOK, api.Response[api.UsersView]{
		Success: true,
		Data: api.UsersView{
			Users:             res.Data.Users,
			Pagination:        res.Data.Pagination,
			Query:             opts.Values(),
			RoleFilterOptions: types.RoleFilterOptions(viewer),
			IsFetching:        res.IsFetching,
		},
	})
}

func (h *HandlerImpl) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req types.CreateUserRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.RenderError(w, r, err)
		return
	}
	u, err := h.userService.CreateUser(r.Context(), req)
	if err != nil {
		api.RenderError(w, r, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusCreated, api.Response[types.User]{Success: true, Message: "User created", Data: u})
}

func (h *HandlerImpl) GetUser(w http.ResponseWriter, r *http.Request) {
	res := h.userService.UserByID(r.Context(), chi.URLParam(r, "id"))
	if res.Err != nil && !res.HasData {
		api.RenderError(w, r, res.Err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, api.Response[api.UserView]{
		Success: true,
		Data:    api.UserView{User: res.Data, Stale: res.IsFetching},
	})
}

func (h *HandlerImpl) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var params types.UpdateUserParams
	if err := api.DecodeJSONBody(w, r, &params); err != nil {
		api.RenderError(w, r, err)
		return
	}
	u, err := h.userService.UpdateUser(r.Context(), chi.URLParam(r, "id"), params)
	if err != nil {
		api.RenderError(w, r, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, api.Response[types.User]{Success: true, Message: "User updated", Data: u})
}

func (h *HandlerImpl) ToggleActive(w http.ResponseWriter, r *http.Request) {
	data, err := h.userService.ToggleActive(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.RenderError(w, r, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, api.Response[types.ToggleActiveData]{Success: true, Data: data})
}

func (h *HandlerImpl) ChangeRole(w http.ResponseWriter, r *http.Request) {
	var req types.ChangeRoleRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.RenderError(w, r, err)
		return
	}
	data, err := h.userService.ChangeRole(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		api.RenderError(w, r, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, api.Response[types.ChangeRoleData]{Success: true, Data: data})
}

func (h *HandlerImpl) DeleteUser(w http.ResponseWriter, r *http.Request) {
	data, err := h.userService.DeleteUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.RenderError(w, r, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, api.Response[types.DeletedUserData]{Success: true, Message: "User deleted", Data: data})
}
