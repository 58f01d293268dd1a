package testbackend

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/FACorreiaa/citizen-portal/internal/api"
	"github.com/FACorreiaa/citizen-portal/internal/types"
)

type errorEnvelope struct {
	Status  bool               `json:"status"`
	Message string             `json:"message"`
	Data    []types.FieldError `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string, fields []types.FieldError) {
	writeJSON(w, status, errorEnvelope{Status: false, Message: message, Data: fields})
}

// decode reads the body into dst and validates it. It writes the error
// response itself and reports whether the handler may continue.
func (b *Backend) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Malformed request body", nil)
		return false
	}
	if err := b.validator.Validate(dst); err != nil {
		var ve *types.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, "Validation failed", ve.Fields)
			return false
		}
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return false
	}
	return true
}

func (b *Backend) login(w http.ResponseWriter, r *http.Request) {
	var req types.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Malformed request body", nil)
		return
	}

	b.mu.Lock()
	var found *record
	for _, rec := range b.users {
		if strings.EqualFold(rec.user.Email, req.UsernameOrEmail) || rec.user.Username == req.UsernameOrEmail {
			found = rec
			break
		}
	}
	b.mu.Unlock()

	if found == nil || bcrypt.CompareHashAndPassword(found.hash, []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "Invalid username or password", nil)
		return
	}
	if !found.user.Active {
		writeJSON(w, http.StatusOK, types.StatusResponse{Status: false, Message: "Your account is deactivated"})
		return
	}

	token, exp, err := b.issueToken(found.user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Could not create session", nil)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     api.SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  exp,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	b.logger.Debug("login", slog.String("userID", found.user.ID))
	writeJSON(w, http.StatusOK, types.StatusResponse{Status: true, Message: "Login successful"})
}

func (b *Backend) logout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, &http.Cookie{Name: api.SessionCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	w.WriteHeader(http.StatusNoContent)
}

// conflicts reports the unique fields u would duplicate. Must hold b.mu.
func (b *Backend) conflicts(u types.User) []types.FieldError {
	var fields []types.FieldError
	for _, rec := range b.users {
		if rec.user.ID == u.ID {
			continue
		}
		if u.Username != "" && rec.user.Username == u.Username {
			fields = append(fields, types.FieldError{Field: "username", Message: "Username already exists"})
		}
		if u.Email != "" && strings.EqualFold(rec.user.Email, u.Email) {
			fields = append(fields, types.FieldError{Field: "email", Message: "Email already exists"})
		}
	}
	return fields
}

func userFromRegistration(req types.RegisterRequest, role types.Role) types.User {
	return types.User{
		Username:    req.Username,
		Email:       req.Email,
		Firstname:   req.Firstname,
		Lastname:    req.Lastname,
		PhoneNumber: req.PhoneNumber,
		SSN:         req.SSN,
		Address: types.Address{
			City:     req.Address.City,
			Street:   req.Address.Street,
			Number:   req.Address.Number,
			Postcode: req.Address.Postcode,
		},
		Role:   role,
		Active: true,
	}
}

func (b *Backend) create(w http.ResponseWriter, u types.User, password string) (types.User, bool) {
	b.mu.Lock()
	fields := b.conflicts(u)
	b.mu.Unlock()
	if len(fields) > 0 {
		writeError(w, http.StatusConflict, "User already exists", fields)
		return types.User{}, false
	}
	return b.AddUser(u, password), true
}

func (b *Backend) register(w http.ResponseWriter, r *http.Request) {
	var req types.RegisterRequest
	if !b.decode(w, r, &req) {
		return
	}
	u, ok := b.create(w, userFromRegistration(req, types.RoleCitizen), req.Password)
	if !ok {
		return
	}
	writeJSON(w, http.StatusCreated, types.RegisterResponse{Status: true, Message: "Registration successful", Data: u.ID})
}

func (b *Backend) createUser(w http.ResponseWriter, r *http.Request) {
	if !b.requireAdmin(w, r) {
		return
	}
	var req types.CreateUserRequest
	if !b.decode(w, r, &req) {
		return
	}
	u, ok := b.create(w, userFromRegistration(req.RegisterRequest, req.Role), req.Password)
	if !ok {
		return
	}
	writeJSON(w, http.StatusCreated, types.Envelope[types.User]{Status: true, Message: "User created", Data: u})
}

func (b *Backend) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	me, _ := b.viewer(r)
	if me.Role != types.RoleAdmin {
		writeError(w, http.StatusForbidden, "Forbidden", nil)
		return false
	}
	return true
}

func (b *Backend) getMe(w http.ResponseWriter, r *http.Request) {
	me, _ := b.viewer(r)
	writeJSON(w, http.StatusOK, types.Envelope[types.User]{Status: true, Data: me})
}

func (b *Backend) getUser(w http.ResponseWriter, r *http.Request) {
	me, _ := b.viewer(r)
	id := chi.URLParam(r, "id")
	if me.Role == types.RoleCitizen && me.ID != id {
		writeError(w, http.StatusForbidden, "Forbidden", nil)
		return
	}
	u, ok := b.User(id)
	if !ok {
		writeError(w, http.StatusNotFound, "User not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, types.Envelope[types.User]{Status: true, Data: u})
}

// listUsers filters, sorts and pages the users. Citizens may not list at
// all and only administrators may filter by role.
func (b *Backend) listUsers(w http.ResponseWriter, r *http.Request) {
	me, _ := b.viewer(r)
	opts, err := types.ParseListUsersOptions(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if me.Role == types.RoleCitizen || (len(opts.RoleFilter) > 0 && me.Role != types.RoleAdmin) {
		writeError(w, http.StatusForbidden, "Forbidden", nil)
		return
	}

	b.mu.Lock()
	all := make([]types.User, 0, len(b.users))
	for _, rec := range b.users {
		if matches(rec.user, opts) {
			all = append(all, rec.user)
		}
	}
	b.mu.Unlock()

	slices.SortStableFunc(all, func(a, c types.User) int {
		n := compareBy(a, c, opts.SortBy)
		if n == 0 {
			n = strings.Compare(a.ID, c.ID)
		}
		if opts.SortOrder == types.SortDesc {
			return -n
		}
		return n
	})

	total := len(all)
	start := min((opts.Page-1)*opts.Limit, total)
	end := min(start+opts.Limit, total)
	page := types.UsersPage{
		Users: slices.Clone(all[start:end]),
		Pagination: types.Pagination{
			Total: total,
			Page:  opts.Page,
			Limit: opts.Limit,
			Pages: int(math.Ceil(float64(total) / float64(opts.Limit))),
		},
	}
	writeJSON(w, http.StatusOK, map[string]any{"payload": page})
}

func matches(u types.User, opts types.ListUsersOptions) bool {
	if len(opts.RoleFilter) > 0 && !slices.Contains(opts.RoleFilter, u.Role) {
		return false
	}
	if opts.Active != nil && u.Active != *opts.Active {
		return false
	}
	if opts.Search == "" {
		return true
	}
	needle := strings.ToLower(opts.Search)
	for _, field := range []string{u.Username, u.Email, u.Firstname, u.Lastname, u.PhoneNumber} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

func compareBy(a, c types.User, field string) int {
	switch field {
	case "username":
		return strings.Compare(a.Username, c.Username)
	case "email":
		return strings.Compare(a.Email, c.Email)
	case "firstname":
		return strings.Compare(a.Firstname, c.Firstname)
	case "lastname":
		return strings.Compare(a.Lastname, c.Lastname)
	case "role":
		return strings.Compare(string(a.Role), string(c.Role))
	default:
		return a.CreatedAt.Compare(c.CreatedAt)
	}
}

// applyUpdate merges params into the stored user with id. Must not hold b.mu.
func (b *Backend) applyUpdate(w http.ResponseWriter, id string, params types.UpdateUserParams) {
	b.mu.Lock()
	rec, ok := b.users[id]
	if !ok {
		b.mu.Unlock()
		writeError(w, http.StatusNotFound, "User not found", nil)
		return
	}
	next := rec.user
	setIf(&next.Username, params.Username)
	setIf(&next.Email, params.Email)
	setIf(&next.Firstname, params.Firstname)
	setIf(&next.Lastname, params.Lastname)
	setIf(&next.PhoneNumber, params.PhoneNumber)
	setIf(&next.SSN, params.SSN)
	if a := params.Address; a != nil {
		setIf(&next.Address.City, a.City)
		setIf(&next.Address.Street, a.Street)
		setIf(&next.Address.Number, a.Number)
		setIf(&next.Address.Postcode, a.Postcode)
	}
	if fields := b.conflicts(next); len(fields) > 0 {
		b.mu.Unlock()
		writeError(w, http.StatusConflict, "User already exists", fields)
		return
	}
	next.UpdatedAt = b.stamp()
	rec.user = next
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, types.Envelope[types.User]{Status: true, Message: "User updated", Data: next})
}

func setIf(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func (b *Backend) updateMe(w http.ResponseWriter, r *http.Request) {
	var params types.UpdateUserParams
	if !b.decode(w, r, &params) {
		return
	}
	me, _ := b.viewer(r)
	b.applyUpdate(w, me.ID, params)
}

func (b *Backend) updateUser(w http.ResponseWriter, r *http.Request) {
	if !b.requireAdmin(w, r) {
		return
	}
	var params types.UpdateUserParams
	if !b.decode(w, r, &params) {
		return
	}
	b.applyUpdate(w, chi.URLParam(r, "id"), params)
}

func (b *Backend) changePassword(w http.ResponseWriter, r *http.Request) {
	var req types.ChangePasswordRequest
	if !b.decode(w, r, &req) {
		return
	}
	me, _ := b.viewer(r)

	b.mu.Lock()
	rec := b.users[me.ID]
	current := rec.hash
	b.mu.Unlock()

	if bcrypt.CompareHashAndPassword(current, []byte(req.CurrentPassword)) != nil {
		writeError(w, http.StatusBadRequest, "Current password is incorrect",
			[]types.FieldError{{Field: "currentPassword", Message: "Current password is incorrect"}})
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), b.cost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Could not update password", nil)
		return
	}

	b.mu.Lock()
	rec.hash = hash
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, types.StatusResponse{Status: true, Message: "Password updated"})
}

func (b *Backend) toggleActive(w http.ResponseWriter, r *http.Request) {
	if !b.requireAdmin(w, r) {
		return
	}
	id := chi.URLParam(r, "id")

	b.mu.Lock()
	rec, ok := b.users[id]
	if !ok {
		b.mu.Unlock()
		writeError(w, http.StatusNotFound, "User not found", nil)
		return
	}
	rec.user.Active = !rec.user.Active
	rec.user.UpdatedAt = b.stamp()
	data := types.ToggleActiveData{ID: id, Username: rec.user.Username, Active: rec.user.Active}
	b.mu.Unlock()

	msg := "User activated"
	if !data.Active {
		msg = "User deactivated"
	}
	writeJSON(w, http.StatusOK, types.Envelope[types.ToggleActiveData]{Status: true, Message: msg, Data: data})
}

func (b *Backend) changeRole(w http.ResponseWriter, r *http.Request) {
	if !b.requireAdmin(w, r) {
		return
	}
	var req types.ChangeRoleRequest
	if !b.decode(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")

	b.mu.Lock()
	rec, ok := b.users[id]
	if !ok {
		b.mu.Unlock()
		writeError(w, http.StatusNotFound, "User not found", nil)
		return
	}
	rec.user.Role = req.Role
	rec.user.UpdatedAt = b.stamp()
	data := types.ChangeRoleData{ID: id, Username: rec.user.Username, Role: req.Role}
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, types.Envelope[types.ChangeRoleData]{Status: true, Message: "Role updated", Data: data})
}

func (b *Backend) deleteUser(w http.ResponseWriter, r *http.Request) {
	if !b.requireAdmin(w, r) {
		return
	}
	id := chi.URLParam(r, "id")

	b.mu.Lock()
	rec, ok := b.users[id]
	if ok {
		delete(b.users, id)
	}
	b.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "User not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, types.Envelope[types.DeletedUserData]{
		Status:  true,
		Message: "User deleted",
		Data:    types.DeletedUserData{ID: id, Username: rec.user.Username},
	})
}
