package session

import (
	"github.com/FACorreiaa/citizen-portal/internal/querycache"
	"github.com/FACorreiaa/citizen-portal/internal/types"
)

// Cache keys of the portal's remote resources.
var (
	CurrentUserKey = querycache.NewKey("userProfile")
	UserPattern    = querycache.NewKey("user")
	UsersPattern   = querycache.NewKey("users")
)

// UserKey identifies one user fetched by id.
func UserKey(id string) querycache.Key {
	return querycache.NewKey("user", id)
}

// UsersKey identifies one listing page. Every option that changes the
// result set is part of the key, in canonical order.
func UsersKey(opts types.ListUsersOptions) querycache.Key {
	return querycache.NewKey("users", opts.Values().Encode())
}
