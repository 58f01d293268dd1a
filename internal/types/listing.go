package types

import (
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
)

const (
	DefaultPage     = 1
	DefaultPageSize = 8
	DefaultSortBy   = "createdAt"
	MaxPageSize     = 100
)

// SortOrder is the listing sort direction.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ListUsersOptions carries every parameter that changes the result set of
// GET /users. Two option values that differ in any field must never share a
// cache entry.
type ListUsersOptions struct {
	Page       int
	Limit      int
	SortBy     string
	SortOrder  SortOrder
	RoleFilter []Role
	Active     *bool
	Search     string
}

// Normalized fills defaults and puts role filters into canonical order so
// that equivalent option sets serialize identically.
func (o ListUsersOptions) Normalized() ListUsersOptions {
	if o.Page < 1 {
		o.Page = DefaultPage
	}
	if o.Limit < 1 {
		o.Limit = DefaultPageSize
	}
	if o.Limit > MaxPageSize {
		o.Limit = MaxPageSize
	}
	if o.SortBy == "" {
		o.SortBy = DefaultSortBy
	}
	if o.SortOrder != SortDesc {
		o.SortOrder = SortAsc
	}
	o.Search = strings.TrimSpace(o.Search)
	if len(o.RoleFilter) > 0 {
		roles := slices.Clone(o.RoleFilter)
		slices.Sort(roles)
		o.RoleFilter = slices.Compact(roles)
	}
	if o.Active != nil {
		active := *o.Active
		o.Active = &active
	}
	return o
}

// Values encodes the normalized options as the listing query string.
func (o ListUsersOptions) Values() url.Values {
	n := o.Normalized()
	v := url.Values{}
	v.Set("page", strconv.Itoa(n.Page))
	v.Set("limit", strconv.Itoa(n.Limit))
	v.Set("sortBy", n.SortBy)
	v.Set("sortOrder", string(n.SortOrder))
	for _, r := range n.RoleFilter {
		v.Add("roleFilter", string(r))
	}
	if n.Active != nil {
		v.Set("active", strconv.FormatBool(*n.Active))
	}
	if n.Search != "" {
		v.Set("search", n.Search)
	}
	return v
}

// ParseListUsersOptions reads listing options from a query string.
func ParseListUsersOptions(q url.Values) (ListUsersOptions, error) {
	var o ListUsersOptions
	var err error
	if s := q.Get("page"); s != "" {
		if o.Page, err = strconv.Atoi(s); err != nil {
			return o, fmt.Errorf("invalid page %q: %w", s, err)
		}
	}
	if s := q.Get("limit"); s != "" {
		if o.Limit, err = strconv.Atoi(s); err != nil {
			return o, fmt.Errorf("invalid limit %q: %w", s, err)
		}
	}
	o.SortBy = q.Get("sortBy")
	switch s := SortOrder(q.Get("sortOrder")); s {
	case "", SortAsc, SortDesc:
		o.SortOrder = s
	default:
		return o, fmt.Errorf("invalid sortOrder %q", s)
	}
	for _, s := range q["roleFilter"] {
		if s == "" || s == "all" {
			continue
		}
		r, err := ParseRole(s)
		if err != nil {
			return o, err
		}
		o.RoleFilter = append(o.RoleFilter, r)
	}
	if s := q.Get("active"); s != "" && s != "all" {
		active, err := strconv.ParseBool(s)
		if err != nil {
			return o, fmt.Errorf("invalid active %q: %w", s, err)
		}
		o.Active = &active
	}
	o.Search = q.Get("search")
	return o.Normalized(), nil
}

// Pagination is the server's paging metadata at fetch time.
type Pagination struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

// UsersPage is one page of the users listing.
type UsersPage struct {
	Users      []User     `json:"users"`
	Pagination Pagination `json:"pagination"`
}

// Validate checks the page against its own metadata.
func (p UsersPage) Validate() error {
	if p.Pagination.Limit > 0 && len(p.Users) > p.Pagination.Limit {
		return fmt.Errorf("page holds %d users but limit is %d", len(p.Users), p.Pagination.Limit)
	}
	if len(p.Users) > p.Pagination.Total {
		return fmt.Errorf("page holds %d users but total is %d", len(p.Users), p.Pagination.Total)
	}
	return nil
}

// RoleFilterOptions returns the role filter choices a viewer may see.
// Only administrators get the filter at all.
func RoleFilterOptions(viewer Role) []string {
	if viewer != RoleAdmin {
		return nil
	}
	opts := []string{"all"}
	for _, r := range Roles {
		opts = append(opts, string(r))
	}
	return opts
}
