package auth

import "sort"

const (
	AuthorityTaskRead     = "TASK_READ"
	AuthorityTaskWrite    = "TASK_WRITE"
	AuthorityProfileRead  = "PROFILE_READ"
	AuthorityAccountAdmin = "ACCOUNT_ADMIN"

	RoleUser  = "USER"
	RoleAdmin = "ADMIN"

	// RolePrefix marks role-derived entries in a flattened authority list.
	RolePrefix = "ROLE_"
)

// BuiltinRoles is the reference role graph seeded into every store.
var BuiltinRoles = []Role{
	{Name: RoleUser, Authorities: []string{AuthorityTaskRead, AuthorityTaskWrite, AuthorityProfileRead}},
	{Name: RoleAdmin, Authorities: []string{AuthorityTaskRead, AuthorityTaskWrite, AuthorityProfileRead, AuthorityAccountAdmin}},
}

// FlattenAuthorities returns the sorted, de-duplicated union of role authorities
// plus ROLE_<name> for every role.
func FlattenAuthorities(roles []Role) []string {
	set := make(map[string]struct{})
	for _, r := range roles {
		set[RolePrefix+r.Name] = struct{}{}
		for _, a := range r.Authorities {
			set[a] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
