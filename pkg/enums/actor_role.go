package enums

import "slices"

// ActorRole is the platform role carried in access tokens.
type ActorRole string

const (
	ActorRoleStudent   ActorRole = "student"
	ActorRoleProfessor ActorRole = "professor"
	ActorRoleAdmin     ActorRole = "admin"
)

var validActorRoles = []ActorRole{
	ActorRoleStudent,
	ActorRoleProfessor,
	ActorRoleAdmin,
}

func (r ActorRole) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ActorRole.
func (r ActorRole) IsValid() bool {
	return slices.Contains(validActorRoles, r)
}

// ParseActorRole converts raw input into an ActorRole.
func ParseActorRole(value string) (ActorRole, error) {
	return parse(validActorRoles, value, "actor role")
}
