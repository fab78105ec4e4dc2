package domain

// PermissionLevel orders the access levels a user may hold on a resource.
type PermissionLevel int

const (
	PermissionRead PermissionLevel = iota + 1
	PermissionWrite
	PermissionAdmin
)

func (l PermissionLevel) String() string {
	switch l {
	case PermissionRead:
		return "read"
	case PermissionWrite:
		return "write"
	case PermissionAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// ParsePermissionLevel maps a level name from a token scope to its rank.
// Unknown names map to zero, which never satisfies a protected resource.
func ParsePermissionLevel(s string) PermissionLevel {
	switch s {
	case "read":
		return PermissionRead
	case "write":
		return PermissionWrite
	case "admin":
		return PermissionAdmin
	default:
		return 0
	}
}

// User is an authenticated actor. Permissions maps resource ids to the
// highest level the user holds there.
type User struct {
	Identifier  string
	Permissions map[string]PermissionLevel
}

// LevelFor returns the level the user holds on resourceID, or zero.
func (u *User) LevelFor(resourceID string) PermissionLevel {
	if u == nil {
		return 0
	}
	return u.Permissions[resourceID]
}
