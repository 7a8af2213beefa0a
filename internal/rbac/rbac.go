package rbac

import "strings"

type Role string
type Action string

const (
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
)

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionDelete Action = "delete"
	ActionAdmin  Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleEditor:
		return action == ActionRead || action == ActionWrite
	case RoleViewer:
		return action == ActionRead
	default:
		return false
	}
}

// Normalize maps stored role strings ("Admin", " editor ") onto a known role.
// Unknown values degrade to viewer.
func Normalize(role string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(role))) {
	case RoleViewer:
		return RoleViewer
	case RoleEditor:
		return RoleEditor
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleViewer
	}
}

// Valid reports whether role names one of the known roles exactly (case-insensitive).
func Valid(role string) bool {
	switch Role(strings.ToLower(strings.TrimSpace(role))) {
	case RoleViewer, RoleEditor, RoleAdmin:
		return true
	default:
		return false
	}
}
