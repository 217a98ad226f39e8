package core

import "strings"

// Roles
const (
	RoleAdmin      = "admin"
	RoleInstructor = "instructor"
)

type (
	// Logger is any service that can log messages.
	// expected args: error, map[string]interface{}, Identity
	Logger interface {
		Debug(msg string, args ...interface{})
		Info(msg string, args ...interface{})
		Warn(msg string, args ...interface{})
		Error(msg string, args ...interface{})
		Fatal(msg string, args ...interface{})
	}

	// Identity is the already-verified caller of a core operation.
	// It is built by the transport layer from the request credentials; the core holds no session state.
	Identity struct {
		UserID         string
		Name           string
		Email          string
		Role           string
		CoordinatorFor string // subject code, empty if not a course coordinator
	}
)

func (id Identity) IsAdmin() bool      { return id.Role == RoleAdmin }
func (id Identity) IsInstructor() bool { return id.Role == RoleInstructor }
func (id Identity) IsCoordinator() bool {
	return id.CoordinatorFor != ""
}

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}
