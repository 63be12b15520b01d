package auth

import "strings"

const (
	DefaultNextPath = "/dashboard"
	LoginPath       = "/login"
	RegisterPath    = "/register"
)

// isLocalPath accepts only same-origin absolute paths. "//host" is a
// protocol-relative URL and would leave the site.
func isLocalPath(value string) bool {
	return strings.HasPrefix(value, "/") && !strings.HasPrefix(value, "//") && !strings.Contains(value, "\\")
}

func SanitizeNextPath(value string) string {
	if !isLocalPath(value) {
		return DefaultNextPath
	}
	return value
}

func SanitizeFromPath(value string) string {
	if value == RegisterPath {
		return RegisterPath
	}
	return LoginPath
}
