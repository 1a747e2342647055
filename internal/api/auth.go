package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/AaronLay10/SentientStory/internal/config"
)

// Role represents an authorization role.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
)

// Auth guards operator endpoints with basic auth.
type Auth struct {
	admin    config.Credentials
	operator config.Credentials
	enabled  bool
}

// NewAuth builds the guard from resolved credentials. Auth is enabled only
// if the admin credentials are set; otherwise every request is admin
// (dev-friendly).
func NewAuth(admin, operator config.Credentials) *Auth {
	return &Auth{
		admin:    admin,
		operator: operator,
		enabled:  admin.Set(),
	}
}

// Enabled returns true if authentication is configured.
func (a *Auth) Enabled() bool {
	return a != nil && a.enabled
}

// authenticate checks basic auth credentials and returns the role if valid.
// Returns empty string if credentials are invalid.
func (a *Auth) authenticate(r *http.Request) Role {
	if !a.Enabled() {
		return RoleAdmin
	}

	user, pass, ok := r.BasicAuth()
	if !ok {
		return ""
	}

	if a.admin.Set() && secureCompare(user, a.admin.User) && secureCompare(pass, a.admin.Pass) {
		return RoleAdmin
	}
	if a.operator.Set() && secureCompare(user, a.operator.User) && secureCompare(pass, a.operator.Pass) {
		return RoleOperator
	}

	return ""
}

func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func requireAuth(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="Sentient Story"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}

// RequireRole wraps a handler and requires one of the specified roles.
func (a *Auth) RequireRole(handler http.HandlerFunc, allowedRoles ...Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := a.authenticate(r)
		if role == "" {
			requireAuth(w)
			return
		}

		for _, allowed := range allowedRoles {
			if role == allowed {
				handler(w, r)
				return
			}
		}

		http.Error(w, "Forbidden", http.StatusForbidden)
	}
}

// RequireAnyRole wraps a handler requiring admin OR operator role.
func (a *Auth) RequireAnyRole(handler http.HandlerFunc) http.HandlerFunc {
	return a.RequireRole(handler, RoleAdmin, RoleOperator)
}

// RequireAdmin wraps a handler requiring admin role only.
func (a *Auth) RequireAdmin(handler http.HandlerFunc) http.HandlerFunc {
	return a.RequireRole(handler, RoleAdmin)
}
