package middleware

import (
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/angelmondragon/trackvault-backend/api/responses"
	pkgauth "github.com/angelmondragon/trackvault-backend/pkg/auth"
	"github.com/angelmondragon/trackvault-backend/pkg/config"
	"github.com/angelmondragon/trackvault-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/trackvault-backend/pkg/errors"
	"github.com/angelmondragon/trackvault-backend/pkg/logger"
)

const authRealm = "trackvault"

// Auth verifies the bearer token minted by the identity service and seeds the
// request context with the caller's id and role. Rejections carry a Bearer
// WWW-Authenticate challenge.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	verifier := pkgauth.NewVerifier(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := pkgauth.BearerToken(r.Header.Get("Authorization"))
			if err != nil {
				challenge(w, "", "")
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			id, err := verifier.Verify(token)
			if err != nil {
				desc := "token invalid"
				if errors.Is(err, pkgauth.ErrTokenExpired) {
					desc = "token expired"
				}
				challenge(w, "invalid_token", desc)
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, desc))
				return
			}

			ctx := WithRole(WithUserID(r.Context(), id.UserID.String()), string(id.Role))
			if logg != nil {
				ctx = logg.WithCaller(ctx, id.UserID.String(), string(id.Role))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func challenge(w http.ResponseWriter, code, desc string) {
	var b strings.Builder
	b.WriteString(`Bearer realm="` + authRealm + `"`)
	if code != "" {
		b.WriteString(`, error="` + code + `", error_description="` + desc + `"`)
	}
	w.Header().Set("WWW-Authenticate", b.String())
}

// RequireRole admits callers holding any of roles. Requests that never went
// through Auth are unauthorized rather than forbidden.
func RequireRole(logg *logger.Logger, roles ...enums.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := RoleFromContext(r.Context())
			switch {
			case role == "":
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
				return
			case !slices.Contains(roles, enums.UserRole(role)):
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "role required").
					WithDetails(map[string]any{"role": role}))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
