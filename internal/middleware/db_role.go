package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

type dbRoleContextKey struct{}

// DBRoleContext carries validated database role information.
type DBRoleContext struct {
	Role      string
	Validated bool
}

// WithDBRole attaches the database role to the request context.
func WithDBRole(ctx context.Context, role string, validated bool) context.Context {
	return context.WithValue(ctx, dbRoleContextKey{}, DBRoleContext{
		Role:      role,
		Validated: validated,
	})
}

// DBRoleFromContext extracts the database role from context.
func DBRoleFromContext(ctx context.Context) (DBRoleContext, bool) {
	value := ctx.Value(dbRoleContextKey{})
	if value == nil {
		return DBRoleContext{}, false
	}
	role, ok := value.(DBRoleContext)
	return role, ok
}

// RoleFromContext adapts DBRoleFromContext to the executor's role lookup.
func RoleFromContext(ctx context.Context) (string, bool) {
	role, ok := DBRoleFromContext(ctx)
	if !ok || role.Role == "" {
		return "", false
	}
	return role.Role, true
}

// RoleSource says where a request names its database role. A non-empty
// Claim reads the role from the validated token placed in context by
// OIDCAuthMiddleware; otherwise Header is used.
type RoleSource struct {
	Header string
	Claim  string
}

// DBRoleMiddleware resolves the database role of a request. An empty allow
// list accepts any role.
func DBRoleMiddleware(source RoleSource, availableRoles []string) func(http.Handler) http.Handler {
	if source.Header == "" {
		source.Header = "X-DB-Role"
	}

	allowed := make(map[string]struct{}, len(availableRoles))
	for _, role := range availableRoles {
		allowed[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var role string
			if source.Claim != "" {
				authCtx, authenticated := AuthFromContext(r.Context())
				if !authenticated {
					WriteError(w, http.StatusUnauthorized, "unauthenticated", "missing authentication")
					return
				}
				raw, ok := authCtx.Claims[source.Claim]
				if !ok {
					WriteError(w, http.StatusForbidden, "missing_role", fmt.Sprintf("missing %s claim", source.Claim))
					return
				}
				claimed, ok := raw.(string)
				if !ok {
					WriteError(w, http.StatusBadRequest, "invalid_role", fmt.Sprintf("invalid %s claim type", source.Claim))
					return
				}
				role = strings.TrimSpace(claimed)
			} else {
				role = strings.TrimSpace(r.Header.Get(source.Header))
			}
			if role == "" {
				WriteError(w, http.StatusForbidden, "missing_role", fmt.Sprintf("missing %s header", source.Header))
				return
			}

			if len(allowed) > 0 {
				if _, ok := allowed[role]; !ok {
					WriteError(w, http.StatusForbidden, "forbidden_role", fmt.Sprintf("invalid database role: %s", role))
					return
				}
			}

			ctx := WithDBRole(r.Context(), role, true)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
