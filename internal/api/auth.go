package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/kalambet/replydesk/internal/knowledge"
)

type roleKey struct{}

// BearerAuth accepts any of the given tokens and stores the matching role
// on the request context. Empty tokens never match.
func BearerAuth(tokens map[string]knowledge.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(auth, prefix) {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			presented := []byte(auth[len(prefix):])

			var role knowledge.Role
			for tok, tokRole := range tokens {
				if tok != "" && subtle.ConstantTimeCompare(presented, []byte(tok)) == 1 {
					role = tokRole
				}
			}
			if role == "" {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), roleKey{}, role)))
		})
	}
}

// RoleFrom returns the role BearerAuth attached to ctx, or RoleCS.
func RoleFrom(ctx context.Context) knowledge.Role {
	if r, ok := ctx.Value(roleKey{}).(knowledge.Role); ok {
		return r
	}
	return knowledge.RoleCS
}
