package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/xelth-com/colocacion/internal/utils"
)

type contextKey string

const actorContextKey contextKey = "actor"

// DeviceHeader identifies the handheld a request comes from. Undo/redo
// history and print notifications are scoped per device.
const DeviceHeader = "X-Device-ID"

// Actor is the authenticated caller
type Actor struct {
	ID       string
	Role     string
	DeviceID string
}

func (a Actor) IsAdmin() bool { return a.Role == utils.RoleAdmin }

// ActorFrom returns the actor stored by Auth
func ActorFrom(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorContextKey).(Actor)
	return a, ok
}

// WithActor stores an actor in ctx
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorContextKey, a)
}

// Auth verifies the bearer JWT and records the actor and device
func Auth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := bearer(r)
			if tokenString == "" {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			claims, err := utils.ValidateToken(tokenString, secret)
			if err != nil {
				http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}
			id, role, err := utils.ActorFromClaims(claims)
			if err != nil {
				http.Error(w, "Invalid token claims", http.StatusUnauthorized)
				return
			}

			device := r.Header.Get(DeviceHeader)
			if device == "" {
				device = r.URL.Query().Get("device")
			}
			if device == "" {
				device = "default"
			}

			ctx := WithActor(r.Context(), Actor{ID: id, Role: role, DeviceID: device})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearer reads the token from the Authorization header, or from the
// "token" query parameter for websocket upgrades
func bearer(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.Split(h, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return ""
		}
		return parts[1]
	}
	return r.URL.Query().Get("token")
}

// RequireAdmin rejects non-admin actors
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a, ok := ActorFrom(r.Context())
		if !ok || !a.IsAdmin() {
			http.Error(w, "Admin role required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
