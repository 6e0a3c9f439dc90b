package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/phrazzld/modelgate/internal/api/permission"
	"github.com/phrazzld/modelgate/internal/api/shared"
	"github.com/phrazzld/modelgate/internal/service/authgw"
	"github.com/phrazzld/modelgate/internal/task"
)

// PatternResolver resolves a request to the route pattern it will match.
// *chi.Mux satisfies this.
type PatternResolver interface {
	Find(rctx *chi.Context, method, path string) string
}

// Gate enforces route permissions. For each request it resolves the route
// pattern, looks up the permission registry, and either passes the request
// through (unmapped routes are public) or verifies the credential against
// the auth gateway and attaches the resulting principal to the context.
type Gate struct {
	registry *permission.Registry
	client   authgw.Client
	resolver PatternResolver
	service  string
	enabled  bool
}

// NewGate creates the permission gate. When enabled is false the gate still
// resolves routes but skips verification, attaching a system principal so
// protected handlers keep working in development setups.
func NewGate(
	registry *permission.Registry,
	client authgw.Client,
	resolver PatternResolver,
	service string,
	enabled bool,
) *Gate {
	return &Gate{
		registry: registry,
		client:   client,
		resolver: resolver,
		service:  service,
		enabled:  enabled,
	}
}

// Middleware is the gating handler wrapper.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pattern := g.resolver.Find(chi.NewRouteContext(), r.Method, r.URL.Path)

		req, ok := g.registry.Lookup(r.Method, pattern)
		if !ok {
			// No declared requirement: public by policy, credential or not.
			next.ServeHTTP(w, r)
			return
		}

		if !g.enabled {
			ctx := withPrincipal(r.Context(), task.Principal{ID: g.service, System: true})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		cred, err := authgw.CredentialFromRequest(r)
		if err != nil {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Credential required")
			return
		}

		decision, err := g.client.Verify(r.Context(), cred, g.service, req.Resource, req.Action)
		if err != nil {
			switch {
			case errors.Is(err, authgw.ErrPermission):
				shared.RespondWithError(w, r, http.StatusForbidden, "Insufficient permissions")
			case errors.Is(err, authgw.ErrAuth):
				shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication failed")
			default:
				shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Authentication error", err)
			}
			return
		}

		ctx := withPrincipal(r.Context(), task.Principal{
			ID:     decision.Principal,
			System: decision.SystemScope,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func withPrincipal(ctx context.Context, p task.Principal) context.Context {
	return context.WithValue(ctx, shared.PrincipalKey, p)
}

// GetPrincipal extracts the authenticated principal from the request
// context. The second return is false on public routes.
func GetPrincipal(r *http.Request) (task.Principal, bool) {
	p, ok := r.Context().Value(shared.PrincipalKey).(task.Principal)
	return p, ok
}
