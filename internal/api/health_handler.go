package api

import (
	"context"
	"net/http"
	"time"

	"github.com/phrazzld/modelgate/internal/api/shared"
)

// Pinger checks connectivity to the backing store. *sql.DB satisfies this.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler serves GET /health: process liveness plus store
// connectivity.
type HealthHandler struct {
	db Pinger
}

// NewHealthHandler creates a HealthHandler over the store connection.
func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

// Check handles GET /health.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusServiceUnavailable, "Store unavailable", err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, "OK", map[string]string{"status": "healthy"})
}
