package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/techtree/internal/curriculum"
	"github.com/ashureev/techtree/internal/domain"
	"github.com/ashureev/techtree/internal/identity"
	"github.com/ashureev/techtree/internal/store"
	"github.com/go-chi/chi/v5"
)

// CatalogHandler serves the curriculum and the caller's skill progress.
type CatalogHandler struct {
	tree *curriculum.Tree
	repo store.Repository
}

// NewCatalogHandler creates a CatalogHandler.
func NewCatalogHandler(tree *curriculum.Tree, repo store.Repository) *CatalogHandler {
	return &CatalogHandler{tree: tree, repo: repo}
}

// RegisterRoutes registers curriculum and progress routes.
func (h *CatalogHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/curriculum", h.ListTracks)
	r.Get("/api/curriculum/{track}", h.GetTrack)
	r.Get("/api/progress", h.GetProgress)
}

type trackSummary struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Tiers       int    `json:"tiers"`
}

// ListTracks handles GET /api/curriculum.
func (h *CatalogHandler) ListTracks(w http.ResponseWriter, _ *http.Request) {
	tracks := make([]trackSummary, 0, len(h.tree.Tracks))
	for _, tr := range h.tree.Tracks {
		tracks = append(tracks, trackSummary{Name: tr.Name, Description: tr.Description, Tiers: len(tr.Tiers)})
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"tracks":  tracks,
		"context": h.tree.Context("", ""),
	})
}

// GetTrack handles GET /api/curriculum/{track}?tier=NAME.
func (h *CatalogHandler) GetTrack(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "track")
	tr, ok := h.tree.FindTrack(name)
	if !ok {
		Error(w, http.StatusNotFound, "track not found")
		return
	}
	tier := r.URL.Query().Get("tier")
	if tier != "" {
		if _, ok := tr.FindTier(tier); !ok {
			Error(w, http.StatusNotFound, "tier not found")
			return
		}
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"track":   tr,
		"context": h.tree.Context(tr.Name, tier),
	})
}

// GetProgress handles GET /api/progress.
func (h *CatalogHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.repo.GetUser(r.Context(), userID)
	if err != nil || user == nil {
		Error(w, http.StatusUnauthorized, "user not found")
		return
	}
	skills, err := h.repo.ListSkillProgress(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to list skill progress", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to load progress")
		return
	}
	if skills == nil {
		skills = []*domain.SkillProgress{}
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"user_id":     user.UserID,
		"nickname":    user.Nickname,
		"total_stars": user.TotalStars,
		"max_level":   domain.MaxSkillLevel,
		"skills":      skills,
	})
}

// HealthHandler reports readiness of the stores.
type HealthHandler struct {
	checks  map[string]Pinger
	timeout time.Duration
}

// Pinger is a dependency with a liveness check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewHealthHandler checks every named pinger on each request.
func NewHealthHandler(checks map[string]Pinger) *HealthHandler {
	return &HealthHandler{checks: checks, timeout: 5 * time.Second}
}

// Ready returns the status of the API and its dependencies.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := map[string]interface{}{
		"status": "healthy",
		"checks": checks,
	}
	statusCode := http.StatusOK

	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			slog.Error("Readiness check failed", "check", name, "error", err)
			checks[name] = "unreachable"
			status["status"] = "degraded"
			statusCode = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	JSON(w, statusCode, status)
}

// RegisterHealth registers the readiness route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/ready", h.Ready)
}
