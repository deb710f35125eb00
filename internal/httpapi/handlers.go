package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/souschef/recipe-assistant/internal/couch"
	"github.com/souschef/recipe-assistant/internal/domain"
	"github.com/souschef/recipe-assistant/internal/store"
)

// Analytics is the read-side surface the HTTP API needs from the
// interaction store.
type Analytics interface {
	PopularCounts(ctx context.Context, viewName string) ([]couch.ViewRow, error)
	WeekdayCounts(ctx context.Context, viewName string) ([]couch.ViewRow, error)
	FindUser(ctx context.Context, name string) (*domain.User, bool, error)
	FavoritesForUser(ctx context.Context, user *domain.User, limit int) ([]domain.RecipeUsage, error)
}

// Handler serves the JSON analytics endpoints.
type Handler struct {
	analytics Analytics
}

// NewHandler constructs a Handler over the given read-side store.
func NewHandler(analytics Analytics) *Handler {
	return &Handler{analytics: analytics}
}

const defaultFavoritesLimit = 3

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func fail(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, errorResponse{Code: code, Message: message})
}

type countRow struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

func toCountRows(rows []couch.ViewRow) []countRow {
	out := make([]countRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, countRow{Key: r.Key, Count: r.Value})
	}
	return out
}

// Popular returns per-entity usage totals for one of the aggregation
// views (ingredients, cuisines, recipes).
func (h *Handler) Popular(c *gin.Context) {
	view := c.Param("view")
	rows, err := h.analytics.PopularCounts(c.Request.Context(), view)
	if err != nil {
		if errors.Is(err, store.ErrUnknownView) {
			fail(c, http.StatusBadRequest, "unknown_view", "unknown view: "+view)
			return
		}
		fail(c, http.StatusInternalServerError, "store_error", "failed to read view")
		return
	}
	c.JSON(http.StatusOK, gin.H{"view": view, "rows": toCountRows(rows)})
}

// Weekdays returns per-day-of-week request totals for one of the
// aggregation views.
func (h *Handler) Weekdays(c *gin.Context) {
	view := c.Param("view")
	rows, err := h.analytics.WeekdayCounts(c.Request.Context(), view)
	if err != nil {
		if errors.Is(err, store.ErrUnknownView) {
			fail(c, http.StatusBadRequest, "unknown_view", "unknown view: "+view)
			return
		}
		fail(c, http.StatusInternalServerError, "store_error", "failed to read view")
		return
	}
	c.JSON(http.StatusOK, gin.H{"view": view, "rows": toCountRows(rows)})
}

// Favorites returns a user's most requested recipes, highest count
// first, capped by the optional limit query parameter.
func (h *Handler) Favorites(c *gin.Context) {
	name := c.Param("name")

	limit := defaultFavoritesLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			fail(c, http.StatusBadRequest, "bad_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}

	user, found, err := h.analytics.FindUser(c.Request.Context(), name)
	if err != nil {
		fail(c, http.StatusInternalServerError, "store_error", "failed to look up user")
		return
	}
	if !found {
		fail(c, http.StatusNotFound, "unknown_user", "no such user: "+name)
		return
	}

	favs, err := h.analytics.FavoritesForUser(c.Request.Context(), user, limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, "store_error", "failed to rank favorites")
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": name, "favorites": favs})
}
