package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nitesh/meal_service/internal/dietary"
	"github.com/nitesh/meal_service/internal/logging"
	"github.com/nitesh/meal_service/internal/service"
	"github.com/nitesh/meal_service/pkg/models"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	svc     *service.Service
	db      Pinger
	timeout time.Duration
}

// NewHandler builds the HTTP handlers. timeout bounds every /v1 request; zero
// disables it.
func NewHandler(svc *service.Service, db Pinger, timeout time.Duration) *Handler {
	return &Handler{svc: svc, db: db, timeout: timeout}
}

func RegisterRoutes(r *gin.Engine, h *Handler) {
	r.Use(RequestID(), RequestLogger(), Metrics(), gin.Recovery())

	r.GET("/healthz", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1", Timeout(h.timeout))
	{
		v1.GET("/meals", h.Discover)
		v1.GET("/meals/dietary-restrictions", h.DietaryRestrictions)
		v1.GET("/meals/:id", h.Get)

		authed := v1.Group("", Identity(h.svc))
		authed.POST("/meals", h.Create)
		authed.PUT("/meals/:id", h.Update)
		authed.DELETE("/meals/:id", h.Delete)
		authed.GET("/meals/my/listings", h.MyListings)
		authed.GET("/meals/my/recommendations", h.Recommendations)
		authed.PUT("/users/me/dietary-preferences", h.UpdatePreferences)
	}
}

// Discover: GET /v1/meals?cuisine_type=Thai&dietary_restriction=vegan,gluten-free&latitude=..&longitude=..
func (h *Handler) Discover(c *gin.Context) {
	q, err := parseDiscoverQuery(c)
	if err != nil {
		writeError(c, err)
		return
	}
	res, err := h.svc.Discover(c.Request.Context(), q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"meta": pageMeta(q, len(res)),
		"data": res,
	})
}

// Get: GET /v1/meals/:id. Counts as a view.
func (h *Handler) Get(c *gin.Context) {
	res, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": res})
}

// Create: POST /v1/meals
func (h *Handler) Create(c *gin.Context) {
	var in service.ListingInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_REQUEST", "invalid json: "+err.Error()))
		return
	}
	res, err := h.svc.Create(c.Request.Context(), actor(c), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": res})
}

// Update: PUT /v1/meals/:id with a partial body.
func (h *Handler) Update(c *gin.Context) {
	var patch service.ListingPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_REQUEST", "invalid json: "+err.Error()))
		return
	}
	res, err := h.svc.Update(c.Request.Context(), actor(c), c.Param("id"), patch)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": res})
}

// Delete: DELETE /v1/meals/:id. The listing is marked removed, not erased.
func (h *Handler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.svc.Delete(c.Request.Context(), actor(c), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"meta": gin.H{"id": id, "status": models.StatusRemoved},
	})
}

// MyListings: GET /v1/meals/my/listings
func (h *Handler) MyListings(c *gin.Context) {
	res, err := h.svc.Mine(c.Request.Context(), actor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"meta": gin.H{"count": len(res)},
		"data": res,
	})
}

// Recommendations: GET /v1/meals/my/recommendations?latitude=..&longitude=..&max_distance_miles=10
func (h *Handler) Recommendations(c *gin.Context) {
	q, err := parseRecommendQuery(c)
	if err != nil {
		writeError(c, err)
		return
	}
	res, err := h.svc.Recommend(c.Request.Context(), actor(c), q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"meta": pageMeta(q, len(res)),
		"data": res,
	})
}

// UpdatePreferences: PUT /v1/users/me/dietary-preferences
func (h *Handler) UpdatePreferences(c *gin.Context) {
	var p models.DietaryProfile
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_REQUEST", "invalid json: "+err.Error()))
		return
	}
	u, err := h.svc.UpdatePreferences(c.Request.Context(), actor(c), p)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": u})
}

type restrictionView struct {
	Name                string   `json:"name"`
	ExcludedIngredients []string `json:"excluded_ingredients"`
	ExcludedAllergens   []string `json:"excluded_allergens"`
}

// DietaryRestrictions: GET /v1/meals/dietary-restrictions
func (h *Handler) DietaryRestrictions(c *gin.Context) {
	names := dietary.Known()
	out := make([]restrictionView, 0, len(names))
	for _, n := range names {
		r := dietary.RulesFor(n)
		out = append(out, restrictionView{Name: n, ExcludedIngredients: r.Ingredients, ExcludedAllergens: r.Allergens})
	}
	c.JSON(http.StatusOK, gin.H{
		"meta": gin.H{"count": len(out)},
		"data": out,
	})
}

// Health: GET /healthz
func (h *Handler) Health(c *gin.Context) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			logging.Ctx(c.Request.Context()).Warn().Err(err).Msg("health check failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
