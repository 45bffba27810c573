package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"presence-tracker-backend/config"
	"presence-tracker-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg *config.ServerConfig, handler *Handler) *gin.Engine {
	r := gin.Default()

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(ttl, 2*ttl)
	caching := mw.Cache(cacheStore, ttl)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	api.Use(rateLimiter, mw.Invalidate(cacheStore))
	{
		api.GET("/present", handler.GetPresent)
		api.GET("/last_scan", handler.GetLastScan)
		api.GET("/leaderboard", caching, handler.GetLeaderboard)
		api.POST("/simulate/:member_id", handler.Simulate)

		api.GET("/members", handler.ListMembers)
		api.GET("/members/:member_id", handler.GetMember)
		api.GET("/members/:member_id/scans", handler.GetMemberScans)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	admin := api.Group("/admin")
	{
		admin.POST("/members", handler.CreateMember)
		admin.PATCH("/members/:member_id", handler.UpdateMember)
		admin.DELETE("/members/:member_id", handler.DeleteMember)
		admin.PUT("/members/:member_id/tag", handler.ReassignTag)
		admin.POST("/members/:member_id/checkout", handler.ForceCheckout)

		admin.GET("/registration", handler.GetRegistration)
		admin.PUT("/registration", handler.PutRegistration)
		admin.GET("/pending_tags", handler.ListPendingTags)
		admin.DELETE("/pending_tags/:tag_id", handler.DeletePendingTag)
		admin.POST("/sweep", handler.Sweep)
		admin.POST("/inject", handler.InjectScans)
	}

	return r
}
