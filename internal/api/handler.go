package api

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"

	"presence-tracker-backend/internal/presence"
	"presence-tracker-backend/internal/scanner"
	"presence-tracker-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store   store.Store
	engine  *presence.Engine
	scanner *scanner.Service
	sweeper *presence.Sweeper
	webpush *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, engine *presence.Engine, scan *scanner.Service, sweeper *presence.Sweeper, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		store:   s,
		engine:  engine,
		scanner: scan,
		sweeper: sweeper,
		webpush: webpushOptions,
	}
}

// writeError maps domain errors to HTTP status codes. Anything else came
// from the store and is reported as 503.
func writeError(c *gin.Context, err error) {
	status := http.StatusServiceUnavailable
	switch {
	case errors.Is(err, store.ErrMemberNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrMemberExists), errors.Is(err, store.ErrNotPresent), errors.Is(err, scanner.ErrNoSimulator):
		status = http.StatusConflict
	case errors.Is(err, presence.ErrEmptyIdentifier):
		status = http.StatusBadRequest
	}
	if status >= http.StatusInternalServerError {
		log.Printf("API error on %s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func queryLimit(c *gin.Context, def, upper int) int {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit <= 0 {
		return def
	}
	if limit > upper {
		return upper
	}
	return limit
}
