package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"presence-tracker-backend/internal/model"
	"presence-tracker-backend/internal/parse"
	"presence-tracker-backend/internal/presence"
	"presence-tracker-backend/internal/store"
)

// GetPresent handles GET /api/present.
func (h *Handler) GetPresent(c *gin.Context) {
	members, err := h.engine.PresentMembers(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":   len(members),
		"members": members,
	})
}

// GetLastScan handles GET /api/last_scan for the kiosk display.
func (h *Handler) GetLastScan(c *gin.Context) {
	last, ok := h.engine.LastScan()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"last_scan": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"last_scan": last})
}

// Simulate handles POST /api/simulate/:member_id. It records a scan exactly as
// if the tag had been presented to the reader, debounce included.
func (h *Handler) Simulate(c *gin.Context) {
	res, err := h.scanner.Simulate(c.Request.Context(), c.Param("member_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type injectRequest struct {
	IDs []string `json:"ids" binding:"required,min=1"`
}

// InjectScans handles POST /api/admin/inject. The reads are queued on the
// simulated reader and recorded by the scanner loop.
func (h *Handler) InjectScans(c *gin.Context) {
	var req injectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	queued, err := h.scanner.Inject(req.IDs...)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"queued": queued})
}

type leaderboardResponse struct {
	*store.Leaderboard
	TotalHours float64 `json:"total_hours"`
}

// GetLeaderboard handles GET /api/leaderboard.
func (h *Handler) GetLeaderboard(c *gin.Context) {
	board, err := h.store.Leaderboard(c.Request.Context(), queryLimit(c, 10, 100))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, leaderboardResponse{
		Leaderboard: board,
		TotalHours:  parse.Hours(board.TotalSeconds),
	})
}

type registrationResponse struct {
	Enabled bool   `json:"enabled"`
	Mode    string `json:"mode"`
}

func (h *Handler) registrationState() registrationResponse {
	m := h.engine.Mode()
	return registrationResponse{Enabled: m == presence.ModeRegistration, Mode: m.String()}
}

// GetRegistration handles GET /api/admin/registration.
func (h *Handler) GetRegistration(c *gin.Context) {
	c.JSON(http.StatusOK, h.registrationState())
}

type putRegistrationRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// PutRegistration handles PUT /api/admin/registration.
func (h *Handler) PutRegistration(c *gin.Context) {
	var req putRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var err error
	if *req.Enabled {
		err = h.engine.EnterRegistrationMode(c.Request.Context())
	} else {
		err = h.engine.ExitRegistrationMode(c.Request.Context())
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.registrationState())
}

// ListPendingTags handles GET /api/admin/pending_tags.
func (h *Handler) ListPendingTags(c *gin.Context) {
	tags, err := h.store.ListPendingTags(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	if tags == nil {
		tags = []model.PendingTag{}
	}
	c.JSON(http.StatusOK, tags)
}

// DeletePendingTag handles DELETE /api/admin/pending_tags/:tag_id.
func (h *Handler) DeletePendingTag(c *gin.Context) {
	removed, err := h.store.RemovePendingTag(c.Request.Context(), c.Param("tag_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"error": "pending tag not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// Sweep handles POST /api/admin/sweep, running the auto-checkout immediately.
func (h *Handler) Sweep(c *gin.Context) {
	transitions, err := h.sweeper.SweepOnce(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	if transitions == nil {
		transitions = []store.Transition{}
	}
	c.JSON(http.StatusOK, gin.H{
		"checked_out": transitions,
		"count":       len(transitions),
	})
}
