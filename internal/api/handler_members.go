package api

import (
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"presence-tracker-backend/internal/model"
	"presence-tracker-backend/internal/parse"
	"presence-tracker-backend/internal/store"
)

// memberResponse is a member with its presence and hours for the API.
type memberResponse struct {
	store.MemberPresence
	TotalHours float64 `json:"total_hours"`
}

func toMemberResponse(p store.MemberPresence) memberResponse {
	return memberResponse{MemberPresence: p, TotalHours: parse.Hours(p.TotalSeconds)}
}

// ListMembers handles GET /api/members.
func (h *Handler) ListMembers(c *gin.Context) {
	rows, err := h.store.ListMembers(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	responses := make([]memberResponse, 0, len(rows))
	for _, row := range rows {
		responses = append(responses, toMemberResponse(row))
	}
	c.JSON(http.StatusOK, responses)
}

// GetMember handles GET /api/members/:member_id.
func (h *Handler) GetMember(c *gin.Context) {
	p, err := h.store.GetPresence(c.Request.Context(), c.Param("member_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toMemberResponse(*p))
}

// GetMemberScans handles GET /api/members/:member_id/scans.
func (h *Handler) GetMemberScans(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("member_id")
	if _, err := h.store.GetMember(ctx, id); err != nil {
		writeError(c, err)
		return
	}

	events, err := h.store.ListScanEvents(ctx, id, queryLimit(c, 50, 500))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, events)
}

type createMemberRequest struct {
	ID        string  `json:"id" binding:"required"`
	Name      string  `json:"name" binding:"required"`
	Category  *string `json:"category"`
	BoatClass *string `json:"boat_class"`
}

// CreateMember handles POST /api/admin/members. The id is the tag identifier,
// typically copied from the pending tags list.
func (h *Handler) CreateMember(c *gin.Context) {
	var req createMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := parse.NormalizeTag(req.ID, false)
	name := strings.TrimSpace(req.Name)
	if id == "" || name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id and name are required"})
		return
	}

	member := &model.Member{
		ID:        id,
		Name:      name,
		Category:  trimmed(req.Category),
		BoatClass: trimmed(req.BoatClass),
	}
	if err := h.store.CreateMember(c.Request.Context(), member); err != nil {
		writeError(c, err)
		return
	}

	p, err := h.store.GetPresence(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toMemberResponse(*p))
}

type updateMemberRequest struct {
	Name       *string  `json:"name"`
	Category   *string  `json:"category"`
	BoatClass  *string  `json:"boat_class"`
	TotalHours *float64 `json:"total_hours"`
}

// UpdateMember handles PATCH /api/admin/members/:member_id.
func (h *Handler) UpdateMember(c *gin.Context) {
	var req updateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	upd := store.MemberUpdate{Category: req.Category, BoatClass: req.BoatClass}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name cannot be empty"})
			return
		}
		upd.Name = &name
	}
	if req.TotalHours != nil {
		if *req.TotalHours < 0 || math.IsNaN(*req.TotalHours) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "total_hours must not be negative"})
			return
		}
		seconds := int64(math.Round(*req.TotalHours * 3600))
		upd.TotalSeconds = &seconds
	}

	ctx := c.Request.Context()
	id := c.Param("member_id")
	if _, err := h.store.UpdateMember(ctx, id, upd); err != nil {
		writeError(c, err)
		return
	}
	p, err := h.store.GetPresence(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toMemberResponse(*p))
}

// DeleteMember handles DELETE /api/admin/members/:member_id.
func (h *Handler) DeleteMember(c *gin.Context) {
	if err := h.store.DeleteMember(c.Request.Context(), c.Param("member_id"), time.Now().UTC()); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type reassignTagRequest struct {
	NewID string `json:"new_id" binding:"required"`
}

// ReassignTag handles PUT /api/admin/members/:member_id/tag, used when a
// member replaces a lost tag.
func (h *Handler) ReassignTag(c *gin.Context) {
	var req reassignTagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	newID := parse.NormalizeTag(req.NewID, false)
	if newID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "new_id is required"})
		return
	}

	ctx := c.Request.Context()
	if err := h.store.ReassignTag(ctx, c.Param("member_id"), newID); err != nil {
		writeError(c, err)
		return
	}
	p, err := h.store.GetPresence(ctx, newID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toMemberResponse(*p))
}

// ForceCheckout handles POST /api/admin/members/:member_id/checkout.
func (h *Handler) ForceCheckout(c *gin.Context) {
	res, err := h.engine.ForceCheckout(c.Request.Context(), c.Param("member_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
