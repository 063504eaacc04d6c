package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// @Summary      最近生成的报表记录
// @Tags         ops
// @Produce      json
// @Param        limit query int false "条数（默认 50，最大 500）"
// @Router       /admin/reports [get]
func (h *Handler) recentReports(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	list, err := h.audit.Recent(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]gin.H, 0, len(list))
	for _, r := range list {
		out = append(out, gin.H{
			"id":          r.ID,
			"kind":        r.Kind,
			"initial_id":  r.InitialID,
			"rows":        r.Rows,
			"bytes":       r.Bytes,
			"duration_ms": r.DurationMS,
			"status":      r.Status,
			"detail":      r.Detail,
			"request_id":  r.RequestID,
			"created_at":  r.CreatedAt,
		})
	}
	c.JSON(200, gin.H{"reports": out})
}
