package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"valuations/internal/metrics"
	"valuations/internal/storage"
)

// @Summary      查询源房产及已勾选的可比房产
// @Tags         property
// @Produce      json
// @Param        initial_id path int true "源房产 ID"
// @Success      200 {object} services.PropertyResult
// @Failure      404 {object} errorBody
// @Failure      422 {object} errorBody
// @Router       /property/{initial_id} [get]
func (h *Handler) getProperty(c *gin.Context) {
	start := time.Now()
	id, ok := parseInitialID(c)
	if !ok {
		return
	}
	res, err := h.propertySvc.Get(c.Request.Context(), id)
	if err != nil {
		status := respondError(c, err)
		h.auditReport(c, storage.ReportKindJSON, &id, 0, 0, status, errorDetail(err), start)
		return
	}
	body, err := json.Marshal(res)
	if err != nil {
		status := respondError(c, err)
		h.auditReport(c, storage.ReportKindJSON, &id, 0, 0, status, errorDetail(err), start)
		return
	}
	metrics.ReportsGenerated.WithLabelValues(storage.ReportKindJSON).Inc()
	h.auditReport(c, storage.ReportKindJSON, &id, len(res.SelectedComparisons), len(body), http.StatusOK, "", start)
	if notModified(c, etag(body)) {
		return
	}
	c.Data(http.StatusOK, "application/json", body)
}
