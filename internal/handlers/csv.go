package handlers

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"valuations/internal/metrics"
	"valuations/internal/storage"
)

// @Summary      导出全部房产的可比房产 CSV
// @Description  仅包含至少有一个已勾选可比房产的源房产；首列为可比房产成交价均值
// @Tags         report
// @Produce      text/csv
// @Success      200 {file} file
// @Router       /property/report/csv [get]
func (h *Handler) csvReport(c *gin.Context) {
	start := time.Now()
	report, err := h.csvSvc.Build(c.Request.Context())
	if err != nil {
		status := respondError(c, err)
		h.auditReport(c, storage.ReportKindCSV, nil, 0, 0, status, errorDetail(err), start)
		return
	}
	var buf bytes.Buffer
	if _, err := report.WriteTo(&buf); err != nil {
		status := respondError(c, err)
		h.auditReport(c, storage.ReportKindCSV, nil, 0, 0, status, errorDetail(err), start)
		return
	}
	body := buf.Bytes()
	metrics.ReportsGenerated.WithLabelValues(storage.ReportKindCSV).Inc()
	h.auditReport(c, storage.ReportKindCSV, nil, len(report.Rows), len(body), http.StatusOK, "", start)
	c.Header("Content-Disposition", "attachment; filename=property_report.csv")
	if notModified(c, etag(body)) {
		return
	}
	c.Data(http.StatusOK, "text/csv; charset=utf-8", body)
}
