package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"valuations/internal/metrics"
	"valuations/internal/middlewares"
	"valuations/internal/storage"
)

const renderFailed = "Failed to generate report."

// @Summary      生成 PDF 估值报告
// @Description  渲染 HTML 模板并通过无头浏览器打印为 PDF，以附件形式返回
// @Tags         report
// @Produce      application/pdf
// @Param        initial_id path int true "源房产 ID"
// @Success      200 {file} file
// @Failure      404 {object} errorBody
// @Failure      429 {object} errorBody
// @Router       /property/{initial_id}/report [get]
func (h *Handler) pdfReport(c *gin.Context) {
	start := time.Now()
	id, ok := parseInitialID(c)
	if !ok {
		return
	}
	res, err := h.propertySvc.Get(c.Request.Context(), id)
	if err != nil {
		status := respondError(c, err)
		h.auditReport(c, storage.ReportKindPDF, &id, 0, 0, status, errorDetail(err), start)
		return
	}
	html, err := h.reportSvc.RenderHTML(res)
	if err != nil {
		h.renderError(c, storage.ReportKindPDF, id, err, start)
		return
	}
	pdf, err := h.pdf.RenderPDF(c.Request.Context(), html)
	if err != nil {
		h.renderError(c, storage.ReportKindPDF, id, err, start)
		return
	}
	metrics.ReportsGenerated.WithLabelValues(storage.ReportKindPDF).Inc()
	h.auditReport(c, storage.ReportKindPDF, &id, len(res.SelectedComparisons), len(pdf), http.StatusOK, "", start)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=property_report_%d.pdf", id))
	c.Data(http.StatusOK, "application/pdf", pdf)
}

// @Summary      预览报告 HTML
// @Description  返回用于生成 PDF 的 HTML 页面，便于调试模板排版
// @Tags         report
// @Produce      html
// @Param        initial_id path int true "源房产 ID"
// @Success      200 {string} string "HTML"
// @Router       /property/{initial_id}/report.html [get]
func (h *Handler) htmlReport(c *gin.Context) {
	start := time.Now()
	id, ok := parseInitialID(c)
	if !ok {
		return
	}
	res, err := h.propertySvc.Get(c.Request.Context(), id)
	if err != nil {
		status := respondError(c, err)
		h.auditReport(c, storage.ReportKindHTML, &id, 0, 0, status, errorDetail(err), start)
		return
	}
	html, err := h.reportSvc.RenderHTML(res)
	if err != nil {
		h.renderError(c, storage.ReportKindHTML, id, err, start)
		return
	}
	metrics.ReportsGenerated.WithLabelValues(storage.ReportKindHTML).Inc()
	h.auditReport(c, storage.ReportKindHTML, &id, len(res.SelectedComparisons), len(html), http.StatusOK, "", start)
	c.Data(http.StatusOK, "text/html; charset=utf-8", html)
}

func (h *Handler) renderError(c *gin.Context, kind string, id int64, err error, start time.Time) {
	_ = c.Error(err)
	log.WithError(err).WithFields(log.Fields{
		"initial_id": id,
		"kind":       kind,
		"request_id": c.GetString(middlewares.RequestIDKey),
	}).Error("report rendering failed")
	// 客户端已断开时不再写响应体
	if c.Request.Context().Err() != nil {
		c.Status(499)
	} else {
		c.JSON(http.StatusInternalServerError, errorBody{Detail: renderFailed})
	}
	h.auditReport(c, kind, &id, 0, 0, c.Writer.Status(), errorDetail(err), start)
}
