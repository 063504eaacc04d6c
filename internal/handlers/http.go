package handlers

import (
    "time"

    "github.com/gin-gonic/gin"
    log "github.com/sirupsen/logrus"

    "valuations/internal/config"
    "valuations/internal/metrics"
    "valuations/internal/middlewares"
    "valuations/internal/services"
)

// Handler 聚合所有依赖（配置、服务、渲染器）并注册 HTTP 路由。
type Handler struct {
    cfg         config.Config
    propertySvc *services.PropertyService
    csvSvc      *services.CSVReportService
    reportSvc   *services.ReportService
    pdf         services.PDFRenderer
    audit       *services.AuditService
    limiter     middlewares.Counter
}

// New 构造 Handler。limiter 为 nil 时 PDF 接口不限流。
func New(cfg config.Config, ps *services.PropertyService, cs *services.CSVReportService, rs *services.ReportService, pdf services.PDFRenderer, audit *services.AuditService, limiter middlewares.Counter) *Handler {
    return &Handler{cfg: cfg, propertySvc: ps, csvSvc: cs, reportSvc: rs, pdf: pdf, audit: audit, limiter: limiter}
}

// RegisterRoutes 挂载估值查询、报表与运维端点。
func (h *Handler) RegisterRoutes(r *gin.Engine) {
    // CORS 需要覆盖未匹配路由上的 OPTIONS 预检，因此挂在引擎级别
    r.Use(middlewares.CORS(h.cfg.CORS))
    // 只有来自 trusted_proxies 的请求才读取 X-Forwarded-For
    if err := r.SetTrustedProxies(h.cfg.TrustedProxies); err != nil {
        log.WithError(err).Error("invalid trusted_proxies, ignoring forwarded headers")
        _ = r.SetTrustedProxies(nil)
    }

    window := h.cfg.Limits.Window
    if window <= 0 {
        window = time.Minute
    }
    reportLimit := middlewares.RateLimit(h.limiter, "report", h.cfg.Limits.ReportPerMinute, window, func(c *gin.Context) string { return c.ClientIP() })

    prop := r.Group("/property", middlewares.BearerAuth(h.cfg.Auth))
    // 静态路径优先于 :initial_id 匹配
    prop.GET("/report/csv", h.csvReport)
    prop.GET("/:initial_id", h.getProperty)
    prop.GET("/:initial_id/report", reportLimit, h.pdfReport)
    prop.GET("/:initial_id/report.html", h.htmlReport)

    if h.audit.Enabled() {
        r.GET("/admin/reports", middlewares.BearerAuth(h.cfg.Auth), h.recentReports)
    }

    // 运维端点
    r.GET("/metrics", h.metrics)
    r.GET("/healthz", h.healthz)
}

// @Summary      Prometheus 指标
// @Tags         ops
// @Produce      plain
// @Router       /metrics [get]
func (h *Handler) metrics(c *gin.Context) { metrics.Exposer()(c) }

// @Summary      健康检查
// @Tags         ops
// @Produce      json
// @Success      200 {object} map[string]string
// @Router       /healthz [get]
func (h *Handler) healthz(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) }
