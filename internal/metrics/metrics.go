package metrics

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 指标定义：
// - http_requests_total：按路径与方法统计请求次数（附带状态码标签）
// - http_request_duration_seconds：按路径与方法统计请求耗时分布
// - reports_generated_total：按类型统计成功生成的报表
// - upstream_requests_total / upstream_cache_total：估值 API 调用与缓存命中情况
// - pdf_render_duration_seconds：PDF 渲染耗时
var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "HTTP 请求计数（按路径/方法/状态）"},
		[]string{"path", "method", "status"},
	)
	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP 请求耗时（秒）", Buckets: prometheus.DefBuckets},
		[]string{"path", "method"},
	)
	ReportsGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "reports_generated_total", Help: "已生成报表数量（按类型）"},
		[]string{"kind"},
	)
	UpstreamRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "upstream_requests_total", Help: "估值 API 请求计数（按端点/结果）"},
		[]string{"endpoint", "outcome"},
	)
	UpstreamCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "upstream_cache_total", Help: "上游响应缓存命中/未命中"},
		[]string{"result"},
	)
	PDFRenderDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "pdf_render_duration_seconds", Help: "PDF 渲染耗时（秒）", Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32}},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequests, HTTPLatency, ReportsGenerated, UpstreamRequests, UpstreamCache, PDFRenderDuration)
}

// Handler 返回记录基础 HTTP 指标的中间件（QPS/耗时）。
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		dur := time.Since(start).Seconds()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		HTTPLatency.WithLabelValues(path, c.Request.Method).Observe(dur)
		HTTPRequests.WithLabelValues(path, c.Request.Method, fmt.Sprintf("%d", c.Writer.Status())).Inc()
	}
}

// Exposer 返回标准 Prometheus 暴露处理器。
func Exposer() gin.HandlerFunc { return gin.WrapH(promhttp.Handler()) }
