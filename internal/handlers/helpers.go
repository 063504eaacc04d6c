package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/gin-gonic/gin"

	"valuations/internal/middlewares"
	"valuations/internal/services"
	"valuations/internal/storage"
)

// errorBody 为错误响应的统一结构。
type errorBody struct {
	Detail string `json:"detail"`
}

// parseInitialID 解析路径参数 initial_id；非法时已写出 422 响应。
func parseInitialID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("initial_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, errorBody{Detail: "initial_id must be an integer"})
		return 0, false
	}
	return id, true
}

// respondError 将服务层错误映射为 HTTP 状态，返回写出的状态码。
func respondError(c *gin.Context, err error) int {
	_ = c.Error(err)
	var ue *services.UpstreamError
	if errors.As(err, &ue) {
		c.JSON(ue.Status, errorBody{Detail: ue.Detail})
		return ue.Status
	}
	c.JSON(http.StatusInternalServerError, errorBody{Detail: "Internal Server Error"})
	return http.StatusInternalServerError
}

// etag 以 xxhash 计算弱一致的内容指纹。
func etag(body []byte) string {
	return `"` + strconv.FormatUint(xxhash.Sum64(body), 16) + `"`
}

// notModified 设置 ETag；若与 If-None-Match 相同则写出 304 并返回 true。
func notModified(c *gin.Context, tag string) bool {
	c.Header("ETag", tag)
	if match := c.GetHeader("If-None-Match"); match != "" && match == tag {
		c.Status(http.StatusNotModified)
		return true
	}
	return false
}

// auditReport 记录一次报表请求。
func (h *Handler) auditReport(c *gin.Context, kind string, initialID *int64, rows, size, status int, detail string, start time.Time) {
	h.audit.Write(c.Request.Context(), storage.ReportRecord{
		Kind:       kind,
		InitialID:  initialID,
		Rows:       rows,
		Bytes:      size,
		DurationMS: time.Since(start).Milliseconds(),
		Status:     status,
		Detail:     detail,
		RequestID:  c.GetString(middlewares.RequestIDKey),
		IPAddress:  c.ClientIP(),
	})
}

func errorDetail(err error) string {
	var ue *services.UpstreamError
	if errors.As(err, &ue) {
		return ue.Detail
	}
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > 255 {
		msg = msg[:255]
	}
	return msg
}
