package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"valuations/internal/config"
	"valuations/internal/metrics"
)

// UpstreamError 表示上游调用失败，Status 为应返回给调用方的 HTTP 状态码。
type UpstreamError struct {
	Status int
	Detail string
	cause  error
}

func (e *UpstreamError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("upstream %d: %s: %v", e.Status, e.Detail, e.cause)
	}
	return fmt.Sprintf("upstream %d: %s", e.Status, e.Detail)
}

func (e *UpstreamError) Unwrap() error { return e.cause }

// Record 为上游返回的一条 JSON 对象，保留原始字节以便原样透传。
type Record json.RawMessage

// Get 按 gjson 路径读取字段。
func (r Record) Get(path string) gjson.Result { return gjson.GetBytes(r, path) }

func (r Record) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

func (r *Record) UnmarshalJSON(b []byte) error {
	*r = append((*r)[:0], b...)
	return nil
}

// statusPolicy 决定何种上游状态码视为失败。
type statusPolicy func(status int) bool

// raiseForStatus：4xx/5xx 视为失败。
func raiseForStatus(status int) bool { return status >= 400 }

// requireOK：除 200 外均视为失败（CSV 汇总报表沿用此规则）。
func requireOK(status int) bool { return status != http.StatusOK }

// UpstreamClient 访问估值 API（源房产与可比房产）。
type UpstreamClient struct {
	cfg   config.UpstreamConfig
	httpc *http.Client
	cache *ResponseCache
}

// NewUpstreamClient 构造客户端；cache 可为 nil。
func NewUpstreamClient(cfg config.Config, cache *ResponseCache) *UpstreamClient {
	return &UpstreamClient{
		cfg:   cfg.Upstream,
		httpc: &http.Client{Timeout: cfg.Upstream.Timeout},
		cache: cache,
	}
}

// SourceProperty 获取单个源房产。
func (u *UpstreamClient) SourceProperty(ctx context.Context, initialID int64) (Record, error) {
	url := fmt.Sprintf("%s/%d", strings.TrimRight(u.cfg.PropertyURL, "/"), initialID)
	body, err := u.fetch(ctx, "property", url, raiseForStatus,
		"Source property not found.",
		"An error occurred while fetching the source property.")
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, &UpstreamError{Status: http.StatusInternalServerError, Detail: "An error occurred while fetching the source property.", cause: errors.New("invalid json")}
	}
	return Record(body), nil
}

// Comparisons 获取全部可比房产（4xx/5xx 视为失败）。
func (u *UpstreamClient) Comparisons(ctx context.Context) ([]Record, error) {
	return u.list(ctx, "comparisons", u.cfg.ComparisonsURL, raiseForStatus,
		"Failed to fetch property comparisons.",
		"An error occurred while fetching property comparisons.")
}

// AllComparisons 获取全部可比房产，非 200 即视为失败。
func (u *UpstreamClient) AllComparisons(ctx context.Context) ([]Record, error) {
	return u.list(ctx, "comparisons", u.cfg.ComparisonsURL, requireOK,
		"Failed to fetch property comparisons.",
		"An error occurred while fetching property comparisons.")
}

// Properties 获取全部源房产，非 200 即视为失败。
func (u *UpstreamClient) Properties(ctx context.Context) ([]Record, error) {
	return u.list(ctx, "properties", strings.TrimRight(u.cfg.PropertyURL, "/"), requireOK,
		"Failed to fetch properties.",
		"An error occurred while fetching properties.")
}

func (u *UpstreamClient) list(ctx context.Context, endpoint, url string, failed statusPolicy, statusDetail, transportDetail string) ([]Record, error) {
	body, err := u.fetch(ctx, endpoint, url, failed, statusDetail, transportDetail)
	if err != nil {
		return nil, err
	}
	parsed := gjson.ParseBytes(body)
	if !gjson.ValidBytes(body) || !parsed.IsArray() {
		return nil, &UpstreamError{Status: http.StatusInternalServerError, Detail: transportDetail, cause: errors.Errorf("%s: expected json array", endpoint)}
	}
	out := make([]Record, 0)
	parsed.ForEach(func(_, v gjson.Result) bool {
		// 非对象元素无法读取字段，直接忽略
		if v.IsObject() {
			out = append(out, Record(v.Raw))
		}
		return true
	})
	return out, nil
}

// fetch 执行 GET 请求；命中缓存时直接返回。仅缓存 200 响应。
func (u *UpstreamClient) fetch(ctx context.Context, endpoint, url string, failed statusPolicy, statusDetail, transportDetail string) ([]byte, error) {
	if b, ok := u.cache.Get(ctx, url); ok {
		return b, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &UpstreamError{Status: http.StatusInternalServerError, Detail: transportDetail, cause: errors.Wrap(err, "build request")}
	}
	req.Header.Set("Accept", "application/json")
	resp, err := u.httpc.Do(req)
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues(endpoint, "error").Inc()
		log.WithError(err).WithField("endpoint", endpoint).Warn("upstream request failed")
		return nil, &UpstreamError{Status: http.StatusInternalServerError, Detail: transportDetail, cause: errors.Wrapf(err, "GET %s", endpoint)}
	}
	defer resp.Body.Close()
	if failed(resp.StatusCode) {
		metrics.UpstreamRequests.WithLabelValues(endpoint, "status").Inc()
		log.WithFields(log.Fields{"endpoint": endpoint, "status": resp.StatusCode}).Info("upstream returned error status")
		status := resp.StatusCode
		if status < 400 {
			status = http.StatusBadGateway
		}
		return nil, &UpstreamError{Status: status, Detail: statusDetail}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues(endpoint, "error").Inc()
		return nil, &UpstreamError{Status: http.StatusInternalServerError, Detail: transportDetail, cause: errors.Wrapf(err, "read %s", endpoint)}
	}
	metrics.UpstreamRequests.WithLabelValues(endpoint, "ok").Inc()
	if resp.StatusCode == http.StatusOK && gjson.ValidBytes(body) {
		u.cache.Set(ctx, url, body)
	}
	return body, nil
}
