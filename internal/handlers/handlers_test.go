package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"valuations/internal/config"
	"valuations/internal/middlewares"
	"valuations/internal/services"
	"valuations/internal/storage"
)

type fakePDF struct {
	calls atomic.Int64
	err   error
}

func (f *fakePDF) RenderPDF(ctx context.Context, html []byte) ([]byte, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return append([]byte("%PDF-1.4\n"), html[:16]...), nil
}

func newUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/props/7", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":7,"address":"1 Main St","bedrooms":3,"bath":2,"square_feet":1800,"appraisal_value":410000}`))
	})
	mux.HandleFunc("/props/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "missing", http.StatusNotFound)
	})
	mux.HandleFunc("/props", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":7,"address":"1 Main St","bedrooms":3,"bath":2,"square_feet":1800,"appraisal_value":410000},{"id":8,"address":"2 Oak Ave"}]`))
	})
	mux.HandleFunc("/comps", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"address":"10 Elm","initial_id":7,"initial_address":"1 Main St","Selected":true,"sold_amount":400000,"sales_date":1678881600000},
			{"address":"11 Elm","initial_id":"7","initial_address":"1 Main St","Selected":true,"sold_amount":300000},
			{"address":"12 Elm","initial_id":7,"initial_address":"1 Main St","Selected":false}
		]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type testEnv struct {
	router *gin.Engine
	pdf    *fakePDF
	audit  *services.AuditService
}

func newTestEnv(t *testing.T, mutate func(*config.Config), db *gorm.DB) *testEnv {
	t.Helper()
	return newTestEnvWithLimiter(t, mutate, db, nil)
}

func newTestEnvWithLimiter(t *testing.T, mutate func(*config.Config), db *gorm.DB, limiter middlewares.Counter) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	up := newUpstream(t)
	cfg := config.Default()
	cfg.Upstream.PropertyURL = up.URL + "/props"
	cfg.Upstream.ComparisonsURL = up.URL + "/comps"
	cfg.Upstream.Timeout = 2 * time.Second
	cfg.Report.Timezone = "UTC"
	if mutate != nil {
		mutate(&cfg)
	}
	client := services.NewUpstreamClient(cfg, nil)
	reportSvc, err := services.NewReportService(cfg.Report.Location())
	require.NoError(t, err)
	pdf := &fakePDF{}
	audit := services.NewAuditService(db)

	r := gin.New()
	r.Use(middlewares.RequestID())
	h := New(cfg, services.NewPropertyService(client), services.NewCSVReportService(client, cfg.Report.Location()), reportSvc, pdf, audit, limiter)
	h.RegisterRoutes(r)
	return &testEnv{router: r, pdf: pdf, audit: audit}
}

func (e *testEnv) get(path string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeDetail(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Detail
}

func TestGetProperty(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	w := env.get("/property/7")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var res struct {
		SourceProperty      map[string]any   `json:"source_property"`
		SelectedComparisons []map[string]any `json:"selected_comparisons"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Equal(t, "1 Main St", res.SourceProperty["address"])
	require.Len(t, res.SelectedComparisons, 2)
	require.Equal(t, "10 Elm", res.SelectedComparisons[0]["address"])

	tag := w.Header().Get("ETag")
	require.NotEmpty(t, tag)
	w = env.get("/property/7", "If-None-Match", tag)
	require.Equal(t, http.StatusNotModified, w.Code)
	require.Empty(t, w.Body.Bytes())
}

func TestGetPropertyErrors(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	w := env.get("/property/abc")
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	require.Equal(t, "initial_id must be an integer", decodeDetail(t, w))

	w = env.get("/property/404")
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "Source property not found.", decodeDetail(t, w))

	w = env.get("/property/report")
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestPDFReport(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	w := env.get("/property/7/report")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	require.Equal(t, "attachment; filename=property_report_7.pdf", w.Header().Get("Content-Disposition"))
	require.True(t, strings.HasPrefix(w.Body.String(), "%PDF-"))
	require.Equal(t, int64(1), env.pdf.calls.Load())

	w = env.get("/property/404/report")
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, int64(1), env.pdf.calls.Load(), "renderer must not run when upstream fails")
}

func TestPDFReportRenderFailure(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.pdf.err = errors.New("chromium crashed")
	w := env.get("/property/7/report")
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, "Failed to generate report.", decodeDetail(t, w))
}

func TestHTMLReport(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	w := env.get("/property/7/report.html")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Header().Get("Content-Type"), "text/html")
	body := w.Body.String()
	require.Contains(t, body, "1 Main St")
	require.Contains(t, body, "2023-03-15")
	require.Equal(t, 2, strings.Count(body, `<tr class="comparable">`))
}

func TestCSVReport(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	w := env.get("/property/report/csv")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	require.Equal(t, "attachment; filename=property_report.csv", w.Header().Get("Content-Disposition"))

	lines := strings.Split(strings.TrimSuffix(w.Body.String(), "\r\n"), "\r\n")
	require.Len(t, lines, 2)
	require.True(t, strings.HasPrefix(lines[0], "Formula (Average of Comparables Sale Price(s)),Source Property Address"))
	require.True(t, strings.HasPrefix(lines[1], "350000.0,1 Main St,3,2,1800,410000,10 Elm,2023-03-15,"))

	w2 := env.get("/property/report/csv", "If-None-Match", w.Header().Get("ETag"))
	require.Equal(t, http.StatusNotModified, w2.Code)
}

func TestBearerAuthProtectsPropertyRoutes(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Auth.JWTSecret = "test-secret" }, nil)
	w := env.get("/property/7")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.get("/healthz")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.CORS.Enable = true
		c.CORS.AllowedOrigins = []string{"https://app.example"}
	}, nil)
	req := httptest.NewRequest(http.MethodOptions, "/property/7/report", nil)
	req.Header.Set("Origin", "https://app.example")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))

	w = env.get("/property/7", "Origin", "https://evil.example")
	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestReportsAreAudited(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, storage.AutoMigrate(db))
	t.Cleanup(func() { storage.CloseMySQL(db) })

	env := newTestEnv(t, nil, db)
	require.Equal(t, http.StatusOK, env.get("/property/7", "X-Request-Id", "req-1").Code)
	require.Equal(t, http.StatusNotFound, env.get("/property/404").Code)
	require.Equal(t, http.StatusOK, env.get("/property/report/csv").Code)

	w := env.get("/admin/reports?limit=10")
	require.Equal(t, http.StatusOK, w.Code)
	var out struct {
		Reports []struct {
			Kind      string `json:"kind"`
			InitialID *int64 `json:"initial_id"`
			Rows      int    `json:"rows"`
			Status    int    `json:"status"`
			Detail    string `json:"detail"`
			RequestID string `json:"request_id"`
		} `json:"reports"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out.Reports, 3)

	byStatus := map[int]int{}
	for _, r := range out.Reports {
		byStatus[r.Status]++
		switch {
		case r.Kind == storage.ReportKindJSON && r.Status == http.StatusOK:
			require.Equal(t, "req-1", r.RequestID)
			require.Equal(t, 2, r.Rows)
			require.Equal(t, int64(7), *r.InitialID)
		case r.Kind == storage.ReportKindJSON:
			require.Equal(t, "Source property not found.", r.Detail)
		case r.Kind == storage.ReportKindCSV:
			require.Nil(t, r.InitialID)
			require.Equal(t, 1, r.Rows)
		}
	}
	require.Equal(t, map[int]int{200: 2, 404: 1}, byStatus)
}

// memoryCounter 为限流计数器的内存实现。
type memoryCounter struct {
	mu     sync.Mutex
	counts map[string]int64
}

func (m *memoryCounter) Incr(ctx context.Context, key string) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = map[string]int64{}
	}
	m.counts[key]++
	return redis.NewIntResult(m.counts[key], nil)
}

func (m *memoryCounter) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	return redis.NewBoolResult(true, nil)
}

func TestPDFRateLimitIgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	counter := &memoryCounter{}
	env := newTestEnvWithLimiter(t, func(c *config.Config) { c.Limits.ReportPerMinute = 1 }, nil, counter)

	codes := make([]int, 0, 5)
	for i := 0; i < 5; i++ {
		w := env.get("/property/7/report", "X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i))
		codes = append(codes, w.Code)
	}
	require.Equal(t, []int{200, 429, 429, 429, 429}, codes)
	require.Len(t, counter.counts, 1)
	require.Contains(t, counter.counts, "rl:report:192.0.2.1")
	require.Equal(t, int64(1), env.pdf.calls.Load())
}

func TestPDFRateLimitHonoursTrustedProxy(t *testing.T) {
	counter := &memoryCounter{}
	env := newTestEnvWithLimiter(t, func(c *config.Config) {
		c.Limits.ReportPerMinute = 1
		// httptest 请求的连接地址为 192.0.2.1
		c.TrustedProxies = []string{"192.0.2.0/24"}
	}, nil, counter)

	require.Equal(t, http.StatusOK, env.get("/property/7/report", "X-Forwarded-For", "10.0.0.1").Code)
	require.Equal(t, http.StatusOK, env.get("/property/7/report", "X-Forwarded-For", "10.0.0.2").Code)
	require.Equal(t, http.StatusTooManyRequests, env.get("/property/7/report", "X-Forwarded-For", "10.0.0.1").Code)
	require.Len(t, counter.counts, 2)
}
