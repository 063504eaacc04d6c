package services

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"math"
	"strconv"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

// ReportService 将估值结果渲染为 HTML（PDF 的输入）。
type ReportService struct {
	tmpl *template.Template
	loc  *time.Location
	now  func() time.Time
}

// NewReportService 解析内嵌模板并注册模板函数。
func NewReportService(loc *time.Location) (*ReportService, error) {
	if loc == nil {
		loc = time.Local
	}
	s := &ReportService{loc: loc, now: time.Now}
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"datetimeformat": s.datetimeformat,
		"field":          field,
		"money":          money,
		"inc":            func(i int) int { return i + 1 },
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse report templates: %w", err)
	}
	s.tmpl = tmpl
	return s, nil
}

// SetClock 替换时间来源（测试用）。
func (s *ReportService) SetClock(now func() time.Time) { s.now = now }

type reportView struct {
	Source      map[string]any
	Comparisons []map[string]any
	Average     string
	GeneratedAt time.Time
}

// RenderHTML 渲染 report.html。
func (s *ReportService) RenderHTML(result *PropertyResult) ([]byte, error) {
	view := reportView{
		Comparisons: make([]map[string]any, 0, len(result.SelectedComparisons)),
		Average:     averageSoldAmount(result.SelectedComparisons),
		GeneratedAt: s.now().In(s.loc),
	}
	var err error
	if view.Source, err = decodeObject(result.SourceProperty); err != nil {
		return nil, fmt.Errorf("decode source property: %w", err)
	}
	for _, c := range result.SelectedComparisons {
		m, err := decodeObject(c)
		if err != nil {
			return nil, fmt.Errorf("decode comparison: %w", err)
		}
		view.Comparisons = append(view.Comparisons, m)
	}
	var buf bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&buf, "report.html", view); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeObject 以 UseNumber 解码，避免数字精度与写法变化。
func decodeObject(r Record) (map[string]any, error) {
	out := map[string]any{}
	if len(r) == 0 {
		return out, nil
	}
	dec := json.NewDecoder(bytes.NewReader(r))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// datetimeformat 将毫秒时间戳格式化为日期，layout 默认为 2006-01-02。
func (s *ReportService) datetimeformat(v any, layout ...string) string {
	l := "2006-01-02"
	if len(layout) > 0 && layout[0] != "" {
		l = layout[0]
	}
	ms, ok := toFloat(v)
	if !ok || ms == 0 {
		return ""
	}
	return millisToTime(ms, s.loc).Format(l)
}

// field 读取 map 中的字段并格式化为文本；缺失或 null 为空串。
func field(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "True"
		}
		return "False"
	case json.Number:
		s := t.String()
		if !strings.ContainsAny(s, ".eE") {
			return s
		}
		f, err := t.Float64()
		if err != nil {
			return s
		}
		return formatFloat(f)
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

// money 以千分位与美元符号格式化金额，无法识别的值原样输出。
func money(v any) string {
	f, ok := toFloat(v)
	if !ok {
		if s, isStr := v.(string); isStr {
			return s
		}
		return ""
	}
	neg := f < 0
	cents := int64(math.Round(math.Abs(f) * 100))
	whole := strconv.FormatInt(cents/100, 10)
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := "$" + b.String()
	if frac := cents % 100; frac != 0 {
		out += fmt.Sprintf(".%02d", frac)
	}
	if neg {
		out = "-" + out
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
