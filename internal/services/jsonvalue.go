package services

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// 上游数据类型松散（同一字段可能是数字、字符串或布尔），本文件集中处理取值与格式化规则。

// coerceInt 将字段转换为整数：整数原样返回，浮点数向零截断，字符串按十进制解析，布尔值为 1/0。
// 其它类型（null、对象、数组、缺失）返回 false。
func coerceInt(v gjson.Result) (int64, bool) {
	switch v.Type {
	case gjson.Number:
		if n, err := strconv.ParseInt(v.Raw, 10, 64); err == nil {
			return n, true
		}
		f := v.Float()
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return 0, false
		}
		return int64(f), true
	case gjson.String:
		s := strings.TrimSpace(v.Str)
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	case gjson.True:
		return 1, true
	case gjson.False:
		return 0, true
	default:
		return 0, false
	}
}

// isTrue 判断字段是否等于 true（布尔 true 或数值 1）。
func isTrue(v gjson.Result) bool {
	switch v.Type {
	case gjson.True:
		return true
	case gjson.Number:
		return v.Float() == 1
	default:
		return false
	}
}

// truthy 判断字段是否为“真值”：非空字符串、非零数字、true、非空数组/对象。
func truthy(v gjson.Result) bool {
	switch v.Type {
	case gjson.True:
		return true
	case gjson.Number:
		return v.Float() != 0
	case gjson.String:
		return v.Str != ""
	case gjson.JSON:
		raw := strings.TrimSpace(v.Raw)
		if len(raw) < 2 {
			return false
		}
		return strings.TrimSpace(raw[1:len(raw)-1]) != ""
	default:
		return false
	}
}

// cell 将字段渲染为 CSV 单元格文本：缺失或 null 为空，布尔为 True/False，数字保持上游写法。
func cell(v gjson.Result) string {
	switch v.Type {
	case gjson.Null:
		return ""
	case gjson.True:
		return "True"
	case gjson.False:
		return "False"
	case gjson.Number:
		return formatNumber(v)
	case gjson.String:
		return v.Str
	default:
		return v.Raw
	}
}

// formatNumber 整数原样输出，带小数点或指数的数字按浮点格式输出（例如 2.50 -> 2.5，1e3 -> 1000.0）。
func formatNumber(v gjson.Result) string {
	if !strings.ContainsAny(v.Raw, ".eE") {
		return v.Raw
	}
	return formatFloat(v.Float())
}

// formatFloat 输出浮点数的最短表示，整数值保留 ".0"；过大或过小时使用指数形式。
func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	}
	abs := math.Abs(f)
	if abs != 0 && (abs >= 1e16 || abs < 1e-4) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// averageSoldAmount 计算可比房产成交价均值；统计真值数字（true 计为 1），没有可用值时返回 "0"。
// 非数字的真值（字符串、对象等）被跳过。
func averageSoldAmount(comps []Record) string {
	var sum float64
	var n int
	for _, c := range comps {
		v := c.Get("sold_amount")
		switch {
		case v.Type == gjson.True:
			sum++
		case v.Type == gjson.Number && truthy(v):
			sum += v.Float()
		default:
			continue
		}
		n++
	}
	if n == 0 {
		return "0"
	}
	return formatFloat(sum / float64(n))
}

// formatMillis 将毫秒时间戳格式化为指定布局的日期；非真值或非数字返回空串。
func formatMillis(v gjson.Result, layout string, loc *time.Location) string {
	if v.Type != gjson.Number || !truthy(v) {
		return ""
	}
	return millisToTime(v.Float(), loc).Format(layout)
}

func millisToTime(ms float64, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.UnixMilli(int64(math.Floor(ms))).In(loc)
}
