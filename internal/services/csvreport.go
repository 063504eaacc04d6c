package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"
)

// 每个可比房产在 CSV 中占用的列数。
const compColumns = 7

var csvSourceHeaders = []string{
	"Formula (Average of Comparables Sale Price(s))",
	"Source Property Address",
	"Source Bedrooms",
	"Source Bathrooms",
	"Source Square Feet",
	"Source Appraisal",
}

// CSVReport 为汇总估值表。
type CSVReport struct {
	Header []string
	Rows   [][]string
}

// WriteTo 以 CRLF 行尾写出 CSV。
func (r *CSVReport) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	csvw := csv.NewWriter(cw)
	csvw.UseCRLF = true
	if err := csvw.Write(r.Header); err != nil {
		return cw.n, err
	}
	if err := csvw.WriteAll(r.Rows); err != nil {
		return cw.n, err
	}
	return cw.n, csvw.Error()
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// CSVReportService 生成全部源房产的可比房产汇总表。
type CSVReportService struct {
	upstream *UpstreamClient
	loc      *time.Location
}

func NewCSVReportService(upstream *UpstreamClient, loc *time.Location) *CSVReportService {
	if loc == nil {
		loc = time.Local
	}
	return &CSVReportService{upstream: upstream, loc: loc}
}

// Build 拉取全部源房产与可比房产并生成报表。
func (s *CSVReportService) Build(ctx context.Context) (*CSVReport, error) {
	properties, err := s.upstream.Properties(ctx)
	if err != nil {
		return nil, err
	}
	comparisons, err := s.upstream.AllComparisons(ctx)
	if err != nil {
		return nil, err
	}
	return BuildCSVReport(properties, comparisons, s.loc), nil
}

// BuildCSVReport 根据源房产与可比房产组装表头与数据行。
// 只输出至少有一个已勾选可比房产的源房产；可比房产不足最大数量时以空单元格补齐。
func BuildCSVReport(properties, comparisons []Record, loc *time.Location) *CSVReport {
	groups := GroupByInitialAddress(SelectAll(comparisons))
	max := groups.MaxSize()

	header := append([]string(nil), csvSourceHeaders...)
	for i := 1; i <= max; i++ {
		header = append(header,
			fmt.Sprintf("#%dComp Property Address", i),
			fmt.Sprintf("#%dComp Property Sale Date", i),
			fmt.Sprintf("#%dComp Bedrooms", i),
			fmt.Sprintf("#%dComp Bathrooms", i),
			fmt.Sprintf("#%dComp Square Feet", i),
			fmt.Sprintf("#%dComp Most Recent Sale Amount", i),
			fmt.Sprintf("#%dComp Redfin URL", i),
		)
	}

	rows := make([][]string, 0)
	for _, p := range properties {
		addr := p.Get("address")
		comps := groups.Get(addr)
		address := cell(addr)
		if len(comps) == 0 {
			continue
		}
		row := make([]string, 0, len(header))
		row = append(row,
			averageSoldAmount(comps),
			address,
			cell(p.Get("bedrooms")),
			cell(p.Get("bath")),
			cell(p.Get("square_feet")),
			cell(p.Get("appraisal_value")),
		)
		for _, c := range comps {
			row = append(row,
				cell(c.Get("address")),
				formatMillis(c.Get("sales_date"), "2006-01-02", loc),
				cell(c.Get("bedrooms")),
				cell(c.Get("bath")),
				cell(c.Get("floor_size_value")),
				cell(c.Get("sold_amount")),
				cell(c.Get("most_recent_url")),
			)
		}
		for i := len(comps); i < max; i++ {
			row = append(row, make([]string, compColumns)...)
		}
		rows = append(rows, row)
	}
	return &CSVReport{Header: header, Rows: rows}
}
