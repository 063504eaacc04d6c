package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestCoerceInt(t *testing.T) {
	cases := []struct {
		raw  string
		want int64
		ok   bool
	}{
		{`42`, 42, true},
		{`-3`, -3, true},
		{`7.9`, 7, true},
		{`-7.9`, -7, true},
		{`"12"`, 12, true},
		{`" 12 "`, 12, true},
		{`"12.0"`, 0, false},
		{`"abc"`, 0, false},
		{`true`, 1, true},
		{`false`, 0, true},
		{`null`, 0, false},
		{`{"a":1}`, 0, false},
		{`[1]`, 0, false},
	}
	for _, tc := range cases {
		got, ok := coerceInt(gjson.Parse(tc.raw))
		require.Equal(t, tc.ok, ok, tc.raw)
		require.Equal(t, tc.want, got, tc.raw)
	}
	_, ok := coerceInt(gjson.Get(`{}`, "missing"))
	require.False(t, ok)
}

func TestIsTrueAndTruthy(t *testing.T) {
	require.True(t, isTrue(gjson.Parse(`true`)))
	require.True(t, isTrue(gjson.Parse(`1`)))
	require.True(t, isTrue(gjson.Parse(`1.0`)))
	require.False(t, isTrue(gjson.Parse(`"true"`)))
	require.False(t, isTrue(gjson.Parse(`2`)))
	require.False(t, isTrue(gjson.Parse(`false`)))

	require.True(t, truthy(gjson.Parse(`"x"`)))
	require.True(t, truthy(gjson.Parse(`0.5`)))
	require.True(t, truthy(gjson.Parse(`[0]`)))
	require.False(t, truthy(gjson.Parse(`""`)))
	require.False(t, truthy(gjson.Parse(`0`)))
	require.False(t, truthy(gjson.Parse(`[ ]`)))
	require.False(t, truthy(gjson.Parse(`{}`)))
	require.False(t, truthy(gjson.Parse(`null`)))
}

func TestCell(t *testing.T) {
	require.Equal(t, "", cell(gjson.Parse(`null`)))
	require.Equal(t, "", cell(gjson.Get(`{}`, "x")))
	require.Equal(t, "True", cell(gjson.Parse(`true`)))
	require.Equal(t, "False", cell(gjson.Parse(`false`)))
	require.Equal(t, "3", cell(gjson.Parse(`3`)))
	require.Equal(t, "2.5", cell(gjson.Parse(`2.50`)))
	require.Equal(t, "2.0", cell(gjson.Parse(`2.0`)))
	require.Equal(t, "1000.0", cell(gjson.Parse(`1e3`)))
	require.Equal(t, "12 Oak Ave", cell(gjson.Parse(`"12 Oak Ave"`)))
}

func TestFormatFloat(t *testing.T) {
	require.Equal(t, "350000.0", formatFloat(350000))
	require.Equal(t, "312500.5", formatFloat(312500.5))
	require.Equal(t, "0.1", formatFloat(0.1))
	require.Equal(t, "0.0", formatFloat(0))
	require.Equal(t, "1e+16", formatFloat(1e16))
	require.Equal(t, "1.5e-05", formatFloat(0.000015))
}

func TestAverageSoldAmount(t *testing.T) {
	comps := []Record{
		Record(`{"sold_amount": 300000}`),
		Record(`{"sold_amount": 400001}`),
		Record(`{"sold_amount": 0}`),
		Record(`{"sold_amount": null}`),
		Record(`{"sold_amount": "123"}`),
		Record(`{}`),
	}
	require.Equal(t, "350000.5", averageSoldAmount(comps))
	require.Equal(t, "0", averageSoldAmount([]Record{Record(`{"sold_amount": 0}`)}))
	require.Equal(t, "0", averageSoldAmount(nil))
	require.Equal(t, "1.0", averageSoldAmount([]Record{Record(`{"sold_amount": true}`)}))
	require.Equal(t, "2.0", averageSoldAmount([]Record{Record(`{"sold_amount": true}`), Record(`{"sold_amount": 3}`), Record(`{"sold_amount": false}`)}))
}

func TestFormatMillis(t *testing.T) {
	// 2023-03-15T12:00:00Z
	v := gjson.Parse(`1678881600000`)
	require.Equal(t, "2023-03-15", formatMillis(v, "2006-01-02", time.UTC))
	tokyo := time.FixedZone("JST", 9*3600)
	require.Equal(t, "2023-03-15 21:00", formatMillis(v, "2006-01-02 15:04", tokyo))
	require.Equal(t, "", formatMillis(gjson.Parse(`0`), "2006-01-02", time.UTC))
	require.Equal(t, "", formatMillis(gjson.Parse(`null`), "2006-01-02", time.UTC))
	require.Equal(t, "", formatMillis(gjson.Parse(`"2023-03-15"`), "2006-01-02", time.UTC))
}
