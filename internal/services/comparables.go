package services

import "github.com/tidwall/gjson"

// SelectForProperty 返回属于 initialID 且已勾选（Selected 为 true）的可比房产，保持上游顺序。
// initial_id 无法转换为整数的记录会被跳过。
func SelectForProperty(initialID int64, comparisons []Record) []Record {
	out := make([]Record, 0)
	for _, c := range comparisons {
		id, ok := coerceInt(c.Get("initial_id"))
		if !ok {
			continue
		}
		if id == initialID && isTrue(c.Get("Selected")) {
			out = append(out, c)
		}
	}
	return out
}

// SelectAll 返回所有已勾选的可比房产。
func SelectAll(comparisons []Record) []Record {
	out := make([]Record, 0)
	for _, c := range comparisons {
		if isTrue(c.Get("Selected")) {
			out = append(out, c)
		}
	}
	return out
}

// AddressGroups 按源房产地址（initial_address）分组的可比房产，保留首次出现的顺序。
// 分组键区分取值类型：数字 123 与字符串 "123" 属于不同分组。
type AddressGroups struct {
	order  []string
	names  []string
	groups map[string][]Record
}

// groupKey 生成带类型前缀的分组键；数值按浮点值比较，true 等同于 1。
func groupKey(v gjson.Result) string {
	switch v.Type {
	case gjson.String:
		return "s:" + v.Str
	case gjson.Number:
		return "n:" + formatFloat(v.Float())
	case gjson.True:
		return "n:" + formatFloat(1)
	case gjson.False:
		return "n:" + formatFloat(0)
	case gjson.JSON:
		return "j:" + v.Raw
	default:
		return ""
	}
}

// GroupByInitialAddress 按 initial_address 分组；地址为空的记录被丢弃。
func GroupByInitialAddress(comparisons []Record) *AddressGroups {
	g := &AddressGroups{groups: make(map[string][]Record)}
	for _, c := range comparisons {
		v := c.Get("initial_address")
		if !truthy(v) {
			continue
		}
		key := groupKey(v)
		if _, ok := g.groups[key]; !ok {
			g.order = append(g.order, key)
			g.names = append(g.names, cell(v))
		}
		g.groups[key] = append(g.groups[key], c)
	}
	return g
}

// Get 返回与源房产 address 取值（含类型）相同的分组。
func (g *AddressGroups) Get(address gjson.Result) []Record {
	key := groupKey(address)
	if key == "" {
		return nil
	}
	return g.groups[key]
}

// Addresses 按首次出现顺序返回全部地址。
func (g *AddressGroups) Addresses() []string { return g.names }

// MaxSize 返回最大分组的大小；无分组时为 0。
func (g *AddressGroups) MaxSize() int {
	max := 0
	for _, list := range g.groups {
		if len(list) > max {
			max = len(list)
		}
	}
	return max
}
