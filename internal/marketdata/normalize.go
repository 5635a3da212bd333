// Package marketdata 实现行情快照的归一化、加速度排行和图表数据生成。
//
// 后端返回的行情数据历史上有过两种形态（扁平数组 / 按分组的对象），
// 这里的函数都不会 panic 也不会返回错误：无法识别的分组或行情项直接跳过。
package marketdata

import (
	"sort"

	"github.com/betbot/accelboard/internal/domain"
	"github.com/betbot/accelboard/pkg/logger"
)

// ParseSnapshot 在边界处做一次形态判断，返回带标签的快照
//   - nil / 无法识别的类型 -> 空的扁平快照
//   - 数组 -> FlatSnapshot
//   - 对象 -> GroupedSnapshot
func ParseSnapshot(raw any) (snap domain.Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warnf("解析行情快照异常，按空数据处理: %v", r)
			snap = domain.FlatSnapshot{}
		}
	}()

	switch v := raw.(type) {
	case nil:
		return domain.FlatSnapshot{}
	case domain.FlatSnapshot:
		return domain.FlatSnapshot{Items: coerceQuotes(v.Items)}
	case domain.GroupedSnapshot:
		groups := make([]domain.Group, len(v.Groups))
		for i, g := range v.Groups {
			g.Stocks = coerceQuotes(g.Stocks)
			groups[i] = g
		}
		return domain.GroupedSnapshot{Groups: groups}
	case []any:
		return domain.FlatSnapshot{Items: coerceAll(v)}
	case []domain.Quote:
		return domain.FlatSnapshot{Items: coerceQuotes(v)}
	case []map[string]any:
		items := make([]any, len(v))
		for i := range v {
			items[i] = v[i]
		}
		return domain.FlatSnapshot{Items: coerceAll(items)}
	case *Object:
		if v == nil {
			return domain.FlatSnapshot{}
		}
		return parseGrouped(v.Keys, v.Get)
	case map[string]any:
		return parseGrouped(orderedGroupKeys(v), func(key string) (any, bool) {
			g, ok := v[key]
			return g, ok
		})
	default:
		return domain.FlatSnapshot{}
	}
}

// Normalize 把任意形态的行情数据展开为扁平有序列表
func Normalize(raw any) []domain.Quote {
	return ParseSnapshot(raw).Quotes()
}

func parseGrouped(keys []string, get func(string) (any, bool)) domain.GroupedSnapshot {
	groups := make([]domain.Group, 0, len(keys))
	for _, key := range keys {
		val, ok := get(key)
		if !ok {
			continue
		}
		if g, ok := parseGroup(key, val); ok {
			groups = append(groups, g)
		}
	}
	return domain.GroupedSnapshot{Groups: groups}
}

// parseGroup 分组值本身是数组时直接使用；否则取其 stocks 字段；都不是则跳过该分组
func parseGroup(key string, val any) (domain.Group, bool) {
	if items, ok := val.([]any); ok {
		return domain.Group{Name: key, Stocks: coerceAll(items)}, true
	}

	f, ok := asFields(val)
	if !ok {
		return domain.Group{}, false
	}
	stocksRaw, _ := f("stocks")
	items, ok := stocksRaw.([]any)
	if !ok {
		return domain.Group{}, false
	}

	name := stringValue(f.lookup("groupName", "group_name"))
	if name == "" {
		name = key
	}
	return domain.Group{
		Name:       name,
		GroupOrder: groupOrder(val),
		Stocks:     coerceAll(items),
	}, true
}

func groupOrder(val any) int {
	f, ok := asFields(val)
	if !ok {
		return 0
	}
	d := decimalValue(f.lookup("groupOrder", "group_order"))
	if d == nil {
		return 0
	}
	return int(d.IntPart())
}

// orderedGroupKeys Go map 没有顺序，按 groupOrder 升序、再按名称排序
func orderedGroupKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.SliceStable(keys, func(i, j int) bool {
		oi, oj := groupOrder(m[keys[i]]), groupOrder(m[keys[j]])
		if oi != oj {
			return oi < oj
		}
		return keys[i] < keys[j]
	})
	return keys
}

func coerceAll(items []any) []domain.Quote {
	out := make([]domain.Quote, 0, len(items))
	for _, it := range items {
		q, err := CoerceQuote(it)
		if err != nil {
			continue
		}
		out = append(out, q)
	}
	return out
}

func coerceQuotes(items []domain.Quote) []domain.Quote {
	out := make([]domain.Quote, 0, len(items))
	for _, q := range items {
		if q.Symbol == "" {
			continue
		}
		out = append(out, q)
	}
	return out
}
