package marketdata

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/accelboard/internal/domain"
)

var (
	errNotObject = errors.New("行情项不是对象")
	errNoSymbol  = errors.New("行情项缺少 symbol")
)

// fieldGetter 统一 *Object / map[string]any 的字段读取
type fieldGetter func(key string) (any, bool)

func asFields(v any) (fieldGetter, bool) {
	switch t := v.(type) {
	case *Object:
		if t == nil {
			return nil, false
		}
		return t.Get, true
	case map[string]any:
		if t == nil {
			return nil, false
		}
		return func(key string) (any, bool) {
			val, ok := t[key]
			return val, ok
		}, true
	default:
		return nil, false
	}
}

// lookup 按顺序尝试多个键名（camelCase 与 snake_case 兼容）
func (f fieldGetter) lookup(keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := f(k); ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// CoerceQuote 把单个原始元素转换为 Quote
// 非对象或缺少 symbol 返回错误；数值字段无法解析时视为 null，不影响整条行情
func CoerceQuote(v any) (domain.Quote, error) {
	switch q := v.(type) {
	case domain.Quote:
		if q.Symbol == "" {
			return domain.Quote{}, errNoSymbol
		}
		return q, nil
	case *domain.Quote:
		if q == nil {
			return domain.Quote{}, errNotObject
		}
		return CoerceQuote(*q)
	}

	f, ok := asFields(v)
	if !ok {
		return domain.Quote{}, errNotObject
	}

	symbol := strings.TrimSpace(stringValue(f.lookup("symbol")))
	if symbol == "" {
		return domain.Quote{}, errNoSymbol
	}

	return domain.Quote{
		Symbol:       symbol,
		Name:         stringValue(f.lookup("name")),
		StockType:    stringValue(f.lookup("stockType", "stock_type")),
		Price:        decimalValue(f.lookup("price")),
		ChangePct:    decimalValue(f.lookup("changePct", "change_pct")),
		Acceleration: decimalValue(f.lookup("acceleration")),
		Volume:       volumeValue(f.lookup("volume")),
		Timestamp:    timeValue(f.lookup("timestamp")),
	}, nil
}

func stringValue(v any, ok bool) string {
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	default:
		return ""
	}
}

func decimalValue(v any, ok bool) *decimal.Decimal {
	if !ok {
		return nil
	}
	var (
		d   decimal.Decimal
		err error
	)
	switch n := v.(type) {
	case decimal.Decimal:
		d = n
	case *decimal.Decimal:
		if n == nil {
			return nil
		}
		d = *n
	case json.Number:
		d, err = decimal.NewFromString(n.String())
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return nil
		}
		d, err = decimal.NewFromString(s)
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return nil
		}
		d = decimal.NewFromFloat(n)
	case float32:
		f := float64(n)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		d = decimal.NewFromFloat32(n)
	case int:
		d = decimal.NewFromInt(int64(n))
	case int32:
		d = decimal.NewFromInt32(n)
	case int64:
		d = decimal.NewFromInt(n)
	default:
		return nil
	}
	if err != nil {
		return nil
	}
	return &d
}

func volumeValue(v any, ok bool) *int64 {
	d := decimalValue(v, ok)
	if d == nil || d.IsNegative() {
		return nil
	}
	n := d.IntPart()
	return &n
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func timeValue(v any, ok bool) *time.Time {
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case time.Time:
		return &t
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return &parsed
			}
		}
		return nil
	}

	// 数字时间戳：大于 1e12 视为毫秒
	d := decimalValue(v, ok)
	if d == nil || !d.IsPositive() {
		return nil
	}
	n := d.IntPart()
	var ts time.Time
	if n > 1e12 {
		ts = time.UnixMilli(n)
	} else {
		ts = time.Unix(n, 0)
	}
	return &ts
}
