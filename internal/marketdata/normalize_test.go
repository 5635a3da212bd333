package marketdata

import (
	"testing"

	"github.com/betbot/accelboard/internal/domain"
)

const groupedScenario = `{
  "G1": {"groupOrder": 0, "stocks": [
    {"symbol": "AAA", "price": 10, "acceleration": 0.5},
    {"symbol": "BBB", "price": null, "acceleration": 9}
  ]},
  "G2": {"groupOrder": 1, "stocks": [
    {"symbol": "CCC", "price": 20, "acceleration": 1.2}
  ]}
}`

func mustDecode(t *testing.T, s string) any {
	t.Helper()
	v, err := DecodeRaw([]byte(s))
	if err != nil {
		t.Fatalf("解码 JSON 失败: %v", err)
	}
	return v
}

func symbols(quotes []domain.Quote) []string {
	out := make([]string, len(quotes))
	for i, q := range quotes {
		out[i] = q.Symbol
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// TestNormalize_GroupedScenario 分组格式展开后保持顺序，空价格的行情仍然保留
func TestNormalize_GroupedScenario(t *testing.T) {
	quotes := Normalize(mustDecode(t, groupedScenario))

	want := []string{"AAA", "BBB", "CCC"}
	if got := symbols(quotes); !equalStrings(got, want) {
		t.Fatalf("期望 %v，得到 %v", want, got)
	}
	if quotes[1].Price != nil {
		t.Errorf("BBB 的价格应该为 nil")
	}
	if quotes[1].Acceleration == nil || quotes[1].Acceleration.String() != "9" {
		t.Errorf("BBB 的加速度应该为 9")
	}
}

// TestNormalize_ShapeInvariance 扁平与分组格式包含相同行情时结果一致
func TestNormalize_ShapeInvariance(t *testing.T) {
	flat := mustDecode(t, `[
      {"symbol": "AAA", "price": 10, "acceleration": 0.5},
      {"symbol": "BBB", "price": null, "acceleration": 9},
      {"symbol": "CCC", "price": 20, "acceleration": 1.2}
    ]`)

	a := Normalize(flat)
	b := Normalize(mustDecode(t, groupedScenario))

	if !equalStrings(symbols(a), symbols(b)) {
		t.Fatalf("两种形态结果不一致: %v vs %v", symbols(a), symbols(b))
	}
	for i := range a {
		if (a[i].Price == nil) != (b[i].Price == nil) {
			t.Errorf("第 %d 项价格是否为空不一致", i)
		}
		if a[i].Acceleration.String() != b[i].Acceleration.String() {
			t.Errorf("第 %d 项加速度不一致: %s vs %s", i, a[i].Acceleration, b[i].Acceleration)
		}
	}
}

// TestNormalize_EmptyInputs nil 与非数组/对象类型都返回空列表
func TestNormalize_EmptyInputs(t *testing.T) {
	inputs := []any{nil, 42, "abc", true, 3.14, (*Object)(nil)}
	for _, in := range inputs {
		got := Normalize(in)
		if got == nil {
			t.Errorf("输入 %#v 应该返回空切片而不是 nil", in)
		}
		if len(got) != 0 {
			t.Errorf("输入 %#v 期望空列表，得到 %d 项", in, len(got))
		}
	}
}

// TestNormalize_Malformed 畸形分组和畸形元素被跳过，不影响其他数据
func TestNormalize_Malformed(t *testing.T) {
	raw := mustDecode(t, `{
      "bad1": 42,
      "bad2": {"stocks": "not-an-array"},
      "bad3": {"groupOrder": 1},
      "arr": [1, "x", null, [], {"price": 3}, {"symbol": "ARR", "price": "12.5"}],
      "ok": {"group_order": 2, "stocks": [{"symbol": "OK", "price": 1, "change_pct": "abc", "volume": -5}]}
    }`)

	quotes := Normalize(raw)
	want := []string{"ARR", "OK"}
	if got := symbols(quotes); !equalStrings(got, want) {
		t.Fatalf("期望 %v，得到 %v", want, got)
	}
	if quotes[0].Price == nil || quotes[0].Price.String() != "12.5" {
		t.Errorf("字符串价格应该被解析为 12.5")
	}
	if quotes[1].ChangePct != nil {
		t.Errorf("无法解析的涨跌幅应该为 nil")
	}
	if quotes[1].Volume != nil {
		t.Errorf("负数成交量应该为 nil")
	}

	// 数组中全是非对象
	if got := Normalize(mustDecode(t, `[1, 2, "x", [1]]`)); len(got) != 0 {
		t.Errorf("非对象数组期望空列表，得到 %d 项", len(got))
	}
}

// TestNormalize_GoMapOrdersByGroupOrder 无序 map 按 groupOrder 再按名称排序
func TestNormalize_GoMapOrdersByGroupOrder(t *testing.T) {
	raw := map[string]any{
		"zeta": map[string]any{
			"groupOrder": 0,
			"stocks":     []any{map[string]any{"symbol": "Z1", "price": 1.0}},
		},
		"alpha": map[string]any{
			"groupOrder": 5,
			"stocks":     []any{map[string]any{"symbol": "A1", "price": 1.0}},
		},
		"beta": []any{map[string]any{"symbol": "B1", "price": 2.0}},
	}

	want := []string{"B1", "Z1", "A1"}
	if got := symbols(Normalize(raw)); !equalStrings(got, want) {
		t.Errorf("期望 %v，得到 %v", want, got)
	}
}

// TestParseSnapshot_Shapes 形态识别
func TestParseSnapshot_Shapes(t *testing.T) {
	if s := ParseSnapshot(mustDecode(t, `[]`)); s.Shape() != "flat" {
		t.Errorf("数组应该识别为 flat，得到 %s", s.Shape())
	}

	s := ParseSnapshot(mustDecode(t, groupedScenario))
	grouped, ok := s.(domain.GroupedSnapshot)
	if !ok {
		t.Fatalf("对象应该识别为 GroupedSnapshot，得到 %T", s)
	}
	if len(grouped.Groups) != 2 {
		t.Fatalf("期望 2 个分组，得到 %d", len(grouped.Groups))
	}
	if grouped.Groups[1].Name != "G2" || grouped.Groups[1].GroupOrder != 1 {
		t.Errorf("第二个分组解析错误: %+v", grouped.Groups[1])
	}
}

// TestParseSnapshot_TypedSnapshotsDropEmptySymbols 已解析的快照和原始数据一样过滤无代码的行情
func TestParseSnapshot_TypedSnapshotsDropEmptySymbols(t *testing.T) {
	in := domain.GroupedSnapshot{Groups: []domain.Group{
		{Name: "G1", Stocks: []domain.Quote{{Symbol: "AAA"}, {Symbol: ""}}},
		{Name: "G2", GroupOrder: 1, Stocks: []domain.Quote{{Name: "无代码"}}},
	}}
	s := ParseSnapshot(in)
	grouped, ok := s.(domain.GroupedSnapshot)
	if !ok {
		t.Fatalf("期望 GroupedSnapshot，得到 %T", s)
	}
	if len(grouped.Groups) != 2 || len(grouped.Groups[1].Stocks) != 0 {
		t.Errorf("分组解析错误: %+v", grouped.Groups)
	}
	if got := symbols(s.Quotes()); !equalStrings(got, []string{"AAA"}) {
		t.Errorf("期望 [AAA]，得到 %v", got)
	}
	if len(in.Groups[0].Stocks) != 2 {
		t.Error("不应该修改输入的分组")
	}

	flat := ParseSnapshot(domain.FlatSnapshot{Items: []domain.Quote{{Symbol: ""}, {Symbol: "BBB"}}})
	if got := symbols(flat.Quotes()); !equalStrings(got, []string{"BBB"}) {
		t.Errorf("期望 [BBB]，得到 %v", got)
	}
}

// TestDecodeRaw_KeepsKeyOrder 解码保持对象键的文档顺序
func TestDecodeRaw_KeepsKeyOrder(t *testing.T) {
	v := mustDecode(t, `{"b": 1, "a": 2, "c": {"y": 1, "x": 2}, "b": 3}`)
	obj, ok := v.(*Object)
	if !ok {
		t.Fatalf("期望 *Object，得到 %T", v)
	}
	if !equalStrings(obj.Keys, []string{"b", "a", "c"}) {
		t.Errorf("键顺序错误: %v", obj.Keys)
	}
	if b, _ := obj.Get("b"); b.(interface{ String() string }).String() != "3" {
		t.Errorf("重复键应该取最后一个值，得到 %v", b)
	}

	if _, err := DecodeRaw([]byte(`{"a":1} trailing`)); err == nil {
		t.Error("末尾多余内容应该返回错误")
	}
	if _, err := DecodeRaw([]byte(`{"a":1}]`)); err == nil {
		t.Error("不匹配的分隔符应该返回错误")
	}
}
