package domain

// Snapshot 后端推送/返回的一次行情数据，有两种形态：
//   - FlatSnapshot：扁平数组（旧格式）
//   - GroupedSnapshot：按分组组织（新格式）
//
// 两种形态展开后得到同样的有序行情列表。
type Snapshot interface {
	// Quotes 按原始顺序展开为扁平行情列表
	Quotes() []Quote
	// Shape 形态名称，仅用于日志
	Shape() string
}

// FlatSnapshot 扁平格式
type FlatSnapshot struct {
	Items []Quote
}

func (s FlatSnapshot) Quotes() []Quote {
	out := make([]Quote, len(s.Items))
	copy(out, s.Items)
	return out
}

func (s FlatSnapshot) Shape() string { return "flat" }

// Group 一个自选股分组
type Group struct {
	Name       string
	GroupOrder int
	Stocks     []Quote
}

// GroupedSnapshot 分组格式，Groups 保持数据源中的顺序
type GroupedSnapshot struct {
	Groups []Group
}

func (s GroupedSnapshot) Quotes() []Quote {
	n := 0
	for _, g := range s.Groups {
		n += len(g.Stocks)
	}
	out := make([]Quote, 0, n)
	for _, g := range s.Groups {
		out = append(out, g.Stocks...)
	}
	return out
}

func (s GroupedSnapshot) Shape() string { return "grouped" }
