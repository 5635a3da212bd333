package marketdata

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/betbot/accelboard/internal/domain"
)

// DefaultTopN 排行榜默认条数
const DefaultTopN = 10

// Rank 生成加速度排行榜
//   - 只保留有价格的行情
//   - 按加速度降序，稳定排序（相同加速度保持输入顺序），没有加速度的排在最后
//   - 截取前 topN 条并从 1 开始编号
func Rank(quotes []domain.Quote, topN int) []domain.LeaderboardEntry {
	if topN <= 0 {
		topN = DefaultTopN
	}

	priced := make([]domain.Quote, 0, len(quotes))
	for _, q := range quotes {
		if q.HasPrice() {
			priced = append(priced, q)
		}
	}

	sort.SliceStable(priced, func(i, j int) bool {
		return ranksBefore(priced[i], priced[j])
	})

	if len(priced) > topN {
		priced = priced[:topN]
	}

	out := make([]domain.LeaderboardEntry, len(priced))
	for i, q := range priced {
		out[i] = domain.LeaderboardEntry{Rank: i + 1, Quote: q}
	}
	return out
}

func ranksBefore(a, b domain.Quote) bool {
	switch {
	case a.Acceleration == nil:
		return false
	case b.Acceleration == nil:
		return true
	default:
		return a.Acceleration.GreaterThan(*b.Acceleration)
	}
}

// ParseTopN 解析条数选择框的值
// 按前导整数解析（"15条" -> 15），非数字或非正数回退为 DefaultTopN
func ParseTopN(raw string) int {
	s := strings.TrimSpace(raw)
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digitsStart := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digitsStart {
		return DefaultTopN
	}

	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		// 超出范围的正数视为"全部"
		if s[0] != '-' {
			return math.MaxInt32
		}
		return DefaultTopN
	}
	if n <= 0 {
		return DefaultTopN
	}
	if n > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(n)
}

// TopNFrom 从 JSON 请求体中的任意值解析条数
func TopNFrom(v any) int {
	switch t := v.(type) {
	case string:
		return ParseTopN(t)
	case json.Number:
		return ParseTopN(t.String())
	case float64:
		if math.IsNaN(t) || t < 1 {
			return DefaultTopN
		}
		if t > math.MaxInt32 {
			return math.MaxInt32
		}
		return int(t)
	case int:
		if t <= 0 {
			return DefaultTopN
		}
		return t
	default:
		return DefaultTopN
	}
}

// ClampTopN 非正数回退默认值，超过上限时取上限（max <= 0 表示不限）
func ClampTopN(n, max int) int {
	if n <= 0 {
		n = DefaultTopN
	}
	if max > 0 && n > max {
		return max
	}
	return n
}
