// Package upstream 对接行情后端：GET /api/market-data 与 SSE /api/events
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pkg/errors"

	"github.com/betbot/accelboard/internal/marketdata"
	"github.com/betbot/accelboard/pkg/config"
	sdkhttp "github.com/betbot/accelboard/pkg/sdk/http"
)

// envelope 后端统一返回结构 {code, data, message}
type envelope struct {
	Code    *int            `json:"code"`
	Data    json.RawMessage `json:"data"`
	Message any             `json:"message"`
	Detail  any             `json:"detail"` // 鉴权失败等框架层错误只有 detail
}

func (e envelope) messageText() string {
	for _, m := range []any{e.Message, e.Detail} {
		switch v := m.(type) {
		case nil:
		case string:
			if v != "" {
				return v
			}
		default:
			return fmt.Sprint(v)
		}
	}
	return ""
}

// Client 行情接口客户端
type Client struct {
	http           *sdkhttp.Client
	marketDataPath string
}

func NewClient(cfg config.UpstreamConfig) *Client {
	path := cfg.MarketDataPath
	if path == "" {
		path = "/api/market-data"
	}
	return &Client{
		http: sdkhttp.NewClient(cfg.BaseURL, sdkhttp.Options{
			Timeout:    cfg.Timeout,
			RetryCount: cfg.RetryCount,
			Token:      cfg.Token,
		}),
		marketDataPath: path,
	}
}

// FetchMarketData 获取一次行情快照的原始 data（保持键顺序，交给 marketdata.Normalize）
//   - 网络失败或响应体无法解析 -> *TransportError
//   - code 缺失或不为 0 -> *APIError
//   - data 为 null -> (nil, nil)
//
// HTTP 状态码不单独判断，只要响应体是合法的 {code,...} 就按 code 处理。
func (c *Client) FetchMarketData(ctx context.Context) (any, error) {
	resp, err := c.http.DoRequest(ctx, http.MethodGet, c.marketDataPath, &sdkhttp.RequestOptions{
		Headers: map[string]string{"Accept": "application/json"},
	}, nil)
	if err != nil {
		return nil, &TransportError{Err: errors.Wrap(err, "请求行情失败")}
	}

	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return nil, &TransportError{Err: errors.Wrapf(err, "解析行情响应失败 (http %d)", resp.StatusCode())}
	}
	if env.Code == nil {
		return nil, &APIError{Message: env.messageText()}
	}
	if *env.Code != 0 {
		return nil, &APIError{Code: *env.Code, HasCode: true, Message: env.messageText()}
	}

	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	raw, err := marketdata.DecodeRaw(data)
	if err != nil {
		// data 已经是合法 JSON，这里只在极端情况下失败，按空数据处理
		return nil, nil
	}
	return raw, nil
}
