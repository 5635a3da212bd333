package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/accelboard/internal/marketdata"
	"github.com/betbot/accelboard/pkg/config"
)

func newTestClient(t *testing.T, status int, body string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/market-data", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return NewClient(config.UpstreamConfig{BaseURL: srv.URL, Timeout: 2 * time.Second})
}

func TestFetchMarketData_Grouped(t *testing.T) {
	c := newTestClient(t, http.StatusOK, `{"code":0,"data":{
		"美股":{"group_order":1,"stocks":[{"symbol":"AAA","price":10,"acceleration":0.5}]},
		"港股":{"group_order":0,"stocks":[{"symbol":"BBB","price":5}]}
	}}`)

	raw, err := c.FetchMarketData(context.Background())
	require.NoError(t, err)

	quotes := marketdata.Normalize(raw)
	// 按响应中的键顺序展开，不按 group_order 重排
	require.Len(t, quotes, 2)
	assert.Equal(t, "AAA", quotes[0].Symbol)
	assert.Equal(t, "BBB", quotes[1].Symbol)
}

func TestFetchMarketData_NullData(t *testing.T) {
	c := newTestClient(t, http.StatusOK, `{"code":0,"data":null}`)

	raw, err := c.FetchMarketData(context.Background())
	require.NoError(t, err)
	assert.Nil(t, raw)
	assert.Empty(t, marketdata.Normalize(raw))
}

func TestFetchMarketData_APIError(t *testing.T) {
	c := newTestClient(t, http.StatusOK, `{"code":1001,"message":"行情服务维护中"}`)

	_, err := c.FetchMarketData(context.Background())
	require.Error(t, err)
	assert.True(t, IsAPI(err))
	assert.False(t, IsTransport(err))
	assert.Equal(t, "加载市场数据失败: 行情服务维护中", NoticeText(err))
}

func TestFetchMarketData_APIErrorWithoutMessage(t *testing.T) {
	c := newTestClient(t, http.StatusOK, `{"code":500}`)

	_, err := c.FetchMarketData(context.Background())
	require.Error(t, err)
	assert.Equal(t, "加载市场数据失败: 未知错误", NoticeText(err))
}

func TestFetchMarketData_MissingCode(t *testing.T) {
	c := newTestClient(t, http.StatusUnauthorized, `{"detail":"Invalid token"}`)

	_, err := c.FetchMarketData(context.Background())
	require.Error(t, err)
	var ae *APIError
	require.ErrorAs(t, err, &ae)
	assert.False(t, ae.HasCode)
	assert.Equal(t, "Invalid token", ae.UserMessage())
}

func TestFetchMarketData_NotJSON(t *testing.T) {
	c := newTestClient(t, http.StatusBadGateway, `<html>bad gateway</html>`)

	_, err := c.FetchMarketData(context.Background())
	require.Error(t, err)
	assert.True(t, IsTransport(err))
}

func TestFetchMarketData_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(config.UpstreamConfig{BaseURL: url, Timeout: time.Second})
	_, err := c.FetchMarketData(context.Background())
	require.Error(t, err)
	assert.True(t, IsTransport(err))
	assert.Contains(t, NoticeText(err), "加载市场数据失败")
}

func TestFetchMarketData_SendsToken(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"code":0,"data":[]}`))
	}))
	defer srv.Close()

	c := NewClient(config.UpstreamConfig{BaseURL: srv.URL, Token: "secret", Timeout: time.Second})
	raw, err := c.FetchMarketData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret", got)
	assert.Empty(t, marketdata.Normalize(raw))
}
