package upstream

import (
	"fmt"

	"github.com/pkg/errors"
)

// TransportError 网络层失败（连接失败、超时、响应体不是合法 JSON）
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "网络请求失败: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

// APIError 后端返回 code != 0（或缺少 code）
type APIError struct {
	Code    int
	HasCode bool
	Message string
}

func (e *APIError) Error() string {
	if !e.HasCode {
		return fmt.Sprintf("接口返回缺少 code: %s", e.UserMessage())
	}
	return fmt.Sprintf("接口返回错误 code=%d: %s", e.Code, e.UserMessage())
}

// UserMessage 展示给用户的文案，后端没有给出时使用"未知错误"
func (e *APIError) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return "未知错误"
}

// IsTransport 是否为网络层失败
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsAPI 是否为业务层失败
func IsAPI(err error) bool {
	var ae *APIError
	return errors.As(err, &ae)
}

// NoticeText 刷新失败时展示给用户的通知文案
func NoticeText(err error) string {
	var ae *APIError
	if errors.As(err, &ae) {
		return "加载市场数据失败: " + ae.UserMessage()
	}
	var te *TransportError
	if errors.As(err, &te) {
		return "加载市场数据失败: " + te.Err.Error()
	}
	return "加载市场数据失败: " + err.Error()
}
