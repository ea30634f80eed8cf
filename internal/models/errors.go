package models

import (
	"errors"
	"fmt"
)

// ErrInsufficientData 表示K线历史不足以计算指标，网格重算应推迟。
var ErrInsufficientData = errors.New("insufficient bar history")

// ErrAuthentication 表示API鉴权失败，对该交易对引擎是致命错误。
var ErrAuthentication = errors.New("authentication rejected")

// InvalidOrderParamsError 表示某个档位经过精度取整后不再是合法订单
// （例如数量低于最小下单量）。该档位跳过并记录日志，不重试。
type InvalidOrderParamsError struct {
	Symbol string
	Reason string
}

func (e *InvalidOrderParamsError) Error() string {
	return fmt.Sprintf("invalid order params for %s: %s", e.Symbol, e.Reason)
}

// APIError 定义了交易所API返回的错误信息结构
type APIError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// Error 方法使得 APIError 实现了 error 接口
func (e *APIError) Error() string {
	return fmt.Sprintf("API Error: code=%d, msg=%s", e.Code, e.Msg)
}

// 可重试的币安错误码：断连、限频、处理超时。
// 其它API错误码视为请求本身有问题，重试没有意义。
const (
	apiCodeDisconnected    = -1001
	apiCodeTooManyRequests = -1003
	apiCodeTimeout         = -1007
)

// IsRetryable 判断一次交易所调用失败是否属于瞬时连接类错误。
// 非API错误（网络层）一律视为可重试，由调用方的重试预算兜底。
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case apiCodeDisconnected, apiCodeTooManyRequests, apiCodeTimeout:
			return true
		}
		return false
	}
	var invalid *InvalidOrderParamsError
	if errors.As(err, &invalid) {
		return false
	}
	if errors.Is(err, ErrInsufficientData) || errors.Is(err, ErrAuthentication) {
		return false
	}
	return true
}
