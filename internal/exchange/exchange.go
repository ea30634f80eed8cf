// Package exchange 定义了策略引擎依赖的交易所能力集。
// 生产实现对接币安USDT本位合约，另有一个确定性的内存实现用于测试与自检。
package exchange

import (
	"context"

	"gridmaker/internal/models"
)

// Exchange 定义了所有交易所实现必须提供的通用方法。
// 这使得策略引擎可以在真实交易和确定性仿真之间轻松切换。
type Exchange interface {
	// GetInstrumentRules 获取交易对的下单精度规则（tick/step/最小数量）
	GetInstrumentRules(ctx context.Context, symbol string) (models.InstrumentRules, error)
	// SetLeverage 设置杠杆倍数
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	// GetMarkPrice 获取当前标记价格
	GetMarkPrice(ctx context.Context, symbol string) (float64, error)
	// GetKlines 获取最近 limit 根K线
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]models.Bar, error)
	// PlaceOrder 下单。限价单为GTC；req.Price 为 0 表示市价单。
	PlaceOrder(ctx context.Context, req models.OrderRequest) (*models.Order, error)
	// CancelOrder 撤销单个订单
	CancelOrder(ctx context.Context, symbol string, orderID int64) error
	// CancelAllOrders 撤销该交易对的全部挂单
	CancelAllOrders(ctx context.Context, symbol string) error
	// GetOpenOrders 获取当前全部挂单
	GetOpenOrders(ctx context.Context, symbol string) ([]models.Order, error)
	// GetOrder 查询单个订单的最新状态
	GetOrder(ctx context.Context, symbol string, orderID int64) (*models.Order, error)
	// GetPosition 获取当前净持仓
	GetPosition(ctx context.Context, symbol string) (models.Position, error)
	// SubscribeDepth 订阅盘口深度流。连接断开时在内部重连，通道仅在ctx取消后关闭。
	SubscribeDepth(ctx context.Context, symbol string) (<-chan models.DepthUpdate, error)
	// SubscribeTrades 订阅逐笔成交流，语义同 SubscribeDepth。
	SubscribeTrades(ctx context.Context, symbol string) (<-chan models.TradeEvent, error)
}
