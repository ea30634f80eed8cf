package models

import "time"

// Side 定义了交易方向的类型
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Opposite 返回相反的交易方向
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OrderStatus 表示订单在生命周期状态机中的位置:
// Pending -> Open -> {Filled | Cancelled | Rejected}
// 终态不可重入，进入终态的订单ID即被淘汰。
type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderOpen      OrderStatus = "OPEN"
	OrderFilled    OrderStatus = "FILLED"
	OrderCancelled OrderStatus = "CANCELLED"
	OrderRejected  OrderStatus = "REJECTED"
)

// IsTerminal 报告该状态是否为终态
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderFilled, OrderCancelled, OrderRejected:
		return true
	}
	return false
}

// PositionSide 表示持仓方向
type PositionSide string

const (
	Long  PositionSide = "LONG"
	Short PositionSide = "SHORT"
	Flat  PositionSide = "FLAT"
)

// BotConfig 定义了单个交易对引擎的全部策略参数。
// 实例创建后不再变更。
type BotConfig struct {
	Symbol               string  `json:"symbol"`                 // 交易对，如 "BTCUSDT"
	PricePrecision       int     `json:"price_precision"`        // 价格小数位数
	Volume               float64 `json:"volume"`                 // 每个网格的下单数量（基础货币）
	GridMultiplier       float64 `json:"grid_multiplier"`        // 网格间距 = ATR * GridMultiplier
	NumOfGrids           int     `json:"num_of_grids"`           // 价格两侧各挂的网格数量
	Leverage             int     `json:"leverage"`               // 杠杆倍数
	TakeProfitPercent    float64 `json:"take_profit_percent"`    // 止盈百分比
	StopLossPercent      float64 `json:"stop_loss_percent"`      // 止损百分比
	TrailingStopCallback float64 `json:"trailing_stop_callback"` // 移动止损回撤百分比
	VolatilityThreshold  float64 `json:"volatility_threshold"`   // ATR低于该值时退化为tick间距
	RiskPercentage       float64 `json:"risk_percentage"`        // 单笔交易风险比例（预留给仓位管理）
	ATRPeriod            int     `json:"atr_period"`             // ATR回看周期，默认14
	KlineInterval        string  `json:"kline_interval"`         // K线周期，默认 "1m"
	MinSpacingTicks      int     `json:"min_spacing_ticks"`      // 波动率过低时的最小间距（tick数）
	RetryAttempts        int     `json:"retry_attempts"`         // 下单失败时的重试次数
	ReconcileIntervalMs  int     `json:"reconcile_interval_ms"`  // 订单对账轮询间隔
	RiskIntervalMs       int     `json:"risk_interval_ms"`       // 风控检查间隔
	RedrawIntervalMs     int     `json:"redraw_interval_ms"`     // 网格重算间隔
}

// LogConfig 定义了日志相关的配置
type LogConfig struct {
	Level      string `json:"level"`       // 日志级别, e.g., "debug", "info", "warn", "error"
	Output     string `json:"output"`      // 输出模式: "console", "file", "both"
	File       string `json:"file"`        // 日志文件路径
	MaxSize    int    `json:"max_size"`    // 单个日志文件的最大大小 (MB)
	MaxBackups int    `json:"max_backups"` // 保留的旧日志文件最大数量
	MaxAge     int    `json:"max_age"`     // 旧日志文件的最大保留天数
	Compress   bool   `json:"compress"`    // 是否压缩旧日志文件
}

// Config 是进程级配置：共享设置加上每个交易对一份 BotConfig。
type Config struct {
	IsTestnet      bool        `json:"is_testnet"`       // 是否使用测试网
	LiveWSURL      string      `json:"live_ws_url"`      // 生产网WebSocket地址
	TestnetWSURL   string      `json:"testnet_ws_url"`   // 测试网WebSocket地址
	JournalPath    string      `json:"journal_path"`     // 成交流水数据库路径，留空则不落盘
	ReportEverySec int         `json:"report_every_sec"` // 状态表刷新间隔（秒）
	LogConfig      LogConfig   `json:"log"`
	Bots           []BotConfig `json:"bots"`
}

// InstrumentRules 是交易所为某个交易对规定的下单精度规则
type InstrumentRules struct {
	Symbol   string
	TickSize string // 价格步长, e.g. "0.10"
	StepSize string // 数量步长, e.g. "0.001"
	MinQty   float64
}

// PriceLevel 是 GridPlanner 产出的目标挂单档位。
// 每次网格重算时整体重新生成。
type PriceLevel struct {
	Price float64
	Side  Side
}

// Order 是订单在本地的权威记录，以交易所订单ID为键。
type Order struct {
	ID            int64
	ClientOrderID string
	Symbol        string
	Side          Side
	Price         float64
	Quantity      float64
	Status        OrderStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// OrderRequest 描述一次下单请求。Price 为 0 表示市价单。
type OrderRequest struct {
	Symbol        string
	Side          Side
	Price         float64
	Quantity      float64
	ClientOrderID string
	ReduceOnly    bool
}

// Position 表示当前净持仓。Size 带符号：多头为正，空头为负。
type Position struct {
	Symbol     string
	Size       float64
	EntryPrice float64
}

// Side 返回持仓方向
func (p Position) Side() PositionSide {
	switch {
	case p.Size > 0:
		return Long
	case p.Size < 0:
		return Short
	}
	return Flat
}

// IsFlat 报告当前是否为空仓
func (p Position) IsFlat() bool { return p.Size == 0 }

// Bar 是一根K线（仅保留策略需要的字段）
type Bar struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
}

// MarketSnapshot 是行情的最新快照，每次深度更新整体替换，消费方只读。
type MarketSnapshot struct {
	BestBid   float64
	BestAsk   float64
	BidVolume float64
	AskVolume float64
	MarkPrice float64
	Imbalance float64 // 盘口失衡度，范围 [-1, 1]
	UpdatedAt time.Time
}

// DepthLevel 是深度中的一档
type DepthLevel struct {
	Price    float64
	Quantity float64
}

// DepthUpdate 是一次盘口深度推送
type DepthUpdate struct {
	Bids []DepthLevel
	Asks []DepthLevel
	Time time.Time
}

// TradeEvent 是一笔逐笔成交推送
type TradeEvent struct {
	Price    float64
	Quantity float64
	Time     time.Time
}

// Fill 记录一次本方订单的成交，用于流水与净盈亏统计
type Fill struct {
	OrderID     int64     `json:"order_id"`
	Symbol      string    `json:"symbol"`
	Side        Side      `json:"side"`
	Price       float64   `json:"price"`
	Quantity    float64   `json:"quantity"`
	RealizedPnL float64   `json:"realized_pnl"`
	Time        time.Time `json:"time"`
}

// PnLRecord 是风控每个tick重算出的盈亏记录，仅用于展示。
type PnLRecord struct {
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	PnLPercent    float64   `json:"pnl_percent"`
	RealizedPnL   float64   `json:"realized_pnl"`
	NetPnL        float64   `json:"net_pnl"`
	Time          time.Time `json:"time"`
}

// EngineStatus 是单个引擎暴露给状态表的只读视图
type EngineStatus struct {
	Symbol       string
	Position     Position
	Mark         float64
	Imbalance    float64
	PnL          PnLRecord
	ActiveOrders int
	Running      bool
}
