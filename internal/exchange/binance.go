package exchange

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gridmaker/internal/models"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"go.uber.org/zap"
)

// BinanceExchange 实现了 Exchange 接口，用于与币安USDT本位合约交互。
// REST调用走官方SDK，行情流走独立的WebSocket连接（见 stream.go）。
type BinanceExchange struct {
	client    *futures.Client
	wsBaseURL string
	logger    *zap.SugaredLogger
}

// NewBinanceExchange 创建一个 BinanceExchange 实例并验证鉴权。
// 鉴权失败对调用方是致命错误，对应的交易对引擎不应启动。
func NewBinanceExchange(ctx context.Context, apiKey, secretKey, wsBaseURL string, testnet bool, logger *zap.SugaredLogger) (*BinanceExchange, error) {
	if apiKey == "" || secretKey == "" {
		return nil, fmt.Errorf("%w: API密钥缺失", models.ErrAuthentication)
	}
	futures.UseTestnet = testnet

	e := &BinanceExchange{
		client:    futures.NewClient(apiKey, secretKey),
		wsBaseURL: wsBaseURL,
		logger:    logger,
	}

	// 用一次需要签名的请求验证密钥有效性
	if _, err := e.client.NewGetBalanceService().Do(ctx); err != nil {
		if apiErr := asAPIError(err); apiErr != nil && (apiErr.Code == -2014 || apiErr.Code == -2015 || apiErr.Code == -1022) {
			return nil, fmt.Errorf("%w: %v", models.ErrAuthentication, err)
		}
		return nil, fmt.Errorf("验证API密钥失败: %w", err)
	}
	return e, nil
}

// GetInstrumentRules 从交易规则接口抽取 PRICE_FILTER 与 LOT_SIZE
func (e *BinanceExchange) GetInstrumentRules(ctx context.Context, symbol string) (models.InstrumentRules, error) {
	info, err := e.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return models.InstrumentRules{}, wrapAPIError(err)
	}
	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		rules := models.InstrumentRules{Symbol: symbol}
		if pf := s.PriceFilter(); pf != nil {
			rules.TickSize = pf.TickSize
		}
		if lf := s.LotSizeFilter(); lf != nil {
			rules.StepSize = lf.StepSize
			rules.MinQty, _ = strconv.ParseFloat(lf.MinQuantity, 64)
		}
		if rules.TickSize == "" || rules.StepSize == "" {
			return models.InstrumentRules{}, fmt.Errorf("交易对 %s 缺少精度过滤器", symbol)
		}
		return rules, nil
	}
	return models.InstrumentRules{}, fmt.Errorf("交易所未找到交易对 %s", symbol)
}

// SetLeverage 设置杠杆倍数
func (e *BinanceExchange) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	_, err := e.client.NewChangeLeverageService().Symbol(symbol).Leverage(leverage).Do(ctx)
	return wrapAPIError(err)
}

// GetMarkPrice 获取标记价格
func (e *BinanceExchange) GetMarkPrice(ctx context.Context, symbol string) (float64, error) {
	res, err := e.client.NewPremiumIndexService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, wrapAPIError(err)
	}
	if len(res) == 0 {
		return 0, fmt.Errorf("标记价格响应为空: %s", symbol)
	}
	return strconv.ParseFloat(res[0].MarkPrice, 64)
}

// GetKlines 获取最近 limit 根K线
func (e *BinanceExchange) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]models.Bar, error) {
	klines, err := e.client.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, wrapAPIError(err)
	}

	bars := make([]models.Bar, 0, len(klines))
	for _, k := range klines {
		open, errO := strconv.ParseFloat(k.Open, 64)
		high, errH := strconv.ParseFloat(k.High, 64)
		low, errL := strconv.ParseFloat(k.Low, 64)
		closeP, errC := strconv.ParseFloat(k.Close, 64)
		if errO != nil || errH != nil || errL != nil || errC != nil {
			e.logger.Warnf("无法解析K线数据，跳过: %+v", k)
			continue
		}
		bars = append(bars, models.Bar{
			OpenTime: time.UnixMilli(k.OpenTime),
			Open:     open,
			High:     high,
			Low:      low,
			Close:    closeP,
		})
	}
	return bars, nil
}

// PlaceOrder 下单。Price 为 0 时提交市价单，否则提交GTC限价单。
func (e *BinanceExchange) PlaceOrder(ctx context.Context, req models.OrderRequest) (*models.Order, error) {
	side := futures.SideTypeBuy
	if req.Side == models.Sell {
		side = futures.SideTypeSell
	}

	svc := e.client.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(side).
		Quantity(formatFloat(req.Quantity))
	if req.ClientOrderID != "" {
		svc = svc.NewClientOrderID(req.ClientOrderID)
	}
	if req.ReduceOnly {
		svc = svc.ReduceOnly(true)
	}
	if req.Price > 0 {
		svc = svc.Type(futures.OrderTypeLimit).
			TimeInForce(futures.TimeInForceTypeGTC).
			Price(formatFloat(req.Price))
	} else {
		svc = svc.Type(futures.OrderTypeMarket)
	}

	res, err := svc.Do(ctx)
	if err != nil {
		return nil, wrapAPIError(err)
	}

	now := time.Now()
	return &models.Order{
		ID:            res.OrderID,
		ClientOrderID: res.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Price:         req.Price,
		Quantity:      req.Quantity,
		Status:        mapOrderStatus(res.Status),
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// CancelOrder 撤销单个订单。订单已不存在视为成功（幂等）。
func (e *BinanceExchange) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	_, err := e.client.NewCancelOrderService().Symbol(symbol).OrderID(orderID).Do(ctx)
	if apiErr := asAPIError(err); apiErr != nil && apiErr.Code == -2011 {
		// UNKNOWN_ORDER: 已经成交或已撤销
		return nil
	}
	return wrapAPIError(err)
}

// CancelAllOrders 撤销该交易对全部挂单
func (e *BinanceExchange) CancelAllOrders(ctx context.Context, symbol string) error {
	return wrapAPIError(e.client.NewCancelAllOpenOrdersService().Symbol(symbol).Do(ctx))
}

// GetOpenOrders 获取当前全部挂单
func (e *BinanceExchange) GetOpenOrders(ctx context.Context, symbol string) ([]models.Order, error) {
	raw, err := e.client.NewListOpenOrdersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, wrapAPIError(err)
	}
	orders := make([]models.Order, 0, len(raw))
	for _, o := range raw {
		orders = append(orders, convertOrder(o))
	}
	return orders, nil
}

// GetOrder 查询单个订单的最新状态
func (e *BinanceExchange) GetOrder(ctx context.Context, symbol string, orderID int64) (*models.Order, error) {
	raw, err := e.client.NewGetOrderService().Symbol(symbol).OrderID(orderID).Do(ctx)
	if err != nil {
		return nil, wrapAPIError(err)
	}
	o := convertOrder(raw)
	return &o, nil
}

// GetPosition 获取当前净持仓
func (e *BinanceExchange) GetPosition(ctx context.Context, symbol string) (models.Position, error) {
	risks, err := e.client.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
	if err != nil {
		return models.Position{}, wrapAPIError(err)
	}
	pos := models.Position{Symbol: symbol}
	for _, r := range risks {
		if r.Symbol != symbol {
			continue
		}
		amt, _ := strconv.ParseFloat(r.PositionAmt, 64)
		entry, _ := strconv.ParseFloat(r.EntryPrice, 64)
		pos.Size = amt
		pos.EntryPrice = entry
		break
	}
	return pos, nil
}

func convertOrder(o *futures.Order) models.Order {
	price, _ := strconv.ParseFloat(o.Price, 64)
	qty, _ := strconv.ParseFloat(o.OrigQuantity, 64)
	return models.Order{
		ID:            o.OrderID,
		ClientOrderID: o.ClientOrderID,
		Symbol:        o.Symbol,
		Side:          models.Side(o.Side),
		Price:         price,
		Quantity:      qty,
		Status:        mapOrderStatus(o.Status),
		CreatedAt:     time.UnixMilli(o.Time),
		UpdatedAt:     time.UnixMilli(o.UpdateTime),
	}
}

// mapOrderStatus 把币安订单状态映射到本地状态机
func mapOrderStatus(s futures.OrderStatusType) models.OrderStatus {
	switch s {
	case futures.OrderStatusTypeNew, futures.OrderStatusTypePartiallyFilled:
		return models.OrderOpen
	case futures.OrderStatusTypeFilled:
		return models.OrderFilled
	case futures.OrderStatusTypeCanceled, futures.OrderStatusTypeExpired:
		return models.OrderCancelled
	case futures.OrderStatusTypeRejected:
		return models.OrderRejected
	}
	return models.OrderPending
}

// wrapAPIError 把SDK错误统一转换为 models.APIError，便于上层分类重试
func wrapAPIError(err error) error {
	if err == nil {
		return nil
	}
	if apiErr := asAPIError(err); apiErr != nil {
		return &models.APIError{Code: int(apiErr.Code), Msg: apiErr.Message}
	}
	return err
}

func asAPIError(err error) *common.APIError {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
