package exchange

import (
	"context"
	"math"
	"sync"
	"time"

	"gridmaker/internal/models"
)

// SimExchange 是 Exchange 接口的确定性内存实现，用于测试与自检模式。
// 撮合规则刻意保持简单：限价单挂起后，标记价格触及挂单价即全部成交；
// 市价单立即按当前标记价格成交。没有滑点和手续费。
type SimExchange struct {
	mu sync.Mutex

	symbol    string
	rules     models.InstrumentRules
	leverage  int
	markPrice float64

	nextID   int64
	orders   map[int64]*models.Order
	position models.Position
	realized float64
	fills    []models.Fill
	bars     []models.Bar

	depthSubs []chan models.DepthUpdate
	tradeSubs []chan models.TradeEvent

	// 故障注入：>0 时后续 PlaceOrder 依次返回连接类错误
	failPlaceOrders int
	// >0 时后续下单立即返回 REJECTED 状态的订单
	rejectPlaceOrders int
}

// NewSimExchange 创建一个仿真交易所
func NewSimExchange(symbol string, rules models.InstrumentRules, startPrice float64) *SimExchange {
	return &SimExchange{
		symbol:    symbol,
		rules:     rules,
		markPrice: startPrice,
		orders:    make(map[int64]*models.Order),
		position:  models.Position{Symbol: symbol},
	}
}

func (s *SimExchange) GetInstrumentRules(_ context.Context, _ string) (models.InstrumentRules, error) {
	return s.rules, nil
}

func (s *SimExchange) SetLeverage(_ context.Context, _ string, leverage int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leverage = leverage
	return nil
}

func (s *SimExchange) GetMarkPrice(_ context.Context, _ string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markPrice, nil
}

// SetBars 预置K线历史，供 GetKlines 返回
func (s *SimExchange) SetBars(bars []models.Bar) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bars = bars
}

func (s *SimExchange) GetKlines(_ context.Context, _ string, _ string, limit int) ([]models.Bar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit > 0 && len(s.bars) > limit {
		out := make([]models.Bar, limit)
		copy(out, s.bars[len(s.bars)-limit:])
		return out, nil
	}
	out := make([]models.Bar, len(s.bars))
	copy(out, s.bars)
	return out, nil
}

func (s *SimExchange) PlaceOrder(_ context.Context, req models.OrderRequest) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failPlaceOrders > 0 {
		s.failPlaceOrders--
		return nil, &models.APIError{Code: -1001, Msg: "simulated disconnect"}
	}

	s.nextID++
	now := time.Now()
	order := &models.Order{
		ID:            s.nextID,
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Price:         req.Price,
		Quantity:      req.Quantity,
		Status:        models.OrderOpen,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if s.rejectPlaceOrders > 0 {
		s.rejectPlaceOrders--
		order.Status = models.OrderRejected
		s.orders[order.ID] = order
		out := *order
		return &out, nil
	}

	switch {
	case req.Price <= 0:
		// 市价单立即按标记价格成交
		s.fillLocked(order, s.markPrice)
	case req.Side == models.Buy && s.markPrice <= req.Price,
		req.Side == models.Sell && s.markPrice >= req.Price:
		// 下单即穿越：按限价成交
		s.fillLocked(order, req.Price)
	}
	s.orders[order.ID] = order
	out := *order
	return &out, nil
}

func (s *SimExchange) CancelOrder(_ context.Context, _ string, orderID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok || order.Status.IsTerminal() {
		// 取消不存在或已终态的订单是无害的空操作
		return nil
	}
	order.Status = models.OrderCancelled
	order.UpdatedAt = time.Now()
	return nil
}

func (s *SimExchange) CancelAllOrders(_ context.Context, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, order := range s.orders {
		if !order.Status.IsTerminal() {
			order.Status = models.OrderCancelled
			order.UpdatedAt = time.Now()
		}
	}
	return nil
}

func (s *SimExchange) GetOpenOrders(_ context.Context, _ string) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Order
	for _, order := range s.orders {
		if order.Status == models.OrderOpen {
			out = append(out, *order)
		}
	}
	return out, nil
}

func (s *SimExchange) GetOrder(_ context.Context, _ string, orderID int64) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return nil, &models.APIError{Code: -2013, Msg: "Order does not exist"}
	}
	out := *order
	return &out, nil
}

func (s *SimExchange) GetPosition(_ context.Context, _ string) (models.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position, nil
}

// 仿真的订阅通道不随ctx关闭，消费方以ctx取消作为统一的退出信号
func (s *SimExchange) SubscribeDepth(_ context.Context, _ string) (<-chan models.DepthUpdate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan models.DepthUpdate, 64)
	s.depthSubs = append(s.depthSubs, ch)
	return ch, nil
}

func (s *SimExchange) SubscribeTrades(_ context.Context, _ string) (<-chan models.TradeEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan models.TradeEvent, 64)
	s.tradeSubs = append(s.tradeSubs, ch)
	return ch, nil
}

// SetMarkPrice 推进仿真行情：更新标记价格并撮合被穿越的挂单，
// 同时向订阅方广播一笔对应的成交事件。
func (s *SimExchange) SetMarkPrice(price float64) {
	s.mu.Lock()
	for _, order := range s.orders {
		if order.Status != models.OrderOpen {
			continue
		}
		if (order.Side == models.Buy && price <= order.Price) ||
			(order.Side == models.Sell && price >= order.Price) {
			s.fillLocked(order, order.Price)
		}
	}
	s.markPrice = price
	subs := append([]chan models.TradeEvent(nil), s.tradeSubs...)
	s.mu.Unlock()

	for _, ch := range subs {
		sendLatest(ch, models.TradeEvent{Price: price, Time: time.Now()})
	}
}

// PushDepth 向所有深度订阅方广播一次盘口推送
func (s *SimExchange) PushDepth(du models.DepthUpdate) {
	s.mu.Lock()
	subs := append([]chan models.DepthUpdate(nil), s.depthSubs...)
	s.mu.Unlock()
	for _, ch := range subs {
		sendLatest(ch, du)
	}
}

// FailNextPlaceOrders 注入n次连接类下单失败
func (s *SimExchange) FailNextPlaceOrders(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPlaceOrders = n
}

// RejectNextPlaceOrders 注入n次下单被拒
func (s *SimExchange) RejectNextPlaceOrders(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectPlaceOrders = n
}

// Realized 返回累计已实现盈亏
func (s *SimExchange) Realized() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.realized
}

// Fills 返回全部成交记录的拷贝
func (s *SimExchange) Fills() []models.Fill {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Fill, len(s.fills))
	copy(out, s.fills)
	return out
}

// fillLocked 以 price 全部成交该订单并更新持仓。调用方必须持有锁。
func (s *SimExchange) fillLocked(order *models.Order, price float64) {
	order.Status = models.OrderFilled
	order.UpdatedAt = time.Now()

	signedQty := order.Quantity
	if order.Side == models.Sell {
		signedQty = -order.Quantity
	}

	pos := &s.position
	var realized float64
	if pos.Size != 0 && (pos.Size > 0) != (signedQty > 0) {
		// 减仓部分按开仓均价结算盈亏
		closed := math.Min(math.Abs(signedQty), math.Abs(pos.Size))
		direction := 1.0
		if pos.Size < 0 {
			direction = -1
		}
		realized = (price - pos.EntryPrice) * closed * direction
	}

	newSize := pos.Size + signedQty
	switch {
	case newSize == 0:
		pos.EntryPrice = 0
	case pos.Size == 0 || (pos.Size > 0) != (newSize > 0):
		// 开新仓或反手，均价重置为本次成交价
		pos.EntryPrice = price
	case (pos.Size > 0) == (signedQty > 0):
		// 同向加仓，重新计算开仓均价
		pos.EntryPrice = (pos.EntryPrice*math.Abs(pos.Size) + price*math.Abs(signedQty)) / math.Abs(newSize)
	}
	pos.Size = newSize
	s.realized += realized

	s.fills = append(s.fills, models.Fill{
		OrderID:     order.ID,
		Symbol:      order.Symbol,
		Side:        order.Side,
		Price:       price,
		Quantity:    order.Quantity,
		RealizedPnL: realized,
		Time:        order.UpdatedAt,
	})
}
