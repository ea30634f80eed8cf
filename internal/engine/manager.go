package engine

import (
	"context"
	"math"
	"time"

	"github.com/jpillora/backoff"
	"go.uber.org/zap"

	"gridmaker/internal/exchange"
	"gridmaker/internal/grid"
	"gridmaker/internal/models"
)

// OrderManager 维护交易所订单与本地影子账本的一致性。
// 本地账本以交易所订单ID为键，是判断补单与换挡的唯一依据。
// 除 CancelAll 可能被关停流程调用外，其余方法都只在引擎事件循环里串行执行。
type OrderManager struct {
	symbol string
	cfg    models.BotConfig
	rules  models.InstrumentRules
	ex     exchange.Exchange
	logger *zap.SugaredLogger

	active  map[int64]*models.Order
	spacing float64 // 当前梯子使用的网格间距

	// onFill 在对账确认成交后被回调，由引擎负责持仓与流水的后续处理
	onFill func(models.Fill)
}

// NewOrderManager 创建订单生命周期管理器
func NewOrderManager(cfg models.BotConfig, rules models.InstrumentRules, ex exchange.Exchange, logger *zap.SugaredLogger, onFill func(models.Fill)) *OrderManager {
	return &OrderManager{
		symbol: cfg.Symbol,
		cfg:    cfg,
		rules:  rules,
		ex:     ex,
		logger: logger,
		active: make(map[int64]*models.Order),
		onFill: onFill,
	}
}

// ActiveCount 返回本地账本中未终结的订单数
func (m *OrderManager) ActiveCount() int {
	return len(m.active)
}

// Spacing 返回当前梯子的网格间距，尚未铺设时为0
func (m *OrderManager) Spacing() float64 {
	return m.spacing
}

// ActiveOrders 返回账本快照，供状态表展示
func (m *OrderManager) ActiveOrders() []models.Order {
	out := make([]models.Order, 0, len(m.active))
	for _, o := range m.active {
		out = append(out, *o)
	}
	return out
}

// DrawGrid 按规划器产出的目标档位铺设网格。
// 已有同方向挂单覆盖的档位会被跳过，因此重复调用只补缺口，不会重复挂单。
func (m *OrderManager) DrawGrid(ctx context.Context, planner *grid.Planner, refPrice, atr float64) error {
	spacing := planner.Spacing(atr)
	levels := planner.Plan(refPrice, atr)
	m.spacing = spacing

	qty := adjustValueToStep(m.cfg.Volume, m.rules.StepSize)
	if qty < m.rules.MinQty {
		err := &models.InvalidOrderParamsError{
			Symbol: m.symbol,
			Reason: "数量取整后低于交易所最小下单量",
		}
		m.logger.Warnf("[%s] 跳过铺设网格: %v (volume=%v, min=%v)", m.symbol, err, m.cfg.Volume, m.rules.MinQty)
		return err
	}

	for _, level := range levels {
		price := adjustValueToStep(level.Price, m.rules.TickSize)
		if price <= 0 {
			m.logger.Warnf("[%s] 跳过非法档位 %s @ %.8f", m.symbol, level.Side, level.Price)
			continue
		}
		if m.levelCovered(level.Side, price, spacing) {
			continue
		}
		if _, err := m.placeGridOrder(ctx, level.Side, price, qty); err != nil {
			// 单个档位失败不中断整轮铺设，缺口留给下一轮补齐
			m.logger.Errorf("[%s] 挂单失败 %s @ %.8f: %v", m.symbol, level.Side, price, err)
		}
	}
	return nil
}

// levelCovered 判断某个目标档位是否已被同方向的活动订单覆盖。
// 容差取半个间距，避免浮点误差或参考价微小漂移导致的重复挂单。
func (m *OrderManager) levelCovered(side models.Side, price, spacing float64) bool {
	tolerance := spacing / 2
	for _, o := range m.active {
		if o.Side == side && math.Abs(o.Price-price) < tolerance {
			return true
		}
	}
	return false
}

// placeGridOrder 挂出一个GTC限价单并登记到本地账本
func (m *OrderManager) placeGridOrder(ctx context.Context, side models.Side, price, qty float64) (*models.Order, error) {
	req := models.OrderRequest{
		Symbol:        m.symbol,
		Side:          side,
		Price:         price,
		Quantity:      qty,
		ClientOrderID: newClientOrderID(),
	}
	order, err := m.submitWithRetry(ctx, req)
	if err != nil {
		return nil, err
	}
	if order.Status == models.OrderRejected {
		// 下单即被拒绝不进入账本，留待对账或下轮铺设补齐
		m.logger.Warnf("[%s] 订单被拒绝 %s @ %.8f", m.symbol, side, price)
		return order, nil
	}
	m.active[order.ID] = order
	m.logger.Infof("[%s] 已挂单 %s %v @ %.8f (id=%d)", m.symbol, side, qty, price, order.ID)
	return order, nil
}

// submitWithRetry 提交订单，对可重试错误做指数退避重试。
// 参数类错误和认证错误立即失败，不浪费重试额度。
func (m *OrderManager) submitWithRetry(ctx context.Context, req models.OrderRequest) (*models.Order, error) {
	b := &backoff.Backoff{
		Min:    200 * time.Millisecond,
		Max:    5 * time.Second,
		Factor: 2,
		Jitter: true,
	}
	attempts := m.cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		order, err := m.ex.PlaceOrder(ctx, req)
		if err == nil {
			return order, nil
		}
		lastErr = err
		if !models.IsRetryable(err) {
			return nil, err
		}
		m.logger.Warnf("[%s] 下单失败(第%d次): %v", m.symbol, i+1, err)
		select {
		case <-time.After(b.Duration()):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

// Reconcile 把本地账本与交易所的挂单列表对账。
// 从挂单列表消失的订单逐一向交易所确认终态：
// 成交则在同方向更远一档补挂新单，异常取消或被拒则原档位补挂一次。
func (m *OrderManager) Reconcile(ctx context.Context) error {
	open, err := m.ex.GetOpenOrders(ctx, m.symbol)
	if err != nil {
		return err
	}
	openSet := make(map[int64]struct{}, len(open))
	for _, o := range open {
		openSet[o.ID] = struct{}{}
	}

	var missing []*models.Order
	for id, o := range m.active {
		if _, ok := openSet[id]; !ok {
			missing = append(missing, o)
		}
	}

	for _, o := range missing {
		confirmed, err := m.ex.GetOrder(ctx, m.symbol, o.ID)
		if err != nil {
			m.logger.Warnf("[%s] 确认订单 %d 状态失败: %v", m.symbol, o.ID, err)
			continue
		}
		switch confirmed.Status {
		case models.OrderFilled:
			m.handleFill(ctx, confirmed)
		case models.OrderCancelled, models.OrderRejected:
			// 非本程序主动取消的订单消失，原档位补挂一次
			delete(m.active, o.ID)
			m.logger.Warnf("[%s] 订单 %d 异常终结(%s)，原档位补挂", m.symbol, o.ID, confirmed.Status)
			if _, err := m.placeGridOrder(ctx, o.Side, o.Price, o.Quantity); err != nil {
				m.logger.Errorf("[%s] 补挂失败 %s @ %.8f: %v", m.symbol, o.Side, o.Price, err)
			}
		default:
			// 挂单列表和单查结果不一致，以单查为准保留账本，下一轮再看
			m.logger.Warnf("[%s] 对账冲突: 订单 %d 不在挂单列表但状态仍为 %s", m.symbol, o.ID, confirmed.Status)
		}
	}
	return nil
}

// handleFill 处理一笔确认的成交：淘汰订单ID，回调引擎，
// 并在同方向更远一档补挂新单，使梯子恢复满档。
func (m *OrderManager) handleFill(ctx context.Context, o *models.Order) {
	delete(m.active, o.ID)
	m.logger.Infof("[%s] 订单成交 %s %v @ %.8f (id=%d)", m.symbol, o.Side, o.Quantity, o.Price, o.ID)

	if m.onFill != nil {
		m.onFill(models.Fill{
			OrderID:  o.ID,
			Symbol:   o.Symbol,
			Side:     o.Side,
			Price:    o.Price,
			Quantity: o.Quantity,
			Time:     time.Now(),
		})
	}

	if m.spacing <= 0 {
		return
	}
	// 在同方向最远的活动档位之外再挂一档，使梯子整体外移而不重叠
	next := m.farthestPrice(o.Side, o.Price)
	if o.Side == models.Buy {
		next -= m.spacing
	} else {
		next += m.spacing
	}
	next = adjustValueToStep(next, m.rules.TickSize)
	if next <= 0 {
		m.logger.Warnf("[%s] 补挡价格非法，放弃换挡 (%.8f)", m.symbol, next)
		return
	}
	if _, err := m.placeGridOrder(ctx, o.Side, next, o.Quantity); err != nil {
		m.logger.Errorf("[%s] 成交换挡失败 %s @ %.8f: %v", m.symbol, o.Side, next, err)
	}
}

// farthestPrice 返回同方向活动订单中离盘口最远的价格。
// 买方向取最低价，卖方向取最高价；没有同方向订单时退回 fallback。
func (m *OrderManager) farthestPrice(side models.Side, fallback float64) float64 {
	best := fallback
	for _, o := range m.active {
		if o.Side != side {
			continue
		}
		if side == models.Buy && o.Price < best {
			best = o.Price
		}
		if side == models.Sell && o.Price > best {
			best = o.Price
		}
	}
	return best
}

// CancelAll 撤销账本中的订单。sideFilter 为空表示全部撤销。
// 逐单撤销并容忍"订单不存在"，因此重复调用是安全的。
func (m *OrderManager) CancelAll(ctx context.Context, sideFilter models.Side) error {
	var firstErr error
	for id, o := range m.active {
		if sideFilter != "" && o.Side != sideFilter {
			continue
		}
		if err := m.ex.CancelOrder(ctx, m.symbol, id); err != nil {
			m.logger.Errorf("[%s] 撤单失败 id=%d: %v", m.symbol, id, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		delete(m.active, id)
	}
	return firstErr
}
