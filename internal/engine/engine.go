package engine

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"gridmaker/internal/exchange"
	"gridmaker/internal/grid"
	"gridmaker/internal/indicator"
	"gridmaker/internal/journal"
	"gridmaker/internal/marketdata"
	"gridmaker/internal/models"
)

// 网格间距相对漂移超过该比例且空仓时，整体撤掉重铺
const spacingDriftRatio = 0.5

// Engine 是单个交易对的做市引擎。
// 所有策略决策都在 Run 的单一事件循环里串行执行，行情消费放在
// marketdata.Feed 自己的goroutine里，循环只读快照，二者互不阻塞。
type Engine struct {
	cfg     models.BotConfig
	ex      exchange.Exchange
	logger  *zap.SugaredLogger
	journal journal.Repository

	rules   models.InstrumentRules
	planner *grid.Planner
	feed    *marketdata.Feed
	manager *OrderManager
	risk    *RiskMonitor

	// 风控平仓后挂起网格铺设，直到交易所确认空仓
	awaitingFlat bool

	statusMu sync.Mutex
	status   models.EngineStatus
}

// New 创建一个交易对引擎
func New(cfg models.BotConfig, ex exchange.Exchange, jnl journal.Repository, logger *zap.SugaredLogger) *Engine {
	e := &Engine{
		cfg:     cfg,
		ex:      ex,
		journal: jnl,
		logger:  logger,
		feed:    marketdata.NewFeed(cfg.Symbol, logger),
		risk:    NewRiskMonitor(cfg),
	}
	e.status = models.EngineStatus{Symbol: cfg.Symbol}
	return e
}

// Run 完成启动序列后进入事件循环，直到上下文取消或启动失败。
// 启动序列: 获取精度规则 -> 设置杠杆 -> 清扫历史挂单 -> 订阅行情 ->
// K线预热 -> 铺设首版网格。
func (e *Engine) Run(ctx context.Context) error {
	if err := e.startup(ctx); err != nil {
		return err
	}

	reconcile := time.NewTicker(time.Duration(e.cfg.ReconcileIntervalMs) * time.Millisecond)
	defer reconcile.Stop()
	riskTick := time.NewTicker(time.Duration(e.cfg.RiskIntervalMs) * time.Millisecond)
	defer riskTick.Stop()
	redraw := time.NewTicker(time.Duration(e.cfg.RedrawIntervalMs) * time.Millisecond)
	defer redraw.Stop()

	e.setRunning(true)
	defer e.setRunning(false)
	e.logger.Infof("[%s] 引擎已启动", e.cfg.Symbol)

	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return nil
		case <-reconcile.C:
			if err := e.manager.Reconcile(ctx); err != nil {
				e.logger.Warnf("[%s] 对账失败: %v", e.cfg.Symbol, err)
			}
			e.publishStatus(ctx)
		case <-riskTick.C:
			e.checkRisk(ctx)
		case <-redraw.C:
			e.maintainGrid(ctx)
		}
	}
}

func (e *Engine) startup(ctx context.Context) error {
	rules, err := e.ex.GetInstrumentRules(ctx, e.cfg.Symbol)
	if err != nil {
		return err
	}
	e.rules = rules

	if err := e.ex.SetLeverage(ctx, e.cfg.Symbol, e.cfg.Leverage); err != nil {
		return err
	}

	// 上一次运行可能留下挂单，统一清扫后从干净状态开始
	if err := e.ex.CancelAllOrders(ctx, e.cfg.Symbol); err != nil {
		return err
	}

	tickSize, _ := parseStep(rules.TickSize)
	e.planner = grid.NewPlanner(e.cfg, tickSize)
	e.manager = NewOrderManager(e.cfg, rules, e.ex, e.logger, e.recordFill)

	depthCh, err := e.ex.SubscribeDepth(ctx, e.cfg.Symbol)
	if err != nil {
		return err
	}
	tradesCh, err := e.ex.SubscribeTrades(ctx, e.cfg.Symbol)
	if err != nil {
		return err
	}
	go e.feed.Run(ctx, depthCh, tradesCh)

	mark, err := e.ex.GetMarkPrice(ctx, e.cfg.Symbol)
	if err != nil {
		return err
	}
	e.feed.SetMarkPrice(mark)

	atr, err := e.warmupATR(ctx)
	if err != nil {
		if !errors.Is(err, models.ErrInsufficientData) {
			return err
		}
		// 历史不足时先用保底间距开张，后续重算收敛
		e.logger.Warnf("[%s] K线历史不足，首版网格使用保底间距", e.cfg.Symbol)
		atr = 0
	}

	if err := e.manager.DrawGrid(ctx, e.planner, mark, atr); err != nil {
		var invalid *models.InvalidOrderParamsError
		if errors.As(err, &invalid) {
			// 配置数量不合法，引擎无事可做
			return err
		}
	}
	return nil
}

// warmupATR 拉取K线历史并计算ATR
func (e *Engine) warmupATR(ctx context.Context) (float64, error) {
	limit := e.cfg.ATRPeriod*3 + 1
	bars, err := e.ex.GetKlines(ctx, e.cfg.Symbol, e.cfg.KlineInterval, limit)
	if err != nil {
		return 0, err
	}
	return indicator.ATR(bars, e.cfg.ATRPeriod)
}

// checkRisk 重算盈亏并判定离场
func (e *Engine) checkRisk(ctx context.Context) {
	pos, err := e.ex.GetPosition(ctx, e.cfg.Symbol)
	if err != nil {
		e.logger.Warnf("[%s] 获取持仓失败: %v", e.cfg.Symbol, err)
		return
	}

	if e.awaitingFlat {
		if !pos.IsFlat() {
			return
		}
		// 交易所确认空仓后恢复网格铺设
		e.awaitingFlat = false
		e.logger.Infof("[%s] 平仓确认，恢复网格", e.cfg.Symbol)
	}

	mark := e.feed.Snapshot().MarkPrice
	if mark <= 0 {
		if mark, err = e.ex.GetMarkPrice(ctx, e.cfg.Symbol); err != nil || mark <= 0 {
			return
		}
		e.feed.SetMarkPrice(mark)
	}

	rec := e.risk.Snapshot(pos, mark)
	if e.journal != nil && !pos.IsFlat() {
		if err := e.journal.RecordPnL(e.cfg.Symbol, rec); err != nil {
			e.logger.Warnf("[%s] 记录盈亏失败: %v", e.cfg.Symbol, err)
		}
	}

	if reason := e.risk.Check(pos, rec); reason != "" {
		e.exitPosition(ctx, pos, rec, reason)
	}
}

// exitPosition 执行离场：撤掉全部网格挂单，以只减仓市价单平仓，
// 并挂起网格铺设直到交易所确认空仓。
func (e *Engine) exitPosition(ctx context.Context, pos models.Position, rec models.PnLRecord, reason string) {
	e.logger.Warnf("[%s] 触发离场(%s): pnl=%.4f (%.2f%%)", e.cfg.Symbol, reason, rec.UnrealizedPnL, rec.PnLPercent)

	if err := e.manager.CancelAll(ctx, ""); err != nil {
		e.logger.Errorf("[%s] 离场撤单失败: %v", e.cfg.Symbol, err)
	}

	side := models.Sell
	if pos.Side() == models.Short {
		side = models.Buy
	}
	qty := adjustValueToStep(math.Abs(pos.Size), e.rules.StepSize)
	_, err := e.ex.PlaceOrder(ctx, models.OrderRequest{
		Symbol:        e.cfg.Symbol,
		Side:          side,
		Quantity:      qty,
		ClientOrderID: newClientOrderID(),
		ReduceOnly:    true,
	})
	if err != nil {
		// 平仓单未被接受，不结算也不挂起，下一个风控tick会重新触发离场
		e.logger.Errorf("[%s] 平仓下单失败: %v", e.cfg.Symbol, err)
		return
	}
	e.risk.SettleExit(rec.UnrealizedPnL)
	e.awaitingFlat = true
}

// maintainGrid 周期性维护梯子：补齐缺口，空仓且间距漂移过大时整体重铺
func (e *Engine) maintainGrid(ctx context.Context) {
	if e.awaitingFlat {
		return
	}

	atr, err := e.warmupATR(ctx)
	if err != nil {
		if errors.Is(err, models.ErrInsufficientData) {
			e.logger.Debugf("[%s] K线历史不足，跳过本轮重算", e.cfg.Symbol)
		} else {
			e.logger.Warnf("[%s] 拉取K线失败: %v", e.cfg.Symbol, err)
		}
		return
	}

	mark := e.feed.Snapshot().MarkPrice
	if mark <= 0 {
		return
	}

	pos, err := e.ex.GetPosition(ctx, e.cfg.Symbol)
	if err != nil {
		e.logger.Warnf("[%s] 获取持仓失败: %v", e.cfg.Symbol, err)
		return
	}

	newSpacing := e.planner.Spacing(atr)
	oldSpacing := e.manager.Spacing()
	drifted := oldSpacing > 0 && math.Abs(newSpacing-oldSpacing)/oldSpacing > spacingDriftRatio

	switch {
	case e.manager.ActiveCount() == 0:
		e.logger.Infof("[%s] 梯子为空，以 %.8f 为中心重铺 (间距 %.8f)", e.cfg.Symbol, mark, newSpacing)
		e.drawGrid(ctx, mark, atr)
	case pos.IsFlat() && drifted:
		// 只在空仓时整体重铺，避免撤掉正在对冲持仓的挂单
		e.logger.Infof("[%s] 间距漂移 %.8f -> %.8f，整体重铺", e.cfg.Symbol, oldSpacing, newSpacing)
		if err := e.manager.CancelAll(ctx, ""); err != nil {
			e.logger.Errorf("[%s] 重铺撤单失败: %v", e.cfg.Symbol, err)
			return
		}
		e.drawGrid(ctx, mark, atr)
	case e.manager.ActiveCount() < 2*e.cfg.NumOfGrids:
		e.drawGrid(ctx, mark, atr)
	}
}

func (e *Engine) drawGrid(ctx context.Context, mark, atr float64) {
	if err := e.manager.DrawGrid(ctx, e.planner, mark, atr); err != nil {
		e.logger.Errorf("[%s] 铺设网格失败: %v", e.cfg.Symbol, err)
	}
}

// recordFill 是 OrderManager 确认成交后的回调
func (e *Engine) recordFill(fill models.Fill) {
	if e.journal == nil {
		return
	}
	if err := e.journal.RecordFill(fill); err != nil {
		e.logger.Warnf("[%s] 记录成交失败: %v", e.cfg.Symbol, err)
	}
}

// shutdown 在上下文取消后尽最大努力撤掉挂单，不留孤儿订单
func (e *Engine) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.ex.CancelAllOrders(ctx, e.cfg.Symbol); err != nil {
		e.logger.Errorf("[%s] 退出撤单失败: %v", e.cfg.Symbol, err)
	}
	e.logger.Infof("[%s] 引擎已停止", e.cfg.Symbol)
}

// publishStatus 更新暴露给状态表的只读视图
func (e *Engine) publishStatus(ctx context.Context) {
	pos, err := e.ex.GetPosition(ctx, e.cfg.Symbol)
	if err != nil {
		return
	}
	snap := e.feed.Snapshot()
	rec := e.risk.Snapshot(pos, snap.MarkPrice)

	e.statusMu.Lock()
	e.status.Position = pos
	e.status.Mark = snap.MarkPrice
	e.status.Imbalance = snap.Imbalance
	e.status.PnL = rec
	e.status.ActiveOrders = e.manager.ActiveCount()
	e.statusMu.Unlock()
}

func (e *Engine) setRunning(v bool) {
	e.statusMu.Lock()
	e.status.Running = v
	e.statusMu.Unlock()
}

// Status 返回状态快照，可被其它goroutine并发调用
func (e *Engine) Status() models.EngineStatus {
	e.statusMu.Lock()
	defer e.statusMu.Unlock()
	return e.status
}
