package engine

import (
	"math"
	"time"

	"gridmaker/internal/models"
)

// 平仓原因，用于日志与成交流水
const (
	ExitTakeProfit   = "TAKE_PROFIT"
	ExitStopLoss     = "STOP_LOSS"
	ExitTrailingStop = "TRAILING_STOP"
)

// RiskMonitor 逐tick重算持仓盈亏并判定是否触发离场。
// 三个条件按 止盈 -> 止损 -> 移动止损 的固定顺序判定，先触发者生效。
type RiskMonitor struct {
	cfg models.BotConfig

	// 移动止损的峰值盈亏百分比。盈亏转正后开始追踪，空仓时重置。
	peakPnLPercent float64
	armed          bool

	realized float64 // 离场结算累计的已实现盈亏
}

// NewRiskMonitor 创建风控监视器
func NewRiskMonitor(cfg models.BotConfig) *RiskMonitor {
	return &RiskMonitor{cfg: cfg}
}

// Snapshot 根据持仓与标记价格计算当前盈亏。
// 盈亏百分比以开仓保证金名义价值为分母: uPnL / (entry * |size|) * 100。
func (r *RiskMonitor) Snapshot(pos models.Position, mark float64) models.PnLRecord {
	rec := models.PnLRecord{RealizedPnL: r.realized, Time: time.Now()}
	if pos.IsFlat() || pos.EntryPrice <= 0 {
		rec.NetPnL = r.realized
		return rec
	}
	rec.UnrealizedPnL = (mark - pos.EntryPrice) * pos.Size
	rec.PnLPercent = rec.UnrealizedPnL / (pos.EntryPrice * math.Abs(pos.Size)) * 100
	rec.NetPnL = r.realized + rec.UnrealizedPnL
	return rec
}

// Check 判定当前持仓是否应当离场，返回离场原因，空串表示继续持有。
// 空仓时只做峰值重置，不会触发任何条件。
func (r *RiskMonitor) Check(pos models.Position, rec models.PnLRecord) string {
	if pos.IsFlat() {
		r.resetPeak()
		return ""
	}

	if r.cfg.TakeProfitPercent > 0 && rec.PnLPercent >= r.cfg.TakeProfitPercent {
		return ExitTakeProfit
	}
	if r.cfg.StopLossPercent > 0 && rec.PnLPercent <= -r.cfg.StopLossPercent {
		return ExitStopLoss
	}

	if r.cfg.TrailingStopCallback > 0 {
		if rec.PnLPercent > 0 {
			if !r.armed || rec.PnLPercent > r.peakPnLPercent {
				r.armed = true
				r.peakPnLPercent = rec.PnLPercent
			}
		}
		if r.armed && r.peakPnLPercent-rec.PnLPercent > r.cfg.TrailingStopCallback {
			return ExitTrailingStop
		}
	}
	return ""
}

// SettleExit 在离场平仓时结算一次已实现盈亏并重置移动止损状态
func (r *RiskMonitor) SettleExit(unrealized float64) {
	r.realized += unrealized
	r.resetPeak()
}

// Realized 返回累计已实现盈亏
func (r *RiskMonitor) Realized() float64 {
	return r.realized
}

func (r *RiskMonitor) resetPeak() {
	r.armed = false
	r.peakPnLPercent = 0
}
