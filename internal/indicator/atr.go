// Package indicator 提供纯函数形式的波动率指标计算。
package indicator

import (
	"math"

	"gridmaker/internal/models"
)

// DefaultATRPeriod 是ATR的默认回看周期
const DefaultATRPeriod = 14

// ATR 计算给定K线序列的平均真实波幅。
// 真实波幅 TR_i = max(high-low, |high-prevClose|, |low-prevClose|)，
// ATR 取最近 period 个 TR 的算术平均。
// 至少需要 period+1 根K线，否则返回 models.ErrInsufficientData。
func ATR(bars []models.Bar, period int) (float64, error) {
	if period <= 0 {
		period = DefaultATRPeriod
	}
	if len(bars) < period+1 {
		return 0, models.ErrInsufficientData
	}

	trs := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		trs = append(trs, trueRange(bars[i], bars[i-1].Close))
	}

	// 只取窗口内最近 period 个TR
	window := trs[len(trs)-period:]
	var sum float64
	for _, tr := range window {
		sum += tr
	}
	return sum / float64(period), nil
}

func trueRange(bar models.Bar, prevClose float64) float64 {
	hl := bar.High - bar.Low
	hc := math.Abs(bar.High - prevClose)
	lc := math.Abs(bar.Low - prevClose)
	return math.Max(hl, math.Max(hc, lc))
}
