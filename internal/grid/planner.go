// Package grid 负责把波动率换算为对称的网格档位。
package grid

import (
	"gridmaker/internal/models"
)

// Planner 根据最新ATR与参考价生成目标网格。
// 间距是自适应的：每次重算都使用最新ATR，波动大时网格变宽，盘整时收窄。
type Planner struct {
	multiplier      float64
	numOfGrids      int
	volatilityFloor float64 // ATR低于该值时退化为tick间距
	tickSize        float64
	minSpacingTicks int
}

// NewPlanner 创建一个网格规划器。tickSize 用于波动率过低时的保底间距。
func NewPlanner(cfg models.BotConfig, tickSize float64) *Planner {
	return &Planner{
		multiplier:      cfg.GridMultiplier,
		numOfGrids:      cfg.NumOfGrids,
		volatilityFloor: cfg.VolatilityThreshold,
		tickSize:        tickSize,
		minSpacingTicks: cfg.MinSpacingTicks,
	}
}

// Spacing 返回给定ATR对应的网格间距。
// ATR为零或低于阈值时回退到tick保底间距，避免生成零宽度的退化网格。
func (p *Planner) Spacing(atr float64) float64 {
	spacing := atr * p.multiplier
	if atr <= 0 || atr <= p.volatilityFloor || spacing <= 0 {
		min := p.tickSize * float64(p.minSpacingTicks)
		if min <= 0 {
			min = p.tickSize
		}
		return min
	}
	return spacing
}

// Plan 以 refPrice 为中心生成 2*numOfGrids 个档位：
// 下方 numOfGrids 个买单档、上方 numOfGrids 个卖单档，逐档间隔 Spacing(atr)。
// 返回顺序为：买单从近到远，随后卖单从近到远。
func (p *Planner) Plan(refPrice, atr float64) []models.PriceLevel {
	spacing := p.Spacing(atr)
	levels := make([]models.PriceLevel, 0, 2*p.numOfGrids)

	for i := 1; i <= p.numOfGrids; i++ {
		levels = append(levels, models.PriceLevel{
			Price: refPrice - float64(i)*spacing,
			Side:  models.Buy,
		})
	}
	for i := 1; i <= p.numOfGrids; i++ {
		levels = append(levels, models.PriceLevel{
			Price: refPrice + float64(i)*spacing,
			Side:  models.Sell,
		})
	}
	return levels
}
