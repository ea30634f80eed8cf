package grid

import (
	"testing"

	"gridmaker/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseConfig() models.BotConfig {
	return models.BotConfig{
		Symbol:          "BTCUSDT",
		GridMultiplier:  0.5,
		NumOfGrids:      2,
		MinSpacingTicks: 1,
	}
}

// ATR=100, multiplier=1, ref=50000, n=2 时
// 买单 {49900, 49800}，卖单 {50100, 50200}
func TestPlanSymmetricLevels(t *testing.T) {
	cfg := baseConfig()
	cfg.GridMultiplier = 1
	p := NewPlanner(cfg, 0.1)
	levels := p.Plan(50000, 100)

	require.Len(t, levels, 4)
	assert.Equal(t, models.PriceLevel{Price: 49900, Side: models.Buy}, levels[0])
	assert.Equal(t, models.PriceLevel{Price: 49800, Side: models.Buy}, levels[1])
	assert.Equal(t, models.PriceLevel{Price: 50100, Side: models.Sell}, levels[2])
	assert.Equal(t, models.PriceLevel{Price: 50200, Side: models.Sell}, levels[3])
}

func TestPlanCounts(t *testing.T) {
	cfg := baseConfig()
	cfg.NumOfGrids = 5
	p := NewPlanner(cfg, 0.1)
	levels := p.Plan(3000, 12)

	require.Len(t, levels, 10)
	var buys, sells int
	for _, lv := range levels {
		switch lv.Side {
		case models.Buy:
			buys++
			assert.Less(t, lv.Price, 3000.0)
		case models.Sell:
			sells++
			assert.Greater(t, lv.Price, 3000.0)
		}
	}
	assert.Equal(t, 5, buys)
	assert.Equal(t, 5, sells)
}

func TestPlanAdjacentSpacing(t *testing.T) {
	p := NewPlanner(baseConfig(), 0.1)
	levels := p.Plan(50000, 80)
	want := 80 * 0.5

	// 买单从近到远递减，卖单从近到远递增
	assert.InDelta(t, want, levels[0].Price-levels[1].Price, 1e-9)
	assert.InDelta(t, want, levels[3].Price-levels[2].Price, 1e-9)
	assert.InDelta(t, want, 50000-levels[0].Price, 1e-9)
	assert.InDelta(t, want, levels[2].Price-50000, 1e-9)
}

func TestSpacingFallsBackOnLowVolatility(t *testing.T) {
	cfg := baseConfig()
	cfg.VolatilityThreshold = 0.5
	cfg.MinSpacingTicks = 3
	p := NewPlanner(cfg, 0.1)

	// ATR为零
	assert.InDelta(t, 0.3, p.Spacing(0), 1e-12)
	// ATR低于阈值
	assert.InDelta(t, 0.3, p.Spacing(0.4), 1e-12)
	// ATR高于阈值则正常取 ATR*multiplier
	assert.InDelta(t, 0.5, p.Spacing(1.0), 1e-12)
}

func TestSpacingAdaptsToVolatility(t *testing.T) {
	p := NewPlanner(baseConfig(), 0.1)
	calm := p.Plan(50000, 10)
	wild := p.Plan(50000, 200)

	calmWidth := calm[len(calm)-1].Price - calm[0].Price
	wildWidth := wild[len(wild)-1].Price - wild[0].Price
	assert.Greater(t, wildWidth, calmWidth)
}
