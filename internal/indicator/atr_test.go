package indicator

import (
	"testing"

	"gridmaker/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkBars(hlc ...[3]float64) []models.Bar {
	bars := make([]models.Bar, 0, len(hlc))
	for _, v := range hlc {
		bars = append(bars, models.Bar{High: v[0], Low: v[1], Close: v[2]})
	}
	return bars
}

func TestATRInsufficientData(t *testing.T) {
	bars := mkBars([3]float64{10, 9, 9.5}, [3]float64{11, 10, 10.5})
	_, err := ATR(bars, 14)
	assert.ErrorIs(t, err, models.ErrInsufficientData)

	// period+1 根刚好够
	bars = mkBars([3]float64{10, 9, 9.5}, [3]float64{11, 10, 10.5}, [3]float64{12, 11, 11.5})
	_, err = ATR(bars, 2)
	assert.NoError(t, err)
}

func TestATRSimpleAverage(t *testing.T) {
	// 每根K线 high-low = 2 且不跳空，TR恒为2
	bars := mkBars(
		[3]float64{12, 10, 11},
		[3]float64{12, 10, 11},
		[3]float64{12, 10, 11},
		[3]float64{12, 10, 11},
	)
	atr, err := ATR(bars, 3)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, atr, 1e-12)
}

func TestATRGapDominates(t *testing.T) {
	// 第二根K线相对前收盘价向上跳空，TR取 |high-prevClose|
	bars := mkBars(
		[3]float64{101, 99, 100},
		[3]float64{110, 108, 109}, // TR = max(2, |110-100|, |108-100|) = 10
		[3]float64{110, 108, 109}, // TR = max(2, 1, 1) = 2
	)
	atr, err := ATR(bars, 2)
	require.NoError(t, err)
	assert.InDelta(t, 6.0, atr, 1e-12)
}

func TestATRNonNegative(t *testing.T) {
	bars := mkBars(
		[3]float64{50000, 49000, 49500},
		[3]float64{49400, 48800, 49000},
		[3]float64{49100, 48000, 48100},
		[3]float64{48100, 48100, 48100}, // 一字线
		[3]float64{48500, 47900, 48400},
	)
	atr, err := ATR(bars, 4)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, atr, 0.0)
}
