package marketdata

import (
	"context"
	"testing"
	"time"

	"gridmaker/internal/models"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestImbalance(t *testing.T) {
	tests := []struct {
		name     string
		bid, ask float64
		want     float64
	}{
		{"买30卖10", 30, 10, 0.5},
		{"两侧为零", 0, 0, 0},
		{"两侧相等", 5, 5, 0},
		{"只有买盘", 4, 0, 1},
		{"只有卖盘", 0, 4, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Imbalance(tt.bid, tt.ask)
			assert.InDelta(t, tt.want, got, 1e-12)
			assert.GreaterOrEqual(t, got, -1.0)
			assert.LessOrEqual(t, got, 1.0)
		})
	}
}

func TestApplyDepthReplacesSnapshot(t *testing.T) {
	f := NewFeed("BTCUSDT", zap.NewNop().Sugar())

	f.ApplyDepth(models.DepthUpdate{
		Bids: []models.DepthLevel{{Price: 49999, Quantity: 20}, {Price: 49998, Quantity: 10}},
		Asks: []models.DepthLevel{{Price: 50001, Quantity: 10}},
	})

	snap := f.Snapshot()
	assert.Equal(t, 49999.0, snap.BestBid)
	assert.Equal(t, 50001.0, snap.BestAsk)
	assert.Equal(t, 30.0, snap.BidVolume)
	assert.Equal(t, 10.0, snap.AskVolume)
	assert.InDelta(t, 0.5, snap.Imbalance, 1e-12)

	// 后到的更新整体覆盖
	f.ApplyDepth(models.DepthUpdate{
		Bids: []models.DepthLevel{{Price: 50000, Quantity: 1}},
		Asks: []models.DepthLevel{{Price: 50002, Quantity: 1}},
	})
	snap = f.Snapshot()
	assert.Equal(t, 50000.0, snap.BestBid)
	assert.Equal(t, 0.0, snap.Imbalance)
}

func TestApplyTradeUpdatesMarkPrice(t *testing.T) {
	f := NewFeed("ETHUSDT", zap.NewNop().Sugar())
	f.ApplyTrade(models.TradeEvent{Price: 3100.5, Quantity: 0.2})
	assert.Equal(t, 3100.5, f.Snapshot().MarkPrice)

	// 快照读取的是值拷贝，不受后续更新影响
	snap := f.Snapshot()
	f.ApplyTrade(models.TradeEvent{Price: 3200, Quantity: 0.1})
	assert.Equal(t, 3100.5, snap.MarkPrice)
	assert.Equal(t, 3200.0, f.Snapshot().MarkPrice)
}

func TestRunConsumesBothStreams(t *testing.T) {
	f := NewFeed("BTCUSDT", zap.NewNop().Sugar())
	depth := make(chan models.DepthUpdate, 4)
	trades := make(chan models.TradeEvent, 4)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.Run(ctx, depth, trades)
		close(done)
	}()

	depth <- models.DepthUpdate{
		Bids: []models.DepthLevel{{Price: 100, Quantity: 3}},
		Asks: []models.DepthLevel{{Price: 101, Quantity: 1}},
	}
	trades <- models.TradeEvent{Price: 100.5}

	assert.Eventually(t, func() bool {
		snap := f.Snapshot()
		return snap.BestBid == 100 && snap.MarkPrice == 100.5
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run 未随上下文取消退出")
	}
}
