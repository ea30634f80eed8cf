// Package marketdata 把深度与逐笔成交两路事件流合成为最新行情快照。
package marketdata

import (
	"context"
	"sync"
	"time"

	"gridmaker/internal/models"

	"go.uber.org/zap"
)

// Feed 维护某个交易对的 MarketSnapshot。
// 快照整体替换、按事件到达顺序逐路应用（各字段 last-write-wins），
// 不排队历史快照，消费方通过 Snapshot() 读取值拷贝。
type Feed struct {
	symbol string
	logger *zap.SugaredLogger

	mu   sync.RWMutex
	snap models.MarketSnapshot
}

// NewFeed 创建一个行情快照维护器
func NewFeed(symbol string, logger *zap.SugaredLogger) *Feed {
	return &Feed{symbol: symbol, logger: logger}
}

// Run 消费两路事件流直到上下文取消或两路均关闭。
// 每路流由独立goroutine推进，互不阻塞。
func (f *Feed) Run(ctx context.Context, depth <-chan models.DepthUpdate, trades <-chan models.TradeEvent) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case du, ok := <-depth:
				if !ok {
					return
				}
				f.ApplyDepth(du)
			}
		}
	}()

	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case te, ok := <-trades:
				if !ok {
					return
				}
				f.ApplyTrade(te)
			}
		}
	}()

	wg.Wait()
	f.logger.Debugf("%s 行情流已结束", f.symbol)
}

// ApplyDepth 用一次深度推送更新快照
func (f *Feed) ApplyDepth(du models.DepthUpdate) {
	var bidVol, askVol float64
	for _, lv := range du.Bids {
		bidVol += lv.Quantity
	}
	for _, lv := range du.Asks {
		askVol += lv.Quantity
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(du.Bids) > 0 {
		f.snap.BestBid = du.Bids[0].Price
	}
	if len(du.Asks) > 0 {
		f.snap.BestAsk = du.Asks[0].Price
	}
	f.snap.BidVolume = bidVol
	f.snap.AskVolume = askVol
	f.snap.Imbalance = Imbalance(bidVol, askVol)
	f.snap.UpdatedAt = f.eventTime(du.Time)
}

// ApplyTrade 用一笔逐笔成交更新快照。
// 没有独立标记价格推送时，以最新成交价作为参考价。
func (f *Feed) ApplyTrade(te models.TradeEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap.MarkPrice = te.Price
	f.snap.UpdatedAt = f.eventTime(te.Time)
}

// SetMarkPrice 直接设置标记价格（REST查询结果回填时使用）
func (f *Feed) SetMarkPrice(price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap.MarkPrice = price
	f.snap.UpdatedAt = time.Now()
}

// Snapshot 返回当前快照的值拷贝
func (f *Feed) Snapshot() models.MarketSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.snap
}

func (f *Feed) eventTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}

// Imbalance 计算盘口失衡度 (bidVolume-askVolume)/(bidVolume+askVolume)。
// 两侧深度均为零时定义为0。
func Imbalance(bidVolume, askVolume float64) float64 {
	total := bidVolume + askVolume
	if total == 0 {
		return 0
	}
	return (bidVolume - askVolume) / total
}
