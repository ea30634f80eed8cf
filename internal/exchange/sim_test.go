package exchange

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridmaker/internal/models"
)

func newTestSim() *SimExchange {
	rules := models.InstrumentRules{TickSize: "0.1", StepSize: "0.001", MinQty: 0.001}
	return NewSimExchange("BTCUSDT", rules, 50000)
}

func TestSimPlaceAndRestLimitOrder(t *testing.T) {
	sim := newTestSim()
	ctx := context.Background()

	order, err := sim.PlaceOrder(ctx, models.OrderRequest{
		Symbol: "BTCUSDT", Side: models.Buy, Price: 49900, Quantity: 0.01,
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderOpen, order.Status)

	open, err := sim.GetOpenOrders(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestSimCrossingFillsOnPlacement(t *testing.T) {
	sim := newTestSim()
	ctx := context.Background()

	// 买单价格高于当前标记价，下单即成交
	order, err := sim.PlaceOrder(ctx, models.OrderRequest{
		Symbol: "BTCUSDT", Side: models.Buy, Price: 50100, Quantity: 0.01,
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderFilled, order.Status)

	pos, err := sim.GetPosition(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.InDelta(t, 0.01, pos.Size, 1e-9)
	assert.InDelta(t, 50100, pos.EntryPrice, 1e-9)
}

func TestSimMarkPriceTriggersFill(t *testing.T) {
	sim := newTestSim()
	ctx := context.Background()

	order, err := sim.PlaceOrder(ctx, models.OrderRequest{
		Symbol: "BTCUSDT", Side: models.Buy, Price: 49900, Quantity: 0.01,
	})
	require.NoError(t, err)

	sim.SetMarkPrice(49850)

	got, err := sim.GetOrder(ctx, "BTCUSDT", order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderFilled, got.Status)

	pos, err := sim.GetPosition(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.InDelta(t, 0.01, pos.Size, 1e-9)
	// 限价单按挂单价成交，不是触发时的标记价
	assert.InDelta(t, 49900, pos.EntryPrice, 1e-9)
}

func TestSimMarketOrderClosesPosition(t *testing.T) {
	sim := newTestSim()
	ctx := context.Background()

	_, err := sim.PlaceOrder(ctx, models.OrderRequest{
		Symbol: "BTCUSDT", Side: models.Buy, Price: 0, Quantity: 0.01,
	})
	require.NoError(t, err)

	sim.SetMarkPrice(50500)
	_, err = sim.PlaceOrder(ctx, models.OrderRequest{
		Symbol: "BTCUSDT", Side: models.Sell, Price: 0, Quantity: 0.01, ReduceOnly: true,
	})
	require.NoError(t, err)

	pos, err := sim.GetPosition(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.True(t, pos.IsFlat())

	fills := sim.Fills()
	require.Len(t, fills, 2)
	assert.InDelta(t, 500*0.01, fills[1].RealizedPnL, 1e-9)
	assert.InDelta(t, 500*0.01, sim.Realized(), 1e-9)
}

func TestSimAveragesEntryOnSameSideFills(t *testing.T) {
	sim := newTestSim()
	ctx := context.Background()

	_, err := sim.PlaceOrder(ctx, models.OrderRequest{
		Symbol: "BTCUSDT", Side: models.Buy, Price: 0, Quantity: 0.01,
	})
	require.NoError(t, err)

	sim.SetMarkPrice(49000)
	_, err = sim.PlaceOrder(ctx, models.OrderRequest{
		Symbol: "BTCUSDT", Side: models.Buy, Price: 0, Quantity: 0.01,
	})
	require.NoError(t, err)

	pos, err := sim.GetPosition(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.InDelta(t, 0.02, pos.Size, 1e-9)
	assert.InDelta(t, 49500, pos.EntryPrice, 1e-9)
}

func TestSimCancelIsIdempotent(t *testing.T) {
	sim := newTestSim()
	ctx := context.Background()

	order, err := sim.PlaceOrder(ctx, models.OrderRequest{
		Symbol: "BTCUSDT", Side: models.Sell, Price: 50100, Quantity: 0.01,
	})
	require.NoError(t, err)

	require.NoError(t, sim.CancelOrder(ctx, "BTCUSDT", order.ID))
	require.NoError(t, sim.CancelOrder(ctx, "BTCUSDT", order.ID))
	require.NoError(t, sim.CancelOrder(ctx, "BTCUSDT", 99999))

	got, err := sim.GetOrder(ctx, "BTCUSDT", order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, got.Status)
}

func TestSimFailureInjection(t *testing.T) {
	sim := newTestSim()
	ctx := context.Background()
	sim.FailNextPlaceOrders(2)

	_, err := sim.PlaceOrder(ctx, models.OrderRequest{Symbol: "BTCUSDT", Side: models.Buy, Price: 49900, Quantity: 0.01})
	require.Error(t, err)
	assert.True(t, models.IsRetryable(err))

	_, err = sim.PlaceOrder(ctx, models.OrderRequest{Symbol: "BTCUSDT", Side: models.Buy, Price: 49900, Quantity: 0.01})
	require.Error(t, err)

	order, err := sim.PlaceOrder(ctx, models.OrderRequest{Symbol: "BTCUSDT", Side: models.Buy, Price: 49900, Quantity: 0.01})
	require.NoError(t, err)
	assert.Equal(t, models.OrderOpen, order.Status)
}

func TestSimRejectInjection(t *testing.T) {
	sim := newTestSim()
	ctx := context.Background()
	sim.RejectNextPlaceOrders(1)

	order, err := sim.PlaceOrder(ctx, models.OrderRequest{Symbol: "BTCUSDT", Side: models.Buy, Price: 49900, Quantity: 0.01})
	require.NoError(t, err)
	assert.Equal(t, models.OrderRejected, order.Status)

	open, err := sim.GetOpenOrders(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestSimTradeSubscriptionReceivesMarkUpdates(t *testing.T) {
	sim := newTestSim()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := sim.SubscribeTrades(ctx, "BTCUSDT")
	require.NoError(t, err)

	sim.SetMarkPrice(50050)
	ev := <-ch
	assert.InDelta(t, 50050, ev.Price, 1e-9)
}
