package reporter

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"gridmaker/internal/models"
)

func TestRenderIncludesEverySymbol(t *testing.T) {
	statuses := []models.EngineStatus{
		{Symbol: "BTCUSDT", Running: true, Mark: 50000, ActiveOrders: 4,
			Position: models.Position{Size: 0.01, EntryPrice: 49900},
			PnL:      models.PnLRecord{UnrealizedPnL: 1, PnLPercent: 0.2}},
		{Symbol: "ETHUSDT", Running: false},
	}

	var buf bytes.Buffer
	r := New(func() []models.EngineStatus { return statuses }, 5)
	r.out = &buf
	r.render()

	out := buf.String()
	assert.Contains(t, out, "BTCUSDT")
	assert.Contains(t, out, "ETHUSDT")
	assert.Contains(t, out, "RUNNING")
	assert.Contains(t, out, "STOPPED")
	// 每个引擎一行
	assert.Equal(t, 2, strings.Count(out, "USDT"))
}

func TestRenderSkipsWhenEmpty(t *testing.T) {
	var buf bytes.Buffer
	r := New(func() []models.EngineStatus { return nil }, 0)
	r.out = &buf
	r.render()
	assert.Empty(t, buf.String())
}
