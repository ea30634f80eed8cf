package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gridmaker/internal/models"
)

// stubRunner 模拟一个引擎：可配置启动即失败或正常阻塞到取消
type stubRunner struct {
	symbol   string
	failWith error
}

func (s *stubRunner) Run(ctx context.Context) error {
	if s.failWith != nil {
		return s.failWith
	}
	<-ctx.Done()
	return nil
}

func (s *stubRunner) Status() models.EngineStatus {
	return models.EngineStatus{Symbol: s.symbol}
}

func TestRunWithNoEngines(t *testing.T) {
	o := New(zap.NewNop().Sugar())
	assert.ErrorIs(t, o.Run(context.Background()), ErrNoEngineStarted)
}

func TestSingleEngineFailureIsIsolated(t *testing.T) {
	o := New(zap.NewNop().Sugar())
	o.Add(&stubRunner{symbol: "BTCUSDT", failWith: errors.New("auth rejected")})
	o.Add(&stubRunner{symbol: "ETHUSDT"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	// 一个引擎失败后另一个仍在运行
	time.Sleep(50 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestAllEnginesFailing(t *testing.T) {
	o := New(zap.NewNop().Sugar())
	o.Add(&stubRunner{symbol: "BTCUSDT", failWith: errors.New("boom")})
	o.Add(&stubRunner{symbol: "ETHUSDT", failWith: errors.New("boom")})

	assert.ErrorIs(t, o.Run(context.Background()), ErrNoEngineStarted)
}

func TestStatusesCoverAllEngines(t *testing.T) {
	o := New(zap.NewNop().Sugar())
	o.Add(&stubRunner{symbol: "BTCUSDT"})
	o.Add(&stubRunner{symbol: "ETHUSDT"})

	statuses := o.Statuses()
	require.Len(t, statuses, 2)
	assert.Equal(t, "BTCUSDT", statuses[0].Symbol)
	assert.Equal(t, "ETHUSDT", statuses[1].Symbol)
}
