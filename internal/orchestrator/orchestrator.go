// Package orchestrator 并发运行多个交易对引擎并隔离彼此的故障。
package orchestrator

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"gridmaker/internal/models"
)

// ErrNoEngineStarted 表示所有引擎都在启动阶段失败，进程应以非零码退出
var ErrNoEngineStarted = errors.New("no engine started successfully")

// Runner 是 Orchestrator 看到的引擎最小接口
type Runner interface {
	Run(ctx context.Context) error
	Status() models.EngineStatus
}

// Orchestrator 为每个引擎启动一个goroutine。
// 单个引擎失败只记录日志并退出自己的goroutine，不影响其它交易对。
type Orchestrator struct {
	logger  *zap.SugaredLogger
	engines []Runner
}

// New 创建编排器
func New(logger *zap.SugaredLogger) *Orchestrator {
	return &Orchestrator{logger: logger}
}

// Add 注册一个引擎，必须在 Run 之前调用
func (o *Orchestrator) Add(e Runner) {
	o.engines = append(o.engines, e)
}

// Statuses 返回全部引擎的状态快照，供状态表刷新
func (o *Orchestrator) Statuses() []models.EngineStatus {
	out := make([]models.EngineStatus, 0, len(o.engines))
	for _, e := range o.engines {
		out = append(out, e.Status())
	}
	return out
}

// Run 阻塞运行所有引擎直到上下文取消。
// 仅当所有引擎都以错误结束时返回 ErrNoEngineStarted。
func (o *Orchestrator) Run(ctx context.Context) error {
	if len(o.engines) == 0 {
		return ErrNoEngineStarted
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	failed := 0

	for _, e := range o.engines {
		wg.Add(1)
		go func(r Runner) {
			defer wg.Done()
			if err := r.Run(ctx); err != nil {
				o.logger.Errorf("[%s] 引擎异常退出: %v", r.Status().Symbol, err)
				mu.Lock()
				failed++
				mu.Unlock()
			}
		}(e)
	}
	wg.Wait()

	if failed == len(o.engines) {
		return ErrNoEngineStarted
	}
	return nil
}
