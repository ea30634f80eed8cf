// Package reporter 周期性在控制台打印所有引擎的状态总览表。
package reporter

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"gridmaker/internal/models"
)

// StatusSource 提供全部引擎的最新状态快照
type StatusSource func() []models.EngineStatus

// Reporter 以固定间隔把状态表写到标准输出。
// 表格只读取引擎暴露的快照，不触碰引擎内部状态。
type Reporter struct {
	source   StatusSource
	interval time.Duration
	out      io.Writer
}

// New 创建状态表报告器
func New(source StatusSource, everySec int) *Reporter {
	if everySec <= 0 {
		everySec = 5
	}
	return &Reporter{
		source:   source,
		interval: time.Duration(everySec) * time.Second,
		out:      os.Stdout,
	}
}

// Run 阻塞刷新状态表直到上下文取消
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.render()
		}
	}
}

func (r *Reporter) render() {
	statuses := r.source()
	if len(statuses) == 0 {
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"SYMBOL", "STATE", "POSITION", "ENTRY", "MARK", "IMB", "uPNL", "PNL%", "REALIZED", "ORDERS"})

	for _, s := range statuses {
		state := "RUNNING"
		if !s.Running {
			state = "STOPPED"
		}
		t.AppendRow(table.Row{
			s.Symbol,
			state,
			fmt.Sprintf("%.6f", s.Position.Size),
			fmt.Sprintf("%.4f", s.Position.EntryPrice),
			fmt.Sprintf("%.4f", s.Mark),
			fmt.Sprintf("%+.3f", s.Imbalance),
			fmt.Sprintf("%.4f", s.PnL.UnrealizedPnL),
			fmt.Sprintf("%.2f%%", s.PnL.PnLPercent),
			fmt.Sprintf("%.4f", s.PnL.RealizedPnL),
			s.ActiveOrders,
		})
	}
	t.Render()
}
