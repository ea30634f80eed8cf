package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"gridmaker/internal/config"
	"gridmaker/internal/engine"
	"gridmaker/internal/exchange"
	"gridmaker/internal/journal"
	"gridmaker/internal/logger"
	"gridmaker/internal/models"
	"gridmaker/internal/orchestrator"
	"gridmaker/internal/reporter"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the config file")
	mode := flag.String("mode", "live", "running mode: live or selftest")
	flag.Parse()

	// 先用默认配置初始化日志，保证加载配置阶段也有日志可看
	logger.Init(models.LogConfig{Level: "info", Output: "console"})

	// 加载 .env 文件
	if err := godotenv.Load(); err != nil {
		logger.S().Info("未找到 .env 文件，将从系统环境变量中读取。")
	} else {
		logger.S().Info("成功从 .env 文件加载配置。")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.S().Fatalf("无法加载配置文件: %v", err)
	}

	// 使用文件中的配置重新初始化日志
	logger.Init(cfg.LogConfig)
	defer logger.Sync()

	switch *mode {
	case "live":
		runLiveMode(cfg)
	case "selftest":
		runSelftestMode(cfg)
	default:
		logger.S().Fatalf("未知的运行模式: %s。请选择 'live' 或 'selftest'。", *mode)
	}
}

// newJournal 根据配置选择落盘或内存流水
func newJournal(cfg *models.Config) journal.Repository {
	if cfg.JournalPath == "" {
		return journal.NewMemoryJournal()
	}
	jnl, err := journal.NewBadgerJournal(cfg.JournalPath)
	if err != nil {
		logger.S().Fatalf("打开成交流水数据库失败: %v", err)
	}
	return jnl
}

// runLiveMode 对接币安合约实盘（或测试网）运行全部引擎
func runLiveMode(cfg *models.Config) {
	logger.S().Info("--- 启动实盘交易模式 ---")

	apiKey := os.Getenv("BINANCE_API_KEY")
	secretKey := os.Getenv("BINANCE_SECRET_KEY")
	if apiKey == "" || secretKey == "" {
		logger.S().Fatal("错误：BINANCE_API_KEY 和 BINANCE_SECRET_KEY 环境变量必须被设置。")
	}

	wsBaseURL := cfg.LiveWSURL
	if cfg.IsTestnet {
		wsBaseURL = cfg.TestnetWSURL
		logger.S().Info("正在使用币安测试网...")
	} else {
		logger.S().Info("正在使用币安生产网...")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ex, err := exchange.NewBinanceExchange(ctx, apiKey, secretKey, wsBaseURL, cfg.IsTestnet, logger.Named("exchange"))
	if err != nil {
		logger.S().Fatalf("初始化交易所失败: %v", err)
	}

	jnl := newJournal(cfg)
	defer jnl.Close()

	orch := orchestrator.New(logger.S())
	for _, bc := range cfg.Bots {
		orch.Add(engine.New(bc, ex, jnl, logger.Named(bc.Symbol)))
	}

	rep := reporter.New(orch.Statuses, cfg.ReportEverySec)
	go rep.Run(ctx)

	if err := orch.Run(ctx); err != nil {
		logger.S().Errorf("所有引擎都未能启动: %v", err)
		logger.Sync()
		os.Exit(1)
	}
	logger.S().Info("全部引擎已停止，进程退出。")
}

// runSelftestMode 让全部引擎对接仿真交易所跑一段脚本化行情，
// 验证网格能挂出、成交并自愈。适合在改动后快速确认整条链路。
func runSelftestMode(cfg *models.Config) {
	logger.S().Info("--- 启动自检模式 ---")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	jnl := newJournal(cfg)
	defer jnl.Close()

	orch := orchestrator.New(logger.S())
	sims := make([]*exchange.SimExchange, 0, len(cfg.Bots))
	for _, bc := range cfg.Bots {
		const startPrice = 50000.0
		sim := exchange.NewSimExchange(bc.Symbol, models.InstrumentRules{
			Symbol:   bc.Symbol,
			TickSize: tickFromPrecision(bc.PricePrecision),
			StepSize: "0.001",
			MinQty:   0.001,
		}, startPrice)
		sim.SetBars(selftestBars(bc.ATRPeriod*3+1, startPrice))
		sims = append(sims, sim)
		orch.Add(engine.New(bc, sim, jnl, logger.Named(bc.Symbol)))
	}

	rep := reporter.New(orch.Statuses, 1)
	go rep.Run(ctx)

	// 脚本化行情：先下探触发买单，再回升触发卖单，然后收尾
	go func() {
		path := []float64{49940, 49880, 49820, 49900, 50000, 50080, 50140, 50000}
		time.Sleep(2 * time.Second)
		for _, p := range path {
			for _, sim := range sims {
				sim.SetMarkPrice(p)
			}
			time.Sleep(500 * time.Millisecond)
		}
		time.Sleep(2 * time.Second)
		cancel()
	}()

	if err := orch.Run(ctx); err != nil {
		logger.S().Errorf("自检失败: %v", err)
		logger.Sync()
		os.Exit(1)
	}

	failed := false
	for i, sim := range sims {
		fills := sim.Fills()
		if len(fills) == 0 {
			logger.S().Errorf("[%s] 自检未产生任何成交", cfg.Bots[i].Symbol)
			failed = true
			continue
		}
		logger.S().Infof("[%s] 自检完成: %d 笔成交", cfg.Bots[i].Symbol, len(fills))
	}
	if failed {
		logger.Sync()
		os.Exit(1)
	}
	logger.S().Info("自检通过。")
}

// tickFromPrecision 把配置的价格小数位数换算成步长字符串，如 1 -> "0.1"
func tickFromPrecision(precision int) string {
	if precision <= 0 {
		return "1"
	}
	return "0." + strings.Repeat("0", precision-1) + "1"
}

// selftestBars 生成波幅恒定的K线供ATR预热
func selftestBars(n int, price float64) []models.Bar {
	bars := make([]models.Bar, n)
	start := time.Now().Add(-time.Duration(n) * time.Minute)
	for i := range bars {
		bars[i] = models.Bar{
			OpenTime: start.Add(time.Duration(i) * time.Minute),
			Open:     price,
			High:     price + 25,
			Low:      price - 25,
			Close:    price,
		}
	}
	return bars
}
