package config

import (
	"encoding/json"
	"fmt"
	"os"

	"gridmaker/internal/models"
)

// 缺省值：与原策略参数保持一致
const (
	defaultATRPeriod         = 14
	defaultKlineInterval     = "1m"
	defaultMinSpacingTicks   = 1
	defaultRetryAttempts     = 3
	defaultReconcileInterval = 500
	defaultRiskInterval      = 1000
	defaultRedrawInterval    = 15000
	defaultReportEverySec    = 5
)

// Load 从指定路径加载JSON配置文件，填充缺省值并做基本校验
func Load(path string) (*models.Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	cfg := &models.Config{}
	if err := json.NewDecoder(file).Decode(cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if len(cfg.Bots) == 0 {
		return nil, fmt.Errorf("配置中未定义任何交易对 (bots 为空)")
	}
	if cfg.ReportEverySec <= 0 {
		cfg.ReportEverySec = defaultReportEverySec
	}

	seen := make(map[string]bool, len(cfg.Bots))
	for i := range cfg.Bots {
		b := &cfg.Bots[i]
		applyDefaults(b)
		if err := validate(b); err != nil {
			return nil, err
		}
		if seen[b.Symbol] {
			return nil, fmt.Errorf("交易对 %s 配置重复", b.Symbol)
		}
		seen[b.Symbol] = true
	}
	return cfg, nil
}

func applyDefaults(b *models.BotConfig) {
	if b.ATRPeriod <= 0 {
		b.ATRPeriod = defaultATRPeriod
	}
	if b.KlineInterval == "" {
		b.KlineInterval = defaultKlineInterval
	}
	if b.MinSpacingTicks <= 0 {
		b.MinSpacingTicks = defaultMinSpacingTicks
	}
	if b.RetryAttempts <= 0 {
		b.RetryAttempts = defaultRetryAttempts
	}
	if b.ReconcileIntervalMs <= 0 {
		b.ReconcileIntervalMs = defaultReconcileInterval
	}
	if b.RiskIntervalMs <= 0 {
		b.RiskIntervalMs = defaultRiskInterval
	}
	if b.RedrawIntervalMs <= 0 {
		b.RedrawIntervalMs = defaultRedrawInterval
	}
	if b.Leverage <= 0 {
		b.Leverage = 1
	}
}

func validate(b *models.BotConfig) error {
	switch {
	case b.Symbol == "":
		return fmt.Errorf("bots[]: symbol 不能为空")
	case b.Volume <= 0:
		return fmt.Errorf("%s: volume 必须为正", b.Symbol)
	case b.GridMultiplier <= 0:
		return fmt.Errorf("%s: grid_multiplier 必须为正", b.Symbol)
	case b.NumOfGrids <= 0:
		return fmt.Errorf("%s: num_of_grids 必须为正", b.Symbol)
	case b.TakeProfitPercent <= 0:
		return fmt.Errorf("%s: take_profit_percent 必须为正", b.Symbol)
	case b.StopLossPercent <= 0:
		return fmt.Errorf("%s: stop_loss_percent 必须为正", b.Symbol)
	case b.TrailingStopCallback < 0:
		return fmt.Errorf("%s: trailing_stop_callback 不能为负", b.Symbol)
	case b.VolatilityThreshold < 0:
		return fmt.Errorf("%s: volatility_threshold 不能为负", b.Symbol)
	}
	return nil
}
