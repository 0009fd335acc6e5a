package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures required fields are present.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return errors.New("env is required")
	}
	if cfg.Exchange.BaseURL == "" {
		return errors.New("exchange.baseURL is required")
	}
	if cfg.BaseAsset == "" {
		return errors.New("baseAsset is required")
	}
	for _, m := range cfg.Markets {
		if !strings.Contains(m, "-") {
			return fmt.Errorf("market %q must be of the form BASE-ASSET (e.g. BTC-LTC)", m)
		}
	}
	if cfg.Aggregator.IntervalSec <= 0 {
		return errors.New("aggregator.intervalSec must be > 0")
	}
	if cfg.Aggregator.PollShortSec <= 0 || cfg.Aggregator.PollLongSec <= 0 {
		return errors.New("aggregator poll cadence must be > 0")
	}
	if cfg.Aggregator.StaleThreshold < 0 {
		return errors.New("aggregator.staleThreshold must be >= 0")
	}
	if cfg.Aggregator.NewEntryThreshold < 0 {
		return errors.New("aggregator.newEntryThreshold must be >= 0")
	}
	if cfg.Executor.RetryBudget <= 0 {
		return errors.New("executor.retryBudget must be > 0")
	}
	if cfg.Executor.BackoffSec < 0 || cfg.Executor.ConfirmDelaySec < 0 {
		return errors.New("executor backoff durations must be >= 0")
	}
	if cfg.Executor.BufferPercent < 0 || cfg.Executor.BufferPercent > 100 {
		return errors.New("executor.bufferPercent must be within [0,100]")
	}
	if cfg.Executor.Scale < 0 {
		return errors.New("executor.scale must be >= 0")
	}
	if cfg.Tradebot.Enabled {
		// 无凭证可以只做行情归集，要交易就必须有
		if cfg.Exchange.APIKey == "" && cfg.Exchange.CredentialsFile == "" {
			return errors.New("exchange.apiKey or exchange.credentialsFile is required when tradebot is enabled")
		}
		if cfg.Tradebot.BaseQuantity <= 0 {
			return errors.New("tradebot.baseQuantity must be > 0 when tradebot is enabled")
		}
		if cfg.Tradebot.VolumeSpike <= 1 {
			return errors.New("tradebot.volumeSpike must be > 1")
		}
		if cfg.Tradebot.Lookback <= 0 {
			return errors.New("tradebot.lookback must be > 0")
		}
	}
	if cfg.Store.Path == "" {
		return errors.New("store.path is required")
	}
	return nil
}
