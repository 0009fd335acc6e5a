// crocket 守护进程：按市场归集成交历史为区间指标，
// 可选地由指标驱动自动交易。
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"crocket-go/config"
	"crocket-go/creds"
	"crocket-go/feed"
	"crocket-go/gateway"
	"crocket-go/logger"
	"crocket-go/market"
	"crocket-go/metrics"
	"crocket-go/order"
	"crocket-go/store"
	"crocket-go/tradebot"
	"crocket-go/wallet"
)

func main() {
	configPath := flag.String("config", "config.yaml", "配置文件路径")
	flag.Parse()

	// .env 不存在不算错，生产环境用真实环境变量。
	_ = godotenv.Load()

	cfg, err := config.LoadWithEnvOverrides(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, *configPath, log); err != nil && err != context.Canceled {
		log.Fatal("daemon exited", zap.Error(err))
	}
	log.Info("daemon stopped")
}

func run(cfg config.AppConfig, configPath string, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	key, secret, err := resolveCredentials(cfg.Exchange)
	if err != nil {
		return err
	}

	client := gateway.NewClient(gateway.ClientConfig{
		BaseURL:        cfg.Exchange.BaseURL,
		APIKey:         key,
		APISecret:      secret,
		RequestTimeout: time.Duration(cfg.Exchange.RequestTimeoutSec) * time.Second,
		Limiter:        gateway.NewTokenBucket(cfg.Exchange.RateLimit, cfg.Exchange.RateBurst),
	})

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	collector := metrics.NewCollector()
	metrics.Serve(cfg.Monitor.MetricsAddr)

	var hub *feed.Hub
	if cfg.Monitor.FeedAddr != "" {
		hub = feed.NewHub(log.Named("feed"))
		hub.Serve(cfg.Monitor.FeedAddr)
	}

	markets := cfg.Markets
	if len(markets) == 0 {
		infos, err := client.GetMarkets(ctx)
		if err != nil {
			return err
		}
		markets = gateway.FilterMarkets(infos, cfg.BaseAsset)
		log.Info("markets discovered from exchange",
			zap.String("baseAsset", cfg.BaseAsset), zap.Int("count", len(markets)))
	}
	if len(markets) == 0 {
		return fmt.Errorf("no markets to track")
	}

	led := wallet.New(cfg.BaseAsset)
	if key != "" {
		bal, err := client.GetBalance(ctx, cfg.BaseAsset)
		if err != nil {
			return err
		}
		led.Set(cfg.BaseAsset, bal)
		log.Info("wallet seeded", zap.String("asset", cfg.BaseAsset), zap.String("balance", bal.String()))
	}

	exec := order.NewExecutor(client, led, order.ExecutorConfig{
		RetryBudget:   cfg.Executor.RetryBudget,
		Backoff:       cfg.Executor.Backoff(),
		ConfirmDelay:  cfg.Executor.ConfirmDelay(),
		BufferPercent: decimal.NewFromFloat(cfg.Executor.BufferPercent),
		Scale:         cfg.Executor.Scale,
		BaseAsset:     cfg.BaseAsset,
	}, log.Named("executor"))

	var wg sync.WaitGroup

	// 只要交易参数配了就建好 bot，enabled 开关支持热更新。
	var bot *tradebot.Bot
	if cfg.Tradebot.BaseQuantity > 0 {
		bot = tradebot.New(
			&countingExecutor{inner: exec, c: collector},
			db,
			tradebot.Config{
				Enabled:       cfg.Tradebot.Enabled,
				BaseQuantity:  decimal.NewFromFloat(cfg.Tradebot.BaseQuantity),
				VolumeSpike:   decimal.NewFromFloat(cfg.Tradebot.VolumeSpike),
				Lookback:      cfg.Tradebot.Lookback,
				TakeProfitPct: decimal.NewFromFloat(cfg.Tradebot.TakeProfitPct),
				StopLossPct:   decimal.NewFromFloat(cfg.Tradebot.StopLossPct),
			},
			log.Named("tradebot"),
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = bot.Run(ctx)
		}()
	}

	// 每个市场一个聚合协程，指标经 sink 落库、经 publisher 推给
	// 在线订阅方与交易决策。
	aggCfg := market.AggregatorConfig{
		Interval:          cfg.Aggregator.Interval(),
		PollShort:         cfg.Aggregator.PollShort(),
		PollLong:          cfg.Aggregator.PollLong(),
		StaleThreshold:    cfg.Aggregator.StaleThreshold,
		NewEntryThreshold: cfg.Aggregator.NewEntryThreshold,
		Scale:             cfg.Executor.Scale,
	}
	pub := fanoutPublisher{hub: hub, bot: bot, c: collector}
	for _, mkt := range markets {
		src := &countingSource{inner: client, c: collector}
		agg := market.NewAggregator(mkt, src, db, pub, aggCfg, log.Named("aggregator"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := agg.Run(ctx); err != nil && err != context.Canceled {
				log.Error("aggregator stopped", zap.Error(err))
			}
		}()
	}

	// 配置热更新：只接受运行期可安全调整的字段。
	watcher := config.Watcher{Path: configPath}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = watcher.Start(ctx, func(next config.AppConfig) {
			exec.SetBufferPercent(decimal.NewFromFloat(next.Executor.BufferPercent))
			if bot != nil {
				bot.SetEnabled(next.Tradebot.Enabled)
			}
			log.Info("config reloaded",
				zap.Float64("bufferPercent", next.Executor.BufferPercent),
				zap.Bool("tradebot", next.Tradebot.Enabled))
		})
	}()

	// 钱包余额打点。
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for asset, amount := range led.Snapshot() {
					f, _ := amount.Float64()
					collector.WalletBalance.WithLabelValues(asset).Set(f)
				}
			}
		}
	}()

	notifySystemd(ctx, &wg, log)

	log.Info("daemon started",
		zap.Strings("markets", markets),
		zap.Bool("tradebot", cfg.Tradebot.Enabled))

	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

// resolveCredentials 取 API 凭证：明文配置优先，否则解密凭证文件。
// 两者都没有时以只读模式运行（仅行情归集）。
func resolveCredentials(cfg config.ExchangeConfig) (string, string, error) {
	if cfg.APIKey != "" {
		return cfg.APIKey, cfg.APISecret, nil
	}
	if cfg.CredentialsFile == "" {
		return "", "", nil
	}
	pass := os.Getenv("CROCKET_CREDS_PASSPHRASE")
	if pass == "" {
		return "", "", fmt.Errorf("credentialsFile set but CROCKET_CREDS_PASSPHRASE is empty")
	}
	c, err := creds.Open(cfg.CredentialsFile, pass)
	if err != nil {
		return "", "", err
	}
	return c.Key, c.Secret, nil
}

// notifySystemd 上报就绪并维持看门狗心跳；非 systemd 环境是空操作。
func notifySystemd(ctx context.Context, wg *sync.WaitGroup, log *zap.Logger) {
	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warn("sd_notify failed", zap.Error(err))
	} else if ok {
		log.Info("systemd notified ready")
	}

	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	}()
}

// countingSource 包装行情源，为 REST 调用、新成交与断档计数。
// 断档判定与窗口一致：上次见过的最大成交 ID 不在本页里。
type countingSource struct {
	inner   market.TapeSource
	c       *metrics.Collector
	maxSeen int64
}

func (s *countingSource) GetMarketHistory(ctx context.Context, mkt string) ([]market.Trade, error) {
	s.c.RestCalls.WithLabelValues("getmarkethistory").Inc()
	page, err := s.inner.GetMarketHistory(ctx, mkt)
	if err != nil {
		s.c.RestErrors.WithLabelValues("getmarkethistory").Inc()
		return nil, err
	}

	fresh := 0
	anchored := s.maxSeen == 0
	for _, t := range page {
		if t.ID > s.maxSeen {
			fresh++
		}
		if t.ID == s.maxSeen {
			anchored = true
		}
	}
	if fresh > 0 {
		s.c.TradesMerged.WithLabelValues(mkt).Add(float64(fresh))
	}
	if !anchored && len(page) > 0 {
		s.c.TapeGaps.WithLabelValues(mkt).Inc()
	}
	for _, t := range page {
		if t.ID > s.maxSeen {
			s.maxSeen = t.ID
		}
	}
	return page, nil
}

// fanoutPublisher 把区间指标同时推给 WebSocket 订阅方与交易决策。
type fanoutPublisher struct {
	hub *feed.Hub
	bot *tradebot.Bot
	c   *metrics.Collector
}

func (p fanoutPublisher) Publish(mkt string, m market.IntervalMetrics) {
	p.c.IntervalsEmitted.WithLabelValues(mkt).Inc()
	if p.hub != nil {
		p.hub.Publish(mkt, m)
	}
	if p.bot != nil {
		p.bot.Publish(mkt, m)
	}
}

// countingExecutor 为订单结局计数。
type countingExecutor struct {
	inner *order.Executor
	c     *metrics.Collector
}

func (e *countingExecutor) Execute(ctx context.Context, o order.Order) (order.Order, error) {
	done, err := e.inner.Execute(ctx, o)
	switch {
	case err == nil:
		e.c.OrdersCompleted.WithLabelValues(string(done.Side)).Inc()
	case order.IsAbort(err):
		e.c.OrdersSkipped.Inc()
	case order.IsFatal(err):
		e.c.OrdersFatal.Inc()
	}
	return done, err
}
