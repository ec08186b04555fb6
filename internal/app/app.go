package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"polyshark/internal/account"
	"polyshark/internal/alerts"
	"polyshark/internal/budget"
	"polyshark/internal/config"
	"polyshark/internal/exec"
	"polyshark/internal/market"
	"polyshark/internal/metrics"
	"polyshark/internal/permission"
	"polyshark/internal/poly/rest"
	"polyshark/internal/poly/ws"
	"polyshark/internal/state"
	"polyshark/internal/state/sqlite"
	"polyshark/internal/strategy"
	"polyshark/internal/timescale"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// App owns every collaborator and runs one decision loop per tracked pair.
// The budget tracker and safety monitor are shared across all pair loops.
type App struct {
	cfg       *config.Config
	log       *zap.Logger
	store     *sqlite.Store
	rest      *rest.Client
	ws        *ws.Client
	market    *market.MarketData
	tracker   *budget.Tracker
	monitor   *strategy.Monitor
	provider  *permission.GrantProvider
	positions *account.Positions
	engine    *Engine
	prom      *metrics.Prometheus
	alerts    *alerts.Telegram
	timescale *timescale.Writer
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.State.SQLitePath), 0o755); err != nil {
		return nil, err
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return nil, err
	}
	restClient := rest.New(cfg.Gamma.BaseURL, cfg.Clob.BaseURL, cfg.Gamma.Timeout, log)
	wsClient := ws.New(cfg.WS.URL, cfg.WS.ReconnectDelay, cfg.WS.PingInterval, log)
	marketData := market.New(restClient, wsClient, log)

	windowLen := time.Duration(cfg.Permission.WindowDays) * 24 * time.Hour
	permitted := cfg.Permission.DailyLimitUSD * float64(cfg.Permission.WindowDays)
	tracker := budget.NewTracker(permitted, windowLen)
	if snap, ok, err := state.LoadBudgetSnapshot(context.Background(), store); err != nil {
		log.Warn("budget snapshot load failed", zap.Error(err))
	} else if ok {
		tracker.Restore(snap.ConsumedUSD, time.UnixMilli(snap.WindowStartMS))
		log.Info("budget window restored",
			zap.Float64("consumed_usd", snap.ConsumedUSD),
			zap.Time("window_start", time.UnixMilli(snap.WindowStartMS)),
		)
	}

	grant, err := loadGrant(context.Background(), store, cfg.Permission, log)
	if err != nil {
		store.Close()
		return nil, err
	}
	provider := permission.NewGrantProvider(grant, tracker.Consumed)

	monitor := strategy.NewMonitor(cfg.Safety.MaxConsecutiveFailures, cfg.Safety.SafeModeCooldown)
	positions := account.NewPositions(account.ExitRules{
		ProfitTargetSpread: cfg.Strategy.ProfitTargetSpread,
		StopLossSpread:     cfg.Strategy.StopLossSpread,
		MaxHoldTime:        cfg.Strategy.MaxHoldTime,
	})

	latency := exec.NewLatencyModel(
		time.Duration(cfg.Trading.LatencyMeanMS)*time.Millisecond,
		cfg.Trading.AdverseMoveStd,
		time.Now().UnixNano(),
	)
	venue := exec.NewSimVenue(latency, cfg.Trading.TakerFeeRate, marketData, log)
	executor := exec.New(venue, store, log)

	var prom *metrics.Prometheus
	counters := metrics.NewNoop()
	if cfg.Metrics.Enabled {
		prom = metrics.NewPrometheus()
		counters = prom.Metrics
	}
	alertsClient := alerts.NewTelegram(cfg.Telegram, log)
	tsWriter, err := timescale.New(cfg.Timescale, log)
	if err != nil {
		store.Close()
		return nil, err
	}

	var sink Sink = NewZapSink(log)
	if tsWriter != nil {
		sink = NewMultiSink(sink, NewTimescaleSink(tsWriter))
	}

	engine := NewEngine(EngineConfig{
		Log:           log,
		Source:        marketData,
		Checker:       strategy.NewConstraintChecker(cfg.Trading.Epsilon),
		Detector:      strategy.NewDetector(strategy.CostModelFromConfig(cfg.Trading), strategy.PolicyFromConfig(cfg.Strategy)),
		Policy:        strategy.PolicyFromConfig(cfg.Strategy),
		Monitor:       monitor,
		Tracker:       tracker,
		Permission:    permission.FailClosed{Inner: provider, Log: log},
		Executor:      executor,
		Positions:     positions,
		Store:         store,
		Metrics:       counters,
		Sink:          sink,
		Alerts:        alertsClient,
		NotionalUSD:   cfg.Trading.TradeSizeUSD,
		MaxDataDelay:  cfg.Safety.MaxDataDelay,
		FetchTimeout:  cfg.Trading.FetchTimeout,
		SubmitTimeout: cfg.Trading.SubmitTimeout,
	})

	return &App{
		cfg:       cfg,
		log:       log,
		store:     store,
		rest:      restClient,
		ws:        wsClient,
		market:    marketData,
		tracker:   tracker,
		monitor:   monitor,
		provider:  provider,
		positions: positions,
		engine:    engine,
		prom:      prom,
		alerts:    alertsClient,
		timescale: tsWriter,
	}, nil
}

// loadGrant prefers a signed grant persisted in the kv store; without one it
// falls back to an unsigned local grant derived from configuration, good for
// one allowance window.
func loadGrant(ctx context.Context, store state.Store, cfg config.PermissionConfig, log *zap.Logger) (permission.Grant, error) {
	record, ok, err := state.LoadGrantRecord(ctx, store)
	if err != nil {
		return permission.Grant{}, fmt.Errorf("load grant record: %w", err)
	}
	if ok {
		grant, err := permission.FromRecord(record)
		if err != nil {
			return permission.Grant{}, fmt.Errorf("parse stored grant: %w", err)
		}
		if err := grant.Verify(); err != nil {
			return permission.Grant{}, fmt.Errorf("stored grant rejected: %w", err)
		}
		log.Info("spend permission loaded",
			zap.String("permission_id", grant.PermissionID),
			zap.String("granter", grant.Granter.Hex()),
			zap.Time("expires_at", grant.ExpiresAt),
		)
		return grant, nil
	}
	now := time.Now()
	grant := permission.Grant{
		PermissionID:  "local",
		DailyLimitUSD: cfg.DailyLimitUSD,
		GrantedAt:     now,
		ExpiresAt:     now.Add(time.Duration(cfg.WindowDays) * 24 * time.Hour),
	}
	if token := strings.TrimSpace(cfg.Token); token != "" {
		grant.Token = common.HexToAddress(token)
	}
	log.Info("no stored grant, using local allowance",
		zap.Float64("daily_limit_usd", cfg.DailyLimitUSD),
		zap.Time("expires_at", grant.ExpiresAt),
	)
	return grant, nil
}

func (a *App) Run(ctx context.Context) error {
	defer a.store.Close()
	defer a.timescale.Close()

	for _, pair := range a.cfg.Trading.Pairs {
		if err := a.market.Track(ctx, pair); err != nil {
			return fmt.Errorf("track pair %s: %w", pair, err)
		}
	}
	if err := a.market.Start(ctx); err != nil {
		return err
	}
	a.timescale.Start(ctx)
	a.startMetricsServer(ctx)
	go a.watchGrant(ctx)

	a.monitor.Start()
	a.log.Info("decision loop starting",
		zap.Strings("pairs", a.cfg.Trading.Pairs),
		zap.Float64("permitted_usd", a.tracker.Permitted()),
		zap.Duration("poll_interval", a.cfg.Trading.PollInterval),
	)

	var wg sync.WaitGroup
	for _, pair := range a.cfg.Trading.Pairs {
		wg.Add(1)
		go func(pair string) {
			defer wg.Done()
			a.pairLoop(ctx, pair)
		}(pair)
	}
	<-ctx.Done()
	wg.Wait()
	a.monitor.Stop()
	return ctx.Err()
}

func (a *App) pairLoop(ctx context.Context, pair string) {
	ticker := time.NewTicker(a.cfg.Trading.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.engine.Cycle(ctx, pair); err != nil && ctx.Err() == nil {
				a.log.Warn("cycle failed", zap.String("pair", pair), zap.Error(err))
			}
		}
	}
}

// watchGrant polls the kv store for an externally renewed grant. A renewal is
// how the loop leaves the permission-expired state.
func (a *App) watchGrant(ctx context.Context) {
	interval := a.cfg.Permission.PollInterval
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			record, ok, err := state.LoadGrantRecord(ctx, a.store)
			if err != nil || !ok {
				continue
			}
			grant, err := permission.FromRecord(record)
			if err != nil || grant.Verify() != nil {
				continue
			}
			current := a.provider.Grant()
			if grant.PermissionID == current.PermissionID && grant.ExpiresAt.Equal(current.ExpiresAt) && grant.Revoked == current.Revoked {
				continue
			}
			a.provider.Renew(grant)
			a.log.Info("spend permission updated",
				zap.String("permission_id", grant.PermissionID),
				zap.Time("expires_at", grant.ExpiresAt),
				zap.Bool("revoked", grant.Revoked),
			)
		}
	}
}

func (a *App) startMetricsServer(ctx context.Context) {
	if a.prom == nil {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.prom.Handler())
	server := &http.Server{Addr: a.cfg.Metrics.Listen, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
}
