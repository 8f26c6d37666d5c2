package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"execution-core/internal/api"
	"execution-core/internal/engine"
	"execution-core/internal/events"
	"execution-core/internal/monitor"
	"execution-core/internal/position"
	"execution-core/internal/risk"
	"execution-core/internal/scheduler"
	"execution-core/pkg/config"
	"execution-core/pkg/db"
	futusdt "execution-core/pkg/exchanges/binance/futures_usdt"
	"execution-core/pkg/exchanges/common"
	"execution-core/pkg/exchanges/dryrun"
	"execution-core/pkg/retry"
	"execution-core/pkg/stream"
)

const stopCheckInterval = time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	exec, err := config.LoadExecutionConfig(cfg.ExecutionConfigPath)
	if err != nil {
		log.Fatalf("load execution config: %v", err)
	}

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf("apply migrations: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var gateway common.Gateway
	var sim *dryrun.Gateway
	if cfg.DryRun {
		sim = dryrun.New()
		gateway = sim
		log.Println("main: dry-run gateway active, no real orders will be placed")
	} else {
		client := futusdt.NewClient(futusdt.Config{
			APIKey:    cfg.BinanceAPIKey,
			APISecret: cfg.BinanceAPISecret,
			Testnet:   cfg.BinanceTestnet,
		})
		client.StartTimeSync(ctx)
		gateway = client
	}

	bus := events.NewBus()
	defer bus.Close()

	policy := retry.NewPolicy()
	policy.MaxAttempts = exec.Retry.MaxAttempts
	policy.BaseDelay = exec.Retry.BaseDelay.Std()
	policy.Multiplier = exec.Retry.Multiplier
	policy.MaxDelay = exec.Retry.MaxDelay.Std()

	eng := engine.New(engine.Config{
		Gateway:   gateway,
		Ledger:    database.Ledger(),
		Bus:       bus,
		Positions: position.NewStore(cfg.StopLossROI),
		Scheduler: scheduler.New(exec.Scheduler.MaxPendingOrders),
		Risk: risk.NewGate(risk.Config{
			MaxPriceDeviation: exec.Risk.MaxPriceDeviation,
			MinStopDistance:   exec.Risk.MinStopDistance,
			MaxStopDistance:   exec.Risk.MaxStopDistance,
			MaxVolatility:     exec.Risk.MaxVolatility,
			MinVolumeRatio:    exec.Risk.MinVolumeRatio,
		}),
		Monitor:         monitorConfig(exec),
		Retry:           policy,
		DefaultLeverage: cfg.Leverage,
	})
	eng.Start(ctx)
	defer eng.Shutdown()

	if err := eng.Restore(ctx); err != nil {
		log.Printf("main: restore pending orders: %v", err)
	}

	onPrice := eng.UpdatePrice
	if sim != nil {
		// The mark price stream drives the simulator's fills too.
		onPrice = func(symbol string, price float64) {
			sim.SetPrice(symbol, price)
			eng.UpdatePrice(symbol, price)
		}
	}
	feed := stream.NewFeed(cfg.BinanceTestnet, cfg.Symbols, onPrice)
	go feed.Run(ctx)

	go watchAlerts(ctx, bus)
	go runMaintenance(ctx, eng, cfg)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: api.NewServer(eng).Router,
	}
	go func() {
		log.Printf("main: listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("main: http server: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Println("main: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("main: http shutdown: %v", err)
	}
}

func monitorConfig(exec *config.ExecutionConfig) monitor.Config {
	return monitor.Config{
		CheckInterval:     exec.Monitor.CheckInterval.Std(),
		EmergencyInterval: exec.Monitor.EmergencyInterval.Std(),
		Entry: monitor.TypeConfig{
			PriceAwayThreshold:   exec.Monitor.Entry.PriceAwayThreshold,
			Timeout:              exec.Monitor.Entry.Timeout.Std(),
			RapidChangeThreshold: exec.Monitor.Entry.RapidChangeThreshold,
			RapidChangeWindow:    exec.Monitor.Entry.RapidChangeWindow.Std(),
		},
		TakeProfit: monitor.TypeConfig{
			PriceAwayThreshold:   exec.Monitor.TakeProfit.PriceAwayThreshold,
			Timeout:              exec.Monitor.TakeProfit.Timeout.Std(),
			RapidChangeThreshold: exec.Monitor.TakeProfit.RapidChangeThreshold,
			RapidChangeWindow:    exec.Monitor.TakeProfit.RapidChangeWindow.Std(),
		},
	}
}

// watchAlerts mirrors critical alerts into the process log so they
// survive even with no UI attached.
func watchAlerts(ctx context.Context, bus *events.Bus) {
	alerts, unsub := bus.Subscribe(events.EventCriticalAlert, 16)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-alerts:
			if !ok {
				return
			}
			if alert, isAlert := payload.(events.Alert); isAlert {
				log.Printf("main: CRITICAL ALERT %s: %s", alert.Symbol, alert.Message)
			}
		}
	}
}

// runMaintenance drives the periodic stop-loss backstop and ledger
// cleanup.
func runMaintenance(ctx context.Context, eng *engine.Engine, cfg *config.Config) {
	stopTicker := time.NewTicker(stopCheckInterval)
	defer stopTicker.Stop()

	cleanupEvery := time.Duration(cfg.CleanupIntervalHours) * time.Hour
	if cleanupEvery <= 0 {
		cleanupEvery = time.Hour
	}
	cleanupTicker := time.NewTicker(cleanupEvery)
	defer cleanupTicker.Stop()

	retention := time.Duration(cfg.CleanupRetentionDays) * 24 * time.Hour

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopTicker.C:
			eng.EvaluateStops(ctx)
		case <-cleanupTicker.C:
			if _, err := eng.CleanupOldOrders(ctx, retention); err != nil {
				log.Printf("main: order cleanup: %v", err)
			}
		}
	}
}
