package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"execution-core/internal/monitor"
	"execution-core/internal/risk"
	"execution-core/internal/scheduler"
	"execution-core/pkg/db"
	"execution-core/pkg/exchanges/common"
	"execution-core/pkg/retry"
)

type fakeGateway struct {
	mu        sync.Mutex
	nextID    int64
	price     float64
	statuses  map[int64]common.OrderStatus
	submitted []common.OrderRequest
	canceled  []int64
	cancelErr error
	submitErr error
	leverage  map[string]int
}

func newFakeGateway(price float64) *fakeGateway {
	return &fakeGateway{
		nextID:   1000,
		price:    price,
		statuses: make(map[int64]common.OrderStatus),
		leverage: make(map[string]int),
	}
}

func (g *fakeGateway) SubmitOrder(_ context.Context, req common.OrderRequest) (common.OrderResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.submitErr != nil {
		return common.OrderResult{}, g.submitErr
	}
	g.nextID++
	g.submitted = append(g.submitted, req)

	status := common.StatusPending
	if req.Type == common.OrderTypeMarket {
		status = common.StatusFilled
	}
	g.statuses[g.nextID] = status
	return common.OrderResult{
		OrderID:  g.nextID,
		ClientID: req.ClientID,
		Status:   status,
		AvgPrice: g.price,
	}, nil
}

func (g *fakeGateway) CancelOrder(_ context.Context, _ string, orderID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancelErr != nil {
		return g.cancelErr
	}
	g.canceled = append(g.canceled, orderID)
	g.statuses[orderID] = common.StatusCanceled
	return nil
}

func (g *fakeGateway) GetOrderStatus(_ context.Context, symbol string, orderID int64) (common.OrderDetail, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	status, ok := g.statuses[orderID]
	if !ok {
		status = common.StatusPending
	}
	return common.OrderDetail{
		OrderID:  orderID,
		Symbol:   symbol,
		Status:   status,
		AvgPrice: g.price,
	}, nil
}

func (g *fakeGateway) TickerPrice(_ context.Context, _ string) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.price, nil
}

func (g *fakeGateway) RecentCandles(_ context.Context, _ string, _ string, limit int) ([]common.Candle, error) {
	g.mu.Lock()
	price := g.price
	g.mu.Unlock()

	candles := make([]common.Candle, limit)
	now := time.Now()
	for i := range candles {
		candles[i] = common.Candle{
			OpenTime: now.Add(time.Duration(i-limit) * time.Minute),
			Open:     price,
			High:     price,
			Low:      price,
			Close:    price,
			Volume:   100,
		}
	}
	return candles, nil
}

func (g *fakeGateway) SetLeverage(_ context.Context, symbol string, leverage int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.leverage[symbol] = leverage
	return nil
}

func (g *fakeGateway) submittedReqs() []common.OrderRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]common.OrderRequest, len(g.submitted))
	copy(out, g.submitted)
	return out
}

func (g *fakeGateway) canceledIDs() []int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]int64, len(g.canceled))
	copy(out, g.canceled)
	return out
}

func (g *fakeGateway) setStatus(orderID int64, status common.OrderStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses[orderID] = status
}

func newTestLedger(t *testing.T) *db.Ledger {
	t.Helper()
	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}
	return database.Ledger()
}

func newTestEngine(t *testing.T, gw *fakeGateway) *Engine {
	t.Helper()
	policy := retry.NewPolicy()
	policy.MaxAttempts = 2
	policy.BaseDelay = time.Millisecond

	e := New(Config{
		Gateway:   gw,
		Ledger:    newTestLedger(t),
		Scheduler: scheduler.New(1),
		Retry:     policy,
		Monitor: monitor.Config{
			CheckInterval:     10 * time.Millisecond,
			EmergencyInterval: 5 * time.Millisecond,
			Entry: monitor.TypeConfig{
				PriceAwayThreshold:   0.005,
				Timeout:              time.Minute,
				RapidChangeThreshold: 0.5,
				RapidChangeWindow:    time.Second,
			},
			TakeProfit: monitor.TypeConfig{
				PriceAwayThreshold:   0.005,
				Timeout:              time.Minute,
				RapidChangeThreshold: 0.5,
				RapidChangeWindow:    time.Second,
			},
		},
	})
	e.Start(context.Background())
	t.Cleanup(e.Shutdown)
	return e
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestPlaceOrderRejectedByRiskGate(t *testing.T) {
	gw := newFakeGateway(100)
	e := newTestEngine(t, gw)

	// Buying above the market violates the directional sanity check.
	_, err := e.PlaceOrder(context.Background(), common.OrderRequest{
		Symbol:   "BTCUSDT",
		Side:     common.SideBuy,
		Type:     common.OrderTypeLimit,
		Intent:   common.IntentEntry,
		Quantity: 1,
		Price:    101,
	})
	var verr *risk.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("PlaceOrder error = %v, want validation error", err)
	}
	if len(gw.submittedReqs()) != 0 {
		t.Error("rejected order reached the exchange")
	}
}

func TestPlaceOrderCapacityLimit(t *testing.T) {
	gw := newFakeGateway(100)
	e := newTestEngine(t, gw)

	first, err := e.PlaceOrder(context.Background(), common.OrderRequest{
		Symbol:   "BTCUSDT",
		Side:     common.SideBuy,
		Type:     common.OrderTypeLimit,
		Intent:   common.IntentEntry,
		Quantity: 1,
		Price:    99.9,
	})
	if err != nil {
		t.Fatalf("first PlaceOrder: %v", err)
	}
	if first.Status != common.StatusPending {
		t.Fatalf("first order status = %s, want PENDING", first.Status)
	}

	_, err = e.PlaceOrder(context.Background(), common.OrderRequest{
		Symbol:   "ETHUSDT",
		Side:     common.SideBuy,
		Type:     common.OrderTypeLimit,
		Intent:   common.IntentEmergencyClose,
		Quantity: 1,
		Price:    99.9,
		Urgent:   true,
	})
	if !errors.Is(err, ErrSchedulerFull) {
		t.Fatalf("second PlaceOrder error = %v, want ErrSchedulerFull", err)
	}
}

func TestMarketEntryOpensPositionWithStop(t *testing.T) {
	gw := newFakeGateway(100)
	e := newTestEngine(t, gw)

	result, err := e.PlaceOrder(context.Background(), common.OrderRequest{
		Symbol:   "BTCUSDT",
		Side:     common.SideBuy,
		Type:     common.OrderTypeMarket,
		Intent:   common.IntentEntry,
		Quantity: 1,
		Leverage: 10,
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if result.Status != common.StatusFilled {
		t.Fatalf("status = %s, want FILLED", result.Status)
	}

	positions := e.Positions()
	if len(positions) != 1 {
		t.Fatalf("open positions = %d, want 1", len(positions))
	}
	pos := positions[0]
	if pos.Side != common.PositionLong || pos.EntryPrice != 100 {
		t.Errorf("position = %+v", pos)
	}

	// The entry and its protective stop both reached the gateway.
	reqs := gw.submittedReqs()
	if len(reqs) != 2 {
		t.Fatalf("submitted %d orders, want entry + stop", len(reqs))
	}
	stop := reqs[1]
	if stop.Type != common.OrderTypeStopMarket || !stop.ReduceOnly || stop.Side != common.SideSell {
		t.Errorf("stop order = %+v", stop)
	}
	want := 100 - pos.StopLossDist
	if stop.StopPrice != want {
		t.Errorf("stop price = %v, want %v", stop.StopPrice, want)
	}

	// Capacity freed once the market order settled.
	if e.sched.Full() {
		t.Error("scheduler still full after market fill")
	}
}

func TestExitFillClosesPositionAndRecordsTrade(t *testing.T) {
	gw := newFakeGateway(100)
	e := newTestEngine(t, gw)
	ctx := context.Background()

	if _, err := e.PlaceOrder(ctx, common.OrderRequest{
		Symbol:   "BTCUSDT",
		Side:     common.SideBuy,
		Type:     common.OrderTypeMarket,
		Intent:   common.IntentEntry,
		Quantity: 2,
	}); err != nil {
		t.Fatalf("entry: %v", err)
	}

	gw.mu.Lock()
	gw.price = 105
	gw.mu.Unlock()
	e.prices.Set("BTCUSDT", 105)

	if _, err := e.PlaceOrder(ctx, common.OrderRequest{
		Symbol:     "BTCUSDT",
		Side:       common.SideSell,
		Type:       common.OrderTypeMarket,
		Intent:     common.IntentTakeProfit,
		Quantity:   2,
		ReduceOnly: true,
	}); err != nil {
		t.Fatalf("exit: %v", err)
	}

	if got := len(e.Positions()); got != 0 {
		t.Fatalf("open positions = %d, want 0", got)
	}
	metrics := e.Performance()
	if metrics.TotalTrades != 1 {
		t.Fatalf("trades = %d, want 1", metrics.TotalTrades)
	}
	if metrics.TotalProfit != 10 { // (105-100) * 2
		t.Errorf("profit = %v, want 10", metrics.TotalProfit)
	}
}

func TestCancelOrderIsSynchronous(t *testing.T) {
	gw := newFakeGateway(100)
	e := newTestEngine(t, gw)
	ctx := context.Background()

	result, err := e.PlaceOrder(ctx, common.OrderRequest{
		Symbol:   "BTCUSDT",
		Side:     common.SideBuy,
		Type:     common.OrderTypeLimit,
		Intent:   common.IntentEntry,
		Quantity: 1,
		Price:    99.9,
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	if err := e.CancelOrder(ctx, "BTCUSDT", result.OrderID); err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}

	rec, err := e.ledger.GetOrder(ctx, result.OrderID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if rec.Status != common.StatusCanceled {
		t.Errorf("ledger status = %s, want CANCELED", rec.Status)
	}
	if e.monitor.Watching(result.OrderID) {
		t.Error("watcher survived cancel")
	}
	if e.sched.Full() {
		t.Error("scheduler slot not released")
	}
}

func TestCancelFailureLeavesOrderPending(t *testing.T) {
	gw := newFakeGateway(100)
	e := newTestEngine(t, gw)
	ctx := context.Background()

	result, err := e.PlaceOrder(ctx, common.OrderRequest{
		Symbol:   "BTCUSDT",
		Side:     common.SideBuy,
		Type:     common.OrderTypeLimit,
		Intent:   common.IntentEntry,
		Quantity: 1,
		Price:    99.9,
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	gw.mu.Lock()
	gw.cancelErr = &common.RejectedError{Op: "cancel", Code: -2011, Reason: "unknown order"}
	gw.mu.Unlock()

	if err := e.CancelOrder(ctx, "BTCUSDT", result.OrderID); err == nil {
		t.Fatal("CancelOrder succeeded despite exchange rejection")
	}
	rec, err := e.ledger.GetOrder(ctx, result.OrderID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if rec.Status != common.StatusPending {
		t.Errorf("ledger status = %s, want PENDING", rec.Status)
	}
}

func TestModifyOrderPrice(t *testing.T) {
	gw := newFakeGateway(100)
	e := newTestEngine(t, gw)
	ctx := context.Background()

	orig, err := e.PlaceOrder(ctx, common.OrderRequest{
		Symbol:   "BTCUSDT",
		Side:     common.SideBuy,
		Type:     common.OrderTypeLimit,
		Intent:   common.IntentEntry,
		Quantity: 1,
		Price:    99.9,
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	replacement, err := e.ModifyOrderPrice(ctx, orig.OrderID, 99.8)
	if err != nil {
		t.Fatalf("ModifyOrderPrice: %v", err)
	}
	if replacement.OrderID == orig.OrderID {
		t.Fatal("replacement reused the original order id")
	}

	rec, err := e.ledger.GetOrder(ctx, replacement.OrderID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if rec.OrderPrice != 99.8 {
		t.Errorf("replacement price = %v, want 99.8", rec.OrderPrice)
	}
	old, err := e.ledger.GetOrder(ctx, orig.OrderID)
	if err != nil {
		t.Fatalf("GetOrder original: %v", err)
	}
	if old.Status != common.StatusCanceled {
		t.Errorf("original status = %s, want CANCELED", old.Status)
	}
}

func TestRestoreReArmsPendingOrders(t *testing.T) {
	gw := newFakeGateway(100)
	e := newTestEngine(t, gw)
	ctx := context.Background()

	// Two rows left behind by a previous run: one still resting, one
	// that filled while the process was down.
	stillPending := db.OrderRecord{
		OrderID: 1, Symbol: "BTCUSDT", Side: common.SideBuy,
		OrderPrice: 99.9, Quantity: 1, Timestamp: time.Now(),
		Status: common.StatusPending,
		Info:   db.OrderInfo{Intent: common.IntentEntry},
	}
	filledWhileDown := db.OrderRecord{
		OrderID: 2, Symbol: "ETHUSDT", Side: common.SideBuy,
		OrderPrice: 100, Quantity: 1, Timestamp: time.Now(),
		Status: common.StatusPending,
		Info:   db.OrderInfo{Intent: common.IntentEntry},
	}
	for _, rec := range []db.OrderRecord{stillPending, filledWhileDown} {
		if err := e.ledger.SaveOrder(ctx, rec); err != nil {
			t.Fatalf("seed ledger: %v", err)
		}
	}
	gw.setStatus(1, common.StatusPending)
	gw.setStatus(2, common.StatusFilled)

	if err := e.Restore(ctx); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	if !e.monitor.Watching(1) {
		t.Error("resting order not re-armed")
	}
	if e.monitor.Watching(2) {
		t.Error("filled order put under watch")
	}
	rec, err := e.ledger.GetOrder(ctx, 2)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if rec.Status != common.StatusFilled {
		t.Errorf("reconciled status = %s, want FILLED", rec.Status)
	}
	if len(e.Positions()) != 1 {
		t.Errorf("positions = %d, want 1 from reconciled fill", len(e.Positions()))
	}
}

func TestRestoreLeavesProtectiveStopsUnwatched(t *testing.T) {
	gw := newFakeGateway(100)
	e := newTestEngine(t, gw)
	ctx := context.Background()

	// A protective stop still resting on the exchange and one that
	// filled while the process was down. Neither belongs under watch:
	// a watcher would eventually cancel the stop and market-close a
	// healthy position.
	resting := db.OrderRecord{
		OrderID: 7, Symbol: "BTCUSDT", Side: common.SideSell,
		Quantity: 1, Timestamp: time.Now(), Status: common.StatusPending,
		Info: db.OrderInfo{
			Intent:     common.IntentStopLoss,
			OrderType:  string(common.OrderTypeStopMarket),
			StopPrice:  99.5,
			ReduceOnly: true,
		},
	}
	filledWhileDown := db.OrderRecord{
		OrderID: 8, Symbol: "ETHUSDT", Side: common.SideSell,
		Quantity: 1, Timestamp: time.Now(), Status: common.StatusPending,
		Info: db.OrderInfo{
			Intent:     common.IntentStopLoss,
			OrderType:  string(common.OrderTypeStopMarket),
			StopPrice:  99.5,
			ReduceOnly: true,
		},
	}
	for _, rec := range []db.OrderRecord{resting, filledWhileDown} {
		if err := e.ledger.SaveOrder(ctx, rec); err != nil {
			t.Fatalf("seed ledger: %v", err)
		}
	}
	gw.setStatus(7, common.StatusPending)
	gw.setStatus(8, common.StatusFilled)

	if err := e.Restore(ctx); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	if e.monitor.Watching(7) || e.monitor.Watching(8) {
		t.Error("protective stop put under watch")
	}
	if e.sched.Full() {
		t.Error("protective stop consumed a scheduler slot")
	}
	if len(gw.canceledIDs()) != 0 {
		t.Error("restore canceled a protective stop")
	}
	if len(gw.submittedReqs()) != 0 {
		t.Error("restore submitted a replacement order")
	}

	rec, err := e.ledger.GetOrder(ctx, 7)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if rec.Status != common.StatusPending {
		t.Errorf("resting stop status = %s, want PENDING", rec.Status)
	}
	rec, err = e.ledger.GetOrder(ctx, 8)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if rec.Status != common.StatusFilled {
		t.Errorf("filled stop status = %s, want FILLED", rec.Status)
	}
}

func TestCloseReleasesProtectiveStop(t *testing.T) {
	gw := newFakeGateway(100)
	e := newTestEngine(t, gw)
	ctx := context.Background()

	if _, err := e.PlaceOrder(ctx, common.OrderRequest{
		Symbol:   "BTCUSDT",
		Side:     common.SideBuy,
		Type:     common.OrderTypeMarket,
		Intent:   common.IntentEntry,
		Quantity: 1,
		Leverage: 10,
	}); err != nil {
		t.Fatalf("entry: %v", err)
	}

	reqs := gw.submittedReqs()
	if len(reqs) != 2 || reqs[1].Type != common.OrderTypeStopMarket {
		t.Fatalf("expected entry + stop, got %d submissions", len(reqs))
	}
	stopID := int64(1002) // second order the fake gateway accepted

	gw.mu.Lock()
	gw.price = 105
	gw.mu.Unlock()
	e.prices.Set("BTCUSDT", 105)

	if _, err := e.PlaceOrder(ctx, common.OrderRequest{
		Symbol:     "BTCUSDT",
		Side:       common.SideSell,
		Type:       common.OrderTypeMarket,
		Intent:     common.IntentTakeProfit,
		Quantity:   1,
		ReduceOnly: true,
	}); err != nil {
		t.Fatalf("exit: %v", err)
	}

	canceled := gw.canceledIDs()
	if len(canceled) != 1 || canceled[0] != stopID {
		t.Fatalf("canceled = %v, want the resting stop %d", canceled, stopID)
	}
	rec, err := e.ledger.GetOrder(ctx, stopID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if rec.Status != common.StatusCanceled {
		t.Errorf("stop ledger status = %s, want CANCELED", rec.Status)
	}
}

func TestCleanupReconcilesStopRows(t *testing.T) {
	gw := newFakeGateway(100)
	e := newTestEngine(t, gw)
	ctx := context.Background()

	stop := db.OrderRecord{
		OrderID: 9, Symbol: "BTCUSDT", Side: common.SideSell,
		Quantity: 1, Timestamp: time.Now(), Status: common.StatusPending,
		Info: db.OrderInfo{
			Intent:     common.IntentStopLoss,
			OrderType:  string(common.OrderTypeStopMarket),
			StopPrice:  99.5,
			ReduceOnly: true,
		},
	}
	if err := e.ledger.SaveOrder(ctx, stop); err != nil {
		t.Fatalf("seed ledger: %v", err)
	}
	gw.setStatus(9, common.StatusFilled)

	if _, err := e.CleanupOldOrders(ctx, time.Hour); err != nil {
		t.Fatalf("CleanupOldOrders: %v", err)
	}

	rec, err := e.ledger.GetOrder(ctx, 9)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if rec.Status != common.StatusFilled {
		t.Errorf("stop status = %s, want FILLED after reconciliation", rec.Status)
	}
}

func TestExpiredOrderSettlesAsExpired(t *testing.T) {
	gw := newFakeGateway(100)
	e := newTestEngine(t, gw)

	result, err := e.PlaceOrder(context.Background(), common.OrderRequest{
		Symbol:   "BTCUSDT",
		Side:     common.SideBuy,
		Type:     common.OrderTypeLimit,
		Intent:   common.IntentEntry,
		Quantity: 1,
		Price:    99.9,
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	gw.setStatus(result.OrderID, common.StatusExpired)

	waitFor(t, func() bool { return !e.monitor.Watching(result.OrderID) }, "watcher survived expiry")

	rec, err := e.ledger.GetOrder(context.Background(), result.OrderID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if rec.Status != common.StatusExpired {
		t.Errorf("ledger status = %s, want EXPIRED", rec.Status)
	}
	if len(e.Positions()) != 0 {
		t.Error("expired order opened a position")
	}
}

func TestMonitorFillFlowsBackToEngine(t *testing.T) {
	gw := newFakeGateway(100)
	e := newTestEngine(t, gw)

	result, err := e.PlaceOrder(context.Background(), common.OrderRequest{
		Symbol:   "BTCUSDT",
		Side:     common.SideBuy,
		Type:     common.OrderTypeLimit,
		Intent:   common.IntentEntry,
		Quantity: 1,
		Price:    99.9,
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	gw.setStatus(result.OrderID, common.StatusFilled)

	waitFor(t, func() bool { return len(e.Positions()) == 1 }, "fill never settled into a position")
	waitFor(t, func() bool { return !e.monitor.Watching(result.OrderID) }, "watcher survived the fill")

	rec, err := e.ledger.GetOrder(context.Background(), result.OrderID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if rec.Status != common.StatusFilled {
		t.Errorf("ledger status = %s, want FILLED", rec.Status)
	}
}

func TestEvaluateStopsClosesBreachedPosition(t *testing.T) {
	gw := newFakeGateway(100)
	e := newTestEngine(t, gw)
	ctx := context.Background()

	if _, err := e.PlaceOrder(ctx, common.OrderRequest{
		Symbol:   "BTCUSDT",
		Side:     common.SideBuy,
		Type:     common.OrderTypeMarket,
		Intent:   common.IntentEntry,
		Quantity: 1,
		Leverage: 10,
	}); err != nil {
		t.Fatalf("entry: %v", err)
	}

	// Drop the mark price through the stop level.
	gw.mu.Lock()
	gw.price = 90
	gw.mu.Unlock()
	e.prices.Set("BTCUSDT", 90)

	e.EvaluateStops(ctx)

	if got := len(e.Positions()); got != 0 {
		t.Fatalf("open positions = %d, want 0 after stop", got)
	}
	metrics := e.Performance()
	if metrics.TotalTrades != 1 {
		t.Errorf("trades = %d, want 1", metrics.TotalTrades)
	}
}

func TestSystemStatus(t *testing.T) {
	gw := newFakeGateway(100)
	e := newTestEngine(t, gw)
	ctx := context.Background()

	if _, err := e.PlaceOrder(ctx, common.OrderRequest{
		Symbol:   "BTCUSDT",
		Side:     common.SideBuy,
		Type:     common.OrderTypeLimit,
		Intent:   common.IntentEntry,
		Quantity: 1,
		Price:    99.9,
	}); err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	st, err := e.SystemStatus(ctx)
	if err != nil {
		t.Fatalf("SystemStatus: %v", err)
	}
	if st.Orders["PENDING"] != 1 {
		t.Errorf("pending orders = %d, want 1", st.Orders["PENDING"])
	}
	if st.Queue["total"] != 1 {
		t.Errorf("queue total = %d, want 1", st.Queue["total"])
	}
	if st.Watchers != 1 {
		t.Errorf("watchers = %d, want 1", st.Watchers)
	}
}
