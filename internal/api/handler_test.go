package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"execution-core/internal/engine"
	"execution-core/internal/monitor"
	"execution-core/pkg/db"
	"execution-core/pkg/exchanges/common"
	"execution-core/pkg/retry"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubGateway answers every call without touching the network.
type stubGateway struct {
	mu       sync.Mutex
	nextID   int64
	price    float64
	statuses map[int64]common.OrderStatus
}

func newStubGateway() *stubGateway {
	return &stubGateway{nextID: 5000, price: 100, statuses: make(map[int64]common.OrderStatus)}
}

func (g *stubGateway) SubmitOrder(_ context.Context, req common.OrderRequest) (common.OrderResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextID++
	status := common.StatusPending
	if req.Type == common.OrderTypeMarket {
		status = common.StatusFilled
	}
	g.statuses[g.nextID] = status
	return common.OrderResult{OrderID: g.nextID, ClientID: req.ClientID, Status: status, AvgPrice: g.price}, nil
}

func (g *stubGateway) CancelOrder(_ context.Context, _ string, orderID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses[orderID] = common.StatusCanceled
	return nil
}

func (g *stubGateway) GetOrderStatus(_ context.Context, symbol string, orderID int64) (common.OrderDetail, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	status, ok := g.statuses[orderID]
	if !ok {
		return common.OrderDetail{}, fmt.Errorf("order %d not found", orderID)
	}
	return common.OrderDetail{OrderID: orderID, Symbol: symbol, Status: status, AvgPrice: g.price}, nil
}

func (g *stubGateway) TickerPrice(_ context.Context, _ string) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.price, nil
}

func (g *stubGateway) RecentCandles(_ context.Context, _ string, _ string, limit int) ([]common.Candle, error) {
	candles := make([]common.Candle, limit)
	now := time.Now()
	for i := range candles {
		candles[i] = common.Candle{
			OpenTime: now.Add(time.Duration(i-limit) * time.Minute),
			Open:     100, High: 100, Low: 100, Close: 100, Volume: 100,
		}
	}
	return candles, nil
}

func (g *stubGateway) SetLeverage(_ context.Context, _ string, _ int) error { return nil }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}

	policy := retry.NewPolicy()
	policy.MaxAttempts = 1

	eng := engine.New(engine.Config{
		Gateway: newStubGateway(),
		Ledger:  database.Ledger(),
		Retry:   policy,
		Monitor: monitor.Config{
			CheckInterval:     50 * time.Millisecond,
			EmergencyInterval: 25 * time.Millisecond,
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
	eng.Start(context.Background())
	t.Cleanup(eng.Shutdown)
	return NewServer(eng)
}

func do(s *Server, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := do(s, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d", w.Code)
	}
}

func TestPlaceAndGetOrder(t *testing.T) {
	s := newTestServer(t)

	w := do(s, http.MethodPost, "/api/orders", gin.H{
		"symbol":   "BTCUSDT",
		"side":     "BUY",
		"type":     "LIMIT",
		"intent":   "ENTRY",
		"quantity": 1,
		"price":    99.9,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("place status = %d, body = %s", w.Code, w.Body.String())
	}
	var result common.OrderResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.OrderID == 0 || result.Status != common.StatusPending {
		t.Fatalf("result = %+v", result)
	}

	w = do(s, http.MethodGet, fmt.Sprintf("/api/orders/%d", result.OrderID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestPlaceOrderBadRequest(t *testing.T) {
	s := newTestServer(t)
	w := do(s, http.MethodPost, "/api/orders", gin.H{"side": "BUY", "quantity": 1})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestPlaceOrderRiskRejection(t *testing.T) {
	s := newTestServer(t)
	// Buying above the market fails validation.
	w := do(s, http.MethodPost, "/api/orders", gin.H{
		"symbol":   "BTCUSDT",
		"side":     "BUY",
		"type":     "LIMIT",
		"quantity": 1,
		"price":    105,
	})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422, body = %s", w.Code, w.Body.String())
	}
}

func TestPlaceOrderExplicitZeroStrength(t *testing.T) {
	s := newTestServer(t)

	// An explicit zero is a real, very weak signal and must queue at
	// LOW priority, not be treated as if no strength was sent.
	w := do(s, http.MethodPost, "/api/orders", gin.H{
		"symbol":   "BTCUSDT",
		"side":     "BUY",
		"type":     "LIMIT",
		"intent":   "ENTRY",
		"quantity": 1,
		"price":    99.9,
		"strength": 0,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("place status = %d, body = %s", w.Code, w.Body.String())
	}

	w = do(s, http.MethodGet, "/api/status", nil)
	var st engine.Status
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.Queue["LOW"] != 1 {
		t.Errorf("queue = %v, want the order at LOW priority", st.Queue)
	}
}

func TestCancelOrder(t *testing.T) {
	s := newTestServer(t)

	w := do(s, http.MethodPost, "/api/orders", gin.H{
		"symbol":   "BTCUSDT",
		"side":     "BUY",
		"type":     "LIMIT",
		"quantity": 1,
		"price":    99.9,
	})
	var result common.OrderResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}

	w = do(s, http.MethodPost, fmt.Sprintf("/api/orders/%d/cancel?symbol=BTCUSDT", result.OrderID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("cancel status = %d, body = %s", w.Code, w.Body.String())
	}

	w = do(s, http.MethodGet, fmt.Sprintf("/api/orders/%d", result.OrderID), nil)
	var rec db.OrderRecord
	if err := json.Unmarshal(w.Body.Bytes(), &rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if rec.Status != common.StatusCanceled {
		t.Errorf("status = %s, want CANCELED", rec.Status)
	}
}

func TestSystemStatusEndpoint(t *testing.T) {
	s := newTestServer(t)
	w := do(s, http.MethodGet, "/api/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var st engine.Status
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.Queue == nil {
		t.Error("queue summary missing")
	}
}

func TestPerformanceEndpoints(t *testing.T) {
	s := newTestServer(t)
	if w := do(s, http.MethodGet, "/api/performance", nil); w.Code != http.StatusOK {
		t.Errorf("performance status = %d", w.Code)
	}
	if w := do(s, http.MethodGet, "/api/performance/suggestions", nil); w.Code != http.StatusOK {
		t.Errorf("suggestions status = %d", w.Code)
	}
	if w := do(s, http.MethodGet, "/api/tuner", nil); w.Code != http.StatusOK {
		t.Errorf("tuner status = %d", w.Code)
	}
}
