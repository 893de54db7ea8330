package aster

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/betbot/hedgex/internal/domain"
	"github.com/betbot/hedgex/pkg/sdk/httpx"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(Config{
		BaseURL:   srv.URL,
		APIKey:    "test-key",
		APISecret: "test-secret",
		Symbol:    "BTCUSDT",
	})
	c.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return c
}

func TestSignParamsDeterministic(t *testing.T) {
	paramStr, sig := signParams("secret", map[string]string{
		"symbol":    "BTCUSDT",
		"timestamp": "1700000000000",
		"side":      "BUY",
	})
	// 键名必须排序，否则服务端验签失败
	if paramStr != "side=BUY&symbol=BTCUSDT&timestamp=1700000000000" {
		t.Fatalf("paramStr = %s", paramStr)
	}
	if len(sig) != 64 {
		t.Fatalf("signature length = %d, want 64 hex chars", len(sig))
	}
	_, sig2 := signParams("secret", map[string]string{
		"timestamp": "1700000000000",
		"side":      "BUY",
		"symbol":    "BTCUSDT",
	})
	if sig != sig2 {
		t.Fatalf("signature not order independent: %s vs %s", sig, sig2)
	}
}

func TestSubmitOrderSignsAndParsesID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != pathOrder || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-MBX-APIKEY") != "test-key" {
			t.Errorf("missing api key header")
		}
		q := r.URL.Query()
		if q.Get("signature") == "" || q.Get("timestamp") == "" {
			t.Errorf("unsigned request: %s", r.URL.RawQuery)
		}
		if q.Get("symbol") != "BTCUSDT" || q.Get("type") != "MARKET" {
			t.Errorf("unexpected params: %s", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode(map[string]any{"orderId": 123456, "status": "NEW"})
	})

	id, raw, err := c.SubmitOrder(context.Background(), domain.OrderRequest{
		Instrument: "BTCUSDT", Side: domain.SideBuy, Size: 0.02, Type: domain.OrderTypeMarket,
	})
	if err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}
	if id != "123456" {
		t.Fatalf("orderID = %s", id)
	}
	if !strings.Contains(string(raw), "NEW") {
		t.Fatalf("raw response lost: %s", raw)
	}
}

func TestFillsByWindowMapsTrades(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("startTime") != "1000" || q.Get("endTime") != "2000" {
			t.Errorf("window params: %s", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode([]map[string]any{
			{
				"id": 77, "orderId": 123456, "symbol": "BTCUSDT", "side": "SELL",
				"price": "60010.5", "qty": "0.01", "commission": "0.24",
				"realizedPnl": "1.5", "time": 1500,
			},
		})
	})

	fills, err := c.FillsByWindow(context.Background(), "BTCUSDT", 1000, 2000, 20)
	if err != nil {
		t.Fatalf("FillsByWindow: %v", err)
	}
	if len(fills) != 1 {
		t.Fatalf("len = %d", len(fills))
	}
	f := fills[0]
	if f.OrderID != "123456" || f.Price != 60010.5 || f.Side != domain.SideSell {
		t.Fatalf("unexpected fill: %+v", f)
	}
}

func TestPositionParsesSignedAmt(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			{"symbol": "BTCUSDT", "positionAmt": "-0.5", "entryPrice": "59000", "unRealizedProfit": "12.5"},
		})
	})

	pos, err := c.Position(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("Position: %v", err)
	}
	if pos.SignedSize != -0.5 || pos.Side != domain.PositionShort || pos.Size != 0.5 {
		t.Fatalf("unexpected position: %+v", pos)
	}
}

func TestRateLimitSurfacesAsStatusError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"code":-1003,"msg":"Too many requests."}`))
	})

	_, err := c.ActiveOrders(context.Background())
	if err == nil {
		t.Fatalf("expected 429 error")
	}
	if !httpx.IsRateLimited(err) {
		t.Fatalf("IsRateLimited = false for %v", err)
	}
	if !strings.Contains(err.Error(), "429") {
		t.Fatalf("error message must carry the status code: %v", err)
	}
}

func TestDepthParsesLevels(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"bids": [][]string{{"60000", "1.5"}, {"59990", "2"}},
			"asks": [][]string{{"60010", "1"}},
		})
	})

	book, err := c.Depth(context.Background(), "BTCUSDT", 20)
	if err != nil {
		t.Fatalf("Depth: %v", err)
	}
	if len(book.Bids) != 2 || book.Asks[0].Price() != 60010 {
		t.Fatalf("unexpected book: %+v", book)
	}
}
