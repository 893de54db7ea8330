package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/betbot/hedgex/internal/domain"
	"github.com/betbot/hedgex/internal/governor"
	"github.com/betbot/hedgex/internal/ports"
	"github.com/betbot/hedgex/internal/reconcile"
)

// posClient 只实现 Position，其余方法借接口零值（测试里不会被调用）
type posClient struct {
	ports.ExchangeClient
	size float64
	err  error
}

func (c *posClient) Position(ctx context.Context, instrument string) (domain.Position, error) {
	if c.err != nil {
		return domain.Position{}, c.err
	}
	return domain.Position{Instrument: instrument, SignedSize: c.size}, nil
}

func newTestServer(sizeA, sizeB float64) *Server {
	rec := &reconcile.Reconciler{
		A: reconcile.VenueLeg{
			Venue:      "edgex",
			Instrument: "10000001",
			Client:     &posClient{size: sizeA},
			Gov:        governor.New("edgex", time.Nanosecond),
		},
		B: reconcile.VenueLeg{
			Venue:      "aster",
			Instrument: "BTCUSDT",
			Client:     &posClient{size: sizeB},
			Gov:        governor.New("aster", time.Nanosecond),
		},
	}
	return New(rec, nil, time.Hour)
}

func TestReconcileNowReturnsReport(t *testing.T) {
	srv := newTestServer(0.5, -0.5)

	req := httptest.NewRequest(http.MethodPost, "/reconcile", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var report reconcile.Report
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatalf("decoding report: %v", err)
	}
	if !report.Hedged() {
		t.Fatalf("expected hedged, got %+v", report)
	}
}

func TestStatusReflectsLastRun(t *testing.T) {
	srv := newTestServer(0.5, -0.3)

	// 先跑一次对账，再读状态
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/reconcile", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("reconcile status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		LastReport *reconcile.Report `json:"last_report"`
		LastError  string            `json:"last_error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding status: %v", err)
	}
	if body.LastReport == nil || body.LastReport.Verdict != reconcile.VerdictExposed {
		t.Fatalf("unexpected status body: %s", w.Body.String())
	}
}

// TriggerReconcile 应唤醒后台循环立刻跑一轮，不等定时节拍。
func TestTriggerReconcileWakesBackgroundLoop(t *testing.T) {
	srv := newTestServer(0.5, -0.5)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv.Start(ctx)
	defer srv.Close()

	srv.TriggerReconcile()

	deadline := time.Now().Add(2 * time.Second)
	for {
		srv.mu.RLock()
		ran := srv.lastReport != nil
		srv.mu.RUnlock()
		if ran {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("background loop never ran after trigger")
		}
		time.Sleep(5 * time.Millisecond)
	}

	srv.mu.RLock()
	defer srv.mu.RUnlock()
	if srv.lastReport.Verdict != reconcile.VerdictHedged {
		t.Fatalf("unexpected report: %+v", srv.lastReport)
	}
}

func TestHistoryDisabledReturns404(t *testing.T) {
	srv := newTestServer(0, 0)

	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/history/executions", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestQueryLimitBounds(t *testing.T) {
	cases := []struct {
		raw  string
		want int
	}{
		{"", 50},
		{"?limit=10", 10},
		{"?limit=0", 50},
		{"?limit=9999", 50},
		{"?limit=abc", 50},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/x"+tc.raw, nil)
		if got := queryLimit(c); got != tc.want {
			t.Fatalf("queryLimit(%q) = %d, want %d", tc.raw, got, tc.want)
		}
	}
}
