// Package monitor 提供跨所持仓对账的 HTTP 监控面：
// 定时对账 + 按需触发，结果落历史库并经 /status 暴露。
package monitor

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/betbot/hedgex/internal/history"
	"github.com/betbot/hedgex/internal/metrics"
	"github.com/betbot/hedgex/internal/reconcile"
	"github.com/betbot/hedgex/pkg/sigchan"
)

const defaultInterval = 30 * time.Second

type Server struct {
	rec      *reconcile.Reconciler
	store    *history.Store // 可为 nil（不落盘）
	interval time.Duration
	log      *logrus.Entry

	trigger *sigchan.Chan

	mu         sync.RWMutex
	lastReport *reconcile.Report
	lastErr    string
	lastRunAt  time.Time

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

func New(rec *reconcile.Reconciler, store *history.Store, interval time.Duration) *Server {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Server{
		rec:      rec,
		store:    store,
		interval: interval,
		log:      logrus.WithField("component", "monitor"),
		trigger:  sigchan.New(1),
	}
}

// Start 启动后台定时对账循环
func (s *Server) Start(ctx context.Context) {
	ctx, s.bgCancel = context.WithCancel(ctx)
	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			case <-s.trigger.C():
			}
			s.runOnce(ctx)
		}
	}()
}

// TriggerReconcile 请求后台循环尽快跑一次对账（非阻塞）。
// hedge-monitor 把 SIGUSR1 接到这里，运维不用等下一个定时节拍。
func (s *Server) TriggerReconcile() {
	s.trigger.Emit()
}

func (s *Server) Close() {
	if s.bgCancel != nil {
		s.bgCancel()
		s.bgWG.Wait()
	}
}

func (s *Server) runOnce(ctx context.Context) (reconcile.Report, error) {
	runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	report, err := s.rec.Reconcile(runCtx)
	metrics.ReconcileRuns.Add(1)

	s.mu.Lock()
	s.lastRunAt = time.Now()
	if err != nil {
		s.lastErr = err.Error()
		s.mu.Unlock()
		s.log.Errorf("对账失败: %v", err)
		return report, err
	}
	s.lastErr = ""
	s.lastReport = &report
	s.mu.Unlock()

	if !report.Hedged() {
		metrics.ReconcileExposed.Add(1)
		s.log.Warnf("持仓敞口 delta=%.6f %s=%.6f %s=%.6f",
			report.DeltaAbs, report.LegA.Venue, report.LegA.SignedSize,
			report.LegB.Venue, report.LegB.SignedSize)
	}

	if s.store != nil {
		if herr := s.store.RecordReconciliation(runCtx, &report); herr != nil {
			s.log.Warnf("写入对账历史失败: %v", herr)
		}
	}
	return report, nil
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/status", s.handleStatus)
	r.POST("/reconcile", s.handleReconcileNow)
	r.GET("/history/executions", s.handleExecutions)
	r.GET("/history/reconciliations", s.handleReconciliations)
	return r
}

func (s *Server) handleStatus(c *gin.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c.JSON(http.StatusOK, gin.H{
		"last_report": s.lastReport,
		"last_error":  s.lastErr,
		"last_run_at": s.lastRunAt,
	})
}

// handleReconcileNow 同步跑一次对账并返回结果
func (s *Server) handleReconcileNow(c *gin.Context) {
	report, err := s.runOnce(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleExecutions(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "history disabled"})
		return
	}
	rows, err := s.store.RecentExecutions(c.Request.Context(), queryLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (s *Server) handleReconciliations(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "history disabled"})
		return
	}
	rows, err := s.store.RecentReconciliations(c.Request.Context(), queryLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rows)
}

func queryLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 500 {
		return 50
	}
	return limit
}
