// Package governor 实现单交易所的出站请求节流。
//
// 两层防护：
//  1. 最小请求间隔（固定常量，EdgeX 实测 Cloudflare 滑动窗口下 2.5s 才稳）
//  2. 命中 429 后按 Fibonacci 序列退避，封顶在表尾
//
// 同一交易所的出站调用严格串行：Do 持槽锁执行整个调用，
// 不同交易所各持一个 Governor 实例，互不影响。
package governor

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/hedgex/internal/metrics"
)

// DefaultMinInterval EdgeX API: 2 ops / 2s，保守取 2.5s
const DefaultMinInterval = 2500 * time.Millisecond

// fibDelays 退避秒数表；连续失败次数超出表长时钉在表尾
var fibDelays = [...]int{1, 1, 2, 3, 5, 8, 13, 21}

// BackoffDelay 返回连续第 k 次限流失败后的退避时长
func BackoffDelay(failures int) time.Duration {
	if failures < 1 {
		failures = 1
	}
	if failures > len(fibDelays) {
		failures = len(fibDelays)
	}
	return time.Duration(fibDelays[failures-1]) * time.Second
}

// IsRateLimited 判断错误是否为限流类（HTTP 429 或等价信号）
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "rate limit")
}

// Governor 单交易所请求节流器。
// 每个 adapter 实例持有一个，绝不做成进程级全局变量。
type Governor struct {
	name        string
	minInterval time.Duration
	log         *logrus.Entry

	// slotMu 串行化整个出站调用：排队顺序即到达顺序（单槽，无额外队列）
	slotMu sync.Mutex

	// stateMu 只保护 last/failures 两个计数字段
	stateMu  sync.Mutex
	last     time.Time
	failures int

	// 测试缝
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New(name string, minInterval time.Duration) *Governor {
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}
	return &Governor{
		name:        name,
		minInterval: minInterval,
		log:         logrus.WithField("governor", name),
		now:         time.Now,
		sleep:       sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Acquire 阻塞直到距上次放行至少 minInterval，然后记录本次放行时间。
func (g *Governor) Acquire(ctx context.Context) error {
	g.slotMu.Lock()
	defer g.slotMu.Unlock()
	return g.pace(ctx)
}

func (g *Governor) pace(ctx context.Context) error {
	g.stateMu.Lock()
	wait := g.minInterval - g.now().Sub(g.last)
	g.stateMu.Unlock()

	if wait > 0 {
		g.log.Debugf("限速：等待 %.2fs", wait.Seconds())
		if err := g.sleep(ctx, wait); err != nil {
			return err
		}
	}

	g.stateMu.Lock()
	g.last = g.now()
	g.stateMu.Unlock()
	return nil
}

// Observe 根据调用结果更新退避状态。
// 限流错误：计数 +1 并按 Fibonacci 退避（阻塞）；
// 成功或非限流错误：计数清零。
func (g *Governor) Observe(ctx context.Context, err error) {
	if err == nil || !IsRateLimited(err) {
		g.stateMu.Lock()
		g.failures = 0
		g.stateMu.Unlock()
		return
	}

	g.stateMu.Lock()
	g.failures++
	delay := BackoffDelay(g.failures)
	n := g.failures
	g.stateMu.Unlock()

	metrics.RateLimitHits.Add(1)

	g.log.Warnf("命中限流，连续 %d 次，退避 %s", n, delay)
	_ = g.sleep(ctx, delay)
}

// Failures 当前连续限流失败次数（监控用）
func (g *Governor) Failures() int {
	g.stateMu.Lock()
	defer g.stateMu.Unlock()
	return g.failures
}

// Do 串行执行一次出站调用：排队 → 节流 → 调用 → 退避观察。
// 槽锁覆盖整个调用（含退避），保证同一交易所绝不出现两个并发在途请求。
func (g *Governor) Do(ctx context.Context, call func(context.Context) error) error {
	g.slotMu.Lock()
	defer g.slotMu.Unlock()

	if err := g.pace(ctx); err != nil {
		return err
	}
	err := call(ctx)
	g.Observe(ctx, err)
	return err
}
