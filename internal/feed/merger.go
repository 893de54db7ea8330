// Package feed 实现价格/订单簿双源合并。
//
// 两个独立生产者喂同一个"当前价格"消费者：
//   - 推送源：交易所 WS 订阅回调（不经主控制流，绝不阻塞）
//   - 拉取源：固定间隔轮询公开深度端点（公开接口，不走 Governor）
//
// 合并规则：后到的快照整体获胜，不跨源按字段拼接。
package feed

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/hedgex/internal/domain"
)

// DepthFunc 公开深度端点（通常是 ExchangeClient.Depth）
type DepthFunc func(ctx context.Context, instrument string, limit int) (*domain.Orderbook, error)

// Config 合并器参数，默认值与线上一致。
type Config struct {
	Venue      string
	Instrument string

	PollInterval time.Duration // 拉取间隔，默认 500ms
	PullTimeout  time.Duration // 单次拉取超时，默认 5s
	ErrBackoff   time.Duration // 拉取失败后的回退，默认 5s
	MinDepth     int           // 发布快照要求的最小档数，默认 3
	BookDepth    int           // 向端点请求的档数，默认 5
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.PullTimeout <= 0 {
		c.PullTimeout = 5 * time.Second
	}
	if c.ErrBackoff <= 0 {
		c.ErrBackoff = 5 * time.Second
	}
	if c.MinDepth <= 0 {
		c.MinDepth = 3
	}
	if c.BookDepth <= 0 {
		c.BookDepth = 5
	}
}

// Merger 单交易所的行情合并器。
// 所有可变状态（lastMid、订单簿缓存）只被 Run 循环这一个 goroutine 写，
// 推送回调只往单槽通道塞快照，不碰状态。
type Merger struct {
	cfg   Config
	depth DepthFunc
	emit  func(domain.PriceSnapshot)
	log   *logrus.Entry

	push *latestSlot

	// 以下只归 Run goroutine 所有
	lastMid      float64
	book         *domain.Orderbook
	lastBidCount int

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewMerger(cfg Config, depth DepthFunc, emit func(domain.PriceSnapshot)) *Merger {
	cfg.applyDefaults()
	return &Merger{
		cfg:   cfg,
		depth: depth,
		emit:  emit,
		log:   logrus.WithField("feed", cfg.Venue),
		push:  newLatestSlot(),
		now:   time.Now,
		sleep: func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				return nil
			}
		},
	}
}

// OnPush 推送源回调入口。在 WS 读 goroutine 里执行，只塞槽，立刻返回。
func (m *Merger) OnPush(s domain.PriceSnapshot) {
	m.push.Put(s)
}

// Run 合并循环：交替消费推送槽和拉取节拍，直到 ctx 取消。
// 任何拉取错误只记日志加回退，循环本身永不退出。
func (m *Merger) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	m.log.Info("启动行情合并循环")
	for {
		select {
		case <-ctx.Done():
			m.log.Info("行情合并循环退出")
			return
		case s := <-m.push.C():
			m.handlePush(s)
		case <-ticker.C:
			if err := m.pullOnce(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				m.log.Errorf("REST 订单簿拉取失败: %v", err)
				_ = m.sleep(ctx, m.cfg.ErrBackoff)
			}
		}
	}
}

// handlePush 推送快照：mid 没变就不发，避免重复通知风暴。
func (m *Merger) handlePush(s domain.PriceSnapshot) {
	if s.Mid <= 0 && s.Bid > 0 && s.Ask > 0 {
		s.Mid = (s.Bid + s.Ask) / 2
	}
	if s.Mid <= 0 || s.Mid == m.lastMid {
		return
	}
	m.lastMid = s.Mid
	if s.Orderbook == nil {
		s.Orderbook = m.book // 订单簿由拉取源提供
	}
	m.emit(s)
}

// pullOnce 拉取一次深度并无条件发布（只要深度达标）。
// 即使价格纹丝不动也要发：下游靠它知道数据是新鲜的。
func (m *Merger) pullOnce(ctx context.Context) error {
	cctx, cancel := context.WithTimeout(ctx, m.cfg.PullTimeout)
	defer cancel()

	book, err := m.depth(cctx, m.cfg.Instrument, m.cfg.BookDepth)
	if err != nil {
		return err
	}
	if book == nil || len(book.Bids) < m.cfg.MinDepth || len(book.Asks) < m.cfg.MinDepth {
		bids, asks := 0, 0
		if book != nil {
			bids, asks = len(book.Bids), len(book.Asks)
		}
		m.log.Warnf("订单簿深度不足: %d bids, %d asks", bids, asks)
		return nil
	}

	m.book = book
	// 档数变化时记一次日志，其余时候保持安静
	if len(book.Bids) != m.lastBidCount {
		m.log.Infof("REST 订单簿: %d 档买单, %d 档卖单", len(book.Bids), len(book.Asks))
		m.lastBidCount = len(book.Bids)
	}

	s := domain.NewSnapshotFromBook(m.cfg.Instrument, book, m.now().UnixMilli())
	if s.Mid <= 0 {
		return nil
	}
	m.lastMid = s.Mid
	m.emit(s)
	return nil
}
