package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/hedgex/internal/domain"
)

func collectEmits() (*[]domain.PriceSnapshot, func(domain.PriceSnapshot)) {
	var out []domain.PriceSnapshot
	return &out, func(s domain.PriceSnapshot) { out = append(out, s) }
}

func book(levels int, bid, ask float64) *domain.Orderbook {
	b := &domain.Orderbook{}
	for i := 0; i < levels; i++ {
		b.Bids = append(b.Bids, domain.PriceLevel{bid - float64(i), 1})
		b.Asks = append(b.Asks, domain.PriceLevel{ask + float64(i), 1})
	}
	return b
}

// 推送源：mid 不变时抑制重复通知
func TestPushSuppressesUnchangedMid(t *testing.T) {
	out, emit := collectEmits()
	m := NewMerger(Config{Venue: "edgex", Instrument: "10000001"}, nil, emit)

	m.handlePush(domain.PriceSnapshot{Bid: 60000, Ask: 60010, Mid: 60005})
	m.handlePush(domain.PriceSnapshot{Bid: 60000, Ask: 60010, Mid: 60005}) // 重复
	m.handlePush(domain.PriceSnapshot{Bid: 60001, Ask: 60011, Mid: 60006})

	require.Len(t, *out, 2)
	assert.Equal(t, 60005.0, (*out)[0].Mid)
	assert.Equal(t, 60006.0, (*out)[1].Mid)
}

// 推送快照缺 mid 时由 bid/ask 推导；非法快照（全零）被丢弃
func TestPushDerivesMid(t *testing.T) {
	out, emit := collectEmits()
	m := NewMerger(Config{}, nil, emit)

	m.handlePush(domain.PriceSnapshot{Bid: 100, Ask: 102})
	m.handlePush(domain.PriceSnapshot{})

	require.Len(t, *out, 1)
	assert.Equal(t, 101.0, (*out)[0].Mid)
}

// 推送快照没带订单簿时补上拉取源缓存的那份
func TestPushAttachesCachedBook(t *testing.T) {
	out, emit := collectEmits()
	m := NewMerger(Config{}, nil, emit)
	cached := book(5, 60000, 60010)
	m.book = cached

	m.handlePush(domain.PriceSnapshot{Bid: 60000, Ask: 60010, Mid: 60005})
	require.Len(t, *out, 1)
	assert.Same(t, cached, (*out)[0].Orderbook)
}

// 拉取源：深度达标时无条件发布，即使 mid 没变
func TestPullAlwaysEmitsWhenDepthOK(t *testing.T) {
	out, emit := collectEmits()
	b := book(5, 60000, 60010)
	m := NewMerger(Config{Instrument: "BTCUSDT"},
		func(context.Context, string, int) (*domain.Orderbook, error) { return b, nil }, emit)

	require.NoError(t, m.pullOnce(context.Background()))
	require.NoError(t, m.pullOnce(context.Background())) // mid 未变，仍需发布

	require.Len(t, *out, 2)
	assert.Equal(t, 60005.0, (*out)[0].Mid)
	assert.NotNil(t, (*out)[0].Orderbook)
}

// 深度不足：不发布、不报错
func TestPullInsufficientDepthSuppressed(t *testing.T) {
	out, emit := collectEmits()
	b := book(2, 60000, 60010)
	m := NewMerger(Config{MinDepth: 3},
		func(context.Context, string, int) (*domain.Orderbook, error) { return b, nil }, emit)

	require.NoError(t, m.pullOnce(context.Background()))
	assert.Empty(t, *out)
}

// 拉取错误原样返回，由 Run 循环记日志并回退
func TestPullErrorPropagates(t *testing.T) {
	_, emit := collectEmits()
	m := NewMerger(Config{},
		func(context.Context, string, int) (*domain.Orderbook, error) { return nil, errors.New("502") }, emit)

	assert.Error(t, m.pullOnce(context.Background()))
}

// 拉取之后推送同一 mid：推送被抑制（两源共享 lastMid）
func TestCrossSourceMidSuppression(t *testing.T) {
	out, emit := collectEmits()
	b := book(5, 60000, 60010)
	m := NewMerger(Config{},
		func(context.Context, string, int) (*domain.Orderbook, error) { return b, nil }, emit)

	require.NoError(t, m.pullOnce(context.Background()))
	m.handlePush(domain.PriceSnapshot{Bid: 60000, Ask: 60010, Mid: 60005})

	assert.Len(t, *out, 1)
}

func TestLatestSlotKeepsNewest(t *testing.T) {
	s := newLatestSlot()
	s.Put(domain.PriceSnapshot{Mid: 1})
	s.Put(domain.PriceSnapshot{Mid: 2})
	s.Put(domain.PriceSnapshot{Mid: 3})

	got := <-s.C()
	assert.Equal(t, 3.0, got.Mid)

	select {
	case v := <-s.C():
		t.Fatalf("slot should be empty, got %v", v)
	default:
	}
}

// Run 循环消费推送槽
func TestRunConsumesPush(t *testing.T) {
	out := make(chan domain.PriceSnapshot, 4)
	m := NewMerger(Config{PollInterval: time.Hour}, // 拉取节拍推远，只测推送
		func(context.Context, string, int) (*domain.Orderbook, error) { return nil, nil },
		func(s domain.PriceSnapshot) { out <- s })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	m.OnPush(domain.PriceSnapshot{Bid: 10, Ask: 12, Mid: 11})

	select {
	case s := <-out:
		assert.Equal(t, 11.0, s.Mid)
	case <-time.After(2 * time.Second):
		t.Fatal("push snapshot was not emitted")
	}
}
