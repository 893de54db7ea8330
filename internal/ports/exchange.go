// Package ports 定义适配器依赖的窄接口。
// 交易所签名、底层 wire client 都在接口背后，core 只认这些方法。
package ports

import (
	"context"
	"encoding/json"

	"github.com/betbot/hedgex/internal/domain"
)

// ExchangeClient 交易所客户端的最小契约。
// 每个方法都是一次黑盒 RPC，有自己的延迟和错误面；是否限速由调用方
// （Governor）决定，客户端本身不做节流。
type ExchangeClient interface {
	// SubmitOrder 下单。orderID 可能为空（调用失败、或响应未带 id）；
	// 返回 err 不代表订单没进交易所。
	SubmitOrder(ctx context.Context, req domain.OrderRequest) (orderID string, raw json.RawMessage, err error)

	// CancelOrder 撤单（纯透传，无成交歧义）
	CancelOrder(ctx context.Context, orderID string) (json.RawMessage, error)

	// ActiveOrders 当前活跃订单（原样透传给 command_result）
	ActiveOrders(ctx context.Context) (json.RawMessage, error)

	// Positions 全部持仓（原样透传）
	Positions(ctx context.Context) (json.RawMessage, error)

	// Position 指定标的的净持仓（已归一化为 +多/-空）
	Position(ctx context.Context, instrument string) (domain.Position, error)

	// FillsByOrderID 按订单号查成交
	FillsByOrderID(ctx context.Context, instrument, orderID string, limit int) ([]domain.FillRecord, error)

	// FillsByWindow 按标的+时间窗查成交（下单调用连 order id 都没拿到时的兜底路径）
	FillsByWindow(ctx context.Context, instrument string, startMs, endMs int64, limit int) ([]domain.FillRecord, error)

	// Ticker 当前行情摘要（get_price 命令用）
	Ticker(ctx context.Context, instrument string) (domain.PriceSnapshot, error)

	// Depth 公开深度端点（不签名、不走 Governor）
	Depth(ctx context.Context, instrument string, limit int) (*domain.Orderbook, error)
}

// AccountReader 账户摘要（部分交易所支持）
type AccountReader interface {
	Account(ctx context.Context) (json.RawMessage, error)
}

// StreamHandlers 推送流回调。回调在流的读 goroutine 里执行，必须快进快出。
type StreamHandlers struct {
	OnTicker       func(domain.PriceSnapshot)
	OnTrade        func(json.RawMessage)
	OnOrder        func(json.RawMessage)
	OnPosition     func(json.RawMessage)
	OnAccount      func(json.RawMessage)
	OnFill         func(domain.FillRecord, json.RawMessage)
	OnConnected    func()
	OnDisconnected func(error)
}

// ExchangeStream 推送订阅。Subscribe 返回后流在后台运行直到 ctx 取消。
type ExchangeStream interface {
	Subscribe(ctx context.Context, instrument string, h StreamHandlers) error
	Close() error
}
