// Package execution 实现订单执行与成交对账引擎。
//
// 核心不变式：下单调用失败绝不短路成交查询。
// wire 层可能在交易所已撮合之后才抛错（响应解析、传输中断），
// 所以"调用结果"只是线索，成交流水才是真相。
package execution

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/hedgex/internal/domain"
	"github.com/betbot/hedgex/internal/governor"
	"github.com/betbot/hedgex/internal/ports"
)

// Phase 对账流程阶段（日志/监控用）
type Phase string

const (
	PhaseSubmitting         Phase = "SUBMITTING"
	PhaseSubmitted          Phase = "SUBMITTED"
	PhaseSubmitFailed       Phase = "SUBMIT_FAILED"
	PhaseAwaitingFill       Phase = "AWAITING_FILL"
	PhaseFiltering          Phase = "FILTERING"
	PhaseReconciledFilled   Phase = "RECONCILED_FILLED"
	PhaseReconciledUnfilled Phase = "RECONCILED_UNFILLED"
)

// Config 引擎参数。默认值来自线上实测：5s 结算窗口给撮合留足时间，
// 查询一次就够，反复轮询只会更快撞上限流。
type Config struct {
	Venue          string
	SettleWait     time.Duration // 市价单提交后到查成交的固定等待
	FillWindowBack time.Duration // 无 order id 时时间窗查询往前回溯量
	FillPageSize   int           // 成交查询单页条数
}

func (c *Config) applyDefaults() {
	if c.SettleWait <= 0 {
		c.SettleWait = 5 * time.Second
	}
	if c.FillWindowBack <= 0 {
		c.FillWindowBack = 5 * time.Second
	}
	if c.FillPageSize <= 0 {
		c.FillPageSize = 20
	}
}

// Result 一次下单命令的完整结果：提交信息 + 对账结论。
type Result struct {
	OrderID      string                 `json:"orderId,omitempty"`
	SubmitTimeMs int64                  `json:"submitTime"`
	APIError     string                 `json:"apiError,omitempty"`
	Raw          json.RawMessage        `json:"result,omitempty"`
	Fill         *domain.ReconciledFill `json:"fill,omitempty"`
}

// Engine 单交易所的执行引擎。所有出站调用都经 Governor 串行化。
type Engine struct {
	cfg    Config
	client ports.ExchangeClient
	gov    *governor.Governor
	log    *logrus.Entry

	// 测试缝
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewEngine(cfg Config, client ports.ExchangeClient, gov *governor.Governor) *Engine {
	cfg.applyDefaults()
	return &Engine{
		cfg:    cfg,
		client: client,
		gov:    gov,
		log:    logrus.WithField("venue", cfg.Venue),
		now:    time.Now,
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

// Submit 下单并对市价单做成交对账。
//
// 返回 error 仅在对账断定"确实失败"时（规则 4 / no-match 且带 apiError）；
// 其余情况一律返回 Result，由 Fill.Filled / Fill.Reason 表达结论。
func (e *Engine) Submit(ctx context.Context, req domain.OrderRequest) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	e.log.Infof("创建订单: %s %v %s @ %s [%s]", req.Side, req.Size, req.Instrument, req.Type, PhaseSubmitting)

	res := &Result{SubmitTimeMs: e.now().UnixMilli()}

	err := e.gov.Do(ctx, func(ctx context.Context) error {
		orderID, raw, err := e.client.SubmitOrder(ctx, req)
		res.OrderID = orderID
		res.Raw = raw
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// 关键：不中断。API 报错时订单可能已提交到服务器，继续查成交。
		res.APIError = err.Error()
		e.log.Warnf("API 返回异常: %v [%s]，仍尝试查询成交记录", err, PhaseSubmitFailed)
	} else {
		e.log.Infof("订单已提交: %s [%s]", res.OrderID, PhaseSubmitted)
	}

	// 限价单不等待成交，后续由调用方显式查询
	if req.Type != domain.OrderTypeMarket {
		return res, nil
	}

	// 结算窗口：一旦开始等待就跑到底，不接受取消（§5 的执行语义）
	e.log.Infof("等待 %s 后查询成交 [%s]", e.cfg.SettleWait, PhaseAwaitingFill)
	if err := e.sleep(ctx, e.cfg.SettleWait); err != nil {
		e.log.Warnf("结算等待被打断: %v，直接查询", err)
	}

	return e.reconcile(ctx, req, res)
}

// reconcile 查询成交流水并按优先级裁决最终结果。
func (e *Engine) reconcile(ctx context.Context, req domain.OrderRequest, res *Result) (*Result, error) {
	records, qerr := e.queryFills(ctx, req, res)
	if qerr != nil {
		// 软失败：查询挂了（比如又撞限流）只记日志，结论落在 order id 上
		e.log.Warnf("查询成交记录失败: %v，不影响运行", qerr)
		records = nil
	}

	if len(records) > 0 {
		e.log.Infof("API 返回 %d 条成交记录 [%s]", len(records), PhaseFiltering)

		var matched []domain.FillRecord
		if res.OrderID != "" {
			matched = SelectByOrderID(records, res.OrderID)
			e.log.Infof("过滤后属于订单 %s 的成交: %d 条", res.OrderID, len(matched))
		} else {
			var latest string
			latest, matched = SelectLatestOrder(records)
			e.log.Infof("时间窗查询，取最新订单 %s 的成交: %d 条", latest, len(matched))
		}

		if len(matched) > 0 {
			agg := Aggregate(matched)
			res.Fill = &agg
			if res.APIError != "" {
				// 成交即真相：API 报错是误导，按成功处理
				e.log.Infof("虽然 API 报错，但订单已成交，返回成功")
			}
			e.log.Infof("订单已成交 (拆分 %d 笔) 均价=%.2f 数量=%v 手续费=%.6f [%s]",
				agg.Records, agg.AvgPrice, agg.TotalSize, agg.TotalFee, PhaseReconciledFilled)
			return res, nil
		}

		// 有流水但没有一条属于本单
		res.Fill = &domain.ReconciledFill{Filled: false, Reason: domain.FillReasonNoMatch}
		if res.APIError != "" {
			return res, errors.Errorf("order failed: %s", res.APIError)
		}
		e.log.Warnf("过滤后无匹配的成交记录 [%s]", PhaseReconciledUnfilled)
		return res, nil
	}

	// 查不到任何流水
	switch {
	case res.OrderID != "":
		// order id 本身就是交易所收单的证据，缺流水按延迟处理
		e.log.Warnf("订单 %s 未找到成交记录，但订单已提交，假定成功", res.OrderID)
		res.Fill = &domain.ReconciledFill{Filled: true, Reason: domain.FillReasonOrderSubmitted}
		return res, nil
	case res.APIError != "":
		e.log.Errorf("下单失败且无成交记录 [%s]", PhaseReconciledUnfilled)
		return res, errors.Errorf("order failed: %s", res.APIError)
	default:
		res.Fill = &domain.ReconciledFill{Filled: false, Reason: domain.FillReasonNoOrderIDNoFill}
		return res, nil
	}
}

// queryFills 选择查询键：有 order id 走精确路径，否则按标的+时间窗兜底。
func (e *Engine) queryFills(ctx context.Context, req domain.OrderRequest, res *Result) ([]domain.FillRecord, error) {
	var records []domain.FillRecord
	err := e.gov.Do(ctx, func(ctx context.Context) error {
		var err error
		if res.OrderID != "" {
			e.log.Infof("查询订单 %s 的成交...", res.OrderID)
			records, err = e.client.FillsByOrderID(ctx, req.Instrument, res.OrderID, e.cfg.FillPageSize)
		} else {
			start := res.SubmitTimeMs - e.cfg.FillWindowBack.Milliseconds()
			end := e.now().UnixMilli()
			e.log.Infof("时间范围查询: %d ~ %d", start, end)
			records, err = e.client.FillsByWindow(ctx, req.Instrument, start, end, e.cfg.FillPageSize)
		}
		return err
	})
	return records, err
}

// Cancel 撤单：单次透传调用，撤单确认没有成交歧义，不需要对账。
func (e *Engine) Cancel(ctx context.Context, orderID string) (json.RawMessage, error) {
	e.log.Infof("撤销订单: %s", orderID)
	var raw json.RawMessage
	err := e.gov.Do(ctx, func(ctx context.Context) error {
		var err error
		raw, err = e.client.CancelOrder(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.log.Infof("订单撤销成功")
	return raw, nil
}
