// Package reconcile 实现跨交易所净头寸对账。
// 只读比较，从不主动发起纠偏交易。
package reconcile

import (
	"context"
	"math"
	"time"

	"github.com/betbot/hedgex/internal/domain"
	"github.com/betbot/hedgex/internal/governor"
	"github.com/betbot/hedgex/internal/ports"
)

// HedgedThreshold 敞口阈值：两腿带符号持仓之和低于此值视为已对冲
const HedgedThreshold = 0.0001

const (
	VerdictHedged  = "hedged"
	VerdictExposed = "exposed"
)

// Leg 一条腿（一个交易所）的持仓视图
type Leg struct {
	Venue      string  `json:"venue"`
	Instrument string  `json:"instrument"`
	SignedSize float64 `json:"position"`
	EntryPrice float64 `json:"entry_price"`
	Pnl        float64 `json:"unrealized_pnl"`
}

// Report 一次对账结果
type Report struct {
	LegA      Leg       `json:"leg_a"`
	LegB      Leg       `json:"leg_b"`
	DeltaAbs  float64   `json:"delta_abs"`
	Verdict   string    `json:"verdict"`
	CheckedAt time.Time `json:"checked_at"`
}

func (r *Report) Hedged() bool { return r.Verdict == VerdictHedged }

// Compare 纯函数：两腿带符号持仓求和，|和| 即敞口。
// 正确对冲的组合（一多一空等量）净值应约等于 0。
func Compare(a, b Leg) Report {
	delta := math.Abs(a.SignedSize + b.SignedSize)
	verdict := VerdictExposed
	if delta < HedgedThreshold {
		verdict = VerdictHedged
	}
	return Report{LegA: a, LegB: b, DeltaAbs: delta, Verdict: verdict, CheckedAt: time.Now()}
}

// VenueLeg 对账器的一条腿：客户端 + 该腿自己的 Governor
type VenueLeg struct {
	Venue      string
	Instrument string
	Client     ports.ExchangeClient
	Gov        *governor.Governor
}

func (l *VenueLeg) fetch(ctx context.Context) (Leg, error) {
	var pos domain.Position
	err := l.Gov.Do(ctx, func(ctx context.Context) error {
		var err error
		pos, err = l.Client.Position(ctx, l.Instrument)
		return err
	})
	if err != nil {
		return Leg{}, err
	}
	return Leg{
		Venue:      l.Venue,
		Instrument: l.Instrument,
		SignedSize: pos.SignedSize,
		EntryPrice: pos.EntryPrice,
		Pnl:        pos.UnrealizedPnl,
	}, nil
}

// Reconciler 周期性（或按需）对账两个交易所的净持仓
type Reconciler struct {
	A, B VenueLeg
}

// Reconcile 各自独立拉取两腿持仓并比较。
// 两腿各有自己的 Governor，串行约束只在交易所内部，不跨交易所。
func (r *Reconciler) Reconcile(ctx context.Context) (Report, error) {
	type legResult struct {
		leg Leg
		err error
	}
	chA := make(chan legResult, 1)
	chB := make(chan legResult, 1)

	go func() {
		leg, err := r.A.fetch(ctx)
		chA <- legResult{leg, err}
	}()
	go func() {
		leg, err := r.B.fetch(ctx)
		chB <- legResult{leg, err}
	}()

	ra, rb := <-chA, <-chB
	if ra.err != nil {
		return Report{}, ra.err
	}
	if rb.err != nil {
		return Report{}, rb.err
	}
	return Compare(ra.leg, rb.leg), nil
}
