package domain

import "strings"

// FillRecord 交易所成交流水（真相来源）。
// 注意：取决于交易所和查询路径，OrderID 可能缺失。
type FillRecord struct {
	OrderID       string
	Side          Side
	Size          float64 // 绝对值
	Price         float64
	Fee           float64
	RealizedPnl   float64
	CreatedTimeMs int64
	SequenceID    string
}

// ReconciledFill 一个逻辑订单的成交聚合结果。
// 一笔市价单在薄盘下常被拆成多笔部分成交，必须累加而不是取"某一笔"。
type ReconciledFill struct {
	Filled    bool    `json:"filled"`
	AvgPrice  float64 `json:"fillPrice,string"`
	TotalSize float64 `json:"fillSize,string"`
	TotalFee  float64 `json:"fillFee,string"`
	TotalPnl  float64 `json:"realizePnl,string"`
	Records   int     `json:"records,omitempty"`
	Reason    string  `json:"reason,omitempty"`
}

const (
	// FillReasonOrderSubmitted 有 order id 但查不到成交：视为延迟而非失败
	FillReasonOrderSubmitted = "order_submitted"
	// FillReasonNoMatch 查到成交流水但没有一条属于该订单
	FillReasonNoMatch = "no_matching_fills"
	// FillReasonNoOrderIDNoFill 无 order id 且无成交：确定失败
	FillReasonNoOrderIDNoFill = "no_order_id_no_fill"
)

var orderIDStripper = strings.NewReplacer("-", "", "{", "", "}", "")

// NormalizeOrderID 订单号归一化。
// 同一个订单号在不同调用路径下可能出现大小写、连字符、花括号差异
// （如 "ABC-123" / "{abc123}"），统一成小写无分隔形式后再比较。
func NormalizeOrderID(id string) string {
	return orderIDStripper.Replace(strings.ToLower(strings.TrimSpace(id)))
}
