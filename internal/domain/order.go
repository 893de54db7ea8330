package domain

import (
	"fmt"
	"strings"
)

// Side 订单方向
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide 宽松解析方向（大小写不敏感，默认 BUY）
func ParseSide(s string) Side {
	if strings.EqualFold(strings.TrimSpace(s), "SELL") {
		return SideSell
	}
	return SideBuy
}

// OrderType 订单类型
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

func ParseOrderType(s string) OrderType {
	if strings.EqualFold(strings.TrimSpace(s), "LIMIT") {
		return OrderTypeLimit
	}
	return OrderTypeMarket
}

// OrderRequest 一次下单请求。
// 不变式：LIMIT 单必须带正价格；size 必须为正。
type OrderRequest struct {
	Instrument string
	Side       Side
	Size       float64
	Type       OrderType
	Price      float64 // 仅 LIMIT 单使用
}

func (r *OrderRequest) Validate() error {
	if strings.TrimSpace(r.Instrument) == "" {
		return fmt.Errorf("order request: instrument is required")
	}
	if r.Size <= 0 {
		return fmt.Errorf("order request: size must be positive, got %v", r.Size)
	}
	if r.Type == OrderTypeLimit && r.Price <= 0 {
		return fmt.Errorf("order request: limit order requires positive price")
	}
	return nil
}

// OrderSubmission 一次下单调用的直接结果。
//
// OrderID 和 APIError 可以同时为空、也可以同时存在：
// 下单调用抛错不代表订单没进交易所（传输层/解析错误可能发生在撮合之后），
// 这正是后续成交对账存在的原因。
type OrderSubmission struct {
	OrderID      string
	SubmitTimeMs int64
	APIError     string
}

// Failed 仅表示下单调用本身报错，不代表订单最终失败。
func (s *OrderSubmission) Failed() bool {
	return s.APIError != ""
}
