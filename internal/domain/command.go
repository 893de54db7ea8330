package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// 支持的命令动作（NDJSON 协议 action 字段）
const (
	ActionCreateOrder     = "create_order"
	ActionCancelOrder     = "cancel_order"
	ActionGetActiveOrders = "get_active_orders"
	ActionGetPosition     = "get_position"
	ActionGetPositions    = "get_positions"
	ActionGetPrice        = "get_price"
	ActionGetAccount      = "get_account"
)

// ErrUnknownAction 未知 action。格式合法但动作不认识的命令不终止进程，
// 只回一条失败的 command_result。
var ErrUnknownAction = fmt.Errorf("unknown action")

// Command stdin 上的一条命令（一行一个 JSON 对象）
type Command struct {
	ID     string          `json:"id"`
	Action string          `json:"action"`
	Params json.RawMessage `json:"params"`
}

// ParseCommand 解析一行命令。坏行由调用方决定丢弃策略。
func ParseCommand(line []byte) (*Command, error) {
	var cmd Command
	if err := json.Unmarshal(line, &cmd); err != nil {
		return nil, fmt.Errorf("parsing command: %w", err)
	}
	if strings.TrimSpace(cmd.Action) == "" {
		return nil, fmt.Errorf("command missing action")
	}
	return &cmd, nil
}

// CreateOrderParams create_order 命令参数。
// 标的键名历史上不统一（contract_id / market / symbol），全都接受。
type CreateOrderParams struct {
	ContractID string  `json:"contract_id"`
	Market     string  `json:"market"`
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Size       float64 `json:"size"`
	Type       string  `json:"type"`
	Price      float64 `json:"price"`
}

// Instrument 返回第一个非空的标的键
func (p *CreateOrderParams) Instrument() string {
	for _, v := range []string{p.ContractID, p.Market, p.Symbol} {
		if v != "" {
			return v
		}
	}
	return ""
}

// OrderRequest 转成内部下单请求
func (p *CreateOrderParams) OrderRequest() OrderRequest {
	return OrderRequest{
		Instrument: p.Instrument(),
		Side:       ParseSide(p.Side),
		Size:       p.Size,
		Type:       ParseOrderType(p.Type),
		Price:      p.Price,
	}
}

// CancelOrderParams cancel_order 命令参数
type CancelOrderParams struct {
	OrderID string `json:"order_id"`
}

// InstrumentParams get_position / get_price 等命令的参数
type InstrumentParams struct {
	ContractID string `json:"contract_id"`
	Market     string `json:"market"`
	Symbol     string `json:"symbol"`
}

func (p *InstrumentParams) Instrument() string {
	for _, v := range []string{p.ContractID, p.Market, p.Symbol} {
		if v != "" {
			return v
		}
	}
	return ""
}
