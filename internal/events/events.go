package events

import (
	"encoding/json"
	"io"
	"sync"
	"time"
)

// 事件类型（NDJSON 协议，与上游机器人约定）
const (
	TypeConnected       = "connected"
	TypeReady           = "ready"
	TypePriceUpdate     = "price_update"
	TypeCommandResult   = "command_result"
	TypeTradeUpdate     = "trade_update"
	TypeFillUpdate      = "fill_update"
	TypeAccountUpdate   = "account_update"
	TypePositionsUpdate = "positions_update"
	TypeOrdersUpdate    = "orders_update"
	TypeError           = "error"
	TypeDisconnected    = "disconnected"
	TypeShutdown        = "shutdown"
)

// Event 输出到 stdout 的一条事件（一行一个 JSON 对象）
type Event struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data"`
}

// CommandResult command_result 事件的 data 负载
type CommandResult struct {
	ID      string `json:"id"`
	Action  string `json:"action"`
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Emitter 把事件序列化成 NDJSON 写到 w（通常是 stdout）。
// 多个 goroutine（命令处理、行情推送、拉取循环）并发写，必须整行原子。
type Emitter struct {
	mu  sync.Mutex
	enc *json.Encoder
	now func() time.Time
}

func NewEmitter(w io.Writer) *Emitter {
	return &Emitter{enc: json.NewEncoder(w), now: time.Now}
}

// Emit 写出一条事件。编码失败只能丢弃：stdout 坏了没有别的出口。
func (e *Emitter) Emit(typ string, data any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_ = e.enc.Encode(Event{
		Type:      typ,
		Timestamp: e.now().Format(time.RFC3339Nano),
		Data:      data,
	})
}

// EmitResult 输出一条命令执行结果
func (e *Emitter) EmitResult(id, action string, data any, err error) {
	res := CommandResult{ID: id, Action: action, Success: err == nil, Data: data}
	if err != nil {
		res.Error = err.Error()
	}
	e.Emit(TypeCommandResult, res)
}
