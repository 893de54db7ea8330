package domain

// PositionSide 持仓方向（由 SignedSize 推导，非权威字段）
type PositionSide string

const (
	PositionLong  PositionSide = "LONG"
	PositionShort PositionSide = "SHORT"
	PositionFlat  PositionSide = ""
)

// Position 单个合约的净持仓。
// SignedSize 带符号：正=多头，负=空头，0=无仓位。
type Position struct {
	Instrument    string       `json:"contract_id"`
	SignedSize    float64      `json:"position"`
	Size          float64      `json:"size"`
	Side          PositionSide `json:"side,omitempty"`
	EntryPrice    float64      `json:"entry_price"`
	UnrealizedPnl float64      `json:"unrealized_pnl"`
}

// FlatPosition 无仓位的空结果（与有仓位共用同一结构，position=0）
func FlatPosition(instrument string) Position {
	return Position{Instrument: instrument}
}

// DeriveSide 根据 SignedSize 回填 Side/Size
func (p *Position) DeriveSide() {
	p.Size = p.SignedSize
	if p.Size < 0 {
		p.Size = -p.Size
	}
	switch {
	case p.SignedSize > 0:
		p.Side = PositionLong
	case p.SignedSize < 0:
		p.Side = PositionShort
	default:
		p.Side = PositionFlat
	}
}
