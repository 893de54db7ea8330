package domain

// PriceLevel 订单簿单档：[price, size]
type PriceLevel [2]float64

func (l PriceLevel) Price() float64 { return l[0] }
func (l PriceLevel) Size() float64  { return l[1] }

// Orderbook 订单簿快照（买卖各 N 档，价格由优到劣）
type Orderbook struct {
	Bids []PriceLevel `json:"bids"`
	Asks []PriceLevel `json:"asks"`
}

// Depth 返回较浅一侧的档数
func (b *Orderbook) Depth() int {
	if b == nil {
		return 0
	}
	if len(b.Bids) < len(b.Asks) {
		return len(b.Bids)
	}
	return len(b.Asks)
}

// PriceSnapshot 某一时刻的价格快照。
// 快照是原子的：后到的快照整体取代先到的，从不按字段合并。
type PriceSnapshot struct {
	Instrument  string     `json:"contract_id,omitempty"`
	Bid         float64    `json:"bid"`
	Ask         float64    `json:"ask"`
	Mid         float64    `json:"mid"`
	LastPrice   float64    `json:"last_price,omitempty"`
	Orderbook   *Orderbook `json:"orderbook"`
	TimestampMs int64      `json:"timestamp"`
}

// NewSnapshotFromBook 从订单簿顶档构造快照
func NewSnapshotFromBook(instrument string, book *Orderbook, tsMs int64) PriceSnapshot {
	s := PriceSnapshot{Instrument: instrument, Orderbook: book, TimestampMs: tsMs}
	if book != nil && len(book.Bids) > 0 && len(book.Asks) > 0 {
		s.Bid = book.Bids[0].Price()
		s.Ask = book.Asks[0].Price()
		s.Mid = (s.Bid + s.Ask) / 2
		s.LastPrice = s.Mid
	}
	return s
}
