package aster

// OrderResult is the /fapi/v1/order response.
type OrderResult struct {
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Symbol        string `json:"symbol"`
	Status        string `json:"status"`
}

// PositionRisk is one row of /fapi/v2/positionRisk.
// positionAmt is signed: positive long, negative short.
type PositionRisk struct {
	Symbol           string `json:"symbol"`
	PositionAmt      string `json:"positionAmt"`
	EntryPrice       string `json:"entryPrice"`
	UnRealizedProfit string `json:"unRealizedProfit"`
}

// UserTrade is one row of /fapi/v1/userTrades.
type UserTrade struct {
	ID          int64  `json:"id"`
	OrderID     int64  `json:"orderId"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	Price       string `json:"price"`
	Qty         string `json:"qty"`
	Commission  string `json:"commission"`
	RealizedPnl string `json:"realizedPnl"`
	Time        int64  `json:"time"`
}

// DepthResult is the /fapi/v1/depth response; levels are [price, qty] strings.
type DepthResult struct {
	Bids [][2]string `json:"bids"`
	Asks [][2]string `json:"asks"`
}

// BookTicker is the /fapi/v1/ticker/bookTicker response.
type BookTicker struct {
	Symbol   string `json:"symbol"`
	BidPrice string `json:"bidPrice"`
	AskPrice string `json:"askPrice"`
	Time     int64  `json:"time"`
}

// ListenKeyResult is the /fapi/v1/listenKey response.
type ListenKeyResult struct {
	ListenKey string `json:"listenKey"`
}

// apiError is the standard {"code":-1121,"msg":"Invalid symbol."} error body.
type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// bookTickerEvent is the <symbol>@bookTicker stream payload.
type bookTickerEvent struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	BidPrice  string `json:"b"`
	AskPrice  string `json:"a"`
	EventTime int64  `json:"E"`
}

// aggTradeEvent is the <symbol>@aggTrade stream envelope; the payload
// itself is forwarded raw.
type aggTradeEvent struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
}

// userStreamEvent is the envelope of user data stream frames
// (ORDER_TRADE_UPDATE, ACCOUNT_UPDATE).
type userStreamEvent struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
}
