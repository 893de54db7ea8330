package edgex

import "encoding/json"

// Envelope is the common edgeX response wrapper.
// Every endpoint answers {"code":"SUCCESS","data":...} on success;
// any other code carries the error message in msg.
type Envelope struct {
	Code string          `json:"code"`
	Data json.RawMessage `json:"data"`
	Msg  string          `json:"msg"`
}

const codeSuccess = "SUCCESS"

// CreateOrderResult is the data payload of createOrder.
type CreateOrderResult struct {
	OrderID string `json:"orderId"`
}

// FillTransaction is one row of getOrderFillTransaction.
// Numeric fields arrive as strings.
type FillTransaction struct {
	ID          string `json:"id"`
	OrderID     string `json:"orderId"`
	ContractID  string `json:"contractId"`
	Direction   string `json:"direction"`
	FillSize    string `json:"fillSize"`
	FillValue   string `json:"fillValue"`
	FillFee     string `json:"fillFee"`
	RealizePnl  string `json:"realizePnl"`
	CreatedTime int64  `json:"createdTime,string"`
}

// FillPage is the data payload of getOrderFillTransaction.
type FillPage struct {
	DataList []FillTransaction `json:"dataList"`
}

// PositionRow is one entry of getPositions positionList.
type PositionRow struct {
	ContractID string `json:"contractId"`
	OpenSize   string `json:"openSize"`
}

// PositionAsset carries the valuation fields that live next to
// positionList in the same payload.
type PositionAsset struct {
	ContractID    string `json:"contractId"`
	AvgEntryPrice string `json:"avgEntryPrice"`
	UnrealizePnl  string `json:"unrealizePnl"`
}

// PositionsPayload is the data payload of getPositions.
type PositionsPayload struct {
	PositionList      []PositionRow   `json:"positionList"`
	PositionAssetList []PositionAsset `json:"positionAssetList"`
}

// DepthEntry is one side of the getDepth payload.
type DepthEntry struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// DepthPayload is one element of the getDepth data array.
type DepthPayload struct {
	ContractID string       `json:"contractId"`
	Bids       []DepthEntry `json:"bids"`
	Asks       []DepthEntry `json:"asks"`
}

// TickerData is one element of the ticker quote-event data array.
type TickerData struct {
	ContractID   string `json:"contractId"`
	LastPrice    string `json:"lastPrice"`
	BestBidPrice string `json:"bestBidPrice"`
	BestAskPrice string `json:"bestAskPrice"`
	EndTime      int64  `json:"endTime,string"`
}

// quoteEvent is the public websocket frame.
// Observed shape: {"type":"quote-event","channel":"ticker.10000001","content":{"dataType":"Snapshot","data":[...]}}
type quoteEvent struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
	Content struct {
		DataType string            `json:"dataType"`
		Data     []json.RawMessage `json:"data"`
	} `json:"content"`
}
