// Package aster is a client for the Aster perpetual futures API.
// The surface is binance-futures compatible: HMAC-signed query strings,
// X-MBX-APIKEY header, /fapi paths.
package aster

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/hedgex/internal/domain"
	"github.com/betbot/hedgex/pkg/sdk/httpx"
)

const (
	pathOrder      = "/fapi/v1/order"
	pathOpenOrders = "/fapi/v1/openOrders"
	pathUserTrades = "/fapi/v1/userTrades"
	pathPositions  = "/fapi/v2/positionRisk"
	pathAccount    = "/fapi/v2/account"
	pathDepth      = "/fapi/v1/depth"
	pathBookTicker = "/fapi/v1/ticker/bookTicker"
	pathListenKey  = "/fapi/v1/listenKey"

	recvWindowMs = 5000
)

type Config struct {
	BaseURL   string
	APIKey    string
	APISecret string
	Symbol    string // default instrument when a command omits one
	Timeout   time.Duration
}

type Client struct {
	http *httpx.Client
	cfg  Config
	log  *logrus.Entry
	now  func() time.Time
}

func NewClient(cfg Config) *Client {
	return &Client{
		http: httpx.NewClient(cfg.BaseURL, cfg.Timeout),
		cfg:  cfg,
		log:  logrus.WithField("sdk", "aster"),
		now:  time.Now,
	}
}

func (c *Client) symbolFor(instrument string) string {
	if instrument != "" {
		return instrument
	}
	return c.cfg.Symbol
}

// signedRequest sends a signed call. All signed params travel in the query
// string (the API accepts that for every verb), so the signature always
// covers exactly what goes on the wire.
func (c *Client) signedRequest(ctx context.Context, method, path string, params map[string]string, out any) error {
	if params == nil {
		params = map[string]string{}
	}
	params["timestamp"] = strconv.FormatInt(c.now().UnixMilli(), 10)
	params["recvWindow"] = strconv.Itoa(recvWindowMs)
	paramStr, signature := signParams(c.cfg.APISecret, params)

	return c.http.DoRequest(ctx, method, path, &httpx.RequestOptions{
		Headers:  map[string]string{"X-MBX-APIKEY": c.cfg.APIKey},
		RawQuery: paramStr + "&signature=" + signature,
	}, out)
}

func (c *Client) publicRequest(ctx context.Context, path string, params map[string]any, out any) error {
	return c.http.DoRequest(ctx, http.MethodGet, path, &httpx.RequestOptions{Params: params}, out)
}

func (c *Client) SubmitOrder(ctx context.Context, req domain.OrderRequest) (string, json.RawMessage, error) {
	params := map[string]string{
		"symbol":   c.symbolFor(req.Instrument),
		"side":     string(req.Side),
		"type":     string(req.Type),
		"quantity": strconv.FormatFloat(req.Size, 'f', -1, 64),
	}
	if req.Type == domain.OrderTypeLimit {
		params["price"] = strconv.FormatFloat(req.Price, 'f', -1, 64)
		params["timeInForce"] = "GTC"
	}

	var raw json.RawMessage
	if err := c.signedRequest(ctx, http.MethodPost, pathOrder, params, &raw); err != nil {
		return "", nil, err
	}
	var result OrderResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", raw, errors.Wrap(err, "decoding order response")
	}
	if result.OrderID == 0 {
		return "", raw, nil
	}
	return strconv.FormatInt(result.OrderID, 10), raw, nil
}

func (c *Client) CancelOrder(ctx context.Context, orderID string) (json.RawMessage, error) {
	var raw json.RawMessage
	err := c.signedRequest(ctx, http.MethodDelete, pathOrder, map[string]string{
		"symbol":  c.cfg.Symbol,
		"orderId": orderID,
	}, &raw)
	return raw, err
}

func (c *Client) ActiveOrders(ctx context.Context) (json.RawMessage, error) {
	var raw json.RawMessage
	err := c.signedRequest(ctx, http.MethodGet, pathOpenOrders, map[string]string{
		"symbol": c.cfg.Symbol,
	}, &raw)
	return raw, err
}

func (c *Client) Positions(ctx context.Context) (json.RawMessage, error) {
	var raw json.RawMessage
	err := c.signedRequest(ctx, http.MethodGet, pathPositions, map[string]string{
		"symbol": c.cfg.Symbol,
	}, &raw)
	return raw, err
}

func (c *Client) Position(ctx context.Context, instrument string) (domain.Position, error) {
	symbol := c.symbolFor(instrument)
	var rows []PositionRisk
	if err := c.signedRequest(ctx, http.MethodGet, pathPositions, map[string]string{
		"symbol": symbol,
	}, &rows); err != nil {
		return domain.Position{}, err
	}

	pos := domain.FlatPosition(symbol)
	for _, row := range rows {
		if row.Symbol != symbol {
			continue
		}
		pos.SignedSize = parseF(row.PositionAmt)
		pos.EntryPrice = parseF(row.EntryPrice)
		pos.UnrealizedPnl = parseF(row.UnRealizedProfit)
		break
	}
	pos.DeriveSide()
	return pos, nil
}

func (c *Client) Account(ctx context.Context) (json.RawMessage, error) {
	var raw json.RawMessage
	err := c.signedRequest(ctx, http.MethodGet, pathAccount, nil, &raw)
	return raw, err
}

func (c *Client) FillsByOrderID(ctx context.Context, instrument, orderID string, limit int) ([]domain.FillRecord, error) {
	return c.queryTrades(ctx, map[string]string{
		"symbol":  c.symbolFor(instrument),
		"orderId": orderID,
		"limit":   strconv.Itoa(limit),
	})
}

func (c *Client) FillsByWindow(ctx context.Context, instrument string, startMs, endMs int64, limit int) ([]domain.FillRecord, error) {
	return c.queryTrades(ctx, map[string]string{
		"symbol":    c.symbolFor(instrument),
		"startTime": strconv.FormatInt(startMs, 10),
		"endTime":   strconv.FormatInt(endMs, 10),
		"limit":     strconv.Itoa(limit),
	})
}

func (c *Client) queryTrades(ctx context.Context, params map[string]string) ([]domain.FillRecord, error) {
	var rows []UserTrade
	if err := c.signedRequest(ctx, http.MethodGet, pathUserTrades, params, &rows); err != nil {
		return nil, err
	}

	fills := make([]domain.FillRecord, 0, len(rows))
	for _, t := range rows {
		fills = append(fills, domain.FillRecord{
			OrderID:       strconv.FormatInt(t.OrderID, 10),
			Side:          domain.ParseSide(t.Side),
			Size:          parseF(t.Qty),
			Price:         parseF(t.Price),
			Fee:           parseF(t.Commission),
			RealizedPnl:   parseF(t.RealizedPnl),
			CreatedTimeMs: t.Time,
			SequenceID:    strconv.FormatInt(t.ID, 10),
		})
	}
	return fills, nil
}

func (c *Client) Ticker(ctx context.Context, instrument string) (domain.PriceSnapshot, error) {
	symbol := c.symbolFor(instrument)
	var bt BookTicker
	if err := c.publicRequest(ctx, pathBookTicker, map[string]any{"symbol": symbol}, &bt); err != nil {
		return domain.PriceSnapshot{}, err
	}

	s := domain.PriceSnapshot{
		Instrument:  symbol,
		Bid:         parseF(bt.BidPrice),
		Ask:         parseF(bt.AskPrice),
		TimestampMs: bt.Time,
	}
	if s.Bid > 0 && s.Ask > 0 {
		s.Mid = (s.Bid + s.Ask) / 2
		s.LastPrice = s.Mid
	}
	return s, nil
}

func (c *Client) Depth(ctx context.Context, instrument string, limit int) (*domain.Orderbook, error) {
	symbol := c.symbolFor(instrument)
	var result DepthResult
	if err := c.publicRequest(ctx, pathDepth, map[string]any{
		"symbol": symbol,
		"limit":  limit,
	}, &result); err != nil {
		return nil, err
	}

	book := &domain.Orderbook{}
	for _, lvl := range result.Bids {
		book.Bids = append(book.Bids, domain.PriceLevel{parseF(lvl[0]), parseF(lvl[1])})
	}
	for _, lvl := range result.Asks {
		book.Asks = append(book.Asks, domain.PriceLevel{parseF(lvl[0]), parseF(lvl[1])})
	}
	return book, nil
}

// CreateListenKey opens a user data stream and returns its key.
// The key expires unless KeepAliveListenKey is called periodically.
func (c *Client) CreateListenKey(ctx context.Context) (string, error) {
	var result ListenKeyResult
	if err := c.signedRequest(ctx, http.MethodPost, pathListenKey, nil, &result); err != nil {
		return "", err
	}
	if result.ListenKey == "" {
		return "", errors.New("aster: empty listenKey")
	}
	return result.ListenKey, nil
}

func (c *Client) KeepAliveListenKey(ctx context.Context) error {
	return c.signedRequest(ctx, http.MethodPut, pathListenKey, nil, nil)
}

func parseF(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
