// Package edgex is a minimal edgeX perpetuals client covering the
// endpoints the hedging sidecars need: order entry, fill transactions,
// positions, account and public depth.
package edgex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/hedgex/internal/domain"
	"github.com/betbot/hedgex/pkg/sdk/httpx"
)

const (
	pathCreateOrder  = "/api/v1/private/order/createOrder"
	pathCancelOrder  = "/api/v1/private/order/cancelOrder"
	pathActiveOrders = "/api/v1/private/order/getActiveOrderPage"
	pathFillTx       = "/api/v1/private/order/getOrderFillTransaction"
	pathGetPositions = "/api/v1/private/account/getPositions"
	pathGetAccount   = "/api/v1/private/account/getAccountAsset"
	pathGetDepth     = "/api/v1/public/quote/getDepth"
	pathGetTicker    = "/api/v1/public/quote/getTicker"
)

type Config struct {
	BaseURL    string
	AccountID  string
	ContractID string // default instrument when a command omits one
	Signer     Signer
	Timeout    time.Duration
}

type Client struct {
	http *httpx.Client
	cfg  Config
	log  *logrus.Entry
}

func NewClient(cfg Config) *Client {
	return &Client{
		http: httpx.NewClient(cfg.BaseURL, cfg.Timeout),
		cfg:  cfg,
		log:  logrus.WithField("sdk", "edgex"),
	}
}

// contractFor maps an instrument argument onto a contract id,
// falling back to the configured default.
func (c *Client) contractFor(instrument string) string {
	if instrument != "" {
		return instrument
	}
	return c.cfg.ContractID
}

// unwrap decodes the edgeX envelope and surfaces non-SUCCESS codes as errors.
func unwrap(env *Envelope, path string) (json.RawMessage, error) {
	if env.Code != codeSuccess {
		return nil, errors.Errorf("edgex %s: %s (%s)", path, env.Msg, env.Code)
	}
	return env.Data, nil
}

// getPrivate issues a signed GET. The signature covers the sorted query
// string, so the exact same encoding must go on the wire.
func (c *Client) getPrivate(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	query := params.Encode()
	headers, err := AuthHeaders(c.cfg.Signer, http.MethodGet, path, query)
	if err != nil {
		return nil, errors.Wrap(err, "signing request")
	}
	var env Envelope
	if err := c.http.DoRequest(ctx, http.MethodGet, path, &httpx.RequestOptions{
		Headers:  headers,
		RawQuery: query,
	}, &env); err != nil {
		return nil, err
	}
	return unwrap(&env, path)
}

// postPrivate issues a signed POST with a JSON body. The signature covers
// the body fields sorted by key.
func (c *Client) postPrivate(ctx context.Context, path string, body map[string]any) (json.RawMessage, error) {
	params := url.Values{}
	for k, v := range body {
		params.Set(k, fmt.Sprint(v))
	}
	headers, err := AuthHeaders(c.cfg.Signer, http.MethodPost, path, params.Encode())
	if err != nil {
		return nil, errors.Wrap(err, "signing request")
	}
	var env Envelope
	if err := c.http.DoRequest(ctx, http.MethodPost, path, &httpx.RequestOptions{
		Headers: headers,
		Data:    body,
	}, &env); err != nil {
		return nil, err
	}
	return unwrap(&env, path)
}

func (c *Client) SubmitOrder(ctx context.Context, req domain.OrderRequest) (string, json.RawMessage, error) {
	body := map[string]any{
		"accountId":   c.cfg.AccountID,
		"contractId":  c.contractFor(req.Instrument),
		"side":        string(req.Side),
		"orderType":   string(req.Type),
		"quantity":    strconv.FormatFloat(req.Size, 'f', -1, 64),
		"timeInForce": "IOC",
	}
	if req.Type == domain.OrderTypeLimit {
		body["price"] = strconv.FormatFloat(req.Price, 'f', -1, 64)
	}

	data, err := c.postPrivate(ctx, pathCreateOrder, body)
	if err != nil {
		return "", nil, err
	}
	var result CreateOrderResult
	if err := json.Unmarshal(data, &result); err != nil {
		// 撮合可能已经发生，把解析失败当作"拿不到 id"而不是吞掉响应
		return "", data, errors.Wrap(err, "decoding createOrder response")
	}
	return result.OrderID, data, nil
}

func (c *Client) CancelOrder(ctx context.Context, orderID string) (json.RawMessage, error) {
	return c.postPrivate(ctx, pathCancelOrder, map[string]any{
		"accountId": c.cfg.AccountID,
		"orderId":   orderID,
	})
}

func (c *Client) ActiveOrders(ctx context.Context) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("accountId", c.cfg.AccountID)
	params.Set("size", "100")
	return c.getPrivate(ctx, pathActiveOrders, params)
}

func (c *Client) Positions(ctx context.Context) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("accountId", c.cfg.AccountID)
	return c.getPrivate(ctx, pathGetPositions, params)
}

func (c *Client) Position(ctx context.Context, instrument string) (domain.Position, error) {
	contract := c.contractFor(instrument)
	raw, err := c.Positions(ctx)
	if err != nil {
		return domain.Position{}, err
	}

	var payload PositionsPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return domain.Position{}, errors.Wrap(err, "decoding getPositions response")
	}

	pos := domain.FlatPosition(contract)
	for _, row := range payload.PositionList {
		if row.ContractID != contract {
			continue
		}
		pos.SignedSize = parseF(row.OpenSize)
		break
	}
	for _, asset := range payload.PositionAssetList {
		if asset.ContractID != contract {
			continue
		}
		pos.EntryPrice = parseF(asset.AvgEntryPrice)
		pos.UnrealizedPnl = parseF(asset.UnrealizePnl)
		break
	}
	pos.DeriveSide()
	return pos, nil
}

func (c *Client) Account(ctx context.Context) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("accountId", c.cfg.AccountID)
	return c.getPrivate(ctx, pathGetAccount, params)
}

func (c *Client) FillsByOrderID(ctx context.Context, instrument, orderID string, limit int) ([]domain.FillRecord, error) {
	params := url.Values{}
	params.Set("accountId", c.cfg.AccountID)
	params.Set("size", strconv.Itoa(limit))
	params.Set("filterOrderIdList", orderID)
	return c.queryFills(ctx, params)
}

func (c *Client) FillsByWindow(ctx context.Context, instrument string, startMs, endMs int64, limit int) ([]domain.FillRecord, error) {
	params := url.Values{}
	params.Set("accountId", c.cfg.AccountID)
	params.Set("size", strconv.Itoa(limit))
	params.Set("filterContractIdList", c.contractFor(instrument))
	params.Set("filterStartCreatedTimeInclusive", strconv.FormatInt(startMs, 10))
	params.Set("filterEndCreatedTimeExclusive", strconv.FormatInt(endMs, 10))
	return c.queryFills(ctx, params)
}

func (c *Client) queryFills(ctx context.Context, params url.Values) ([]domain.FillRecord, error) {
	data, err := c.getPrivate(ctx, pathFillTx, params)
	if err != nil {
		return nil, err
	}
	var page FillPage
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, errors.Wrap(err, "decoding fill transactions")
	}

	fills := make([]domain.FillRecord, 0, len(page.DataList))
	for _, tx := range page.DataList {
		size := parseF(tx.FillSize)
		value := parseF(tx.FillValue)
		// 流水只给 fillValue（名义金额），单价要自己除回来
		price := 0.0
		if size > 0 {
			price = value / size
		}
		fills = append(fills, domain.FillRecord{
			OrderID:       tx.OrderID,
			Side:          domain.ParseSide(tx.Direction),
			Size:          size,
			Price:         price,
			Fee:           parseF(tx.FillFee),
			RealizedPnl:   parseF(tx.RealizePnl),
			CreatedTimeMs: tx.CreatedTime,
			SequenceID:    tx.ID,
		})
	}
	return fills, nil
}

func (c *Client) Ticker(ctx context.Context, instrument string) (domain.PriceSnapshot, error) {
	contract := c.contractFor(instrument)
	var env Envelope
	err := c.http.DoRequest(ctx, http.MethodGet, pathGetTicker, &httpx.RequestOptions{
		Params: map[string]any{"contractId": contract},
	}, &env)
	if err != nil {
		return domain.PriceSnapshot{}, err
	}
	data, err := unwrap(&env, pathGetTicker)
	if err != nil {
		return domain.PriceSnapshot{}, err
	}

	var rows []TickerData
	if err := json.Unmarshal(data, &rows); err != nil {
		return domain.PriceSnapshot{}, errors.Wrap(err, "decoding ticker")
	}
	if len(rows) == 0 {
		return domain.PriceSnapshot{}, errors.New("edgex ticker: empty response")
	}
	return snapshotFromTicker(contract, &rows[0]), nil
}

func (c *Client) Depth(ctx context.Context, instrument string, limit int) (*domain.Orderbook, error) {
	contract := c.contractFor(instrument)
	var env Envelope
	err := c.http.DoRequest(ctx, http.MethodGet, pathGetDepth, &httpx.RequestOptions{
		Params: map[string]any{
			"contractId": contract,
			"level":      limit,
		},
	}, &env)
	if err != nil {
		return nil, err
	}
	data, err := unwrap(&env, pathGetDepth)
	if err != nil {
		return nil, err
	}

	var payloads []DepthPayload
	if err := json.Unmarshal(data, &payloads); err != nil {
		return nil, errors.Wrap(err, "decoding depth")
	}
	if len(payloads) == 0 {
		return nil, errors.New("edgex depth: empty response")
	}

	book := &domain.Orderbook{}
	for _, e := range payloads[0].Bids {
		book.Bids = append(book.Bids, domain.PriceLevel{parseF(e.Price), parseF(e.Size)})
	}
	for _, e := range payloads[0].Asks {
		book.Asks = append(book.Asks, domain.PriceLevel{parseF(e.Price), parseF(e.Size)})
	}
	return book, nil
}

// snapshotFromTicker prefers best bid/ask mid, falling back to last price.
func snapshotFromTicker(contract string, t *TickerData) domain.PriceSnapshot {
	s := domain.PriceSnapshot{
		Instrument:  contract,
		Bid:         parseF(t.BestBidPrice),
		Ask:         parseF(t.BestAskPrice),
		LastPrice:   parseF(t.LastPrice),
		TimestampMs: t.EndTime,
	}
	if s.Bid > 0 && s.Ask > 0 {
		s.Mid = (s.Bid + s.Ask) / 2
	} else {
		s.Mid = s.LastPrice
		if s.Bid == 0 {
			s.Bid = s.Mid
		}
		if s.Ask == 0 {
			s.Ask = s.Mid
		}
	}
	return s
}

func parseF(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
