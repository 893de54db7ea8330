package aster

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/betbot/hedgex/internal/domain"
	"github.com/betbot/hedgex/internal/ports"
)

const (
	wsHandshakeWait    = 10 * time.Second
	wsReconnectDelay   = 1 * time.Second
	wsMaxReconnectGap  = 30 * time.Second
	listenKeyKeepAlive = 30 * time.Minute
)

// Stream subscribes to the <symbol>@bookTicker market stream, the
// <symbol>@aggTrade public trade stream (when a trade handler is set)
// and, when a listen key source is provided, the user data stream.
type Stream struct {
	baseURL string
	symbol  string
	keys    ListenKeySource // nil disables the user stream
	log     *logrus.Entry

	mu      sync.Mutex
	conns   []*websocket.Conn
	cancel  context.CancelFunc
	started bool
}

// ListenKeySource mints and refreshes user data stream keys.
// *Client satisfies it.
type ListenKeySource interface {
	CreateListenKey(ctx context.Context) (string, error)
	KeepAliveListenKey(ctx context.Context) error
}

func NewStream(wsBaseURL, symbol string, keys ListenKeySource) *Stream {
	return &Stream{
		baseURL: strings.TrimSuffix(wsBaseURL, "/"),
		symbol:  symbol,
		keys:    keys,
		log:     logrus.WithField("sdk", "aster-ws"),
	}
}

func (s *Stream) Subscribe(ctx context.Context, instrument string, h ports.StreamHandlers) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	symbol := s.symbol
	if instrument != "" {
		symbol = instrument
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	marketURL := s.baseURL + "/ws/" + strings.ToLower(symbol) + "@bookTicker"
	go s.runConn(runCtx, marketURL, func(data []byte) {
		s.handleBookTicker(data, symbol, h)
	}, h.OnConnected, h.OnDisconnected)

	if h.OnTrade != nil {
		tradeURL := s.baseURL + "/ws/" + strings.ToLower(symbol) + "@aggTrade"
		go s.runConn(runCtx, tradeURL, func(data []byte) {
			s.handleAggTrade(data, symbol, h)
		}, nil, nil)
	}

	if s.keys != nil {
		go s.runUserStream(runCtx, h)
	}
	return nil
}

func (s *Stream) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Lock()
	for _, conn := range s.conns {
		conn.Close()
	}
	s.conns = nil
	s.mu.Unlock()
	return nil
}

// runConn dials url and pumps frames into handle, reconnecting with a
// linear backoff until ctx is cancelled.
func (s *Stream) runConn(ctx context.Context, url string, handle func([]byte), onConnected func(), onDisconnected func(error)) {
	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeWait}
		conn, _, err := dialer.Dial(url, nil)
		if err != nil {
			attempts++
			delay := wsReconnectDelay * time.Duration(attempts)
			if delay > wsMaxReconnectGap {
				delay = wsMaxReconnectGap
			}
			s.log.Warnf("dial %s failed: %v, retrying in %v", url, err, delay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}
		attempts = 0

		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()

		if onConnected != nil {
			onConnected()
		}

		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				conn.Close()
				if onDisconnected != nil {
					onDisconnected(err)
				}
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return
				}
				s.log.Warnf("read error on %s: %v, reconnecting", url, err)
				break
			}
			handle(message)
		}
	}
}

func (s *Stream) handleBookTicker(data []byte, symbol string, h ports.StreamHandlers) {
	if h.OnTicker == nil {
		return
	}
	var ev bookTickerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return
	}
	if ev.Symbol != "" && !strings.EqualFold(ev.Symbol, symbol) {
		return
	}

	bid, ask := parseF(ev.BidPrice), parseF(ev.AskPrice)
	if bid <= 0 || ask <= 0 {
		return
	}
	h.OnTicker(domain.PriceSnapshot{
		Instrument:  symbol,
		Bid:         bid,
		Ask:         ask,
		Mid:         (bid + ask) / 2,
		LastPrice:   (bid + ask) / 2,
		TimestampMs: ev.EventTime,
	})
}

// handleAggTrade forwards public trade frames raw after a symbol check.
func (s *Stream) handleAggTrade(data []byte, symbol string, h ports.StreamHandlers) {
	var ev aggTradeEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return
	}
	if ev.EventType != "aggTrade" {
		return
	}
	if ev.Symbol != "" && !strings.EqualFold(ev.Symbol, symbol) {
		return
	}
	h.OnTrade(json.RawMessage(data))
}

// runUserStream opens the listen-key stream and keeps the key alive.
func (s *Stream) runUserStream(ctx context.Context, h ports.StreamHandlers) {
	key, err := s.keys.CreateListenKey(ctx)
	if err != nil {
		s.log.Errorf("creating listenKey: %v", err)
		return
	}

	go func() {
		ticker := time.NewTicker(listenKeyKeepAlive)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.keys.KeepAliveListenKey(ctx); err != nil {
					s.log.Warnf("listenKey keepalive failed: %v", err)
				}
			}
		}
	}()

	s.runConn(ctx, s.baseURL+"/ws/"+key, func(data []byte) {
		s.handleUserFrame(data, h)
	}, nil, nil)
}

// orderTradeUpdate is the ORDER_TRADE_UPDATE payload subset we map to fills.
type orderTradeUpdate struct {
	Order struct {
		OrderID       int64  `json:"i"`
		Side          string `json:"S"`
		ExecutionType string `json:"x"`
		LastFilledQty string `json:"l"`
		LastFilledPx  string `json:"L"`
		Commission    string `json:"n"`
		RealizedPnl   string `json:"rp"`
		TradeTime     int64  `json:"T"`
		TradeID       int64  `json:"t"`
	} `json:"o"`
}

func (s *Stream) handleUserFrame(data []byte, h ports.StreamHandlers) {
	var ev userStreamEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return
	}

	switch ev.EventType {
	case "ORDER_TRADE_UPDATE":
		if h.OnOrder != nil {
			h.OnOrder(json.RawMessage(data))
		}
		if h.OnFill == nil {
			return
		}
		var upd orderTradeUpdate
		if err := json.Unmarshal(data, &upd); err != nil {
			return
		}
		if upd.Order.ExecutionType != "TRADE" {
			return
		}
		h.OnFill(domain.FillRecord{
			OrderID:       strconvFormatInt(upd.Order.OrderID),
			Side:          domain.ParseSide(upd.Order.Side),
			Size:          parseF(upd.Order.LastFilledQty),
			Price:         parseF(upd.Order.LastFilledPx),
			Fee:           parseF(upd.Order.Commission),
			RealizedPnl:   parseF(upd.Order.RealizedPnl),
			CreatedTimeMs: upd.Order.TradeTime,
			SequenceID:    strconvFormatInt(upd.Order.TradeID),
		}, json.RawMessage(data))
	case "ACCOUNT_UPDATE":
		if h.OnAccount != nil {
			h.OnAccount(json.RawMessage(data))
		}
		if h.OnPosition != nil {
			h.OnPosition(json.RawMessage(data))
		}
	}
}

func strconvFormatInt(v int64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatInt(v, 10)
}
