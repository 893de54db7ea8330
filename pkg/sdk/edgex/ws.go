package edgex

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/betbot/hedgex/internal/ports"
)

const (
	publicWsPath      = "/api/v1/public/ws"
	wsPingInterval    = 15 * time.Second
	wsHandshakeWait   = 10 * time.Second
	wsReconnectDelay  = 1 * time.Second
	wsMaxReconnectGap = 30 * time.Second
)

// Stream subscribes to the edgeX public quote stream.
// Frames arrive as quote-events on ticker.<contractId>; reconnects
// resubscribe automatically.
type Stream struct {
	baseURL  string
	contract string
	log      *logrus.Entry

	connMu sync.Mutex
	conn   *websocket.Conn

	cancel context.CancelFunc
	doneCh chan struct{}
}

func NewStream(wsBaseURL, contractID string) *Stream {
	return &Stream{
		baseURL:  strings.TrimSuffix(wsBaseURL, "/"),
		contract: contractID,
		log:      logrus.WithField("sdk", "edgex-ws"),
	}
}

func (s *Stream) Subscribe(ctx context.Context, instrument string, h ports.StreamHandlers) error {
	contract := s.contract
	if instrument != "" {
		contract = instrument
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.doneCh = make(chan struct{})

	if err := s.connect(contract); err != nil {
		cancel()
		return err
	}
	if h.OnConnected != nil {
		h.OnConnected()
	}

	go s.readLoop(runCtx, contract, h)
	go s.pingLoop(runCtx)
	return nil
}

func (s *Stream) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.connMu.Lock()
	if s.conn != nil {
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.conn.Close()
		s.conn = nil
	}
	s.connMu.Unlock()

	if s.doneCh != nil {
		select {
		case <-s.doneCh:
		case <-time.After(5 * time.Second):
			s.log.Warn("websocket close timed out")
		}
	}
	return nil
}

func (s *Stream) connect(contract string) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn != nil {
		s.conn.Close()
	}

	dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeWait}
	conn, _, err := dialer.Dial(s.baseURL+publicWsPath, nil)
	if err != nil {
		return err
	}
	s.conn = conn

	sub := map[string]string{
		"type":    "subscribe",
		"channel": fmt.Sprintf("ticker.%s", contract),
	}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		s.conn = nil
		return err
	}
	s.log.Infof("subscribed to ticker.%s", contract)
	return nil
}

func (s *Stream) readLoop(ctx context.Context, contract string, h ports.StreamHandlers) {
	defer close(s.doneCh)

	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()

		if conn == nil {
			attempts++
			delay := wsReconnectDelay * time.Duration(attempts)
			if delay > wsMaxReconnectGap {
				delay = wsMaxReconnectGap
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			if err := s.connect(contract); err != nil {
				s.log.Warnf("reconnect failed: %v", err)
				continue
			}
			if h.OnConnected != nil {
				h.OnConnected()
			}
			attempts = 0
			continue
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			s.connMu.Lock()
			if s.conn != nil {
				s.conn.Close()
				s.conn = nil
			}
			s.connMu.Unlock()
			if h.OnDisconnected != nil {
				h.OnDisconnected(err)
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			s.log.Warnf("read error: %v, reconnecting", err)
			continue
		}

		s.handleFrame(message, contract, h)
	}
}

func (s *Stream) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.connMu.Lock()
			conn := s.conn
			s.connMu.Unlock()
			if conn == nil {
				continue
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.log.Debugf("ping failed: %v", err)
			}
		}
	}
}

func (s *Stream) handleFrame(data []byte, contract string, h ports.StreamHandlers) {
	var ev quoteEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		s.log.Debugf("unparseable frame: %.120s", data)
		return
	}
	if ev.Type != "quote-event" || !strings.HasPrefix(ev.Channel, "ticker.") {
		return
	}
	if len(ev.Content.Data) == 0 || h.OnTicker == nil {
		return
	}

	var td TickerData
	if err := json.Unmarshal(ev.Content.Data[0], &td); err != nil {
		s.log.Debugf("unparseable ticker payload: %v", err)
		return
	}
	if td.ContractID != "" && td.ContractID != contract {
		return
	}

	snap := snapshotFromTicker(contract, &td)
	if snap.Mid <= 0 {
		return
	}
	h.OnTicker(snap)
}
