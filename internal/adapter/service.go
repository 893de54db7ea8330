// Package adapter 把交易所客户端、执行引擎和行情合并器装配成一个
// NDJSON 边车进程：stdin 进命令，stdout 出事件，stderr 出日志。
package adapter

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/betbot/hedgex/internal/domain"
	"github.com/betbot/hedgex/internal/events"
	"github.com/betbot/hedgex/internal/execution"
	"github.com/betbot/hedgex/internal/feed"
	"github.com/betbot/hedgex/internal/governor"
	"github.com/betbot/hedgex/internal/history"
	"github.com/betbot/hedgex/internal/metrics"
	"github.com/betbot/hedgex/internal/ports"
	"github.com/betbot/hedgex/pkg/syncgroup"
)

// 命令行最大长度（order payload 远小于此，留余量给透传数据）
const maxCommandLine = 1 << 20

type Options struct {
	Venue      string
	Instrument string
	Client     ports.ExchangeClient
	Stream     ports.ExchangeStream // 可为 nil（纯轮询模式）
	Engine     *execution.Engine
	Gov        *governor.Governor
	Feed       feed.Config
	Emitter    *events.Emitter
	History    *history.Store // 可为 nil（不落盘）
	DryRun     bool
}

// Service 一个交易所边车的核心装配体
type Service struct {
	opt       Options
	sessionID string // 每次启动唯一，便于上游区分重启
	log       *logrus.Entry
	merger    *feed.Merger
	sg        *syncgroup.SyncGroup

	seenMu sync.Mutex
	seen   map[string]struct{}

	cmdWG sync.WaitGroup
}

func New(opt Options) *Service {
	sessionID := uuid.NewString()
	s := &Service{
		opt:       opt,
		sessionID: sessionID,
		log:       logrus.WithFields(logrus.Fields{"venue": opt.Venue, "session": sessionID}),
		sg:        syncgroup.NewSyncGroup(),
		seen:      make(map[string]struct{}),
	}
	s.merger = feed.NewMerger(opt.Feed, opt.Client.Depth, func(snap domain.PriceSnapshot) {
		metrics.PriceUpdates.Add(1)
		opt.Emitter.Emit(events.TypePriceUpdate, snap)
	})
	return s
}

// Run 启动边车并阻塞到 ctx 取消或 stdin 关闭。
func (s *Service) Run(ctx context.Context, stdin io.Reader) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.opt.Stream != nil {
		if err := s.opt.Stream.Subscribe(runCtx, s.opt.Instrument, s.streamHandlers()); err != nil {
			return err
		}
		defer s.opt.Stream.Close()
	} else {
		// 没有推送流也算"已连接"：拉取路径马上开始出快照
		s.opt.Emitter.Emit(events.TypeConnected, s.lifecyclePayload())
	}

	s.sg.Add(func() { s.merger.Run(runCtx) })
	s.sg.Add(func() {
		s.commandLoop(runCtx, stdin)
		s.cmdWG.Wait() // 在途命令处理完再收尾
		cancel()       // stdin 关闭即退出
	})
	s.sg.Run()

	ready := s.lifecyclePayload()
	ready["instrument"] = s.opt.Instrument
	s.opt.Emitter.Emit(events.TypeReady, ready)

	s.sg.Wait()
	s.cmdWG.Wait()
	s.opt.Emitter.Emit(events.TypeShutdown, s.lifecyclePayload())
	return nil
}

// lifecyclePayload connected/ready/shutdown 事件的公共字段
func (s *Service) lifecyclePayload() map[string]string {
	return map[string]string{"venue": s.opt.Venue, "session": s.sessionID}
}

func (s *Service) streamHandlers() ports.StreamHandlers {
	return ports.StreamHandlers{
		OnConnected: func() {
			s.opt.Emitter.Emit(events.TypeConnected, s.lifecyclePayload())
		},
		OnDisconnected: func(err error) {
			p := s.lifecyclePayload()
			p["error"] = err.Error()
			s.opt.Emitter.Emit(events.TypeDisconnected, p)
		},
		OnTicker: s.merger.OnPush,
		OnTrade: func(raw json.RawMessage) {
			s.opt.Emitter.Emit(events.TypeTradeUpdate, raw)
		},
		OnOrder: func(raw json.RawMessage) {
			s.opt.Emitter.Emit(events.TypeOrdersUpdate, raw)
		},
		OnPosition: func(raw json.RawMessage) {
			s.opt.Emitter.Emit(events.TypePositionsUpdate, raw)
		},
		OnAccount: func(raw json.RawMessage) {
			s.opt.Emitter.Emit(events.TypeAccountUpdate, raw)
		},
		OnFill: func(fill domain.FillRecord, raw json.RawMessage) {
			s.opt.Emitter.Emit(events.TypeFillUpdate, raw)
		},
	}
}

// commandLoop 逐行读 stdin。坏行回 error 事件但不终止；
// 每条命令独立 goroutine 处理，避免 create_order 的结算等待阻塞后续命令。
func (s *Service) commandLoop(ctx context.Context, stdin io.Reader) {
	scanner := bufio.NewScanner(stdin)
	scanner.Buffer(make([]byte, 64*1024), maxCommandLine)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		cmd, err := domain.ParseCommand(line)
		if err != nil {
			s.log.Warnf("丢弃无法解析的命令行: %v", err)
			s.opt.Emitter.Emit(events.TypeError, map[string]string{"error": err.Error()})
			continue
		}

		if !s.markSeen(cmd.ID) {
			metrics.CommandsDuplicate.Add(1)
			s.log.Warnf("重复命令 id=%s action=%s，已忽略", cmd.ID, cmd.Action)
			continue
		}

		c := *cmd
		s.cmdWG.Add(1)
		go func() {
			defer s.cmdWG.Done()
			s.dispatch(ctx, &c)
		}()
	}
	if err := scanner.Err(); err != nil {
		s.log.Errorf("读取命令失败: %v", err)
	}
}

// markSeen 返回该 id 是否第一次出现。空 id 不参与去重。
func (s *Service) markSeen(id string) bool {
	if id == "" {
		return true
	}
	s.seenMu.Lock()
	defer s.seenMu.Unlock()
	if _, dup := s.seen[id]; dup {
		return false
	}
	s.seen[id] = struct{}{}
	return true
}

func (s *Service) dispatch(ctx context.Context, cmd *domain.Command) {
	var (
		data any
		err  error
	)

	switch cmd.Action {
	case domain.ActionCreateOrder:
		data, err = s.handleCreateOrder(ctx, cmd)
	case domain.ActionCancelOrder:
		data, err = s.handleCancelOrder(ctx, cmd)
	case domain.ActionGetActiveOrders:
		data, err = s.governedRaw(ctx, s.opt.Client.ActiveOrders)
	case domain.ActionGetPositions:
		data, err = s.handleGetPositions(ctx)
	case domain.ActionGetPosition:
		data, err = s.handleGetPosition(ctx, cmd)
	case domain.ActionGetPrice:
		data, err = s.handleGetPrice(ctx, cmd)
	case domain.ActionGetAccount:
		data, err = s.handleGetAccount(ctx)
	default:
		err = domain.ErrUnknownAction
	}

	metrics.CommandsProcessed.Add(1)
	s.opt.Emitter.EmitResult(cmd.ID, cmd.Action, data, err)
}

func (s *Service) handleCreateOrder(ctx context.Context, cmd *domain.Command) (any, error) {
	var params domain.CreateOrderParams
	if err := json.Unmarshal(cmd.Params, &params); err != nil {
		return nil, err
	}
	req := params.OrderRequest()
	if req.Instrument == "" {
		req.Instrument = s.opt.Instrument
	}

	if s.opt.DryRun {
		s.log.Infof("[dry-run] %s %v %s", req.Side, req.Size, req.Instrument)
		return map[string]any{"dry_run": true, "request": req}, nil
	}

	res, err := s.opt.Engine.Submit(ctx, req)
	metrics.OrdersSubmitted.Add(1)
	if err != nil {
		metrics.OrdersFailed.Add(1)
	} else if res != nil && res.Fill != nil && res.Fill.Filled {
		metrics.FillsReconciled.Add(1)
	}
	if res != nil && s.opt.History != nil {
		if herr := s.opt.History.RecordExecution(ctx, s.opt.Venue, req.Instrument,
			string(req.Side), req.Size, res); herr != nil {
			s.log.Warnf("写入执行历史失败: %v", herr)
		}
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Service) handleCancelOrder(ctx context.Context, cmd *domain.Command) (any, error) {
	var params domain.CancelOrderParams
	if err := json.Unmarshal(cmd.Params, &params); err != nil {
		return nil, err
	}
	return s.opt.Engine.Cancel(ctx, params.OrderID)
}

func (s *Service) handleGetPositions(ctx context.Context) (any, error) {
	raw, err := s.governedRaw(ctx, s.opt.Client.Positions)
	if err != nil {
		return nil, err
	}
	s.opt.Emitter.Emit(events.TypePositionsUpdate, raw)
	return raw, nil
}

func (s *Service) handleGetPosition(ctx context.Context, cmd *domain.Command) (any, error) {
	instrument := s.instrumentFrom(cmd.Params)
	var pos domain.Position
	err := s.opt.Gov.Do(ctx, func(ctx context.Context) error {
		var err error
		pos, err = s.opt.Client.Position(ctx, instrument)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pos, nil
}

// handleGetPrice 走公开行情端点，不占用 Governor 配额
func (s *Service) handleGetPrice(ctx context.Context, cmd *domain.Command) (any, error) {
	instrument := s.instrumentFrom(cmd.Params)
	snap, err := s.opt.Client.Ticker(ctx, instrument)
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *Service) handleGetAccount(ctx context.Context) (any, error) {
	reader, ok := s.opt.Client.(ports.AccountReader)
	if !ok {
		return nil, domain.ErrUnknownAction
	}
	raw, err := s.governedRaw(ctx, reader.Account)
	if err != nil {
		return nil, err
	}
	s.opt.Emitter.Emit(events.TypeAccountUpdate, raw)
	return raw, nil
}

func (s *Service) governedRaw(ctx context.Context, call func(context.Context) (json.RawMessage, error)) (json.RawMessage, error) {
	var raw json.RawMessage
	err := s.opt.Gov.Do(ctx, func(ctx context.Context) error {
		var err error
		raw, err = call(ctx)
		return err
	})
	return raw, err
}

func (s *Service) instrumentFrom(params json.RawMessage) string {
	var p domain.InstrumentParams
	if len(params) > 0 {
		_ = json.Unmarshal(params, &p)
	}
	if v := p.Instrument(); v != "" {
		return v
	}
	return s.opt.Instrument
}
