package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/betbot/hedgex/internal/domain"
	"github.com/betbot/hedgex/internal/feed"
	"github.com/betbot/hedgex/internal/ports"
	"github.com/betbot/hedgex/pkg/config"
	"github.com/betbot/hedgex/pkg/logger"
	"github.com/betbot/hedgex/pkg/sdk/aster"
	"github.com/betbot/hedgex/pkg/sdk/edgex"
)

const bookDepth = 5 // 显示买五、卖五

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	venueStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	bidStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("2")) // 绿色

	askStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1")) // 红色

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238"))

	priceStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))
)

// venueSnap 带交易所标签的快照
type venueSnap struct {
	venue string
	snap  domain.PriceSnapshot
}

// tickMsg 定时刷新
type tickMsg time.Time

type model struct {
	edgexSnap domain.PriceSnapshot
	asterSnap domain.PriceSnapshot
	edgexAt   time.Time
	asterAt   time.Time

	snapCh <-chan venueSnap
	err    error
	cancel context.CancelFunc
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitSnapCmd(ch <-chan venueSnap) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return nil
		}
		return s
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), waitSnapCmd(m.snapCh))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}

	case venueSnap:
		switch msg.venue {
		case "edgex":
			m.edgexSnap = msg.snap
			m.edgexAt = time.Now()
		case "aster":
			m.asterSnap = msg.snap
			m.asterAt = time.Now()
		}
		return m, waitSnapCmd(m.snapCh)

	case tickMsg:
		return m, tickCmd()

	case error:
		m.err = msg
		return m, nil
	}
	return m, nil
}

func (m model) View() string {
	if m.err != nil {
		return fmt.Sprintf("错误: %v\n\n按 q 退出", m.err)
	}

	var s strings.Builder

	spread := "N/A"
	if m.edgexSnap.Mid > 0 && m.asterSnap.Mid > 0 {
		spread = fmt.Sprintf("%+.2f", m.edgexSnap.Mid-m.asterSnap.Mid)
	}
	header := headerStyle.Render(fmt.Sprintf(
		"edgeX: %s | Aster: %s | 价差: %s",
		fmtMid(m.edgexSnap.Mid), fmtMid(m.asterSnap.Mid), spread))
	s.WriteString(header)
	s.WriteString("\n\n")

	left := renderVenue("edgeX", m.edgexSnap, m.edgexAt)
	right := renderVenue("Aster", m.asterSnap, m.asterAt)
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", right))
	s.WriteString("\n\n按 q 退出")

	return s.String()
}

func fmtMid(v float64) string {
	if v <= 0 {
		return "N/A"
	}
	return fmt.Sprintf("$%.2f", v)
}

func renderVenue(title string, snap domain.PriceSnapshot, at time.Time) string {
	var s strings.Builder
	s.WriteString(venueStyle.Render(title))
	s.WriteString("\n")

	if at.IsZero() {
		s.WriteString("等待数据...\n")
		return borderStyle.Render(s.String())
	}

	age := time.Since(at).Round(time.Second)
	s.WriteString(fmt.Sprintf("更新于 %v 前\n\n", age))

	if snap.Orderbook != nil {
		asks := snap.Orderbook.Asks
		if len(asks) > bookDepth {
			asks = asks[:bookDepth]
		}
		// 卖盘从高到低显示，最优价贴近中间
		for i := len(asks) - 1; i >= 0; i-- {
			s.WriteString(askStyle.Render(fmt.Sprintf("%10.2f  %10.4f", asks[i][0], asks[i][1])))
			s.WriteString("\n")
		}
	} else if snap.Ask > 0 {
		s.WriteString(askStyle.Render(fmt.Sprintf("%10.2f", snap.Ask)))
		s.WriteString("\n")
	}

	s.WriteString(priceStyle.Render(fmt.Sprintf("  mid %.2f", snap.Mid)))
	s.WriteString("\n")

	if snap.Orderbook != nil {
		bids := snap.Orderbook.Bids
		if len(bids) > bookDepth {
			bids = bids[:bookDepth]
		}
		for _, lvl := range bids {
			s.WriteString(bidStyle.Render(fmt.Sprintf("%10.2f  %10.4f", lvl[0], lvl[1])))
			s.WriteString("\n")
		}
	} else if snap.Bid > 0 {
		s.WriteString(bidStyle.Render(fmt.Sprintf("%10.2f", snap.Bid)))
		s.WriteString("\n")
	}

	return borderStyle.Render(s.String())
}

// startVenueFeed 起一路行情：公开 WS 推送 + REST 深度轮询，汇到 out
func startVenueFeed(ctx context.Context, venue, instrument string, client ports.ExchangeClient,
	stream ports.ExchangeStream, fc config.FeedConfig, out chan<- venueSnap) error {

	merger := feed.NewMerger(feed.Config{
		Venue:        venue,
		Instrument:   instrument,
		PollInterval: fc.PollInterval,
		PullTimeout:  fc.PullTimeout,
		ErrBackoff:   fc.ErrBackoff,
		MinDepth:     fc.MinDepth,
		BookDepth:    fc.BookDepth,
	}, client.Depth, func(snap domain.PriceSnapshot) {
		select {
		case out <- venueSnap{venue: venue, snap: snap}:
		case <-ctx.Done():
		}
	})

	if err := stream.Subscribe(ctx, instrument, ports.StreamHandlers{
		OnTicker: merger.OnPush,
	}); err != nil {
		return err
	}
	go merger.Run(ctx)
	return nil
}

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "配置文件路径（.yaml/.yml/.json）")
	flag.Parse()

	if *configPath != "" {
		config.SetConfigPath(*configPath)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 行情全走公开端点，不需要凭证；日志只进文件，终端留给 TUI
	logFile := cfg.LogFile
	if logFile == "" {
		logFile = "logs/price-watcher.log"
	}
	if err := logger.Init(logger.Config{Level: cfg.LogLevel, OutputFile: logFile}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	logrus.SetOutput(os.NewFile(0, os.DevNull))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	snapCh := make(chan venueSnap, 16)

	edgexClient := edgex.NewClient(edgex.Config{
		BaseURL:    cfg.EdgeX.BaseURL,
		ContractID: cfg.EdgeX.ContractID,
	})
	if err := startVenueFeed(ctx, "edgex", cfg.EdgeX.ContractID, edgexClient,
		edgex.NewStream(cfg.EdgeX.WsURL, cfg.EdgeX.ContractID), cfg.Feed, snapCh); err != nil {
		fmt.Fprintf(os.Stderr, "edgex 行情启动失败: %v\n", err)
		os.Exit(1)
	}

	asterClient := aster.NewClient(aster.Config{
		BaseURL: cfg.Aster.BaseURL,
		Symbol:  cfg.Aster.Symbol,
	})
	if err := startVenueFeed(ctx, "aster", cfg.Aster.Symbol, asterClient,
		aster.NewStream(cfg.Aster.WsURL, cfg.Aster.Symbol, nil), cfg.Feed, snapCh); err != nil {
		fmt.Fprintf(os.Stderr, "aster 行情启动失败: %v\n", err)
		os.Exit(1)
	}

	p := tea.NewProgram(model{snapCh: snapCh, cancel: cancel}, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI 退出: %v\n", err)
		os.Exit(1)
	}
}
