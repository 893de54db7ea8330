package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/betbot/hedgex/internal/adapter"
	"github.com/betbot/hedgex/internal/events"
	"github.com/betbot/hedgex/internal/execution"
	"github.com/betbot/hedgex/internal/feed"
	"github.com/betbot/hedgex/internal/governor"
	"github.com/betbot/hedgex/internal/history"
	"github.com/betbot/hedgex/internal/metrics"
	"github.com/betbot/hedgex/pkg/config"
	"github.com/betbot/hedgex/pkg/logger"
	"github.com/betbot/hedgex/pkg/sdk/aster"
	"github.com/betbot/hedgex/pkg/secretstore"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "配置文件路径（.yaml/.yml/.json）")
	dryRun := flag.Bool("dry-run", false, "纸交易模式：不真实下单")
	metricsAddr := flag.String("metrics", os.Getenv("METRICS_ADDR"), "debug/metrics 监听地址（空则不启用）")
	secretsPath := flag.String("secrets", os.Getenv("SECRETS_PATH"), "加密凭证库路径（可选）")
	flag.Parse()

	if *configPath != "" {
		config.SetConfigPath(*configPath)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	cfg.Venue = "aster"
	if *dryRun {
		cfg.DryRun = true
	}

	if err := logger.Init(logger.Config{Level: cfg.LogLevel, OutputFile: cfg.LogFile}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	if *secretsPath != "" {
		if err := fillFromSecretStore(cfg, *secretsPath); err != nil {
			logrus.Errorf("读取凭证库失败: %v", err)
			os.Exit(1)
		}
	}
	if err := cfg.ValidateVenue("aster"); err != nil {
		logrus.Errorf("配置校验失败: %v", err)
		os.Exit(1)
	}

	client := aster.NewClient(aster.Config{
		BaseURL:   cfg.Aster.BaseURL,
		APIKey:    cfg.Aster.APIKey,
		APISecret: cfg.Aster.APISecret,
		Symbol:    cfg.Aster.Symbol,
	})
	// listenKey 由同一个 REST 客户端管理，user stream 才能带上成交推送
	stream := aster.NewStream(cfg.Aster.WsURL, cfg.Aster.Symbol, client)
	gov := governor.New("aster", cfg.Governor.MinInterval)
	eng := execution.NewEngine(execution.Config{
		Venue:          "aster",
		SettleWait:     cfg.Execution.SettleWait,
		FillWindowBack: cfg.Execution.FillWindowBack,
		FillPageSize:   cfg.Execution.FillPageSize,
	}, client, gov)

	var store *history.Store
	if cfg.HistoryDB != "" {
		store, err = history.Open(cfg.HistoryDB)
		if err != nil {
			logrus.Errorf("打开历史库失败: %v", err)
			os.Exit(1)
		}
		defer store.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		stopCh := make(chan os.Signal, 1)
		signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
		<-stopCh
		logrus.Info("收到退出信号")
		cancel()
	}()

	if _, err := metrics.StartAsync(ctx, *metricsAddr); err != nil {
		logrus.Warnf("metrics 服务启动失败: %v", err)
	}

	svc := adapter.New(adapter.Options{
		Venue:      "aster",
		Instrument: cfg.Aster.Symbol,
		Client:     client,
		Stream:     stream,
		Engine:     eng,
		Gov:        gov,
		Feed: feed.Config{
			Venue:        "aster",
			Instrument:   cfg.Aster.Symbol,
			PollInterval: cfg.Feed.PollInterval,
			PullTimeout:  cfg.Feed.PullTimeout,
			ErrBackoff:   cfg.Feed.ErrBackoff,
			MinDepth:     cfg.Feed.MinDepth,
			BookDepth:    cfg.Feed.BookDepth,
		},
		Emitter: events.NewEmitter(os.Stdout),
		History: store,
		DryRun:  cfg.DryRun,
	})

	logrus.Infof("aster 边车启动 symbol=%s dry_run=%v", cfg.Aster.Symbol, cfg.DryRun)
	if err := svc.Run(ctx, os.Stdin); err != nil {
		logrus.Errorf("边车退出: %v", err)
		os.Exit(1)
	}
	logrus.Info("aster 边车已退出")
}

func fillFromSecretStore(cfg *config.Config, path string) error {
	var key []byte
	if raw := os.Getenv("SECRETS_KEY"); raw != "" {
		parsed, err := secretstore.ParseKey(raw)
		if err != nil {
			return err
		}
		key = parsed
	}
	store, err := secretstore.Open(secretstore.OpenOptions{
		Path:          path,
		EncryptionKey: key,
		ReadOnly:      true,
	})
	if err != nil {
		return err
	}
	defer store.Close()
	return cfg.FillSecrets(store)
}
