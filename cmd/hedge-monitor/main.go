package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/betbot/hedgex/internal/governor"
	"github.com/betbot/hedgex/internal/history"
	"github.com/betbot/hedgex/internal/metrics"
	"github.com/betbot/hedgex/internal/monitor"
	"github.com/betbot/hedgex/internal/reconcile"
	"github.com/betbot/hedgex/pkg/config"
	"github.com/betbot/hedgex/pkg/logger"
	"github.com/betbot/hedgex/pkg/sdk/aster"
	"github.com/betbot/hedgex/pkg/sdk/edgex"
	"github.com/betbot/hedgex/pkg/secretstore"
	"github.com/betbot/hedgex/pkg/shutdown"
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "配置文件路径（.yaml/.yml/.json）")
	listenAddr := flag.String("listen", getenv("MONITOR_LISTEN", ":8091"), "HTTP 监听地址")
	interval := flag.Duration("interval", 30*time.Second, "定时对账间隔")
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
	// 监控面两条腿都要凭证
	if err := cfg.ValidateVenue("edgex"); err != nil {
		logrus.Errorf("edgex 配置校验失败: %v", err)
		os.Exit(1)
	}
	if err := cfg.ValidateVenue("aster"); err != nil {
		logrus.Errorf("aster 配置校验失败: %v", err)
		os.Exit(1)
	}

	signer, err := edgex.NewKeySigner(cfg.EdgeX.StarkPrivate)
	if err != nil {
		logrus.Errorf("初始化签名器失败: %v", err)
		os.Exit(1)
	}

	edgexClient := edgex.NewClient(edgex.Config{
		BaseURL:    cfg.EdgeX.BaseURL,
		AccountID:  cfg.EdgeX.AccountID,
		ContractID: cfg.EdgeX.ContractID,
		Signer:     signer,
	})
	asterClient := aster.NewClient(aster.Config{
		BaseURL:   cfg.Aster.BaseURL,
		APIKey:    cfg.Aster.APIKey,
		APISecret: cfg.Aster.APISecret,
		Symbol:    cfg.Aster.Symbol,
	})

	rec := &reconcile.Reconciler{
		A: reconcile.VenueLeg{
			Venue:      "edgex",
			Instrument: cfg.EdgeX.ContractID,
			Client:     edgexClient,
			Gov:        governor.New("edgex", cfg.Governor.MinInterval),
		},
		B: reconcile.VenueLeg{
			Venue:      "aster",
			Instrument: cfg.Aster.Symbol,
			Client:     asterClient,
			Gov:        governor.New("aster", cfg.Governor.MinInterval),
		},
	}

	var store *history.Store
	if cfg.HistoryDB != "" {
		store, err = history.Open(cfg.HistoryDB)
		if err != nil {
			logrus.Errorf("打开历史库失败: %v", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := metrics.StartAsync(ctx, *metricsAddr); err != nil {
		logrus.Warnf("metrics 服务启动失败: %v", err)
	}

	srv := monitor.New(rec, store, *interval)
	srv.Start(ctx)

	// SIGUSR1 立即触发一轮对账，不等定时节拍
	usrCh := make(chan os.Signal, 1)
	signal.Notify(usrCh, syscall.SIGUSR1)
	go func() {
		for range usrCh {
			logrus.Info("收到 SIGUSR1，触发对账")
			srv.TriggerReconcile()
		}
	}()

	httpSrv := &http.Server{
		Addr:              *listenAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logrus.Infof("hedge-monitor 监听 %s，对账间隔 %s", *listenAddr, *interval)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Errorf("HTTP 服务错误: %v", err)
		}
	}()

	mgr := shutdown.NewManager()
	mgr.OnShutdown(func(ctx context.Context) {
		_ = httpSrv.Shutdown(ctx)
	})
	mgr.OnShutdown(func(ctx context.Context) {
		srv.Close()
	})
	if store != nil {
		mgr.OnShutdown(func(ctx context.Context) {
			_ = store.Close()
		})
	}

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	<-stopCh
	logrus.Info("收到退出信号")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	mgr.Shutdown(shutdownCtx)
	logrus.Info("hedge-monitor 已退出")
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
