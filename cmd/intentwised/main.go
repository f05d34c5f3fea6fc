package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"IntentWise-Chain/internal/api"
	"IntentWise-Chain/internal/auth"
	"IntentWise-Chain/internal/chat"
	"IntentWise-Chain/internal/config"
	"IntentWise-Chain/internal/executor"
	"IntentWise-Chain/internal/intent"
	"IntentWise-Chain/internal/notify"
	"IntentWise-Chain/internal/oracle"
	"IntentWise-Chain/internal/upkeep"
	"IntentWise-Chain/internal/web3/provider"
	"IntentWise-Chain/pkg/logger"
)

// main 是 IntentWise 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("intentwised 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("INTENTWISE_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "intentwise.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
			MaxAgeDays: cfg.Logging.Audit.MaxAgeDays,
		},
	}); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	var store intent.Store
	switch cfg.Storage.IntentStore.Driver {
	case "", "memory":
		store = intent.NewMemoryStore()
	case "mysql":
		mysqlStore, err := intent.NewMySQLStore(cfg.Storage.IntentStore.DSN)
		if err != nil {
			return err
		}
		store = mysqlStore
	default:
		return fmt.Errorf("未知的存储驱动: %s", cfg.Storage.IntentStore.Driver)
	}
	defer func() {
		if store != nil {
			_ = store.Close()
		}
	}()

	var queue upkeep.Queue
	switch cfg.Upkeep.Queue {
	case "", "memory":
		queue = upkeep.NewMemoryQueue(1024)
	case "redis":
		redisQueue, err := upkeep.NewRedisQueue(upkeep.RedisQueueConfig{
			Address:   cfg.Upkeep.Redis.Address,
			Password:  cfg.Upkeep.Redis.Password,
			DB:        cfg.Upkeep.Redis.DB,
			Queue:     cfg.Upkeep.Redis.Queue,
			BlockWait: time.Duration(cfg.Upkeep.Redis.BlockWait) * time.Second,
		})
		if err != nil {
			return err
		}
		queue = redisQueue
	case "rabbitmq":
		rabbitQueue, err := upkeep.NewRabbitMQQueue(upkeep.RabbitMQConfig{
			URL:        cfg.Upkeep.RabbitMQ.URL,
			Queue:      cfg.Upkeep.RabbitMQ.Queue,
			Prefetch:   cfg.Upkeep.RabbitMQ.Prefetch,
			Durable:    cfg.Upkeep.RabbitMQ.Durable,
			AutoDelete: cfg.Upkeep.RabbitMQ.AutoDelete,
		})
		if err != nil {
			return err
		}
		queue = rabbitQueue
	default:
		return fmt.Errorf("未知的队列驱动: %s", cfg.Upkeep.Queue)
	}
	defer func() {
		if queue != nil {
			if err := queue.Close(); err != nil {
				log.Printf("关闭执行队列失败: %v", err)
			}
		}
	}()

	chainRegistry, err := provider.NewRegistry(ctx, cfg.Web3)
	if err != nil {
		return err
	}
	defer chainRegistry.Close()

	prices, err := createOracle(cfg)
	if err != nil {
		return err
	}

	dispatcher := createDispatcher(cfg)

	opts := []executor.Option{executor.WithNotifier(dispatcher)}
	if chainClient, err := chainRegistry.DefaultClient(); err == nil && chainClient != chainRegistry.Simulator() {
		opts = append(opts, executor.WithChainClient(chainClient))
	}
	orchestrator := executor.New(store, chainRegistry.Simulator(), prices, opts...)

	intentService := intent.NewService(store)
	session := chat.NewSession(store)

	authService, err := createAuthService(ctx, cfg)
	if err != nil {
		return err
	}

	scheduler := upkeep.NewScheduler(store, queue,
		upkeep.WithCronSpec(cfg.Upkeep.Cron),
		upkeep.WithBatchSize(cfg.Upkeep.Batch),
		upkeep.WithSchedulerLogger(logger.Named("upkeep")),
	)
	processor := upkeep.NewProcessor(orchestrator, queue,
		upkeep.WithWorkerCount(cfg.Upkeep.Workers),
		upkeep.WithProcessorLogger(logger.Named("upkeep")),
		upkeep.WithProcessorNotifier(dispatcher),
	)

	workerCtx, workerCancel := context.WithCancel(ctx)
	defer workerCancel()

	go func() {
		if err := processor.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("意图处理器异常退出: %v", err)
		}
	}()
	go func() {
		if err := scheduler.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("巡检调度器异常退出: %v", err)
		}
	}()

	server := api.NewServer(cfg.Server.Address, intentService, orchestrator, session, authService)

	if err := server.Start(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// createOracle 按配置装配行情源，统一套上 TTL 缓存。
func createOracle(cfg *config.Config) (oracle.PriceOracle, error) {
	ttl := time.Duration(cfg.Oracle.CacheTTLSeconds) * time.Second
	switch cfg.Oracle.Provider {
	case "", "static":
		return oracle.DefaultStatic(), nil
	case "coingecko":
		var opts []oracle.CoinGeckoOption
		if cfg.Oracle.BaseURL != "" {
			opts = append(opts, oracle.WithBaseURL(cfg.Oracle.BaseURL))
		}
		return oracle.NewCached(oracle.NewCoinGecko(opts...), ttl), nil
	default:
		return nil, fmt.Errorf("未知的行情 provider: %s", cfg.Oracle.Provider)
	}
}

// createDispatcher 装配通知渠道，未配置的渠道直接跳过。
func createDispatcher(cfg *config.Config) notify.Dispatcher {
	var notifiers []notify.Notifier
	if cfg.Alerting.WebhookURL != "" {
		notifiers = append(notifiers, &notify.WebhookNotifier{
			URL:        cfg.Alerting.WebhookURL,
			HTTPClient: &http.Client{Timeout: time.Duration(cfg.Alerting.TimeoutSeconds) * time.Second},
		})
	}
	if len(notifiers) == 0 {
		return nil
	}
	return notify.NewFanout(notifiers...)
}

// createAuthService 按配置装配认证服务。
func createAuthService(ctx context.Context, cfg *config.Config) (*auth.Service, error) {
	seeds := make([]auth.Seed, 0, len(cfg.Auth.Seeds))
	for _, seed := range cfg.Auth.Seeds {
		seeds = append(seeds, auth.Seed{
			UserID:   seed.UserID,
			Username: seed.Username,
			Password: seed.Password,
			Wallet:   seed.Wallet,
		})
	}
	userStore, err := auth.NewMemoryStore(nil)
	if err != nil {
		return nil, err
	}
	return auth.NewService(ctx, auth.Config{
		Mode: auth.Mode(cfg.Auth.Mode),
		JWT: auth.JWTOptions{
			Secret:     cfg.Auth.Secret,
			Issuer:     cfg.Auth.Issuer,
			AccessTTL:  cfg.Auth.AccessTTL,
			RefreshTTL: cfg.Auth.RefreshTTL,
		},
		Seeds: seeds,
	}, userStore)
}
