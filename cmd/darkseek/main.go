package main

import (
	"context"
	"time"

	"github.com/jqb69/darkseek/internal/broker"
	"github.com/jqb69/darkseek/internal/cache"
	dsconfig "github.com/jqb69/darkseek/internal/config"
	"github.com/jqb69/darkseek/internal/handlers"
	"github.com/jqb69/darkseek/internal/orchestrator"
	"github.com/jqb69/darkseek/internal/transcript"
	dsws "github.com/jqb69/darkseek/internal/websocket"
	"github.com/jqb69/darkseek/pkg/config"
	"github.com/jqb69/darkseek/pkg/database"
	"github.com/jqb69/darkseek/pkg/kafka"
	"github.com/jqb69/darkseek/pkg/llm"
	"github.com/jqb69/darkseek/pkg/logging"
	"github.com/jqb69/darkseek/pkg/monitoring"
	"github.com/jqb69/darkseek/pkg/redis"
	"github.com/jqb69/darkseek/pkg/search"
	"github.com/jqb69/darkseek/pkg/server"
	"github.com/jqb69/darkseek/pkg/version"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("darkseek")

	// Load environment variables
	config.LoadEnv(logger)

	logger.Info("Starting DarkSeek (conversational search backend)")

	cfg := dsconfig.Load()
	llmConfig := llm.LoadConfig()
	searchConfig := search.LoadConfig()

	// Connect to database
	dbConfig := database.DefaultConfig()
	dbConfig.URL = cfg.DatabaseURL
	db := database.MustConnect(dbConfig, logger)
	defer func() { _ = db.Close() }()

	// Connect to Redis. A down cache degrades the service, it does not
	// stop it: queries run uncached and unlimited.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	redisClient, err := redis.NewClientFromURL(ctx, cfg.RedisURL)
	cancel()
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer func() { _ = redisClient.Close() }()

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("darkseek", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("darkseek", version.Version, version.GitCommit)
	chatMetrics := metricsCollector.CreateChatMetrics()

	healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))
	healthChecker.AddCheck("redis", monitoring.RedisHealthCheck(redisClient))
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"DATABASE_URL":  cfg.DatabaseURL,
		"LLM_API_TOKEN": llmConfig.APIToken,
	}))

	// Search providers
	providers, err := search.NewProviders(searchConfig)
	if err != nil {
		// Keep the service running on the keyless provider rather than
		// refusing to start over a missing API key.
		logger.WithError(err).Warn("Search provider config incomplete, falling back to DuckDuckGo only")
		providers = []search.Provider{search.NewDuckDuckGoProvider(searchConfig.Timeout)}
	}
	aggregator := search.NewAggregator(providers, logger).WithRequestCounter(chatMetrics.SearchRequests)

	// Model client
	llmClient := llm.NewClient(llmConfig)

	// Persistence
	store := transcript.NewStore(db, logger)
	writer := transcript.NewWriter(store, 10, logger)

	// Orchestrator with explicit dependencies
	orch := orchestrator.New(orchestrator.Deps{
		Cache:    cache.NewResponseCache(redisClient, cfg.CacheTTL, logger),
		Limiter:  cache.NewSessionLimiter(redisClient, cfg.RateWindow),
		Searcher: aggregator,
		Model:    llmClient,
		Persist:  writer,
		Logger:   logger,
		Metrics:  chatMetrics,
		Limits: orchestrator.Limits{
			MaxTurns:       int64(cfg.MaxTurns),
			MaxResults:     cfg.MaxResults,
			MaxInputLength: cfg.MaxInputLength,
		},
	})

	// Broker transport is optional: no brokers configured means the
	// service runs HTTP and WebSocket only.
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, "darkseek", logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create Kafka producer")
		}
		defer func() { _ = producer.Close() }()

		consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, "darkseek", logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create Kafka consumer")
		}
		defer func() { _ = consumer.Close() }()

		healthChecker.AddCheck("kafka", monitoring.KafkaHealthCheck(producer.GetClient()))

		bridge := broker.NewBridge(consumer, producer, orch, logger).WithMetrics(chatMetrics)
		brokerCtx, brokerCancel := context.WithCancel(context.Background())
		defer brokerCancel()
		go func() {
			if err := bridge.Run(brokerCtx); err != nil && brokerCtx.Err() == nil {
				logger.WithError(err).Error("Broker transport stopped")
			}
		}()
		logger.WithField("brokers", cfg.KafkaBrokers).Info("Broker transport enabled")
	} else {
		logger.Info("No Kafka brokers configured, broker transport disabled")
	}

	// Router with health/metrics plus the chat surfaces
	router := server.SetupServiceRouter(logger, "darkseek", healthChecker, metricsCollector)

	api := handlers.New(orch, llmClient, store, logger).WithMetrics(chatMetrics)
	api.Register(router)

	wsHandler := dsws.NewHandler(orch, logger).WithMetrics(chatMetrics)
	router.GET("/ws/:session_id", wsHandler.Handle)

	// Start HTTP server with graceful shutdown
	serverConfig := server.DefaultConfig("darkseek", cfg.Port)
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}

	// Let scheduled transcript writes drain before exiting.
	writer.Wait()
}
