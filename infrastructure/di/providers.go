package di

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"carechat/application/commands"
	"carechat/application/commands/bus"
	commandhandlers "carechat/application/commands/handlers"
	"carechat/application/ports"
	"carechat/application/queries"
	querybus "carechat/application/queries/bus"
	queryhandlers "carechat/application/queries/handlers"
	"carechat/application/services"
	domainconfig "carechat/domain/config"
	"carechat/infrastructure/cache"
	"carechat/infrastructure/config"
	"carechat/infrastructure/llm"
	asynqqueue "carechat/infrastructure/messaging/asynq"
	"carechat/infrastructure/messaging/eventbridge"
	"carechat/infrastructure/messaging/inprocess"
	"carechat/infrastructure/persistence/dynamodb"
	"carechat/infrastructure/persistence/memory"
	"carechat/infrastructure/persistence/sqlstore"
	"carechat/infrastructure/speech"
	"carechat/interfaces/http/rest"
	"carechat/pkg/auth"
	"carechat/pkg/observability"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	awscloudwatch "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Store groups the repositories of the selected storage backend
type Store struct {
	Conversations ports.ConversationRepository
	Messages      ports.MessageRepository
	Profiles      ports.ProfileRepository
	Feedback      ports.FeedbackRepository

	// Ping checks that the store answers; nil for in-memory storage
	Ping func(ctx context.Context) error
}

// ProvideDomainConfig picks the business rules for the environment. A
// non-negative HISTORY_WINDOW overrides the default window.
func ProvideDomainConfig(cfg *config.Config) *domainconfig.DomainConfig {
	domain := domainconfig.LoadDomainConfig(cfg.Environment)
	if cfg.HistoryWindow >= 0 {
		domain.HistoryWindow = cfg.HistoryWindow
	}
	return domain
}

// ProvideAWSConfig creates AWS configuration. SDK calls are traced through
// X-Ray when tracing is on.
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
	)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	if cfg.EnableTracing {
		observability.InstrumentAWS(&awsCfg)
	}
	return awsCfg, nil
}

// ProvideDynamoDBClient creates a DynamoDB client
func ProvideDynamoDBClient(awsCfg aws.Config) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg)
}

// ProvideEventBridgeClient creates an EventBridge client
func ProvideEventBridgeClient(awsCfg aws.Config) *awseventbridge.Client {
	return awseventbridge.NewFromConfig(awsCfg)
}

// ProvideCloudWatchClient creates a CloudWatch client
func ProvideCloudWatchClient(awsCfg aws.Config) *awscloudwatch.Client {
	return awscloudwatch.NewFromConfig(awsCfg)
}

// ProvideRedisClient connects to REDIS_URL. It returns nil when Redis is not
// configured.
func ProvideRedisClient(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*redis.Client, func(), error) {
	if cfg.RedisURL == "" {
		return nil, func() {}, nil
	}
	client, err := cache.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	return client, func() {
		if err := client.Close(); err != nil {
			logger.Warn("Failed to close redis client", zap.Error(err))
		}
	}, nil
}

// ProvideStore opens the repositories selected by STORE_KIND. SQL stores are
// migrated before use.
func ProvideStore(ctx context.Context, cfg *config.Config, client *awsdynamodb.Client, logger *zap.Logger) (*Store, func(), error) {
	switch cfg.StoreKind {
	case config.StoreDynamoDB:
		table := cfg.DynamoDBTable
		return &Store{
			Conversations: dynamodb.NewConversationRepository(client, table, logger),
			Messages:      dynamodb.NewMessageRepository(client, table, logger),
			Profiles:      dynamodb.NewProfileRepository(client, table, logger),
			Feedback:      dynamodb.NewFeedbackRepository(client, table, logger),
			Ping: func(ctx context.Context) error {
				_, err := client.DescribeTable(ctx, &awsdynamodb.DescribeTableInput{TableName: aws.String(table)})
				return err
			},
		}, func() {}, nil

	case config.StorePostgres, config.StoreSQLite:
		var (
			db  *sqlstore.DB
			err error
		)
		if cfg.StoreKind == config.StorePostgres {
			db, err = sqlstore.OpenPostgres(ctx, cfg.DatabaseURL)
		} else {
			db, err = sqlstore.OpenSQLite(ctx, cfg.SQLitePath)
		}
		if err != nil {
			return nil, nil, err
		}
		if _, err := db.Migrate(ctx, logger); err != nil {
			db.Close()
			return nil, nil, err
		}
		return &Store{
				Conversations: sqlstore.NewConversationRepository(db),
				Messages:      sqlstore.NewMessageRepository(db),
				Profiles:      sqlstore.NewProfileRepository(db),
				Feedback:      sqlstore.NewFeedbackRepository(db),
				Ping:          db.PingContext,
			}, func() {
				if err := db.Close(); err != nil {
					logger.Warn("Failed to close database", zap.Error(err))
				}
			}, nil

	default:
		logger.Warn("Using in-memory storage; data is lost on restart")
		return &Store{
			Conversations: memory.NewConversationRepository(),
			Messages:      memory.NewMessageRepository(),
			Profiles:      memory.NewProfileRepository(),
			Feedback:      memory.NewFeedbackRepository(),
		}, func() {}, nil
	}
}

// ProvideCache creates the shared byte cache: Redis when configured,
// otherwise process memory
func ProvideCache(client *redis.Client) (ports.Cache, func()) {
	if client != nil {
		return cache.NewRedisCache(client, "carechat:"), func() {}
	}
	mem := cache.NewInMemoryCache(time.Minute)
	return mem, func() { _ = mem.Close() }
}

// ProvideLocker creates the per-owner profile lock. Redis wins over DynamoDB;
// a single process falls back to an in-memory lock.
func ProvideLocker(cfg *config.Config, domain *domainconfig.DomainConfig, redisClient *redis.Client, client *awsdynamodb.Client, logger *zap.Logger) ports.Locker {
	switch {
	case redisClient != nil:
		return cache.NewRedisLocker(redisClient, domain.LockTTL, domain.LockWaitTimeout, logger)
	case cfg.StoreKind == config.StoreDynamoDB:
		return dynamodb.NewDistributedLock(client, cfg.DynamoDBTable, domain.LockTTL, domain.LockWaitTimeout, logger)
	default:
		return memory.NewLocker(domain.LockWaitTimeout)
	}
}

// ProvideBackend creates the generation backend selected by BACKEND_KIND.
// Remote backends are wrapped in a circuit breaker.
func ProvideBackend(ctx context.Context, cfg *config.Config, awsCfg aws.Config, threads ports.Cache, logger *zap.Logger) (ports.Backend, error) {
	var backend ports.Backend
	switch cfg.BackendKind {
	case config.BackendBedrockAgent:
		backend = llm.NewBedrockAgentBackend(bedrockagentruntime.NewFromConfig(awsCfg), cfg.BedrockAgentID, cfg.BedrockAgentAliasID, logger)
	case config.BackendBedrockModel:
		backend = llm.NewBedrockModelBackend(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockModelID)
	case config.BackendGemini:
		gemini, err := llm.NewGeminiBackend(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		backend = gemini
	case config.BackendAssistants:
		backend = llm.NewAssistantsBackend(llm.AssistantsConfig{
			BaseURL:      cfg.OpenAIBaseURL,
			APIKey:       cfg.OpenAIAPIKey,
			AssistantID:  cfg.OpenAIAssistantID,
			PollInterval: cfg.AssistantsPollInterval,
		}, &http.Client{Timeout: 30 * time.Second}, threads, logger)
	default:
		return llm.NewScriptedBackend(config.BackendScripted, true), nil
	}

	logger.Info("Generation backend ready",
		zap.String("backend", backend.Name()),
		zap.Bool("stateless", backend.Stateless()),
	)
	return llm.NewBreakerBackend(backend, llm.DefaultBreakerConfig(), logger), nil
}

// ProvideEventPublisher publishes domain events to EventBridge when that is
// the dispatch transport, otherwise to the log
func ProvideEventPublisher(cfg *config.Config, client *awseventbridge.Client, logger *zap.Logger) ports.EventPublisher {
	if cfg.DispatcherKind == config.DispatchEventBridge {
		return eventbridge.NewPublisher(client, cfg.EventBusName, logger)
	}
	return inprocess.NewLogPublisher(logger)
}

// ProvideCollector creates the Prometheus collector. It returns nil unless
// metrics are enabled with the prometheus sink.
func ProvideCollector(cfg *config.Config) *observability.Collector {
	if !cfg.EnableMetrics || cfg.MetricsSink != "prometheus" {
		return nil
	}
	return observability.NewCollector("carechat")
}

// ProvideTurnMetrics picks where turn and extraction measurements go
func ProvideTurnMetrics(cfg *config.Config, collector *observability.Collector, client *awscloudwatch.Client, logger *zap.Logger) ports.TurnMetrics {
	switch {
	case collector != nil:
		return collector
	case cfg.EnableMetrics && cfg.MetricsSink == "cloudwatch":
		return observability.NewCloudWatchMetrics(client, fmt.Sprintf("%s/%s", cfg.MetricsNamespace, cfg.Environment), logger)
	default:
		return observability.NopMetrics{}
	}
}

// ProvideProfileService creates the profile extractor. It reads and writes
// the authoritative profile store and invalidates the cache after a merge.
func ProvideProfileService(
	cfg *config.Config,
	backend ports.Backend,
	store *Store,
	locker ports.Locker,
	c ports.Cache,
	publisher ports.EventPublisher,
	metrics ports.TurnMetrics,
	domain *domainconfig.DomainConfig,
	logger *zap.Logger,
) *services.ProfileService {
	return services.NewProfileService(backend, store.Profiles, locker, c, publisher, metrics, domain, cfg.ExtractionTimeout, logger)
}

// ProvideDispatcher creates the extraction hand-off selected by
// DISPATCHER_KIND. The in-process pool drains queued jobs on cleanup.
func ProvideDispatcher(cfg *config.Config, runner *services.ProfileService, client *awseventbridge.Client, logger *zap.Logger) (ports.ExtractionDispatcher, func(), error) {
	switch cfg.DispatcherKind {
	case config.DispatchAsynq:
		d, err := asynqqueue.NewDispatcher(cfg.RedisURL, cfg.ExtractionTimeout)
		if err != nil {
			return nil, nil, err
		}
		return d, func() { _ = d.Close() }, nil

	case config.DispatchEventBridge:
		return eventbridge.NewDispatcher(client, cfg.EventBusName), func() {}, nil

	default:
		pool := inprocess.NewPool(runner, cfg.ExtractionWorkers, 256, logger)
		return pool, func() {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.ExtractionTimeout)
			defer cancel()
			if err := pool.Close(ctx); err != nil {
				logger.Warn("Extraction queue not drained", zap.Error(err))
			}
		}, nil
	}
}

// ProvideSessionRegistry creates the conversation registry
func ProvideSessionRegistry(store *Store, publisher ports.EventPublisher, logger *zap.Logger) *services.SessionRegistry {
	return services.NewSessionRegistry(store.Conversations, publisher, logger)
}

// ProvideChatService creates the turn orchestrator. Profiles are read
// through the cache.
func ProvideChatService(
	cfg *config.Config,
	registry *services.SessionRegistry,
	store *Store,
	c ports.Cache,
	backend ports.Backend,
	dispatcher ports.ExtractionDispatcher,
	publisher ports.EventPublisher,
	metrics ports.TurnMetrics,
	domain *domainconfig.DomainConfig,
	logger *zap.Logger,
) *services.ChatService {
	profiles := cache.NewCachedProfileRepository(store.Profiles, c, domain.ProfileCacheTTL, services.ProfileCacheKey, logger)
	return services.NewChatService(
		registry,
		services.NewTranscriptWriter(store.Messages, store.Conversations, logger),
		services.NewRelay(services.ErrorMessage(domain), logger),
		store.Messages,
		profiles,
		backend,
		dispatcher,
		publisher,
		metrics,
		domain,
		cfg.BackendTimeout,
		logger,
	)
}

// ProvideCommandBus creates a command bus with registered handlers
func ProvideCommandBus(registry *services.SessionRegistry, store *Store, publisher ports.EventPublisher, logger *zap.Logger) (*bus.CommandBus, error) {
	commandBus := bus.NewCommandBus(bus.LoggingMiddleware(logger))

	registrations := []struct {
		cmd     bus.Command
		handler bus.CommandHandler
	}{
		{commands.CreateConversationCommand{}, commandhandlers.NewCreateConversationHandler(registry, logger)},
		{commands.ResumeConversationCommand{}, commandhandlers.NewResumeConversationHandler(registry)},
		{commands.CloseConversationCommand{}, commandhandlers.NewCloseConversationHandler(registry, logger)},
		{commands.SubmitFeedbackCommand{}, commandhandlers.NewSubmitFeedbackHandler(store.Feedback, publisher, logger)},
	}
	for _, r := range registrations {
		if err := commandBus.Register(r.cmd, r.handler); err != nil {
			return nil, err
		}
	}
	return commandBus, nil
}

// ProvideQueryBus creates a query bus with registered handlers
func ProvideQueryBus(registry *services.SessionRegistry, store *Store, logger *zap.Logger) (*querybus.QueryBus, error) {
	queryBus := querybus.NewQueryBus(logger)

	registrations := []struct {
		query   querybus.Query
		handler querybus.QueryHandler
	}{
		{queries.ListConversationsQuery{}, queryhandlers.NewListConversationsHandler(store.Conversations, store.Messages)},
		{queries.GetConversationQuery{}, queryhandlers.NewGetConversationHandler(registry, store.Messages)},
		{queries.GetProfileQuery{}, queryhandlers.NewGetProfileHandler(store.Profiles)},
	}
	for _, r := range registrations {
		if err := queryBus.Register(r.query, r.handler); err != nil {
			return nil, err
		}
	}
	return queryBus, nil
}

// ProvideTranscriber creates the speech-to-text client. It returns nil when
// TRANSCRIPTION_URL is unset, which disables the endpoint.
func ProvideTranscriber(cfg *config.Config) ports.Transcriber {
	if cfg.TranscriptionURL == "" {
		return nil
	}
	return speech.NewOpenAITranscriber(cfg.TranscriptionURL, cfg.OpenAIAPIKey, cfg.TranscriptionModel, &http.Client{Timeout: 60 * time.Second})
}

// ProvideJWTValidator creates the bearer token validator. Without a secret
// every caller is a guest.
func ProvideJWTValidator(cfg *config.Config, logger *zap.Logger) (*auth.JWTValidator, error) {
	if cfg.JWTSecret == "" {
		logger.Warn("JWT_SECRET not set; bearer tokens are ignored")
		return nil, nil
	}
	return auth.NewJWTValidator(auth.JWTConfig{
		SigningMethod: "HS256",
		SecretKey:     cfg.JWTSecret,
		Issuer:        cfg.JWTIssuer,
	})
}

// ProvideRateLimiter creates the turn limiter. Redis and DynamoDB give a
// limit shared by every instance; the token bucket is per process.
func ProvideRateLimiter(cfg *config.Config, redisClient *redis.Client, client *awsdynamodb.Client) (auth.RateLimiter, func()) {
	if cfg.RateLimitRequests <= 0 {
		return nil, func() {}
	}
	switch {
	case redisClient != nil:
		return auth.NewRedisWindowLimiter(redisClient, cfg.RateLimitRequests, cfg.RateLimitWindow), func() {}
	case cfg.StoreKind == config.StoreDynamoDB:
		return auth.NewDynamoWindowLimiter(client, cfg.DynamoDBTable, cfg.RateLimitRequests, cfg.RateLimitWindow), func() {}
	default:
		limiter := auth.NewTokenBucketLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow, 5*time.Minute)
		return limiter, func() { _ = limiter.Close() }
	}
}

// ProvideReadiness reports whether the store and Redis answer
func ProvideReadiness(store *Store, redisClient *redis.Client) ReadyFunc {
	return func(ctx context.Context) error {
		if store.Ping != nil {
			if err := store.Ping(ctx); err != nil {
				return fmt.Errorf("store: %w", err)
			}
		}
		if redisClient != nil {
			if err := redisClient.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
		}
		return nil
	}
}

// ReadyFunc checks the service's dependencies
type ReadyFunc func(ctx context.Context) error

// ProvideRouter creates the HTTP router
func ProvideRouter(
	cfg *config.Config,
	commandBus *bus.CommandBus,
	queryBus *querybus.QueryBus,
	chat *services.ChatService,
	transcriber ports.Transcriber,
	validator *auth.JWTValidator,
	limiter auth.RateLimiter,
	collector *observability.Collector,
	ready ReadyFunc,
	logger *zap.Logger,
) *rest.Router {
	return rest.NewRouter(commandBus, queryBus, chat, transcriber, validator, limiter, collector, ready, rest.RouterConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		EnableCORS:     cfg.EnableCORS,
		Debug:          cfg.IsDevelopment(),
		RateLimit:      cfg.RateLimitRequests,
		RateWindow:     cfg.RateLimitWindow,
	}, logger)
}
