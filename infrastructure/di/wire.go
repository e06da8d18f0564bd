//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"carechat/infrastructure/config"

	"github.com/google/wire"
	"go.uber.org/zap"
)

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideDomainConfig,
	ProvideAWSConfig,
	ProvideDynamoDBClient,
	ProvideEventBridgeClient,
	ProvideCloudWatchClient,
	ProvideRedisClient,
	ProvideStore,
	ProvideCache,
	ProvideLocker,
	ProvideBackend,
	ProvideEventPublisher,
	ProvideCollector,
	ProvideTurnMetrics,
	ProvideProfileService,
	ProvideDispatcher,
	ProvideSessionRegistry,
	ProvideChatService,
	ProvideCommandBus,
	ProvideQueryBus,
	ProvideTranscriber,
	ProvideJWTValidator,
	ProvideRateLimiter,
	ProvideReadiness,
	ProvideRouter,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container
func InitializeContainer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, func(), error) {
	wire.Build(SuperSet)
	return nil, nil, nil // Wire will replace this
}
