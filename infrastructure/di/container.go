package di

import (
	"carechat/application/commands/bus"
	"carechat/application/ports"
	querybus "carechat/application/queries/bus"
	"carechat/application/services"
	domainconfig "carechat/domain/config"
	"carechat/infrastructure/config"
	"carechat/interfaces/http/rest"
	"carechat/pkg/auth"
	"carechat/pkg/observability"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"
)

// Container holds all application dependencies
type Container struct {
	Config   *config.Config
	Logger   *zap.Logger
	Domain   *domainconfig.DomainConfig
	AWS      aws.Config
	DynamoDB *awsdynamodb.Client

	Store      *Store
	Backend    ports.Backend
	Publisher  ports.EventPublisher
	Dispatcher ports.ExtractionDispatcher

	Registry *services.SessionRegistry
	Chat     *services.ChatService
	Profiles *services.ProfileService

	CommandBus *bus.CommandBus
	QueryBus   *querybus.QueryBus
	Router     *rest.Router
	Validator  *auth.JWTValidator
	Metrics    *observability.Collector
	Ready      ReadyFunc
}
