// Package main implements the API Gateway WebSocket Lambda. Connections are
// authenticated on $connect and every sendMessage runs one chat turn whose
// frames are posted back to the caller's connection.
package main

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"carechat/infrastructure/config"
	"carechat/infrastructure/di"
	"carechat/infrastructure/persistence/dynamodb"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi"
	"go.uber.org/zap"
)

// connectionTTL bounds how long a record outlives a missed $disconnect
const connectionTTL = 2 * time.Hour

func main() {
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger, _, err := config.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	container, _, err := di.InitializeContainer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize container", zap.Error(err))
	}

	h := &handler{
		chat:        container.Chat,
		validator:   container.Validator,
		connections: dynamodb.NewConnectionRegistry(container.DynamoDB, cfg.ConnectionsTable, connectionTTL),
		newPoster:   posterFactory(container.AWS, cfg.WebSocketEndpoint),
		logger:      logger,
		now:         time.Now,
	}

	logger.Info("WebSocket handler initialized", zap.String("backend", container.Backend.Name()))
	lambda.Start(h.Handle)
}

// posterFactory caches one management API client per callback endpoint. A
// configured endpoint overrides the one derived from the request.
func posterFactory(awsCfg aws.Config, endpoint string) func(domainName, stage string) poster {
	var (
		mu      sync.Mutex
		clients = make(map[string]*apigatewaymanagementapi.Client)
	)
	return func(domainName, stage string) poster {
		url := endpoint
		if url == "" {
			url = fmt.Sprintf("https://%s/%s", domainName, stage)
		}

		mu.Lock()
		defer mu.Unlock()
		if client, ok := clients[url]; ok {
			return client
		}
		client := apigatewaymanagementapi.NewFromConfig(awsCfg, func(o *apigatewaymanagementapi.Options) {
			o.BaseEndpoint = aws.String(url)
		})
		clients[url] = client
		return client
	}
}
