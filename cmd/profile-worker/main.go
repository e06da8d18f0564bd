// Package main implements the Lambda that runs profile extraction for jobs
// published to EventBridge by the chat service.
package main

import (
	"context"
	"fmt"
	"log"

	"carechat/infrastructure/config"
	"carechat/infrastructure/di"
	"carechat/infrastructure/messaging/eventbridge"
	"carechat/pkg/observability"

	awsevents "github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"
)

// Global dependencies for Lambda performance optimization
var container *di.Container

func init() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger, _, err := config.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	container, _, err = di.InitializeContainer(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize dependency container", zap.Error(err))
	}
	logger.Info("Profile worker initialized", zap.String("backend", container.Backend.Name()))
}

// HandleExtractionRequested runs one extraction job. Only store and lock
// failures are returned, so EventBridge retries exactly those.
func HandleExtractionRequested(ctx context.Context, event awsevents.CloudWatchEvent) error {
	if event.DetailType != eventbridge.DetailTypeExtractionRequested {
		container.Logger.Warn("Ignoring unexpected event", zap.String("detailType", event.DetailType))
		return nil
	}

	job, err := eventbridge.DecodeJob(event.Detail)
	if err != nil {
		// Malformed events will never decode; retrying is pointless
		container.Logger.Error("Dropping undecodable job", zap.String("eventID", event.ID), zap.Error(err))
		return nil
	}

	ctx, done := observability.StartSubsegment(ctx, "profile.extract")
	observability.AddAnnotation(ctx, "conversationID", job.ConversationID)

	err = container.Profiles.Run(ctx, job)
	done(err)
	if err != nil {
		return fmt.Errorf("extraction for conversation %s: %w", job.ConversationID, err)
	}
	return nil
}

func main() {
	lambda.Start(HandleExtractionRequested)
}
