package main

import (
	"context"
	"log"
	"strings"
	"time"

	"carechat/infrastructure/config"
	"carechat/infrastructure/di"
	"carechat/interfaces/http/rest/middleware"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	chiadapter "github.com/awslabs/aws-lambda-go-api-proxy/chi"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Global variables for Lambda lifecycle management
var (
	chiLambda *chiadapter.ChiLambdaV2
	container *di.Container

	coldStart     = true
	coldStartTime time.Time
)

// init runs during cold start
func init() {
	coldStartTime = time.Now()
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger, _, err := config.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	// The execution environment is frozen, never shut down cleanly, so the
	// cleanup function is not kept.
	container, _, err = di.InitializeContainer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize container", zap.Error(err))
	}

	chiRouter, ok := container.Router.Setup().(*chi.Mux)
	if !ok {
		logger.Fatal("Router is not a chi.Mux")
	}
	chiLambda = chiadapter.NewV2(chiRouter)

	logger.Info("Lambda cold start completed", zap.Duration("duration", time.Since(coldStartTime)))
}

// trustGateway replaces any identity headers the caller sent with the claims
// the API Gateway JWT authorizer verified
func trustGateway(req *events.APIGatewayV2HTTPRequest) {
	if req.Headers == nil {
		req.Headers = make(map[string]string)
	}
	for key := range req.Headers {
		switch strings.ToLower(key) {
		case strings.ToLower(middleware.HeaderGatewayAuthorized),
			strings.ToLower(middleware.HeaderUserID),
			strings.ToLower(middleware.HeaderUserEmail):
			delete(req.Headers, key)
		}
	}

	authorizer := req.RequestContext.Authorizer
	if authorizer == nil || authorizer.JWT == nil {
		return
	}
	sub := authorizer.JWT.Claims["sub"]
	if sub == "" {
		return
	}
	req.Headers[middleware.HeaderGatewayAuthorized] = "true"
	req.Headers[middleware.HeaderUserID] = sub
	if email := authorizer.JWT.Claims["email"]; email != "" {
		req.Headers[middleware.HeaderUserEmail] = email
	}
}

// Handler is the Lambda function handler. Turn streams are buffered by API
// Gateway and delivered as one NDJSON body.
func Handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	trustGateway(&req)

	resp, err := chiLambda.ProxyWithContextV2(ctx, req)

	if resp.Headers == nil {
		resp.Headers = make(map[string]string)
	}
	if coldStart {
		resp.Headers["X-Cold-Start"] = "true"
		coldStart = false
	}
	if req.RequestContext.RequestID != "" {
		resp.Headers["X-Request-ID"] = req.RequestContext.RequestID
	}

	container.Logger.Info("Lambda response",
		zap.String("method", req.RequestContext.HTTP.Method),
		zap.String("path", req.RequestContext.HTTP.Path),
		zap.String("requestID", req.RequestContext.RequestID),
		zap.Int("status", resp.StatusCode),
	)
	if resp.StatusCode >= 500 {
		container.Logger.Error("Lambda error response",
			zap.String("body", resp.Body),
			zap.Int("status", resp.StatusCode),
		)
	}

	return resp, err
}

func main() {
	lambda.Start(Handler)
}
