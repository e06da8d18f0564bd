package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"carechat/application/services"
	"carechat/domain/core/valueobjects"
	"carechat/infrastructure/persistence/dynamodb"
	"carechat/interfaces/http/rest/handlers"
	"carechat/pkg/auth"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi"
	apigwtypes "github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi/types"
	"go.uber.org/zap"
)

// connectionStore tracks open connections and their verified identity
type connectionStore interface {
	Register(ctx context.Context, connectionID, identity string, now time.Time) error
	Lookup(ctx context.Context, connectionID string) (*dynamodb.Connection, error)
	Unregister(ctx context.Context, connectionID string) error
}

// poster sends data to one connection
type poster interface {
	PostToConnection(ctx context.Context, params *apigatewaymanagementapi.PostToConnectionInput, optFns ...func(*apigatewaymanagementapi.Options)) (*apigatewaymanagementapi.PostToConnectionOutput, error)
}

// errConnectionGone means the client disconnected mid-turn
var errConnectionGone = errors.New("connection gone")

// sendMessageRequest is the body of the sendMessage route
type sendMessageRequest struct {
	Action         string `json:"action"`
	ConversationID string `json:"conversationId"`
	Message        string `json:"message"`
	UserIdentifier string `json:"userIdentifier,omitempty"`
}

type handler struct {
	chat        *services.ChatService
	validator   *auth.JWTValidator
	connections connectionStore

	// newPoster returns the management API client for the request's stage
	newPoster func(domainName, stage string) poster

	logger *zap.Logger
	now    func() time.Time
}

// Handle routes WebSocket lifecycle and message events
func (h *handler) Handle(ctx context.Context, req events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	connectionID := req.RequestContext.ConnectionID

	switch req.RequestContext.RouteKey {
	case "$connect":
		return h.connect(ctx, connectionID, req.QueryStringParameters["token"]), nil

	case "$disconnect":
		if err := h.connections.Unregister(ctx, connectionID); err != nil {
			h.logger.Warn("Failed to unregister connection", zap.String("connectionID", connectionID), zap.Error(err))
		}
		return respond(http.StatusOK, ""), nil

	default:
		return h.sendMessage(ctx, req), nil
	}
}

func (h *handler) connect(ctx context.Context, connectionID, token string) events.APIGatewayProxyResponse {
	identity := ""
	if token != "" && h.validator != nil {
		claims, err := h.validator.ValidateToken(token)
		if err != nil {
			h.logger.Debug("Rejected connection token", zap.String("connectionID", connectionID), zap.Error(err))
			return respond(http.StatusUnauthorized, "Unauthorized")
		}
		identity = claims.UserID
	}

	if err := h.connections.Register(ctx, connectionID, identity, h.now()); err != nil {
		h.logger.Error("Failed to register connection", zap.String("connectionID", connectionID), zap.Error(err))
		return respond(http.StatusInternalServerError, "Failed to connect")
	}
	h.logger.Info("Connection opened",
		zap.String("connectionID", connectionID),
		zap.Bool("verified", identity != ""),
	)
	return respond(http.StatusOK, "Connected")
}

// sendMessage runs one turn and posts every frame back to the caller. The
// route always answers 200; failures travel as error frames.
func (h *handler) sendMessage(ctx context.Context, req events.APIGatewayWebsocketProxyRequest) events.APIGatewayProxyResponse {
	connectionID := req.RequestContext.ConnectionID
	client := h.newPoster(req.RequestContext.DomainName, req.RequestContext.Stage)

	var body sendMessageRequest
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		h.post(ctx, client, connectionID, handlers.Frame{Error: "invalid message body"})
		return respond(http.StatusOK, "")
	}
	if body.Action != "" && body.Action != "sendMessage" {
		h.post(ctx, client, connectionID, handlers.Frame{ConversationID: body.ConversationID, Error: "unknown action " + body.Action})
		return respond(http.StatusOK, "")
	}

	verified := valueobjects.Guest()
	conn, err := h.connections.Lookup(ctx, connectionID)
	switch {
	case err != nil:
		h.logger.Warn("Connection lookup failed; continuing as guest", zap.String("connectionID", connectionID), zap.Error(err))
	case conn != nil:
		verified = valueobjects.NewIdentity(conn.Identity)
	}

	sink := services.EventSinkFunc(func(event services.StreamEvent) error {
		return h.post(ctx, client, connectionID, handlers.NewFrame(event, body.ConversationID))
	})

	outcome, err := h.chat.Turn(ctx, services.TurnRequest{
		ConversationID: body.ConversationID,
		Message:        body.Message,
		UserIdentifier: body.UserIdentifier,
		Verified:       verified,
	}, sink)
	if err != nil {
		h.post(ctx, client, connectionID, handlers.Frame{ConversationID: body.ConversationID, Error: handlers.ClientMessage(err)})
		return respond(http.StatusOK, "")
	}

	h.logger.Info("Turn finished",
		zap.String("connectionID", connectionID),
		zap.String("conversationID", outcome.ConversationID),
		zap.String("status", string(outcome.Status)),
		zap.Int("chunks", outcome.Chunks),
	)
	return respond(http.StatusOK, "")
}

// post sends one frame. A gone connection is unregistered and reported as
// errConnectionGone so the relay stops pulling from the backend.
func (h *handler) post(ctx context.Context, client poster, connectionID string, frame handlers.Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	_, err = client.PostToConnection(ctx, &apigatewaymanagementapi.PostToConnectionInput{
		ConnectionId: aws.String(connectionID),
		Data:         data,
	})
	if err == nil {
		return nil
	}

	var gone *apigwtypes.GoneException
	if errors.As(err, &gone) {
		h.logger.Info("Connection gone", zap.String("connectionID", connectionID))
		if err := h.connections.Unregister(context.WithoutCancel(ctx), connectionID); err != nil {
			h.logger.Warn("Failed to remove stale connection", zap.String("connectionID", connectionID), zap.Error(err))
		}
		return errConnectionGone
	}
	return fmt.Errorf("post to connection: %w", err)
}

func respond(status int, body string) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{StatusCode: status, Body: body}
}
