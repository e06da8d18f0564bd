package handlers

import (
	"net/http"
	"slices"
	"sync"

	"carechat/application/services"
	"carechat/interfaces/http/rest/middleware"
	"carechat/pkg/common"
	pkgerrors "carechat/pkg/errors"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const maxTurnBody = 64 << 10

// TurnRequest is the body of a turn
type TurnRequest struct {
	Message        string `json:"message"`
	UserIdentifier string `json:"userIdentifier,omitempty"`
}

// ChatHandler runs turns over HTTP streams and WebSockets
type ChatHandler struct {
	chat     *services.ChatService
	errs     *pkgerrors.ErrorHandler
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewChatHandler creates a new chat handler. allowedOrigins limits WebSocket
// upgrades; "*" allows any origin.
func NewChatHandler(chat *services.ChatService, errs *pkgerrors.ErrorHandler, allowedOrigins []string, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		chat:   chat,
		errs:   errs,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)
			},
		},
	}
}

// Turn handles POST /api/v1/conversations/{conversationID}/turns
func (h *ChatHandler) Turn(w http.ResponseWriter, r *http.Request) {
	var req TurnRequest
	if err := common.ParseJSONBody(w, r, &req, maxTurnBody); err != nil {
		h.errs.Handle(w, r, err)
		return
	}

	sink := newNDJSONSink(w)
	outcome, err := h.chat.Turn(r.Context(), services.TurnRequest{
		ConversationID: chi.URLParam(r, "conversationID"),
		Message:        req.Message,
		UserIdentifier: req.UserIdentifier,
		Verified:       middleware.VerifiedIdentity(r),
	}, sink)
	if err != nil {
		if !sink.Started() {
			h.errs.Handle(w, r, err)
			return
		}
		h.logger.Error("Turn failed after streaming started", zap.Error(err))
		return
	}

	h.logger.Debug("Turn finished",
		zap.String("conversationID", outcome.ConversationID),
		zap.String("status", string(outcome.Status)),
		zap.Int("chunks", outcome.Chunks),
	)
}

// wsRequest is one inbound WebSocket message
type wsRequest struct {
	Action         string `json:"action"`
	ConversationID string `json:"conversationId"`
	Message        string `json:"message"`
	UserIdentifier string `json:"userIdentifier,omitempty"`
}

// WebSocket handles GET /api/v1/ws. Each inbound message runs one turn; the
// turn's frames are written back tagged with the conversation and the turn
// ends with a done or error frame.
func (h *ChatHandler) WebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxTurnBody)

	verified := middleware.VerifiedIdentity(r)
	ctx := r.Context()

	var writeMu sync.Mutex
	write := func(frame Frame) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(frame)
	}

	for {
		var req wsRequest
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("WebSocket read ended", zap.Error(err))
			}
			return
		}
		if req.Action != "" && req.Action != "sendMessage" {
			_ = write(Frame{ConversationID: req.ConversationID, Error: "unknown action " + req.Action})
			continue
		}

		sink := services.EventSinkFunc(func(event services.StreamEvent) error {
			return write(NewFrame(event, req.ConversationID))
		})
		_, err := h.chat.Turn(ctx, services.TurnRequest{
			ConversationID: req.ConversationID,
			Message:        req.Message,
			UserIdentifier: req.UserIdentifier,
			Verified:       verified,
		}, sink)
		if err != nil {
			if werr := write(Frame{ConversationID: req.ConversationID, Error: ClientMessage(err)}); werr != nil {
				return
			}
		}
	}
}

// ClientMessage is the text shown to a caller for an error raised before
// streaming started
func ClientMessage(err error) string {
	if appErr := pkgerrors.GetAppError(err); appErr != nil && appErr.HTTPStatus < http.StatusInternalServerError {
		return appErr.Message
	}
	return "An internal error occurred"
}
