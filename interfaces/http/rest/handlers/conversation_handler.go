package handlers

import (
	"net/http"

	"carechat/application/commands"
	"carechat/application/commands/bus"
	"carechat/application/queries"
	querybus "carechat/application/queries/bus"
	"carechat/interfaces/http/rest/middleware"
	"carechat/pkg/common"
	pkgerrors "carechat/pkg/errors"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxJSONBody = 1 << 20

// ConversationHandler handles conversation lifecycle and reads
type ConversationHandler struct {
	commandBus *bus.CommandBus
	queryBus   *querybus.QueryBus
	errs       *pkgerrors.ErrorHandler
	logger     *zap.Logger
}

// NewConversationHandler creates a new conversation handler
func NewConversationHandler(commandBus *bus.CommandBus, queryBus *querybus.QueryBus, errs *pkgerrors.ErrorHandler, logger *zap.Logger) *ConversationHandler {
	return &ConversationHandler{
		commandBus: commandBus,
		queryBus:   queryBus,
		errs:       errs,
		logger:     logger,
	}
}

// Create handles POST /api/v1/conversations
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var cmd commands.CreateConversationCommand
	if err := common.ParseJSONBody(w, r, &cmd, maxJSONBody); err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	cmd.Verified = middleware.VerifiedIdentity(r)

	result, err := h.commandBus.Send(r.Context(), cmd)
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusCreated, result)
}

// Current handles GET /api/v1/conversations/current
func (h *ConversationHandler) Current(w http.ResponseWriter, r *http.Request) {
	result, err := h.commandBus.Send(r.Context(), commands.ResumeConversationCommand{
		UserIdentifier: r.URL.Query().Get("userIdentifier"),
		Verified:       middleware.VerifiedIdentity(r),
	})
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}

	status := http.StatusOK
	if res, ok := result.(*commands.ConversationResult); ok && res.Created {
		status = http.StatusCreated
	}
	common.RespondJSON(w, status, result)
}

// List handles GET /api/v1/conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	result, err := h.queryBus.Ask(r.Context(), queries.ListConversationsQuery{
		UserIdentifier: r.URL.Query().Get("userIdentifier"),
		Verified:       middleware.VerifiedIdentity(r),
	})
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, result)
}

// Get handles GET /api/v1/conversations/{conversationID}
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	result, err := h.queryBus.Ask(r.Context(), queries.GetConversationQuery{
		ConversationID: chi.URLParam(r, "conversationID"),
		Verified:       middleware.VerifiedIdentity(r),
	})
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, result)
}

// Close handles DELETE /api/v1/conversations/{conversationID}
func (h *ConversationHandler) Close(w http.ResponseWriter, r *http.Request) {
	_, err := h.commandBus.Send(r.Context(), commands.CloseConversationCommand{
		ConversationID: chi.URLParam(r, "conversationID"),
		Verified:       middleware.VerifiedIdentity(r),
	})
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
