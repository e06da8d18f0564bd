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
)

// FeedbackHandler accepts user feedback
type FeedbackHandler struct {
	commandBus *bus.CommandBus
	errs       *pkgerrors.ErrorHandler
}

// NewFeedbackHandler creates a new feedback handler
func NewFeedbackHandler(commandBus *bus.CommandBus, errs *pkgerrors.ErrorHandler) *FeedbackHandler {
	return &FeedbackHandler{commandBus: commandBus, errs: errs}
}

// Submit handles POST /api/v1/feedback
func (h *FeedbackHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var cmd commands.SubmitFeedbackCommand
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

// ProfileHandler serves profile reads
type ProfileHandler struct {
	queryBus *querybus.QueryBus
	errs     *pkgerrors.ErrorHandler
}

// NewProfileHandler creates a new profile handler
func NewProfileHandler(queryBus *querybus.QueryBus, errs *pkgerrors.ErrorHandler) *ProfileHandler {
	return &ProfileHandler{queryBus: queryBus, errs: errs}
}

// Get handles GET /api/v1/profiles/{userIdentifier}
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	result, err := h.queryBus.Ask(r.Context(), queries.GetProfileQuery{
		UserIdentifier: chi.URLParam(r, "userIdentifier"),
		Verified:       middleware.VerifiedIdentity(r),
	})
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, result)
}
