package handlers

import (
	"context"
	"errors"
	"fmt"

	"carechat/application/ports"
	"carechat/application/queries"
	"carechat/application/queries/bus"
	"carechat/application/services"
	pkgerrors "carechat/pkg/errors"
	"carechat/pkg/utils"
)

// GetProfileHandler reads a user's profile
type GetProfileHandler struct {
	profiles ports.ProfileRepository
}

// NewGetProfileHandler creates a new handler
func NewGetProfileHandler(profiles ports.ProfileRepository) *GetProfileHandler {
	return &GetProfileHandler{profiles: profiles}
}

// Handle returns *queries.ProfileView. Guests never have a profile.
func (h *GetProfileHandler) Handle(ctx context.Context, q bus.Query) (interface{}, error) {
	query, ok := q.(queries.GetProfileQuery)
	if !ok {
		return nil, fmt.Errorf("unexpected query type %T", q)
	}

	owner, err := services.ResolveCallerIdentity(query.Verified, query.UserIdentifier)
	if err != nil {
		return nil, err
	}
	if owner.IsGuest() {
		return nil, pkgerrors.NewNotFoundError("profile")
	}

	profile, err := h.profiles.Get(ctx, owner)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, pkgerrors.NewNotFoundError("profile")
		}
		return nil, pkgerrors.NewDatabaseError("get profile", err)
	}

	return &queries.ProfileView{
		UserIdentifier: owner.String(),
		Categories:     profile.Facts(),
		UpdatedAt:      utils.FormatTimestamp(profile.UpdatedAt()),
	}, nil
}
