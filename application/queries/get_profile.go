package queries

import (
	"carechat/domain/core/valueobjects"
	"carechat/pkg/utils"
)

// GetProfileQuery reads the facts collected about a user
type GetProfileQuery struct {
	UserIdentifier string                `json:"userIdentifier" validate:"required,max=256"`
	Verified       valueobjects.Identity `json:"-"`
}

// Validate validates the query
func (q GetProfileQuery) Validate() error {
	return utils.ValidateStruct(q)
}

// ProfileView is the client view of a profile
type ProfileView struct {
	UserIdentifier string              `json:"userIdentifier"`
	Categories     map[string][]string `json:"categories"`
	UpdatedAt      string              `json:"updatedAt"`
}
