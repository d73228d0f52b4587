package api

import (
	"github.com/starford/cfgswap/internal/engine"
	"github.com/starford/cfgswap/internal/models"
)

// CreateProfileRequest is the request body for creating a profile.
type CreateProfileRequest struct {
	Name    string `json:"name" example:"work" validate:"required"`
	Content string `json:"content" example:"{\"model\":\"opus\"}" validate:"required"`
}

// UpdateProfileRequest changes the name and/or content. Omitted fields are kept.
type UpdateProfileRequest struct {
	Name    *string `json:"name,omitempty" example:"work-2"`
	Content *string `json:"content,omitempty"`
}

// DuplicateProfileRequest names the copy.
type DuplicateProfileRequest struct {
	Name string `json:"name" example:"work-copy" validate:"required"`
}

// RestoreRequest selects the backup to restore.
type RestoreRequest struct {
	Path string `json:"path" validate:"required"`
}

// CleanupRequest overrides the retention count for one cleanup.
type CleanupRequest struct {
	Keep *int `json:"keep,omitempty" example:"5"`
}

// Profile is the profile response type (aliased from the domain layer).
type Profile = models.Profile

// ProfileListResponse wraps profile listings.
type ProfileListResponse struct {
	Profiles []Profile `json:"profiles" validate:"required"`
	Total    int       `json:"total" example:"3" validate:"required"`
}

// BackupListResponse wraps backup listings.
type BackupListResponse struct {
	Backups []models.BackupRecord `json:"backups" validate:"required"`
}

// ReconcileResponse reports the active profile, null when none matches.
type ReconcileResponse struct {
	Active *Profile `json:"active"`
}

// ApplyResult is the apply/restore response type.
type ApplyResult = engine.Result

// StatusResponse is the target status response type.
type StatusResponse = engine.Status
