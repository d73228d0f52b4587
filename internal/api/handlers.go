package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/cfgswap/internal/engine"
	"github.com/starford/cfgswap/internal/models"
	"github.com/starford/cfgswap/internal/profileservice"
	"github.com/starford/cfgswap/internal/store"
)

const maxBody = 1 << 20

// Handler holds API route handlers.
type Handler struct {
	svc *profileservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *profileservice.Service) *Handler {
	return &Handler{svc: svc}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

// ListProfiles handles GET /api/profiles.
//
//	@Summary		List profiles, optionally filtered by a substring query
//	@Tags			profiles
//	@Produce		json
//	@Param			q	query		string	false	"Case-insensitive substring of name or content"
//	@Success		200	{object}	ProfileListResponse
//	@Security		BearerAuth
//	@Router			/profiles [get]
func (h *Handler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	var (
		items []models.Profile
		err   error
	)
	if q := r.URL.Query().Get("q"); q != "" {
		items, err = h.svc.Search(r.Context(), q)
	} else {
		items, err = h.svc.List(r.Context())
	}
	if err != nil {
		writeError(w, "list profiles", err)
		return
	}
	if items == nil {
		items = []models.Profile{}
	}
	writeJSON(w, http.StatusOK, ProfileListResponse{Profiles: items, Total: len(items)})
}

// GetProfile handles GET /api/profiles/{id}.
//
//	@Summary		Get a profile by id or name
//	@Tags			profiles
//	@Produce		json
//	@Param			id	path		string	true	"Profile id or name"
//	@Success		200	{object}	Profile
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/profiles/{id} [get]
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get profile", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// CreateProfile handles POST /api/profiles.
//
//	@Summary		Create a profile
//	@Tags			profiles
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateProfileRequest	true	"Profile to create"
//	@Success		201		{object}	Profile
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/profiles [post]
func (h *Handler) CreateProfile(w http.ResponseWriter, r *http.Request) {
	var req CreateProfileRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := h.svc.Create(r.Context(), req.Name, req.Content)
	if err != nil {
		writeError(w, "create profile", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// UpdateProfile handles PUT /api/profiles/{id}.
//
//	@Summary		Rename a profile and/or replace its content
//	@Tags			profiles
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string					true	"Profile id or name"
//	@Param			body	body		UpdateProfileRequest	true	"Fields to change"
//	@Success		200		{object}	Profile
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/profiles/{id} [put]
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req UpdateProfileRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := h.svc.Update(r.Context(), chi.URLParam(r, "id"), store.UpdateParams{Name: req.Name, Content: req.Content})
	if err != nil {
		writeError(w, "update profile", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// DeleteProfile handles DELETE /api/profiles/{id}.
//
//	@Summary		Delete a profile that is not currently installed
//	@Tags			profiles
//	@Param			id	path	string	true	"Profile id or name"
//	@Success		204	"Profile deleted"
//	@Failure		404	{object}	errResponse
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/profiles/{id} [delete]
func (h *Handler) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	if _, err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, "delete profile", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DuplicateProfile handles POST /api/profiles/{id}/duplicate.
//
//	@Summary		Copy a profile under a new name
//	@Tags			profiles
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string					true	"Profile id or name"
//	@Param			body	body		DuplicateProfileRequest	true	"Name of the copy"
//	@Success		201		{object}	Profile
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/profiles/{id}/duplicate [post]
func (h *Handler) DuplicateProfile(w http.ResponseWriter, r *http.Request) {
	var req DuplicateProfileRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := h.svc.Duplicate(r.Context(), chi.URLParam(r, "id"), req.Name)
	if err != nil {
		writeError(w, "duplicate profile", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// ApplyProfile handles POST /api/profiles/{id}/apply.
//
//	@Summary		Install a profile into the target file
//	@Tags			profiles
//	@Produce		json
//	@Param			id		path		string	true	"Profile id or name"
//	@Param			dry_run	query		bool	false	"Only report whether the target would change"
//	@Success		200		{object}	ApplyResult
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		423		{object}	errResponse
//	@Failure		500		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/profiles/{id}/apply [post]
func (h *Handler) ApplyProfile(w http.ResponseWriter, r *http.Request) {
	var dryRun bool
	if v := r.URL.Query().Get("dry_run"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("dry_run must be a boolean"))
			return
		}
		dryRun = b
	}
	res, err := h.svc.Apply(r.Context(), chi.URLParam(r, "id"), engine.ApplyOptions{DryRun: dryRun})
	if err != nil {
		writeError(w, "apply profile", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
