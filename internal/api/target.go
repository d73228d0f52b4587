package api

import (
	"net/http"
	"strconv"

	"github.com/starford/cfgswap/internal/models"
)

// Status handles GET /api/status.
//
//	@Summary		Report the target file and the profile it matches
//	@Tags			target
//	@Produce		json
//	@Success		200	{object}	StatusResponse
//	@Security		BearerAuth
//	@Router			/status [get]
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Status(r.Context())
	if err != nil {
		writeError(w, "status", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Reconcile handles POST /api/reconcile.
//
//	@Summary		Recompute the active profile from the target file
//	@Tags			target
//	@Produce		json
//	@Success		200	{object}	ReconcileResponse
//	@Security		BearerAuth
//	@Router			/reconcile [post]
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Reconcile(r.Context())
	if err != nil {
		writeError(w, "reconcile", err)
		return
	}
	writeJSON(w, http.StatusOK, ReconcileResponse{Active: p})
}

// ListBackups handles GET /api/backups.
//
//	@Summary		List backups of the target file, newest first
//	@Tags			backups
//	@Produce		json
//	@Success		200	{object}	BackupListResponse
//	@Security		BearerAuth
//	@Router			/backups [get]
func (h *Handler) ListBackups(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Backups(r.Context())
	if err != nil {
		writeError(w, "list backups", err)
		return
	}
	if list == nil {
		list = []models.BackupRecord{}
	}
	writeJSON(w, http.StatusOK, BackupListResponse{Backups: list})
}

// CreateBackup handles POST /api/backups.
//
//	@Summary		Back up the target file now
//	@Tags			backups
//	@Produce		json
//	@Success		201	{object}	models.BackupRecord
//	@Failure		500	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/backups [post]
func (h *Handler) CreateBackup(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.CreateBackup(r.Context())
	if err != nil {
		writeError(w, "create backup", err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// RestoreBackup handles POST /api/backups/restore.
//
//	@Summary		Install a backup into the target file
//	@Tags			backups
//	@Accept			json
//	@Produce		json
//	@Param			body	body		RestoreRequest	true	"Backup to restore"
//	@Success		200		{object}	ApplyResult
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/backups/restore [post]
func (h *Handler) RestoreBackup(w http.ResponseWriter, r *http.Request) {
	var req RestoreRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	res, err := h.svc.Restore(r.Context(), req.Path)
	if err != nil {
		writeError(w, "restore backup", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// CleanupBackups handles POST /api/backups/cleanup.
//
//	@Summary		Delete all but the newest backups
//	@Tags			backups
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CleanupRequest	false	"Keep count override"
//	@Success		200		{object}	engine.PruneResult
//	@Security		BearerAuth
//	@Router			/backups/cleanup [post]
func (h *Handler) CleanupBackups(w http.ResponseWriter, r *http.Request) {
	keep := -1
	if r.ContentLength != 0 {
		var req CleanupRequest
		if !decode(w, r, &req) {
			return
		}
		if req.Keep != nil {
			if *req.Keep < 0 {
				writeJSON(w, http.StatusBadRequest, errorBody("keep must be >= 0"))
				return
			}
			keep = *req.Keep
		}
	}
	res, err := h.svc.Cleanup(r.Context(), keep)
	if err != nil {
		writeError(w, "cleanup backups", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// History handles GET /api/history.
//
//	@Summary		Recent apply and restore outcomes
//	@Tags			target
//	@Produce		json
//	@Param			limit	query		int	false	"Max entries"
//	@Success		200		{array}		models.AuditEntry
//	@Security		BearerAuth
//	@Router			/history [get]
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.svc.History(r.Context(), limit)
	if err != nil {
		writeError(w, "history", err)
		return
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
