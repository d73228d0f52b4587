// Package models defines the domain types for cfgswap.
package models

import "time"

// Profile is a named configuration snapshot that can be applied to the target file.
type Profile struct {
	ID          string          `json:"id" yaml:"id"`
	Name        string          `json:"name" yaml:"name"`
	Content     string          `json:"content,omitempty" yaml:"content,omitempty"`
	Fields      ExtractedFields `json:"fields" yaml:"fields"`
	ContentHash string          `json:"content_hash" yaml:"content_hash"`
	IsActive    bool            `json:"is_active" yaml:"is_active"`
	CreatedAt   time.Time       `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" yaml:"updated_at"`
}

// ExtractedFields is a display-only view derived from a profile's content.
type ExtractedFields struct {
	DisplayURL   string `json:"display_url,omitempty" yaml:"display_url,omitempty"`
	MaskedSecret string `json:"masked_secret,omitempty" yaml:"masked_secret,omitempty"`
	Model        string `json:"model,omitempty" yaml:"model,omitempty"`
}

// BackupRecord describes one snapshot of the target file. Records are never
// mutated after creation.
type BackupRecord struct {
	Path             string    `json:"path" yaml:"path"`
	OriginalHash     string    `json:"original_hash,omitempty" yaml:"original_hash,omitempty"`
	Size             int64     `json:"size" yaml:"size"`
	CreatedAt        time.Time `json:"created_at" yaml:"created_at"`
	AppliedProfileID *string   `json:"applied_profile_id,omitempty" yaml:"applied_profile_id,omitempty"`
}

// Audit outcomes.
const (
	OutcomeApplied  = "applied"
	OutcomeRestored = "restored"
	OutcomeFailed   = "failed"
)

// AuditEntry is one line of the apply/restore history.
type AuditEntry struct {
	ID         int64     `json:"id" yaml:"id"`
	ProfileID  string    `json:"profile_id,omitempty" yaml:"profile_id,omitempty"`
	BackupPath string    `json:"backup_path,omitempty" yaml:"backup_path,omitempty"`
	Outcome    string    `json:"outcome" yaml:"outcome"`
	Step       string    `json:"step,omitempty" yaml:"step,omitempty"`
	Message    string    `json:"message,omitempty" yaml:"message,omitempty"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
}

// WithoutContent returns a copy safe for listing: raw content (which may
// hold secrets) is dropped, the masked fields stay.
func (p Profile) WithoutContent() Profile {
	p.Content = ""
	return p
}
