// Package model defines the domain types shared across the migration pipeline.
package model

// SourceSendGrid is the provenance tag stamped on every migrated contact.
const SourceSendGrid = "sendgrid"

// Contact is a normalized contact record produced by ingestion. Email is the
// identity key: lowercased, trimmed, and unique within a normalized batch.
type Contact struct {
	Email     string   `json:"email"`
	FirstName string   `json:"first_name,omitempty"`
	LastName  string   `json:"last_name,omitempty"`
	Location  string   `json:"location,omitempty"`
	Company   string   `json:"company,omitempty"`
	Phone     string   `json:"phone,omitempty"`
	LinkedIn  string   `json:"linkedin,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	Source    string   `json:"source"`
}

// Action is the write decision taken for a contact.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
)

// Outcome is the result of upserting a single contact.
type Outcome struct {
	Email  string `json:"email"`
	Action Action `json:"action"`
	ID     string `json:"id,omitempty"`
	DryRun bool   `json:"dry_run,omitempty"`
}

// FailedRow records a contact that could not be migrated.
type FailedRow struct {
	Email string `json:"email"`
	Error string `json:"error"`
}
