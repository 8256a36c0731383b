// Package workerrepo defines the WorkerRepository domain entity.
package workerrepo

import "time"

// Repository is the per-project remote repository holding versioned CI
// configuration and runnable artifacts. CurrentVersion's files must exist
// remotely before any pipeline execution referencing it is triggered.
type Repository struct {
	ID             string    `json:"id"`
	ProjectID      string    `json:"project_id"`
	HostURL        string    `json:"host_url"`
	RemoteID       string    `json:"remote_id"`
	RemotePath     string    `json:"remote_path"`
	TokenSecretRef string    `json:"token_secret_ref,omitempty"`
	CurrentVersion string    `json:"current_version"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// CreateRequest holds the fields needed to persist a new worker repository.
type CreateRequest struct {
	ProjectID      string `json:"project_id"`
	HostURL        string `json:"host_url"`
	RemoteID       string `json:"remote_id"`
	RemotePath     string `json:"remote_path"`
	TokenSecretRef string `json:"token_secret_ref,omitempty"`
	CurrentVersion string `json:"current_version"`
}
