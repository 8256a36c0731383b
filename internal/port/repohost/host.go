// Package repohost defines the repository host port (interface): the remote
// system that stores worker repositories and runs CI pipelines.
package repohost

import "context"

// RemoteProject describes a repository on the host.
type RemoteProject struct {
	ID            string `json:"id"`
	Path          string `json:"path"`
	DefaultBranch string `json:"default_branch"`
	WebURL        string `json:"web_url,omitempty"`
}

// File is one file in a batch commit.
type File struct {
	Path    string
	Content []byte
}

// User is the authenticated host account.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Host is the port interface for a CI repository host.
type Host interface {
	// Name returns the host identifier (e.g. "gitlab").
	Name() string

	// CurrentUser returns the account behind the configured credential.
	CurrentUser(ctx context.Context) (*User, error)

	// FindProject looks up a repository by path. Returns domain.ErrNotFound
	// when it does not exist.
	FindProject(ctx context.Context, path string) (*RemoteProject, error)

	// CreateProject creates a new repository under the given namespace path.
	CreateProject(ctx context.Context, namespace, name string) (*RemoteProject, error)

	// FileExists reports whether path exists on the given branch.
	FileExists(ctx context.Context, projectID, branch, path string) (bool, error)

	// CommitFiles writes several files in a single commit.
	CommitFiles(ctx context.Context, projectID, branch, message string, files []File) error

	// UploadFile writes one file in its own commit. Large artifacts go
	// through here one at a time to stay under request-size limits.
	UploadFile(ctx context.Context, projectID, branch, message string, file File) error

	// TriggerPipeline starts a CI pipeline with the given variables and
	// returns the external pipeline id.
	TriggerPipeline(ctx context.Context, projectID, ref string, variables map[string]string) (string, error)

	// EnablePipelineVariables turns on the host setting that lets external
	// callers pass pipeline variables. Best-effort on resolution.
	EnablePipelineVariables(ctx context.Context, projectID string) error
}
