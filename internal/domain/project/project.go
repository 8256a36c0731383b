// Package project defines the Project domain entity and its configuration
// sub-documents (issue sources, file space, executor, AI providers).
package project

import (
	"time"

	"github.com/Strob0t/TaskPilot/internal/domain/worker"
)

// SourceConfig configures one issue source attached to a project.
// Type is the registry discriminator ("gitlab", "github", "jira").
type SourceConfig struct {
	Type           string `json:"type"`
	BaseURL        string `json:"base_url"`
	ProjectRef     string `json:"project_ref"`
	TokenSecretRef string `json:"token_secret_ref,omitempty"`
	// Query narrows ticket-query style sources (e.g. a JQL expression).
	Query string `json:"query,omitempty"`
}

// SpaceConfig configures the project's clonable code repository.
type SpaceConfig struct {
	Type     string `json:"type"`
	CloneURL string `json:"clone_url"`
	Dir      string `json:"dir"`
}

// ExecutorConfig holds project-level credentials for the CI repository host.
// When absent, environment defaults from config take over.
type ExecutorConfig struct {
	HostURL        string `json:"host_url"`
	TokenSecretRef string `json:"token_secret_ref"`
	GroupPath      string `json:"group_path,omitempty"`
}

// AIProviderConfig holds a project's credential reference for one runner type.
type AIProviderConfig struct {
	Runner       worker.RunnerType `json:"runner"`
	KeySecretRef string            `json:"key_secret_ref"`
	Model        string            `json:"model,omitempty"`
	ProxyURL     string            `json:"proxy_url,omitempty"`
}

// Project groups tasks, sources, and execution configuration.
type Project struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	OwnerID       string             `json:"owner_id"`
	Enabled       bool               `json:"enabled"`
	WorkerType    worker.Type        `json:"worker_type"`
	AllowOverride bool               `json:"allow_worker_override"`
	Sources       []SourceConfig     `json:"sources,omitempty"`
	Space         *SpaceConfig       `json:"space,omitempty"`
	Executor      *ExecutorConfig    `json:"executor,omitempty"`
	AIProviders   []AIProviderConfig `json:"ai_providers,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// WorkspaceDir returns the checkout directory name for the space, derived
// from the clone URL's repository name when Dir is not set.
func (s *SpaceConfig) WorkspaceDir() string {
	if s.Dir != "" {
		return s.Dir
	}
	if parsed, err := ParseRepoURL(s.CloneURL); err == nil {
		return parsed.Repo
	}
	return ""
}

// AIProvider returns the provider config for the given runner, or nil.
func (p *Project) AIProvider(rt worker.RunnerType) *AIProviderConfig {
	for i := range p.AIProviders {
		if p.AIProviders[i].Runner == rt {
			return &p.AIProviders[i]
		}
	}
	return nil
}

// ResolveWorkerType applies an optional caller override, honored only when
// the project explicitly allows overrides.
func (p *Project) ResolveWorkerType(override worker.Type) worker.Type {
	if override != "" && p.AllowOverride {
		return override
	}
	return p.WorkerType
}
