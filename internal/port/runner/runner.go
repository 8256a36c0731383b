// Package runner defines the coding agent port (interface). Agent output is
// a lazy stream of heterogeneous chunks; the terminal result chunk is the
// sole success signal, no other chunk kind implies completion.
package runner

import "context"

// ChunkKind discriminates the chunk variants a runner may emit.
type ChunkKind string

const (
	ChunkStatus   ChunkKind = "status"
	ChunkProgress ChunkKind = "progress"
	ChunkResult   ChunkKind = "result"
	ChunkError    ChunkKind = "error"
)

// Chunk is one event emitted by a runner during execution.
type Chunk struct {
	Kind    ChunkKind `json:"kind"`
	Text    string    `json:"text,omitempty"`
	CostUSD float64   `json:"cost_usd,omitempty"`
	Err     string    `json:"error,omitempty"`
}

// Options configure a single runner invocation.
type Options struct {
	WorkDir string
	// AllowedTools limits the runner's side-effect scope.
	AllowedTools []string
	Env          map[string]string
}

// Runner is the port interface for driving a coding agent.
type Runner interface {
	// Name returns the runner identifier (e.g. "claude").
	Name() string

	// Query starts the agent and returns its chunk stream. The channel is
	// closed when the agent finishes; cancelling ctx stops the agent.
	Query(ctx context.Context, prompt string, opts Options) (<-chan Chunk, error)
}
