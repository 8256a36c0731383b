// Package agentcli implements the runner.Runner interface by shelling out to
// a coding agent CLI (claude, codex, gemini) in streaming JSON-lines mode.
package agentcli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/Strob0t/TaskPilot/internal/domain/worker"
	"github.com/Strob0t/TaskPilot/internal/port/runner"
)

// Runner drives one agent CLI binary. The binary receives the prompt on
// stdin and emits one JSON event per stdout line.
type Runner struct {
	runnerType worker.RunnerType
	command    string
	args       []string
}

// New creates a Runner for the given type executing command. Extra args are
// passed before the streaming-mode flags the command already carries.
func New(rt worker.RunnerType, command string, args ...string) *Runner {
	return &Runner{runnerType: rt, command: command, args: args}
}

// Register registers a CLI runner factory for rt using the given command
// line. Called from main with the configured per-runner commands.
func Register(rt worker.RunnerType, commandLine string) {
	runner.Register(rt, func(_ map[string]string) (runner.Runner, error) {
		fields := strings.Fields(commandLine)
		if len(fields) == 0 {
			return nil, fmt.Errorf("agentcli: empty command for runner %q", rt)
		}
		return New(rt, fields[0], fields[1:]...), nil
	})
}

func (r *Runner) Name() string { return string(r.runnerType) }

// event is the JSON-lines wire format the agent CLIs emit.
type event struct {
	Kind    string  `json:"kind"`
	Text    string  `json:"text"`
	CostUSD float64 `json:"cost_usd"`
	Error   string  `json:"error"`
}

// Query starts the agent process and returns its chunk stream. The channel
// closes when the process exits; cancelling ctx kills the process.
func (r *Runner) Query(ctx context.Context, prompt string, opts runner.Options) (<-chan runner.Chunk, error) {
	args := r.args
	if len(opts.AllowedTools) > 0 {
		args = append(append([]string{}, args...),
			"--allowed-tools", strings.Join(opts.AllowedTools, ","))
	}

	cmd := exec.CommandContext(ctx, r.command, args...)
	cmd.Dir = opts.WorkDir
	cmd.Env = os.Environ()
	for k, v := range opts.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Stdin = strings.NewReader(prompt)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("agentcli: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("agentcli: start %s: %w", r.command, err)
	}

	chunks := make(chan runner.Chunk)
	go func() {
		defer close(chunks)

		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			chunks <- parseLine(line)
		}

		if err := cmd.Wait(); err != nil {
			chunks <- runner.Chunk{
				Kind: runner.ChunkError,
				Err:  fmt.Sprintf("%s exited: %v", r.command, err),
			}
		}
	}()

	return chunks, nil
}

// parseLine maps one stdout line to a chunk. Lines that are not JSON events
// are surfaced as progress output rather than dropped.
func parseLine(line string) runner.Chunk {
	var ev event
	if err := json.Unmarshal([]byte(line), &ev); err != nil || ev.Kind == "" {
		return runner.Chunk{Kind: runner.ChunkProgress, Text: line}
	}

	switch runner.ChunkKind(ev.Kind) {
	case runner.ChunkStatus, runner.ChunkProgress, runner.ChunkResult, runner.ChunkError:
		return runner.Chunk{
			Kind:    runner.ChunkKind(ev.Kind),
			Text:    ev.Text,
			CostUSD: ev.CostUSD,
			Err:     ev.Error,
		}
	default:
		return runner.Chunk{Kind: runner.ChunkProgress, Text: line}
	}
}
