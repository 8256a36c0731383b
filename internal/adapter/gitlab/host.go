package gitlab

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/Strob0t/TaskPilot/internal/domain"
	"github.com/Strob0t/TaskPilot/internal/port/repohost"
)

// Host implements repohost.Host for GitLab via the REST API v4.
type Host struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHost creates a GitLab repository host with the given base URL and token.
func NewHost(baseURL, token string) *Host {
	return &Host{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: http.DefaultClient,
	}
}

func (h *Host) Name() string { return sourceName }

// gitlabProject mirrors the JSON response from the GitLab projects API.
type gitlabProject struct {
	ID                int    `json:"id"`
	PathWithNamespace string `json:"path_with_namespace"`
	DefaultBranch     string `json:"default_branch"`
	WebURL            string `json:"web_url"`
}

func remoteFrom(p *gitlabProject) *repohost.RemoteProject {
	branch := p.DefaultBranch
	if branch == "" {
		branch = "main"
	}
	return &repohost.RemoteProject{
		ID:            fmt.Sprintf("%d", p.ID),
		Path:          p.PathWithNamespace,
		DefaultBranch: branch,
		WebURL:        p.WebURL,
	}
}

// CurrentUser returns the account behind the configured token.
func (h *Host) CurrentUser(ctx context.Context) (*repohost.User, error) {
	body, err := doRequest(ctx, h.httpClient, h.token, http.MethodGet, h.baseURL+"/api/v4/user", nil)
	if err != nil {
		return nil, fmt.Errorf("gitlab current user: %w", err)
	}

	var u struct {
		ID       int    `json:"id"`
		Username string `json:"username"`
	}
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, fmt.Errorf("gitlab parse user: %w", err)
	}
	return &repohost.User{ID: fmt.Sprintf("%d", u.ID), Username: u.Username}, nil
}

// FindProject looks up a repository by its namespaced path.
func (h *Host) FindProject(ctx context.Context, path string) (*repohost.RemoteProject, error) {
	reqURL := fmt.Sprintf("%s/api/v4/projects/%s", h.baseURL, url.PathEscape(path))
	body, err := doRequest(ctx, h.httpClient, h.token, http.MethodGet, reqURL, nil)
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return nil, fmt.Errorf("gitlab project %s: %w", path, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("gitlab find project: %w", err)
	}

	var p gitlabProject
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("gitlab parse project: %w", err)
	}
	return remoteFrom(&p), nil
}

// CreateProject creates a repository, under the namespace path when given.
func (h *Host) CreateProject(ctx context.Context, namespace, name string) (*repohost.RemoteProject, error) {
	payload := map[string]any{
		"name":                   name,
		"initialize_with_readme": true,
	}
	if namespace != "" {
		nsID, err := h.namespaceID(ctx, namespace)
		if err != nil {
			return nil, err
		}
		payload["namespace_id"] = nsID
	}
	data, _ := json.Marshal(payload)

	body, err := doRequest(ctx, h.httpClient, h.token, http.MethodPost,
		h.baseURL+"/api/v4/projects", strings.NewReader(string(data)))
	if err != nil {
		return nil, fmt.Errorf("gitlab create project: %w", err)
	}

	var p gitlabProject
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("gitlab parse project: %w", err)
	}
	return remoteFrom(&p), nil
}

func (h *Host) namespaceID(ctx context.Context, path string) (int, error) {
	reqURL := fmt.Sprintf("%s/api/v4/namespaces/%s", h.baseURL, url.PathEscape(path))
	body, err := doRequest(ctx, h.httpClient, h.token, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, fmt.Errorf("gitlab namespace %s: %w", path, err)
	}
	var ns struct {
		ID int `json:"id"`
	}
	if err := json.Unmarshal(body, &ns); err != nil {
		return 0, fmt.Errorf("gitlab parse namespace: %w", err)
	}
	return ns.ID, nil
}

// FileExists reports whether path exists on the given branch.
func (h *Host) FileExists(ctx context.Context, projectID, branch, path string) (bool, error) {
	reqURL := fmt.Sprintf("%s/api/v4/projects/%s/repository/files/%s?ref=%s",
		h.baseURL, url.PathEscape(projectID), url.PathEscape(path), url.QueryEscape(branch))
	_, err := doRequest(ctx, h.httpClient, h.token, http.MethodHead, reqURL, nil)
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("gitlab file exists: %w", err)
	}
	return true, nil
}

// commitAction is one entry in a GitLab commit request.
type commitAction struct {
	Action   string `json:"action"`
	FilePath string `json:"file_path"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// CommitFiles writes several files in one commit. Each file's action is
// chosen by probing whether it already exists on the branch.
func (h *Host) CommitFiles(ctx context.Context, projectID, branch, message string, files []repohost.File) error {
	actions := make([]commitAction, 0, len(files))
	for _, f := range files {
		action, err := h.actionFor(ctx, projectID, branch, f.Path)
		if err != nil {
			return err
		}
		actions = append(actions, commitAction{
			Action:   action,
			FilePath: f.Path,
			Content:  encodeContent(f.Content),
			Encoding: "base64",
		})
	}

	payload := map[string]any{
		"branch":         branch,
		"commit_message": message,
		"actions":        actions,
	}
	data, _ := json.Marshal(payload)

	reqURL := fmt.Sprintf("%s/api/v4/projects/%s/repository/commits", h.baseURL, url.PathEscape(projectID))
	if _, err := doRequest(ctx, h.httpClient, h.token, http.MethodPost, reqURL, strings.NewReader(string(data))); err != nil {
		return fmt.Errorf("gitlab commit %d files: %w", len(files), err)
	}
	return nil
}

// UploadFile writes one file in its own commit.
func (h *Host) UploadFile(ctx context.Context, projectID, branch, message string, file repohost.File) error {
	return h.CommitFiles(ctx, projectID, branch, message, []repohost.File{file})
}

func (h *Host) actionFor(ctx context.Context, projectID, branch, path string) (string, error) {
	exists, err := h.FileExists(ctx, projectID, branch, path)
	if err != nil {
		return "", err
	}
	if exists {
		return "update", nil
	}
	return "create", nil
}

// pipelineVariable is one entry in a GitLab pipeline trigger request.
type pipelineVariable struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// TriggerPipeline starts a CI pipeline on ref and returns its id.
func (h *Host) TriggerPipeline(ctx context.Context, projectID, ref string, variables map[string]string) (string, error) {
	vars := make([]pipelineVariable, 0, len(variables))
	for k, v := range variables {
		vars = append(vars, pipelineVariable{Key: k, Value: v})
	}
	payload := map[string]any{
		"ref":       ref,
		"variables": vars,
	}
	data, _ := json.Marshal(payload)

	reqURL := fmt.Sprintf("%s/api/v4/projects/%s/pipeline", h.baseURL, url.PathEscape(projectID))
	body, err := doRequest(ctx, h.httpClient, h.token, http.MethodPost, reqURL, strings.NewReader(string(data)))
	if err != nil {
		return "", fmt.Errorf("gitlab trigger pipeline: %w", err)
	}

	var p struct {
		ID int `json:"id"`
	}
	if err := json.Unmarshal(body, &p); err != nil {
		return "", fmt.Errorf("gitlab parse pipeline: %w", err)
	}
	return fmt.Sprintf("%d", p.ID), nil
}

// EnablePipelineVariables lowers the role needed to pass variables into a
// pipeline so external triggers can carry their variable set.
func (h *Host) EnablePipelineVariables(ctx context.Context, projectID string) error {
	payload := `{"ci_pipeline_variables_minimum_override_role":"developer"}`
	reqURL := fmt.Sprintf("%s/api/v4/projects/%s", h.baseURL, url.PathEscape(projectID))
	if _, err := doRequest(ctx, h.httpClient, h.token, http.MethodPut, reqURL, strings.NewReader(payload)); err != nil {
		return fmt.Errorf("gitlab enable pipeline variables: %w", err)
	}
	return nil
}

func encodeContent(content []byte) string {
	return base64.StdEncoding.EncodeToString(content)
}

func isStatus(err error, status int) bool {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return apiErr.status == status
	}
	return false
}
