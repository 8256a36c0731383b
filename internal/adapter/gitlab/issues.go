// Package gitlab implements the issue source and repository host ports for
// GitLab instances using their REST API v4.
package gitlab

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Strob0t/TaskPilot/internal/port/issuesource"
)

const sourceName = "gitlab"

const issuesPerPage = 50

// Source implements issuesource.Source for GitLab Issues via the REST API v4.
type Source struct {
	baseURL    string
	token      string
	projectRef string
	httpClient *http.Client
}

// NewSource creates a GitLab issue source for one project.
func NewSource(baseURL, token, projectRef string) *Source {
	return &Source{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		projectRef: projectRef,
		httpClient: http.DefaultClient,
	}
}

func (s *Source) Name() string { return sourceName }

// gitlabIssue mirrors the JSON response from the GitLab issues API.
type gitlabIssue struct {
	IID         int       `json:"iid"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	State       string    `json:"state"`
	Labels      []string  `json:"labels"`
	UpdatedAt   time.Time `json:"updated_at"`
	WebURL      string    `json:"web_url"`
}

// Issues yields open issues page by page. The next page is fetched lazily,
// only when iteration consumes past the current one.
func (s *Source) Issues(ctx context.Context) iter.Seq2[issuesource.Issue, error] {
	return func(yield func(issuesource.Issue, error) bool) {
		encodedRef := url.PathEscape(s.projectRef)

		for page := 1; ; page++ {
			reqURL := fmt.Sprintf("%s/api/v4/projects/%s/issues?state=opened&per_page=%d&page=%d",
				s.baseURL, encodedRef, issuesPerPage, page)
			body, err := doRequest(ctx, s.httpClient, s.token, http.MethodGet, reqURL, nil)
			if err != nil {
				yield(issuesource.Issue{}, fmt.Errorf("gitlab list issues: %w", err))
				return
			}

			var issues []gitlabIssue
			if err := json.Unmarshal(body, &issues); err != nil {
				yield(issuesource.Issue{}, fmt.Errorf("gitlab parse response: %w", err))
				return
			}
			if len(issues) == 0 {
				return
			}

			for i := range issues {
				if !yield(issueFrom(&issues[i], s.projectRef), nil) {
					return
				}
			}
			if len(issues) < issuesPerPage {
				return
			}
		}
	}
}

func issueFrom(issue *gitlabIssue, projectRef string) issuesource.Issue {
	return issuesource.Issue{
		ID:          fmt.Sprintf("%d", issue.IID),
		Title:       issue.Title,
		Description: issue.Description,
		UpdatedAt:   issue.UpdatedAt,
		UniqueID:    fmt.Sprintf("%s#%d", projectRef, issue.IID),
		Meta: map[string]string{
			"state":  strings.ToLower(issue.State),
			"url":    issue.WebURL,
			"labels": strings.Join(issue.Labels, ","),
		},
	}
}

// doRequest performs one authenticated GitLab API call, shared between the
// issue source and the repository host.
func doRequest(ctx context.Context, client *http.Client, token, method, reqURL string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if token != "" {
		req.Header.Set("PRIVATE-TOKEN", token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req) //nolint:gosec // URL is constructed from trusted baseURL + project ref
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &apiError{status: resp.StatusCode, body: string(respBody)}
	}

	return respBody, nil
}

// apiError preserves the HTTP status for retryability classification.
type apiError struct {
	status int
	body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("gitlab API %d: %s", e.status, e.body)
}

// StatusCode returns the HTTP status of the failed call.
func (e *apiError) StatusCode() int { return e.status }
