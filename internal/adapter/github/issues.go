// Package github implements the issue source port for GitHub Issues via the
// REST API v3.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/Strob0t/TaskPilot/internal/domain/project"
	"github.com/Strob0t/TaskPilot/internal/port/issuesource"
)

const sourceName = "github"

const issuesPerPage = 50

// Source implements issuesource.Source for GitHub Issues.
type Source struct {
	baseURL    string
	token      string
	repo       string // "owner/name"
	httpClient *http.Client
}

// NewSource creates a GitHub issue source for one repository. An empty
// baseURL targets api.github.com; set it for GitHub Enterprise.
func NewSource(baseURL, token, repo string) *Source {
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	return &Source{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		repo:       repo,
		httpClient: http.DefaultClient,
	}
}

func (s *Source) Name() string { return sourceName }

// ghIssue mirrors the JSON response from the GitHub issues API.
type ghIssue struct {
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	State     string    `json:"state"`
	UpdatedAt time.Time `json:"updated_at"`
	HTMLURL   string    `json:"html_url"`
	// PullRequest is set when the "issue" is actually a PR; those are skipped.
	PullRequest *struct{} `json:"pull_request,omitempty"`
}

// Issues yields open issues page by page, skipping pull requests.
func (s *Source) Issues(ctx context.Context) iter.Seq2[issuesource.Issue, error] {
	return func(yield func(issuesource.Issue, error) bool) {
		for page := 1; ; page++ {
			reqURL := fmt.Sprintf("%s/repos/%s/issues?state=open&per_page=%d&page=%d",
				s.baseURL, s.repo, issuesPerPage, page)
			body, err := s.doRequest(ctx, reqURL)
			if err != nil {
				yield(issuesource.Issue{}, fmt.Errorf("github list issues: %w", err))
				return
			}

			var issues []ghIssue
			if err := json.Unmarshal(body, &issues); err != nil {
				yield(issuesource.Issue{}, fmt.Errorf("github parse response: %w", err))
				return
			}
			if len(issues) == 0 {
				return
			}

			for i := range issues {
				if issues[i].PullRequest != nil {
					continue
				}
				if !yield(issueFrom(&issues[i], s.repo), nil) {
					return
				}
			}
			if len(issues) < issuesPerPage {
				return
			}
		}
	}
}

func issueFrom(issue *ghIssue, repo string) issuesource.Issue {
	return issuesource.Issue{
		ID:          fmt.Sprintf("%d", issue.Number),
		Title:       issue.Title,
		Description: issue.Body,
		UpdatedAt:   issue.UpdatedAt,
		UniqueID:    fmt.Sprintf("%s#%d", repo, issue.Number),
		Meta: map[string]string{
			"state": strings.ToLower(issue.State),
			"url":   issue.HTMLURL,
		},
	}
}

func (s *Source) doRequest(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("github API %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

func init() {
	issuesource.Register(sourceName, func(cfg project.SourceConfig, token string) (issuesource.Source, error) {
		return NewSource(cfg.BaseURL, token, cfg.ProjectRef), nil
	})
}
