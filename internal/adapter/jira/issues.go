// Package jira implements the issue source port for Jira via the REST API
// v2 search endpoint. Unlike the repository-scoped trackers this source is
// query-driven: the configured JQL decides which tickets show up.
package jira

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

	"github.com/Strob0t/TaskPilot/internal/domain/project"
	"github.com/Strob0t/TaskPilot/internal/port/issuesource"
)

const sourceName = "jira"

const pageSize = 50

// Jira renders timestamps like "2024-01-02T15:04:05.000+0000".
const jiraTimeLayout = "2006-01-02T15:04:05.000-0700"

// Source implements issuesource.Source for Jira ticket queries.
type Source struct {
	baseURL    string
	token      string
	jql        string
	projectKey string
	httpClient *http.Client
}

// NewSource creates a Jira issue source. When jql is empty a default query
// over the project's open tickets is used.
func NewSource(baseURL, token, projectKey, jql string) *Source {
	if jql == "" {
		jql = fmt.Sprintf(`project = %q AND statusCategory != Done ORDER BY updated DESC`, projectKey)
	}
	return &Source{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		jql:        jql,
		projectKey: projectKey,
		httpClient: http.DefaultClient,
	}
}

func (s *Source) Name() string { return sourceName }

// searchResponse mirrors the JSON response from the Jira search API.
type searchResponse struct {
	StartAt int         `json:"startAt"`
	Total   int         `json:"total"`
	Issues  []jiraIssue `json:"issues"`
}

type jiraIssue struct {
	Key    string `json:"key"`
	Fields struct {
		Summary     string `json:"summary"`
		Description string `json:"description"`
		Updated     string `json:"updated"`
		Status      struct {
			Name string `json:"name"`
		} `json:"status"`
	} `json:"fields"`
}

// Issues yields the query's tickets page by page.
func (s *Source) Issues(ctx context.Context) iter.Seq2[issuesource.Issue, error] {
	return func(yield func(issuesource.Issue, error) bool) {
		for startAt := 0; ; {
			reqURL := fmt.Sprintf("%s/rest/api/2/search?jql=%s&startAt=%d&maxResults=%d",
				s.baseURL, url.QueryEscape(s.jql), startAt, pageSize)
			body, err := s.doRequest(ctx, reqURL)
			if err != nil {
				yield(issuesource.Issue{}, fmt.Errorf("jira search: %w", err))
				return
			}

			var page searchResponse
			if err := json.Unmarshal(body, &page); err != nil {
				yield(issuesource.Issue{}, fmt.Errorf("jira parse response: %w", err))
				return
			}
			if len(page.Issues) == 0 {
				return
			}

			for i := range page.Issues {
				if !yield(issueFrom(&page.Issues[i])) {
					return
				}
			}
			startAt += len(page.Issues)
			if startAt >= page.Total {
				return
			}
		}
	}
}

// issueFrom converts one API ticket. A malformed updated timestamp is an
// error rather than a zero time: a zero UpdatedAt would pass every dedup
// check and freeze the ticket after its first processing.
func issueFrom(issue *jiraIssue) (issuesource.Issue, error) {
	updated, err := time.Parse(jiraTimeLayout, issue.Fields.Updated)
	if err != nil {
		return issuesource.Issue{}, fmt.Errorf("jira issue %s: parse updated %q: %w",
			issue.Key, issue.Fields.Updated, err)
	}
	return issuesource.Issue{
		ID:          issue.Key,
		Title:       issue.Fields.Summary,
		Description: issue.Fields.Description,
		UpdatedAt:   updated,
		UniqueID:    issue.Key,
		Meta: map[string]string{
			"status": issue.Fields.Status.Name,
		},
	}, nil
}

func (s *Source) doRequest(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
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
		return nil, fmt.Errorf("jira API %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

func init() {
	issuesource.Register(sourceName, func(cfg project.SourceConfig, token string) (issuesource.Source, error) {
		return NewSource(cfg.BaseURL, token, cfg.ProjectRef, cfg.Query), nil
	})
}
