// Package github implements the VCSClient port using the go-github library.
package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"
	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"

	"github.com/crewbot-dev/crewbot/internal/domain/model"
	"github.com/crewbot-dev/crewbot/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.VCSClient = (*Client)(nil)

// pollPageSize bounds each conditional PR listing pass; the poller only
// needs the most recently updated PRs per cycle.
const pollPageSize = 10

// Client implements the driven.VCSClient port using the go-github library.
type Client struct {
	gh *gh.Client
}

// NewClient creates a GitHub API client with the following transport stack:
//  1. httpcache (ETag-based conditional request caching)
//  2. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//  3. go-github (GitHub REST API client with PAT auth)
func NewClient(token string) *Client {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	rateLimitClient := github_ratelimit.NewClient(cacheTransport)
	client := gh.NewClient(rateLimitClient)
	if token != "" {
		client = client.WithAuthToken(token)
	}

	return &Client{gh: client}
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base
// URL. Intended for testing against an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL string) (*Client, error) {
	client := gh.NewClient(httpClient)

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	client.BaseURL = u

	return &Client{gh: client}, nil
}

// ListOpenPullRequests issues a conditional listing of open pull requests,
// most recently updated first.
func (c *Client) ListOpenPullRequests(ctx context.Context, repo model.RepoConfig, etag string) (driven.PullRequestList, error) {
	return c.listPullRequests(ctx, repo, "open", etag)
}

// ListClosedPullRequests issues a conditional listing of closed pull
// requests, most recently updated first. Callers filter for merged ones.
func (c *Client) ListClosedPullRequests(ctx context.Context, repo model.RepoConfig, etag string) (driven.PullRequestList, error) {
	return c.listPullRequests(ctx, repo, "closed", etag)
}

// listPullRequests performs one conditional PR listing pass. When etag is
// non-empty it is sent as If-None-Match; a 304 answer yields NotModified
// with no PRs and the presented etag unchanged. Rate budget metadata is
// captured from the response on every outcome that carries it.
func (c *Client) listPullRequests(ctx context.Context, repo model.RepoConfig, state, etag string) (driven.PullRequestList, error) {
	u := fmt.Sprintf("repos/%s/%s/pulls?state=%s&sort=updated&direction=desc&per_page=%d",
		repo.Owner, repo.Name, state, pollPageSize)

	req, err := c.gh.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return driven.PullRequestList{}, fmt.Errorf("build %s PR list request for %s: %w", state, repo.FullName(), err)
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	var prs []*gh.PullRequest
	resp, err := c.gh.Do(ctx, req, &prs)
	if resp != nil && resp.StatusCode == http.StatusNotModified {
		return driven.PullRequestList{
			NotModified:   true,
			ETag:          etag,
			RateRemaining: resp.Rate.Remaining,
			RateResetAt:   resp.Rate.Reset.Time,
		}, nil
	}
	if err != nil {
		return driven.PullRequestList{}, fmt.Errorf("listing %s pull requests for %s: %w", state, repo.FullName(), err)
	}

	out := driven.PullRequestList{
		PRs:           make([]model.PullRequest, 0, len(prs)),
		ETag:          resp.Header.Get("ETag"),
		RateRemaining: resp.Rate.Remaining,
		RateResetAt:   resp.Rate.Reset.Time,
	}
	for _, pr := range prs {
		out.PRs = append(out.PRs, mapPullRequest(pr))
	}
	return out, nil
}

// ListTaskFiles fetches every markdown task document under tasks/ at the
// default branch head. A repository without a tasks/ directory yields an
// empty slice.
func (c *Client) ListTaskFiles(ctx context.Context, repo model.RepoConfig) ([]driven.RemoteFile, error) {
	opts := &gh.RepositoryContentGetOptions{Ref: repo.DefaultBranch}

	_, dir, resp, err := c.gh.Repositories.GetContents(ctx, repo.Owner, repo.Name, "tasks", opts)
	if resp != nil && resp.StatusCode == http.StatusNotFound {
		return []driven.RemoteFile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing tasks/ for %s: %w", repo.FullName(), err)
	}

	files := make([]driven.RemoteFile, 0, len(dir))
	for _, entry := range dir {
		if entry.GetType() != "file" || !strings.HasSuffix(entry.GetName(), ".md") {
			continue
		}

		fc, _, _, err := c.gh.Repositories.GetContents(ctx, repo.Owner, repo.Name, entry.GetPath(), opts)
		if err != nil {
			return nil, fmt.Errorf("fetching %s for %s: %w", entry.GetPath(), repo.FullName(), err)
		}
		content, err := fc.GetContent()
		if err != nil {
			return nil, fmt.Errorf("decoding %s for %s: %w", entry.GetPath(), repo.FullName(), err)
		}

		files = append(files, driven.RemoteFile{
			Path:    entry.GetPath(),
			SHA:     entry.GetSHA(),
			Content: []byte(content),
		})
	}

	return files, nil
}

// ListDir returns the file paths directly under dir at the default branch
// head, or an empty slice when the directory does not exist.
func (c *Client) ListDir(ctx context.Context, repo model.RepoConfig, dir string) ([]string, error) {
	opts := &gh.RepositoryContentGetOptions{Ref: repo.DefaultBranch}

	_, entries, resp, err := c.gh.Repositories.GetContents(ctx, repo.Owner, repo.Name, dir, opts)
	if resp != nil && resp.StatusCode == http.StatusNotFound {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing %s for %s: %w", dir, repo.FullName(), err)
	}

	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		paths = append(paths, entry.GetPath())
	}
	return paths, nil
}

// ListBranches returns all branch names, paginated.
func (c *Client) ListBranches(ctx context.Context, repo model.RepoConfig) ([]string, error) {
	opts := &gh.BranchListOptions{ListOptions: gh.ListOptions{PerPage: 100}}

	var branches []string
	for {
		page, resp, err := c.gh.Repositories.ListBranches(ctx, repo.Owner, repo.Name, opts)
		if err != nil {
			return nil, fmt.Errorf("listing branches for %s: %w", repo.FullName(), err)
		}
		for _, b := range page {
			branches = append(branches, b.GetName())
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return branches, nil
}

// refObject is the minimal git ref shape used by CreateBranch. The raw ref
// endpoints are used instead of the typed Git service so the request shapes
// stay pinned to the REST API.
type refObject struct {
	Ref    string `json:"ref"`
	Object struct {
		SHA string `json:"sha"`
	} `json:"object"`
}

// CreateBranch creates a branch pointing at the default branch head. An
// already-existing branch is not an error.
func (c *Client) CreateBranch(ctx context.Context, repo model.RepoConfig, name string) error {
	getURL := fmt.Sprintf("repos/%s/%s/git/ref/heads/%s", repo.Owner, repo.Name, repo.DefaultBranch)
	req, err := c.gh.NewRequest(http.MethodGet, getURL, nil)
	if err != nil {
		return fmt.Errorf("build ref request for %s: %w", repo.FullName(), err)
	}

	var head refObject
	if _, err := c.gh.Do(ctx, req, &head); err != nil {
		return fmt.Errorf("resolving %s head for %s: %w", repo.DefaultBranch, repo.FullName(), err)
	}

	createURL := fmt.Sprintf("repos/%s/%s/git/refs", repo.Owner, repo.Name)
	body := map[string]string{
		"ref": "refs/heads/" + name,
		"sha": head.Object.SHA,
	}
	req, err = c.gh.NewRequest(http.MethodPost, createURL, body)
	if err != nil {
		return fmt.Errorf("build create-ref request for %s: %w", repo.FullName(), err)
	}

	resp, err := c.gh.Do(ctx, req, nil)
	if resp != nil && resp.StatusCode == http.StatusUnprocessableEntity {
		// Reference already exists; the branch is reused.
		return nil
	}
	if err != nil {
		return fmt.Errorf("creating branch %s for %s: %w", name, repo.FullName(), err)
	}
	return nil
}

// PutFile creates or updates path on branch. sha is the blob SHA of the
// file being replaced ("" to create).
func (c *Client) PutFile(ctx context.Context, repo model.RepoConfig, branch, path string, content []byte, message, sha string) error {
	opts := &gh.RepositoryContentFileOptions{
		Message: gh.Ptr(message),
		Content: content,
		Branch:  gh.Ptr(branch),
	}

	var err error
	if sha == "" {
		_, _, err = c.gh.Repositories.CreateFile(ctx, repo.Owner, repo.Name, path, opts)
	} else {
		opts.SHA = gh.Ptr(sha)
		_, _, err = c.gh.Repositories.UpdateFile(ctx, repo.Owner, repo.Name, path, opts)
	}
	if err != nil {
		return fmt.Errorf("writing %s on %s for %s: %w", path, branch, repo.FullName(), err)
	}
	return nil
}

// OpenPullRequest opens a pull request and returns its html_url.
func (c *Client) OpenPullRequest(ctx context.Context, repo model.RepoConfig, head, base, title, body string) (string, error) {
	if base == "" {
		base = repo.DefaultBranch
	}

	pr, _, err := c.gh.PullRequests.Create(ctx, repo.Owner, repo.Name, &gh.NewPullRequest{
		Title:               gh.Ptr(title),
		Head:                gh.Ptr(head),
		Base:                gh.Ptr(base),
		Body:                gh.Ptr(body),
		MaintainerCanModify: gh.Ptr(true),
	})
	if err != nil {
		return "", fmt.Errorf("opening pull request %q for %s: %w", title, repo.FullName(), err)
	}

	return pr.GetHTMLURL(), nil
}

// CreateComment posts an issue comment on a pull request and returns its
// html_url.
func (c *Client) CreateComment(ctx context.Context, repo model.RepoConfig, prNumber int, body string) (string, error) {
	comment, _, err := c.gh.Issues.CreateComment(ctx, repo.Owner, repo.Name, prNumber, &gh.IssueComment{
		Body: gh.Ptr(body),
	})
	if err != nil {
		return "", fmt.Errorf("commenting on %s#%d: %w", repo.FullName(), prNumber, err)
	}

	return comment.GetHTMLURL(), nil
}

// mapPullRequest converts a go-github PullRequest to the domain model shape.
func mapPullRequest(pr *gh.PullRequest) model.PullRequest {
	out := model.PullRequest{
		Number:    pr.GetNumber(),
		Title:     pr.GetTitle(),
		HeadRef:   pr.GetHead().GetRef(),
		HeadSHA:   pr.GetHead().GetSHA(),
		BaseRef:   pr.GetBase().GetRef(),
		URL:       pr.GetHTMLURL(),
		Merged:    pr.MergedAt != nil,
		MergeSHA:  pr.GetMergeCommitSHA(),
		UpdatedAt: pr.GetUpdatedAt().Time,
	}
	if pr.MergedAt != nil {
		out.MergedAt = pr.GetMergedAt().Time
	}
	return out
}
