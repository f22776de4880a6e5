package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/dshills/rulebot/internal/diff"
	"github.com/dshills/rulebot/internal/review"
)

const (
	defaultAPIURL = "https://api.github.com"
	filesPerPage  = 100
)

// ErrAuth marks a request rejected for bad or missing credentials.
var ErrAuth = errors.New("github authentication failed")

// Options configures a Client.
type Options struct {
	// Token is a static bearer token. TokenSource takes precedence when set.
	Token       string
	TokenSource oauth2.TokenSource
	// APIURL defaults to https://api.github.com.
	APIURL string
	// CommentsPerSecond throttles PostComment. Zero means no limit.
	CommentsPerSecond float64
	// HTTPClient is the base client wrapped with authentication.
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client provides access to the GitHub REST API.
type Client struct {
	apiURL  string
	httpCli *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewClient creates a new GitHub client.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	ts := opts.TokenSource
	if ts == nil {
		if opts.Token == "" {
			return nil, fmt.Errorf("%w: no token configured", ErrAuth)
		}
		ts = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token})
	}

	base := opts.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: 60 * time.Second}
	}
	httpCli := oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, base), ts)
	httpCli.Timeout = base.Timeout

	apiURL := opts.APIURL
	if apiURL == "" {
		apiURL = defaultAPIURL
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.CommentsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.CommentsPerSecond), 1)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		apiURL:  strings.TrimRight(apiURL, "/"),
		httpCli: httpCli,
		limiter: limiter,
		logger:  logger,
	}, nil
}

func (c *Client) do(ctx context.Context, method, url, accept string, body io.Reader) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpCli.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, nil, fmt.Errorf("reading response: %w", err)
	}
	return resp, data, nil
}

// GetPRDiff fetches the unified diff of a pull request.
func (c *Client) GetPRDiff(ctx context.Context, owner, repo string, prNumber int) (string, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/pulls/%d", c.apiURL, owner, repo, prNumber)

	resp, body, err := c.do(ctx, http.MethodGet, url, "application/vnd.github.v3.diff", nil)
	if err != nil {
		return "", fmt.Errorf("fetching PR diff: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", fmt.Errorf("PR #%d not found in %s/%s", prNumber, owner, repo)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", fmt.Errorf("%w: %s", ErrAuth, string(body))
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("GitHub API error (status %d): %s", resp.StatusCode, string(body))
	}

	c.logger.Debug("fetched PR diff",
		zap.String("repo", owner+"/"+repo),
		zap.Int("pr", prNumber),
		zap.Int("bytes", len(body)))
	return string(body), nil
}

// PRFile represents a file changed in a pull request. Patch is nil for
// binary files and for patches GitHub considers too large.
type PRFile struct {
	Filename string  `json:"filename"`
	Status   string  `json:"status"`
	Patch    *string `json:"patch,omitempty"`
}

// ListPRFiles fetches every changed file of a pull request, following
// pagination.
func (c *Client) ListPRFiles(ctx context.Context, owner, repo string, prNumber int) ([]PRFile, error) {
	var all []PRFile
	for page := 1; ; page++ {
		url := fmt.Sprintf("%s/repos/%s/%s/pulls/%d/files?per_page=%d&page=%d",
			c.apiURL, owner, repo, prNumber, filesPerPage, page)

		resp, body, err := c.do(ctx, http.MethodGet, url, "application/vnd.github+json", nil)
		if err != nil {
			return nil, fmt.Errorf("fetching PR files: %w", err)
		}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return nil, fmt.Errorf("%w: %s", ErrAuth, string(body))
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("GitHub API error (status %d): %s", resp.StatusCode, string(body))
		}

		var files []PRFile
		if err := json.Unmarshal(body, &files); err != nil {
			return nil, fmt.Errorf("parsing response: %w", err)
		}
		all = append(all, files...)
		if len(files) < filesPerPage {
			return all, nil
		}
	}
}

// FilePatches converts a files listing into extractor input.
func FilePatches(files []PRFile) []diff.FilePatch {
	out := make([]diff.FilePatch, 0, len(files))
	for _, f := range files {
		out = append(out, diff.FilePatch{Filename: f.Filename, Patch: f.Patch})
	}
	return out
}

// CommentError is returned when GitHub does not accept an inline comment.
type CommentError struct {
	StatusCode int
	Body       string
}

func (e *CommentError) Error() string {
	return fmt.Sprintf("posting comment failed (status %d): %s", e.StatusCode, e.Body)
}

// PullRequest posts inline comments to one pull request. It implements
// review.CommentSink.
type PullRequest struct {
	client *Client
	Owner  string
	Repo   string
	Number int
}

// PullRequest returns a comment sink for the given pull request.
func (c *Client) PullRequest(owner, repo string, number int) *PullRequest {
	return &PullRequest{client: c, Owner: owner, Repo: repo, Number: number}
}

// PostComment creates one inline review comment. Only 201 Created counts as
// success.
func (p *PullRequest) PostComment(ctx context.Context, comment review.Comment) error {
	if err := p.client.limiter.Wait(ctx); err != nil {
		return err
	}

	payload, err := json.Marshal(comment)
	if err != nil {
		return fmt.Errorf("marshaling comment: %w", err)
	}
	url := fmt.Sprintf("%s/repos/%s/%s/pulls/%d/comments", p.client.apiURL, p.Owner, p.Repo, p.Number)

	resp, body, err := p.client.do(ctx, http.MethodPost, url, "application/vnd.github+json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("posting comment: %w", err)
	}
	if resp.StatusCode != http.StatusCreated {
		return &CommentError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return nil
}
