package fetch

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	werrors "github.com/docweave/docweave/internal/errors"
	"github.com/docweave/docweave/internal/extract"
)

const (
	// DefaultAPIBase is the public GitHub REST endpoint.
	DefaultAPIBase = "https://api.github.com"

	// DefaultGitHubTimeout bounds each API call.
	DefaultGitHubTimeout = 60 * time.Second

	// downloadConcurrency bounds parallel blob fetches. GitHub's secondary
	// rate limits kick in fast, so this stays conservative.
	downloadConcurrency = 4

	// maxAPIResponseBytes caps how much of a response body is read. A
	// recursive tree for a large repository runs to a few MB.
	maxAPIResponseBytes = 32 << 20
)

var sshRepoRe = regexp.MustCompile(`[:/]([^/]+)/([^/]+?)(?:\.git)?$`)

// GitHubConfig holds connection settings for the GitHub REST API.
type GitHubConfig struct {
	// APIBase overrides the API endpoint, e.g. for GitHub Enterprise.
	APIBase string

	// Token is an optional access token for private repositories and
	// higher rate limits.
	Token string

	// Timeout bounds each API call.
	Timeout time.Duration

	// Limits bounds how much of the repository is admitted.
	Limits Limits
}

// GitHubSource fetches a repository over the GitHub REST API: repository
// metadata for the default branch, the branch head for its tree SHA, the
// recursive tree for the file catalog, then one blob request per file that
// survives filtering.
type GitHubSource struct {
	owner    string
	repo     string
	apiBase  string
	token    string
	timeout  time.Duration
	limits   Limits
	client   *http.Client
	progress func(done, total int)
}

// NewGitHubSource parses a repository reference and prepares a source.
func NewGitHubSource(repoURL string, cfg GitHubConfig) (*GitHubSource, error) {
	owner, repo, err := ParseRepoURL(repoURL)
	if err != nil {
		return nil, err
	}
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultGitHubTimeout
	}
	return &GitHubSource{
		owner:   owner,
		repo:    repo,
		apiBase: strings.TrimRight(cfg.APIBase, "/"),
		token:   cfg.Token,
		timeout: cfg.Timeout,
		limits:  cfg.Limits.orDefaults(),
		client:  &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// SetProgress registers a callback invoked after each blob download
// settles, successfully or not. It runs on download goroutines and must
// return quickly.
func (g *GitHubSource) SetProgress(fn func(done, total int)) {
	g.progress = fn
}

// Owner returns the parsed repository owner.
func (g *GitHubSource) Owner() string { return g.owner }

// Repo returns the parsed repository name.
func (g *GitHubSource) Repo() string { return g.repo }

// ParseRepoURL extracts owner and repository name from a GitHub reference.
//
// Supported forms:
//   - https://github.com/owner/repo
//   - https://github.com/owner/repo.git
//   - git@github.com:owner/repo.git
//   - owner/repo
func ParseRepoURL(raw string) (owner, repo string, err error) {
	raw = strings.TrimSpace(raw)

	// Bare owner/repo shorthand.
	if strings.Contains(raw, "/") && !strings.Contains(raw, "github.com") && !strings.Contains(raw, "@") {
		parts := strings.Split(raw, "/")
		if len(parts) == 2 && parts[0] != "" && parts[1] != "" {
			return parts[0], strings.TrimSuffix(parts[1], ".git"), nil
		}
	}

	// SSH forms.
	if strings.HasPrefix(raw, "git@") || strings.HasPrefix(raw, "ssh://") {
		if m := sshRepoRe.FindStringSubmatch(raw); m != nil {
			return m[1], m[2], nil
		}
	}

	// HTTPS URL.
	if strings.Contains(raw, "github.com") {
		if parsed, perr := url.Parse(raw); perr == nil {
			parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
			if len(parts) >= 2 && parts[0] != "" && parts[1] != "" {
				return parts[0], strings.TrimSuffix(parts[1], ".git"), nil
			}
		}
	}

	return "", "", werrors.New(werrors.ErrCodeInvalidRepoURL,
		fmt.Sprintf("Invalid GitHub repository URL: %s. Expected format: https://github.com/owner/repo or owner/repo", raw), nil)
}

type treeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"`
	Size int    `json:"size"`
	SHA  string `json:"sha"`
	URL  string `json:"url"`
}

// Fetch resolves the branch and tree, filters the catalog on tree metadata,
// then downloads the selected blobs. Individual download failures become
// warnings; the fetch fails only when nothing survives.
func (g *GitHubSource) Fetch(ctx context.Context) (*Corpus, error) {
	tree, err := g.fetchTree(ctx)
	if err != nil {
		return nil, err
	}

	sel := newSelector(g.limits)
	var picked []treeEntry
	for _, item := range tree {
		if item.Type != "blob" {
			continue
		}
		if !sel.consider(item.Path, item.Size) {
			if sel.full {
				break
			}
			continue
		}
		sel.accept(item.Size)
		picked = append(picked, item)
	}

	files := make([]CorpusFile, len(picked))
	var mu sync.Mutex
	var done int
	settled := func() {
		done++
		if g.progress != nil {
			g.progress(done, len(picked))
		}
	}

	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(downloadConcurrency)
	for i, item := range picked {
		grp.Go(func() error {
			content, err := g.downloadBlob(gctx, item)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				mu.Lock()
				if werrors.GetCode(err) == werrors.ErrCodeNoContent {
					// Empty files are common (package markers) and not
					// worth an operator-facing warning.
					sel.skip(item.Path, "empty file")
				} else {
					sel.warn("Failed to download %s: %v", item.Path, err)
				}
				settled()
				mu.Unlock()
				return nil
			}
			files[i] = CorpusFile{
				Path:      item.Path,
				Content:   content,
				Size:      item.Size,
				Extension: fileExtension(item.Path),
			}
			mu.Lock()
			settled()
			mu.Unlock()
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}

	included := files[:0]
	for _, f := range files {
		if f.Path != "" {
			included = append(included, f)
		}
	}
	if len(included) == 0 {
		return nil, werrors.ValidationError("No files could be downloaded from repository", nil)
	}

	return &Corpus{
		Source:     SourceGitHub,
		Owner:      g.owner,
		RepoName:   g.repo,
		RepoID:     fmt.Sprintf("%s_%s_%d", g.owner, g.repo, time.Now().Unix()),
		Included:   included,
		Skipped:    sel.skipped,
		Warnings:   sel.warnings,
		TotalFiles: sel.included,
		TotalChars: sel.chars,
	}, nil
}

// fetchTree resolves the default branch, the branch head, and the recursive
// tree listing.
func (g *GitHubSource) fetchTree(ctx context.Context) ([]treeEntry, error) {
	var repoInfo struct {
		DefaultBranch string `json:"default_branch"`
	}
	if err := g.getJSON(ctx, fmt.Sprintf("%s/repos/%s/%s", g.apiBase, g.owner, g.repo), &repoInfo); err != nil {
		return nil, err
	}
	branch := repoInfo.DefaultBranch
	if branch == "" {
		branch = "main"
	}

	var branchInfo struct {
		Commit struct {
			Commit struct {
				Tree struct {
					SHA string `json:"sha"`
				} `json:"tree"`
			} `json:"commit"`
		} `json:"commit"`
	}
	if err := g.getJSON(ctx, fmt.Sprintf("%s/repos/%s/%s/branches/%s", g.apiBase, g.owner, g.repo, url.PathEscape(branch)), &branchInfo); err != nil {
		return nil, err
	}

	var treeInfo struct {
		Tree []treeEntry `json:"tree"`
	}
	treeURL := fmt.Sprintf("%s/repos/%s/%s/git/trees/%s?recursive=1", g.apiBase, g.owner, g.repo, branchInfo.Commit.Commit.Tree.SHA)
	if err := g.getJSON(ctx, treeURL, &treeInfo); err != nil {
		return nil, err
	}
	return treeInfo.Tree, nil
}

// downloadBlob fetches one blob and decodes its base64 content. Transient
// failures retry once before giving up.
func (g *GitHubSource) downloadBlob(ctx context.Context, item treeEntry) (string, error) {
	cfg := werrors.RetryConfig{
		MaxRetries:   1,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
	}
	return werrors.RetryWithResult(ctx, cfg, func() (string, error) {
		var blob struct {
			Content  string `json:"content"`
			Encoding string `json:"encoding"`
		}
		if err := g.getJSON(ctx, item.URL, &blob); err != nil {
			return "", err
		}

		raw := strings.Map(dropLineBreaks, blob.Content)
		data, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return "", werrors.New(werrors.ErrCodeInvalidResponse,
				fmt.Sprintf("blob %s is not valid base64", item.Path), err)
		}
		return extract.Bytes(item.Path, data)
	})
}

func dropLineBreaks(r rune) rune {
	if r == '\n' || r == '\r' {
		return -1
	}
	return r
}

func (g *GitHubSource) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return werrors.InternalError("building GitHub request", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if g.token != "" {
		req.Header.Set("Authorization", "token "+g.token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return g.classifyTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponseBytes))
	if err != nil {
		return g.classifyTransportError(err)
	}
	if resp.StatusCode != http.StatusOK {
		return g.classifyStatus(resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return werrors.New(werrors.ErrCodeInvalidResponse, "GitHub API returned malformed JSON", err)
	}
	return nil
}

func (g *GitHubSource) classifyTransportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return werrors.TimeoutError(
			fmt.Sprintf("Timeout fetching repository from GitHub (>%ds). The repository may be too large.",
				int(g.timeout.Seconds())), err)
	}
	return werrors.TransientError(fmt.Sprintf("Failed to connect to GitHub API: %v", err), err)
}

func (g *GitHubSource) classifyStatus(status int) error {
	switch {
	case status == http.StatusNotFound:
		return werrors.New(werrors.ErrCodeRepoNotFound,
			fmt.Sprintf("Repository %s/%s not found or is private. Ensure the repository is public or provide a GitHub token.",
				g.owner, g.repo), nil).
			WithSuggestion("set GITHUB_TOKEN to access private repositories")
	case status == http.StatusForbidden, status == http.StatusTooManyRequests:
		return werrors.New(werrors.ErrCodeRateLimited,
			"GitHub API rate limit exceeded. Set GITHUB_TOKEN environment variable to increase limits.", nil)
	case status >= 500:
		return werrors.New(werrors.ErrCodeUpstream5xx,
			fmt.Sprintf("GitHub API returned HTTP %d", status), nil)
	default:
		return werrors.New(werrors.ErrCodeInvalidResponse,
			fmt.Sprintf("Failed to fetch repository: HTTP %d", status), nil)
	}
}
