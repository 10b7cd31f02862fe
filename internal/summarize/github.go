package summarize

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"websum/internal/config"
)

type GitHubConfig struct {
	Token         string
	APIURL        string
	DefaultBranch string
	AuthorName    string
	AuthorEmail   string
	Timeout       time.Duration
	UserAgent     string
}

// FileRequest creates (or fails on existing) one file in a repository.
type FileRequest struct {
	Repo        string // owner/repo
	Branch      string
	Path        string
	Content     []byte
	Message     string
	AuthorName  string
	AuthorEmail string
}

type CommitResult struct {
	Path      string
	CommitURL string
}

// GitHubClient commits files through the Contents API.
type GitHubClient struct {
	cfg    GitHubConfig
	client *http.Client
}

func NewGitHubClient(cfg GitHubConfig, client *http.Client) *GitHubClient {
	cfg.APIURL = strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")
	if cfg.APIURL == "" {
		cfg.APIURL = "https://api.github.com"
	}
	if cfg.DefaultBranch == "" {
		cfg.DefaultBranch = "main"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if client == nil {
		client = &http.Client{}
	}
	return &GitHubClient{cfg: cfg, client: client}
}

type committer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type putContentsRequest struct {
	Message   string     `json:"message"`
	Content   string     `json:"content"`
	Branch    string     `json:"branch"`
	Committer *committer `json:"committer,omitempty"`
}

// CommitFile issues PUT /repos/{owner}/{repo}/contents/{path}. A committer is
// sent only when both name and email are known.
func (c *GitHubClient) CommitFile(ctx context.Context, fr FileRequest) (CommitResult, error) {
	owner, repo, err := config.SplitRepo(fr.Repo)
	if err != nil {
		return CommitResult{}, fmt.Errorf("%w: %v", ErrGitHub, err)
	}
	path := strings.Trim(fr.Path, "/")
	if path == "" {
		return CommitResult{}, fmt.Errorf("%w: empty path", ErrGitHub)
	}

	body := putContentsRequest{
		Message: fr.Message,
		Content: base64.StdEncoding.EncodeToString(fr.Content),
		Branch:  firstNonEmpty(fr.Branch, c.cfg.DefaultBranch),
	}
	name := firstNonEmpty(fr.AuthorName, c.cfg.AuthorName)
	email := firstNonEmpty(fr.AuthorEmail, c.cfg.AuthorEmail)
	if name != "" && email != "" {
		body.Committer = &committer{Name: name, Email: email}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return CommitResult{}, fmt.Errorf("%w: %v", ErrGitHub, err)
	}

	endpoint := fmt.Sprintf("%s/repos/%s/%s/contents/%s", c.cfg.APIURL,
		url.PathEscape(owner), url.PathEscape(repo), escapePath(path))

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(payload))
	if err != nil {
		return CommitResult{}, fmt.Errorf("%w: %v", ErrGitHub, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return CommitResult{}, fmt.Errorf("%w: %v", ErrGitHub, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode/100 != 2 {
		var apiErr struct {
			Message string `json:"message"`
		}
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Message != "" {
			msg = apiErr.Message
		}
		return CommitResult{}, fmt.Errorf("%w: http %d: %s", ErrGitHub, resp.StatusCode, truncateText(msg, 300))
	}

	var out struct {
		Content struct {
			Path string `json:"path"`
		} `json:"content"`
		Commit struct {
			HTMLURL string `json:"html_url"`
		} `json:"commit"`
	}
	_ = json.Unmarshal(raw, &out)
	res := CommitResult{Path: path, CommitURL: out.Commit.HTMLURL}
	if out.Content.Path != "" {
		res.Path = out.Content.Path
	}
	return res, nil
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, s := range parts {
		parts[i] = url.PathEscape(s)
	}
	return strings.Join(parts, "/")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func truncateText(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
