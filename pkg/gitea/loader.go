// Package gitea loads repository artifacts either from a local crawl
// backup file or from a Gitea mirror's REST API. It implements the data
// provider consumed by the indexing orchestrator.
package gitea

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/repolens-ai/repolens/engine/domain"
)

// MaxFileSize is the largest source file fetched from the API, in bytes.
const MaxFileSize = 50_000

// codeExtensions and docExtensions filter the mirrored tree down to
// indexable files.
var codeExtensions = map[string]bool{
	".py": true, ".js": true, ".ts": true, ".go": true, ".rs": true,
	".java": true, ".jsx": true, ".tsx": true, ".vue": true, ".rb": true,
	".php": true, ".c": true, ".cpp": true, ".h": true,
}

var docExtensions = map[string]bool{
	".md": true, ".txt": true, ".rst": true, ".yaml": true, ".yml": true,
	".toml": true, ".json": true, ".cfg": true,
}

var skipDirs = map[string]bool{
	"node_modules": true, ".git": true, "__pycache__": true, "venv": true,
	".venv": true, "dist": true, "build": true, ".tox": true, ".eggs": true,
	"_crawled_data": true, ".github": true,
}

// Backup is the crawl backup file layout.
type Backup struct {
	SourceFiles  []domain.SourceFile  `json:"source_files"`
	Issues       []domain.Issue       `json:"issues"`
	PullRequests []domain.PullRequest `json:"pull_requests"`
	Commits      []domain.Commit      `json:"commits"`
}

// Loader serves artifacts from a backup when one is present, otherwise
// from the Gitea API.
type Loader struct {
	backup  *Backup
	client  *http.Client
	limiter *rate.Limiter
	apiURL  string
	token   string
	org     string
	repo    string
	logger  *slog.Logger
}

// Config holds the Gitea connection settings.
type Config struct {
	BaseURL    string
	Token      string
	Org        string
	Repo       string
	BackupPath string // optional; preferred over the API when readable
}

// New creates a Loader. When cfg.BackupPath points at a readable crawl
// backup the API is never touched.
func New(cfg Config, logger *slog.Logger) (*Loader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loader{
		client: &http.Client{Transport: otelhttp.NewTransport(nil)},
		// Keep the crawl polite toward the mirror.
		limiter: rate.NewLimiter(rate.Every(100*time.Millisecond), 5),
		apiURL:  strings.TrimRight(cfg.BaseURL, "/") + "/api/v1",
		token:   cfg.Token,
		org:     cfg.Org,
		repo:    cfg.Repo,
		logger:  logger,
	}

	if cfg.BackupPath != "" {
		data, err := os.ReadFile(cfg.BackupPath)
		if err != nil {
			return nil, fmt.Errorf("gitea: read backup %s: %w", cfg.BackupPath, err)
		}
		var backup Backup
		if err := json.Unmarshal(data, &backup); err != nil {
			return nil, fmt.Errorf("gitea: decode backup %s: %w", cfg.BackupPath, err)
		}
		l.backup = &backup
		logger.Info("gitea: using local backup", "path", cfg.BackupPath)
	} else {
		logger.Info("gitea: using API", "url", cfg.BaseURL, "repo", cfg.Org+"/"+cfg.Repo)
	}
	return l, nil
}

// SourceFiles returns the indexable files of the repository tree.
func (l *Loader) SourceFiles(ctx context.Context) ([]domain.SourceFile, error) {
	if l.backup != nil {
		var files []domain.SourceFile
		for _, f := range l.backup.SourceFiles {
			f.Language = languageOf(f.Path)
			files = append(files, f)
		}
		return files, nil
	}

	entries, err := l.listRecursive(ctx, "")
	if err != nil {
		return nil, err
	}

	var files []domain.SourceFile
	for _, e := range entries {
		ext := strings.ToLower(path.Ext(e.Path))
		if !codeExtensions[ext] && !docExtensions[ext] {
			continue
		}
		if e.Size > MaxFileSize {
			continue
		}
		content, err := l.fileContent(ctx, e.Path)
		if err != nil {
			l.logger.Warn("gitea: unreadable file, skipping", "path", e.Path, "error", err)
			continue
		}
		files = append(files, domain.SourceFile{
			Path:     e.Path,
			Content:  content,
			Language: languageOf(e.Path),
		})
	}
	return files, nil
}

// Issues returns the crawled issue threads.
func (l *Loader) Issues(ctx context.Context) ([]domain.Issue, error) {
	if l.backup != nil {
		return l.backup.Issues, nil
	}
	var issues []domain.Issue
	if err := l.crawledArtifact(ctx, "issues.json", &issues); err != nil {
		return nil, err
	}
	return issues, nil
}

// PullRequests returns the crawled pull-request threads.
func (l *Loader) PullRequests(ctx context.Context) ([]domain.PullRequest, error) {
	if l.backup != nil {
		return l.backup.PullRequests, nil
	}
	var prs []domain.PullRequest
	if err := l.crawledArtifact(ctx, "pull_requests.json", &prs); err != nil {
		return nil, err
	}
	return prs, nil
}

// Commits returns the crawled commits.
func (l *Loader) Commits(ctx context.Context) ([]domain.Commit, error) {
	if l.backup != nil {
		return l.backup.Commits, nil
	}
	var commits []domain.Commit
	if err := l.crawledArtifact(ctx, "commits.json", &commits); err != nil {
		return nil, err
	}
	return commits, nil
}

// crawledArtifact fetches one of the crawler-exported JSON files the
// mirror stores under _crawled_data/.
func (l *Loader) crawledArtifact(ctx context.Context, name string, out any) error {
	content, err := l.fileContent(ctx, "_crawled_data/"+name)
	if err != nil {
		return fmt.Errorf("gitea: fetch %s: %w", name, err)
	}
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("gitea: decode %s: %w", name, err)
	}
	return nil
}

type treeEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

func (l *Loader) listRecursive(ctx context.Context, dir string) ([]treeEntry, error) {
	var entries []treeEntry
	if err := l.get(ctx, l.contentsURL(dir), &entries); err != nil {
		return nil, err
	}

	var files []treeEntry
	for _, e := range entries {
		switch e.Type {
		case "file":
			files = append(files, e)
		case "dir":
			if skipDirs[e.Name] {
				continue
			}
			sub, err := l.listRecursive(ctx, e.Path)
			if err != nil {
				l.logger.Warn("gitea: unreadable directory, skipping", "path", e.Path, "error", err)
				continue
			}
			files = append(files, sub...)
		}
	}
	return files, nil
}

type contentsResponse struct {
	Content string `json:"content"`
}

func (l *Loader) fileContent(ctx context.Context, filePath string) (string, error) {
	var resp contentsResponse
	if err := l.get(ctx, l.contentsURL(filePath), &resp); err != nil {
		return "", err
	}
	decoded, err := base64.StdEncoding.DecodeString(resp.Content)
	if err != nil {
		return "", fmt.Errorf("gitea: decode content of %s: %w", filePath, err)
	}
	return string(decoded), nil
}

func (l *Loader) contentsURL(p string) string {
	u := fmt.Sprintf("%s/repos/%s/%s/contents", l.apiURL, url.PathEscape(l.org), url.PathEscape(l.repo))
	if p != "" {
		u += "/" + p
	}
	return u
}

func (l *Loader) get(ctx context.Context, rawURL string, out any) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	if l.token != "" {
		req.Header.Set("Authorization", "token "+l.token)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("gitea: get %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gitea: get %s: status %d", rawURL, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// languageOf derives the language tag from a file extension.
func languageOf(p string) string {
	ext := path.Ext(p)
	if ext == "" {
		return "unknown"
	}
	return strings.TrimPrefix(strings.ToLower(ext), ".")
}
