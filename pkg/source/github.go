package source

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/memora-ai/memora/internal/models"
)

type GitHubConfig struct {
	Owner     string
	Repo      string
	Token     string  // optional, raises the API rate limit
	APIBase   string  // default https://api.github.com
	RateLimit float64 // requests per second
	Timeout   time.Duration
}

// GitHub fetches documentation files from a repository via the contents API.
type GitHub struct {
	config  GitHubConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// repoExtensions adds reStructuredText on top of the common set; it shows up
// in repository docs far more often than in local knowledge bases.
var repoExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
	".txt":      true,
	".rst":      true,
	".html":     true,
	".htm":      true,
}

func NewGitHub(config GitHubConfig, logger *slog.Logger) (*GitHub, error) {
	if config.Owner == "" || config.Repo == "" {
		return nil, fmt.Errorf("github source requires owner and repo")
	}
	if config.APIBase == "" {
		config.APIBase = "https://api.github.com"
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &GitHub{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		logger:  logger,
	}, nil
}

func (g *GitHub) Name() string { return "github" }

// FetchAllDocuments walks the repository tree and loads every supported file.
// Individual file failures are logged and skipped.
func (g *GitHub) FetchAllDocuments(ctx context.Context) ([]models.Document, error) {
	var documents []models.Document
	if err := g.walk(ctx, "", &documents); err != nil {
		return nil, err
	}

	g.logger.Info("loaded github documents",
		"count", len(documents),
		"repo", g.config.Owner+"/"+g.config.Repo,
	)
	return documents, nil
}

// LatestCommit returns the SHA of the newest commit on the default branch.
func (g *GitHub) LatestCommit(ctx context.Context) (string, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/commits?per_page=1",
		g.config.APIBase, g.config.Owner, g.config.Repo)

	var commits []struct {
		SHA string `json:"sha"`
	}
	if err := g.getJSON(ctx, url, &commits); err != nil {
		return "", err
	}
	if len(commits) == 0 {
		return "", fmt.Errorf("repository has no commits")
	}
	return commits[0].SHA, nil
}

// HasUpdates reports whether the repository moved past the given commit SHA.
// An empty SHA always counts as stale.
func (g *GitHub) HasUpdates(ctx context.Context, sinceSHA string) (bool, error) {
	latest, err := g.LatestCommit(ctx)
	if err != nil {
		return false, err
	}
	return latest != sinceSHA, nil
}

type contentEntry struct {
	Type     string `json:"type"` // "file" or "dir"
	Name     string `json:"name"`
	Path     string `json:"path"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

func (g *GitHub) walk(ctx context.Context, dir string, documents *[]models.Document) error {
	url := fmt.Sprintf("%s/repos/%s/%s/contents/%s",
		g.config.APIBase, g.config.Owner, g.config.Repo, dir)

	var entries []contentEntry
	if err := g.getJSON(ctx, url, &entries); err != nil {
		return fmt.Errorf("failed to list %q: %w", dir, err)
	}

	for _, entry := range entries {
		switch entry.Type {
		case "dir":
			if err := g.walk(ctx, entry.Path, documents); err != nil {
				return err
			}
		case "file":
			ext := strings.ToLower(path.Ext(entry.Name))
			if !repoExtensions[ext] {
				continue
			}
			doc, err := g.fetchFile(ctx, entry, ext)
			if err != nil {
				g.logger.Warn("skipping file", "path", entry.Path, "error", err)
				continue
			}
			if doc != nil {
				*documents = append(*documents, *doc)
			}
		}
	}
	return nil
}

func (g *GitHub) fetchFile(ctx context.Context, entry contentEntry, ext string) (*models.Document, error) {
	// Directory listings omit file content, so each file needs its own fetch.
	var file contentEntry
	url := fmt.Sprintf("%s/repos/%s/%s/contents/%s",
		g.config.APIBase, g.config.Owner, g.config.Repo, entry.Path)
	if err := g.getJSON(ctx, url, &file); err != nil {
		return nil, err
	}

	if file.Encoding != "base64" {
		return nil, fmt.Errorf("unexpected encoding %q", file.Encoding)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(file.Content, "\n", ""))
	if err != nil {
		return nil, fmt.Errorf("failed to decode content: %w", err)
	}

	content := convertContent(string(raw), ext)
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	return &models.Document{
		Content:   content,
		Source:    fmt.Sprintf("github:%s/%s:%s", g.config.Owner, g.config.Repo, entry.Path),
		Title:     strings.TrimSuffix(entry.Name, ext),
		Path:      entry.Path,
		Extension: ext,
	}, nil
}

func (g *GitHub) getJSON(ctx context.Context, url string, out any) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "memora-bot/1.0")
	if g.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+g.config.Token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, url)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
