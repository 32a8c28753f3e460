package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/memora-ai/memora/internal/models"
)

type WikiConfig struct {
	BaseURL   string
	APIKey    string  // optional Bearer token
	RateLimit float64 // requests per second
	Timeout   time.Duration
}

// Wiki fetches every page from a Wiki.js instance over its GraphQL API.
type Wiki struct {
	config  WikiConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewWiki(config WikiConfig, logger *slog.Logger) (*Wiki, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("wiki source requires a base URL")
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.RateLimit == 0 {
		config.RateLimit = 2
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Wiki{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		logger:  logger,
	}, nil
}

func (w *Wiki) Name() string { return "wiki" }

// TestConnection probes the instance before a crawl. It prefers the health
// endpoint and falls back to the root page for instances that do not expose
// one.
func (w *Wiki) TestConnection(ctx context.Context) error {
	for _, path := range []string{"/healthz", "/"} {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.config.BaseURL+path, nil)
		if err != nil {
			return err
		}
		resp, err := w.client.Do(req)
		if err != nil {
			continue
		}
		resp.Body.Close()
		if resp.StatusCode < 500 {
			return nil
		}
	}
	return fmt.Errorf("wiki at %s is unreachable", w.config.BaseURL)
}

type wikiPage struct {
	ID      int    `json:"id"`
	Path    string `json:"path"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

const pagesQuery = `{
  pages {
    list(orderBy: TITLE) {
      id
      path
      title
    }
  }
}`

// singlePageQuery fetches one page with its content; the list query omits
// page bodies.
const singlePageQuery = `query ($id: Int!) {
  pages {
    single(id: $id) {
      id
      path
      title
      content
    }
  }
}`

// FetchAllDocuments lists every wiki page and fetches each one's content.
// Pages that fail to load or come back empty are logged and skipped.
func (w *Wiki) FetchAllDocuments(ctx context.Context) ([]models.Document, error) {
	var listResp struct {
		Data struct {
			Pages struct {
				List []wikiPage `json:"list"`
			} `json:"pages"`
		} `json:"data"`
	}
	if err := w.graphql(ctx, pagesQuery, nil, &listResp); err != nil {
		return nil, fmt.Errorf("failed to list wiki pages: %w", err)
	}

	var documents []models.Document
	for _, page := range listResp.Data.Pages.List {
		doc, err := w.fetchPage(ctx, page.ID)
		if err != nil {
			w.logger.Warn("skipping wiki page", "path", page.Path, "error", err)
			continue
		}
		if doc != nil {
			documents = append(documents, *doc)
		}
	}

	w.logger.Info("loaded wiki documents", "count", len(documents), "base_url", w.config.BaseURL)
	return documents, nil
}

func (w *Wiki) fetchPage(ctx context.Context, id int) (*models.Document, error) {
	var resp struct {
		Data struct {
			Pages struct {
				Single wikiPage `json:"single"`
			} `json:"pages"`
		} `json:"data"`
	}
	if err := w.graphql(ctx, singlePageQuery, map[string]any{"id": id}, &resp); err != nil {
		return nil, err
	}

	page := resp.Data.Pages.Single
	content := stripMarkdown(page.Content)
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	return &models.Document{
		Content:   content,
		Source:    "wiki:" + page.Path,
		Title:     page.Title,
		Path:      page.Path,
		Extension: ".md",
	}, nil
}

func (w *Wiki) graphql(ctx context.Context, query string, variables map[string]any, out any) error {
	if err := w.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(map[string]any{
		"query":     query,
		"variables": variables,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.config.BaseURL+"/graphql", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "memora-bot/1.0")
	if w.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+w.config.APIKey)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, req.URL)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
