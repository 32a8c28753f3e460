package config

import (
	"fmt"
	"net/url"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate LLM config
	if c.LLM.BaseURL == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.base_url",
			Message: "Ollama base URL is required",
		})
	} else if _, err := url.Parse(c.LLM.BaseURL); err != nil {
		errors = append(errors, ValidationError{
			Field:   "llm.base_url",
			Message: "invalid Ollama base URL",
		})
	}

	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 4096 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 1 and 4096",
		})
	}

	if t := c.LLM.Temperature; t != nil && (*t < 0 || *t > 2) {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	// Validate Database config
	if c.Database.URL == "" {
		errors = append(errors, ValidationError{
			Field:   "database.url",
			Message: "database URL is required (set database.url or DATABASE_URL)",
		})
	} else if _, err := url.Parse(c.Database.URL); err != nil {
		errors = append(errors, ValidationError{
			Field:   "database.url",
			Message: "invalid database URL",
		})
	}

	// Validate Index config
	if c.Index.TopK < 1 {
		errors = append(errors, ValidationError{
			Field:   "index.top_k",
			Message: "top_k must be positive",
		})
	}

	if c.Index.VectorDim < 1 {
		errors = append(errors, ValidationError{
			Field:   "index.vector_dim",
			Message: "vector_dim must be positive",
		})
	}

	// Validate Chunker config
	if c.Chunker.ChunkSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "chunker.chunk_size",
			Message: "chunk_size must be positive",
		})
	}

	if c.Chunker.ChunkOverlap < 0 || c.Chunker.ChunkOverlap >= c.Chunker.ChunkSize {
		errors = append(errors, ValidationError{
			Field:   "chunker.chunk_overlap",
			Message: "chunk_overlap must be non-negative and less than chunk_size",
		})
	}

	// Validate Chat config
	if c.Chat.MaxSessionsPerUser < 1 {
		errors = append(errors, ValidationError{
			Field:   "chat.max_sessions_per_user",
			Message: "max_sessions_per_user must be positive",
		})
	}

	if c.Chat.MaxMessagesPerSession < 1 {
		errors = append(errors, ValidationError{
			Field:   "chat.max_messages_per_session",
			Message: "max_messages_per_session must be positive",
		})
	}

	// Validate Sources config
	if c.Sources.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "sources.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	if c.Sources.GitHubRepoURL != "" {
		if _, _, err := ParseGitHubRepoURL(c.Sources.GitHubRepoURL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "sources.github_repo_url",
				Message: err.Error(),
			})
		}
	}

	if c.Sources.WikiBaseURL != "" {
		if _, err := url.Parse(c.Sources.WikiBaseURL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "sources.wiki_base_url",
				Message: "invalid wiki base URL",
			})
		}
	}

	return errors
}

// ParseGitHubRepoURL extracts owner and repo from forms like
// "https://github.com/owner/repo" or plain "owner/repo".
func ParseGitHubRepoURL(repoURL string) (owner, repo string, err error) {
	s := strings.TrimSuffix(repoURL, ".git")
	if u, perr := url.Parse(s); perr == nil && u.Host != "" {
		s = strings.Trim(u.Path, "/")
	}

	parts := strings.Split(strings.Trim(s, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("expected owner/repo, got %q", repoURL)
	}
	return parts[0], parts[1], nil
}
