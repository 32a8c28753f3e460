package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LLM struct {
		BaseURL        string `yaml:"base_url"`
		Model          string `yaml:"model"`
		EmbeddingModel string `yaml:"embedding_model"`
		MaxTokens      int    `yaml:"max_tokens"`
		// Pointer so an explicit temperature of 0 survives defaulting.
		Temperature *float64 `yaml:"temperature"`
	} `yaml:"llm"`

	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`

	Index struct {
		TopK      int `yaml:"top_k"`
		VectorDim int `yaml:"vector_dim"`
	} `yaml:"index"`

	Chunker struct {
		ChunkSize    int `yaml:"chunk_size"`
		ChunkOverlap int `yaml:"chunk_overlap"`
	} `yaml:"chunker"`

	Chat struct {
		MaxSessionsPerUser    int `yaml:"max_sessions_per_user"`
		MaxMessagesPerSession int `yaml:"max_messages_per_session"`
	} `yaml:"chat"`

	Sources struct {
		DataDir       string  `yaml:"data_dir"`
		GitHubRepoURL string  `yaml:"github_repo_url"`
		GitHubToken   string  `yaml:"github_token"`
		WikiBaseURL   string  `yaml:"wiki_base_url"`
		WikiAPIKey    string  `yaml:"wiki_api_key"`
		RateLimit     float64 `yaml:"rate_limit"`
	} `yaml:"sources"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/memora/config.yaml"),
			"/etc/memora/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %v", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %v", err)
	}

	// Merge with environment variables
	mergeWithEnv(&config)

	// Apply defaults for unset values
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.LLM.Model == "" {
		config.LLM.Model = "mistral"
	}
	if config.LLM.EmbeddingModel == "" {
		config.LLM.EmbeddingModel = "nomic-embed-text:latest"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 2000
	}
	if config.LLM.Temperature == nil {
		temperature := 0.7
		config.LLM.Temperature = &temperature
	}
	if config.LLM.BaseURL == "" {
		config.LLM.BaseURL = "http://localhost:11434"
	}

	if config.Index.TopK == 0 {
		config.Index.TopK = 5
	}
	if config.Index.VectorDim == 0 {
		config.Index.VectorDim = 768
	}

	if config.Chunker.ChunkSize == 0 {
		config.Chunker.ChunkSize = 1000
	}
	if config.Chunker.ChunkOverlap == 0 {
		config.Chunker.ChunkOverlap = 200
	}

	if config.Chat.MaxSessionsPerUser == 0 {
		config.Chat.MaxSessionsPerUser = 10
	}
	if config.Chat.MaxMessagesPerSession == 0 {
		config.Chat.MaxMessagesPerSession = 50
	}

	if config.Sources.DataDir == "" {
		config.Sources.DataDir = "data"
	}
	if config.Sources.RateLimit == 0 {
		config.Sources.RateLimit = 2.0
	}

	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}
}

func mergeWithEnv(config *Config) {
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		config.Sources.GitHubToken = token
	}
	if key := os.Getenv("WIKI_API_KEY"); key != "" {
		config.Sources.WikiAPIKey = key
	}
}
