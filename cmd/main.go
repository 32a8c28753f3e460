package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/schollz/progressbar/v3"

	"github.com/memora-ai/memora/db"
	ilog "github.com/memora-ai/memora/internal/log"
	"github.com/memora-ai/memora/internal/models"
	"github.com/memora-ai/memora/internal/types"
	"github.com/memora-ai/memora/pkg/assistant"
	"github.com/memora-ai/memora/pkg/chunker"
	"github.com/memora-ai/memora/pkg/config"
	"github.com/memora-ai/memora/pkg/index"
	"github.com/memora-ai/memora/pkg/llm"
	"github.com/memora-ai/memora/pkg/session"
	"github.com/memora-ai/memora/pkg/source"
	"github.com/memora-ai/memora/server"
)

type flags struct {
	configPath string
	ingest     bool
	sourceName string
	reset      bool
	serve      bool
	addr       string
	dbURL      string
	ollamaURL  string
	model      string
	verbose    bool
}

func main() {
	f := parseFlags()

	if err := run(f); err != nil {
		log.Fatal(err)
	}
}

func parseFlags() flags {
	var f flags
	flag.StringVar(&f.configPath, "config", "", "Path to config file")
	flag.BoolVar(&f.ingest, "ingest", false, "Fetch documents, rebuild the index, then exit")
	flag.StringVar(&f.sourceName, "source", "all", "Source to ingest: all, local, github, wiki")
	flag.BoolVar(&f.reset, "reset", false, "Clear the index, then exit")
	flag.BoolVar(&f.serve, "serve", false, "Run the websocket server instead of the chat loop")
	flag.StringVar(&f.addr, "addr", "", "Server listen address (overrides config)")
	flag.StringVar(&f.dbURL, "db-url", "", "PostgreSQL connection string (overrides config)")
	flag.StringVar(&f.ollamaURL, "ollama-url", "", "Ollama server URL (overrides config)")
	flag.StringVar(&f.model, "model", "", "Generation model (overrides config)")
	flag.BoolVar(&f.verbose, "verbose", false, "Enable debug logging")
	flag.Parse()
	return f
}

func run(f flags) error {
	cfg, err := config.LoadConfig(f.configPath)
	if err != nil {
		return err
	}
	if f.dbURL != "" {
		cfg.Database.URL = f.dbURL
	}
	if f.ollamaURL != "" {
		cfg.LLM.BaseURL = f.ollamaURL
	}
	if f.model != "" {
		cfg.LLM.Model = f.model
	}
	if f.addr != "" {
		cfg.Server.Addr = f.addr
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			color.Red("config: %v", e)
		}
		return fmt.Errorf("invalid configuration (%d errors)", len(errs))
	}

	level := slog.LevelInfo
	if f.verbose {
		level = slog.LevelDebug
	}
	logger := ilog.New(ilog.Config{Level: level})

	if err := db.Migrate(cfg.Database.URL, logger); err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %v", err)
	}
	defer pool.Close()

	embedder, err := llm.NewEmbedder(llm.EmbedderConfig{
		Model:   cfg.LLM.EmbeddingModel,
		BaseURL: cfg.LLM.BaseURL,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %v", err)
	}

	idx := index.New(pool, embedder, index.Config{TopK: cfg.Index.TopK}, logger)

	if f.reset {
		if err := idx.Clear(ctx); err != nil {
			return err
		}
		color.Green("✓ Index cleared")
		return nil
	}

	if f.ingest {
		return ingest(ctx, cfg, f.sourceName, idx, logger)
	}

	gen, err := llm.NewGenerator(llm.GeneratorConfig{
		Model:       cfg.LLM.Model,
		BaseURL:     cfg.LLM.BaseURL,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize generator: %v", err)
	}

	asst := assistant.New(idx, gen, logger)
	sessions := session.New(pool, session.Config{
		MaxSessionsPerUser:    cfg.Chat.MaxSessionsPerUser,
		MaxMessagesPerSession: cfg.Chat.MaxMessagesPerSession,
	}, logger)

	if f.serve {
		srv := server.New(server.Config{Addr: cfg.Server.Addr}, asst, sessions, logger)
		return srv.ListenAndServe()
	}

	return chatLoop(ctx, asst, sessions)
}

func buildSources(cfg *config.Config, name string, logger *slog.Logger) ([]types.Source, error) {
	var sources []types.Source

	if name == "all" || name == "local" {
		local, err := source.NewLocal(source.LocalConfig{DataDir: cfg.Sources.DataDir}, logger)
		if err != nil {
			if name == "local" {
				return nil, err
			}
			logger.Warn("skipping local source", "error", err)
		} else {
			sources = append(sources, local)
		}
	}

	if (name == "all" || name == "github") && cfg.Sources.GitHubRepoURL != "" {
		owner, repo, err := config.ParseGitHubRepoURL(cfg.Sources.GitHubRepoURL)
		if err != nil {
			return nil, err
		}
		gh, err := source.NewGitHub(source.GitHubConfig{
			Owner:     owner,
			Repo:      repo,
			Token:     cfg.Sources.GitHubToken,
			RateLimit: cfg.Sources.RateLimit,
		}, logger)
		if err != nil {
			return nil, err
		}
		sources = append(sources, gh)
	} else if name == "github" {
		return nil, fmt.Errorf("github source requires sources.github_repo_url")
	}

	if (name == "all" || name == "wiki") && cfg.Sources.WikiBaseURL != "" {
		wiki, err := source.NewWiki(source.WikiConfig{
			BaseURL:   cfg.Sources.WikiBaseURL,
			APIKey:    cfg.Sources.WikiAPIKey,
			RateLimit: cfg.Sources.RateLimit,
		}, logger)
		if err != nil {
			return nil, err
		}
		sources = append(sources, wiki)
	} else if name == "wiki" {
		return nil, fmt.Errorf("wiki source requires sources.wiki_base_url")
	}

	if len(sources) == 0 {
		return nil, fmt.Errorf("no sources configured for %q", name)
	}
	return sources, nil
}

// ingest rebuilds the index from scratch: fetch everything, chunk it, clear
// the old records, then store the new ones in batches.
func ingest(ctx context.Context, cfg *config.Config, sourceName string, idx *index.Index, logger *slog.Logger) error {
	sources, err := buildSources(cfg, sourceName, logger)
	if err != nil {
		return err
	}

	ck := chunker.NewWithConfig(chunker.Config{
		ChunkSize:    cfg.Chunker.ChunkSize,
		ChunkOverlap: cfg.Chunker.ChunkOverlap,
	})

	var documents []models.Document
	for _, src := range sources {
		spinner := getSpinner(fmt.Sprintf("📄 Fetching %s documents...", src.Name()))
		docs, err := src.FetchAllDocuments(ctx)
		spinner.Finish()
		fmt.Print("\r")
		if err != nil {
			return fmt.Errorf("failed to fetch from %s: %v", src.Name(), err)
		}
		color.Green("✓ Fetched %d documents from %s", len(docs), src.Name())
		documents = append(documents, docs...)
	}

	chunks := ck.ChunkDocuments(documents)
	color.Green("✓ Split into %d chunks", len(chunks))

	if err := idx.Clear(ctx); err != nil {
		return err
	}

	bar := getProgressBar(len(chunks), "💾 Storing in vector index...")
	startTime := time.Now()
	const batchSize = 100
	for i := 0; i < len(chunks); i += batchSize {
		end := i + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		if err := idx.Add(ctx, chunks[i:end]); err != nil {
			return fmt.Errorf("failed to store batch: %v", err)
		}
		bar.Add(end - i)

		elapsed := time.Since(startTime).Seconds()
		rate := float64(end) / elapsed
		bar.Describe(color.BlueString(
			"💾 Storing in vector index... (%.1f chunks/sec)", rate))
	}
	color.Green("\n✓ Ingestion complete: %d documents, %d chunks", len(documents), len(chunks))

	logger.Info("ingestion finished",
		"documents", len(documents),
		"chunks", len(chunks),
		"source", sourceName,
	)
	return nil
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("items"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// chatLoop runs the interactive terminal client. Besides questions it accepts
// a few slash commands for session management and feedback.
func chatLoop(ctx context.Context, asst *assistant.Assistant, sessions *session.Store) error {
	sess, err := sessions.ActiveSession(ctx, session.DefaultUserID)
	if errors.Is(err, session.ErrSessionNotFound) {
		if _, err = sessions.CreateSession(ctx, "", session.DefaultUserID); err != nil {
			return err
		}
		sess, err = sessions.ActiveSession(ctx, session.DefaultUserID)
	}
	if err != nil {
		return err
	}

	color.Cyan("\nChat with your knowledge base (type 'exit' to quit)")
	color.Cyan("Commands: /new [title], /sessions, /switch <id>, /history, /good, /bad")

	scanner := bufio.NewScanner(os.Stdin)
	userPrompt := color.New(color.FgGreen).PrintfFunc()
	assistantPrompt := color.New(color.FgCyan).PrintfFunc()

	var lastAnswer string

	for {
		userPrompt("\nYou: ")
		if !scanner.Scan() {
			break
		}

		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}
		if strings.ToLower(query) == "exit" {
			break
		}

		if strings.HasPrefix(query, "/") {
			sess, lastAnswer = handleCommand(ctx, sessions, sess, query, lastAnswer)
			continue
		}

		if err := sessions.AddMessage(ctx, sess.ID, models.RoleUser, query, nil, ""); err != nil {
			color.Red("Error saving message: %v", err)
		}

		spinner := getSpinner("🔍 Searching knowledge base...")
		answer, sources := asst.Answer(ctx, query)
		spinner.Finish()
		fmt.Print("\r")

		assistantPrompt("Assistant: %s\n", answer)
		for _, src := range sources {
			fmt.Printf("  [%d] %s (similarity %.2f)\n", src.Rank, src.Source, src.Similarity)
		}

		if err := sessions.AddMessage(ctx, sess.ID, models.RoleAssistant, answer, sources, ""); err != nil {
			color.Red("Error saving message: %v", err)
		}
		lastAnswer = answer
	}

	return scanner.Err()
}

func handleCommand(ctx context.Context, sessions *session.Store, sess *models.Session, cmd, lastAnswer string) (*models.Session, string) {
	parts := strings.SplitN(cmd, " ", 2)
	arg := ""
	if len(parts) > 1 {
		arg = strings.TrimSpace(parts[1])
	}

	switch parts[0] {
	case "/new":
		id, err := sessions.CreateSession(ctx, arg, session.DefaultUserID)
		if err != nil {
			color.Red("Error: %v", err)
			return sess, lastAnswer
		}
		color.Green("✓ Started session %s", id)
		newSess, err := sessions.ActiveSession(ctx, session.DefaultUserID)
		if err != nil {
			color.Red("Error: %v", err)
			return sess, lastAnswer
		}
		return newSess, ""

	case "/sessions":
		list, err := sessions.Sessions(ctx, session.DefaultUserID)
		if err != nil {
			color.Red("Error: %v", err)
			return sess, lastAnswer
		}
		for _, s := range list {
			marker := " "
			if s.IsActive {
				marker = "*"
			}
			fmt.Printf("%s %s  %s (%d messages)\n", marker, s.ID, s.Title, s.MessageCount)
		}
		return sess, lastAnswer

	case "/switch":
		id, err := uuid.Parse(arg)
		if err != nil {
			color.Red("Invalid session id")
			return sess, lastAnswer
		}
		if err := sessions.SwitchSession(ctx, id, session.DefaultUserID); err != nil {
			color.Red("Error: %v", err)
			return sess, lastAnswer
		}
		newSess, err := sessions.ActiveSession(ctx, session.DefaultUserID)
		if err != nil {
			color.Red("Error: %v", err)
			return sess, lastAnswer
		}
		color.Green("✓ Switched to %s", newSess.Title)
		return newSess, ""

	case "/history":
		messages, err := sessions.Messages(ctx, sess.ID)
		if err != nil {
			color.Red("Error: %v", err)
			return sess, lastAnswer
		}
		for _, msg := range messages {
			fmt.Printf("[%s] %s\n", msg.Role, msg.Content)
		}
		return sess, lastAnswer

	case "/good", "/bad":
		if lastAnswer == "" {
			color.Red("No answer to rate yet")
			return sess, lastAnswer
		}
		feedback := models.FeedbackPositive
		if parts[0] == "/bad" {
			feedback = models.FeedbackNegative
		}
		if err := sessions.UpdateMessageFeedback(ctx, sess.ID, lastAnswer, feedback); err != nil {
			color.Red("Error: %v", err)
			return sess, lastAnswer
		}
		color.Green("✓ Feedback recorded")
		return sess, lastAnswer

	default:
		color.Red("Unknown command %s", parts[0])
		return sess, lastAnswer
	}
}
