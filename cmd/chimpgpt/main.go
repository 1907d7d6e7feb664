package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/f0rky/Chimp-GPT-sub004/internal/adapter"
	"github.com/f0rky/Chimp-GPT-sub004/internal/conversation"
	"github.com/f0rky/Chimp-GPT-sub004/internal/discord"
	"github.com/f0rky/Chimp-GPT-sub004/internal/knowledge"
	"github.com/f0rky/Chimp-GPT-sub004/internal/plugins"
	"github.com/f0rky/Chimp-GPT-sub004/internal/services"
	"github.com/f0rky/Chimp-GPT-sub004/internal/state"
	"github.com/f0rky/Chimp-GPT-sub004/internal/status"
	"github.com/f0rky/Chimp-GPT-sub004/pkg/config"
	"github.com/f0rky/Chimp-GPT-sub004/pkg/logger"
)

const version = "2.0.0"

func main() {
	// Load configuration first; the logger mode depends on it
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	if err := logger.Init(cfg.Env); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting ChimpGPT...",
		zap.String("version", version),
		zap.String("env", cfg.Env),
	)

	if cfg.DiscordBotToken == "" {
		log.Fatal("DISCORD_BOT_TOKEN is required")
	}

	// Runtime counters shared by the pipeline and the status server
	stats := state.New()

	// Knowledge store with debounced persistence
	store := knowledge.NewStore(
		cfg.KnowledgeFilePath,
		time.Duration(cfg.SaveDebounceMs)*time.Millisecond,
		logger.Named("knowledge"),
	)

	// External dependencies: completion endpoint, web search, doc sites
	llmAdapter := adapter.NewLLMAdapter(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.ModelID, logger.Named("llm"))
	searchClient := services.NewSearchClient(nil, logger.Named("search"))
	docsClient := services.NewDocsClient(nil, logger.Named("docs"))

	pipeline := knowledge.NewPipeline(store, knowledge.Deps{
		Search:    searchClient.Search,
		FetchDocs: docsClient.Fetch,
		Complete:  llmAdapter.Complete,
	}, knowledge.PipelineConfig{
		BotName:       cfg.BotName,
		CommandPrefix: cfg.CommandPrefix,
		OwnerUserID:   cfg.OwnerUserID,
	}, stats, logger.Named("pipeline"))

	// Plugins
	registry := plugins.New(logger.Named("plugins"))
	if err := registry.RegisterAll(plugins.NewAuditPlugin(logger.Named("audit"))); err != nil {
		log.Fatal("Failed to register plugins", zap.Error(err))
	}

	// Conversation scoring and context selection tuned from config
	scoringCfg := conversation.DefaultScoringConfig(cfg.BotName, cfg.CommandPrefix)
	scoringCfg.DecayRatePerMinute = cfg.DecayRatePerMinute
	scoringCfg.MemoryWindow = time.Duration(cfg.MemoryWindowMin) * time.Minute
	scoringCfg.DirectedThreshold = cfg.DirectedThreshold
	scorer := conversation.NewScorer(scoringCfg)

	contextOpts := conversation.ContextOptions{
		MaxTokens:    cfg.MaxContextTokens,
		MinRelevance: cfg.MinRelevance,
		AmbientRatio: cfg.AmbientRatio,
	}

	memory := discord.NewChannelMemory(0)
	handler := discord.NewHandler(pipeline, registry, memory, scorer, stats,
		contextOpts, 0, logger.Named("discord"))

	// Create Discord session
	dg, err := discordgo.New("Bot " + cfg.DiscordBotToken)
	if err != nil {
		log.Fatal("Failed to create Discord session", zap.Error(err))
	}
	dg.AddHandler(handler.HandleMessage)

	// Message content is a privileged intent; without it guild messages
	// arrive with empty content and the bot can only answer DMs.
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages | discordgo.IntentMessageContent

	if err := dg.Open(); err != nil {
		log.Fatal("Failed to open Discord connection", zap.Error(err))
	}
	log.Info("Discord connection established", zap.String("bot_name", cfg.BotName))

	// Status server
	statusServer := status.NewServer(status.Config{
		Port:       cfg.Port,
		Production: cfg.IsProduction(),
		BotName:    cfg.BotName,
		Version:    version,
		State:      stats,
		Store:      store,
		Plugins:    registry.Plugins,
		Model:      llmAdapter.GetModel,
	}, logger.Named("status"))
	stop := statusServer.Start()
	log.Info("Status server started", zap.String("port", cfg.Port))

	log.Info("ChimpGPT is running. Press CTRL-C to exit.")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := stop(ctx); err != nil {
		log.Error("Status server forced to shutdown", zap.Error(err))
	}
	if err := dg.Close(); err != nil {
		log.Error("Failed to close Discord session", zap.Error(err))
	}

	// Flush pending knowledge writes last
	store.Shutdown()

	log.Info("ChimpGPT exited")
}
