package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// App
	Port string
	Env  string

	// Discord
	DiscordBotToken string
	OwnerUserID     string
	BotName         string
	CommandPrefix   string

	// AI
	OpenAIBaseURL string
	OpenAIAPIKey  string
	ModelID       string

	// Knowledge store
	KnowledgeFilePath string
	SaveDebounceMs    int

	// Conversation scoring
	DecayRatePerMinute float64
	MemoryWindowMin    int
	DirectedThreshold  float64

	// Context building
	MaxContextTokens int
	MinRelevance     float64
	AmbientRatio     float64
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		DiscordBotToken:    getEnv("DISCORD_BOT_TOKEN", ""),
		OwnerUserID:        getEnv("OWNER_USER_ID", ""),
		BotName:            getEnv("BOT_NAME", "chimp"),
		CommandPrefix:      getEnv("COMMAND_PREFIX", "!"),
		OpenAIBaseURL:      getEnv("OPENAI_BASE_URL", "https://api.openai.com"),
		OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),
		ModelID:            getEnv("MODEL_ID", "gpt-4o-mini"),
		KnowledgeFilePath:  getEnv("KNOWLEDGE_FILE_PATH", "data/knowledge.json"),
		SaveDebounceMs:     getEnvInt("SAVE_DEBOUNCE_MS", 2000),
		DecayRatePerMinute: getEnvFloat("DECAY_RATE_PER_MINUTE", 0.08),
		MemoryWindowMin:    getEnvInt("MEMORY_WINDOW_MIN", 30),
		DirectedThreshold:  getEnvFloat("DIRECTED_THRESHOLD", 0.4),
		MaxContextTokens:   getEnvInt("MAX_CONTEXT_TOKENS", 1000),
		MinRelevance:       getEnvFloat("MIN_RELEVANCE", 0.1),
		AmbientRatio:       getEnvFloat("AMBIENT_RATIO", 0.3),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.BotName == "" {
		return fmt.Errorf("BOT_NAME is required")
	}
	if c.ModelID == "" {
		return fmt.Errorf("MODEL_ID is required")
	}
	if c.KnowledgeFilePath == "" {
		return fmt.Errorf("KNOWLEDGE_FILE_PATH is required")
	}
	if c.DecayRatePerMinute <= 0 {
		return fmt.Errorf("DECAY_RATE_PER_MINUTE must be positive")
	}
	if c.MemoryWindowMin <= 0 {
		return fmt.Errorf("MEMORY_WINDOW_MIN must be positive")
	}
	if c.AmbientRatio < 0 || c.AmbientRatio > 1 {
		return fmt.Errorf("AMBIENT_RATIO must be in [0,1]")
	}
	// API keys and Discord token are optional for development
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var result float64
		if _, err := fmt.Sscanf(value, "%f", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}
