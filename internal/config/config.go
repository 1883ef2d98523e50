// Package config provides configuration for the collaboration service.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/xiaot623/gogo/roundtable/internal/domain"
)

// Config holds the service configuration.
type Config struct {
	// Server settings
	HTTPPort int
	RPCPort  int

	// Database
	DatabaseURL string

	// LLM endpoint
	LLMBaseURL      string
	LLMAPIKey       string
	LLMTimeout      time.Duration
	Mode            string
	DefaultModel    string
	ResearchModel   string
	ExtractionModel string
	ImageModel      string

	// Turn orchestration
	TurnDelay        time.Duration
	HistoryWindow    int
	MaxToolCalls     int
	MaxTurnsPerRun   int
	RepoPreviewChars int
	RepoPreviewMax   int

	// Memory
	MemoryTopK      int
	MemoryScanLimit int
	MemoryCacheTTL  time.Duration
	Embedder        string
	GeminiAPIKey    string
	GeminiModel     string

	// Background work
	ExtractionDelay time.Duration
	TaskWorkers     int
	ProposalTTL     time.Duration

	// Tool proxy
	ToolTimeout    time.Duration
	ToolRatePerSec float64
	ToolRateBurst  int
	PolicyFile     string

	// WebSocket
	WSReadTimeout    time.Duration
	WSWriteTimeout   time.Duration
	WSPingInterval   time.Duration
	WSMaxMessageSize int64

	// Participants
	ParticipantsFile string
	Participants     domain.Roster

	// Logging
	LogLevel string
}

// DefaultRoster is used when no participants file is configured.
var DefaultRoster = domain.Roster{
	{ID: "gpt-4", Name: "GPT-4", Personality: "analytical and thorough", Model: "gpt-4"},
	{ID: "claude-3", Name: "Claude", Personality: "thoughtful and nuanced", Model: "claude-3"},
	{ID: "gemini-pro", Name: "Gemini", Personality: "creative and innovative", Model: "gemini-pro"},
}

// Load loads configuration from a .env file (if present) and environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		HTTPPort:         getEnvInt("HTTP_PORT", 8080),
		RPCPort:          getEnvInt("RPC_PORT", 8082),
		DatabaseURL:      getEnv("DATABASE_URL", "file:roundtable.db?cache=shared&mode=rwc"),
		LLMBaseURL:       getEnv("LLM_BASE_URL", "http://localhost:4000"),
		LLMAPIKey:        getEnv("LLM_API_KEY", ""),
		LLMTimeout:       getEnvMillis("LLM_TIMEOUT_MS", 60000),
		Mode:             getEnv("ROUNDTABLE_MODE", ""),
		DefaultModel:     getEnv("DEFAULT_MODEL", "gpt-4o-mini"),
		ResearchModel:    getEnv("RESEARCH_MODEL", ""),
		ExtractionModel:  getEnv("EXTRACTION_MODEL", ""),
		ImageModel:       getEnv("IMAGE_MODEL", "dall-e-3"),
		TurnDelay:        getEnvMillis("TURN_DELAY_MS", 1000),
		HistoryWindow:    getEnvInt("HISTORY_WINDOW", 10),
		MaxToolCalls:     getEnvInt("MAX_TOOL_CALLS", 3),
		MaxTurnsPerRun:   getEnvInt("MAX_TURNS_PER_RUN", 0),
		RepoPreviewChars: getEnvInt("REPO_PREVIEW_CHARS", 500),
		RepoPreviewMax:   getEnvInt("REPO_PREVIEW_MAX_CHARS", 1000),
		MemoryTopK:       getEnvInt("MEMORY_TOP_K", 3),
		MemoryScanLimit:  getEnvInt("MEMORY_SCAN_LIMIT", 100),
		MemoryCacheTTL:   getEnvMillis("MEMORY_CACHE_TTL_MS", 30000),
		Embedder:         getEnv("EMBEDDER", "hash"),
		GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
		GeminiModel:      getEnv("GEMINI_EMBED_MODEL", "gemini-embedding-001"),
		ExtractionDelay:  getEnvMillis("EXTRACTION_DELAY_MS", 1000),
		TaskWorkers:      getEnvInt("TASK_WORKERS", 2),
		ProposalTTL:      getEnvMillis("PROPOSAL_TTL_MS", 600000),
		ToolTimeout:      getEnvMillis("TOOL_TIMEOUT_MS", 30000),
		ToolRatePerSec:   getEnvFloat("TOOL_RATE_PER_SEC", 5),
		ToolRateBurst:    getEnvInt("TOOL_RATE_BURST", 10),
		PolicyFile:       getEnv("POLICY_FILE", ""),
		WSReadTimeout:    getEnvMillis("WS_READ_TIMEOUT_MS", 60000),
		WSWriteTimeout:   getEnvMillis("WS_WRITE_TIMEOUT_MS", 10000),
		WSPingInterval:   getEnvMillis("WS_PING_INTERVAL_MS", 30000),
		WSMaxMessageSize: int64(getEnvInt("WS_MAX_MESSAGE_SIZE", 65536)),
		ParticipantsFile: getEnv("PARTICIPANTS_FILE", ""),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
	}

	cfg.Participants = DefaultRoster
	if cfg.ParticipantsFile != "" {
		roster, err := LoadRoster(cfg.ParticipantsFile)
		if err != nil {
			return nil, err
		}
		cfg.Participants = roster
	}
	return cfg, nil
}

// IsMock reports whether the mock LLM should be used.
func (c *Config) IsMock() bool {
	return strings.EqualFold(c.Mode, "MOCK")
}

type rosterFile struct {
	Participants []domain.Participant `yaml:"participants"`
}

// LoadRoster reads a participants YAML file.
func LoadRoster(path string) (domain.Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read participants file: %w", err)
	}
	return ParseRoster(data)
}

// ParseRoster decodes a participants YAML document and validates it.
func ParseRoster(data []byte) (domain.Roster, error) {
	var rf rosterFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("failed to parse participants file: %w", err)
	}
	if len(rf.Participants) == 0 {
		return nil, fmt.Errorf("participants file lists no participants")
	}
	seen := make(map[string]bool, len(rf.Participants))
	for i, p := range rf.Participants {
		if p.ID == "" || p.Name == "" {
			return nil, fmt.Errorf("participant %d: id and name are required", i)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("participant %q listed twice", p.ID)
		}
		seen[p.ID] = true
		if rf.Participants[i].Model == "" {
			rf.Participants[i].Model = p.ID
		}
	}
	return domain.Roster(rf.Participants), nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvMillis(key string, defaultMs int) time.Duration {
	return time.Duration(getEnvInt(key, defaultMs)) * time.Millisecond
}
