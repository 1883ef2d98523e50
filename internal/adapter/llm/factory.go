package llm

import (
	"go.uber.org/zap"

	"github.com/xiaot623/gogo/roundtable/internal/config"
)

// NewLLMClient creates an LLM client based on the configured mode.
// If ROUNDTABLE_MODE=MOCK, returns a MockClient; otherwise returns a real Client.
func NewLLMClient(cfg *config.Config, logger *zap.Logger) LLMClient {
	if cfg.IsMock() {
		logger.Info("ROUNDTABLE_MODE=MOCK detected, using mock LLM client")
		return NewMockClient()
	}

	return NewClient(Options{
		BaseURL:      cfg.LLMBaseURL,
		APIKey:       cfg.LLMAPIKey,
		DefaultModel: cfg.DefaultModel,
		ImageModel:   cfg.ImageModel,
		Timeout:      cfg.LLMTimeout,
	})
}
