// Package service is the application facade shared by every transport.
package service

import (
	"go.uber.org/zap"

	"github.com/xiaot623/gogo/roundtable/internal/adapter/llm"
	"github.com/xiaot623/gogo/roundtable/internal/config"
	"github.com/xiaot623/gogo/roundtable/internal/domain"
	"github.com/xiaot623/gogo/roundtable/internal/memory"
	"github.com/xiaot623/gogo/roundtable/internal/orchestrator"
	store "github.com/xiaot623/gogo/roundtable/internal/repository"
)

type Service struct {
	store        store.Store
	llmClient    llm.LLMClient
	memory       *memory.Manager
	orchestrator *orchestrator.Orchestrator
	tools        *orchestrator.ToolRunner
	publisher    orchestrator.Publisher
	config       *config.Config
	logger       *zap.Logger
}

func New(store store.Store, llmClient llm.LLMClient, mem *memory.Manager, orch *orchestrator.Orchestrator,
	tools *orchestrator.ToolRunner, publisher orchestrator.Publisher, cfg *config.Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:        store,
		llmClient:    llmClient,
		memory:       mem,
		orchestrator: orch,
		tools:        tools,
		publisher:    publisher,
		config:       cfg,
		logger:       logger,
	}
}

// Roster returns the configured participants.
func (s *Service) Roster() domain.Roster {
	return s.orchestrator.Roster()
}

func (s *Service) publish(eventType domain.EventType, conversationID string, data interface{}) {
	if s.publisher != nil {
		s.publisher.Publish(domain.NewEvent(eventType, conversationID, data))
	}
}

func (s *Service) requireParticipant(id string) error {
	if _, ok := s.Roster().Get(id); !ok {
		return domain.NewValidationError("unknown participant %q", id)
	}
	return nil
}
