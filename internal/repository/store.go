// Package store defines the storage interface and its SQLite implementation.
package store

import (
	"context"
	"time"

	"github.com/xiaot623/gogo/roundtable/internal/domain"
)

// ConversationFilter narrows ListConversations.
type ConversationFilter struct {
	IncludeArchived bool
	FolderID        string
}

// Store defines the interface for data persistence.
type Store interface {
	// Conversation operations
	CreateConversation(ctx context.Context, conv *domain.Conversation) error
	GetConversation(ctx context.Context, id string) (*domain.Conversation, error)
	ListConversations(ctx context.Context, filter ConversationFilter) ([]domain.Conversation, error)
	UpdateConversation(ctx context.Context, conv *domain.Conversation) error
	UpdateConversationRoles(ctx context.Context, id string, roles map[string]string) error
	UpdateLoopState(ctx context.Context, id string, state domain.LoopState) error
	TouchConversation(ctx context.Context, id string, at time.Time) error

	// Message operations
	CreateMessage(ctx context.Context, msg *domain.Message) error
	GetMessage(ctx context.Context, id string) (*domain.Message, error)
	ListMessages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error)
	CountMessages(ctx context.Context, conversationID string, role domain.MessageRole) (int, error)

	// Analytics operations
	UsageByParticipant(ctx context.Context) ([]domain.ParticipantUsage, error)
	CountTotals(ctx context.Context) (conversations, messages, ai int, err error)
	ActivitySince(ctx context.Context, since time.Time) (messages, conversations []time.Time, err error)

	// File operations
	CreateFile(ctx context.Context, file *domain.ChatFile) error
	ListFiles(ctx context.Context, conversationID string) ([]domain.ChatFile, error)
	ListMessageFiles(ctx context.Context, messageID string) ([]domain.ChatFile, error)
	UpdateFileExtraction(ctx context.Context, id, extracted, summary string) error

	// Memory operations
	CreateMemory(ctx context.Context, mem *domain.MemoryRecord) error
	ListMemories(ctx context.Context, participantID string, limit int) ([]domain.MemoryRecord, error)
	ListMemoriesByImportance(ctx context.Context, participantID string, limit int) ([]domain.MemoryRecord, error)
	TouchMemories(ctx context.Context, ids []string, at time.Time) error
	CreateSummary(ctx context.Context, summary *domain.ConversationSummary) error
	ListSummaries(ctx context.Context, conversationID string) ([]domain.ConversationSummary, error)

	// Canvas operations
	GetCanvas(ctx context.Context, conversationID string) (*domain.CodeCanvas, error)
	SaveCanvas(ctx context.Context, canvas *domain.CodeCanvas) (*domain.CodeCanvas, error)

	// Tool operations
	CreateToolConfig(ctx context.Context, cfg *domain.ToolConfig) error
	GetToolConfig(ctx context.Context, id string) (*domain.ToolConfig, error)
	ListToolConfigs(ctx context.Context) ([]domain.ToolConfig, error)
	DeleteToolConfig(ctx context.Context, id string) error
	CreateToolSchema(ctx context.Context, schema *domain.ToolSchema) error
	GetToolSchema(ctx context.Context, id string) (*domain.ToolSchema, error)
	ListToolSchemas(ctx context.Context, participantID string) ([]domain.ToolSchema, error)
	FindToolSchema(ctx context.Context, participantID, toolName string) (*domain.ToolSchema, error)
	DeleteToolSchema(ctx context.Context, id string) error

	// Role proposal operations
	CreateProposal(ctx context.Context, p *domain.RoleProposal) error
	GetProposal(ctx context.Context, id string) (*domain.RoleProposal, error)
	ListProposals(ctx context.Context, conversationID string, status domain.ProposalStatus) ([]domain.RoleProposal, error)
	TransitionProposal(ctx context.Context, id string, from, to domain.ProposalStatus) (bool, error)
	ExpirePendingProposals(ctx context.Context, conversationID string) (int64, error)
	ListStaleProposals(ctx context.Context, createdBefore time.Time, limit int) ([]domain.RoleProposal, error)

	// Folder operations
	CreateFolder(ctx context.Context, f *domain.Folder) error
	GetFolder(ctx context.Context, id string) (*domain.Folder, error)
	ListFolders(ctx context.Context) ([]domain.Folder, error)
	RenameFolder(ctx context.Context, id, name string) error
	DeleteFolder(ctx context.Context, id string) error

	// Lifecycle
	Close() error
}

// Ensure SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)
