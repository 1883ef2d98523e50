package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xiaot623/gogo/roundtable/internal/adapter/llm"
	"github.com/xiaot623/gogo/roundtable/internal/domain"
)

var fileExtractionSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"content":   map[string]interface{}{"type": "string", "description": "The full text content of the file"},
		"summary":   map[string]interface{}{"type": "string", "description": "A brief summary of the file"},
		"file_type": map[string]interface{}{"type": "string", "description": "The type of document"},
	},
}

type fileExtraction struct {
	Content  string `json:"content"`
	Summary  string `json:"summary"`
	FileType string `json:"file_type"`
}

// AddFile adds a file to the conversation's repository.
func (s *Service) AddFile(ctx context.Context, conversationID string, req domain.AddFileRequest) (*domain.ChatFile, error) {
	if strings.TrimSpace(req.FileName) == "" || strings.TrimSpace(req.FileURL) == "" {
		return nil, domain.NewValidationError("file_name and file_url are required")
	}
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}

	category := req.FileCategory
	if category == "" {
		category = "document"
	}
	file := &domain.ChatFile{
		ID:             domain.NewID("file"),
		ConversationID: conversationID,
		FileName:       req.FileName,
		FileURL:        req.FileURL,
		FileType:       req.FileType,
		FileSize:       req.FileSize,
		FolderPath:     strings.Trim(req.FolderPath, "/"),
		FileCategory:   category,
		CreatedAt:      time.Now(),
	}
	if err := s.store.CreateFile(ctx, file); err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	if req.Extract {
		s.extractFile(ctx, file)
	}
	return file, nil
}

func (s *Service) ListFiles(ctx context.Context, conversationID string) ([]domain.ChatFile, error) {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	files, err := s.store.ListFiles(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	if files == nil {
		files = []domain.ChatFile{}
	}
	return files, nil
}

// extractFile fills in a file's extracted content and summary. A failed
// extraction leaves the file attached without content.
func (s *Service) extractFile(ctx context.Context, file *domain.ChatFile) {
	log := s.logger.Sugar().With("conversation_id", file.ConversationID, "file", file.FileName)

	res, err := s.llmClient.ExtractFileContent(ctx, file.FileURL, fileExtractionSchema)
	if err != nil {
		log.Warnw("file extraction failed", "error", err)
		return
	}
	if res.Status != llm.ExtractStatusSuccess {
		log.Warnw("file extraction unsuccessful", "details", res.Details)
		return
	}

	var out fileExtraction
	if err := json.Unmarshal(res.Output, &out); err != nil {
		log.Warnw("file extraction returned malformed output", "error", domain.NewParseError("file extraction", err))
		return
	}
	extracted, _ := json.Marshal(out)
	if err := s.store.UpdateFileExtraction(ctx, file.ID, string(extracted), out.Summary); err != nil {
		log.Warnw("failed to store file extraction", "error", err)
		return
	}
	file.ExtractedContent = string(extracted)
	file.AnalysisSummary = out.Summary
}
