package service

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/xiaot623/gogo/roundtable/internal/domain"
)

// Transcript formats.
const (
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
)

// ExportTranscript renders the conversation as markdown or HTML.
func (s *Service) ExportTranscript(ctx context.Context, conversationID, format string) (string, error) {
	conv, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return "", err
	}
	messages, err := s.store.ListMessages(ctx, conversationID, 0)
	if err != nil {
		return "", fmt.Errorf("failed to get messages: %w", err)
	}

	md := renderTranscript(conv, messages, s.Roster())
	switch format {
	case "", FormatMarkdown:
		return md, nil
	case FormatHTML:
		var buf bytes.Buffer
		if err := goldmark.Convert([]byte(md), &buf); err != nil {
			return "", fmt.Errorf("failed to render transcript: %w", err)
		}
		return buf.String(), nil
	default:
		return "", domain.NewValidationError("unsupported format %q", format)
	}
}

func renderTranscript(conv *domain.Conversation, messages []domain.Message, roster domain.Roster) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", conv.Title)
	if len(conv.ActiveParticipants) > 0 {
		b.WriteString("Participants:")
		for i, id := range conv.ActiveParticipants {
			if i > 0 {
				b.WriteString(",")
			}
			fmt.Fprintf(&b, " %s (%s)", roster.NameOf(id), conv.RoleFor(id))
		}
		b.WriteString("\n\n")
	}

	for _, m := range messages {
		stamp := m.CreatedAt.UTC().Format("2006-01-02 15:04")
		switch {
		case m.Role == domain.MessageRoleHuman:
			fmt.Fprintf(&b, "### Human · %s\n\n%s\n\n", stamp, m.Content)
		case m.Role == domain.MessageRoleTool:
			fmt.Fprintf(&b, "### Tool (%s) · %s\n\n```json\n%s\n```\n\n", m.ToolName, stamp, m.Content)
		case m.IsSystem():
			fmt.Fprintf(&b, "> %s\n\n", m.Content)
		default:
			fmt.Fprintf(&b, "### %s · %s\n\n", roster.NameOf(m.ParticipantID), stamp)
			if m.ThoughtProcess != "" {
				fmt.Fprintf(&b, "<details><summary>Thought process</summary>\n\n%s\n\n</details>\n\n", m.ThoughtProcess)
			}
			fmt.Fprintf(&b, "%s\n\n", m.Content)
		}
	}
	return b.String()
}
