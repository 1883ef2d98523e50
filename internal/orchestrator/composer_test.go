package orchestrator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xiaot623/gogo/roundtable/internal/domain"
)

var testRoster = domain.Roster{
	{ID: "gpt-4", Name: "GPT-4", Personality: "analytical and thorough", Model: "gpt-4"},
	{ID: "claude-3", Name: "Claude", Personality: "thoughtful and nuanced", Model: "claude-3"},
	{ID: "gemini-pro", Name: "Gemini", Personality: "creative and innovative", Model: "gemini-pro"},
}

func baseInput() PromptInput {
	return PromptInput{
		Participant:   testRoster[0],
		Others:        []string{"GPT-4", "Claude"},
		Roster:        testRoster,
		FirstResponse: true,
		History: []domain.Message{
			{Role: domain.MessageRoleHuman, Content: "How should we shard this table?"},
		},
	}
}

func TestComposeFirstResponse(t *testing.T) {
	c := NewComposer(10, 500, 1000)
	prompt := c.Compose(baseInput())

	assert.True(t, strings.HasPrefix(prompt, "You are GPT-4, an AI assistant known for being analytical and thorough."))
	assert.Contains(t, prompt, "collaborating with other AI assistants in a group discussion")
	assert.Contains(t, prompt, "Your current role is: General Assistant")
	assert.Contains(t, prompt, "Please provide your initial analysis and perspective.")
	assert.Contains(t, prompt, "Current conversation:\nHuman: How should we shard this table?")
	assert.Contains(t, prompt, "[YIELD]")
	assert.NotContains(t, prompt, "You have access to the following tools")
	assert.True(t, strings.HasSuffix(prompt, "Your turn, as GPT-4:"))
}

func TestComposeSectionOrder(t *testing.T) {
	c := NewComposer(10, 500, 1000)
	in := baseInput()
	in.FirstResponse = false
	in.Role = "Lead Developer"
	in.Tools = []ToolDescriptor{{Name: "weather", Description: "Current weather", Parameters: `{"city":"string"}`}}
	in.MemoryContext = "\n\nRelevant memories from previous conversations:\n1. [factual] likes Go\n"
	in.Attachments = []domain.ChatFile{{FileName: "notes.txt", FileType: "text/plain", ExtractedContent: `{"content":"shard by tenant"}`}}
	in.Canvas = &domain.CodeCanvas{Title: "Code Canvas", Language: "go", Content: "package main"}
	in.Repository = []domain.ChatFile{{FileName: "schema.sql", FolderPath: "db", FileCategory: "code", FileURL: "https://files/schema.sql"}}
	in.History = append(in.History, domain.Message{Role: domain.MessageRoleAI, ParticipantID: "claude-3", Content: "By tenant."})

	prompt := c.Compose(in)
	markers := []string{
		"Your current role is: Lead Developer",
		"- Tool: weather",
		"Relevant memories from previous conversations",
		"Please read the entire conversation, analyze the shared files, and consider the shared code canvas, and review the project repository files",
		"Files shared by the user:",
		"Shared Code Canvas:",
		"Available files in the project repository",
		"Current conversation:",
		"<think>",
		"COLLABORATION FEATURES:",
		"Your turn, as GPT-4:",
	}
	last := -1
	for _, m := range markers {
		idx := strings.Index(prompt, m)
		if assert.GreaterOrEqual(t, idx, 0, "missing %q", m) {
			assert.Greater(t, idx, last, "%q out of order", m)
			last = idx
		}
	}
	assert.Contains(t, prompt, "- Suggest improvements or modifications to the code")
	assert.Contains(t, prompt, "- Use available tools to fetch data or perform actions.")
	assert.Contains(t, prompt, "Content: shard by tenant")
	assert.Contains(t, prompt, "📁 db/schema.sql (code)")
	assert.Contains(t, prompt, "Claude: By tenant.")
	assert.Contains(t, prompt, "```go\npackage main\n```")
}

func TestComposeRepositoryPreview(t *testing.T) {
	c := NewComposer(10, 5, 20)
	in := baseInput()
	in.Repository = []domain.ChatFile{
		{FileName: "short.txt", ExtractedContent: "abcdefghij"},
		{FileName: "long.txt", ExtractedContent: strings.Repeat("x", 50)},
	}
	prompt := c.Compose(in)
	assert.Contains(t, prompt, "Content preview: abcde...")
	assert.Equal(t, 1, strings.Count(prompt, "Content preview:"))
}

func TestComposeHistoryWindow(t *testing.T) {
	c := NewComposer(2, 500, 1000)
	in := baseInput()
	in.History = []domain.Message{
		{Role: domain.MessageRoleHuman, Content: "first"},
		{Role: domain.MessageRoleAI, ParticipantID: "claude-3", Content: "second"},
		{Role: domain.MessageRoleTool, ToolName: "weather", Content: `{"tool_name":"weather","result":1}`},
	}
	prompt := c.Compose(in)
	assert.NotContains(t, prompt, "Human: first")
	assert.Contains(t, prompt, "Claude: second\n\nTool (weather): ")
}

func TestComposeUnknownParticipantFallsBackToAI(t *testing.T) {
	c := NewComposer(10, 500, 1000)
	in := baseInput()
	in.History = append(in.History, domain.Message{Role: domain.MessageRoleAI, ParticipantID: "retired", Content: "hello"})
	assert.Contains(t, c.Compose(in), "AI: hello")
}
