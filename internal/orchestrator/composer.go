// Package orchestrator runs the turn-taking loop of a conversation: it picks
// the next participant, composes its prompt, calls the model, applies
// directives and tool sub-turns, and persists the reply.
package orchestrator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xiaot623/gogo/roundtable/internal/domain"
)

// ToolDescriptor is one tool offered to a participant in its prompt.
type ToolDescriptor struct {
	Name        string
	Description string
	Parameters  string
}

// PromptInput is everything a participant's prompt is built from.
type PromptInput struct {
	Participant domain.Participant
	Role        string
	// Others are the display names of every active participant.
	Others        []string
	History       []domain.Message
	Attachments   []domain.ChatFile
	Repository    []domain.ChatFile
	Canvas        *domain.CodeCanvas
	Tools         []ToolDescriptor
	MemoryContext string
	// FirstResponse selects the opening wording used before any AI has
	// answered the current prompt group.
	FirstResponse bool
	// Roster resolves participant names in the history.
	Roster domain.Roster
}

// Composer renders prompts. It performs no I/O.
type Composer struct {
	HistoryWindow    int
	RepoPreviewChars int
	RepoPreviewMax   int
}

// NewComposer creates a composer with the given limits.
func NewComposer(historyWindow, repoPreviewChars, repoPreviewMax int) *Composer {
	return &Composer{
		HistoryWindow:    historyWindow,
		RepoPreviewChars: repoPreviewChars,
		RepoPreviewMax:   repoPreviewMax,
	}
}

const toolInstructions = "\n\nYou have access to the following tools. To use a tool, respond ONLY with a JSON object containing a 'tool_calls' key. The value should be an array of objects, each with 'name' and 'arguments'.\n" +
	"Example: {\"tool_calls\": [{\"name\": \"tool_name\", \"arguments\": {\"arg1\": \"value1\"}}]}\n\n"

const thoughtProcessInstruction = "\n\nBefore providing your final response, if you have any internal thoughts, reasoning steps, or decision-making processes you'd like to share, please enclose them within <think> and </think> tags. This allows the user and other AIs to understand your thought process."

const collaborationInstructions = `

COLLABORATION FEATURES:
1. Knowledge Base: If you learn something new or notice a gap in your knowledge, use [KNOWLEDGE_GAP: query] to flag it for research.
2. Consensus: If you disagree with another AI, use [DISAGREE: reason] to signal disagreement.
3. Conflict Resolution: If there's a major disagreement, use [VOTE_NEEDED: topic] to request a team vote.
4. Visual Communication: If a concept would be clearer with an image, use [GENERATE_IMAGE: detailed description] to create one.
5. Role Management: You can propose a role change for yourself or a teammate if you believe it will improve team effectiveness. First, discuss it with the team. Once a consensus is reached, one AI should output the final proposal in the format: [PROPOSE_ROLE_CHANGE: {"model_id": "claude-3", "new_role": "Lead Developer", "justification": "The project now requires more architectural planning, which aligns with this role."}] If you only want to suggest a reshuffle, use [SUGGEST_ROLES: reasoning].
6. Conversation Control: If you have a question for the user and need their input to proceed, you MUST end your turn with [YIELD] to pause the conversation. Also use [YIELD] if you feel the conversation has reached a natural conclusion.
Tag payloads end at the first "]". Write a literal bracket inside a payload as \] and a literal backslash as \\.`

// Compose builds the prompt. Sections appear in a fixed order: identity and
// role, tools, memories, a note on what was shared, attached files, code
// canvas, repository files, history, the thought-process instruction, the
// collaboration features and the turn cue.
func (c *Composer) Compose(in PromptInput) string {
	var b strings.Builder
	name := in.Participant.Name

	role := in.Role
	if role == "" {
		role = domain.DefaultRole
	}
	if in.FirstResponse {
		fmt.Fprintf(&b, "You are %s, an AI assistant known for being %s. You're collaborating with other AI assistants in a group discussion", name, in.Participant.Personality)
	} else {
		fmt.Fprintf(&b, "You are %s, an AI assistant known for being %s. You're in an ongoing group discussion with other AI assistants and a human", name, in.Participant.Personality)
	}
	if len(in.Others) > 0 {
		b.WriteString(" (participants: " + strings.Join(in.Others, ", ") + ")")
	}
	b.WriteString(".")
	fmt.Fprintf(&b, "\n\nYour current role is: %s. Please respond from this perspective.\n", role)

	if len(in.Tools) > 0 {
		b.WriteString(toolInstructions)
		for _, t := range in.Tools {
			fmt.Fprintf(&b, "\n- Tool: %s\n", t.Name)
			fmt.Fprintf(&b, "  Description: %s\n", t.Description)
			fmt.Fprintf(&b, "  Parameters: %s\n", t.Parameters)
		}
	}

	b.WriteString(in.MemoryContext)
	b.WriteString("\n")
	b.WriteString(c.narrative(in))
	b.WriteString("\n")

	b.WriteString(fileContext(in.Attachments))
	b.WriteString(codeContext(in.Canvas))
	b.WriteString(c.repositoryContext(in.Repository))

	b.WriteString("\nCurrent conversation:\n")
	b.WriteString(c.historyText(in.History, in.Roster))
	b.WriteString("\n")
	b.WriteString(thoughtProcessInstruction)
	b.WriteString("\n")
	b.WriteString(collaborationInstructions)
	fmt.Fprintf(&b, "\n\nYour turn, as %s:", name)
	return b.String()
}

func (c *Composer) narrative(in PromptInput) string {
	hasFiles := len(in.Attachments) > 0
	hasCanvas := in.Canvas != nil && in.Canvas.Content != ""
	hasRepo := len(in.Repository) > 0

	var b strings.Builder
	if in.FirstResponse {
		b.WriteString("The human has shared a message")
		if hasFiles {
			b.WriteString(" with attached files")
		}
		if hasCanvas {
			b.WriteString(" and there is a shared code canvas")
		}
		if hasRepo {
			b.WriteString(" and there are files in the project repository")
		}
		b.WriteString(". Please provide your initial analysis and perspective.\n")
		return b.String()
	}

	b.WriteString("Please read the entire conversation")
	if hasFiles {
		b.WriteString(", analyze the shared files")
	}
	if hasCanvas {
		b.WriteString(", and consider the shared code canvas")
	}
	if hasRepo {
		b.WriteString(", and review the project repository files")
	}
	b.WriteString(" and provide your perspective. You can:\n")
	b.WriteString("- Build upon ideas from other AIs\n")
	b.WriteString("- Offer a different viewpoint on the files")
	if hasCanvas {
		b.WriteString(" or code")
	}
	if hasRepo {
		b.WriteString(" or repository contents")
	}
	b.WriteString("\n- Ask clarifying questions\n- Synthesize what's been discussed\n- Introduce new relevant angles\n")
	if hasCanvas {
		b.WriteString("- Suggest improvements or modifications to the code\n")
	}
	if len(in.Tools) > 0 {
		b.WriteString("- Use available tools to fetch data or perform actions.\n")
	}
	return b.String()
}

// extractedText pulls the text of a file's extraction, which is either raw
// text or a JSON object with a content field.
func extractedText(raw string) string {
	var obj struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal([]byte(raw), &obj); err == nil {
		return obj.Content
	}
	return raw
}

func fileContext(files []domain.ChatFile) string {
	if len(files) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\nFiles shared by the user:\n")
	for _, f := range files {
		fmt.Fprintf(&b, "\n📎 %s (%s)", f.FileName, f.FileType)
		if f.ExtractedContent != "" {
			fmt.Fprintf(&b, "\nContent: %s", extractedText(f.ExtractedContent))
		}
		if f.AnalysisSummary != "" {
			fmt.Fprintf(&b, "\nSummary: %s", f.AnalysisSummary)
		}
		b.WriteString("\n---\n")
	}
	return b.String()
}

func codeContext(canvas *domain.CodeCanvas) string {
	if canvas == nil || canvas.Content == "" {
		return ""
	}
	return fmt.Sprintf("\n\nShared Code Canvas:\nTitle: %s\nLanguage: %s\nDescription: %s\n\nCurrent Code:\n```%s\n%s\n```\n\n"+
		"You can analyze this code, suggest changes, or generate new code based on it. If you want to modify the code canvas, use [UPDATE_CANVAS: new code].",
		canvas.Title, canvas.Language, canvas.Description, canvas.Language, canvas.Content)
}

func (c *Composer) repositoryContext(files []domain.ChatFile) string {
	if len(files) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\nAvailable files in the project repository. Use this information directly in your analysis and responses:\n")
	for _, f := range files {
		path := f.FileName
		if f.FolderPath != "" {
			path = strings.TrimSuffix(f.FolderPath, "/") + "/" + f.FileName
		}
		fmt.Fprintf(&b, "\n📁 %s (%s)", path, f.FileCategory)
		if f.AnalysisSummary != "" {
			fmt.Fprintf(&b, "\nSummary: %s", f.AnalysisSummary)
		}
		if f.ExtractedContent != "" {
			text := extractedText(f.ExtractedContent)
			if text != "" && len([]rune(text)) < c.RepoPreviewMax {
				fmt.Fprintf(&b, "\nContent preview: %s...", truncateRunes(text, c.RepoPreviewChars))
			}
		}
		fmt.Fprintf(&b, "\nFile URL: %s\n---\n", f.FileURL)
	}
	b.WriteString("\nYou can reference these files by their paths and analyze their content based on the previews provided.")
	return b.String()
}

func (c *Composer) historyText(history []domain.Message, roster domain.Roster) string {
	if c.HistoryWindow > 0 && len(history) > c.HistoryWindow {
		history = history[len(history)-c.HistoryWindow:]
	}
	lines := make([]string, 0, len(history))
	for _, msg := range history {
		switch {
		case msg.Role == domain.MessageRoleHuman:
			lines = append(lines, "Human: "+msg.Content)
		case msg.Role == domain.MessageRoleTool:
			lines = append(lines, fmt.Sprintf("Tool (%s): %s", msg.ToolName, msg.Content))
		case msg.IsSystem() || msg.ParticipantID == "":
			lines = append(lines, msg.Content)
		default:
			lines = append(lines, roster.NameOf(msg.ParticipantID)+": "+msg.Content)
		}
	}
	return strings.Join(lines, "\n\n")
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n])
}
