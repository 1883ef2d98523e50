package domain

// AgentRoles are the roles a team negotiation may hand out.
var AgentRoles = []string{
	"Project Manager",
	"Lead Developer",
	"Senior Developer",
	"Researcher",
	"Content Strategist",
	"Data Analyst",
	"Quality Assurance",
	"UX/UI Designer",
	"DevOps Engineer",
	"Business Analyst",
	"Technical Writer",
	"Solution Architect",
}

// NegotiateRolesRequest asks the model to form a team for a task. An empty
// Prompt uses the conversation's latest human message.
type NegotiateRolesRequest struct {
	Prompt string `json:"prompt,omitempty"`
	// Apply replaces the conversation's roles with the negotiated ones.
	Apply bool `json:"apply,omitempty"`
}

// RoleAssignment is one participant's negotiated role.
type RoleAssignment struct {
	ParticipantID   string `json:"model_id"`
	ParticipantName string `json:"model_name,omitempty"`
	Role            string `json:"assigned_role"`
	Justification   string `json:"justification,omitempty"`
}

// TeamFormation is the outcome of a role negotiation.
type TeamFormation struct {
	ConversationID           string           `json:"conversation_id"`
	Roles                    []RoleAssignment `json:"roles"`
	AllowDynamicReassignment bool             `json:"allow_dynamic_reassignment"`
	ReassignmentTriggers     []string         `json:"reassignment_triggers"`
	// Fallback is set when the model could not be asked and roles were dealt round-robin.
	Fallback bool `json:"fallback,omitempty"`
	Applied  bool `json:"applied,omitempty"`
}

// RoleMap returns the assignments keyed by participant id.
func (t *TeamFormation) RoleMap() map[string]string {
	roles := make(map[string]string, len(t.Roles))
	for _, r := range t.Roles {
		roles[r.ParticipantID] = r.Role
	}
	return roles
}
