package domain

// Participant is one configured AI model identity.
type Participant struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Personality string `json:"personality" yaml:"personality"`
	Model       string `json:"model,omitempty" yaml:"model"`
}

// Roster is the ordered set of participants known to the service.
type Roster []Participant

// Get returns the participant with the given id.
func (r Roster) Get(id string) (Participant, bool) {
	for _, p := range r {
		if p.ID == id {
			return p, true
		}
	}
	return Participant{}, false
}

// NameOf returns the display name for id, falling back to "AI".
func (r Roster) NameOf(id string) string {
	if p, ok := r.Get(id); ok {
		return p.Name
	}
	return "AI"
}

// IDs returns participant ids in roster order.
func (r Roster) IDs() []string {
	ids := make([]string, 0, len(r))
	for _, p := range r {
		ids = append(ids, p.ID)
	}
	return ids
}
