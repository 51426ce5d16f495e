package persona

import "strings"

// Persona selects a behavior profile for a voice session.
type Persona struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	SystemPrompt string `json:"-"`
	VoiceStyle   string `json:"style"`
}

const DefaultID = "default"

var registry = []Persona{
	{
		ID:   DefaultID,
		Name: "Assistant",
		SystemPrompt: "You are a customer service assistant for SmartFlow CRM.\n" +
			"Help customers politely and professionally: book, change or cancel\n" +
			"appointments, record and track complaints, answer information\n" +
			"requests. Keep answers short and to the point.",
		VoiceStyle: "professional",
	},
	{
		ID:   "support",
		Name: "Technical Support",
		SystemPrompt: "You are a SmartFlow CRM technical support assistant.\n" +
			"Solve technical problems, be patient, guide step by step and\n" +
			"explain complex topics simply.",
		VoiceStyle: "calm",
	},
	{
		ID:   "sales",
		Name: "Sales",
		SystemPrompt: "You are a SmartFlow CRM sales assistant.\n" +
			"Provide product and service information, be persuasive but never\n" +
			"pushy, and listen to the customer's needs.",
		VoiceStyle: "energetic",
	},
}

// Get resolves a persona id, falling back to the default profile for unknown
// or empty ids so a bad selector never fails a session.
func Get(id string) Persona {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, p := range registry {
		if p.ID == id {
			return p
		}
	}
	return registry[0]
}

// Known reports whether id names a registered persona.
func Known(id string) bool {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, p := range registry {
		if p.ID == id {
			return true
		}
	}
	return false
}

// List returns all registered personas in declaration order.
func List() []Persona {
	out := make([]Persona, len(registry))
	copy(out, registry)
	return out
}
