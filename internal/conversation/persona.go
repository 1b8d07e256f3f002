package conversation

import (
	"fmt"
	"slices"
	"strings"
)

// speechStyle is appended to every persona prompt. Replies are read aloud, so
// formatting the synthesizer cannot voice must be avoided.
const speechStyle = " Keep your replies short and conversational. Do not use markdown, " +
	"code blocks, bullet points or emojis. Speak in complete sentences as you would out loud."

// DefaultSystemPrompt is used when neither a persona nor a prompt is configured.
const DefaultSystemPrompt = "You are a helpful voice assistant. Provide concise responses."

// Persona is a named system prompt.
type Persona struct {
	Name        string
	Description string
	Prompt      string
}

// Personas lists the built-in personas. The first entry is the default.
var Personas = []Persona{
	{
		Name:        "tech_coworker",
		Description: "Technical colleague for software and systems questions",
		Prompt: "You are a technical co-worker who knows software development and systems " +
			"administration. Give practical, accurate advice and explain hard ideas plainly." + speechStyle,
	},
	{
		Name:        "personal_friend",
		Description: "Casual, supportive friend",
		Prompt: "You are a close friend: casual, warm and a good listener. Ask follow-up " +
			"questions and be encouraging." + speechStyle,
	},
	{
		Name:        "tutor",
		Description: "Patient teacher who checks understanding",
		Prompt: "You are a patient tutor. Break difficult topics into simple steps, give " +
			"examples and ask short questions to check understanding." + speechStyle,
	},
	{
		Name:        "life_coach",
		Description: "Motivational coach for goals and habits",
		Prompt: "You are a life coach focused on goals and personal growth. Ask reflective " +
			"questions and suggest concrete next steps." + speechStyle,
	},
}

// LookupPersona returns the persona with the given name, ignoring case.
func LookupPersona(name string) (Persona, error) {
	i := slices.IndexFunc(Personas, func(p Persona) bool {
		return strings.EqualFold(p.Name, strings.TrimSpace(name))
	})
	if i < 0 {
		return Persona{}, fmt.Errorf("conversation: unknown persona %q", name)
	}
	return Personas[i], nil
}

// SystemPrompt resolves the system prompt for a configuration: an explicit
// prompt wins, then a named persona, then [DefaultSystemPrompt].
func SystemPrompt(prompt, persona string) (string, error) {
	if p := strings.TrimSpace(prompt); p != "" {
		return p, nil
	}
	if strings.TrimSpace(persona) == "" {
		return DefaultSystemPrompt, nil
	}
	p, err := LookupPersona(persona)
	if err != nil {
		return "", err
	}
	return p.Prompt, nil
}
