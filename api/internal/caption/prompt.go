package caption

import (
	"strings"

	"caption-proxy/api/internal/util"
)

const (
	DefaultSystemPrompt = "You are a helpful assistant that writes short engaging social media captions (1-3 lines)."
	DefaultUserPrompt   = "Write 5 short Instagram captions for: {{prompt}}\nKeep them punchy, emoji-friendly, and 1-2 sentences each."

	promptPlaceholder = "{{prompt}}"
	promptName        = "caption"
)

// Messages holds the two-message conversation sent to a provider.
type Messages struct {
	System string
	User   string
}

// Prompter builds conversations, preferring templates found under Dir.
type Prompter struct {
	Dir string
}

// Build returns the system and user messages for provider with prompt embedded.
func (p Prompter) Build(provider, prompt string) Messages {
	system := DefaultSystemPrompt
	user := DefaultUserPrompt
	if p.Dir != "" {
		if s, err := util.LoadSystemPrompt(p.Dir, promptName, provider); err == nil {
			system = s
		}
		if u, err := util.LoadUserPrompt(p.Dir, promptName, provider); err == nil {
			user = u
		}
	}
	if !strings.Contains(user, promptPlaceholder) {
		user += "\n" + promptPlaceholder
	}
	return Messages{
		System: system,
		User:   strings.ReplaceAll(user, promptPlaceholder, prompt),
	}
}
