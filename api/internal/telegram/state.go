package telegram

import "sync"

// chatState keeps per-chat choices between updates.
type chatState struct {
	engine     sync.Map // chatID -> string llm_name
	lastPrompt sync.Map // chatID -> string
}

func (s *chatState) setEngine(chatID int64, name string) { s.engine.Store(chatID, name) }

func (s *chatState) getEngine(chatID int64) string {
	if v, ok := s.engine.Load(chatID); ok {
		if name, _ := v.(string); name != "" {
			return name
		}
	}
	return ""
}

func (s *chatState) setLastPrompt(chatID int64, prompt string) { s.lastPrompt.Store(chatID, prompt) }

func (s *chatState) getLastPrompt(chatID int64) (string, bool) {
	v, ok := s.lastPrompt.Load(chatID)
	if !ok {
		return "", false
	}
	p, _ := v.(string)
	return p, p != ""
}
