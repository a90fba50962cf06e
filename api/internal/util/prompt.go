package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadSystemPrompt reads <dir>/<provider>/<name>.system.txt, falling back to
// the provider-independent <dir>/<name>.system.txt.
func LoadSystemPrompt(dir, name, provider string) (string, error) {
	system, err := loadPrompt(dir, name, "system", provider)
	if err != nil {
		system, err = loadPrompt(dir, name, "system", "")
	}
	return system, err
}

func LoadUserPrompt(dir, name, provider string) (string, error) {
	user, err := loadPrompt(dir, name, "user", provider)
	if err != nil {
		user, err = loadPrompt(dir, name, "user", "")
	}
	return user, err
}

func loadPrompt(dir, name, tp, provider string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("prompt dir is empty")
	}
	p := filepath.Join(dir, strings.ToLower(provider), fmt.Sprintf("%s.%s.txt", name, tp))
	b, err := os.ReadFile(p)
	if err != nil {
		return "", err
	}
	s := strings.TrimSpace(string(b))
	if s == "" {
		return "", fmt.Errorf("prompt %q is empty", p)
	}
	return s, nil
}
