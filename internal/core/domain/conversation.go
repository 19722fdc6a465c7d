package domain

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ParseRole accepts the roles chat frontends commonly send ("model" is Gemini's name for assistant).
func ParseRole(raw string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "user", "human":
		return RoleUser, nil
	case "assistant", "model", "bot":
		return RoleAssistant, nil
	default:
		return "", WrapError(ErrInvalidInput, "parse role", fmt.Errorf("unknown role %q", raw))
	}
}

type ConversationTurn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// ConversationHistory is ordered oldest first.
type ConversationHistory []ConversationTurn

// Recent returns the newest n turns, still in chronological order.
func (h ConversationHistory) Recent(n int) ConversationHistory {
	if n <= 0 {
		return nil
	}
	if len(h) <= n {
		return h
	}
	return h[len(h)-n:]
}

// Prompt is built fresh for every request.
type Prompt struct {
	System string
	User   string
}

// Text renders the prompt as a single blob for providers without a system slot.
func (p Prompt) Text() string {
	if p.System == "" {
		return p.User
	}
	return p.System + "\n\n" + p.User
}

func (p Prompt) Len() int {
	return len([]rune(p.Text()))
}
