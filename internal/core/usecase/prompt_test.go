package usecase

import (
	"strings"
	"testing"

	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/core/domain"
)

func sampleRetrieval() domain.RetrievalResult {
	return domain.RetrievalResult{
		{RecordID: "doc1#1", SourceDocumentID: "doc1", Text: "medium relevance", Score: 0.5},
		{RecordID: "doc1#0", SourceDocumentID: "doc1", Text: "high relevance", Score: 0.9},
		{RecordID: "doc2#0", SourceDocumentID: "doc2", Text: "low relevance", Score: 0.1},
	}
}

func sampleHistory() domain.ConversationHistory {
	return domain.ConversationHistory{
		{Role: domain.RoleUser, Text: "first question"},
		{Role: domain.RoleAssistant, Text: "first answer"},
		{Role: domain.RoleUser, Text: "second question"},
		{Role: domain.RoleAssistant, Text: "second answer"},
	}
}

func TestAssembleOrdersSections(t *testing.T) {
	prompt := NewPromptAssembler(PromptConfig{}).Assemble(sampleHistory(), sampleRetrieval(), "what is a gradient?")

	if prompt.System != DefaultSystemInstruction {
		t.Fatalf("unexpected system instruction: %q", prompt.System)
	}
	user := prompt.User
	order := []string{"high relevance", "medium relevance", "low relevance", "first question", "second answer", "User Question:\nwhat is a gradient?"}
	last := -1
	for _, part := range order {
		idx := strings.Index(user, part)
		if idx < 0 || idx <= last {
			t.Fatalf("%q out of order in prompt:\n%s", part, user)
		}
		last = idx
	}
	if !strings.HasSuffix(user, "what is a gradient?\n") {
		t.Fatalf("query must be last:\n%s", user)
	}
}

func TestAssembleMarksMissingContext(t *testing.T) {
	prompt := NewPromptAssembler(PromptConfig{}).Assemble(nil, nil, "hello")
	if !strings.Contains(prompt.User, NoContextMarker) {
		t.Fatalf("expected no-context marker:\n%s", prompt.User)
	}
	if strings.Contains(prompt.User, "Conversation so far") {
		t.Fatalf("empty history must not render a section:\n%s", prompt.User)
	}
}

func TestAssembleIsDeterministic(t *testing.T) {
	a := NewPromptAssembler(PromptConfig{MaxChars: 600})
	first := a.Assemble(sampleHistory(), sampleRetrieval(), "q")
	for i := 0; i < 5; i++ {
		if got := a.Assemble(sampleHistory(), sampleRetrieval(), "q"); got != first {
			t.Fatalf("assemble is not deterministic")
		}
	}
}

func TestAssembleDoesNotMutateInputs(t *testing.T) {
	retrieval := sampleRetrieval()
	NewPromptAssembler(PromptConfig{}).Assemble(nil, retrieval, "q")
	if retrieval[0].RecordID != "doc1#1" {
		t.Fatalf("caller's retrieval result was reordered")
	}
}

func TestAssembleBoundDropsLowestContextFirst(t *testing.T) {
	unbounded := NewPromptAssembler(PromptConfig{}).Assemble(sampleHistory(), sampleRetrieval(), "q")
	bound := unbounded.Len() - 1

	prompt, kept := NewPromptAssembler(PromptConfig{MaxChars: bound}).assemble(sampleHistory(), sampleRetrieval(), "q")
	if prompt.Len() > bound {
		t.Fatalf("prompt exceeds bound: %d > %d", prompt.Len(), bound)
	}
	if strings.Contains(prompt.User, "low relevance") || !strings.Contains(prompt.User, "high relevance") {
		t.Fatalf("expected only the lowest context to be dropped:\n%s", prompt.User)
	}
	if len(kept) != 2 || !strings.Contains(prompt.User, "first question") {
		t.Fatalf("history must survive while context can still be dropped: kept=%d\n%s", len(kept), prompt.User)
	}
}

func TestAssembleBoundDropsOldestHistoryAfterContext(t *testing.T) {
	a := NewPromptAssembler(PromptConfig{})
	base := a.Assemble(domain.ConversationHistory{{Role: domain.RoleAssistant, Text: "second answer"}}, nil, "q")

	bounded := NewPromptAssembler(PromptConfig{MaxChars: base.Len()})
	prompt := bounded.Assemble(sampleHistory(), sampleRetrieval(), "q")
	if strings.Contains(prompt.User, "relevance") || strings.Contains(prompt.User, "first question") {
		t.Fatalf("context and old history must be dropped:\n%s", prompt.User)
	}
	if !strings.Contains(prompt.User, "second answer") || !strings.HasSuffix(prompt.User, "q\n") {
		t.Fatalf("latest turn and query must survive:\n%s", prompt.User)
	}
}

func TestAssembleNeverDropsQueryOrLatestTurn(t *testing.T) {
	query := strings.Repeat("long question ", 50)
	prompt := NewPromptAssembler(PromptConfig{MaxChars: 10}).Assemble(sampleHistory(), sampleRetrieval(), query)
	if !strings.Contains(prompt.User, query) || !strings.Contains(prompt.User, "second answer") {
		t.Fatalf("query and latest turn must always be kept:\n%s", prompt.User)
	}
	if strings.Contains(prompt.User, "first answer") {
		t.Fatalf("older turns should be dropped under pressure:\n%s", prompt.User)
	}
}
