package chunking

import (
	"math/rand"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitEmptyInput(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\n\t "} {
		if got := Split("doc1", text, 100, 0); len(got) != 0 {
			t.Fatalf("expected no chunks for %q, got %d", text, len(got))
		}
	}
}

func TestSplitShortTextSingleChunk(t *testing.T) {
	got := Split("doc1", "  Hello lecture world.  ", 100, 0)
	if len(got) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(got))
	}
	if got[0].Text != "Hello lecture world." {
		t.Fatalf("unexpected text %q", got[0].Text)
	}
	if got[0].CharOffset != 2 || got[0].SequenceIndex != 0 || got[0].SourceDocumentID != "doc1" {
		t.Fatalf("unexpected chunk metadata: %+v", got[0])
	}
}

func TestSplit3200CharsProducesThreeChunks(t *testing.T) {
	text := strings.Repeat("abcd ", 640)
	got := NewSplitter(1500, 0).Chunk("doc1", text)
	if len(got) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(got))
	}
	wantIDs := []string{"doc1#0", "doc1#1", "doc1#2"}
	for i, c := range got {
		if c.RecordID() != wantIDs[i] {
			t.Fatalf("chunk %d id = %s, want %s", i, c.RecordID(), wantIDs[i])
		}
		if n := utf8.RuneCountInString(c.Text); n > 1500 {
			t.Fatalf("chunk %d too long: %d", i, n)
		}
	}
}

func TestSplitNeverBreaksWords(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	words := []string{"lecture", "gradient", "descent", "matrix.", "eigenvalue", "proof!", "lemma", "λ-calculus", "über", "\n\n"}
	for round := 0; round < 20; round++ {
		var b strings.Builder
		for i := 0; i < 400; i++ {
			b.WriteString(words[rng.Intn(len(words))])
			b.WriteByte(' ')
		}
		text := b.String()
		chunks := Split("doc", text, 80+rng.Intn(200), 0)

		parts := make([]string, 0, len(chunks))
		for _, c := range chunks {
			if utf8.RuneCountInString(c.Text) > 280 {
				t.Fatalf("chunk exceeds bound: %q", c.Text)
			}
			parts = append(parts, c.Text)
		}
		if !reflect.DeepEqual(strings.Fields(strings.Join(parts, " ")), strings.Fields(text)) {
			t.Fatalf("round %d: concatenated chunks do not reconstruct the text", round)
		}
	}
}

func TestSplitPrefersParagraphBreak(t *testing.T) {
	first := strings.Repeat("word ", 14) + "end."
	text := first + "\n\n" + strings.Repeat("next ", 10)
	got := Split("doc", text, 100, 0)
	if len(got) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(got))
	}
	if got[0].Text != first {
		t.Fatalf("expected first chunk to end at paragraph break, got %q", got[0].Text)
	}
}

func TestSplitOversizedWordEmittedWhole(t *testing.T) {
	long := strings.Repeat("x", 50)
	got := Split("doc", "short "+long+" tail", 20, 0)
	var found bool
	for _, c := range got {
		if c.Text == long {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected oversized word as its own chunk, got %+v", got)
	}
}

func TestSplitWithOverlapSharesText(t *testing.T) {
	text := strings.Repeat("alpha beta gamma delta ", 20)
	got := Split("doc", text, 60, 15)
	if len(got) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].CharOffset <= got[i-1].CharOffset {
			t.Fatalf("chunk %d does not advance: %d <= %d", i, got[i].CharOffset, got[i-1].CharOffset)
		}
		prevEnd := got[i-1].CharOffset + utf8.RuneCountInString(got[i-1].Text)
		if got[i].CharOffset >= prevEnd {
			t.Fatalf("chunk %d does not overlap previous chunk", i)
		}
	}
}

func TestSplitDeterministic(t *testing.T) {
	text := strings.Repeat("Deterministic chunking matters. ", 100)
	a := Split("doc", text, 200, 20)
	b := Split("doc", text, 200, 20)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("expected identical output for identical input")
	}
}
