package orchestrator

import (
	"strings"
	"testing"

	"github.com/firebase/genkit/go/ai"

	"github.com/cartageio/cartage/internal/log"
)

func tokenHarness() *Orchestrator {
	return &Orchestrator{logger: log.NewNop()}
}

func TestEstimateTokens(t *testing.T) {
	if got := estimateTokens(""); got != 0 {
		t.Errorf("estimateTokens(empty) = %d, want 0", got)
	}
	if got := estimateTokens("abcdefgh"); got != 4 {
		t.Errorf("estimateTokens(8 runes) = %d, want 4", got)
	}
}

func TestTruncateHistory_UnderBudgetUnchanged(t *testing.T) {
	o := tokenHarness()
	msgs := []*ai.Message{
		ai.NewUserMessage(ai.NewTextPart("short question")),
		ai.NewModelMessage(ai.NewTextPart("short answer")),
	}

	got := o.truncateHistory(msgs, 1000)
	if len(got) != 2 {
		t.Errorf("len = %d, want 2 (no truncation under budget)", len(got))
	}
}

func TestTruncateHistory_KeepsNewestMessages(t *testing.T) {
	o := tokenHarness()
	old := ai.NewUserMessage(ai.NewTextPart(strings.Repeat("old ", 100))) // ~200 tokens
	mid := ai.NewModelMessage(ai.NewTextPart(strings.Repeat("mid ", 100)))
	recent := ai.NewUserMessage(ai.NewTextPart("recent"))

	got := o.truncateHistory([]*ai.Message{old, mid, recent}, 250)
	if len(got) == 3 {
		t.Fatal("nothing truncated despite exceeding budget")
	}
	last := got[len(got)-1]
	if last.Content[0].Text != "recent" {
		t.Errorf("newest message was dropped, last = %q", last.Content[0].Text)
	}
}

func TestTruncateHistory_PreservesSystemMessage(t *testing.T) {
	o := tokenHarness()
	system := ai.NewSystemMessage(ai.NewTextPart("persona"))
	bulk := make([]*ai.Message, 0, 11)
	bulk = append(bulk, system)
	for i := 0; i < 10; i++ {
		bulk = append(bulk, ai.NewUserMessage(ai.NewTextPart(strings.Repeat("x", 200))))
	}

	got := o.truncateHistory(bulk, 150)
	if len(got) == 0 || got[0].Role != ai.RoleSystem {
		t.Fatalf("system message not preserved, got[0] = %+v", got)
	}
}

func TestTruncateHistory_Empty(t *testing.T) {
	o := tokenHarness()
	if got := o.truncateHistory(nil, 100); len(got) != 0 {
		t.Errorf("truncateHistory(nil) = %v, want empty", got)
	}
}
