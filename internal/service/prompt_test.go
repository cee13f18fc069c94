package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildPrompt(t *testing.T) {
	p := NewPromptBuilder("").BuildPrompt("What is the refund window?", []string{"Refunds within 30 days.", "Contact support."})

	assert.Equal(t, "What is the refund window?", p.User)
	assert.True(t, strings.HasPrefix(p.System, DefaultPromptRules))
	assert.True(t, strings.HasSuffix(p.System, "Context:\nRefunds within 30 days.\n\nContact support."))
	assert.Contains(t, p.System, "ONLY")
}

func TestBuildPromptCustomRules(t *testing.T) {
	p := NewPromptBuilder("Answer in French.").BuildPrompt("q", nil)
	assert.Equal(t, "Answer in French.\n\nContext:\n", p.System)
}

func TestBuildPromptKeepsRankOrder(t *testing.T) {
	p := NewPromptBuilder("r").BuildPrompt("q", []string{"first", "second", "third"})
	first := strings.Index(p.System, "first")
	second := strings.Index(p.System, "second")
	third := strings.Index(p.System, "third")
	assert.Less(t, first, second)
	assert.Less(t, second, third)
}
