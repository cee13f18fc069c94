package service

import "strings"

// DefaultPromptRules 是未配置 llm.prompt.rules 时的系统指令。
const DefaultPromptRules = "You are a helpful document assistant. Answer the user's question based ONLY on the provided context below. If the context doesn't contain the answer, say so."

// Prompt 是交给大模型的一组消息。
type Prompt struct {
	System string
	User   string
}

// PromptBuilder 把检索到的上下文组装进系统指令。
type PromptBuilder struct {
	rules string
}

func NewPromptBuilder(rules string) *PromptBuilder {
	if strings.TrimSpace(rules) == "" {
		rules = DefaultPromptRules
	}
	return &PromptBuilder{rules: rules}
}

// BuildPrompt 按排名顺序以空行拼接上下文，问题原样作为用户消息。
func (b *PromptBuilder) BuildPrompt(question string, contexts []string) Prompt {
	var sys strings.Builder
	sys.WriteString(b.rules)
	sys.WriteString("\n\nContext:\n")
	sys.WriteString(strings.Join(contexts, "\n\n"))
	return Prompt{System: sys.String(), User: question}
}
