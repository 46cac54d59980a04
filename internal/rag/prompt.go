package rag

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/ragdesk/ragdesk/internal/model"
	"github.com/ragdesk/ragdesk/internal/websearch"
)

const noContextFound = "No relevant context found."

// historyWindow bounds how much chat history is replayed into the prompt.
const historyWindow = 10

var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {},
	"in": {}, "on": {}, "at": {}, "to": {}, "for": {}, "of": {},
	"with": {}, "by": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"be": {}, "been": {}, "have": {}, "has": {}, "had": {},
	"do": {}, "does": {}, "did": {}, "will": {}, "would": {},
	"could": {}, "should": {}, "may": {}, "might": {}, "must": {},
	"i": {}, "you": {}, "he": {}, "she": {}, "it": {}, "we": {},
	"they": {}, "me": {}, "him": {}, "her": {}, "us": {}, "them": {},
}

// extractKeywords strips punctuation and filler words from a query so the
// web search gets terms worth matching. Words of three letters or more
// survive.
func extractKeywords(query string) string {
	var cleaned strings.Builder
	for _, r := range strings.ToLower(query) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || unicode.IsSpace(r) {
			cleaned.WriteRune(r)
		}
	}
	words := strings.Fields(cleaned.String())
	kept := make([]string, 0, len(words))
	for _, word := range words {
		if len(word) <= 2 {
			continue
		}
		if _, skip := stopWords[word]; skip {
			continue
		}
		kept = append(kept, word)
	}
	return strings.Join(kept, " ")
}

// buildPrompt assembles the final completion prompt: system prompt, indexed
// context, web results, recent history, then the pending user turn.
func buildPrompt(systemPrompt string, history []model.ChatMessage, userMessage, context string, webResults []websearch.Result) string {
	var sb strings.Builder

	if systemPrompt != "" {
		sb.WriteString(systemPrompt)
		sb.WriteString("\n\n")
	}
	if context != "" && context != noContextFound {
		sb.WriteString("Context:\n")
		sb.WriteString(context)
		sb.WriteString("\n\n")
	}
	if len(webResults) > 0 {
		sb.WriteString("Web Search Results:\n")
		for i, result := range webResults {
			fmt.Fprintf(&sb, "%d. %s\n   %s\n   Source: %s\n\n", i+1, result.Title, result.Snippet, result.URL)
		}
		sb.WriteString("\n")
	}

	recent := history
	if len(recent) > historyWindow {
		recent = recent[len(recent)-historyWindow:]
	}
	for _, message := range recent {
		sb.WriteString(message.Role)
		sb.WriteString(": ")
		sb.WriteString(message.Content)
		sb.WriteString("\n")
	}

	sb.WriteString("user: ")
	sb.WriteString(userMessage)
	sb.WriteString("\nassistant: ")
	return sb.String()
}

// formatContextMessage is the synthetic assistant message persisted so the
// retrieved context stays visible in the session transcript.
func formatContextMessage(context string) string {
	return "[Context]\n" + context
}
