package orchestrator

import (
	"fmt"
	"strings"

	"github.com/nisheshk/durable-chatbot/internal/store"
)

const (
	// ClarificationReply answers empty or whitespace-only messages.
	ClarificationReply = "I didn't catch a question there. Could you rephrase what you'd like to know?"

	// ApologyReply is the degraded fallback when the chat call itself fails
	// after its one retry.
	ApologyReply = "I'm sorry, I wasn't able to generate a response just now. Please try again in a moment."

	lookupFailedNote = "Note: an external lookup could not be completed for this request. Answer from general knowledge and mention that live data was unavailable."

	// promptHistoryTokens bounds how much verbatim history goes into each
	// chat prompt, separate from the summarization budget.
	promptHistoryTokens = 1000
)

// EstimateTokens approximates token count as one token per four characters.
func EstimateTokens(s string) int {
	return len(s) / 4
}

// historyWindow returns the newest suffix of history that fits the token
// budget, oldest first.
func historyWindow(history []store.Turn, budget int) []store.Turn {
	if budget <= 0 {
		return nil
	}
	total := 0
	start := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		cost := EstimateTokens(history[i].Text)
		if total+cost > budget {
			break
		}
		total += cost
		start = i
	}
	return history[start:]
}

func buildChatPrompt(message, summary string, history []store.Turn, toolContext string, lookupFailed bool) string {
	var b strings.Builder

	if summary != "" {
		fmt.Fprintf(&b, "Summary of the earlier conversation: %s ", summary)
	}

	window := historyWindow(history, promptHistoryTokens)
	if len(window) > 0 {
		parts := make([]string, 0, len(window))
		for _, t := range window {
			parts = append(parts, t.Text)
		}
		fmt.Fprintf(&b, "Here is the conversation history: %s ", strings.Join(parts, " "))
	}

	b.WriteString("Please add a few sentence response to the prompt in plain text sentences. " +
		"Don't editorialize or add metadata like response. Keep the text a plain explanation based on the history. ")

	if toolContext != "" {
		fmt.Fprintf(&b, "\n\nAdditional context from tools:\n%s\n\nPlease provide a comprehensive response using both the conversation history and the additional context. ", toolContext)
	}
	if lookupFailed {
		b.WriteString("\n\n" + lookupFailedNote + " ")
	}

	fmt.Fprintf(&b, "Prompt: %s", message)
	return b.String()
}

func buildSummaryPrompt(existing string, turns []store.Turn) string {
	parts := make([]string, 0, len(turns)+1)
	if existing != "" {
		parts = append(parts, "Earlier summary: "+existing)
	}
	for _, t := range turns {
		parts = append(parts, t.Text)
	}
	return "Here is the conversation history between a user and a chatbot: " +
		strings.Join(parts, " ") +
		"  -- Please produce a two sentence summary of this conversation."
}
