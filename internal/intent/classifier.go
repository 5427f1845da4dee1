// Package intent maps a user message to the closed set of capabilities a
// turn needs. Classification is deterministic keyword matching with no I/O;
// the set is fixed so the orchestrator's fan-out stays exhaustively
// enumerable.
package intent

import (
	"strings"
	"unicode"

	"github.com/nisheshk/durable-chatbot/internal/store"
)

type Capability string

const (
	CapChat          Capability = "chat"
	CapCompanySearch Capability = "company_search"
	CapWebSearch     Capability = "web_search"
)

// Result is the set of specialized capabilities a message requires. Chat is
// always implied; an all-false Result means a plain chat turn.
type Result struct {
	CompanySearch bool
	WebSearch     bool
}

// Tags returns the applied capability tags, chat first.
func (r Result) Tags() []Capability {
	tags := []Capability{CapChat}
	if r.CompanySearch {
		tags = append(tags, CapCompanySearch)
	}
	if r.WebSearch {
		tags = append(tags, CapWebSearch)
	}
	return tags
}

// Single-word triggers are matched on word boundaries so "nowhere" does not
// trigger "now". Phrases are matched as substrings.
var companyWords = map[string]bool{
	"supplier": true, "suppliers": true,
	"vendor": true, "vendors": true,
	"company": true, "companies": true,
	"contractor": true, "contractors": true,
	"manufacturer": true, "manufacturers": true,
	"provider": true, "providers": true,
	"firm": true, "firms": true,
	"business": true, "businesses": true,
}

var webWords = map[string]bool{
	"latest": true, "current": true, "today": true, "now": true,
	"recent": true, "news": true, "weather": true, "trending": true,
	"breaking": true,
}

var webPhrases = []string{
	"stock price", "this week", "right now", "real-time", "real time",
}

// Follow-up words inherit the previous user turn's intent so "show me more"
// after a company lookup runs another lookup.
var followUpWords = map[string]bool{
	"more": true, "others": true, "another": true, "again": true,
}

// Classify is total: every message yields at least chat. Any keyword match
// wins, even an incidental one; an extra lookup costs one wasted call, never
// a wrong reply, because chat composes the final text either way.
func Classify(message string, recentHistory []store.Turn) Result {
	msg := strings.ToLower(strings.TrimSpace(message))
	if msg == "" {
		return Result{}
	}

	words := strings.FieldsFunc(msg, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '-'
	})

	var res Result
	followUp := false
	for _, w := range words {
		if companyWords[w] {
			res.CompanySearch = true
		}
		if webWords[w] {
			res.WebSearch = true
		}
		if followUpWords[w] {
			followUp = true
		}
	}
	for _, p := range webPhrases {
		if strings.Contains(msg, p) {
			res.WebSearch = true
		}
	}

	if followUp && !res.CompanySearch && !res.WebSearch {
		if prev, ok := lastUserTurn(recentHistory); ok {
			res = Classify(prev, nil)
		}
	}
	return res
}

func lastUserTurn(history []store.Turn) (string, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Speaker == store.SpeakerUser {
			return history[i].Text, true
		}
	}
	return "", false
}
