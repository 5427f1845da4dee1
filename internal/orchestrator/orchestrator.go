// Package orchestrator turns a classified message into one reply. Specialized
// lookups fan out concurrently, their payloads augment a single chat call,
// and every failure mode collapses into reply text: capability errors never
// reach the end caller.
package orchestrator

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/nisheshk/durable-chatbot/internal/capability"
	"github.com/nisheshk/durable-chatbot/internal/intent"
	"github.com/nisheshk/durable-chatbot/internal/store"
)

type ChatInvoker interface {
	Chat(ctx context.Context, prompt string) (string, error)
}

type WebSearcher interface {
	Search(ctx context.Context, query string) (string, error)
}

type CompanySearcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// Reply is the settled outcome of one turn's orchestration. Applied lists
// the capabilities whose output actually reached the reply. Degraded means
// the canned apology was returned because chat itself failed.
type Reply struct {
	Text     string
	Applied  []intent.Capability
	Degraded bool
}

type Timeouts struct {
	Chat          time.Duration
	WebSearch     time.Duration
	CompanySearch time.Duration
}

type Orchestrator struct {
	chat      ChatInvoker
	web       WebSearcher
	companies CompanySearcher
	timeouts  Timeouts

	// sem bounds in-flight capability calls across all conversations.
	sem chan struct{}

	// retryDelay is the pause before the single chat retry.
	retryDelay time.Duration
}

func New(chat ChatInvoker, web WebSearcher, companies CompanySearcher, maxConcurrent int, timeouts Timeouts) *Orchestrator {
	if maxConcurrent <= 0 {
		maxConcurrent = 20
	}
	if timeouts.Chat <= 0 {
		timeouts.Chat = 30 * time.Second
	}
	if timeouts.WebSearch <= 0 {
		timeouts.WebSearch = 15 * time.Second
	}
	if timeouts.CompanySearch <= 0 {
		timeouts.CompanySearch = 15 * time.Second
	}
	return &Orchestrator{
		chat:       chat,
		web:        web,
		companies:  companies,
		timeouts:   timeouts,
		sem:        make(chan struct{}, maxConcurrent),
		retryDelay: time.Second,
	}
}

type lookupOutcome struct {
	tag     intent.Capability
	payload string
	err     error
	latency time.Duration
}

// ProduceReply runs the turn: parallel lookups, then one chat call composed
// from whatever succeeded. It always returns a usable reply.
func (o *Orchestrator) ProduceReply(ctx context.Context, res intent.Result, message string, history []store.Turn, summary string) Reply {
	if strings.TrimSpace(message) == "" {
		return Reply{Text: ClarificationReply, Applied: []intent.Capability{intent.CapChat}}
	}

	outcomes := o.runLookups(ctx, res, message)

	applied := []intent.Capability{intent.CapChat}
	var contexts []string
	requested, failed := 0, 0
	for _, out := range outcomes {
		requested++
		if out.err != nil {
			failed++
			log.Printf("capability failed tag=%s retryable=%v latency=%s err=%v",
				out.tag, capability.IsRetryable(out.err), out.latency, out.err)
			continue
		}
		applied = append(applied, out.tag)
		contexts = append(contexts, out.payload)
	}

	// A lookup-only failure never surfaces as an error: fall back to plain
	// chat with a note instead.
	lookupFailed := requested > 0 && failed == requested
	prompt := buildChatPrompt(message, summary, history, strings.Join(contexts, "\n\n"), lookupFailed)

	text, err := o.chatWithRetry(ctx, prompt)
	if err != nil {
		log.Printf("chat failed after retry err=%v", err)
		return Reply{Text: ApologyReply, Applied: applied, Degraded: true}
	}
	return Reply{Text: text, Applied: applied}
}

// Summarize folds turns (plus any existing summary) into a fresh two-sentence
// digest, reusing the chat capability and its retry policy.
func (o *Orchestrator) Summarize(ctx context.Context, existing string, turns []store.Turn) (string, error) {
	return o.chatWithRetry(ctx, buildSummaryPrompt(existing, turns))
}

func (o *Orchestrator) runLookups(ctx context.Context, res intent.Result, message string) []lookupOutcome {
	type job struct {
		tag     intent.Capability
		timeout time.Duration
		invoke  func(context.Context, string) (string, error)
	}

	var jobs []job
	if res.CompanySearch {
		jobs = append(jobs, job{intent.CapCompanySearch, o.timeouts.CompanySearch, o.companies.Search})
	}
	if res.WebSearch {
		jobs = append(jobs, job{intent.CapWebSearch, o.timeouts.WebSearch, o.web.Search})
	}
	if len(jobs) == 0 {
		return nil
	}

	results := make(chan lookupOutcome, len(jobs))
	for _, j := range jobs {
		go func(j job) {
			o.sem <- struct{}{}
			defer func() { <-o.sem }()

			cctx, cancel := context.WithTimeout(ctx, j.timeout)
			defer cancel()

			start := time.Now()
			payload, err := j.invoke(cctx, message)
			results <- lookupOutcome{tag: j.tag, payload: payload, err: err, latency: time.Since(start)}
		}(j)
	}

	// Wait for all to settle; each call is already bounded by its own
	// timeout, so this wait is bounded by the max of them.
	outcomes := make([]lookupOutcome, 0, len(jobs))
	for range jobs {
		outcomes = append(outcomes, <-results)
	}
	return outcomes
}

// chatWithRetry invokes chat once, with exactly one retry for retryable
// failures. Permanent failures fail immediately.
func (o *Orchestrator) chatWithRetry(ctx context.Context, prompt string) (string, error) {
	text, err := o.invokeChat(ctx, prompt)
	if err == nil {
		return text, nil
	}
	if !capability.IsRetryable(err) || ctx.Err() != nil {
		return "", err
	}

	select {
	case <-time.After(o.retryDelay):
	case <-ctx.Done():
		return "", err
	}
	return o.invokeChat(ctx, prompt)
}

func (o *Orchestrator) invokeChat(ctx context.Context, prompt string) (string, error) {
	o.sem <- struct{}{}
	defer func() { <-o.sem }()

	cctx, cancel := context.WithTimeout(ctx, o.timeouts.Chat)
	defer cancel()
	return o.chat.Chat(cctx, prompt)
}
