// Package convo holds the durable conversation workflow: one state machine
// goroutine per live conversation, fed through a FIFO mailbox, with an idle
// watchdog and a token-bounded rolling summary. The machine is the only
// writer of its conversation's turns, which is what makes sequence numbers
// contiguous without locks.
package convo

import (
	"context"
	"errors"
	"time"

	"github.com/nisheshk/durable-chatbot/internal/intent"
	"github.com/nisheshk/durable-chatbot/internal/orchestrator"
	"github.com/nisheshk/durable-chatbot/internal/store"
)

var (
	// ErrTerminated means the machine's watchdog fired (or it was closed)
	// before the message was accepted. Callers re-submit against a fresh
	// machine; history is durable so nothing is lost.
	ErrTerminated = errors.New("convo: conversation terminated")

	// ErrMailboxFull is backpressure: the caller should retry later.
	ErrMailboxFull = errors.New("convo: mailbox full")
)

// Store is what the workflow needs from the persistence gateway.
type Store interface {
	AppendTurn(ctx context.Context, t *store.Turn) error
	UpsertSummary(ctx context.Context, conversationID, summary string) error
	LoadHistory(ctx context.Context, conversationID string) ([]store.Turn, error)
	LoadSummary(ctx context.Context, conversationID string) (string, bool, error)
}

// Orchestrator is what the workflow needs from the turn orchestration layer.
type Orchestrator interface {
	ProduceReply(ctx context.Context, res intent.Result, message string, history []store.Turn, summary string) orchestrator.Reply
	Summarize(ctx context.Context, existing string, turns []store.Turn) (string, error)
}

type Config struct {
	InactivityTimeout  time.Duration
	TurnTimeout        time.Duration
	SummaryTokenBudget int
	KeepRecentTurns    int
	MailboxSize        int
}

func (c Config) withDefaults() Config {
	if c.InactivityTimeout <= 0 {
		c.InactivityTimeout = 5 * time.Minute
	}
	if c.TurnTimeout <= 0 {
		c.TurnTimeout = 90 * time.Second
	}
	if c.SummaryTokenBudget <= 0 {
		c.SummaryTokenBudget = 1000
	}
	if c.KeepRecentTurns <= 0 {
		c.KeepRecentTurns = 4
	}
	if c.MailboxSize <= 0 {
		c.MailboxSize = 16
	}
	return c
}
