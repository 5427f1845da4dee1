package convo

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/nisheshk/durable-chatbot/internal/intent"
	"github.com/nisheshk/durable-chatbot/internal/orchestrator"
	"github.com/nisheshk/durable-chatbot/internal/store"
)

type submission struct {
	text string
	// result receives exactly one value: nil once both turns are persisted,
	// or the storage error that failed the turn. Buffered so the machine
	// never blocks on a departed caller.
	result chan error
}

// Machine is the per-conversation state machine. All state below the mutex
// line is owned by the run goroutine; callers interact only through Enqueue
// and Close.
type Machine struct {
	conversationID string
	cfg            Config
	store          Store
	orch           Orchestrator
	onTerminate    func(*Machine)

	mailbox   chan submission
	closing   chan struct{}
	closeOnce sync.Once
	done      chan struct{}

	mu         sync.Mutex
	terminated bool

	// owned by the run goroutine
	history []store.Turn
	summary string
	tokens  int
	nextSeq uint64
}

func newMachine(conversationID string, cfg Config, st Store, orch Orchestrator, onTerminate func(*Machine)) *Machine {
	cfg = cfg.withDefaults()
	return &Machine{
		conversationID: conversationID,
		cfg:            cfg,
		store:          st,
		orch:           orch,
		onTerminate:    onTerminate,
		mailbox:        make(chan submission, cfg.MailboxSize),
		closing:        make(chan struct{}),
		done:           make(chan struct{}),
		nextSeq:        1,
	}
}

// rehydrate loads durable state. Creation and resume-after-restart are the
// same path: the map starts empty and any prior history is just read back.
func (m *Machine) rehydrate(ctx context.Context) error {
	turns, err := m.store.LoadHistory(ctx, m.conversationID)
	if err != nil {
		return err
	}
	summary, ok, err := m.store.LoadSummary(ctx, m.conversationID)
	if err != nil {
		return err
	}

	if len(turns) > 0 {
		m.nextSeq = turns[len(turns)-1].Seq + 1
	}
	if ok {
		m.summary = summary
		// Older turns are already folded into the summary; keep only the
		// recent tail verbatim.
		if len(turns) > m.cfg.KeepRecentTurns {
			turns = turns[len(turns)-m.cfg.KeepRecentTurns:]
		}
	}
	m.history = append([]store.Turn(nil), turns...)
	m.tokens = historyTokens(m.history)
	return nil
}

func (m *Machine) start() {
	go m.run()
}

// Enqueue queues a message FIFO behind whatever is in flight. It never
// blocks: a full mailbox or a terminated machine is reported to the caller.
func (m *Machine) Enqueue(sub submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.terminated {
		return ErrTerminated
	}
	select {
	case m.mailbox <- sub:
		return nil
	default:
		return ErrMailboxFull
	}
}

// Close requests termination with a final summary fold.
func (m *Machine) Close() {
	m.closeOnce.Do(func() { close(m.closing) })
}

// Done is closed once the machine has terminated and released its state.
func (m *Machine) Done() <-chan struct{} { return m.done }

func (m *Machine) run() {
	timer := time.NewTimer(m.cfg.InactivityTimeout)
	defer timer.Stop()

	for {
		select {
		case sub := <-m.mailbox:
			sub.result <- m.processTurn(sub.text)
			resetTimer(timer, m.cfg.InactivityTimeout)

		case <-timer.C:
			// A message racing the watchdog wins.
			select {
			case sub := <-m.mailbox:
				sub.result <- m.processTurn(sub.text)
				resetTimer(timer, m.cfg.InactivityTimeout)
				continue
			default:
			}
			log.Printf("conversation idle, terminating conversation=%s", m.conversationID)
			m.terminate()
			return

		case <-m.closing:
			m.terminate()
			return
		}
	}
}

// processTurn runs one message through classify → orchestrate → persist.
// Exactly one outcome per message: a persisted assistant turn, or a surfaced
// storage error. Orchestration failures degrade into reply text upstream and
// never land here as errors.
func (m *Machine) processTurn(text string) error {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.TurnTimeout)
	defer cancel()

	prior := m.history

	userTurn := store.Turn{
		ConversationID: m.conversationID,
		Seq:            m.nextSeq,
		Speaker:        store.SpeakerUser,
		Text:           text,
		CreatedAt:      time.Now(),
	}
	if err := m.store.AppendTurn(ctx, &userTurn); err != nil {
		return err
	}
	m.nextSeq++
	m.history = append(m.history, userTurn)
	m.tokens += orchestrator.EstimateTokens(text)

	res := intent.Classify(text, prior)
	reply := m.orch.ProduceReply(ctx, res, text, prior, m.summary)
	if reply.Degraded {
		log.Printf("degraded reply conversation=%s seq=%d", m.conversationID, m.nextSeq)
	}

	// The persist runs on its own deadline: a turn that spent its whole
	// budget in orchestration still records its degraded reply.
	pctx, pcancel := context.WithTimeout(context.Background(), m.cfg.TurnTimeout)
	defer pcancel()

	assistantTurn := store.Turn{
		ConversationID: m.conversationID,
		Seq:            m.nextSeq,
		Speaker:        store.SpeakerAssistant,
		Text:           reply.Text,
		CreatedAt:      time.Now(),
	}
	if err := m.store.AppendTurn(pctx, &assistantTurn); err != nil {
		// nextSeq is not advanced: the sequence stays gapless and the next
		// turn's user message takes this number.
		return err
	}
	m.nextSeq++
	m.history = append(m.history, assistantTurn)
	m.tokens += orchestrator.EstimateTokens(reply.Text)

	m.maybeFold(pctx)
	return nil
}

// maybeFold compacts the oldest unsummarized turns into the rolling summary
// once the token estimate exceeds the budget, keeping the recent tail
// verbatim. A failed fold is skipped and retried after the next turn.
func (m *Machine) maybeFold(ctx context.Context) {
	if m.tokens <= m.cfg.SummaryTokenBudget {
		return
	}
	keep := m.cfg.KeepRecentTurns
	if len(m.history) <= keep {
		return
	}
	fold := m.history[:len(m.history)-keep]

	summary, err := m.orch.Summarize(ctx, m.summary, fold)
	if err != nil {
		log.Printf("summary fold failed conversation=%s err=%v", m.conversationID, err)
		return
	}
	if err := m.store.UpsertSummary(ctx, m.conversationID, summary); err != nil {
		log.Printf("summary persist failed conversation=%s err=%v", m.conversationID, err)
		return
	}
	m.summary = summary
	m.history = append([]store.Turn(nil), m.history[len(m.history)-keep:]...)
	m.tokens = historyTokens(m.history)
}

// terminate is absorbing: refuse queued work, fold what remains into the
// summary, release state. Only the in-memory cache is lost.
func (m *Machine) terminate() {
	m.mu.Lock()
	m.terminated = true
	m.mu.Unlock()

	// Anything queued behind the termination decision is bounced; the
	// supervisor re-submits against a fresh machine.
	for {
		select {
		case sub := <-m.mailbox:
			sub.result <- ErrTerminated
			continue
		default:
		}
		break
	}

	m.finalFold()
	close(m.done)
	if m.onTerminate != nil {
		m.onTerminate(m)
	}
}

// finalFold summarizes all remaining history so a later rehydration starts
// from a complete digest.
func (m *Machine) finalFold() {
	if len(m.history) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.TurnTimeout)
	defer cancel()

	summary, err := m.orch.Summarize(ctx, m.summary, m.history)
	if err != nil {
		log.Printf("final summary failed conversation=%s err=%v", m.conversationID, err)
		return
	}
	if err := m.store.UpsertSummary(ctx, m.conversationID, summary); err != nil {
		log.Printf("final summary persist failed conversation=%s err=%v", m.conversationID, err)
		return
	}
	m.summary = summary
}

func historyTokens(turns []store.Turn) int {
	total := 0
	for _, t := range turns {
		total += orchestrator.EstimateTokens(t.Text)
	}
	return total
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
