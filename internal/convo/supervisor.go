package convo

import (
	"context"
	"errors"
	"sync"
)

// Supervisor owns the conversationID → machine map. It creates machines on
// first message, reattaches on subsequent ones, and drops entries when a
// machine terminates. Nothing else holds a mutable reference to a
// conversation's state.
type Supervisor struct {
	cfg   Config
	store Store
	orch  Orchestrator

	mu       sync.Mutex
	machines map[string]*Machine
}

func NewSupervisor(st Store, orch Orchestrator, cfg Config) *Supervisor {
	return &Supervisor{
		cfg:      cfg.withDefaults(),
		store:    st,
		orch:     orch,
		machines: make(map[string]*Machine),
	}
}

// Submit routes one user message to the conversation's machine and waits for
// the turn to settle. A nil return means both turns are persisted; a storage
// error means the turn failed and left no assistant record. A machine that
// terminated under us is replaced and the message re-submitted.
func (s *Supervisor) Submit(ctx context.Context, conversationID, text string) error {
	for attempt := 0; attempt < 3; attempt++ {
		m, err := s.getOrCreate(ctx, conversationID)
		if err != nil {
			return err
		}

		result := make(chan error, 1)
		if err := m.Enqueue(submission{text: text, result: result}); err != nil {
			if errors.Is(err, ErrTerminated) {
				s.removeIfCurrent(conversationID, m)
				continue
			}
			return err
		}

		select {
		case err := <-result:
			if errors.Is(err, ErrTerminated) {
				s.removeIfCurrent(conversationID, m)
				continue
			}
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return ErrTerminated
}

// Close terminates a live conversation explicitly, folding its history into
// the rolling summary. Closing an idle (not in memory) conversation is a
// no-op; its state is already durable.
func (s *Supervisor) Close(conversationID string) {
	s.mu.Lock()
	m, ok := s.machines[conversationID]
	s.mu.Unlock()
	if ok {
		m.Close()
	}
}

// Shutdown closes every live machine and waits for their final folds.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	machines := make([]*Machine, 0, len(s.machines))
	for _, m := range s.machines {
		machines = append(machines, m)
	}
	s.mu.Unlock()

	for _, m := range machines {
		m.Close()
	}
	for _, m := range machines {
		select {
		case <-m.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// ActiveConversations reports how many machines are live.
func (s *Supervisor) ActiveConversations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.machines)
}

func (s *Supervisor) getOrCreate(ctx context.Context, conversationID string) (*Machine, error) {
	s.mu.Lock()
	if m, ok := s.machines[conversationID]; ok {
		s.mu.Unlock()
		return m, nil
	}
	s.mu.Unlock()

	// Rehydrate outside the lock so a slow storage read does not block
	// unrelated conversations.
	m := newMachine(conversationID, s.cfg, s.store, s.orch, func(dead *Machine) {
		s.removeIfCurrent(conversationID, dead)
	})
	if err := m.rehydrate(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if existing, ok := s.machines[conversationID]; ok {
		// Lost the creation race; ours was never started, drop it.
		s.mu.Unlock()
		return existing, nil
	}
	s.machines[conversationID] = m
	s.mu.Unlock()

	m.start()
	return m, nil
}

func (s *Supervisor) removeIfCurrent(conversationID string, m *Machine) {
	s.mu.Lock()
	if s.machines[conversationID] == m {
		delete(s.machines, conversationID)
	}
	s.mu.Unlock()
}
