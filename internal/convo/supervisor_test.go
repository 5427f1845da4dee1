package convo

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestSupervisor_ManyConversationsStayIsolated(t *testing.T) {
	st := newMemStore()
	sup := NewSupervisor(st, &fakeOrch{}, testConfig())

	const conversations = 8
	const messages = 4

	var wg sync.WaitGroup
	for c := 0; c < conversations; c++ {
		for i := 0; i < messages; i++ {
			wg.Add(1)
			go func(c, i int) {
				defer wg.Done()
				convID := fmt.Sprintf("conv-%d", c)
				if err := sup.Submit(context.Background(), convID, fmt.Sprintf("msg %d", i)); err != nil {
					t.Errorf("%s submit %d: %v", convID, i, err)
				}
			}(c, i)
		}
	}
	wg.Wait()

	for c := 0; c < conversations; c++ {
		convID := fmt.Sprintf("conv-%d", c)
		turns := st.turnsFor(convID)
		if len(turns) != messages*2 {
			t.Fatalf("%s: expected %d turns, got %d", convID, messages*2, len(turns))
		}
		checkContiguous(t, turns)
		for _, turn := range turns {
			if turn.ConversationID != convID {
				t.Fatalf("turn leaked across conversations: %+v", turn)
			}
		}
	}
}

func TestSupervisor_ShutdownFoldsAllLiveConversations(t *testing.T) {
	st := newMemStore()
	sup := NewSupervisor(st, &fakeOrch{}, testConfig())

	for c := 0; c < 3; c++ {
		convID := fmt.Sprintf("conv-%d", c)
		if err := sup.Submit(context.Background(), convID, "hello"); err != nil {
			t.Fatalf("%s submit: %v", convID, err)
		}
	}
	if sup.ActiveConversations() != 3 {
		t.Fatalf("expected 3 active conversations, got %d", sup.ActiveConversations())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sup.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	if sup.ActiveConversations() != 0 {
		t.Fatalf("expected no active conversations after shutdown")
	}
	for c := 0; c < 3; c++ {
		convID := fmt.Sprintf("conv-%d", c)
		if st.summaryFor(convID) == "" {
			t.Fatalf("%s: shutdown must fold history into the summary", convID)
		}
	}
}

func TestSupervisor_SubmitAfterTerminationRetries(t *testing.T) {
	st := newMemStore()
	cfg := testConfig()
	cfg.InactivityTimeout = 25 * time.Millisecond
	sup := NewSupervisor(st, &fakeOrch{}, cfg)

	if err := sup.Submit(context.Background(), "conv-retry", "first"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitForIdle(t, sup)

	// The old machine is gone; a submit must transparently build a new one.
	if err := sup.Submit(context.Background(), "conv-retry", "second"); err != nil {
		t.Fatalf("submit after termination: %v", err)
	}
	turns := st.turnsFor("conv-retry")
	if len(turns) != 4 {
		t.Fatalf("expected 4 turns, got %d", len(turns))
	}
	checkContiguous(t, turns)
}
