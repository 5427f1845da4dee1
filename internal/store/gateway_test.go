package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Turn{}, &RollingSummary{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestAppendTurn_AndLoadHistory(t *testing.T) {
	gw := NewGateway(openTestDB(t), nil)
	ctx := context.Background()

	for seq := uint64(1); seq <= 4; seq++ {
		speaker := SpeakerUser
		if seq%2 == 0 {
			speaker = SpeakerAssistant
		}
		err := gw.AppendTurn(ctx, &Turn{
			ConversationID: "conv-1",
			Seq:            seq,
			Speaker:        speaker,
			Text:           fmt.Sprintf("turn %d", seq),
		})
		if err != nil {
			t.Fatalf("append seq %d: %v", seq, err)
		}
	}

	turns, err := gw.LoadHistory(ctx, "conv-1")
	if err != nil {
		t.Fatalf("load history: %v", err)
	}
	if len(turns) != 4 {
		t.Fatalf("expected 4 turns, got %d", len(turns))
	}
	for i, turn := range turns {
		if turn.Seq != uint64(i+1) {
			t.Fatalf("turn %d has seq %d, want %d", i, turn.Seq, i+1)
		}
	}
}

func TestAppendTurn_DuplicateSeqIsConflict(t *testing.T) {
	gw := NewGateway(openTestDB(t), nil)
	ctx := context.Background()

	first := &Turn{ConversationID: "conv-1", Seq: 1, Speaker: SpeakerUser, Text: "hi"}
	if err := gw.AppendTurn(ctx, first); err != nil {
		t.Fatalf("first append: %v", err)
	}

	dup := &Turn{ConversationID: "conv-1", Seq: 1, Speaker: SpeakerAssistant, Text: "ghost"}
	err := gw.AppendTurn(ctx, dup)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	// Same seq in a different conversation is fine.
	other := &Turn{ConversationID: "conv-2", Seq: 1, Speaker: SpeakerUser, Text: "hello"}
	if err := gw.AppendTurn(ctx, other); err != nil {
		t.Fatalf("append other conversation: %v", err)
	}
}

func TestAppendTurn_CanceledContextFailsFast(t *testing.T) {
	gw := NewGateway(openTestDB(t), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := gw.AppendTurn(ctx, &Turn{ConversationID: "conv-1", Seq: 1, Speaker: SpeakerUser, Text: "hi"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	// Cancellation must short-circuit the backoff instead of sleeping
	// through the remaining attempts.
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("canceled append took %s", elapsed)
	}
}

func TestUpsertSummary_Overwrites(t *testing.T) {
	gw := NewGateway(openTestDB(t), nil)
	ctx := context.Background()

	if err := gw.UpsertSummary(ctx, "conv-1", "first digest"); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := gw.UpsertSummary(ctx, "conv-1", "second digest"); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	summary, found, err := gw.LoadSummary(ctx, "conv-1")
	if err != nil {
		t.Fatalf("load summary: %v", err)
	}
	if !found || summary != "second digest" {
		t.Fatalf("expected overwritten summary, got found=%v %q", found, summary)
	}
}

func TestLoadSummary_AbsentIsNotAnError(t *testing.T) {
	gw := NewGateway(openTestDB(t), nil)

	summary, found, err := gw.LoadSummary(context.Background(), "conv-none")
	if err != nil {
		t.Fatalf("load summary: %v", err)
	}
	if found || summary != "" {
		t.Fatalf("expected absent summary, got found=%v %q", found, summary)
	}
}

func TestListTurnsSince(t *testing.T) {
	gw := NewGateway(openTestDB(t), nil)
	ctx := context.Background()

	for seq := uint64(1); seq <= 6; seq++ {
		if err := gw.AppendTurn(ctx, &Turn{
			ConversationID: "conv-1", Seq: seq, Speaker: SpeakerUser, Text: "t",
		}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	turns, err := gw.ListTurnsSince(ctx, "conv-1", 4, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns after seq 4, got %d", len(turns))
	}
	if turns[0].Seq != 5 || turns[1].Seq != 6 {
		t.Fatalf("unexpected seqs: %d %d", turns[0].Seq, turns[1].Seq)
	}

	// Re-polling with the same cursor is idempotent.
	again, err := gw.ListTurnsSince(ctx, "conv-1", 4, 0)
	if err != nil {
		t.Fatalf("re-list: %v", err)
	}
	if len(again) != len(turns) {
		t.Fatalf("poll not idempotent: %d vs %d", len(again), len(turns))
	}
}
