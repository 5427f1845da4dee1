package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/nisheshk/durable-chatbot/internal/config"
	"github.com/nisheshk/durable-chatbot/internal/queue"
)

type fakeQueue struct {
	mu   sync.Mutex
	subs []queue.Submission
	err  error
}

func (f *fakeQueue) PublishSubmission(ctx context.Context, sub queue.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.subs = append(f.subs, sub)
	return nil
}

func (f *fakeQueue) published() []queue.Submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]queue.Submission(nil), f.subs...)
}

func newTestRouter(q *fakeQueue) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandler(config.Config{}, nil, q)
	r.POST("/conversations/:conversation_id/messages", h.SubmitMessage)
	return r
}

func postMessage(r *gin.Engine, conversationID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost,
		"/conversations/"+conversationID+"/messages", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSubmitMessage_Enqueues(t *testing.T) {
	q := &fakeQueue{}
	r := newTestRouter(q)

	w := postMessage(r, "conv-1", `{"message":"Find IT companies"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", w.Code, w.Body.String())
	}

	subs := q.published()
	if len(subs) != 1 {
		t.Fatalf("expected 1 published submission, got %d", len(subs))
	}
	if subs[0].ConversationID != "conv-1" || subs[0].Text != "Find IT companies" {
		t.Fatalf("unexpected submission: %+v", subs[0])
	}
	if subs[0].SubmitID == "" {
		t.Fatalf("submission missing submit id")
	}
}

func TestSubmitMessage_EmptyMessageIsAccepted(t *testing.T) {
	q := &fakeQueue{}
	r := newTestRouter(q)

	// An empty message is valid input; the worker answers it with the
	// clarification reply.
	w := postMessage(r, "conv-1", `{"message":""}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for empty message, got %d body=%s", w.Code, w.Body.String())
	}

	subs := q.published()
	if len(subs) != 1 || subs[0].Text != "" {
		t.Fatalf("empty message not enqueued: %+v", subs)
	}
}

func TestSubmitMessage_RejectsBadInput(t *testing.T) {
	q := &fakeQueue{}
	r := newTestRouter(q)

	if w := postMessage(r, "conv-1", `not json`); w.Code != http.StatusBadRequest {
		t.Fatalf("invalid json: expected 400, got %d", w.Code)
	}
	if w := postMessage(r, strings.Repeat("x", 65), `{"message":"hi"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("oversized conversation id: expected 400, got %d", w.Code)
	}
	long := strings.Repeat("a", 8193)
	if w := postMessage(r, "conv-1", `{"message":"`+long+`"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("oversized message: expected 400, got %d", w.Code)
	}
	if len(q.published()) != 0 {
		t.Fatalf("rejected requests must not publish: %+v", q.published())
	}
}
