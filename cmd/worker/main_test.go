package main

import (
	"context"
	"fmt"
	"testing"

	"github.com/nisheshk/durable-chatbot/internal/convo"
	"github.com/nisheshk/durable-chatbot/internal/store"
)

func TestShouldRequeue(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"mailbox full", convo.ErrMailboxFull, true},
		{"shutdown cancellation", fmt.Errorf("submit: %w", context.Canceled), true},
		{"storage unavailable", fmt.Errorf("%w: append turn", store.ErrUnavailable), false},
		{"terminated", convo.ErrTerminated, false},
	}
	for _, tc := range cases {
		if got := shouldRequeue(tc.err); got != tc.want {
			t.Errorf("%s: shouldRequeue=%v, want %v", tc.name, got, tc.want)
		}
	}
}
