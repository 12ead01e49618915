package confirm

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeTimer struct {
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.stopped = true
	return true
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (f *fakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{fn: fn}
	f.timers = append(f.timers, t)
	return t
}

func (f *fakeClock) Fire() {
	f.mu.Lock()
	pending := append([]*fakeTimer{}, f.timers...)
	f.timers = nil
	f.mu.Unlock()
	for _, t := range pending {
		if !t.stopped {
			t.fn()
		}
	}
}

type fakeConversation struct {
	mu      sync.Mutex
	posted  []string
	deleted []string
	replies chan Reply
}

func newFakeConversation() *fakeConversation {
	return &fakeConversation{replies: make(chan Reply, 1)}
}

func (c *fakeConversation) Post(content string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.posted = append(c.posted, content)
	return "prompt-1", nil
}

func (c *fakeConversation) Delete(messageID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = append(c.deleted, messageID)
}

func (c *fakeConversation) Replies() <-chan Reply { return c.replies }

func (c *fakeConversation) deletedIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string{}, c.deleted...)
}

func newTestGate() (*Gate, *fakeClock) {
	gate := New()
	clock := &fakeClock{}
	gate.WithClock(clock)
	return gate, clock
}

func TestAwaitConfirmedAnyCase(t *testing.T) {
	for _, content := range []string{"confirm", "CONFIRM", "Confirm", "!confirm", " !CoNfIrM "} {
		gate, _ := newTestGate()
		conv := newFakeConversation()
		conv.replies <- Reply{MessageID: "reply-1", Content: content}

		if got := gate.Await(context.Background(), conv, "change length?", 2*time.Minute); got != Confirmed {
			t.Fatalf("reply %q: expected Confirmed, got %v", content, got)
		}

		deleted := conv.deletedIDs()
		if len(deleted) != 2 || deleted[0] != "reply-1" || deleted[1] != "prompt-1" {
			t.Fatalf("reply %q: expected reply and prompt deleted, got %v", content, deleted)
		}
	}
}

func TestAwaitDeclinedOnOtherReply(t *testing.T) {
	gate, _ := newTestGate()
	conv := newFakeConversation()
	conv.replies <- Reply{MessageID: "reply-1", Content: "no way"}

	if got := gate.Await(context.Background(), conv, "change length?", 2*time.Minute); got != Declined {
		t.Fatalf("expected Declined, got %v", got)
	}
	deleted := conv.deletedIDs()
	if len(deleted) != 2 {
		t.Fatalf("expected reply and prompt deleted, got %v", deleted)
	}
}

func TestAwaitTimedOut(t *testing.T) {
	gate, clock := newTestGate()
	conv := newFakeConversation()

	done := make(chan Outcome, 1)
	go func() {
		done <- gate.Await(context.Background(), conv, "override ban?", 5*time.Minute)
	}()

	for {
		clock.mu.Lock()
		armed := len(clock.timers) > 0
		clock.mu.Unlock()
		if armed {
			break
		}
		time.Sleep(time.Millisecond)
	}
	clock.Fire()

	if got := <-done; got != TimedOut {
		t.Fatalf("expected TimedOut, got %v", got)
	}
	deleted := conv.deletedIDs()
	if len(deleted) != 1 || deleted[0] != "prompt-1" {
		t.Fatalf("expected prompt cleaned up on timeout, got %v", deleted)
	}
}
