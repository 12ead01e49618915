package confirm

import (
	"context"
	"strings"
	"time"
)

type Outcome int

const (
	Confirmed Outcome = iota
	Declined
	TimedOut
)

type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type Timer interface {
	Stop() bool
}

type realClock struct{}

type realTimer struct{ t *time.Timer }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return realTimer{t: time.AfterFunc(d, f)}
}

func (t realTimer) Stop() bool { return t.t.Stop() }

type Reply struct {
	MessageID string
	Content   string
}

// Conversation is a single moderator-facing exchange. The gate posts its
// question through it, reads the next reply from it, and removes both
// messages before returning.
type Conversation interface {
	Post(content string) (messageID string, err error)
	Delete(messageID string)
	Replies() <-chan Reply
}

// Gate is a single-use barrier that blocks an in-flight action until the
// requesting moderator confirms, declines, or the timeout elapses. It
// mutates nothing; it only reports the outcome.
type Gate struct {
	clock Clock
}

func New() *Gate {
	return &Gate{clock: realClock{}}
}

func (g *Gate) WithClock(clock Clock) {
	g.clock = clock
}

func (g *Gate) Await(ctx context.Context, conv Conversation, question string, timeout time.Duration) Outcome {
	promptID, err := conv.Post(question)
	if err != nil {
		return Declined
	}
	defer conv.Delete(promptID)

	expired := make(chan struct{})
	timer := g.clock.AfterFunc(timeout, func() { close(expired) })
	defer timer.Stop()

	select {
	case reply, ok := <-conv.Replies():
		if !ok {
			return Declined
		}
		if reply.MessageID != "" {
			conv.Delete(reply.MessageID)
		}
		if isAffirmative(reply.Content) {
			return Confirmed
		}
		return Declined
	case <-expired:
		return TimedOut
	case <-ctx.Done():
		return TimedOut
	}
}

func isAffirmative(content string) bool {
	token := strings.ToLower(strings.TrimSpace(content))
	return token == "confirm" || token == "!confirm"
}
