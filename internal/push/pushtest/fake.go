// Package pushtest provides an in-memory push.Sender for tests.
package pushtest

import (
	"context"
	"fmt"
	"sync"

	"koinonia.app/notifier/internal/push"
)

// Sender records every message and fails tokens configured with FailToken.
type Sender struct {
	mu       sync.Mutex
	sent     []push.Message
	attempts map[string]int
	failures map[string][]error
	n        int
}

var _ push.Sender = (*Sender)(nil)

// New returns a sender that accepts every token.
func New() *Sender {
	return &Sender{
		attempts: make(map[string]int),
		failures: make(map[string][]error),
	}
}

// FailToken queues errors for token; each Send consumes one, and the last
// one repeats. Use push.NewSendError to set a provider code.
func (s *Sender) FailToken(token string, errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[token] = errs
}

// Send implements push.Sender.
func (s *Sender) Send(ctx context.Context, msg push.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[msg.Token]++
	if errs := s.failures[msg.Token]; len(errs) > 0 {
		err := errs[0]
		if len(errs) > 1 {
			s.failures[msg.Token] = errs[1:]
		}
		if err != nil {
			return "", err
		}
	}
	s.n++
	s.sent = append(s.sent, msg)
	return fmt.Sprintf("projects/test/messages/%d", s.n), nil
}

// Sent returns the accepted messages.
func (s *Sender) Sent() []push.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]push.Message, len(s.sent))
	copy(out, s.sent)
	return out
}

// SentTo returns accepted messages for token.
func (s *Sender) SentTo(token string) []push.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []push.Message
	for _, m := range s.sent {
		if m.Token == token {
			out = append(out, m)
		}
	}
	return out
}

// Attempts returns how many times token was sent to, including failures.
func (s *Sender) Attempts(token string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[token]
}
