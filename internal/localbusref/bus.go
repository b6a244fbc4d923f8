// Package localbusref is a minimal, in-process reference implementation of
// the bridge.LocalBus / bridge.LocalBusConsumer contract. It exists so the
// bridge can be exercised standalone (tests, the reference
// cmd/bridged binary) without a production subject bus wired in; a real
// deployment supplies its own bus and only needs to satisfy the same two
// interfaces.
//
// Subject matching follows the common NATS-style token syntax: '*' matches
// exactly one dot-separated token, '>' matches one or more trailing tokens.
package localbusref

import (
	"strings"
	"sync"

	"github.com/pubsub-bridge/bridged/internal/bridge"
)

// Handler receives one published message.
type Handler func(subject, reply, payload []byte)

type patternSub struct {
	pattern string
	tokens  []string
	handler Handler
}

// Bus is a single-process subject bus. Safe for concurrent use; the bridge
// itself may live on its own event-loop goroutine while application code
// publishes/subscribes from others.
type Bus struct {
	mu sync.Mutex

	consumer bridge.LocalBusConsumer

	exact    map[string][]Handler
	patterns []patternSub

	aggregateSubjects map[string]bool
	aggregatePatterns map[string]bool
}

// New returns a Bus that notifies consumer of local subscribe/publish
// activity. consumer is typically a *bridge.Bridge.
func New(consumer bridge.LocalBusConsumer) *Bus {
	return &Bus{
		consumer:          consumer,
		exact:             make(map[string][]Handler),
		aggregateSubjects: make(map[string]bool),
		aggregatePatterns: make(map[string]bool),
	}
}

// Subscribe registers h for exact subject, notifying the bridge consumer of
// this local subscription so it can be advertised onto the fabric.
func (b *Bus) Subscribe(subject string, h Handler) {
	b.mu.Lock()
	b.exact[subject] = append(b.exact[subject], h)
	rcnt := len(b.exact[subject])
	b.mu.Unlock()

	b.consumer.OnSub(bridge.HashSubject([]byte(subject)), []byte(subject), rcnt, 'S', nil)
}

// SubscribePattern registers h for a wildcard pattern, notifying the bridge
// consumer of this local subscription.
func (b *Bus) SubscribePattern(pattern string, h Handler) {
	b.mu.Lock()
	b.patterns = append(b.patterns, patternSub{pattern: pattern, tokens: strings.Split(pattern, "."), handler: h})
	rcnt := len(b.patterns)
	b.mu.Unlock()

	b.consumer.OnPsub(bridge.HashSubject([]byte(patternPrefix(pattern))), []byte(pattern), rcnt)
}

// PublishLocal delivers payload to every local handler matching subject, and
// -- if the bridge holds an aggregate route for it -- forwards it to the
// bridge for relay onto the fabric. This is the entry point for locally
// originated publishes; the bridge's own relayed publishes arrive through
// Publish instead and are never re-forwarded (self-loop suppression).
func (b *Bus) PublishLocal(subject string, reply, payload []byte) {
	b.deliver(subject, reply, payload)

	b.mu.Lock()
	aggregate := b.aggregateSubjects[subject] || b.matchesAggregatePattern(subject)
	b.mu.Unlock()

	if aggregate {
		b.consumer.OnMsg([]byte(subject), reply, payload)
	}
}

func (b *Bus) matchesAggregatePattern(subject string) bool {
	for pattern := range b.aggregatePatterns {
		if matchPattern(strings.Split(pattern, "."), strings.Split(subject, ".")) {
			return true
		}
	}
	return false
}

func (b *Bus) deliver(subject string, reply, payload []byte) {
	b.mu.Lock()
	handlers := append([]Handler(nil), b.exact[subject]...)
	subjectTokens := strings.Split(subject, ".")
	for _, p := range b.patterns {
		if matchPattern(p.tokens, subjectTokens) {
			handlers = append(handlers, p.handler)
		}
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h([]byte(subject), reply, payload)
	}
}

// matchPattern reports whether subject matches a pattern already split into
// tokens. '*' consumes exactly one token; '>' consumes every remaining
// token and must be the pattern's last token.
func matchPattern(pattern, subject []string) bool {
	for i, tok := range pattern {
		if tok == ">" {
			return i < len(subject)
		}
		if i >= len(subject) {
			return false
		}
		if tok != "*" && tok != subject[i] {
			return false
		}
	}
	return len(pattern) == len(subject)
}

func patternPrefix(pattern string) string {
	for i, c := range pattern {
		if c == '*' || c == '>' {
			return pattern[:i]
		}
	}
	return pattern
}

// -------------------------------------------------------------------------
// bridge.LocalBus (producer-side surface)
// -------------------------------------------------------------------------

func (b *Bus) AddSubRoute(subject []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.aggregateSubjects[string(subject)] = true
}

func (b *Bus) DelSubRoute(subject []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.aggregateSubjects, string(subject))
}

func (b *Bus) AddPatternRoute(pattern []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.aggregatePatterns[string(pattern)] = true
}

func (b *Bus) DelPatternRoute(pattern []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.aggregatePatterns, string(pattern))
}

func (b *Bus) NotifySub(rcnt int, flag byte, subject, reply []byte)  {}
func (b *Bus) NotifyUnsub(rcnt int, subject []byte)                 {}
func (b *Bus) NotifyPsub(rcnt int, pattern []byte)                  {}
func (b *Bus) NotifyPunsub(rcnt int, pattern []byte)                {}

// Publish delivers a remote-originated message to local subscribers only;
// it never calls back into the consumer, so the bridge's own relayed
// publishes cannot loop back onto the fabric.
func (b *Bus) Publish(subject, reply, payload []byte) {
	b.deliver(string(subject), reply, payload)
}
