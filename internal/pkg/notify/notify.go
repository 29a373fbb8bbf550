// Package notify broadcasts one kind of in-process sync-core event -- a
// signal flag rising -- to any number of listeners without
// the publisher blocking on them, the way the teacher's chain reader
// broadcasts new-head events to its waiters.
package notify

import (
	"github.com/cskr/pubsub"
)

// TopicSignal is the topic a ranksync.SignalKind's name is published under
// each time sig.Watcher observes that signal rise.
const TopicSignal = "signal"

// Hub is a small wrapper around a *pubsub.PubSub scoped to the sync core's
// own topics, so callers never juggle the topic strings directly.
type Hub struct {
	ps *pubsub.PubSub
}

// NewHub constructs a Hub. capacity bounds how many pending messages a slow
// subscriber may fall behind by before Pub starts blocking the publisher.
func NewHub(capacity int) *Hub {
	return &Hub{ps: pubsub.New(capacity)}
}

// PublishSignal announces that the named signal (one of "end_sim",
// "user_status", "alarm") has been observed locally.
func (h *Hub) PublishSignal(name string) {
	h.ps.Pub(name, TopicSignal)
}

// SubscribeSignals returns a channel that receives every subsequent
// PublishSignal call's name. Callers must UnsubscribeSignals when done.
func (h *Hub) SubscribeSignals() chan interface{} {
	return h.ps.Sub(TopicSignal)
}

// UnsubscribeSignals releases a channel obtained from SubscribeSignals.
func (h *Hub) UnsubscribeSignals(ch chan interface{}) {
	h.ps.Unsub(ch, TopicSignal)
}

// Shutdown closes every subscriber channel and stops the Hub.
func (h *Hub) Shutdown() {
	h.ps.Shutdown()
}
