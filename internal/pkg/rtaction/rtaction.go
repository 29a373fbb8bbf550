// Package rtaction implements the RealTimeAction registry: the callbacks a
// SyncManager invokes when a signal (or a checkpoint/heartbeat timer) is
// observed, per spec.md §4.5.3 and §6.
package rtaction

import (
	"sync"

	logging "github.com/ipfs/go-log"
)

var log = logging.Logger("sync.rtaction")

// Kind names one of the four RealTimeAction slots the sync core drives.
type Kind int

const (
	EndOfRun Kind = iota
	StatusPrint
	Checkpoint
	Heartbeat
)

func (k Kind) String() string {
	switch k {
	case EndOfRun:
		return "end-of-run"
	case StatusPrint:
		return "status-print"
	case Checkpoint:
		return "checkpoint"
	case Heartbeat:
		return "heartbeat"
	default:
		return "unknown"
	}
}

// Registry maps each Kind to a registered callback, invoked at most once
// per round for a given Kind.
type Registry struct {
	mu        sync.Mutex
	callbacks map[Kind]func()
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{callbacks: make(map[Kind]func())}
}

// Register installs cb for kind, replacing any previous registration.
func (r *Registry) Register(kind Kind, cb func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks[kind] = cb
}

// Invoke runs the callback registered for kind, if any, logging when none
// is registered rather than failing the round.
func (r *Registry) Invoke(kind Kind) {
	r.mu.Lock()
	cb := r.callbacks[kind]
	r.mu.Unlock()
	if cb == nil {
		log.Infof("rtaction: no callback registered for %s, ignoring", kind)
		return
	}
	cb()
}
