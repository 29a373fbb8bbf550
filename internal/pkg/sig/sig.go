// Package sig wires OS signals into the sync core's in-band signal flags.
// SIGINT and SIGTERM request an early end of run, SIGUSR1 requests a status
// print, and SIGUSR2 requests a checkpoint/heartbeat, matching spec.md §6. A
// handler only raises the local flag; it becomes globally visible, and its
// RealTimeAction fires, only once the next rank-sync round completes its
// allreduce -- signal handlers never call into the sync core directly. The
// same Watcher also drives a synthetic heartbeat alarm off a clockwork.Clock,
// so the checkpoint/heartbeat cadence is deterministic and fast under test
// with a clockwork.NewFakeClock instead of real wall time.
package sig

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jbenet/goprocess"
	"github.com/jonboulle/clockwork"

	logging "github.com/ipfs/go-log"

	"github.com/filecoin-project/vortex-sync/internal/pkg/notify"
	"github.com/filecoin-project/vortex-sync/internal/pkg/ranksync"
)

var log = logging.Logger("sync.sig")

// Watcher relays OS signals, plus a synthetic heartbeat alarm, into a
// ranksync.Signals for every local thread's RankSync to see. One Watcher per
// process (rank) is enough; every thread on the rank shares the same
// RankSync and therefore the same Signals.
type Watcher struct {
	signals           *ranksync.Signals
	hub               *notify.Hub
	clock             clockwork.Clock
	heartbeatInterval time.Duration

	ch   chan os.Signal
	proc goprocess.Process
}

// NewWatcher constructs a Watcher that will raise flags on signals once
// Start is called. hub may be nil, in which case signal observations are not
// broadcast. clock defaults to clockwork.NewRealClock() when nil; pass a
// clockwork.NewFakeClock() in tests to drive the heartbeat deterministically.
// A zero heartbeatInterval disables the synthetic alarm entirely, leaving
// SIGUSR2 and SIGALRM as the only sources of SignalAlarm.
func NewWatcher(signals *ranksync.Signals, hub *notify.Hub, clock clockwork.Clock, heartbeatInterval time.Duration) *Watcher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Watcher{
		signals:           signals,
		hub:               hub,
		clock:             clock,
		heartbeatInterval: heartbeatInterval,
		ch:                make(chan os.Signal, 8),
	}
}

// Start registers the handled signals and begins relaying them, plus the
// synthetic heartbeat, on a goprocess.Process so every background goroutine
// this Watcher owns tears down as a single unit on Stop. It returns
// immediately.
func (w *Watcher) Start() {
	signal.Notify(w.ch, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2, syscall.SIGALRM)
	w.proc = goprocess.Go(w.run)
}

// Stop stops relaying signals and blocks until the background process has
// torn down.
func (w *Watcher) Stop() error {
	signal.Stop(w.ch)
	return w.proc.Close()
}

func (w *Watcher) run(proc goprocess.Process) {
	var ticks <-chan time.Time
	if w.heartbeatInterval > 0 {
		ticker := w.clock.NewTicker(w.heartbeatInterval)
		defer ticker.Stop()
		ticks = ticker.Chan()
	}
	for {
		select {
		case s := <-w.ch:
			w.handle(s)
		case <-ticks:
			log.Debugf("sig: heartbeat interval elapsed, requesting checkpoint/heartbeat")
			w.raise(ranksync.SignalAlarm, "alarm")
		case <-proc.Closing():
			return
		}
	}
}

func (w *Watcher) handle(s os.Signal) {
	switch s {
	case syscall.SIGINT, syscall.SIGTERM:
		log.Infof("sig: received %s, requesting end of run", s)
		w.raise(ranksync.SignalEndSim, "end_sim")
	case syscall.SIGUSR1:
		log.Infof("sig: received %s, requesting status print", s)
		w.raise(ranksync.SignalUserStatus, "user_status")
	case syscall.SIGUSR2, syscall.SIGALRM:
		log.Infof("sig: received %s, requesting checkpoint/heartbeat", s)
		w.raise(ranksync.SignalAlarm, "alarm")
	default:
		log.Warnf("sig: ignoring unhandled signal %s", s)
	}
}

func (w *Watcher) raise(kind ranksync.SignalKind, name string) {
	w.signals.Set(kind)
	if w.hub != nil {
		w.hub.PublishSignal(name)
	}
}
