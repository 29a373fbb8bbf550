// Command simkernel is a minimal demonstration binary exercising the full
// sync-core dependency graph end to end: two in-process ranks, one
// cross-rank Link, register_link -> SyncManager.Execute -> termination.
// It is deliberately small; production wiring (the component factory, the
// partitioner, CLI option parsing) is out of scope per spec.md §1.
package main

import (
	"fmt"
	"os"

	logging "github.com/ipfs/go-log"
	"github.com/spf13/viper"

	"github.com/filecoin-project/vortex-sync/internal/pkg/barrier"
	"github.com/filecoin-project/vortex-sync/internal/pkg/clock"
	"github.com/filecoin-project/vortex-sync/internal/pkg/config"
	"github.com/filecoin-project/vortex-sync/internal/pkg/event"
	"github.com/filecoin-project/vortex-sync/internal/pkg/exitaction"
	"github.com/filecoin-project/vortex-sync/internal/pkg/link"
	"github.com/filecoin-project/vortex-sync/internal/pkg/notify"
	"github.com/filecoin-project/vortex-sync/internal/pkg/ranksync"
	"github.com/filecoin-project/vortex-sync/internal/pkg/rtaction"
	"github.com/filecoin-project/vortex-sync/internal/pkg/sig"
	"github.com/filecoin-project/vortex-sync/internal/pkg/syncmanager"
	"github.com/filecoin-project/vortex-sync/internal/pkg/threadsync"
	"github.com/filecoin-project/vortex-sync/internal/pkg/timelord"
	"github.com/filecoin-project/vortex-sync/internal/pkg/timevortex"
	"github.com/filecoin-project/vortex-sync/internal/pkg/transport/local"
	"github.com/filecoin-project/vortex-sync/internal/pkg/wire"
)

var log = logging.Logger("simkernel")

// sinkHandler is the toy "component" every event in this demo is delivered
// to; it records arrivals and releases its ExitAction reference once its
// one expected event has been delivered, so the demo run terminates.
type sinkHandler struct {
	rank     int
	exit     *exitaction.ExitAction
	received []uint64
}

func (s *sinkHandler) Push(e *event.Event) {
	s.received = append(s.received, e.DeliveryTime)
	log.Infof("simkernel: rank=%d received event delivery_time=%d", s.rank, e.DeliveryTime)
	s.exit.Decrement(e.DeliveryTime)
}

func loadConfig() (*config.Config, error) {
	v := viper.New()
	config.SetDefaults(v)
	v.Set("rank_count", 2)
	v.Set("threads_per_rank", 1)
	v.Set("max_period", 10)
	v.Set("variant", string(config.VariantSerial))
	return config.Load(v)
}

func main() {
	if err := run(); err != nil {
		log.Errorf("simkernel: %s", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// TimeLord is initialized exactly once, before any rank's goroutine
	// starts, and is read-only for the remainder of the run: every
	// Link below resolves its DefaultTimeBase through this same
	// process-global registry.
	if err := timelord.Global().Init("1ps"); err != nil {
		return err
	}

	cluster := local.NewCluster(cfg.RankCount)

	doneCh := make(chan struct{}, cfg.RankCount)
	errCh := make(chan error, cfg.RankCount)

	for rank := 0; rank < cfg.RankCount; rank++ {
		rank := rank
		go func() {
			// Each rank tracks the allreduce's result in its own local
			// variable; AllreduceSum already folds in every other rank's
			// count, so nothing needs to be shared across goroutines.
			exitCount := exitaction.GlobalExitCount(0)
			errCh <- runRank(cfg, cluster, rank, &exitCount)
			doneCh <- struct{}{}
		}()
	}

	var firstErr error
	for i := 0; i < cfg.RankCount; i++ {
		<-doneCh
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// runRank builds the sync core for a single rank (one thread, matching
// seed scenario 1 in spec.md §8) and drives its TimeVortex until the
// StopAction sentinel fires.
func runRank(cfg *config.Config, cluster *local.Cluster, rank int, exitCount *exitaction.GlobalExitCount) error {
	tr := cluster.Transport(rank)
	serializer := wire.NewMsgpackSerializer()

	vortex := timevortex.New()
	ex := exitaction.New(1)
	vortex.Insert(&ex.Activity)

	rankBar := barrier.New(cfg.ThreadsPerRank)
	rs := ranksync.NewSerial(tr, serializer, cfg.MaxPeriod, cfg.ThreadsPerRank)
	ts := threadsync.New(uint32(rank), 0, nil, cfg.InterthreadMinLatency, threadsync.StrategySimpleSkip, barrier.New(cfg.ThreadsPerRank))

	sink := &sinkHandler{rank: rank, exit: ex}
	const linkTag = 1
	var l *link.Link
	var err error
	if rank == 0 {
		peerRank := 1
		outQ := rs.RegisterLink(ranksync.RemoteThread{Rank: peerRank, Thread: 0}, linkTag, nil)
		l, err = link.NewCrossBoundaryWithUnit(link.DestinationRank, cfg.MaxPeriod, "1ns", linkTag, outQ, linkTag)
	} else {
		l, err = link.NewLocalWithUnit(0, "1ns", linkTag, link.NewVortexQueue(vortex, sink), 0)
	}
	if err != nil {
		return err
	}
	if rank != 0 {
		rs.RegisterLink(ranksync.RemoteThread{Rank: 0, Thread: 0}, linkTag, l)
	}
	if err := l.FinalizeConfiguration(); err != nil {
		return err
	}

	hub := notify.NewHub(4)
	defer hub.Shutdown()
	signalCh := hub.SubscribeSignals()
	go func() {
		for name := range signalCh {
			log.Infof("simkernel: rank=%d observed signal %v over notify hub", rank, name)
		}
	}()

	actions := rtaction.NewRegistry()
	actions.Register(rtaction.StatusPrint, func() {
		log.Infof("simkernel: rank=%d status-print fired", rank)
	})
	watcher := sig.NewWatcher(rs.Signals(), hub, nil, 0)
	watcher.Start()
	defer watcher.Stop()

	var sm *syncmanager.SyncManager
	sm, err = syncmanager.New(syncmanager.Config{
		ThreadID:         0,
		Vortex:           vortex,
		ThreadSync:       ts,
		RankSync:         rs,
		Exit:             ex,
		ActionRegistry:   actions,
		RankBarrier:      rankBar,
		NextLocalEventAt: func() uint64 { return peekNext(vortex) },
	}, exitCount)
	if err != nil {
		return err
	}
	vortex.Insert(&sm.Activity)

	// A periodic status tick, demonstrating clock.Clock alongside the
	// data-path Link: it fires at t=3 and t=6, then cancels itself.
	statusClock := clock.New(vortex, 3, 0, 1, func(cycle uint64) bool {
		log.Infof("simkernel: rank=%d status clock cycle=%d", rank, cycle)
		return cycle < 2
	})
	statusClock.Start()

	if rank == 0 {
		ev := &event.Event{Payload: []byte("hello")}
		ev.DeliveryTime = 5
		if err := l.Send(0, 5, ev); err != nil {
			return err
		}
		// This rank's one outbound event is already queued; its reference
		// on the Exit action is done.
		ex.Decrement(0)
	}

	for {
		a, err := vortex.Pop()
		if err != nil {
			return err
		}
		if timevortex.IsStopAction(a) {
			log.Infof("simkernel: rank=%d event queue empty, stopping", rank)
			return nil
		}
		if err := a.Handler.Execute(); err != nil {
			return err
		}
		if a.Handler == sm && sm.Terminated() {
			fmt.Printf("rank=%d done, received=%v\n", rank, sink.received)
			return nil
		}
	}
}

func peekNext(tv *timevortex.TimeVortex) uint64 {
	front := tv.Front()
	if front == nil {
		return ^uint64(0)
	}
	return front.DeliveryTime
}
