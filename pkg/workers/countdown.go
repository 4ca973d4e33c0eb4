package workers

import (
	"context"
	"sync"
	"time"

	"github.com/crazymaax404/ro-mvp-hunter/pkg/catalog"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/log"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/respawn"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/state"
)

const DefaultCountdownInterval = time.Second

// Tick is the respawn state of one monster at one instant.
type Tick struct {
	MvpID   string
	Respawn respawn.Snapshot
}

// CountdownWorker emits a Tick for one death record every interval until it
// is cancelled or the record expires.
type CountdownWorker struct {
	monster   catalog.Monster
	deathTime time.Time
	interval  time.Duration
	ticks     chan<- Tick
	now       func() time.Time
}

type NewCountdownWorkerOptions struct {
	Monster   catalog.Monster
	DeathTime time.Time
	Interval  time.Duration
	Ticks     chan<- Tick
	Now       func() time.Time
}

func NewCountdownWorker(opts NewCountdownWorkerOptions) *CountdownWorker {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultCountdownInterval
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &CountdownWorker{
		monster:   opts.Monster,
		deathTime: opts.DeathTime,
		interval:  interval,
		ticks:     opts.Ticks,
		now:       now,
	}
}

func (w *CountdownWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if !w.tick(ctx) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// tick reports false once the worker should stop.
func (w *CountdownWorker) tick(ctx context.Context) bool {
	now := w.now()
	if respawn.IsExpired(w.deathTime, w.monster.RespawnMaxDuration(), now) {
		log.Debug("Countdown of %s expired", w.monster.ID)
		return false
	}
	snapshot, ok := respawn.Evaluate(&w.deathTime, w.monster.Window(), now)
	if !ok {
		return false
	}
	select {
	case w.ticks <- Tick{MvpID: w.monster.ID, Respawn: snapshot}:
		return true
	case <-ctx.Done():
		return false
	}
}

// SnapshotWatcher hands out snapshots as they change.
type SnapshotWatcher interface {
	Watch() (<-chan state.Snapshot, func())
}

type runningCountdown struct {
	deathTime time.Time
	cancel    context.CancelFunc
	done      chan struct{}
}

// CountdownSupervisor keeps exactly one CountdownWorker per monster with an
// active death time, following the snapshots of a store.
type CountdownSupervisor struct {
	watcher  SnapshotWatcher
	catalog  *catalog.Catalog
	interval time.Duration
	ticks    chan<- Tick
	now      func() time.Time

	lock    sync.Mutex
	running map[string]*runningCountdown
}

type NewCountdownSupervisorOptions struct {
	Watcher SnapshotWatcher
	Catalog *catalog.Catalog
	// Interval defaults to DefaultCountdownInterval.
	Interval time.Duration
	Ticks    chan<- Tick
	Now      func() time.Time
}

func NewCountdownSupervisor(opts NewCountdownSupervisorOptions) *CountdownSupervisor {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &CountdownSupervisor{
		watcher:  opts.Watcher,
		catalog:  opts.Catalog,
		interval: opts.Interval,
		ticks:    opts.Ticks,
		now:      now,
		running:  make(map[string]*runningCountdown),
	}
}

// Start reconciles workers on every snapshot. Every worker is stopped before
// Start returns.
func (s *CountdownSupervisor) Start(ctx context.Context) {
	snapshots, stop := s.watcher.Watch()
	defer stop()
	defer s.stopAll()

	for {
		select {
		case <-ctx.Done():
			return
		case snapshot, ok := <-snapshots:
			if !ok {
				return
			}
			s.reconcile(ctx, snapshot)
		}
	}
}

// Active returns the number of running workers.
func (s *CountdownSupervisor) Active() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	active := 0
	for _, r := range s.running {
		select {
		case <-r.done:
		default:
			active++
		}
	}
	return active
}

func (s *CountdownSupervisor) reconcile(ctx context.Context, snapshot state.Snapshot) {
	s.lock.Lock()
	defer s.lock.Unlock()

	deathTimes := snapshot.DeathTimes(s.catalog, s.now())
	for mvpID, deathTime := range deathTimes {
		current, running := s.running[mvpID]
		if deathTime == nil {
			if running {
				current.cancel()
				delete(s.running, mvpID)
			}
			continue
		}
		if running && current.deathTime.Equal(*deathTime) && !isDone(current.done) {
			continue
		}
		if running {
			current.cancel()
		}
		monster, _ := s.catalog.Lookup(mvpID)
		s.running[mvpID] = s.startWorker(ctx, monster, *deathTime)
	}
}

func (s *CountdownSupervisor) startWorker(ctx context.Context, monster catalog.Monster, deathTime time.Time) *runningCountdown {
	workerCtx, cancel := context.WithCancel(ctx)
	r := &runningCountdown{
		deathTime: deathTime,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	worker := NewCountdownWorker(NewCountdownWorkerOptions{
		Monster:   monster,
		DeathTime: deathTime,
		Interval:  s.interval,
		Ticks:     s.ticks,
		Now:       s.now,
	})
	go func() {
		defer close(r.done)
		worker.Start(workerCtx)
	}()
	return r
}

func (s *CountdownSupervisor) stopAll() {
	s.lock.Lock()
	defer s.lock.Unlock()
	for mvpID, r := range s.running {
		r.cancel()
		<-r.done
		delete(s.running, mvpID)
	}
}

func isDone(done <-chan struct{}) bool {
	select {
	case <-done:
		return true
	default:
		return false
	}
}
