package minicortex

import (
	"sync"
	"time"

	jump "github.com/dgryski/go-jump"
	"github.com/minicortex/minicortex/array"
	"github.com/minicortex/minicortex/errs"
	"github.com/minicortex/minicortex/log"
)

const (
	// MinSpeedHz and MaxSpeedHz bound the configurable tick rate (spec ch.4.5).
	MinSpeedHz = 1.0
	MaxSpeedHz = 300.0

	defaultBroadcastHz = 40.0
	broadcastShards    = 8
	subscriberBuffer   = 16
	emaAlpha           = 0.2
)

// NetworkState is the broadcast-visible summary of the supervisor, sent
// in every Frame (spec ch.4.5).
type NetworkState struct {
	Running    bool
	TargetHz   float64
	ActualHz   float64
	TickCount  uint64
	Error      *ErrorState
	FailedNode string
}

// NodeFrame is one instance's broadcastable display state.
type NodeFrame struct {
	Displays       map[string]interface{}
	DisplayEnabled map[string]bool
}

// Frame is one broadcast-loop emission: the network state plus every
// instance's current display cells and enabled flags (spec ch.4.5).
type Frame struct {
	Network NetworkState
	Nodes   map[string]NodeFrame
}

type subscriber struct {
	id uint64
	ch chan *Frame
}

type broadcastJob struct {
	sub   *subscriber
	frame *Frame
}

// Supervisor runs the computation loop and the broadcast loop over a
// Registry, and serializes the start/stop/step/set-speed control
// operations against them (spec ch.4.5). Broadcast delivery is sharded
// across a small pool of sender goroutines, keyed by subscriber ID via
// a consistent-hash jump table, so one slow observer cannot stall
// another's frames.
type Supervisor struct {
	registry *Registry
	logger   log.Logger

	mu        sync.Mutex
	cond      *sync.Cond
	running   bool
	inTick    bool
	targetHz  float64
	actualHz  float64
	tickCount uint64
	lastTick  time.Time
	errState  *ErrorState
	failedID  string

	broadcastHz float64

	subsMu  sync.Mutex
	subs    map[uint64]*subscriber
	nextSub uint64
	shards  []chan broadcastJob

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// arrayFP caches each instance's display array fingerprints (spec
	// ch.8), keyed by instance ID then display key. buildFrame runs in
	// the single broadcastLoop goroutine, so this needs no lock of its
	// own. An unchanged fingerprint means the cached clone below is
	// still valid and the array doesn't need re-cloning for this frame.
	arrayFP  map[string]map[string]uint64
	arrayVal map[string]map[string]array.NDArray
}

// NewSupervisor constructs a Supervisor over reg at the given initial
// target tick rate (clamped to [MinSpeedHz, MaxSpeedHz]).
func NewSupervisor(reg *Registry, logger log.Logger, targetHz float64) *Supervisor {
	if logger == nil {
		logger = log.Nop()
	}
	if targetHz < MinSpeedHz {
		targetHz = MinSpeedHz
	}
	if targetHz > MaxSpeedHz {
		targetHz = MaxSpeedHz
	}

	s := &Supervisor{
		registry:    reg,
		logger:      logger,
		targetHz:    targetHz,
		broadcastHz: defaultBroadcastHz,
		subs:        make(map[uint64]*subscriber),
		shards:      make([]chan broadcastJob, broadcastShards),
		stop:        make(chan struct{}),
		arrayFP:     make(map[string]map[string]uint64),
		arrayVal:    make(map[string]map[string]array.NDArray),
	}
	s.cond = sync.NewCond(&s.mu)
	for i := range s.shards {
		s.shards[i] = make(chan broadcastJob, 64)
	}
	return s
}

// Run starts the computation loop, the broadcast loop, and the
// broadcast sender shards. It returns immediately; call Close to stop
// everything.
func (s *Supervisor) Run() {
	for _, ch := range s.shards {
		s.wg.Add(1)
		go s.runShard(ch)
	}
	s.wg.Add(2)
	go s.computationLoop()
	go s.broadcastLoop()
}

// Close stops the computation loop, the broadcast loop and every
// sender shard, and waits for them to exit.
func (s *Supervisor) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
}

// Start transitions the supervisor to running.
func (s *Supervisor) Start() {
	s.mu.Lock()
	s.running = true
	s.lastTick = time.Now()
	s.mu.Unlock()
}

// Stop clears running and blocks until any in-flight tick completes
// (spec ch.4.5).
func (s *Supervisor) Stop() {
	s.mu.Lock()
	s.running = false
	for s.inTick {
		s.cond.Wait()
	}
	s.mu.Unlock()
}

// IsRunning reports whether the computation loop is currently active.
func (s *Supervisor) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// SetSpeed updates the target tick rate, clamped to [MinSpeedHz, MaxSpeedHz].
func (s *Supervisor) SetSpeed(hz float64) {
	if hz < MinSpeedHz {
		hz = MinSpeedHz
	}
	if hz > MaxSpeedHz {
		hz = MaxSpeedHz
	}
	s.mu.Lock()
	s.targetHz = hz
	s.mu.Unlock()
}

// Step runs one synchronous tick. Legal only while stopped (spec ch.4.5).
func (s *Supervisor) Step() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errs.New(errs.Validation, "step is only valid while stopped")
	}
	s.mu.Unlock()
	return s.runOneTick()
}

// Probe runs a single tick if the network is currently stopped, used
// after a graph-mutation request so display outputs reflect the new
// topology even while idle (spec ch.4.4 "Probing"). It is a no-op while
// running, since the computation loop will pick up the new topology on
// its own next tick.
func (s *Supervisor) Probe() {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if running {
		return
	}
	_ = s.runOneTick()
}

// State returns the current broadcast-visible network state.
func (s *Supervisor) State() NetworkState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Supervisor) stateLocked() NetworkState {
	return NetworkState{
		Running: s.running, TargetHz: s.targetHz, ActualHz: s.actualHz,
		TickCount: s.tickCount, Error: s.errState, FailedNode: s.failedID,
	}
}

func (s *Supervisor) runOneTick() error {
	s.mu.Lock()
	s.inTick = true
	s.mu.Unlock()

	res := s.registry.Tick()

	s.mu.Lock()
	now := time.Now()
	if !s.lastTick.IsZero() {
		interval := now.Sub(s.lastTick).Seconds()
		if interval > 0 {
			hz := 1.0 / interval
			s.actualHz = emaAlpha*hz + (1-emaAlpha)*s.actualHz
		}
	}
	s.lastTick = now
	s.tickCount++
	if res.Err != nil {
		s.errState = &ErrorState{Message: res.Err.Error(), At: now}
		s.failedID = res.Failed
		s.running = false
	}
	s.inTick = false
	s.cond.Broadcast()
	s.mu.Unlock()

	return res.Err
}

func (s *Supervisor) computationLoop() {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		hz := s.targetHz
		s.mu.Unlock()
		interval := time.Duration(float64(time.Second) / hz)

		select {
		case <-s.stop:
			return
		case <-time.After(interval):
		}

		s.mu.Lock()
		running := s.running
		s.mu.Unlock()
		if !running {
			continue
		}
		_ = s.runOneTick()
	}
}

// Subscribe registers a new frame observer and returns its channel and
// an unsubscribe function.
func (s *Supervisor) Subscribe() (<-chan *Frame, func()) {
	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	sub := &subscriber{id: id, ch: make(chan *Frame, subscriberBuffer)}
	s.subs[id] = sub
	s.subsMu.Unlock()

	return sub.ch, func() { s.dropSubscriber(sub) }
}

// dropSubscriber removes sub from the subscriber table and closes its
// channel, if it hasn't already been removed (by an explicit unsubscribe
// racing a stall-drop, or vice versa).
func (s *Supervisor) dropSubscriber(sub *subscriber) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	if cur, ok := s.subs[sub.id]; ok && cur == sub {
		delete(s.subs, sub.id)
		close(sub.ch)
	}
}

func (s *Supervisor) broadcastLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(time.Duration(float64(time.Second) / s.broadcastHz))
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}

		frame := s.buildFrame()

		s.subsMu.Lock()
		for _, sub := range s.subs {
			shard := s.shards[jump.Hash(sub.id, broadcastShards)]
			select {
			case shard <- broadcastJob{sub: sub, frame: frame}:
			default:
			}
		}
		s.subsMu.Unlock()
	}
}

// runShard delivers frames to every subscriber hashed onto this shard. A
// subscriber whose buffer is still full from a prior frame is dropped
// outright (spec ch.5 "Broadcast observers that stall are dropped after
// the send fails") rather than retried, so one stalled observer never
// blocks this shard's other subscribers.
func (s *Supervisor) runShard(jobs chan broadcastJob) {
	defer s.wg.Done()
	for {
		select {
		case <-s.stop:
			return
		case job := <-jobs:
			select {
			case job.sub.ch <- job.frame:
			case <-s.stop:
				return
			default:
				s.logger.Warnw("dropping stalled broadcast subscriber", "subscriber_id", job.sub.id)
				s.dropSubscriber(job.sub)
			}
		}
	}
}

func (s *Supervisor) buildFrame() *Frame {
	snap := s.registry.Snapshot()

	s.mu.Lock()
	net := s.stateLocked()
	s.mu.Unlock()

	nodes := make(map[string]NodeFrame, len(snap.Instances))
	for _, v := range snap.Instances {
		nodes[v.ID] = NodeFrame{Displays: s.dedupArrays(v.ID, v.Displays), DisplayEnabled: v.DisplayEnabled}
	}
	return &Frame{Network: net, Nodes: nodes}
}

// dedupArrays rewrites displays so that an NDArray value unchanged since
// the last frame (by Fingerprint) is replaced by the previously cloned
// copy instead of being cloned again, sparing the broadcast loop a
// redundant deep copy of large vector/matrix displays every tick.
// Non-array values pass through untouched.
func (s *Supervisor) dedupArrays(id string, displays map[string]interface{}) map[string]interface{} {
	var fps map[string]uint64
	var vals map[string]array.NDArray

	for key, v := range displays {
		arr, ok := v.(array.NDArray)
		if !ok {
			continue
		}
		if fps == nil {
			fps = s.arrayFP[id]
			vals = s.arrayVal[id]
			if fps == nil {
				fps = make(map[string]uint64)
				s.arrayFP[id] = fps
			}
			if vals == nil {
				vals = make(map[string]array.NDArray)
				s.arrayVal[id] = vals
			}
		}

		fp := arr.Fingerprint()
		if cached, ok := fps[key]; ok && cached == fp {
			displays[key] = vals[key]
			continue
		}
		clone := arr.Clone()
		fps[key] = fp
		vals[key] = clone
		displays[key] = clone
	}
	return displays
}
