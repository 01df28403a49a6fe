package reconciler

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/Vastxiao/mongocheckd/docid"
	"github.com/samber/lo"
	"github.com/samber/mo"
)

// State is where a collection's scan stands.
type State string

const (
	StatePending  State = "pending"
	StateInit     State = "init"
	StateScanning State = "scanning"
	StateDone     State = "done"
	StateFailed   State = "failed"
)

// Progress tracks one collection's scan. Counters may be bumped from many
// goroutines.
type Progress struct {
	target Target

	matched    atomic.Int64
	mismatched atomic.Int64
	skipped    atomic.Int64
	batches    atomic.Int64

	mu         sync.Mutex
	state      State
	resumed    bool
	ceiling    mo.Option[docid.ID]
	checkpoint mo.Option[docid.ID]
	startTime  time.Time
	endTime    time.Time
	err        error
}

func newProgress(target Target) *Progress {
	return &Progress{target: target, state: StatePending}
}

func (p *Progress) setState(s State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s == StateInit {
		p.startTime = time.Now()
	}

	p.state = s
}

func (p *Progress) startScanning(ceiling docid.ID, resumeFrom mo.Option[docid.ID]) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state = StateScanning
	p.ceiling = mo.Some(ceiling)
	p.checkpoint = resumeFrom
	p.resumed = resumeFrom.IsPresent()
}

func (p *Progress) batchDone(checkpoint docid.ID) {
	p.batches.Add(1)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.checkpoint = mo.Some(checkpoint)
}

func (p *Progress) finish(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.endTime = time.Now()
	p.err = err
	p.state = lo.Ternary(err == nil, StateDone, StateFailed)
}

// Checked returns how many IDs have a result, including skipped ones.
func (p *Progress) Checked() int64 {
	return p.matched.Load() + p.mismatched.Load() + p.skipped.Load()
}

// ProgressSnapshot is a point-in-time copy of a Progress.
type ProgressSnapshot struct {
	Namespace  string        `json:"namespace"`
	State      State         `json:"state"`
	Resumed    bool          `json:"resumed"`
	Matched    int64         `json:"matched"`
	Mismatched int64         `json:"mismatched"`
	Skipped    int64         `json:"skipped"`
	Batches    int64         `json:"batches"`
	Ceiling    *string       `json:"ceiling,omitempty"`
	Checkpoint *string       `json:"checkpoint,omitempty"`
	Elapsed    time.Duration `json:"elapsedNanos"`
	Error      *string       `json:"error,omitempty"`
}

func idTextPtr(o mo.Option[docid.ID]) *string {
	id, ok := o.Get()
	if !ok {
		return nil
	}

	return lo.ToPtr(id.String())
}

// Snapshot copies the current counters and state.
func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap := ProgressSnapshot{
		Namespace:  p.target.String(),
		State:      p.state,
		Resumed:    p.resumed,
		Matched:    p.matched.Load(),
		Mismatched: p.mismatched.Load(),
		Skipped:    p.skipped.Load(),
		Batches:    p.batches.Load(),
		Ceiling:    idTextPtr(p.ceiling),
		Checkpoint: idTextPtr(p.checkpoint),
	}

	switch {
	case p.startTime.IsZero():
	case p.endTime.IsZero():
		snap.Elapsed = time.Since(p.startTime)
	default:
		snap.Elapsed = p.endTime.Sub(p.startTime)
	}

	if p.err != nil {
		snap.Error = lo.ToPtr(p.err.Error())
	}

	return snap
}

// Tracker holds every collection's Progress, in registration order.
type Tracker struct {
	mu    sync.RWMutex
	byNS  map[Target]*Progress
	order []Target
}

func NewTracker() *Tracker {
	return &Tracker{byNS: map[Target]*Progress{}}
}

// Register returns target's Progress, creating it if needed.
func (t *Tracker) Register(target Target) *Progress {
	t.mu.Lock()
	defer t.mu.Unlock()

	if p, ok := t.byNS[target]; ok {
		return p
	}

	p := newProgress(target)
	t.byNS[target] = p
	t.order = append(t.order, target)

	return p
}

// Get returns target's Progress if it is registered.
func (t *Tracker) Get(target Target) mo.Option[*Progress] {
	t.mu.RLock()
	defer t.mu.RUnlock()

	p, ok := t.byNS[target]
	if !ok {
		return mo.None[*Progress]()
	}

	return mo.Some(p)
}

// Snapshots returns a snapshot of every registered collection.
func (t *Tracker) Snapshots() []ProgressSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return lo.Map(t.order, func(target Target, _ int) ProgressSnapshot {
		return t.byNS[target].Snapshot()
	})
}
