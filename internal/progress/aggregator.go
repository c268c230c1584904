package progress

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"

	"markerflow/internal/logging"
)

// Status is the derived lifecycle of an aggregator.
type Status string

const (
	StatusWaiting Status = "waiting"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Unit is one tracked piece of work.
type Unit struct {
	Ref      string
	Percent  int
	Finished bool
}

// State is an immutable snapshot of an aggregator.
type State struct {
	Task     string
	Status   Status
	Percent  int
	Message  string
	Alert    string
	Finished int
	Total    int
	Units    []Unit
}

// Aggregator tracks a set of units and derives overall progress. It is safe
// for concurrent use; the lock is only held for in-memory bookkeeping.
type Aggregator struct {
	task   string
	logger *slog.Logger

	mu          sync.Mutex
	order       []string
	units       map[string]*Unit
	done        bool
	failed      bool
	failMessage string
	alert       string
	subscribers map[int]chan State
	nextSubID   int
}

// New constructs an aggregator for the named task, e.g. "Extracting".
func New(task string, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		task:        strings.TrimSpace(task),
		logger:      logging.NewComponentLogger(logger, "progress"),
		units:       make(map[string]*Unit),
		subscribers: make(map[int]chan State),
	}
}

// Task returns the task label used in status messages.
func (a *Aggregator) Task() string {
	return a.task
}

// SetUnits replaces the tracked units. Duplicate refs are registered once.
// A failed state survives SetUnits; only Reset clears it.
func (a *Aggregator) SetUnits(refs []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.done = false
	a.order = a.order[:0]
	a.units = make(map[string]*Unit, len(refs))
	for _, ref := range refs {
		a.addLocked(ref)
	}
	a.publishLocked()
}

// AddUnit registers ref if it is not already tracked. Once every unit has
// finished the aggregator stays done until Reset or SetUnits, so refs added
// after that point are tracked but do not reopen the task.
func (a *Aggregator) AddUnit(ref string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.addLocked(ref) {
		a.publishLocked()
	}
}

func (a *Aggregator) addLocked(ref string) bool {
	if _, ok := a.units[ref]; ok {
		return false
	}
	a.units[ref] = &Unit{Ref: ref}
	a.order = append(a.order, ref)
	return true
}

// Update records percent for ref, clamped to [0,100]. Updates for unknown or
// finished units, and updates that would move a unit backwards, are ignored.
func (a *Aggregator) Update(ref string, percent int) {
	percent = min(max(percent, 0), 100)

	a.mu.Lock()
	defer a.mu.Unlock()
	unit, ok := a.units[ref]
	if !ok {
		a.logger.Debug("progress update for unknown unit", logging.String("unit", ref), logging.Int("percent", percent))
		return
	}
	if unit.Finished || percent <= unit.Percent {
		return
	}
	unit.Percent = percent
	a.publishLocked()
}

// Finish marks ref as finished. It is idempotent.
func (a *Aggregator) Finish(ref string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	unit, ok := a.units[ref]
	if !ok {
		a.logger.Debug("finish for unknown unit", logging.String("unit", ref))
		return
	}
	if unit.Finished {
		return
	}
	unit.Finished = true
	unit.Percent = 100
	if !a.done && a.allFinishedLocked() {
		a.done = true
	}
	a.publishLocked()
}

// Fail moves the aggregator into the failed state. Unit progress is kept so
// partial completion stays visible.
func (a *Aggregator) Fail(message, alert string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failed = true
	a.failMessage = strings.TrimSpace(message)
	if a.failMessage == "" {
		a.failMessage = fmt.Sprintf("%s failed", a.task)
	}
	a.alert = strings.TrimSpace(alert)
	a.publishLocked()
}

// Reset clears all units and the failed state.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.order = nil
	a.units = make(map[string]*Unit)
	a.done = false
	a.failed = false
	a.failMessage = ""
	a.alert = ""
	a.publishLocked()
}

// ClearUnits drops every unit but keeps a failed state, so a run's failure
// stays visible after its transient units are gone.
func (a *Aggregator) ClearUnits() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.order = nil
	a.units = make(map[string]*Unit)
	a.done = false
	a.publishLocked()
}

func (a *Aggregator) allFinishedLocked() bool {
	for _, ref := range a.order {
		if !a.units[ref].Finished {
			return false
		}
	}
	return len(a.order) > 0
}

// State returns the current snapshot.
func (a *Aggregator) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stateLocked()
}

// Subscribe returns a channel receiving every new State, newest wins when the
// consumer falls behind, and a function that ends the subscription.
func (a *Aggregator) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)
	a.mu.Lock()
	id := a.nextSubID
	a.nextSubID++
	a.subscribers[id] = ch
	ch <- a.stateLocked()
	a.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			a.mu.Lock()
			delete(a.subscribers, id)
			a.mu.Unlock()
			close(ch)
		})
	}
}

func (a *Aggregator) stateLocked() State {
	state := State{
		Task:  a.task,
		Total: len(a.order),
		Units: make([]Unit, 0, len(a.order)),
	}
	sum := 0
	for _, ref := range a.order {
		unit := a.units[ref]
		state.Units = append(state.Units, *unit)
		sum += unit.Percent
		if unit.Finished {
			state.Finished++
		}
	}
	if state.Total > 0 {
		state.Percent = int(math.Round(float64(sum) / float64(state.Total*100) * 100))
	}

	switch {
	case a.failed:
		state.Status = StatusFailed
		state.Message = a.failMessage
		state.Alert = a.alert
	case state.Total == 0:
		state.Status = StatusWaiting
		state.Message = "Waiting"
	case a.done || state.Finished == state.Total:
		state.Status = StatusDone
		state.Percent = 100
		state.Message = fmt.Sprintf("%s done", a.task)
	default:
		state.Status = StatusRunning
		state.Message = fmt.Sprintf("%s (%d/%d)", a.task, state.Finished, state.Total)
	}
	return state
}

func (a *Aggregator) publishLocked() {
	if len(a.subscribers) == 0 {
		return
	}
	state := a.stateLocked()
	for _, ch := range a.subscribers {
		select {
		case ch <- state:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- state
		}
	}
}
