package cloudsim

import (
	"math"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ErrInvalidSchedule is returned by Send for negative delays and unknown
// destinations. Per the failure semantics it is fatal to the run: entity
// code asserts on it instead of recovering.
var ErrInvalidSchedule = errors.New("invalid event schedule")

// ==================================================================
//
// Simulation: the discrete-event kernel
//
// ==================================================================
// Simulation owns the logical clock, the future and deferred event
// queues and the entity registry. It is a plain value constructed by the
// entry point and handed (by reference) to every entity: there is no
// process-wide kernel state, so independent simulations can run back to
// back in one process.
type Simulation struct {
	clock    float64
	future   *eventQueue
	deferred *eventQueue
	entities []Entity

	serial      int64 // monotonically increasing enqueue counter
	minEventGap float64
	terminateAt float64 // hard upper bound, 0 = none
	running     bool

	eventsDelivered int64
	eventsDeferred  int64
}

// NewSimulation resets the kernel: clock at zero, queues empty, id
// counter at zero. The hint sizes the entity registry.
func NewSimulation(expectedEntities int) *Simulation {
	if expectedEntities <= 0 {
		expectedEntities = 8
	}
	return &Simulation{
		future:      newEventQueue(),
		deferred:    newEventQueue(),
		entities:    make([]Entity, 0, expectedEntities),
		minEventGap: config.MinEventGap,
	}
}

// Register adds an entity to the kernel and assigns its id.
func (s *Simulation) Register(e Entity) int {
	id := len(s.entities)
	e.setID(id)
	e.setSim(s)
	e.setState(EstateRunnable)
	s.entities = append(s.entities, e)
	return id
}

func (s *Simulation) Clock() float64 { return s.clock }

func (s *Simulation) Entity(id int) Entity {
	if id < 0 || id >= len(s.entities) {
		return nil
	}
	return s.entities[id]
}

func (s *Simulation) NumEntities() int { return len(s.entities) }

// MinEventGap is the smallest delay Send accepts without clamping.
func (s *Simulation) MinEventGap() float64 { return s.minEventGap }

// TerminateAt sets the hard upper bound on the simulation clock.
func (s *Simulation) TerminateAt(t float64) {
	s.terminateAt = t
}

//==================================================================
// scheduling
//==================================================================

// Send enqueues an event into the future queue with
// fire_time = clock + delay. Negative delays and unknown destinations
// fail with ErrInvalidSchedule; non-negative delays below the minimum
// event gap are clamped up to the gap.
func (s *Simulation) Send(src, dst int, delay float64, tag EventTag, data EventData) error {
	if delay < 0 || math.IsNaN(delay) {
		return errors.Wrapf(ErrInvalidSchedule, "negative delay %v (%s)", delay, tag)
	}
	if dst < 0 || dst >= len(s.entities) {
		return errors.Wrapf(ErrInvalidSchedule, "unknown destination %d (%s)", dst, tag)
	}
	if delay < s.minEventGap {
		delay = s.minEventGap
	}
	s.serial++
	ev := &Event{
		Src:      src,
		Dst:      dst,
		SendTime: s.clock,
		FireTime: s.clock + delay,
		Tag:      tag,
		Data:     data,
		serial:   s.serial,
	}
	s.future.insertEvent(ev)
	trace(TraceVVV, "send", ev.String())
	return nil
}

// CancelFirst removes the first future event from src matching the
// predicate. Cancellation never touches the deferred queue.
func (s *Simulation) CancelFirst(src int, p EventPredicate) bool {
	return s.future.removeFirst(src, p) != nil
}

// CancelAll removes every future event from src matching the predicate.
func (s *Simulation) CancelAll(src int, p EventPredicate) int {
	return s.future.removeAll(src, p)
}

// FindFirstDeferred peeks at the deferred queue for the first event to
// dst matching the predicate.
func (s *Simulation) FindFirstDeferred(dst int, p EventPredicate) *Event {
	return s.deferred.findFirst(dst, p)
}

//==================================================================
// main loop
//==================================================================

// runTick pops the earliest future event, advances the clock and
// delivers. Events to entities that are not running go to the deferred
// queue instead. Returns false when the future queue is drained or the
// termination time is reached.
func (s *Simulation) runTick() bool {
	ev := s.future.popEvent()
	if ev == nil {
		return false
	}
	if s.terminateAt > 0 && ev.FireTime > s.terminateAt {
		s.clock = s.terminateAt
		return false
	}
	if ev.FireTime > s.clock {
		s.clock = ev.FireTime
	}
	dst := s.entities[ev.Dst]
	if dst.GetState() != EstateRunning {
		s.deferred.insertEvent(ev)
		s.eventsDeferred++
		return true
	}
	s.eventsDelivered++
	dst.ProcessEvent(ev)
	return true
}

// Start runs the simulation to completion and returns the final clock
// value. Every entity receives its start callback first (and may
// bootstrap further scheduling from it), then events are processed in
// (fire time, serial) order until the future queue drains or the
// termination bound is hit.
func (s *Simulation) Start() (float64, error) {
	if len(s.entities) == 0 {
		return 0, errors.New("no entities registered")
	}
	s.running = true
	for _, e := range s.entities {
		e.setState(EstateRunning)
		e.StartEntity()
	}

	for s.running && s.runTick() {
	}

	s.shutdown()
	logrus.WithFields(logrus.Fields{
		"clock":     s.clock,
		"delivered": s.eventsDelivered,
		"deferred":  s.eventsDeferred,
	}).Debug("simulation finished")
	return s.clock, nil
}

// Stop drains the remaining events without delivering them; the next
// runTick ends the main loop.
func (s *Simulation) Stop() {
	s.running = false
	s.future.cleanup()
	s.deferred.cleanup()
}

func (s *Simulation) shutdown() {
	for _, e := range s.entities {
		if e.GetState() != EstateFinished {
			e.ShutdownEntity()
			e.setState(EstateFinished)
		}
	}
	s.future.cleanup()
	s.deferred.cleanup()
}
