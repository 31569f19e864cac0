package cloudsim

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// probeEntity records everything the kernel delivers to it.
type probeEntity struct {
	EntityBase

	received []*Event
	onStart  func(p *probeEntity)
	onEvent  func(p *probeEntity, ev *Event)
}

func newProbe(name string) *probeEntity {
	p := &probeEntity{}
	p.name = name
	return p
}

func (p *probeEntity) StartEntity() {
	if p.onStart != nil {
		p.onStart(p)
	}
}

func (p *probeEntity) ProcessEvent(ev *Event) {
	p.received = append(p.received, ev)
	if p.onEvent != nil {
		p.onEvent(p, ev)
	}
}

func TestSendNegativeDelayFails(t *testing.T) {
	sim := NewSimulation(1)
	p := newProbe("probe")
	sim.Register(p)

	err := sim.Send(p.GetID(), p.GetID(), -1, TagDatacenterEvent, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidSchedule))
}

func TestSendUnknownDestinationFails(t *testing.T) {
	sim := NewSimulation(1)
	p := newProbe("probe")
	sim.Register(p)

	err := sim.Send(p.GetID(), 42, 1, TagDatacenterEvent, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidSchedule))
}

func TestClockMonotonicity(t *testing.T) {
	sim := NewSimulation(1)
	p := newProbe("probe")
	p.onStart = func(p *probeEntity) {
		// scheduled out of order on purpose
		p.schedule(p.id, 5, TagDatacenterEvent, nil)
		p.schedule(p.id, 1, TagDatacenterEvent, nil)
		p.schedule(p.id, 3, TagDatacenterEvent, nil)
	}
	sim.Register(p)

	clock, err := sim.Start()
	require.NoError(t, err)
	require.Len(t, p.received, 3)
	for k := 1; k < len(p.received); k++ {
		assert.LessOrEqual(t, p.received[k-1].FireTime, p.received[k].FireTime)
	}
	assert.Equal(t, 5.0, clock)
}

func TestFifoAtEqualFireTime(t *testing.T) {
	sim := NewSimulation(2)
	p := newProbe("probe")
	q := newProbe("target")
	p.onStart = func(p *probeEntity) {
		// same source, same delay: delivery must follow scheduling order
		p.schedule(q.GetID(), 2, TagVmCreate, VmEventData{})
		p.schedule(q.GetID(), 2, TagVmDestroy, VmEventData{})
		p.schedule(q.GetID(), 2, TagCloudletSubmit, CloudletEventData{})
	}
	sim.Register(p)
	sim.Register(q)

	_, err := sim.Start()
	require.NoError(t, err)
	require.Len(t, q.received, 3)
	assert.Equal(t, TagVmCreate, q.received[0].Tag)
	assert.Equal(t, TagVmDestroy, q.received[1].Tag)
	assert.Equal(t, TagCloudletSubmit, q.received[2].Tag)
}

func TestMinEventGapClamping(t *testing.T) {
	sim := NewSimulation(1)
	p := newProbe("probe")
	p.onStart = func(p *probeEntity) {
		p.schedule(p.id, 0, TagDatacenterEvent, nil)
	}
	sim.Register(p)

	_, err := sim.Start()
	require.NoError(t, err)
	require.Len(t, p.received, 1)
	assert.Equal(t, sim.MinEventGap(), p.received[0].FireTime)
}

func TestCancelFirstAndAll(t *testing.T) {
	sim := NewSimulation(1)
	p := newProbe("probe")
	p.onStart = func(p *probeEntity) {
		p.schedule(p.id, 1, TagDatacenterEvent, nil)
		p.schedule(p.id, 2, TagDatacenterEvent, nil)
		p.schedule(p.id, 3, TagVmCreate, VmEventData{})

		assert.True(t, p.sim.CancelFirst(p.id, MatchTag(TagDatacenterEvent)))
		assert.Equal(t, 1, p.sim.CancelAll(p.id, MatchTag(TagDatacenterEvent)))
	}
	sim.Register(p)

	_, err := sim.Start()
	require.NoError(t, err)
	require.Len(t, p.received, 1)
	assert.Equal(t, TagVmCreate, p.received[0].Tag)
}

func TestDeferredQueueHoldsEventsForHoldingEntity(t *testing.T) {
	sim := NewSimulation(2)
	holder := newProbe("holder")
	driver := newProbe("driver")
	driver.onStart = func(p *probeEntity) {
		holder.hold()
		p.schedule(holder.GetID(), 1, TagVmMigrate, MigrationEventData{})
		p.schedule(p.id, 2, TagDatacenterEvent, nil)
	}
	driver.onEvent = func(p *probeEntity, ev *Event) {
		if ev.Tag == TagDatacenterEvent {
			deferred := p.sim.FindFirstDeferred(holder.GetID(), MatchTag(TagVmMigrate))
			require.NotNil(t, deferred)
			assert.Equal(t, TagVmMigrate, deferred.Tag)
		}
	}
	// the holder registers (and starts) first so the driver's start
	// hook can flip it to holding afterwards
	sim.Register(holder)
	sim.Register(driver)
	_, err := sim.Start()
	require.NoError(t, err)
	assert.Empty(t, holder.received)
}

func TestTerminateAtBoundsTheRun(t *testing.T) {
	sim := NewSimulation(1)
	p := newProbe("probe")
	p.onEvent = func(p *probeEntity, ev *Event) {
		// self-perpetuating ticks
		p.schedule(p.id, 10, TagDatacenterEvent, nil)
	}
	p.onStart = func(p *probeEntity) {
		p.schedule(p.id, 10, TagDatacenterEvent, nil)
	}
	sim.Register(p)
	sim.TerminateAt(55)

	clock, err := sim.Start()
	require.NoError(t, err)
	assert.Equal(t, 55.0, clock)
	// ticks at 10..50 delivered, the one at 60 cut off
	assert.Len(t, p.received, 5)
}

func TestStopDrainsWithoutDelivery(t *testing.T) {
	sim := NewSimulation(1)
	p := newProbe("probe")
	p.onStart = func(p *probeEntity) {
		p.schedule(p.id, 1, TagDatacenterEvent, nil)
		p.schedule(p.id, 2, TagDatacenterEvent, nil)
	}
	p.onEvent = func(p *probeEntity, ev *Event) {
		p.sim.Stop()
	}
	sim.Register(p)

	_, err := sim.Start()
	require.NoError(t, err)
	assert.Len(t, p.received, 1)
}
