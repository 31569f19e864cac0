package cloudsim

import (
	"fmt"
)

// event tags: the closed set of message types entities exchange
type EventTag int

const (
	TagNone EventTag = iota
	TagEntityStart
	TagVmCreate
	TagVmCreateAck
	TagVmDestroy
	TagVmMigrate
	TagCloudletSubmit
	TagCloudletReturn
	TagDatacenterEvent
	TagEndOfSimulation
)

func (t EventTag) String() string {
	switch t {
	case TagEntityStart:
		return "entity-start"
	case TagVmCreate:
		return "vm-create"
	case TagVmCreateAck:
		return "vm-create-ack"
	case TagVmDestroy:
		return "vm-destroy"
	case TagVmMigrate:
		return "vm-migrate"
	case TagCloudletSubmit:
		return "cloudlet-submit"
	case TagCloudletReturn:
		return "cloudlet-return"
	case TagDatacenterEvent:
		return "datacenter-event"
	case TagEndOfSimulation:
		return "end-of-simulation"
	}
	return "none"
}

// event payloads: one concrete record per tag instead of an untyped map
type EventData interface {
	eventData()
}

// VmEventData rides TagVmCreate / TagVmCreateAck / TagVmDestroy.
type VmEventData struct {
	Vm      *Vm
	Ack     bool
	Success bool
}

// CloudletEventData rides TagCloudletSubmit / TagCloudletReturn.
type CloudletEventData struct {
	Cloudlet *Cloudlet
}

// MigrationEventData rides TagVmMigrate.
type MigrationEventData struct {
	Vm   *Vm
	Host *Host
}

func (VmEventData) eventData()        {}
func (CloudletEventData) eventData()  {}
func (MigrationEventData) eventData() {}

// the event proper: immutable once enqueued
type Event struct {
	Src      int
	Dst      int
	SendTime float64
	FireTime float64
	Tag      EventTag
	Data     EventData

	serial int64 // FIFO tiebreak among simultaneous events
}

func (ev *Event) String() string {
	return fmt.Sprintf("[ev %s src=%d,dst=%d,at=%.3f]", ev.Tag, ev.Src, ev.Dst, ev.FireTime)
}

// cancellation predicates match on (source, tag)
type EventPredicate func(src int, tag EventTag) bool

// MatchTag builds the predicate used throughout the datacenter: any of the
// given tags, regardless of source.
func MatchTag(tags ...EventTag) EventPredicate {
	return func(_ int, tag EventTag) bool {
		for _, t := range tags {
			if t == tag {
				return true
			}
		}
		return false
	}
}
