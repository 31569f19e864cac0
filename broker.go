package cloudsim

import (
	"github.com/sirupsen/logrus"
)

// ==================================================================
//
// Broker: owns VMs and cloudlets until the datacenter takes them
//
// ==================================================================
// Broker submits the VM fleet at start, binds cloudlets to the VMs
// that were actually created, collects returned cloudlets and winds
// the simulation down once everything finished.
type Broker struct {
	EntityBase

	datacenterID int

	vmList     []*Vm
	vmsCreated []*Vm
	vmsAcked   int

	cloudletList       []*Cloudlet
	cloudletsSubmitted int
	cloudletsReturned  []*Cloudlet
}

func NewBroker(name string) *Broker {
	b := &Broker{}
	b.name = name
	return b
}

func (b *Broker) SetDatacenter(id int) { b.datacenterID = id }

func (b *Broker) SubmitVmList(vms []*Vm)            { b.vmList = append(b.vmList, vms...) }
func (b *Broker) SubmitCloudletList(cs []*Cloudlet) { b.cloudletList = append(b.cloudletList, cs...) }

func (b *Broker) GetVmsCreated() []*Vm              { return b.vmsCreated }
func (b *Broker) GetCloudletsReturned() []*Cloudlet { return b.cloudletsReturned }

// StartEntity requests creation of every VM, with ack.
func (b *Broker) StartEntity() {
	assert(b.datacenterID != b.id, "broker not bound to a datacenter")
	for _, vm := range b.vmList {
		b.schedule(b.datacenterID, b.sim.MinEventGap(), TagVmCreate,
			VmEventData{Vm: vm, Ack: true})
	}
	if len(b.vmList) == 0 {
		b.schedule(b.id, b.sim.MinEventGap(), TagEndOfSimulation, nil)
	}
}

func (b *Broker) ProcessEvent(ev *Event) {
	switch ev.Tag {
	case TagVmCreateAck:
		b.processVmCreateAck(ev)
	case TagCloudletReturn:
		b.processCloudletReturn(ev)
	case TagEndOfSimulation:
		b.sim.Stop()
	default:
		assert(false, "unexpected event", ev.String())
	}
}

func (b *Broker) processVmCreateAck(ev *Event) {
	data, ok := ev.Data.(VmEventData)
	assert(ok, "vm-create-ack payload", ev.String())
	b.vmsAcked++
	if data.Success {
		b.vmsCreated = append(b.vmsCreated, data.Vm)
	} else {
		logrus.Warnf("creation of %s rejected by the datacenter", data.Vm)
	}
	if b.vmsAcked == len(b.vmList) {
		b.submitCloudlets()
	}
}

// submitCloudlets binds every cloudlet to a created VM: a preset vm id
// wins if that VM exists, the rest round-robin over the created fleet.
func (b *Broker) submitCloudlets() {
	if len(b.vmsCreated) == 0 {
		logrus.Warn("no VMs created, nothing to run")
		b.schedule(b.id, b.sim.MinEventGap(), TagEndOfSimulation, nil)
		return
	}
	next := 0
	for _, c := range b.cloudletList {
		vm := b.createdVm(c.vmID)
		if vm == nil {
			vm = b.vmsCreated[next%len(b.vmsCreated)]
			next++
			c.SetVmID(vm.id)
		}
		b.schedule(b.datacenterID, b.sim.MinEventGap(), TagCloudletSubmit,
			CloudletEventData{Cloudlet: c})
		b.cloudletsSubmitted++
	}
	b.cloudletList = nil
}

func (b *Broker) createdVm(id int) *Vm {
	for _, vm := range b.vmsCreated {
		if vm.id == id {
			return vm
		}
	}
	return nil
}

func (b *Broker) processCloudletReturn(ev *Event) {
	data, ok := ev.Data.(CloudletEventData)
	assert(ok, "cloudlet-return payload", ev.String())
	b.cloudletsReturned = append(b.cloudletsReturned, data.Cloudlet)
	trace(TraceV, "cloudlet-returned", data.Cloudlet.String())

	if len(b.cloudletsReturned) == b.cloudletsSubmitted {
		// all work done: release the fleet, then stop the run
		for _, vm := range b.vmsCreated {
			b.schedule(b.datacenterID, b.sim.MinEventGap(), TagVmDestroy,
				VmEventData{Vm: vm})
		}
		b.schedule(b.id, 2*b.sim.MinEventGap(), TagEndOfSimulation, nil)
	}
}

// ShutdownEntity logs the broker's final accounting.
func (b *Broker) ShutdownEntity() {
	trace(TraceV, "broker-shutdown", b.String(),
		len(b.vmsCreated), len(b.cloudletsReturned))
}
