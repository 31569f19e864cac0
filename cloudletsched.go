package cloudsim

import (
	"math"
)

// ==================================================================
//
// CloudletScheduler: splits a VM's granted MIPS across its cloudlets
//
// ==================================================================
type CloudletScheduler interface {
	// Submit places a cloudlet into execution and returns its estimated
	// completion delay from now.
	Submit(vm *Vm, c *Cloudlet, now float64) float64

	// UpdateProcessing advances all executing cloudlets over the
	// interval ending at now, given the per-PE MIPS the host granted;
	// returns the earliest predicted completion time, +Inf when idle.
	UpdateProcessing(vm *Vm, now float64, mipsShare []float64) float64

	// CurrentRequestedMips is the per-PE demand vector at now.
	CurrentRequestedMips(vm *Vm, now float64) []float64

	// TotalUtilizationMips is the absolute MIPS demand at now.
	TotalUtilizationMips(vm *Vm, now float64) float64

	// FinishedCloudlets drains the completed list.
	FinishedCloudlets() []*Cloudlet

	HasRunningCloudlets() bool

	Pause(cloudletID int) bool
	Resume(cloudletID int, now float64) bool
	Cancel(cloudletID int) *Cloudlet
}

// ==================================================================
//
// dynamic-workload scheduler: demand follows each cloudlet's
// utilisation model, shortage is shared proportionally
//
// ==================================================================
type CloudletSchedulerDynamicWorkload struct {
	execList     []*Cloudlet
	pausedList   []*Cloudlet
	finishedList []*Cloudlet

	previousTime float64
}

func NewCloudletSchedulerDynamicWorkload() *CloudletSchedulerDynamicWorkload {
	return &CloudletSchedulerDynamicWorkload{}
}

// requestedMips is the absolute demand of one cloudlet at now.
func (s *CloudletSchedulerDynamicWorkload) requestedMips(vm *Vm, c *Cloudlet, now float64) float64 {
	return c.UtilizationOfCpu(now) * vm.mips * float64(c.pes)
}

func (s *CloudletSchedulerDynamicWorkload) Submit(vm *Vm, c *Cloudlet, now float64) float64 {
	c.setState(CloudletExec)
	c.execStartTime = now
	s.execList = append(s.execList, c)

	rate := s.requestedMips(vm, c, now)
	if rate <= 0 {
		return math.Inf(1)
	}
	return c.remainingLength() / rate
}

func (s *CloudletSchedulerDynamicWorkload) UpdateProcessing(vm *Vm, now float64, mipsShare []float64) float64 {
	timeSpan := now - s.previousTime
	s.previousTime = now
	if len(s.execList) == 0 {
		return math.Inf(1)
	}

	capacity := sumFloats(mipsShare)
	totalRequested := 0.0
	for _, c := range s.execList {
		totalRequested += s.requestedMips(vm, c, now)
	}
	scale := 1.0
	if greaterThan(totalRequested, capacity) && totalRequested > 0 {
		scale = capacity / totalRequested
	}

	if timeSpan > 0 {
		for _, c := range s.execList {
			c.finishedSoFar += timeSpan * s.requestedMips(vm, c, now) * scale
		}
	}

	// collect completions
	remaining := s.execList[:0]
	for _, c := range s.execList {
		if c.isFinished() {
			c.setState(CloudletSuccess)
			c.finishTime = now
			s.finishedList = append(s.finishedList, c)
		} else {
			remaining = append(remaining, c)
		}
	}
	s.execList = remaining

	nextEvent := math.Inf(1)
	for _, c := range s.execList {
		rate := s.requestedMips(vm, c, now) * scale
		if rate <= 0 {
			continue
		}
		eta := now + c.remainingLength()/rate
		if eta < nextEvent {
			nextEvent = eta
		}
	}
	return nextEvent
}

func (s *CloudletSchedulerDynamicWorkload) CurrentRequestedMips(vm *Vm, now float64) []float64 {
	total := s.TotalUtilizationMips(vm, now)
	requested := make([]float64, vm.pes)
	for i := range requested {
		requested[i] = total / float64(vm.pes)
	}
	return requested
}

func (s *CloudletSchedulerDynamicWorkload) TotalUtilizationMips(vm *Vm, now float64) float64 {
	total := 0.0
	for _, c := range s.execList {
		total += s.requestedMips(vm, c, now)
	}
	return total
}

func (s *CloudletSchedulerDynamicWorkload) FinishedCloudlets() []*Cloudlet {
	finished := s.finishedList
	s.finishedList = nil
	return finished
}

func (s *CloudletSchedulerDynamicWorkload) HasRunningCloudlets() bool {
	return len(s.execList) > 0
}

func (s *CloudletSchedulerDynamicWorkload) Pause(cloudletID int) bool {
	for k, c := range s.execList {
		if c.id == cloudletID {
			s.execList = append(s.execList[:k], s.execList[k+1:]...)
			c.setState(CloudletPaused)
			s.pausedList = append(s.pausedList, c)
			return true
		}
	}
	return false
}

func (s *CloudletSchedulerDynamicWorkload) Resume(cloudletID int, now float64) bool {
	for k, c := range s.pausedList {
		if c.id == cloudletID {
			s.pausedList = append(s.pausedList[:k], s.pausedList[k+1:]...)
			c.setState(CloudletExec)
			s.execList = append(s.execList, c)
			return true
		}
	}
	return false
}

func (s *CloudletSchedulerDynamicWorkload) Cancel(cloudletID int) *Cloudlet {
	for k, c := range s.execList {
		if c.id == cloudletID {
			s.execList = append(s.execList[:k], s.execList[k+1:]...)
			c.setState(CloudletCanceled)
			return c
		}
	}
	for k, c := range s.pausedList {
		if c.id == cloudletID {
			s.pausedList = append(s.pausedList[:k], s.pausedList[k+1:]...)
			c.setState(CloudletCanceled)
			return c
		}
	}
	return nil
}
