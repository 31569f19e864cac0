package cloudsim

import (
	"fmt"

	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/stat/distuv"
)

type CloudletStateEnum int

// constants
const (
	CloudletCreated CloudletStateEnum = iota
	CloudletReady
	CloudletQueued
	CloudletExec
	CloudletPaused
	CloudletSuccess
	CloudletFailed
	CloudletCanceled
)

// ==================================================================
//
// types: cloudlet, the unit of work
//
// ==================================================================
type Cloudlet struct {
	id       int
	userID   int     // owning broker entity
	length   float64 // MI
	pes      int
	fileSize float64
	outSize  float64

	state CloudletStateEnum
	vmID  int

	utilization UtilizationModel

	// progress bookkeeping, owned by the cloudlet scheduler
	finishedSoFar float64 // MI
	execStartTime float64
	finishTime    float64
}

func NewCloudlet(id, userID int, length float64, pes int, fileSize, outSize float64, um UtilizationModel) *Cloudlet {
	assert(pes > 0, "cloudlet requires at least one PE")
	return &Cloudlet{
		id:          id,
		userID:      userID,
		length:      length,
		pes:         pes,
		fileSize:    fileSize,
		outSize:     outSize,
		state:       CloudletCreated,
		vmID:        -1,
		utilization: um,
		finishTime:  -1,
	}
}

func (c *Cloudlet) GetID() int                  { return c.id }
func (c *Cloudlet) GetUserID() int              { return c.userID }
func (c *Cloudlet) GetLength() float64          { return c.length }
func (c *Cloudlet) GetPes() int                 { return c.pes }
func (c *Cloudlet) GetState() CloudletStateEnum { return c.state }
func (c *Cloudlet) GetVmID() int                { return c.vmID }
func (c *Cloudlet) GetFinishTime() float64      { return c.finishTime }
func (c *Cloudlet) GetExecStartTime() float64   { return c.execStartTime }

func (c *Cloudlet) SetVmID(id int) { c.vmID = id }

func (c *Cloudlet) setState(state CloudletStateEnum) { c.state = state }

// UtilizationOfCpu evaluates the cloudlet's utilisation model at the
// given simulation time; the result is a CPU fraction in [0, 1].
func (c *Cloudlet) UtilizationOfCpu(now float64) float64 {
	return c.utilization.Utilization(now)
}

func (c *Cloudlet) remainingLength() float64 {
	rem := c.length - c.finishedSoFar
	if rem < 0 {
		return 0
	}
	return rem
}

func (c *Cloudlet) isFinished() bool {
	return c.finishedSoFar >= c.length-epsilon
}

func (c *Cloudlet) String() string {
	return fmt.Sprintf("[cloudlet#%d]", c.id)
}

// ==================================================================
//
// utilisation models: time -> CPU fraction in [0, 1]
//
// ==================================================================
type UtilizationModel interface {
	Utilization(now float64) float64
}

// UtilizationModelFull pins the cloudlet at 100% CPU.
type UtilizationModelFull struct{}

func (UtilizationModelFull) Utilization(float64) float64 { return 1.0 }

// UtilizationModelStochastic samples a uniform utilisation per time
// point. Samples are memoised so repeated evaluation at the same time
// stays deterministic within a run, and the generator is seeded from the
// experiment seed so whole runs replay bit-identically.
type UtilizationModelStochastic struct {
	dist    distuv.Uniform
	history map[float64]float64
}

func NewUtilizationModelStochastic(seed uint64) *UtilizationModelStochastic {
	return &UtilizationModelStochastic{
		dist:    distuv.Uniform{Min: 0, Max: 1, Src: rand.NewSource(seed)},
		history: make(map[float64]float64),
	}
}

func (m *UtilizationModelStochastic) Utilization(now float64) float64 {
	if u, ok := m.history[now]; ok {
		return u
	}
	u := m.dist.Rand()
	m.history[now] = u
	return u
}
