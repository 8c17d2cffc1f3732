package rebuild

import (
	"errors"
	"fmt"
	"sync/atomic"
)

var (
	// ErrBuildPlanModified is the fatal error returned once a descriptor change alters the
	// shape of the build plan. The process must be restarted to pick it up.
	ErrBuildPlanModified = errors.New("build plan modified")
	// ErrAborted is returned by every tick after the orchestrator aborted.
	ErrAborted = errors.New("orchestrator aborted")
	// ErrNotStarted is returned by Tick before Start succeeded.
	ErrNotStarted = errors.New("orchestrator not started")
)

// State is the lifecycle state of the serving context as owned by the [Orchestrator].
type State int32

const (
	Starting State = iota
	Serving
	Restarting
	// Aborted is terminal.
	Aborted
	// Stopped is reached after Shutdown from any state but Aborted.
	Stopped
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Serving:
		return "serving"
	case Restarting:
		return "restarting"
	case Aborted:
		return "aborted"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

type atomicState struct {
	v atomic.Int32
}

func (s *atomicState) Load() State {
	return State(s.v.Load())
}

func (s *atomicState) Store(state State) {
	s.v.Store(int32(state))
}

// Decision is what a single tick did.
type Decision int

const (
	// DecisionNone means nothing changed, or a change needed no action.
	DecisionNone Decision = iota
	// DecisionRefreshed means resources were copied or filtered without a restart.
	DecisionRefreshed
	// DecisionSkipped means the tick was abandoned on a recoverable error.
	// The change is looked at again on a later tick.
	DecisionSkipped
	// DecisionRestarted means the serving context was restarted on a new tree.
	DecisionRestarted
	// DecisionAborted means the orchestrator is done. It goes together with a fatal error.
	DecisionAborted
)

func (d Decision) String() string {
	switch d {
	case DecisionNone:
		return "none"
	case DecisionRefreshed:
		return "refreshed"
	case DecisionSkipped:
		return "skipped"
	case DecisionRestarted:
		return "restarted"
	case DecisionAborted:
		return "aborted"
	}
	return fmt.Sprintf("Decision(%d)", int(d))
}
