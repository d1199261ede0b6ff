package engine

import "fmt"

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Engine released everything it owned
	EngineStageShutdown
)

func (s Stage) String() string {
	switch s {
	case EngineStageUninitialized:
		return "uninitialized"
	case EngineStageInitializing:
		return "initializing"
	case EngineStageInitialized:
		return "initialized"
	case EngineStageRunning:
		return "running"
	case EngineStageShuttingDown:
		return "shutting down"
	case EngineStageShutdown:
		return "shut down"
	}
	return fmt.Sprintf("stage(%d)", uint8(s))
}

// expectStage guards the lifecycle calls against being made out of order.
func (e *Engine) expectStage(op string, allowed ...Stage) error {
	for _, s := range allowed {
		if e.currentStage == s {
			return nil
		}
	}
	return fmt.Errorf("%s called while the engine is %s", op, e.currentStage)
}
