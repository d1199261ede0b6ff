package systems

import (
	"errors"
	"runtime"
)

/**
 * @brief The engine side services games reach through engine.Game. Created
 * before the asset store so the job system can prefetch declarations.
 */
type SystemManager struct {
	CameraSystem *CameraSystem
	JobSystem    *JobSystem
}

func NewSystemManager() (*SystemManager, error) {
	workers := runtime.NumCPU()
	js, err := NewJobSystem(workers, workers*4)
	if err != nil {
		return nil, err
	}
	return &SystemManager{
		CameraSystem: NewCameraSystem(),
		JobSystem:    js,
	}, nil
}

func (sm *SystemManager) Shutdown() error {
	var errs []error
	if sm.JobSystem != nil {
		errs = append(errs, sm.JobSystem.Shutdown())
	}
	return errors.Join(errs...)
}
