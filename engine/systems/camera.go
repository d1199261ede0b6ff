package systems

import (
	"fmt"

	"github.com/spaghettifunk/anima-mesh/engine/core"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/components"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/metadata"
)

type cameraSlot struct {
	name           string
	camera         *components.Camera
	referenceCount uint32
}

/**
 * @brief Hands out named cameras, one per slot of the camera uniform block.
 * Slot 0 always holds the default camera, which is never released.
 */
type CameraSystem struct {
	lookup map[string]uint32
	slots  [metadata.MaxCameras]cameraSlot
}

func NewCameraSystem() *CameraSystem {
	cs := &CameraSystem{
		lookup: make(map[string]uint32, metadata.MaxCameras),
	}
	cs.slots[0] = cameraSlot{name: components.DefaultCameraName, camera: components.NewCamera(), referenceCount: 1}
	cs.lookup[components.DefaultCameraName] = 0
	return cs
}

/**
 * @brief Acquires a camera by name, creating it in a free slot the first time.
 * The internal reference counter is incremented.
 *
 * @param name The name of the camera to acquire.
 * @return The camera and the slot it is written to.
 */
func (cs *CameraSystem) Acquire(name string) (*components.Camera, uint32, error) {
	if name == components.DefaultCameraName {
		return cs.slots[0].camera, 0, nil
	}
	if index, ok := cs.lookup[name]; ok {
		cs.slots[index].referenceCount++
		return cs.slots[index].camera, index, nil
	}

	for i := uint32(1); i < metadata.MaxCameras; i++ {
		if cs.slots[i].camera != nil {
			continue
		}
		core.LogDebug("Creating new camera named '%s' in slot %d", name, i)
		cs.slots[i] = cameraSlot{name: name, camera: components.NewCamera(), referenceCount: 1}
		cs.lookup[name] = i
		return cs.slots[i].camera, i, nil
	}
	err := fmt.Errorf("no free camera slot for '%s', all %d are in use", name, metadata.MaxCameras)
	core.LogError(err.Error())
	return nil, 0, err
}

/**
 * @brief Releases a camera with the given name. When the counter reaches 0
 * the slot is freed for a new camera.
 */
func (cs *CameraSystem) Release(name string) {
	if name == components.DefaultCameraName {
		core.LogDebug("Cannot release default camera. Nothing was done.")
		return
	}
	index, ok := cs.lookup[name]
	if !ok {
		core.LogWarn("camera '%s' is not acquired, nothing to release", name)
		return
	}
	cs.slots[index].referenceCount--
	if cs.slots[index].referenceCount == 0 {
		cs.slots[index] = cameraSlot{}
		delete(cs.lookup, name)
	}
}

func (cs *CameraSystem) GetDefault() *components.Camera {
	return cs.slots[0].camera
}

// Active is the number of occupied slots, the default camera included.
func (cs *CameraSystem) Active() int {
	return len(cs.lookup)
}

// Fill writes every acquired camera into its slot of buffer.
func (cs *CameraSystem) Fill(buffer *metadata.CameraBuffer, aspect float32) {
	for i := range cs.slots {
		if cs.slots[i].camera != nil {
			cs.slots[i].camera.Fill(buffer, uint32(i), aspect)
		}
	}
}
