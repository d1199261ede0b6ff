package testbed

import (
	"fmt"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spaghettifunk/anima-mesh/engine"
	"github.com/spaghettifunk/anima-mesh/engine/assets"
	"github.com/spaghettifunk/anima-mesh/engine/core"
	"github.com/spaghettifunk/anima-mesh/engine/math"
	"github.com/spaghettifunk/anima-mesh/engine/renderer"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/components"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/metadata"
)

const (
	gridSize    = 8
	gridSpacing = 3.0
	moveStep    = 0.5
	turnStep    = 0.05
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	WorldCamera    *components.Camera
	OverheadCamera *components.Camera
	overheadIndex  uint32
	activeCamera   uint32

	cube, quad, shader, pipeline, texture, sampler metadata.AssetID

	wireframe     metadata.AssetID
	showWireframe bool

	cubes []*math.Transform
	floor *math.Transform
}

func NewTestGame(config *core.EngineConfig) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			Config: config,
			State:  &gameState{},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnOnResize = tg.OnResize
	tg.FnOnKey = tg.OnKey
	tg.FnShutdown = tg.Shutdown

	return tg
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

func (g *TestGame) Initialize(store *assets.Store) error {
	core.LogDebug("TestGame Initialize fn....")
	state := g.state()

	lookup := func(name string) (metadata.AssetID, error) {
		id := store.IDByName(name, false)
		if id == metadata.InvalidAssetID {
			return id, fmt.Errorf("testbed asset '%s' is not registered: %w", name, core.ErrNotFound)
		}
		return id, nil
	}
	var err error
	for _, a := range []struct {
		name string
		id   *metadata.AssetID
	}{
		{"Cube", &state.cube},
		{"Quad", &state.quad},
		{"Unlit", &state.shader},
		{"Opaque", &state.pipeline},
		{"Wireframe", &state.wireframe},
		{"Checker", &state.texture},
		{"Linear", &state.sampler},
	} {
		if *a.id, err = lookup(a.name); err != nil {
			return err
		}
	}

	half := float32(gridSize-1) * gridSpacing / 2
	for x := 0; x < gridSize; x++ {
		for z := 0; z < gridSize; z++ {
			pos := math.NewVec3(float32(x)*gridSpacing-half, 0, float32(z)*gridSpacing-half)
			state.cubes = append(state.cubes, math.TransformFromPosition(pos))
		}
	}
	state.floor = math.TransformFromPositionRotationScale(
		math.NewVec3(0, -1.5, 0),
		math.NewQuatFromAxisAngle(math.NewVec3(1, 0, 0), math.DegToRad(-90), false),
		math.NewVec3(half+gridSpacing, half+gridSpacing, 1),
	)

	if g.SystemManager == nil {
		return fmt.Errorf("the engine did not provide a system manager")
	}
	cameras := g.SystemManager.CameraSystem
	state.WorldCamera = cameras.GetDefault()
	state.WorldCamera.SetPosition(math.NewVec3(0, 12, 28))
	state.WorldCamera.LookAt(math.NewVec3Zero())

	if state.OverheadCamera, state.overheadIndex, err = cameras.Acquire("overhead"); err != nil {
		return err
	}
	state.OverheadCamera.SetPosition(math.NewVec3(0, 40, 0.1))
	state.OverheadCamera.LookAt(math.NewVec3Zero())
	return nil
}

func (g *TestGame) Update(deltaTime float64) error {
	state := g.state()
	rotation := math.NewQuatFromAxisAngle(math.NewVec3(0, 1, 0), float32(0.5*deltaTime), false)
	for _, c := range state.cubes {
		c.Rotate(rotation)
	}
	return nil
}

// Render draws the floor quad and the cube grid. With the wireframe toggle
// on, every other cube goes through the wireframe pipeline.
func (g *TestGame) Render(r *renderer.Renderer, deltaTime float64) error {
	state := g.state()
	r.Meshes().SetActiveCamera(state.activeCamera)

	r.AddObject(state.floor, state.quad, state.shader, state.pipeline, state.texture, state.sampler)
	for i, c := range state.cubes {
		pipeline := state.pipeline
		if state.showWireframe && i%2 == 1 {
			pipeline = state.wireframe
		}
		r.AddObject(c, state.cube, state.shader, pipeline, state.texture, state.sampler)
	}
	return nil
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	core.LogDebug("testbed resized to %dx%d", width, height)
	return nil
}

func (g *TestGame) OnKey(keyCode uint16) {
	state := g.state()
	camera := state.WorldCamera
	if camera == nil {
		return
	}
	switch glfw.Key(keyCode) {
	case glfw.KeyC:
		if state.activeCamera == 0 {
			state.activeCamera = state.overheadIndex
		} else {
			state.activeCamera = 0
		}
	case glfw.KeyW:
		camera.MoveForward(moveStep)
	case glfw.KeyS:
		camera.MoveBackward(moveStep)
	case glfw.KeyA:
		camera.MoveLeft(moveStep)
	case glfw.KeyD:
		camera.MoveRight(moveStep)
	case glfw.KeySpace:
		camera.MoveUp(moveStep)
	case glfw.KeyX:
		camera.MoveDown(moveStep)
	case glfw.KeyLeft:
		camera.Yaw(turnStep)
	case glfw.KeyRight:
		camera.Yaw(-turnStep)
	case glfw.KeyUp:
		camera.Pitch(turnStep)
	case glfw.KeyDown:
		camera.Pitch(-turnStep)
	case glfw.KeyF:
		state.showWireframe = !state.showWireframe
	case glfw.KeyP:
		pos := camera.GetPosition()
		rot := camera.GetEulerRotation()
		core.LogInfo("Camera Pos: [%.3f, %.3f, %.3f] Rot: [%.3f, %.3f, %.3f]",
			pos.X, pos.Y, pos.Z, math.RadToDeg(rot.X), math.RadToDeg(rot.Y), math.RadToDeg(rot.Z))
	}
}

func (g *TestGame) Shutdown() error {
	core.LogDebug("TestGame Shutdown fn....")
	if g.SystemManager != nil && g.state().OverheadCamera != nil {
		g.SystemManager.CameraSystem.Release("overhead")
	}
	return nil
}
