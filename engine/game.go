package engine

import (
	"github.com/spaghettifunk/anima-mesh/engine/assets"
	"github.com/spaghettifunk/anima-mesh/engine/core"
	"github.com/spaghettifunk/anima-mesh/engine/renderer"
	"github.com/spaghettifunk/anima-mesh/engine/systems"
)

/**
 * @brief The hooks a game hands to the engine. Only FnRender is required,
 * every other hook may be left nil.
 */
type Game struct {
	Config        *core.EngineConfig
	// Set by the engine before FnInitialize runs.
	SystemManager *systems.SystemManager
	State         interface{}

	FnInitialize Initialize
	FnUpdate     Update
	FnRender     Render
	FnOnResize   OnResize
	FnOnKey      OnKey
	FnShutdown   Shutdown
}

// Initialize runs once the asset store holds the manifest's registrations.
type Initialize func(store *assets.Store) error

type Update func(deltaTime float64) error

// Render queues the frame's objects with AddObject. The cameras of the
// SystemManager are already written for the frame.
type Render func(r *renderer.Renderer, deltaTime float64) error

type OnResize func(width uint32, height uint32) error
type OnKey func(keyCode uint16)
type Shutdown func() error
