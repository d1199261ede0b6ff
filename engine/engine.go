package engine

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/schollz/progressbar/v3"
	"github.com/spaghettifunk/anima-mesh/engine/assets"
	"github.com/spaghettifunk/anima-mesh/engine/assets/loaders"
	"github.com/spaghettifunk/anima-mesh/engine/core"
	"github.com/spaghettifunk/anima-mesh/engine/platform"
	"github.com/spaghettifunk/anima-mesh/engine/renderer"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/headless"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/vulkan"
	"github.com/spaghettifunk/anima-mesh/engine/systems"
)

type Engine struct {
	currentStage Stage
	gameInstance *Game
	config       *core.EngineConfig
	isRunning    atomic.Bool
	isSuspended  bool

	systemManager *systems.SystemManager

	// nil when running headless
	platform *platform.Platform
	backend  metadata.Backend
	store    *assets.Store
	watcher  *assets.Watcher
	renderer *renderer.Renderer

	width    uint32
	height   uint32
	clock    *core.Clock
	metrics  *core.FrameMetrics
	lastTime float64
}

func New(g *Game) (*Engine, error) {
	if g == nil || g.FnRender == nil {
		return nil, fmt.Errorf("a game with a render hook is required")
	}
	config := g.Config
	if config == nil {
		config = core.DefaultConfig()
		g.Config = config
	}
	if err := config.Validate(); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	core.SetLogLevel(config.Log.Level)

	return &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		config:       config,
		clock:        core.NewClock(),
		metrics:      core.NewFrameMetrics(),
		width:        config.Application.Width,
		height:       config.Application.Height,
	}, nil
}

// Store is the asset store, available once Initialize has run.
func (e *Engine) Store() *assets.Store {
	return e.store
}

func (e *Engine) Renderer() *renderer.Renderer {
	return e.renderer
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

/**
 * @brief Opens the window, brings up the configured backend, registers and
 * preloads the asset manifest and builds the renderer. A failed Initialize
 * leaves the engine ready for Shutdown.
 */
func (e *Engine) Initialize() error {
	if err := e.expectStage("Initialize", EngineStageUninitialized); err != nil {
		return err
	}
	e.currentStage = EngineStageInitializing

	core.EventInitialize()
	core.EventRegister(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent)
	core.EventRegister(core.EVENT_CODE_KEY_PRESSED, e, e.onKey)
	core.EventRegister(core.EVENT_CODE_RESIZED, e, e.onResized)
	core.EventRegister(core.EVENT_CODE_ASSET_CHANGED, e, e.onAssetChanged)

	sm, err := systems.NewSystemManager()
	if err != nil {
		return err
	}
	e.systemManager = sm
	e.gameInstance.SystemManager = sm

	if err := e.createBackend(); err != nil {
		return err
	}

	loader := systems.NewPrefetchLoader(loaders.NewYAMLLoader())
	e.store = assets.NewStore(assets.StoreConfig{MaxTextures: e.config.Renderer.MaxTextures}, e.backend, loader)
	if e.config.Assets.Manifest != "" {
		manifest, err := assets.LoadManifest(e.config.Assets.Manifest)
		if err != nil {
			return err
		}
		if err := e.store.RegisterManifest(manifest); err != nil {
			return err
		}
		loader.Prefetch(sm.JobSystem, manifest.Decls())
	}

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(e.store); err != nil {
			return fmt.Errorf("game initialize: %w", err)
		}
	}

	if err := e.preload(); err != nil {
		// Broken assets fall back at draw time, the engine keeps going.
		core.LogWarn("some assets failed to preload: %s", err)
	}

	if e.config.Assets.Watch {
		if err := e.startWatcher(); err != nil {
			core.LogWarn("hot reload disabled: %s", err)
		}
	}

	r, err := renderer.New(e.backend, e.store, &e.config.Renderer)
	if err != nil {
		return err
	}
	e.renderer = r

	if e.gameInstance.FnOnResize != nil {
		extent := e.backend.Swapchain().Extent()
		if err := e.gameInstance.FnOnResize(extent.Width, extent.Height); err != nil {
			return err
		}
	}

	e.currentStage = EngineStageInitialized
	core.LogInfo("Engine initialized with the %s backend", e.config.Renderer.Backend)
	return nil
}

func (e *Engine) createBackend() error {
	switch e.config.Renderer.Backend {
	case core.BackendHeadless:
		e.backend = headless.New(headless.Config{
			ImageCount: headless.DefaultConfig().ImageCount,
			Extent:     metadata.Extent{Width: e.width, Height: e.height},
		})
		return nil
	case core.BackendVulkan:
		app := e.config.Application
		p := platform.New()
		if err := p.Startup(app.Name, app.X, app.Y, app.Width, app.Height); err != nil {
			return err
		}
		e.platform = p
		b, err := vulkan.New(p, e.config)
		if err != nil {
			return err
		}
		e.backend = b
		return nil
	}
	return fmt.Errorf("unknown renderer backend '%s'", e.config.Renderer.Backend)
}

func (e *Engine) preload() error {
	var bar *progressbar.ProgressBar
	defer func() {
		if bar != nil {
			_ = bar.Finish()
		}
	}()
	return e.store.Preload(func(done, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionSetDescription("loading assets"),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
		}
		_ = bar.Set(done)
	})
}

func (e *Engine) startWatcher() error {
	w, err := assets.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Start(e.config.Assets.Root); err != nil {
		_ = w.Close()
		return err
	}
	e.watcher = w
	return nil
}

// Stop asks Run to return after the current frame. Safe from any goroutine.
func (e *Engine) Stop() {
	e.isRunning.Store(false)
}

func (e *Engine) Run() error {
	if err := e.expectStage("Run", EngineStageInitialized); err != nil {
		return err
	}
	e.currentStage = EngineStageRunning
	e.isRunning.Store(true)

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	for e.isRunning.Load() {
		if e.platform != nil && !e.platform.PumpMessages() {
			e.isRunning.Store(false)
			break
		}
		if e.isSuspended {
			continue
		}

		// Update clock and get delta time.
		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime

		if err := e.Frame(delta); err != nil {
			core.LogError("frame failed, shutting down: %s", err)
			e.isRunning.Store(false)
			e.currentStage = EngineStageInitialized
			return err
		}

		e.clock.Update()
		if e.metrics.Update(e.clock.Elapsed() - currentTime) {
			fps, ms := e.metrics.Frame()
			core.LogDebug("%.0f FPS, %.3f ms/frame", fps, ms)
		}
		e.lastTime = currentTime
	}

	e.currentStage = EngineStageInitialized
	return nil
}

/**
 * @brief Runs one frame: pending hot reloads, the game update, then the
 * frame itself with the game's render hook between BeginFrame and EndFrame.
 * A frame skipped for a stale or minimized swapchain is not an error.
 */
func (e *Engine) Frame(delta float64) error {
	if e.watcher != nil {
		for _, path := range e.watcher.Drain() {
			ctx := core.EventContext{}
			ctx.Data.C[0] = path
			core.EventFire(core.EVENT_CODE_ASSET_CHANGED, e.watcher, ctx)
		}
	}

	if e.gameInstance.FnUpdate != nil {
		if err := e.gameInstance.FnUpdate(delta); err != nil {
			return fmt.Errorf("game update: %w", err)
		}
	}

	frame, err := e.renderer.BeginFrame()
	if err != nil {
		if errors.Is(err, core.ErrSwapchainStale) {
			return nil
		}
		return err
	}

	e.systemManager.CameraSystem.Fill(e.renderer.Camera(), e.renderer.AspectRatio())

	// The frame is ended even if the game fails to fill it.
	renderErr := e.gameInstance.FnRender(e.renderer, delta)
	if err := e.renderer.EndFrame(frame); err != nil {
		switch {
		case errors.Is(err, core.ErrSwapchainStale):
		case errors.Is(err, core.ErrLoadFailure), errors.Is(err, core.ErrNotFound):
			// Already logged by the renderer, the frame was still submitted.
		default:
			return err
		}
	}
	if renderErr != nil {
		return fmt.Errorf("game render: %w", renderErr)
	}
	return nil
}

/**
 * @brief Releases everything in reverse creation order. It can be called
 * after a failed Initialize.
 */
func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageShutdown {
		return nil
	}
	e.isRunning.Store(false)
	e.currentStage = EngineStageShuttingDown

	var errs []error
	if e.gameInstance.FnShutdown != nil {
		errs = append(errs, e.gameInstance.FnShutdown())
	}
	if e.watcher != nil {
		errs = append(errs, e.watcher.Close())
		e.watcher = nil
	}
	if e.renderer != nil {
		errs = append(errs, e.renderer.Shutdown())
		e.renderer = nil
	}
	if e.store != nil {
		errs = append(errs, e.store.Destroy())
		e.store = nil
	}
	if e.backend != nil {
		errs = append(errs, e.backend.Shutdown())
		e.backend = nil
	}
	if e.platform != nil {
		errs = append(errs, e.platform.Shutdown())
		e.platform = nil
	}
	if e.systemManager != nil {
		errs = append(errs, e.systemManager.Shutdown())
		e.systemManager = nil
	}
	errs = append(errs, core.EventShutdown())

	e.currentStage = EngineStageShutdown
	return errors.Join(errs...)
}

// GetFramebufferSize returns the width and height (in this order)
// of the application framebuffer
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func (e *Engine) onEvent(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	if code == core.EVENT_CODE_APPLICATION_QUIT {
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.isRunning.Store(false)
		return true
	}
	return false
}

func (e *Engine) onKey(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	if e.gameInstance.FnOnKey != nil {
		e.gameInstance.FnOnKey(data.Data.U16[0])
	}
	return false
}

func (e *Engine) onResized(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	width := data.Data.U32[0]
	height := data.Data.U32[1]

	// Check if different. If so, trigger a resize.
	if width == e.width && height == e.height {
		return false
	}
	e.width = width
	e.height = height
	core.LogDebug("Window resize: %d, %d", width, height)

	if e.renderer != nil {
		e.renderer.Resize(width, height)
	}

	// Handle minimization
	if width == 0 || height == 0 {
		core.LogInfo("Window minimized, suspending application.")
		e.isSuspended = true
		return false
	}
	if e.isSuspended {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended = false
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(width, height); err != nil {
			core.LogError(err.Error())
		}
	}
	return false
}

func (e *Engine) onAssetChanged(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	path := data.Data.C[0]
	if e.renderer == nil || path == "" {
		return false
	}
	if n := e.renderer.Reload([]string{path}); n == 0 {
		core.LogDebug("'%s' changed, nothing to reload", path)
	}
	return false
}
