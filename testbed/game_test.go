package testbed

import (
	"testing"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spaghettifunk/anima-mesh/engine/assets"
	"github.com/spaghettifunk/anima-mesh/engine/assets/loaders"
	"github.com/spaghettifunk/anima-mesh/engine/core"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/headless"
	"github.com/spaghettifunk/anima-mesh/engine/systems"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The manifest only registers, nothing is loaded until drawn.
func newTestbedStore(t *testing.T) *assets.Store {
	t.Helper()
	manifest, err := assets.LoadManifest("../assets/manifest.yaml")
	require.NoError(t, err)
	store := assets.NewStore(assets.StoreConfig{MaxTextures: 4}, headless.New(headless.DefaultConfig()), loaders.NewYAMLLoader())
	require.NoError(t, store.RegisterManifest(manifest))
	return store
}

func newTestbed() *TestGame {
	g := NewTestGame(core.DefaultConfig())
	g.SystemManager = &systems.SystemManager{CameraSystem: systems.NewCameraSystem()}
	return g
}

func TestTestGameInitialize(t *testing.T) {
	g := newTestbed()
	require.NoError(t, g.FnInitialize(newTestbedStore(t)))

	state := g.state()
	assert.Len(t, state.cubes, gridSize*gridSize)
	assert.NotZero(t, state.cube)
	assert.NotZero(t, state.wireframe)
	assert.NotEqual(t, state.pipeline, state.wireframe)
}

func TestTestGameInitializeMissingAsset(t *testing.T) {
	g := newTestbed()
	store := assets.NewStore(assets.StoreConfig{MaxTextures: 4}, headless.New(headless.DefaultConfig()), loaders.NewYAMLLoader())
	assert.ErrorIs(t, g.FnInitialize(store), core.ErrNotFound)
}

func TestTestGameKeys(t *testing.T) {
	g := newTestbed()
	require.NoError(t, g.FnInitialize(newTestbedStore(t)))
	camera := g.state().WorldCamera

	before := camera.GetPosition()
	g.FnOnKey(uint16(glfw.KeyW))
	assert.NotEqual(t, before, camera.GetPosition())

	g.FnOnKey(uint16(glfw.KeyF))
	assert.True(t, g.state().showWireframe)
	g.FnOnKey(uint16(glfw.KeyF))
	assert.False(t, g.state().showWireframe)

	g.FnOnKey(uint16(glfw.KeyC))
	assert.Equal(t, g.state().overheadIndex, g.state().activeCamera)
	assert.NotZero(t, g.state().activeCamera)
	g.FnOnKey(uint16(glfw.KeyC))
	assert.Zero(t, g.state().activeCamera)
}

func TestTestGameShutdownReleasesCamera(t *testing.T) {
	g := newTestbed()
	require.NoError(t, g.FnInitialize(newTestbedStore(t)))
	assert.Equal(t, 2, g.SystemManager.CameraSystem.Active())
	require.NoError(t, g.FnShutdown())
	assert.Equal(t, 1, g.SystemManager.CameraSystem.Active())
}

func TestTestGameUpdateRotatesCubes(t *testing.T) {
	g := newTestbed()
	require.NoError(t, g.FnInitialize(newTestbedStore(t)))

	before := g.state().cubes[0].GetWorld()
	require.NoError(t, g.FnUpdate(0.5))
	assert.NotEqual(t, before, g.state().cubes[0].GetWorld())
}
