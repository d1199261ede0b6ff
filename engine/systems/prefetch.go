package systems

import (
	"sync"

	"github.com/spaghettifunk/anima-mesh/engine/assets"
	"github.com/spaghettifunk/anima-mesh/engine/core"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/metadata"
)

type prefetchKey struct {
	kind metadata.AssetKind
	path string
}

/**
 * @brief A DeclLoader that reads declarations ahead of time on the job
 * system. Each prefetched declaration is handed out once, later loads of the
 * same path go to disk again so hot reload sees new contents.
 */
type PrefetchLoader struct {
	inner assets.DeclLoader

	mutex sync.Mutex
	cache map[prefetchKey]interface{}
}

var _ assets.DeclLoader = (*PrefetchLoader)(nil)

func NewPrefetchLoader(inner assets.DeclLoader) *PrefetchLoader {
	return &PrefetchLoader{
		inner: inner,
		cache: make(map[prefetchKey]interface{}),
	}
}

/**
 * @brief Loads every declaration in refs in parallel and waits for all of
 * them. A failed declaration is not cached; the store reports it when it
 * loads the asset.
 * @return The number of cached declarations.
 */
func (l *PrefetchLoader) Prefetch(js *JobSystem, refs []assets.DeclRef) int {
	var wg sync.WaitGroup
	cached := 0
	for _, ref := range refs {
		ref := ref
		var decl interface{}
		wg.Add(1)
		err := js.Submit(Job{
			Name: ref.Path,
			Run: func() error {
				var err error
				decl, err = l.load(ref.Kind, ref.Path)
				return err
			},
			OnComplete: func() {
				l.mutex.Lock()
				l.cache[prefetchKey{ref.Kind, ref.Path}] = decl
				cached++
				l.mutex.Unlock()
				wg.Done()
			},
			OnFailure: func(error) { wg.Done() },
		})
		if err != nil {
			wg.Done()
			core.LogWarn("prefetch of '%s' skipped: %s", ref.Path, err)
		}
	}
	wg.Wait()
	core.LogDebug("prefetched %d of %d declarations on %d workers", cached, len(refs), js.Workers())
	return cached
}

func (l *PrefetchLoader) load(kind metadata.AssetKind, path string) (interface{}, error) {
	switch kind {
	case metadata.AssetKindShader:
		return l.inner.LoadShader(path)
	case metadata.AssetKindPipeline:
		return l.inner.LoadPipeline(path)
	case metadata.AssetKindTexture:
		return l.inner.LoadTexture(path)
	case metadata.AssetKindSampler:
		return l.inner.LoadSampler(path)
	default:
		return l.inner.LoadMesh(path)
	}
}

// take removes and returns a prefetched declaration.
func (l *PrefetchLoader) take(kind metadata.AssetKind, path string) (interface{}, bool) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	key := prefetchKey{kind, path}
	decl, ok := l.cache[key]
	if ok {
		delete(l.cache, key)
	}
	return decl, ok
}

// Pending is the number of prefetched declarations not yet handed out.
func (l *PrefetchLoader) Pending() int {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return len(l.cache)
}

func (l *PrefetchLoader) LoadShader(path string) (*metadata.ShaderDecl, error) {
	if decl, ok := l.take(metadata.AssetKindShader, path); ok {
		return decl.(*metadata.ShaderDecl), nil
	}
	return l.inner.LoadShader(path)
}

func (l *PrefetchLoader) LoadPipeline(path string) (*metadata.PipelineDecl, error) {
	if decl, ok := l.take(metadata.AssetKindPipeline, path); ok {
		return decl.(*metadata.PipelineDecl), nil
	}
	return l.inner.LoadPipeline(path)
}

func (l *PrefetchLoader) LoadTexture(path string) (*metadata.TextureDecl, error) {
	if decl, ok := l.take(metadata.AssetKindTexture, path); ok {
		return decl.(*metadata.TextureDecl), nil
	}
	return l.inner.LoadTexture(path)
}

func (l *PrefetchLoader) LoadSampler(path string) (*metadata.SamplerDecl, error) {
	if decl, ok := l.take(metadata.AssetKindSampler, path); ok {
		return decl.(*metadata.SamplerDecl), nil
	}
	return l.inner.LoadSampler(path)
}

func (l *PrefetchLoader) LoadMesh(path string) (*metadata.MeshDecl, error) {
	if decl, ok := l.take(metadata.AssetKindStaticMesh, path); ok {
		return decl.(*metadata.MeshDecl), nil
	}
	return l.inner.LoadMesh(path)
}
