package assets

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/anima-mesh/engine/core"
)

type DeclInfo struct {
	Path        string
	LastChanged time.Time
}

// Watcher keeps an index of the declaration files under a directory tree and
// reports the ones that change.
type Watcher struct {
	decls map[string]DeclInfo
	mutex sync.RWMutex

	done     chan struct{}
	stopped  chan struct{}
	fsnotify *fsnotify.Watcher
	isClosed bool
	started  bool
	changes  chan string
}

func NewWatcher() (*Watcher, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		decls:    make(map[string]DeclInfo),
		fsnotify: fsWatch,
		changes:  make(chan string, 64),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}, nil
}

// Start indexes root and every sub-directory and begins watching them.
func (w *Watcher) Start(root string) error {
	if w.isClosed {
		return errors.New("watcher already closed")
	}
	if err := w.watchRecursive(root); err != nil {
		return err
	}
	w.started = true
	go w.run()
	core.LogInfo("watching %d asset declarations under '%s'", w.Len(), root)
	return nil
}

// Changes delivers the cleaned path of every changed declaration.
func (w *Watcher) Changes() <-chan string {
	return w.changes
}

// Drain returns the pending changes without blocking, each path once.
func (w *Watcher) Drain() []string {
	var out []string
	seen := map[string]bool{}
	for {
		select {
		case p, ok := <-w.changes:
			if !ok {
				return out
			}
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		default:
			return out
		}
	}
}

func (w *Watcher) Known(path string) bool {
	w.mutex.RLock()
	defer w.mutex.RUnlock()
	_, ok := w.decls[filepath.Clean(path)]
	return ok
}

func (w *Watcher) Len() int {
	w.mutex.RLock()
	defer w.mutex.RUnlock()
	return len(w.decls)
}

func (w *Watcher) Close() error {
	if w.isClosed {
		return nil
	}
	w.isClosed = true
	if !w.started {
		close(w.changes)
		return w.fsnotify.Close()
	}
	close(w.done)
	<-w.stopped
	return nil
}

func (w *Watcher) run() {
	defer close(w.stopped)
	for {
		select {
		case e, ok := <-w.fsnotify.Events:
			if !ok {
				return
			}
			s, err := os.Stat(e.Name)
			if err == nil && s.IsDir() {
				if e.Op&fsnotify.Create != 0 {
					if err := w.watchRecursive(e.Name); err != nil {
						core.LogWarn("failed to watch '%s': %s", e.Name, err)
					}
				}
				continue
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				if w.index(e.Name) {
					w.notify(filepath.Clean(e.Name))
				}
			}
			// Can't stat a removed path, so always try to drop it from the
			// index and the watch list.
			if e.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				w.removeDecl(e.Name)
				_ = w.fsnotify.Remove(e.Name)
			}

		case err, ok := <-w.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError(err.Error())

		case <-w.done:
			w.fsnotify.Close()
			close(w.changes)
			return
		}
	}
}

func (w *Watcher) notify(path string) {
	select {
	case w.changes <- path:
	default:
		core.LogWarn("asset change queue full, dropping '%s'", path)
	}
}

// watchRecursive adds all directories under the given one to the watch list
// and indexes the declarations found.
func (w *Watcher) watchRecursive(root string) error {
	return filepath.WalkDir(root, func(walkPath string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.fsnotify.Add(walkPath)
		}
		w.index(walkPath)
		return nil
	})
}

// index records path if it is a declaration file.
func (w *Watcher) index(path string) bool {
	if !IsDeclFile(path) {
		return false
	}
	w.mutex.Lock()
	defer w.mutex.Unlock()
	p := filepath.Clean(path)
	w.decls[p] = DeclInfo{Path: p, LastChanged: time.Now()}
	return true
}

func (w *Watcher) removeDecl(path string) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	delete(w.decls, filepath.Clean(path))
}

// IsDeclFile reports whether path has a declaration file extension.
func IsDeclFile(path string) bool {
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}
