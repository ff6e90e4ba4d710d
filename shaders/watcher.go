package shaders

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"github.com/andewx/dieselrt"
)

// Watcher reports changes to a fixed set of shader files. It watches the
// parent directories so that editors which replace files on save are seen
// too. Bursts of events coalesce into a single pending notification.
type Watcher struct {
	fs      *fsnotify.Watcher
	files   map[string]bool
	changes chan string
	done    chan struct{}
	wg      sync.WaitGroup
}

func Watch(paths ...string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "create shader watcher")
	}
	w := &Watcher{
		fs:      fw,
		files:   map[string]bool{},
		changes: make(chan string, 1),
		done:    make(chan struct{}),
	}
	dirs := map[string]bool{}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			fw.Close()
			return nil, errors.Wrapf(err, "resolve %s", p)
		}
		w.files[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			fw.Close()
			return nil, errors.Wrapf(err, "watch %s", dir)
		}
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	log := dieselrt.Logger()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			name, err := filepath.Abs(event.Name)
			if err != nil || !w.files[name] {
				continue
			}
			log.Debug("shader changed", "path", name, "op", event.Op.String())
			select {
			case w.changes <- name:
			default:
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			log.Warn("shader watcher error", "err", err)
		}
	}
}

// Changes delivers the path of a changed shader. A reader that falls
// behind sees one pending path, not every event.
func (w *Watcher) Changes() <-chan string { return w.changes }

func (w *Watcher) Close() error {
	close(w.done)
	err := w.fs.Close()
	w.wg.Wait()
	return err
}
