// Package dirwatch notices files added, changed or removed in a content
// directory by anything other than the mutation endpoints, such as a manual
// copy or rsync. Reads never depend on it: the store rescans on every
// request. The watcher only logs and keeps the file-count gauge current.
package dirwatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/1a11/billard/internal/atomicfile"
	"github.com/1a11/billard/internal/log"
	"github.com/1a11/billard/internal/xerrors"
)

const defaultDebounce = 200 * time.Millisecond

type Options struct {
	Dir        string
	Collection string // log and metric label, e.g. "articles"
	Logger     log.Logger

	// Count recounts the collection after a burst of events settles.
	Count func(context.Context) (int, error)
	// OnCount receives each recount, including the initial one.
	OnCount func(collection string, n int)
	// OnEvent is called once per relevant event with its op name.
	OnEvent func(op string)

	Debounce time.Duration
}

type Watcher struct {
	opts    Options
	w       *fsnotify.Watcher
	done    chan struct{}
	stopped sync.Once
}

// Start counts the directory once and then watches it until ctx is done or
// Close is called.
func Start(ctx context.Context, opts Options) (*Watcher, error) {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, xerrors.Wrap(err, "create fsnotify watcher")
	}
	if err := fw.Add(opts.Dir); err != nil {
		_ = fw.Close()
		return nil, xerrors.Wrapf(err, "watch %s", opts.Dir)
	}

	wt := &Watcher{opts: opts, w: fw, done: make(chan struct{})}
	wt.recount(ctx)
	go wt.run(ctx)
	return wt, nil
}

// Close stops the watcher and waits for its loop to exit.
func (wt *Watcher) Close() error {
	var err error
	wt.stopped.Do(func() { err = wt.w.Close() })
	<-wt.done
	return err
}

func (wt *Watcher) run(ctx context.Context) {
	defer close(wt.done)
	L := wt.opts.Logger.With("collection", wt.opts.Collection, "dir", wt.opts.Dir)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			wt.stopped.Do(func() { _ = wt.w.Close() })
			return
		case ev, ok := <-wt.w.Events:
			if !ok {
				return
			}
			op := opName(ev.Op)
			if op == "" || atomicfile.IsTemp(ev.Name) {
				continue
			}
			L.Debug(ctx, "content directory changed", "op", op, "file", ev.Name)
			if wt.opts.OnEvent != nil {
				wt.opts.OnEvent(op)
			}
			timer.Reset(wt.opts.Debounce)
		case err, ok := <-wt.w.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				L.Warn(ctx, "content watcher overflowed, recounting")
				timer.Reset(wt.opts.Debounce)
				continue
			}
			L.Error(ctx, err, "content watcher error")
		case <-timer.C:
			wt.recount(ctx)
		}
	}
}

func (wt *Watcher) recount(ctx context.Context) {
	if wt.opts.Count == nil {
		return
	}
	n, err := wt.opts.Count(ctx)
	if err != nil {
		wt.opts.Logger.Error(ctx, err, "recount content directory", "collection", wt.opts.Collection)
		return
	}
	if wt.opts.OnCount != nil {
		wt.opts.OnCount(wt.opts.Collection, n)
	}
}

// opName reduces an fsnotify op to one label. Chmod alone is ignored.
func opName(op fsnotify.Op) string {
	switch {
	case op.Has(fsnotify.Create):
		return "create"
	case op.Has(fsnotify.Write):
		return "write"
	case op.Has(fsnotify.Remove):
		return "remove"
	case op.Has(fsnotify.Rename):
		return "rename"
	}
	return ""
}
