package rebuild

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher is the instance of the rebuild loop itself. It wires the
// production-dep resolver, the mirror pipeline, the restart debouncer, the
// child supervisor and the shutdown coordinator around the configured
// watch directories.
type Watcher struct {
	// Config of watch roots, output root, hooks and children.
	Config Config

	// The writer for debug output to go to.
	Debug io.Writer

	// The writer children write output to.
	Stdout io.Writer

	// The writer children write errors to.
	Stderr io.Writer

	// KillPort overrides how final shutdown frees a TCP port. Defaults to
	// killing whatever listens on it.
	KillPort func(ctx context.Context, port int) error

	// Exit overrides how the process exits after the final port kill.
	Exit func(code int)

	ctx   context.Context
	sup   *supervisor
	pipe  *pipeline
	deb   *debouncer
	coord *shutdownCoordinator
}

// NewWatcherWithContext returns a new Watcher for the given config. It
// accepts a context that, when the watcher is started, allows for
// cancellation.
func NewWatcherWithContext(ctx context.Context, config Config) *Watcher {
	return &Watcher{
		Config: config,
		Debug:  io.Discard,
		Stdout: os.Stdout,
		Stderr: os.Stderr,

		ctx: ctx,
	}
}

// NewWatcher returns a new Watcher for the given config.
func NewWatcher(config Config) *Watcher {
	return NewWatcherWithContext(context.Background(), config)
}

func (w *Watcher) validateWatch() error {
	if len(w.Config.Watch) == 0 {
		return fmt.Errorf("at least one watch directory is required")
	}

	for i, dir := range w.Config.Watch {
		if filepath.IsAbs(dir) {
			wd, err := os.Getwd()
			if err != nil {
				return err
			}

			rel, err := filepath.Rel(wd, dir)
			if err != nil || strings.HasPrefix(rel, "..") {
				return fmt.Errorf("watch directory %s is outside the working directory", dir)
			}
			dir = rel
		}

		dir = slashPath(dir)
		fi, err := os.Stat(filepath.FromSlash(dir))
		if err != nil {
			return fmt.Errorf("watch directory %s does not exist", dir)
		}
		if !fi.IsDir() {
			return fmt.Errorf("watch path %s is not a directory", dir)
		}

		w.Config.Watch[i] = dir
	}

	return nil
}

func (w *Watcher) validateOutput() error {
	if w.Config.Output == "" {
		return fmt.Errorf("an output directory is required")
	}

	out := slashPath(w.Config.Output)
	for _, dir := range w.Config.Watch {
		if out == dir || strings.HasPrefix(out+"/", dir+"/") {
			return fmt.Errorf("output directory %s is inside watch directory %s", out, dir)
		}
		if strings.HasPrefix(dir+"/", out+"/") {
			return fmt.Errorf("watch directory %s is inside output directory %s", dir, out)
		}
	}

	return nil
}

func (w *Watcher) validateTransform() error {
	if w.Config.Using != "" && len(w.Config.Transform) == 0 {
		return fmt.Errorf("a transformer hook requires at least one transform glob")
	}

	return nil
}

func (w *Watcher) validateCommands() error {
	for _, f := range w.Config.Fork {
		for _, s := range w.Config.Spawn {
			if f == s {
				return fmt.Errorf("%s is configured as both fork and spawn", f)
			}
		}
	}

	return nil
}

// Validate validates the configuration and returns any errors.
func (w *Watcher) Validate() error {
	type validateFunc func() error

	validations := []validateFunc{
		w.validateWatch,
		w.validateOutput,
		w.validateTransform,
		w.validateCommands,
	}

	for _, validation := range validations {
		if err := validation(); err != nil {
			return err
		}
	}

	return nil
}

// Start runs the rebuild loop: wipe and recreate the output root, resolve
// production deps, mirror the watched trees, and then either exit (no
// children configured) or supervise the child set against file events
// until interrupted. Start should not exit normally unless an error
// occurred, the context was cancelled, or no children are configured.
func (w *Watcher) Start() error {
	if w.Debug == nil {
		w.Debug = io.Discard
	}
	if w.Stdout == nil {
		w.Stdout = os.Stdout
	}
	if w.Stderr == nil {
		w.Stderr = os.Stderr
	}
	if w.ctx == nil {
		w.ctx = context.Background()
	}

	if err := w.Validate(); err != nil {
		return err
	}

	transformer := Transformer(identityTransformer)
	if w.Config.Using != "" {
		hook, err := parseHook("transform", w.Config.Using)
		if err != nil {
			return err
		}
		transformer = shellTransformer(hook, w.Stderr)
	}

	w.sup = newSupervisor(w.Config, w.Stdout, w.Stderr, w.Debug)
	if w.Config.Cleanup != "" {
		hook, err := parseHook("cleanup", w.Config.Cleanup)
		if err != nil {
			return err
		}
		w.sup.cleanup = shellCleanup(hook, w.Stdout, w.Stderr)
	}

	w.coord = newShutdownCoordinator(w.Config.Kill)
	if w.KillPort != nil {
		w.coord.killPort = w.KillPort
	}
	if w.Exit != nil {
		w.coord.exit = w.Exit
	}

	// The output root is wiped and recreated here, once, never again.
	out := slashPath(w.Config.Output)
	if err := os.RemoveAll(filepath.FromSlash(out)); err != nil {
		return w.fatal(err)
	}
	if err := os.MkdirAll(filepath.FromSlash(out), 0o755); err != nil {
		return w.fatal(err)
	}

	deps, err := newResolver(w.Debug).Resolve(w.Config.Watch)
	if err != nil {
		return w.fatal(err)
	}

	w.deb = newDebouncer(restartWindow, w.sup.restart)
	w.pipe = &pipeline{
		output:      out,
		gate:        newTransformGate(w.Config.Transform),
		transform:   transformer,
		filter:      newFilter(deps, w.Debug),
		notify:      w.deb.Notify,
		debug:       w.Debug,
		interrupted: w.sup.isShuttingDown,
	}

	w.coord.watchSignals(w.sup)

	if err := w.pipe.scan(w.ctx, w.Config.Watch); err != nil {
		return w.fatal(err)
	}

	if !w.sup.configured() {
		log.Println("build complete")
		return nil
	}

	n, err := fsnotify.NewWatcher()
	if err != nil {
		return w.fatal(fmt.Errorf("unable to start watcher: %v", err))
	}

	dirs, err := w.watchableDirs()
	if err != nil {
		return w.fatal(err)
	}

	for _, d := range dirs {
		if err := n.Add(filepath.FromSlash(d)); err != nil {
			return w.fatal(fmt.Errorf("failed watching %s: %v", d, err))
		}
		fmt.Fprintf(w.Debug, "watching %s\n", d)
	}

	// Watched directories mounted inside docker need their parent chains
	// watched too. Best effort.
	for _, extra := range fixDirectories(dirs) {
		if err := n.Add(extra); err != nil {
			fmt.Fprintf(w.Debug, "failed watching %s: %v\n", extra, err)
		}
	}

	go w.watchNewDirs(n, dirs)

	// The startup scan produced a flurry of notifications; drop them and
	// issue the single post-scan restart here.
	w.deb.Stop()
	w.sup.setReady()
	go w.sup.restart()

	return w.watchLoop(n)
}

// watchableDirs returns every directory under the watch roots that the
// filter accepts, in slash form.
func (w *Watcher) watchableDirs() ([]string, error) {
	var dirs []string

	for _, root := range w.Config.Watch {
		err := filepath.WalkDir(filepath.FromSlash(root), func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				return nil
			}

			rel := slashPath(p)
			if !w.pipe.filter.accept(rel) {
				return filepath.SkipDir
			}

			dirs = append(dirs, rel)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return dirs, nil
}

// watchNewDirs polls for directories created while running so the watcher
// can include them. Create events add watches immediately; this catches
// whatever raced past that.
func (w *Watcher) watchNewDirs(n *fsnotify.Watcher, init []string) {
	watched := make(map[string]bool)
	for _, d := range init {
		watched[d] = true
	}

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			latest, err := w.watchableDirs()
			if err != nil {
				continue
			}

			for _, d := range latest {
				if watched[d] {
					continue
				}
				watched[d] = true

				if err := n.Add(filepath.FromSlash(d)); err != nil {
					fmt.Fprintf(w.Debug, "failed to add new path %s: %v\n", d, err)
				} else {
					fmt.Fprintf(w.Debug, "watching new path %s\n", d)
				}
			}
		case <-w.ctx.Done():
			return
		}
	}
}

func (w *Watcher) watchLoop(n *fsnotify.Watcher) error {
	defer n.Close()

	for {
		select {
		case ev, ok := <-n.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Chmod) {
				continue
			}
			if w.sup.isShuttingDown() {
				continue
			}

			rel, ok := w.relPath(ev.Name)
			if !ok {
				continue
			}

			if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				if err := w.pipe.unlink(rel); err != nil {
					log.Println(err)
				}
				continue
			}

			if !w.pipe.filter.accept(rel) {
				continue
			}

			if ev.Has(fsnotify.Create) && isDir(filepath.FromSlash(rel)) {
				if err := n.Add(filepath.FromSlash(rel)); err == nil {
					fmt.Fprintf(w.Debug, "watching new path %s\n", rel)
				}
			}

			if err := w.pipe.process(w.ctx, rel); err != nil {
				return w.fatal(err)
			}

		case err, ok := <-n.Errors:
			if !ok {
				return nil
			}
			log.Println(err)

		case <-w.ctx.Done():
			return w.ctx.Err()
		}
	}
}

// relPath rewrites an event path relative to the working directory. Paths
// leading outside it (parents watched for the docker fix) are dropped.
func (w *Watcher) relPath(name string) (string, bool) {
	if !filepath.IsAbs(name) {
		rel := slashPath(name)
		if strings.HasPrefix(rel, "../") {
			return "", false
		}
		return rel, true
	}

	wd, err := os.Getwd()
	if err != nil {
		return "", false
	}

	rel, err := filepath.Rel(wd, name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}

	return slashPath(rel), true
}

// fatal surfaces a fatal runtime error: log it, run the final port kill,
// exit nonzero.
func (w *Watcher) fatal(err error) error {
	log.Println(err)
	if w.coord != nil {
		w.coord.finalKill(1)
	}

	return err
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	if err != nil {
		return false
	}

	return fi.IsDir()
}
