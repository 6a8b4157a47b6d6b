package rebuild

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// manifestName is the package descriptor looked for in every package folder.
const manifestName = "package.json"

// vendorDir is the nested dependency directory name.
const vendorDir = "node_modules"

// manifest is the subset of a package descriptor the resolver cares about.
// A manifest without a name still contributes dependency edges.
type manifest struct {
	Name         string            `json:"name"`
	Dependencies map[string]string `json:"dependencies"`
}

// resolver computes the set of vendor folders that participate in the
// build: every folder a production install of the top-level packages would
// carry, found by walking manifest dependency graphs and symlinks.
//
// The same manifest is read many times during nested-first lookup, so
// parses are cached.
type resolver struct {
	debug io.Writer

	manifests *lru.Cache[string, *manifest]
}

func newResolver(debug io.Writer) *resolver {
	cache, _ := lru.New[string, *manifest](1024)

	return &resolver{
		debug:     debug,
		manifests: cache,
	}
}

// readManifest parses the manifest of the package folder dir. The caller
// distinguishes a missing manifest (fs.ErrNotExist) from a malformed one.
func (r *resolver) readManifest(dir string) (*manifest, error) {
	if m, ok := r.manifests.Get(dir); ok {
		return m, nil
	}

	bb, err := os.ReadFile(filepath.Join(filepath.FromSlash(dir), manifestName))
	if err != nil {
		return nil, err
	}

	m := &manifest{}
	if err := json.Unmarshal(bb, m); err != nil {
		return nil, fmt.Errorf("failed parsing %s/%s: %v", dir, manifestName, err)
	}

	r.manifests.Add(dir, m)
	return m, nil
}

// hasManifest reports whether dir holds a package manifest.
func (r *resolver) hasManifest(dir string) bool {
	fi, err := os.Stat(filepath.Join(filepath.FromSlash(dir), manifestName))
	return err == nil && !fi.IsDir()
}

// Resolve walks the watch directories and returns the production-dep set:
// working-directory relative, forward-slash folder paths. The set is
// computed once at startup and never mutated afterwards.
func (r *resolver) Resolve(watchDirs []string) (map[string]bool, error) {
	deps := make(map[string]bool)

	var queue []string
	for _, dir := range watchDirs {
		tops, err := r.findTopLevel(slashPath(dir))
		if err != nil {
			return nil, err
		}

		for _, top := range tops {
			seeds, err := r.seedPackage(top)
			if err != nil {
				return nil, err
			}
			queue = append(queue, seeds...)
		}
	}

	// Fixpoint expansion. Membership is deduplicated, so a dependency
	// cycle terminates: only unseen paths advance the queue.
	for len(queue) > 0 {
		dep := queue[0]
		queue = queue[1:]

		if deps[dep] {
			continue
		}
		deps[dep] = true
		fmt.Fprintf(r.debug, "prod dep: %s\n", dep)

		next, err := r.expand(dep)
		if err != nil {
			return nil, err
		}
		queue = append(queue, next...)
	}

	// Org expansion: admitting the @scope folder itself makes the
	// per-event filter a single map lookup for scoped packages.
	for dep := range deps {
		parent := path.Dir(dep)
		if strings.HasPrefix(path.Base(parent), "@") {
			deps[parent] = true
		}
	}

	return deps, nil
}

// findTopLevel recursively locates package folders holding a manifest,
// ignoring dotfiles and anything inside a vendor tree.
func (r *resolver) findTopLevel(root string) ([]string, error) {
	var tops []string

	err := filepath.WalkDir(filepath.FromSlash(root), func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		name := d.Name()
		if strings.HasPrefix(name, ".") && p != filepath.FromSlash(root) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() && name == vendorDir {
			return filepath.SkipDir
		}

		if !d.IsDir() && name == manifestName {
			tops = append(tops, slashPath(filepath.Dir(p)))
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed scanning %s for manifests: %v", root, err)
	}

	return tops, nil
}

// seedPackage returns the initial working set contributed by the top-level
// package folder top: one vendor path per direct dependency plus every
// symlinked vendor entry. A direct dependency missing from the package's
// vendor directory is an error.
func (r *resolver) seedPackage(top string) ([]string, error) {
	m, err := r.readManifest(top)
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(r.debug, "top-level manifest: %s\n", top)

	var seeds []string
	for _, name := range sortedDeps(m) {
		dep := path.Join(top, vendorDir, name)
		if _, err := os.Stat(filepath.FromSlash(dep)); err != nil {
			return nil, fmt.Errorf("cannot resolve dependency %s of %s", name, top)
		}
		seeds = append(seeds, dep)
	}

	seeds = append(seeds, r.linkedEntries(path.Join(top, vendorDir))...)
	return seeds, nil
}

// expand returns the new working-set paths contributed by the dep folder:
// its resolved dependencies plus its symlinked vendor entries. A dep folder
// without a manifest contributes no edges.
func (r *resolver) expand(dep string) ([]string, error) {
	m, err := r.readManifest(dep)
	if os.IsNotExist(err) {
		fmt.Fprintf(r.debug, "no manifest in %s\n", dep)
		return r.linkedEntries(path.Join(dep, vendorDir)), nil
	} else if err != nil {
		return nil, err
	}

	var next []string
	for _, name := range sortedDeps(m) {
		resolved, err := r.resolveDep(dep, name)
		if err != nil {
			return nil, err
		}
		next = append(next, r.normalize(resolved))
	}

	next = append(next, r.linkedEntries(path.Join(dep, vendorDir))...)
	return next, nil
}

// resolveDep finds the folder providing dependency name for the package at
// from, nested-first with a flat fallback: each ancestor of from is checked
// for <ancestor>/node_modules/<name> holding a manifest, nearest first.
// Presence on disk is the source of truth; versions are ignored.
func (r *resolver) resolveDep(from, name string) (string, error) {
	anc := from
	for {
		candidate := path.Join(anc, vendorDir, name)
		if r.hasManifest(candidate) {
			return candidate, nil
		}

		if anc == "." || anc == "/" {
			break
		}
		anc = path.Dir(anc)
	}

	return "", fmt.Errorf("cannot resolve dependency %s of %s", name, from)
}

// linkedEntries returns the symlinked children of a vendor directory.
// Symlinks are included by presence alone; their targets are not followed.
func (r *resolver) linkedEntries(nmDir string) []string {
	entries, err := os.ReadDir(filepath.FromSlash(nmDir))
	if err != nil {
		return nil
	}

	var links []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}

		if e.Type()&fs.ModeSymlink != 0 {
			p := path.Join(nmDir, e.Name())
			fmt.Fprintf(r.debug, "linked dep: %s\n", p)
			links = append(links, p)
		}
	}

	return links
}

// normalize rewrites p relative to the working directory in slash form.
func (r *resolver) normalize(p string) string {
	if filepath.IsAbs(p) {
		if wd, err := os.Getwd(); err == nil {
			if rel, err := filepath.Rel(wd, p); err == nil && !strings.HasPrefix(rel, "..") {
				p = rel
			}
		}
	}

	return slashPath(p)
}

// sortedDeps returns the dependency names of m in a stable order.
func sortedDeps(m *manifest) []string {
	names := make([]string, 0, len(m.Dependencies))
	for name := range m.Dependencies {
		names = append(names, name)
	}

	sort.Strings(names)
	return names
}
