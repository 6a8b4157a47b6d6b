package rebuild

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// pipeline mirrors accepted source paths into the output root: directories
// and symlinks become directories, gated files pass through the
// transformer, everything else is copied byte-for-byte. Every completed
// file write notifies the restart debouncer.
//
// Per-file operations are serialized at the input side; the pipeline is
// driven by one event at a time.
type pipeline struct {
	output    string
	gate      *transformGate
	transform Transformer
	filter    *filter
	notify    func()
	debug     io.Writer

	// interrupted reports the shutdown flag; once raised the startup scan
	// stops enqueueing work.
	interrupted func() bool
}

// process mirrors a single accepted source path.
func (p *pipeline) process(ctx context.Context, src string) error {
	src = slashPath(src)
	out := mapPath(p.output, src)

	fi, err := os.Lstat(filepath.FromSlash(src))
	if os.IsNotExist(err) {
		// The file disappeared between event and read. Nothing to rebuild
		// against; skip without retrying.
		fmt.Fprintf(p.debug, "vanished before mirror: %s\n", src)
		return nil
	} else if err != nil {
		return err
	}

	// Directories and symlinks both land as directories; symlinks are
	// never followed into the output tree.
	if fi.IsDir() || fi.Mode()&fs.ModeSymlink != 0 {
		if _, err := os.Lstat(filepath.FromSlash(out)); os.IsNotExist(err) {
			return os.MkdirAll(filepath.FromSlash(out), 0o755)
		}
		return nil
	}

	contents, err := os.ReadFile(filepath.FromSlash(src))
	if os.IsNotExist(err) {
		fmt.Fprintf(p.debug, "vanished before mirror: %s\n", src)
		return nil
	} else if err != nil {
		return err
	}

	if p.gate.matches(src) {
		srcAbs, err := filepath.Abs(filepath.FromSlash(src))
		if err != nil {
			return err
		}
		outAbs, err := filepath.Abs(filepath.FromSlash(out))
		if err != nil {
			return err
		}

		transformed, err := p.transform(ctx, srcAbs, outAbs, contents)
		if err != nil {
			return err
		}
		contents = []byte(transformed)
	}

	if err := writeAtomic(out, contents, fi.Mode().Perm()); err != nil {
		return fmt.Errorf("failed mirroring %s: %v", src, err)
	}

	p.notify()
	return nil
}

// unlink removes the mirrored counterpart of a deleted source path. A
// removed directory only logs; there is nothing to rebuild against.
func (p *pipeline) unlink(src string) error {
	src = slashPath(src)
	out := mapPath(p.output, src)

	fi, err := os.Lstat(filepath.FromSlash(out))
	if err != nil {
		return nil
	}

	if fi.IsDir() {
		if err := os.RemoveAll(filepath.FromSlash(out)); err != nil {
			return err
		}
		fmt.Fprintf(p.debug, "removed directory: %s\n", out)
		return nil
	}

	if err := os.Remove(filepath.FromSlash(out)); err != nil {
		return err
	}

	p.notify()
	return nil
}

// scan walks every watch root in order and mirrors each accepted path in
// discovery order. The shutdown flag breaks the walk.
func (p *pipeline) scan(ctx context.Context, roots []string) error {
	for _, root := range roots {
		err := filepath.WalkDir(filepath.FromSlash(root), func(walked string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}

			if p.interrupted() {
				return fs.SkipAll
			}

			rel := slashPath(walked)
			if !p.filter.accept(rel) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			return p.process(ctx, rel)
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// writeAtomic writes data to out through a rename so readers never observe
// a partial file.
func writeAtomic(out string, data []byte, mode fs.FileMode) error {
	outOS := filepath.FromSlash(out)
	dir := filepath.Dir(outOS)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".rebuild-*")
	if err != nil {
		return err
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}

	if mode != 0 {
		tmp.Chmod(mode)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	return os.Rename(tmp.Name(), outOS)
}
