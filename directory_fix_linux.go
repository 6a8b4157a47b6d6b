//go:build linux

package rebuild

import (
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/jsgilmore/mount"
)

var (
	cachedDetectDocker *bool
)

// fixDirectories fixes an issue where watched directories mounted
// inside of a docker container do not trigger events unless you
// are also watching the parents of those directories.
//
// fixDirectories returns the unique parent directories of the input,
// up to the mount point, that should additionally be watched.
func fixDirectories(input []string) []string {
	if !detectDocker() {
		return nil
	}

	mm, err := mount.Mounts()
	if err != nil {
		log.Printf(
			"WARNING: could not get mounts (%v). Some file events may not work\n",
			err,
		)

		return nil
	}

	parentsMap := make(map[string]bool)

	addParents := func(root string, path string) {
		parent := path
		for parent != root {
			parent = filepath.Dir(parent)
			parentsMap[parent] = true
		}
	}

	for _, i := range input {
		abs, err := filepath.Abs(filepath.FromSlash(i))
		if err != nil {
			continue
		}

		for _, m := range mm {
			if m.Filesystem != "fuse.osxfs" {
				continue
			}

			if strings.HasPrefix(abs, m.Path) {
				addParents(m.Path, abs)
			}
		}
	}

	var parents []string
	for parent := range parentsMap {
		parents = append(parents, parent)
	}

	return parents
}

func detectDocker() bool {
	if cachedDetectDocker != nil {
		return *cachedDetectDocker
	}

	bb, err := os.ReadFile("/proc/1/cgroup")
	if err != nil {
		return false
	}

	res := strings.Contains(string(bb), "/docker/")
	cachedDetectDocker = &res
	return res
}
