package rebuild

import (
	"path"
	"path/filepath"
	"strings"
)

// slashPath normalizes p to a clean, forward-slash, working-directory
// relative form. All paths inside the mirror pipeline use this form.
func slashPath(p string) string {
	return path.Clean(filepath.ToSlash(p))
}

// mapPath maps a watched source path to its location under the output root.
// The first segment of the source path (the watch directory itself) is
// stripped and the remainder is joined under out. Mapping the watch root
// itself yields out.
func mapPath(out, src string) string {
	src = slashPath(src)

	idx := strings.IndexByte(src, '/')
	if idx < 0 {
		return slashPath(out)
	}

	return path.Join(slashPath(out), src[idx+1:])
}
