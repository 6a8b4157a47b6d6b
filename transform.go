package rebuild

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/bmatcuk/doublestar"
)

// A Transformer rewrites the contents of a single gated file. It receives
// the absolute source and output paths and the file contents, and returns
// the contents to write. A transformer error is fatal to the build.
type Transformer func(ctx context.Context, srcAbs, outAbs string, contents []byte) (string, error)

// transformGate decides per file whether the transformer applies. A path is
// gated iff at least one configured glob matches it. With no globs, nothing
// is transformed.
type transformGate struct {
	patterns []string
}

func newTransformGate(patterns []string) *transformGate {
	return &transformGate{patterns: patterns}
}

func (g *transformGate) matches(path string) bool {
	for _, p := range g.patterns {
		ok, err := doublestar.Match(p, path)
		if err == nil && ok {
			return true
		}
	}

	return false
}

// identityTransformer passes file contents through unchanged. Used when no
// transformer hook is configured.
func identityTransformer(ctx context.Context, srcAbs, outAbs string, contents []byte) (string, error) {
	return string(contents), nil
}

// shellTransformer adapts a shell hook to the Transformer contract. The
// hook gets the contents on stdin and the paths in $REBUILD_SRC and
// $REBUILD_OUT; its stdout is the transformed contents.
func shellTransformer(hook *shellHook, stderr io.Writer) Transformer {
	return func(ctx context.Context, srcAbs, outAbs string, contents []byte) (string, error) {
		var out bytes.Buffer

		env := []string{
			"REBUILD_SRC=" + srcAbs,
			"REBUILD_OUT=" + outAbs,
		}

		err := hook.run(ctx, env, bytes.NewReader(contents), &out, stderr)
		if err != nil {
			return "", fmt.Errorf("transforming %s: %v", srcAbs, err)
		}

		return out.String(), nil
	}
}
