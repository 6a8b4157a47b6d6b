package rebuild

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	chdir(t, t.TempDir())

	require.NoError(t, os.MkdirAll("src", 0o755))
	writeFile(t, "plain.txt", "not a directory")

	tt := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"valid", Config{Watch: []string{"src"}, Output: "out"}, ""},
		{"missing watch", Config{Output: "out"}, "at least one watch directory"},
		{"missing output", Config{Watch: []string{"src"}}, "output directory is required"},
		{"watch does not exist", Config{Watch: []string{"missing"}, Output: "out"}, "does not exist"},
		{"watch is a file", Config{Watch: []string{"plain.txt"}, Output: "out"}, "not a directory"},
		{"output inside watch", Config{Watch: []string{"src"}, Output: "src/out"}, "inside watch directory"},
		{"output equals watch", Config{Watch: []string{"src"}, Output: "src"}, "inside watch directory"},
		{"transformer without globs", Config{Watch: []string{"src"}, Output: "out", Using: "tr a-z A-Z"}, "requires at least one transform glob"},
		{"fork and spawn conflict", Config{Watch: []string{"src"}, Output: "out", Fork: []string{"node s.js"}, Spawn: []string{"node s.js"}}, "both fork and spawn"},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			w := NewWatcher(tc.cfg)
			err := w.Validate()

			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}

			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("expected error containing %q, got %q", tc.wantErr, err.Error())
			}
		})
	}
}

// newTestWatcher returns a watcher whose exit after the final port kill is a
// no-op instead of exiting the process.
func newTestWatcher(cfg Config) *Watcher {
	w := NewWatcher(cfg)
	w.Exit = func(code int) {}
	return w
}

func TestStartPlainMirror(t *testing.T) {
	chdir(t, t.TempDir())

	writeFile(t, "src/a.txt", "hi")
	writeFile(t, "src/b/c.txt", "bye")

	w := newTestWatcher(Config{Watch: []string{"src"}, Output: "out"})
	require.NoError(t, w.Start())

	bb, err := os.ReadFile("out/a.txt")
	require.NoError(t, err)
	require.Equal(t, "hi", string(bb))

	bb, err = os.ReadFile("out/b/c.txt")
	require.NoError(t, err)
	require.Equal(t, "bye", string(bb))
}

func TestStartWipesStaleOutput(t *testing.T) {
	chdir(t, t.TempDir())

	writeFile(t, "src/a.txt", "hi")
	writeFile(t, "out/stale.txt", "left over")

	w := newTestWatcher(Config{Watch: []string{"src"}, Output: "out"})
	require.NoError(t, w.Start())

	_, err := os.Stat("out/stale.txt")
	require.True(t, os.IsNotExist(err))
}

func TestStartTransformHook(t *testing.T) {
	chdir(t, t.TempDir())

	writeFile(t, "src/x.js", "hi")

	w := newTestWatcher(Config{
		Watch:     []string{"src"},
		Output:    "out",
		Transform: []string{"src/**/*.js"},
		Using:     "tr a-z A-Z",
	})
	require.NoError(t, w.Start())

	bb, err := os.ReadFile("out/x.js")
	require.NoError(t, err)
	require.Equal(t, "HI", string(bb))
}

func TestStartVendorFiltering(t *testing.T) {
	chdir(t, t.TempDir())

	writeManifest(t, "src", "app", "x")
	writeManifest(t, "src/node_modules/x", "x", "y")
	writeManifest(t, "src/node_modules/y", "y")
	writeManifest(t, "src/node_modules/z", "z")
	writeFile(t, "src/node_modules/x/index.js", "x code")
	writeFile(t, "src/node_modules/y/index.js", "y code")
	writeFile(t, "src/node_modules/z/index.js", "z code")

	w := newTestWatcher(Config{Watch: []string{"src"}, Output: "out"})
	require.NoError(t, w.Start())

	bb, err := os.ReadFile("out/node_modules/x/index.js")
	require.NoError(t, err)
	require.Equal(t, "x code", string(bb))

	_, err = os.Stat("out/node_modules/y/index.js")
	require.NoError(t, err)

	_, err = os.Stat("out/node_modules/z")
	require.True(t, os.IsNotExist(err))
}

func TestStartMultipleWatchRoots(t *testing.T) {
	chdir(t, t.TempDir())

	writeFile(t, "src/a.txt", "from src")
	writeFile(t, "shared/util.txt", "from shared")

	w := newTestWatcher(Config{Watch: []string{"src", "shared"}, Output: "out"})
	require.NoError(t, w.Start())

	// Both roots strip their first segment and land in the same output.
	bb, err := os.ReadFile("out/a.txt")
	require.NoError(t, err)
	require.Equal(t, "from src", string(bb))

	bb, err = os.ReadFile("out/util.txt")
	require.NoError(t, err)
	require.Equal(t, "from shared", string(bb))
}

func TestStartEmptySource(t *testing.T) {
	chdir(t, t.TempDir())

	require.NoError(t, os.MkdirAll("src", 0o755))

	w := newTestWatcher(Config{Watch: []string{"src"}, Output: "out"})
	require.NoError(t, w.Start())

	entries, err := os.ReadDir("out")
	require.NoError(t, err)
	require.Empty(t, entries)
}
