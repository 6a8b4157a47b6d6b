package rebuild

import (
	"testing"
)

func TestMapPath(t *testing.T) {
	tt := []struct {
		name string
		out  string
		src  string
		exp  string
	}{
		{"file under root", "out", "src/a.txt", "out/a.txt"},
		{"nested file", "out", "src/b/c.txt", "out/b/c.txt"},
		{"the root itself", "out", "src", "out"},
		{"directory", "out", "src/b", "out/b"},
		{"vendor path", "build", "src/node_modules/x/index.js", "build/node_modules/x/index.js"},
		{"dotted segments", "out", "src/./b/c.txt", "out/b/c.txt"},
		{"trailing slash", "out/", "src/a.txt", "out/a.txt"},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			act := mapPath(tc.out, tc.src)
			if act != tc.exp {
				t.Errorf("expected %s to map to %s, got %s", tc.src, tc.exp, act)
			}
		})
	}
}

func TestSlashPath(t *testing.T) {
	tt := []struct {
		name string
		in   string
		exp  string
	}{
		{"already clean", "src/a.txt", "src/a.txt"},
		{"redundant dot", "./src/a.txt", "src/a.txt"},
		{"double slash", "src//a.txt", "src/a.txt"},
		{"trailing slash", "src/", "src"},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			if act := slashPath(tc.in); act != tc.exp {
				t.Errorf("expected %s, got %s", tc.exp, act)
			}
		})
	}
}
