package rebuild

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// shellHook is a user-supplied extension point expressed as a shell command.
// The script is parsed once; every invocation gets a fresh interpreter with
// its own stdio and extra environment.
type shellHook struct {
	name string
	file *syntax.File
}

// parseHook compiles a hook command. The name is used in diagnostics.
func parseHook(name, command string) (*shellHook, error) {
	p := syntax.NewParser()
	f, err := p.Parse(strings.NewReader(command), name)
	if err != nil {
		return nil, fmt.Errorf("failed parsing %s hook: %v", name, err)
	}

	return &shellHook{name: name, file: f}, nil
}

// run executes the hook with the given environment additions and stdio.
// Each entry of env is a KEY=VALUE pair layered over the process
// environment.
func (h *shellHook) run(ctx context.Context, env []string, stdin io.Reader, stdout, stderr io.Writer) error {
	runner, err := interp.New(
		interp.Env(expand.ListEnviron(append(os.Environ(), env...)...)),
		interp.StdIO(stdin, stdout, stderr),
	)
	if err != nil {
		return err
	}

	if err := runner.Run(ctx, h.file); err != nil {
		return fmt.Errorf("%s hook failed: %v", h.name, err)
	}

	return nil
}
