package rebuild

import (
	"context"
	"io"
	"os"
)

// A CleanupFunc is invoked for each execution when the supervisor wants it
// gone: with SignalInterrupt during shutdown, with SignalRestart during a
// restart. Errors are logged by the caller and never abort the sequence;
// the force-kill timers make progress regardless.
type CleanupFunc func(ctx context.Context, e *Execution, kind, signal string) error

// defaultCleanup is used when no cleanup hook is configured. On SIGINT the
// child gets the OS interrupt and is expected to exit itself. On SIGRES,
// fork children receive the protocol token over IPC; spawn children have
// no channel to receive it and are killed outright.
func (s *supervisor) defaultCleanup(ctx context.Context, e *Execution, kind, signal string) error {
	switch signal {
	case SignalInterrupt:
		if e.cmd != nil && e.cmd.Process != nil {
			return e.cmd.Process.Signal(os.Interrupt)
		}

	case SignalRestart:
		if kind == KindFork && e.ipc != nil {
			return e.ipc.Send(SignalRestart)
		}
		e.hardKill()
	}

	return nil
}

// shellCleanup adapts the user cleanup hook to CleanupFunc. The hook sees
// the child's command, kind and signal in its environment.
func shellCleanup(hook *shellHook, stdout, stderr io.Writer) CleanupFunc {
	return func(ctx context.Context, e *Execution, kind, signal string) error {
		env := []string{
			"REBUILD_CMD=" + e.Command,
			"REBUILD_KIND=" + kind,
			"REBUILD_SIGNAL=" + signal,
		}

		return hook.run(ctx, env, nil, stdout, stderr)
	}
}
