package rebuild

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
)

// shutdownCoordinator owns the end of the process: it fields the first
// interrupt, drains the child set through the supervisor, frees the
// configured TCP ports, and exits. The port-kill sequence runs exactly
// once per process lifetime, whether reached through an interrupt or a
// fatal error.
type shutdownCoordinator struct {
	ports    []int
	killPort func(ctx context.Context, port int) error
	exit     func(code int)

	once sync.Once
}

func newShutdownCoordinator(ports []int) *shutdownCoordinator {
	return &shutdownCoordinator{
		ports:    ports,
		killPort: killPort,
		exit:     os.Exit,
	}
}

// watchSignals installs the interrupt handler. The first interrupt begins
// shutdown; beginShutdown's one-shot flag makes every later interrupt a
// no-op.
func (c *shutdownCoordinator) watchSignals(s *supervisor) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)

	go func() {
		for range ch {
			s.beginShutdown(func() { c.finalKill(0) })
		}
	}()
}

// finalKill frees every configured port in order, logs, and exits.
func (c *shutdownCoordinator) finalKill(code int) {
	c.once.Do(func() {
		for _, port := range c.ports {
			if err := c.killPort(context.Background(), port); err != nil {
				log.Printf("failed killing port %d: %v", port, err)
			}
		}

		log.Println("stopped")
		c.exit(code)
	})
}

// killPort frees a TCP port by killing whatever listens on it.
// Best-effort: a port nobody holds is not an error.
func killPort(ctx context.Context, port int) error {
	hook, err := parseHook("port-kill", fmt.Sprintf("lsof -ti tcp:%d | xargs -r kill -9", port))
	if err != nil {
		return err
	}

	return hook.run(ctx, nil, nil, os.Stdout, os.Stderr)
}
