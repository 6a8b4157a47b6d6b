package rebuild

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFinalKillRunsOnce(t *testing.T) {
	c := newShutdownCoordinator([]int{3000, 4000})

	var ports []int
	var codes []int
	c.killPort = func(ctx context.Context, port int) error {
		ports = append(ports, port)
		return nil
	}
	c.exit = func(code int) {
		codes = append(codes, code)
	}

	c.finalKill(0)
	c.finalKill(1)

	require.Equal(t, []int{3000, 4000}, ports)
	require.Equal(t, []int{0}, codes)
}

func TestFinalKillContinuesPastErrors(t *testing.T) {
	c := newShutdownCoordinator([]int{3000, 4000})

	var ports []int
	var code = -1
	c.killPort = func(ctx context.Context, port int) error {
		ports = append(ports, port)
		return errors.New("nobody listening")
	}
	c.exit = func(c int) { code = c }

	c.finalKill(0)

	require.Equal(t, []int{3000, 4000}, ports)
	require.Equal(t, 0, code)
}

func TestFinalKillNoPorts(t *testing.T) {
	c := newShutdownCoordinator(nil)

	called := 0
	c.killPort = func(ctx context.Context, port int) error {
		called++
		return nil
	}

	code := -1
	c.exit = func(c int) { code = c }

	c.finalKill(0)

	require.Zero(t, called)
	require.Equal(t, 0, code)
}
