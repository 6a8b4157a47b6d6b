package rebuild

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
)

// ipcEnv tells a fork child which file descriptors carry its IPC channel:
// the child reads parent messages on the first and writes on the second.
const ipcEnv = "REBUILD_IPC=3,4"

// controlMessage is a child-to-parent fork coordination message. Any line
// that is not valid JSON, or carries neither field, is ignored.
type controlMessage struct {
	PauseForking  bool `json:"pauseForking"`
	ResumeForking bool `json:"resumeForking"`
}

// ipcChannel is the bidirectional message channel attached to a fork
// child. Messages are JSON values, one per line.
type ipcChannel struct {
	parentW *os.File
	parentR *os.File
	childR  *os.File
	childW  *os.File

	encMu sync.Mutex
	enc   *json.Encoder

	pauses  chan struct{}
	resumes chan struct{}
}

func newIPCChannel() (*ipcChannel, error) {
	childR, parentW, err := os.Pipe()
	if err != nil {
		return nil, err
	}

	parentR, childW, err := os.Pipe()
	if err != nil {
		childR.Close()
		parentW.Close()
		return nil, err
	}

	return &ipcChannel{
		parentW: parentW,
		parentR: parentR,
		childR:  childR,
		childW:  childW,
		enc:     json.NewEncoder(parentW),
		pauses:  make(chan struct{}, 1),
		resumes: make(chan struct{}, 1),
	}, nil
}

// attach hands the child ends of the channel to cmd as fds 3 and 4 and
// announces them in the environment.
func (c *ipcChannel) attach(cmd *exec.Cmd) {
	cmd.ExtraFiles = append(cmd.ExtraFiles, c.childR, c.childW)
	cmd.Env = append(os.Environ(), ipcEnv)
}

// closeChildEnds releases the parent's copies of the child descriptors.
// Call after the child has started.
func (c *ipcChannel) closeChildEnds() {
	c.childR.Close()
	c.childW.Close()
}

// readLoop decodes child messages until the channel closes, forwarding
// pause and resume requests. Runs in its own goroutine per child.
func (c *ipcChannel) readLoop(debug io.Writer) {
	scanner := bufio.NewScanner(c.parentR)
	for scanner.Scan() {
		var msg controlMessage
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			continue
		}

		if msg.PauseForking {
			fmt.Fprintf(debug, "ipc: pauseForking\n")
			select {
			case c.pauses <- struct{}{}:
			default:
			}
		}

		if msg.ResumeForking {
			fmt.Fprintf(debug, "ipc: resumeForking\n")
			select {
			case c.resumes <- struct{}{}:
			default:
			}
		}
	}
}

// Send writes one JSON message to the child.
func (c *ipcChannel) Send(v interface{}) error {
	c.encMu.Lock()
	defer c.encMu.Unlock()

	return c.enc.Encode(v)
}

// Close tears down the parent ends; the read loop exits on its own.
func (c *ipcChannel) Close() {
	c.parentW.Close()
	c.parentR.Close()
}
