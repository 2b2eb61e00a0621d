package recognizer

import (
	"io"
	"os/exec"
)

// execProcess adapts os/exec to the process interface.
type execProcess struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

var _ process = (*execProcess)(nil)

func (p *execProcess) Write(b []byte) (int, error) {
	return p.stdin.Write(b)
}

func (p *execProcess) CloseInput() error {
	return p.stdin.Close()
}

func (p *execProcess) Kill() error {
	return p.cmd.Process.Kill()
}

func (p *execProcess) Wait() error {
	return p.cmd.Wait()
}

func (p *execProcess) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}
