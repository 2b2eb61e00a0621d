//go:build unix

package recognizer

import "syscall"

// Suspend stops the process with SIGSTOP so it stops consuming CPU and GPU
// time while a synthesizer holds the shared compute.
func (p *execProcess) Suspend() error {
	return p.cmd.Process.Signal(syscall.SIGSTOP)
}

// Resume continues a SIGSTOP-ed process.
func (p *execProcess) Resume() error {
	return p.cmd.Process.Signal(syscall.SIGCONT)
}

// Terminate asks the process to exit cleanly.
func (p *execProcess) Terminate() error {
	return p.cmd.Process.Signal(syscall.SIGTERM)
}
