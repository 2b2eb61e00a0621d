//go:build windows

package recognizer

// Windows has no SIGSTOP equivalent. Suspend and Resume are no-ops; the
// bridge's cooperative pause still stops audio delivery so the process idles
// on an empty pipe.
func (p *execProcess) Suspend() error { return nil }

func (p *execProcess) Resume() error { return nil }

// Terminate falls back to Kill since a console process cannot be signalled.
func (p *execProcess) Terminate() error {
	return p.cmd.Process.Kill()
}
