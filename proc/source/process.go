package source

import (
	"bytes"
	"errors"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// ProcessStream is the stdout of a running subprocess. Closing it kills the
// process, closes the pipe and reaps the child, so the reader owns the process.
type ProcessStream struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *lockedBuffer
	extra  []io.Closer

	once sync.Once
	err  error
}

// StartProcess starts cmd with a stdout pipe. Closers in extra, e.g. the
// reader feeding its stdin, are closed together with the stream.
func StartProcess(cmd *exec.Cmd, extra ...io.Closer) (*ProcessStream, error) {
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr := &lockedBuffer{}
	if cmd.Stderr == nil {
		cmd.Stderr = stderr
	}
	if err := cmd.Start(); err != nil {
		for _, c := range extra {
			_ = c.Close()
		}
		return nil, err
	}
	return &ProcessStream{cmd: cmd, stdout: stdout, stderr: stderr, extra: extra}, nil
}

func (p *ProcessStream) Read(b []byte) (int, error) {
	return p.stdout.Read(b)
}

// Close is safe to call more than once and from any goroutine.
func (p *ProcessStream) Close() error {
	p.once.Do(func() {
		if p.cmd.Process != nil {
			_ = p.cmd.Process.Kill()
		}
		_ = p.stdout.Close()
		for _, c := range p.extra {
			_ = c.Close()
		}
		werr := p.cmd.Wait()
		var exitErr *exec.ExitError
		if werr != nil && !errors.As(werr, &exitErr) {
			p.err = werr
		}
	})
	return p.err
}

// Pid returns the child process id, or 0 when it never started.
func (p *ProcessStream) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Stderr returns what the process has written to stderr so far.
func (p *ProcessStream) Stderr() string {
	return strings.TrimSpace(p.stderr.String())
}

type lockedBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (l *lockedBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.Write(p)
}

func (l *lockedBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.String()
}
