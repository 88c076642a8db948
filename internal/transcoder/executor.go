package transcoder

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
)

const stderrTailLines = 20

// Invocation is a single encoder process run.
type Invocation struct {
	Path string
	Args []string
}

// Runner executes an encoder process, feeding every stderr line to onLine.
// A non-zero exit must come back as a *ProcessError.
type Runner interface {
	Run(ctx context.Context, inv Invocation, onLine func(line string)) error
}

// ExecRunner runs invocations as child processes.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, inv Invocation, onLine func(string)) error {
	cmd := exec.CommandContext(ctx, inv.Path, inv.Args...)

	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to get stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return &ProcessError{ExitCode: -1, Err: fmt.Errorf("failed to start %s: %w", inv.Path, err)}
	}

	tail := newLineTail(stderrTailLines)
	doneCh := make(chan error, 1)
	go func() {
		doneCh <- streamLines(stderrPipe, tail, onLine)
	}()

	// the pipe must be drained before Wait closes it
	scanErr := <-doneCh
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if waitErr != nil {
		pe := &ProcessError{ExitCode: -1, Stderr: tail.String(), Err: waitErr}
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			pe.ExitCode = exitErr.ExitCode()
		}
		return pe
	}
	if scanErr != nil {
		return fmt.Errorf("reading encoder output: %w", scanErr)
	}
	return nil
}

const maxLineBytes = 1024 * 1024

// streamLines feeds r line by line to tail and onLine. After a scan error the
// rest of r is discarded so the writer never blocks on a full pipe.
func streamLines(r io.Reader, tail *lineTail, onLine func(string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	scanner.Split(scanLinesCR)
	for scanner.Scan() {
		line := scanner.Text()
		tail.add(line)
		if onLine != nil {
			onLine(line)
		}
	}
	err := scanner.Err()
	if err != nil {
		_, _ = io.Copy(io.Discard, r)
	}
	return err
}

// scanLinesCR splits on \n and on the bare \r ffmpeg uses for its status line.
func scanLinesCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		advance = i + 1
		if data[i] == '\r' && i+1 < len(data) && data[i+1] == '\n' {
			advance++
		}
		return advance, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// lineTail keeps the last n non-empty lines.
type lineTail struct {
	mu    sync.Mutex
	n     int
	lines []string
}

func newLineTail(n int) *lineTail {
	return &lineTail{n: n}
}

func (t *lineTail) add(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.n {
		t.lines = t.lines[len(t.lines)-t.n:]
	}
}

func (t *lineTail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, "\n")
}
