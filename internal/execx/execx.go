// Package execx runs external tools with line-streamed output, bounded
// stderr capture, and kill-on-cancel semantics. Tool-specific argument
// building and progress parsing live with the callers.
package execx

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"murmur/internal/services"
)

// Stream identifies which pipe produced an output line.
type Stream int

const (
	Stdout Stream = iota
	Stderr
)

func (s Stream) String() string {
	if s == Stderr {
		return "stderr"
	}
	return "stdout"
}

const (
	stderrTailLimit = 20
	maxLineBytes    = 1 << 20
)

// Command describes one external tool invocation.
type Command struct {
	Binary string
	Args   []string
	Dir    string
	// Env entries are appended to the inherited environment.
	Env []string
	// OnLine receives every output line as it arrives. Calls are
	// serialized across both pipes.
	OnLine func(stream Stream, line string)
}

// Result reports how the process finished.
type Result struct {
	ExitCode   int
	StderrTail []string
}

// Run launches the command, forwards stdout and stderr line by line, and
// waits for exit. Cancelling ctx kills the process; the returned error then
// carries the context error. Launch failures are tagged services.ErrLaunch,
// non-zero exits services.ErrExternalTool with the stderr tail in the
// message.
func Run(ctx context.Context, c Command) (Result, error) {
	binary := strings.TrimSpace(c.Binary)
	if binary == "" {
		return Result{}, fmt.Errorf("%w: binary required", services.ErrLaunch)
	}

	cmd := exec.CommandContext(ctx, binary, c.Args...) //nolint:gosec
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	cmd.WaitDelay = 10 * time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, fmt.Errorf("%w: stdout pipe: %v", services.ErrLaunch, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, fmt.Errorf("%w: stderr pipe: %v", services.ErrLaunch, err)
	}
	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("%w: start %s: %v", services.ErrLaunch, binary, err)
	}

	var (
		mu      sync.Mutex
		tail    []string
		wg      sync.WaitGroup
		scanErr error
		once    sync.Once
	)

	forward := func(stream Stream, line string) {
		mu.Lock()
		defer mu.Unlock()
		if stream == Stderr {
			tail = append(tail, line)
			if len(tail) > stderrTailLimit {
				tail = tail[1:]
			}
		}
		if c.OnLine != nil {
			c.OnLine(stream, line)
		}
	}

	scan := func(r io.Reader, stream Stream) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		for scanner.Scan() {
			forward(stream, scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			once.Do(func() { scanErr = err })
		}
	}

	wg.Add(2)
	go scan(stdout, Stdout)
	go scan(stderr, Stderr)
	wg.Wait()

	waitErr := cmd.Wait()
	res := Result{StderrTail: append([]string(nil), tail...)}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	if ctx.Err() != nil {
		return res, fmt.Errorf("%s: %w", binary, ctx.Err())
	}
	if scanErr != nil {
		return res, fmt.Errorf("%w: scan %s output: %v", services.ErrExternalTool, binary, scanErr)
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			if detail := strings.Join(res.StderrTail, "; "); detail != "" {
				return res, fmt.Errorf("%w: %s exited with %d: %s", services.ErrExternalTool, binary, res.ExitCode, detail)
			}
			return res, fmt.Errorf("%w: %s exited with %d", services.ErrExternalTool, binary, res.ExitCode)
		}
		return res, fmt.Errorf("%w: wait %s: %v", services.ErrExternalTool, binary, waitErr)
	}
	return res, nil
}
