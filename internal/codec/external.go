package codec

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// NewExternal decodes through a subprocess instead of in-process. The program
// is invoked with the normalized encoding tag as its only argument, receives
// the encoded source on stdin and writes decoded bytes to stdout. Reads are
// bounded by the pipe, so memory stays flat no matter how large the source is.
func NewExternal(ctx context.Context, program string, spec Spec, src io.Reader) (Decoder, error) {
	cmd := exec.CommandContext(ctx, program, spec.Tag())
	cmd.Stdin = src

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("external decoder %s: %w", program, err)
	}

	ext := &external{cmd: cmd, program: program}
	ext.wg.Add(1)
	go func() {
		defer ext.wg.Done()
		s := bufio.NewScanner(stderr)
		// allow long lines (some tools log big JSON)
		s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for s.Scan() {
			ext.lastErrLine = s.Text()
		}
	}()

	ext.counting = newCounting(stdout)
	return ext, nil
}

type external struct {
	*counting
	cmd         *exec.Cmd
	program     string
	wg          sync.WaitGroup
	lastErrLine string
	waitOnce    sync.Once
	waitErr     error
}

func (e *external) Close() error {
	e.waitOnce.Do(func() {
		_ = e.cmd.Process.Kill()
		e.wg.Wait()
		err := e.cmd.Wait()
		if err != nil && !strings.Contains(err.Error(), "killed") {
			if e.lastErrLine != "" {
				err = fmt.Errorf("%s: %w (%s)", e.program, err, e.lastErrLine)
			}
			e.waitErr = err
		}
	})
	return e.waitErr
}
