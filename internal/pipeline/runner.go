package pipeline

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
	"syscall"

	apperrors "github.com/arkhive/arkhive/internal/errors"
	"github.com/arkhive/arkhive/internal/logger"
)

// Runner executes pipelines. It is stateless and safe for concurrent
// use.
type Runner struct {
	l *logger.Logger
}

func NewRunner(l *logger.Logger) *Runner {
	return &Runner{l: l}
}

// Run starts every stage, streams their output and waits for all of
// them. Progress lines recognized on any stream are handed to
// onProgress and excluded from the collected output. The returned
// error is non-nil when a stage could not be started, when the context
// was canceled, or when a stage exited non-zero; the Result is valid
// in the last two cases and carries the collected output.
func (r *Runner) Run(ctx context.Context, p Pipeline, onProgress func(Progress)) (*Result, error) {
	if len(p.Stages) == 0 {
		return nil, apperrors.New(apperrors.KindInternal, "pipeline has no stages", "")
	}

	r.l.Debug("Running pipeline", "cmd", p.String())

	cmds := make([]*exec.Cmd, len(p.Stages))
	for i, st := range p.Stages {
		cmd := exec.CommandContext(ctx, st.Name, st.Args...)
		if len(st.Env) > 0 {
			cmd.Env = append(os.Environ(), st.Env...)
		}
		cmds[i] = cmd
	}

	// Stages are joined with explicit pipes and the parent closes its
	// copies as soon as every child has started. A stage that dies
	// early then raises EOF downstream and EPIPE upstream instead of
	// wedging its neighbors on a descriptor only its own Wait would
	// have closed.
	join := make([]*os.File, 0, 2*(len(cmds)-1))
	closeJoin := func() {
		for _, f := range join {
			_ = f.Close()
		}
	}
	for i := 1; i < len(cmds); i++ {
		rd, wr, err := os.Pipe()
		if err != nil {
			closeJoin()
			return nil, apperrors.Wrap(err, apperrors.KindInternal, "failed to connect pipeline stages", "")
		}
		cmds[i-1].Stdout = wr
		cmds[i].Stdin = rd
		join = append(join, rd, wr)
	}

	stderrPipes := make([]io.ReadCloser, len(cmds))
	for i, cmd := range cmds {
		pipe, err := cmd.StderrPipe()
		if err != nil {
			closeJoin()
			return nil, apperrors.Wrap(err, apperrors.KindInternal, "failed to capture stage stderr", "")
		}
		stderrPipes[i] = pipe
	}

	var stdoutPipe io.ReadCloser
	last := cmds[len(cmds)-1]
	if p.Stdout != nil {
		last.Stdout = p.Stdout
	} else {
		pipe, err := last.StdoutPipe()
		if err != nil {
			closeJoin()
			return nil, apperrors.Wrap(err, apperrors.KindInternal, "failed to capture pipeline stdout", "")
		}
		stdoutPipe = pipe
	}

	for i, cmd := range cmds {
		if err := cmd.Start(); err != nil {
			closeJoin()
			for _, started := range cmds[:i] {
				_ = started.Process.Kill()
				_ = started.Wait()
			}
			st := p.Stages[i]
			return nil, apperrors.Wrap(err, apperrors.KindSpawn,
				fmt.Sprintf("failed to start %q", st.Name),
				fmt.Sprintf("Check that %s is installed and on the PATH.", st.Name))
		}
	}
	closeJoin()

	var (
		mu          sync.Mutex
		wg          sync.WaitGroup
		stderrLines = make([][]string, len(cmds))
		stdoutLines []string
	)

	scan := func(rd io.Reader, sink *[]string) {
		defer wg.Done()
		sc := bufio.NewScanner(rd)
		sc.Buffer(make([]byte, 64*1024), 1024*1024)
		sc.Split(splitLines)
		for sc.Scan() {
			line := sc.Text()
			if strings.TrimSpace(line) == "" {
				continue
			}
			if prog, ok := ParseProgress(line); ok {
				if onProgress != nil {
					onProgress(prog)
				}
				continue
			}
			mu.Lock()
			*sink = append(*sink, line)
			mu.Unlock()
		}
	}

	for i := range cmds {
		wg.Add(1)
		go scan(stderrPipes[i], &stderrLines[i])
	}
	if stdoutPipe != nil {
		wg.Add(1)
		go scan(stdoutPipe, &stdoutLines)
	}

	// Readers must drain before Wait closes the pipes under them.
	wg.Wait()

	res := &Result{}
	failedStage := ""
	sigpipeStage := ""
	sigpipeCode := 0
	for i, cmd := range cmds {
		err := cmd.Wait()
		if err == nil {
			continue
		}
		code := -1
		sigpiped := false
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
			if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok {
				sigpiped = ws.Signaled() && ws.Signal() == syscall.SIGPIPE
			}
		}
		if sigpiped {
			if sigpipeStage == "" {
				sigpipeStage = p.Stages[i].Name
				sigpipeCode = code
			}
			continue
		}
		if failedStage == "" {
			failedStage = p.Stages[i].Name
			res.ExitCode = code
		}
	}
	// A stage killed by SIGPIPE lost its consumer mid-write; the
	// consumer's own exit carries the actual failure.
	if failedStage == "" && sigpipeStage != "" {
		failedStage = sigpipeStage
		res.ExitCode = sigpipeCode
	}

	var all []string
	for _, lines := range stderrLines {
		all = append(all, lines...)
	}
	res.Stderr = strings.TrimRight(strings.Join(all, "\n"), " \t\r\n")
	res.Stdout = strings.TrimRight(strings.Join(stdoutLines, "\n"), " \t\r\n")

	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	if res.ExitCode != 0 {
		return res, fmt.Errorf("stage %q exited with status %d", failedStage, res.ExitCode)
	}
	return res, nil
}
