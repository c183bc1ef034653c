package shell

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"toolgate/internal/logging"
	"toolgate/internal/workspace"
)

const (
	// exitToken separates the sentinel marker from the exit code on the
	// echoed trailer line.
	exitToken = "EXIT_CODE:"

	// checkPollInterval is the check_process smart-wait granularity.
	checkPollInterval = 500 * time.Millisecond

	// drainGrace bounds how long completion waits for the output pumps
	// after the shell exits. Pumps normally hit EOF immediately; a child
	// the shell left behind can hold the pipes open indefinitely and must
	// not stall the record.
	drainGrace = 250 * time.Millisecond
)

// Options tunes an Executor. Zero values select the defaults.
type Options struct {
	// ShellPath is the shell binary; default /bin/sh.
	ShellPath string

	// DefaultInactivity is the budget used when a caller supplies none;
	// default 20s.
	DefaultInactivity time.Duration

	// MaxTimeout is the absolute safety cap and the budget clamp ceiling;
	// default 600s.
	MaxTimeout time.Duration
}

// Executor spawns shells, frames commands with sentinel markers, and
// resolves each call into a synchronous result or a backgrounded record.
type Executor struct {
	procs             *ProcessRegistry
	roots             *workspace.Resolver
	shellPath         string
	defaultInactivity time.Duration
	maxTimeout        time.Duration
}

// NewExecutor creates an executor over the given registry and workspace
// resolver.
func NewExecutor(procs *ProcessRegistry, roots *workspace.Resolver, opts Options) *Executor {
	if opts.ShellPath == "" {
		opts.ShellPath = "/bin/sh"
	}
	if opts.DefaultInactivity <= 0 {
		opts.DefaultInactivity = 20 * time.Second
	}
	if opts.MaxTimeout <= 0 {
		opts.MaxTimeout = 600 * time.Second
	}
	return &Executor{
		procs:             procs,
		roots:             roots,
		shellPath:         opts.ShellPath,
		defaultInactivity: opts.DefaultInactivity,
		maxTimeout:        opts.MaxTimeout,
	}
}

// DefaultInactivitySec returns the default budget in whole seconds.
func (e *Executor) DefaultInactivitySec() int {
	return int(e.defaultInactivity.Seconds())
}

// Registry exposes the process registry (shutdown, tests).
func (e *Executor) Registry() *ProcessRegistry {
	return e.procs
}

// clampBudget bounds a caller-supplied budget to [0, maxTimeout].
func (e *Executor) clampBudget(sec int) time.Duration {
	if sec < 0 {
		sec = 0
	}
	d := time.Duration(sec) * time.Second
	if d > e.maxTimeout {
		d = e.maxTimeout
	}
	return d
}

// frameCommand appends the sentinel trailer to a submitted command.
//
// Three shapes: a command backgrounding itself with a trailing "&" gets the
// echo immediately after, so $? reflects the fork. A command containing a
// here-document opener gets the echo on its own line, since a semicolon
// inside the document body would not terminate it. Everything else gets a
// null-device stdin redirect followed by the echo on the same line; the
// redirect keeps implicit stdin readers from blocking while the shell's
// own stdin stays open for send_input.
func frameCommand(command, marker string) string {
	echoLine := fmt.Sprintf(`echo "%s %s$?"`, marker, exitToken)
	trimmed := strings.TrimRight(command, " \t\r\n")
	switch {
	case strings.HasSuffix(trimmed, "&") && !strings.HasSuffix(trimmed, "&&"):
		return command + "\n" + echoLine + "\n"
	case strings.Contains(command, "<<"):
		return command + "\n" + echoLine + "\n"
	default:
		return command + " </dev/null; " + echoLine + "\n"
	}
}

// scanForMarker looks for "<marker> EXIT_CODE:<n>" in the accumulated
// window. Returns the parsed code when the full trailer (digits plus
// terminator) has arrived, otherwise the window tail to keep for the next
// chunk.
func scanForMarker(window, marker string) (code int, found bool, keep string) {
	i := strings.Index(window, marker)
	if i < 0 {
		keepLen := len(marker) + len(exitToken) + 16
		if len(window) > keepLen {
			window = window[len(window)-keepLen:]
		}
		return 0, false, window
	}
	rest := window[i+len(marker):]
	j := strings.Index(rest, exitToken)
	if j < 0 {
		return 0, false, window[i:]
	}
	digits := rest[j+len(exitToken):]
	k := 0
	for k < len(digits) && digits[k] >= '0' && digits[k] <= '9' {
		k++
	}
	if k == 0 || k == len(digits) {
		// Digits not terminated yet; the echo's newline is still in flight.
		return 0, false, window[i:]
	}
	code, _ = strconv.Atoi(digits[:k])
	return code, true, ""
}

// pumpStream drains one output stream into its buffer. When marker is
// non-empty the stream is also scanned for the sentinel trailer; on a hit
// the exit code is latched and the shell's stdin closed so it exits.
func pumpStream(rec *ProcessRecord, r io.ReadCloser, buf *OutputBuffer, marker string, wg *sync.WaitGroup) {
	defer wg.Done()
	defer r.Close()
	chunk := make([]byte, 8192)
	window := ""
	scanning := marker != ""
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			buf.Append(chunk[:n])
			rec.touchOutput()
			if scanning {
				window += string(chunk[:n])
				if code, found, keep := scanForMarker(window, marker); found {
					rec.noteMarker(code)
					rec.closeStdin()
					scanning = false
					window = ""
				} else {
					window = keep
				}
			}
		}
		if err != nil {
			return
		}
	}
}

// ExecuteCommand runs command in a fresh shell. It returns a synchronous
// completion rendering when the marker-then-exit sequence finishes before
// either timer, and a backgrounded notice carrying the process id
// otherwise. The response is always text; failures are rendered, never
// returned as errors.
func (e *Executor) ExecuteCommand(ctx context.Context, command, rationale string, inactivitySec int) string {
	budget := e.clampBudget(inactivitySec)
	rec := newProcessRecord(NewProcessID(), command, rationale, budget)
	e.procs.Add(rec)

	root, err := e.roots.EnsureRoot(ctx)
	if err != nil {
		rec.completeSpawnFailure(err)
		return rec.FinalFormatted()
	}

	cmd := exec.Command(e.shellPath)
	cmd.Dir = root
	cmd.Env = os.Environ()

	// Manual pipes rather than StdinPipe/StdoutPipe: completion keys off
	// the shell's process exit, and cmd.Wait must not tear down pipes the
	// pumps are still draining.
	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		rec.completeSpawnFailure(err)
		return rec.FinalFormatted()
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		stdinR.Close()
		stdinW.Close()
		rec.completeSpawnFailure(err)
		return rec.FinalFormatted()
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdinR.Close()
		stdinW.Close()
		stdoutR.Close()
		stdoutW.Close()
		rec.completeSpawnFailure(err)
		return rec.FinalFormatted()
	}
	cmd.Stdin = stdinR
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		for _, f := range []*os.File{stdinR, stdinW, stdoutR, stdoutW, stderrR, stderrW} {
			f.Close()
		}
		rec.completeSpawnFailure(err)
		return rec.FinalFormatted()
	}
	// The child owns its copies now.
	stdinR.Close()
	stdoutW.Close()
	stderrW.Close()

	rec.attachShell(cmd, stdinW)
	logging.Exec("execute_command %s: %q (budget=%s, rationale=%s)", rec.ID, command, budget, rationale)

	var pumps sync.WaitGroup
	pumps.Add(2)
	go pumpStream(rec, stdoutR, rec.Stdout, rec.marker, &pumps)
	go pumpStream(rec, stderrR, rec.Stderr, "", &pumps)

	// Rendering happens only after the shell has truly exited: stderr may
	// still be draining at the moment the marker shows up in stdout. After
	// exit the pumps get a short grace so trailing output lands in the
	// buffers before the final rendering is cached.
	go func() {
		werr := cmd.Wait()
		drained := make(chan struct{})
		go func() {
			pumps.Wait()
			close(drained)
		}()
		select {
		case <-drained:
		case <-time.After(drainGrace):
		}
		rec.complete(werr, renderFinal)
		logging.Exec("process %s completed (exit=%d)", rec.ID, rec.ExitCode())
	}()

	if _, werr := io.WriteString(stdinW, frameCommand(command, rec.marker)); werr != nil {
		logging.Exec("process %s: command write failed: %v", rec.ID, werr)
	}

	// The immediate-background branch is taken before any timer arms so a
	// fast command can never race its way into a synchronous result.
	if budget == 0 {
		return renderBackgrounded(rec, "background requested (inactivity timeout 0)")
	}

	inactivity := time.NewTimer(budget)
	defer inactivity.Stop()
	absolute := time.NewTimer(e.maxTimeout)
	defer absolute.Stop()

	for {
		select {
		case <-rec.Done():
			return renderSync(rec)
		case <-rec.activity:
			if !inactivity.Stop() {
				select {
				case <-inactivity.C:
				default:
				}
			}
			inactivity.Reset(budget)
		case <-inactivity.C:
			logging.Exec("process %s backgrounded: inactivity %s", rec.ID, budget)
			return renderBackgrounded(rec, fmt.Sprintf("no output for %d seconds", int(budget.Seconds())))
		case <-absolute.C:
			logging.Exec("process %s backgrounded: absolute cap", rec.ID)
			return renderBackgrounded(rec, "maximum timeout reached")
		case <-ctx.Done():
			return renderBackgrounded(rec, "request cancelled")
		}
	}
}

// CheckProcess returns the cached final rendering for a completed record,
// or performs a bounded wait for progress and returns a running rendering
// (or the final one, when the record completes during the wait).
func (e *Executor) CheckProcess(ctx context.Context, id, rationale string) string {
	rec := e.procs.Get(id)
	if rec == nil {
		return fmt.Sprintf("Error: Process not found: %s", id)
	}
	if rec.Status() == StatusCompleted {
		// The final rendering is cached just before done closes.
		<-rec.Done()
		return rec.FinalFormatted()
	}

	logging.ExecDebug("check_process %s (rationale=%s)", id, rationale)

	budget := rec.InactivityBudget
	if budget > e.maxTimeout {
		budget = e.maxTimeout
	}
	start := time.Now()

	for {
		select {
		case <-rec.Done():
			return rec.FinalFormatted()
		default:
		}
		if since := time.Since(rec.LastOutputAt()); since >= budget {
			return renderRunning(rec, fmt.Sprintf("no output for %d seconds", int(since.Seconds())))
		}
		if time.Since(start) >= e.maxTimeout {
			return renderRunning(rec, "maximum wait time reached")
		}
		select {
		case <-rec.Done():
			return rec.FinalFormatted()
		case <-ctx.Done():
			return renderRunning(rec, "request cancelled")
		case <-time.After(checkPollInterval):
		}
	}
}

// SendInput writes data to a running record's stdin. All failures are
// textual.
func (e *Executor) SendInput(ctx context.Context, id, input, rationale string, autoNewline bool) string {
	_ = ctx

	rec := e.procs.Get(id)
	if rec == nil {
		return fmt.Sprintf("Error: %v: %s", errProcessNotFound, id)
	}

	data := input
	if autoNewline && !strings.HasSuffix(data, "\n") {
		data += "\n"
	}

	if err := rec.writeStdin([]byte(data)); err != nil {
		switch err {
		case errProcessCompleted, errStdinUnavailable:
			return fmt.Sprintf("Error: %v", err)
		default:
			return fmt.Sprintf("Error: failed to write to process stdin: %v", err)
		}
	}

	logging.ExecDebug("send_input %s: %d bytes (rationale=%s)", id, len(data), rationale)
	return fmt.Sprintf("Input sent to process %s", id)
}
