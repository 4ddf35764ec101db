package scriptlet

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/quantmind-br/pkglife/internal/core"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"golang.org/x/sys/unix"
)

const (
	// DefaultTimeout bounds a single scriptlet run
	DefaultTimeout = 60 * time.Second

	// DefaultInterpreter runs bodies that do not name their own interpreter
	DefaultInterpreter = "/bin/sh"

	// archInterpreter runs the generated .INSTALL wrapper
	archInterpreter = "/bin/bash"

	// DefaultWaitDelay is how long to wait for output pipes once the interpreter has exited
	DefaultWaitDelay = 2 * time.Second

	// maxLogLine bounds a single captured output line in the logs
	maxLogLine = 1 << 20
)

// Request describes one scriptlet run
type Request struct {
	Invocation core.ScriptletInvocation
	WorkDir    string            // installation root; "/" when empty
	Env        map[string]string // merged over the process environment
	Suppressed bool              // report a skip without touching the system
}

// Result reports what happened to a scriptlet run
type Result struct {
	ExitCode int
	Skipped  bool
	Duration time.Duration
	Stdout   string
	Stderr   string
}

// Executor runs scriptlet invocations synchronously
type Executor interface {
	Execute(ctx context.Context, req Request) (Result, error)
}

// ShellExecutor runs scriptlet bodies through their interpreter as child processes
type ShellExecutor struct {
	// Fs stages script bodies before they run. It must be backed by the real
	// filesystem because the interpreter reads the staged file from disk.
	Fs                 afero.Fs
	Logger             *zerolog.Logger
	Timeout            time.Duration
	DefaultInterpreter string
	TempDir            string        // parent of per-run staging dirs; os.TempDir() when empty
	WaitDelay          time.Duration // pipe grace period after exit; DefaultWaitDelay when zero
}

// NewShellExecutor creates an executor with default settings
func NewShellExecutor(log *zerolog.Logger) *ShellExecutor {
	return &ShellExecutor{
		Fs:                 afero.NewOsFs(),
		Logger:             log,
		Timeout:            DefaultTimeout,
		DefaultInterpreter: DefaultInterpreter,
	}
}

// Execute runs req and blocks until the scriptlet exits or the timeout elapses.
// A non-zero exit is returned both in Result.ExitCode and as *core.ScriptletExitError.
func (e *ShellExecutor) Execute(ctx context.Context, req Request) (Result, error) {
	inv := req.Invocation
	log := e.logger().With().
		Str("phase", string(inv.Phase)).
		Str("owner", string(inv.Owner)).
		Strs("argv", inv.Argv).
		Logger()

	if req.Suppressed {
		log.Debug().Msg("scriptlet skipped (scripts suppressed)")
		return Result{Skipped: true}, nil
	}

	interpreter, flags, err := e.interpreterFor(inv)
	if err != nil {
		return Result{ExitCode: -1}, &core.ScriptletLaunchError{Phase: inv.Phase, Owner: inv.Owner, Err: err}
	}

	stageDir, err := afero.TempDir(e.fs(), e.TempDir, "pkglife-scriptlet-")
	if err != nil {
		return Result{ExitCode: -1}, &core.ScriptletLaunchError{Phase: inv.Phase, Owner: inv.Owner, Err: fmt.Errorf("create staging dir: %w", err)}
	}
	defer e.fs().RemoveAll(stageDir)

	scriptPath, err := prepareScript(e.fs(), stageDir, inv)
	if err != nil {
		return Result{ExitCode: -1}, &core.ScriptletLaunchError{Phase: inv.Phase, Owner: inv.Owner, Err: err}
	}

	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := make([]string, 0, len(flags)+1+len(inv.Argv))
	args = append(args, flags...)
	args = append(args, scriptPath)
	args = append(args, inv.Argv...)
	cmd := exec.CommandContext(runCtx, interpreter, args...)
	cmd.Dir = workDir(req.WorkDir)
	cmd.Env = buildEnv(inv, cmd.Dir, req.Env)
	cmd.Stdin = nil // /dev/null, a prompt must never block the transaction

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// Scriptlets may fork daemons or helpers; kill the whole group on timeout.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
	cmd.WaitDelay = e.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = DefaultWaitDelay
	}

	log.Info().
		Str("package", inv.Package.String()).
		Str("interpreter", interpreter).
		Strs("flags", flags).
		Msg("executing scriptlet")

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{ExitCode: -1}, &core.ScriptletLaunchError{Phase: inv.Phase, Owner: inv.Owner, Err: err}
	}
	waitErr := cmd.Wait()

	// A background child kept the output pipes open after a clean exit. The
	// scriptlet itself succeeded; reap the leftovers of its process group.
	if errors.Is(waitErr, exec.ErrWaitDelay) && cmd.ProcessState != nil && cmd.ProcessState.Success() {
		if err := unix.Kill(-cmd.Process.Pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
			log.Debug().Err(err).Msg("failed to kill leftover scriptlet processes")
		}
		log.Warn().Msg("scriptlet exited but left background processes holding its output; they were killed")
		waitErr = nil
	}

	result := Result{
		Duration: time.Since(start),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}
	logOutput(&log, result.Stdout, result.Stderr)

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		result.ExitCode = -1
		log.Error().Dur("timeout", timeout).Msg("scriptlet timed out")
		return result, &core.ScriptletTimeoutError{Phase: inv.Phase, Owner: inv.Owner, Timeout: timeout}
	}
	if ctx.Err() != nil {
		result.ExitCode = -1
		return result, fmt.Errorf("%s scriptlet interrupted: %w", inv.Phase, ctx.Err())
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			result.ExitCode = -1
			return result, &core.ScriptletLaunchError{Phase: inv.Phase, Owner: inv.Owner, Err: waitErr}
		}
		result.ExitCode = exitErr.ExitCode()
		log.Warn().
			Int("exit_code", result.ExitCode).
			Dur("duration", result.Duration).
			Msg("scriptlet failed")
		return result, &core.ScriptletExitError{
			Phase:    inv.Phase,
			Owner:    inv.Owner,
			ExitCode: result.ExitCode,
			Stderr:   strings.TrimSpace(result.Stderr),
		}
	}

	log.Info().Dur("duration", result.Duration).Msg("scriptlet completed")
	return result, nil
}

func (e *ShellExecutor) fs() afero.Fs {
	if e.Fs == nil {
		e.Fs = afero.NewOsFs()
	}
	return e.Fs
}

func (e *ShellExecutor) logger() *zerolog.Logger {
	if e.Logger == nil {
		nop := zerolog.Nop()
		e.Logger = &nop
	}
	return e.Logger
}

// interpreterFor resolves the interpreter and its shebang flags without falling
// back to another interpreter. Flags only apply to the interpreter they came with.
func (e *ShellExecutor) interpreterFor(inv core.ScriptletInvocation) (string, []string, error) {
	interpreter := inv.Scriptlet.Interpreter
	var flags []string
	if interpreter != "" {
		flags = inv.Scriptlet.Flags
	}
	if inv.Package != nil && inv.Package.Format == core.FormatArch {
		interpreter = archInterpreter
		flags = nil
	}
	if interpreter == "" {
		interpreter = e.DefaultInterpreter
	}
	if interpreter == "" {
		interpreter = DefaultInterpreter
	}

	path, err := exec.LookPath(interpreter)
	if err != nil {
		return "", nil, fmt.Errorf("interpreter %q not found: %w", interpreter, err)
	}
	return path, flags, nil
}

// prepareScript writes the runnable script for inv into dir and returns its path
func prepareScript(fs afero.Fs, dir string, inv core.ScriptletInvocation) (string, error) {
	content := inv.Scriptlet.Body
	if inv.Package != nil && inv.Package.Format == core.FormatArch {
		content = ArchWrapper(content, inv.Phase)
	}

	path := filepath.Join(dir, "scriptlet.sh")
	if err := afero.WriteFile(fs, path, []byte(content), 0o700); err != nil {
		return "", fmt.Errorf("write scriptlet: %w", err)
	}
	// WriteFile honours umask only on creation; make sure the owner can execute.
	if err := fs.Chmod(path, 0o700); err != nil {
		return "", fmt.Errorf("chmod scriptlet: %w", err)
	}
	return path, nil
}

// ArchWrapper turns an .INSTALL function library into a script that calls the
// function for phase with the script's arguments, if the function is defined.
func ArchWrapper(content string, phase core.Phase) string {
	fn := strings.ReplaceAll(string(phase), "-", "_")

	var b strings.Builder
	b.WriteString("#!/bin/bash\nset -e\n\n")
	b.WriteString(content)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "if declare -f %s > /dev/null; then\n", fn)
	fmt.Fprintf(&b, "    %s \"$@\"\n", fn)
	b.WriteString("fi\n")
	return b.String()
}

func workDir(dir string) string {
	if dir == "" {
		return "/"
	}
	return dir
}

func buildEnv(inv core.ScriptletInvocation, root string, extra map[string]string) []string {
	env := os.Environ()

	if inv.Package != nil {
		env = append(env,
			"PKGLIFE_PACKAGE_NAME="+inv.Package.Name,
			"PKGLIFE_PACKAGE_VERSION="+inv.Package.FullVersion(),
			"PKGLIFE_PACKAGE_FORMAT="+string(inv.Package.Format),
		)
	}
	env = append(env,
		"PKGLIFE_PHASE="+string(inv.Phase),
		"PKGLIFE_OWNER="+string(inv.Owner),
		"PKGLIFE_ROOT="+root,
	)

	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}

	return env
}

func logOutput(log *zerolog.Logger, stdout, stderr string) {
	logStream(log, "stdout", stdout, zerolog.InfoLevel)
	logStream(log, "stderr", stderr, zerolog.WarnLevel)
}

func logStream(log *zerolog.Logger, stream, output string, level zerolog.Level) {
	scanner := bufio.NewScanner(strings.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLogLine)
	for scanner.Scan() {
		log.WithLevel(level).Str("stream", stream).Msg(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		log.Warn().Err(err).Str("stream", stream).Msg("scriptlet output truncated in log")
	}
}
